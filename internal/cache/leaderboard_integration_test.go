//go:build integration

package cache

import (
	"context"
	"io"
	"log"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"example.com/focusquest/internal/domain"
)

type countingStore struct {
	profiles []domain.Profile
	calls    int
	inserted []domain.Profile
}

func (s *countingStore) GetProfile(context.Context, string) (*domain.Profile, error) { return nil, nil }

func (s *countingStore) FindProfileByUsername(context.Context, string) (*domain.Profile, error) {
	return nil, nil
}

func (s *countingStore) InsertProfile(_ context.Context, p domain.Profile) error {
	s.inserted = append(s.inserted, p)
	return nil
}

func (s *countingStore) TopProfiles(_ context.Context, limit int) ([]domain.Profile, error) {
	s.calls++
	if len(s.profiles) > limit {
		return s.profiles[:limit], nil
	}
	return s.profiles, nil
}

func TestLeaderboardCacheRoundTrip(t *testing.T) {
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections"),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	endpoint, err := container.Endpoint(ctx, "")
	require.NoError(t, err)
	rdb, err := NewClient(ctx, endpoint, "", 0)
	require.NoError(t, err)
	t.Cleanup(func() { _ = rdb.Close() })

	store := &countingStore{profiles: []domain.Profile{
		{ID: "a", Username: "ann", TotalXP: 900},
		{ID: "b", Username: "bob", TotalXP: 500},
		{ID: "c", Username: "cat", TotalXP: 250},
	}}
	lb := NewLeaderboard(store, rdb, WithPrefix("test:lb"), WithLogger(log.New(io.Discard, "", 0)))

	first, err := lb.TopProfiles(ctx, 50)
	require.NoError(t, err)
	require.Len(t, first, 3)
	require.Equal(t, 1, store.calls)

	cached, err := lb.TopProfiles(ctx, 2)
	require.NoError(t, err)
	require.Equal(t, 1, store.calls)
	require.Equal(t, []domain.Profile{
		{ID: "a", Username: "ann", TotalXP: 900},
		{ID: "b", Username: "bob", TotalXP: 500},
	}, cached)

	require.NoError(t, lb.InsertProfile(ctx, domain.Profile{ID: "d", Username: "dan"}))
	require.Len(t, store.inserted, 1)

	_, err = lb.TopProfiles(ctx, 50)
	require.NoError(t, err)
	require.Equal(t, 2, store.calls)

	require.NoError(t, lb.Invalidate(ctx))
	_, err = lb.TopProfiles(ctx, 100)
	require.NoError(t, err)
	require.Equal(t, 3, store.calls)
}
