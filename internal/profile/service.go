// Package profile loads and creates user profiles and derives their focus statistics.
package profile

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"example.com/focusquest/internal/domain"
	"example.com/focusquest/internal/gateway"
	"example.com/focusquest/internal/xp"
)

// DefaultRetryDelay is the pause before the single retry of a missing profile.
const DefaultRetryDelay = 800 * time.Millisecond

// Summary is the profile page model.
type Summary struct {
	ID       string   `json:"id"`
	Username string   `json:"username"`
	Email    string   `json:"email"`
	XP       xp.Stats `json:"xp"`
	Sessions int      `json:"sessions"`
	Minutes  int      `json:"minutes"`
}

// Service reads profiles through the gateway's stores.
type Service struct {
	profiles   domain.ProfileStore
	sessions   domain.SessionStore
	retryDelay time.Duration
	logger     *log.Logger
}

// Option customises a Service.
type Option func(*Service)

// WithRetryDelay overrides the pause before retrying a missing profile.
func WithRetryDelay(d time.Duration) Option {
	return func(s *Service) {
		if d >= 0 {
			s.retryDelay = d
		}
	}
}

// WithLogger overrides the service logger.
func WithLogger(logger *log.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// NewService builds a Service.
func NewService(profiles domain.ProfileStore, sessions domain.SessionStore, opts ...Option) *Service {
	s := &Service{
		profiles:   profiles,
		sessions:   sessions,
		retryDelay: DefaultRetryDelay,
		logger:     log.New(log.Writer(), "[profile] ", log.LstdFlags),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Ensure returns the user's profile, creating it with zero XP on first sign-in.
func (s *Service) Ensure(ctx context.Context, user gateway.User) (domain.Profile, error) {
	existing, err := s.profiles.GetProfile(ctx, user.ID)
	if err != nil {
		return domain.Profile{}, fmt.Errorf("get profile: %w", err)
	}
	if existing != nil {
		return *existing, nil
	}

	p := domain.Profile{ID: user.ID, Username: DefaultUsername(user), Email: user.Email}
	err = s.profiles.InsertProfile(ctx, p)
	if errors.Is(err, domain.ErrUsernameTaken) {
		p.Username = fmt.Sprintf("%s-%s", p.Username, shortID(user.ID))
		err = s.profiles.InsertProfile(ctx, p)
	}
	if err != nil {
		// A concurrent sign-in may have created it first.
		if again, getErr := s.profiles.GetProfile(ctx, user.ID); getErr == nil && again != nil {
			return *again, nil
		}
		return domain.Profile{}, fmt.Errorf("create profile: %w", err)
	}
	s.logger.Printf("created profile (user=%s, username=%s)", p.ID, p.Username)
	return p, nil
}

// Load reads a profile, retrying once after a short pause because the row may still be
// in flight right after sign-up. A profile still missing yields domain.ErrProfileNotFound.
func (s *Service) Load(ctx context.Context, id string) (domain.Profile, error) {
	p, err := s.profiles.GetProfile(ctx, id)
	if err != nil {
		return domain.Profile{}, fmt.Errorf("get profile: %w", err)
	}
	if p != nil {
		return *p, nil
	}

	timer := time.NewTimer(s.retryDelay)
	select {
	case <-ctx.Done():
		timer.Stop()
		return domain.Profile{}, ctx.Err()
	case <-timer.C:
	}

	p, err = s.profiles.GetProfile(ctx, id)
	if err != nil {
		return domain.Profile{}, fmt.Errorf("get profile: %w", err)
	}
	if p == nil {
		return domain.Profile{}, domain.ErrProfileNotFound
	}
	return *p, nil
}

// Summary loads the profile together with its session statistics.
func (s *Service) Summary(ctx context.Context, id string) (Summary, error) {
	p, err := s.Load(ctx, id)
	if err != nil {
		return Summary{}, err
	}
	stats, err := s.Stats(ctx, id)
	if err != nil {
		return Summary{}, err
	}
	return Summary{
		ID:       p.ID,
		Username: p.Username,
		Email:    p.Email,
		XP:       xp.Describe(p.TotalXP),
		Sessions: stats.Sessions,
		Minutes:  stats.Minutes,
	}, nil
}

// Stats returns the number of focus sessions and total focused minutes.
func (s *Service) Stats(ctx context.Context, id string) (domain.SessionStats, error) {
	stats, err := s.sessions.SessionStats(ctx, id)
	if err != nil {
		return domain.SessionStats{}, fmt.Errorf("session stats: %w", err)
	}
	return stats, nil
}

// DefaultUsername picks the metadata username, else the email local part, else "user".
func DefaultUsername(user gateway.User) string {
	if name := strings.TrimSpace(user.Username); name != "" {
		return name
	}
	if local, _, ok := strings.Cut(user.Email, "@"); ok && strings.TrimSpace(local) != "" {
		return strings.TrimSpace(local)
	}
	return "user"
}

func shortID(id string) string {
	id = strings.ReplaceAll(id, "-", "")
	if len(id) > 6 {
		return id[:6]
	}
	return id
}
