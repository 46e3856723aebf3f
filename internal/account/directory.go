package account

import (
	"context"
	"sync"

	"example.com/focusquest/internal/auth"
	"example.com/focusquest/internal/domain"
)

// Directory caches usernames by user id. It learns names from the auth feed and falls
// back to the profile store on a miss.
type Directory struct {
	profiles    domain.ProfileStore
	unsubscribe func()

	mu    sync.RWMutex
	names map[string]string
}

// NewDirectory subscribes to feed. Call Close to unsubscribe.
func NewDirectory(feed *auth.Feed, profiles domain.ProfileStore) *Directory {
	d := &Directory{profiles: profiles, names: make(map[string]string)}
	if feed != nil {
		d.unsubscribe = feed.Subscribe(d.observe)
	}
	return d
}

func (d *Directory) observe(change auth.StateChange) {
	userID, ok := auth.UserID(change.Identity)
	if !ok {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	switch change.Event {
	case auth.EventSignedOut:
		delete(d.names, userID)
	default:
		if change.Username != "" {
			d.names[userID] = change.Username
		}
	}
}

// Username returns the cached name for userID, loading it from the profile store if needed.
func (d *Directory) Username(ctx context.Context, userID string) (string, error) {
	d.mu.RLock()
	name, ok := d.names[userID]
	d.mu.RUnlock()
	if ok {
		return name, nil
	}

	p, err := d.profiles.GetProfile(ctx, userID)
	if err != nil {
		return "", err
	}
	if p == nil {
		return "", domain.ErrProfileNotFound
	}
	d.mu.Lock()
	d.names[userID] = p.Username
	d.mu.Unlock()
	return p.Username, nil
}

// Close stops listening to the feed.
func (d *Directory) Close() {
	if d.unsubscribe != nil {
		d.unsubscribe()
	}
}
