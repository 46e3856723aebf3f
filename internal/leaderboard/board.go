// Package leaderboard ranks profiles by total XP and serves the ranked window to viewers.
package leaderboard

import (
	"context"
	"fmt"
	"log"
	"slices"
	"strings"
	"sync"
	"time"

	"example.com/focusquest/internal/auth"
	"example.com/focusquest/internal/domain"
	"example.com/focusquest/internal/xp"
)

const (
	DefaultTopN    = 50
	DefaultPreview = 5
)

// Entry is one ranked row.
type Entry struct {
	Rank     int    `json:"rank"`
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	TotalXP  int    `json:"total_xp"`
	Level    int    `json:"level"`
}

// Me summarises the viewer's own standing.
type Me struct {
	Rank        int     `json:"rank"`
	Level       int     `json:"level"`
	Progress    float64 `json:"progress"`
	ToNextLevel int     `json:"to_next_level"`
}

// View is what a single viewer is allowed to see.
type View struct {
	Entries  []Entry   `json:"entries"`
	Obscured bool      `json:"obscured"`
	Me       *Me       `json:"me,omitempty"`
	LoadedAt time.Time `json:"loaded_at"`
}

// Rank orders profiles by total XP descending, breaking ties by id ascending.
// The input is not modified.
func Rank(profiles []domain.Profile) []domain.Profile {
	ranked := slices.Clone(profiles)
	slices.SortStableFunc(ranked, func(a, b domain.Profile) int {
		if a.TotalXP != b.TotalXP {
			if a.TotalXP > b.TotalXP {
				return -1
			}
			return 1
		}
		return strings.Compare(a.ID, b.ID)
	})
	return ranked
}

// Board holds the latest ranked window. Reloads replace it wholesale; the last one to
// finish wins.
type Board struct {
	store   domain.ProfileStore
	topN    int
	preview int
	logger  *log.Logger
	now     func() time.Time

	mu       sync.RWMutex
	ranked   []domain.Profile
	loadedAt time.Time
}

// Option customises a Board.
type Option func(*Board)

// WithTopN sets the size of the fetched window.
func WithTopN(n int) Option {
	return func(b *Board) {
		if n > 0 {
			b.topN = n
		}
	}
}

// WithPreview sets how many rows guests see.
func WithPreview(n int) Option {
	return func(b *Board) {
		if n > 0 {
			b.preview = n
		}
	}
}

// WithLogger overrides the board logger.
func WithLogger(logger *log.Logger) Option {
	return func(b *Board) {
		b.logger = logger
	}
}

// NewBoard returns an empty board reading from store.
func NewBoard(store domain.ProfileStore, opts ...Option) *Board {
	b := &Board{
		store:   store,
		topN:    DefaultTopN,
		preview: DefaultPreview,
		logger:  log.New(log.Writer(), "[leaderboard] ", log.LstdFlags),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Reload fetches the top window and replaces the snapshot. On failure the previous
// snapshot is kept.
func (b *Board) Reload(ctx context.Context) error {
	profiles, err := b.store.TopProfiles(ctx, b.topN)
	if err != nil {
		return fmt.Errorf("reload leaderboard: %w", err)
	}
	ranked := Rank(profiles)
	if len(ranked) > b.topN {
		ranked = ranked[:b.topN]
	}

	b.mu.Lock()
	b.ranked = ranked
	b.loadedAt = b.now()
	b.mu.Unlock()
	recordReload(len(ranked))
	return nil
}

// Loaded reports whether at least one reload has succeeded.
func (b *Board) Loaded() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return !b.loadedAt.IsZero()
}

// View renders the snapshot for identity. Guests get an obscured preview; authenticated
// viewers get the full window plus their own standing when they are inside it.
func (b *Board) View(identity auth.Identity) View {
	b.mu.RLock()
	defer b.mu.RUnlock()

	limit := len(b.ranked)
	userID, authenticated := auth.UserID(identity)
	if !authenticated && limit > b.preview {
		limit = b.preview
	}

	view := View{
		Entries:  make([]Entry, 0, limit),
		Obscured: !authenticated,
		LoadedAt: b.loadedAt,
	}
	for i, p := range b.ranked[:limit] {
		view.Entries = append(view.Entries, Entry{
			Rank:     i + 1,
			UserID:   p.ID,
			Username: p.Username,
			TotalXP:  p.TotalXP,
			Level:    xp.Level(p.TotalXP),
		})
	}

	if authenticated {
		idx := slices.IndexFunc(b.ranked, func(p domain.Profile) bool { return p.ID == userID })
		if idx >= 0 {
			stats := xp.Describe(b.ranked[idx].TotalXP)
			view.Me = &Me{
				Rank:        idx + 1,
				Level:       stats.Level,
				Progress:    stats.Progress,
				ToNextLevel: stats.ToNextLevel,
			}
		}
	}
	return view
}
