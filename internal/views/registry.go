// Package views keeps the per-viewer state that outlives a single request: the focus
// engine and the two task collections. Views are created on first use and torn down on
// sign-out, on request, or after sitting idle.
package views

import (
	"context"
	"log"
	"sync"
	"time"

	"example.com/focusquest/internal/auth"
	"example.com/focusquest/internal/focus"
	"example.com/focusquest/internal/gateway"
	"example.com/focusquest/internal/observability"
	"example.com/focusquest/internal/planner"
	"example.com/focusquest/internal/prefs"
)

// DefaultIdleTTL is how long an untouched view survives.
const DefaultIdleTTL = 30 * time.Minute

// View is one viewer's state.
type View struct {
	Identity auth.Identity
	Engine   *focus.Engine
	// FocusTasks backs the task picker on the focus page (undated and upcoming tasks).
	// For guests it is the only place their tasks exist.
	FocusTasks *planner.Planner
	// PlannerTasks backs the monthly planner page.
	PlannerTasks *planner.Planner

	lastSeen time.Time
}

// Registry owns every live View, keyed by identity.
type Registry struct {
	gw         *gateway.Gateway
	prefs      prefs.Store
	ttl        time.Duration
	now        func() time.Time
	logger     *log.Logger
	engineOpts []focus.Option

	mu    sync.Mutex
	views map[string]*View
}

// Option customises a Registry.
type Option func(*Registry)

// WithIdleTTL sets how long an untouched view survives.
func WithIdleTTL(ttl time.Duration) Option {
	return func(r *Registry) {
		if ttl > 0 {
			r.ttl = ttl
		}
	}
}

// WithClock overrides the registry clock.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		if now != nil {
			r.now = now
		}
	}
}

// WithLogger overrides the registry logger.
func WithLogger(logger *log.Logger) Option {
	return func(r *Registry) {
		r.logger = logger
	}
}

// WithEngineOptions passes options to every focus engine the registry builds.
func WithEngineOptions(opts ...focus.Option) Option {
	return func(r *Registry) {
		r.engineOpts = append(r.engineOpts, opts...)
	}
}

// NewRegistry builds an empty registry.
func NewRegistry(gw *gateway.Gateway, store prefs.Store, opts ...Option) *Registry {
	r := &Registry{
		gw:     gw,
		prefs:  store,
		ttl:    DefaultIdleTTL,
		now:    time.Now,
		logger: log.New(log.Writer(), "[views] ", log.LstdFlags),
		views:  make(map[string]*View),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Get returns the identity's view, creating it on first use, and marks it as seen.
// A new view is built outside the registry lock because the engine reads its stored
// duration; if another request created the view meanwhile, that one wins.
func (r *Registry) Get(ctx context.Context, id auth.Identity) *View {
	key := id.Key()
	if v, ok := r.touch(key); ok {
		return v
	}

	backend := focus.Backend{
		Sessions:   r.gw.Sessions,
		XP:         r.gw.XP,
		Tasks:      r.gw.Tasks,
		Reconciler: r.gw.Reconciler,
	}
	built := &View{
		Identity:     id,
		Engine:       focus.NewEngine(ctx, id, backend, r.prefs, r.engineOpts...),
		FocusTasks:   planner.New(id, r.gw.Tasks),
		PlannerTasks: planner.New(id, r.gw.Tasks),
	}

	r.mu.Lock()
	if v, ok := r.views[key]; ok {
		v.lastSeen = r.now()
		r.mu.Unlock()
		built.Engine.Close()
		return v
	}
	built.lastSeen = r.now()
	r.views[key] = built
	observability.SetActiveViews(len(r.views))
	r.mu.Unlock()
	return built
}

func (r *Registry) touch(key string) (*View, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.views[key]
	if ok {
		v.lastSeen = r.now()
	}
	return v, ok
}

// Lookup returns the identity's view without creating one.
func (r *Registry) Lookup(id auth.Identity) (*View, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.views[id.Key()]
	return v, ok
}

// Drop tears down the identity's view. It reports whether one existed.
func (r *Registry) Drop(id auth.Identity) bool {
	r.mu.Lock()
	v, ok := r.views[id.Key()]
	if ok {
		delete(r.views, id.Key())
		observability.SetActiveViews(len(r.views))
	}
	r.mu.Unlock()

	if ok {
		v.Engine.Close()
	}
	return ok
}

// Sweep tears down views idle for longer than the TTL and returns how many it removed.
func (r *Registry) Sweep() int {
	cutoff := r.now().Add(-r.ttl)
	var stale []*View

	r.mu.Lock()
	for key, v := range r.views {
		if v.lastSeen.Before(cutoff) {
			stale = append(stale, v)
			delete(r.views, key)
		}
	}
	observability.SetActiveViews(len(r.views))
	r.mu.Unlock()

	for _, v := range stale {
		v.Engine.Close()
	}
	if len(stale) > 0 {
		r.logger.Printf("swept %d idle views", len(stale))
	}
	return len(stale)
}

// Len returns the number of live views.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.views)
}

// Follow drops a user's view when the feed reports they signed out. The returned
// function stops following.
func (r *Registry) Follow(feed *auth.Feed) func() {
	return feed.Subscribe(func(change auth.StateChange) {
		if change.Event == auth.EventSignedOut && auth.IsAuthenticated(change.Identity) {
			r.Drop(change.Identity)
		}
	})
}

// Run sweeps idle views until ctx is cancelled.
func (r *Registry) Run(ctx context.Context) {
	interval := r.ttl / 4
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Sweep()
		}
	}
}

// Close tears down every view.
func (r *Registry) Close() {
	r.mu.Lock()
	views := r.views
	r.views = make(map[string]*View)
	observability.SetActiveViews(0)
	r.mu.Unlock()

	for _, v := range views {
		v.Engine.Close()
	}
}
