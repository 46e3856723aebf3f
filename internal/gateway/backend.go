// Package gateway is the single, explicitly constructed access point to the external
// backend: the hosted auth service plus the data stores that honor its row-level policies.
package gateway

import (
	"context"
	"time"

	"example.com/focusquest/internal/domain"
)

// User is the auth service's view of an account.
type User struct {
	ID             string
	Email          string
	Username       string // from user metadata, may be empty
	EmailConfirmed bool
}

// Session is an issued credential pair.
type Session struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
	User         User
}

// AuthBackend is the contract of the hosted auth service.
type AuthBackend interface {
	SignUp(ctx context.Context, email, password, username, redirectTo string) (User, error)
	SignIn(ctx context.Context, email, password string) (Session, error)
	ExchangeCode(ctx context.Context, code string) (Session, error)
	SendPasswordReset(ctx context.Context, email, redirectTo string) error
	UpdatePassword(ctx context.Context, accessToken, password string) error
	SignOut(ctx context.Context, accessToken string) error
	CurrentUser(ctx context.Context, accessToken string) (User, error)
}

// DataStore is everything the views need from the data backend.
type DataStore interface {
	domain.ProfileStore
	domain.TaskStore
	domain.SessionStore
	domain.XPProcedure
	domain.XPReconciler
}

// Gateway groups the backend clients. It is built once at startup and passed to every
// component that talks to the backend.
type Gateway struct {
	Auth       AuthBackend
	Profiles   domain.ProfileStore
	Tasks      domain.TaskStore
	Sessions   domain.SessionStore
	XP         domain.XPProcedure
	Reconciler domain.XPReconciler
}

// Option customises a Gateway.
type Option func(*Gateway)

// WithProfileStore replaces the profile store, typically with a caching decorator.
func WithProfileStore(store domain.ProfileStore) Option {
	return func(g *Gateway) {
		if store != nil {
			g.Profiles = store
		}
	}
}

// New assembles a Gateway from an auth backend and a data store.
func New(auth AuthBackend, data DataStore, opts ...Option) *Gateway {
	g := &Gateway{
		Auth:       auth,
		Profiles:   data,
		Tasks:      data,
		Sessions:   data,
		XP:         data,
		Reconciler: data,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}
