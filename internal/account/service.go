// Package account orchestrates sign-up, sign-in, email callbacks and password recovery
// against the hosted auth service, publishing every transition to the auth feed.
package account

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"example.com/focusquest/internal/auth"
	"example.com/focusquest/internal/domain"
	"example.com/focusquest/internal/gateway"
	"example.com/focusquest/internal/profile"
)

const (
	CallbackPath      = "/callback"
	ResetPasswordPath = "/reset-password"
)

var (
	// ErrMissingFields rejects forms with a blank required field.
	ErrMissingFields = errors.New("all fields are required")
	// ErrRecoveryRequired rejects password changes outside a recovery session.
	ErrRecoveryRequired = errors.New("password reset requires a recovery link")
)

// SignUpRequest is the sign-up form.
type SignUpRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Username string `json:"username"`
}

// CallbackResult is the outcome of exchanging an emailed code.
type CallbackResult struct {
	Session  gateway.Session
	Recovery bool
}

// Service runs the account flows.
type Service struct {
	backend   gateway.AuthBackend
	profiles  domain.ProfileStore
	ensure    *profile.Service
	feed      *auth.Feed
	tokens    auth.Config
	publicURL string
	logger    *log.Logger
	now       func() time.Time
}

// Option customises a Service.
type Option func(*Service)

// WithLogger overrides the service logger.
func WithLogger(logger *log.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// NewService builds the account flows over gw. Redirect targets handed to the auth
// service are built from publicURL.
func NewService(gw *gateway.Gateway, profiles *profile.Service, feed *auth.Feed, tokens auth.Config, publicURL string, opts ...Option) *Service {
	s := &Service{
		backend:   gw.Auth,
		profiles:  gw.Profiles,
		ensure:    profiles,
		feed:      feed,
		tokens:    tokens,
		publicURL: strings.TrimRight(publicURL, "/"),
		logger:    log.New(log.Writer(), "[account] ", log.LstdFlags),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SignUp registers an account pending email verification. The username must be unused.
func (s *Service) SignUp(ctx context.Context, req SignUpRequest) (gateway.User, error) {
	email := strings.TrimSpace(req.Email)
	username := strings.TrimSpace(req.Username)
	if email == "" || req.Password == "" || username == "" {
		return gateway.User{}, ErrMissingFields
	}

	existing, err := s.profiles.FindProfileByUsername(ctx, username)
	if err != nil {
		return gateway.User{}, fmt.Errorf("check username: %w", err)
	}
	if existing != nil {
		return gateway.User{}, domain.ErrUsernameTaken
	}

	user, err := s.backend.SignUp(ctx, email, req.Password, username, s.publicURL+CallbackPath)
	if err != nil {
		return gateway.User{}, err
	}
	s.logger.Printf("sign-up pending verification (user=%s)", user.ID)
	return user, nil
}

// SignIn exchanges credentials for a session and makes sure the profile exists.
func (s *Service) SignIn(ctx context.Context, email, password string) (gateway.Session, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return gateway.Session{}, ErrMissingFields
	}
	session, err := s.backend.SignIn(ctx, email, password)
	if err != nil {
		return gateway.Session{}, err
	}
	username := s.reconcile(ctx, session.User)
	s.publish(auth.EventSignedIn, session.User, username)
	return session, nil
}

// Callback exchanges a code from a verification or recovery email for a session.
// Recovery sessions are announced as PASSWORD_RECOVERY instead of SIGNED_IN.
func (s *Service) Callback(ctx context.Context, code string) (CallbackResult, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return CallbackResult{}, ErrMissingFields
	}
	session, err := s.backend.ExchangeCode(ctx, code)
	if err != nil {
		return CallbackResult{}, err
	}

	result := CallbackResult{Session: session}
	if claims, err := auth.Parse(session.AccessToken, s.tokens); err == nil {
		result.Recovery = claims.Recovery
	} else {
		s.logger.Printf("callback session token unreadable (user=%s): %v", session.User.ID, err)
	}

	username := s.reconcile(ctx, session.User)
	if result.Recovery {
		s.publish(auth.EventPasswordRecovery, session.User, username)
	} else {
		s.publish(auth.EventSignedIn, session.User, username)
	}
	return result, nil
}

// ForgotPassword asks the auth service to email a recovery link pointing at the reset page.
func (s *Service) ForgotPassword(ctx context.Context, email string) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return ErrMissingFields
	}
	return s.backend.SendPasswordReset(ctx, email, s.publicURL+ResetPasswordPath)
}

// ResetPassword sets a new password. Only sessions issued by a recovery link may do so.
func (s *Service) ResetPassword(ctx context.Context, claims *auth.Claims, password string) error {
	if claims == nil || !claims.Recovery {
		return ErrRecoveryRequired
	}
	if password == "" {
		return ErrMissingFields
	}
	if err := s.backend.UpdatePassword(ctx, claims.Token, password); err != nil {
		return err
	}
	s.logger.Printf("password updated (user=%s)", claims.Subject)
	return nil
}

// SignOut revokes the session remotely and announces the sign-out even when the remote
// call fails, since the local session is dropped either way.
func (s *Service) SignOut(ctx context.Context, claims *auth.Claims) error {
	if claims == nil {
		return nil
	}
	err := s.backend.SignOut(ctx, claims.Token)
	if err != nil {
		s.logger.Printf("remote sign-out failed (user=%s): %v", claims.Subject, err)
	}
	s.publish(auth.EventSignedOut, gateway.User{ID: claims.Subject, Email: claims.Email}, claims.Username)
	return err
}

// reconcile creates the profile on first sign-in. Failures are logged; the profile page
// retries on its own.
func (s *Service) reconcile(ctx context.Context, user gateway.User) string {
	if s.ensure == nil {
		return profile.DefaultUsername(user)
	}
	p, err := s.ensure.Ensure(ctx, user)
	if err != nil {
		s.logger.Printf("profile reconciliation failed (user=%s): %v", user.ID, err)
		return profile.DefaultUsername(user)
	}
	return p.Username
}

func (s *Service) publish(event auth.Event, user gateway.User, username string) {
	if s.feed == nil {
		return
	}
	s.feed.Publish(auth.StateChange{
		Event:    event,
		Identity: auth.Authenticated{ID: user.ID, Email: user.Email},
		Username: username,
		At:       s.now(),
	})
}
