package auth

// Identity is either Anonymous or Authenticated. Code that branches on auth state
// switches on the concrete type instead of checking for nil users.
type Identity interface {
	// Key identifies the viewer for per-visitor state.
	Key() string
	identity()
}

// Anonymous is a guest visitor. GuestID is stable for the lifetime of the guest cookie.
type Anonymous struct {
	GuestID string
}

// Authenticated is a visitor with an active session.
type Authenticated struct {
	ID    string
	Email string
}

func (a Anonymous) Key() string     { return "guest:" + a.GuestID }
func (a Authenticated) Key() string { return "user:" + a.ID }

func (Anonymous) identity()     {}
func (Authenticated) identity() {}

// UserID returns the authenticated user's id, if any.
func UserID(id Identity) (string, bool) {
	if user, ok := id.(Authenticated); ok && user.ID != "" {
		return user.ID, true
	}
	return "", false
}

// IsAuthenticated reports whether the identity carries an active session.
func IsAuthenticated(id Identity) bool {
	_, ok := UserID(id)
	return ok
}
