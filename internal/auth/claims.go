// Package auth resolves who is visiting, guards routes by auth state and broadcasts
// auth state changes.
package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Config holds verification parameters for tokens issued by the auth backend.
type Config struct {
	Secret string
	Issuer string
}

// Claims represents the payload extracted from a session token.
type Claims struct {
	Subject   string
	Email     string
	Username  string
	Recovery  bool // session was issued by a password recovery link
	ExpiresAt time.Time
	Token     string
}

// ErrMissingToken is returned when no session token accompanies the request.
var ErrMissingToken = errors.New("missing session token")

// ErrInvalidToken wraps parsing/validation errors.
var ErrInvalidToken = errors.New("invalid session token")

// Parse validates a session JWT and returns normalized claims.
func Parse(token string, cfg Config) (*Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrMissingToken
	}

	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Name}), jwt.WithExpirationRequired()}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}

	parsed, err := jwt.Parse(token, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(cfg.Secret), nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok || !parsed.Valid {
		return nil, ErrInvalidToken
	}

	subject, _ := claims["sub"].(string)
	if subject == "" {
		return nil, ErrInvalidToken
	}
	email, _ := claims["email"].(string)

	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return nil, fmt.Errorf("%w: missing expiry", ErrInvalidToken)
	}

	return &Claims{
		Subject:   subject,
		Email:     email,
		Username:  metadataUsername(claims["user_metadata"]),
		Recovery:  hasRecoveryMethod(claims["amr"]),
		ExpiresAt: exp.Time,
		Token:     token,
	}, nil
}

func metadataUsername(value interface{}) string {
	meta, ok := value.(map[string]interface{})
	if !ok {
		return ""
	}
	username, _ := meta["username"].(string)
	return strings.TrimSpace(username)
}

// hasRecoveryMethod inspects the authentication-methods-reference claim, which the
// backend emits either as a list of strings or a list of {"method": ...} objects.
func hasRecoveryMethod(value interface{}) bool {
	items, ok := value.([]interface{})
	if !ok {
		return false
	}
	for _, item := range items {
		switch v := item.(type) {
		case string:
			if v == "recovery" {
				return true
			}
		case map[string]interface{}:
			if method, _ := v["method"].(string); method == "recovery" {
				return true
			}
		}
	}
	return false
}
