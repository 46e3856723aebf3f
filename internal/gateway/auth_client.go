package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// AuthClient talks to the hosted auth service's REST API.
type AuthClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewAuthClient constructs a client with sane defaults.
func NewAuthClient(baseURL, apiKey string) *AuthClient {
	return &AuthClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

type userPayload struct {
	ID               string                 `json:"id"`
	Email            string                 `json:"email"`
	EmailConfirmedAt *time.Time             `json:"email_confirmed_at"`
	UserMetadata     map[string]interface{} `json:"user_metadata"`
}

func (u userPayload) toUser() User {
	username, _ := u.UserMetadata["username"].(string)
	return User{
		ID:             u.ID,
		Email:          u.Email,
		Username:       strings.TrimSpace(username),
		EmailConfirmed: u.EmailConfirmedAt != nil,
	}
}

type sessionPayload struct {
	AccessToken  string      `json:"access_token"`
	RefreshToken string      `json:"refresh_token"`
	ExpiresIn    int64       `json:"expires_in"`
	ExpiresAt    int64       `json:"expires_at"`
	User         userPayload `json:"user"`
}

func (s sessionPayload) toSession() Session {
	expiresAt := time.Unix(s.ExpiresAt, 0).UTC()
	if s.ExpiresAt == 0 {
		expiresAt = time.Now().UTC().Add(time.Duration(s.ExpiresIn) * time.Second)
	}
	return Session{
		AccessToken:  s.AccessToken,
		RefreshToken: s.RefreshToken,
		ExpiresAt:    expiresAt,
		User:         s.User.toUser(),
	}
}

// SignUp registers an account. The service answers with the pending user when email
// confirmation is required.
func (c *AuthClient) SignUp(ctx context.Context, email, password, username, redirectTo string) (User, error) {
	body := map[string]any{
		"email":    email,
		"password": password,
		"data":     map[string]string{"username": username},
	}
	path := "/auth/v1/signup"
	if redirectTo != "" {
		path += "?redirect_to=" + url.QueryEscape(redirectTo)
	}

	var raw json.RawMessage
	if err := c.do(ctx, http.MethodPost, path, "", body, &raw); err != nil {
		return User{}, err
	}

	// Auto-confirming deployments answer with a full session instead.
	var session sessionPayload
	if err := json.Unmarshal(raw, &session); err == nil && session.User.ID != "" {
		return session.User.toUser(), nil
	}
	var user userPayload
	if err := json.Unmarshal(raw, &user); err != nil {
		return User{}, err
	}
	return user.toUser(), nil
}

// SignIn exchanges email and password for a session.
func (c *AuthClient) SignIn(ctx context.Context, email, password string) (Session, error) {
	var payload sessionPayload
	body := map[string]string{"email": email, "password": password}
	if err := c.do(ctx, http.MethodPost, "/auth/v1/token?grant_type=password", "", body, &payload); err != nil {
		return Session{}, err
	}
	return payload.toSession(), nil
}

// ExchangeCode trades a verification or recovery link code for a session.
func (c *AuthClient) ExchangeCode(ctx context.Context, code string) (Session, error) {
	var payload sessionPayload
	body := map[string]string{"auth_code": code}
	if err := c.do(ctx, http.MethodPost, "/auth/v1/token?grant_type=pkce", "", body, &payload); err != nil {
		return Session{}, err
	}
	return payload.toSession(), nil
}

// SendPasswordReset asks the service to email a recovery link that lands on redirectTo.
func (c *AuthClient) SendPasswordReset(ctx context.Context, email, redirectTo string) error {
	path := "/auth/v1/recover"
	if redirectTo != "" {
		path += "?redirect_to=" + url.QueryEscape(redirectTo)
	}
	return c.do(ctx, http.MethodPost, path, "", map[string]string{"email": email}, nil)
}

// UpdatePassword sets a new password for the session's user.
func (c *AuthClient) UpdatePassword(ctx context.Context, accessToken, password string) error {
	return c.do(ctx, http.MethodPut, "/auth/v1/user", accessToken, map[string]string{"password": password}, nil)
}

// SignOut revokes the session's refresh tokens.
func (c *AuthClient) SignOut(ctx context.Context, accessToken string) error {
	return c.do(ctx, http.MethodPost, "/auth/v1/logout", accessToken, nil, nil)
}

// CurrentUser returns the account behind accessToken.
func (c *AuthClient) CurrentUser(ctx context.Context, accessToken string) (User, error) {
	var payload userPayload
	if err := c.do(ctx, http.MethodGet, "/auth/v1/user", accessToken, nil, &payload); err != nil {
		return User{}, err
	}
	return payload.toUser(), nil
}

func (c *AuthClient) do(ctx context.Context, method, path, accessToken string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("apikey", c.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+accessToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("auth service request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return decodeAuthError(resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func decodeAuthError(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	var payload struct {
		ErrorCode        string `json:"error_code"`
		Error            string `json:"error"`
		ErrorDescription string `json:"error_description"`
		Msg              string `json:"msg"`
		Message          string `json:"message"`
	}
	_ = json.Unmarshal(data, &payload)

	code := payload.ErrorCode
	if code == "" {
		code = payload.Error
	}
	message := firstNonEmpty(payload.Msg, payload.ErrorDescription, payload.Message)
	if message == "" {
		message = strings.TrimSpace(string(data))
	}

	return &AuthError{
		Status:  resp.StatusCode,
		Kind:    classify(resp.StatusCode, code, message),
		Code:    code,
		Message: message,
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
