// Package auth holds the launcha session: the bearer credential shared by
// every outgoing call, persisted under the data directory.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/bang0930/mcp-web/internal/apiclient"
)

// expiryBuffer treats tokens about to expire as already expired.
const expiryBuffer = 30 * time.Second

// Event is a session state change.
type Event int

const (
	EventLogin Event = iota + 1
	EventLogout
)

func (e Event) String() string {
	switch e {
	case EventLogin:
		return "login"
	case EventLogout:
		return "logout"
	}
	return "unknown"
}

// Session is an immutable snapshot of the credential. The zero value is
// the absent session.
type Session struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type,omitempty"`
	Email       string    `json:"email,omitempty"`
	Subject     string    `json:"subject,omitempty"`
	ExpiresAt   time.Time `json:"expires_at,omitempty"`
}

// Token returns the bearer credential, or "" when absent.
func (s Session) Token() string {
	return strings.TrimSpace(s.AccessToken)
}

// Authenticated reports whether the session can authorize protected calls now.
func (s Session) Authenticated() bool {
	return s.AuthenticatedAt(time.Now())
}

// AuthenticatedAt reports whether the session is usable at now.
func (s Session) AuthenticatedAt(now time.Time) bool {
	if s.Token() == "" {
		return false
	}
	if s.ExpiresAt.IsZero() {
		return true
	}
	return now.Before(s.ExpiresAt.Add(-expiryBuffer))
}

// Credentials is the on-disk form.
type Credentials struct {
	Session   Session `json:"session"`
	CreatedAt int64   `json:"created_at"`
}

// Authenticator is the account API the store calls.
type Authenticator interface {
	Login(ctx context.Context, email, password string) (apiclient.LoginResponse, error)
	DeleteAccount(ctx context.Context, token string) error
}

// Store owns the session. Other components only ever see Session values.
type Store struct {
	path   string
	api    Authenticator
	logger *zap.Logger

	mu          sync.RWMutex
	credentials *Credentials
	subs        map[int]func(Event, Session)
	nextSub     int
}

// NewStore opens the store persisted at path. A missing or unreadable
// credentials file yields an absent session.
func NewStore(path string, api Authenticator, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("failed to create config directory: %w", err)
	}
	s := &Store{
		path:   path,
		api:    api,
		logger: logger.Named("auth"),
		subs:   make(map[int]func(Event, Session)),
	}
	if err := s.loadCredentials(); err != nil && !errors.Is(err, os.ErrNotExist) {
		s.logger.Warn("ignoring unreadable credentials", zap.String("path", path), zap.Error(err))
	}
	return s, nil
}

// Current returns a snapshot of the session.
func (s *Store) Current() Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.credentials == nil {
		return Session{}
	}
	return s.credentials.Session
}

// Login exchanges credentials for a token and persists the new session.
func (s *Store) Login(ctx context.Context, email, password string) (Session, error) {
	if s.api == nil {
		return Session{}, errors.New("auth: no account service configured")
	}
	resp, err := s.api.Login(ctx, email, password)
	if err != nil {
		return Session{}, fmt.Errorf("login: %w", err)
	}
	session := NewSession(resp.AccessToken, resp.TokenType, email)
	if err := s.set(session); err != nil {
		return Session{}, err
	}
	s.logger.Info("logged in", zap.String("email", email))
	s.notify(EventLogin, session)
	return session, nil
}

// Logout clears the session. Requests already issued keep their token.
func (s *Store) Logout() error {
	s.mu.Lock()
	s.credentials = nil
	s.mu.Unlock()

	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove credentials: %w", err)
	}
	s.notify(EventLogout, Session{})
	return nil
}

// DeleteAccount deletes the remote account, then logs out.
func (s *Store) DeleteAccount(ctx context.Context) error {
	session := s.Current()
	if !session.Authenticated() {
		return apiclient.ErrUnauthenticated
	}
	if s.api == nil {
		return errors.New("auth: no account service configured")
	}
	if err := s.api.DeleteAccount(ctx, session.Token()); err != nil {
		return fmt.Errorf("delete account: %w", err)
	}
	return s.Logout()
}

// Subscribe registers fn for session changes and returns its unsubscribe
// func. fn runs synchronously after the state has changed.
func (s *Store) Subscribe(fn func(Event, Session)) func() {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

func (s *Store) notify(ev Event, session Session) {
	s.mu.RLock()
	fns := make([]func(Event, Session), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.mu.RUnlock()

	for _, fn := range fns {
		fn(ev, session)
	}
}

func (s *Store) set(session Session) error {
	s.mu.Lock()
	s.credentials = &Credentials{Session: session, CreatedAt: time.Now().Unix()}
	s.mu.Unlock()

	if err := s.saveCredentials(); err != nil {
		return fmt.Errorf("failed to save credentials: %w", err)
	}
	return nil
}

// NewSession builds a session from a raw token, reading the exp and sub
// claims when the token is a JWT. Signatures are not verified: the
// services do that.
func NewSession(token, tokenType, email string) Session {
	session := Session{
		AccessToken: strings.TrimSpace(token),
		TokenType:   tokenType,
		Email:       email,
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(session.AccessToken, claims); err != nil {
		return session
	}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		session.ExpiresAt = exp.Time
	}
	if sub, err := claims.GetSubject(); err == nil {
		session.Subject = sub
	}
	if session.Email == "" {
		if v, ok := claims["email"].(string); ok {
			session.Email = v
		}
	}
	return session
}

func (s *Store) loadCredentials() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return err
	}

	var creds Credentials
	if err := json.Unmarshal(data, &creds); err != nil {
		return err
	}

	s.mu.Lock()
	s.credentials = &creds
	s.mu.Unlock()

	return nil
}

func (s *Store) saveCredentials() error {
	s.mu.RLock()
	creds := s.credentials
	s.mu.RUnlock()

	if creds == nil {
		return nil
	}

	data, err := json.MarshalIndent(creds, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(s.path, data, 0o600)
}
