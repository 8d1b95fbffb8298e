package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// State names a session lifecycle phase. Transitions are explicit:
// Uninitialized -> Restoring -> Authenticated|Anonymous -> Terminated.
type State string

const (
	StateUninitialized State = "uninitialized"
	StateRestoring     State = "restoring"
	StateAuthenticated State = "authenticated"
	StateAnonymous     State = "anonymous"
	StateTerminated    State = "terminated"
)

// ErrNotAuthenticated reports an operation that needs a live session.
var ErrNotAuthenticated = errors.New("not authenticated")

// TokenStore persists the bearer token between runs.
type TokenStore interface {
	Load() (string, error)
	Save(token string) error
	Clear() error
}

// FileTokenStore keeps the token in a JSON file under the user config dir.
type FileTokenStore struct {
	path string
}

// NewFileTokenStore resolves the default token path for the given app name.
func NewFileTokenStore(app string) (*FileTokenStore, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return nil, fmt.Errorf("resolve config dir: %w", err)
	}
	return &FileTokenStore{path: filepath.Join(dir, app, "session.json")}, nil
}

type storedSession struct {
	Token string `json:"token"`
}

// Load reads the persisted token, returning empty when none exists.
func (s *FileTokenStore) Load() (string, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", nil
		}
		return "", err
	}
	var stored storedSession
	if err := json.Unmarshal(data, &stored); err != nil {
		return "", nil
	}
	return stored.Token, nil
}

// Save persists the token with user-only permissions.
func (s *FileTokenStore) Save(token string) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return err
	}
	data, err := json.Marshal(storedSession{Token: token})
	if err != nil {
		return err
	}
	return os.WriteFile(s.path, data, 0o600)
}

// Clear removes the persisted token.
func (s *FileTokenStore) Clear() error {
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// Session is the single owner of client-side auth state: the current user
// and bearer token. All mutations go through its lifecycle methods.
type Session struct {
	mu     sync.Mutex
	state  State
	client *Client
	store  TokenStore
	token  string
	user   *User
}

// NewSession constructs an uninitialized session.
func NewSession(c *Client, store TokenStore) *Session {
	return &Session{state: StateUninitialized, client: c, store: store}
}

// Init restores a persisted token and validates it against the API. A
// missing or stale token lands in the anonymous state, not an error.
func (s *Session) Init(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateUninitialized {
		s.mu.Unlock()
		return fmt.Errorf("init from state %s", s.state)
	}
	s.state = StateRestoring
	s.mu.Unlock()

	token, err := s.store.Load()
	if err != nil {
		s.setAnonymous()
		return fmt.Errorf("restore token: %w", err)
	}
	if token == "" {
		s.setAnonymous()
		return nil
	}
	user, err := s.client.Me(ctx, token)
	if err != nil {
		var apiErr APIError
		if errors.As(err, &apiErr) {
			// Stale or revoked-by-expiry token: discard it.
			_ = s.store.Clear()
			s.setAnonymous()
			return nil
		}
		s.setAnonymous()
		return err
	}

	s.mu.Lock()
	s.state = StateAuthenticated
	s.token = token
	s.user = &user
	s.mu.Unlock()
	return nil
}

// Login authenticates and persists the issued token.
func (s *Session) Login(ctx context.Context, email, password string) (User, error) {
	resp, err := s.client.Login(ctx, email, password)
	if err != nil {
		return User{}, err
	}
	return resp.User, s.update(resp)
}

// Register creates an account and enters the authenticated state.
func (s *Session) Register(ctx context.Context, name, email, password string) (User, error) {
	resp, err := s.client.Register(ctx, name, email, password)
	if err != nil {
		return User{}, err
	}
	return resp.User, s.update(resp)
}

func (s *Session) update(resp AuthResponse) error {
	s.mu.Lock()
	s.state = StateAuthenticated
	s.token = resp.Token
	user := resp.User
	s.user = &user
	s.mu.Unlock()
	return s.store.Save(resp.Token)
}

// Logout is a client-side token discard; the server keeps no session state.
func (s *Session) Logout() error {
	s.mu.Lock()
	s.state = StateTerminated
	s.token = ""
	s.user = nil
	s.mu.Unlock()
	return s.store.Clear()
}

// State returns the current lifecycle phase.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Token returns the bearer token or ErrNotAuthenticated.
func (s *Session) Token() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateAuthenticated || s.token == "" {
		return "", ErrNotAuthenticated
	}
	return s.token, nil
}

// User returns the resolved identity when authenticated.
func (s *Session) User() (User, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateAuthenticated || s.user == nil {
		return User{}, false
	}
	return *s.user, true
}

func (s *Session) setAnonymous() {
	s.mu.Lock()
	s.state = StateAnonymous
	s.token = ""
	s.user = nil
	s.mu.Unlock()
}
