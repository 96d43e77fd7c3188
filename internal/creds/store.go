package creds

import (
	"errors"
	"sync"

	"pushbridge/pkg/logger"

	"go.uber.org/zap"
)

// Credential is the signed-in account. A nil credential (or empty APIKey)
// means logged out.
type Credential struct {
	APIKey string `json:"api_key"`
	UserID string `json:"user_id"`
}

// ErrNotFound indicates no credential has been saved.
var ErrNotFound = errors.New("credential not found")

// Backend is one persistence mechanism for the credential. Exactly one row
// ever exists.
type Backend interface {
	Load() (*Credential, error)
	Save(c *Credential) error
	Clear() error
	Close() error
}

// ChangeListener observes credential changes. old is nil before the first
// save; cred is nil after a clear.
type ChangeListener func(old, cred *Credential)

// Store wraps a backend and fans out change notifications to every
// registered listener. Callers never branch on which backend is active.
type Store struct {
	mu        sync.Mutex
	backend   Backend
	listeners []ChangeListener
	current   *Credential
	loaded    bool
}

// NewStore creates a store over the given backend
func NewStore(backend Backend) *Store {
	return &Store{backend: backend}
}

// Load returns the persisted credential, or nil if none is saved.
func (s *Store) Load() (*Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.loaded {
		return s.current, nil
	}

	c, err := s.backend.Load()
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			s.loaded = true
			return nil, nil
		}
		return nil, err
	}
	s.current = c
	s.loaded = true
	return c, nil
}

// Save persists the credential and notifies listeners.
func (s *Store) Save(c *Credential) error {
	if c == nil || c.APIKey == "" {
		return errors.New("credential requires an API key")
	}

	s.mu.Lock()
	old := s.current
	if err := s.backend.Save(c); err != nil {
		s.mu.Unlock()
		return err
	}
	s.current = c
	s.loaded = true
	listeners := append([]ChangeListener(nil), s.listeners...)
	s.mu.Unlock()

	logger.Info("credential saved", zap.String("user_id", c.UserID))
	for _, fn := range listeners {
		fn(old, c)
	}
	return nil
}

// Clear removes the credential and notifies listeners with a nil value.
func (s *Store) Clear() error {
	s.mu.Lock()
	old := s.current
	if err := s.backend.Clear(); err != nil {
		s.mu.Unlock()
		return err
	}
	s.current = nil
	s.loaded = true
	listeners := append([]ChangeListener(nil), s.listeners...)
	s.mu.Unlock()

	logger.Info("credential cleared")
	for _, fn := range listeners {
		fn(old, nil)
	}
	return nil
}

// OnChange registers a listener for future Save/Clear calls.
func (s *Store) OnChange(fn ChangeListener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

// Close releases the backend.
func (s *Store) Close() error {
	return s.backend.Close()
}
