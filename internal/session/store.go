package session

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"
)

// Store is the single source of truth for the Session. It keeps no cache:
// every Get goes to the backend. The lock makes Clear appear atomic to
// concurrent readers even on backends that would expose intermediate state.
type Store struct {
	mu      sync.RWMutex
	backend Backend
	log     *slog.Logger
}

func NewStore(backend Backend, log *slog.Logger) *Store {
	if log == nil {
		log = slog.Default()
	}
	return &Store{backend: backend, log: log.With("component", "session_store")}
}

// Get never fails. A backend error is logged and the session reads as absent.
func (s *Store) Get(ctx context.Context) Session {
	s.mu.RLock()
	values, err := s.backend.Get(ctx, sessionKeys...)
	s.mu.RUnlock()
	if err != nil {
		s.log.Error("session_read_failed", "error", err)
		return Session{}
	}

	sess := Session{
		AccessToken:  values[KeyAccessToken],
		RefreshToken: values[KeyRefreshToken],
		Username:     values[KeyUsername],
		Role:         values[KeyRole],
	}
	if sess.AccessToken == "" {
		return sess
	}
	if raw := values[KeyExpiry]; raw != "" {
		ms, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			s.log.Warn("session_expiry_unreadable", "value", raw, "error", err)
			return sess
		}
		sess.AccessExpiresAt = time.UnixMilli(ms)
	}
	return sess
}

func (s *Store) Set(ctx context.Context, opts ...Option) error {
	if len(opts) == 0 {
		return nil
	}
	values := make(map[string]string, len(opts)+1)
	for _, opt := range opts {
		opt(values)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.backend.Set(ctx, values); err != nil {
		return fmt.Errorf("session set: %w", err)
	}
	return nil
}

// Clear removes every session key. The language preference survives.
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.backend.Delete(ctx, sessionKeys...); err != nil {
		return fmt.Errorf("session clear: %w", err)
	}
	return nil
}

func (s *Store) Language(ctx context.Context) Language {
	s.mu.RLock()
	values, err := s.backend.Get(ctx, KeyLanguage)
	s.mu.RUnlock()
	if err != nil {
		s.log.Error("language_read_failed", "error", err)
		return English
	}
	lang, err := ParseLanguage(values[KeyLanguage])
	if err != nil {
		return English
	}
	return lang
}

func (s *Store) SetLanguage(ctx context.Context, lang Language) error {
	if _, err := ParseLanguage(string(lang)); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.backend.Set(ctx, map[string]string{KeyLanguage: string(lang)})
}

func (s *Store) Close() error {
	return s.backend.Close()
}
