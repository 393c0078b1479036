// Package filestore persists the key/value document as a single JSON file.
package filestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/jrsteele09/freight-session/kvstore"
	"github.com/rs/zerolog"
)

// CorruptSuffix is appended to the name of a document that could not be parsed when it is
// moved out of the way
const CorruptSuffix = ".corrupt"

var _ kvstore.Store = (*Store)(nil)

// Store keeps a cached copy of the document and rewrites the whole file on every mutation
type Store struct {
	path   string
	logger zerolog.Logger
	mu     sync.Mutex
	values map[string]string
	loaded bool
}

type Option func(*Store)

func WithLogger(logger zerolog.Logger) Option {
	return func(s *Store) {
		s.logger = logger.With().Str("component", "filestore").Logger()
	}
}

func New(path string, opts ...Option) (*Store, error) {
	if path == "" {
		return nil, errors.New("[filestore New] path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("[filestore New] create directory: %w", err)
	}
	s := &Store{path: path, logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *Store) Path() string {
	return s.path
}

func (s *Store) Get(_ context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.load(); err != nil {
		return "", false, err
	}
	v, ok := s.values[key]
	return v, ok, nil
}

func (s *Store) Set(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.load(); err != nil {
		return err
	}
	s.values[key] = value
	return s.flush()
}

func (s *Store) Remove(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.load(); err != nil {
		return err
	}
	if _, ok := s.values[key]; !ok {
		return nil
	}
	delete(s.values, key)
	return s.flush()
}

// load must be called with mu held. A document that does not parse is renamed with
// CorruptSuffix and the store starts empty.
func (s *Store) load() error {
	if s.loaded {
		return nil
	}
	s.values = make(map[string]string)
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		s.loaded = true
		return nil
	}
	if err != nil {
		return fmt.Errorf("[filestore load] %w", err)
	}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &s.values); err != nil {
			aside := s.path + CorruptSuffix
			if renameErr := os.Rename(s.path, aside); renameErr != nil {
				return fmt.Errorf("[filestore load] parse %s: %v; move aside: %w", s.path, err, renameErr)
			}
			s.logger.Warn().Err(err).Str("moved_to", aside).Msg("unreadable session file, starting empty")
			s.values = make(map[string]string)
		}
	}
	s.loaded = true
	return nil
}

// flush writes to a temp file and renames it over the target. Must be called with mu held.
func (s *Store) flush() error {
	data, err := json.MarshalIndent(s.values, "", "  ")
	if err != nil {
		return err
	}
	tempFile := s.path + ".tmp"
	if err := os.WriteFile(tempFile, data, 0o600); err != nil {
		return fmt.Errorf("[filestore flush] write temp file: %w", err)
	}
	if err := os.Rename(tempFile, s.path); err != nil {
		if removeErr := os.Remove(tempFile); removeErr != nil {
			return fmt.Errorf("[filestore flush] rename: %v; remove temp file: %w", err, removeErr)
		}
		return fmt.Errorf("[filestore flush] rename: %w", err)
	}
	return nil
}
