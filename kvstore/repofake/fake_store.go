package kvstorefake

import (
	"context"
	"sort"
	"sync"

	"github.com/jrsteele09/freight-session/kvstore"
)

var _ kvstore.Store = (*FakeStore)(nil)

// FakeStore keeps everything in memory and counts calls so tests can assert on I/O
type FakeStore struct {
	values map[string]string
	lock   sync.RWMutex

	gets    int
	sets    int
	removes int

	// FailWith, when set, is returned from every call
	FailWith error
	// FailSet, when set, is consulted before each Set and a non-nil result is returned instead
	FailSet func(key string) error
}

func NewFakeStore() *FakeStore {
	return &FakeStore{
		values: make(map[string]string),
	}
}

func (s *FakeStore) Get(_ context.Context, key string) (string, bool, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.gets++
	if s.FailWith != nil {
		return "", false, s.FailWith
	}
	v, ok := s.values[key]
	return v, ok, nil
}

func (s *FakeStore) Set(_ context.Context, key, value string) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.sets++
	if s.FailWith != nil {
		return s.FailWith
	}
	if s.FailSet != nil {
		if err := s.FailSet(key); err != nil {
			return err
		}
	}
	s.values[key] = value
	return nil
}

func (s *FakeStore) Remove(_ context.Context, key string) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.removes++
	if s.FailWith != nil {
		return s.FailWith
	}
	delete(s.values, key)
	return nil
}

// Keys lists the stored keys in order
func (s *FakeStore) Keys() []string {
	s.lock.RLock()
	defer s.lock.RUnlock()
	keys := make([]string, 0, len(s.values))
	for k := range s.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Counts returns the number of Get, Set and Remove calls seen so far
func (s *FakeStore) Counts() (gets, sets, removes int) {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return s.gets, s.sets, s.removes
}
