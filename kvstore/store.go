// Package kvstore is the durable key/value mirror the session layer persists into.
package kvstore

import (
	"context"
	"errors"
)

var ErrClosed = errors.New("kvstore: store closed")

// Store is a flat string key/value document. Writes are last-writer-wins.
type Store interface {
	// Get returns ok=false when the key is absent
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string) error
	// Remove is a no-op for missing keys
	Remove(ctx context.Context, key string) error
}

// Namespaced prefixes every key so the session mirror cannot collide with unrelated data
type Namespaced struct {
	store  Store
	prefix string
}

var _ Store = (*Namespaced)(nil)

func WithPrefix(store Store, prefix string) *Namespaced {
	return &Namespaced{store: store, prefix: prefix}
}

func (n *Namespaced) Prefix() string {
	return n.prefix
}

func (n *Namespaced) Get(ctx context.Context, key string) (string, bool, error) {
	return n.store.Get(ctx, n.prefix+key)
}

func (n *Namespaced) Set(ctx context.Context, key, value string) error {
	return n.store.Set(ctx, n.prefix+key, value)
}

func (n *Namespaced) Remove(ctx context.Context, key string) error {
	return n.store.Remove(ctx, n.prefix+key)
}
