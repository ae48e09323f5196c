package store

import (
	"context"
	"errors"
)

var ErrNotFound = errors.New("not found")

// KV is the persistent key-value storage underneath the cache.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	Ping(ctx context.Context) error
}

// Namespaced scopes every key of an underlying KV under a prefix, so several
// profiles can share one database.
type Namespaced struct {
	kv     KV
	prefix string
}

func NewNamespaced(kv KV, namespace string) *Namespaced {
	return &Namespaced{kv: kv, prefix: namespace + "/"}
}

func (n *Namespaced) Get(ctx context.Context, key string) ([]byte, error) {
	return n.kv.Get(ctx, n.prefix+key)
}

func (n *Namespaced) Put(ctx context.Context, key string, value []byte) error {
	return n.kv.Put(ctx, n.prefix+key, value)
}

func (n *Namespaced) Delete(ctx context.Context, key string) error {
	return n.kv.Delete(ctx, n.prefix+key)
}

func (n *Namespaced) Ping(ctx context.Context) error {
	return n.kv.Ping(ctx)
}
