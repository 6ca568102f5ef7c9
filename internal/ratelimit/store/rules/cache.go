package rules

import "context"

// Cache is the best-effort write-through target for rule mutations. The
// in-process index stays authoritative for this process; the cache is
// advisory for sibling processes and may lag.
type Cache interface {
	Put(ctx context.Context, key string, value any) error
	Delete(ctx context.Context, key string) error
}

// NoopCache satisfies Cache for deployments without an external store.
type NoopCache struct{}

func (NoopCache) Put(context.Context, string, any) error { return nil }

func (NoopCache) Delete(context.Context, string) error { return nil }
