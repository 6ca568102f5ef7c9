package audit

import "context"

// Store persists audit events. Implementations must be safe for concurrent
// use; the publisher may call Append from a background goroutine.
type Store interface {
	Append(ctx context.Context, event Event) error
	List(ctx context.Context, limit int) ([]Event, error)
}
