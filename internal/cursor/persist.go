package cursor

import "context"

// Persister stores cursor state between runs.
type Persister interface {
	// LoadCursor returns the saved state for key, or nil when none exists.
	LoadCursor(ctx context.Context, key string) (*State, error)
	SaveCursor(ctx context.Context, key string, s State) error
}
