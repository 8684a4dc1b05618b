package credential

import "context"

// Store persists a credential file opaquely in platform secure storage.
// Implementations live under storage/; the core never depends on a specific
// mechanism.
type Store interface {
	Save(ctx context.Context, data []byte) error
	// Load returns the stored bytes and whether anything was stored.
	Load(ctx context.Context) ([]byte, bool, error)
	Clear(ctx context.Context) error
}
