package sql

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// VersionStore composes ProductStore and ScanStore into the single
// persistence surface version.Poller depends on (version.Store).
type VersionStore struct {
	*ProductStore
	scans *ScanStore
}

func NewVersionStore(pool *pgxpool.Pool) *VersionStore {
	return &VersionStore{ProductStore: NewProductStore(pool), scans: NewScanStore(pool)}
}

// EnsurePendingScan forwards to ScanStore.EnsurePending, named to match
// version.Store's vocabulary.
func (s *VersionStore) EnsurePendingScan(ctx context.Context, productID int64) error {
	return s.scans.EnsurePending(ctx, productID)
}
