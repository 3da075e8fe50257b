package sql

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jimbomcb/wow-minimaps/errs"
	"github.com/jimbomcb/wow-minimaps/sql/schema"
)

// ScanStore implements the scans table and the claim protocol the Scan
// Dispatcher (C2) and Build Scanner (C3) use to hand pending scans off to a
// single worker at a time.
type ScanStore struct {
	pool *pgxpool.Pool
}

func NewScanStore(pool *pgxpool.Pool) *ScanStore { return &ScanStore{pool: pool} }

// EnsurePending inserts a pending scan row for productID if one does not
// already exist.
func (s *ScanStore) EnsurePending(ctx context.Context, productID int64) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO scans (product_id, state) VALUES ($1, 'pending')
		ON CONFLICT (product_id) DO NOTHING
	`, productID)
	if err != nil {
		return errs.WrapFmt(err, "sql: ensuring pending scan for product %d", productID)
	}
	return nil
}

// ClaimedScan is a pending scan claimed for exclusive processing, along with
// the transaction the claim holds — the caller commits (releasing the
// claim alongside the scan's new state) or rolls back (releasing the claim
// with no state change). A worker that dies while holding a claim releases
// it implicitly when its session ends.
type ClaimedScan struct {
	Tx        pgx.Tx
	ProductID int64
}

// Claim locks and returns one pending scan row, or ok=false if none are
// available right now. The caller MUST
// either commit (via Finish) or roll back cs.Tx.
func (s *ScanStore) Claim(ctx context.Context) (cs ClaimedScan, ok bool, err error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return ClaimedScan{}, false, errs.WrapFmt(err, "sql: beginning claim transaction")
	}

	var productID int64
	err = tx.QueryRow(ctx, `
		SELECT product_id FROM scans
		WHERE state = 'pending'
		ORDER BY product_id
		FOR UPDATE SKIP LOCKED
		LIMIT 1
	`).Scan(&productID)
	if err != nil {
		_ = tx.Rollback(ctx)
		if errs.Is(err, pgx.ErrNoRows) {
			return ClaimedScan{}, false, nil
		}
		return ClaimedScan{}, false, errs.WrapFmt(err, "sql: claiming a pending scan")
	}
	return ClaimedScan{Tx: tx, ProductID: productID}, true, nil
}

// Finish records the terminal classification for a
// claimed scan and commits the transaction, releasing the claim.
func (s *ScanStore) Finish(ctx context.Context, cs ClaimedScan, state schema.ScanState, scanTime time.Duration, exception, encryptedKey *string) error {
	_, err := cs.Tx.Exec(ctx, `
		UPDATE scans SET
			state = $2,
			last_scanned = now(),
			scan_time_ms = $3,
			exception = $4,
			encrypted_key = $5
		WHERE product_id = $1
	`, cs.ProductID, string(state), scanTime.Milliseconds(), exception, encryptedKey)
	if err != nil {
		_ = cs.Tx.Rollback(ctx)
		return errs.WrapFmt(err, "sql: recording scan result for product %d", cs.ProductID)
	}
	if err := cs.Tx.Commit(ctx); err != nil {
		return errs.WrapFmt(err, "sql: committing scan result for product %d", cs.ProductID)
	}
	return nil
}

// Abandon rolls back a claim without recording any state change, leaving
// the scan pending. The dispatcher uses it when catch_scan_exceptions is
// disabled and the scanner returns an error; with it enabled, the
// exception is recorded via Finish instead.
func (s *ScanStore) Abandon(ctx context.Context, cs ClaimedScan) error {
	return errs.Wrap(cs.Tx.Rollback(ctx))
}

// RecordEncryptedMaps stores the per-key sets of map ids blocked on a
// missing key.
func (s *ScanStore) RecordEncryptedMaps(ctx context.Context, cs ClaimedScan, byKey map[string][]int) error {
	_, err := cs.Tx.Exec(ctx, `UPDATE scans SET encrypted_maps = $2 WHERE product_id = $1`, cs.ProductID, byKey)
	if err != nil {
		return errs.WrapFmt(err, "sql: recording encrypted maps for product %d", cs.ProductID)
	}
	return nil
}
