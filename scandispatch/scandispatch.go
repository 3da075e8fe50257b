// Package scandispatch implements the Scan Dispatcher (C2): the
// claim/run/classify loop wrapping the Build Scanner (C3) in the
// transactional claim protocol sql.ScanStore exposes.
package scandispatch

import (
	"context"
	"time"

	"github.com/jimbomcb/wow-minimaps/errs"
	"github.com/jimbomcb/wow-minimaps/eventlog"
	"github.com/jimbomcb/wow-minimaps/metrics"
	"github.com/jimbomcb/wow-minimaps/sql"
	"github.com/jimbomcb/wow-minimaps/sql/schema"
)

// Result is the outcome of one Build Scanner run, the terminal
// classification records back onto the claimed scan row.
type Result struct {
	State         schema.ScanState
	Exception     string
	EncryptedKey  string
	EncryptedMaps map[string][]int // key name -> map ids blocked on it (partial_decrypt)
}

// ScannerFunc runs the Build Scanner against a claimed scan's transaction,
// returning its terminal classification. An
// error return is an uncaught fault.
type ScannerFunc func(ctx context.Context, cs sql.ClaimedScan) (Result, error)

// Dispatcher runs the claim/scan/classify loop.
type Dispatcher struct {
	scans         *sql.ScanStore
	scanner       ScannerFunc
	log           *eventlog.Log
	captureExcept bool
}

// New returns a Dispatcher. captureExceptions mirrors's
// exception-capture flag: when false (debug mode), an error from the
// scanner is never classified as schema.ScanException — it is returned to
// the caller and the claim is abandoned instead, matching "the
// transaction aborts and the claim is released."
func New(scans *sql.ScanStore, scanner ScannerFunc, log *eventlog.Log, captureExceptions bool) *Dispatcher {
	return &Dispatcher{scans: scans, scanner: scanner, log: log, captureExcept: captureExceptions}
}

// Tick runs one dispatch cycle: claim a pending scan, run
// the scanner, record its terminal state, and commit. Returns ok=false if
// no pending scan was available to claim.
func (d *Dispatcher) Tick(ctx context.Context) (ok bool, err error) {
	cs, ok, err := d.scans.Claim(ctx)
	if err != nil {
		return false, errs.WrapFmt(err, "scandispatch: claiming a pending scan")
	}
	if !ok {
		return false, nil
	}

	start := time.Now()
	result, scanErr := d.scanner(ctx, cs)
	elapsed := time.Since(start)

	if scanErr != nil {
		if !d.captureExcept {
			_ = d.scans.Abandon(ctx, cs)
			return true, errs.WrapFmt(scanErr, "scandispatch: scan for product %d aborted (debug mode)", cs.ProductID)
		}
		result = Result{State: schema.ScanException, Exception: scanErr.Error()}
	}

	var exception, encryptedKey *string
	if result.Exception != "" {
		exception = &result.Exception
	}
	if result.EncryptedKey != "" {
		encryptedKey = &result.EncryptedKey
	}

	if len(result.EncryptedMaps) > 0 {
		if err := d.scans.RecordEncryptedMaps(ctx, cs, result.EncryptedMaps); err != nil {
			return true, errs.WrapFmt(err, "scandispatch: recording encrypted maps for product %d", cs.ProductID)
		}
	}

	if err := d.scans.Finish(ctx, cs, result.State, elapsed, exception, encryptedKey); err != nil {
		return true, errs.WrapFmt(err, "scandispatch: finishing scan for product %d", cs.ProductID)
	}

	metrics.ScansClaimed.WithLabelValues(string(result.State)).Inc()
	metrics.ScanDuration.Observe(elapsed.Seconds())

	if d.log != nil && result.State == schema.ScanException {
		_ = d.log.Emit(ctx, eventlog.KindScanFailed, cs.ProductID, result.Exception)
	}

	return true, nil
}

// Run blocks, ticking every pollInterval until ctx is cancelled, running
// the scanner inline whenever a pending scan is claimed.
func (d *Dispatcher) Run(ctx context.Context, pollInterval time.Duration) error {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		claimed, err := d.Tick(ctx)
		if err != nil {
			return err
		}
		if claimed {
			continue // immediately look for the next pending scan
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
