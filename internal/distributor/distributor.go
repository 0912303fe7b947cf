// Package distributor assigns produced segments to accounts on the
// external chat/file platform by a deterministic hash, then uploads them
// with bounded concurrency, matching the per-account isolation invariant
// enforced everywhere else in the system.
package distributor

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"io"
	"log/slog"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/pirelike/hlsvault/internal/blobclient"
	"github.com/pirelike/hlsvault/internal/config"
)

// ErrNoAccounts is returned when the distributor is constructed with an
// empty account list.
var ErrNoAccounts = errors.New("distributor: no accounts configured")

// UploadFailedError reports that a unit exhausted its retry budget.
// The Coordinator treats this as fatal to the ingest and triggers cleanup.
type UploadFailedError struct {
	VideoID string
	Ordinal int
	Err     error
}

func (e *UploadFailedError) Error() string {
	return fmt.Sprintf("distributor: upload failed for %s[%d]: %v", e.VideoID, e.Ordinal, e.Err)
}

func (e *UploadFailedError) Unwrap() error { return e.Err }

// UploadUnit is one file to be uploaded and assigned to an account.
type UploadUnit struct {
	VideoID  string
	Ordinal  int
	Filename string
	Open     func() (io.ReadCloser, error)
}

// UploadResult records where a unit ended up.
type UploadResult struct {
	VideoID   string
	Ordinal   int
	Handle    string
	AccountID string
}

// Distributor assigns and uploads segments/subtitle tracks across the
// configured accounts with bounded global and per-account concurrency.
type Distributor struct {
	accounts []config.AccountConfig
	client   blobclient.Client
	logger   *slog.Logger

	retries    int
	retryDelay time.Duration

	global  *semaphore.Weighted
	perAcct map[string]*semaphore.Weighted
}

// New creates a Distributor. concurrency is the global parallelism budget
// P; it is split evenly across len(accounts) for the per-account budget,
// floored at 1, matching spec §4.2's "P/K concurrent requests per account".
func New(accounts []config.AccountConfig, client blobclient.Client, uploadCfg config.UploadConfig, logger *slog.Logger) (*Distributor, error) {
	if len(accounts) == 0 {
		return nil, ErrNoAccounts
	}
	if logger == nil {
		logger = slog.Default()
	}

	perAccountBudget := uploadCfg.Concurrency / len(accounts)
	if perAccountBudget < 1 {
		perAccountBudget = 1
	}

	perAcct := make(map[string]*semaphore.Weighted, len(accounts))
	for _, acct := range accounts {
		perAcct[acct.ID] = semaphore.NewWeighted(int64(perAccountBudget))
	}

	return &Distributor{
		accounts:   accounts,
		client:     client,
		logger:     logger,
		retries:    uploadCfg.Retries,
		retryDelay: uploadCfg.RetryDelay,
		global:     semaphore.NewWeighted(int64(uploadCfg.Concurrency)),
		perAcct:    perAcct,
	}, nil
}

// AccountFor returns the account assigned to the i-th unit of videoID,
// per spec §4.2: accounts[(H(video_id) + i) mod K].
func (d *Distributor) AccountFor(videoID string, i int) config.AccountConfig {
	h := fnv.New32a()
	_, _ = h.Write([]byte(videoID))
	k := len(d.accounts)
	idx := (int(h.Sum32()) + i) % k
	if idx < 0 {
		idx += k
	}
	return d.accounts[idx]
}

// AccountByID looks up a configured account by its immutable ID, used when
// retrieving a segment: the account recorded on the segment row at upload
// time is authoritative and must never be re-derived, since account
// config can be reordered or extended after older segments were uploaded.
func (d *Distributor) AccountByID(id string) (config.AccountConfig, bool) {
	for _, a := range d.accounts {
		if a.ID == id {
			return a, true
		}
	}
	return config.AccountConfig{}, false
}

// UploadAll uploads every unit concurrently, respecting the global and
// per-account semaphores. On full success it returns one result per unit in
// input order. If any unit exhausts its retry budget, UploadAll still
// returns every unit that DID succeed (in input order, with the failed
// units left out) alongside the failed unit's *UploadFailedError with the
// lowest input index, so the Coordinator can clean up exactly
// the handles that were actually uploaded rather than discovering none of
// them.
func (d *Distributor) UploadAll(ctx context.Context, units []UploadUnit) ([]UploadResult, error) {
	results := make([]UploadResult, len(units))
	errs := make([]error, len(units))

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan struct{}, len(units))
	for i, unit := range units {
		i, unit := i, unit
		go func() {
			defer func() { done <- struct{}{} }()

			account := d.AccountFor(unit.VideoID, unit.Ordinal)

			if err := d.global.Acquire(ctx, 1); err != nil {
				errs[i] = &UploadFailedError{VideoID: unit.VideoID, Ordinal: unit.Ordinal, Err: err}
				return
			}
			defer d.global.Release(1)

			acctSem := d.perAcct[account.ID]
			if err := acctSem.Acquire(ctx, 1); err != nil {
				errs[i] = &UploadFailedError{VideoID: unit.VideoID, Ordinal: unit.Ordinal, Err: err}
				return
			}
			defer acctSem.Release(1)

			handle, err := d.uploadWithRetry(ctx, account, unit)
			if err != nil {
				errs[i] = &UploadFailedError{VideoID: unit.VideoID, Ordinal: unit.Ordinal, Err: err}
				return
			}
			results[i] = UploadResult{VideoID: unit.VideoID, Ordinal: unit.Ordinal, Handle: handle, AccountID: account.ID}
		}()
	}

	for range units {
		<-done
	}

	var firstErr error
	succeeded := make([]UploadResult, 0, len(units))
	for i, err := range errs {
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		succeeded = append(succeeded, results[i])
	}
	if firstErr != nil {
		return succeeded, firstErr
	}
	return results, nil
}

// DeleteUnit identifies one remote file, previously uploaded to account
// AccountID, to be removed.
type DeleteUnit struct {
	Handle    string
	AccountID string
}

// DeleteAll best-effort deletes every unit concurrently, bounded by the same
// global and per-account semaphores as UploadAll. As in UploadAll, a
// failure never aborts its siblings; DeleteAll attempts every unit once
// and, unlike UploadAll, returns one error per unit (nil on success) for
// the caller to log.
func (d *Distributor) DeleteAll(ctx context.Context, units []DeleteUnit) []error {
	errs := make([]error, len(units))

	byAccount := make(map[string]config.AccountConfig, len(d.accounts))
	for _, a := range d.accounts {
		byAccount[a.ID] = a
	}

	done := make(chan struct{}, len(units))
	for i, unit := range units {
		i, unit := i, unit
		go func() {
			defer func() { done <- struct{}{} }()

			account, ok := byAccount[unit.AccountID]
			if !ok {
				errs[i] = fmt.Errorf("delete: account %q is no longer configured", unit.AccountID)
				return
			}

			if err := d.global.Acquire(ctx, 1); err != nil {
				errs[i] = err
				return
			}
			defer d.global.Release(1)

			acctSem := d.perAcct[account.ID]
			if err := acctSem.Acquire(ctx, 1); err != nil {
				errs[i] = err
				return
			}
			defer acctSem.Release(1)

			errs[i] = d.client.Delete(ctx, account, unit.Handle)
		}()
	}
	for range units {
		<-done
	}
	return errs
}

// uploadWithRetry retries a failed upload with exponential backoff, making
// up to d.retries retries after the first attempt, grounded on
// httpclient.Client's backoff math. Every error is retried; transient and
// permanent failures are not told apart.
func (d *Distributor) uploadWithRetry(ctx context.Context, account config.AccountConfig, unit UploadUnit) (string, error) {
	delay := d.retryDelay
	var lastErr error

	for attempt := 0; attempt <= d.retries; attempt++ {
		if attempt > 0 {
			d.logger.Warn("retrying upload",
				slog.String("video_id", unit.VideoID),
				slog.Int("ordinal", unit.Ordinal),
				slog.Int("attempt", attempt),
				slog.String("account_id", account.ID))
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
		}

		handle, err := d.uploadOnce(ctx, account, unit)
		if err == nil {
			return handle, nil
		}
		lastErr = err
	}

	return "", lastErr
}

func (d *Distributor) uploadOnce(ctx context.Context, account config.AccountConfig, unit UploadUnit) (string, error) {
	r, err := unit.Open()
	if err != nil {
		return "", fmt.Errorf("opening %s: %w", unit.Filename, err)
	}
	defer r.Close()

	return d.client.Upload(ctx, account, r, unit.Filename)
}
