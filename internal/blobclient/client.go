package blobclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/pirelike/hlsvault/internal/config"
	"github.com/pirelike/hlsvault/pkg/httpclient"
)

// ErrAccountUnavailable is returned when the requested account is not
// configured or its circuit breaker is open. Callers must never fall back
// to a different account; isolation is part of the contract (spec §4.2).
var ErrAccountUnavailable = errors.New("blobclient: account unavailable")

// RemoteFileInfo describes a file previously uploaded to the platform.
type RemoteFileInfo struct {
	RemotePath string
	Size       int64
}

// Client is the Remote Blob Client: a thin domain adapter over the
// external chat/file platform's HTTP API, offering upload/info/download/ping
// operations scoped to a single account at a time.
type Client interface {
	// Upload stores r under filename on the given account and returns an
	// opaque handle that, combined with the account's credential, can later
	// retrieve the file.
	Upload(ctx context.Context, account config.AccountConfig, r io.Reader, filename string) (string, error)
	// Info retrieves metadata about a previously uploaded file.
	Info(ctx context.Context, account config.AccountConfig, handle string) (RemoteFileInfo, error)
	// Download streams a previously uploaded file's bytes back. The caller
	// must close the returned reader.
	Download(ctx context.Context, account config.AccountConfig, handle string) (io.ReadCloser, int64, error)
	// Ping verifies the account's credential is accepted by the platform.
	Ping(ctx context.Context, account config.AccountConfig) error
	// Delete best-effort removes a previously uploaded file. Callers treat
	// failure as non-fatal: the local DB rows are the source of truth for
	// what exists, and a remote file the platform fails to delete is simply
	// orphaned rather than blocking the caller's own cleanup.
	Delete(ctx context.Context, account config.AccountConfig, handle string) error
}

// restClient implements Client over a generic REST-ish HTTP API: multipart
// upload, JSON metadata responses, and a direct content stream for
// downloads. One httpclient.Client is held per account so that rate-limit
// and circuit-breaker state never leaks across accounts, matching the
// per-account isolation invariant.
type restClient struct {
	baseURL string
	cfg     config.PlatformConfig
	logger  *slog.Logger

	breakers *CircuitBreakerRegistry

	mu      sync.Mutex
	clients map[string]*httpclient.Client
}

// New creates a Remote Blob Client talking to the platform at cfg.BaseURL.
func New(cfg config.PlatformConfig, logger *slog.Logger) Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &restClient{
		baseURL:  cfg.BaseURL,
		cfg:      cfg,
		logger:   logger,
		breakers: NewCircuitBreakerRegistry(DefaultCircuitBreakerConfig()),
		clients:  make(map[string]*httpclient.Client),
	}
}

// clientFor returns the per-account resilient HTTP client, creating it on
// first use. The client-level timeout is set to the configured upload
// timeout; individual operations narrow it with context.WithTimeout.
func (c *restClient) clientFor(accountID string) *httpclient.Client {
	c.mu.Lock()
	defer c.mu.Unlock()

	if hc, ok := c.clients[accountID]; ok {
		return hc
	}

	httpCfg := httpclient.DefaultConfig()
	httpCfg.Timeout = c.cfg.UploadTimeout
	httpCfg.Logger = c.logger.With(slog.String("account_id", accountID))
	// Retries are driven by this package (withRetryAfter, the distributor's
	// backoff) rather than httpclient's generic retry loop, so that a 429's
	// Retry-After header survives to the caller instead of being consumed
	// across httpclient's own retry attempts.
	httpCfg.RetryAttempts = 0
	hc := httpclient.New(httpCfg)
	c.clients[accountID] = hc
	return hc
}

func (c *restClient) breakerFor(accountID string) *CircuitBreaker {
	return c.breakers.Get(accountID)
}

// Upload stores r under filename on the given account.
func (c *restClient) Upload(ctx context.Context, account config.AccountConfig, r io.Reader, filename string) (string, error) {
	breaker := c.breakerFor(account.ID)
	if !breaker.Allow() {
		return "", fmt.Errorf("%w: %s", ErrAccountUnavailable, account.ID)
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.UploadTimeout)
	defer cancel()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return "", fmt.Errorf("creating multipart field: %w", err)
	}
	if _, err := io.Copy(part, r); err != nil {
		return "", fmt.Errorf("buffering upload body: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("closing multipart writer: %w", err)
	}

	endpoint := fmt.Sprintf("%s/destinations/%s/files", c.baseURL, url.PathEscape(account.DestinationID))

	var handle string
	err = c.withRetryAfter(ctx, breaker, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body.Bytes()))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", writer.FormDataContentType())
		req.Header.Set("Authorization", "Bearer "+account.Credential)

		resp, err := c.clientFor(account.ID).DoWithContext(ctx, req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode == http.StatusTooManyRequests {
			return &rateLimitError{retryAfter: parseRetryAfter(resp.Header.Get("Retry-After"), 5*time.Second)}
		}
		if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
			return fmt.Errorf("upload failed: status %d", resp.StatusCode)
		}

		var payload struct {
			Handle string `json:"handle"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
			return fmt.Errorf("decoding upload response: %w", err)
		}
		handle = payload.Handle
		return nil
	})
	if err != nil {
		return "", err
	}
	return handle, nil
}

// Info retrieves metadata about a previously uploaded file.
func (c *restClient) Info(ctx context.Context, account config.AccountConfig, handle string) (RemoteFileInfo, error) {
	breaker := c.breakerFor(account.ID)
	if !breaker.Allow() {
		return RemoteFileInfo{}, fmt.Errorf("%w: %s", ErrAccountUnavailable, account.ID)
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.InfoTimeout)
	defer cancel()

	endpoint := fmt.Sprintf("%s/files/%s", c.baseURL, url.PathEscape(handle))

	var info RemoteFileInfo
	err := breaker.Execute(ctx, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", "Bearer "+account.Credential)

		resp, err := c.clientFor(account.ID).DoWithContext(ctx, req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("info failed: status %d", resp.StatusCode)
		}

		var payload struct {
			RemotePath string `json:"remote_path"`
			Size       int64  `json:"size"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
			return fmt.Errorf("decoding info response: %w", err)
		}
		info = RemoteFileInfo{RemotePath: payload.RemotePath, Size: payload.Size}
		return nil
	})
	if err != nil {
		return RemoteFileInfo{}, err
	}
	return info, nil
}

// Download streams a previously uploaded file's bytes back. Per spec §4.6,
// downloads retry once for idempotent transient failures before surfacing
// an error — it never substitutes another account.
func (c *restClient) Download(ctx context.Context, account config.AccountConfig, handle string) (io.ReadCloser, int64, error) {
	breaker := c.breakerFor(account.ID)
	if !breaker.Allow() {
		return nil, 0, fmt.Errorf("%w: %s", ErrAccountUnavailable, account.ID)
	}

	downloadCtx, cancel := context.WithTimeout(ctx, c.cfg.DownloadTimeout)

	endpoint := fmt.Sprintf("%s/files/%s/content", c.baseURL, url.PathEscape(handle))

	const maxAttempts = 2
	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		req, err := http.NewRequestWithContext(downloadCtx, http.MethodGet, endpoint, nil)
		if err != nil {
			cancel()
			return nil, 0, err
		}
		req.Header.Set("Authorization", "Bearer "+account.Credential)

		resp, err := c.clientFor(account.ID).DoWithContext(downloadCtx, req)
		if err != nil {
			breaker.RecordFailure()
			lastErr = err
			continue
		}

		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			breaker.RecordFailure()
			lastErr = fmt.Errorf("download failed: status %d", resp.StatusCode)
			continue
		}

		breaker.RecordSuccess()
		return &cancelingReadCloser{ReadCloser: resp.Body, cancel: cancel}, resp.ContentLength, nil
	}

	cancel()
	return nil, 0, lastErr
}

// cancelingReadCloser cancels the download's context once the body is closed.
type cancelingReadCloser struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c *cancelingReadCloser) Close() error {
	defer c.cancel()
	return c.ReadCloser.Close()
}

// Delete removes a previously uploaded file from the platform.
func (c *restClient) Delete(ctx context.Context, account config.AccountConfig, handle string) error {
	breaker := c.breakerFor(account.ID)
	if !breaker.Allow() {
		return fmt.Errorf("%w: %s", ErrAccountUnavailable, account.ID)
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.InfoTimeout)
	defer cancel()

	endpoint := fmt.Sprintf("%s/files/%s", c.baseURL, url.PathEscape(handle))

	return breaker.Execute(ctx, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodDelete, endpoint, nil)
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", "Bearer "+account.Credential)

		resp, err := c.clientFor(account.ID).DoWithContext(ctx, req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusNotFound {
			return fmt.Errorf("delete failed: status %d", resp.StatusCode)
		}
		return nil
	})
}

// Ping verifies the account's credential is accepted by the platform.
func (c *restClient) Ping(ctx context.Context, account config.AccountConfig) error {
	breaker := c.breakerFor(account.ID)
	if !breaker.Allow() {
		return fmt.Errorf("%w: %s", ErrAccountUnavailable, account.ID)
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.PingTimeout)
	defer cancel()

	endpoint := fmt.Sprintf("%s/ping", c.baseURL)

	return breaker.Execute(ctx, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", "Bearer "+account.Credential)

		resp, err := c.clientFor(account.ID).DoWithContext(ctx, req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("ping failed: status %d", resp.StatusCode)
		}
		return nil
	})
}

// withRetryAfter executes fn through the breaker, and when the platform
// responds with 429 and a Retry-After header, sleeps that long and retries
// against the same account exactly once more — the distributor's own
// exponential backoff handles everything else.
func (c *restClient) withRetryAfter(ctx context.Context, breaker *CircuitBreaker, fn func(context.Context) error) error {
	err := breaker.Execute(ctx, fn)
	if err == nil {
		return nil
	}

	var rateLimited *rateLimitError
	if errors.As(err, &rateLimited) {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(rateLimited.retryAfter):
		}
		return breaker.Execute(ctx, fn)
	}

	return err
}

// rateLimitError carries the platform's requested Retry-After duration.
type rateLimitError struct {
	retryAfter time.Duration
}

func (e *rateLimitError) Error() string {
	return fmt.Sprintf("rate limited, retry after %s", e.retryAfter)
}

// parseRetryAfter parses the Retry-After header, defaulting to a capped
// fallback when absent or unparsable.
func parseRetryAfter(header string, fallback time.Duration) time.Duration {
	if header == "" {
		return fallback
	}
	if seconds, err := strconv.Atoi(header); err == nil {
		return time.Duration(seconds) * time.Second
	}
	if when, err := http.ParseTime(header); err == nil {
		if d := time.Until(when); d > 0 {
			return d
		}
	}
	return fallback
}
