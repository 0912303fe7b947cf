package blobclient

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/pirelike/hlsvault/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testTimeout = 5 * time.Second

func testPlatformConfig(baseURL string) config.PlatformConfig {
	return config.PlatformConfig{
		BaseURL:         baseURL,
		UploadTimeout:   testTimeout,
		InfoTimeout:     testTimeout,
		DownloadTimeout: testTimeout,
		PingTimeout:     testTimeout,
	}
}

func testAccount() config.AccountConfig {
	return config.AccountConfig{ID: "acct-a", Credential: "secret-token", DestinationID: "dest-1"}
}

func TestClient_Upload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/destinations/dest-1/files", r.URL.Path)
		assert.Equal(t, "Bearer secret-token", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"handle":"handle-123"}`))
	}))
	defer srv.Close()

	client := New(testPlatformConfig(srv.URL), nil)
	handle, err := client.Upload(context.Background(), testAccount(), strings.NewReader("segment bytes"), "seg0.ts")
	require.NoError(t, err)
	assert.Equal(t, "handle-123", handle)
}

func TestClient_Info(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/files/handle-123", r.URL.Path)
		_, _ = w.Write([]byte(`{"remote_path":"/blobs/handle-123","size":4096}`))
	}))
	defer srv.Close()

	client := New(testPlatformConfig(srv.URL), nil)
	info, err := client.Info(context.Background(), testAccount(), "handle-123")
	require.NoError(t, err)
	assert.Equal(t, "/blobs/handle-123", info.RemotePath)
	assert.Equal(t, int64(4096), info.Size)
}

func TestClient_Download(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/files/handle-123/content", r.URL.Path)
		_, _ = w.Write([]byte("segment bytes"))
	}))
	defer srv.Close()

	client := New(testPlatformConfig(srv.URL), nil)
	rc, size, err := client.Download(context.Background(), testAccount(), "handle-123")
	require.NoError(t, err)
	defer rc.Close()

	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "segment bytes", string(data))
	assert.Equal(t, int64(len(data)), size)
}

func TestClient_Ping(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/ping", r.URL.Path)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client := New(testPlatformConfig(srv.URL), nil)
	require.NoError(t, client.Ping(context.Background(), testAccount()))
}

func TestClient_Ping_Failure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	client := New(testPlatformConfig(srv.URL), nil)
	err := client.Ping(context.Background(), testAccount())
	assert.Error(t, err)
}

func TestClient_AccountIsolation_CircuitOpensIndependently(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := New(testPlatformConfig(srv.URL), nil).(*restClient)
	bad := config.AccountConfig{ID: "acct-bad", Credential: "x", DestinationID: "d"}
	good := config.AccountConfig{ID: "acct-good", Credential: "x", DestinationID: "d"}

	for i := 0; i < DefaultCircuitBreakerConfig().FailureThreshold; i++ {
		_ = client.Ping(context.Background(), bad)
	}

	assert.Equal(t, CircuitOpen, client.breakerFor(bad.ID).State())
	assert.Equal(t, CircuitClosed, client.breakerFor(good.ID).State())
}

func TestClient_AccountUnavailable_WhenCircuitOpen(t *testing.T) {
	client := New(testPlatformConfig("http://unused.invalid"), nil).(*restClient)
	account := testAccount()
	breaker := client.breakerFor(account.ID)
	for i := 0; i < DefaultCircuitBreakerConfig().FailureThreshold; i++ {
		breaker.RecordFailure()
	}

	_, err := client.Upload(context.Background(), account, strings.NewReader("x"), "f.ts")
	assert.ErrorIs(t, err, ErrAccountUnavailable)
}
