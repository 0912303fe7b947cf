package handlers

import (
	"context"

	"github.com/danielgtaylor/huma/v2"
	"gorm.io/gorm"

	"github.com/pirelike/hlsvault/internal/cache"
)

// SystemHandler exposes cache and database observability endpoints.
type SystemHandler struct {
	cache cache.Cache
	db    *gorm.DB
}

// NewSystemHandler creates a SystemHandler.
func NewSystemHandler(c cache.Cache, db *gorm.DB) *SystemHandler {
	return &SystemHandler{cache: c, db: db}
}

// CacheStatsInput is the input for the cache stats endpoint.
type CacheStatsInput struct{}

// CacheStatsOutput is the output for the cache stats endpoint.
type CacheStatsOutput struct {
	Body struct {
		Hits             int64                  `json:"hits"`
		Misses           int64                  `json:"misses"`
		Evictions        int64                  `json:"evictions"`
		BytesServed      int64                  `json:"bytes_served"`
		CurrentSizeBytes int64                  `json:"current_size_bytes"`
		CurrentCount     int64                  `json:"current_count"`
		PrefetchSuccess  int64                  `json:"prefetch_success"`
		PrefetchFailure  int64                  `json:"prefetch_failure"`
		Database         map[string]interface{} `json:"database,omitempty"`
	}
}

// CacheClearInput is the input for the cache clear endpoint.
type CacheClearInput struct{}

// CacheClearOutput is the (empty-body) output for a successful clear.
type CacheClearOutput struct{}

// Register registers the system routes with the API.
func (h *SystemHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "getCacheStats",
		Method:      "GET",
		Path:        "/api/system/cache/stats",
		Summary:     "Get segment cache and database statistics",
		Tags:        []string{"System"},
	}, h.CacheStats)

	huma.Register(api, huma.Operation{
		OperationID: "clearCache",
		Method:      "POST",
		Path:        "/api/system/cache/clear",
		Summary:     "Clear the segment cache",
		Tags:        []string{"System"},
	}, h.CacheClear)
}

// CacheStats returns the cache's observability counters alongside
// connection-pool stats reused from database.DB.Stats().
func (h *SystemHandler) CacheStats(ctx context.Context, input *CacheStatsInput) (*CacheStatsOutput, error) {
	stats := h.cache.Stats()

	out := &CacheStatsOutput{}
	out.Body.Hits = stats.Hits
	out.Body.Misses = stats.Misses
	out.Body.Evictions = stats.Evictions
	out.Body.BytesServed = stats.BytesServed
	out.Body.CurrentSizeBytes = stats.CurrentSizeBytes
	out.Body.CurrentCount = stats.CurrentCount
	out.Body.PrefetchSuccess = stats.PrefetchSuccess
	out.Body.PrefetchFailure = stats.PrefetchFailure

	if h.db != nil {
		if sqlDB, err := h.db.DB(); err == nil {
			dbStats := sqlDB.Stats()
			out.Body.Database = map[string]interface{}{
				"open_connections": dbStats.OpenConnections,
				"in_use":           dbStats.InUse,
				"idle":             dbStats.Idle,
			}
		}
	}

	return out, nil
}

// CacheClear empties the segment cache, e.g. after a remote account
// rotation invalidates previously cached handles.
func (h *SystemHandler) CacheClear(ctx context.Context, input *CacheClearInput) (*CacheClearOutput, error) {
	h.cache.Clear()
	return &CacheClearOutput{}, nil
}
