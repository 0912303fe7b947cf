// Package progress tracks per-job upload/ingest progress for polling
// clients, using a phase/percentage shape held as a single mutable
// snapshot per job rather than a pub-sub/SSE stream, since progress is
// exposed via one-shot GET polling.
package progress

import (
	"sync"
	"time"
)

// Phase is one step of the ingest pipeline, reported in sequence.
type Phase string

const (
	PhaseReceiving  Phase = "receiving"
	PhaseProbing    Phase = "probing"
	PhasePlanning   Phase = "planning"
	PhaseUploading  Phase = "uploading"
	PhaseCommitting Phase = "committing"
	PhaseDone       Phase = "done"
	PhaseError      Phase = "error"
)

// Snapshot is the point-in-time progress state returned to polling clients.
type Snapshot struct {
	JobID        string    `json:"job_id"`
	Phase        Phase     `json:"phase"`
	CurrentBytes int64     `json:"current_bytes"`
	TotalBytes   int64     `json:"total_bytes"`
	RateBps      float64   `json:"rate_bps"`
	ETASeconds   float64   `json:"eta_s"`
	Error        string    `json:"error,omitempty"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// entry tracks one job's mutable state plus the bookkeeping needed to
// derive a transfer rate between updates.
type entry struct {
	mu           sync.Mutex
	phase        Phase
	currentBytes int64
	totalBytes   int64
	lastErr      string
	startedAt    time.Time
	lastSampleAt time.Time
	lastSample   int64
	rateBps      float64
}

// Tracker holds one entry per in-flight or recently finished job.
type Tracker struct {
	mu      sync.Mutex
	entries map[string]*entry
}

// NewTracker creates an empty Tracker.
func NewTracker() *Tracker {
	return &Tracker{entries: make(map[string]*entry)}
}

// Start registers a new job, initializing it in PhaseReceiving.
func (t *Tracker) Start(jobID string, totalBytes int64) {
	now := time.Now()
	e := &entry{
		phase:        PhaseReceiving,
		totalBytes:   totalBytes,
		startedAt:    now,
		lastSampleAt: now,
	}
	t.mu.Lock()
	t.entries[jobID] = e
	t.mu.Unlock()
}

// SetPhase advances a job to a new phase.
func (t *Tracker) SetPhase(jobID string, phase Phase) {
	e := t.get(jobID)
	if e == nil {
		return
	}
	e.mu.Lock()
	e.phase = phase
	e.mu.Unlock()
}

// UpdateBytes records transfer progress and recomputes the rolling rate.
func (t *Tracker) UpdateBytes(jobID string, currentBytes int64) {
	e := t.get(jobID)
	if e == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	now := time.Now()
	elapsed := now.Sub(e.lastSampleAt).Seconds()
	if elapsed > 0 {
		e.rateBps = float64(currentBytes-e.lastSample) / elapsed
	}
	e.currentBytes = currentBytes
	e.lastSample = currentBytes
	e.lastSampleAt = now
}

// Fail marks a job as failed with the given error message.
func (t *Tracker) Fail(jobID, errMsg string) {
	e := t.get(jobID)
	if e == nil {
		return
	}
	e.mu.Lock()
	e.phase = PhaseError
	e.lastErr = errMsg
	e.mu.Unlock()
}

// Finish marks a job as done.
func (t *Tracker) Finish(jobID string) {
	t.SetPhase(jobID, PhaseDone)
}

// Snapshot returns the current state for jobID, or false if unknown.
func (t *Tracker) Snapshot(jobID string) (Snapshot, bool) {
	e := t.get(jobID)
	if e == nil {
		return Snapshot{}, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	var eta float64
	if e.rateBps > 0 && e.totalBytes > e.currentBytes {
		eta = float64(e.totalBytes-e.currentBytes) / e.rateBps
	}

	return Snapshot{
		JobID:        jobID,
		Phase:        e.phase,
		CurrentBytes: e.currentBytes,
		TotalBytes:   e.totalBytes,
		RateBps:      e.rateBps,
		ETASeconds:   eta,
		Error:        e.lastErr,
		UpdatedAt:    e.lastSampleAt,
	}, true
}

// Evict removes a job's tracked state, e.g. after its progress has been
// polled past a retention window.
func (t *Tracker) Evict(jobID string) {
	t.mu.Lock()
	delete(t.entries, jobID)
	t.mu.Unlock()
}

func (t *Tracker) get(jobID string) *entry {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.entries[jobID]
}
