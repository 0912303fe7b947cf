package handlers

import (
	"encoding/json"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/go-chi/chi/v5"
	"github.com/oklog/ulid/v2"

	"github.com/pirelike/hlsvault/internal/apperrors"
	"github.com/pirelike/hlsvault/internal/coordinator"
	"github.com/pirelike/hlsvault/internal/progress"
)

// uploadChunkSize bounds how much of the multipart body is held in memory
// at once; the body is streamed straight to temp disk, never buffered
// whole, per spec §4.5's upload-handling requirement.
const uploadChunkSize = 64 * 1024

// UploadHandler handles the streamed multipart upload endpoint and its
// progress-polling companion. Registered directly on the chi router
// (rather than through huma) because huma has no first-class support for
// streaming an unbounded multipart body straight to disk.
type UploadHandler struct {
	coordinator *coordinator.Coordinator
	tracker     *progress.Tracker
	scratchDir  string
}

// NewUploadHandler creates an UploadHandler.
func NewUploadHandler(coord *coordinator.Coordinator, tracker *progress.Tracker, scratchDir string) *UploadHandler {
	return &UploadHandler{coordinator: coord, tracker: tracker, scratchDir: scratchDir}
}

// chiRouter is the minimal subset of chi.Router this handler needs,
// mirroring the teacher's ProgressHandler.RegisterSSE pattern for
// registering raw handlers alongside huma operations.
type chiRouter interface {
	Post(pattern string, handlerFn http.HandlerFunc)
	Get(pattern string, handlerFn http.HandlerFunc)
}

// RegisterRaw registers the upload and progress routes directly on the
// router.
func (h *UploadHandler) RegisterRaw(router chiRouter) {
	router.Post("/api/upload", h.handleUpload)
	router.Get("/api/upload/{job}/progress", h.handleProgress)
}

// handleUpload streams the uploaded file to a temp scratch path in bounded
// chunks, then drives it through the Catalog Coordinator's ingest
// pipeline, reporting progress under a job ID the caller can poll.
func (h *UploadHandler) handleUpload(w http.ResponseWriter, r *http.Request) {
	jobID := ulid.Make().String()

	reader, err := r.MultipartReader()
	if err != nil {
		writeJSONError(w, apperrors.New(apperrors.KindConfigInvalid, "expected multipart/form-data body"))
		return
	}

	var tempPath, filename string
	for {
		part, err := reader.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			writeJSONError(w, apperrors.Wrap(apperrors.KindConfigInvalid, "reading multipart body", err))
			return
		}
		if part.FormName() != "file" {
			part.Close()
			continue
		}

		filename = part.FileName()
		if filename == "" {
			filename = "upload"
		}

		if err := os.MkdirAll(h.scratchDir, 0o755); err != nil {
			part.Close()
			writeJSONError(w, apperrors.Wrap(apperrors.KindConfigInvalid, "preparing scratch dir", err))
			return
		}

		tempPath = filepath.Join(h.scratchDir, jobID+"-"+filepath.Base(filename))
		out, err := os.Create(tempPath)
		if err != nil {
			part.Close()
			writeJSONError(w, apperrors.Wrap(apperrors.KindConfigInvalid, "creating temp file", err))
			return
		}

		h.tracker.Start(jobID, r.ContentLength)
		written, copyErr := copyInChunks(out, part, uploadChunkSize, func(n int64) {
			h.tracker.UpdateBytes(jobID, n)
		})
		out.Close()
		part.Close()

		if copyErr != nil {
			h.tracker.Fail(jobID, copyErr.Error())
			writeJSONError(w, apperrors.Wrap(apperrors.KindFetchFailed, "receiving upload body", copyErr))
			return
		}
		_ = written
		break
	}

	if tempPath == "" {
		writeJSONError(w, apperrors.New(apperrors.KindConfigInvalid, "no file part found in multipart body"))
		return
	}
	defer os.Remove(tempPath)

	video, err := h.coordinator.Ingest(r.Context(), tempPath, jobID)
	if err != nil {
		h.tracker.Fail(jobID, err.Error())
		if appErr, ok := err.(*apperrors.Error); ok {
			writeJSONError(w, appErr)
			return
		}
		writeJSONError(w, apperrors.Wrap(apperrors.KindProbeFailed, "ingest failed", err))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(struct {
		JobID string        `json:"job_id"`
		Video VideoResponse `json:"video"`
	}{JobID: jobID, Video: videoToResponse(video)})
}

// handleProgress reports the current phase/rate/ETA for an upload job.
func (h *UploadHandler) handleProgress(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "job")
	snap, ok := h.tracker.Snapshot(jobID)
	if !ok {
		writeJSONError(w, apperrors.NotFound("upload job", jobID))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(snap)
}

// copyInChunks copies src to dst in fixed-size chunks, invoking onProgress
// with the cumulative byte count after each chunk.
func copyInChunks(dst io.Writer, src io.Reader, chunkSize int, onProgress func(n int64)) (int64, error) {
	buf := make([]byte, chunkSize)
	var total int64
	for {
		n, readErr := src.Read(buf)
		if n > 0 {
			if _, writeErr := dst.Write(buf[:n]); writeErr != nil {
				return total, writeErr
			}
			total += int64(n)
			if onProgress != nil {
				onProgress(total)
			}
		}
		if readErr == io.EOF {
			return total, nil
		}
		if readErr != nil {
			return total, readErr
		}
	}
}

// writeJSONError writes the {"error": "<kind>", "detail": "<text>"} body
// spec §7 prescribes.
func writeJSONError(w http.ResponseWriter, err *apperrors.Error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(err.Kind.HTTPStatus())
	_ = json.NewEncoder(w).Encode(struct {
		Error  string `json:"error"`
		Detail string `json:"detail"`
	}{Error: string(err.Kind), Detail: err.Detail})
}
