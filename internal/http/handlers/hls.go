package handlers

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/pirelike/hlsvault/internal/apperrors"
	"github.com/pirelike/hlsvault/internal/blobclient"
	"github.com/pirelike/hlsvault/internal/cache"
	"github.com/pirelike/hlsvault/internal/config"
	"github.com/pirelike/hlsvault/internal/hls"
	"github.com/pirelike/hlsvault/internal/models"
	"github.com/pirelike/hlsvault/internal/repository"
)

// videoTrackName is the single HLS variant name this spec's one-rendition
// master playlist references (no ABR ladder, spec's non-goal).
const videoTrackName = "video"

// HLSHandler serves master/media playlists and segment bodies, streaming
// segment bytes through the cache without buffering the full response.
type HLSHandler struct {
	videos      repository.VideoRepository
	segments    repository.SegmentRepository
	subtitles   repository.SubtitleTrackRepository
	cache       cache.Cache
	prefetcher  *cache.Prefetcher
	client      blobclient.Client
	accountByID func(id string) (config.AccountConfig, bool)
	fetch       cache.FetchFunc
	public      config.PublicConfig
}

// NewHLSHandler creates an HLSHandler. accountByID resolves a segment's or
// subtitle track's persisted AccountID to its current configuration; it
// must never re-derive the account from (videoID, ordinal), since the
// account recorded at upload time is authoritative and immutable. prefetcher
// is built by the caller from its own NewSegmentFetcher closure; that
// closure and handleSegment's cache-miss path both resolve a segment by its
// persisted AccountID, so a prefetch and an on-demand fetch for the same
// segment reach the same account.
func NewHLSHandler(
	videos repository.VideoRepository,
	segments repository.SegmentRepository,
	subtitles repository.SubtitleTrackRepository,
	c cache.Cache,
	prefetcher *cache.Prefetcher,
	client blobclient.Client,
	accountByID func(id string) (config.AccountConfig, bool),
	public config.PublicConfig,
) *HLSHandler {
	return &HLSHandler{
		videos: videos, segments: segments, subtitles: subtitles,
		cache: c, prefetcher: prefetcher, client: client,
		accountByID: accountByID, public: public,
		fetch: NewSegmentFetcher(segments, client, accountByID),
	}
}

// NewSegmentFetcher builds the cache.FetchFunc the Prefetcher uses to fill
// the cache. handleSegment does not call it: on a cache miss it looks up the
// segment row and streams the download itself, by the same rule. It
// resolves the segment's persisted AccountID rather than re-deriving it,
// since the account recorded at upload time is authoritative and immutable.
func NewSegmentFetcher(segments repository.SegmentRepository, client blobclient.Client, accountByID func(id string) (config.AccountConfig, bool)) cache.FetchFunc {
	return func(ctx context.Context, key models.SegmentKey) ([]byte, string, error) {
		seg, err := segments.GetByKey(ctx, key.VideoID, key.Ordinal)
		if err != nil {
			return nil, "", apperrors.NotFound("segment", segmentFilename(key.Ordinal))
		}

		account, ok := accountByID(seg.AccountID)
		if !ok {
			return nil, "", apperrors.New(apperrors.KindAccountUnavailable, "segment's upload account is no longer configured")
		}
		rc, _, err := client.Download(ctx, account, seg.RemoteHandle)
		if err != nil {
			return nil, "", err
		}
		defer rc.Close()

		data, err := io.ReadAll(rc)
		if err != nil {
			return nil, "", err
		}
		return data, "video/mp2t", nil
	}
}

// RegisterRaw registers the HLS routes directly on the router; playlist
// and segment bodies are non-JSON media that huma's operation model
// doesn't fit cleanly.
func (h *HLSHandler) RegisterRaw(router interface {
	Get(pattern string, handlerFn http.HandlerFunc)
}) {
	router.Get("/hls/{id}/master.m3u8", h.handleMaster)
	router.Get("/hls/{id}/{track}/playlist.m3u8", h.handleMediaPlaylist)
	router.Get("/hls/{id}/{track}/{segment}", h.handleSegment)
	router.Get("/hls/{id}/subtitles/{lang}", h.handleSubtitle)
}

func (h *HLSHandler) baseURL(r *http.Request) (string, hls.BaseURLMode) {
	if h.public.PublicDomain == "" {
		return "", hls.BaseURLRelative
	}
	scheme := "http"
	if h.public.ForceHTTPS {
		scheme = "https"
	}
	return scheme + "://" + h.public.PublicDomain, hls.BaseURLAbsolute
}

func (h *HLSHandler) handleMaster(w http.ResponseWriter, r *http.Request) {
	videoID := chi.URLParam(r, "id")
	video, err := h.videos.GetByID(r.Context(), videoID)
	if err != nil || !video.IsStreamable() {
		writeJSONError(w, apperrors.NotFound("video", videoID))
		return
	}

	tracks, err := h.subtitles.GetByVideoID(r.Context(), videoID)
	if err != nil {
		writeJSONError(w, apperrors.Wrap(apperrors.KindFetchFailed, "loading subtitle tracks", err))
		return
	}
	subs := make([]hls.SubtitleInfo, len(tracks))
	for i, t := range tracks {
		subs[i] = hls.SubtitleInfo{
			TrackIndex: t.TrackIndex, Language: t.Language, Title: t.Title,
			Default: t.Default, Forced: t.Forced,
		}
	}

	base, mode := h.baseURL(r)
	w.Header().Set("Content-Type", "application/vnd.apple.mpegurl")
	_, _ = io.WriteString(w, hls.MasterPlaylist(video, subs, base, mode))
}

func (h *HLSHandler) handleMediaPlaylist(w http.ResponseWriter, r *http.Request) {
	videoID := chi.URLParam(r, "id")
	track := chi.URLParam(r, "track")
	if track != videoTrackName {
		writeJSONError(w, apperrors.NotFound("track", track))
		return
	}

	video, err := h.videos.GetByID(r.Context(), videoID)
	if err != nil || !video.IsStreamable() {
		writeJSONError(w, apperrors.NotFound("video", videoID))
		return
	}

	segs, err := h.segments.GetByVideoID(r.Context(), videoID)
	if err != nil {
		writeJSONError(w, apperrors.Wrap(apperrors.KindFetchFailed, "loading segments", err))
		return
	}
	infos := make([]hls.SegmentInfo, len(segs))
	for i, s := range segs {
		infos[i] = hls.SegmentInfo{Ordinal: s.Ordinal, Filename: s.Filename, DurationS: s.DurationS}
	}

	base, mode := h.baseURL(r)
	w.Header().Set("Content-Type", "application/vnd.apple.mpegurl")
	_, _ = io.WriteString(w, hls.MediaPlaylist(videoID, track, infos, base, mode))
}

// handleSegment serves one segment's bytes. On a cache hit, the full
// buffer is already in hand and is served through http.ServeContent for
// Range support. On a miss, it streams the remote download straight to the
// response as bytes arrive rather than buffering the whole body first (per
// spec §4.5), and populates the cache once the transfer completes so later
// requests for the same segment hit.
func (h *HLSHandler) handleSegment(w http.ResponseWriter, r *http.Request) {
	videoID := chi.URLParam(r, "id")
	track := chi.URLParam(r, "track")
	segmentName := chi.URLParam(r, "segment")
	if track != videoTrackName {
		writeJSONError(w, apperrors.NotFound("track", track))
		return
	}

	ordinal, ok := ordinalFromFilename(segmentName)
	if !ok {
		writeJSONError(w, apperrors.New(apperrors.KindNotFound, "invalid segment filename"))
		return
	}

	video, err := h.videos.GetByID(r.Context(), videoID)
	if err != nil || !video.IsStreamable() {
		writeJSONError(w, apperrors.NotFound("video", videoID))
		return
	}

	key := models.SegmentKey{VideoID: videoID, Ordinal: ordinal}

	if entry, ok := h.cache.Peek(key); ok {
		w.Header().Set("Content-Type", "video/mp2t")
		w.Header().Set("Accept-Ranges", "bytes")
		http.ServeContent(w, r, segmentName, video.CreatedAt, newByteReaderAt(entry.Data))
		h.scheduleNext(videoID, ordinal)
		return
	}

	seg, err := h.segments.GetByKey(r.Context(), videoID, ordinal)
	if err != nil {
		writeJSONError(w, apperrors.NotFound("segment", segmentName))
		return
	}
	account, ok := h.accountByID(seg.AccountID)
	if !ok {
		writeJSONError(w, apperrors.New(apperrors.KindAccountUnavailable, "segment's upload account is no longer configured"))
		return
	}
	rc, size, err := h.client.Download(r.Context(), account, seg.RemoteHandle)
	if err != nil {
		writeJSONError(w, apperrors.Wrap(apperrors.KindFetchFailed, "fetching segment", err))
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", "video/mp2t")
	if size > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(size, 10))
	}
	w.WriteHeader(http.StatusOK)

	h.streamAndCache(w, rc, key)
	h.scheduleNext(videoID, ordinal)
}

func (h *HLSHandler) scheduleNext(videoID string, ordinal int) {
	if h.prefetcher != nil {
		h.prefetcher.ScheduleNext(context.Background(), videoID, ordinal)
	}
}

// streamAndCache copies rc to w, flushing after every chunk so bytes reach
// the client as they arrive instead of waiting for the transfer to finish,
// while simultaneously buffering the same bytes to populate the cache. A
// read/write failure mid-stream simply stops short of a cache Store; the
// client has already received a partial body by that point, so there is no
// response-level error left to report.
func (h *HLSHandler) streamAndCache(w http.ResponseWriter, rc io.Reader, key models.SegmentKey) {
	flusher, _ := w.(http.Flusher)
	var buf bytes.Buffer
	dst := flushWriter{w: io.MultiWriter(w, &buf), flusher: flusher}

	if _, err := io.CopyBuffer(dst, rc, make([]byte, 32*1024)); err != nil {
		return
	}
	h.cache.Store(key, buf.Bytes(), "video/mp2t")
}

// flushWriter flushes the underlying http.ResponseWriter after every Write,
// turning io.Copy's buffered writes into incremental, client-visible chunks.
type flushWriter struct {
	w       io.Writer
	flusher http.Flusher
}

func (f flushWriter) Write(p []byte) (int, error) {
	n, err := f.w.Write(p)
	if f.flusher != nil {
		f.flusher.Flush()
	}
	return n, err
}

func (h *HLSHandler) handleSubtitle(w http.ResponseWriter, r *http.Request) {
	videoID := chi.URLParam(r, "id")
	lang := chi.URLParam(r, "lang")

	video, err := h.videos.GetByID(r.Context(), videoID)
	if err != nil || !video.IsStreamable() {
		writeJSONError(w, apperrors.NotFound("video", videoID))
		return
	}

	track, err := h.subtitles.GetByLanguage(r.Context(), videoID, lang)
	if err != nil {
		writeJSONError(w, apperrors.NotFound("subtitle track", lang))
		return
	}

	account, ok := h.accountByID(track.AccountID)
	if !ok {
		writeJSONError(w, apperrors.New(apperrors.KindAccountUnavailable, "subtitle track's account is no longer configured"))
		return
	}
	rc, size, err := h.client.Download(r.Context(), account, track.RemoteHandle)
	if err != nil {
		writeJSONError(w, apperrors.Wrap(apperrors.KindFetchFailed, "downloading subtitle track", err))
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", "application/x-subrip")
	if size > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(size, 10))
	}
	_, _ = io.Copy(w, rc)
}

func segmentFilename(ordinal int) string {
	return "segment" + strconv.Itoa(ordinal) + ".ts"
}

// ordinalFromFilename extracts the ordinal from "segmentNNNNN.ts".
func ordinalFromFilename(name string) (int, bool) {
	name = strings.TrimSuffix(name, ".ts")
	name = strings.TrimPrefix(name, "segment")
	n, err := strconv.Atoi(name)
	if err != nil {
		return 0, false
	}
	return n, true
}

// byteReaderAt adapts an in-memory buffer to io.ReadSeeker for
// http.ServeContent's Range-request support.
type byteReaderAt struct {
	data []byte
	pos  int64
}

func newByteReaderAt(data []byte) *byteReaderAt {
	return &byteReaderAt{data: data}
}

func (b *byteReaderAt) Read(p []byte) (int, error) {
	if b.pos >= int64(len(b.data)) {
		return 0, io.EOF
	}
	n := copy(p, b.data[b.pos:])
	b.pos += int64(n)
	return n, nil
}

func (b *byteReaderAt) Seek(offset int64, whence int) (int64, error) {
	var newPos int64
	switch whence {
	case io.SeekStart:
		newPos = offset
	case io.SeekCurrent:
		newPos = b.pos + offset
	case io.SeekEnd:
		newPos = int64(len(b.data)) + offset
	default:
		return 0, os.ErrInvalid
	}
	if newPos < 0 {
		return 0, os.ErrInvalid
	}
	b.pos = newPos
	return newPos, nil
}
