package middleware

import (
	"net/http"
	"strings"
)

// SkipCompressionForSSE wraps a compression middleware handler to skip
// compression for SSE (Server-Sent Events) and segment-streaming endpoints.
// Both require unbuffered writes; compression middleware interferes with
// flushing.
func SkipCompressionForSSE(compressionHandler func(http.Handler) http.Handler) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		compressedHandler := compressionHandler(next)

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			acceptHeader := r.Header.Get("Accept")
			if strings.Contains(acceptHeader, "text/event-stream") {
				next.ServeHTTP(w, r)
				return
			}

			if strings.HasSuffix(r.URL.Path, "/events") && strings.Contains(r.URL.Path, "/progress") {
				next.ServeHTTP(w, r)
				return
			}

			// Segment bodies are already-compressed transport-stream bytes
			// streamed through the cache; double-compressing wastes CPU and
			// breaks incremental flushing for large bodies.
			if strings.Contains(r.URL.Path, "/hls/") {
				next.ServeHTTP(w, r)
				return
			}

			compressedHandler.ServeHTTP(w, r)
		})
	}
}
