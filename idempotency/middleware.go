/*
middleware.go - Idempotency transport contract for mutating endpoints

PURPOSE:
  Wraps opted-in mutating routes. Requests must carry an Idempotency-Key
  header; the exact raw body is hashed with SHA-256 and the pair
  (key, endpoint path) drives the replay cache.

CONTRACT:
  Missing header            400 {"error": ...}
  Replay, same body         stored status and body byte-for-byte, plus
                            Idempotent-Replayed: true
  Same key, different body  409 {"error": ...}, operation not re-executed
  Fresh or expired key      operation executes; a 2xx response is captured

CAPTURE:
  The response is buffered, stored, then written out, so the stored bytes
  are exactly the bytes the first caller received. Storage failures are
  logged and the response still goes out - replay protection degrades,
  the request does not fail.
*/
package idempotency

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"

	"go.uber.org/zap"
)

// Header names of the transport contract.
const (
	HeaderKey      = "Idempotency-Key"
	HeaderReplayed = "Idempotent-Replayed"
)

// Middleware returns a chi-style middleware enforcing the idempotency
// contract using the given store.
func Middleware(store *Store, log *zap.SugaredLogger) func(http.Handler) http.Handler {
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get(HeaderKey)
			if key == "" {
				writeJSONError(w, http.StatusBadRequest, HeaderKey+" header is required")
				return
			}

			body, err := io.ReadAll(r.Body)
			if err != nil {
				writeJSONError(w, http.StatusBadRequest, "failed to read request body")
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			sum := sha256.Sum256(body)
			hash := hex.EncodeToString(sum[:])
			endpoint := r.URL.Path

			existing, err := store.GetExisting(r.Context(), key, endpoint)
			if err != nil {
				log.Errorw("idempotency lookup failed", "endpoint", endpoint, "error", err)
				writeJSONError(w, http.StatusInternalServerError, "something went wrong, please try again")
				return
			}

			if existing != nil {
				if existing.RequestHash != hash {
					log.Infow("idempotency key reused with different body",
						"endpoint", endpoint)
					writeJSONError(w, http.StatusConflict, ErrKeyReuse.Error())
					return
				}
				w.Header().Set(HeaderReplayed, "true")
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(existing.StatusCode)
				w.Write([]byte(existing.ResponseBody))
				return
			}

			rec := newRecorder()
			next.ServeHTTP(rec, r)

			if rec.status >= 200 && rec.status < 300 {
				record := &Record{
					ClientKey:    key,
					Endpoint:     endpoint,
					RequestHash:  hash,
					StatusCode:   rec.status,
					ResponseBody: rec.buf.String(),
				}
				if err := store.Store(r.Context(), record); err != nil {
					log.Errorw("failed to store idempotency record",
						"endpoint", endpoint, "error", err)
				}
			}

			rec.copyTo(w)
		})
	}
}

// recorder buffers the downstream response so it can be persisted before
// being written out.
type recorder struct {
	header http.Header
	buf    bytes.Buffer
	status int
}

func newRecorder() *recorder {
	return &recorder{header: make(http.Header), status: http.StatusOK}
}

func (r *recorder) Header() http.Header { return r.header }

func (r *recorder) WriteHeader(status int) { r.status = status }

func (r *recorder) Write(p []byte) (int, error) { return r.buf.Write(p) }

func (r *recorder) copyTo(w http.ResponseWriter) {
	for k, vs := range r.header {
		for _, v := range vs {
			w.Header().Add(k, v)
		}
	}
	w.WriteHeader(r.status)
	w.Write(r.buf.Bytes())
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	buf, _ := json.Marshal(map[string]string{"error": msg})
	w.Write(buf)
}
