package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/josh-kwaku/drug-budget-ledger/internal/auth"
	"github.com/josh-kwaku/drug-budget-ledger/internal/handler"
	"github.com/josh-kwaku/drug-budget-ledger/internal/logging"
	"github.com/josh-kwaku/drug-budget-ledger/internal/repository"
)

type idempotencyRepository interface {
	Get(ctx context.Context, key string, userID uuid.UUID) (*repository.IdempotencyRecord, error)
	Claim(ctx context.Context, rec *repository.IdempotencyRecord) (bool, error)
	Complete(ctx context.Context, rec *repository.IdempotencyRecord) error
	Release(ctx context.Context, key string, userID uuid.UUID) error
}

// claimTTL bounds how long a crashed request can hold its key.
const claimTTL = time.Minute

// Idempotency replays the stored response for a repeated Idempotency-Key.
// Server errors are not stored so the caller may retry with the same key.
func Idempotency(repo idempotencyRepository, ttl time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodGet || r.Method == http.MethodHead || r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}

			key := r.Header.Get("Idempotency-Key")
			if key == "" {
				handler.RespondAppError(w, handler.ErrMissingIdempotencyKey, nil)
				return
			}

			userID, ok := auth.UserIDFromContext(r.Context())
			if !ok {
				handler.RespondAppError(w, handler.ErrMissingToken, nil)
				return
			}

			body, err := io.ReadAll(r.Body)
			if err != nil {
				handler.RespondAppError(w, handler.ErrInvalidRequest, nil)
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			log := logging.FromContext(r.Context()).With("idempotency_key", key)
			reqHash := computeHash(r.Method, r.URL.Path, body)

			cached, err := repo.Get(r.Context(), key, userID)
			if err != nil {
				log.Error("idempotency cache lookup failed", "error", err)
				handler.RespondAppError(w, handler.ErrInternalError, nil)
				return
			}
			if cached != nil {
				replay(w, cached, reqHash, log.Error)
				return
			}

			now := time.Now().UTC()
			claimed, err := repo.Claim(r.Context(), &repository.IdempotencyRecord{
				Key:         key,
				UserID:      userID,
				RequestHash: reqHash,
				CreatedAt:   now,
				ExpiresAt:   now.Add(claimTTL),
			})
			if err != nil {
				log.Error("idempotency claim failed", "error", err)
				handler.RespondAppError(w, handler.ErrInternalError, nil)
				return
			}
			if !claimed {
				handler.RespondAppError(w, handler.ErrIdempotencyInFlight, nil)
				return
			}

			rec := &responseRecorder{ResponseWriter: w, body: &bytes.Buffer{}, statusCode: http.StatusOK}
			next.ServeHTTP(rec, r)

			// The caller may have gone away; the outcome still has to be stored.
			ctx := context.WithoutCancel(r.Context())
			if rec.statusCode >= http.StatusInternalServerError {
				if err := repo.Release(ctx, key, userID); err != nil {
					log.Error("idempotency release failed", "error", err)
				}
				return
			}

			entry := &repository.IdempotencyRecord{
				Key:          key,
				UserID:       userID,
				RequestHash:  reqHash,
				StatusCode:   rec.statusCode,
				ResponseBody: rec.body.Bytes(),
				ExpiresAt:    time.Now().UTC().Add(ttl),
			}
			if err := repo.Complete(ctx, entry); err != nil {
				log.Error("idempotency cache store failed", "error", err)
			}
		})
	}
}

func replay(w http.ResponseWriter, cached *repository.IdempotencyRecord, reqHash string, logError func(string, ...any)) {
	if cached.RequestHash != reqHash {
		handler.RespondAppError(w, handler.ErrIdempotencyConflict, nil)
		return
	}
	if cached.Pending() {
		handler.RespondAppError(w, handler.ErrIdempotencyInFlight, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Idempotent-Replayed", "true")
	w.WriteHeader(cached.StatusCode)
	if _, err := w.Write(cached.ResponseBody); err != nil {
		logError("failed to write idempotent replay", "error", err)
	}
}

func computeHash(method, path string, body []byte) string {
	h := sha256.New()
	h.Write([]byte(method))
	h.Write([]byte(path))
	h.Write(body)
	return fmt.Sprintf("%x", h.Sum(nil))
}

type responseRecorder struct {
	http.ResponseWriter
	statusCode int
	body       *bytes.Buffer
}

func (r *responseRecorder) WriteHeader(code int) {
	r.statusCode = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *responseRecorder) Write(b []byte) (int, error) {
	r.body.Write(b)
	return r.ResponseWriter.Write(b)
}
