package middleware

import (
	"bytes"
	"context"
	"crypto/subtle"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/bryanwahyu/paperscore/internal/domain/jobs"
)

type contextKey string

const (
	OwnerKey     contextKey = "owner"
	MessageIDKey contextKey = "queue_message_id"
)

// maxDeliveryBody caps what SignatureAuth buffers from a queue delivery.
const maxDeliveryBody = 8 << 20

// APIKeyAuth maps a bearer key to its owner. With no keys configured the
// client API is open and the owner comes from the request itself.
func APIKeyAuth(validKeys map[string]string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if len(validKeys) == 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			auth := r.Header.Get("Authorization")
			if auth == "" {
				writeError(w, http.StatusUnauthorized, "missing Authorization header")
				return
			}

			// "Bearer <key>" dan "<key>" sama-sama diterima
			apiKey := strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
			if apiKey == "" {
				writeError(w, http.StatusUnauthorized, "invalid Authorization header format")
				return
			}

			var owner string
			for o, key := range validKeys {
				if subtle.ConstantTimeCompare([]byte(apiKey), []byte(key)) == 1 {
					owner = o
					break
				}
			}
			if owner == "" {
				writeError(w, http.StatusUnauthorized, "invalid API key")
				return
			}

			ctx := context.WithValue(r.Context(), OwnerKey, owner)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// OwnerFromContext returns the authenticated owner, empty when the API is open.
func OwnerFromContext(ctx context.Context) string {
	if owner, ok := ctx.Value(OwnerKey).(string); ok {
		return owner
	}
	return ""
}

// RequireOwner rejects requests whose {owner} URL parameter is malformed or
// names someone other than the authenticated owner.
func RequireOwner(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		urlOwner := chi.URLParam(r, "owner")
		if err := ValidateOwnerID(urlOwner); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		if auth := OwnerFromContext(r.Context()); auth != "" && auth != urlOwner {
			writeError(w, http.StatusForbidden, "owner mismatch")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// SignatureAuth verifies the queue signature over the raw body and hands the
// body on unchanged. A present but invalid signature is always rejected; a
// missing one only when required is set.
func SignatureAuth(verifier jobs.SignatureVerifier, required bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			body, err := io.ReadAll(io.LimitReader(r.Body, maxDeliveryBody+1))
			if err != nil {
				writeError(w, http.StatusBadRequest, "unreadable body")
				return
			}
			if len(body) > maxDeliveryBody {
				writeError(w, http.StatusRequestEntityTooLarge, "body too large")
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			sig := r.Header.Get(jobs.HeaderSignature)
			switch {
			case sig == "" && required:
				writeError(w, http.StatusUnauthorized, "missing signature")
				return
			case sig != "" && !verifier.Verify(sig, r.URL.Path, body):
				writeError(w, http.StatusUnauthorized, "invalid signature")
				return
			}

			ctx := r.Context()
			if id := r.Header.Get(jobs.HeaderMessageID); id != "" {
				ctx = context.WithValue(ctx, MessageIDKey, id)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// MessageIDFromContext returns the id of the queue message being delivered.
func MessageIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(MessageIDKey).(string)
	return id
}
