package middleware

import (
	"crypto/rand"
	"net/http"

	"github.com/jxskiss/base62"

	"github.com/iambluuu/CS419-MovieTextSearch/pkg/logger"
)

// RequestIDHeader is read from incoming requests and echoed on responses.
const RequestIDHeader = "X-Request-ID"

// RequestID ensures every request carries an id, reusing a client supplied
// header when it is short enough to be trusted in logs.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if id == "" || len(id) > 64 {
			id = NewRequestID()
		}
		w.Header().Set(RequestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(logger.WithRequestID(r.Context(), id)))
	})
}

// GetRequestID returns the request id attached by RequestID.
func GetRequestID(r *http.Request) string {
	return logger.RequestID(r.Context())
}

// NewRequestID returns a random base62 identifier.
func NewRequestID() string {
	b := make([]byte, 12)
	_, _ = rand.Read(b)
	return base62.EncodeToString(b)
}
