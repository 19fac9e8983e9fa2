package middleware

import (
	"log/slog"
	"net/http"
	"runtime/debug"
)

const internalErrorBody = `{"status":"error","error":"internal error"}`

// Recover turns a handler panic into a 500 JSON error instead of the
// server's plain connection reset. http.ErrAbortHandler is re-raised.
func Recover(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			p := recover()
			if p == nil {
				return
			}
			if p == http.ErrAbortHandler {
				panic(p)
			}
			slog.Error("panic in handler",
				"method", r.Method,
				"path", r.URL.Path,
				"request_id", GetRequestID(r),
				"panic", p,
				"stack", string(debug.Stack()),
			)
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusInternalServerError)
			w.Write([]byte(internalErrorBody))
		}()
		next.ServeHTTP(w, r)
	})
}
