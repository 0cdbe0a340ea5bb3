package middleware

import (
	"net/http"
	"runtime/debug"

	"github.com/josh-kwaku/drug-budget-ledger/internal/handler"
	"github.com/josh-kwaku/drug-budget-ledger/internal/logging"
)

// Recovery turns a handler panic into a 500. It sits inside Logging so the
// panic is logged with the request id.
func Recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rv := recover()
			if rv == nil {
				return
			}
			if rv == http.ErrAbortHandler {
				panic(rv)
			}
			logging.FromContext(r.Context()).Error("panic recovered",
				"error", rv,
				"method", r.Method,
				"path", r.URL.Path,
				"stack", string(debug.Stack()),
			)
			handler.RespondAppError(w, handler.ErrInternalError, nil)
		}()
		next.ServeHTTP(w, r)
	})
}
