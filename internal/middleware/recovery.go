package middleware

import (
	"errors"
	"log/slog"
	"net/http"
	"runtime/debug"

	"turnstream/internal/httputil"
)

// Recovery turns a handler panic into a logged 500.
// http.ErrAbortHandler is re-raised so net/http can abort the connection quietly.
func Recovery(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				p := recover()
				if p == nil {
					return
				}
				if err, ok := p.(error); ok && errors.Is(err, http.ErrAbortHandler) {
					panic(p)
				}

				logger.Error("handler panicked",
					"route", r.Method+" "+r.URL.Path,
					"user_id", httputil.GetUserID(r),
					"panic", p,
					"stack", string(debug.Stack()),
				)
				// Once an event stream has started this write only reaches the log
				httputil.RespondError(w, http.StatusInternalServerError, "internal server error")
			}()

			next.ServeHTTP(w, r)
		})
	}
}
