package middleware

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/urfave/negroni"

	"github.com/BerylCAtieno/research-paper-api/internal/utils"
)

// Logger logs one line per request with the status and size written.
func Logger(logger *utils.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := negroni.NewResponseWriter(w)

			next.ServeHTTP(rw, r)

			logger.Info("HTTP request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", rw.Status(),
				"size", rw.Size(),
				"duration_ms", time.Since(start).Milliseconds(),
				"remote_addr", r.RemoteAddr)
		})
	}
}

func CORS() mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// Recovery turns a panicking handler into a 500 JSON response, logging the
// panic and stack through logger.
func Recovery(logger *utils.Logger) mux.MiddlewareFunc {
	rec := negroni.NewRecovery()
	rec.Logger = slog.NewLogLogger(logger.Handler(), slog.LevelError)
	rec.PrintStack = false
	rec.Formatter = jsonPanicFormatter{}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rec.ServeHTTP(jsonErrorWriter{w}, r, next.ServeHTTP)
		})
	}
}

type jsonPanicFormatter struct{}

func (jsonPanicFormatter) FormatPanicError(w http.ResponseWriter, _ *http.Request, _ *negroni.PanicInformation) {
	w.Write([]byte(`{"error":"Internal server error"}`))
}

// jsonErrorWriter labels a bare 500 as JSON, since negroni writes the status
// before the formatter runs.
type jsonErrorWriter struct {
	http.ResponseWriter
}

func (w jsonErrorWriter) WriteHeader(code int) {
	if code == http.StatusInternalServerError && w.Header().Get("Content-Type") == "" {
		w.Header().Set("Content-Type", "application/json")
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w jsonErrorWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
