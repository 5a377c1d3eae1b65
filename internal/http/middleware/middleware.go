// Package middleware wraps the router with request-scoped concerns:
// request ids, access logging and panic recovery.
package middleware

import (
	"errors"
	"log/slog"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/google/uuid"

	"github.com/aanand-mishra/student-records/internal/logger"
	"github.com/aanand-mishra/student-records/internal/utils/response"
)

// HeaderRequestID is read from requests and echoed on every response.
const HeaderRequestID = "X-Request-ID"

// requestIDMaxLen caps client-supplied ids so they cannot flood the logs.
const requestIDMaxLen = 64

// Middleware decorates an http.Handler.
type Middleware func(http.Handler) http.Handler

// Chain applies mws so the first one is outermost.
func Chain(h http.Handler, mws ...Middleware) http.Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}

// RequestID reuses the incoming X-Request-ID or generates a UUID, echoes it
// on the response and stores a logger tagged with it in the request
// context.
func RequestID(base *slog.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rid := r.Header.Get(HeaderRequestID)
			if rid == "" || len(rid) > requestIDMaxLen {
				rid = uuid.NewString()
			}

			w.Header().Set(HeaderRequestID, rid)

			ctx := logger.WithContext(r.Context(), base.With(slog.String("request_id", rid)))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// statusRecorder remembers the status code written by the handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Unwrap() http.ResponseWriter {
	return s.ResponseWriter
}

// Logger writes one line per request. 5xx logs at error, 4xx at warn.
func Logger() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(rec, r)

			attrs := []any{
				slog.Int("status", rec.status),
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.String("query", r.URL.RawQuery),
				slog.String("ip", r.RemoteAddr),
				slog.Duration("latency", time.Since(start)),
			}

			log := logger.FromContext(r.Context())
			switch {
			case rec.status >= 500:
				log.Error("request failed", attrs...)
			case rec.status >= 400:
				log.Warn("client error", attrs...)
			default:
				log.Info("request completed", attrs...)
			}
		})
	}
}

// headerTracker notes whether the response header has been sent.
type headerTracker struct {
	http.ResponseWriter
	wroteHeader bool
}

func (h *headerTracker) WriteHeader(code int) {
	h.wroteHeader = true
	h.ResponseWriter.WriteHeader(code)
}

func (h *headerTracker) Write(b []byte) (int, error) {
	h.wroteHeader = true
	return h.ResponseWriter.Write(b)
}

func (h *headerTracker) Unwrap() http.ResponseWriter {
	return h.ResponseWriter
}

// Recoverer turns a handler panic into a 500 JSON error. If the handler
// already started its response, the panic is only logged.
func Recoverer() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tw := &headerTracker{ResponseWriter: w}

			defer func() {
				rv := recover()
				if rv == nil {
					return
				}
				if rv == http.ErrAbortHandler {
					panic(rv)
				}

				logger.FromContext(r.Context()).Error("panic recovered",
					slog.Any("panic", rv),
					slog.Bool("response_started", tw.wroteHeader),
					slog.String("stack", string(debug.Stack())),
				)
				if tw.wroteHeader {
					return
				}
				response.WriteJSON(w, http.StatusInternalServerError,
					response.GeneralError(errors.New("internal server error")))
			}()

			next.ServeHTTP(tw, r)
		})
	}
}
