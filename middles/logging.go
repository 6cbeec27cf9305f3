package middles

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"cattlecloud.net/go/bizdash"
	"github.com/google/uuid"
)

type requestIDKey struct{}

// RequestID returns the identifier assigned to the request by RequestLog,
// or "" if there is none.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// recorder captures the status code written by a handler.
type recorder struct {
	http.ResponseWriter
	status int
}

func (rec *recorder) WriteHeader(code int) {
	if rec.status == 0 {
		rec.status = code
	}
	rec.ResponseWriter.WriteHeader(code)
}

func (rec *recorder) Write(b []byte) (int, error) {
	if rec.status == 0 {
		rec.status = http.StatusOK
	}
	return rec.ResponseWriter.Write(b)
}

func (rec *recorder) Unwrap() http.ResponseWriter {
	return rec.ResponseWriter
}

// RequestLog assigns each request an identifier, echoed in the X-Request-ID
// response header, and logs every completed request.
type RequestLog struct {
	Logger *slog.Logger
	Clock  func() time.Time
	Next   http.Handler
}

func (rl *RequestLog) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := rl.Clock()

	id := r.Header.Get("X-Request-ID")
	if _, err := uuid.Parse(id); err != nil {
		id = uuid.NewString()
	}
	w.Header().Set("X-Request-ID", id)

	rec := &recorder{ResponseWriter: w}
	r2 := r.WithContext(context.WithValue(r.Context(), requestIDKey{}, id))
	rl.Next.ServeHTTP(rec, r2)

	status := rec.status
	if status == 0 {
		status = http.StatusOK
	}

	level := slog.LevelInfo
	if status >= http.StatusInternalServerError {
		level = slog.LevelError
	}

	rl.Logger.LogAttrs(r.Context(), level, "request",
		slog.String("request_id", id),
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.Int("status", status),
		slog.Duration("duration", rl.Clock().Sub(start)),
		slog.Any("origin", bizdash.Origins(r)),
	)
}
