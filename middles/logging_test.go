package middles

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shoenig/test/must"
)

func TestRequestLog(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	var idInHandler string
	rl := &RequestLog{
		Logger: logger,
		Clock:  time.Now,
		Next: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			idInHandler = RequestID(r.Context())
			w.WriteHeader(http.StatusTeapot)
		}),
	}

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/finance/ledger", nil)
	rl.ServeHTTP(w, r)

	must.UUIDv4(t, idInHandler)
	must.Eq(t, idInHandler, w.Header().Get("X-Request-ID"))

	var entry map[string]any
	must.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	must.Eq(t, "request", entry["msg"].(string))
	must.Eq(t, "/finance/ledger", entry["path"].(string))
	must.Eq(t, float64(http.StatusTeapot), entry["status"].(float64))
	must.Eq(t, idInHandler, entry["request_id"].(string))

	origin := entry["origin"].(map[string]any)
	must.Eq(t, "192.0.2.1", origin["client"].(string))
}

func TestRequestLog_keepsIncomingID(t *testing.T) {
	t.Parallel()

	rl := &RequestLog{
		Logger: discard(),
		Clock:  time.Now,
		Next:   http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}),
	}

	const id = "0b3f0ab4-7a4e-4f4e-9a53-4f5b2a7c9e10"

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("X-Request-ID", id)
	rl.ServeHTTP(w, r)
	must.Eq(t, id, w.Header().Get("X-Request-ID"))

	// anything that is not a uuid is replaced
	w2 := httptest.NewRecorder()
	r2 := httptest.NewRequest(http.MethodGet, "/", nil)
	r2.Header.Set("X-Request-ID", "<script>")
	rl.ServeHTTP(w2, r2)
	must.NotEq(t, "<script>", w2.Header().Get("X-Request-ID"))
}

func TestRequestID_missing(t *testing.T) {
	t.Parallel()

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	must.Eq(t, "", RequestID(r.Context()))
}
