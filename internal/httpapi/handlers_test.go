package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"mitemp-gateway/internal/health"
	"mitemp-gateway/internal/journal"
	"mitemp-gateway/internal/registry"
)

type stubHealth struct {
	report health.Report
}

func (s stubHealth) Check() health.Report { return s.report }

type stubJournal struct {
	entries  []journal.Entry
	err      error
	gotTopic string
	gotLimit int
}

func (s *stubJournal) Latest(_ context.Context, topic string, limit int) ([]journal.Entry, error) {
	s.gotTopic = topic
	s.gotLimit = limit
	return s.entries, s.err
}

func testRegistry() *registry.Registry {
	return registry.Build([]registry.Entry{
		{Address: "A4:C1:38:00:00:02", Name: "kitchen", Key: "00112233445566778899aabbccddeeff"},
		{Address: "A4:C1:38:00:00:01", Name: "attic"},
	}, "mitemperature", slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func newTestServer(t *testing.T, hc HealthChecker, jr JournalReader) *httptest.Server {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	api := NewAPI(hc, testRegistry(), jr, logger)
	srv := NewServer(":0", NewMux(api), logger)
	ts := httptest.NewServer(srv.Handler)

	t.Cleanup(ts.Close)
	return ts
}

func mustGetJSON[T any](t *testing.T, client *http.Client, url string, out *T) *http.Response {
	t.Helper()

	resp, err := client.Get(url)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	t.Cleanup(func() { _ = resp.Body.Close() })

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		t.Fatalf("decode json: %v", err)
	}
	return resp
}

func TestHealthz(t *testing.T) {
	last := time.Date(2024, 2, 3, 4, 5, 6, 0, time.UTC)

	tests := []struct {
		name       string
		report     health.Report
		wantStatus int
		wantBody   string
		wantLast   any
	}{
		{
			name:       "healthy",
			report:     health.Report{Healthy: true, LastSuccess: last, Age: 10 * time.Second, Uptime: time.Hour},
			wantStatus: http.StatusOK,
			wantBody:   "ok",
			wantLast:   "2024-02-03T04:05:06Z",
		},
		{
			name:       "startup grace",
			report:     health.Report{Healthy: true, Age: 5 * time.Second, Uptime: 5 * time.Second},
			wantStatus: http.StatusOK,
			wantBody:   "ok",
			wantLast:   nil,
		},
		{
			name:       "stale",
			report:     health.Report{Healthy: false, LastSuccess: last, Age: 10 * time.Minute, Uptime: time.Hour},
			wantStatus: http.StatusServiceUnavailable,
			wantBody:   "stale",
			wantLast:   "2024-02-03T04:05:06Z",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t, stubHealth{report: tt.report}, nil)

			var body map[string]any
			resp := mustGetJSON(t, ts.Client(), ts.URL+"/healthz", &body)

			if resp.StatusCode != tt.wantStatus {
				t.Fatalf("status=%d want=%d", resp.StatusCode, tt.wantStatus)
			}
			if body["status"] != tt.wantBody {
				t.Errorf("body.status=%v want=%q", body["status"], tt.wantBody)
			}
			if body["last_success"] != tt.wantLast {
				t.Errorf("body.last_success=%v want=%v", body["last_success"], tt.wantLast)
			}
			if body["age_s"] != float64(tt.report.Age/time.Second) {
				t.Errorf("body.age_s=%v want=%v", body["age_s"], tt.report.Age/time.Second)
			}
		})
	}
}

func TestSensors(t *testing.T) {
	ts := newTestServer(t, stubHealth{}, nil)

	var sensors []Sensor
	resp := mustGetJSON(t, ts.Client(), ts.URL+"/api/v1/sensors", &sensors)

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status=%d want=%d", resp.StatusCode, http.StatusOK)
	}
	want := []Sensor{
		{Name: "attic", Address: "A4:C1:38:00:00:01", Topic: "mitemperature/attic", HasKey: false},
		{Name: "kitchen", Address: "A4:C1:38:00:00:02", Topic: "mitemperature/kitchen", HasKey: true},
	}
	if len(sensors) != len(want) {
		t.Fatalf("sensors = %+v, want %+v", sensors, want)
	}
	for i := range want {
		if sensors[i] != want[i] {
			t.Errorf("sensor %d = %+v, want %+v", i, sensors[i], want[i])
		}
	}
}

func TestReadings(t *testing.T) {
	jr := &stubJournal{entries: []journal.Entry{
		{ID: 2, Topic: "mitemperature/kitchen", Payload: `{"temperature":21.5}`, Delivered: true, CreatedAt: time.Unix(200, 0).UTC()},
		{ID: 1, Topic: "mitemperature/kitchen", Payload: `{"temperature":21.34}`, Delivered: false, CreatedAt: time.Unix(100, 0).UTC()},
	}}
	ts := newTestServer(t, stubHealth{}, jr)

	var body struct {
		Sensor string          `json:"sensor"`
		Limit  int             `json:"limit"`
		Items  []journal.Entry `json:"items"`
	}
	resp := mustGetJSON(t, ts.Client(), ts.URL+"/api/v1/sensors/kitchen/readings?limit=5", &body)

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status=%d want=%d", resp.StatusCode, http.StatusOK)
	}
	if jr.gotTopic != "mitemperature/kitchen" || jr.gotLimit != 5 {
		t.Errorf("journal queried with topic=%q limit=%d", jr.gotTopic, jr.gotLimit)
	}
	if body.Sensor != "kitchen" || body.Limit != 5 || len(body.Items) != 2 {
		t.Fatalf("body = %+v", body)
	}
	if body.Items[0].ID != 2 || !body.Items[0].Delivered || body.Items[1].Delivered {
		t.Errorf("items = %+v", body.Items)
	}
}

func TestReadings_Errors(t *testing.T) {
	tests := []struct {
		name       string
		journal    JournalReader
		path       string
		wantStatus int
	}{
		{name: "journal disabled", journal: nil, path: "/api/v1/sensors/kitchen/readings", wantStatus: http.StatusNotFound},
		{name: "unknown sensor", journal: &stubJournal{}, path: "/api/v1/sensors/cellar/readings", wantStatus: http.StatusNotFound},
		{name: "bad limit", journal: &stubJournal{}, path: "/api/v1/sensors/kitchen/readings?limit=abc", wantStatus: http.StatusBadRequest},
		{name: "zero limit", journal: &stubJournal{}, path: "/api/v1/sensors/kitchen/readings?limit=0", wantStatus: http.StatusBadRequest},
		{name: "limit too large", journal: &stubJournal{}, path: "/api/v1/sensors/kitchen/readings?limit=5000", wantStatus: http.StatusBadRequest},
		{name: "store failure", journal: &stubJournal{err: errors.New("disk")}, path: "/api/v1/sensors/kitchen/readings", wantStatus: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t, stubHealth{}, tt.journal)

			var body map[string]any
			resp := mustGetJSON(t, ts.Client(), ts.URL+tt.path, &body)

			if resp.StatusCode != tt.wantStatus {
				t.Fatalf("status=%d want=%d", resp.StatusCode, tt.wantStatus)
			}
			if body["error"] != http.StatusText(tt.wantStatus) {
				t.Errorf("body.error=%v want=%q", body["error"], http.StatusText(tt.wantStatus))
			}
		})
	}
}

func TestReadings_EmptyJournalIsEmptyList(t *testing.T) {
	ts := newTestServer(t, stubHealth{}, &stubJournal{})

	var body map[string]any
	mustGetJSON(t, ts.Client(), ts.URL+"/api/v1/sensors/attic/readings", &body)

	items, ok := body["items"].([]any)
	if !ok || len(items) != 0 {
		t.Errorf("items = %#v, want []", body["items"])
	}
}

func TestWriteError(t *testing.T) {
	logs := &captureHandler{}
	api := NewAPI(stubHealth{}, testRegistry(), nil, slog.New(logs))

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/api/v1/sensors/kitchen/readings", nil)
	api.writeError(w, r, http.StatusInternalServerError, "failed to read journal", errors.New("disk I/O error"))

	if got := w.Header().Get("Content-Type"); got != "application/json; charset=utf-8" {
		t.Errorf("Content-Type = %q; want application/json; charset=utf-8", got)
	}
	if w.Code != http.StatusInternalServerError {
		t.Errorf("Code = %d; want %d", w.Code, http.StatusInternalServerError)
	}

	var got map[string]any
	if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
		t.Fatalf("body is not valid JSON: %v", err)
	}
	if got["message"] != "failed to read journal" {
		t.Errorf("message = %v; want %q", got["message"], "failed to read journal")
	}
	if len(got) != 2 {
		t.Errorf("body = %v; the cause must not leak to the client", got)
	}

	if len(logs.records) != 1 {
		t.Fatalf("log records = %d, want 1", len(logs.records))
	}
	rec := logs.records[0]
	if rec.Level != slog.LevelError {
		t.Errorf("level = %v, want ERROR", rec.Level)
	}
	var cause string
	rec.Attrs(func(a slog.Attr) bool {
		if a.Key == "error" {
			cause = a.Value.String()
		}
		return true
	})
	if cause != "disk I/O error" {
		t.Errorf("logged error = %q, want %q", cause, "disk I/O error")
	}
}

// brokenWriter accepts headers but fails every body write.
type brokenWriter struct {
	header http.Header
	status int
}

func (b *brokenWriter) Header() http.Header       { return b.header }
func (b *brokenWriter) WriteHeader(status int)    { b.status = status }
func (b *brokenWriter) Write([]byte) (int, error) { return 0, errors.New("connection reset") }

func TestWriteJSON_EncodeFailureIsLogged(t *testing.T) {
	logs := &captureHandler{}
	api := NewAPI(stubHealth{}, testRegistry(), nil, slog.New(logs))

	w := &brokenWriter{header: http.Header{}}
	r := httptest.NewRequest(http.MethodGet, "/api/v1/sensors", nil)
	api.writeJSON(w, r, http.StatusOK, map[string]string{"status": "ok"})

	if w.status != http.StatusOK {
		t.Errorf("status = %d, want %d", w.status, http.StatusOK)
	}
	if len(logs.records) != 1 || logs.records[0].Message != "httpapi: write response" {
		t.Fatalf("logs = %v, want one write failure", logs.records)
	}
}
