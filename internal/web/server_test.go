package web

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/pfrederiksen/calendar-events/internal/event"
	"github.com/pfrederiksen/calendar-events/internal/kv"
	"github.com/pfrederiksen/calendar-events/internal/logger"
	"github.com/pfrederiksen/calendar-events/internal/store"
)

type brokenKV struct{ kv.Store }

func (brokenKV) Set(context.Context, string, string) error { return errors.New("disk full") }

func newTestServer(t *testing.T, backend kv.Store) (*Server, *store.Store) {
	t.Helper()
	metrics := logger.NewMetrics()
	s := store.New(context.Background(), backend, store.WithLogger(logger.Discard()), store.WithMetrics(metrics))
	return NewServer(s, logger.Discard(), metrics, time.UTC), s
}

func do(t *testing.T, srv *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decoding response %q: %v", rec.Body.String(), err)
	}
	return v
}

func TestHealth(t *testing.T) {
	srv, _ := newTestServer(t, kv.NewMemory())
	rec := do(t, srv, http.MethodGet, "/health", "")
	if rec.Code != http.StatusOK || rec.Body.String() != "OK" {
		t.Errorf("GET /health = %d %q", rec.Code, rec.Body.String())
	}
}

func TestEventsCRUD(t *testing.T) {
	srv, s := newTestServer(t, kv.NewMemory())

	rec := do(t, srv, http.MethodGet, "/api/events", "")
	if rec.Code != http.StatusOK || strings.TrimSpace(rec.Body.String()) != "[]" {
		t.Fatalf("GET empty list = %d %s", rec.Code, rec.Body.String())
	}

	rec = do(t, srv, http.MethodPost, "/api/events", `{"name":"Standup","date":"2024-01-01T09:00","color":"blue","time":"9:00 AM"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("POST = %d %s", rec.Code, rec.Body.String())
	}
	created := decode[event.CalendarEvent](t, rec)
	if created.ID == "" || created.Name != "Standup" || created.Time != "9:00 AM" {
		t.Errorf("created = %+v", created)
	}
	if !created.Date.Equal(time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)) {
		t.Errorf("Date = %v", created.Date)
	}

	rec = do(t, srv, http.MethodGet, "/api/events/"+created.ID, "")
	if rec.Code != http.StatusOK {
		t.Errorf("GET one = %d", rec.Code)
	}

	rec = do(t, srv, http.MethodPatch, "/api/events/"+created.ID, `{"color":"red"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("PATCH = %d %s", rec.Code, rec.Body.String())
	}
	if updated := decode[event.CalendarEvent](t, rec); updated.Color != "red" || updated.Name != "Standup" {
		t.Errorf("updated = %+v", updated)
	}

	rec = do(t, srv, http.MethodGet, "/api/events", "")
	if list := decode[[]event.CalendarEvent](t, rec); len(list) != 1 || list[0].Color != "red" {
		t.Errorf("list = %+v", list)
	}

	rec = do(t, srv, http.MethodDelete, "/api/events/"+created.ID, "")
	if rec.Code != http.StatusNoContent {
		t.Errorf("DELETE = %d", rec.Code)
	}
	if s.Len() != 0 {
		t.Errorf("store has %d events after delete", s.Len())
	}
}

func TestUnknownID(t *testing.T) {
	srv, s := newTestServer(t, kv.NewMemory())
	s.Add(context.Background(), event.Draft{Name: "a", Date: time.Now(), Color: "blue"}) // nolint:errcheck

	tests := []struct {
		method, body string
		want         int
	}{
		{http.MethodGet, "", http.StatusNotFound},
		{http.MethodPatch, `{"name":"x"}`, http.StatusNoContent},
		{http.MethodDelete, "", http.StatusNoContent},
	}
	for _, tt := range tests {
		t.Run(tt.method, func(t *testing.T) {
			rec := do(t, srv, tt.method, "/api/events/missing", tt.body)
			if rec.Code != tt.want {
				t.Errorf("%s unknown id = %d, want %d", tt.method, rec.Code, tt.want)
			}
		})
	}
	if s.Len() != 1 {
		t.Error("unknown id requests changed the store")
	}
}

func TestBadRequests(t *testing.T) {
	srv, s := newTestServer(t, kv.NewMemory())

	tests := []struct {
		name string
		body string
	}{
		{"malformed json", `{"name":`},
		{"unknown field", `{"name":"a","date":"2024-01-01","color":"blue","colour":"x"}`},
		{"missing color", `{"name":"a","date":"2024-01-01"}`},
		{"bad date", `{"name":"a","date":"next tuesday","color":"blue"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, srv, http.MethodPost, "/api/events", tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("POST = %d, want 400", rec.Code)
			}
			if resp := decode[map[string]string](t, rec); resp["error"] == "" {
				t.Error("expected error message")
			}
		})
	}
	if s.Len() != 0 {
		t.Error("invalid requests changed the store")
	}
}

func TestPersistFailure(t *testing.T) {
	srv, s := newTestServer(t, brokenKV{kv.NewMemory()})

	rec := do(t, srv, http.MethodPost, "/api/events", `{"name":"a","date":"2024-01-01","color":"blue"}`)
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("POST with failing storage = %d, want 503", rec.Code)
	}
	if s.Len() != 0 {
		t.Error("failed write left an event behind")
	}
}

func TestICS(t *testing.T) {
	srv, s := newTestServer(t, kv.NewMemory())
	s.Add(context.Background(), event.Draft{Name: "Standup", Date: time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC), Color: "blue"}) // nolint:errcheck

	rec := do(t, srv, http.MethodGet, "/api/events.ics", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("GET ics = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/calendar") {
		t.Errorf("Content-Type = %s", ct)
	}
	if !strings.Contains(rec.Body.String(), "SUMMARY:Standup") {
		t.Errorf("ics body missing event:\n%s", rec.Body.String())
	}
}

func TestICS_Empty(t *testing.T) {
	srv, _ := newTestServer(t, kv.NewMemory())

	rec := do(t, srv, http.MethodGet, "/api/events.ics", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("GET ics on empty store = %d %s", rec.Code, rec.Body.String())
	}
	body := rec.Body.String()
	if !strings.Contains(body, "BEGIN:VCALENDAR") || strings.Contains(body, "BEGIN:VEVENT") {
		t.Errorf("unexpected body:\n%s", body)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	srv, _ := newTestServer(t, kv.NewMemory())
	do(t, srv, http.MethodPost, "/api/events", `{"name":"a","date":"2024-01-01","color":"blue"}`)

	rec := do(t, srv, http.MethodGet, "/api/metrics", "")
	snap := decode[logger.Snapshot](t, rec)
	if snap.Counters["store.add"] != 1 {
		t.Errorf("store.add = %d, want 1", snap.Counters["store.add"])
	}
}

func readSSE(t *testing.T, r *bufio.Reader) []event.CalendarEvent {
	t.Helper()
	var data string
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			t.Fatalf("reading stream: %v", err)
		}
		line = strings.TrimRight(line, "\n")
		if line == "" {
			break
		}
		if strings.HasPrefix(line, "data: ") {
			data = strings.TrimPrefix(line, "data: ")
		}
	}
	var events []event.CalendarEvent
	if err := json.Unmarshal([]byte(data), &events); err != nil {
		t.Fatalf("decoding stream data %q: %v", data, err)
	}
	return events
}

func TestStream(t *testing.T) {
	srv, s := newTestServer(t, kv.NewMemory())
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/api/events/stream", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET stream: %v", err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %s", ct)
	}

	r := bufio.NewReader(resp.Body)
	if initial := readSSE(t, r); len(initial) != 0 {
		t.Errorf("initial snapshot = %+v, want empty", initial)
	}

	if _, err := s.Add(ctx, event.Draft{Name: "Standup", Date: time.Now(), Color: "blue"}); err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	if got := readSSE(t, r); len(got) != 1 || got[0].Name != "Standup" {
		t.Errorf("snapshot after add = %+v", got)
	}
}
