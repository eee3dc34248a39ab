package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/pfrederiksen/calendar-events/internal/calendar"
	"github.com/pfrederiksen/calendar-events/internal/event"
	"github.com/pfrederiksen/calendar-events/internal/logger"
	"github.com/pfrederiksen/calendar-events/internal/store"
)

// maxBodyBytes bounds request bodies on the mutating endpoints.
const maxBodyBytes = 64 << 10

// Server exposes a store over HTTP.
type Server struct {
	store   *store.Store
	view    *store.View
	log     *logger.Logger
	metrics *logger.Metrics
	loc     *time.Location
	mux     *http.ServeMux
}

// NewServer constructs a Server. Dates in requests without an explicit zone
// are interpreted in loc.
func NewServer(s *store.Store, log *logger.Logger, metrics *logger.Metrics, loc *time.Location) *Server {
	if loc == nil {
		loc = time.UTC
	}
	srv := &Server{
		store:   s,
		view:    s.View(),
		log:     log.With(logger.Fields{"component": "web"}),
		metrics: metrics,
		loc:     loc,
		mux:     http.NewServeMux(),
	}
	srv.registerRoutes()
	return srv
}

// Handler returns the underlying http.Handler for this server.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully. Open event streams are closed when ctx ends.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("starting HTTP server", logger.Fields{"listen": "http://" + addr})
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.log.Info("shutting down HTTP server", nil)
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /api/events", s.handleList)
	s.mux.HandleFunc("POST /api/events", s.handleAdd)
	s.mux.HandleFunc("GET /api/events.ics", s.handleICS)
	s.mux.HandleFunc("GET /api/events/stream", s.handleStream)
	s.mux.HandleFunc("GET /api/events/{id}", s.handleGet)
	s.mux.HandleFunc("PATCH /api/events/{id}", s.handleUpdate)
	s.mux.HandleFunc("DELETE /api/events/{id}", s.handleDelete)
	s.mux.HandleFunc("GET /api/metrics", s.handleMetrics)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// eventRequest is the JSON body accepted by POST and PATCH. Dates are
// strings so that zone-less input can be read in the server's timezone.
type eventRequest struct {
	Name  *string `json:"name"`
	Date  *string `json:"date"`
	Time  *string `json:"time"`
	Color *string `json:"color"`
	Notes *string `json:"notes"`
}

func (req eventRequest) patch(loc *time.Location) (event.Patch, error) {
	p := event.Patch{
		Name:  req.Name,
		Time:  req.Time,
		Color: req.Color,
		Notes: req.Notes,
	}
	if req.Date != nil {
		date, err := event.ParseDate(*req.Date, loc)
		if err != nil {
			return p, fmt.Errorf("%w: %v", event.ErrInvalid, err)
		}
		p.Date = &date
	}
	return p, nil
}

func (s *Server) decodeRequest(w http.ResponseWriter, r *http.Request) (eventRequest, bool) {
	var req eventRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return req, false
	}
	return req, true
}

func (s *Server) handleList(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.view.Events())
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	evt, ok := s.view.Get(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, "event not found")
		return
	}
	writeJSON(w, http.StatusOK, evt)
}

func (s *Server) handleAdd(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeRequest(w, r)
	if !ok {
		return
	}
	p, err := req.patch(s.loc)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}

	evt, err := s.store.Add(r.Context(), p.Apply(event.CalendarEvent{}).Draft())
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, evt)
}

// handleUpdate applies a partial update. An unknown id is accepted and
// answered with 204, matching the store's no-op semantics.
func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	req, ok := s.decodeRequest(w, r)
	if !ok {
		return
	}
	p, err := req.patch(s.loc)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}

	if err := s.store.Update(r.Context(), id, p); err != nil {
		s.writeStoreError(w, err)
		return
	}
	if evt, found := s.view.Get(id); found {
		writeJSON(w, http.StatusOK, evt)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Delete(r.Context(), r.PathValue("id")); err != nil {
		s.writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleICS(w http.ResponseWriter, _ *http.Request) {
	ics, err := calendar.GenerateCollectionICS(s.view.Events())
	if err != nil {
		s.log.Error("ics export failed", nil, err)
		writeError(w, http.StatusInternalServerError, "failed to export calendar")
		return
	}
	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="calendar-events.ics"`)
	_, _ = w.Write([]byte(ics))
}

func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.metrics.Snapshot())
}

// handleStream pushes the full collection as a server-sent "events" message
// on connect and after every change.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	// Changes are coalesced: a slow client only ever sees the latest state.
	changed := make(chan struct{}, 1)
	cancel := s.view.Subscribe(func([]event.CalendarEvent) {
		select {
		case changed <- struct{}{}:
		default:
		}
	})
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	s.metrics.IncrCounter("web.stream.connect")
	defer s.metrics.IncrCounter("web.stream.disconnect")

	send := func() bool {
		data, err := event.EncodeCollection(s.view.Events())
		if err != nil {
			s.log.Error("encoding stream snapshot failed", nil, err)
			return false
		}
		if _, err := fmt.Fprintf(w, "event: events\ndata: %s\n\n", data); err != nil {
			return false
		}
		flusher.Flush()
		return true
	}

	if !send() {
		return
	}
	for {
		select {
		case <-r.Context().Done():
			return
		case <-changed:
			if !send() {
				return
			}
		}
	}
}

// writeStoreError maps store and validation errors to HTTP statuses.
func (s *Server) writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, event.ErrInvalid):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, store.ErrPersist), errors.Is(err, store.ErrUnavailable):
		writeError(w, http.StatusServiceUnavailable, "failed to save events")
	default:
		s.log.Error("request failed", nil, err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("failed to write JSON response", nil, err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	type errResp struct {
		Error string `json:"error"`
	}
	writeJSON(w, status, errResp{Error: msg})
}
