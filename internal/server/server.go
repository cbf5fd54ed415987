// Package server exposes the workspace over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/bmskinner/nma-sub021/internal/app"
	"github.com/bmskinner/nma-sub021/internal/contour"
	"github.com/bmskinner/nma-sub021/internal/landmark"
	"github.com/bmskinner/nma-sub021/internal/nucleus"
	"github.com/bmskinner/nma-sub021/internal/profile"
	"github.com/bmskinner/nma-sub021/internal/segment"
	"github.com/bmskinner/nma-sub021/internal/storage"
)

// Server wraps an HTTP server over a workspace.
type Server struct {
	addr   string
	state  *app.State
	store  *storage.Store
	log    *slog.Logger
	server *http.Server
}

// NewServer creates a server for state. store may be nil, in which case
// the persist endpoint is unavailable.
func NewServer(addr string, state *app.State, store *storage.Store, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{addr: addr, state: state, store: store, log: log}
}

// Handler returns the router with every route installed.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	s.setupRoutes(r)
	r.Use(s.logRequests)
	return r
}

// Start serves until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Graceful shutdown
	go func() {
		<-ctx.Done()
		s.log.Info("shutting down server")

		ctxShutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.server.Shutdown(ctxShutdown)
	}()

	s.log.Info("server starting", "addr", s.addr)
	err := s.server.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func (s *Server) setupRoutes(r *mux.Router) {
	r.HandleFunc("/healthz", s.handleHealth).Methods("GET")
	r.HandleFunc("/nuclei", s.handleList).Methods("GET")
	r.HandleFunc("/nuclei/{id}", s.handleGet).Methods("GET")
	r.HandleFunc("/nuclei/{id}", s.handleDelete).Methods("DELETE")
	r.HandleFunc("/nuclei/{id}/profile", s.handleProfile).Methods("GET")
	r.HandleFunc("/nuclei/{id}/measurements", s.handleMeasurements).Methods("GET")
	r.HandleFunc("/nuclei/{id}/orientation", s.handleOrientation).Methods("GET")
	r.HandleFunc("/nuclei/{id}/reverse", s.handleReverse).Methods("POST")
	r.HandleFunc("/nuclei/{id}/landmarks/{name}", s.handleSetLandmark).Methods("PUT")
	r.HandleFunc("/nuclei/{id}/segments/{segment}", s.handleUpdateSegment).Methods("PUT")
	r.HandleFunc("/segment", s.handleSegment).Methods("POST")
	r.HandleFunc("/validate", s.handleValidate).Methods("GET")
	r.HandleFunc("/repair", s.handleRepair).Methods("POST")
	r.HandleFunc("/persist", s.handlePersist).Methods("POST")
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.log.Debug("request", "method", r.Method, "path", r.URL.Path, "duration_ms", time.Since(start).Milliseconds())
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.state.List())
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	id, ok := nucleusID(w, r)
	if !ok {
		return
	}
	st, err := s.state.Snapshot(id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	id, ok := nucleusID(w, r)
	if !ok {
		return
	}
	if err := s.state.Remove(id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SegmentView is the wire form of one segment in a profile response.
type SegmentView struct {
	ID     uuid.UUID `json:"id"`
	Start  int       `json:"start"`
	End    int       `json:"end"`
	Locked bool      `json:"locked,omitempty"`
}

// ProfileView is the profile endpoint's response.
type ProfileView struct {
	Type     profile.Type             `json:"type"`
	From     landmark.OrientationMark `json:"from"`
	Values   []float64                `json:"values"`
	Segments []SegmentView            `json:"segments"`
}

func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	id, ok := nucleusID(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()

	t := profile.Angle
	if v := q.Get("type"); v != "" {
		var err error
		if t, err = profile.ParseType(v); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
	}
	mark := landmark.Reference
	if v := q.Get("from"); v != "" {
		var err error
		if mark, err = landmark.ParseMark(v); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
	}

	sp, err := s.state.Profile(id, t, mark)
	if err != nil {
		writeError(w, err)
		return
	}
	view := ProfileView{Type: t, From: mark, Values: sp.Values()}
	for _, seg := range sp.Ring.Segments() {
		view.Segments = append(view.Segments, SegmentView{ID: seg.ID, Start: seg.Start, End: seg.End, Locked: seg.Locked})
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleMeasurements(w http.ResponseWriter, r *http.Request) {
	id, ok := nucleusID(w, r)
	if !ok {
		return
	}
	var out map[nucleus.Measurement]float64
	err := s.state.View(id, func(n *nucleus.Nucleus) error {
		var err error
		out, err = n.MeasureAll()
		return err
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleOrientation(w http.ResponseWriter, r *http.Request) {
	id, ok := nucleusID(w, r)
	if !ok {
		return
	}
	res, err := s.state.Orient(id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleReverse(w http.ResponseWriter, r *http.Request) {
	id, ok := nucleusID(w, r)
	if !ok {
		return
	}
	if err := s.state.Reverse(id); err != nil {
		writeError(w, err)
		return
	}
	s.handleGet(w, r)
}

type landmarkRequest struct {
	Index int `json:"index"`
}

func (s *Server) handleSetLandmark(w http.ResponseWriter, r *http.Request) {
	id, ok := nucleusID(w, r)
	if !ok {
		return
	}
	var req landmarkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid body: "+err.Error(), http.StatusBadRequest)
		return
	}
	name := landmark.Name(mux.Vars(r)["name"])
	if err := s.state.SetLandmark(id, name, req.Index); err != nil {
		writeError(w, err)
		return
	}
	s.handleGet(w, r)
}

type segmentRequest struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

func (s *Server) handleUpdateSegment(w http.ResponseWriter, r *http.Request) {
	id, ok := nucleusID(w, r)
	if !ok {
		return
	}
	segID, err := uuid.Parse(mux.Vars(r)["segment"])
	if err != nil {
		http.Error(w, "invalid segment id", http.StatusBadRequest)
		return
	}
	var req segmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid body: "+err.Error(), http.StatusBadRequest)
		return
	}
	accepted, err := s.state.UpdateSegment(id, segID, req.Start, req.End)
	if err != nil {
		writeError(w, err)
		return
	}
	status := http.StatusOK
	if !accepted {
		status = http.StatusConflict
	}
	writeJSON(w, status, map[string]bool{"accepted": accepted})
}

type segmentAllRequest struct {
	Count     int `json:"count"`
	MinLength int `json:"min_length"`
}

func (s *Server) handleSegment(w http.ResponseWriter, r *http.Request) {
	req := segmentAllRequest{Count: 4, MinLength: segment.DefaultMinLength}
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid body: "+err.Error(), http.StatusBadRequest)
			return
		}
	}
	consensus, err := s.state.Segment(req.Count, req.MinLength)
	if err != nil {
		writeError(w, err)
		return
	}
	view := ProfileView{Type: profile.Angle, From: landmark.Reference, Values: consensus.Values()}
	for _, seg := range consensus.Ring.Segments() {
		view.Segments = append(view.Segments, SegmentView{ID: seg.ID, Start: seg.Start, End: seg.End})
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.state.Validate())
}

func (s *Server) handleRepair(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.state.Repair())
}

func (s *Server) handlePersist(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		http.Error(w, "no database configured", http.StatusServiceUnavailable)
		return
	}
	var states []nucleus.State
	for _, id := range s.state.IDs() {
		st, err := s.state.Snapshot(id)
		if err != nil {
			continue
		}
		states = append(states, st)
	}
	if err := s.store.PutAll(r.Context(), states); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"stored": len(states)})
}

func nucleusID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		http.Error(w, "invalid nucleus id", http.StatusBadRequest)
		return uuid.Nil, false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, app.ErrNotFound), errors.Is(err, storage.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, nucleus.ErrLocked):
		status = http.StatusConflict
	case errors.Is(err, landmark.ErrMissingLandmark), errors.Is(err, nucleus.ErrMissingProfile):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, segment.ErrInvalidRing), errors.Is(err, contour.ErrInvalidGeometry):
		status = http.StatusUnprocessableEntity
	}
	http.Error(w, err.Error(), status)
}
