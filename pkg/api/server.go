package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/nlcache/nlcache/pkg/events"
	"github.com/nlcache/nlcache/pkg/log"
	"github.com/nlcache/nlcache/pkg/metrics"
	"github.com/nlcache/nlcache/pkg/recordstore"
	"github.com/nlcache/nlcache/pkg/types"
)

// Server is the admin HTTP surface: health probes, Prometheus metrics, and
// read-only visibility into in-flight cleanups and recent audit events.
// Nothing here mutates state; all writes go through the CSI services and
// the control loops.
type Server struct {
	store   recordstore.Store
	broker  *events.Broker
	version string
	router  *mux.Router
	http    *http.Server
	logger  zerolog.Logger
}

// NewServer creates the admin server. broker may be nil; /v1/events then
// returns an empty list.
func NewServer(store recordstore.Store, broker *events.Broker, version string) *Server {
	s := &Server{
		store:   store,
		broker:  broker,
		version: version,
		router:  mux.NewRouter(),
		logger:  log.WithComponent("admin-api"),
	}

	s.router.HandleFunc("/health", s.healthHandler).Methods(http.MethodGet)
	s.router.HandleFunc("/ready", s.readyHandler).Methods(http.MethodGet)
	s.router.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)
	s.router.HandleFunc("/v1/cleanups", s.cleanupsHandler).Methods(http.MethodGet)
	s.router.HandleFunc("/v1/cleanups/{volumeID}", s.cleanupHandler).Methods(http.MethodGet)
	s.router.HandleFunc("/v1/events", s.eventsHandler).Methods(http.MethodGet)

	return s
}

// Start serves until the listener fails or Shutdown is called
func (s *Server) Start(addr string) error {
	s.http = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info().Str("addr", addr).Msg("Admin API listening")
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops the server, waiting for in-flight requests
func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}

// HealthResponse is the /health payload
type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Version   string    `json:"version,omitempty"`
}

// ReadyResponse is the /ready payload
type ReadyResponse struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Checks    map[string]string `json:"checks"`
}

// CleanupStatus summarizes one in-flight cleanup for the admin API
type CleanupStatus struct {
	VolumeID            string     `json:"volume_id"`
	CleanupRequestedAt  *time.Time `json:"cleanup_requested_at,omitempty"`
	NodesWithVolume     []string   `json:"nodes_with_volume,omitempty"`
	PendingNodes        []string   `json:"pending_nodes,omitempty"`
	NodesCompleted      []string   `json:"nodes_completed,omitempty"`
	NodesFailed         []string   `json:"nodes_failed,omitempty"`
	NodesDecommissioned []string   `json:"nodes_decommissioned,omitempty"`
}

// healthHandler is a pure liveness probe
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now(),
		Version:   s.version,
	})
}

// readyHandler verifies the record store is reachable
func (s *Server) readyHandler(w http.ResponseWriter, r *http.Request) {
	checks := make(map[string]string)
	statusCode := http.StatusOK
	status := "ready"

	if err := s.store.Ping(r.Context()); err != nil {
		checks["record_store"] = err.Error()
		statusCode = http.StatusServiceUnavailable
		status = "not ready"
	} else {
		checks["record_store"] = "ok"
	}

	writeJSON(w, statusCode, ReadyResponse{
		Status:    status,
		Timestamp: time.Now(),
		Checks:    checks,
	})
}

// cleanupsHandler lists every record currently in the cleanup phase
func (s *Server) cleanupsHandler(w http.ResponseWriter, r *http.Request) {
	records, err := s.store.List(r.Context(), map[string]string{types.LabelPhase: types.PhaseCleanup})
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	statuses := make([]CleanupStatus, 0, len(records))
	for _, rec := range records {
		statuses = append(statuses, toStatus(rec.State))
	}
	writeJSON(w, http.StatusOK, statuses)
}

// cleanupHandler returns the state of a single volume's cleanup
func (s *Server) cleanupHandler(w http.ResponseWriter, r *http.Request) {
	volumeID := mux.Vars(r)["volumeID"]

	rec, err := s.store.Get(r.Context(), recordstore.RecordName(volumeID))
	if err != nil {
		if errors.Is(err, recordstore.ErrNotFound) {
			http.Error(w, "no state record for volume", http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, toStatus(rec.State))
}

// eventsHandler returns the recent audit events, newest last
func (s *Server) eventsHandler(w http.ResponseWriter, r *http.Request) {
	if s.broker == nil {
		writeJSON(w, http.StatusOK, []*events.Event{})
		return
	}
	recent := s.broker.Recent()
	if recent == nil {
		recent = []*events.Event{}
	}
	writeJSON(w, http.StatusOK, recent)
}

func toStatus(state *types.VolumeState) CleanupStatus {
	return CleanupStatus{
		VolumeID:            state.VolumeID,
		CleanupRequestedAt:  state.CleanupRequestedAt,
		NodesWithVolume:     state.NodesWithVolume,
		PendingNodes:        state.PendingNodes(),
		NodesCompleted:      state.NodesCompleted,
		NodesFailed:         state.NodesFailed,
		NodesDecommissioned: state.NodesDecommissioned,
	}
}

func writeJSON(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(v)
}
