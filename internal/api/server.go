// Package api exposes a read-only HTTP query surface over the strategy and
// position store. It never mutates state; all writes go through the run and
// scan pipelines.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/moznion/go-optional"
	"go.uber.org/zap"

	"github.com/rxtech-lab/edgefinder/internal/logger"
	"github.com/rxtech-lab/edgefinder/internal/store"
	"github.com/rxtech-lab/edgefinder/internal/types"
	"github.com/rxtech-lab/edgefinder/pkg/errors"
)

const (
	readTimeout     = 10 * time.Second
	writeTimeout    = 30 * time.Second
	shutdownTimeout = 5 * time.Second
)

// Server serves strategy and position queries.
type Server struct {
	store  store.Store
	log    *logger.Logger
	server *http.Server
}

// NewServer creates the query server bound to the given address.
func NewServer(listen string, st store.Store, log *logger.Logger) (*Server, error) {
	if listen == "" {
		return nil, errors.New(errors.ErrCodeMissingParameter, "listen address is required")
	}

	if log == nil {
		log = logger.NewNopLogger()
	}

	srv := &Server{
		store:  st,
		log:    log,
		server: nil,
	}

	router := mux.NewRouter()
	router.HandleFunc("/healthz", srv.handleHealth).Methods(http.MethodGet)
	router.HandleFunc("/api/v1/strategies", srv.handleStrategies).Methods(http.MethodGet)
	router.HandleFunc("/api/v1/positions", srv.handlePositions).Methods(http.MethodGet)

	srv.server = &http.Server{
		Addr:         listen,
		Handler:      router,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
	}

	return srv, nil
}

// ListenAndServe blocks serving requests until Shutdown or a listener error.
func (s *Server) ListenAndServe() error {
	s.log.Info("query api listening", zap.String("addr", s.server.Addr))

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return errors.Wrap(errors.ErrCodeUnknown, "query api failed", err)
	}

	return nil
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()

	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStrategies(w http.ResponseWriter, r *http.Request) {
	filter := store.StrategyFilter{
		Instrument: nil,
		Since:      nil,
	}

	if instrument := r.URL.Query().Get("instrument"); instrument != "" {
		filter.Instrument = optional.Some(instrument)
	}

	if since := r.URL.Query().Get("since"); since != "" {
		parsed, err := time.Parse(time.DateOnly, since)
		if err != nil {
			writeError(w, http.StatusBadRequest, "since must be YYYY-MM-DD")

			return
		}

		filter.Since = optional.Some(parsed.UTC())
	}

	strategies, err := s.store.ListStrategies(r.Context(), filter)
	if err != nil {
		s.log.Error("strategy query failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "strategy query failed")

		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"count":      len(strategies),
		"strategies": strategies,
	})
}

func (s *Server) handlePositions(w http.ResponseWriter, r *http.Request) {
	filter := store.PositionFilter{
		Instrument: nil,
		Status:     nil,
	}

	if instrument := r.URL.Query().Get("instrument"); instrument != "" {
		filter.Instrument = optional.Some(instrument)
	}

	if status := r.URL.Query().Get("status"); status != "" {
		parsed := types.PositionStatus(status)
		if parsed != types.PositionStatusOpen && parsed != types.PositionStatusClosed {
			writeError(w, http.StatusBadRequest, "status must be OPEN or CLOSED")

			return
		}

		filter.Status = optional.Some(parsed)
	}

	positions, err := s.store.ListPositions(r.Context(), filter)
	if err != nil {
		s.log.Error("position query failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "position query failed")

		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"count":     len(positions),
		"positions": positions,
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
