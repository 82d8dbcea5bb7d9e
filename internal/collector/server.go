// Package collector is a reference relay endpoint: it accepts records in
// the relay wire format and keeps them in SQLite.
package collector

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/kazuph/browser-observer/internal/event"
)

const maxBodyBytes = 1 << 20

type incomingEvent struct {
	Observer  string          `json:"observer"`
	EventType string          `json:"event_type"`
	Timestamp string          `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

type Server struct {
	db      *Database
	address string
	token   string
	logger  *slog.Logger
	server  *http.Server
}

// NewServer creates a collector. When token is set, requests to /events
// must carry it as a bearer credential.
func NewServer(db *Database, address, token string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		db:      db,
		address: address,
		token:   token,
		logger:  logger,
	}
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.Write([]byte("ok"))
}

func (s *Server) authorized(request *http.Request) bool {
	if s.token == "" {
		return true
	}
	header := request.Header.Get("Authorization")
	presented, ok := strings.CutPrefix(header, "Bearer ")
	if !ok {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(presented), []byte(s.token)) == 1
}

// requireToken rejects requests without the configured bearer token.
func (s *Server) requireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, request *http.Request) {
		if !s.authorized(request) {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, request)
	})
}

func (s *Server) receiveEvent(w http.ResponseWriter, request *http.Request) {
	var incoming incomingEvent
	if err := json.NewDecoder(http.MaxBytesReader(w, request.Body, maxBodyBytes)).Decode(&incoming); err != nil {
		http.Error(w, "Invalid JSON format", http.StatusBadRequest)
		return
	}
	if incoming.EventType == "" {
		http.Error(w, "event_type is required", http.StatusBadRequest)
		return
	}
	if !event.Type(incoming.EventType).Valid() {
		http.Error(w, "unknown event_type", http.StatusBadRequest)
		return
	}

	id, err := s.db.InsertEvent(StoredEvent{
		Observer:   incoming.Observer,
		EventType:  incoming.EventType,
		Timestamp:  incoming.Timestamp,
		ReceivedAt: time.Now().UTC(),
		Data:       incoming.Data,
	})
	if err != nil {
		s.logger.Error("Database error", "error", err)
		http.Error(w, "Failed to store event", http.StatusInternalServerError)
		return
	}
	s.logger.Debug("Stored event", "id", id, "event_type", incoming.EventType)
	w.WriteHeader(http.StatusNoContent) // success, no body
}

func (s *Server) listEvents(w http.ResponseWriter, request *http.Request) {
	limit := 50
	if raw := request.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > 1000 {
			http.Error(w, "limit must be between 1 and 1000", http.StatusBadRequest)
			return
		}
		limit = n
	}
	events, err := s.db.RecentEvents(limit)
	if err != nil {
		s.logger.Error("Database error", "error", err)
		http.Error(w, "Failed to load events", http.StatusInternalServerError)
		return
	}
	if events == nil {
		events = []StoredEvent{}
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(events)
}

// countEvents reports how many records of each type were received.
func (s *Server) countEvents(w http.ResponseWriter, _ *http.Request) {
	counts, err := s.db.CountByType()
	if err != nil {
		s.logger.Error("Database error", "error", err)
		http.Error(w, "Failed to count events", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(counts)
}

func (s *Server) setupRoutes() *mux.Router {
	router := mux.NewRouter()
	router.HandleFunc("/healthz", s.handleHealthz).Methods(http.MethodGet)

	router.Handle("/events", s.requireToken(http.HandlerFunc(s.receiveEvent))).Methods(http.MethodPost)
	router.Handle("/events", s.requireToken(http.HandlerFunc(s.listEvents))).Methods(http.MethodGet)
	router.Handle("/events/counts", s.requireToken(http.HandlerFunc(s.countEvents))).Methods(http.MethodGet)
	return router
}

// Handler returns the collector routes.
func (s *Server) Handler() http.Handler {
	return s.setupRoutes()
}

// Start listens on the configured address and serves until ctx is done.
func (s *Server) Start(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}
	return s.Serve(ctx, listener)
}

// Serve is Start on an existing listener.
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	s.server = &http.Server{
		Handler:      s.setupRoutes(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}

	errs := make(chan error, 1)
	go func() {
		s.logger.Info("Collector listening", "address", listener.Addr().String())
		if err := s.server.Serve(listener); err != nil && err != http.ErrServerClosed {
			errs <- err
		}
		close(errs)
	}()

	select {
	case err := <-errs:
		return err
	case <-ctx.Done():
	}
	s.logger.Info("Shutting down collector...")

	shutdownContext, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.server.Shutdown(shutdownContext); err != nil {
		return err
	}
	s.logger.Info("Collector exited")
	return nil
}
