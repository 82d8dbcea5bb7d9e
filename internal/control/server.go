package control

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"mime"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"github.com/kazuph/browser-observer/internal/config"
	"github.com/kazuph/browser-observer/internal/relay"
	"github.com/kazuph/browser-observer/internal/template"
)

// StatusProvider reports the most recent delivery outcome.
type StatusProvider interface {
	Status() relay.Outcome
}

// StatusResponse is the body of GET /api/status.
type StatusResponse struct {
	relay.Outcome `yaml:",inline"`

	Message    string `json:"message" yaml:"message"`
	Configured bool   `json:"configured" yaml:"configured"`
}

type ackResponse struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// Server is the control HTTP server of a running observer.
type Server struct {
	surface  *Surface
	reloader Notifier
	status   StatusProvider
	page     *template.SettingsPage
	address  string
	debug    bool
	logger   *slog.Logger
	server   *http.Server
}

// NewServer creates a control server. reloader receives the inbound
// "configuration updated" message.
func NewServer(surface *Surface, reloader Notifier, status StatusProvider, address string, debug bool, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		surface:  surface,
		reloader: reloader,
		status:   status,
		page:     template.NewSettingsPage(),
		address:  address,
		debug:    debug,
		logger:   logger,
	}
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.Write([]byte("ok"))
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	current := s.surface.Config(r.Context())
	html, err := s.page.Generate(template.SettingsData{
		RelayURL:   current.URL,
		RelayToken: current.Token,
		Status:     Describe(current),
		Debug:      s.debug,
	})
	if err != nil {
		s.logger.Error("Settings page failed", "error", err)
		http.Error(w, "Failed to render settings page", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write([]byte(html))
}

func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.surface.Config(r.Context()))
}

func (s *Server) handleSaveConfig(w http.ResponseWriter, r *http.Request) {
	// JSON only: cross-site HTML forms cannot send it.
	if mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type")); err != nil || mediaType != "application/json" {
		writeJSON(w, http.StatusUnsupportedMediaType, ackResponse{Status: "error", Error: "Content-Type must be application/json"})
		return
	}
	var relayConfig config.Relay
	if err := json.NewDecoder(r.Body).Decode(&relayConfig); err != nil {
		writeJSON(w, http.StatusBadRequest, ackResponse{Status: "error", Error: "Invalid JSON format"})
		return
	}
	result, err := s.surface.Update(r.Context(), relayConfig)
	if err != nil {
		var verr *config.ValidationError
		if errors.As(err, &verr) {
			writeJSON(w, http.StatusBadRequest, ackResponse{Status: "error", Error: verr.Error()})
			return
		}
		s.logger.Error("Failed to save configuration", "error", err)
		writeJSON(w, http.StatusInternalServerError, ackResponse{Status: "error", Error: "Failed to save configuration"})
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleConfigUpdated(w http.ResponseWriter, r *http.Request) {
	s.logger.Info("Received config update message, reloading configuration")
	ack, err := s.reloader.ConfigUpdated(r.Context())
	if err != nil {
		s.logger.Error("Failed to reload config after message", "error", err)
		writeJSON(w, http.StatusInternalServerError, ackResponse{Status: "Error reloading config", Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, ackResponse{Status: ack})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	outcome := s.status.Status()
	writeJSON(w, http.StatusOK, StatusResponse{
		Outcome:    outcome,
		Message:    outcome.Message(),
		Configured: s.surface.Config(r.Context()).Configured(),
	})
}

func (s *Server) setupRoutes() http.Handler {
	router := mux.NewRouter()
	router.HandleFunc("/", s.handleIndex).Methods(http.MethodGet)
	router.HandleFunc("/healthz", s.handleHealthz).Methods(http.MethodGet)

	api := router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/config", s.handleGetConfig).Methods(http.MethodGet)
	api.HandleFunc("/config", s.handleSaveConfig).Methods(http.MethodPost)
	api.HandleFunc("/config-updated", s.handleConfigUpdated).Methods(http.MethodPost)
	api.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)

	// Browser extension pages may call the API directly.
	c := cors.New(cors.Options{
		AllowedOrigins: []string{"chrome-extension://*", "moz-extension://*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost},
		AllowedHeaders: []string{"Content-Type"},
	})
	return c.Handler(router)
}

// Handler returns the server's routes, for embedding and tests.
func (s *Server) Handler() http.Handler {
	return s.setupRoutes()
}

// Start listens on the configured address and serves until ctx is done,
// then shuts down gracefully.
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
		s.logger.Info("Control server listening", "address", listener.Addr().String())
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

	shutdownContext, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.server.Shutdown(shutdownContext); err != nil {
		return err
	}
	s.logger.Info("Control server stopped")
	return nil
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
