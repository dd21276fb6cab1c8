// Package api exposes the HTTP surface: item intake, match triggering
// and match listing. Intake enqueues auto-match asynchronously so a
// matching failure can never fail the report.
package api

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/foundly/foundly/internal/automatch"
	"github.com/foundly/foundly/internal/detect"
	"github.com/foundly/foundly/internal/store"
)

// Config holds the HTTP server settings.
type Config struct {
	Host string
	Port int
}

// Server wires the router, stores and the auto-match queue.
type Server struct {
	config     Config
	items      store.ItemStore
	matches    store.MatchStore
	orc        *automatch.Orchestrator
	queue      *automatch.Queue
	detector   *detect.Client
	log        *logrus.Logger
	router     *mux.Router
	httpServer *http.Server
}

// NewServer creates the server and its routes.
func NewServer(cfg Config, items store.ItemStore, matches store.MatchStore, orc *automatch.Orchestrator, queue *automatch.Queue, log *logrus.Logger) *Server {
	s := &Server{
		config:  cfg,
		items:   items,
		matches: matches,
		orc:     orc,
		queue:   queue,
		log:     log,
	}
	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

func (s *Server) setupRoutes() {
	s.router = mux.NewRouter()
	s.router.Use(s.requestLogging)

	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")

	api := s.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/items", s.handleCreateItem).Methods("POST")
	api.HandleFunc("/items/{id}", s.handleGetItem).Methods("GET")
	api.HandleFunc("/items/{id}/match", s.handleRunMatch).Methods("POST")
	api.HandleFunc("/items/{id}/matches", s.handleListMatches).Methods("GET")
	api.HandleFunc("/matches/{id}/status", s.handleMatchStatus).Methods("PUT")
}

// SetDetector enables image-label enrichment at intake. Optional; a nil
// detector leaves reports as submitted.
func (s *Server) SetDetector(d *detect.Client) {
	s.detector = d
}

// Router exposes the handler tree for tests.
func (s *Server) Router() http.Handler {
	return s.router
}

// Start serves until SIGINT/SIGTERM, then drains the match queue and
// shuts the listener down gracefully.
func (s *Server) Start() error {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		s.log.WithField("addr", s.httpServer.Addr).Info("server listening")
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.log.WithError(err).Error("server error")
		}
	}()

	<-stop
	s.log.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.log.WithError(err).Error("server shutdown error")
	}
	s.queue.Close()
	s.log.Info("server stopped")
	return nil
}

func (s *Server) requestLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.log.WithFields(logrus.Fields{
			"method":   r.Method,
			"path":     r.URL.Path,
			"duration": time.Since(start).String(),
		}).Debug("request handled")
	})
}
