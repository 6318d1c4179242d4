// Package server exposes the log browser over HTTP and WebSocket.
package server

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/Nao-Mk2/aws-log-browser/internal/debounce"
	"github.com/Nao-Mk2/aws-log-browser/internal/selection"
	"github.com/Nao-Mk2/aws-log-browser/internal/store"
)

// Config configures a Server.
type Config struct {
	Backend selection.Backend
	// Store is optional; export routes are only mounted when set.
	Store store.Store

	Debounce       time.Duration
	SearchLimit    int
	RowSize        int
	Overscan       int
	Extent         int
	AllowedOrigins []string
	RequestTimeout time.Duration

	// Scheduler drives the filter debouncers; nil uses real timers.
	Scheduler debounce.Scheduler
}

// Server serves one interactive browsing session over HTTP and WebSocket.
type Server struct {
	config *Config
	router *chi.Mux
	server *http.Server
	coord  *selection.Coordinator
	hub    *Hub

	groupQuery  *debounce.Debouncer
	streamQuery *debounce.Debouncer
	unsubscribe func()
}

// New builds the router and session. Call Start to listen.
func New(cfg *Config) *Server {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 60 * time.Second
	}
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
	}))

	coord := selection.New(cfg.Backend)
	hub := NewHub(newSnapshot(coord.Snapshot()))
	go hub.Run()

	var opts []debounce.Option
	if cfg.Scheduler != nil {
		opts = append(opts, debounce.WithScheduler(cfg.Scheduler))
	}

	srv := &Server{
		config:      cfg,
		router:      r,
		coord:       coord,
		hub:         hub,
		groupQuery:  debounce.New(cfg.Debounce, coord.SetGroupQuery, opts...),
		streamQuery: debounce.New(cfg.Debounce, coord.SetStreamQuery, opts...),
	}
	srv.unsubscribe = coord.Subscribe(func(st selection.State) {
		hub.Broadcast(newSnapshot(st))
	})

	srv.setupRoutes()

	return srv
}

func (s *Server) setupRoutes() {
	s.router.Group(func(r chi.Router) {
		// the websocket outlives any request deadline
		r.Use(middleware.Timeout(s.config.RequestTimeout))

		r.Route("/api", func(r chi.Router) {
			r.Get("/health", s.handleHealth)

			r.Get("/groups", s.handleListGroups)
			r.Put("/groups/{group}/streams", s.handleListStreams)
			r.Post("/search", s.handleSearch)

			r.Route("/session", func(r chi.Router) {
				r.Get("/", s.handleSnapshot)
				r.Post("/refresh", s.handleRefresh)
				r.Post("/group", s.handleSelectGroup)
				r.Post("/stream", s.handleSelectStream)
				r.Post("/query", s.handleQuery)
				r.Post("/filter", s.handleFilterPattern)
				r.Post("/range", s.handleTimeRange)
				r.Post("/search", s.handleSessionSearch)
				r.Post("/pivot", s.handlePivot)
				r.Post("/clear", s.handleClear)
				r.Get("/view/{list}", s.handleView)
				if s.config.Store != nil {
					r.Post("/export", s.handleExport)
				}
			})

			if s.config.Store != nil {
				r.Get("/exports", s.handleListExports)
				r.Get("/exports/{id}", s.handleGetExport)
			}
		})
	})

	s.router.Get("/ws/session", s.handleWebSocket)
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Coordinator returns the session coordinator.
func (s *Server) Coordinator() *selection.Coordinator {
	return s.coord
}

// Start listens on addr until Stop is called.
func (s *Server) Start(addr string) error {
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	log.Printf("Listening on %s", addr)
	return s.server.ListenAndServe()
}

// Stop shuts the server down and releases the session.
func (s *Server) Stop() error {
	s.groupQuery.Close()
	s.streamQuery.Close()
	s.unsubscribe()
	s.hub.Stop()
	if s.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}
