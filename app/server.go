package app

import (
	"log"
	"net/http"

	"gedcom-review/pkg/config"
	"gedcom-review/pkg/db"
	"gedcom-review/pkg/feed"
	"gedcom-review/pkg/handlers"
	"gedcom-review/pkg/record"

	"github.com/gorilla/mux"
)

// Server represents the application server
type Server struct {
	router   *mux.Router
	store    *db.PostgresStore
	hub      *feed.Hub
	handlers *handlers.Handlers
	config   *config.Config
}

// NewServer creates a new server instance
func NewServer() *Server {
	// Load configuration
	cfg := config.Load()

	// Initialize PostgreSQL storage
	store, err := db.NewPostgresStore(cfg.GetDatabaseConnectionString())
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	// Shared record cache for the per-request factories. Missing cache is a
	// fatal configuration error, not a per-request condition.
	cache, err := record.NewCache(cfg.RecordCacheSize)
	if err != nil {
		log.Fatalf("Failed to create record cache: %v", err)
	}

	// Moderation event feed
	hub := feed.NewHub()
	go hub.Run()

	// Initialize handlers
	h := handlers.NewHandlers(store, store, hub, handlers.JSONRenderer{})

	// Setup routes
	r := mux.NewRouter()

	// Every request gets a fresh factory registry in its context.
	r.Use(handlers.WithFactories(cache))

	// Tree-scoped pages resolve the {tree} route variable into context.
	trees := r.PathPrefix("/trees/{tree}").Subrouter()
	trees.Use(handlers.WithTree(store))
	trees.HandleFunc("/pending-changes", h.ShowPendingChanges).Methods("GET")

	// Moderation API
	r.HandleFunc("/api/trees", h.ListTrees).Methods("GET")
	r.HandleFunc("/api/changes", h.SubmitChange).Methods("POST")
	r.HandleFunc("/api/changes/{id}/accept", h.AcceptChange).Methods("POST")
	r.HandleFunc("/api/changes/{id}/reject", h.RejectChange).Methods("POST")

	// WebSocket endpoint for live moderation events
	r.HandleFunc("/ws/moderation", h.HandleModerationFeed)

	return &Server{
		router:   r,
		store:    store,
		hub:      hub,
		handlers: h,
		config:   cfg,
	}
}

// Start starts the server
func (s *Server) Start(addr string) error {
	if addr == "" {
		addr = s.config.GetServerAddr()
	}
	log.Printf("Starting pending-changes server on %s", addr)
	// Wrap the router with a top-level CORS middleware so that
	// preflight (OPTIONS) requests are handled before mux does
	// method-based matching (which can otherwise return 405).
	return http.ListenAndServe(addr, corsMiddleware(s.router))
}

// corsMiddleware handles CORS headers and responds to preflight requests
// at the outer layer so they don't get rejected by method-restricted routes.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" {
			// Reflect the origin for stricter CORS (avoids some browser issues with credentials)
			w.Header().Set("Access-Control-Allow-Origin", origin)
		} else {
			w.Header().Set("Access-Control-Allow-Origin", "*")
		}

		// Always advertise the allowed methods
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")

		// If the browser asked for specific headers, echo them back; otherwise allow common headers
		if reqHeaders := r.Header.Get("Access-Control-Request-Headers"); reqHeaders != "" {
			w.Header().Set("Access-Control-Allow-Headers", reqHeaders)
		} else {
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		}

		// Allow caching preflight for a short duration
		w.Header().Set("Access-Control-Max-Age", "600")

		// Inform caches that response varies by Origin and Access-Control-Request-Headers
		w.Header().Add("Vary", "Origin")
		w.Header().Add("Vary", "Access-Control-Request-Headers")

		if r.Method == http.MethodOptions {
			// Respond to preflight immediately
			w.WriteHeader(http.StatusNoContent) // 204
			return
		}

		next.ServeHTTP(w, r)
	})
}

// Close closes the server and database connections
func (s *Server) Close() error {
	return s.store.Close()
}
