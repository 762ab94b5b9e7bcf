package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/CrowderSoup/taskmaster/services"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

const (
	apiName    = "TaskMaster API"
	apiVersion = "1.0.0"
)

// Pinger reports storage health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps is everything the router needs to serve requests.
type Deps struct {
	Auth    *services.AuthService
	Boards  *services.BoardService
	Tasks   *services.TaskService
	Limiter Limiter // optional
	Store   Pinger
	Log     *logrus.Logger
}

// NewRouter wires every route. API routes live under prefix; health and index
// stay at the root.
func NewRouter(prefix string, d Deps) *mux.Router {
	authHandler := NewAuthHandler(d.Auth)
	boardHandler := NewBoardHandler(d.Boards)
	taskHandler := NewTaskHandler(d.Tasks)
	authMiddleware := NewAuthMiddleware(d.Auth)

	r := mux.NewRouter()
	r.Use(RequestLogger(d.Log))
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "Route not found"})
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: "Method not allowed"})
	})

	r.HandleFunc("/", index).Methods("GET")
	r.HandleFunc("/health", health(d.Store)).Methods("GET")

	api := r
	if prefix != "" {
		api = r.PathPrefix(prefix).Subrouter()
	}

	// Public auth routes
	public := api.NewRoute().Subrouter()
	public.Use(RateLimit(d.Limiter))
	public.HandleFunc("/register", authHandler.Register).Methods("POST")
	public.HandleFunc("/login", authHandler.Login).Methods("POST")
	api.HandleFunc("/refresh", authHandler.Refresh).Methods("POST")

	// Protected routes
	protected := api.NewRoute().Subrouter()
	protected.Use(authMiddleware.Auth)
	protected.HandleFunc("/logout", authHandler.Logout).Methods("POST")

	protected.HandleFunc("/boards", boardHandler.List).Methods("GET")
	protected.HandleFunc("/boards", boardHandler.Create).Methods("POST")
	protected.HandleFunc("/boards/{id}", boardHandler.Get).Methods("GET")
	protected.HandleFunc("/boards/{id}", boardHandler.Update).Methods("PUT")
	protected.HandleFunc("/boards/{id}", boardHandler.Delete).Methods("DELETE")

	protected.HandleFunc("/boards/{id}/tasks", taskHandler.ListByBoard).Methods("GET")
	protected.HandleFunc("/boards/{id}/tasks", taskHandler.Create).Methods("POST")
	protected.HandleFunc("/tasks/{id}", taskHandler.Get).Methods("GET")
	protected.HandleFunc("/tasks/{id}", taskHandler.Update).Methods("PUT")
	protected.HandleFunc("/tasks/{id}", taskHandler.Delete).Methods("DELETE")

	return r
}

func index(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"name":    apiName,
		"version": apiVersion,
	})
}

func health(store Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status, code := "OK", http.StatusOK
		if err := store.Ping(ctx); err != nil {
			LoggerFrom(r.Context()).WithError(err).Warn("health check failed")
			status, code = "UNAVAILABLE", http.StatusServiceUnavailable
		}
		writeJSON(w, code, map[string]string{
			"status":    status,
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
	}
}
