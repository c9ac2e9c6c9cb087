package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"imagereview/internal/handler"
	"imagereview/internal/httputil"
	authmw "imagereview/internal/transport/http/middleware"
)

// RouterConfig holds the dependencies needed to create routes
type RouterConfig struct {
	CommentHandler *handler.CommentHandler
	LiveHandler    *handler.LiveHandler
	JWTSecret      string
}

// NewRouter creates and configures a new Chi router with all route groups
func NewRouter(cfg RouterConfig) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	// Protected routes - require authentication
	r.Group(func(r chi.Router) {
		r.Use(authmw.AuthMiddleware(cfg.JWTSecret))
		r.Use(authmw.ConnectionMiddleware)

		r.Route("/comments", func(r chi.Router) {
			r.Get("/", cfg.CommentHandler.List)
			r.Post("/", cfg.CommentHandler.Create)
			r.Get("/live", cfg.LiveHandler.Stream)
		})
	})

	return r
}
