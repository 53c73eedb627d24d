package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter assembles the API routes. Mutating endpoints check the admin
// token; /train requires it outright.
func NewRouter(h *Handler, adminToken string) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
	}))

	r.Get("/health", h.Health)
	r.Post("/recognize", h.Recognize)
	r.Get("/users", h.ListUsers)
	r.Get("/models", h.ListModels)

	r.Group(func(r chi.Router) {
		r.Use(CheckToken(adminToken))
		r.Post("/add-user/{username}", h.AddUser)
		r.Delete("/users/{username}", h.DeleteUser)
	})

	r.Group(func(r chi.Router) {
		r.Use(RequireToken(adminToken))
		r.Post("/train", h.Train)
	})

	return r
}
