package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

func (s *Server) setupRoutes(r chi.Router) {
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	r.Group(func(r chi.Router) {
		r.Use(s.authenticate)

		// Node pages
		r.Get("/projects", s.handleOverview)
		r.Get("/projects/{project}", s.handleNode)
		r.Get("/projects/{project}/{component}", s.handleNode)
		r.Get("/projects/{project}/{component}/{lang}", s.handleNode)

		// Edits
		r.Post("/edit/{project}/{component}/{lang}", s.handleEdit)

		// History and live outcomes
		r.Get("/history", s.handleHistory)
		r.Get("/history/{id}", s.handleRun)
		r.Get("/events", s.handleEvents)

		// Operations: commit, update, push, reset
		r.Post("/{op}/{project}", s.handleOperation)
		r.Post("/{op}/{project}/{component}", s.handleOperation)
		r.Post("/{op}/{project}/{component}/{lang}", s.handleOperation)
	})
}
