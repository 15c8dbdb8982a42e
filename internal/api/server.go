package api

import (
	"io/fs"
	"net/http"
)

type Server struct {
	mux      *http.ServeMux
	handlers *Handlers
}

func NewServer(handlers *Handlers, staticFS fs.FS) *Server {
	s := &Server{
		mux:      http.NewServeMux(),
		handlers: handlers,
	}
	s.setupRoutes(staticFS)
	return s
}

func (s *Server) setupRoutes(staticFS fs.FS) {
	s.mux.HandleFunc("GET /api/status", s.handlers.GetStatus)

	// Directory
	s.mux.HandleFunc("GET /api/endpoints", s.handlers.GetEndpoints)
	s.mux.HandleFunc("POST /api/endpoints", s.handlers.CreateEndpoint)
	s.mux.HandleFunc("DELETE /api/endpoints/{name}", s.handlers.DeleteEndpoint)
	s.mux.HandleFunc("GET /api/projects", s.handlers.GetProjects)
	s.mux.HandleFunc("POST /api/projects", s.handlers.CreateProject)
	s.mux.HandleFunc("DELETE /api/projects/{name}", s.handlers.DeleteProject)

	// Sessions
	s.mux.HandleFunc("POST /api/sessions", s.handlers.CreateSession)
	s.mux.HandleFunc("DELETE /api/sessions/{id}", s.handlers.DeleteSession)
	s.mux.HandleFunc("GET /api/sessions/{id}/view", s.handlers.GetView)
	s.mux.HandleFunc("POST /api/sessions/{id}/project", s.handlers.SelectProject)
	s.mux.HandleFunc("POST /api/sessions/{id}/nav", s.handlers.Navigate)
	s.mux.HandleFunc("POST /api/sessions/{id}/reload", s.handlers.Reload)
	s.mux.HandleFunc("POST /api/sessions/{id}/attributes", s.handlers.EditAttributes)
	s.mux.HandleFunc("POST /api/sessions/{id}/attributes/save", s.handlers.SaveAttributes)
	s.mux.HandleFunc("GET /api/sessions/{id}/active", s.handlers.GetActive)

	// Archive
	s.mux.HandleFunc("GET /api/archive/{device}/{sensor}", s.handlers.GetHistory)

	// Push
	s.mux.HandleFunc("GET /api/sessions/{id}/events", s.handlers.HandleSSE)
	s.mux.HandleFunc("GET /api/sessions/{id}/ws", s.handlers.HandleWebSocket)

	// Static files
	staticHandler := http.FileServer(http.FS(staticFS))
	s.mux.Handle("GET /static/", staticHandler)

	// Index page
	s.mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		http.ServeFileFS(w, r, staticFS, "templates/index.html")
	})
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}
