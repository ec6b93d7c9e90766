package server

import (
	"net/http"
)

func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealth)

	mux.HandleFunc("GET /registry", s.handleRegistry)
	mux.HandleFunc("GET /registry/{path...}", s.handleRegistryPath)

	mux.HandleFunc("POST /sessions", s.handleCreateSession)
	mux.HandleFunc("GET /sessions/{id}", s.handleGetSession)
	mux.HandleFunc("DELETE /sessions/{id}", s.handleDeleteSession)
	mux.HandleFunc("POST /sessions/{id}/data", s.handleUpload)
	mux.HandleFunc("GET /sessions/{id}/data", s.handlePreview)
	mux.HandleFunc("POST /sessions/{id}/types", s.handleTypes)
	mux.HandleFunc("POST /sessions/{id}/index", s.handleIndex)
	mux.HandleFunc("POST /sessions/{id}/transform", s.handleTransform)
	mux.HandleFunc("POST /sessions/{id}/fit", s.handleFit)
	mux.HandleFunc("GET /sessions/{id}/summary", s.handleSummary)
	mux.HandleFunc("GET /sessions/{id}/plots/{kind}", s.handlePlot)
	mux.HandleFunc("GET /sessions/{id}/package", s.handlePackage)
	mux.HandleFunc("POST /sessions/{id}/save", s.handleSave)

	mux.HandleFunc("GET /models", s.handleListModels)
	mux.HandleFunc("GET /models/{name}", s.handleGetModel)
	mux.HandleFunc("DELETE /models/{name}", s.handleDeleteModel)

	return mux
}
