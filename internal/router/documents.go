package router

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/BerylCAtieno/research-paper-api/internal/handlers"
	"github.com/BerylCAtieno/research-paper-api/internal/middleware"
	"github.com/BerylCAtieno/research-paper-api/internal/services"
	"github.com/BerylCAtieno/research-paper-api/internal/utils"
)

func NewRouter(docService services.DocumentService, maxFileSize int64, logger *utils.Logger) http.Handler {
	r := mux.NewRouter()

	// Middlewares
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Recovery(logger))

	docHandler := handlers.NewDocumentHandler(docService, maxFileSize, logger)

	// Full paths on the root router: a PathPrefix subrouter answers a method
	// mismatch with 404 instead of 405.
	const api = "/api/v1"

	// Health check
	r.HandleFunc(api+"/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy"}`))
	}).Methods(http.MethodGet)

	// Document endpoints
	r.HandleFunc(api+"/documents/upload", docHandler.UploadDocument).Methods(http.MethodPost)
	r.HandleFunc(api+"/documents", docHandler.ListDocuments).Methods(http.MethodGet)
	r.HandleFunc(api+"/documents/{id}", docHandler.GetDocument).Methods(http.MethodGet)
	r.HandleFunc(api+"/documents/{id}", docHandler.DeleteDocument).Methods(http.MethodDelete)
	r.HandleFunc(api+"/documents/{id}/content", docHandler.GetDocumentContent).Methods(http.MethodGet)
	r.HandleFunc(api+"/documents/{id}/ask", docHandler.AskQuestion).Methods(http.MethodPost)
	r.HandleFunc(api+"/documents/{id}/pdf", docHandler.GetPDFURL).Methods(http.MethodGet)

	// Preflight requests never match a route, so CORS wraps the whole router.
	return middleware.CORS()(r)
}
