package handler

import (
	_ "embed"
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

//go:embed static/index.html
var indexHTML []byte

// PageHandler serves the roster form page.
type PageHandler struct {
	logger *zap.Logger
}

// NewPageHandler creates a new PageHandler instance.
func NewPageHandler(logger *zap.Logger) *PageHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PageHandler{logger: logger}
}

// RegisterRoutes registers the page route with the router.
func (h *PageHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/", h.Index).Methods(http.MethodGet)
}

// Index handles GET / requests.
func (h *PageHandler) Index(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(indexHTML); err != nil {
		h.logger.Debug("failed to write page", zap.Error(err))
	}
}
