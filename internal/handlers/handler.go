// Package handlers exposes the retrieval engine over a JSON HTTP API.
package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/packrat-app/packrat/internal/datasets"
	"github.com/packrat-app/packrat/internal/logger"
	"github.com/packrat-app/packrat/internal/narrative"
	"github.com/packrat-app/packrat/internal/search"
)

type Handler struct {
	Datasets  *datasets.Manager
	Search    search.Engine
	Narrative *narrative.Store
	Log       *logger.Logger
}

func NewHandler(dm *datasets.Manager, se search.Engine, ns *narrative.Store, log *logger.Logger) *Handler {
	if log == nil {
		log = logger.Default()
	}
	return &Handler{
		Datasets:  dm,
		Search:    se,
		Narrative: ns,
		Log:       log.WithComponent("http"),
	}
}

func (h *Handler) respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.Log.Error("Failed to encode response", "error", err)
	}
}

func (h *Handler) respondError(w http.ResponseWriter, status int, msg string) {
	h.respondJSON(w, status, map[string]string{"error": msg})
}
