package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/packrat-app/packrat/internal/attribution"
	"github.com/packrat-app/packrat/internal/domain"
)

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Get("/search", h.SearchContent)
		r.Post("/search/rebuild", h.RebuildIndex)

		r.Get("/datasets", h.ListDatasets)
		r.Get("/datasets/{id}", h.GetDataset)
		r.Post("/datasets/{id}/install", h.InstallDataset)
		r.Delete("/datasets/{id}", h.UninstallDataset)
		r.Get("/regions/installed", h.InstalledRegions)
		r.Get("/storage", h.StorageUsage)

		r.Get("/stories/{storyID}/state", h.GetStoryState)
		r.Put("/stories/{storyID}/state", h.SaveStoryState)
		r.Delete("/stories/{storyID}/state", h.ClearStoryState)

		r.Get("/attribution/{contentID}", h.GetAttribution)
	})
}

func (h *Handler) SearchContent(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	results, err := h.Search.Search(r.Context(), query)
	if err != nil {
		h.Log.Error("Search failed", "query", query, "error", err)
		h.respondError(w, http.StatusInternalServerError, "search failed")
		return
	}
	h.respondJSON(w, http.StatusOK, results)
}

func (h *Handler) RebuildIndex(w http.ResponseWriter, r *http.Request) {
	if err := h.Search.RebuildIndex(r.Context()); err != nil {
		h.Log.Error("Index rebuild failed", "error", err)
		h.respondError(w, http.StatusInternalServerError, "index rebuild failed")
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]string{"status": "rebuilt"})
}

func (h *Handler) ListDatasets(w http.ResponseWriter, r *http.Request) {
	records, err := h.Datasets.List(r.Context())
	if err != nil {
		h.respondError(w, http.StatusInternalServerError, "failed to list datasets")
		return
	}
	h.respondJSON(w, http.StatusOK, records)
}

func (h *Handler) GetDataset(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	record, err := h.Datasets.Get(r.Context(), id)
	if err != nil {
		h.respondError(w, http.StatusInternalServerError, "failed to read dataset record")
		return
	}
	if record == nil {
		h.respondError(w, http.StatusNotFound, "dataset not installed")
		return
	}
	h.respondJSON(w, http.StatusOK, record)
}

// InstallDataset starts an install attempt in the background. The
// downloading record becomes visible immediately; clients poll the
// dataset endpoint for the terminal status.
func (h *Handler) InstallDataset(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	go func() {
		if _, err := h.Datasets.Install(context.Background(), id); err != nil {
			h.Log.Error("Background install failed", "dataset_id", id, "error", err)
		}
	}()

	h.respondJSON(w, http.StatusAccepted, map[string]string{"id": id, "status": "downloading"})
}

func (h *Handler) UninstallDataset(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.Datasets.Uninstall(r.Context(), id); err != nil {
		if errors.Is(err, domain.ErrUnknownDataset) {
			h.respondError(w, http.StatusNotFound, "unknown dataset")
			return
		}
		h.respondError(w, http.StatusInternalServerError, "uninstall failed")
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]string{"id": id, "status": "removed"})
}

func (h *Handler) InstalledRegions(w http.ResponseWriter, r *http.Request) {
	regions, err := h.Datasets.InstalledRegions(r.Context())
	if err != nil {
		h.respondError(w, http.StatusInternalServerError, "failed to list regions")
		return
	}
	h.respondJSON(w, http.StatusOK, regions)
}

func (h *Handler) StorageUsage(w http.ResponseWriter, r *http.Request) {
	usage, err := h.Datasets.StorageUsage(r.Context())
	if err != nil {
		h.respondError(w, http.StatusInternalServerError, "failed to compute storage usage")
		return
	}
	h.respondJSON(w, http.StatusOK, usage)
}

func (h *Handler) GetStoryState(w http.ResponseWriter, r *http.Request) {
	storyID := chi.URLParam(r, "storyID")
	state, err := h.Narrative.GetState(r.Context(), storyID)
	if err != nil {
		h.respondError(w, http.StatusInternalServerError, "failed to read story state")
		return
	}
	if state == nil {
		h.respondError(w, http.StatusNotFound, "no saved state")
		return
	}
	h.respondJSON(w, http.StatusOK, state)
}

func (h *Handler) SaveStoryState(w http.ResponseWriter, r *http.Request) {
	storyID := chi.URLParam(r, "storyID")
	body, err := io.ReadAll(r.Body)
	if err != nil {
		h.respondError(w, http.StatusBadRequest, "failed to read body")
		return
	}
	if err := h.Narrative.SaveState(r.Context(), storyID, string(body)); err != nil {
		h.respondError(w, http.StatusInternalServerError, "failed to save story state")
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]string{"story_id": storyID, "status": "saved"})
}

func (h *Handler) ClearStoryState(w http.ResponseWriter, r *http.Request) {
	storyID := chi.URLParam(r, "storyID")
	if err := h.Narrative.ClearState(r.Context(), storyID); err != nil {
		h.respondError(w, http.StatusInternalServerError, "failed to clear story state")
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]string{"story_id": storyID, "status": "cleared"})
}

func (h *Handler) GetAttribution(w http.ResponseWriter, r *http.Request) {
	contentID := chi.URLParam(r, "contentID")
	h.respondJSON(w, http.StatusOK, attribution.For(contentID))
}
