package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"hmsinventory/m/domain"
	"hmsinventory/m/internal/inventory"
	"hmsinventory/m/internal/store"
)

func (h *Handler) createItem(w http.ResponseWriter, r *http.Request) {
	if !h.requireActor(w, r, domain.Actor.CanEditCatalog) {
		return
	}
	var req inventory.ItemInput
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	item, err := h.svc.CreateItem(r.Context(), req)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, item)
}

func (h *Handler) listItems(w http.ResponseWriter, r *http.Request) {
	limit, err := intParam(r, "limit", 0)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	offset, err := intParam(r, "offset", 0)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	query := r.URL.Query()
	items, err := h.svc.ListItems(r.Context(), store.ItemFilter{
		Category:   domain.Category(query.Get("category")),
		ActiveOnly: query.Get("active") == "true",
		Limit:      limit,
		Offset:     offset,
	})
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, items)
}

func (h *Handler) getItem(w http.ResponseWriter, r *http.Request) {
	detail, err := h.svc.GetItem(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, detail)
}

func (h *Handler) updateItem(w http.ResponseWriter, r *http.Request) {
	if !h.requireActor(w, r, domain.Actor.CanEditCatalog) {
		return
	}
	var req inventory.ItemInput
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Code != "" {
		respondError(w, http.StatusBadRequest, "item code cannot be changed")
		return
	}
	item, err := h.svc.UpdateItem(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, item)
}

func (h *Handler) deactivateItem(w http.ResponseWriter, r *http.Request) {
	if !h.requireActor(w, r, domain.Actor.CanEditCatalog) {
		return
	}
	item, err := h.svc.DeactivateItem(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, item)
}

func (h *Handler) activateItem(w http.ResponseWriter, r *http.Request) {
	if !h.requireActor(w, r, domain.Actor.CanEditCatalog) {
		return
	}
	item, err := h.svc.ActivateItem(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, item)
}

func (h *Handler) listBatches(w http.ResponseWriter, r *http.Request) {
	views, err := h.svc.ListBatches(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, views)
}

func (h *Handler) listMovements(w http.ResponseWriter, r *http.Request) {
	limit, err := intParam(r, "limit", 100)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	offset, err := intParam(r, "offset", 0)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	movements, err := h.svc.ListMovements(r.Context(), chi.URLParam(r, "id"), limit, offset)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, movements)
}

func (h *Handler) reconcileItem(w http.ResponseWriter, r *http.Request) {
	rec, err := h.svc.Reconcile(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, rec)
}

func (h *Handler) movementsByReference(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	movements, err := h.svc.MovementsForReference(r.Context(), query.Get("reference_type"), query.Get("reference_id"))
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, movements)
}
