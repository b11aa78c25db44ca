package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"hmsinventory/m/domain"
	"hmsinventory/m/internal/inventory"
)

type receiveRequest struct {
	ItemID        string      `json:"item_id"`
	BatchNumber   string      `json:"batch_number"`
	Quantity      int64       `json:"quantity"`
	ExpiryDate    domain.Date `json:"expiry_date"`
	SupplierID    string      `json:"supplier_id,omitempty"`
	ReferenceType string      `json:"reference_type,omitempty"`
	ReferenceID   string      `json:"reference_id,omitempty"`
	Notes         string      `json:"notes,omitempty"`
}

func (h *Handler) receiveStock(w http.ResponseWriter, r *http.Request) {
	if !h.requireActor(w, r, domain.Actor.CanMoveStock) {
		return
	}
	var req receiveRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	res, err := h.svc.Receive(r.Context(), inventory.ReceiveRequest{
		ItemID:        req.ItemID,
		BatchNumber:   req.BatchNumber,
		Quantity:      req.Quantity,
		ExpiryDate:    req.ExpiryDate,
		SupplierID:    req.SupplierID,
		ReferenceType: req.ReferenceType,
		ReferenceID:   req.ReferenceID,
		ActorID:       actorID(r),
		Notes:         req.Notes,
	})
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, res)
}

type dispenseRequest struct {
	ItemID        string `json:"item_id"`
	Quantity      int64  `json:"quantity"`
	BatchID       string `json:"batch_id,omitempty"`
	ReferenceType string `json:"reference_type,omitempty"`
	ReferenceID   string `json:"reference_id,omitempty"`
	Notes         string `json:"notes,omitempty"`
}

func (h *Handler) dispenseStock(w http.ResponseWriter, r *http.Request) {
	if !h.requireActor(w, r, domain.Actor.CanMoveStock) {
		return
	}
	var req dispenseRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	res, err := h.svc.Dispense(r.Context(), inventory.DispenseRequest{
		ItemID:        req.ItemID,
		Quantity:      req.Quantity,
		BatchID:       req.BatchID,
		ReferenceType: req.ReferenceType,
		ReferenceID:   req.ReferenceID,
		ActorID:       actorID(r),
		Notes:         req.Notes,
	})
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

type adjustRequest struct {
	ItemID        string `json:"item_id"`
	BatchID       string `json:"batch_id,omitempty"`
	Delta         int64  `json:"delta"`
	Reason        string `json:"reason"`
	ReferenceType string `json:"reference_type,omitempty"`
	ReferenceID   string `json:"reference_id,omitempty"`
}

func (h *Handler) adjustStock(w http.ResponseWriter, r *http.Request) {
	if !h.requireActor(w, r, domain.Actor.CanMoveStock) {
		return
	}
	var req adjustRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	m, err := h.svc.Adjust(r.Context(), inventory.AdjustRequest{
		ItemID:        req.ItemID,
		BatchID:       req.BatchID,
		Delta:         req.Delta,
		Reason:        req.Reason,
		ReferenceType: req.ReferenceType,
		ReferenceID:   req.ReferenceID,
		ActorID:       actorID(r),
	})
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, m)
}

type returnRequest struct {
	ItemID        string `json:"item_id"`
	BatchID       string `json:"batch_id,omitempty"`
	Quantity      int64  `json:"quantity"`
	ReferenceType string `json:"reference_type,omitempty"`
	ReferenceID   string `json:"reference_id,omitempty"`
	Notes         string `json:"notes,omitempty"`
}

func (h *Handler) returnStock(w http.ResponseWriter, r *http.Request) {
	if !h.requireActor(w, r, domain.Actor.CanMoveStock) {
		return
	}
	var req returnRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	m, err := h.svc.ReturnStock(r.Context(), inventory.ReturnRequest{
		ItemID:        req.ItemID,
		BatchID:       req.BatchID,
		Quantity:      req.Quantity,
		ReferenceType: req.ReferenceType,
		ReferenceID:   req.ReferenceID,
		ActorID:       actorID(r),
		Notes:         req.Notes,
	})
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, m)
}

func (h *Handler) expireBatch(w http.ResponseWriter, r *http.Request) {
	if !h.requireActor(w, r, domain.Actor.CanMoveStock) {
		return
	}
	res, err := h.svc.ExpireOff(r.Context(), chi.URLParam(r, "id"), actorID(r))
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

func (h *Handler) lowStockAlerts(w http.ResponseWriter, r *http.Request) {
	alerts, err := h.svc.LowStock(r.Context())
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, alerts)
}

func (h *Handler) expiringAlerts(w http.ResponseWriter, r *http.Request) {
	days, err := intParam(r, "days", h.horizon)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	batches, err := h.svc.ExpiringBatches(r.Context(), days)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"horizon_days": days,
		"batches":      batches,
	})
}
