package api

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/dasarishourya007-oss/vArogra-sub000/domain"
)

type customerRequest struct {
	Name   string  `json:"name"`
	Phone  string  `json:"phone"`
	Age    *int    `json:"age,omitempty"`
	Gender *string `json:"gender,omitempty"`
}

func (h *Handler) findCustomers(w http.ResponseWriter, r *http.Request) {
	customers, err := h.customers.Find(r.Context(), pharmacyIDFromContext(r), r.URL.Query().Get("query"))
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	if customers == nil {
		customers = []domain.Customer{}
	}
	respondJSON(w, http.StatusOK, customers)
}

func (h *Handler) registerCustomer(w http.ResponseWriter, r *http.Request) {
	var req customerRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	c, err := h.customers.Register(r.Context(), pharmacyIDFromContext(r), req.Name, req.Phone, req.Age, req.Gender)
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, c)
}

func (h *Handler) customerInPharmacy(r *http.Request) (domain.Customer, error) {
	id := chi.URLParam(r, "id")
	c, err := h.customers.Get(r.Context(), id)
	if err != nil {
		return domain.Customer{}, err
	}
	if c.PharmacyID != pharmacyIDFromContext(r) {
		return domain.Customer{}, fmt.Errorf("customer %s: %w", id, domain.ErrNotFound)
	}
	return c, nil
}

func (h *Handler) getCustomer(w http.ResponseWriter, r *http.Request) {
	c, err := h.customerInPharmacy(r)
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, c)
}

func (h *Handler) customerHistory(w http.ResponseWriter, r *http.Request) {
	c, err := h.customerInPharmacy(r)
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	history, err := h.customers.History(r.Context(), c.ID)
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	if history == nil {
		history = []domain.HistoryEntry{}
	}
	respondJSON(w, http.StatusOK, history)
}
