package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/dasarishourya007-oss/vArogra-sub000/domain"
	"github.com/dasarishourya007-oss/vArogra-sub000/internal/billing"
	"github.com/dasarishourya007-oss/vArogra-sub000/internal/checkout"
)

type billResponse struct {
	billing.Snapshot
	CheckoutState checkout.State `json:"checkout_state"`
}

func (h *Handler) billView(b *billing.Bill) billResponse {
	return billResponse{Snapshot: b.Snapshot(), CheckoutState: h.checkout.State(b.ID())}
}

func (h *Handler) bill(r *http.Request) (*billing.Bill, error) {
	return h.bills.Get(pharmacyIDFromContext(r), chi.URLParam(r, "id"))
}

func (h *Handler) openBill(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Flow domain.Flow `json:"flow"`
	}
	if r.ContentLength != 0 {
		if err := decodeJSON(r, &req); err != nil {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
	}
	if req.Flow == "" {
		req.Flow = domain.FlowPOS
	}
	if req.Flow != domain.FlowPOS && req.Flow != domain.FlowDelivery {
		respondError(w, http.StatusBadRequest, "flow must be pos or delivery")
		return
	}
	userID := userIDFromContext(r)
	b := h.bills.Open(pharmacyIDFromContext(r), req.Flow, &userID)
	respondJSON(w, http.StatusCreated, h.billView(b))
}

func (h *Handler) getBill(w http.ResponseWriter, r *http.Request) {
	b, err := h.bill(r)
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, h.billView(b))
}

// discardBill clears the bill and forgets it. A bill that is checking out
// cannot be discarded.
func (h *Handler) discardBill(w http.ResponseWriter, r *http.Request) {
	b, err := h.bill(r)
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	if err := b.Discard(); err != nil {
		h.respondErr(w, r, err)
		return
	}
	if err := h.bills.Close(b.PharmacyID(), b.ID()); err != nil {
		h.respondErr(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type lineRequest struct {
	ItemID   string          `json:"item_id"`
	Unit     domain.SaleUnit `json:"unit"`
	Quantity int             `json:"quantity"`
}

func (h *Handler) addBillLine(w http.ResponseWriter, r *http.Request) {
	b, err := h.bill(r)
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	var req lineRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Unit == "" {
		req.Unit = domain.UnitPack
	}
	if _, err := b.AddLine(r.Context(), req.ItemID, req.Unit, req.Quantity); err != nil {
		h.respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, h.billView(b))
}

func (h *Handler) updateBillLine(w http.ResponseWriter, r *http.Request) {
	b, err := h.bill(r)
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	var req struct {
		Quantity int `json:"quantity"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if _, err := b.UpdateQuantity(chi.URLParam(r, "lineID"), req.Quantity); err != nil {
		h.respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, h.billView(b))
}

func (h *Handler) removeBillLine(w http.ResponseWriter, r *http.Request) {
	b, err := h.bill(r)
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	if err := b.RemoveLine(chi.URLParam(r, "lineID")); err != nil {
		h.respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, h.billView(b))
}

type billCustomerRequest struct {
	CustomerID string `json:"customer_id,omitempty"`
	Name       string `json:"name,omitempty"`
	Phone      string `json:"phone,omitempty"`
}

// setBillCustomer links a registered customer by id, or records a walk-in
// buyer by name and phone.
func (h *Handler) setBillCustomer(w http.ResponseWriter, r *http.Request) {
	b, err := h.bill(r)
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	var req billCustomerRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if id := strings.TrimSpace(req.CustomerID); id != "" {
		c, err := h.customers.Get(r.Context(), id)
		if err == nil {
			err = b.LinkCustomer(c)
		}
		if err != nil {
			h.respondErr(w, r, err)
			return
		}
	} else if err := b.SetCustomer(req.Name, req.Phone); err != nil {
		h.respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, h.billView(b))
}

func (h *Handler) checkoutBill(w http.ResponseWriter, r *http.Request) {
	b, err := h.bill(r)
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	res, err := h.checkout.Checkout(r.Context(), b)
	if err != nil {
		var stockErr *domain.InsufficientStockError
		if errors.As(err, &stockErr) {
			respondJSON(w, http.StatusConflict, map[string]any{
				"error":     err.Error(),
				"state":     res.State,
				"item_id":   stockErr.ItemID,
				"requested": stockErr.Requested,
				"available": stockErr.Available,
			})
			return
		}
		h.respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}
