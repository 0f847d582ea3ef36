package api

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/dasarishourya007-oss/vArogra-sub000/domain"
	"github.com/dasarishourya007-oss/vArogra-sub000/internal/catalog"
)

// minQueryLength is the shortest search term worth a lookup.
const minQueryLength = 2

type medicineRequest struct {
	BrandName            string          `json:"brand_name"`
	GenericName          string          `json:"generic_name"`
	Composition          string          `json:"composition"`
	Category             string          `json:"category"`
	Form                 string          `json:"form"`
	Manufacturer         string          `json:"manufacturer"`
	PackPrice            decimal.Decimal `json:"pack_price"`
	PackSize             int             `json:"pack_size"`
	RequiresPrescription bool            `json:"requires_prescription"`
	ExpiryDate           string          `json:"expiry_date,omitempty"`
}

func (req medicineRequest) toMedicine(pharmacyID string) (domain.Medicine, error) {
	form, ok := domain.ParseForm(req.Form)
	if !ok {
		return domain.Medicine{}, domain.Validationf("unknown form %q", req.Form)
	}
	m := domain.Medicine{
		PharmacyID:           pharmacyID,
		BrandName:            req.BrandName,
		GenericName:          req.GenericName,
		Composition:          req.Composition,
		Category:             req.Category,
		Form:                 form,
		Manufacturer:         req.Manufacturer,
		PackPrice:            req.PackPrice,
		PackSize:             req.PackSize,
		RequiresPrescription: req.RequiresPrescription,
	}
	if req.ExpiryDate != "" {
		expiry, err := time.Parse("2006-01-02", req.ExpiryDate)
		if err != nil {
			return domain.Medicine{}, domain.Validationf("expiry_date must be YYYY-MM-DD")
		}
		m.ExpiryDate = &expiry
	}
	return m, nil
}

func (h *Handler) searchCatalog(w http.ResponseWriter, r *http.Request) {
	pharmacyID := pharmacyIDFromContext(r)
	query := strings.TrimSpace(r.URL.Query().Get("query"))
	if r.URL.Query().Get("all") == "true" {
		items, err := h.catalog.List(r.Context(), pharmacyID)
		if err != nil {
			h.respondErr(w, r, err)
			return
		}
		respondJSON(w, http.StatusOK, items)
		return
	}
	if len([]rune(query)) < minQueryLength {
		respondJSON(w, http.StatusOK, []domain.Medicine{})
		return
	}
	items, err := h.catalog.Search(r.Context(), pharmacyID, query)
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, items)
}

// medicineInPharmacy loads an item and hides items of other pharmacies.
func (h *Handler) medicineInPharmacy(r *http.Request, id string) (domain.Medicine, error) {
	m, err := h.catalog.Get(r.Context(), id)
	if err != nil {
		return domain.Medicine{}, err
	}
	if m.PharmacyID != pharmacyIDFromContext(r) {
		return domain.Medicine{}, fmt.Errorf("medicine %s: %w", id, domain.ErrNotFound)
	}
	return m, nil
}

func (h *Handler) getMedicine(w http.ResponseWriter, r *http.Request) {
	m, err := h.medicineInPharmacy(r, chi.URLParam(r, "id"))
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, m)
}

func (h *Handler) createMedicine(w http.ResponseWriter, r *http.Request) {
	if !h.requireRole(w, r, domain.RoleOwner) {
		return
	}
	var req medicineRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	m, err := req.toMedicine(pharmacyIDFromContext(r))
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	saved, err := h.catalog.Upsert(r.Context(), m)
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, saved)
}

func (h *Handler) updateMedicine(w http.ResponseWriter, r *http.Request) {
	if !h.requireRole(w, r, domain.RoleOwner) {
		return
	}
	id := chi.URLParam(r, "id")
	var req medicineRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	m, err := req.toMedicine(pharmacyIDFromContext(r))
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	if _, err := h.medicineInPharmacy(r, id); err != nil {
		h.respondErr(w, r, err)
		return
	}
	m.ID = id
	saved, err := h.catalog.Upsert(r.Context(), m)
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, saved)
}

func (h *Handler) deleteMedicine(w http.ResponseWriter, r *http.Request) {
	if !h.requireRole(w, r, domain.RoleOwner) {
		return
	}
	id := chi.URLParam(r, "id")
	if _, err := h.medicineInPharmacy(r, id); err != nil {
		h.respondErr(w, r, err)
		return
	}
	if err := h.catalog.Remove(r.Context(), id); err != nil {
		h.respondErr(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type stockRequest struct {
	Delta     decimal.Decimal `json:"delta"`
	Reason    string          `json:"reason,omitempty"`
	Reference *string         `json:"reference,omitempty"`
}

func (h *Handler) adjustStock(w http.ResponseWriter, r *http.Request) {
	if !h.requireRole(w, r, domain.RoleOwner) {
		return
	}
	id := chi.URLParam(r, "id")
	var req stockRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if _, err := h.medicineInPharmacy(r, id); err != nil {
		h.respondErr(w, r, err)
		return
	}
	by := userIDFromContext(r)
	m, err := h.catalog.AdjustStock(r.Context(), catalog.Adjustment{
		ItemID:    id,
		Delta:     req.Delta,
		Reason:    req.Reason,
		Reference: req.Reference,
		By:        &by,
	})
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, m)
}

func (h *Handler) stockMovements(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := h.medicineInPharmacy(r, id); err != nil {
		h.respondErr(w, r, err)
		return
	}
	movements, err := h.catalog.Movements(r.Context(), id)
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	if movements == nil {
		movements = []domain.StockMovement{}
	}
	respondJSON(w, http.StatusOK, movements)
}

func (h *Handler) expiringMedicines(w http.ResponseWriter, r *http.Request) {
	days := 0
	if raw := r.URL.Query().Get("days"); raw != "" {
		d, err := strconv.Atoi(raw)
		if err != nil || d < 1 {
			respondError(w, http.StatusBadRequest, "days must be a positive integer")
			return
		}
		days = d
	}
	items, err := h.catalog.ExpiringWithin(r.Context(), pharmacyIDFromContext(r), days)
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	if items == nil {
		items = []domain.Medicine{}
	}
	respondJSON(w, http.StatusOK, items)
}
