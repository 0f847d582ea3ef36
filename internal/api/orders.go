package api

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/dasarishourya007-oss/vArogra-sub000/domain"
	"github.com/dasarishourya007-oss/vArogra-sub000/internal/orders"
	"github.com/dasarishourya007-oss/vArogra-sub000/internal/store"
)

const (
	dateLayout  = "2006-01-02"
	monthLayout = "2006-01"
)

func (h *Handler) listOrders(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := store.OrderFilter{
		PharmacyID: pharmacyIDFromContext(r),
		CustomerID: q.Get("customer_id"),
	}
	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 {
			respondError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		f.Limit = limit
	}
	list, err := h.orders.List(r.Context(), f)
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	if list == nil {
		list = []domain.Order{}
	}
	respondJSON(w, http.StatusOK, list)
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.orders.Get(r.Context(), pharmacyIDFromContext(r), chi.URLParam(r, "id"))
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, o)
}

func (h *Handler) advanceOrderStatus(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Status string `json:"status"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	next, ok := domain.ParseOrderStatus(req.Status)
	if !ok {
		respondError(w, http.StatusBadRequest, fmt.Sprintf("unknown status %q", req.Status))
		return
	}
	o, err := h.orders.AdvanceStatus(r.Context(), pharmacyIDFromContext(r), chi.URLParam(r, "id"), next)
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, o)
}

// Reports

func (h *Handler) dailySales(w http.ResponseWriter, r *http.Request) {
	if !h.requireRole(w, r, domain.RoleOwner) {
		return
	}
	day := time.Now().UTC()
	if raw := r.URL.Query().Get("date"); raw != "" {
		parsed, err := time.Parse(dateLayout, raw)
		if err != nil {
			respondError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
			return
		}
		day = parsed
	}
	sum, err := h.orders.Daily(r.Context(), pharmacyIDFromContext(r), day)
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"date":    day.Format(dateLayout),
		"summary": sum,
	})
}

func (h *Handler) monthlySales(w http.ResponseWriter, r *http.Request) {
	if !h.requireRole(w, r, domain.RoleOwner) {
		return
	}
	month := time.Now().UTC()
	if raw := r.URL.Query().Get("month"); raw != "" {
		parsed, err := time.Parse(monthLayout, raw)
		if err != nil {
			respondError(w, http.StatusBadRequest, "month must be YYYY-MM")
			return
		}
		month = parsed
	}
	sum, err := h.orders.Monthly(r.Context(), pharmacyIDFromContext(r), month)
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"month":   month.Format(monthLayout),
		"summary": sum,
	})
}

// reportRange reads start_date and end_date. The end date is inclusive.
func reportRange(r *http.Request) (from, to time.Time, err error) {
	q := r.URL.Query()
	if raw := q.Get("start_date"); raw != "" {
		if from, err = time.Parse(dateLayout, raw); err != nil {
			return from, to, domain.Validationf("start_date must be YYYY-MM-DD")
		}
	}
	if raw := q.Get("end_date"); raw != "" {
		if to, err = time.Parse(dateLayout, raw); err != nil {
			return from, to, domain.Validationf("end_date must be YYYY-MM-DD")
		}
		to = to.AddDate(0, 0, 1)
	}
	if !from.IsZero() && !to.IsZero() && !from.Before(to) {
		return from, to, domain.Validationf("start_date must not be after end_date")
	}
	return from, to, nil
}

func (h *Handler) loadReport(w http.ResponseWriter, r *http.Request) (orders.Report, bool) {
	if !h.requireRole(w, r, domain.RoleOwner) {
		return orders.Report{}, false
	}
	from, to, err := reportRange(r)
	if err != nil {
		h.respondErr(w, r, err)
		return orders.Report{}, false
	}
	report, err := h.orders.SalesReport(r.Context(), pharmacyIDFromContext(r), from, to)
	if err != nil {
		h.respondErr(w, r, err)
		return orders.Report{}, false
	}
	return report, true
}

func (h *Handler) salesReport(w http.ResponseWriter, r *http.Request) {
	report, ok := h.loadReport(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, report)
}

func (h *Handler) salesReportXLSX(w http.ResponseWriter, r *http.Request) {
	report, ok := h.loadReport(w, r)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="sales-report.xlsx"`)
	if err := orders.ExportXLSX(w, report); err != nil {
		h.logger.Error("failed to export sales report", zap.Error(err))
	}
}
