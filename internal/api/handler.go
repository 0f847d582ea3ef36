package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/dasarishourya007-oss/vArogra-sub000/domain"
	"github.com/dasarishourya007-oss/vArogra-sub000/internal/assistant"
	"github.com/dasarishourya007-oss/vArogra-sub000/internal/billing"
	"github.com/dasarishourya007-oss/vArogra-sub000/internal/catalog"
	"github.com/dasarishourya007-oss/vArogra-sub000/internal/checkout"
	"github.com/dasarishourya007-oss/vArogra-sub000/internal/customer"
	"github.com/dasarishourya007-oss/vArogra-sub000/internal/events"
	"github.com/dasarishourya007-oss/vArogra-sub000/internal/orders"
	"github.com/dasarishourya007-oss/vArogra-sub000/internal/store"
)

type ctxKey string

const (
	ctxUserID     ctxKey = "userID"
	ctxRole       ctxKey = "role"
	ctxPharmacyID ctxKey = "pharmacyID"
)

// Deps are the services the HTTP layer exposes. Assistant may be nil.
type Deps struct {
	Store          store.Store
	Catalog        *catalog.Catalog
	Bills          *billing.Book
	Checkout       *checkout.Processor
	Customers      *customer.Registry
	Orders         *orders.Service
	Hub            *events.Hub
	Assistant      *assistant.Client
	Logger         *zap.Logger
	Secret         string
	AllowedOrigins []string
}

// Handler bundles dependencies for HTTP handlers.
type Handler struct {
	store     store.Store
	catalog   *catalog.Catalog
	bills     *billing.Book
	checkout  *checkout.Processor
	customers *customer.Registry
	orders    *orders.Service
	hub       *events.Hub
	assistant *assistant.Client
	logger    *zap.Logger
	secret    string
	origins   []string
}

// New constructs a Handler.
func New(d Deps) *Handler {
	origins := d.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	return &Handler{
		store:     d.Store,
		catalog:   d.Catalog,
		bills:     d.Bills,
		checkout:  d.Checkout,
		customers: d.Customers,
		orders:    d.Orders,
		hub:       d.Hub,
		assistant: d.Assistant,
		logger:    d.Logger,
		secret:    d.Secret,
		origins:   origins,
	}
}

// Router wires up the HTTP API.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: h.origins,
		AllowedMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
		MaxAge:         300,
	}))
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(h.requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/health", h.health)

	r.Route("/auth", func(r chi.Router) {
		r.Post("/register", h.register)
		r.Post("/login", h.login)
		r.Group(func(protected chi.Router) {
			protected.Use(h.authMiddleware)
			protected.Post("/reset-password", h.resetPassword)
		})
	})

	r.Group(func(pr chi.Router) {
		pr.Use(h.authMiddleware)

		pr.Route("/pharmacies", func(r chi.Router) {
			r.Post("/", h.createPharmacy)
			r.Get("/", h.listPharmacies)
			r.Put("/{id}", h.updatePharmacy)
		})

		pr.Group(func(sr chi.Router) {
			sr.Use(h.requirePharmacy)

			sr.Route("/catalog", func(r chi.Router) {
				r.Get("/", h.searchCatalog)
				r.Post("/", h.createMedicine)
				r.Get("/expiring", h.expiringMedicines)
				r.Get("/{id}", h.getMedicine)
				r.Put("/{id}", h.updateMedicine)
				r.Delete("/{id}", h.deleteMedicine)
				r.Post("/{id}/stock", h.adjustStock)
				r.Get("/{id}/movements", h.stockMovements)
			})

			sr.Route("/bills", func(r chi.Router) {
				r.Post("/", h.openBill)
				r.Get("/{id}", h.getBill)
				r.Delete("/{id}", h.discardBill)
				r.Post("/{id}/lines", h.addBillLine)
				r.Patch("/{id}/lines/{lineID}", h.updateBillLine)
				r.Delete("/{id}/lines/{lineID}", h.removeBillLine)
				r.Put("/{id}/customer", h.setBillCustomer)
				r.Post("/{id}/checkout", h.checkoutBill)
			})

			sr.Route("/customers", func(r chi.Router) {
				r.Get("/", h.findCustomers)
				r.Post("/", h.registerCustomer)
				r.Get("/{id}", h.getCustomer)
				r.Get("/{id}/history", h.customerHistory)
			})

			sr.Route("/orders", func(r chi.Router) {
				r.Get("/", h.listOrders)
				r.Get("/{id}", h.getOrder)
				r.Post("/{id}/status", h.advanceOrderStatus)
			})

			sr.Route("/reports", func(r chi.Router) {
				r.Get("/sales/daily", h.dailySales)
				r.Get("/sales/monthly", h.monthlySales)
				r.Get("/sales", h.salesReport)
				r.Get("/sales.xlsx", h.salesReportXLSX)
			})

			sr.Post("/assistant/chat", h.assistantChat)
			sr.Get("/ws/orders", h.orderStream)
		})
	})

	return r
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		defer func() {
			h.logger.Info("request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())),
			)
		}()
		next.ServeHTTP(ww, r)
	})
}

// Authentication helpers

type authClaims struct {
	UserID     string `json:"user_id"`
	Role       string `json:"role"`
	PharmacyID string `json:"pharmacy_id,omitempty"`
	jwt.RegisteredClaims
}

func (h *Handler) generateToken(userID, role, pharmacyID string) (string, error) {
	claims := authClaims{
		UserID:     userID,
		Role:       role,
		PharmacyID: pharmacyID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(24 * time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(h.secret))
}

// bearerToken reads the Authorization header. Websocket upgrades may pass
// the token as ?token= instead.
func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header != "" && strings.HasPrefix(strings.ToLower(header), "bearer ") {
		return strings.TrimSpace(header[len("Bearer "):])
	}
	if strings.EqualFold(r.Header.Get("Upgrade"), "websocket") {
		return r.URL.Query().Get("token")
	}
	return ""
}

func (h *Handler) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenString := bearerToken(r)
		if tokenString == "" {
			respondError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		token, err := jwt.ParseWithClaims(tokenString, &authClaims{}, func(token *jwt.Token) (interface{}, error) {
			if token.Method != jwt.SigningMethodHS256 {
				return nil, errors.New("unexpected signing method")
			}
			return []byte(h.secret), nil
		})
		if err != nil || !token.Valid {
			respondError(w, http.StatusUnauthorized, "invalid token")
			return
		}
		claims, ok := token.Claims.(*authClaims)
		if !ok || claims.UserID == "" {
			respondError(w, http.StatusUnauthorized, "invalid token claims")
			return
		}
		ctx := context.WithValue(r.Context(), ctxUserID, claims.UserID)
		ctx = context.WithValue(ctx, ctxRole, claims.Role)
		ctx = context.WithValue(ctx, ctxPharmacyID, claims.PharmacyID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (h *Handler) requirePharmacy(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if pharmacyIDFromContext(r) == "" {
			respondError(w, http.StatusForbidden, "user is not linked to a pharmacy")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (h *Handler) requireRole(w http.ResponseWriter, r *http.Request, allowed ...string) bool {
	role, _ := r.Context().Value(ctxRole).(string)
	if role == "" {
		respondError(w, http.StatusUnauthorized, "missing role")
		return false
	}
	for _, allowedRole := range allowed {
		if role == allowedRole {
			return true
		}
	}
	respondError(w, http.StatusForbidden, "insufficient permissions")
	return false
}

func userIDFromContext(r *http.Request) string {
	id, _ := r.Context().Value(ctxUserID).(string)
	return id
}

func pharmacyIDFromContext(r *http.Request) string {
	id, _ := r.Context().Value(ctxPharmacyID).(string)
	return id
}

// Auth Handlers

type registerRequest struct {
	Username         string `json:"username"`
	Email            string `json:"email"`
	Password         string `json:"password"`
	Role             string `json:"role"`
	PharmacyID       string `json:"pharmacy_id,omitempty"`
	PharmacyName     string `json:"pharmacy_name,omitempty"`
	PharmacyAddress  string `json:"pharmacy_address,omitempty"`
	PharmacyLocation string `json:"pharmacy_location,omitempty"`
}

type authResponse struct {
	Token    string           `json:"token"`
	User     domain.User      `json:"user"`
	Pharmacy *domain.Pharmacy `json:"pharmacy,omitempty"`
}

func (h *Handler) register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Username == "" || req.Email == "" || req.Password == "" || req.Role == "" {
		respondError(w, http.StatusBadRequest, "username, email, password and role are required")
		return
	}
	if req.Role != domain.RoleOwner && req.Role != domain.RoleEmployee {
		respondError(w, http.StatusBadRequest, "role must be owner or employee")
		return
	}
	if req.Role == domain.RoleOwner && strings.TrimSpace(req.PharmacyName) == "" {
		respondError(w, http.StatusBadRequest, "pharmacy_name is required for owners")
		return
	}
	if req.Role == domain.RoleEmployee {
		if req.PharmacyID == "" {
			respondError(w, http.StatusBadRequest, "pharmacy_id is required for employees")
			return
		}
		if _, err := h.store.Pharmacy(r.Context(), req.PharmacyID); err != nil {
			h.respondErr(w, r, err)
			return
		}
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to secure password")
		return
	}

	now := time.Now().UTC()
	user := domain.User{
		ID:        uuid.New().String(),
		Username:  req.Username,
		Email:     strings.ToLower(strings.TrimSpace(req.Email)),
		Password:  string(hashed),
		Role:      req.Role,
		CreatedAt: now,
	}
	var pharmacy *domain.Pharmacy
	if req.Role == domain.RoleOwner {
		ownerID := user.ID
		pharmacy = &domain.Pharmacy{
			ID:        uuid.New().String(),
			Name:      strings.TrimSpace(req.PharmacyName),
			Address:   req.PharmacyAddress,
			Location:  req.PharmacyLocation,
			OwnerID:   &ownerID,
			CreatedAt: now,
		}
		user.PharmacyID = &pharmacy.ID
	} else {
		pid := req.PharmacyID
		user.PharmacyID = &pid
	}

	err = h.store.Atomic(r.Context(), func(tx store.Tx) error {
		if err := tx.InsertUser(r.Context(), user); err != nil {
			return err
		}
		if pharmacy != nil {
			return tx.InsertPharmacy(r.Context(), *pharmacy)
		}
		return nil
	})
	if errors.Is(err, store.ErrConflict) {
		respondError(w, http.StatusConflict, "email already exists")
		return
	}
	if err != nil {
		h.logger.Error("registration failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "unable to complete registration")
		return
	}

	token, err := h.generateToken(user.ID, user.Role, *user.PharmacyID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to generate token")
		return
	}

	user.Password = ""
	respondJSON(w, http.StatusCreated, authResponse{Token: token, User: user, Pharmacy: pharmacy})
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	user, err := h.store.UserByEmail(r.Context(), strings.ToLower(strings.TrimSpace(req.Email)))
	if err != nil {
		respondError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	if bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)) != nil {
		respondError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	pharmacyID := ""
	if user.PharmacyID != nil {
		pharmacyID = *user.PharmacyID
	}
	token, err := h.generateToken(user.ID, user.Role, pharmacyID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to generate token")
		return
	}

	user.Password = ""
	respondJSON(w, http.StatusOK, authResponse{Token: token, User: user})
}

func (h *Handler) resetPassword(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		NewPassword string `json:"new_password"`
	}
	if err := decodeJSON(r, &payload); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if payload.NewPassword == "" {
		respondError(w, http.StatusBadRequest, "new_password is required")
		return
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(payload.NewPassword), bcrypt.DefaultCost)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to secure password")
		return
	}
	if err := h.store.UpdatePassword(r.Context(), userIDFromContext(r), string(hashed)); err != nil {
		h.respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "password updated"})
}

// Pharmacy handlers

type pharmacyRequest struct {
	Name     string `json:"name"`
	Address  string `json:"address"`
	Location string `json:"location"`
}

func (h *Handler) createPharmacy(w http.ResponseWriter, r *http.Request) {
	if !h.requireRole(w, r, domain.RoleOwner) {
		return
	}
	var req pharmacyRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		respondError(w, http.StatusBadRequest, "name is required")
		return
	}
	ownerID := userIDFromContext(r)
	p := domain.Pharmacy{
		ID:        uuid.New().String(),
		Name:      strings.TrimSpace(req.Name),
		Address:   req.Address,
		Location:  req.Location,
		OwnerID:   &ownerID,
		CreatedAt: time.Now().UTC(),
	}
	err := h.store.Atomic(r.Context(), func(tx store.Tx) error {
		return tx.InsertPharmacy(r.Context(), p)
	})
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, p)
}

func (h *Handler) updatePharmacy(w http.ResponseWriter, r *http.Request) {
	if !h.requireRole(w, r, domain.RoleOwner) {
		return
	}
	id := chi.URLParam(r, "id")
	var req pharmacyRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		respondError(w, http.StatusBadRequest, "name is required")
		return
	}
	existing, err := h.store.Pharmacy(r.Context(), id)
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	if existing.OwnerID == nil || *existing.OwnerID != userIDFromContext(r) {
		respondError(w, http.StatusForbidden, "insufficient permissions")
		return
	}
	existing.Name, existing.Address, existing.Location = strings.TrimSpace(req.Name), req.Address, req.Location
	if err := h.store.UpdatePharmacy(r.Context(), existing); err != nil {
		h.respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, existing)
}

func (h *Handler) listPharmacies(w http.ResponseWriter, r *http.Request) {
	pharmacies, err := h.store.ListPharmacies(r.Context())
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, pharmacies)
}

// Helpers

// statusFor maps service errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrValidation),
		errors.Is(err, domain.ErrInvalidQuantity),
		errors.Is(err, domain.ErrInvalidSaleUnit),
		errors.Is(err, domain.ErrEmptyBill):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound),
		errors.Is(err, domain.ErrLineNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInsufficientStock),
		errors.Is(err, domain.ErrDuplicatePhone),
		errors.Is(err, domain.ErrCheckoutInProgress),
		errors.Is(err, domain.ErrInvalidStatusTransition),
		errors.Is(err, store.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, domain.ErrUpstreamUnavailable):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func (h *Handler) respondErr(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)

	var stockErr *domain.InsufficientStockError
	if errors.As(err, &stockErr) {
		respondJSON(w, status, map[string]any{
			"error":     err.Error(),
			"item_id":   stockErr.ItemID,
			"requested": stockErr.Requested,
			"available": stockErr.Available,
		})
		return
	}
	if status == http.StatusInternalServerError {
		h.logger.Error("request failed",
			zap.String("path", r.URL.Path),
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.Error(err))
		if errors.Is(err, domain.ErrPartialCommit) {
			respondError(w, status, "sale could not be confirmed; staff have been alerted")
			return
		}
		respondError(w, status, "internal error")
		return
	}
	respondError(w, status, err.Error())
}

func decodeJSON(r *http.Request, dest interface{}) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(dest)
}

func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	encoder := json.NewEncoder(w)
	encoder.SetEscapeHTML(false)
	_ = encoder.Encode(payload)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
