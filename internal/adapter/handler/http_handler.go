package handler

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"github.com/grupoimpulso/seat-sales/internal/core/domain"
	"github.com/grupoimpulso/seat-sales/internal/core/service"
	"github.com/grupoimpulso/seat-sales/internal/port"
)

const maxBodyBytes = 1 << 20

type HTTPHandler struct {
	listings     *service.ListingService
	reservations *service.ReservationService
	sales        *service.SaleService
	auth         *service.AuthService
	gateway      port.PaymentGateway
}

// Response is the envelope every endpoint answers with.
type Response struct {
	Success bool     `json:"success"`
	Data    any      `json:"data,omitempty"`
	Error   string   `json:"error,omitempty"`
	Message string   `json:"message,omitempty"`
	Details []string `json:"details,omitempty"`
	Page    int      `json:"page,omitempty"`
	HasMore *bool    `json:"hasMore,omitempty"`
}

func NewHTTPHandler(
	listings *service.ListingService,
	reservations *service.ReservationService,
	sales *service.SaleService,
	auth *service.AuthService,
	gateway port.PaymentGateway,
) *HTTPHandler {
	return &HTTPHandler{
		listings:     listings,
		reservations: reservations,
		sales:        sales,
		auth:         auth,
		gateway:      gateway,
	}
}

// Routes builds the chi router for the public, payment and admin APIs.
func (h *HTTPHandler) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(RequestLogger)

	r.Get("/health", h.HealthCheck)

	r.Route("/api", func(r chi.Router) {
		r.Get("/seminars", h.listPublished(domain.ListingKindSeminar))
		r.Get("/seminars/{slug}", h.getPublished(domain.ListingKindSeminar))
		r.Get("/courses", h.listPublished(domain.ListingKindCourse))
		r.Get("/courses/{slug}", h.getPublished(domain.ListingKindCourse))

		r.Post("/checkout", h.Checkout)
		r.Post("/payments/{method}/callback", h.PaymentCallback)
		r.Post("/auth/login", h.Login)

		r.Route("/admin", func(r chi.Router) {
			r.Use(RequireRole(h.auth, domain.RoleAdmin))

			r.Get("/listings", h.AdminListListings)
			r.Post("/listings", h.AdminCreateListing)
			r.Get("/listings/{id}", h.AdminGetListing)
			r.Put("/listings/{id}", h.AdminUpdateListing)
			r.Delete("/listings/{id}", h.AdminDeleteListing)

			r.Get("/sales", h.AdminListSales)
			r.Get("/sales/{id}", h.AdminGetSale)
			r.Post("/sales/{id}/refund", h.AdminRefundSale)
		})
	})

	return r
}

func (h *HTTPHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *HTTPHandler) listPublished(kind domain.ListingKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		page, limit := pageParams(r)
		featured := r.URL.Query().Get("featured") == "true"

		items, err := h.listings.ListPublished(r.Context(), kind, featured, page, limit)
		if err != nil {
			writeError(w, err)
			return
		}
		writePage(w, items, page, limit)
	}
}

func (h *HTTPHandler) getPublished(kind domain.ListingKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		l, err := h.listings.GetPublishedBySlug(r.Context(), kind, chi.URLParam(r, "slug"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeData(w, http.StatusOK, l)
	}
}

// Checkout handles POST /api/checkout
func (h *HTTPHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	var req service.CheckoutRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadBody(w, err)
		return
	}
	if req.RequestID == "" {
		req.RequestID = r.Header.Get("Idempotency-Key")
	}

	res, err := h.reservations.Checkout(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusCreated, res)
}

// PaymentCallback handles POST /api/payments/{method}/callback. The body
// must carry a hex HMAC-SHA256 signature in X-Signature.
func (h *HTTPHandler) PaymentCallback(w http.ResponseWriter, r *http.Request) {
	method := domain.PaymentMethod(chi.URLParam(r, "method"))
	if !method.Valid() {
		writeError(w, fmt.Errorf("%w: payment method %q", domain.ErrNotFound, method))
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeBadBody(w, err)
		return
	}
	if err := h.gateway.VerifyCallback(method, body, r.Header.Get("X-Signature")); err != nil {
		logrus.WithError(err).WithField("method", method).Warn("payment callback rejected")
		writeError(w, err)
		return
	}

	var outcome service.PaymentOutcome
	if err := json.Unmarshal(body, &outcome); err != nil {
		writeBadBody(w, err)
		return
	}
	outcome.Method = method

	sale, err := h.sales.ApplyPaymentOutcome(r.Context(), outcome)
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, sale)
}

func (h *HTTPHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req service.LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadBody(w, err)
		return
	}

	res, err := h.auth.Login(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, res)
}

func (h *HTTPHandler) AdminListListings(w http.ResponseWriter, r *http.Request) {
	page, limit := pageParams(r)
	kind := domain.ListingKind(r.URL.Query().Get("kind"))

	items, err := h.listings.List(r.Context(), kind, page, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writePage(w, items, page, limit)
}

func (h *HTTPHandler) AdminCreateListing(w http.ResponseWriter, r *http.Request) {
	var req service.CreateListingRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadBody(w, err)
		return
	}

	l, err := h.listings.Create(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusCreated, l)
}

func (h *HTTPHandler) AdminGetListing(w http.ResponseWriter, r *http.Request) {
	l, err := h.listings.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, l)
}

func (h *HTTPHandler) AdminUpdateListing(w http.ResponseWriter, r *http.Request) {
	var req service.UpdateListingRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadBody(w, err)
		return
	}

	l, err := h.listings.Update(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, l)
}

func (h *HTTPHandler) AdminDeleteListing(w http.ResponseWriter, r *http.Request) {
	if err := h.listings.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Response{Success: true, Message: "listing deleted"})
}

func (h *HTTPHandler) AdminListSales(w http.ResponseWriter, r *http.Request) {
	page, limit := pageParams(r)
	q := r.URL.Query()

	items, err := h.sales.ListSales(r.Context(), domain.SaleFilter{
		Status:    domain.SaleStatus(q.Get("status")),
		ListingID: q.Get("listingId"),
		Page:      page,
		Limit:     limit,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writePage(w, items, page, limit)
}

func (h *HTTPHandler) AdminGetSale(w http.ResponseWriter, r *http.Request) {
	sale, err := h.sales.GetSale(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, sale)
}

func (h *HTTPHandler) AdminRefundSale(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	sale, err := h.sales.Refund(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	if claims, ok := ClaimsFrom(r.Context()); ok {
		logrus.WithFields(logrus.Fields{"sale_id": id, "by": claims.Email}).Info("sale refunded")
	}
	writeData(w, http.StatusOK, sale)
}

func pageParams(r *http.Request) (page, limit int) {
	q := r.URL.Query()
	page, _ = strconv.Atoi(q.Get("page"))
	limit, _ = strconv.Atoi(q.Get("limit"))
	if page < 1 {
		page = 1
	}
	_, limit = domain.Window(page, limit)
	return page, limit
}

func decodeJSON(r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(nil, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeData(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, Response{Success: true, Data: data})
}

// writePage reports hasMore when the page came back full.
func writePage[T any](w http.ResponseWriter, items []T, page, limit int) {
	if items == nil {
		items = []T{}
	}
	more := len(items) == limit
	writeJSON(w, http.StatusOK, Response{Success: true, Data: items, Page: page, HasMore: &more})
}

func writeBadBody(w http.ResponseWriter, err error) {
	writeJSON(w, http.StatusBadRequest, Response{
		Success: false,
		Error:   "invalid_body",
		Message: "invalid request body: " + err.Error(),
	})
}

func writeError(w http.ResponseWriter, err error) {
	f := classify(err)
	if f.status >= http.StatusInternalServerError {
		logrus.WithError(err).Error("request error")
	}
	writeJSON(w, f.status, Response{
		Success: false,
		Error:   f.code,
		Message: f.message,
		Details: f.fields,
	})
}
