package http

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/utafrali/grocerystore/internal/service"
	"github.com/utafrali/grocerystore/pkg/httputil"
	"github.com/utafrali/grocerystore/pkg/pagination"
	"github.com/utafrali/grocerystore/pkg/validator"
)

const maxBodyBytes = 1 << 20

// StoreHandler handles HTTP requests for the catalog, cart and checkout endpoints.
type StoreHandler struct {
	service *service.StoreService
	logger  *slog.Logger
}

// NewStoreHandler creates a new store HTTP handler.
func NewStoreHandler(svc *service.StoreService, logger *slog.Logger) *StoreHandler {
	return &StoreHandler{
		service: svc,
		logger:  logger,
	}
}

// --- Request DTOs ---

// AddItemRequest is the JSON request body for putting one unit in the cart.
type AddItemRequest struct {
	ProductID int64 `json:"product_id" validate:"required,gt=0"`
}

// UpdateQuantityRequest is the JSON request body for setting a cart line quantity.
type UpdateQuantityRequest struct {
	Quantity *int `json:"quantity" validate:"required,gte=0"`
}

// --- Catalog ---

// ListProducts handles GET /api/v1/products
func (h *StoreHandler) ListProducts(w http.ResponseWriter, r *http.Request) {
	result := h.service.ListProducts(r.Context(), r.URL.Query().Get("category"), pagination.FromRequest(r))
	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: result})
}

// GetProduct handles GET /api/v1/products/{productId}
func (h *StoreHandler) GetProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParseID(w, chi.URLParam(r, "productId"))
	if !ok {
		return
	}

	product, err := h.service.GetProduct(r.Context(), id)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: product})
}

// CreateProduct handles POST /api/v1/products
func (h *StoreHandler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	var req service.AddProductInput
	if !decodeBody(w, r, &req) {
		return
	}

	product, err := h.service.AddProduct(r.Context(), req)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, httputil.Response{Data: product})
}

// GetHoldings handles GET /api/v1/products/{productId}/holdings
func (h *StoreHandler) GetHoldings(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParseID(w, chi.URLParam(r, "productId"))
	if !ok {
		return
	}

	holding, err := h.service.Holdings(r.Context(), id)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: holding})
}

// --- Cart ---

// GetCart handles GET /api/v1/cart
func (h *StoreHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: h.service.GetCart(r.Context())})
}

// ClearCart handles DELETE /api/v1/cart
func (h *StoreHandler) ClearCart(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: h.service.ClearCart(r.Context())})
}

// AddItem handles POST /api/v1/cart/items
func (h *StoreHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	var req AddItemRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := validator.Validate(req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	cart, err := h.service.AddToCart(r.Context(), req.ProductID)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: cart})
}

// UpdateItemQuantity handles PUT /api/v1/cart/items/{productId}
func (h *StoreHandler) UpdateItemQuantity(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParseID(w, chi.URLParam(r, "productId"))
	if !ok {
		return
	}

	var req UpdateQuantityRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := validator.Validate(req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	cart, err := h.service.SetQuantity(r.Context(), id, *req.Quantity)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: cart})
}

// RemoveItem handles DELETE /api/v1/cart/items/{productId}
func (h *StoreHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParseID(w, chi.URLParam(r, "productId"))
	if !ok {
		return
	}

	cart, err := h.service.RemoveFromCart(r.Context(), id)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: cart})
}

// --- Checkout ---

// Checkout handles POST /api/v1/checkout. With ?format=text (or Accept:
// text/plain) the bill is returned as a downloadable text file instead of JSON.
func (h *StoreHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	var req service.CheckoutInput
	if !decodeBody(w, r, &req) {
		return
	}

	result, err := h.service.Checkout(r.Context(), req)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	if wantsText(r) {
		httputil.WriteAttachment(w, result.Filename, "text/plain; charset=utf-8", []byte(result.Bill))
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, httputil.Response{Data: result})
}

func wantsText(r *http.Request) bool {
	if r.URL.Query().Get("format") == "text" {
		return true
	}
	return strings.HasPrefix(r.Header.Get("Accept"), "text/plain")
}

// decodeBody reads a size-limited JSON body into dst. On failure it writes a
// 400 INVALID_INPUT response and returns false.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.Response{
			Error: &httputil.ErrorResponse{Code: "INVALID_INPUT", Message: "invalid request body: " + err.Error()},
		})
		return false
	}
	return true
}
