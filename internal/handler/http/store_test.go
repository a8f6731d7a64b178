package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/grocerystore/internal/event"
	"github.com/utafrali/grocerystore/internal/ledger"
	"github.com/utafrali/grocerystore/internal/metrics"
	"github.com/utafrali/grocerystore/internal/seed"
	"github.com/utafrali/grocerystore/internal/service"
	"github.com/utafrali/grocerystore/pkg/health"
	"github.com/utafrali/grocerystore/pkg/middleware"
)

// ============================================================================
// Test Helpers
// ============================================================================

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

type testServer struct {
	handler http.Handler
	svc     *service.StoreService
	health  *health.Handler
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	products, err := seed.Default()
	require.NoError(t, err)
	l, err := ledger.New(products...)
	require.NoError(t, err)

	reg := prometheus.NewRegistry()
	svc := service.NewStoreService(l, event.NopPublisher{}, metrics.NewLedger(reg), testLogger(), service.Options{LowStockThreshold: 2})
	hh := health.NewHandler()
	hh.RegisterCritical("ledger", svc.Verify)

	router := NewRouter(svc, hh, middleware.NewHTTPMetrics(reg), promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), testLogger(), RouterConfig{
		CORSAllowedOrigins: []string{"*"},
	})
	return &testServer{handler: router, svc: svc, health: hh}
}

func (s *testServer) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func decodeData(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body struct {
		Data map[string]any `json:"data"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	return body.Data
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body struct {
		Error map[string]any `json:"error"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	require.NotNil(t, body.Error)
	return body.Error
}

const checkoutBody = `{"customer":{"name":"Ada","phone":"555-0100","address":"1 Market St"},"payment_method":"cash_on_delivery"}`

// ============================================================================
// Catalog
// ============================================================================

func TestListProducts(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/api/v1/products?category=Meat", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
	data := decodeData(t, rec)
	assert.EqualValues(t, 2, data["total_count"])
	items := data["items"].([]any)
	assert.Equal(t, "Chicken", items[0].(map[string]any)["name"])
}

func TestGetProduct(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/api/v1/products/2", "")

	require.Equal(t, http.StatusOK, rec.Code)
	data := decodeData(t, rec)
	assert.Equal(t, "Bread", data["name"])
	assert.EqualValues(t, 249, data["price"])
}

func TestGetProduct_NotFound(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/api/v1/products/99", "")

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "NOT_FOUND", decodeError(t, rec)["code"])
}

func TestGetProduct_InvalidID(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/api/v1/products/abc", "")

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_PARAMETER", decodeError(t, rec)["code"])
}

func TestCreateProduct(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/v1/products",
		`{"name":"Milk","category":"Dairy","price":"1.29","stock":12,"image_url":"https://cdn.example.com/milk.png"}`)

	require.Equal(t, http.StatusCreated, rec.Code)
	data := decodeData(t, rec)
	assert.EqualValues(t, 5, data["id"])
	assert.EqualValues(t, 129, data["price"])
}

func TestCreateProduct_RelativeImagePath(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/v1/products",
		`{"name":"Mart Special","category":"Grocery","price":"3.50","stock":4,"image_url":"mart.jpeg"}`)

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "mart.jpeg", decodeData(t, rec)["image_url"])
}

func TestCreateProduct_ValidationError(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/v1/products", `{"name":"","category":"Dairy","price":1.5}`)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	errBody := decodeError(t, rec)
	assert.Equal(t, "VALIDATION_ERROR", errBody["code"])
	fields := errBody["fields"].(map[string]any)
	assert.Equal(t, "is required", fields["name"])
	assert.Equal(t, "is required", fields["stock"])
}

func TestCreateProduct_MalformedBody(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/v1/products", `{"name":`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_INPUT", decodeError(t, rec)["code"])
}

func TestCreateProduct_WrongContentType(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/products", strings.NewReader("name=Milk"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()

	s.handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)
}

// ============================================================================
// Cart
// ============================================================================

func TestAddItem(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/v1/cart/items", `{"product_id":1}`)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = s.do(t, http.MethodPost, "/api/v1/cart/items", `{"product_id":1}`)
	require.Equal(t, http.StatusOK, rec.Code)

	data := decodeData(t, rec)
	assert.EqualValues(t, 2, data["item_count"])
	assert.EqualValues(t, 398, data["total"])
	lines := data["lines"].([]any)
	require.Len(t, lines, 1)
	assert.EqualValues(t, 2, lines[0].(map[string]any)["quantity"])
}

func TestAddItem_StockUnavailable(t *testing.T) {
	s := newTestServer(t)
	for i := 0; i < 5; i++ {
		require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/api/v1/cart/items", `{"product_id":2}`).Code)
	}

	rec := s.do(t, http.MethodPost, "/api/v1/cart/items", `{"product_id":2}`)

	assert.Equal(t, http.StatusConflict, rec.Code)
	errBody := decodeError(t, rec)
	assert.Equal(t, "INSUFFICIENT_STOCK", errBody["code"])
	assert.Equal(t, "Stock unavailable for Bread", errBody["message"])
}

func TestAddItem_MissingProductID(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/v1/cart/items", `{}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "VALIDATION_ERROR", decodeError(t, rec)["code"])
}

func TestUpdateItemQuantity(t *testing.T) {
	s := newTestServer(t)
	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/api/v1/cart/items", `{"product_id":2}`).Code)

	rec := s.do(t, http.MethodPut, "/api/v1/cart/items/2", `{"quantity":4}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 4, decodeData(t, rec)["item_count"])
	p, err := s.svc.GetProduct(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, 1, p.Stock)
}

func TestUpdateItemQuantity_NotEnoughStock(t *testing.T) {
	s := newTestServer(t)
	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/api/v1/cart/items", `{"product_id":2}`).Code)

	rec := s.do(t, http.MethodPut, "/api/v1/cart/items/2", `{"quantity":9}`)

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "Not enough stock for Bread: available 4, requested 8", decodeError(t, rec)["message"])
}

func TestUpdateItemQuantity_NegativeQuantity(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPut, "/api/v1/cart/items/2", `{"quantity":-1}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "VALIDATION_ERROR", decodeError(t, rec)["code"])
}

func TestUpdateItemQuantity_LineNotInCart(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPut, "/api/v1/cart/items/3", `{"quantity":1}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 0, decodeData(t, rec)["item_count"])
}

func TestRemoveItem(t *testing.T) {
	s := newTestServer(t)
	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/api/v1/cart/items", `{"product_id":3}`).Code)

	rec := s.do(t, http.MethodDelete, "/api/v1/cart/items/3", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decodeData(t, rec)["lines"])
	assert.NoError(t, s.svc.Verify(context.Background()))
}

func TestClearCart(t *testing.T) {
	s := newTestServer(t)
	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/api/v1/cart/items", `{"product_id":3}`).Code)
	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/api/v1/cart/items", `{"product_id":4}`).Code)

	rec := s.do(t, http.MethodDelete, "/api/v1/cart", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 0, decodeData(t, rec)["item_count"])
	rec = s.do(t, http.MethodGet, "/api/v1/products/3/holdings", "")
	require.Equal(t, http.StatusOK, rec.Code)
	data := decodeData(t, rec)
	assert.EqualValues(t, 8, data["stock"])
	assert.EqualValues(t, 0, data["reserved"])
}

// ============================================================================
// Checkout
// ============================================================================

func TestCheckout_JSON(t *testing.T) {
	s := newTestServer(t)
	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/api/v1/cart/items", `{"product_id":1}`).Code)

	rec := s.do(t, http.MethodPost, "/api/v1/checkout", checkoutBody)

	require.Equal(t, http.StatusCreated, rec.Code)
	data := decodeData(t, rec)
	assert.Contains(t, data["bill"], "Apples (Quantity: 1) - $1.99")
	assert.Contains(t, data["filename"], "grocery-bill-")
	receipt := data["receipt"].(map[string]any)
	assert.EqualValues(t, 199, receipt["total"])
	assert.Equal(t, "cash_on_delivery", receipt["payment_method"])

	rec = s.do(t, http.MethodGet, "/api/v1/cart", "")
	assert.EqualValues(t, 0, decodeData(t, rec)["item_count"])
}

func TestCheckout_TextAttachment(t *testing.T) {
	s := newTestServer(t)
	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/api/v1/cart/items", `{"product_id":4}`).Code)

	rec := s.do(t, http.MethodPost, "/api/v1/checkout?format=text", checkoutBody)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/plain; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), `attachment; filename="grocery-bill-`)
	body := rec.Body.String()
	assert.True(t, strings.HasPrefix(body, "Grocery Store Bill\n"))
	assert.Contains(t, body, "Total Amount: $7.99\n")
}

func TestCheckout_EmptyCart(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/v1/checkout", checkoutBody)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_INPUT", decodeError(t, rec)["code"])
}

func TestCheckout_MissingCustomerDetails(t *testing.T) {
	s := newTestServer(t)
	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/api/v1/cart/items", `{"product_id":4}`).Code)

	rec := s.do(t, http.MethodPost, "/api/v1/checkout", `{"customer":{"name":"Ada"},"payment_method":"credit_card"}`)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	fields := decodeError(t, rec)["fields"].(map[string]any)
	assert.Contains(t, fields, "phone")
	assert.Contains(t, fields, "address")
}

// ============================================================================
// Operational endpoints
// ============================================================================

func TestHealthReady(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/health/ready", "")

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHealthReady_CriticalFailure(t *testing.T) {
	s := newTestServer(t)
	s.health.RegisterCritical("broken", func(context.Context) error { return errors.New("boom") })

	rec := s.do(t, http.MethodGet, "/health/ready", "")

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t)
	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/api/v1/cart/items", `{"product_id":1}`).Code)

	rec := s.do(t, http.MethodGet, "/metrics", "")

	require.Equal(t, http.StatusOK, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.True(t, bytes.Contains(body, []byte(`grocery_product_stock{name="Apples",product_id="1"} 9`)))
	assert.True(t, bytes.Contains(body, []byte("http_requests_total")))
}

func TestCorrelationIDEchoed(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/cart", nil)
	req.Header.Set(middleware.CorrelationIDHeader, "corr-123")
	rec := httptest.NewRecorder()

	s.handler.ServeHTTP(rec, req)

	assert.Equal(t, "corr-123", rec.Header().Get(middleware.CorrelationIDHeader))
}
