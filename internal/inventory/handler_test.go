package inventory_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/pharmstock/internal/inventory"
	"github.com/odyssey-erp/pharmstock/internal/inventory/inventorytest"
)

func newInventoryRouter(store *inventorytest.Store) http.Handler {
	r := chi.NewRouter()
	h := inventory.NewHandler(nil, inventory.NewService(store, nil, nil))
	r.Route("/products", h.MountRoutes)
	return r
}

func TestHandlerRegisterAndFetch(t *testing.T) {
	router := newInventoryRouter(inventorytest.NewStore())

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/products/", strings.NewReader(`{"code":"asa100","name":"Aspirin","unit_price":"1500","opening_stock":12}`))
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/products/ASA100/", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "1500.00", body["unit_price"])
	require.EqualValues(t, 12, body["stock"])

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/products/", strings.NewReader(`{"code":"ASA100","name":"again"}`)))
	require.Equal(t, http.StatusConflict, rec.Code)
}

func TestHandlerPlanStatuses(t *testing.T) {
	store := inventorytest.NewStore()
	seedProduct(store, "PARA", 3)
	store.PutLot(inventory.Lot{ProductCode: "PARA", BatchNumber: "P1", Quantity: 3, ExpiresAt: inventorytest.Date(2025, 7, 1)})
	router := newInventoryRouter(store)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/products/PARA/plan?qty=2", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"expires_at":"2025-07-01"`)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/products/PARA/plan?qty=9", nil))
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	require.Contains(t, rec.Body.String(), `"available":3`)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/products/PARA/plan?qty=0", nil))
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/products/NOPE/lots", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
}
