package httpapi_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/ecom-core/internal/httpapi"
	"github.com/vladislavdragonenkov/ecom-core/internal/ledger"
	"github.com/vladislavdragonenkov/ecom-core/internal/service/catalog"
	"github.com/vladislavdragonenkov/ecom-core/internal/service/order"
	"github.com/vladislavdragonenkov/ecom-core/internal/storage/memory"
)

type env struct {
	router  http.Handler
	ledger  *ledger.Service
	orders  *order.Service
	catalog *catalog.MockClient
}

func newEnv(t *testing.T) *env {
	t.Helper()
	logger := log.New()
	logger.SetLevel(log.PanicLevel)
	entry := logger.WithField("component", "test")

	ledgerSvc := ledger.NewService(
		memory.NewStockRepository(),
		memory.NewReservationRepository(),
		entry,
	)

	mockCatalog := catalog.NewMockClient()
	orderSvc := order.NewService(
		memory.NewOrderRepository(),
		memory.NewStatusHistoryRepository(),
		memory.NewCompensationLogRepository(),
		mockCatalog,
		nil,
		entry,
	)
	orderSvc.SetRetryDelay(0)

	router := httpapi.NewRouter(httpapi.RouterConfig{
		Inventory: httpapi.NewInventoryHandler(ledgerSvc),
		Orders:    httpapi.NewOrderHandler(orderSvc),
	})

	return &env{router: router, ledger: ledgerSvc, orders: orderSvc, catalog: mockCatalog}
}

func (e *env) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body failed: %v", err)
		}
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response failed: %v (body %s)", err, rec.Body.String())
	}
	return body
}

func (e *env) seedItem(t *testing.T, sku string, qty int64) {
	t.Helper()
	if _, err := e.ledger.CreateItem(ledger.CreateItemParams{SKU: sku, InitialQty: qty}); err != nil {
		t.Fatalf("seed item failed: %v", err)
	}
}

func TestCreateInventoryItem(t *testing.T) {
	e := newEnv(t)

	rec := e.do(t, http.MethodPost, "/api/inventory", map[string]any{
		"skuCode":         "sku-1",
		"initialQuantity": 100,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (body %s)", rec.Code, rec.Body.String())
	}

	body := decodeBody(t, rec)
	if body["skuCode"] != "sku-1" || body["availableQuantity"] != float64(100) {
		t.Fatalf("unexpected response: %v", body)
	}

	// Повторное создание того же SKU — конфликт.
	rec = e.do(t, http.MethodPost, "/api/inventory", map[string]any{
		"skuCode":         "sku-1",
		"initialQuantity": 5,
	})
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
}

func TestCreateInventoryItemBadRequest(t *testing.T) {
	e := newEnv(t)

	rec := e.do(t, http.MethodPost, "/api/inventory", map[string]any{"initialQuantity": 10})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing skuCode, got %d", rec.Code)
	}
}

func TestGetStatusNotFound(t *testing.T) {
	e := newEnv(t)

	rec := e.do(t, http.MethodGet, "/api/inventory/missing", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}

	body := decodeBody(t, rec)
	if body["error"] != "not_found" {
		t.Fatalf("unexpected error body: %v", body)
	}
}

func TestReserveAndConflict(t *testing.T) {
	e := newEnv(t)
	e.seedItem(t, "sku-1", 10)

	rec := e.do(t, http.MethodPost, "/api/inventory/sku-1/reserve", map[string]any{
		"quantity":      4,
		"reservationId": "res-1",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (body %s)", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	if body["reservationId"] != "res-1" || body["reservedQuantity"] != float64(4) {
		t.Fatalf("unexpected response: %v", body)
	}

	// Недостаточно остатка.
	rec = e.do(t, http.MethodPost, "/api/inventory/sku-1/reserve", map[string]any{
		"quantity":      7,
		"reservationId": "res-2",
	})
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
}

func TestReserveGeneratesReservationID(t *testing.T) {
	e := newEnv(t)
	e.seedItem(t, "sku-1", 10)

	rec := e.do(t, http.MethodPost, "/api/inventory/sku-1/reserve", map[string]any{"quantity": 2})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (body %s)", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	id, _ := body["reservationId"].(string)
	if id == "" {
		t.Fatal("reservationId should be generated when absent")
	}
}

func TestReleaseFlow(t *testing.T) {
	e := newEnv(t)
	e.seedItem(t, "sku-1", 10)

	if _, err := e.ledger.ReserveStock("sku-1", 4, "res-1"); err != nil {
		t.Fatalf("reserve failed: %v", err)
	}

	rec := e.do(t, http.MethodPost, "/api/inventory/sku-1/release", map[string]any{
		"quantity":      4,
		"reservationId": "res-1",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (body %s)", rec.Code, rec.Body.String())
	}

	// Повторный release того же резерва — конфликт.
	rec = e.do(t, http.MethodPost, "/api/inventory/sku-1/release", map[string]any{
		"quantity":      4,
		"reservationId": "res-1",
	})
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 on double release, got %d", rec.Code)
	}
}

func TestCheckAvailability(t *testing.T) {
	e := newEnv(t)
	e.seedItem(t, "sku-1", 10)

	rec := e.do(t, http.MethodPost, "/api/inventory/check-availability", map[string]any{
		"items": []map[string]any{{"skuCode": "sku-1", "quantity": 5}},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (body %s)", rec.Code, rec.Body.String())
	}
	if body := decodeBody(t, rec); body["available"] != true {
		t.Fatalf("expected available true, got %v", body)
	}

	// Неизвестный SKU — недоступно, но не ошибка.
	rec = e.do(t, http.MethodPost, "/api/inventory/check-availability", map[string]any{
		"items": []map[string]any{{"skuCode": "ghost", "quantity": 1}},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if body := decodeBody(t, rec); body["available"] != false {
		t.Fatalf("expected available false, got %v", body)
	}
}

func TestLowStockListing(t *testing.T) {
	e := newEnv(t)
	e.seedItem(t, "sku-low", 5)
	e.seedItem(t, "sku-high", 500)

	rec := e.do(t, http.MethodGet, "/api/inventory/low-stock", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var items []map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &items); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if len(items) != 1 || items[0]["skuCode"] != "sku-low" {
		t.Fatalf("expected only sku-low, got %v", items)
	}
}

func TestCreateOrderEndpoint(t *testing.T) {
	e := newEnv(t)

	rec := e.do(t, http.MethodPost, "/api/orders", map[string]any{
		"customerId": "customer-1",
		"currency":   "USD",
		"items": []map[string]any{
			{"productId": "prod-1", "skuCode": "sku-1", "quantity": 2, "unitPriceMinor": 1500},
		},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (body %s)", rec.Code, rec.Body.String())
	}

	body := decodeBody(t, rec)
	if body["status"] != "PENDING" || body["totalMinor"] != float64(3000) {
		t.Fatalf("unexpected response: %v", body)
	}
	orderID, _ := body["id"].(string)
	if orderID == "" {
		t.Fatal("order id should be present")
	}

	rec = e.do(t, http.MethodGet, "/api/orders/"+orderID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestCreateOrderValidationError(t *testing.T) {
	e := newEnv(t)

	rec := e.do(t, http.MethodPost, "/api/orders", map[string]any{
		"customerId": "customer-1",
		"currency":   "USD",
		"items":      []map[string]any{},
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for empty items, got %d", rec.Code)
	}
}

func TestCreateOrderCatalogDown(t *testing.T) {
	e := newEnv(t)
	e.catalog.CheckErr = errors.New("connection refused")

	rec := e.do(t, http.MethodPost, "/api/orders", map[string]any{
		"customerId": "customer-1",
		"currency":   "USD",
		"items": []map[string]any{
			{"productId": "prod-1", "skuCode": "sku-1", "quantity": 1, "unitPriceMinor": 100},
		},
	})
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 when catalog is down, got %d", rec.Code)
	}
}

func TestCancelOrderEndpoint(t *testing.T) {
	e := newEnv(t)

	rec := e.do(t, http.MethodPost, "/api/orders", map[string]any{
		"customerId": "customer-1",
		"currency":   "USD",
		"items": []map[string]any{
			{"productId": "prod-1", "skuCode": "sku-1", "quantity": 1, "unitPriceMinor": 100},
		},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create failed: %d (body %s)", rec.Code, rec.Body.String())
	}
	orderID := decodeBody(t, rec)["id"].(string)

	rec = e.do(t, http.MethodPost, "/api/orders/"+orderID+"/cancel", map[string]any{"reason": "test"})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (body %s)", rec.Code, rec.Body.String())
	}
	if body := decodeBody(t, rec); body["status"] != "CANCELLED" {
		t.Fatalf("expected CANCELLED, got %v", body)
	}

	// Повторная отмена недопустима из терминального статуса.
	rec = e.do(t, http.MethodPost, "/api/orders/"+orderID+"/cancel", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 on double cancel, got %d", rec.Code)
	}
}

func TestUpdateOrderStatusEndpoint(t *testing.T) {
	e := newEnv(t)

	rec := e.do(t, http.MethodPost, "/api/orders", map[string]any{
		"customerId": "customer-1",
		"currency":   "USD",
		"items": []map[string]any{
			{"productId": "prod-1", "skuCode": "sku-1", "quantity": 1, "unitPriceMinor": 100},
		},
	})
	orderID := decodeBody(t, rec)["id"].(string)

	rec = e.do(t, http.MethodPut, "/api/orders/"+orderID+"/status", map[string]any{"status": "PROCESSING"})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (body %s)", rec.Code, rec.Body.String())
	}

	// Запрещённый переход — конфликт состояния, не ошибка формата запроса.
	rec = e.do(t, http.MethodPut, "/api/orders/"+orderID+"/status", map[string]any{"status": "REFUNDED"})
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 for invalid transition, got %d", rec.Code)
	}
}

func TestListCustomerOrdersEndpoint(t *testing.T) {
	e := newEnv(t)

	for i := 0; i < 3; i++ {
		rec := e.do(t, http.MethodPost, "/api/orders", map[string]any{
			"customerId": "customer-1",
			"currency":   "USD",
			"items": []map[string]any{
				{"productId": "prod-1", "skuCode": "sku-1", "quantity": 1, "unitPriceMinor": 100},
			},
		})
		if rec.Code != http.StatusCreated {
			t.Fatalf("create %d failed: %d", i, rec.Code)
		}
	}

	rec := e.do(t, http.MethodGet, "/api/orders/customer/customer-1?page=0&size=2", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var orders []map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &orders); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if len(orders) != 2 {
		t.Fatalf("expected page of 2, got %d", len(orders))
	}
}
