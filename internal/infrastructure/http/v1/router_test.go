package v1_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orderflow/internal/app"
	"orderflow/internal/infrastructure/config"
	v1 "orderflow/internal/infrastructure/http/v1"
	"orderflow/internal/infrastructure/http/v1/middleware"
	"orderflow/internal/infrastructure/lock"
	"orderflow/internal/infrastructure/notifier"
	"orderflow/pkg/logger"
)

func newRouter(t *testing.T) *gin.Engine {
	t.Helper()
	svc, err := app.NewServices(app.NewMemoryStorage(config.IdempotencyConfig{TTL: time.Hour}), app.Options{
		Locker:   lock.NewLocalLocker(time.Second),
		Notifier: &notifier.Recorder{},
	})
	require.NoError(t, err)
	return v1.NewRouter(v1.RouterConfig{
		Services:           svc,
		Logger:             logger.Nop(),
		IdempotencyEnabled: true,
		StorageDriver:      config.DriverMemory,
		Version:            "test",
	})
}

type call struct {
	method  string
	path    string
	body    any
	headers map[string]string
}

func do(t *testing.T, r http.Handler, c call) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if c.body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(c.body))
	}
	req := httptest.NewRequest(c.method, c.path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var out map[string]any
	if w.Body.Len() > 0 {
		_ = json.Unmarshal(w.Body.Bytes(), &out)
	}
	return w, out
}

func TestHealth(t *testing.T) {
	r := newRouter(t)

	w, body := do(t, r, call{method: http.MethodGet, path: "/health/ready"})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", body["status"])
	assert.NotEmpty(t, w.Header().Get(middleware.HeaderRequestID))
}

func TestErrorResponses(t *testing.T) {
	r := newRouter(t)

	tests := []struct {
		name   string
		call   call
		status int
		code   string
	}{
		{
			name:   "malformed id",
			call:   call{method: http.MethodGet, path: "/api/v1/quotations/not-an-id"},
			status: http.StatusBadRequest,
			code:   "VALIDATION_ERROR",
		},
		{
			name:   "unknown quotation",
			call:   call{method: http.MethodGet, path: "/api/v1/quotations/01890a5d-ac96-774b-bcce-b302099a8057"},
			status: http.StatusNotFound,
			code:   "NOT_FOUND",
		},
		{
			name: "unknown location",
			call: call{method: http.MethodPost, path: "/api/v1/ledger/adjustments", body: map[string]any{
				"productId": "01890a5d-ac96-774b-bcce-b302099a8057",
				"location":  "MOON",
				"delta":     "1",
				"reason":    "count",
			}},
			status: http.StatusBadRequest,
			code:   "VALIDATION_ERROR",
		},
		{
			name:   "missing body fields",
			call:   call{method: http.MethodPost, path: "/api/v1/products", body: map[string]any{"code": "X"}},
			status: http.StatusBadRequest,
			code:   "VALIDATION_ERROR",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, body := do(t, r, tt.call)
			assert.Equal(t, tt.status, w.Code)
			assert.Equal(t, tt.code, body["code"])
		})
	}
}

func TestOrderFlow(t *testing.T) {
	r := newRouter(t)
	actor := map[string]string{middleware.HeaderActorID: "planner-7"}

	w, product := do(t, r, call{method: http.MethodPost, path: "/api/v1/products", body: map[string]any{
		"code":              "W-1",
		"name":              "Widget",
		"unit":              "pcs",
		"basePrice":         "4.00",
		"lowStockThreshold": "2",
	}})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	productID := product["id"].(string)

	w, _ = do(t, r, call{method: http.MethodPost, path: "/api/v1/ledger/receipts", body: map[string]any{
		"productId": productID,
		"location":  "NG",
		"quantity":  "10",
	}})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w, q := do(t, r, call{method: http.MethodPost, path: "/api/v1/quotations", headers: actor, body: map[string]any{
		"customerRef":  "C-1",
		"customerName": "Contoso",
		"currency":     "USD",
		"lines":        []map[string]any{{"productId": productID, "quantity": "3"}},
	}})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, "12", q["totalAmount"], "catalog price applied")
	assert.Equal(t, "planner-7", q["createdBy"])
	quotationID := q["id"].(string)

	w, _ = do(t, r, call{method: http.MethodPost, path: "/api/v1/quotations/" + quotationID + "/send"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	w, approved := do(t, r, call{method: http.MethodPost, path: "/api/v1/quotations/" + quotationID + "/approve"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	orderID := approved["salesOrderId"].(string)

	w, _ = do(t, r, call{method: http.MethodPost, path: "/api/v1/quotations/" + quotationID + "/convert"})
	assert.Equal(t, http.StatusConflict, w.Code, "a quotation converts once")

	w, order := do(t, r, call{method: http.MethodPost, path: "/api/v1/sales-orders/" + orderID + "/confirm"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	soLineID := order["lines"].([]any)[0].(map[string]any)["lineId"].(string)

	w, jo := do(t, r, call{method: http.MethodPost, path: "/api/v1/job-orders", body: map[string]any{
		"salesOrderId": orderID,
		"lines":        []map[string]any{{"salesOrderLineId": soLineID, "quantity": "3"}},
	}})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	jobID := jo["id"].(string)
	lineID := jo["lines"].([]any)[0].(map[string]any)["lineId"].(string)

	w, _ = do(t, r, call{method: http.MethodPost, path: "/api/v1/job-orders/" + jobID + "/start"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w, line := do(t, r, call{method: http.MethodPut, path: "/api/v1/job-order-lines/" + lineID + "/reservation", body: map[string]any{"reserved": "3"}})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, 3.0, line["reserved"])

	w, body := do(t, r, call{method: http.MethodPut, path: "/api/v1/job-order-lines/" + lineID + "/tranches/1", body: map[string]any{"amount": "4"}})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, "OVER_SHIPMENT", body["code"])

	w, line = do(t, r, call{method: http.MethodPut, path: "/api/v1/job-order-lines/" + lineID + "/tranches/1", body: map[string]any{"amount": "3"}})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, 3.0, line["shipped"])
	assert.Equal(t, 0.0, line["orderBalance"])

	w, summary := do(t, r, call{method: http.MethodGet, path: "/api/v1/job-orders/" + jobID + "/summary"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 3.0, summary["totalShipped"])

	w, _ = do(t, r, call{method: http.MethodPost, path: "/api/v1/job-orders/" + jobID + "/complete"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w, fulfillment := do(t, r, call{method: http.MethodGet, path: "/api/v1/sales-orders/" + orderID + "/fulfillment"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "fulfilled", fulfillment["status"])

	w, balances := do(t, r, call{method: http.MethodGet, path: "/api/v1/ledger/balances?productId=" + productID})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 7.0, balances["total"])

	w, history := do(t, r, call{method: http.MethodGet, path: "/api/v1/job-order-lines/" + lineID + "/history"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, history["items"])

	w, verify := do(t, r, call{method: http.MethodPost, path: "/api/v1/ledger/verify"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Nil(t, verify["drift"])
}

func TestIdempotentReplay(t *testing.T) {
	r := newRouter(t)
	headers := map[string]string{middleware.HeaderIdempotencyKey: "create-w2"}
	body := map[string]any{"code": "W-2", "name": "Gadget", "unit": "pcs"}

	first, created := do(t, r, call{method: http.MethodPost, path: "/api/v1/products", body: body, headers: headers})
	require.Equal(t, http.StatusCreated, first.Code, first.Body.String())

	second, replayed := do(t, r, call{method: http.MethodPost, path: "/api/v1/products", body: body, headers: headers})
	assert.Equal(t, http.StatusCreated, second.Code)
	assert.Equal(t, "true", second.Header().Get("Idempotent-Replayed"))
	assert.Equal(t, created["id"], replayed["id"])

	body["name"] = "Other"
	mismatch, errBody := do(t, r, call{method: http.MethodPost, path: "/api/v1/products", body: body, headers: headers})
	assert.Equal(t, http.StatusConflict, mismatch.Code)
	assert.Equal(t, "IDEMPOTENCY_CONFLICT", errBody["code"])
}
