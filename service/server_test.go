// Copyright 2025 AxonFlow
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package service

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"axonflow/careplan/llm"
	"axonflow/careplan/metrics"
	"axonflow/careplan/queue"
	"axonflow/careplan/store"
)

func newTestServer(t *testing.T) (*Server, sqlmock.Sqlmock, *queue.Queue) {
	t.Helper()

	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	q := queue.New(client, "")

	provider, err := llm.NewMockProviderFactory(llm.ProviderConfig{Type: llm.ProviderTypeMock})
	require.NoError(t, err)

	return NewServer(store.New(db), q, provider), mock, q
}

func doJSON(t *testing.T, server *Server, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var reqBody bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&reqBody).Encode(body))
	}

	req := httptest.NewRequest(method, path, &reqBody)
	rec := httptest.NewRecorder()
	server.Routes().ServeHTTP(rec, req)
	return rec
}

func TestCreateOrderEndpoint(t *testing.T) {
	server, mock, q := newTestServer(t)

	mock.ExpectQuery("INSERT INTO orders").
		WillReturnRows(sqlmock.NewRows([]string{"created_at", "updated_at"}).AddRow(time.Now(), time.Now()))

	rec := doJSON(t, server, "POST", "/api/orders", map[string]string{
		"patient_id":      "P1",
		"medication_name": "DrugA",
		"provider_npi":    "1234567890",
		"clinical_notes":  "stable",
	})

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp struct {
		Order  store.Order `json:"order"`
		Queued bool        `json:"queued"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Queued)
	assert.Equal(t, store.StatusPending, resp.Order.Status)

	// The generation task landed on the queue.
	depth, err := q.Depth(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), depth)
}

func TestCreateOrderDuplicateReturns409(t *testing.T) {
	server, mock, q := newTestServer(t)

	mock.ExpectQuery("INSERT INTO orders").
		WillReturnError(&pq.Error{Code: "23505"})
	mock.ExpectQuery("SELECT id FROM orders").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("existing-id"))

	dupBefore := testutil.ToFloat64(metrics.DuplicateDetectionTotal.WithLabelValues("order", "exact_match"))

	rec := doJSON(t, server, "POST", "/api/orders", map[string]string{
		"patient_id":      "P1",
		"medication_name": "DrugA",
		"provider_npi":    "1234567890",
	})

	require.Equal(t, http.StatusConflict, rec.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "existing-id", resp["existing_order_id"])

	dupAfter := testutil.ToFloat64(metrics.DuplicateDetectionTotal.WithLabelValues("order", "exact_match"))
	assert.Equal(t, 1.0, dupAfter-dupBefore)

	// Nothing queued for a rejected duplicate.
	depth, err := q.Depth(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(0), depth)
}

func TestCreateOrderValidation(t *testing.T) {
	server, _, _ := newTestServer(t)

	cases := []map[string]string{
		{},
		{"patient_id": "P1", "medication_name": "DrugA"},                            // no NPI
		{"patient_id": "P1", "medication_name": "DrugA", "provider_npi": "123"},     // short NPI
		{"patient_id": "P1", "medication_name": "DrugA", "provider_npi": "12345abc90"}, // non-digit NPI
		{"patient_id": "P1", "provider_npi": "1234567890"},                          // no medication
	}

	for _, body := range cases {
		rec := doJSON(t, server, "POST", "/api/orders", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, "body: %v", body)
	}
}

func orderRow(status string) *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "patient_id", "provider_npi", "medication_name", "clinical_notes",
		"status", "duplicate_check_hash", "attempts", "last_error", "created_at", "updated_at",
	}).AddRow("order-1", "P1", "1234567890", "DrugA", "",
		status, store.Fingerprint("P1", "DrugA", "1234567890"), 1, "timeout", time.Now(), time.Now())
}

func TestOrderStatusEndpoint(t *testing.T) {
	server, mock, _ := newTestServer(t)

	mock.ExpectQuery("SELECT (.+) FROM orders WHERE id").
		WillReturnRows(orderRow("processing"))

	rec := doJSON(t, server, "GET", "/api/orders/order-1/status", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "processing", resp["status"])
	assert.Equal(t, float64(1), resp["attempts"])
	assert.Equal(t, "timeout", resp["last_error"])
}

func TestOrderStatusNotFound(t *testing.T) {
	server, mock, _ := newTestServer(t)

	mock.ExpectQuery("SELECT (.+) FROM orders WHERE id").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	rec := doJSON(t, server, "GET", "/api/orders/missing/status", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func planRow() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "order_id", "content", "source", "provider", "model",
		"prompt_tokens", "completion_tokens", "generation_ms", "created_at",
	}).AddRow("plan-1", "order-1", "Plan text", "generated", "mock", "mock-model-v1", 120, 300, int64(900), time.Now())
}

func TestGetCarePlanEndpoint(t *testing.T) {
	server, mock, _ := newTestServer(t)

	mock.ExpectQuery("SELECT (.+) FROM care_plans WHERE order_id").
		WillReturnRows(planRow())

	rec := doJSON(t, server, "GET", "/api/orders/order-1/careplan", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var plan store.CarePlan
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &plan))
	assert.Equal(t, "Plan text", plan.Content)
	assert.Equal(t, store.PlanSourceGenerated, plan.Source)
}

func TestDownloadCarePlanEndpoint(t *testing.T) {
	server, mock, _ := newTestServer(t)

	mock.ExpectQuery("SELECT (.+) FROM care_plans WHERE order_id").
		WillReturnRows(planRow())

	rec := doJSON(t, server, "GET", "/api/orders/order-1/careplan/download", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, "Plan text", rec.Body.String())
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/plain")
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "care_plan_order-1.txt")
}

func TestCarePlanNotFound(t *testing.T) {
	server, mock, _ := newTestServer(t)

	mock.ExpectQuery("SELECT (.+) FROM care_plans WHERE order_id").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	rec := doJSON(t, server, "GET", "/api/orders/order-1/careplan", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUploadCarePlanEndpoint(t *testing.T) {
	server, mock, _ := newTestServer(t)

	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO care_plans").
		WillReturnRows(sqlmock.NewRows([]string{"created_at"}).AddRow(time.Now()))
	mock.ExpectExec("UPDATE orders SET status = 'completed'").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	rec := doJSON(t, server, "POST", "/api/orders/order-1/careplan", map[string]string{
		"content": "Manual plan",
	})

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var plan store.CarePlan
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &plan))
	assert.Equal(t, store.PlanSourceManual, plan.Source)
}

func TestUploadCarePlanConflictReturns409(t *testing.T) {
	server, mock, _ := newTestServer(t)

	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO care_plans").
		WillReturnError(&pq.Error{Code: "23505"})
	mock.ExpectRollback()

	rec := doJSON(t, server, "POST", "/api/orders/order-1/careplan", map[string]string{
		"content": "Manual plan",
	})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestUploadCarePlanEmptyContent(t *testing.T) {
	server, _, _ := newTestServer(t)

	rec := doJSON(t, server, "POST", "/api/orders/order-1/careplan", map[string]string{
		"content": "   ",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealthEndpoint(t *testing.T) {
	server, mock, _ := newTestServer(t)

	mock.ExpectPing()

	rec := doJSON(t, server, "GET", "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "healthy", resp["status"])
	assert.Equal(t, "careplan-generator", resp["service"])
}

func TestMetricsEndpoint(t *testing.T) {
	server, _, _ := newTestServer(t)

	rec := doJSON(t, server, "GET", "/metrics", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "careplan_")
}
