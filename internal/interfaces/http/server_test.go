package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/garyjia/invoice-qc/internal/application/service"
	"github.com/garyjia/invoice-qc/internal/container"
	"github.com/garyjia/invoice-qc/internal/history"
	"github.com/garyjia/invoice-qc/internal/models"
	"github.com/garyjia/invoice-qc/internal/validator"
)

const validInvoice = `{
  "invoice_number": "INV-1",
  "invoice_date": "2024-03-15",
  "supplier_name": "Acme Corp",
  "supplier_tax_id": "12-345",
  "buyer_name": "Globex",
  "subtotal": "100.00",
  "tax_amount": "8.00",
  "total_amount": "108.00",
  "line_items": [{"description": "Widget", "quantity": 2, "unit_price": "50.00", "line_total": "100.00"}]
}`

type failingStore struct{}

func (failingStore) Load(context.Context) (history.Snapshot, error) {
	return history.Snapshot{}, errors.New("store unavailable")
}

func (failingStore) Save(context.Context, history.Snapshot) error { return nil }

type staticHealth struct{ ok bool }

func (h staticHealth) Health(context.Context) *container.HealthStatus {
	return &container.HealthStatus{
		Overall:    h.ok,
		Components: map[string]container.ComponentHealth{"engine": {Healthy: h.ok}},
	}
}

func newTestServer(t *testing.T, svc service.ValidationService, health HealthReporter, maxBody int64) *Server {
	t.Helper()
	cfg := DefaultServerConfig()
	if maxBody > 0 {
		cfg.MaxBodyBytes = maxBody
	}
	s := NewServer(cfg, svc, health, zap.NewNop())
	gin.SetMode(gin.TestMode)
	return s
}

func newService(t *testing.T) service.ValidationService {
	t.Helper()
	opts := validator.DefaultOptions()
	opts.Policy.Now = func() time.Time { return time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC) }
	engine, err := validator.NewEngine(opts)
	require.NoError(t, err)
	return service.NewValidationService(engine, nil, nil, zap.NewNop())
}

func do(s *Server, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)
	return w
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

func decode(t *testing.T, w *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	return env
}

func TestHealthCheck(t *testing.T) {
	t.Run("healthy", func(t *testing.T) {
		s := newTestServer(t, newService(t), staticHealth{ok: true}, 0)
		w := do(s, http.MethodGet, "/health", "")
		assert.Equal(t, http.StatusOK, w.Code)
		env := decode(t, w)
		assert.True(t, env.Success)
		assert.Contains(t, string(env.Data), `"status":"healthy"`)
	})

	t.Run("unhealthy", func(t *testing.T) {
		s := newTestServer(t, newService(t), staticHealth{ok: false}, 0)
		w := do(s, http.MethodGet, "/health", "")
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
		assert.False(t, decode(t, w).Success)
	})
}

func TestValidateEndpoint(t *testing.T) {
	s := newTestServer(t, newService(t), nil, 0)

	w := do(s, http.MethodPost, "/api/v1/validate", validInvoice)
	require.Equal(t, http.StatusOK, w.Code)

	env := decode(t, w)
	require.True(t, env.Success)
	var verdict models.ValidationVerdict
	require.NoError(t, json.Unmarshal(env.Data, &verdict))
	assert.True(t, verdict.IsValid)
	assert.Equal(t, "ACME_CORP_INV1_2024-03-15", verdict.InvoiceID)
	assert.Empty(t, verdict.Errors)

	t.Run("findings are not request errors", func(t *testing.T) {
		w := do(s, http.MethodPost, "/api/v1/validate", `{"invoice_number": "X"}`)
		require.Equal(t, http.StatusOK, w.Code)
		var verdict models.ValidationVerdict
		require.NoError(t, json.Unmarshal(decode(t, w).Data, &verdict))
		assert.False(t, verdict.IsValid)
		assert.True(t, verdict.HasCode(models.CodeMissingField))
	})
}

func TestValidateBatchEndpoint(t *testing.T) {
	s := newTestServer(t, newService(t), nil, 0)

	w := do(s, http.MethodPost, "/api/v1/validate/batch", "["+validInvoice+","+validInvoice+"]")
	require.Equal(t, http.StatusOK, w.Code)

	var report models.BatchReport
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &report))
	assert.Equal(t, 2, report.Total)
	assert.Equal(t, 2, report.Valid)
	assert.True(t, report.Verdicts[1].HasCode(models.CodeDuplicateInvoice))
	assert.Equal(t, []models.CodeCount{{Code: models.CodeDuplicateInvoice, Count: 1}}, report.TopErrorCodes)
}

func TestBadRequests(t *testing.T) {
	tests := []struct {
		name    string
		path    string
		body    string
		maxBody int64
		status  int
	}{
		{"malformed json", "/api/v1/validate", `{"invoice_number":`, 0, http.StatusBadRequest},
		{"array for single", "/api/v1/validate", `[]`, 0, http.StatusBadRequest},
		{"empty body", "/api/v1/validate", ``, 0, http.StatusBadRequest},
		{"line items not array", "/api/v1/validate", `{"line_items": 5}`, 0, http.StatusBadRequest},
		{"scalar batch", "/api/v1/validate/batch", `"x"`, 0, http.StatusBadRequest},
		{"too large", "/api/v1/validate/batch", "[" + validInvoice + "]", 64, http.StatusRequestEntityTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t, newService(t), nil, tt.maxBody)
			w := do(s, http.MethodPost, tt.path, tt.body)
			assert.Equal(t, tt.status, w.Code)
			env := decode(t, w)
			assert.False(t, env.Success)
			assert.NotEmpty(t, env.Error)
		})
	}
}

func TestStoreFailureIsServerError(t *testing.T) {
	opts := validator.DefaultOptions()
	engine, err := validator.NewEngine(opts)
	require.NoError(t, err)
	svc := service.NewValidationService(engine, failingStore{}, nil, zap.NewNop())

	s := newTestServer(t, svc, nil, 0)
	w := do(s, http.MethodPost, "/api/v1/validate/batch", "["+validInvoice+"]")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.False(t, decode(t, w).Success)
}
