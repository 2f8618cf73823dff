package http_test

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/luisfernandobanegasro/parcial/internal/billing"
	"github.com/luisfernandobanegasro/parcial/internal/billing/billingtest"
	exportSvc "github.com/luisfernandobanegasro/parcial/internal/export"
	apihttp "github.com/luisfernandobanegasro/parcial/internal/http"
	"github.com/luisfernandobanegasro/parcial/internal/http/charge"
	"github.com/luisfernandobanegasro/parcial/internal/http/export"
	"github.com/luisfernandobanegasro/parcial/internal/http/intent"
	"github.com/luisfernandobanegasro/parcial/internal/http/matching"
	"github.com/luisfernandobanegasro/parcial/internal/http/payment"
	"github.com/luisfernandobanegasro/parcial/internal/http/reconciliation"
	"github.com/luisfernandobanegasro/parcial/internal/http/statement"
	matchingSvc "github.com/luisfernandobanegasro/parcial/internal/matching"
	"github.com/luisfernandobanegasro/parcial/internal/qrpay"
	"github.com/luisfernandobanegasro/parcial/internal/reconcile"
	"github.com/luisfernandobanegasro/parcial/internal/reconcile/bankcsv"
)

var webhookSecret = []byte("gateway-secret")

type memoryImports struct {
	seen map[string]bool
}

func (m *memoryImports) ReserveImport(_ context.Context, imp *reconcile.Import) error {
	if m.seen[imp.SHA256] {
		return billing.ErrConflict
	}

	m.seen[imp.SHA256] = true
	imp.ID = uuid.New()
	imp.ImportedAt = time.Now()

	return nil
}

func (m *memoryImports) CompleteImport(context.Context, *reconcile.Import) error { return nil }
func (m *memoryImports) ReleaseImport(context.Context, uuid.UUID) error         { return nil }

type noMappings struct{}

func (noMappings) FindMatch(context.Context, string) (*uuid.UUID, error)  { return nil, nil }
func (noMappings) CreateMapping(context.Context, *matchingSvc.Mapping) error { return nil }

type api struct {
	t      *testing.T
	server *httptest.Server
	unit   *billing.Unit
}

func newAPI(t *testing.T) *api {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	units := billingtest.Units{}
	unit := units.NewUnit("A-101")

	keys, err := qrpay.NewKeyring("qr-secret", 1, 1)
	require.NoError(t, err)

	svc := billing.NewService(billingtest.New(), units, qrpay.NewSigner(keys), billing.WithLogger(logger))
	recon := reconcile.NewService(bankcsv.NewParser(), &memoryImports{seen: map[string]bool{}}, svc, nil, logger)

	router := apihttp.New(apihttp.Options{
		Timeout:          5 * time.Second,
		WebhookSecret:    webhookSecret,
		WebhookIssuer:    "payment-gateway",
		WebhookRateLimit: 100,
	}, apihttp.Handlers{
		Charges:        charge.NewHandler(svc, decimal.RequireFromString("0.001")),
		Payments:       payment.NewHandler(svc, false),
		Intents:        intent.NewHandler(svc),
		Statements:     statement.NewHandler(svc),
		Exports:        export.NewHandler(exportSvc.NewService(svc, units)),
		Reconciliation: reconciliation.NewHandler(recon),
		PayerMappings:  matching.NewHandler(matchingSvc.NewService(noMappings{}, units)),
	})

	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	return &api{t: t, server: server, unit: unit}
}

func (a *api) do(method, path string, body any, headers ...string) (int, map[string]any) {
	a.t.Helper()

	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(a.t, err)
		r = bytes.NewReader(b)
	}

	req, err := http.NewRequest(method, a.server.URL+path, r)
	require.NoError(a.t, err)

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	return a.send(req)
}

func (a *api) send(req *http.Request) (int, map[string]any) {
	a.t.Helper()

	resp, err := http.DefaultClient.Do(req)
	require.NoError(a.t, err)
	defer resp.Body.Close()

	var out map[string]any

	raw, err := io.ReadAll(resp.Body)
	require.NoError(a.t, err)

	if len(raw) > 0 && raw[0] == '{' {
		require.NoError(a.t, json.Unmarshal(raw, &out))
	}

	return resp.StatusCode, out
}

func gatewayToken(t *testing.T) string {
	t.Helper()

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Issuer:    "payment-gateway",
		Subject:   "gw-test",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
	}).SignedString(webhookSecret)
	require.NoError(t, err)

	return "Bearer " + token
}

func (a *api) createCharge(principal, due string) string {
	a.t.Helper()

	status, concept := a.do(http.MethodPost, "/api/v1/concepts", map[string]any{"name": "Expensa " + uuid.NewString()})
	require.Equal(a.t, http.StatusCreated, status)

	status, c := a.do(http.MethodPost, "/api/v1/charges", map[string]any{
		"unit_id":    a.unit.ID,
		"concept_id": concept["id"],
		"due_date":   due,
		"principal":  principal,
	})
	require.Equal(a.t, http.StatusCreated, status, "%v", c)

	return c["id"].(string)
}

func TestQRPaymentFlow(t *testing.T) {
	a := newAPI(t)
	chargeID := a.createCharge("150.00", "2099-01-10")

	status, p := a.do(http.MethodPost, "/api/v1/payments/register", map[string]any{
		"unit_id":     a.unit.ID,
		"method":      "QR",
		"allocations": []map[string]any{{"charge_id": chargeID, "amount": "150.00"}},
	})
	require.Equal(t, http.StatusCreated, status, "%v", p)
	assert.Equal(t, "PENDING", p["status"])
	assert.Equal(t, "150.00", p["amount"])

	paymentID := p["id"].(string)

	status, in := a.do(http.MethodPost, "/api/v1/payments/"+paymentID+"/start-qr-intent", nil)
	require.Equal(t, http.StatusCreated, status, "%v", in)
	assert.Equal(t, "CREATED", in["status"])
	require.NotEmpty(t, in["qr_payload"])

	intentPath := "/api/v1/payment-intents/" + in["id"].(string)
	confirm := map[string]any{"outcome": "approved", "gateway_ref": "gw-1", "qr_payload": in["qr_payload"]}

	t.Run("webhook requires a token", func(t *testing.T) {
		status, problem := a.do(http.MethodPost, intentPath+"/confirm", confirm)
		assert.Equal(t, http.StatusUnauthorized, status)
		assert.Equal(t, float64(http.StatusUnauthorized), problem["status"])
	})

	for range 2 {
		status, got := a.do(http.MethodPost, intentPath+"/confirm", confirm, "Authorization", gatewayToken(t))
		require.Equal(t, http.StatusOK, status, "%v", got)
		assert.Equal(t, "APPROVED", got["status"])
		assert.Equal(t, paymentID, got["approved_payment_id"])
	}

	status, stmt := a.do(http.MethodGet, "/api/v1/account-statement/unit/"+a.unit.ID.String(), nil)
	require.Equal(t, http.StatusOK, status)

	rows := stmt["rows"].([]any)
	require.Len(t, rows, 1)

	row := rows[0].(map[string]any)
	assert.Equal(t, "PAID", row["status"])
	assert.Equal(t, "0.00", row["balance"])
	assert.Equal(t, "150.00", row["paid"])
}

func TestErrorsAreProblems(t *testing.T) {
	a := newAPI(t)

	tests := []struct {
		name       string
		method     string
		path       string
		body       any
		wantStatus int
		wantField  string
	}{
		{name: "unknown charge", method: http.MethodGet, path: "/api/v1/charges/" + uuid.NewString(), wantStatus: http.StatusNotFound},
		{name: "bad id", method: http.MethodGet, path: "/api/v1/payments/nope", wantStatus: http.StatusBadRequest, wantField: "id"},
		{
			name:       "bad method",
			method:     http.MethodPost,
			path:       "/api/v1/payments/register",
			body:       map[string]any{"unit_id": uuid.New(), "method": "GOLD", "allocations": []any{}},
			wantStatus: http.StatusBadRequest,
			wantField:  "method",
		},
		{
			name:       "manual validation disabled",
			method:     http.MethodPost,
			path:       "/api/v1/payments/" + uuid.NewString() + "/validate-qr",
			body:       map[string]any{"intent_id": uuid.New()},
			wantStatus: http.StatusForbidden,
		},
		{name: "bad statement status", method: http.MethodGet, path: "/api/v1/account-statement/unit/" + a.unit.ID.String() + "?status=LOST", wantStatus: http.StatusBadRequest, wantField: "status"},
		{name: "bad page", method: http.MethodGet, path: "/api/v1/account-statement/unit/" + a.unit.ID.String() + "?page=0", wantStatus: http.StatusBadRequest, wantField: "page"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, problem := a.do(tt.method, tt.path, tt.body)
			assert.Equal(t, tt.wantStatus, status)
			assert.Equal(t, float64(tt.wantStatus), problem["status"])

			if tt.wantField != "" {
				fields, ok := problem["errors"].(map[string]any)
				require.True(t, ok, "%v", problem)
				assert.Contains(t, fields, tt.wantField)
			}
		})
	}
}

func TestDuplicateChargeIsConflict(t *testing.T) {
	a := newAPI(t)

	status, concept := a.do(http.MethodPost, "/api/v1/concepts", map[string]any{"name": "Expensa"})
	require.Equal(t, http.StatusCreated, status)

	body := map[string]any{
		"unit_id":    a.unit.ID,
		"concept_id": concept["id"],
		"due_date":   "2024-03-10",
		"principal":  "100",
	}

	status, _ = a.do(http.MethodPost, "/api/v1/charges", body)
	require.Equal(t, http.StatusCreated, status)

	status, problem := a.do(http.MethodPost, "/api/v1/charges", body)
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "Conflict", problem["title"])
}

func TestBankStatementUpload(t *testing.T) {
	a := newAPI(t)
	chargeID := a.createCharge("150.00", "2099-01-10")

	status, p := a.do(http.MethodPost, "/api/v1/payments/register", map[string]any{
		"unit_id":      a.unit.ID,
		"method":       "TRANSFER",
		"external_ref": "TRX-00123",
		"allocations":  []map[string]any{{"charge_id": chargeID, "amount": "150.00"}},
	})
	require.Equal(t, http.StatusCreated, status, "%v", p)

	csv := "Fecha;Descripción;Referencia;Débito;Crédito\n" +
		"05/01/2024;TRANSFERENCIA RECIBIDA;TRX-00123;;150,00\n" +
		"06/01/2024;COMISION;;5,00;\n"

	upload := func() (int, map[string]any) {
		var buf bytes.Buffer

		mw := multipart.NewWriter(&buf)
		fw, err := mw.CreateFormFile("file", "enero.csv")
		require.NoError(t, err)

		_, err = fw.Write([]byte(csv))
		require.NoError(t, err)
		require.NoError(t, mw.Close())

		req, err := http.NewRequest(http.MethodPost, a.server.URL+"/api/v1/reconciliation/bank-statement", &buf)
		require.NoError(t, err)
		req.Header.Set("Content-Type", mw.FormDataContentType())

		return a.send(req)
	}

	status, report := upload()
	require.Equal(t, http.StatusCreated, status, "%v", report)
	assert.Equal(t, "bnb", report["profile"])

	counts := report["counts"].(map[string]any)
	assert.Equal(t, float64(1), counts["matched"])
	assert.Equal(t, float64(1), counts["ignored"])

	status, got := a.do(http.MethodGet, "/api/v1/payments/"+p["id"].(string), nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "APPROVED", got["status"])

	status, _ = upload()
	assert.Equal(t, http.StatusConflict, status)
}

func TestHealthz(t *testing.T) {
	a := newAPI(t)

	resp, err := http.Get(a.server.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func (a *api) download(path string) (*http.Response, []byte) {
	a.t.Helper()

	resp, err := http.Get(a.server.URL + path)
	require.NoError(a.t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(a.t, err)

	return resp, body
}

func TestStatementExport(t *testing.T) {
	a := newAPI(t)
	a.createCharge("120.00", "2024-03-10")

	base := "/api/v1/account-statement/unit/" + a.unit.ID.String()

	resp, body := a.download(base + "/export.csv")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/csv; charset=utf-8", resp.Header.Get("Content-Type"))
	assert.Contains(t, resp.Header.Get("Content-Disposition"), "estado_A-101_")

	lines := bytes.Split(bytes.TrimSpace(body), []byte("\n"))
	require.Len(t, lines, 2)
	assert.Contains(t, string(lines[1]), "2024-03;")
	assert.Contains(t, string(lines[1]), ";120.00;0.00;0.00;120.00;OVERDUE;PENDING")

	resp, body = a.download(base + "/export.zip")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	zr, err := zip.NewReader(bytes.NewReader(body), int64(len(body)))
	require.NoError(t, err)
	require.Len(t, zr.File, 2)
	assert.Equal(t, "estado_de_cuenta.csv", zr.File[0].Name)
	assert.Equal(t, "resumen.txt", zr.File[1].Name)

	resp, _ = a.download("/api/v1/account-statement/unit/" + uuid.NewString() + "/export.csv")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
