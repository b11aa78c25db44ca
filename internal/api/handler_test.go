package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hmsinventory/m/domain"
	"hmsinventory/m/internal/dbtest"
	"hmsinventory/m/internal/inventory"
	"hmsinventory/m/internal/store"
)

const testSecret = "test-secret"

type apiHarness struct {
	router http.Handler
	svc    *inventory.Service
}

func newAPI(t *testing.T) *apiHarness {
	t.Helper()
	st := store.New(dbtest.Open(t))
	svc := inventory.NewService(st, inventory.Options{
		Now:    func() time.Time { return time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC) },
		Logger: zerolog.Nop(),
	})
	h := New(svc, Options{Secret: testSecret, Logger: zerolog.Nop(), AlertHorizonDays: 30})
	return &apiHarness{router: h.Router(), svc: svc}
}

func token(t *testing.T, actor string, role domain.Role) string {
	t.Helper()
	tok, err := GenerateToken(testSecret, actor, string(role), time.Hour)
	require.NoError(t, err)
	return tok
}

func (a *apiHarness) do(t *testing.T, method, path, tok string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestHealthIsPublic(t *testing.T) {
	a := newAPI(t)
	rec := a.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))
}

func TestAuthRequired(t *testing.T) {
	a := newAPI(t)

	rec := a.do(t, http.MethodGet, "/items", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	forged, err := GenerateToken("other-secret", "u1", string(domain.RoleAdmin), time.Hour)
	require.NoError(t, err)
	rec = a.do(t, http.MethodGet, "/items", forged, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	expired, err := GenerateToken(testSecret, "u1", string(domain.RoleAdmin), -time.Minute)
	require.NoError(t, err)
	rec = a.do(t, http.MethodGet, "/items", expired, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRolesGateWrites(t *testing.T) {
	a := newAPI(t)
	viewer := token(t, "u-view", domain.RoleViewer)
	pharmacist := token(t, "u-pharm", domain.RolePharmacist)

	rec := a.do(t, http.MethodPost, "/items", pharmacist, map[string]any{"code": "X", "name": "X", "unit": "u"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = a.do(t, http.MethodPost, "/stock/dispense", viewer, map[string]any{"item_id": "x", "quantity": 1})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = a.do(t, http.MethodGet, "/alerts/low-stock", viewer, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestStockFlowOverHTTP(t *testing.T) {
	a := newAPI(t)
	admin := token(t, "u-admin", domain.RoleAdmin)
	pharmacist := token(t, "u-pharm", domain.RolePharmacist)

	rec := a.do(t, http.MethodPost, "/items", admin, map[string]any{
		"code": "AMX-500", "name": "Amoxicillin 500mg", "category": "drug", "unit": "capsule",
		"reorder_level": 20, "reorder_quantity": 200, "unit_cost": "0.35",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	item := decode[domain.Item](t, rec)

	rec = a.do(t, http.MethodPost, "/stock/receive", pharmacist, map[string]any{
		"item_id": item.ID, "batch_number": "AMX-2406", "quantity": 100, "expiry_date": "2024-06-11",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	received := decode[inventory.ReceiveResult](t, rec)
	assert.Equal(t, "u-pharm", received.Movement.ActorID)

	rec = a.do(t, http.MethodPost, "/stock/dispense", pharmacist, map[string]any{
		"item_id": item.ID, "quantity": 85, "reference_type": "prescription", "reference_id": "RX-1",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	dispensed := decode[inventory.DispenseResult](t, rec)
	assert.Equal(t, int64(15), dispensed.ResultingStock)

	rec = a.do(t, http.MethodPost, "/stock/dispense", pharmacist, map[string]any{"item_id": item.ID, "quantity": 16})
	require.Equal(t, http.StatusConflict, rec.Code)
	derr := decode[domain.Error](t, rec)
	assert.Equal(t, domain.KindInsufficientStock, derr.Kind)
	assert.Equal(t, int64(15), derr.Available)

	rec = a.do(t, http.MethodGet, "/alerts/low-stock", pharmacist, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	low := decode[[]domain.LowStockAlert](t, rec)
	require.Len(t, low, 1)
	assert.Equal(t, item.ID, low[0].ItemID)

	rec = a.do(t, http.MethodGet, "/alerts/expiring?days=30", pharmacist, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	exp := decode[struct {
		HorizonDays int                    `json:"horizon_days"`
		Batches     []domain.ExpiringBatch `json:"batches"`
	}](t, rec)
	assert.Equal(t, 30, exp.HorizonDays)
	require.Len(t, exp.Batches, 1)
	assert.Equal(t, 10, exp.Batches[0].DaysUntilExpiry)

	rec = a.do(t, http.MethodGet, "/items/"+item.ID+"/movements", pharmacist, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]domain.Movement](t, rec), 2)

	rec = a.do(t, http.MethodGet, "/movements?reference_type=prescription&reference_id=RX-1", pharmacist, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	byRef := decode[[]domain.Movement](t, rec)
	require.Len(t, byRef, 1)
	assert.Equal(t, int64(-85), byRef[0].Quantity)

	rec = a.do(t, http.MethodGet, "/movements?reference_type=prescription", pharmacist, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = a.do(t, http.MethodGet, "/items/"+item.ID+"/reconcile", pharmacist, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"consistent":true`)
}

func TestErrorStatuses(t *testing.T) {
	a := newAPI(t)
	admin := token(t, "u-admin", domain.RoleAdmin)

	rec := a.do(t, http.MethodGet, "/items/ghost", admin, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, domain.KindUnknownItem, decode[domain.Error](t, rec).Kind)

	rec = a.do(t, http.MethodPost, "/stock/adjust", admin, map[string]any{"item_id": "ghost", "delta": 0, "reason": "x"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = a.do(t, http.MethodPost, "/stock/dispense", admin, map[string]any{"item_id": "x", "quantity": 1, "surprise": true})
	assert.Equal(t, http.StatusBadRequest, rec.Code, "unknown fields are rejected")

	rec = a.do(t, http.MethodGet, "/alerts/expiring?days=-3", admin, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = a.do(t, http.MethodPost, "/items", admin, map[string]any{"code": "A", "name": "A", "unit": "u"})
	require.Equal(t, http.StatusCreated, rec.Code)
	rec = a.do(t, http.MethodPost, "/items", admin, map[string]any{"code": "A", "name": "A", "unit": "u"})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, domain.KindDuplicateItem, decode[domain.Error](t, rec).Kind)
}

func TestUpdateItemCannotChangeCode(t *testing.T) {
	a := newAPI(t)
	admin := token(t, "u-admin", domain.RoleAdmin)

	rec := a.do(t, http.MethodPost, "/items", admin, map[string]any{"code": "A", "name": "A", "unit": "u"})
	require.Equal(t, http.StatusCreated, rec.Code)
	item := decode[domain.Item](t, rec)

	rec = a.do(t, http.MethodPut, "/items/"+item.ID, admin, map[string]any{"code": "B", "name": "A", "unit": "u"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = a.do(t, http.MethodPut, "/items/"+item.ID, admin, map[string]any{"name": "Renamed", "unit": "box", "reorder_level": 5})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "Renamed", decode[domain.Item](t, rec).Name)

	rec = a.do(t, http.MethodPost, "/items/"+item.ID+"/deactivate", admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, decode[domain.Item](t, rec).Active)
}
