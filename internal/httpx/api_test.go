package httpx

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ryujihub/MMHHINVmobile/internal/analytics"
	"github.com/ryujihub/MMHHINVmobile/internal/auth"
	"github.com/ryujihub/MMHHINVmobile/internal/borrowing"
	"github.com/ryujihub/MMHHINVmobile/internal/docstore/memory"
	"github.com/ryujihub/MMHHINVmobile/internal/domain"
	"github.com/ryujihub/MMHHINVmobile/internal/ledger"
	"github.com/ryujihub/MMHHINVmobile/internal/movements"
	"github.com/ryujihub/MMHHINVmobile/internal/settings"
)

const testSecret = "test-secret-at-least-32-chars-long-for-security"

type memIdem struct {
	mu   sync.Mutex
	keys map[string]string
}

func (m *memIdem) Claim(_ context.Context, userID, key string) (bool, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.keys[userID+":"+key]
	if ok {
		return false, v, nil
	}
	m.keys[userID+":"+key] = ""
	return true, "", nil
}

func (m *memIdem) Complete(_ context.Context, userID, key, movementID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.keys[userID+":"+key] = movementID
	return nil
}

func (m *memIdem) Release(_ context.Context, userID, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.keys, userID+":"+key)
	return nil
}

type apiFixture struct {
	router   *chi.Mux
	verifier *auth.JWTVerifier
	ledger   *ledger.Ledger
}

func newAPI(t *testing.T) *apiFixture {
	t.Helper()
	log := zap.NewNop()
	st := memory.New()
	l := ledger.New(st, log)
	rec := movements.NewRecorder(st, l, log)
	v := auth.NewJWTVerifier(testSecret, "")

	r := NewRouter(log)
	Mount(r, v.Middleware, 5*time.Second,
		&ItemsHandler{Ledger: l, Movements: rec, Log: log},
		&MovementsHandler{Recorder: rec, Idem: &memIdem{keys: map[string]string{}}, Log: log},
		&BorrowsHandler{Manager: borrowing.NewManager(st, l, log), Log: log},
		&DashboardHandler{Analytics: analytics.NewService(l, st, log), Log: log},
		&SettingsHandler{Settings: settings.NewService(st, log), Log: log},
	)
	return &apiFixture{router: r, verifier: v, ledger: l}
}

func (f *apiFixture) token(t *testing.T, userID string) string {
	t.Helper()
	tok, err := f.verifier.Issue(userID, time.Hour)
	require.NoError(t, err)
	return tok
}

func (f *apiFixture) do(t *testing.T, method, path, token string, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else {
			require.NoError(t, json.NewEncoder(&buf).Encode(body))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func (f *apiFixture) createItem(t *testing.T, token string, body map[string]any) domain.Item {
	t.Helper()
	rec := f.do(t, http.MethodPost, "/items", token, body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[domain.Item](t, rec)
}

func TestHealthzIsPublic(t *testing.T) {
	f := newAPI(t)
	rec := f.do(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodGet, "/items", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestItems(t *testing.T) {
	f := newAPI(t)
	alice, bob := f.token(t, "alice"), f.token(t, "bob")

	it := f.createItem(t, alice, map[string]any{
		"name": "Hammer", "productCode": "H-1", "unit": "pcs", "currentStock": 7, "price": "120.50",
	})
	assert.Equal(t, "alice", it.UserID)
	assert.Equal(t, 7, it.CurrentStock)
	assert.Equal(t, 7, it.MinimumStock, "minimum seeded from current stock")
	assert.Equal(t, domain.DefaultCategory, it.Category)

	rec := f.do(t, http.MethodGet, "/items/"+it.ID, bob, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code, "items of other users are hidden")

	rec = f.do(t, http.MethodPut, "/items/"+it.ID, alice, map[string]any{"minimumStock": "10"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	updated := decode[domain.Item](t, rec)
	assert.Equal(t, 10, updated.MinimumStock)
	assert.Equal(t, -3, updated.VarianceQuantity)

	rec = f.do(t, http.MethodGet, "/items?search=ham", alice, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]domain.Item](t, rec), 1)

	rec = f.do(t, http.MethodGet, "/items", bob, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[[]domain.Item](t, rec))

	rec = f.do(t, http.MethodDelete, "/items/"+it.ID, bob, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = f.do(t, http.MethodDelete, "/items/"+it.ID, alice, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = f.do(t, http.MethodGet, "/items/"+it.ID, alice, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestItems_Errors(t *testing.T) {
	f := newAPI(t)
	alice := f.token(t, "alice")

	rec := f.do(t, http.MethodPost, "/items", alice, map[string]any{"name": "No code"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	body := decode[errorResponse](t, rec)
	fields := make([]string, 0, len(body.Fields))
	for _, fe := range body.Fields {
		fields = append(fields, fe.Field)
	}
	assert.ElementsMatch(t, []string{"productCode", "unit"}, fields)

	f.createItem(t, alice, map[string]any{"name": "A", "productCode": "X", "unit": "pcs"})
	rec = f.do(t, http.MethodPost, "/items", alice, map[string]any{"name": "B", "productCode": "X", "unit": "pcs"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = f.do(t, http.MethodPost, "/items", alice, `{"name":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = f.do(t, http.MethodPost, "/items", alice, map[string]any{"name": "C", "productCode": "Y", "unit": "pcs", "colour": "red"})
	assert.Equal(t, http.StatusBadRequest, rec.Code, "unknown fields are rejected")
}

func TestQuickUpdateRecordsMovement(t *testing.T) {
	f := newAPI(t)
	alice := f.token(t, "alice")
	it := f.createItem(t, alice, map[string]any{"name": "Nail", "productCode": "N-1", "unit": "box", "currentStock": "5"})

	rec := f.do(t, http.MethodPost, "/items/"+it.ID+"/quick-update", alice, QuickUpdateReq{Amount: 4})
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	mv := decode[domain.StockMovement](t, rec)
	assert.Equal(t, domain.MovementIn, mv.Type)
	assert.Equal(t, domain.SourceQuickUpdate, mv.Source)

	rec = f.do(t, http.MethodGet, "/movements", alice, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]domain.StockMovement](t, rec), 1)

	rec = f.do(t, http.MethodPost, "/items/"+it.ID+"/quick-update", alice, QuickUpdateReq{Amount: 0})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMovements_IdempotencyKey(t *testing.T) {
	f := newAPI(t)
	alice := f.token(t, "alice")
	f.createItem(t, alice, map[string]any{"name": "Nail", "productCode": "N-1", "unit": "box", "currentStock": "5"})
	body := map[string]any{"productCode": "N-1", "type": "out", "quantity": 2}

	first := f.do(t, http.MethodPost, "/movements", alice, body, headerIdempotencyKey, "k-1")
	require.Equal(t, http.StatusAccepted, first.Code, first.Body.String())
	second := f.do(t, http.MethodPost, "/movements", alice, body, headerIdempotencyKey, "k-1")
	require.Equal(t, http.StatusOK, second.Code)
	assert.Equal(t, "true", second.Header().Get("Idempotent-Replayed"))
	assert.Equal(t, decode[domain.StockMovement](t, first).ID, decode[domain.StockMovement](t, second).ID)

	rec := f.do(t, http.MethodGet, "/movements", alice, nil)
	assert.Len(t, decode[[]domain.StockMovement](t, rec), 1)

	over := f.do(t, http.MethodPost, "/movements", alice,
		map[string]any{"productCode": "N-1", "type": "out", "quantity": 50}, headerIdempotencyKey, "k-2")
	assert.Equal(t, http.StatusConflict, over.Code)
	retry := f.do(t, http.MethodPost, "/movements", alice, body, headerIdempotencyKey, "k-2")
	assert.Equal(t, http.StatusAccepted, retry.Code, "failed request released its key")
}

func TestBorrowLifecycle(t *testing.T) {
	f := newAPI(t)
	alice := f.token(t, "alice")
	it := f.createItem(t, alice, map[string]any{"name": "Drill", "productCode": "D-1", "unit": "pcs", "category": "Tools", "currentStock": "3"})

	rec := f.do(t, http.MethodPost, "/borrows", alice, map[string]any{
		"itemId": it.ID, "quantity": 2, "purpose": "site", "expectedReturnDate": time.Now().Add(24 * time.Hour),
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	br := decode[domain.BorrowRequest](t, rec)
	assert.Equal(t, "alice", br.RequestedBy)
	assert.Equal(t, domain.BorrowPending, br.Status)

	rec = f.do(t, http.MethodPost, "/borrows/"+br.ID+"/return", alice, nil)
	assert.Equal(t, http.StatusConflict, rec.Code, "pending cannot be returned")

	rec = f.do(t, http.MethodPost, "/borrows/"+br.ID+"/approve", alice, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "alice", decode[domain.BorrowRequest](t, rec).ApprovedBy)

	rec = f.do(t, http.MethodPost, "/borrows/"+br.ID+"/return", alice, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, domain.BorrowReturned, decode[domain.BorrowRequest](t, rec).Status)

	cur, err := f.ledger.Get(context.Background(), it.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, cur.CurrentStock)

	rec = f.do(t, http.MethodGet, "/borrows", alice, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]domain.BorrowRequest](t, rec), 1)

	rec = f.do(t, http.MethodPost, "/borrows", alice, map[string]any{
		"itemId": it.ID, "quantity": 99, "purpose": "site", "expectedReturnDate": time.Now(),
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestBorrows_OtherUsersGetNotFound(t *testing.T) {
	f := newAPI(t)
	alice, mallory := f.token(t, "alice"), f.token(t, "mallory")
	it := f.createItem(t, alice, map[string]any{"name": "Drill", "productCode": "D-1", "unit": "pcs", "category": "Tools", "currentStock": "5"})

	rec := f.do(t, http.MethodPost, "/borrows", mallory, map[string]any{
		"itemId": it.ID, "quantity": 5, "purpose": "site", "expectedReturnDate": time.Now().Add(24 * time.Hour),
	})
	assert.Equal(t, http.StatusNotFound, rec.Code, rec.Body.String())

	rec = f.do(t, http.MethodPost, "/borrows", alice, map[string]any{
		"itemId": it.ID, "quantity": 2, "purpose": "site", "expectedReturnDate": time.Now().Add(24 * time.Hour),
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	br := decode[domain.BorrowRequest](t, rec)

	rec = f.do(t, http.MethodPost, "/borrows/"+br.ID+"/approve", mallory, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(t, http.MethodPost, "/borrows/"+br.ID+"/approve", alice, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodPost, "/borrows/"+br.ID+"/return", mallory, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	cur, err := f.ledger.Get(context.Background(), it.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, cur.CurrentStock)
}

// nextEvent reads one server-sent event.
func nextEvent(t *testing.T, br *bufio.Reader) (string, domain.BorrowRequest) {
	t.Helper()
	var (
		kind string
		req  domain.BorrowRequest
	)
	for {
		line, err := br.ReadString('\n')
		require.NoError(t, err)
		line = strings.TrimRight(line, "\n")
		switch {
		case strings.HasPrefix(line, "event: "):
			kind = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &req))
		case line == "" && kind != "":
			return kind, req
		}
	}
}

func TestBorrowStream(t *testing.T) {
	f := newAPI(t)
	srv := httptest.NewServer(f.router)
	defer srv.Close()
	alice := f.token(t, "alice")
	it := f.createItem(t, alice, map[string]any{"name": "Drill", "productCode": "D-1", "unit": "pcs", "category": "Tools", "currentStock": "3"})

	rec := f.do(t, http.MethodPost, "/borrows", alice, map[string]any{
		"itemId": it.ID, "quantity": 1, "purpose": "site", "expectedReturnDate": time.Now().Add(24 * time.Hour),
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	br := decode[domain.BorrowRequest](t, rec)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/borrows/stream", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+alice)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	body := bufio.NewReader(resp.Body)
	kind, got := nextEvent(t, body)
	assert.Equal(t, "added", kind)
	assert.Equal(t, br.ID, got.ID)
	assert.Equal(t, domain.BorrowPending, got.Status)

	rec = f.do(t, http.MethodPost, "/borrows/"+br.ID+"/approve", alice, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	kind, got = nextEvent(t, body)
	assert.Equal(t, "modified", kind)
	assert.Equal(t, domain.BorrowApproved, got.Status)
}

func TestBorrowStream_RequiresToken(t *testing.T) {
	f := newAPI(t)
	rec := f.do(t, http.MethodGet, "/borrows/stream", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestSettings(t *testing.T) {
	f := newAPI(t)
	alice := f.token(t, "alice")

	rec := f.do(t, http.MethodGet, "/settings", alice, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, domain.DefaultSettings("alice"), decode[domain.Settings](t, rec))

	rec = f.do(t, http.MethodPut, "/settings", alice, map[string]any{"currency": "$", "lowStockThreshold": 3, "userId": "mallory"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	saved := decode[domain.Settings](t, rec)
	assert.Equal(t, "alice", saved.UserID)
	assert.Equal(t, "$", saved.Currency)
	assert.Equal(t, 1, saved.RefreshInterval)

	rec = f.do(t, http.MethodGet, "/settings", alice, nil)
	assert.Equal(t, 3, decode[domain.Settings](t, rec).LowStockThreshold)

	rec = f.do(t, http.MethodPut, "/settings", alice, map[string]any{"refreshInterval": 0})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDashboard(t *testing.T) {
	f := newAPI(t)
	alice := f.token(t, "alice")
	f.createItem(t, alice, map[string]any{"name": "Saw", "productCode": "S-1", "unit": "pcs", "currentStock": "0", "minimumStock": "2", "price": "40"})
	f.createItem(t, alice, map[string]any{"name": "Tape", "productCode": "T-1", "unit": "roll", "category": "Hardware", "currentStock": "30", "usage": "4", "price": "50"})

	rec := f.do(t, http.MethodGet, "/dashboard", alice, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var d struct {
		TotalItems     int    `json:"totalItems"`
		OutOfStock     int    `json:"outOfStock"`
		Categories     int    `json:"categories"`
		TopSellingItem string `json:"topSellingItem"`
		TopCategory    string `json:"topCategory"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &d))
	assert.Equal(t, 2, d.TotalItems)
	assert.Equal(t, 1, d.OutOfStock)
	assert.Equal(t, 2, d.Categories)
	assert.Equal(t, "Tape", d.TopSellingItem)
	assert.Equal(t, "Hardware", d.TopCategory)
}
