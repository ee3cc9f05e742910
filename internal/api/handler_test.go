package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Checker-Finance/ticker-bots/internal/allocator"
	"github.com/Checker-Finance/ticker-bots/internal/store"
	"github.com/Checker-Finance/ticker-bots/pkg/model"
)

// --- Mocks ---

type allocateCall struct {
	asset  model.AssetType
	ticker string
}

type mockAllocator struct {
	result model.AllocationResult
	calls  []allocateCall
}

func (m *mockAllocator) Allocate(_ context.Context, asset model.AssetType, raw string) model.AllocationResult {
	m.calls = append(m.calls, allocateCall{asset: asset, ticker: raw})
	return m.result
}

type mockSearcher struct {
	ids []string
	err error
}

func (m *mockSearcher) Search(context.Context, string) ([]string, error) {
	return m.ids, m.err
}

type mockRegistrar struct {
	registerErr error
	avatarErr   error
	registered  []allocator.RegisterRequest
}

func (m *mockRegistrar) Register(_ context.Context, req allocator.RegisterRequest) error {
	m.registered = append(m.registered, req)
	return m.registerErr
}

func (m *mockRegistrar) ChangeAvatar(context.Context, model.PoolID, string, string) error {
	return m.avatarErr
}

type mockPinger struct{ err error }

func (m mockPinger) HealthCheck() error { return m.err }

// --- Test Helpers ---

const adminUser, adminPass = "ops", "s3cret"

func newTestApp(alloc Allocator, searcher Searcher, reg Registrar) *fiber.App {
	app := fiber.New()
	RegisterRoutes(app, Routes{
		Store:      store.NewMemory(),
		Bots:       NewBotHandler(zap.NewNop(), alloc, searcher),
		Admin:      NewAdminHandler(zap.NewNop(), reg),
		AdminUsers: map[string]string{adminUser: adminPass},
	})
	return app
}

func doJSON(t *testing.T, app *fiber.App, method, path, body string, auth bool) (*http.Response, map[string]any) {
	t.Helper()
	var rdr io.Reader
	if body != "" {
		rdr = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rdr)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if auth {
		req.SetBasicAuth(adminUser, adminPass)
	}
	resp, err := app.Test(req)
	require.NoError(t, err)

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	out := map[string]any{}
	if strings.HasPrefix(resp.Header.Get("Content-Type"), fiber.MIMEApplicationJSON) && len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	}
	return resp, out
}

// --- Allocation ---

func TestAllocate_StatusByOutcome(t *testing.T) {
	cases := []struct {
		result model.AllocationResult
		status int
	}{
		{model.AllocationResult{ClientID: "1", Outcome: model.OutcomeCreated}, http.StatusCreated},
		{model.AllocationResult{ClientID: "1", Existing: true, Outcome: model.OutcomeExisting}, http.StatusOK},
		{model.AllocationResult{Error: "unable to validate coin id: x", Outcome: model.OutcomeInvalidTicker}, http.StatusNotFound},
		{model.AllocationResult{Error: allocator.MsgNoBots, Outcome: model.OutcomePoolExhausted}, http.StatusServiceUnavailable},
		{model.AllocationResult{Error: allocator.MsgBrandingFail, Outcome: model.OutcomeBrandingFailed}, http.StatusBadGateway},
		{model.AllocationResult{Error: allocator.MsgInternalError, Outcome: model.OutcomeInternalError}, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(string(tc.result.Outcome), func(t *testing.T) {
			app := newTestApp(&mockAllocator{result: tc.result}, nil, &mockRegistrar{})
			resp, body := doJSON(t, app, http.MethodPost, "/api/v1/crypto", `{"ticker":"bitcoin"}`, false)
			assert.Equal(t, tc.status, resp.StatusCode)
			assert.NotContains(t, body, "Outcome")
		})
	}
}

func TestAllocate_ResponseShapes(t *testing.T) {
	app := newTestApp(&mockAllocator{result: model.AllocationResult{ClientID: "42", Existing: true, Outcome: model.OutcomeExisting}}, nil, &mockRegistrar{})
	_, body := doJSON(t, app, http.MethodPost, "/api/v1/stock", `{"ticker":"aapl"}`, false)
	assert.Equal(t, map[string]any{"client_id": "42", "existing": true}, body)

	app = newTestApp(&mockAllocator{result: model.AllocationResult{ClientID: "43", Outcome: model.OutcomeCreated}}, nil, &mockRegistrar{})
	_, body = doJSON(t, app, http.MethodPost, "/api/v1/stock", `{"ticker":"msft"}`, false)
	assert.Equal(t, map[string]any{"client_id": "43"}, body)

	app = newTestApp(&mockAllocator{result: model.AllocationResult{Error: "boom", Outcome: model.OutcomeInternalError}}, nil, &mockRegistrar{})
	_, body = doJSON(t, app, http.MethodPost, "/api/v1/stock", `{"ticker":"msft"}`, false)
	assert.Equal(t, map[string]any{"error": "boom"}, body)
}

func TestAllocate_RoutesAssetTypes(t *testing.T) {
	alloc := &mockAllocator{result: model.AllocationResult{ClientID: "1", Outcome: model.OutcomeCreated}}
	app := newTestApp(alloc, nil, &mockRegistrar{})

	doJSON(t, app, http.MethodPost, "/api/v1/crypto", `{"ticker":" bitcoin "}`, false)
	doJSON(t, app, http.MethodGet, "/api/v1/stock/AAPL", "", false)
	doJSON(t, app, http.MethodGet, "/api/v1/crypto/ethereum", "", false)

	assert.Equal(t, []allocateCall{
		{asset: model.AssetCrypto, ticker: "bitcoin"},
		{asset: model.AssetStock, ticker: "AAPL"},
		{asset: model.AssetCrypto, ticker: "ethereum"},
	}, alloc.calls)
}

func TestAllocate_PathTickerOutlivesRequest(t *testing.T) {
	alloc := &mockAllocator{result: model.AllocationResult{Error: "invalid", Outcome: model.OutcomeInvalidTicker}}
	app := newTestApp(alloc, nil, &mockRegistrar{})

	doJSON(t, app, http.MethodGet, "/api/v1/crypto/aaaaaaaaaa", "", false)
	for i := 0; i < 20; i++ {
		doJSON(t, app, http.MethodGet, "/api/v1/crypto/zzzzzzzzzz", "", false)
	}

	require.Len(t, alloc.calls, 21)
	assert.Equal(t, "aaaaaaaaaa", alloc.calls[0].ticker)
}

func TestAllocate_BadRequests(t *testing.T) {
	alloc := &mockAllocator{}
	app := newTestApp(alloc, nil, &mockRegistrar{})

	resp, body := doJSON(t, app, http.MethodPost, "/api/v1/crypto", `{"ticker":"  "}`, false)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "ticker is required", body["error"])

	resp, _ = doJSON(t, app, http.MethodPost, "/api/v1/crypto", `{"ticker":`, false)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = doJSON(t, app, http.MethodPost, "/api/v1/crypto", fmt.Sprintf(`{"ticker":%q}`, strings.Repeat("x", 65)), false)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	assert.Empty(t, alloc.calls)
}

// --- Search ---

func TestSearch(t *testing.T) {
	app := newTestApp(&mockAllocator{}, &mockSearcher{ids: []string{"bitcoin", "bitcoin-cash"}}, &mockRegistrar{})
	resp, body := doJSON(t, app, http.MethodGet, "/api/v1/crypto/search?q=Bitcoin", "", false)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []any{"bitcoin", "bitcoin-cash"}, body["ids"])

	app = newTestApp(&mockAllocator{}, &mockSearcher{}, &mockRegistrar{})
	_, body = doJSON(t, app, http.MethodGet, "/api/v1/crypto/search?q=zzz", "", false)
	assert.Equal(t, []any{}, body["ids"])

	resp, _ = doJSON(t, app, http.MethodGet, "/api/v1/crypto/search", "", false)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	app = newTestApp(&mockAllocator{}, &mockSearcher{err: errors.New("429")}, &mockRegistrar{})
	resp, _ = doJSON(t, app, http.MethodGet, "/api/v1/crypto/search?q=btc", "", false)
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)

	app = newTestApp(&mockAllocator{}, nil, &mockRegistrar{})
	resp, _ = doJSON(t, app, http.MethodGet, "/api/v1/crypto/search?q=btc", "", false)
	assert.Equal(t, http.StatusNotImplemented, resp.StatusCode)
}

// --- Health ---

func TestHealth(t *testing.T) {
	app := fiber.New()
	RegisterRoutes(app, Routes{
		Store:  store.NewMemory(),
		Checks: map[string]Pinger{"nats": mockPinger{}},
		Bots:   NewBotHandler(zap.NewNop(), &mockAllocator{}, nil),
	})
	resp, body := doJSON(t, app, http.MethodGet, "/health", "", false)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body["status"])

	app = fiber.New()
	RegisterRoutes(app, Routes{
		Store:  store.NewMemory(),
		Checks: map[string]Pinger{"nats": mockPinger{err: errors.New("nats: connection closed")}},
		Bots:   NewBotHandler(zap.NewNop(), &mockAllocator{}, nil),
	})
	resp, body = doJSON(t, app, http.MethodGet, "/health", "", false)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, "degraded", body["status"])
}

func TestMetricsEndpoint(t *testing.T) {
	app := newTestApp(&mockAllocator{}, nil, &mockRegistrar{})
	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
