package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"budgetcards/internal/ai"
	"budgetcards/internal/core"
	"budgetcards/internal/editor"
	"budgetcards/internal/middleware/ratelimit"
	"budgetcards/internal/services"
	"budgetcards/internal/store/memory"

	"github.com/shopspring/decimal"
)

type fixedClassifier string

func (f fixedClassifier) Classify(context.Context, string) string { return string(f) }

// fakeBoard returns canned results so handlers can be driven into every
// error branch.
type fakeBoard struct {
	err     error
	items   []core.BudgetItem
	summary   string
	lastID    string
	lastValue string
}

func (f *fakeBoard) MonthView(_ context.Context, y, m int) (services.MonthView, error) {
	if f.err != nil {
		return services.MonthView{}, f.err
	}
	return services.MonthView{Month: core.FormatMonth(nil, core.FixedCategories, y, m)}, nil
}

func (f *fakeBoard) NextMonth(ctx context.Context) (services.MonthView, error) {
	return f.MonthView(ctx, 2025, 4)
}

func (f *fakeBoard) AddItem(_ context.Context, _, _ int, _, text, amount string) (core.BudgetItem, []core.BudgetItem, error) {
	it := core.BudgetItem{Key: "k1", Text: text, Amount: core.ParseAmount(amount), Status: core.StatusPending}
	return it, []core.BudgetItem{it}, f.err
}

func (f *fakeBoard) UpdateField(_ context.Context, _, _ int, _ string, _ int, _, value string) ([]core.BudgetItem, error) {
	f.lastValue = value
	return f.items, f.err
}

func (f *fakeBoard) ToggleStatus(context.Context, int, int, string, int) ([]core.BudgetItem, error) {
	return f.items, f.err
}

func (f *fakeBoard) Reorder(context.Context, int, int, string, int, int) ([]core.BudgetItem, error) {
	return f.items, f.err
}

func (f *fakeBoard) DeleteItem(_ context.Context, _, _ int, _, id string) ([]core.BudgetItem, error) {
	f.lastID = id
	return f.items, f.err
}

func (f *fakeBoard) Summary(context.Context, int, int) (string, error) {
	return f.summary, f.err
}

// fakeRelay answers every request with a fixed upstream result.
type fakeRelay struct {
	status int
	body   string
	err    error
	got    ai.ChatRequest
}

func (f *fakeRelay) NewRequest(msgs ...ai.Message) ai.ChatRequest {
	return ai.ChatRequest{Model: ai.DefaultModel, Messages: msgs, Temperature: ai.DefaultTemperature}
}

func (f *fakeRelay) Do(_ context.Context, req ai.ChatRequest) (int, []byte, error) {
	f.got = req
	return f.status, []byte(f.body), f.err
}

func serve(t *testing.T, srv *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rr, req)
	return rr
}

func newTestServer(t *testing.T, deps Deps) *Server {
	t.Helper()
	srv := NewServer(":0", deps)
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })
	return srv
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder, dst any) {
	t.Helper()
	if err := json.Unmarshal(rr.Body.Bytes(), dst); err != nil {
		t.Fatalf("invalid JSON body %q: %v", rr.Body.String(), err)
	}
}

func TestHealthReadyAndMetrics(t *testing.T) {
	srv := newTestServer(t, Deps{Board: &fakeBoard{}})
	for _, path := range []string{"/healthz", "/readyz"} {
		if rr := serve(t, srv, http.MethodGet, path, ""); rr.Code != http.StatusOK {
			t.Fatalf("%s status=%d", path, rr.Code)
		}
	}
	rr := serve(t, srv, http.MethodGet, "/metrics", "")
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), "http_requests_total") {
		t.Fatalf("metrics missing counters: %d %s", rr.Code, rr.Body.String())
	}
}

func TestReadyFailsWhenStoreDown(t *testing.T) {
	srv := newTestServer(t, Deps{
		Board: &fakeBoard{},
		Ready: func(context.Context) error { return errors.New("connection refused") },
	})
	rr := serve(t, srv, http.MethodGet, "/readyz", "")
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "connection refused") {
		t.Fatalf("readiness body should name the failure: %s", rr.Body.String())
	}
}

func TestSecurityHeadersAndRequestID(t *testing.T) {
	srv := newTestServer(t, Deps{Board: &fakeBoard{}})
	rr := serve(t, srv, http.MethodGet, "/api/months/2025/3", "")
	if rr.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Fatalf("security headers missing")
	}
	if rr.Header().Get("X-Request-ID") == "" {
		t.Fatalf("request id header missing")
	}
}

func TestMonthEndpoint(t *testing.T) {
	srv := newTestServer(t, Deps{Board: &fakeBoard{}})

	rr := serve(t, srv, http.MethodGet, "/api/months/2025/3", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
	}
	var got monthResponse
	decodeBody(t, rr, &got)
	if got.Year != 2025 || got.Month != 3 || len(got.Cards) != len(core.FixedCategories) {
		t.Fatalf("unexpected month %+v", got)
	}

	for _, path := range []string{"/api/months/2025/13", "/api/months/abc/3", "/api/months/2025/0"} {
		if rr := serve(t, srv, http.MethodGet, path, ""); rr.Code != http.StatusBadRequest {
			t.Fatalf("%s expected 400, got %d", path, rr.Code)
		}
	}

	rr = serve(t, srv, http.MethodGet, "/api/months/next", "")
	decodeBody(t, rr, &got)
	if rr.Code != http.StatusOK || got.Month != 4 {
		t.Fatalf("next month: %d %+v", rr.Code, got)
	}
}

func TestEditErrorMapping(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		method string
		path   string
		body   string
		want   int
	}{
		{"unknown card", services.ErrUnknownCard, http.MethodPost, "/api/months/2025/3/cards/pets/items/0/toggle", "", http.StatusNotFound},
		{"unknown field", editor.ErrUnknownField, http.MethodPatch, "/api/months/2025/3/cards/gifts/items/0", `{"field":"colour","value":"red"}`, http.StatusBadRequest},
		{"invalid status", core.ErrInvalidStatus, http.MethodPatch, "/api/months/2025/3/cards/gifts/items/0", `{"field":"status","value":"later"}`, http.StatusBadRequest},
		{"unpersisted delete", editor.ErrEmptyID, http.MethodDelete, "/api/months/2025/3/cards/gifts/items/x", "", http.StatusConflict},
		{"store failure on delete", errors.New("store down"), http.MethodDelete, "/api/months/2025/3/cards/gifts/items/x", "", http.StatusBadGateway},
		{"missing summary key", ai.ErrMissingAPIKey, http.MethodPost, "/api/months/2025/3/summary", "", http.StatusServiceUnavailable},
		{"summary upstream failure", &ai.StatusError{Status: 500}, http.MethodPost, "/api/months/2025/3/summary", "", http.StatusBadGateway},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := newTestServer(t, Deps{Board: &fakeBoard{err: tc.err}})
			rr := serve(t, srv, tc.method, tc.path, tc.body)
			if rr.Code != tc.want {
				t.Fatalf("expected %d, got %d (%s)", tc.want, rr.Code, rr.Body.String())
			}
			var body map[string]string
			decodeBody(t, rr, &body)
			if body["error"] == "" {
				t.Fatalf("error body missing message: %s", rr.Body.String())
			}
		})
	}
}

func TestEditBadInput(t *testing.T) {
	srv := newTestServer(t, Deps{Board: &fakeBoard{}})
	cases := []struct {
		method, path, body string
	}{
		{http.MethodPost, "/api/months/2025/3/cards/gifts/items", `{"text":`},
		{http.MethodPost, "/api/months/2025/3/cards/gifts/items", `{"text":"` + strings.Repeat("a", 201) + `"}`},
		{http.MethodPatch, "/api/months/2025/3/cards/gifts/items/-1", `{"field":"text","value":"x"}`},
		{http.MethodPatch, "/api/months/2025/3/cards/gifts/items/0", `{"value":"x"}`},
		{http.MethodPost, "/api/months/2025/3/cards/gifts/reorder", `{"from":1}`},
		{http.MethodPost, "/api/months/2025/3/cards/gifts/items/two/toggle", ""},
	}
	for _, tc := range cases {
		if rr := serve(t, srv, tc.method, tc.path, tc.body); rr.Code != http.StatusBadRequest {
			t.Fatalf("%s %s expected 400, got %d", tc.method, tc.path, rr.Code)
		}
	}
}

func TestAddItemSanitisesInput(t *testing.T) {
	srv := newTestServer(t, Deps{Board: &fakeBoard{}})
	rr := serve(t, srv, http.MethodPost, "/api/months/2025/3/cards/gifts/items", `{"text":"  books\u0007 ","amount":"1..2a3"}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
	}
	var got cardResponse
	decodeBody(t, rr, &got)
	if got.Item == nil || got.Item.Text != "books" {
		t.Fatalf("text not sanitised: %+v", got.Item)
	}
	if !got.Item.Amount.Equal(decimal.RequireFromString("1.23")) {
		t.Fatalf("amount not sanitised: %s", got.Item.Amount)
	}
}

func TestAmountsAcceptJSONNumbers(t *testing.T) {
	board := &fakeBoard{}
	srv := newTestServer(t, Deps{Board: board})

	rr := serve(t, srv, http.MethodPost, "/api/months/2025/3/cards/gifts/items", `{"text":"books","amount":12.5}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
	}
	var got cardResponse
	decodeBody(t, rr, &got)
	if got.Item == nil || !got.Item.Amount.Equal(decimal.RequireFromString("12.5")) {
		t.Fatalf("numeric amount not accepted: %+v", got.Item)
	}

	rr = serve(t, srv, http.MethodPatch, "/api/months/2025/3/cards/gifts/items/0", `{"field":"amount","value":1e2}`)
	if rr.Code != http.StatusOK || board.lastValue != "100" {
		t.Fatalf("status=%d value=%q", rr.Code, board.lastValue)
	}

	rr = serve(t, srv, http.MethodPost, "/api/months/2025/3/cards/gifts/items", `{"text":"books","amount":true}`)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("boolean amount should be rejected, got %d", rr.Code)
	}
}

func TestDeletePassesID(t *testing.T) {
	board := &fakeBoard{items: []core.BudgetItem{{ID: "b", Key: "b"}}}
	srv := newTestServer(t, Deps{Board: board})
	rr := serve(t, srv, http.MethodDelete, "/api/months/2025/3/cards/gifts/items/row-7", "")
	if rr.Code != http.StatusOK || board.lastID != "row-7" {
		t.Fatalf("status=%d id=%q", rr.Code, board.lastID)
	}
}

func TestSummaryEndpoint(t *testing.T) {
	srv := newTestServer(t, Deps{Board: &fakeBoard{summary: "Looks balanced."}})
	rr := serve(t, srv, http.MethodPost, "/api/months/2025/3/summary", "")
	var got map[string]string
	decodeBody(t, rr, &got)
	if rr.Code != http.StatusOK || got["summary"] != "Looks balanced." {
		t.Fatalf("unexpected summary response %d %v", rr.Code, got)
	}
}

func TestClassifyEndpoint(t *testing.T) {
	srv := newTestServer(t, Deps{Board: &fakeBoard{}, Classifier: fixedClassifier("dining")})
	rr := serve(t, srv, http.MethodPost, "/api/classify", `{"text":"sushi"}`)
	var got map[string]string
	decodeBody(t, rr, &got)
	if rr.Code != http.StatusOK || got["label"] != "dining" {
		t.Fatalf("unexpected classify response %d %v", rr.Code, got)
	}

	srv = newTestServer(t, Deps{Board: &fakeBoard{}})
	rr = serve(t, srv, http.MethodPost, "/api/classify", `{"text":"sushi"}`)
	decodeBody(t, rr, &got)
	if got["label"] != core.LabelOther {
		t.Fatalf("no classifier should answer %q, got %q", core.LabelOther, got["label"])
	}
}

func TestWriteRoutesAreRateLimited(t *testing.T) {
	srv := newTestServer(t, Deps{
		Board:      &fakeBoard{},
		Classifier: fixedClassifier("dining"),
		RateLimit:  ratelimit.Config{RequestsPerWindow: 2, Window: time.Minute},
	})
	var last *httptest.ResponseRecorder
	for i := 0; i < 3; i++ {
		last = serve(t, srv, http.MethodPost, "/api/classify", `{"text":"x"}`)
	}
	if last.Code != http.StatusTooManyRequests || last.Header().Get("Retry-After") == "" {
		t.Fatalf("expected 429 with Retry-After, got %d", last.Code)
	}
	// reads are not limited
	if rr := serve(t, srv, http.MethodGet, "/api/months/2025/3", ""); rr.Code != http.StatusOK {
		t.Fatalf("read should pass, got %d", rr.Code)
	}
}

func TestBoardEndToEnd(t *testing.T) {
	st := memory.New()
	syncer := services.NewSynchronizer(st, nil, services.SyncConfig{}, nil)
	board := services.NewBoardService(st, syncer, fixedClassifier("dining"))
	srv := newTestServer(t, Deps{Board: board, Ready: func(context.Context) error { return nil }})

	for _, text := range []string{"rent", "water"} {
		rr := serve(t, srv, http.MethodPost, "/api/months/2025/3/cards/essentials/items", `{"text":"`+text+`","amount":"10"}`)
		if rr.Code != http.StatusCreated {
			t.Fatalf("add %s: %d %s", text, rr.Code, rr.Body.String())
		}
	}
	rr := serve(t, srv, http.MethodPost, "/api/months/2025/3/cards/essentials/reorder", `{"from":0,"to":1}`)
	var card cardResponse
	decodeBody(t, rr, &card)
	if len(card.Items) != 2 || card.Items[0].Text != "water" || card.Items[1].Position != 1 {
		t.Fatalf("reorder failed: %+v", card.Items)
	}

	rr = serve(t, srv, http.MethodPost, "/api/months/2025/3/cards/essentials/items/0/toggle", "")
	decodeBody(t, rr, &card)
	if card.Items[0].Status != core.StatusDone {
		t.Fatalf("toggle failed: %+v", card.Items[0])
	}

	board.Close()
	rows, err := st.ListRows(context.Background())
	if err != nil || len(rows) != 2 {
		t.Fatalf("expected 2 stored rows after close, got %d (%v)", len(rows), err)
	}

	rr = serve(t, srv, http.MethodGet, "/api/months/2025/3", "")
	var month monthResponse
	decodeBody(t, rr, &month)
	if !month.Stats.Total.Equal(decimal.NewFromInt(20)) || !month.Stats.TotalDone.Equal(decimal.NewFromInt(10)) {
		t.Fatalf("unexpected stats %+v", month.Stats)
	}
}
