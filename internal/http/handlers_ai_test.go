package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"budgetcards/internal/ai"
)

const relayBody = `{"messages":[{"role":"user","content":"how am I doing?"}]}`

func TestRelayRejectsNonPost(t *testing.T) {
	srv := newTestServer(t, Deps{Board: &fakeBoard{}, Relay: &fakeRelay{status: 200}})
	for _, method := range []string{http.MethodGet, http.MethodPut, http.MethodDelete} {
		rr := serve(t, srv, method, "/api/analyze-by-ai", "")
		if rr.Code != http.StatusMethodNotAllowed {
			t.Fatalf("%s expected 405, got %d", method, rr.Code)
		}
		if strings.TrimSpace(rr.Body.String()) != `{"error":"Method not allowed"}` {
			t.Fatalf("%s unexpected body %s", method, rr.Body.String())
		}
	}
}

func TestRelayPassesSuccessVerbatim(t *testing.T) {
	relay := &fakeRelay{status: http.StatusOK, body: `{"choices":[{"message":{"role":"assistant","content":"fine"}}]}`}
	srv := newTestServer(t, Deps{Board: &fakeBoard{}, Relay: relay})

	rr := serve(t, srv, http.MethodPost, "/api/analyze-by-ai", relayBody)
	if rr.Code != http.StatusOK || rr.Body.String() != relay.body {
		t.Fatalf("expected verbatim body, got %d %s", rr.Code, rr.Body.String())
	}
	if relay.got.Model != ai.DefaultModel || relay.got.Temperature != ai.DefaultTemperature {
		t.Fatalf("defaults not applied: %+v", relay.got)
	}

	rr = serve(t, srv, http.MethodPost, "/api/analyze-by-ai", `{"model":"kimi-k2-0905-preview","temperature":0.7,"messages":[{"role":"user","content":"x"}]}`)
	if rr.Code != http.StatusOK || relay.got.Temperature != 0.7 {
		t.Fatalf("temperature override ignored: %d %+v", rr.Code, relay.got)
	}
	if relay.got.Model != ai.DefaultModel {
		t.Fatalf("client model must not replace the server model, got %q", relay.got.Model)
	}
}

func TestRelayUpstreamError(t *testing.T) {
	cases := []struct {
		name     string
		body     string
		wantJSON string
	}{
		{"json body", `{"message":"quota"}`, `{"error":{"message":"quota"}}`},
		{"text body", `rate limited`, `{"error":"rate limited"}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := newTestServer(t, Deps{Board: &fakeBoard{}, Relay: &fakeRelay{status: http.StatusTooManyRequests, body: tc.body}})
			rr := serve(t, srv, http.MethodPost, "/api/analyze-by-ai", relayBody)
			if rr.Code != http.StatusTooManyRequests {
				t.Fatalf("expected upstream status, got %d", rr.Code)
			}
			if strings.TrimSpace(rr.Body.String()) != tc.wantJSON {
				t.Fatalf("expected %s, got %s", tc.wantJSON, rr.Body.String())
			}
		})
	}
}

func TestRelayTransportFailure(t *testing.T) {
	for _, err := range []error{errors.New("dial tcp: refused"), ai.ErrMissingAPIKey} {
		srv := newTestServer(t, Deps{Board: &fakeBoard{}, Relay: &fakeRelay{err: err}})
		rr := serve(t, srv, http.MethodPost, "/api/analyze-by-ai", relayBody)
		if rr.Code != http.StatusInternalServerError {
			t.Fatalf("%v: expected 500, got %d", err, rr.Code)
		}
		if strings.TrimSpace(rr.Body.String()) != `{"error":"Internal Server Error"}` {
			t.Fatalf("unexpected body %s", rr.Body.String())
		}
	}

	srv := newTestServer(t, Deps{Board: &fakeBoard{}})
	if rr := serve(t, srv, http.MethodPost, "/api/analyze-by-ai", relayBody); rr.Code != http.StatusInternalServerError {
		t.Fatalf("unconfigured relay expected 500, got %d", rr.Code)
	}
}

func TestRelayRequiresMessages(t *testing.T) {
	srv := newTestServer(t, Deps{Board: &fakeBoard{}, Relay: &fakeRelay{status: 200}})
	if rr := serve(t, srv, http.MethodPost, "/api/analyze-by-ai", `{"messages":[]}`); rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

func TestRelayThroughChatClient(t *testing.T) {
	var seen ai.ChatRequest
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_ = json.NewDecoder(r.Body).Decode(&seen)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	defer upstream.Close()

	chat := ai.NewChatClient(upstream.URL, "secret", "")
	srv := newTestServer(t, Deps{Board: &fakeBoard{}, Relay: chat})
	rr := serve(t, srv, http.MethodPost, "/api/analyze-by-ai", relayBody)
	if rr.Code != http.StatusAccepted || rr.Body.String() != `{"choices":[]}` {
		t.Fatalf("unexpected relay answer %d %s", rr.Code, rr.Body.String())
	}
	if seen.Model != ai.DefaultModel || len(seen.Messages) != 1 || seen.Messages[0].Content != "how am I doing?" {
		t.Fatalf("upstream saw %+v", seen)
	}
}
