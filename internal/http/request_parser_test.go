package http

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"budgetcards/internal/core"
)

func TestParseMonthParams(t *testing.T) {
	tests := []struct {
		name        string
		year, month string
		want        MonthParams
		wantErr     bool
	}{
		{"valid", "2025", "3", MonthParams{Year: 2025, Month: 3}, false},
		{"december", "2024", "12", MonthParams{Year: 2024, Month: 12}, false},
		{"month zero", "2025", "0", MonthParams{}, true},
		{"month thirteen", "2025", "13", MonthParams{}, true},
		{"year not a number", "twenty", "3", MonthParams{}, true},
		{"year out of range", "10000", "3", MonthParams{}, true},
		{"empty", "", "", MonthParams{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.SetPathValue("year", tt.year)
			req.SetPathValue("month", tt.month)
			got, err := ParseMonthParams(req)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err=%v, wantErr=%v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Fatalf("expected %+v, got %+v", tt.want, got)
			}
		})
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.SetPathValue("year", "2025")
	req.SetPathValue("month", "14")
	if _, err := ParseMonthParams(req); !errors.Is(err, core.ErrInvalidMonth) {
		t.Fatalf("bad month should wrap ErrInvalidMonth, got %v", err)
	}
}

func TestParseIndex(t *testing.T) {
	for value, ok := range map[string]bool{"0": true, "7": true, "-1": false, "x": false, "": false} {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.SetPathValue("index", value)
		if _, err := ParseIndex(req, "index"); (err == nil) != ok {
			t.Fatalf("index %q: err=%v", value, err)
		}
	}
}

func TestDecodeJSON(t *testing.T) {
	var dst struct {
		Text string `json:"text"`
	}

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"text":"rent"}`))
	if err := DecodeJSON(httptest.NewRecorder(), req, &dst); err != nil || dst.Text != "rent" {
		t.Fatalf("decode failed: %v %+v", err, dst)
	}

	req = httptest.NewRequest(http.MethodPost, "/", nil)
	if err := DecodeJSON(httptest.NewRecorder(), req, &dst); err != nil {
		t.Fatalf("empty body should be accepted, got %v", err)
	}

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"text":`))
	if err := DecodeJSON(httptest.NewRecorder(), req, &dst); err == nil {
		t.Fatalf("expected error for truncated JSON")
	}

	big := `{"text":"` + strings.Repeat("a", maxBodyBytes) + `"}`
	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(big))
	if err := DecodeJSON(httptest.NewRecorder(), req, &dst); err == nil || !strings.Contains(err.Error(), "larger than") {
		t.Fatalf("expected size error, got %v", err)
	}
}

func TestSanitizeInput(t *testing.T) {
	tests := map[string]string{
		"  rent  ":        "rent",
		"a\x00b\x07c":     "abc",
		"line\nbreak\tok": "line\nbreak\tok",
		"":                "",
	}
	for in, want := range tests {
		if got := sanitizeInput(in); got != want {
			t.Fatalf("sanitizeInput(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestRequireMethod(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	if resp := RequireMethod(req, http.MethodPost); resp != nil {
		t.Fatalf("POST should be allowed")
	}

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	resp := RequireMethod(req, http.MethodPost, http.MethodPut)
	if resp == nil {
		t.Fatalf("GET should be rejected")
	}
	rr := httptest.NewRecorder()
	resp.Write(rr)
	if rr.Code != http.StatusMethodNotAllowed || rr.Header().Get("Allow") != "POST, PUT" {
		t.Fatalf("unexpected response %d allow=%q", rr.Code, rr.Header().Get("Allow"))
	}
}
