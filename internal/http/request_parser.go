// This file holds helpers for reading path values and JSON bodies.

package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"budgetcards/internal/core"

	"github.com/shopspring/decimal"
)

// maxBodyBytes caps JSON request bodies.
const maxBodyBytes = 64 << 10

// MonthParams holds the year and month named by the request path.
type MonthParams struct {
	Year  int
	Month int
}

// ParseMonthParams reads {year} and {month} from the path.
func ParseMonthParams(r *http.Request) (MonthParams, error) {
	year, err := strconv.Atoi(r.PathValue("year"))
	if err != nil || year < 1 || year > 9999 {
		return MonthParams{}, fmt.Errorf("invalid year %q", r.PathValue("year"))
	}
	month, err := strconv.Atoi(r.PathValue("month"))
	if err != nil || !core.ValidMonth(month) {
		return MonthParams{}, fmt.Errorf("%w: %q", core.ErrInvalidMonth, r.PathValue("month"))
	}
	return MonthParams{Year: year, Month: month}, nil
}

// ParseIndex reads a non-negative integer path value.
func ParseIndex(r *http.Request, name string) (int, error) {
	v, err := strconv.Atoi(r.PathValue(name))
	if err != nil || v < 0 {
		return 0, fmt.Errorf("invalid %s %q", name, r.PathValue(name))
	}
	return v, nil
}

// DecodeJSON reads a bounded JSON body into dst. An empty body leaves dst
// untouched.
func DecodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return fmt.Errorf("request body larger than %d bytes", tooLarge.Limit)
		}
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}

// sanitizeInput drops control characters other than tab and newlines and
// trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != '\t' && r != '\n' && r != '\r' {
			return -1
		}
		return r
	}, s)
}

// RequireMethod returns an error response when r.Method is not allowed.
func RequireMethod(r *http.Request, methods ...string) *JSONResponseBuilder {
	for _, m := range methods {
		if r.Method == m {
			return nil
		}
	}
	return MethodNotAllowedError(strings.Join(methods, ", "))
}

// textOrNumber is a request field that clients send either as text or, for
// amounts echoed back from a response, as a JSON number.
type textOrNumber string

func (t *textOrNumber) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*t = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*t = textOrNumber(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("expected a string or a number: %w", err)
	}
	d, err := decimal.NewFromString(n.String())
	if err != nil {
		return fmt.Errorf("invalid number %s: %w", n, err)
	}
	*t = textOrNumber(d.String())
	return nil
}
