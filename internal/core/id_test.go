package core

import (
	"encoding/json"
	"testing"
)

func TestRowDecodesStringAndNumericIDs(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{`{"id":"f3a1","year":2025,"month":1,"title":"gifts","amount":"2"}`, "f3a1"},
		{`{"id":42,"year":2025,"month":1,"title":"gifts","amount":2}`, "42"},
		{`{"id":null,"year":2025,"month":1,"title":"gifts"}`, ""},
		{`{"year":2025,"month":1,"title":"gifts"}`, ""},
	}
	for _, tc := range cases {
		var r Row
		if err := json.Unmarshal([]byte(tc.in), &r); err != nil {
			t.Fatalf("%s: %v", tc.in, err)
		}
		if r.ID != tc.want || r.Year != 2025 || r.Title != "gifts" {
			t.Fatalf("%s: unexpected row %+v", tc.in, r)
		}
	}

	var r Row
	if err := json.Unmarshal([]byte(`{"id":true}`), &r); err == nil {
		t.Fatalf("boolean id should fail")
	}
}

func TestRowIDMarshal(t *testing.T) {
	cases := map[RowID]string{
		"7":        `7`,
		"007":      `"007"`,
		"a-1":      `"a-1"`,
		"12345678": `12345678`,
	}
	for id, want := range cases {
		b, err := json.Marshal(id)
		if err != nil || string(b) != want {
			t.Fatalf("%q: expected %s, got %s (%v)", id, want, b, err)
		}
	}
}
