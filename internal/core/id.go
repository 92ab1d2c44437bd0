package core

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// RowID is a row id in its text form. Hosted tables may key rows by an
// integer identity, so it decodes from a JSON string or a JSON number.
type RowID string

func (id *RowID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*id = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return fmt.Errorf("row id: %w", err)
		}
		*id = RowID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("row id: %w", err)
	}
	*id = RowID(n.String())
	return nil
}

// MarshalJSON writes integer ids as numbers so integer key columns accept
// them, and everything else as strings.
func (id RowID) MarshalJSON() ([]byte, error) {
	if id.integer() {
		return []byte(id), nil
	}
	return json.Marshal(string(id))
}

func (id RowID) integer() bool {
	if id == "" || len(id) > 18 || (len(id) > 1 && id[0] == '0') {
		return false
	}
	for _, c := range []byte(id) {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

// UnmarshalJSON accepts string and numeric ids.
func (r *Row) UnmarshalJSON(b []byte) error {
	type plain Row
	aux := struct {
		*plain
		ID RowID `json:"id"`
	}{plain: (*plain)(r)}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	r.ID = string(aux.ID)
	return nil
}
