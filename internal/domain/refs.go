package domain

import (
	"bytes"
	"encoding/json"
	"strings"
)

// ID is an upstream identifier. The complaint API emits both numeric and
// string ids; both decode to the same textual form.
type ID string

// UnmarshalJSON accepts a JSON string or number.
func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*id = ID(n.String())
	return nil
}

func (id ID) String() string { return string(id) }

// NamedRef is a display name that upstream sends either as a plain string
// or as a nested object carrying a name field.
type NamedRef string

// UnmarshalJSON accepts "Roads", {"name": "Roads"} or null.
func (r *NamedRef) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case bytes.Equal(data, []byte("null")):
		*r = ""
		return nil
	case len(data) > 0 && data[0] == '{':
		var obj struct {
			Name string `json:"name"`
		}
		if err := json.Unmarshal(data, &obj); err != nil {
			return err
		}
		*r = NamedRef(strings.TrimSpace(obj.Name))
		return nil
	case len(data) > 0 && data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*r = NamedRef(strings.TrimSpace(s))
		return nil
	default:
		// numeric foreign keys carry no display name
		*r = ""
		return nil
	}
}

func (r NamedRef) String() string { return string(r) }
