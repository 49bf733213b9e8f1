package cache

import (
	"encoding/json"
	"errors"

	"github.com/tidwall/gjson"
)

// ErrInvalidJSON is returned when a response body is not valid JSON.
var ErrInvalidJSON = errors.New("response body is not valid JSON")

// Payload is a validated JSON document.
type Payload json.RawMessage

// ParsePayload validates b as JSON and returns it as a Payload.
func ParsePayload(b []byte) (Payload, error) {
	if !gjson.ValidBytes(b) {
		return nil, ErrInvalidJSON
	}
	return Payload(b), nil
}

// Get queries the payload with a gjson path.
func (p Payload) Get(path string) gjson.Result {
	return gjson.GetBytes(p, path)
}

// Result returns the whole payload as a gjson.Result.
func (p Payload) Result() gjson.Result {
	return gjson.ParseBytes(p)
}

// Decode unmarshals the payload into v.
func (p Payload) Decode(v any) error {
	return json.Unmarshal(p, v)
}

// MarshalJSON emits the payload verbatim.
func (p Payload) MarshalJSON() ([]byte, error) {
	if len(p) == 0 {
		return []byte("null"), nil
	}
	return p, nil
}

// UnmarshalJSON stores a copy of the raw document.
func (p *Payload) UnmarshalJSON(b []byte) error {
	*p = append((*p)[:0], b...)
	return nil
}
