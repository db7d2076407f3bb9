package normalize

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Location is a position in the operation text reported by the server.
type Location struct {
	Line   int `json:"line"`
	Column int `json:"column"`
}

// PayloadError is one entry of a GraphQL response's "errors" list.
type PayloadError struct {
	Message    string         `json:"message"`
	Locations  []Location     `json:"locations,omitempty"`
	Path       []any          `json:"path,omitempty"`
	Extensions map[string]any `json:"extensions,omitempty"`
}

func (e PayloadError) Error() string { return e.Message }

// Payload is a raw GraphQL response as returned by a fetch primitive.
// A nil Data means the response carried no data.
type Payload struct {
	Data       map[string]any `json:"data"`
	Errors     []PayloadError `json:"errors,omitempty"`
	Extensions map[string]any `json:"extensions,omitempty"`
}

// DecodePayload decodes a GraphQL JSON response body.
func DecodePayload(body []byte) (Payload, error) {
	var raw struct {
		Data       json.RawMessage `json:"data"`
		Errors     []PayloadError  `json:"errors"`
		Extensions map[string]any  `json:"extensions"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return Payload{}, fmt.Errorf("decode payload: %w", err)
	}
	p := Payload{Errors: raw.Errors, Extensions: raw.Extensions}
	trimmed := bytes.TrimSpace(raw.Data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return p, nil
	}
	if err := json.Unmarshal(trimmed, &p.Data); err != nil {
		return Payload{}, fmt.Errorf("decode payload data: %w", err)
	}
	return p, nil
}

// PayloadFromMap converts a generic response map, such as one produced from a
// protobuf Struct, into a Payload.
func PayloadFromMap(m map[string]any) (Payload, error) {
	body, err := json.Marshal(m)
	if err != nil {
		return Payload{}, fmt.Errorf("encode payload: %w", err)
	}
	return DecodePayload(body)
}
