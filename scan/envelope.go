// Package scan unwraps the {"data": ...} envelope every backend response
// carries and decodes the payload into caller types.
package scan

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrEnvelope is returned when a body is not an object with a data key.
var ErrEnvelope = errors.New("scan: response is not a data envelope")

type envelope struct {
	Data *json.RawMessage `json:"data"`
}

// Unwrap returns the raw payload under "data". A JSON null payload is
// returned as the literal null.
func Unwrap(body []byte) (json.RawMessage, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 || body[0] != '{' {
		return nil, ErrEnvelope
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEnvelope, err)
	}
	if env.Data == nil {
		// distinguish {"data": null} from a missing key
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(body, &fields); err == nil {
			if _, ok := fields["data"]; ok {
				return json.RawMessage("null"), nil
			}
		}
		return nil, fmt.Errorf("%w: missing data key", ErrEnvelope)
	}
	return *env.Data, nil
}

// Decode decodes an unwrapped payload into a single T.
func Decode[T any](raw json.RawMessage) (T, error) {
	var out T
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, fmt.Errorf("scan: decoding %T: %w", out, err)
	}
	return out, nil
}

// DecodeSlice decodes an unwrapped array payload into []T. A null payload
// yields an empty, non-nil slice.
func DecodeSlice[T any](raw json.RawMessage) ([]T, error) {
	out := []T{}
	if len(raw) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return out, nil
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("scan: decoding []%T: %w", *new(T), err)
	}
	return out, nil
}
