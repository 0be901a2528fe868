// Package wire holds the JSON helpers shared by every type-tagged payload: transport
// messages and game actions are both JSON objects discriminated by a "type" field.
package wire

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrMissingType is returned when a payload has no usable "type" discriminator.
var ErrMissingType = errors.New("missing type")

// PeekType returns the "type" field of a JSON object without decoding the rest of it.
func PeekType(data []byte) (string, error) {
	var head struct {
		Type *string `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return "", err
	}
	if head.Type == nil || *head.Type == "" {
		return "", ErrMissingType
	}
	return *head.Type, nil
}

// MarshalTagged encodes v as a JSON object and adds a "type" field set to tag.
// v must encode to a JSON object.
func MarshalTagged(tag string, v any) ([]byte, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	fields := map[string]json.RawMessage{}
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, fmt.Errorf("tagged payload %q is not an object: %w", tag, err)
	}
	typ, err := json.Marshal(tag)
	if err != nil {
		return nil, err
	}
	fields["type"] = typ
	return json.Marshal(fields)
}
