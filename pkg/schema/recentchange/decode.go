package recentchange

import (
	"bytes"
	"fmt"

	"github.com/transientvariable/cadre/validation"
	"github.com/transientvariable/cadre/validation/constraint"

	json "github.com/json-iterator/go"
)

// ParseLine decodes a single payload into a generic JSON object.
//
// Empty payloads and payloads that are not valid JSON objects are reported as not ok. The stream occasionally
// delivers truncated payloads, so callers are expected to skip them rather than fail.
func ParseLine(line []byte) (map[string]any, bool) {
	if len(bytes.TrimSpace(line)) == 0 {
		return nil, false
	}

	var v map[string]any
	if err := json.Unmarshal(line, &v); err != nil {
		return nil, false
	}
	return v, true
}

// PeekType returns the value of the type field of a payload without decoding the rest of it.
func PeekType(data []byte) (string, error) {
	if !json.Valid(data) {
		return "", fmt.Errorf("recentchange: %w", ErrDataFormatInvalid)
	}
	return json.Get(data, "type").ToString(), nil
}

// PeekEventID returns the value of meta.id of a payload, or an empty string if it is absent.
func PeekEventID(data []byte) string {
	return json.Get(data, "meta", "id").ToString()
}

// DecodeEdit decodes a payload of type TypeEdit or TypeNew into an EditEvent.
func DecodeEdit(data []byte) (*EditEvent, error) {
	var e EditEvent
	if err := decode(data, &e); err != nil {
		return nil, err
	}

	if e.Type != TypeEdit && e.Type != TypeNew {
		return nil, fmt.Errorf("recentchange: %w: expected %s or %s, got %q", ErrTypeMismatch, TypeEdit, TypeNew, e.Type)
	}

	if result := e.validate(); !result.IsValid() {
		return nil, result
	}
	return &e, nil
}

// DecodeLog decodes a payload of type TypeLog into a LogEvent.
func DecodeLog(data []byte) (*LogEvent, error) {
	var e LogEvent
	if err := decode(data, &e); err != nil {
		return nil, err
	}

	if e.Type != TypeLog {
		return nil, fmt.Errorf("recentchange: %w: expected %s, got %q", ErrTypeMismatch, TypeLog, e.Type)
	}

	if result := e.validate(); !result.IsValid() {
		return nil, result
	}
	return &e, nil
}

func decode(data []byte, v any) error {
	if len(bytes.TrimSpace(data)) == 0 {
		return fmt.Errorf("recentchange: %w: empty payload", ErrDataFormatInvalid)
	}

	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("recentchange: %w: %s", ErrDataFormatInvalid, err.Error())
	}
	return nil
}

// validate performs validation of the fields every Change is expected to carry.
func (c *Change) validate() *validation.Result {
	var validators []validation.Validator
	validators = append(validators, constraint.NotBlank{
		Name:    "type",
		Field:   c.Type,
		Message: "recentchange: type is required",
	})

	validators = append(validators, constraint.NotBlank{
		Name:    "title",
		Field:   c.Title,
		Message: "recentchange: title is required",
	})

	validators = append(validators, constraint.NotBlank{
		Name:    "serverName",
		Field:   c.ServerName,
		Message: "recentchange: server name is required",
	})

	validators = append(validators, constraint.NotBlank{
		Name:    "serverURL",
		Field:   c.ServerURL,
		Message: "recentchange: server URL is required",
	})
	return validation.Validate(validators...)
}
