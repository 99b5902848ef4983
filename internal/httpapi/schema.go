package httpapi

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/xeipuuv/gojsonschema"
)

// submitSchemaJSON validates the shape of a /submit request body before it
// ever reaches the scheduler: tasks must be a non-empty array of 3-element
// tuples [function_id, endpoint_hint, payload].
const submitSchemaJSON = `{
  "type": "object",
  "required": ["tasks"],
  "properties": {
    "tasks": {
      "type": "array",
      "minItems": 1,
      "items": {
        "type": "array",
        "minItems": 3,
        "maxItems": 3,
        "items": [
          {"type": "string", "minLength": 1},
          {"type": "string"},
          {}
        ]
      }
    }
  }
}`

var submitSchemaLoader = gojsonschema.NewStringLoader(submitSchemaJSON)

// validateSubmitBody runs raw against the /submit schema and returns a
// combined error describing every violation, or nil if it's valid.
func validateSubmitBody(raw []byte) error {
	var decoded any

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	if err := dec.Decode(&decoded); err != nil {
		return fmt.Errorf("httpapi: decode submit body for validation: %w", err)
	}

	result, err := gojsonschema.Validate(submitSchemaLoader, gojsonschema.NewGoLoader(decoded))
	if err != nil {
		return fmt.Errorf("httpapi: schema validation: %w", err)
	}

	if result.Valid() {
		return nil
	}

	msg := "invalid submit body:"
	for _, e := range result.Errors() {
		msg += " " + e.String() + ";"
	}

	return errSchemaInvalid{msg: msg}
}

// errSchemaInvalid wraps a human-readable schema validation failure; kept as
// its own type so handlers can recognize it and answer 400 rather than 500.
type errSchemaInvalid struct{ msg string }

func (e errSchemaInvalid) Error() string { return e.msg }
