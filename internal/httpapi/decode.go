package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

const maxBodyBytes = 64 << 10

// SchemaError lists every violation of a request schema.
type SchemaError struct {
	Details []string
}

func (e *SchemaError) Error() string {
	return "request does not conform to schema: " + strings.Join(e.Details, "; ")
}

// Schema is a compiled JSON schema for one request shape.
type Schema struct {
	schema *gojsonschema.Schema
}

// MustSchema compiles a schema literal and panics if it is invalid.
func MustSchema(src string) *Schema {
	s, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(src))
	if err != nil {
		panic(fmt.Sprintf("invalid json schema: %v", err))
	}
	return &Schema{schema: s}
}

func (s *Schema) Validate(body []byte) error {
	result, err := s.schema.Validate(gojsonschema.NewBytesLoader(body))
	if err != nil {
		return &SchemaError{Details: []string{"body is not valid JSON"}}
	}
	if result.Valid() {
		return nil
	}
	details := make([]string, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		details = append(details, e.String())
	}
	return &SchemaError{Details: details}
}

// Decode reads the request body, validates it against s and unmarshals it
// into dst. Any failure is a *SchemaError.
func Decode(r *http.Request, s *Schema, dst interface{}) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
	if err != nil {
		return &SchemaError{Details: []string{"failed to read body"}}
	}
	if len(body) > maxBodyBytes {
		return &SchemaError{Details: []string{"body too large"}}
	}
	if err := s.Validate(body); err != nil {
		return err
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return &SchemaError{Details: []string{err.Error()}}
	}
	return nil
}

// WriteDecodeError answers a failed Decode with 400.
func WriteDecodeError(w http.ResponseWriter, err error) {
	var schemaErr *SchemaError
	if errors.As(err, &schemaErr) {
		RespondWithValidation(w, "Invalid request body", schemaErr.Details)
		return
	}
	RespondWithError(w, http.StatusBadRequest, "Invalid request body")
}
