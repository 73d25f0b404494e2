// Package structured turns raw model text into typed values. Output is
// trimmed to its JSON object, validated against a JSON schema, then decoded.
package structured

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// ErrNoJSON is returned when the model output contains no JSON object.
var ErrNoJSON = errors.New("no json object in model output")

// Schema is a compiled JSON schema.
type Schema struct {
	name   string
	schema *jsonschema.Schema
}

// Compile compiles src under the given resource name.
func Compile(name, src string) (*Schema, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(name, bytes.NewReader([]byte(src))); err != nil {
		return nil, fmt.Errorf("add schema %s: %w", name, err)
	}
	s, err := compiler.Compile(name)
	if err != nil {
		return nil, fmt.Errorf("compile schema %s: %w", name, err)
	}
	return &Schema{name: name, schema: s}, nil
}

// MustCompile is Compile for package-level schemas.
func MustCompile(name, src string) *Schema {
	s, err := Compile(name, src)
	if err != nil {
		panic(err)
	}
	return s
}

// Validate checks a JSON document against the schema.
func (s *Schema) Validate(doc []byte) error {
	var v any
	if err := json.Unmarshal(doc, &v); err != nil {
		return fmt.Errorf("unmarshal data: %w", err)
	}
	if err := s.schema.Validate(v); err != nil {
		return fmt.Errorf("json does not match schema %s: %w", s.name, err)
	}
	return nil
}

// ExtractJSON returns the outermost JSON object in raw, dropping code fences
// and any prose around it.
func ExtractJSON(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```JSON")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	}
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return "", ErrNoJSON
	}
	return s[start : end+1], nil
}

// Decode extracts, validates and decodes model output into T.
func Decode[T any](raw string, schema *Schema) (T, error) {
	var out T
	doc, err := ExtractJSON(raw)
	if err != nil {
		return out, err
	}
	if schema != nil {
		if err := schema.Validate([]byte(doc)); err != nil {
			return out, err
		}
	}
	if err := json.Unmarshal([]byte(doc), &out); err != nil {
		return out, fmt.Errorf("decode model output: %w", err)
	}
	return out, nil
}
