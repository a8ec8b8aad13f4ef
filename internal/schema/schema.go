// Package schema validates Collector wire payloads against embedded JSON
// Schema documents (Draft 2020-12), so the Collector's handler code never
// has to special-case field presence or type by hand.
package schema

import (
	"bytes"
	"embed"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schemas/*.json
var schemaFS embed.FS

// Names of the registered schemas, matching the endpoint/body each guards.
const (
	Result         = "result"
	PolicyResponse = "policy_response"
	Announce       = "announce"
	Heartbeat      = "heartbeat"
	EventsBatch    = "events_batch"
)

var registered = []string{Result, PolicyResponse, Announce, Heartbeat, EventsBatch, "identity"}

// Validator checks a decoded JSON payload against a named schema. Defined
// as an interface so callers never depend on the concrete validation
// library directly.
type Validator interface {
	// Validate returns a human-readable error message per schema
	// violation found in payload against the schema registered as name.
	// A nil/empty result means payload is valid. An error is returned
	// only if name is not a registered schema.
	Validate(name string, payload interface{}) ([]string, error)
}

// Registry is the concrete, jsonschema/v5-backed Validator.
type Registry struct {
	schemas map[string]*jsonschema.Schema
}

// NewRegistry compiles every embedded schema document and returns a ready
// Registry. An error here indicates a malformed schema document shipped
// with the binary, not a runtime/input condition.
func NewRegistry() (*Registry, error) {
	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft2020

	for _, name := range registered {
		data, err := schemaFS.ReadFile(fmt.Sprintf("schemas/%s.json", name))
		if err != nil {
			return nil, fmt.Errorf("schema: read %s.json: %w", name, err)
		}
		if err := compiler.AddResource(name+".json", bytes.NewReader(data)); err != nil {
			return nil, fmt.Errorf("schema: add resource %s.json: %w", name, err)
		}
	}

	r := &Registry{schemas: make(map[string]*jsonschema.Schema, len(registered))}
	for _, name := range registered {
		sch, err := compiler.Compile(name + ".json")
		if err != nil {
			return nil, fmt.Errorf("schema: compile %s.json: %w", name, err)
		}
		r.schemas[name] = sch
	}
	return r, nil
}

func (r *Registry) Validate(name string, payload interface{}) ([]string, error) {
	sch, ok := r.schemas[name]
	if !ok {
		return nil, fmt.Errorf("schema: unknown schema %q", name)
	}
	if err := sch.Validate(payload); err != nil {
		if verr, ok := err.(*jsonschema.ValidationError); ok {
			return flattenValidationErrors(verr), nil
		}
		return []string{err.Error()}, nil
	}
	return nil, nil
}

// flattenValidationErrors walks a jsonschema.ValidationError's cause tree
// and returns one message per leaf, mirroring the reference Python
// implementation's list-of-strings shape.
func flattenValidationErrors(verr *jsonschema.ValidationError) []string {
	if len(verr.Causes) == 0 {
		return []string{fmt.Sprintf("%s: %s", verr.InstanceLocation, verr.Message)}
	}
	var out []string
	for _, cause := range verr.Causes {
		out = append(out, flattenValidationErrors(cause)...)
	}
	return out
}
