// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package mcpdemo

import (
	"encoding/json"
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"
)

// schemaValidator adapts a resolved *jsonschema.Schema to the
// jsonrpc2.Validator interface SetRequestHandler accepts, realizing §4.7's
// "validates inbound requests against schema" with the schema-validation
// collaborator the spec leaves out-of-scope but pluggable.
type schemaValidator struct {
	resolved *jsonschema.Resolved
}

func newSchemaValidator(schema *jsonschema.Schema) (*schemaValidator, error) {
	resolved, err := schema.Resolve(nil)
	if err != nil {
		return nil, fmt.Errorf("mcpdemo: resolving schema: %w", err)
	}
	return &schemaValidator{resolved: resolved}, nil
}

func (v *schemaValidator) Validate(data json.RawMessage) error {
	var instance any
	if err := json.Unmarshal(data, &instance); err != nil {
		return fmt.Errorf("mcpdemo: decoding params: %w", err)
	}
	return v.resolved.Validate(instance)
}

// echoParamsSchema is the schema for echo's params, built with jsonschema-go
// the same way the teacher infers schemas for tool input: by hand for a
// known Go type's JSON shape rather than through reflection, since this
// demo layer has exactly one param shape to describe.
var echoParamsSchema = &jsonschema.Schema{
	Type:     "object",
	Required: []string{"text"},
	Properties: map[string]*jsonschema.Schema{
		"text": {Type: "string"},
	},
}
