package tools

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// Validator checks tool arguments against the input schemas declared by the
// servers. Compiled schemas are cached per tool name.
type Validator struct {
	mu       sync.Mutex
	compiled map[string]*jsonschema.Schema
}

func NewValidator() *Validator {
	return &Validator{compiled: make(map[string]*jsonschema.Schema)}
}

// ValidateArgs validates args against the tool's declared input schema.
// Tools without a schema accept any arguments.
func (v *Validator) ValidateArgs(tool ToolInfo, args map[string]interface{}) error {
	if tool.InputSchema == nil {
		return nil
	}

	schema, err := v.schemaFor(tool)
	if err != nil {
		return err
	}

	// Round-trip through JSON so numeric types match what the validator
	// expects from decoded documents.
	raw, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("failed to marshal arguments for %s: %w", tool.Name, err)
	}
	var doc interface{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("failed to decode arguments for %s: %w", tool.Name, err)
	}

	if err := schema.Validate(doc); err != nil {
		return fmt.Errorf("arguments for %s violate schema: %w", tool.Name, err)
	}
	return nil
}

func (v *Validator) schemaFor(tool ToolInfo) (*jsonschema.Schema, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if schema, ok := v.compiled[tool.Name]; ok {
		return schema, nil
	}

	// The compiler wants a decoded document, not Go maps with arbitrary
	// value types, so normalize through JSON first.
	raw, err := json.Marshal(tool.InputSchema)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal schema for %s: %w", tool.Name, err)
	}
	var schemaDoc interface{}
	if err := json.Unmarshal(raw, &schemaDoc); err != nil {
		return nil, fmt.Errorf("failed to decode schema for %s: %w", tool.Name, err)
	}

	compiler := jsonschema.NewCompiler()
	resource := fmt.Sprintf("%s.schema.json", tool.Name)
	if err := compiler.AddResource(resource, schemaDoc); err != nil {
		return nil, fmt.Errorf("failed to add schema resource for %s: %w", tool.Name, err)
	}
	schema, err := compiler.Compile(resource)
	if err != nil {
		return nil, fmt.Errorf("failed to compile schema for %s: %w", tool.Name, err)
	}

	v.compiled[tool.Name] = schema
	return schema, nil
}
