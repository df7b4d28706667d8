package tools

import "testing"

func searchTool() ToolInfo {
	return ToolInfo{
		Name: "search_elog",
		InputSchema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"query": map[string]interface{}{
					"type": "string",
				},
				"max_results": map[string]interface{}{
					"type": "integer",
				},
				"category": map[string]interface{}{
					"type": "string",
					"enum": []interface{}{"Info", "Problem", "Pikett"},
				},
			},
			"required": []interface{}{"query"},
		},
	}
}

func TestValidateArgs(t *testing.T) {
	validator := NewValidator()

	tests := []struct {
		name    string
		args    map[string]interface{}
		wantErr bool
	}{
		{
			name: "valid",
			args: map[string]interface{}{"query": "beam dump", "max_results": 10},
		},
		{
			name: "valid with enum",
			args: map[string]interface{}{"query": "rf trip", "category": "Problem"},
		},
		{
			name:    "missing required",
			args:    map[string]interface{}{"max_results": 10},
			wantErr: true,
		},
		{
			name:    "illegal enum value",
			args:    map[string]interface{}{"query": "x", "category": "Gossip"},
			wantErr: true,
		},
		{
			name:    "wrong type",
			args:    map[string]interface{}{"query": 42},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validator.ValidateArgs(searchTool(), tt.args)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateArgs() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateArgs_NoSchema(t *testing.T) {
	validator := NewValidator()
	tool := ToolInfo{Name: "free_form"}

	if err := validator.ValidateArgs(tool, map[string]interface{}{"anything": true}); err != nil {
		t.Errorf("ValidateArgs() error = %v, want nil for schemaless tool", err)
	}
}

func TestValidateArgs_CachesCompiledSchema(t *testing.T) {
	validator := NewValidator()
	tool := searchTool()

	if err := validator.ValidateArgs(tool, map[string]interface{}{"query": "a"}); err != nil {
		t.Fatalf("ValidateArgs() error = %v", err)
	}
	if len(validator.compiled) != 1 {
		t.Errorf("compiled cache size = %d, want 1", len(validator.compiled))
	}
	if err := validator.ValidateArgs(tool, map[string]interface{}{"query": "b"}); err != nil {
		t.Fatalf("ValidateArgs() error = %v", err)
	}
	if len(validator.compiled) != 1 {
		t.Errorf("compiled cache size = %d after second call, want 1", len(validator.compiled))
	}
}
