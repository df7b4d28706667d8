package config

import (
	"os"
	"testing"
)

func TestLoadFromString_Defaults(t *testing.T) {
	cfg, err := LoadFromString(`
elog:
  url: https://elog.example.ch/Operation
`)
	if err != nil {
		t.Fatalf("LoadFromString() error = %v", err)
	}

	if cfg.LLM.Host != "http://localhost:11434" {
		t.Errorf("LLM.Host = %q, want default ollama host", cfg.LLM.Host)
	}
	if cfg.LLM.Timeout != 60 {
		t.Errorf("LLM.Timeout = %d, want 60", cfg.LLM.Timeout)
	}
	if cfg.LLM.IdleTimeout != 45 {
		t.Errorf("LLM.IdleTimeout = %d, want 45", cfg.LLM.IdleTimeout)
	}
	if cfg.Session.MaxIterations != 3 {
		t.Errorf("Session.MaxIterations = %d, want 3", cfg.Session.MaxIterations)
	}
	if cfg.Session.MaxHistoryMessages != 6 {
		t.Errorf("Session.MaxHistoryMessages = %d, want 6", cfg.Session.MaxHistoryMessages)
	}
	if !cfg.Session.Enabled() {
		t.Error("Session.Enabled() = false, want true by default")
	}
	if cfg.Rerank.HalfLifeHours != 48 {
		t.Errorf("Rerank.HalfLifeHours = %f, want 48", cfg.Rerank.HalfLifeHours)
	}
	if cfg.Rerank.MaxPerCategory != 5 {
		t.Errorf("Rerank.MaxPerCategory = %d, want 5", cfg.Rerank.MaxPerCategory)
	}
}

func TestLoadFromString_EnvExpansion(t *testing.T) {
	os.Setenv("TEST_ELOG_URL", "https://elog.test.ch/Operation")
	defer os.Unsetenv("TEST_ELOG_URL")

	cfg, err := LoadFromString(`
elog:
  url: ${TEST_ELOG_URL}
llm:
  model: ${TEST_MISSING_MODEL:-qwen3:8b}
`)
	if err != nil {
		t.Fatalf("LoadFromString() error = %v", err)
	}

	if cfg.ELOG.URL != "https://elog.test.ch/Operation" {
		t.Errorf("ELOG.URL = %q, want expanded env value", cfg.ELOG.URL)
	}
	if cfg.LLM.Model != "qwen3:8b" {
		t.Errorf("LLM.Model = %q, want fallback default", cfg.LLM.Model)
	}
}

func TestLoadFromString_MissingELOGURL(t *testing.T) {
	_, err := LoadFromString(`
llm:
  model: qwen3:8b
`)
	if err == nil {
		t.Fatal("expected validation error when elog url is missing")
	}
}

func TestToolServerConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     ToolServerConfig
		wantErr bool
	}{
		{
			name: "valid http",
			cfg:  ToolServerConfig{Name: "elog", Transport: "http", URL: "http://localhost:8000/mcp"},
		},
		{
			name: "valid stdio",
			cfg:  ToolServerConfig{Name: "accwiki", Transport: "stdio", Command: "accwiki-mcp"},
		},
		{
			name:    "http without url",
			cfg:     ToolServerConfig{Name: "elog", Transport: "http"},
			wantErr: true,
		},
		{
			name:    "stdio without command",
			cfg:     ToolServerConfig{Name: "accwiki", Transport: "stdio"},
			wantErr: true,
		},
		{
			name:    "missing name",
			cfg:     ToolServerConfig{Transport: "http", URL: "http://localhost:8000"},
			wantErr: true,
		},
		{
			name:    "unknown transport",
			cfg:     ToolServerConfig{Name: "x", Transport: "grpc"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestSessionConfig_ToolsDisabled(t *testing.T) {
	cfg, err := LoadFromString(`
elog:
  url: https://elog.example.ch/Operation
session:
  tools_enabled: false
`)
	if err != nil {
		t.Fatalf("LoadFromString() error = %v", err)
	}
	if cfg.Session.Enabled() {
		t.Error("Session.Enabled() = true, want false")
	}
}
