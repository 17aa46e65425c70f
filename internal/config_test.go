package internal

import (
	"strings"
	"testing"
	"time"
)

func TestAuthConfig_DisabledMode(t *testing.T) {
	cfg := AuthConfig{Mode: "disabled", Token: ""}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("disabled mode should pass: %v", err)
	}
	if cfg.AuthEnabled() {
		t.Error("disabled mode should not be enabled")
	}
}

func TestAuthConfig_EmptyModeDefaultsDisabled(t *testing.T) {
	cfg := AuthConfig{Mode: "", Token: ""}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("empty mode should default to disabled: %v", err)
	}
	if cfg.Mode != AuthModeDisabled {
		t.Errorf("mode = %q, want %q", cfg.Mode, AuthModeDisabled)
	}
}

func TestAuthConfig_TokenModeValid(t *testing.T) {
	cfg := AuthConfig{Mode: "token", Token: "mysecret"}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("token mode with token should pass: %v", err)
	}
	if !cfg.AuthEnabled() {
		t.Error("token mode should be enabled")
	}
}

func TestAuthConfig_TokenModeEmptyToken(t *testing.T) {
	cfg := AuthConfig{Mode: "token", Token: ""}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("token mode with empty token should fail")
	}
	if !strings.Contains(err.Error(), "token is empty") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestAuthConfig_InvalidMode(t *testing.T) {
	cfg := AuthConfig{Mode: "magic", Token: "x"}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("invalid mode should fail validation")
	}
}

func TestFullConfig_AuthValidationCalled(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Auth.Mode = "token"
	cfg.Auth.Token = ""
	err := cfg.Validate()
	if err == nil {
		t.Fatal("full config validate should catch auth error")
	}
}

func TestDefaultConfigValid(t *testing.T) {
	cfg := NewDefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.App.HTTP.Address() != ":7420" {
		t.Errorf("address = %q", cfg.App.HTTP.Address())
	}
}

func TestWorkspaceConfig_Storage(t *testing.T) {
	cfg := WorkspaceConfig{}
	if err := cfg.Validate(); err != nil || cfg.Storage != "path" {
		t.Errorf("empty storage: %v %q", err, cfg.Storage)
	}
	cfg = WorkspaceConfig{Storage: "handle"}
	if err := cfg.Validate(); err != nil {
		t.Errorf("handle storage: %v", err)
	}
	cfg = WorkspaceConfig{Storage: "s3"}
	if err := cfg.Validate(); err == nil {
		t.Error("unknown storage should fail")
	}
}

func TestEditorConfig_Validation(t *testing.T) {
	cfg := NewDefaultConfig().Editor
	cfg.Renderer = "pandoc"
	if err := cfg.Validate(); err == nil {
		t.Error("unknown renderer should fail")
	}
	cfg = NewDefaultConfig().Editor
	cfg.AutoSaveDelay = time.Millisecond
	if err := cfg.Validate(); err == nil {
		t.Error("tiny auto-save delay should fail")
	}
	cfg = NewDefaultConfig().Editor
	cfg.Renderer = ""
	if err := cfg.Validate(); err != nil {
		t.Errorf("empty renderer falls back to default engine: %v", err)
	}
}
