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
	if err := NewDefaultConfig().Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
}

func TestPersistenceConfig(t *testing.T) {
	tests := []struct {
		name    string
		cfg     PersistenceConfig
		wantErr bool
	}{
		{"empty defaults to local", PersistenceConfig{}, false},
		{"remote with url", PersistenceConfig{Mode: PersistenceRemote, BaseURL: "http://scenes:8080/api"}, false},
		{"remote without url", PersistenceConfig{Mode: PersistenceRemote}, true},
		{"unknown mode", PersistenceConfig{Mode: "ftp"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}

	cfg := PersistenceConfig{}
	_ = cfg.Validate()
	if cfg.Mode != PersistenceLocal || cfg.Remote() {
		t.Errorf("mode = %q", cfg.Mode)
	}
}

func TestCollaborationConfig(t *testing.T) {
	tests := []struct {
		name    string
		cfg     CollaborationConfig
		wantErr bool
	}{
		{"disabled needs nothing", CollaborationConfig{}, false},
		{"enabled with url", CollaborationConfig{Enabled: true, RedisURL: "redis://localhost:6379/0"}, false},
		{"enabled without url", CollaborationConfig{Enabled: true}, true},
		{"enabled with http url", CollaborationConfig{Enabled: true, RedisURL: "http://localhost"}, true},
		{"negative ttl", CollaborationConfig{RoomTTL: -time.Second}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestThumbnailConfig(t *testing.T) {
	cfg := ThumbnailConfig{MaxDimension: 512}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if cfg.Renderer != RendererRaster {
		t.Errorf("renderer = %q, want raster", cfg.Renderer)
	}
	if err := (&ThumbnailConfig{Renderer: "svg", MaxDimension: 512}).Validate(); err == nil {
		t.Error("unknown renderer should fail")
	}
	if err := (&ThumbnailConfig{MaxDimension: 0}).Validate(); err == nil {
		t.Error("zero max_dimension should fail")
	}
}

func TestInitialSceneConfig(t *testing.T) {
	empty := InitialSceneConfig{}
	if empty.Set() || empty.Validate() != nil {
		t.Error("empty initial scene is valid and unset")
	}
	half := InitialSceneConfig{WorkspaceID: "ws"}
	if half.Validate() == nil {
		t.Error("initial scene without document id should fail")
	}
}

func TestTracingNeedsEndpoint(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Tracing.Enabled = true
	if err := cfg.Validate(); err == nil {
		t.Error("tracing without endpoint should fail")
	}
	cfg.Tracing.Endpoint = "localhost:4318"
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}
