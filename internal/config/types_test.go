package config

import (
	"errors"
	"strings"
	"testing"
)

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "defaults", mutate: func(*Config) {}},
		{name: "auto encoding", mutate: func(c *Config) { c.Console.Encoding = "auto" }},
		{name: "uppercase digest", mutate: func(c *Config) { c.Tool.TrustedDigest = strings.ToUpper(digest) }},
		{name: "nested log", mutate: func(c *Config) { c.Run.Log = "logs/a/b.log" }},
		{name: "http release", mutate: func(c *Config) { c.Release.API = "http://localhost:8080/latest" }},
		{
			name:   "signed release",
			mutate: func(c *Config) { c.Release.RequireSignature = true; c.Release.Keyring = "k.asc" },
		},

		{name: "empty name", mutate: func(c *Config) { c.Tool.Name = "" }, wantErr: "tool.name"},
		{name: "name with slash", mutate: func(c *Config) { c.Tool.Name = "bin/tool" }, wantErr: "tool.name"},
		{name: "long name", mutate: func(c *Config) { c.Tool.Name = strings.Repeat("a", 129) }, wantErr: "tool.name"},
		{name: "short digest", mutate: func(c *Config) { c.Tool.TrustedDigest = "abcd" }, wantErr: "tool.trusted_digest"},
		{name: "unknown encoding", mutate: func(c *Config) { c.Console.Encoding = "nope" }, wantErr: "console.encoding"},
		{name: "absolute log", mutate: func(c *Config) { c.Run.Log = "/tmp/x.log" }, wantErr: "run.log"},
		{name: "parent log", mutate: func(c *Config) { c.Run.Log = "logs/../../x.log" }, wantErr: "run.log"},
		{
			name:    "too many flags",
			mutate:  func(c *Config) { c.Run.Flags = make([]string, MaxFlagCount+1) },
			wantErr: "run.flags",
		},
		{name: "file release", mutate: func(c *Config) { c.Release.API = "file:///etc/passwd" }, wantErr: "release.api"},
		{name: "hostless release", mutate: func(c *Config) { c.Release.API = "https://" }, wantErr: "release.api"},
		{name: "signature needs keyring", mutate: func(c *Config) { c.Release.RequireSignature = true }, wantErr: "release.keyring"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() error = %v", err)
				}
				return
			}

			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("Validate() error = %v, want *ValidationError", err)
			}
			if verr.Field != tt.wantErr {
				t.Errorf("Field = %q, want %q", verr.Field, tt.wantErr)
			}
		})
	}
}

func TestValidationError_Error(t *testing.T) {
	withField := &ValidationError{Field: "tool.name", Message: "empty"}
	if got := withField.Error(); got != "config validation failed for tool.name: empty" {
		t.Errorf("Error() = %q", got)
	}

	bare := &ValidationError{Message: "broken"}
	if got := bare.Error(); got != "config validation failed: broken" {
		t.Errorf("Error() = %q", got)
	}
}
