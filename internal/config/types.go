package config

import (
	"fmt"
	"net/url"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/ZebulonRouseFrantzich/toolkeeper/internal/charset"
)

// Config represents the complete toolkeeper configuration.
type Config struct {
	// Tool identifies the supervised executable.
	Tool ToolConfig `json:"tool"`

	// Console configures decoding of the tool's console.
	Console ConsoleConfig `json:"console"`

	// Run holds the arguments passed to every run.
	Run RunConfig `json:"run"`

	// Release configures where and how the tool is downloaded.
	Release ReleaseConfig `json:"release"`
}

// ToolConfig identifies the tool executable.
type ToolConfig struct {
	// Name is the executable name without platform suffix.
	Name string `json:"name"`
	// Path overrides the search. Empty searches the default locations.
	Path string `json:"path,omitempty"`
	// TrustedDigest is the SHA-256 of a tool the user accepted although it
	// is not whitelisted.
	TrustedDigest string `json:"trusted_digest,omitempty"`
}

// ConsoleConfig configures the console charset.
type ConsoleConfig struct {
	// Encoding is a charset name or "auto".
	Encoding string `json:"encoding"`
}

// RunConfig holds per-run tool arguments.
type RunConfig struct {
	Language string   `json:"language,omitempty"`
	Game     string   `json:"game,omitempty"`
	Log      string   `json:"log,omitempty"`
	Flags    []string `json:"flags,omitempty"`
}

// ReleaseConfig configures tool downloads.
type ReleaseConfig struct {
	// API is the release metadata endpoint. Empty disables downloads.
	API string `json:"api,omitempty"`
	// Keyring is an OpenPGP public keyring used to verify release signatures.
	Keyring string `json:"keyring,omitempty"`
	// RequireSignature refuses releases without a verifiable signature.
	RequireSignature bool `json:"require_signature,omitempty"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		Tool:    ToolConfig{Name: DefaultToolName},
		Console: ConsoleConfig{Encoding: charset.UTF8},
		Run:     RunConfig{Log: DefaultLogPath},
	}
}

// applyDefaults fills fields a config file left empty.
func (c *Config) applyDefaults() {
	if c.Tool.Name == "" {
		c.Tool.Name = DefaultToolName
	}
	if c.Console.Encoding == "" {
		c.Console.Encoding = charset.UTF8
	}
}

// Validate performs basic validation on a Config.
func (c *Config) Validate() error {
	if err := validateToolName(c.Tool.Name); err != nil {
		return &ValidationError{Field: "tool.name", Message: err.Error()}
	}

	if c.Tool.TrustedDigest != "" && !digestPattern.MatchString(strings.ToLower(c.Tool.TrustedDigest)) {
		return &ValidationError{
			Field:   "tool.trusted_digest",
			Message: fmt.Sprintf("not a SHA-256 hex digest: %q", c.Tool.TrustedDigest),
		}
	}

	if c.Console.Encoding != "" && !charset.Valid(c.Console.Encoding) {
		return &ValidationError{
			Field:   "console.encoding",
			Message: fmt.Sprintf("unknown charset %q", c.Console.Encoding),
		}
	}

	if c.Run.Log != "" {
		if err := validateLogPath(c.Run.Log); err != nil {
			return &ValidationError{Field: "run.log", Message: err.Error()}
		}
	}

	if len(c.Run.Flags) > MaxFlagCount {
		return &ValidationError{
			Field:   "run.flags",
			Message: fmt.Sprintf("too many flags (%d), maximum is %d", len(c.Run.Flags), MaxFlagCount),
		}
	}

	if c.Release.API != "" {
		if err := validateReleaseURL(c.Release.API); err != nil {
			return &ValidationError{Field: "release.api", Message: err.Error()}
		}
	}

	if c.Release.RequireSignature && c.Release.Keyring == "" {
		return &ValidationError{
			Field:   "release.keyring",
			Message: "a keyring is required when require_signature is set",
		}
	}

	return nil
}

// ValidationError represents a config validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return "config validation failed for " + e.Field + ": " + e.Message
	}
	return "config validation failed: " + e.Message
}

// toolNamePattern matches executable base names.
var toolNamePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)

var digestPattern = regexp.MustCompile(`^[0-9a-f]{64}$`)

func validateToolName(name string) error {
	if name == "" {
		return fmt.Errorf("tool name cannot be empty")
	}
	if len(name) > 128 {
		return fmt.Errorf("tool name too long (%d chars, max 128)", len(name))
	}
	if !toolNamePattern.MatchString(name) {
		return fmt.Errorf("invalid tool name %q (letters, digits, '.', '_' and '-' only)", name)
	}
	return nil
}

// validateLogPath requires a relative path that stays inside the working
// directory.
func validateLogPath(path string) error {
	if filepath.IsAbs(path) || strings.HasPrefix(path, "/") {
		return fmt.Errorf("log path must be relative to the working directory: %s", path)
	}

	cleaned := filepath.ToSlash(filepath.Clean(path))
	if cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return fmt.Errorf("path traversal not allowed: %s", path)
	}
	return nil
}

// validateReleaseURL accepts http and https URLs only.
func validateReleaseURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid release URL: %w", err)
	}

	if u.Scheme != "https" && u.Scheme != "http" {
		return fmt.Errorf("release URL must use https:// or http:// scheme (got: %s)", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("release URL has no host: %s", raw)
	}
	return nil
}
