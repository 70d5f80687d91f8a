package config

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/ZebulonRouseFrantzich/toolkeeper/internal/logging"
	"github.com/ZebulonRouseFrantzich/toolkeeper/internal/platform"
	lua "github.com/yuin/gopher-lua"
)

// DefaultParseTimeout applies when the context carries no deadline.
const DefaultParseTimeout = 5 * time.Second

// Parser represents a Lua config parser with platform detection.
type Parser struct {
	detector platform.Detector
	logger   logging.Logger
}

// NewParser creates a new config parser with the given platform detector.
// A nil detector leaves the platform table undefined.
func NewParser(detector platform.Detector) *Parser {
	return &Parser{detector: detector, logger: logging.Nop()}
}

// WithLogger sets the parser logger.
func (p *Parser) WithLogger(l logging.Logger) *Parser {
	p.logger = logging.OrNop(l)
	return p
}

// ParseFile reads and parses a config file.
func (p *Parser) ParseFile(ctx context.Context, path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, MaxConfigSize+1))
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if len(data) > MaxConfigSize {
		return nil, &ParseError{
			Message: "config file too large",
			Detail:  fmt.Sprintf("%s exceeds %d bytes", path, MaxConfigSize),
		}
	}

	p.logger.Debug("parsing config", "path", path, "size", len(data))
	return p.ParseString(ctx, string(data))
}

// ParseString parses a Lua config from a string.
func (p *Parser) ParseString(ctx context.Context, luaCode string) (*Config, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, DefaultParseTimeout)
		defer cancel()
	}

	L := newSandboxedVM()
	defer L.Close()
	L.SetContext(ctx)

	// Detect platform and inject platform table
	if p.detector != nil {
		platformInfo, err := p.detector.Detect(ctx)
		if err != nil {
			return nil, fmt.Errorf("platform detection failed: %w", err)
		}
		if err := platform.InjectPlatformTable(L, platformInfo); err != nil {
			return nil, fmt.Errorf("inject platform table: %w", err)
		}
	}

	if err := L.DoString(luaCode); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("evaluate config: %w", ctxErr)
		}
		return nil, &ParseError{
			Message: "Lua syntax error",
			Detail:  err.Error(),
		}
	}

	cfg, err := extractConfig(L)
	if err != nil {
		p.logger.Warn("config rejected", "error", err)
		return nil, err
	}
	return cfg, nil
}

// ParseError represents a config parsing error with friendly message.
type ParseError struct {
	Message string // User-friendly message
	Detail  string // Technical details (raw Lua error)
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s: %s", e.Message, e.Detail)
}

// extractConfig reads the global "toolkeeper" table.
func extractConfig(L *lua.LState) (*Config, error) {
	root := L.GetGlobal(luaGlobalToolkeeper)
	if root.Type() != lua.LTTable {
		return nil, &ParseError{
			Message: "missing or invalid 'toolkeeper' table",
			Detail:  fmt.Sprintf("expected table, got %s", root.Type()),
		}
	}

	config := &Config{}
	table := root.(*lua.LTable)

	if t, ok := table.RawGetString(luaFieldTool).(*lua.LTable); ok {
		config.Tool = extractTool(t)
	}

	if t, ok := table.RawGetString(luaFieldConsole).(*lua.LTable); ok {
		config.Console.Encoding = stringField(t, luaFieldEncoding)
	}

	if t, ok := table.RawGetString(luaFieldRun).(*lua.LTable); ok {
		run, err := extractRun(t)
		if err != nil {
			return nil, err
		}
		config.Run = run
	}

	if t, ok := table.RawGetString(luaFieldRelease).(*lua.LTable); ok {
		config.Release = ReleaseConfig{
			API:              stringField(t, luaFieldAPI),
			Keyring:          stringField(t, luaFieldKeyring),
			RequireSignature: boolField(t, luaFieldRequireSigning),
		}
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, &ParseError{
			Message: "config validation failed",
			Detail:  err.Error(),
		}
	}

	return config, nil
}

func extractTool(table *lua.LTable) ToolConfig {
	return ToolConfig{
		Name:          stringField(table, luaFieldName),
		Path:          stringField(table, luaFieldPath),
		TrustedDigest: strings.ToLower(stringField(table, luaFieldTrustedDigest)),
	}
}

// extractRun reads the run table. Flags may be a list or a single string.
func extractRun(table *lua.LTable) (RunConfig, error) {
	run := RunConfig{
		Language: stringField(table, luaFieldLanguage),
		Game:     stringField(table, luaFieldGame),
		Log:      stringField(table, luaFieldLog),
	}

	switch v := table.RawGetString(luaFieldFlags).(type) {
	case lua.LString:
		run.Flags = strings.Fields(string(v))
	case *lua.LTable:
		// Iterate in array order; nil holes from platform conditionals are skipped.
		for i := 1; i <= v.MaxN(); i++ {
			item := v.RawGetInt(i)
			switch item.Type() {
			case lua.LTNil:
				continue
			case lua.LTString, lua.LTNumber:
				run.Flags = append(run.Flags, item.String())
			default:
				return RunConfig{}, &ParseError{
					Message: "invalid run.flags entry",
					Detail:  fmt.Sprintf("flags[%d] is a %s", i, item.Type()),
				}
			}
		}
	}

	return run, nil
}

func stringField(t *lua.LTable, name string) string {
	if v, ok := t.RawGetString(name).(lua.LString); ok {
		return string(v)
	}
	return ""
}

func boolField(t *lua.LTable, name string) bool {
	if v, ok := t.RawGetString(name).(lua.LBool); ok {
		return bool(v)
	}
	return false
}

// FormatError formats a ParseError for user display.
// In verbose mode, show the raw Lua error. Otherwise, show friendly message.
func FormatError(err error, verbose bool) string {
	var parseErr *ParseError
	if errors.As(err, &parseErr) {
		if verbose {
			return fmt.Sprintf("%s\n\nDetails:\n%s", parseErr.Message, parseErr.Detail)
		}
		// Extract the most relevant part of the error
		detail := parseErr.Detail
		if idx := strings.Index(detail, "stack traceback"); idx > 0 {
			detail = strings.TrimSpace(detail[:idx])
		}
		return fmt.Sprintf("%s: %s", parseErr.Message, detail)
	}
	return err.Error()
}
