package config

import (
	"bytes"
	"strings"
	"time"
)

// Generator generates Lua configuration code from Go structs.
type Generator struct {
	indent string // Indentation string (default: two spaces)
	now    func() time.Time
}

// NewGenerator creates a new Lua config generator.
func NewGenerator() *Generator {
	return &Generator{
		indent: "  ", // Two spaces
		now:    time.Now,
	}
}

// Generate generates Lua code from a Config struct.
// The output is formatted and human-readable, and parses back to config.
func (g *Generator) Generate(config *Config) (string, error) {
	var buf bytes.Buffer

	// Write header comment
	buf.WriteString("-- toolkeeper configuration\n")
	buf.WriteString("-- Generated: ")
	buf.WriteString(g.now().Format(time.RFC3339))
	buf.WriteString("\n\n")

	buf.WriteString(luaGlobalToolkeeper)
	buf.WriteString(" = {\n")

	g.writeTool(&buf, config.Tool)
	g.writeConsole(&buf, config.Console)

	if config.Run.Language != "" || config.Run.Game != "" || config.Run.Log != "" || len(config.Run.Flags) > 0 {
		g.writeRun(&buf, config.Run)
	}

	if config.Release.API != "" || config.Release.Keyring != "" || config.Release.RequireSignature {
		g.writeRelease(&buf, config.Release)
	}

	buf.WriteString("}\n")

	return buf.String(), nil
}

// writeTool writes the tool section to the buffer.
func (g *Generator) writeTool(buf *bytes.Buffer, tool ToolConfig) {
	g.open(buf, luaFieldTool)
	g.field(buf, luaFieldName, tool.Name)
	if tool.Path != "" {
		g.field(buf, luaFieldPath, tool.Path)
	}
	if tool.TrustedDigest != "" {
		g.field(buf, luaFieldTrustedDigest, tool.TrustedDigest)
	}
	g.close(buf)
}

// writeConsole writes the console section to the buffer.
func (g *Generator) writeConsole(buf *bytes.Buffer, console ConsoleConfig) {
	g.open(buf, luaFieldConsole)
	if console.Encoding != "" {
		g.field(buf, luaFieldEncoding, console.Encoding)
	}
	g.close(buf)
}

// writeRun writes the run section to the buffer.
func (g *Generator) writeRun(buf *bytes.Buffer, run RunConfig) {
	g.open(buf, luaFieldRun)
	if run.Language != "" {
		g.field(buf, luaFieldLanguage, run.Language)
	}
	if run.Game != "" {
		g.field(buf, luaFieldGame, run.Game)
	}
	if run.Log != "" {
		g.field(buf, luaFieldLog, run.Log)
	}
	if len(run.Flags) > 0 {
		buf.WriteString(g.indent)
		buf.WriteString(g.indent)
		buf.WriteString(luaFieldFlags)
		buf.WriteString(" = {")
		for i, f := range run.Flags {
			if i > 0 {
				buf.WriteString(", ")
			}
			buf.WriteString(g.quoteLuaString(f))
		}
		buf.WriteString("},\n")
	}
	g.close(buf)
}

// writeRelease writes the release section to the buffer.
func (g *Generator) writeRelease(buf *bytes.Buffer, release ReleaseConfig) {
	g.open(buf, luaFieldRelease)
	if release.API != "" {
		g.field(buf, luaFieldAPI, release.API)
	}
	if release.Keyring != "" {
		g.field(buf, luaFieldKeyring, release.Keyring)
	}
	if release.RequireSignature {
		buf.WriteString(g.indent)
		buf.WriteString(g.indent)
		buf.WriteString(luaFieldRequireSigning)
		buf.WriteString(" = true,\n")
	}
	g.close(buf)
}

func (g *Generator) open(buf *bytes.Buffer, name string) {
	buf.WriteString(g.indent)
	buf.WriteString(name)
	buf.WriteString(" = {\n")
}

func (g *Generator) close(buf *bytes.Buffer) {
	buf.WriteString(g.indent)
	buf.WriteString("},\n")
}

func (g *Generator) field(buf *bytes.Buffer, name, value string) {
	buf.WriteString(g.indent)
	buf.WriteString(g.indent)
	buf.WriteString(name)
	buf.WriteString(" = ")
	buf.WriteString(g.quoteLuaString(value))
	buf.WriteString(",\n")
}

// quoteLuaString quotes a string for Lua, handling special characters.
func (g *Generator) quoteLuaString(s string) string {
	// Use double quotes and escape special characters
	s = strings.ReplaceAll(s, "\\", "\\\\") // Escape backslashes first
	s = strings.ReplaceAll(s, "\"", "\\\"") // Escape double quotes
	s = strings.ReplaceAll(s, "\n", "\\n")  // Escape newlines
	s = strings.ReplaceAll(s, "\r", "\\r")  // Escape carriage returns
	s = strings.ReplaceAll(s, "\t", "\\t")  // Escape tabs
	return "\"" + s + "\""
}
