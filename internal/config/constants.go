package config

// Lua schema field names and globals
const (
	luaGlobalToolkeeper    = "toolkeeper"
	luaFieldTool           = "tool"
	luaFieldConsole        = "console"
	luaFieldRun            = "run"
	luaFieldRelease        = "release"
	luaFieldName           = "name"
	luaFieldPath           = "path"
	luaFieldTrustedDigest  = "trusted_digest"
	luaFieldEncoding       = "encoding"
	luaFieldLanguage       = "language"
	luaFieldGame           = "game"
	luaFieldLog            = "log"
	luaFieldFlags          = "flags"
	luaFieldAPI            = "api"
	luaFieldKeyring        = "keyring"
	luaFieldRequireSigning = "require_signature"
)

const (
	// FileName is the configuration file name inside the config directory.
	FileName = "toolkeeper.lua"

	// DefaultToolName is the tool executable name used when none is configured.
	DefaultToolName = "modtool"

	// DefaultLogPath is the tool log file, relative to the working directory.
	DefaultLogPath = "logs/toolkeeper.log"

	// MaxConfigSize bounds the configuration file read by ParseFile.
	MaxConfigSize = 1 << 20

	// MaxFlagCount bounds run.flags.
	MaxFlagCount = 64
)
