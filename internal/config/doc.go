// Package config provides Lua configuration parsing, generation, and storage
// for toolkeeper.
//
// # Overview
//
// The configuration lives in toolkeeper.lua inside the config directory
// ($TOOLKEEPER_CONFIG_DIR, default os.UserConfigDir()/toolkeeper). It names
// the tool, pins an override path or an accepted digest, chooses the console
// charset, and lists the arguments passed to every run:
//
//	toolkeeper = {
//	  tool = { name = "modtool", path = "", trusted_digest = "" },
//	  console = { encoding = "utf-8" },       -- or "auto"
//	  run = {
//	    language = "de",
//	    game = "/games/example",
//	    log = "logs/toolkeeper.log",        -- relative to the working directory
//	    flags = { "--strict", platform.when(platform.is_windows, "--no-color") },
//	  },
//	  release = {
//	    api = "https://api.github.com/repos/OWNER/REPO/releases/latest",
//	    keyring = "~/.config/toolkeeper/release.asc",
//	    require_signature = false,
//	  },
//	}
//
// # Sandbox
//
// Configs are evaluated by gopher-lua in a sandbox without the os, io,
// package and debug libraries, without code loading and without metatable
// access. A read-only platform table (see internal/platform) is injected so
// a config can branch on the operating system and architecture.
// Evaluation is bounded by the context deadline (DefaultParseTimeout when
// none is set).
//
// # Write-back
//
// Store.Remember and Store.Update regenerate the file with Generator, which
// emits the same schema. Expressions in a hand-written file are replaced by
// their evaluated values.
//
// # Hot reload
//
// Watcher observes the config directory with fsnotify and reloads the file
// after a short debounce, so a running session can pick up a new console
// encoding.
package config
