package session

import "strings"

// RunOptions are the per-run arguments passed to the tool.
type RunOptions struct {
	// Language is passed as --use-lang when set.
	Language string
	// Game is the game directory, passed as --game when set.
	Game string
	// Log is the log file path relative to the working directory, passed
	// as --log when set.
	Log string
	// Flags are extra user flags. A flag already present in the base
	// command is dropped together with its value.
	Flags []string
}

// BuildCommand assembles the tool argv for running script:
//
//	exe script --no-exit-pause [--use-lang code] [--game path] [--log file] flags...
func BuildCommand(exe, script string, opts RunOptions) []string {
	argv := []string{exe, script, "--no-exit-pause"}
	if opts.Language != "" {
		argv = append(argv, "--use-lang", opts.Language)
	}
	if opts.Game != "" {
		argv = append(argv, "--game", opts.Game)
	}
	if opts.Log != "" {
		argv = append(argv, "--log", opts.Log)
	}

	base := make(map[string]struct{})
	for _, a := range argv[2:] {
		if isFlag(a) {
			base[flagName(a)] = struct{}{}
		}
	}

	return append(argv, dedupFlags(opts.Flags, base)...)
}

// dedupFlags drops every flag named in taken, along with the non-flag
// argument that follows it.
func dedupFlags(flags []string, taken map[string]struct{}) []string {
	var out []string
	for i := 0; i < len(flags); i++ {
		f := strings.TrimSpace(flags[i])
		if f == "" {
			continue
		}
		if !isFlag(f) {
			out = append(out, f)
			continue
		}
		if _, dup := taken[flagName(f)]; !dup {
			out = append(out, f)
			continue
		}
		// --name=value carries its own value.
		if strings.Contains(f, "=") {
			continue
		}
		if i+1 < len(flags) && !isFlag(flags[i+1]) {
			i++
		}
	}
	return out
}

func isFlag(s string) bool {
	return strings.HasPrefix(s, "-") && len(s) > 1
}

func flagName(s string) string {
	if i := strings.IndexByte(s, '='); i >= 0 {
		return s[:i]
	}
	return s
}

// SplitFlags splits a user flag string on whitespace. Double quotes group
// words containing spaces.
func SplitFlags(s string) []string {
	var (
		out     []string
		cur     strings.Builder
		quoted  bool
		pending bool
	)
	for _, r := range s {
		switch {
		case r == '"':
			quoted = !quoted
			pending = true
		case !quoted && (r == ' ' || r == '\t' || r == '\n'):
			if pending {
				out = append(out, cur.String())
				cur.Reset()
				pending = false
			}
		default:
			cur.WriteRune(r)
			pending = true
		}
	}
	if pending {
		out = append(out, cur.String())
	}
	return out
}
