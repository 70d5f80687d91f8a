package session

import (
	"reflect"
	"testing"
)

func TestBuildCommand(t *testing.T) {
	tests := []struct {
		name string
		opts RunOptions
		want []string
	}{
		{
			name: "minimal",
			want: []string{"/bin/tool", "mod.zip", "--no-exit-pause"},
		},
		{
			name: "all options",
			opts: RunOptions{Language: "de", Game: "/games/g", Log: "logs/run.log"},
			want: []string{"/bin/tool", "mod.zip", "--no-exit-pause",
				"--use-lang", "de", "--game", "/games/g", "--log", "logs/run.log"},
		},
		{
			name: "custom flags appended",
			opts: RunOptions{Game: "/games/g", Flags: []string{"--strict", "--jobs", "4"}},
			want: []string{"/bin/tool", "mod.zip", "--no-exit-pause",
				"--game", "/games/g", "--strict", "--jobs", "4"},
		},
		{
			name: "duplicate flag stripped with its value",
			opts: RunOptions{Game: "/games/g", Flags: []string{"--game", "/other", "--strict"}},
			want: []string{"/bin/tool", "mod.zip", "--no-exit-pause",
				"--game", "/games/g", "--strict"},
		},
		{
			name: "duplicate flag followed by a flag keeps the flag",
			opts: RunOptions{Log: "a.log", Flags: []string{"--log", "--verbose"}},
			want: []string{"/bin/tool", "mod.zip", "--no-exit-pause",
				"--log", "a.log", "--verbose"},
		},
		{
			name: "duplicate in name=value form",
			opts: RunOptions{Language: "fr", Flags: []string{"--use-lang=en", "extra"}},
			want: []string{"/bin/tool", "mod.zip", "--no-exit-pause",
				"--use-lang", "fr", "extra"},
		},
		{
			name: "flag not in base command is kept",
			opts: RunOptions{Flags: []string{"--game", "/g"}},
			want: []string{"/bin/tool", "mod.zip", "--no-exit-pause", "--game", "/g"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := BuildCommand("/bin/tool", "mod.zip", tt.opts)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("BuildCommand() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSplitFlags(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"", nil},
		{"--a  --b 1", []string{"--a", "--b", "1"}},
		{`--name "two words" x`, []string{"--name", "two words", "x"}},
		{`--empty ""`, []string{"--empty", ""}},
	}
	for _, tt := range tests {
		if got := SplitFlags(tt.in); !reflect.DeepEqual(got, tt.want) {
			t.Errorf("SplitFlags(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
