package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/ZebulonRouseFrantzich/toolkeeper/internal/acquire"
	"github.com/ZebulonRouseFrantzich/toolkeeper/internal/config"
	"github.com/ZebulonRouseFrantzich/toolkeeper/internal/logging"
	"github.com/ZebulonRouseFrantzich/toolkeeper/internal/session"
	"github.com/ZebulonRouseFrantzich/toolkeeper/internal/testutil"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

// setupRun writes a fake tool reporting version 2.50 and a config pointing
// at it.
func setupRun(t *testing.T, body string) (*rootOptions, *config.Store) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake tools are shell scripts")
	}

	configDir, _ := testutil.SetupTestEnv(t)

	tool := filepath.Join(t.TempDir(), "modtool")
	script := "#!/bin/sh\nif [ \"$1\" = \"--version\" ]; then echo \"modtool 2.50\"; exit 0; fi\n" + body + "\n"
	if err := os.WriteFile(tool, []byte(script), 0755); err != nil {
		t.Fatal(err)
	}

	root := &rootOptions{
		logger:     logging.Nop(),
		sync:       func() {},
		configPath: filepath.Join(configDir, config.FileName),
	}
	store, err := root.configStore(nil)
	if err != nil {
		t.Fatal(err)
	}
	cfg := config.Default()
	cfg.Tool.Path = tool
	if err := store.Save(cfg); err != nil {
		t.Fatal(err)
	}
	return root, store
}

func TestRunScript_KeepsUntrustedTool(t *testing.T) {
	root, store := setupRun(t, `echo "running $1 $2"; echo "problem" >&2; exit 3`)

	var stdout, stderr bytes.Buffer
	o := &runOptions{yes: true, trustUnverified: true, noWatch: true}
	err := runScript(context.Background(), root, o, "build.mt", strings.NewReader(""), &stdout, &stderr)

	var exit *exitError
	if !errors.As(err, &exit) || exit.code != session.WarningsExitCode {
		t.Fatalf("runScript() error = %v, want exit code %d", err, session.WarningsExitCode)
	}
	for _, want := range []string{"running build.mt --no-exit-pause", "problem"} {
		if !strings.Contains(stdout.String(), want) {
			t.Errorf("stdout missing %q:\n%s", want, stdout.String())
		}
	}
	if !strings.Contains(stderr.String(), "warnings") {
		t.Errorf("stderr = %q", stderr.String())
	}

	cfg, err := store.Load(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Tool.TrustedDigest == "" {
		t.Error("accepted digest was not remembered")
	}
}

func TestRunScript_RefusesUntrustedTool(t *testing.T) {
	root, _ := setupRun(t, `exit 0`)

	o := &runOptions{yes: true, noWatch: true}
	err := runScript(context.Background(), root, o, "build.mt", strings.NewReader(""), &bytes.Buffer{}, &bytes.Buffer{})
	if !errors.Is(err, acquire.ErrCancelled) {
		t.Fatalf("runScript() error = %v, want ErrCancelled", err)
	}
}

func TestRunScript_ForwardsInput(t *testing.T) {
	root, _ := setupRun(t, `read line; echo "got $line"`)

	var stdout bytes.Buffer
	o := &runOptions{yes: true, trustUnverified: true, noWatch: true}
	err := runScript(context.Background(), root, o, "build.mt", strings.NewReader("hello\n"), &stdout, &bytes.Buffer{})
	if err != nil {
		t.Fatalf("runScript() error = %v", err)
	}
	if !strings.Contains(stdout.String(), "got hello") {
		t.Errorf("stdout = %q", stdout.String())
	}
}

func TestRunScript_ConsoleCommands(t *testing.T) {
	root, _ := setupRun(t, `read line; echo "got $line"; read rest; exit 0`)

	var stdout, stderr bytes.Buffer
	o := &runOptions{yes: true, trustUnverified: true, noWatch: true}
	input := "::colon\n:charset no-such-charset\n:bogus\n:eof\n"
	err := runScript(context.Background(), root, o, "build.mt", strings.NewReader(input), &stdout, &stderr)
	if err != nil {
		t.Fatalf("runScript() error = %v", err)
	}
	if !strings.Contains(stdout.String(), "got :colon") {
		t.Errorf("stdout = %q", stdout.String())
	}
	if !strings.Contains(stderr.String(), "unknown console command") {
		t.Errorf("stderr = %q", stderr.String())
	}
}

func TestRunScript_Cancelled(t *testing.T) {
	root, _ := setupRun(t, `sleep 30`)

	r, w := ioPipe(t)
	defer w.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	time.AfterFunc(500*time.Millisecond, cancel)

	o := &runOptions{yes: true, trustUnverified: true, noWatch: true}
	err := runScript(ctx, root, o, "build.mt", r, &bytes.Buffer{}, &bytes.Buffer{})

	// Cancellation may land during acquisition on a slow machine.
	if errors.Is(err, context.Canceled) {
		return
	}
	var exit *exitError
	if !errors.As(err, &exit) || exit.code != killedExitCode {
		t.Fatalf("runScript() error = %v, want exit code %d", err, killedExitCode)
	}
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		ev   session.Event
		want int
	}{
		{"success", session.Event{Status: session.ExitSuccess}, 0},
		{"warnings", session.Event{ExitCode: 3, Status: session.ExitSuccessWithWarnings}, 3},
		{"killed", session.Event{Status: session.ExitKilled}, killedExitCode},
		{"error", session.Event{ExitCode: 2, Status: session.ExitError}, 2},
		{"negative", session.Event{ExitCode: -1, Status: session.ExitError}, 1},
		{"too large", session.Event{ExitCode: 300, Status: session.ExitError}, 1},
	}
	for _, tt := range tests {
		if got := exitCode(tt.ev); got != tt.want {
			t.Errorf("%s: exitCode() = %d, want %d", tt.name, got, tt.want)
		}
	}
}

func TestMergeRunOptions(t *testing.T) {
	cfg := config.RunConfig{
		Language: "en",
		Game:     "/games/one",
		Log:      "logs/a.log",
		Flags:    []string{"--strict"},
	}

	got := mergeRunOptions(cfg, &runOptions{language: "de", flags: []string{"--fast"}})
	want := session.RunOptions{
		Language: "de",
		Game:     "/games/one",
		Log:      "logs/a.log",
		Flags:    []string{"--strict", "--fast"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("mergeRunOptions() = %+v, want %+v", got, want)
	}
	if len(cfg.Flags) != 1 {
		t.Errorf("config flags modified: %v", cfg.Flags)
	}
}

func TestConsole_SetCharsetLogsName(t *testing.T) {
	tests := []struct {
		name    string
		charset string
		want    string
		wantErr bool
	}{
		{name: "known charset", charset: "windows-1252", want: "windows-1252"},
		{name: "unknown charset", charset: "no-such-charset", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sess, err := session.New(session.Config{Charset: "utf-8"})
			if err != nil {
				t.Fatal(err)
			}
			defer sess.Close()

			core, logs := observer.New(zap.InfoLevel)
			var stderr bytes.Buffer
			c := &console{sess: sess, out: io.Discard, errOut: &stderr, logger: logging.FromZap(zap.New(core))}
			c.setCharset(tt.charset)

			entries := logs.FilterMessage("console encoding changed").All()
			if tt.wantErr {
				if len(entries) != 0 {
					t.Errorf("logged %d encoding changes for a rejected charset", len(entries))
				}
				if stderr.Len() == 0 {
					t.Error("expected an error on stderr")
				}
				return
			}
			if len(entries) != 1 {
				t.Fatalf("got %d encoding change entries, want 1", len(entries))
			}
			if got := entries[0].ContextMap()["charset"]; got != tt.want {
				t.Errorf("charset field = %v, want %s", got, tt.want)
			}
		})
	}
}
