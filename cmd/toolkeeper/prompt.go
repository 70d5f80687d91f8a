package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/ZebulonRouseFrantzich/toolkeeper/internal/acquire"
)

// terminalDecisions asks the user on the terminal. End of input cancels.
type terminalDecisions struct {
	in       *lineReader
	out      io.Writer
	progress *progress
}

func newTerminalDecisions(in *lineReader, out io.Writer) *terminalDecisions {
	return &terminalDecisions{in: in, out: out, progress: newProgress(out)}
}

// Decide implements acquire.DecisionProvider.
func (t *terminalDecisions) Decide(ctx context.Context, p acquire.Prompt) (acquire.Action, error) {
	t.progress.finish()

	fmt.Fprintln(t.out)
	if p.Err != nil {
		printError(t.out, "%v", p.Err)
	}
	if p.Candidate != nil {
		printHint(t.out, "found %s", p.Candidate)
	}
	fmt.Fprintln(t.out, "What do you want to do?")
	for i, a := range p.Offered {
		fmt.Fprintf(t.out, "  %d) %s\n", i+1, describeAction(a))
	}

	for {
		fmt.Fprintf(t.out, "Choice [1-%d]: ", len(p.Offered))
		line, err := t.in.next(ctx)
		if errors.Is(err, io.EOF) {
			fmt.Fprintln(t.out)
			return acquire.ActionCancel, nil
		}
		if err != nil {
			return acquire.ActionCancel, err
		}
		if a, ok := parseChoice(line, p.Offered); ok {
			return a, nil
		}
		fmt.Fprintln(t.out, "Enter one of the listed numbers.")
	}
}

// ChoosePath implements acquire.DecisionProvider. An empty answer declines.
func (t *terminalDecisions) ChoosePath(ctx context.Context, p acquire.PathPrompt) (string, bool, error) {
	t.progress.finish()

	if p.Err != nil {
		printError(t.out, "download failed: %v", p.Err)
	}
	if p.Rejected != "" {
		printError(t.out, "%s cannot be used: file names starting with %q are reserved", p.Rejected, p.ReservedPrefix)
	}
	fmt.Fprint(t.out, "Path to the tool executable (empty to go back): ")

	line, err := t.in.next(ctx)
	if errors.Is(err, io.EOF) {
		fmt.Fprintln(t.out)
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}

	path := strings.Trim(strings.TrimSpace(line), `"'`)
	if path == "" {
		return "", false, nil
	}
	return expandHome(path), true, nil
}

// Progress implements acquire.DecisionProvider.
func (t *terminalDecisions) Progress(done, total int64) bool {
	return t.progress.update(done, total)
}

func describeAction(a acquire.Action) string {
	switch a {
	case acquire.ActionDownload:
		return "Download the latest release"
	case acquire.ActionChooseManually:
		return "Choose the tool executable"
	case acquire.ActionKeep:
		return "Keep using this tool"
	case acquire.ActionCancel:
		return "Cancel"
	default:
		return a.String()
	}
}

// parseChoice accepts a 1-based index into offered or an action name.
func parseChoice(line string, offered []acquire.Action) (acquire.Action, bool) {
	line = strings.ToLower(strings.TrimSpace(line))
	if line == "" {
		return 0, false
	}
	if n, err := strconv.Atoi(line); err == nil {
		if n < 1 || n > len(offered) {
			return 0, false
		}
		return offered[n-1], true
	}
	for _, a := range offered {
		if a.String() == line {
			return a, true
		}
	}
	if line == acquire.ActionCancel.String() {
		return acquire.ActionCancel, true
	}
	return 0, false
}

func expandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}
