package main

import (
	"fmt"
	"io"
)

func printOK(out io.Writer, format string, args ...any) {
	printTagged(out, "✓", format, args...)
}

func printWarn(out io.Writer, format string, args ...any) {
	printTagged(out, "!", format, args...)
}

func printError(out io.Writer, format string, args ...any) {
	printTagged(out, "✗", format, args...)
}

func printHint(out io.Writer, format string, args ...any) {
	printTagged(out, " ", format, args...)
}

func printTagged(out io.Writer, tag, format string, args ...any) {
	fmt.Fprintf(out, "%s %s\n", tag, fmt.Sprintf(format, args...))
}

// progress prints download progress on one line, redrawn in place.
type progress struct {
	out  io.Writer
	last int
	seen bool
}

func newProgress(out io.Writer) *progress {
	return &progress{out: out, last: -1}
}

// update redraws the line when the percentage changes. It never cancels.
func (p *progress) update(done, total int64) bool {
	p.seen = true
	if total <= 0 {
		fmt.Fprintf(p.out, "\rDownloading... %s", humanBytes(done))
		return true
	}

	pct := int(done * 100 / total)
	if pct == p.last {
		return true
	}
	p.last = pct
	fmt.Fprintf(p.out, "\rDownloading... %3d%% (%s / %s)", pct, humanBytes(done), humanBytes(total))
	return true
}

// finish ends the progress line.
func (p *progress) finish() {
	if p.seen {
		fmt.Fprintln(p.out)
	}
	p.seen = false
	p.last = -1
}

func humanBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
