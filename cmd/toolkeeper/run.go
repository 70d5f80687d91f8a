package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync/atomic"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ZebulonRouseFrantzich/toolkeeper/internal/acquire"
	"github.com/ZebulonRouseFrantzich/toolkeeper/internal/config"
	"github.com/ZebulonRouseFrantzich/toolkeeper/internal/logging"
	"github.com/ZebulonRouseFrantzich/toolkeeper/internal/session"
)

// killedExitCode is reported when the tool was killed, matching a shell's
// code for SIGINT.
const killedExitCode = 130

// consolePrefix starts a console command on stdin. A doubled prefix sends
// one literal prefix to the tool.
const consolePrefix = ":"

type runOptions struct {
	yes             bool
	trustUnverified bool
	encoding        string
	dir             string
	language        string
	game            string
	log             string
	flags           []string
	noWatch         bool
}

func newRunCmd(root *rootOptions) *cobra.Command {
	var o runOptions

	cmd := &cobra.Command{
		Use:   "run <script> [-- tool flags...]",
		Short: "Find the tool and run a script with it",
		Long: `Find the tool, repairing its installation if needed, then run a script with
it while streaming its console.

Lines typed on stdin are sent to the tool. Lines starting with ':' are
console commands:

  :charset NAME   re-decode the console with another encoding ("auto" detects)
  :restart        kill the tool and run the script again
  :kill           kill the tool
  :eof            close the tool's input`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			o.flags = append(o.flags, args[1:]...)
			return runScript(ctx, root, &o, args[0], cmd.InOrStdin(), cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}

	f := cmd.Flags()
	f.BoolVarP(&o.yes, "yes", "y", false, "Never prompt: download when the tool is missing, keep outdated tools")
	f.BoolVar(&o.trustUnverified, "trust-unverified", false, "With --yes, keep a tool whose digest is not whitelisted")
	f.StringVarP(&o.encoding, "encoding", "e", "", "Console encoding for this run (overrides console.encoding)")
	f.StringVarP(&o.dir, "dir", "C", "", "Working directory of the tool")
	f.StringVar(&o.language, "lang", "", "Language code passed as --use-lang")
	f.StringVar(&o.game, "game", "", "Game directory passed as --game")
	f.StringVar(&o.log, "log", "", "Log file, relative to the working directory, passed as --log")
	f.StringArrayVar(&o.flags, "flag", nil, "Extra tool flag (repeatable)")
	f.BoolVar(&o.noWatch, "no-watch", false, "Do not follow console.encoding changes in the config file")
	return cmd
}

func runScript(ctx context.Context, root *rootOptions, o *runOptions, script string, stdin io.Reader, stdout, stderr io.Writer) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	a, err := root.load(ctx)
	if err != nil {
		return err
	}

	in := newLineReader(stdin)

	var decisions acquire.DecisionProvider = newTerminalDecisions(in, stderr)
	if o.yes {
		p := newProgress(stderr)
		decisions = &acquire.PolicyDecisions{
			AllowDownload:   true,
			TrustUnverified: o.trustUnverified,
			OnProgress:      p.update,
		}
	}

	cand, err := a.acquireTool(ctx, decisions)
	if err != nil {
		return err
	}
	printOK(stderr, "using %s", cand)

	argv := session.BuildCommand(cand.Path, script, mergeRunOptions(a.cfg.Run, o))

	encoding := a.cfg.Console.Encoding
	if o.encoding != "" {
		encoding = o.encoding
	}
	sess, err := session.New(session.Config{Charset: encoding, Logger: a.logger})
	if err != nil {
		return err
	}
	defer sess.Close()

	c := &console{
		sess:   sess,
		out:    stdout,
		errOut: stderr,
		logger: a.logger,
		failed: make(chan error, 1),
	}

	a.logger.Info("starting tool", "argv", argv, "dir", o.dir, "encoding", encoding)
	if err := sess.Start(ctx, o.dir, argv); err != nil {
		return err
	}

	if !o.noWatch && o.encoding == "" {
		go c.followConfig(ctx, a.store, encoding)
	}
	go c.forward(ctx, in)

	return c.consume()
}

// mergeRunOptions layers command-line values over the config run section.
func mergeRunOptions(cfg config.RunConfig, o *runOptions) session.RunOptions {
	opts := session.RunOptions{
		Language: cfg.Language,
		Game:     cfg.Game,
		Log:      cfg.Log,
		Flags:    append([]string(nil), cfg.Flags...),
	}
	if o.language != "" {
		opts.Language = o.language
	}
	if o.game != "" {
		opts.Game = o.game
	}
	if o.log != "" {
		opts.Log = o.log
	}
	opts.Flags = append(opts.Flags, o.flags...)
	return opts
}

// console connects one session to the terminal.
type console struct {
	sess   *session.Session
	out    io.Writer
	errOut io.Writer
	logger logging.Logger

	restarting atomic.Bool
	failed     chan error
}

// consume prints session events until the tool terminates without a
// pending restart.
func (c *console) consume() error {
	for {
		select {
		case err := <-c.failed:
			return err

		case ev, ok := <-c.sess.Events():
			if !ok {
				return session.ErrClosed
			}
			switch ev.Kind {
			case session.EventStarted:
				c.restarting.Store(false)
				c.logger.Debug("tool started", "handle", ev.HandleID)

			case session.EventOutput:
				// The terminal already echoed what the user typed.
				if !ev.Input {
					fmt.Fprint(c.out, ev.Text)
				}

			case session.EventReplace:
				fmt.Fprintf(c.errOut, "\n--- console re-decoded as %s ---\n", ev.Charset)
				fmt.Fprint(c.out, ev.Text)

			case session.EventTerminated:
				fmt.Fprintln(c.out)
				c.report(ev)
				if c.restarting.Load() {
					continue
				}
				if code := exitCode(ev); code != 0 {
					return &exitError{code: code}
				}
				return nil
			}
		}
	}
}

func (c *console) report(ev session.Event) {
	switch ev.Status {
	case session.ExitSuccess:
		printOK(c.errOut, "tool finished")
	case session.ExitSuccessWithWarnings:
		printWarn(c.errOut, "tool finished with warnings (exit code %d)", ev.ExitCode)
	case session.ExitKilled:
		printWarn(c.errOut, "tool killed")
	default:
		printError(c.errOut, "tool failed (exit code %d)", ev.ExitCode)
	}
}

// exitCode maps a termination to the exit code of toolkeeper itself.
func exitCode(ev session.Event) int {
	switch ev.Status {
	case session.ExitSuccess:
		return 0
	case session.ExitSuccessWithWarnings:
		return session.WarningsExitCode
	case session.ExitKilled:
		return killedExitCode
	default:
		if ev.ExitCode <= 0 || ev.ExitCode > 255 {
			return 1
		}
		return ev.ExitCode
	}
}

// forward sends stdin lines to the tool and runs console commands.
func (c *console) forward(ctx context.Context, in *lineReader) {
	for {
		line, err := in.next(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) {
				if err := c.sess.CloseInput(); err != nil {
					c.logger.Debug("close tool input", "error", err)
				}
			}
			return
		}

		switch {
		case strings.HasPrefix(line, consolePrefix+consolePrefix):
			line = line[len(consolePrefix):]
		case strings.HasPrefix(line, consolePrefix):
			c.command(ctx, strings.TrimPrefix(line, consolePrefix))
			continue
		}

		if err := c.sess.Send(line + "\n"); err != nil {
			c.logger.Warn("send to tool failed", "error", err)
		}
	}
}

func (c *console) command(ctx context.Context, line string) {
	name, arg, _ := strings.Cut(strings.TrimSpace(line), " ")
	arg = strings.TrimSpace(arg)

	switch name {
	case "charset", "encoding":
		if arg == "" {
			printError(c.errOut, "usage: :charset NAME")
			return
		}
		c.setCharset(arg)

	case "restart":
		c.restarting.Store(true)
		if err := c.sess.Restart(ctx); err != nil {
			c.restarting.Store(false)
			select {
			case c.failed <- fmt.Errorf("restart tool: %w", err):
			default:
			}
		}

	case "kill":
		if err := c.sess.Kill(); err != nil {
			printError(c.errOut, "kill: %v", err)
		}

	case "eof":
		if err := c.sess.CloseInput(); err != nil {
			printError(c.errOut, "close input: %v", err)
		}

	default:
		printError(c.errOut, "unknown console command %q (charset, restart, kill, eof)", name)
	}
}

// setCharset switches the console encoding. The re-decoded console arrives
// as an EventReplace, so the returned text is not needed here.
func (c *console) setCharset(name string) {
	if _, err := c.sess.SetCharset(name); err != nil {
		printError(c.errOut, "%v", err)
		return
	}
	c.logger.Info("console encoding changed", "charset", name)
}

// followConfig applies console.encoding edits to the running session.
func (c *console) followConfig(ctx context.Context, store *config.Store, current string) {
	w, err := config.NewWatcher(store, 0)
	if err != nil {
		c.logger.Warn("config watcher unavailable", "error", err)
		return
	}

	err = w.Run(ctx, func(cfg *config.Config) {
		if cfg.Console.Encoding == current {
			return
		}
		current = cfg.Console.Encoding
		c.setCharset(current)
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		c.logger.Warn("config watcher stopped", "error", err)
	}
}
