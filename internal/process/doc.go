// Package process supervises one external child process at a time.
//
// A Supervisor starts the child with its stdout and stderr joined on a single
// pipe, and runs exactly one reader goroutine per child. That goroutine is
// the only producer of events: it delivers output chunks in arrival order and,
// after end of stream, exactly one Terminated change event, after which the
// Handle resolves.
//
// Kill signals the child (its process group on unix, its process tree
// elsewhere) and never touches the pipe; the reader goroutine observes end of
// stream on its own. A killed child resolves to KilledExitCode instead of
// whatever status the operating system reports.
//
// Usage:
//
//	sup := process.NewSupervisor(process.WithLogger(logger))
//	sup.OnOutput(func(c process.OutputChunk) { ... })
//	sup.OnChange(func(e process.ChangeEvent) { ... })
//
//	h, err := sup.Start(workDir, []string{toolPath, "script.txt"})
//	if err != nil {
//	    return err
//	}
//	code, err := h.Wait(ctx)
package process
