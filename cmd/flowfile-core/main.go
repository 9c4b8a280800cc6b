// Command flowfile-core loads a saved graph, runs it, and prints a
// colorized run report. Exit codes and a full CLI surface are out of
// scope; this is the thinnest possible wrapper around the flowfile
// package for manual/smoke-test use.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"

	flowfile "github.com/flowfile/dataflow-core"
	"github.com/flowfile/dataflow-core/internal/infrastructure/config"
)

func main() {
	var (
		graphPath = flag.String("graph", "", "path to a saved flow graph (.yaml or .json)")
		mode      = flag.String("mode", "", "override execution mode: performance or development")
		timeout   = flag.Duration("timeout", 5*time.Minute, "overall run timeout")
	)
	flag.Parse()

	if *graphPath == "" {
		fmt.Fprintln(os.Stderr, "usage: flowfile-core -graph <path> [-mode performance|development]")
		os.Exit(2)
	}

	if err := run(*graphPath, *mode, *timeout); err != nil {
		fmt.Fprintln(os.Stderr, "flowfile-core:", err)
		os.Exit(1)
	}
}

func run(graphPath, modeOverride string, timeout time.Duration) error {
	cfg := config.Load()
	core, err := flowfile.New(cfg)
	if err != nil {
		return fmt.Errorf("initialize: %w", err)
	}

	g, err := core.Load(graphPath)
	if err != nil {
		return fmt.Errorf("load %s: %w", graphPath, err)
	}

	if modeOverride != "" {
		m := flowfile.ExecutionMode(modeOverride)
		if m != flowfile.ModePerformance && m != flowfile.ModeDevelopment {
			return fmt.Errorf("invalid -mode %q", modeOverride)
		}
		g.Settings.ExecutionMode = m
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	info, err := core.Run(ctx, g)
	if err != nil {
		return fmt.Errorf("run: %w", err)
	}

	printReport(info)
	if !info.Success {
		return fmt.Errorf("flow %d finished with failures", info.FlowID)
	}
	return nil
}

func printReport(info flowfile.RunInformation) {
	out := os.Stdout
	colorize := isatty.IsTerminal(out.Fd())
	w := colorable.NewColorable(out)

	status := "OK"
	statusColor := "\x1b[32m"
	if !info.Success {
		status = "FAILED"
		statusColor = "\x1b[31m"
	}
	reset := "\x1b[0m"
	if !colorize {
		statusColor, reset = "", ""
	}

	duration := info.EndTS.Sub(info.StartTS)
	fmt.Fprintf(w, "flow %d [%s%s%s] %d/%d nodes completed in %s\n",
		info.FlowID, statusColor, status, reset, info.NodesCompleted, info.TotalNodes, duration)

	for _, n := range info.PerNodeResults {
		switch {
		case n.Skipped:
			fmt.Fprintf(w, "  - node %d (%s): skipped — %s\n", n.NodeID, n.Kind, n.SkipNote)
		case !n.Success:
			fmt.Fprintf(w, "  - node %d (%s): error — %s\n", n.NodeID, n.Kind, n.Error)
		default:
			fmt.Fprintf(w, "  - node %d (%s): ok (%dms)\n", n.NodeID, n.Kind, n.RuntimeMS)
		}
	}
}
