// Package cli implements one-shot operational subcommands for the orgsync
// binary.
package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/orgsync/orgsync/internal/conflicts"
	syncengine "github.com/orgsync/orgsync/internal/sync"
	"github.com/orgsync/orgsync/jobs"
)

// Deps carries the wired services the subcommands operate on.
type Deps struct {
	Logger       *slog.Logger
	Orchestrator *syncengine.Orchestrator
	Conflicts    *conflicts.Service
	Queue        *jobs.Client
}

// Run dispatches a subcommand and returns the process exit code.
func Run(ctx context.Context, deps Deps, args []string) int {
	switch args[0] {
	case "sync":
		return runSync(ctx, deps, args[1:])
	case "status":
		return runStatus(ctx, deps)
	case "conflicts":
		return runConflictScan(ctx, deps)
	case "enqueue":
		return runEnqueue(ctx, deps, args[1:])
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q (want sync, status, conflicts, or enqueue)\n", args[0])
		return 2
	}
}

func runSync(ctx context.Context, deps Deps, args []string) int {
	operator := "cli"
	if len(args) > 0 {
		operator = args[0]
	}
	summary, err := deps.Orchestrator.Sync(ctx, operator)
	if err != nil {
		if errors.Is(err, syncengine.ErrSyncRunning) {
			fmt.Fprintln(os.Stderr, "sync already running")
			return 1
		}
		deps.Logger.Error("sync failed", slog.Any("error", err))
		return 1
	}
	printJSON(summary)
	if summary.Errors > 0 {
		return 1
	}
	return 0
}

func runStatus(ctx context.Context, deps Deps) int {
	status, err := deps.Orchestrator.Status(ctx)
	if err != nil {
		deps.Logger.Error("read status", slog.Any("error", err))
		return 1
	}
	printJSON(status)
	return 0
}

func runConflictScan(ctx context.Context, deps Deps) int {
	records, err := deps.Conflicts.Scan(ctx)
	if err != nil {
		deps.Logger.Error("conflict scan failed", slog.Any("error", err))
		return 1
	}
	printJSON(records)
	return 0
}

// runEnqueue submits the run to the background queue instead of executing it
// in-process, so long trees do not tie up the terminal.
func runEnqueue(ctx context.Context, deps Deps, args []string) int {
	if deps.Queue == nil {
		fmt.Fprintln(os.Stderr, "queue client not configured")
		return 1
	}
	operator := "cli"
	if len(args) > 0 {
		operator = args[0]
	}
	info, err := deps.Queue.EnqueuePermissionSync(ctx, operator)
	if err != nil {
		deps.Logger.Error("enqueue sync", slog.Any("error", err))
		return 1
	}
	fmt.Printf("queued sync task %s\n", info.ID)
	return 0
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}
