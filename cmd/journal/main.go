// Command journal inspects and migrates the simulator's delivery journal.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"text/tabwriter"
	"time"

	"trucksim/internal/db"
	"trucksim/internal/journal"
	"trucksim/internal/migrate"
)

const usage = `usage: %s <command>
  migrate        apply pending journal migrations
  versions       list applied migration versions
  runs [limit]   list recent simulator runs with their totals
`

func main() {
	path := os.Getenv("JOURNAL_PATH")
	if path == "" {
		path = "trucksim.db"
	}
	if err := run(context.Background(), filepath.Clean(path), os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		if errors.Is(err, errUsage) {
			fmt.Fprintf(os.Stderr, usage, filepath.Base(os.Args[0]))
		}
		os.Exit(1)
	}
}

var errUsage = errors.New("missing or unknown command")

func run(ctx context.Context, path string, args []string, out io.Writer) error {
	if len(args) < 1 {
		return errUsage
	}

	conn, err := db.Open(ctx, db.Options{Path: path, MaxOpenConns: 1, MaxIdleConns: 1}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := conn.Close(); closeErr != nil {
			slog.Error("db close", "err", closeErr)
		}
	}()

	switch args[0] {
	case "migrate":
		if err := migrate.Run(ctx, conn); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
		fmt.Fprintln(out, "migrations applied")
		return nil

	case "versions":
		versions, err := migrate.Applied(ctx, conn)
		if err != nil {
			return err
		}
		for _, v := range versions {
			fmt.Fprintln(out, v)
		}
		return nil

	case "runs":
		limit := 20
		if len(args) > 1 {
			if limit, err = strconv.Atoi(args[1]); err != nil || limit <= 0 {
				return fmt.Errorf("invalid limit %q", args[1])
			}
		}
		runs, err := journal.Runs(ctx, conn, limit)
		if err != nil {
			return err
		}
		return printRuns(out, runs)

	default:
		return errUsage
	}
}

func printRuns(out io.Writer, runs []journal.Run) error {
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTRANSPORT\tTRUCKS\tSTARTED\tDURATION\tITERATIONS\tOK\tFAILED")
	for _, r := range runs {
		duration := "running"
		if !r.FinishedAt.IsZero() {
			duration = r.FinishedAt.Sub(r.StartedAt).Round(time.Second).String()
		}
		fmt.Fprintf(tw, "%d\t%s\t%d\t%s\t%s\t%d\t%d\t%d\n",
			r.ID, r.Transport, r.Trucks, r.StartedAt.Format(time.RFC3339), duration,
			r.Iterations, r.Successful, r.Failed)
	}
	return tw.Flush()
}
