package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"lessonforge/internal/roster"
	"lessonforge/internal/store"
)

var (
	importWatch    bool
	importDebounce time.Duration
)

// importCmd loads a roster file into the store
var importCmd = &cobra.Command{
	Use:   "import [roster.yaml]",
	Short: "Import students, profiles, metrics and assessment records",
	Long: `Imports a YAML roster in a single transaction. Students and profiles are
upserted. A student's metrics and assessment records are replaced by the
ones the roster lists, so importing the same file again changes nothing.
Any invalid entry rolls back the whole import.

With --watch the roster is re-imported every time the file is saved,
until interrupted.`,
	Args: cobra.ExactArgs(1),
	RunE: runImport,
}

func init() {
	importCmd.Flags().BoolVar(&importWatch, "watch", false, "Re-import whenever the roster file changes")
	importCmd.Flags().DurationVar(&importDebounce, "debounce", 500*time.Millisecond, "Quiet period before a watched change is imported")
}

func runImport(cmd *cobra.Command, args []string) error {
	path := args[0]
	out := cmd.OutOrStdout()

	ctx, cancel := commandContext()
	a, err := openApp(ctx)
	cancel()
	if err != nil {
		return err
	}
	defer a.Close()

	importFile := func(ctx context.Context, path string) error {
		entries, err := roster.Load(path)
		if err != nil {
			return err
		}
		if err := a.store.ImportRoster(ctx, entries); err != nil {
			return err
		}
		reportImport(out, entries)
		return nil
	}

	ctx, cancel = commandContext()
	err = importFile(ctx, path)
	cancel()
	if err != nil || !importWatch {
		return err
	}

	return watchRoster(out, path, importFile)
}

// watchRoster blocks until interrupted, re-importing on every settled change.
func watchRoster(out io.Writer, path string, importFile roster.ChangeFunc) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	w, err := roster.NewWatcher(path, importDebounce, func(ctx context.Context, path string) error {
		ictx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		if err := importFile(ictx, path); err != nil {
			fmt.Fprintf(out, "%s %v\n", warnStyle.Render("!"), err)
			return err
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to create roster watcher: %w", err)
	}
	if err := w.Start(ctx); err != nil {
		w.Stop()
		return fmt.Errorf("failed to watch %s: %w", path, err)
	}
	fmt.Fprintln(out, mutedStyle.Render("watching "+path+" (Ctrl+C to stop)"))

	select {
	case <-ctx.Done():
	case <-w.Done():
	}
	w.Stop()

	stats := w.Stats()
	logger.Info("Roster watch ended",
		zap.Int("events", stats.Events),
		zap.Int("reloads", stats.Reloads),
		zap.Int("errors", stats.Errors))
	return nil
}

func reportImport(out io.Writer, entries []store.RosterEntry) {
	students, metrics, records := roster.Counts(entries)
	logger.Info("Roster imported",
		zap.Int("students", students),
		zap.Int("metrics", metrics),
		zap.Int("records", records))
	fmt.Fprintf(out, "%s imported %d students, %d metrics, %d assessment records\n",
		okStyle.Render("✓"), students, metrics, records)
}
