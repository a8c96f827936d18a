package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"lessonforge/internal/adjustment"
)

var (
	queueStudents  []string
	queueSubject   string
	queueLimit     int
	queueOlderThan time.Duration
)

// queueCmd inspects and maintains the adjustment queue
var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Inspect and maintain the adjustment queue",
}

var queueListCmd = &cobra.Command{
	Use:   "list",
	Short: "List pending adjustments, highest priority first",
	RunE:  runQueueList,
}

var queueProcessCmd = &cobra.Command{
	Use:   "process [adjustment-id...]",
	Short: "Mark adjustments processed",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runQueueProcess,
}

var queueCleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Delete processed adjustments older than the retention window",
	RunE:  runQueueCleanup,
}

var queueStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show pending and processed counts per adjustment type",
	RunE:  runQueueStats,
}

func init() {
	queueListCmd.Flags().StringSliceVar(&queueStudents, "students", nil, "Only these students")
	queueListCmd.Flags().StringVarP(&queueSubject, "subject", "s", "", "Only this subject")
	queueListCmd.Flags().IntVar(&queueLimit, "limit", 0, "Maximum rows (0 = all)")
	queueCleanupCmd.Flags().DurationVar(&queueOlderThan, "older-than", 0, "Retention window (default from config)")

	queueCmd.AddCommand(queueListCmd)
	queueCmd.AddCommand(queueProcessCmd)
	queueCmd.AddCommand(queueCleanupCmd)
	queueCmd.AddCommand(queueStatsCmd)
}

func runQueueList(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext()
	defer cancel()

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	pending, err := a.queue.Pending(ctx, adjustment.Filter{
		StudentIDs: trimAll(queueStudents),
		Subject:    queueSubject,
		Limit:      queueLimit,
	})
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if len(pending) == 0 {
		fmt.Fprintln(out, "No pending adjustments.")
		return nil
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTUDENT\tSUBJECT\tTYPE\tPRIORITY\tCREATED\tREASON")
	for _, adj := range pending {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%s\t%s\n",
			adj.ID, adj.StudentID, adj.Subject, styleAdjustment(adj.Type), adj.Priority,
			adj.CreatedAt.Local().Format("2006-01-02 15:04"), adj.Reason)
	}
	return tw.Flush()
}

func runQueueProcess(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext()
	defer cancel()

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	n, err := a.queue.MarkProcessed(ctx, args)
	if err != nil {
		return err
	}
	logger.Info("Adjustments processed", zap.Int64("count", n))
	fmt.Fprintf(cmd.OutOrStdout(), "%s marked %d of %d adjustments processed\n", okStyle.Render("✓"), n, len(args))
	return nil
}

func runQueueCleanup(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext()
	defer cancel()

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	maxAge := queueOlderThan
	if maxAge <= 0 {
		maxAge = a.cfg.GetCleanupAfter()
	}
	n, err := a.queue.Cleanup(ctx, maxAge, time.Now())
	if err != nil {
		return err
	}
	logger.Info("Queue cleanup", zap.Int64("deleted", n), zap.Duration("max_age", maxAge))
	fmt.Fprintf(cmd.OutOrStdout(), "%s deleted %d processed adjustments older than %s\n", okStyle.Render("✓"), n, maxAge)
	return nil
}

func runQueueStats(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext()
	defer cancel()

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	counts, err := a.queue.Stats(ctx)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TYPE\tPENDING\tPROCESSED")
	var pending, processed int64
	for _, c := range counts {
		fmt.Fprintf(tw, "%s\t%d\t%d\n", c.Type, c.Pending, c.Processed)
		pending += c.Pending
		processed += c.Processed
	}
	fmt.Fprintf(tw, "total\t%d\t%d\n", pending, processed)
	return tw.Flush()
}
