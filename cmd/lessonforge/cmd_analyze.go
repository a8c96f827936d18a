package main

import (
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"lessonforge/internal/performance"
	"lessonforge/internal/types"
)

var (
	analyzeSubject string
	analyzeAll     bool
	analyzeDryRun  bool
)

// analyzeCmd runs the performance analyzer
var analyzeCmd = &cobra.Command{
	Use:   "analyze [student-id...]",
	Short: "Classify accuracy trends and queue adjustments",
	Long: `Analyzes recent session accuracy for each student in a subject and
queues the recommended adjustment (advance, reteach or prerequisite).
Maintain recommendations are reported but never queued.

Examples:
  lessonforge analyze s1 s2 --subject math
  lessonforge analyze --all --subject reading --dry-run`,
	RunE: runAnalyze,
}

func init() {
	analyzeCmd.Flags().StringVarP(&analyzeSubject, "subject", "s", "", "Subject to analyze (required)")
	analyzeCmd.Flags().BoolVar(&analyzeAll, "all", false, "Analyze every student")
	analyzeCmd.Flags().BoolVar(&analyzeDryRun, "dry-run", false, "Report without queueing adjustments")
	analyzeCmd.MarkFlagRequired("subject")
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	if len(args) == 0 && !analyzeAll {
		return fmt.Errorf("name at least one student or pass --all")
	}

	ctx, cancel := commandContext()
	defer cancel()

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	th := a.analyzer.Thresholds()
	logger.Debug("Analyzer thresholds",
		zap.Float64("advance", th.Advance),
		zap.Float64("maintain", th.Maintain),
		zap.Float64("reteach", th.Reteach),
		zap.Int("window", th.Window))

	ids := args
	if analyzeAll {
		students, err := a.store.ListStudents(ctx)
		if err != nil {
			return err
		}
		ids = nil
		for _, s := range students {
			ids = append(ids, s.ID)
		}
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "STUDENT\tAVERAGE\tTREND\tSAMPLES\tRECOMMENDATION\tQUEUED")
	queued := 0
	for _, id := range ids {
		var (
			res *performance.Analysis
			adj *types.Adjustment
		)
		if analyzeDryRun {
			res, err = a.analyzer.Analyze(ctx, id, analyzeSubject)
		} else {
			res, adj, err = a.analyzer.Evaluate(ctx, id, analyzeSubject)
		}
		if errors.Is(err, performance.ErrNoMetrics) {
			fmt.Fprintf(tw, "%s\t-\t-\t0\t%s\t\n", id, mutedStyle.Render("no data"))
			continue
		}
		if err != nil {
			return err
		}
		mark := ""
		if adj != nil {
			mark = fmt.Sprintf("priority %d", adj.Priority)
			queued++
		}
		fmt.Fprintf(tw, "%s\t%.1f%%\t%s\t%d\t%s\t%s\n",
			id, res.Average, res.Trend, res.Samples, styleAdjustment(res.Recommendation), mark)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	logger.Info("Analysis complete",
		zap.String("subject", analyzeSubject),
		zap.Int("students", len(ids)),
		zap.Int("queued", queued))
	return nil
}
