package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"lessonforge/internal/usage"
)

// usageCmd prints token usage recorded by generate
var usageCmd = &cobra.Command{
	Use:   "usage",
	Short: "Show LLM token usage by provider, model, subject and role",
	RunE:  runUsage,
}

func runUsage(cmd *cobra.Command, args []string) error {
	ws, err := resolveWorkspace()
	if err != nil {
		return err
	}
	tracker, err := usage.NewTracker(ws)
	if err != nil {
		return err
	}
	stats := tracker.Stats()

	out := cmd.OutOrStdout()
	header(out, fmt.Sprintf("%d lessons · %d calls · %d input / %d output tokens",
		stats.Lessons, stats.Total.Calls, stats.Total.Input, stats.Total.Output))

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	for _, dim := range []struct {
		name string
		m    map[string]usage.TokenCounts
	}{
		{"provider", stats.ByProvider},
		{"model", stats.ByModel},
		{"subject", stats.BySubject},
		{"role", stats.ByTeacherRole},
	} {
		for _, key := range sortedKeys(dim.m) {
			c := dim.m[key]
			fmt.Fprintf(tw, "%s\t%s\t%d calls\t%d in\t%d out\n", dim.name, key, c.Calls, c.Input, c.Output)
		}
	}
	return tw.Flush()
}
