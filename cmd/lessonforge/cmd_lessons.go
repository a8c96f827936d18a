package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"lessonforge/internal/types"
)

var (
	lessonsLimit int
	lessonsPlain bool
	lessonsRaw   bool
)

// lessonsCmd browses stored lessons
var lessonsCmd = &cobra.Command{
	Use:   "lessons",
	Short: "Browse generated lessons",
}

var lessonsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent lessons",
	RunE:  runLessonsList,
}

var lessonsShowCmd = &cobra.Command{
	Use:   "show [lesson-id]",
	Short: "Show a lesson with per-student adaptations",
	Args:  cobra.ExactArgs(1),
	RunE:  runLessonsShow,
}

func init() {
	lessonsListCmd.Flags().IntVar(&lessonsLimit, "limit", 20, "Maximum lessons")
	lessonsShowCmd.Flags().BoolVar(&lessonsPlain, "plain", false, "Print markdown without terminal styling")
	lessonsShowCmd.Flags().BoolVar(&lessonsRaw, "raw", false, "Print the raw LLM response")
	lessonsCmd.AddCommand(lessonsListCmd)
	lessonsCmd.AddCommand(lessonsShowCmd)
}

func runLessonsList(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext()
	defer cancel()

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	lessons, err := a.store.ListLessons(ctx, lessonsLimit)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if len(lessons) == 0 {
		fmt.Fprintln(out, "No lessons yet.")
		return nil
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tDATE\tSUBJECT\tSTUDENTS\tMIN\tPARSE\tCONF\tTITLE")
	for _, l := range lessons {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%s\t%.2f\t%s\n",
			l.ID, l.LessonDate.Format(types.DateLayout), l.Subject, strings.Join(l.StudentIDs, ","),
			l.DurationMinutes, l.ParseMethod, l.Confidence, l.Title)
	}
	return tw.Flush()
}

func runLessonsShow(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext()
	defer cancel()

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	l, err := a.store.GetLesson(ctx, args[0])
	if err != nil {
		return err
	}
	perStudent, err := a.store.StudentLessons(ctx, l.ID)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if lessonsRaw {
		fmt.Fprintln(out, l.RawResponse)
		return nil
	}

	fmt.Fprintln(out, mutedStyle.Render(fmt.Sprintf("%s · %s · %d min · %s · confidence %.2f",
		l.LessonDate.Format(types.DateLayout), l.Subject, l.DurationMinutes, l.Model, l.Confidence)))
	fmt.Fprint(out, renderMarkdown(l.Content, lessonsPlain))

	if len(perStudent) > 0 {
		header(out, "Per-student")
		tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		for _, sl := range perStudent {
			fmt.Fprintf(tw, "%s\t%.2f\t%s\n", sl.StudentID, sl.Confidence, sl.Adaptation)
		}
		return tw.Flush()
	}
	return nil
}
