package main

import (
	"fmt"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"lessonforge/internal/assessment"
	"lessonforge/internal/types"
)

// studentsCmd groups caseload inspection commands
var studentsCmd = &cobra.Command{
	Use:   "students",
	Short: "Inspect the caseload",
}

var studentsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List students by grade",
	RunE:  runStudentsList,
}

var studentsShowCmd = &cobra.Command{
	Use:   "show [student-id]",
	Short: "Show a student's mapped assessment items and confidence",
	Args:  cobra.ExactArgs(1),
	RunE:  runStudentsShow,
}

func init() {
	studentsCmd.AddCommand(studentsListCmd)
	studentsCmd.AddCommand(studentsShowCmd)
}

func runStudentsList(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext()
	defer cancel()

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	students, err := a.store.ListStudents(ctx)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if len(students) == 0 {
		fmt.Fprintln(out, "No students. Run: lessonforge import roster.yaml")
		return nil
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tINITIALS\tGRADE\tROLE")
	for _, s := range students {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", s.ID, s.Initials, types.GradeLabel(s.GradeLevel), s.TeacherRole)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	counts, err := a.store.Stats(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, mutedStyle.Render(fmt.Sprintf("%d students, %d metrics, %d assessment records, %d lessons",
		counts["students"], counts["performance_metrics"], counts["student_assessments"], counts["lessons"])))
	return nil
}

func runStudentsShow(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext()
	defer cancel()

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	student, err := a.store.GetStudent(ctx, args[0])
	if err != nil {
		return err
	}
	mapped, err := a.registry.MapStudent(ctx, student.ID, time.Now())
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	header(out, fmt.Sprintf("%s (%s grade) confidence %.2f", student.Initials, types.GradeLabel(student.GradeLevel), mapped.Confidence))
	if len(mapped.Items) == 0 {
		fmt.Fprintln(out, mutedStyle.Render("no assessment data"))
		return nil
	}
	for _, item := range mapped.Items {
		t, _ := a.registry.Get(item.AssessmentType)
		fmt.Fprintf(out, "%s %s\n", titleStyle.Render(t.DisplayName), mutedStyle.Render(fmt.Sprintf("[%s, confidence %.2f]", item.Category, item.Confidence)))
		fmt.Fprintf(out, "  %s\n", strings.ReplaceAll(assessment.Render(a.registry.Template(item.AssessmentType), t.DisplayName, item), "\n", "\n  "))
	}
	return nil
}

// sortedKeys is used for deterministic map output.
func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
