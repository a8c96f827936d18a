package main

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"lessonforge/internal/types"
)

var assessmentsAll bool

// assessmentsCmd manages assessment type definitions
var assessmentsCmd = &cobra.Command{
	Use:   "assessments",
	Short: "Manage assessment type definitions",
}

var assessmentsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List assessment types",
	RunE:  runAssessmentsList,
}

var assessmentsRegisterCmd = &cobra.Command{
	Use:   "register [type.yaml]",
	Short: "Add or update an assessment type from a YAML definition",
	Args:  cobra.ExactArgs(1),
	RunE:  runAssessmentsRegister,
}

func init() {
	assessmentsListCmd.Flags().BoolVar(&assessmentsAll, "all", false, "Include inactive types")
	assessmentsCmd.AddCommand(assessmentsListCmd)
	assessmentsCmd.AddCommand(assessmentsRegisterCmd)
}

func runAssessmentsList(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext()
	defer cancel()

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	list, err := a.store.ListAssessmentTypes(ctx, !assessmentsAll)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "KEY\tNAME\tCATEGORY\tSOURCE\tWEIGHT\tMAX AGE\tFIELDS\tACTIVE")
	for _, t := range list {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%.2f\t%dd\t%s\t%t\n",
			t.Key, t.DisplayName, t.Category, t.Source, t.Weight, t.MaxAgeDays, strings.Join(t.Fields, ","), t.Active)
	}
	return tw.Flush()
}

func runAssessmentsRegister(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}
	var t types.AssessmentType
	if err := yaml.Unmarshal(data, &t); err != nil {
		return fmt.Errorf("failed to parse assessment type: %w", err)
	}

	ctx, cancel := commandContext()
	defer cancel()

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.registry.Register(ctx, t); err != nil {
		return err
	}
	logger.Info("Registered assessment type", zap.String("key", t.Key))
	fmt.Fprintf(cmd.OutOrStdout(), "%s registered %s\n", okStyle.Render("✓"), t.Key)
	return nil
}
