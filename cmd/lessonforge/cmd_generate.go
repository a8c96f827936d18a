package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"lessonforge/internal/generator"
	"lessonforge/internal/prompt"
	"lessonforge/internal/response"
	"lessonforge/internal/types"
	"lessonforge/internal/usage"
)

var (
	genStudents   []string
	genSubject    string
	genTopic      string
	genDuration   int
	genDate       string
	genSlot       string
	genRole       string
	genProvider   string
	genStrict     bool
	genPlain      bool
	genShowPrompt bool
)

// generateCmd generates one lesson for a group of students
var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate a differentiated lesson for a group of students",
	Long: `Loads each student's assessments, performance trend and pending
adjustments, assembles one prompt, calls the configured LLM once and stores
the parsed lesson. Adjustments that fed the prompt are marked processed.

Example:
  lessonforge generate --students s1,s2,s3 --subject math --topic "telling time" --duration 30`,
	RunE: runGenerate,
}

func init() {
	generateCmd.Flags().StringSliceVar(&genStudents, "students", nil, "Student ids (required)")
	generateCmd.Flags().StringVarP(&genSubject, "subject", "s", "", "Subject (required)")
	generateCmd.Flags().StringVar(&genTopic, "topic", "", "Lesson topic")
	generateCmd.Flags().IntVarP(&genDuration, "duration", "d", 0, "Duration in minutes (default from config)")
	generateCmd.Flags().StringVar(&genDate, "date", "", "Lesson date YYYY-MM-DD (default: today)")
	generateCmd.Flags().StringVar(&genSlot, "slot", "", "Time slot label, e.g. 9:00-9:30")
	generateCmd.Flags().StringVar(&genRole, "role", "", "Teacher role: resource, speech, ot, counseling")
	generateCmd.Flags().StringVar(&genProvider, "provider-id", "", "Provider (teacher) id recorded on the lesson")
	generateCmd.Flags().BoolVar(&genStrict, "strict", false, "Reject responses without lesson JSON")
	generateCmd.Flags().BoolVar(&genPlain, "plain", false, "Print markdown without terminal styling")
	generateCmd.Flags().BoolVar(&genShowPrompt, "show-prompt", false, "Print the assembled prompt")
	generateCmd.MarkFlagRequired("students")
	generateCmd.MarkFlagRequired("subject")
}

func runGenerate(cmd *cobra.Command, args []string) error {
	req := types.LessonRequest{
		StudentIDs:      trimAll(genStudents),
		Subject:         genSubject,
		Topic:           genTopic,
		DurationMinutes: genDuration,
		TimeSlot:        genSlot,
		TeacherRole:     genRole,
		ProviderID:      genProvider,
	}
	if genDate != "" {
		d, err := time.Parse(types.DateLayout, genDate)
		if err != nil {
			return fmt.Errorf("invalid --date %q: %w", genDate, err)
		}
		req.LessonDate = d
	}

	ctx, cancel := commandContext()
	defer cancel()

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.cfg.RequireAPIKey(); err != nil {
		return err
	}
	client, err := newLLMClient(ctx, a.cfg)
	if err != nil {
		return err
	}

	assembler, err := prompt.NewAssembler(a.cfg.Lessons, a.registry)
	if err != nil {
		return err
	}
	gen, err := generator.New(generator.Deps{
		Store:     a.store,
		Registry:  a.registry,
		Analyzer:  a.analyzer,
		Queue:     a.queue,
		Assembler: assembler,
		Client:    client,
		Processor: &response.Processor{Strict: genStrict},
		Lessons:   a.cfg.Lessons,
	})
	if err != nil {
		return err
	}

	tracker, err := usage.NewTracker(a.ws)
	if err != nil {
		logger.Warn("Usage tracking disabled", zap.Error(err))
	} else {
		ctx = usage.NewContext(ctx, tracker)
		defer func() {
			if err := tracker.Save(); err != nil {
				logger.Warn("Failed to save usage", zap.Error(err))
			}
		}()
	}

	logger.Info("Generating lesson",
		zap.Strings("students", req.StudentIDs),
		zap.String("subject", req.Subject),
		zap.String("provider", client.Provider()),
		zap.String("model", client.Model()))

	res, err := gen.Generate(ctx, req)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if genShowPrompt {
		header(out, "Prompt")
		fmt.Fprintln(out, res.Prompt.User)
		fmt.Fprintln(out)
	}
	fmt.Fprint(out, renderMarkdown(res.Lesson.Content, genPlain))
	printWarnings(out, res.Warnings)
	fmt.Fprintln(out, mutedStyle.Render(fmt.Sprintf(
		"lesson %s · %s · parse %s · prompt confidence %.2f · %d/%d tokens · %d adjustments consumed",
		res.Lesson.ID, res.Plan.Title, res.ParseMethod, res.PromptConfidence,
		res.Usage.InputTokens, res.Usage.OutputTokens, res.ProcessedAdjustments)))
	return nil
}

func trimAll(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
