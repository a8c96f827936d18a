package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"lessonforge/internal/assessment"
	"lessonforge/internal/config"
	"lessonforge/internal/llm"
)

var (
	initForce    bool
	initDriver   string
	initDSN      string
	initProvider string
)

// initCmd initializes lessonforge in the current workspace
var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize lessonforge in the current workspace",
	Long: `Creates .lessonforge/config.yaml, migrates the database and seeds the
built-in assessment types (reading level, IEP goals, cognitive profile,
accommodations, performance metrics, behavior plan).

Existing configuration is kept unless --force is given. Seeding never
overwrites assessment types that already exist.`,
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "Overwrite an existing config file")
	initCmd.Flags().StringVar(&initDriver, "driver", "", "Database driver: sqlite, sqlite3, postgres")
	initCmd.Flags().StringVar(&initDSN, "dsn", "", "Database DSN or sqlite path")
	initCmd.Flags().StringVar(&initProvider, "provider", "", "LLM provider: anthropic, openai, gemini (default: detected from env)")
}

func runInit(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	ws, err := resolveWorkspace()
	if err != nil {
		return err
	}
	path := configFile(ws)

	_, statErr := os.Stat(path)
	exists := statErr == nil
	if !exists || initForce {
		cfg := config.DefaultConfig()
		if p, _, ok := llm.DetectProvider(); ok {
			cfg.LLM.Provider = string(p)
			cfg.LLM.Model = ""
		}
		if initProvider != "" {
			cfg.LLM.Provider = initProvider
			cfg.LLM.Model = ""
		}
		if initDriver != "" {
			cfg.Database.Driver = initDriver
		}
		if initDSN != "" {
			cfg.Database.DSN = initDSN
		}
		if err := cfg.Validate(); err != nil {
			return err
		}
		// Keys come from the environment; never write them to disk.
		cfg.LLM.APIKey = ""
		if err := cfg.Save(path); err != nil {
			return err
		}
		logger.Info("Wrote config", zap.String("path", path))
		fmt.Fprintf(out, "%s %s\n", okStyle.Render("✓"), "wrote "+path)
	} else {
		fmt.Fprintf(out, "%s %s\n", mutedStyle.Render("•"), "keeping existing "+path)
	}

	ctx, cancel := commandContext()
	defer cancel()

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	seeded, err := assessment.Seed(ctx, a.store)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "%s database ready (%s), %d assessment types seeded\n",
		okStyle.Render("✓"), a.cfg.Database.Driver, seeded)

	if err := a.cfg.RequireAPIKey(); err != nil {
		fmt.Fprintf(out, "%s %v\n", warnStyle.Render("note:"), err)
	}
	return nil
}
