package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/uubinn0/Challengobi-sub000/internal/cli"
	"github.com/uubinn0/Challengobi-sub000/internal/config"
	"github.com/uubinn0/Challengobi-sub000/internal/tui/theme"
)

var (
	flagConfig    string
	flagChallenge string
	flagQuiet     bool
	flagVerbose   bool
)

var rootCmd = &cobra.Command{
	Use:   "gobi",
	Short: "Challengobi expense verification CLI",
	Long:  "Verify daily spending for a budget challenge: upload a receipt, type an amount, or declare a no-spend day.",
	PersistentPreRun: func(_ *cobra.Command, _ []string) {
		// A missing .env is the common case.
		_ = godotenv.Load()
		slog.SetDefault(newLogger())
	},
	SilenceUsage: true,
}

// Execute is the main entry point called from main.go.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "Config file (default "+config.Path()+")")
	rootCmd.PersistentFlags().StringVarP(&flagChallenge, "challenge", "c", "", "Challenge id")
	rootCmd.PersistentFlags().BoolVarP(&flagQuiet, "quiet", "q", false, "Suppress progress output")
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "Debug logging")
}

func newLogger() *slog.Logger {
	level := slog.LevelWarn
	switch {
	case flagVerbose:
		level = slog.LevelDebug
	case flagQuiet:
		level = slog.LevelError
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// loadConfig reads the config file named by --config, or the default one,
// and activates its theme.
func loadConfig() (config.Config, error) {
	path := flagConfig
	if path == "" {
		path = config.Path()
	}
	cfg, err := config.LoadFrom(path)
	if err != nil {
		return cfg, err
	}
	theme.SetActive(cfg.Appearance.Theme)
	return cfg, nil
}

func configPath() string {
	if flagConfig != "" {
		return flagConfig
	}
	return config.Path()
}

func requireChallenge() (string, error) {
	if flagChallenge == "" {
		return "", fmt.Errorf("--challenge is required")
	}
	return flagChallenge, nil
}

func progressf(format string, args ...any) {
	if flagQuiet {
		return
	}
	fmt.Fprintf(os.Stderr, "  "+format+"\n", args...)
}

func formatNumber(n int64) string {
	return cli.FormatNumber(n)
}
