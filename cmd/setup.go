package cmd

import (
	"errors"
	"fmt"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/uubinn0/Challengobi-sub000/internal/config"
	"github.com/uubinn0/Challengobi-sub000/internal/tui"
)

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "First-time setup wizard",
	RunE:  runSetup,
}

func init() {
	rootCmd.AddCommand(setupCmd)
}

func runSetup(_ *cobra.Command, _ []string) error {
	// Start from the existing config, or defaults when it is unreadable.
	cfg, err := loadConfig()
	if err != nil {
		cfg = config.DefaultConfig()
	}

	fmt.Println()
	fmt.Println("  Welcome to gobi!")
	fmt.Println()

	vals := tui.SetupValuesFrom(cfg)
	if err := tui.NewSetupForm(&vals, config.GetAccessToken(cfg)).Run(); err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			fmt.Println("  Setup cancelled; nothing saved.")
			return nil
		}
		return err
	}
	vals.Apply(&cfg)

	path := configPath()
	if err := config.SaveTo(path, cfg); err != nil {
		return fmt.Errorf("saving config: %w", err)
	}

	fmt.Println()
	fmt.Printf("  Saved to %s\n", path)
	fmt.Println("  Run `gobi setup` anytime to reconfigure.")
	fmt.Println()
	return nil
}
