// Package cmd implements the gobi CLI commands.
package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/uubinn0/Challengobi-sub000/internal/auth"
	"github.com/uubinn0/Challengobi-sub000/internal/cli"
	"github.com/uubinn0/Challengobi-sub000/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show current configuration",
	RunE:  runConfig,
}

func init() {
	rootCmd.AddCommand(configCmd)
}

func runConfig(_ *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	path := configPath()
	fmt.Printf("  Config file: %s\n", path)
	if _, err := os.Stat(path); err == nil {
		fmt.Println("  Status: loaded")
	} else {
		fmt.Println("  Status: using defaults (no config file)")
	}
	fmt.Println()

	fmt.Println("  [API]")
	fmt.Printf("    Base URL: %s\n", config.GetBaseURL(cfg))
	if os.Getenv("GOBI_API_URL") != "" {
		fmt.Println("              (from GOBI_API_URL)")
	}
	fmt.Printf("    Timeout:  %s\n", cfg.RequestTimeout())
	fmt.Println()

	fmt.Println("  [Auth]")
	token := config.GetAccessToken(cfg)
	if token == "" {
		fmt.Println("    Access token: not configured")
	} else {
		fmt.Printf("    Access token: %s\n", cli.MaskToken(token))
		if exp := auth.NewStatic(token).ExpiresAt(); !exp.IsZero() {
			fmt.Printf("    Expires:      %s\n", exp.Local().Format("2006-01-02 15:04"))
		}
	}
	fmt.Println()

	fmt.Println("  [Verification]")
	fmt.Printf("    Attestation: %s\n", cfg.AttestationSentence())
	fmt.Printf("    Timezone:    %s\n", cfg.Location())
	if ttl := cfg.SessionTTL(); ttl > 0 {
		fmt.Printf("    Session TTL: %s\n", ttl)
	} else {
		fmt.Println("    Session TTL: off")
	}
	fmt.Println()

	fmt.Println("  [Events]")
	if len(cfg.Events.KafkaBrokers) > 0 {
		fmt.Printf("    Kafka brokers: %s\n", strings.Join(cfg.Events.KafkaBrokers, ", "))
		fmt.Printf("    Topic:         %s\n", cfg.Events.Topic)
	} else {
		fmt.Println("    Kafka: disabled")
	}
	fmt.Println()

	fmt.Println("  [Daemon]")
	fmt.Printf("    Address:       %s\n", cfg.Daemon.Addr)
	fmt.Printf("    Events buffer: %d\n", cfg.Daemon.EventsBuffer)
	fmt.Println()

	fmt.Println("  [Cache]")
	fmt.Printf("    Path: %s\n", cfg.CachePath())
	fmt.Println()

	fmt.Println("  [Appearance]")
	fmt.Printf("    Theme: %s\n", cfg.Appearance.Theme)
	fmt.Println()

	fmt.Println("  Run `gobi setup` to reconfigure.")
	return nil
}
