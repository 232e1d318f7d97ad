package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/uubinn0/Challengobi-sub000/internal/cli"
)

var (
	historyLimit int
	historyItems bool
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Verifications committed from this device",
	RunE:  runHistory,
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "l", 20, "Number of verifications to show")
	historyCmd.Flags().BoolVar(&historyItems, "items", false, "Show line items")
	rootCmd.AddCommand(historyCmd)
}

func runHistory(_ *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	wf := newWorkflow(cfg, slog.Default(), nil)
	defer func() { _ = wf.Close() }()

	if wf.cache == nil {
		return errors.New("local cache unavailable")
	}

	ctx := context.Background()
	list, err := wf.cache.ListVerifications(ctx, flagChallenge, historyLimit)
	if err != nil {
		return fmt.Errorf("reading history: %w", err)
	}
	if len(list) == 0 {
		fmt.Println("\n  No verifications recorded.")
		return nil
	}

	total, _ := wf.cache.VerificationCount(ctx)
	fmt.Println()
	fmt.Println(cli.RenderTitle(fmt.Sprintf("HISTORY  (showing %d of %s)", len(list), formatNumber(int64(total)))))
	fmt.Println()

	rows := make([][]string, 0, len(list))
	for _, v := range list {
		rows = append(rows, []string{
			v.Day,
			v.ChallengeID,
			v.Kind,
			fmt.Sprintf("%d", v.ItemCount),
			cli.FormatWon(v.Total),
			v.CommittedAt.Local().Format("Jan 02 15:04"),
		})
		if !historyItems {
			continue
		}
		for _, it := range v.Items {
			rows = append(rows, []string{"", "", "  " + truncate(it.Store, 16), "", cli.FormatWon(it.Amount), ""})
		}
	}

	fmt.Print(cli.RenderTable(cli.Table{
		Headers: []string{"Day", "Challenge", "Kind", "Items", "Total", "Committed"},
		Rows:    rows,
	}))
	return nil
}

func truncate(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen-1]) + "…"
}
