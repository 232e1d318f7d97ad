package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/uubinn0/Challengobi-sub000/internal/auth"
	"github.com/uubinn0/Challengobi-sub000/internal/challengeapi"
	"github.com/uubinn0/Challengobi-sub000/internal/cli"
	"github.com/uubinn0/Challengobi-sub000/internal/model"
)

var ledgerCmd = &cobra.Command{
	Use:   "ledger",
	Short: "Show a challenge's remaining budget",
	Long:  "Read the challenge's budget ledger from the server. Without --challenge, list every ledger cached on this device.",
	RunE:  runLedger,
}

func init() {
	rootCmd.AddCommand(ledgerCmd)
}

func runLedger(_ *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	wf := newWorkflow(cfg, slog.Default(), nil)
	defer func() { _ = wf.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), cfg.RequestTimeout())
	defer cancel()

	if flagChallenge == "" {
		return listCachedLedgers(ctx, wf)
	}

	progressf("Reading ledger for challenge %s...", flagChallenge)
	start := time.Now()
	m, err := wf.mirror.Get(ctx, flagChallenge)
	if err != nil {
		switch {
		case auth.IsAuthError(err):
			return errors.New("access token missing, expired, or rejected; set GOBI_ACCESS_TOKEN or run `gobi setup`")
		case errors.Is(err, challengeapi.ErrRateLimited):
			return errors.New("rate limited by the challenge service; try again in a minute")
		}
		return fmt.Errorf("fetch failed: %w", err)
	}
	offline := m.LastSyncedAt.Before(start)

	fmt.Println()
	fmt.Println(cli.RenderTitle("LEDGER  challenge " + flagChallenge))
	fmt.Println()

	rows := [][]string{
		{"Total budget", cli.FormatWon(m.TotalBudget), cli.FormatKoreanUnits(m.TotalBudget)},
		{"Spent", cli.FormatWon(m.Spent()), renderMiniBar(m, 20)},
		{"Remaining", cli.FormatRemaining(m.Remaining), cli.FormatKoreanUnits(m.Remaining)},
	}
	if m.PendingDebit != 0 {
		rows = append(rows, []string{"Unconfirmed debits", cli.FormatWon(m.PendingDebit), "until next read"})
	}
	fmt.Print(cli.RenderTable(cli.Table{
		Headers: []string{"", "Amount", ""},
		Rows:    rows,
	}))

	if m.Overspent() {
		fmt.Println(cli.RenderWarning("Budget exceeded."))
	}
	if offline {
		warnStyle := lipgloss.NewStyle().Foreground(cli.ColorOrange)
		fmt.Printf("  %s\n", warnStyle.Render("Server unreachable: showing the last cached ledger"))
	}
	fmt.Printf("  Synced at %s\n\n", m.LastSyncedAt.Local().Format(time.DateTime))
	return nil
}

func listCachedLedgers(ctx context.Context, wf *workflow) error {
	if wf.cache == nil {
		return errors.New("no local cache; pass --challenge to read from the server")
	}
	mirrors, err := wf.cache.ListMirrors(ctx)
	if err != nil {
		return fmt.Errorf("listing cached ledgers: %w", err)
	}
	if len(mirrors) == 0 {
		fmt.Println("\n  No ledgers cached yet. Run `gobi ledger -c ID` first.")
		return nil
	}

	fmt.Println()
	fmt.Println(cli.RenderTitle("CACHED LEDGERS"))
	fmt.Println()

	rows := make([][]string, 0, len(mirrors))
	for _, m := range mirrors {
		rows = append(rows, []string{
			m.ChallengeID,
			cli.FormatWon(m.TotalBudget),
			cli.FormatRemaining(m.Remaining),
			renderMiniBar(m, 12),
			m.LastSyncedAt.Local().Format("Jan 02 15:04"),
		})
	}
	fmt.Print(cli.RenderTable(cli.Table{
		Headers: []string{"Challenge", "Budget", "Remaining", "Used", "Synced"},
		Rows:    rows,
	}))
	return nil
}

func renderMiniBar(m model.LedgerMirror, width int) string {
	pct := 0.0
	if m.TotalBudget > 0 {
		pct = float64(m.Spent()) / float64(m.TotalBudget)
	} else if m.Spent() > 0 {
		pct = 1
	}
	if pct < 0 {
		pct = 0
	}
	if pct > 1 {
		pct = 1
	}
	filled := int(pct * float64(width))
	empty := width - filled

	color := cli.ColorGreen
	if m.Overspent() || pct >= 0.8 {
		color = cli.ColorRed
	} else if pct >= 0.5 {
		color = cli.ColorOrange
	}

	barStyle := lipgloss.NewStyle().Foreground(color)
	dimStyle := lipgloss.NewStyle().Foreground(cli.ColorTextDim)

	return barStyle.Render(strings.Repeat("█", filled)) +
		dimStyle.Render(strings.Repeat("░", empty))
}
