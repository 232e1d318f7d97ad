package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/uubinn0/Challengobi-sub000/internal/auth"
	"github.com/uubinn0/Challengobi-sub000/internal/cli"
	"github.com/uubinn0/Challengobi-sub000/internal/model"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show sign-in state and today's verification status",
	Long:  "Report whether the access token is usable and, for every cached challenge, whether today's spending has been verified. Reads only local state.",
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(_ *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	wf := newWorkflow(cfg, slog.Default(), nil)
	defer func() { _ = wf.Close() }()

	ctx := context.Background()

	fmt.Println()
	fmt.Println(cli.RenderTitle("GOBI STATUS"))
	fmt.Println()

	if _, err := wf.creds.Token(ctx); err != nil {
		fmt.Println(renderCredentialProblem(err))
		fmt.Println()
		fmt.Println("  Configure a token:")
		fmt.Println("    gobi setup                                  (interactive)")
		fmt.Println("    GOBI_ACCESS_TOKEN=eyJ... gobi status         (one-shot)")
		fmt.Println()
	} else {
		line := "Signed in"
		if exp := wf.creds.ExpiresAt(); !exp.IsZero() {
			line += fmt.Sprintf(" (token expires in %s)", formatCountdown(time.Until(exp)))
		}
		fmt.Println(cli.RenderOK(line))
		fmt.Println()
	}

	if wf.cache == nil {
		fmt.Println(cli.RenderMuted("  Local cache unavailable; no challenge status to show."))
		return nil
	}

	mirrors, err := wf.cache.ListMirrors(ctx)
	if err != nil {
		return fmt.Errorf("reading cached ledgers: %w", err)
	}
	if flagChallenge != "" {
		mirrors = filterMirrors(mirrors, flagChallenge)
	}
	if len(mirrors) == 0 {
		fmt.Println("  No challenges seen yet. Run `gobi ledger -c ID` to fetch one.")
		return nil
	}

	today := time.Now().In(cfg.Location()).Format("2006-01-02")
	doneStyle := lipgloss.NewStyle().Foreground(cli.ColorGreen)
	todoStyle := lipgloss.NewStyle().Foreground(cli.ColorOrange)

	rows := make([][]string, 0, len(mirrors))
	for _, m := range mirrors {
		state := todoStyle.Render("pending")
		if done, err := wf.cache.VerifiedOn(ctx, m.ChallengeID, today); err == nil && done {
			state = doneStyle.Render("verified")
		}
		rows = append(rows, []string{
			m.ChallengeID,
			state,
			cli.FormatRemaining(m.Remaining),
			renderMiniBar(m, 12),
		})
	}
	fmt.Print(cli.RenderTable(cli.Table{
		Title:   "Today (" + today + ")",
		Headers: []string{"Challenge", "Today", "Remaining", "Used"},
		Rows:    rows,
	}))
	return nil
}

func renderCredentialProblem(err error) string {
	switch {
	case errors.Is(err, auth.ErrNoCredential):
		return cli.RenderWarning("No access token configured.")
	case errors.Is(err, auth.ErrExpired):
		return cli.RenderWarning("Access token expired; sign in again to get a fresh one.")
	default:
		return cli.RenderWarning("Access token unusable: " + err.Error())
	}
}

func filterMirrors(mirrors []model.LedgerMirror, challengeID string) []model.LedgerMirror {
	out := mirrors[:0]
	for _, m := range mirrors {
		if m.ChallengeID == challengeID {
			out = append(out, m)
		}
	}
	return out
}

func formatCountdown(d time.Duration) string {
	if d <= 0 {
		return "now"
	}
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	if h >= 24 {
		return fmt.Sprintf("%dd %dh", h/24, h%24)
	}
	if h > 0 {
		return fmt.Sprintf("%dh %dm", h, m)
	}
	return fmt.Sprintf("%dm", m)
}
