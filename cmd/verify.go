package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
	"github.com/muesli/termenv"
	"github.com/spf13/cobra"

	"github.com/uubinn0/Challengobi-sub000/internal/cli"
	"github.com/uubinn0/Challengobi-sub000/internal/model"
	"github.com/uubinn0/Challengobi-sub000/internal/tui"
	"github.com/uubinn0/Challengobi-sub000/internal/verify"
)

var (
	flagVerifyReceipt string
	flagVerifyAmount  string
	flagVerifyNoSpend bool
	flagVerifyText    string
	flagVerifySelect  string
	flagVerifyEdits   []string
	flagVerifyYes     bool
)

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Submit today's spending evidence for a challenge",
	Long: `Submit today's spending evidence for a challenge.

Exactly one kind of evidence is accepted per run:
  --receipt PATH   receipt photo, recognized remotely and reviewed before submit
  --amount TEXT    a typed total such as "12,000"
  --no-spend       a no-spend declaration confirmed by typing the attestation

Without any of them an interactive prompt asks which one to use.`,
	RunE: runVerify,
}

func init() {
	verifyCmd.Flags().StringVar(&flagVerifyReceipt, "receipt", "", "Receipt image path")
	verifyCmd.Flags().StringVar(&flagVerifyAmount, "amount", "", "Typed total amount")
	verifyCmd.Flags().BoolVar(&flagVerifyNoSpend, "no-spend", false, "Declare a no-spend day")
	verifyCmd.Flags().StringVar(&flagVerifyText, "text", "", "Attestation sentence for --no-spend (prompted when empty)")
	verifyCmd.Flags().StringVar(&flagVerifySelect, "select", "", `Receipt drafts to submit: "all" or local ids like "1,3"`)
	verifyCmd.Flags().StringArrayVar(&flagVerifyEdits, "edit", nil, `Correct a draft amount, "ID=AMOUNT" (repeatable)`)
	verifyCmd.Flags().BoolVarP(&flagVerifyYes, "yes", "y", false, "Submit without confirmation")
	rootCmd.AddCommand(verifyCmd)
}

func runVerify(_ *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	challengeID, err := requireChallenge()
	if err != nil {
		return err
	}

	wf := newWorkflow(cfg, slog.Default(), nil)
	defer func() { _ = wf.Close() }()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	interactive := isInteractive()

	mirror, ledgerErr := wf.mirror.Get(ctx, challengeID)
	if ledgerErr != nil {
		progressf("Remaining budget unknown: %v", ledgerErr)
	} else {
		progressf("Remaining budget: %s", cli.FormatRemaining(mirror.Remaining))
	}
	if wf.cache != nil {
		today := time.Now().In(cfg.Location()).Format("2006-01-02")
		if done, err := wf.cache.VerifiedOn(ctx, challengeID, today); err == nil && done {
			fmt.Println(cli.RenderWarning("Already verified today on this device."))
		}
	}

	kind, err := chooseKind(interactive)
	if err != nil {
		return err
	}

	switch kind {
	case verify.KindReceiptOCR:
		err = intakeReceipt(ctx, wf, challengeID, interactive)
	case verify.KindTypedAmount:
		err = intakeTyped(ctx, wf, challengeID, interactive)
	case verify.KindNoSpend:
		err = intakeNoSpend(ctx, wf, challengeID, interactive)
	}
	if err != nil {
		return explainVerifyError(err)
	}

	if kind == verify.KindReceiptOCR {
		confirmed, err := reconcileDrafts(wf, challengeID, mirror, ledgerErr == nil, interactive)
		if err != nil {
			wf.store.Clear(challengeID)
			return explainVerifyError(err)
		}
		if !confirmed {
			wf.store.Clear(challengeID)
			fmt.Println("  Verification cancelled.")
			return nil
		}
	}

	sess, err := wf.editor.Session(challengeID)
	if err != nil {
		return explainVerifyError(err)
	}
	printPreview(wf.editor, sess)

	if !flagVerifyYes {
		if !interactive {
			wf.store.Clear(challengeID)
			return errors.New("refusing to submit without confirmation; pass --yes")
		}
		ok, err := confirmSubmit(wf.editor, sess)
		if err != nil {
			return err
		}
		if !ok {
			wf.store.Clear(challengeID)
			fmt.Println("  Verification cancelled.")
			return nil
		}
	}

	var ask func(error) (bool, error)
	if interactive {
		ask = confirmRetry
	}
	out, err := submitWithRetry(ctx, wf.dispatcher, challengeID, ask)
	if err != nil {
		return explainVerifyError(err)
	}
	printOutcome(out)
	return nil
}

// submitter is the dispatcher as the verify command drives it.
type submitter interface {
	Submit(ctx context.Context, challengeID string) (verify.Outcome, error)
}

// submitWithRetry submits the stored session. After a failed commit the
// session and its edits are still stored, so when ask approves, the same
// session is submitted again. A nil ask never retries.
func submitWithRetry(ctx context.Context, d submitter, challengeID string, ask func(error) (bool, error)) (verify.Outcome, error) {
	for {
		out, err := d.Submit(ctx, challengeID)
		if err == nil {
			return out, nil
		}
		if ask == nil || !errors.Is(err, verify.ErrSubmissionFailed) || ctx.Err() != nil {
			return verify.Outcome{}, err
		}
		retry, askErr := ask(err)
		if askErr != nil {
			return verify.Outcome{}, askErr
		}
		if !retry {
			return verify.Outcome{}, err
		}
		progressf("Retrying submission...")
	}
}

func confirmRetry(err error) (bool, error) {
	fmt.Println(cli.RenderWarning("Submission failed: " + err.Error()))
	retry := true
	askErr := huh.NewConfirm().
		Title("Retry submission?").
		Description("Your selection and edits are kept.").
		Affirmative("Retry").
		Negative("Give up").
		Value(&retry).
		Run()
	if errors.Is(askErr, huh.ErrUserAborted) {
		return false, nil
	}
	return retry, askErr
}

func isInteractive() bool {
	return isatty.IsTerminal(os.Stdin.Fd()) && isatty.IsTerminal(os.Stdout.Fd())
}

func chooseKind(interactive bool) (verify.EvidenceKind, error) {
	var kinds []verify.EvidenceKind
	if flagVerifyReceipt != "" {
		kinds = append(kinds, verify.KindReceiptOCR)
	}
	if flagVerifyAmount != "" {
		kinds = append(kinds, verify.KindTypedAmount)
	}
	if flagVerifyNoSpend {
		kinds = append(kinds, verify.KindNoSpend)
	}

	switch {
	case len(kinds) == 1:
		return kinds[0], nil
	case len(kinds) > 1:
		return 0, errors.New("use only one of --receipt, --amount, --no-spend")
	case !interactive:
		return 0, errors.New("one of --receipt, --amount, --no-spend is required")
	}

	kind := verify.KindReceiptOCR
	err := huh.NewSelect[verify.EvidenceKind]().
		Title("How do you want to verify today?").
		Options(
			huh.NewOption("Receipt photo", verify.KindReceiptOCR),
			huh.NewOption("Type the total", verify.KindTypedAmount),
			huh.NewOption("I spent nothing today", verify.KindNoSpend),
		).
		Value(&kind).
		Run()
	return kind, err
}

func intakeReceipt(ctx context.Context, wf *workflow, challengeID string, interactive bool) error {
	path := flagVerifyReceipt
	if path == "" {
		err := huh.NewInput().
			Title("Receipt image path").
			Value(&path).
			Validate(func(s string) error {
				_, err := verify.LoadImage(strings.TrimSpace(s))
				return err
			}).
			Run()
		if err != nil {
			return err
		}
	}

	img, err := verify.LoadImage(strings.TrimSpace(path))
	if err != nil {
		return err
	}

	run := func(ctx context.Context) error {
		_, err := wf.intake.SubmitReceipt(ctx, challengeID, img)
		return err
	}
	if !interactive || flagQuiet {
		return run(ctx)
	}

	final, err := tea.NewProgram(tui.NewTask(ctx, "Recognizing receipt...", run)).Run()
	if err != nil {
		return fmt.Errorf("TUI error: %w", err)
	}
	return final.(tui.Task).Err()
}

func intakeTyped(ctx context.Context, wf *workflow, challengeID string, interactive bool) error {
	raw := flagVerifyAmount
	if raw == "" && interactive {
		err := huh.NewInput().
			Title("Total spent today (won)").
			Value(&raw).
			Validate(func(s string) error {
				_, err := verify.NormalizeTypedAmount(s)
				return err
			}).
			Run()
		if err != nil {
			return err
		}
	}
	_, err := wf.intake.SubmitTypedAmount(ctx, challengeID, raw)
	return err
}

func intakeNoSpend(ctx context.Context, wf *workflow, challengeID string, interactive bool) error {
	text := flagVerifyText
	if text == "" {
		if !interactive {
			return fmt.Errorf("--text is required without a terminal; type exactly %q", wf.intake.Attestation())
		}
		final, err := tea.NewProgram(tui.NewAttest(wf.intake.Attestation())).Run()
		if err != nil {
			return fmt.Errorf("TUI error: %w", err)
		}
		m := final.(tui.Attest)
		if m.Outcome() != tui.OutcomeConfirmed {
			return context.Canceled
		}
		text = m.Text()
	}
	_, err := wf.intake.SubmitNoSpend(ctx, challengeID, text)
	return err
}

// reconcileDrafts applies --select and --edit, or opens the editor screen
// when neither is given on a terminal.
func reconcileDrafts(wf *workflow, challengeID string, mirror model.LedgerMirror, ledgerKnown, interactive bool) (bool, error) {
	if flagVerifySelect != "" || len(flagVerifyEdits) > 0 || !interactive {
		if err := applyDraftFlags(wf.editor, challengeID, flagVerifySelect, flagVerifyEdits); err != nil {
			return false, err
		}
		return true, nil
	}

	m, err := tui.NewReconcile(wf.editor, challengeID, mirror.TotalBudget, ledgerKnown)
	if err != nil {
		return false, err
	}
	// Card backgrounds need a color profile even when detection comes up empty.
	lipgloss.SetColorProfile(termenv.TrueColor)
	final, err := tea.NewProgram(m, tea.WithAltScreen()).Run()
	if err != nil {
		return false, fmt.Errorf("TUI error: %w", err)
	}
	return final.(tui.Reconcile).Outcome() == tui.OutcomeConfirmed, nil
}

// applyDraftFlags selects drafts named by sel ("all" or "1,3") and applies
// "ID=AMOUNT" edits.
func applyDraftFlags(ed *verify.Editor, challengeID, sel string, edits []string) error {
	sess, err := ed.Session(challengeID)
	if err != nil {
		return err
	}

	switch strings.TrimSpace(sel) {
	case "":
	case "all":
		for _, d := range sess.Drafts {
			if _, err := ed.SetSelected(challengeID, d.LocalID, true); err != nil {
				return err
			}
		}
	default:
		for _, part := range strings.Split(sel, ",") {
			id, err := strconv.Atoi(strings.TrimSpace(part))
			if err != nil {
				return fmt.Errorf("invalid --select entry %q", part)
			}
			if _, err := ed.SetSelected(challengeID, id, true); err != nil {
				return err
			}
		}
	}

	for _, e := range edits {
		idStr, amountStr, ok := strings.Cut(e, "=")
		if !ok {
			return fmt.Errorf("invalid --edit %q, want ID=AMOUNT", e)
		}
		id, err := strconv.Atoi(strings.TrimSpace(idStr))
		if err != nil {
			return fmt.Errorf("invalid --edit id %q", idStr)
		}
		amount, err := verify.ParseAmountInput(amountStr)
		if err != nil {
			return err
		}
		if _, err := ed.EditAmount(challengeID, id, amount); err != nil {
			return err
		}
	}
	return nil
}

func printPreview(ed *verify.Editor, sess verify.Session) {
	fmt.Println()
	fmt.Println(cli.RenderTitle(fmt.Sprintf("VERIFY  challenge %s  (%s)", sess.ChallengeID, sess.Kind)))
	fmt.Println()

	switch sess.Kind {
	case verify.KindReceiptOCR:
		rows := make([][]string, 0, len(sess.Drafts))
		for _, d := range sess.Drafts {
			mark := " "
			if d.Selected {
				mark = "✓"
			}
			amount := cli.FormatWon(d.Amount)
			if d.Edited() {
				amount += " (was " + cli.FormatWon(d.OriginalAmount) + ")"
			}
			rows = append(rows, []string{mark, strconv.Itoa(d.LocalID), d.Merchant, d.OccurredAt, amount})
		}
		if len(rows) > 0 {
			fmt.Print(cli.RenderTable(cli.Table{
				Headers: []string{"", "ID", "Store", "Time", "Amount"},
				Rows:    rows,
			}))
		} else {
			fmt.Println(cli.RenderMuted("  No line items recognized; a zero total will be recorded."))
		}
	case verify.KindTypedAmount:
		fmt.Printf("  Typed total: %s\n", cli.FormatWon(sess.TypedAmount))
	case verify.KindNoSpend:
		fmt.Println("  No-spend declaration")
	}

	total := sess.RunningTotal()
	fmt.Printf("\n  Total:           %s", cli.FormatWon(total))
	if units := cli.FormatKoreanUnits(total); units != "" {
		fmt.Printf("  (%s)", units)
	}
	fmt.Println()

	after, err := ed.RemainingAfterSubmit(sess.ChallengeID)
	switch {
	case err != nil:
		fmt.Println(cli.RenderMuted("  Remaining after: unknown"))
	case after < 0:
		fmt.Println(cli.RenderWarning(fmt.Sprintf("Remaining after: %s  (over budget)", cli.FormatRemaining(after))))
	default:
		fmt.Printf("  Remaining after: %s\n", cli.FormatRemaining(after))
	}
	fmt.Println()
}

func confirmSubmit(ed *verify.Editor, sess verify.Session) (bool, error) {
	desc := ""
	if over, err := ed.Overspend(sess.ChallengeID); err == nil && over {
		desc = "This submission exceeds the remaining budget."
	}
	ok := true
	err := huh.NewConfirm().
		Title(fmt.Sprintf("Submit %s?", cli.FormatWon(sess.RunningTotal()))).
		Description(desc).
		Affirmative("Submit").
		Negative("Cancel").
		Value(&ok).
		Run()
	if errors.Is(err, huh.ErrUserAborted) {
		return false, nil
	}
	return ok, err
}

func printOutcome(out verify.Outcome) {
	v := out.Verification
	msg := fmt.Sprintf("Verified %s for %s: %d item(s), %s", v.Day, v.ChallengeID, v.ItemCount, cli.FormatWon(v.Total))
	if out.Commit.NoSpend {
		msg = fmt.Sprintf("Verified %s for %s: no spending", v.Day, v.ChallengeID)
	}
	fmt.Println(cli.RenderOK(msg))
	if out.LedgerKnown {
		line := "  Remaining budget: " + cli.FormatRemaining(out.Remaining)
		if out.Remaining < 0 {
			fmt.Println(cli.RenderWarning(line + "  (over budget)"))
		} else {
			fmt.Println(line)
		}
	}
}

// explainVerifyError adds a next step to the workflow errors a user can act on.
func explainVerifyError(err error) error {
	switch {
	case errors.Is(err, context.Canceled):
		return errors.New("cancelled")
	case errors.Is(err, verify.ErrAuthRequired):
		return fmt.Errorf("%w\n  Sign in again: set GOBI_ACCESS_TOKEN or run `gobi setup`", err)
	case errors.Is(err, verify.ErrEvidenceRejected):
		return fmt.Errorf("%w\n  Try another photo, or use --amount", err)
	case errors.Is(err, verify.ErrSubmissionFailed):
		return fmt.Errorf("%w\n  Nothing was recorded; check your connection and run the command again", err)
	}
	return err
}
