package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/uubinn0/Challengobi-sub000/internal/cli"
	"github.com/uubinn0/Challengobi-sub000/internal/config"
	"github.com/uubinn0/Challengobi-sub000/internal/daemon"
)

var (
	flagDaemonAddr         string
	flagDaemonInterval     time.Duration
	flagDaemonDetach       bool
	flagDaemonPIDFile      string
	flagDaemonLogFile      string
	flagDaemonEventsBuffer int
	flagDaemonChild        bool
	flagDaemonWatch        []string
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Serve the verification workflow over a local HTTP/SSE API",
	Long: "Run a long-lived process that owns the session store, keeps watched ledgers in sync,\n" +
		"and exposes intake, editing, and submission over HTTP for a UI client.",
	RunE: runDaemon,
}

var daemonStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the daemon's sessions, ledgers, and sync state",
	RunE:  runDaemonStatus,
}

var daemonStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running daemon",
	RunE:  runDaemonStop,
}

func init() {
	daemonCmd.PersistentFlags().StringVar(&flagDaemonAddr, "addr", "", "HTTP listen address (default from config)")
	daemonCmd.PersistentFlags().DurationVar(&flagDaemonInterval, "interval", 30*time.Second, "Ledger sync interval for watched challenges")
	daemonCmd.PersistentFlags().StringVar(&flagDaemonPIDFile, "pid-file", filepath.Join(config.CacheDir(), "gobid.pid"), "PID file path")
	daemonCmd.PersistentFlags().StringVar(&flagDaemonLogFile, "log-file", filepath.Join(config.CacheDir(), "gobid.log"), "Log file path for detached mode")
	daemonCmd.PersistentFlags().IntVar(&flagDaemonEventsBuffer, "events-buffer", 0, "Max in-memory events retained (default from config)")

	daemonCmd.Flags().StringSliceVar(&flagDaemonWatch, "watch", nil, "Challenge ids whose ledgers are kept in sync")
	daemonCmd.Flags().BoolVar(&flagDaemonDetach, "detach", false, "Run daemon as a background process")
	daemonCmd.Flags().BoolVar(&flagDaemonChild, "child", false, "Internal: mark detached child process")
	_ = daemonCmd.Flags().MarkHidden("child")

	daemonCmd.AddCommand(daemonStatusCmd)
	daemonCmd.AddCommand(daemonStopCmd)
	rootCmd.AddCommand(daemonCmd)
}

// daemonState is written next to the pid file so status and stop can find
// a daemon started with non-default flags.
type daemonState struct {
	PID       int       `json:"pid"`
	Addr      string    `json:"addr"`
	StartedAt time.Time `json:"started_at"`
	Watch     []string  `json:"watch,omitempty"`
}

// pidFile is the daemon's pid file; its state file sits beside it.
type pidFile string

func (p pidFile) statePath() string { return string(p) + ".json" }

func (p pidFile) read() (int, error) {
	//nolint:gosec // pid path is configured by the local user
	data, err := os.ReadFile(string(p))
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0, fmt.Errorf("invalid pid in %s", p)
	}
	return pid, nil
}

func (p pidFile) claim(st daemonState) error {
	if err := os.MkdirAll(filepath.Dir(string(p)), 0o750); err != nil {
		return fmt.Errorf("create daemon directory: %w", err)
	}
	if err := os.WriteFile(string(p), []byte(strconv.Itoa(st.PID)+"\n"), 0o600); err != nil {
		return err
	}
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return err
	}
	// The state file only refines status output; a failed write is tolerated.
	_ = os.WriteFile(p.statePath(), append(data, '\n'), 0o600)
	return nil
}

func (p pidFile) release() {
	_ = os.Remove(string(p))
	_ = os.Remove(p.statePath())
}

func (p pidFile) state() (daemonState, error) {
	var st daemonState
	//nolint:gosec // state path is configured by the local user
	data, err := os.ReadFile(p.statePath())
	if err != nil {
		return st, err
	}
	err = json.Unmarshal(data, &st)
	return st, err
}

// ensureFree fails when a live daemon owns the pid file and clears a stale one.
func (p pidFile) ensureFree() error {
	pid, err := p.read()
	switch {
	case errors.Is(err, os.ErrNotExist):
		return nil
	case err != nil:
		return err
	case processAlive(pid):
		return fmt.Errorf("daemon already running (pid %d)", pid)
	}
	p.release()
	return nil
}

func runDaemon(_ *cobra.Command, _ []string) error {
	if flagDaemonDetach && flagDaemonChild {
		return errors.New("invalid daemon launch mode")
	}
	if flagDaemonDetach {
		return startDaemonDetached()
	}
	return runDaemonForeground()
}

func startDaemonDetached() error {
	pf := pidFile(flagDaemonPIDFile)
	if err := pf.ensureFree(); err != nil {
		return err
	}

	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("resolve executable: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(flagDaemonLogFile), 0o750); err != nil {
		return fmt.Errorf("create daemon log directory: %w", err)
	}
	//nolint:gosec // log path is configured by the local user
	logf, err := os.OpenFile(flagDaemonLogFile, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o600)
	if err != nil {
		return fmt.Errorf("open daemon log file: %w", err)
	}
	defer func() { _ = logf.Close() }()

	child := exec.Command(exe, append(filterDetachArg(os.Args[1:]), "--child")...) //nolint:gosec // re-executes the current binary
	child.Stdout, child.Stderr = logf, logf
	child.Env = os.Environ()
	if err := child.Start(); err != nil {
		return fmt.Errorf("start detached daemon: %w", err)
	}

	addr := flagDaemonAddr
	if cfg, err := loadConfig(); err == nil {
		addr = daemonAddr(cfg)
	}
	fmt.Print(cli.RenderTable(cli.Table{
		Title: "Daemon started",
		Rows: [][]string{
			{"PID", strconv.Itoa(child.Process.Pid)},
			{"API", "http://" + addr + "/v1/status"},
			{"PID file", flagDaemonPIDFile},
			{"Log", flagDaemonLogFile},
		},
	}))
	return nil
}

func runDaemonForeground() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	addr := daemonAddr(cfg)
	buffer := flagDaemonEventsBuffer
	if buffer <= 0 {
		buffer = cfg.Daemon.EventsBuffer
	}
	watch := flagDaemonWatch
	if len(watch) == 0 && flagChallenge != "" {
		watch = []string{flagChallenge}
	}

	pf := pidFile(flagDaemonPIDFile)
	if err := pf.ensureFree(); err != nil {
		return err
	}
	if err := pf.claim(daemonState{PID: os.Getpid(), Addr: addr, StartedAt: time.Now(), Watch: watch}); err != nil {
		return err
	}
	defer pf.release()

	logger := slog.Default().With("component", "daemon")
	eventLog := daemon.NewEventLog(buffer)
	wf := newWorkflow(cfg, logger, eventLog)
	defer func() {
		if err := wf.Close(); err != nil {
			logger.Warn("closing workflow", "err", err)
		}
	}()

	svc := daemon.New(daemon.Config{
		Addr:         addr,
		Interval:     flagDaemonInterval,
		EventsBuffer: buffer,
		Watch:        watch,
	}, daemon.Workflow{
		Store:      wf.store,
		Intake:     wf.intake,
		Editor:     wf.editor,
		Dispatcher: wf.dispatcher,
		Ledger:     wf.mirror,
		History:    wf.history(),
	}, eventLog, logger)

	fmt.Printf("  gobi daemon listening on http://%s\n", addr)
	if len(watch) > 0 {
		fmt.Printf("  Syncing %s every %s\n", strings.Join(watch, ", "), flagDaemonInterval)
	}
	fmt.Printf("  Stop with: gobi daemon stop --pid-file %s\n", flagDaemonPIDFile)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := svc.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func daemonAddr(cfg config.Config) string {
	if flagDaemonAddr != "" {
		return flagDaemonAddr
	}
	if cfg.Daemon.Addr != "" {
		return cfg.Daemon.Addr
	}
	return "127.0.0.1:8788"
}

func runDaemonStatus(_ *cobra.Command, _ []string) error {
	pf := pidFile(flagDaemonPIDFile)
	pid, err := pf.read()
	if err != nil {
		fmt.Println(cli.RenderMuted("  Daemon not running (no pid file)."))
		return nil
	}
	if !processAlive(pid) {
		fmt.Println(cli.RenderWarning(fmt.Sprintf("Stale pid file: pid %d is not alive.", pid)))
		return nil
	}

	addr := flagDaemonAddr
	if st, err := pf.state(); err == nil && st.Addr != "" {
		addr = st.Addr
	} else if addr == "" {
		if cfg, err := loadConfig(); err == nil {
			addr = daemonAddr(cfg)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	st, err := fetchDaemonStatus(ctx, addr)
	fmt.Print(renderDaemonStatus(pid, addr, st, err))
	return nil
}

// fetchDaemonStatus reads /v1/status from a running daemon.
func fetchDaemonStatus(ctx context.Context, addr string) (daemon.Status, error) {
	var st daemon.Status
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://"+addr+"/v1/status", nil)
	if err != nil {
		return st, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return st, fmt.Errorf("unreachable: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return st, fmt.Errorf("HTTP %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		return st, fmt.Errorf("malformed response: %w", err)
	}
	return st, nil
}

// renderDaemonStatus lays out the process facts, then the daemon's own
// view of its sessions and ledgers when the API answered.
func renderDaemonStatus(pid int, addr string, st daemon.Status, fetchErr error) string {
	var b strings.Builder

	rows := [][]string{
		{"PID", strconv.Itoa(pid)},
		{"Address", "http://" + addr},
	}
	if fetchErr != nil {
		rows = append(rows, []string{"API", fetchErr.Error()})
		b.WriteString(cli.RenderTable(cli.Table{Title: "Daemon", Rows: rows}))
		return b.String()
	}

	lastSync := "pending"
	if !st.LastSyncAt.IsZero() {
		lastSync = st.LastSyncAt.Local().Format(time.DateTime)
	}
	rows = append(rows,
		[]string{"Up since", st.StartedAt.Local().Format(time.DateTime)},
		[]string{"Open sessions", strconv.Itoa(st.Sessions)},
		[]string{"Last sync", lastSync},
		[]string{"Syncs", formatNumber(st.SyncCount)},
		[]string{"Events", fmt.Sprintf("%d retained, %d subscribers", st.EventCount, st.SubscriberCount)},
	)
	if len(st.Watch) > 0 {
		rows = append(rows, []string{"Watching", strings.Join(st.Watch, ", ")})
	}
	b.WriteString(cli.RenderTable(cli.Table{Title: "Daemon", Rows: rows}))

	if len(st.Ledgers) > 0 {
		ledgerRows := make([][]string, 0, len(st.Ledgers))
		for _, l := range st.Ledgers {
			ledgerRows = append(ledgerRows, []string{
				l.ChallengeID,
				cli.FormatWon(l.TotalBudget),
				cli.FormatRemaining(l.Remaining),
				l.LastSyncedAt.Local().Format("15:04:05"),
			})
		}
		b.WriteString(cli.RenderTable(cli.Table{
			Title:   "Ledgers",
			Headers: []string{"Challenge", "Budget", "Remaining", "Synced"},
			Rows:    ledgerRows,
		}))
	}
	if st.LastError != "" {
		b.WriteString(cli.RenderWarning("Last sync error: "+st.LastError) + "\n")
	}
	return b.String()
}

func runDaemonStop(_ *cobra.Command, _ []string) error {
	pf := pidFile(flagDaemonPIDFile)
	pid, err := pf.read()
	if err != nil {
		return errors.New("daemon is not running")
	}

	proc, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("find daemon process: %w", err)
	}
	if err := proc.Signal(syscall.SIGTERM); err != nil {
		return fmt.Errorf("signal daemon process: %w", err)
	}

	for deadline := time.Now().Add(8 * time.Second); time.Now().Before(deadline); time.Sleep(150 * time.Millisecond) {
		if !processAlive(pid) {
			pf.release()
			fmt.Printf("  Stopped daemon (pid %d)\n", pid)
			return nil
		}
	}
	return fmt.Errorf("daemon (pid %d) did not exit in time", pid)
}

// filterDetachArg drops --detach so the re-executed child runs in the foreground.
func filterDetachArg(args []string) []string {
	out := make([]string, 0, len(args))
	for _, a := range args {
		if a == "--detach" || strings.HasPrefix(a, "--detach=") {
			continue
		}
		out = append(out, a)
	}
	return out
}

func processAlive(pid int) bool {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	err = proc.Signal(syscall.Signal(0))
	return err == nil || errors.Is(err, syscall.EPERM)
}
