package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/hochfrequenz/triagebot/internal/config"
	"github.com/hochfrequenz/triagebot/internal/domain"
	"github.com/hochfrequenz/triagebot/internal/editor"
	"github.com/hochfrequenz/triagebot/internal/github"
	"github.com/hochfrequenz/triagebot/internal/gitx"
	"github.com/hochfrequenz/triagebot/internal/llm"
	"github.com/hochfrequenz/triagebot/internal/notify"
	"github.com/hochfrequenz/triagebot/internal/processor"
	"github.com/hochfrequenz/triagebot/internal/prompts"
	"github.com/hochfrequenz/triagebot/internal/sched"
	"github.com/hochfrequenz/triagebot/internal/store"
)

var (
	historyRepo   string
	historyStatus string
	historyLimit  int
)

func init() {
	// run command
	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run one triage pass over all configured repositories",
		RunE:  runOnce,
	}
	rootCmd.AddCommand(runCmd)

	// daemon command
	daemonCmd := &cobra.Command{
		Use:   "daemon",
		Short: "Run triage passes on the configured schedule",
		RunE:  runDaemon,
	}
	rootCmd.AddCommand(daemonCmd)

	// history command
	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "Show recorded workflow outcomes",
		RunE:  runHistory,
	}
	historyCmd.Flags().StringVar(&historyRepo, "repo", "", "filter by repository (owner/name)")
	historyCmd.Flags().StringVar(&historyStatus, "status", "", "filter by status (success|skip|error)")
	historyCmd.Flags().IntVar(&historyLimit, "limit", 50, "maximum rows to show")
	rootCmd.AddCommand(historyCmd)

	// config init command
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration helpers",
	}
	configCmd.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Write a default config file",
		RunE:  runConfigInit,
	})
	rootCmd.AddCommand(configCmd)
}

func loadConfig() (*config.Config, error) {
	path := configPath
	if path == "" {
		path = config.DefaultConfigPath()
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func buildProcessor(ctx context.Context, cfg *config.Config) (*processor.Processor, *store.Store, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.General.DatabasePath), 0o755); err != nil {
		return nil, nil, err
	}
	db, err := store.New(cfg.General.DatabasePath)
	if err != nil {
		return nil, nil, err
	}

	var notifier notify.Notifier = notify.NoopNotifier{}
	if cfg.Notifications.SlackWebhook != "" {
		notifier = notify.NewSlackNotifier(cfg.Notifications.SlackWebhook)
	}

	p := processor.New(
		cfg,
		github.NewClient(ctx, cfg.GitHub.Token),
		gitx.New(),
		editor.New(cfg.Editor),
		llm.New(cfg.LLM),
		prompts.DefaultLoader(),
		db,
		notifier,
	)
	return p, db, nil
}

func runOnce(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	p, db, err := buildProcessor(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	stats, err := p.ProcessAll(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("processed %d items: %d success, %d skipped, %d errors\n",
		stats.Items, stats.Success, stats.Skips, stats.Errors)
	return nil
}

func runDaemon(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.Daemon.Schedule == "" {
		return fmt.Errorf("daemon.schedule is empty, nothing to do")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	p, db, err := buildProcessor(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	scheduler, err := sched.New(cfg.Daemon.Schedule, p)
	if err != nil {
		return err
	}

	if cfg.Daemon.WatchConfig {
		// a config change restarts the daemon cleanly via the supervisor
		watchPath := configPath
		if watchPath == "" {
			watchPath = config.DefaultConfigPath()
		}
		go sched.WatchConfig(ctx, watchPath, func() {
			slog.Info("configuration changed, shutting down for restart")
			stop()
		})
	}

	if err := scheduler.Run(ctx); err != context.Canceled {
		return err
	}
	return nil
}

func runHistory(cmd *cobra.Command, args []string) error {
	path := configPath
	if path == "" {
		path = config.DefaultConfigPath()
	}
	// no Validate: reading history needs neither a token nor repos
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	db, err := store.New(cfg.General.DatabasePath)
	if err != nil {
		return err
	}
	defer db.Close()

	records, err := db.ListOutcomes(store.ListOptions{
		Repo:   historyRepo,
		Status: domain.OutcomeStatus(historyStatus),
		Limit:  historyLimit,
	})
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "WHEN\tREPO\tITEM\tTRIGGER\tSTATUS\tDETAIL")
	for _, r := range records {
		kind := "issue"
		if r.IsPR {
			kind = "PR"
		}
		detail := r.Detail
		if len(detail) > 60 {
			detail = detail[:57] + "..."
		}
		fmt.Fprintf(w, "%s\t%s\t%s #%d\t%s\t%s\t%s\n",
			r.CreatedAt.Local().Format("2006-01-02 15:04"),
			r.Repo, kind, r.ItemNumber, r.Trigger.String(), r.Status, detail)
	}
	return w.Flush()
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	path := configPath
	if path == "" {
		path = config.DefaultConfigPath()
	}
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%s already exists", path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	content := `[general]
# repositories to triage
repos = []
clone_dir = "~/.triagebot/repos"
database_path = "~/.triagebot/triagebot.db"

[github]
# token may also come from the GITHUB_TOKEN environment variable
token = ""
bot_label = "triagebot"

[editor]
command = "aider"
args = ["--sonnet", "--yes-always"]
timeout_minutes = 30

[llm]
model = "claude-sonnet-4-20250514"
max_tokens = 16000
temperature = 0.2

[notifications]
slack_webhook = ""

[daemon]
schedule = "*/15 * * * *"
watch_config = true
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return err
	}
	fmt.Printf("wrote %s\n", path)
	return nil
}
