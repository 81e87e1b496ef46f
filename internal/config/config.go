package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// Config holds all application configuration
type Config struct {
	General       GeneralConfig       `toml:"general"`
	GitHub        GitHubConfig        `toml:"github"`
	Editor        EditorConfig        `toml:"editor"`
	LLM           LLMConfig           `toml:"llm"`
	Notifications NotificationsConfig `toml:"notifications"`
	Daemon        DaemonConfig        `toml:"daemon"`
}

// GeneralConfig holds general settings
type GeneralConfig struct {
	// Repos lists the repositories to triage as owner/name.
	Repos        []string `toml:"repos"`
	CloneDir     string   `toml:"clone_dir"`
	DatabasePath string   `toml:"database_path"`
}

// GitHubConfig holds GitHub API settings. The token may also come from
// the GITHUB_TOKEN environment variable, which takes precedence.
type GitHubConfig struct {
	Token    string `toml:"token"`
	BotLabel string `toml:"bot_label"`
}

// EditorConfig describes the external code editor invocation.
type EditorConfig struct {
	Command        string   `toml:"command"`
	Args           []string `toml:"args"`
	TimeoutMinutes int      `toml:"timeout_minutes"`
}

// LLMConfig holds Anthropic API settings
type LLMConfig struct {
	Model       string  `toml:"model"`
	MaxTokens   int     `toml:"max_tokens"`
	Temperature float64 `toml:"temperature"`
}

// NotificationsConfig holds notification settings
type NotificationsConfig struct {
	SlackWebhook string `toml:"slack_webhook"`
}

// DaemonConfig holds polling settings for daemon mode
type DaemonConfig struct {
	// Schedule is a cron expression; empty disables the daemon loop.
	Schedule string `toml:"schedule"`
	// WatchConfig reloads the daemon when the config file changes.
	WatchConfig bool `toml:"watch_config"`
}

// Default returns a Config with sensible defaults
func Default() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		General: GeneralConfig{
			CloneDir:     filepath.Join(home, ".triagebot", "repos"),
			DatabasePath: filepath.Join(home, ".triagebot", "triagebot.db"),
		},
		GitHub: GitHubConfig{
			BotLabel: "triagebot",
		},
		Editor: EditorConfig{
			Command:        "aider",
			Args:           []string{"--sonnet", "--yes-always"},
			TimeoutMinutes: 30,
		},
		LLM: LLMConfig{
			Model:       "claude-sonnet-4-20250514",
			MaxTokens:   16000,
			Temperature: 0.2,
		},
		Daemon: DaemonConfig{
			Schedule:    "*/15 * * * *",
			WatchConfig: true,
		},
	}
}

// Load reads configuration from a TOML file, falling back to defaults
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}

	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	// Expand paths
	cfg.General.CloneDir = ExpandPath(cfg.General.CloneDir)
	cfg.General.DatabasePath = ExpandPath(cfg.General.DatabasePath)

	if tok := os.Getenv("GITHUB_TOKEN"); tok != "" {
		cfg.GitHub.Token = tok
	}

	return cfg, nil
}

// Validate checks settings the engine cannot default its way around.
func (c *Config) Validate() error {
	if len(c.General.Repos) == 0 {
		return fmt.Errorf("general.repos must list at least one owner/name repository")
	}
	for _, r := range c.General.Repos {
		if !strings.Contains(r, "/") {
			return fmt.Errorf("repository %q is not owner/name", r)
		}
	}
	if c.GitHub.Token == "" {
		return fmt.Errorf("github token missing, set github.token or GITHUB_TOKEN")
	}
	if c.Editor.Command == "" {
		return fmt.Errorf("editor.command must not be empty")
	}
	return nil
}

// ExpandPath expands ~ to the user's home directory
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[2:])
	}
	return path
}

// DefaultConfigPath returns the default config file location
func DefaultConfigPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "triagebot", "config.toml")
}
