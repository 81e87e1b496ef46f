package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_Defaults(t *testing.T) {
	cfg := Default()

	if cfg.GitHub.BotLabel != "triagebot" {
		t.Errorf("BotLabel = %q, want triagebot", cfg.GitHub.BotLabel)
	}
	if cfg.Editor.Command != "aider" {
		t.Errorf("Editor.Command = %q, want aider", cfg.Editor.Command)
	}
	if cfg.LLM.MaxTokens != 16000 {
		t.Errorf("LLM.MaxTokens = %d, want 16000", cfg.LLM.MaxTokens)
	}
	if cfg.Daemon.Schedule == "" {
		t.Error("Daemon.Schedule should default to a cron expression")
	}
	if !cfg.Daemon.WatchConfig {
		t.Error("Daemon.WatchConfig should default to true")
	}
}

func TestLoad_FromFile(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.toml")

	content := `
[general]
repos = ["hochfrequenz/triagebot"]
clone_dir = "/test/repos"

[editor]
command = "aider"
timeout_minutes = 5

[llm]
model = "claude-haiku-3-5"

[daemon]
watch_config = false
`
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatal(err)
	}

	if len(cfg.General.Repos) != 1 || cfg.General.Repos[0] != "hochfrequenz/triagebot" {
		t.Errorf("Repos = %v", cfg.General.Repos)
	}
	if cfg.General.CloneDir != "/test/repos" {
		t.Errorf("CloneDir = %q, want /test/repos", cfg.General.CloneDir)
	}
	if cfg.Editor.TimeoutMinutes != 5 {
		t.Errorf("TimeoutMinutes = %d, want 5", cfg.Editor.TimeoutMinutes)
	}
	if cfg.LLM.Model != "claude-haiku-3-5" {
		t.Errorf("Model = %q", cfg.LLM.Model)
	}
	if cfg.Daemon.WatchConfig {
		t.Error("WatchConfig = true, file sets it to false")
	}
	// untouched sections keep their defaults
	if cfg.GitHub.BotLabel != "triagebot" {
		t.Errorf("BotLabel = %q, want default", cfg.GitHub.BotLabel)
	}
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	if err != nil {
		t.Fatalf("missing file should not error: %v", err)
	}
	if cfg.Editor.Command != "aider" {
		t.Errorf("Editor.Command = %q, want default", cfg.Editor.Command)
	}
}

func TestLoad_EnvTokenWins(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.toml")
	content := `
[github]
token = "from-file"
`
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("GITHUB_TOKEN", "from-env")

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.GitHub.Token != "from-env" {
		t.Errorf("Token = %q, want from-env", cfg.GitHub.Token)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid", func(c *Config) {}, false},
		{"no repos", func(c *Config) { c.General.Repos = nil }, true},
		{"bad repo", func(c *Config) { c.General.Repos = []string{"noslash"} }, true},
		{"no token", func(c *Config) { c.GitHub.Token = "" }, true},
		{"no editor", func(c *Config) { c.Editor.Command = "" }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			cfg.General.Repos = []string{"hochfrequenz/triagebot"}
			cfg.GitHub.Token = "tok"
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestExpandPath(t *testing.T) {
	home, _ := os.UserHomeDir()

	tests := []struct {
		input string
		want  string
	}{
		{"~/test", filepath.Join(home, "test")},
		{"/absolute/path", "/absolute/path"},
		{"relative", "relative"},
	}

	for _, tt := range tests {
		got := ExpandPath(tt.input)
		if got != tt.want {
			t.Errorf("ExpandPath(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}
