// Package config loads process configuration from the environment.
package config

import (
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"strconv"
	"strings"
)

// Config holds the bridge's environment-derived settings. Dotenv loading
// and CLI flag parsing are treated as an external concern (see spec.md §1);
// this package only reads whatever is already in os.Environ().
type Config struct {
	BotToken string

	// Exactly one of AllowedUserID / AllowedUsername is set, unless the
	// process is running in ID-discovery mode (both zero).
	AllowedUserID   int64
	AllowedUsername string
	Discovery       bool

	WorkingDir string
	HomeDir    string // default ~/.megobari

	GitHubToken  string
	VoiceModel   string
	OpenAIAPIKey string

	DashboardAddr string

	AgentCommand string
	AgentArgs    []string
}

const defaultHomeDirName = ".megobari"

// Load reads configuration from the environment. It does not exit the
// process on missing values (callers decide how to react); a missing
// BOT_TOKEN or ALLOWED_USER results in Discovery-capable zero values
// rather than an error, mirroring the original's soft ID-discovery mode
// for the allow-list, but BotToken is still required for any transport use.
func Load() (*Config, error) {
	cfg := &Config{
		BotToken:      os.Getenv("BOT_TOKEN"),
		GitHubToken:   os.Getenv("GITHUB_TOKEN"),
		VoiceModel:    os.Getenv("VOICE_MODEL"),
		OpenAIAPIKey:  os.Getenv("OPENAI_API_KEY"),
		DashboardAddr: firstNonEmpty(os.Getenv("DASHBOARD_ADDR"), ":8766"),
		AgentCommand:  firstNonEmpty(os.Getenv("AGENT_COMMAND"), "claude"),
	}

	if wd := os.Getenv("WORKING_DIR"); wd != "" {
		cfg.WorkingDir = wd
	} else {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("resolve working directory: %w", err)
		}
		cfg.WorkingDir = wd
	}

	home, err := resolveHomeDir(os.Getenv("MEGOBARI_HOME"))
	if err != nil {
		return nil, fmt.Errorf("resolve home directory: %w", err)
	}
	cfg.HomeDir = home

	raw := strings.TrimSpace(os.Getenv("ALLOWED_USER"))
	if raw == "" {
		cfg.Discovery = true
		return cfg, nil
	}
	if id, err := strconv.ParseInt(raw, 10, 64); err == nil {
		cfg.AllowedUserID = id
	} else {
		cfg.AllowedUsername = strings.TrimPrefix(raw, "@")
	}

	return cfg, nil
}

func resolveHomeDir(override string) (string, error) {
	if override != "" {
		return override, nil
	}
	u, err := user.Current()
	if err != nil || u.HomeDir == "" {
		return filepath.Join(".", defaultHomeDirName), nil
	}
	return filepath.Join(u.HomeDir, defaultHomeDirName), nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

// SessionsDir returns the directory holding the Session Registry document.
func (c *Config) SessionsDir() string {
	return filepath.Join(c.HomeDir, "sessions")
}

// DBPath returns the path to the embedded SQLite store file.
func (c *Config) DBPath() string {
	return filepath.Join(c.HomeDir, "megobari.db")
}

// ReportsDir returns the directory holding generated monitor reports.
func (c *Config) ReportsDir() string {
	return filepath.Join(c.HomeDir, "reports")
}

// RestartMarkerPath returns the path to the transient restart-notify file.
func (c *Config) RestartMarkerPath() string {
	return filepath.Join(c.HomeDir, "restart_notify.json")
}
