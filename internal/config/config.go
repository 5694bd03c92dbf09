// Package config loads the bot's runtime configuration from the
// environment, with an optional .env file for local development.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds everything the bot needs at startup. Required fields are
// checked by Validate; everything else carries a default.
type Config struct {
	// Discord
	DiscordToken  string
	CommandPrefix string
	CommandRooms  []string
	GithubRooms   []string
	TrelloRooms   []string
	AdminUsers    []string
	ElevatedRole  string

	// GitHub
	GithubToken string
	GithubOrgs  []string

	// Trello
	TrelloKey    string
	TrelloToken  string
	TrelloBoards []string
	AssistListID string

	// Polling
	PollInterval   time.Duration
	FetchTimeout   time.Duration
	IgnoredActors  []string
	WatermarkPath  string
	MemberFilePath string

	// Game server status
	ServerListURL string

	// Ops HTTP
	HTTPAddr string
}

// Load reads configuration from the environment. A .env file in the working
// directory is loaded first when present; real environment variables win.
func Load() (*Config, error) {
	// Ignore a missing .env; it only exists in development.
	_ = godotenv.Load()

	pollInterval, err := parseDuration("POLL_INTERVAL", "15s")
	if err != nil {
		return nil, err
	}
	fetchTimeout, err := parseDuration("FETCH_TIMEOUT", "10s")
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		DiscordToken:   os.Getenv("DISCORD_TOKEN"),
		CommandPrefix:  getEnv("COMMAND_PREFIX", "!"),
		CommandRooms:   splitEnv("COMMAND_ROOMS"),
		GithubRooms:    splitEnv("GITHUB_ROOMS"),
		TrelloRooms:    splitEnv("TRELLO_ROOMS"),
		AdminUsers:     splitEnv("ADMIN_USERS"),
		ElevatedRole:   getEnv("ELEVATED_ROLE", "Moderators"),
		GithubToken:    os.Getenv("GITHUB_TOKEN"),
		GithubOrgs:     splitEnv("GITHUB_ORGS"),
		TrelloKey:      os.Getenv("TRELLO_KEY"),
		TrelloToken:    os.Getenv("TRELLO_TOKEN"),
		TrelloBoards:   splitEnv("TRELLO_BOARDS"),
		AssistListID:   os.Getenv("TRELLO_ASSIST_LIST"),
		PollInterval:   pollInterval,
		FetchTimeout:   fetchTimeout,
		IgnoredActors:  splitEnv("IGNORED_ACTORS"),
		WatermarkPath:  getEnv("WATERMARK_FILE", "watermarks.json"),
		MemberFilePath: getEnv("MEMBER_FILE", "members.json"),
		ServerListURL:  os.Getenv("SERVER_LIST_URL"),
		HTTPAddr:       getEnv("HTTP_ADDR", ":8080"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports the first missing required setting. At least one source
// must be configured; each source's credentials are required only when that
// source is in use.
func (c *Config) Validate() error {
	switch {
	case c.DiscordToken == "":
		return fmt.Errorf("DISCORD_TOKEN is required")
	case len(c.GithubOrgs) == 0 && len(c.TrelloBoards) == 0:
		return fmt.Errorf("at least one of GITHUB_ORGS or TRELLO_BOARDS is required")
	case len(c.GithubOrgs) > 0 && c.GithubToken == "":
		return fmt.Errorf("GITHUB_TOKEN is required when GITHUB_ORGS is set")
	case len(c.TrelloBoards) > 0 && (c.TrelloKey == "" || c.TrelloToken == ""):
		return fmt.Errorf("TRELLO_KEY and TRELLO_TOKEN are required when TRELLO_BOARDS is set")
	case len(c.CommandRooms) == 0:
		return fmt.Errorf("COMMAND_ROOMS is required")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// splitEnv parses a comma-separated env value into trimmed, non-empty
// items.
func splitEnv(key string) []string {
	raw := os.Getenv(key)
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func parseDuration(key, defaultValue string) (time.Duration, error) {
	raw := getEnv(key, defaultValue)
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return d, nil
}
