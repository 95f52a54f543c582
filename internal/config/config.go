package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/robfig/cron/v3"

	"hwbot/internal/route"
)

// Config is the root configuration for hwbot.
type Config struct {
	General    GeneralConfig    `json:"general"`
	Telegram   TelegramConfig   `json:"telegram"`
	Routing    RoutingConfig    `json:"routing"`
	Classifier ClassifierConfig `json:"classifier"`
	Extraction ExtractionConfig `json:"extraction"`
	Delivery   DeliveryConfig   `json:"delivery"`
	Store      StoreConfig      `json:"store"`
	Admin      AdminConfig      `json:"admin"`
	Digest     DigestConfig     `json:"digest"`
	Events     EventsConfig     `json:"events"`
}

type GeneralConfig struct {
	LogLevel              string `json:"logLevel"`
	LogFile               string `json:"logFile,omitempty"` // optional log file path
	Timezone              string `json:"timezone"`          // IANA name used when rendering times
	MaxConcurrentMessages int    `json:"maxConcurrentMessages"`
	QueueSize             int    `json:"queueSize"`
	SnippetLength         int    `json:"snippetLength"` // stored snippet bound, in characters
}

type TelegramConfig struct {
	Enabled               bool   `json:"enabled"`
	Token                 string `json:"token"`
	Mode                  string `json:"mode"` // "polling" | "webhook"
	WebhookURL            string `json:"webhookUrl,omitempty"`
	WebhookPath           string `json:"webhookPath,omitempty"` // defaults to /<token>
	ParseMode             string `json:"parseMode"`
	AdminIDs              IDList `json:"adminIds"`
	NotifyAdminsOnStartup bool   `json:"notifyAdminsOnStartup"`
}

// IDList is a []int64 that unmarshals from a JSON array of numbers or
// numeric strings, or from one comma-separated string ("1,2,3").
type IDList []int64

func (l *IDList) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		ids, err := ParseIDList(s)
		if err != nil {
			return err
		}
		*l = ids
		return nil
	}

	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	result := make([]int64, 0, len(raw))
	for _, item := range raw {
		var n int64
		if err := json.Unmarshal(item, &n); err == nil {
			result = append(result, n)
			continue
		}
		var str string
		if err := json.Unmarshal(item, &str); err != nil {
			return fmt.Errorf("invalid id %s", item)
		}
		n, err := strconv.ParseInt(strings.TrimSpace(str), 10, 64)
		if err != nil {
			return fmt.Errorf("invalid id %q: %w", str, err)
		}
		result = append(result, n)
	}
	*l = result
	return nil
}

// Contains reports whether id is in the list.
func (l IDList) Contains(id int64) bool {
	for _, v := range l {
		if v == id {
			return true
		}
	}
	return false
}

// ParseIDList parses "1, -2,3". Blank input yields an empty list.
func ParseIDList(s string) (IDList, error) {
	var ids IDList
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		n, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid id %q: %w", part, err)
		}
		ids = append(ids, n)
	}
	return ids, nil
}

type RoutingConfig struct {
	// Routes is "source:dest+dest,source:dest".
	Routes string `json:"routes"`
}

type ClassifierConfig struct {
	VocabularyFile string `json:"vocabularyFile,omitempty"` // YAML; built-in vocabulary when empty
}

type ExtractionConfig struct {
	TimeoutSeconds int                `json:"timeoutSeconds"`
	MaxFileBytes   int64              `json:"maxFileBytes"`
	OCR            RecognizerConfig   `json:"ocr"`
	Transcription  []RecognizerConfig `json:"transcription,omitempty"` // tried in order
}

// RecognizerConfig points at an OpenAI-compatible endpoint.
type RecognizerConfig struct {
	Name      string `json:"name,omitempty"`
	Enabled   bool   `json:"enabled"`
	APIBase   string `json:"apiBase,omitempty"`
	APIKey    string `json:"apiKey,omitempty"`
	Model     string `json:"model,omitempty"`
	Language  string `json:"language,omitempty"`
	MaxTokens int    `json:"maxTokens,omitempty"`
}

type DeliveryConfig struct {
	TimeoutSeconds int `json:"timeoutSeconds"`
}

type StoreConfig struct {
	Backend string `json:"backend"` // "memory" | "sqlite"
	DBPath  string `json:"dbPath"`
}

// AdminConfig configures the admin HTTP API.
type AdminConfig struct {
	Enabled bool   `json:"enabled"`
	Host    string `json:"host"`
	Port    int    `json:"port"`
	Token   string `json:"token,omitempty"` // bearer token for /api routes
}

// DigestConfig schedules the forwarding summary sent to admins.
type DigestConfig struct {
	Enabled    bool   `json:"enabled"`
	Cron       string `json:"cron"`
	WindowDays int    `json:"windowDays"`
}

// EventsConfig configures RabbitMQ publication of forwarded messages.
type EventsConfig struct {
	Enabled    bool   `json:"enabled"`
	URL        string `json:"url,omitempty"`
	Exchange   string `json:"exchange"`
	RoutingKey string `json:"routingKey"`
}

// Location returns the configured timezone, UTC when unset or unknown.
func (c *Config) Location() *time.Location {
	if c.General.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(c.General.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// IsAdmin reports whether a Telegram user id is an admin.
func (c *Config) IsAdmin(userID int64) bool {
	return c.Telegram.AdminIDs.Contains(userID)
}

// DefaultConfigDir returns the default config directory (~/.hwbot).
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".hwbot"
	}
	return filepath.Join(home, ".hwbot")
}

func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.json")
}

// Load reads the config at path over Defaults. A missing file is not an
// error: the defaults are used, filled from the environment.
func Load(path string) (*Config, error) {
	path = ExpandPath(path)

	cfg := Defaults()
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("cannot read config file %s: %w", path, err)
	default:
		// Substitute environment variables: ${VAR} and ${VAR:-default}
		data = []byte(ExpandEnvVars(string(data)))
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("cannot parse config file %s: %w", path, err)
		}
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}

	cfg.General.LogFile = ExpandPath(cfg.General.LogFile)
	cfg.Store.DBPath = ExpandPath(cfg.Store.DBPath)
	cfg.Classifier.VocabularyFile = ExpandPath(cfg.Classifier.VocabularyFile)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns in config strings.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-(.*?))?\}`)

// ExpandEnvVars replaces ${VAR} with the environment variable value.
// ${VAR:-default} uses "default" when VAR is unset or empty.
func ExpandEnvVars(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		if len(groups) < 2 {
			return match
		}
		val, exists := os.LookupEnv(groups[1])
		if exists && val != "" {
			return val
		}
		if len(groups) >= 3 && groups[2] != "" {
			return groups[2]
		}
		return match
	})
}

func Save(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("cannot create config directory: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("cannot marshal config: %w", err)
	}

	return os.WriteFile(path, data, 0o600)
}

// Validate checks that the config has valid values. All problems are
// reported together.
func Validate(cfg *Config) error {
	var errs []string

	switch cfg.General.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, "general.logLevel must be one of: debug, info, warn, error")
	}
	if cfg.General.Timezone != "" {
		if _, err := time.LoadLocation(cfg.General.Timezone); err != nil {
			errs = append(errs, fmt.Sprintf("general.timezone: %v", err))
		}
	}
	if cfg.General.MaxConcurrentMessages < 1 || cfg.General.MaxConcurrentMessages > 100 {
		errs = append(errs, "general.maxConcurrentMessages must be between 1 and 100")
	}
	if cfg.General.QueueSize < 1 {
		errs = append(errs, "general.queueSize must be >= 1")
	}
	if cfg.General.SnippetLength < 10 || cfg.General.SnippetLength > 4096 {
		errs = append(errs, "general.snippetLength must be between 10 and 4096")
	}

	if cfg.Telegram.Enabled {
		if cfg.Telegram.Token == "" {
			errs = append(errs, "telegram.token is required when telegram is enabled")
		}
		switch cfg.Telegram.Mode {
		case "polling":
		case "webhook":
			if cfg.Telegram.WebhookURL == "" {
				errs = append(errs, "telegram.webhookUrl is required in webhook mode")
			}
			if !cfg.Admin.Enabled {
				errs = append(errs, "webhook mode is served by the admin HTTP server: admin.enabled must be true")
			}
		default:
			errs = append(errs, "telegram.mode must be one of: polling, webhook")
		}
	}

	if _, err := route.Parse(cfg.Routing.Routes); err != nil {
		errs = append(errs, fmt.Sprintf("routing.routes: %v", err))
	}

	if cfg.Extraction.TimeoutSeconds < 1 {
		errs = append(errs, "extraction.timeoutSeconds must be >= 1")
	}
	if cfg.Extraction.MaxFileBytes < 1 {
		errs = append(errs, "extraction.maxFileBytes must be >= 1")
	}
	if cfg.Delivery.TimeoutSeconds < 1 {
		errs = append(errs, "delivery.timeoutSeconds must be >= 1")
	}

	switch cfg.Store.Backend {
	case "memory":
	case "sqlite":
		if cfg.Store.DBPath == "" {
			errs = append(errs, "store.dbPath is required for the sqlite backend")
		}
	default:
		errs = append(errs, "store.backend must be one of: memory, sqlite")
	}

	if cfg.Admin.Port < 0 || cfg.Admin.Port > 65535 {
		errs = append(errs, "admin.port must be between 0 and 65535")
	}

	if cfg.Digest.Enabled {
		if _, err := cron.ParseStandard(cfg.Digest.Cron); err != nil {
			errs = append(errs, fmt.Sprintf("digest.cron: %v", err))
		}
	}
	if cfg.Digest.WindowDays < 1 {
		errs = append(errs, "digest.windowDays must be >= 1")
	}

	if cfg.Events.Enabled && cfg.Events.URL == "" {
		errs = append(errs, "events.url is required when events are enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// ExpandPath resolves ~/ to the user's home directory.
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
