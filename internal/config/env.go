package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"sync"

	"github.com/joho/godotenv"
)

// Environment variables read when the matching config field is empty.
const (
	EnvBotToken    = "BOT_TOKEN"
	EnvAdminIDs    = "ADMIN_CHAT_IDS"
	EnvRoutes      = "ROUTES_MAP"
	EnvWebhookURL  = "WEBHOOK_URL"
	EnvWebhookPort = "WEBHOOK_PORT"
	EnvAdminToken  = "HWBOT_ADMIN_TOKEN"
	EnvOpenAIKey   = "OPENAI_API_KEY"
)

var (
	envMu   sync.Mutex
	envKeys = map[string]bool{} // variables whose value came from the .env file
)

// LoadEnv loads a .env file into the process environment without
// overriding variables that are already set. A missing file is ignored.
func LoadEnv(path string) error {
	vals, err := readEnvFile(path)
	if err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	envMu.Lock()
	defer envMu.Unlock()
	for k, v := range vals {
		if _, set := os.LookupEnv(k); set {
			continue
		}
		os.Setenv(k, v)
		envKeys[k] = true
	}
	return nil
}

// ReloadEnv re-reads a .env file, overriding current values so edits made
// while running take effect. A variable that came from the file and has
// since been removed from it is unset.
func ReloadEnv(path string) error {
	vals, err := readEnvFile(path)
	if err != nil {
		return fmt.Errorf("reload %s: %w", path, err)
	}
	envMu.Lock()
	defer envMu.Unlock()
	for k := range envKeys {
		if _, ok := vals[k]; !ok {
			os.Unsetenv(k)
			delete(envKeys, k)
		}
	}
	for k, v := range vals {
		os.Setenv(k, v)
		envKeys[k] = true
	}
	return nil
}

func readEnvFile(path string) (map[string]string, error) {
	vals, err := godotenv.Read(path)
	if errors.Is(err, fs.ErrNotExist) {
		return map[string]string{}, nil
	}
	return vals, err
}

// ReloadRoutes re-reads the .env file and the config file and resolves the
// route text the way Load does: routing.routes from the file when set,
// otherwise ROUTES_MAP. The rest of the config is not re-validated.
func ReloadRoutes(cfgPath, envPath string) (string, error) {
	if err := ReloadEnv(envPath); err != nil {
		return "", err
	}

	path := ExpandPath(cfgPath)
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return "", fmt.Errorf("cannot read config file %s: %w", path, err)
	default:
		var file struct {
			Routing struct {
				Routes string `json:"routes"`
			} `json:"routing"`
		}
		if err := json.Unmarshal([]byte(ExpandEnvVars(string(data))), &file); err != nil {
			return "", fmt.Errorf("cannot parse config file %s: %w", path, err)
		}
		if file.Routing.Routes != "" {
			return file.Routing.Routes, nil
		}
	}
	return os.Getenv(EnvRoutes), nil
}

// applyEnv fills empty fields from the environment.
func applyEnv(cfg *Config) error {
	if cfg.Telegram.Token == "" {
		cfg.Telegram.Token = os.Getenv(EnvBotToken)
		if cfg.Telegram.Token != "" {
			cfg.Telegram.Enabled = true
		}
	}
	if len(cfg.Telegram.AdminIDs) == 0 {
		ids, err := ParseIDList(os.Getenv(EnvAdminIDs))
		if err != nil {
			return fmt.Errorf("%s: %w", EnvAdminIDs, err)
		}
		cfg.Telegram.AdminIDs = ids
	}
	if cfg.Routing.Routes == "" {
		cfg.Routing.Routes = os.Getenv(EnvRoutes)
	}
	if cfg.Telegram.WebhookURL == "" {
		if url := os.Getenv(EnvWebhookURL); url != "" {
			cfg.Telegram.WebhookURL = url
			cfg.Telegram.Mode = "webhook"
			cfg.Admin.Enabled = true
		}
	}
	if port := os.Getenv(EnvWebhookPort); port != "" && cfg.Telegram.Mode == "webhook" {
		n, err := strconv.Atoi(port)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvWebhookPort, err)
		}
		cfg.Admin.Port = n
	}
	if cfg.Admin.Token == "" {
		cfg.Admin.Token = os.Getenv(EnvAdminToken)
	}
	// An OpenAI key in the environment turns on recognizers left without one.
	if key := os.Getenv(EnvOpenAIKey); key != "" {
		if cfg.Extraction.OCR.APIKey == "" {
			cfg.Extraction.OCR.APIKey = key
			cfg.Extraction.OCR.Enabled = true
		}
		for i := range cfg.Extraction.Transcription {
			if cfg.Extraction.Transcription[i].APIKey == "" {
				cfg.Extraction.Transcription[i].APIKey = key
				cfg.Extraction.Transcription[i].Enabled = true
			}
		}
	}
	return nil
}
