package main

import (
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/spf13/cobra"

	"hwbot/internal/activity"
	"hwbot/internal/classify"
	"hwbot/internal/config"
	"hwbot/internal/route"
)

// checkReport tallies doctor results.
type checkReport struct {
	out                    io.Writer
	passed, warned, failed int
}

func (r *checkReport) pass(check, detail string) {
	r.passed++
	fmt.Fprintf(r.out, "  [PASS] %-20s %s\n", check, detail)
}

func (r *checkReport) warn(check, detail string) {
	r.warned++
	fmt.Fprintf(r.out, "  [WARN] %-20s %s\n", check, detail)
}

func (r *checkReport) fail(check, detail string) {
	r.failed++
	fmt.Fprintf(r.out, "  [FAIL] %-20s %s\n", check, detail)
}

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Run diagnostic checks on the hwbot setup",
		Long: `Verifies that the configuration, routes, vocabulary, activity store
and recognizers are set up. Reports pass/warn/fail for each check.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			r := &checkReport{out: cmd.OutOrStdout()}
			fmt.Fprintf(r.out, "hwbot doctor v%s\n\n", version)

			cfgPath := resolveConfigPath()
			if _, err := os.Stat(cfgPath); err != nil {
				r.warn("Config file", fmt.Sprintf("not found at %s, using defaults and environment", cfgPath))
			} else {
				r.pass("Config file", cfgPath)
			}

			cfg, err := config.Load(cfgPath)
			if err != nil {
				r.fail("Config validation", err.Error())
				return r.finish()
			}
			r.pass("Config validation", "valid")

			runChecks(r, cfg)
			return r.finish()
		},
	}
}

func runChecks(r *checkReport, cfg *config.Config) {
	if cfg.Telegram.Token == "" {
		r.fail("Telegram token", "not set (telegram.token or "+config.EnvBotToken+")")
	} else {
		r.pass("Telegram token", "set")
	}
	if len(cfg.Telegram.AdminIDs) == 0 {
		r.warn("Admins", "no admin ids: admin commands are refused for everyone")
	} else {
		r.pass("Admins", fmt.Sprintf("%d configured", len(cfg.Telegram.AdminIDs)))
	}

	if table, err := route.Parse(cfg.Routing.Routes); err != nil {
		r.fail("Routes", err.Error())
	} else if table.Len() == 0 {
		r.warn("Routes", "no routes: every message will be dropped")
	} else {
		r.pass("Routes", fmt.Sprintf("%d source groups", table.Len()))
	}

	if _, err := classify.FromFile(cfg.Classifier.VocabularyFile); err != nil {
		r.fail("Vocabulary", err.Error())
	} else if cfg.Classifier.VocabularyFile == "" {
		r.pass("Vocabulary", "built-in")
	} else {
		r.pass("Vocabulary", cfg.Classifier.VocabularyFile)
	}

	if cfg.Store.Backend == activity.BackendMemory {
		r.warn("Activity store", "memory backend: the log is lost on restart")
	} else if store, err := activity.NewSQLiteStore(cfg.Store.DBPath, cfg.General.SnippetLength, logger); err != nil {
		r.fail("Activity store", err.Error())
	} else {
		store.Close()
		r.pass("Activity store", cfg.Store.DBPath)
	}

	if cfg.Extraction.OCR.Enabled && cfg.Extraction.OCR.APIKey != "" {
		r.pass("OCR", cfg.Extraction.OCR.Model)
	} else {
		r.warn("OCR", "disabled or no API key: photos will never match")
	}
	transcribers := 0
	for _, rc := range cfg.Extraction.Transcription {
		if rc.Enabled && rc.APIKey != "" {
			transcribers++
		}
	}
	if transcribers == 0 {
		r.warn("Transcription", "no enabled endpoint with an API key: voice notes will never match")
	} else {
		r.pass("Transcription", fmt.Sprintf("%d endpoint(s)", transcribers))
	}

	if cfg.Admin.Enabled {
		if err := checkPort(cfg.Admin.Host, cfg.Admin.Port); err != nil {
			r.warn("Admin port", fmt.Sprintf("%s:%d may be in use: %v", cfg.Admin.Host, cfg.Admin.Port, err))
		} else {
			r.pass("Admin port", fmt.Sprintf("%s:%d available", cfg.Admin.Host, cfg.Admin.Port))
		}
		if cfg.Admin.Token == "" {
			r.warn("Admin token", "not set: /api routes are closed")
		}
	}

	if cfg.Events.Enabled {
		if _, err := amqp.ParseURI(cfg.Events.URL); err != nil {
			r.fail("Events URL", err.Error())
		} else {
			r.pass("Events URL", "valid AMQP URI")
		}
	}

	if cfg.General.LogFile != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.General.LogFile), 0o755); err != nil {
			r.warn("Log file", fmt.Sprintf("cannot create log directory: %v", err))
		} else {
			r.pass("Log file", cfg.General.LogFile)
		}
	}
}

func (r *checkReport) finish() error {
	fmt.Fprintf(r.out, "\nResults: %d passed, %d warnings, %d failed\n", r.passed, r.warned, r.failed)
	if r.failed > 0 {
		return fmt.Errorf("%d check(s) failed", r.failed)
	}
	return nil
}

func checkPort(host string, port int) error {
	ln, err := net.Listen("tcp", net.JoinHostPort(host, fmt.Sprint(port)))
	if err != nil {
		return err
	}
	return ln.Close()
}
