package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"hwbot/internal/activity"
	"hwbot/internal/admin"
	"hwbot/internal/config"
	"hwbot/internal/route"
)

// openActivity opens the on-disk activity store named by the config.
// The memory backend only lives inside a running bot.
func openActivity(cfg *config.Config) (*activity.SQLiteStore, error) {
	if cfg.Store.Backend == activity.BackendMemory {
		return nil, fmt.Errorf("store backend is %q: there is no log to read outside the running bot", activity.BackendMemory)
	}
	return activity.NewSQLiteStore(cfg.Store.DBPath, cfg.General.SnippetLength, logger)
}

// withService runs fn against an admin service backed by the configured store.
// The local operator is always treated as an admin.
func withService(fn func(ctx context.Context, cfg *config.Config, svc *admin.Service) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := openActivity(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	svc := admin.NewService(admin.Config{
		Router: route.NewRouter(nil, logger),
		Store:  store,
		Logger: logger,
	})
	return fn(context.Background(), cfg, svc)
}

func logCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "log",
		Short: "Read and maintain the forwarding log",
	}

	var days int
	summary := &cobra.Command{
		Use:   "summary",
		Short: "Count forwarded homework per source group",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(func(ctx context.Context, cfg *config.Config, svc *admin.Service) error {
				s, err := svc.Summary(ctx, true, time.Duration(days)*24*time.Hour)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), admin.FormatSummary(s, days))
				return nil
			})
		},
	}
	summary.Flags().IntVar(&days, "days", 7, "summary window in days")
	cmd.AddCommand(summary)

	cmd.AddCommand(&cobra.Command{
		Use:   "senders",
		Short: "Show the latest sender per source group",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(func(ctx context.Context, cfg *config.Config, svc *admin.Service) error {
				records, err := svc.ListSenders(ctx, true)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), admin.FormatSenders(records, cfg.Location()))
				return nil
			})
		},
	})

	var limit int
	tail := &cobra.Command{
		Use:   "tail",
		Short: "Print the most recent forwarded log entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			store, err := openActivity(cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			entries, err := store.ForwardedLog(context.Background(), limit)
			if err != nil {
				return err
			}
			loc := cfg.Location()
			for _, e := range entries {
				fmt.Fprintf(cmd.OutOrStdout(), "%s  %d  %s\n",
					e.ForwardedAt.In(loc).Format("2006-01-02 15:04:05"), e.SourceID, e.Snippet)
			}
			return nil
		},
	}
	tail.Flags().IntVarP(&limit, "limit", "n", 20, "number of entries (0 for all)")
	cmd.AddCommand(tail)

	cmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Clear the forwarded homework log",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(func(ctx context.Context, cfg *config.Config, svc *admin.Service) error {
				if err := svc.ClearForwardedLog(ctx, true); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Homework log cleared.")
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "clear-senders",
		Short: "Clear sender activity",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(func(ctx context.Context, cfg *config.Config, svc *admin.Service) error {
				if err := svc.ClearSenderActivity(ctx, true); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Sender activity cleared.")
				return nil
			})
		},
	})

	return cmd
}
