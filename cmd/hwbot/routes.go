package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"hwbot/internal/route"
)

func routesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "routes",
		Short: "Inspect the route table",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "check [routes]",
		Short: "Validate route text (e.g. \"-1001:-2001+-2002,-1002:-2003\")",
		Long:  "Parses the given route text, or the configured routes when none is given, and prints the resulting table.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text := strings.Join(args, "")
			if len(args) == 0 {
				cfg, err := loadConfig()
				if err != nil {
					return err
				}
				text = cfg.Routing.Routes
			}
			table, err := route.Parse(text)
			if err != nil {
				return err
			}
			printTable(cmd, table)
			fmt.Fprintf(cmd.OutOrStdout(), "OK: %d source groups\n", table.Len())
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show the configured route table",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			table, err := route.Parse(cfg.Routing.Routes)
			if err != nil {
				return err
			}
			printTable(cmd, table)
			return nil
		},
	})

	return cmd
}

func printTable(cmd *cobra.Command, table *route.Table) {
	out := cmd.OutOrStdout()
	if table.Len() == 0 {
		fmt.Fprintln(out, "(no routes)")
		return
	}
	for _, src := range table.Sources() {
		dests, _ := table.Lookup(src)
		parts := make([]string, len(dests))
		for i, d := range dests {
			parts[i] = fmt.Sprint(d)
		}
		fmt.Fprintf(out, "%d -> %s\n", src, strings.Join(parts, ", "))
	}
}
