package main

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/spf13/cobra"
)

const serviceName = "hwbot"

func daemonCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Manage the systemd user service running hwbot serve",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "install",
		Short: "Install hwbot as a systemd user service",
		RunE: func(cmd *cobra.Command, args []string) error {
			if runtime.GOOS != "linux" {
				return fmt.Errorf("unsupported OS: %s (systemd only)", runtime.GOOS)
			}
			execPath, err := os.Executable()
			if err != nil {
				return fmt.Errorf("cannot determine executable path: %w", err)
			}
			workDir, err := os.Getwd()
			if err != nil {
				return err
			}
			envPath, err := filepath.Abs(envFile)
			if err != nil {
				return err
			}

			unitPath := systemdUnitPath()
			if err := os.MkdirAll(filepath.Dir(unitPath), 0o755); err != nil {
				return err
			}
			unit := systemdUnit(execPath, resolveConfigPath(), envPath, workDir)
			if err := os.WriteFile(unitPath, []byte(unit), 0o644); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Service installed: %s\n", unitPath)
			fmt.Fprintf(out, "To start:  systemctl --user start %s\n", serviceName)
			fmt.Fprintf(out, "To enable: systemctl --user enable %s\n", serviceName)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "uninstall",
		Short: "Remove the systemd user service",
		RunE: func(cmd *cobra.Command, args []string) error {
			unitPath := systemdUnitPath()
			if err := os.Remove(unitPath); err != nil {
				return fmt.Errorf("remove unit: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Service removed: %s\n", unitPath)
			return nil
		},
	})

	return cmd
}

func systemdUnitPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "systemd", "user", serviceName+".service")
}

// systemdUnit renders the unit file for `hwbot serve`.
func systemdUnit(execPath, cfgPath, envPath, workDir string) string {
	r := strings.NewReplacer(
		"{{EXEC}}", execPath,
		"{{CONFIG}}", cfgPath,
		"{{ENV}}", envPath,
		"{{DIR}}", workDir,
	)
	return r.Replace(systemdTemplate)
}

const systemdTemplate = `[Unit]
Description=hwbot homework forwarding bot
After=network-online.target
Wants=network-online.target

[Service]
Type=simple
WorkingDirectory={{DIR}}
ExecStart={{EXEC}} serve --config {{CONFIG}} --env-file {{ENV}}
Restart=on-failure
RestartSec=5

[Install]
WantedBy=default.target
`
