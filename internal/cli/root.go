// Package cli provides the command-line interface for devfwd.
package cli

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"devfwd/internal/adb"
	"devfwd/internal/appconfig"
	"devfwd/internal/doctor"
	"devfwd/internal/events"
	"devfwd/internal/history"
	"devfwd/internal/ui"
	"devfwd/internal/util"
)

// NewRootCommand creates the root cobra command.
func NewRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "devfwd",
		Short: "Reverse port-forward manager for adb-attached devices",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ui.Run()
		},
	}

	root.AddCommand(newDevicesCmd())
	root.AddCommand(newForwardCmd())
	root.AddCommand(newScreenshotCmd())
	root.AddCommand(newShellCmd())
	root.AddCommand(newProfileCmd())
	root.AddCommand(newEventsCmd())
	root.AddCommand(newDoctorCmd())
	return root
}

func newDevicesCmd() *cobra.Command {
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "devices",
		Short: "List attached devices",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := adb.EnsureADBBinary(); err != nil {
				return err
			}
			devices, err := adb.New().AttachedDevices()
			if err != nil {
				return err
			}
			if lastUsed, err := history.LastUsed(); err == nil {
				devices = history.SortDevicesRecent(devices, lastUsed)
			}
			if jsonOut {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(devices)
			}
			fmt.Printf("%-24s %-14s %-20s %s\n", "SERIAL", "STATE", "PRODUCT", "MODEL")
			for _, d := range devices {
				fmt.Printf("%-24s %-14s %-20s %s\n", d.Serial, d.State, util.EmptyDash(d.Product), util.EmptyDash(d.ModelID))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "output JSON")
	return cmd
}

func newScreenshotCmd() *cobra.Command {
	var serial, file string
	cmd := &cobra.Command{
		Use:   "screenshot",
		Short: "Capture a device screenshot to a local PNG",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := adb.EnsureADBBinary(); err != nil {
				return err
			}
			client := adb.New()
			resolved, err := resolveSerial(client, serial)
			if err != nil {
				return err
			}
			abs, err := filepath.Abs(file)
			if err != nil {
				return err
			}
			if err := client.NewDevice(resolved).Screenshot(abs); err != nil {
				return err
			}
			if err := events.NewStore().Append(events.Event{
				Serial:    resolved,
				EventType: events.TypeScreenshot,
				Message:   abs,
			}); err != nil {
				slog.Warn("failed to append event", "error", err)
			}
			fmt.Printf("saved %s\n", abs)
			return nil
		},
	}
	cmd.Flags().StringVarP(&serial, "serial", "s", "", "device serial (required when multiple devices are attached)")
	cmd.Flags().StringVarP(&file, "file", "f", "Screenshot.png", "output file")
	return cmd
}

func newShellCmd() *cobra.Command {
	var serial string
	cmd := &cobra.Command{
		Use:   "shell",
		Short: "Open an interactive shell on a device",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := adb.EnsureADBBinary(); err != nil {
				return err
			}
			client := adb.New()
			resolved, err := resolveSerial(client, serial)
			if err != nil {
				return err
			}
			if err := history.Touch(resolved); err != nil {
				slog.Warn("failed to record device history", "error", err)
			}
			return client.NewDevice(resolved).RunInteractive(cmd.Context())
		},
	}
	cmd.Flags().StringVarP(&serial, "serial", "s", "", "device serial (required when multiple devices are attached)")
	return cmd
}

func newDoctorCmd() *cobra.Command {
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Run local environment diagnostics",
		RunE: func(cmd *cobra.Command, args []string) error {
			report, err := doctor.Run()
			if err != nil {
				return err
			}
			if jsonOut {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(report)
			}
			if len(report.Issues) == 0 {
				fmt.Println("no issues found")
				return nil
			}
			for _, issue := range report.Issues {
				fmt.Printf("[%s] %s %s: %s\n    -> %s\n",
					issue.Severity, issue.Check, issue.Target, issue.Message, issue.Recommendation)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "output JSON")
	return cmd
}

// resolveSerial picks the device to operate on. An explicit serial always
// wins; otherwise exactly one online device must be attached.
func resolveSerial(client *adb.Client, serial string) (string, error) {
	if serial != "" {
		return serial, nil
	}
	devices, err := client.AttachedDevices()
	if err != nil {
		return "", err
	}
	var online []string
	for _, d := range devices {
		if d.Online() {
			online = append(online, d.Serial)
		}
	}
	switch len(online) {
	case 0:
		return "", fmt.Errorf("no online devices attached")
	case 1:
		return online[0], nil
	default:
		return "", fmt.Errorf("multiple devices are attached; specify --serial")
	}
}

// loadConfig wraps appconfig.Load with a uniform error.
func loadConfig() (appconfig.Config, error) {
	cfg, err := appconfig.Load()
	if err != nil {
		return appconfig.Config{}, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}
