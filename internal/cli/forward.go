package cli

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"devfwd/internal/adb"
	"devfwd/internal/events"
	"devfwd/internal/model"
	"devfwd/internal/profiles"
	"devfwd/internal/sessions"
)

func newForwardCmd() *cobra.Command {
	root := &cobra.Command{Use: "forward", Short: "Manage reverse port forwards"}

	var (
		serial      string
		pairArgs    []string
		profileName string
		wrapper     string
	)
	up := &cobra.Command{
		Use:   "up",
		Short: "Start reverse forwards on a device",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := adb.EnsureADBBinary(); err != nil {
				return err
			}
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			client := adb.New()
			resolved, err := resolveSerial(client, serial)
			if err != nil {
				return err
			}
			pairs, err := resolvePairs(pairArgs, profileName)
			if err != nil {
				return err
			}

			opener := sessions.NewADBOpener(cfg.Forwarder)
			opener.ToolWrapper = wrapper
			mgr := sessions.NewManager(opener)
			if err := mgr.LoadRuntime(); err != nil {
				slog.Warn("failed to load session runtime", "error", err)
			}

			journal := events.NewStore()
			rt, err := mgr.Start(resolved, pairs)
			if err != nil {
				appendEvent(journal, events.Event{
					Serial:    resolved,
					EventType: events.TypeSessionFailed,
					State:     rt.State,
					Message:   err.Error(),
				})
				return err
			}
			appendEvent(journal, events.Event{
				Serial:    resolved,
				EventType: events.TypeSessionStarted,
				State:     rt.State,
				Mapping:   rt.Mapping,
			})

			hostPorts := make([]int, 0, len(rt.Mapping))
			for hp := range rt.Mapping {
				hostPorts = append(hostPorts, hp)
			}
			sort.Ints(hostPorts)
			for _, hp := range hostPorts {
				fmt.Printf("forwarding device port %d -> host %s:%d\n", rt.Mapping[hp], cfg.Forwarder.BindAddr, hp)
			}
			fmt.Println("press Ctrl+C to stop")

			// The forwarder processes are children of this run; keep it
			// alive until interrupted, then tear everything down.
			waitForInterrupt(cmd.Context())
			mgr.StopAll()
			appendEvent(journal, events.Event{
				Serial:    resolved,
				EventType: events.TypeSessionStopped,
				State:     model.SessionClosed,
			})
			return nil
		},
	}
	up.Flags().StringVarP(&serial, "serial", "s", "", "device serial (required when multiple devices are attached)")
	up.Flags().StringArrayVarP(&pairArgs, "pair", "p", nil, "port pair devicePort:hostPort (0 device port = dynamic); repeatable")
	up.Flags().StringVar(&profileName, "profile", "", "use port pairs from a saved profile")
	up.Flags().StringVar(&wrapper, "tool-wrapper", "", "wrapper prefix for the device forwarder command")

	var jsonOut bool
	status := &cobra.Command{
		Use:   "status",
		Short: "Show recorded session status",
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr := sessions.NewManager(nil)
			if err := mgr.LoadRuntime(); err != nil {
				return err
			}
			sn := mgr.Snapshot()
			sort.Slice(sn, func(i, j int) bool { return sn[i].Serial < sn[j].Serial })
			if jsonOut {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(sn)
			}
			fmt.Printf("%-24s %-20s %-10s %s\n", "SERIAL", "STATE", "PAIRS", "LAST ERROR")
			for _, rt := range sn {
				fmt.Printf("%-24s %-20s %-10d %s\n", rt.Serial, rt.State, len(rt.Pairs), rt.LastError)
			}
			return nil
		},
	}
	status.Flags().BoolVar(&jsonOut, "json", false, "output JSON")

	root.AddCommand(up, status)
	return root
}

func resolvePairs(pairArgs []string, profileName string) ([]model.PortPair, error) {
	if profileName != "" {
		if len(pairArgs) > 0 {
			return nil, fmt.Errorf("use either --pair or --profile, not both")
		}
		def, err := profiles.Get(profileName)
		if err != nil {
			return nil, err
		}
		return def.Pairs, nil
	}
	if len(pairArgs) == 0 {
		return nil, fmt.Errorf("no port pairs given; use --pair or --profile")
	}
	return profiles.ParsePairs(pairArgs)
}

func newProfileCmd() *cobra.Command {
	root := &cobra.Command{Use: "profile", Short: "Manage saved port-pair profiles"}

	list := &cobra.Command{
		Use:   "list",
		Short: "List saved profiles",
		RunE: func(cmd *cobra.Command, args []string) error {
			defs, err := profiles.LoadAll()
			if err != nil {
				return err
			}
			fmt.Printf("%-20s %s\n", "NAME", "PAIRS")
			for _, def := range defs {
				fmt.Printf("%-20s", def.Name)
				for _, p := range def.Pairs {
					fmt.Printf(" %s", p)
				}
				fmt.Println()
			}
			return nil
		},
	}

	var pairArgs []string
	save := &cobra.Command{
		Use:   "save <name>",
		Short: "Save a named set of port pairs",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pairs, err := profiles.ParsePairs(pairArgs)
			if err != nil {
				return err
			}
			if err := profiles.Save(profiles.Definition{Name: args[0], Pairs: pairs}); err != nil {
				return err
			}
			fmt.Printf("saved profile %s\n", args[0])
			return nil
		},
	}
	save.Flags().StringArrayVarP(&pairArgs, "pair", "p", nil, "port pair devicePort:hostPort; repeatable")

	rm := &cobra.Command{
		Use:   "rm <name>",
		Short: "Delete a profile",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := profiles.Delete(args[0]); err != nil {
				return err
			}
			fmt.Printf("deleted profile %s\n", args[0])
			return nil
		},
	}

	root.AddCommand(list, save, rm)
	return root
}

func newEventsCmd() *cobra.Command {
	var (
		serial    string
		eventType string
		limit     int
		jsonOut   bool
	)
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Show the session event journal",
		RunE: func(cmd *cobra.Command, args []string) error {
			evts, err := events.NewStore().Read(events.Query{
				Serial:    serial,
				EventType: eventType,
				Limit:     limit,
			})
			if err != nil {
				return err
			}
			if jsonOut {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(evts)
			}
			for _, evt := range evts {
				fmt.Printf("%s %-18s %-24s %s\n",
					evt.Timestamp.Format(time.RFC3339), evt.EventType, evt.Serial, evt.Message)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&serial, "serial", "s", "", "filter by device serial")
	cmd.Flags().StringVar(&eventType, "type", "", "filter by event type")
	cmd.Flags().IntVar(&limit, "limit", 0, "show only the most recent N events")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "output JSON")
	return cmd
}

func appendEvent(journal *events.Store, evt events.Event) {
	if err := journal.Append(evt); err != nil {
		slog.Warn("failed to append event", "error", err)
	}
}
