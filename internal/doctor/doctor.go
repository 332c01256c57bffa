package doctor

import (
	"fmt"
	"os"
	"os/exec"
	"sort"

	"devfwd/internal/adb"
	"devfwd/internal/appconfig"
	"devfwd/internal/model"
	"devfwd/internal/profiles"
	"devfwd/internal/sessions"
)

type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

type Issue struct {
	Severity       Severity `json:"severity"`
	Check          string   `json:"check"`
	Target         string   `json:"target"`
	Message        string   `json:"message"`
	Recommendation string   `json:"recommendation"`
}

type Report struct {
	Issues []Issue `json:"issues"`
}

// Run executes local diagnostics for devfwd operations.
func Run() (Report, error) {
	var issues []Issue

	if err := adb.EnsureADBBinary(); err != nil {
		issues = append(issues, Issue{
			Severity:       SeverityHigh,
			Check:          "adb-binary",
			Target:         "PATH",
			Message:        err.Error(),
			Recommendation: "install Android platform tools and ensure `adb` is on PATH",
		})
	}

	cfg, err := appconfig.Load()
	if err != nil {
		issues = append(issues, Issue{
			Severity:       SeverityHigh,
			Check:          "config-load",
			Target:         "config.yaml",
			Message:        err.Error(),
			Recommendation: "fix or remove the malformed config file",
		})
	} else {
		issues = append(issues, binaryIssues(cfg.Forwarder)...)
	}

	if defs, err := profiles.LoadAll(); err == nil {
		issues = append(issues, duplicateHostPortIssues(defs)...)
	}

	mgr := sessions.NewManager(nil)
	if err := mgr.LoadRuntime(); err == nil {
		for _, rt := range mgr.Snapshot() {
			if rt.State == model.SessionClosed && rt.LastError != "" {
				issues = append(issues, Issue{
					Severity:       SeverityLow,
					Check:          "runtime-stale",
					Target:         rt.Serial,
					Message:        fmt.Sprintf("last session ended with: %s", rt.LastError),
					Recommendation: "inspect with `devfwd events` and restart the forward if needed",
				})
			}
		}
	}

	sort.Slice(issues, func(i, j int) bool {
		ri := severityRank(issues[i].Severity)
		rj := severityRank(issues[j].Severity)
		if ri != rj {
			return ri > rj
		}
		if issues[i].Check != issues[j].Check {
			return issues[i].Check < issues[j].Check
		}
		if issues[i].Target != issues[j].Target {
			return issues[i].Target < issues[j].Target
		}
		return issues[i].Message < issues[j].Message
	})
	return Report{Issues: issues}, nil
}

func binaryIssues(cfg appconfig.ForwarderConfig) []Issue {
	var issues []Issue
	if _, err := exec.LookPath(cfg.HostBinary); err != nil {
		issues = append(issues, Issue{
			Severity:       SeverityHigh,
			Check:          "host-binary",
			Target:         cfg.HostBinary,
			Message:        "host forwarder binary not found",
			Recommendation: "build host_forwarder and set forwarder.host_binary in config.yaml",
		})
	}
	if _, err := os.Stat(cfg.DeviceBinary); err != nil {
		if _, lerr := exec.LookPath(cfg.DeviceBinary); lerr != nil {
			issues = append(issues, Issue{
				Severity:       SeverityHigh,
				Check:          "device-binary",
				Target:         cfg.DeviceBinary,
				Message:        "device forwarder binary not found",
				Recommendation: "build device_forwarder and set forwarder.device_binary in config.yaml",
			})
		}
	}
	return issues
}

func duplicateHostPortIssues(defs []profiles.Definition) []Issue {
	seen := map[int][]string{}
	for _, def := range defs {
		for _, p := range def.Pairs {
			seen[p.HostPort] = append(seen[p.HostPort], def.Name)
		}
	}
	var issues []Issue
	for port, names := range seen {
		if len(names) < 2 {
			continue
		}
		issues = append(issues, Issue{
			Severity:       SeverityMedium,
			Check:          "duplicate-host-port",
			Target:         fmt.Sprintf("%d", port),
			Message:        fmt.Sprintf("host port is requested by %d profiles", len(names)),
			Recommendation: "use unique host ports per profile to avoid startup conflicts when run together",
		})
	}
	return issues
}

func severityRank(s Severity) int {
	switch s {
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	default:
		return 1
	}
}
