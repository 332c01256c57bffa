package ui

import (
	"fmt"
	"sort"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"devfwd/internal/adb"
	"devfwd/internal/appconfig"
	"devfwd/internal/history"
	"devfwd/internal/model"
	"devfwd/internal/profiles"
	"devfwd/internal/sessions"
	"devfwd/internal/util"
)

type tickMsg time.Time

type statusMsg string

type modelUI struct {
	devices    []model.DeviceEntry
	filtered   []model.DeviceEntry
	sel        int
	filter     string
	filterMode bool
	showHelp   bool
	status     string
	sessions   []model.SessionRuntime
	profs      []profiles.Definition
	form       *forwardForm
	width      int
	height     int
	cfg        appconfig.Config
	mgr        *sessions.Manager
	client     *adb.Client
}

func initialModel() modelUI {
	cfg, _ := appconfig.Load()
	client := adb.New()
	mgr := sessions.NewManager(sessions.NewADBOpener(cfg.Forwarder))
	_ = mgr.LoadRuntime()
	m := modelUI{cfg: cfg, mgr: mgr, client: client}
	m.reload()
	m.status = "Ready. Select a device, then Enter for a shell, f to toggle forwards, n for a custom forward."
	return m
}

func (m *modelUI) reload() {
	devices, err := m.client.AttachedDevices()
	if err != nil {
		m.status = "device list error: " + err.Error()
		return
	}
	if lastUsed, err := history.LastUsed(); err == nil {
		devices = history.SortDevicesRecent(devices, lastUsed)
	} else {
		sort.Slice(devices, func(i, j int) bool { return devices[i].Serial < devices[j].Serial })
	}
	m.devices = devices
	m.profs, _ = profiles.LoadAll()
	m.applyFilter()
	m.sessions = m.mgr.Snapshot()
}

func (m *modelUI) applyFilter() {
	if strings.TrimSpace(m.filter) == "" {
		m.filtered = append([]model.DeviceEntry(nil), m.devices...)
	} else {
		f := strings.ToLower(strings.TrimSpace(m.filter))
		m.filtered = nil
		for _, d := range m.devices {
			if strings.Contains(strings.ToLower(d.Serial), f) || strings.Contains(strings.ToLower(d.ModelID), f) {
				m.filtered = append(m.filtered, d)
			}
		}
	}
	if m.sel >= len(m.filtered) {
		m.sel = len(m.filtered) - 1
	}
	if m.sel < 0 {
		m.sel = 0
	}
}

func tickCmd(seconds int) tea.Cmd {
	if seconds <= 0 {
		seconds = 3
	}
	return tea.Tick(time.Duration(seconds)*time.Second, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m modelUI) Init() tea.Cmd {
	return tickCmd(m.cfg.UI.RefreshSeconds)
}

func (m modelUI) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tickMsg:
		m.sessions = m.mgr.Snapshot()
		return m, tickCmd(m.cfg.UI.RefreshSeconds)
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil
	case tea.KeyMsg:
		if m.form != nil {
			return m.updateForm(msg)
		}
		if m.filterMode {
			switch msg.String() {
			case "enter", "esc":
				m.filterMode = false
				m.applyFilter()
				return m, nil
			case "backspace":
				if len(m.filter) > 0 {
					m.filter = m.filter[:len(m.filter)-1]
				}
				m.applyFilter()
				return m, nil
			default:
				if len(msg.String()) == 1 {
					m.filter += msg.String()
					m.applyFilter()
				}
				return m, nil
			}
		}
		switch msg.String() {
		case "q", "ctrl+c":
			m.mgr.StopAll()
			return m, tea.Quit
		case "j", "down":
			if m.sel < len(m.filtered)-1 {
				m.sel++
			}
		case "k", "up":
			if m.sel > 0 {
				m.sel--
			}
		case "/":
			m.filterMode = true
			m.status = "Filter mode: type and press Enter"
		case "?":
			m.showHelp = !m.showHelp
		case "r":
			m.reload()
			m.status = "Refreshed device list and session status"
		case "enter":
			if len(m.filtered) == 0 {
				break
			}
			d := m.filtered[m.sel]
			cmd := m.client.NewDevice(d.Serial).ShellCommand()
			return m, tea.ExecProcess(cmd, func(err error) tea.Msg {
				if err != nil {
					return statusMsg("shell exited: " + err.Error())
				}
				return statusMsg("shell session closed")
			})
		case "f":
			if len(m.filtered) == 0 {
				break
			}
			m.toggleForward(m.filtered[m.sel])
		case "n":
			if len(m.filtered) == 0 {
				break
			}
			m.form = newForwardForm(m.filtered[m.sel].Serial)
		}
	case statusMsg:
		m.status = string(msg)
	}
	return m, nil
}

// toggleForward stops the selected device's session if one is live, or
// starts one from the first saved profile.
func (m *modelUI) toggleForward(d model.DeviceEntry) {
	if m.mgr.HasLive(d.Serial) {
		_ = m.mgr.Stop(d.Serial)
		m.status = "Forwards stopped for " + d.Serial
		m.sessions = m.mgr.Snapshot()
		return
	}
	if len(m.profs) == 0 {
		m.status = "No saved profiles. Press n to enter port pairs, or save one with `devfwd profile save`."
		return
	}
	def := m.profs[0]
	rt, err := m.mgr.Start(d.Serial, def.Pairs)
	if err != nil {
		m.status = "Forward start failed: " + err.Error()
	} else {
		m.status = fmt.Sprintf("Forwards up for %s via profile %s (%d mapped)", d.Serial, def.Name, len(rt.Mapping))
		_ = history.Touch(d.Serial)
	}
	m.sessions = m.mgr.Snapshot()
}

func (m modelUI) updateForm(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	done, result, cmd := m.form.update(msg)
	if !done {
		return m, cmd
	}
	serial := m.form.serial
	m.form = nil
	if result == nil {
		m.status = "Forward cancelled"
		return m, nil
	}
	if result.saveName != "" {
		if err := profiles.Save(profiles.Definition{Name: result.saveName, Pairs: result.pairs}); err != nil {
			m.status = "Profile save failed: " + err.Error()
			return m, nil
		}
		m.profs, _ = profiles.LoadAll()
	}
	rt, err := m.mgr.Start(serial, result.pairs)
	if err != nil {
		m.status = "Forward start failed: " + err.Error()
	} else {
		m.status = fmt.Sprintf("Forwards up for %s (%d mapped)", serial, len(rt.Mapping))
		_ = history.Touch(serial)
	}
	m.sessions = m.mgr.Snapshot()
	return m, nil
}

func (m modelUI) View() string {
	if m.form != nil {
		return m.form.view(m.effectiveWidth())
	}

	head := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39")).Render("devfwd Dashboard")
	subhead := fmt.Sprintf("devices=%d shown=%d sessions=%d refresh=%ds",
		len(m.devices), len(m.filtered), len(m.sessions), clampRefresh(m.cfg.UI.RefreshSeconds))

	left := strings.Builder{}
	left.WriteString("j/k to navigate; [F] means live forwards.\n")
	for i, d := range m.filtered {
		cursor := " "
		if i == m.sel {
			cursor = ">"
		}
		mark := " "
		if m.mgr.HasLive(d.Serial) {
			mark = "F"
		}
		left.WriteString(fmt.Sprintf("%s[%s] %-24s %-12s %s\n", cursor, mark, d.Serial, d.State, d.ModelID))
	}
	if len(m.filtered) == 0 {
		left.WriteString("  (no devices matched)\n")
	}

	detail := strings.Builder{}
	if len(m.filtered) > 0 {
		d := m.filtered[m.sel]
		detail.WriteString(fmt.Sprintf("Serial: %s\nState: %s\nProduct: %s\nModel: %s\n",
			d.Serial, d.State, util.EmptyDash(d.Product), util.EmptyDash(d.ModelID)))
		detail.WriteString("\nProfiles:\n")
		if len(m.profs) == 0 {
			detail.WriteString("  (none saved)\n")
		}
		for _, def := range m.profs {
			specs := make([]string, 0, len(def.Pairs))
			for _, p := range def.Pairs {
				specs = append(specs, p.String())
			}
			detail.WriteString(fmt.Sprintf("  %s: %s\n", def.Name, strings.Join(specs, " ")))
		}
	} else {
		detail.WriteString("Pick a device to view forward options.\n")
	}

	tbl := strings.Builder{}
	tbl.WriteString(fmt.Sprintf("%-24s %-20s %-24s %-8s\n", "SERIAL", "STATE", "MAPPING", "LAT"))
	for _, rt := range m.sessions {
		tbl.WriteString(fmt.Sprintf("%-24s %-20s %-24s %-8d\n",
			rt.Serial, rt.State, mappingSummary(rt.Mapping), rt.LatencyMS))
	}
	if len(m.sessions) == 0 {
		tbl.WriteString("(none)\n")
	}

	filterLine := fmt.Sprintf("Filter: %s", m.filter)
	if m.filterMode {
		filterLine += " (typing...)"
	}
	quickHelp := "Keys: Enter shell | f toggle forwards | n custom forward | / filter | r refresh | ? help | q quit"

	main := m.renderMainPanels(left.String(), detail.String())
	sessionsPanel := m.renderPanel("Active Sessions", tbl.String(), m.effectiveWidth(), lipgloss.Color("63"))
	status := m.renderPanel("Status", m.status, m.effectiveWidth(), lipgloss.Color("205"))
	help := ""
	if m.showHelp {
		help = m.renderPanel("Help", m.helpBlock(), m.effectiveWidth(), lipgloss.Color("244"))
	}
	return lipgloss.JoinVertical(
		lipgloss.Left,
		head,
		subhead,
		filterLine,
		quickHelp,
		main,
		sessionsPanel,
		help,
		status,
	)
}

// Run starts the dashboard.
func Run() error {
	if err := adb.EnsureADBBinary(); err != nil {
		return err
	}
	p := tea.NewProgram(initialModel(), tea.WithAltScreen())
	_, err := p.Run()
	return err
}

func mappingSummary(mapping map[int]int) string {
	if len(mapping) == 0 {
		return "-"
	}
	hostPorts := make([]int, 0, len(mapping))
	for hp := range mapping {
		hostPorts = append(hostPorts, hp)
	}
	sort.Ints(hostPorts)
	parts := make([]string, 0, len(hostPorts))
	for _, hp := range hostPorts {
		parts = append(parts, fmt.Sprintf("%d<-%d", hp, mapping[hp]))
	}
	return strings.Join(parts, " ")
}

func clampRefresh(seconds int) int {
	if seconds <= 0 {
		return 3
	}
	return seconds
}

func (m modelUI) renderMainPanels(devicesPanel, detailsPanel string) string {
	width := m.effectiveWidth()
	if width < 96 {
		return lipgloss.JoinVertical(
			lipgloss.Left,
			m.renderPanel("Devices", devicesPanel, width, lipgloss.Color("39")),
			m.renderPanel("Details", detailsPanel, width, lipgloss.Color("69")),
		)
	}
	leftWidth := width / 2
	rightWidth := width - leftWidth
	return lipgloss.JoinHorizontal(
		lipgloss.Top,
		m.renderPanel("Devices", devicesPanel, leftWidth, lipgloss.Color("39")),
		m.renderPanel("Details", detailsPanel, rightWidth, lipgloss.Color("69")),
	)
}

func (m modelUI) helpBlock() string {
	return strings.Join([]string{
		"  Navigation: j/k or arrow keys move selection.",
		"  Filtering: press /, type serial/model text, then Enter.",
		"  Shell: press Enter on the selected device.",
		"  Forwards: f toggles the first saved profile; n opens the custom forward form.",
		"  Refresh: press r to relist devices and refresh the session snapshot.",
		"  Quit: press q (or Ctrl+C) and all managed sessions are stopped.",
	}, "\n")
}

func (m modelUI) effectiveWidth() int {
	if m.width <= 0 {
		return 100
	}
	return m.width
}

func (m modelUI) renderPanel(title, body string, width int, accent lipgloss.Color) string {
	if width < 24 {
		width = 24
	}
	header := lipgloss.NewStyle().Bold(true).Foreground(accent).Render(title)
	content := strings.TrimSuffix(body, "\n")
	panel := strings.TrimSpace(header + "\n" + content)
	return lipgloss.NewStyle().
		Width(width).
		Border(lipgloss.RoundedBorder()).
		BorderForeground(accent).
		Padding(0, 1).
		Render(panel)
}
