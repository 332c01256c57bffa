package ui

import (
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"devfwd/internal/model"
	"devfwd/internal/profiles"
)

// Field indices for the custom forward form.
const (
	fieldPairs = iota
	fieldSaveName
	fieldCount
)

// formResult is returned when the user completes the form.
type formResult struct {
	pairs    []model.PortPair
	saveName string // non-empty = also save as a profile
}

// forwardForm collects port pairs (and an optional profile name) for a
// one-off forward on one device.
type forwardForm struct {
	serial   string
	fields   []textinput.Model
	focusIdx int
	errMsg   string
}

func newForwardForm(serial string) *forwardForm {
	pairsInput := textinput.New()
	pairsInput.Placeholder = "0:8080 9000:8081"
	pairsInput.Prompt = "Pairs (devicePort:hostPort, space-separated): "
	pairsInput.Focus()

	nameInput := textinput.New()
	nameInput.Placeholder = "leave empty to skip"
	nameInput.Prompt = "Save as profile: "

	return &forwardForm{
		serial: serial,
		fields: []textinput.Model{pairsInput, nameInput},
	}
}

// update handles one key. Returns done=true when the form is finished;
// result is nil on cancel.
func (f *forwardForm) update(msg tea.KeyMsg) (done bool, result *formResult, cmd tea.Cmd) {
	switch msg.String() {
	case "esc":
		return true, nil, nil
	case "tab", "shift+tab", "down", "up":
		if msg.String() == "shift+tab" || msg.String() == "up" {
			f.focusIdx--
		} else {
			f.focusIdx++
		}
		if f.focusIdx < 0 {
			f.focusIdx = fieldCount - 1
		}
		if f.focusIdx >= fieldCount {
			f.focusIdx = 0
		}
		for i := range f.fields {
			if i == f.focusIdx {
				f.fields[i].Focus()
			} else {
				f.fields[i].Blur()
			}
		}
		return false, nil, nil
	case "enter":
		pairs, err := profiles.ParsePairs(strings.Fields(f.fields[fieldPairs].Value()))
		if err != nil {
			f.errMsg = err.Error()
			return false, nil, nil
		}
		if len(pairs) == 0 {
			f.errMsg = "enter at least one port pair"
			return false, nil, nil
		}
		return true, &formResult{
			pairs:    pairs,
			saveName: strings.TrimSpace(f.fields[fieldSaveName].Value()),
		}, nil
	}
	f.fields[f.focusIdx], cmd = f.fields[f.focusIdx].Update(msg)
	return false, nil, cmd
}

func (f *forwardForm) view(width int) string {
	var b strings.Builder
	b.WriteString(lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39")).
		Render("New forward for " + f.serial))
	b.WriteString("\n\n")
	for i := range f.fields {
		b.WriteString(f.fields[i].View())
		b.WriteString("\n")
	}
	if f.errMsg != "" {
		b.WriteString("\n" + lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Render(f.errMsg))
	}
	b.WriteString("\n\nTab switches fields, Enter starts, Esc cancels.")
	if width < 24 {
		width = 24
	}
	return lipgloss.NewStyle().
		Width(width).
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("69")).
		Padding(0, 1).
		Render(b.String())
}
