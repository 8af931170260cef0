package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/cairnscript/cairn-core/runtime"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	headerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB"))

	hotStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	coolStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#98FB98"))

	resultStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#90EE90"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

type modelState int

const (
	stateTable modelState = iota
	stateEditQuota
)

type inspectModel struct {
	rt       *runtime.Runtime
	workload int
	quota    textinput.Model
	state    modelState
	status   string
	err      error
}

type workloadDoneMsg struct {
	err error
}

func newInspectModel(rt *runtime.Runtime, workload int) *inspectModel {
	ti := textinput.New()
	ti.Placeholder = "bytes (0 = unlimited)"
	ti.Prompt = "quota: "
	ti.Width = 24
	return &inspectModel{rt: rt, workload: workload, quota: ti}
}

func (m *inspectModel) Init() tea.Cmd {
	return nil
}

func (m *inspectModel) runWorkload() tea.Msg {
	return workloadDoneMsg{err: churn(m.rt, m.workload)}
}

func (m *inspectModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if m.state == stateEditQuota {
			switch msg.String() {
			case "enter":
				m.applyQuota()
				m.state = stateTable
			case "esc":
				m.state = stateTable
			default:
				var cmd tea.Cmd
				m.quota, cmd = m.quota.Update(msg)
				return m, cmd
			}
			return m, nil
		}

		switch msg.String() {
		case "ctrl+c", "q":
			return m, tea.Quit
		case "r":
			m.status = "refreshed"
			m.err = nil
		case "w":
			m.status = fmt.Sprintf("running workload of %d series...", m.workload)
			return m, m.runWorkload
		case "g":
			m.quota.SetValue("")
			m.quota.Focus()
			m.state = stateEditQuota
		}

	case workloadDoneMsg:
		if msg.err != nil {
			m.err = msg.err
			m.status = ""
		} else {
			m.status = "workload complete"
			m.err = nil
		}
	}
	return m, nil
}

// applyQuota lets the user watch quota refusals happen live.
func (m *inspectModel) applyQuota() {
	v, err := strconv.ParseUint(strings.TrimSpace(m.quota.Value()), 10, 64)
	if err != nil {
		m.err = fmt.Errorf("quota: %w", err)
		return
	}
	m.rt.Accountant().SetLimit(v)
	m.status = fmt.Sprintf("quota set to %d bytes", v)
	m.err = nil
}

func (m *inspectModel) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("Memory Core Inspector"))
	b.WriteString("\n\n")

	acct := m.rt.Accountant()
	b.WriteString(fmt.Sprintf("usage %d bytes", acct.Usage()))
	if acct.Limit() != 0 {
		b.WriteString(fmt.Sprintf(" of %d quota", acct.Limit()))
	}
	b.WriteString(fmt.Sprintf("  •  data stack %d  •  frames %d\n\n",
		m.rt.Data().Depth(), m.rt.Frames().Depth()))

	b.WriteString(headerStyle.Render(fmt.Sprintf("%8s %10s %10s %6s %6s",
		"wide", "in-use", "total", "segs", "load")))
	b.WriteString("\n")
	for _, ps := range m.rt.Stats() {
		inUse := ps.Has - ps.Free
		pct := 0
		if ps.Has != 0 {
			pct = inUse * 100 / ps.Has
		}
		line := fmt.Sprintf("%8d %10d %10d %6d %5d%%",
			ps.Wide, inUse, ps.Has, ps.Segments, pct)
		if pct >= 80 {
			b.WriteString(hotStyle.Render(line))
		} else {
			b.WriteString(coolStyle.Render(line))
		}
		b.WriteString("\n")
	}
	b.WriteString("\n")

	if m.state == stateEditQuota {
		b.WriteString(m.quota.View())
		b.WriteString("\n\n")
		b.WriteString(helpStyle.Render("enter apply • esc cancel"))
		return b.String()
	}

	if m.err != nil {
		b.WriteString(errorStyle.Render(fmt.Sprintf("Error: %v", m.err)))
		b.WriteString("\n")
	} else if m.status != "" {
		b.WriteString(resultStyle.Render(m.status))
		b.WriteString("\n")
	}
	b.WriteString(helpStyle.Render("w workload • g quota • r refresh • q quit"))
	return b.String()
}

func runInteractive(cfg runtime.Config, workload int) error {
	rt, err := runtime.New(cfg)
	if err != nil {
		return err
	}
	defer rt.Close()

	p := tea.NewProgram(newInspectModel(rt, workload), tea.WithAltScreen())
	_, err = p.Run()
	return err
}
