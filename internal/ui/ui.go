// Package ui implements the devdeck terminal dashboard.
package ui

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/treykane/devdeck/internal/healthcheck"
	"github.com/treykane/devdeck/internal/model"
	"github.com/treykane/devdeck/internal/security"
	"github.com/treykane/devdeck/internal/util"
)

// toggleTimeout bounds a reconnect that has to wait for the previous ssh
// process to die.
const toggleTimeout = 15 * time.Second

var (
	connectedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	idleStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	downStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	errorStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
)

// Supervisor is what the dashboard needs from *tunnel.Supervisor.
type Supervisor interface {
	List() []model.TunnelStatus
	Specs() []model.TunnelSpec
	Toggle(ctx context.Context, name string, desired model.DesiredState) error
	Extend(specs []model.TunnelSpec) error
}

// Options wires the dashboard to the rest of devdeck.
type Options struct {
	Supervisor     Supervisor
	RefreshSeconds int
	// Health runs one round of healthchecks. Nil hides the health panel.
	Health func(ctx context.Context) []healthcheck.SectionResult
	// ConnectCommand builds the interactive ssh command for a tunnel.
	ConnectCommand func(spec model.TunnelSpec) *exec.Cmd
	// Persist writes a tunnel added from the dashboard to config.yaml.
	Persist func(spec model.TunnelSpec) error
}

type (
	tickMsg    time.Time
	statusMsg  string
	tunnelsMsg struct {
		statuses []model.TunnelStatus
		specs    []model.TunnelSpec
	}
	healthMsg  []healthcheck.SectionResult
	toggledMsg struct {
		name    string
		desired model.DesiredState
		err     error
	}
	addedMsg struct {
		spec    model.TunnelSpec
		err     error
		saveErr error
	}
)

type modelUI struct {
	opts Options

	tunnels []model.TunnelStatus
	specs   map[string]model.TunnelSpec
	pending map[string]model.DesiredState
	health  []healthcheck.SectionResult
	probing bool

	sel    int
	status string
	form   *newTunnelForm

	keys   keyMap
	help   help.Model
	width  int
	height int
}

func newModel(opts Options) modelUI {
	if opts.RefreshSeconds <= 0 {
		opts.RefreshSeconds = util.DefaultRefreshSeconds
	}
	m := modelUI{
		opts:    opts,
		specs:   map[string]model.TunnelSpec{},
		pending: map[string]model.DesiredState{},
		keys:    defaultKeys(),
		help:    help.New(),
		probing: opts.Health != nil,
		status:  "Ready. Space toggles the selected tunnel, Enter opens an ssh session.",
	}
	return m
}

func tickCmd(seconds int) tea.Cmd {
	return tea.Tick(time.Duration(seconds)*time.Second, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m modelUI) listCmd() tea.Cmd {
	sup := m.opts.Supervisor
	return func() tea.Msg {
		return tunnelsMsg{statuses: sup.List(), specs: sup.Specs()}
	}
}

func (m modelUI) healthCmd() tea.Cmd {
	probe := m.opts.Health
	if probe == nil {
		return nil
	}
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return healthMsg(probe(ctx))
	}
}

func (m modelUI) toggleCmd(name string, desired model.DesiredState) tea.Cmd {
	sup := m.opts.Supervisor
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), toggleTimeout)
		defer cancel()
		return toggledMsg{name: name, desired: desired, err: sup.Toggle(ctx, name, desired)}
	}
}

func (m modelUI) addCmd(res formResult) tea.Cmd {
	sup, persist := m.opts.Supervisor, m.opts.Persist
	return func() tea.Msg {
		if err := sup.Extend([]model.TunnelSpec{res.spec}); err != nil {
			return addedMsg{spec: res.spec, err: err}
		}
		var saveErr error
		if res.save && persist != nil {
			saveErr = persist(res.spec)
		}
		return addedMsg{spec: res.spec, saveErr: saveErr}
	}
}

// startProbe returns the health command unless a probe is already running.
func (m *modelUI) startProbe() tea.Cmd {
	if m.probing || m.opts.Health == nil {
		return nil
	}
	m.probing = true
	return m.healthCmd()
}

func (m modelUI) Init() tea.Cmd {
	return tea.Batch(m.listCmd(), m.healthCmd(), tickCmd(m.opts.RefreshSeconds))
}

func (m modelUI) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tickMsg:
		probe := m.startProbe()
		return m, tea.Batch(m.listCmd(), probe, tickCmd(m.opts.RefreshSeconds))
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width
		return m, nil
	case tunnelsMsg:
		m.tunnels = msg.statuses
		m.specs = make(map[string]model.TunnelSpec, len(msg.specs))
		for _, s := range msg.specs {
			m.specs[s.Name] = s
		}
		m.clampSelection()
		return m, nil
	case healthMsg:
		m.health = msg
		m.probing = false
		return m, nil
	case toggledMsg:
		delete(m.pending, msg.name)
		if msg.err != nil {
			m.status = fmt.Sprintf("Tunnel %s: %s", msg.name, security.UserMessage(msg.err, true))
			slog.Debug("toggle failed", "tunnel", msg.name, "error", msg.err)
		} else if msg.desired == model.DesiredOn {
			m.status = "Tunnel connected: " + msg.name
		} else {
			m.status = "Tunnel disconnected: " + msg.name
		}
		return m, m.listCmd()
	case addedMsg:
		switch {
		case msg.err != nil:
			m.status = "Add tunnel failed: " + security.UserMessage(msg.err, true)
		case msg.saveErr != nil:
			m.status = fmt.Sprintf("Tunnel %s added for this session; saving config failed: %s", msg.spec.Name, security.UserMessage(msg.saveErr, true))
		default:
			m.status = "Tunnel added: " + msg.spec.Name
		}
		return m, m.listCmd()
	case statusMsg:
		m.status = string(msg)
		return m, nil
	case tea.KeyMsg:
		if m.form != nil {
			return m.updateForm(msg)
		}
		return m.updateKeys(msg)
	}
	return m, nil
}

func (m modelUI) updateForm(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.String() == "esc" {
		m.form = nil
		m.status = "Add tunnel cancelled"
		return m, nil
	}
	res, cmd := m.form.update(msg)
	if res == nil {
		return m, cmd
	}
	m.form = nil
	m.status = "Adding tunnel " + res.spec.Name + "..."
	return m, m.addCmd(*res)
}

func (m modelUI) updateKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		m.status = "Shutting down tunnels..."
		return m, tea.Quit
	case key.Matches(msg, m.keys.Down):
		if m.sel < len(m.tunnels)-1 {
			m.sel++
		}
	case key.Matches(msg, m.keys.Up):
		if m.sel > 0 {
			m.sel--
		}
	case key.Matches(msg, m.keys.Help):
		m.help.ShowAll = !m.help.ShowAll
	case key.Matches(msg, m.keys.Refresh):
		m.status = "Refreshing tunnels and healthchecks"
		probe := m.startProbe()
		return m, tea.Batch(m.listCmd(), probe)
	case key.Matches(msg, m.keys.Add):
		m.form = newForm()
		m.status = "New tunnel"
	case key.Matches(msg, m.keys.Toggle):
		st, ok := m.selected()
		if !ok {
			break
		}
		if _, busy := m.pending[st.Name]; busy {
			m.status = "Tunnel " + st.Name + " is still changing state"
			break
		}
		desired := model.DesiredOn
		if st.Connected() {
			desired = model.DesiredOff
		}
		m.pending[st.Name] = desired
		if desired == model.DesiredOn {
			m.status = "Connecting " + st.Name + "..."
		} else {
			m.status = "Disconnecting " + st.Name + "..."
		}
		return m, m.toggleCmd(st.Name, desired)
	case key.Matches(msg, m.keys.Connect):
		st, ok := m.selected()
		if !ok || m.opts.ConnectCommand == nil {
			break
		}
		spec, ok := m.specs[st.Name]
		if !ok {
			break
		}
		cmd := m.opts.ConnectCommand(spec)
		return m, tea.ExecProcess(cmd, func(err error) tea.Msg {
			if err != nil {
				return statusMsg("ssh exited: " + err.Error())
			}
			return statusMsg("ssh session closed")
		})
	}
	return m, nil
}

func (m modelUI) selected() (model.TunnelStatus, bool) {
	if m.sel < 0 || m.sel >= len(m.tunnels) {
		return model.TunnelStatus{}, false
	}
	return m.tunnels[m.sel], true
}

func (m *modelUI) clampSelection() {
	if m.sel >= len(m.tunnels) {
		m.sel = len(m.tunnels) - 1
	}
	if m.sel < 0 {
		m.sel = 0
	}
}

func (m modelUI) View() string {
	width := m.effectiveWidth()
	head := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39")).Render("devdeck")
	connectedCount := 0
	for _, t := range m.tunnels {
		if t.Connected() {
			connectedCount++
		}
	}
	subhead := fmt.Sprintf("tunnels=%d connected=%d refresh=%ds", len(m.tunnels), connectedCount, m.opts.RefreshSeconds)

	var main string
	if m.form != nil {
		main = m.form.view(m.renderPanel, width)
	} else {
		main = m.renderMainPanels(m.tunnelsPanel(), m.healthPanel())
	}

	return lipgloss.JoinVertical(
		lipgloss.Left,
		head,
		subhead,
		main,
		m.renderPanel("Status", m.status, width, lipgloss.Color("205")),
		m.help.View(m.keys),
	)
}

func (m modelUI) tunnelsPanel() string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("  %-20s %-8s %s\n", "NAME", "PORT", "STATE"))
	for i, t := range m.tunnels {
		cursor := " "
		if i == m.sel {
			cursor = ">"
		}
		port := "-"
		if spec, ok := m.specs[t.Name]; ok {
			port = fmt.Sprintf("%d", spec.LocalPort)
		}
		state := idleStyle.Render(string(t.State))
		if t.Connected() {
			state = connectedStyle.Render(string(t.State))
		}
		if desired, ok := m.pending[t.Name]; ok {
			if desired == model.DesiredOn {
				state = "connecting..."
			} else {
				state = "disconnecting..."
			}
		}
		b.WriteString(fmt.Sprintf("%s %-20s %-8s %s\n", cursor, t.Name, port, state))
	}
	if len(m.tunnels) == 0 {
		b.WriteString("  (no tunnels configured; press a to add one)\n")
	}
	return b.String()
}

func (m modelUI) healthPanel() string {
	if m.opts.Health == nil {
		return ""
	}
	if len(m.health) == 0 {
		if m.probing {
			return "probing...\n"
		}
		return "(no healthchecks configured)\n"
	}
	var b strings.Builder
	for _, sec := range m.health {
		b.WriteString(lipgloss.NewStyle().Bold(true).Render(sec.Name) + "\n")
		for _, svc := range sec.Services {
			b.WriteString(fmt.Sprintf("  %s %-18s%s%s\n", upMark(svc.Up), svc.Name, componentMark("db", svc.DB), componentMark("es", svc.Elasticsearch)))
		}
	}
	return b.String()
}

func upMark(up bool) string {
	if up {
		return connectedStyle.Render("UP  ")
	}
	return downStyle.Render("DOWN")
}

func componentMark(label string, up *bool) string {
	if up == nil {
		return ""
	}
	if *up {
		return " " + connectedStyle.Render(label)
	}
	return " " + downStyle.Render(label)
}

func (m modelUI) renderMainPanels(tunnelsPanel, healthPanel string) string {
	width := m.effectiveWidth()
	tunnels := "Tunnels"
	if healthPanel == "" {
		return m.renderPanel(tunnels, tunnelsPanel, width, lipgloss.Color("39"))
	}
	if width < 96 {
		return lipgloss.JoinVertical(
			lipgloss.Left,
			m.renderPanel(tunnels, tunnelsPanel, width, lipgloss.Color("39")),
			m.renderPanel("Health", healthPanel, width, lipgloss.Color("69")),
		)
	}
	leftWidth := width / 2
	rightWidth := width - leftWidth
	return lipgloss.JoinHorizontal(
		lipgloss.Top,
		m.renderPanel(tunnels, tunnelsPanel, leftWidth, lipgloss.Color("39")),
		m.renderPanel("Health", healthPanel, rightWidth, lipgloss.Color("69")),
	)
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

// Run shows the dashboard until the user quits. The caller owns the
// supervisor and shuts it down afterwards.
func Run(opts Options) error {
	p := tea.NewProgram(newModel(opts), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
