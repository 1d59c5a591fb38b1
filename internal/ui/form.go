package ui

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/treykane/devdeck/internal/model"
)

// formMode distinguishes between the mode-select, quick-add, and full-form screens.
type formMode int

const (
	formModeSelect formMode = iota
	formModeQuick
	formModeFull
)

// Field indices for the full tunnel form.
const (
	fieldName = iota
	fieldLocalPort
	fieldRemoteHost
	fieldRemotePort
	fieldTarget
	fieldAWSProfile
	fieldAWSRegion
	fieldCount
)

// formResult is returned when the user completes the form.
type formResult struct {
	spec model.TunnelSpec
	save bool // persist to config.yaml as well as the running supervisor
}

// newTunnelForm holds all state for the "add tunnel" form.
type newTunnelForm struct {
	mode    formMode
	modeSel int // 0 = quick, 1 = full

	quickInput textinput.Model

	fields   []textinput.Model
	focusIdx int

	saveToConfig bool

	errMsg string
}

func newForm() *newTunnelForm {
	f := &newTunnelForm{
		mode:         formModeSelect,
		saveToConfig: true,
	}

	qi := textinput.New()
	qi.Placeholder = "Analytics 33008:warehouse.internal:5432 ssm-user@i-0abc"
	qi.CharLimit = 256
	qi.Width = 60
	f.quickInput = qi

	placeholders := []string{
		"Analytics (required)",
		"33008 (required)",
		"warehouse.internal (required)",
		"5432 (required)",
		"ssm-user@i-0abc123 (required)",
		"dev (optional)",
		"us-west-2 (optional)",
	}
	limits := []int{64, 5, 256, 5, 256, 64, 32}

	f.fields = make([]textinput.Model, fieldCount)
	for i := range f.fields {
		ti := textinput.New()
		ti.Placeholder = placeholders[i]
		ti.CharLimit = limits[i]
		ti.Width = 40
		f.fields[i] = ti
	}
	return f
}

// update processes a key message and returns a formResult if the form is complete.
func (f *newTunnelForm) update(msg tea.KeyMsg) (*formResult, tea.Cmd) {
	switch f.mode {
	case formModeSelect:
		return f.updateModeSelect(msg)
	case formModeQuick:
		return f.updateQuick(msg)
	case formModeFull:
		return f.updateFull(msg)
	}
	return nil, nil
}

func (f *newTunnelForm) updateModeSelect(msg tea.KeyMsg) (*formResult, tea.Cmd) {
	switch msg.String() {
	case "j", "down":
		if f.modeSel < 1 {
			f.modeSel++
		}
	case "k", "up":
		if f.modeSel > 0 {
			f.modeSel--
		}
	case "enter":
		if f.modeSel == 0 {
			f.mode = formModeQuick
			f.quickInput.Focus()
			return nil, f.quickInput.Cursor.BlinkCmd()
		}
		f.mode = formModeFull
		f.focusIdx = 0
		f.fields[0].Focus()
		return nil, f.fields[0].Cursor.BlinkCmd()
	}
	return nil, nil
}

func (f *newTunnelForm) updateQuick(msg tea.KeyMsg) (*formResult, tea.Cmd) {
	switch msg.String() {
	case "ctrl+s":
		f.saveToConfig = !f.saveToConfig
		return nil, nil
	case "enter":
		spec, err := parseQuickTunnel(f.quickInput.Value())
		if err != nil {
			f.errMsg = err.Error()
			return nil, nil
		}
		return &formResult{spec: spec, save: f.saveToConfig}, nil
	default:
		var cmd tea.Cmd
		f.quickInput, cmd = f.quickInput.Update(msg)
		f.errMsg = ""
		return nil, cmd
	}
}

func (f *newTunnelForm) updateFull(msg tea.KeyMsg) (*formResult, tea.Cmd) {
	switch msg.String() {
	case "tab", "shift+tab":
		f.fields[f.focusIdx].Blur()
		if msg.String() == "tab" {
			f.focusIdx = (f.focusIdx + 1) % fieldCount
		} else {
			f.focusIdx = (f.focusIdx - 1 + fieldCount) % fieldCount
		}
		f.fields[f.focusIdx].Focus()
		return nil, f.fields[f.focusIdx].Cursor.BlinkCmd()
	case "ctrl+s":
		f.saveToConfig = !f.saveToConfig
		return nil, nil
	case "enter":
		spec, err := f.buildSpec()
		if err != nil {
			f.errMsg = err.Error()
			return nil, nil
		}
		return &formResult{spec: spec, save: f.saveToConfig}, nil
	default:
		var cmd tea.Cmd
		f.fields[f.focusIdx], cmd = f.fields[f.focusIdx].Update(msg)
		f.errMsg = ""
		return nil, cmd
	}
}

func (f *newTunnelForm) buildSpec() (model.TunnelSpec, error) {
	value := func(i int) string { return strings.TrimSpace(f.fields[i].Value()) }

	local, err := parsePortField("local port", value(fieldLocalPort))
	if err != nil {
		return model.TunnelSpec{}, err
	}
	remote, err := parsePortField("remote port", value(fieldRemotePort))
	if err != nil {
		return model.TunnelSpec{}, err
	}
	spec := model.TunnelSpec{
		Name:       value(fieldName),
		LocalPort:  local,
		RemoteHost: value(fieldRemoteHost),
		RemotePort: remote,
		Target:     value(fieldTarget),
		AWSProfile: value(fieldAWSProfile),
		AWSRegion:  value(fieldAWSRegion),
	}
	if err := spec.Validate(); err != nil {
		return model.TunnelSpec{}, err
	}
	return spec, nil
}

func parsePortField(label, s string) (int, error) {
	if s == "" {
		return 0, fmt.Errorf("%s is required", label)
	}
	p, err := strconv.Atoi(s)
	if err != nil || p < 1 || p > 65535 {
		return 0, fmt.Errorf("%s must be 1-65535", label)
	}
	return p, nil
}

// view renders the form panel.
func (f *newTunnelForm) view(renderPanel func(string, string, int, lipgloss.Color) string, width int) string {
	accent := lipgloss.Color("214")
	switch f.mode {
	case formModeSelect:
		return renderPanel("New Tunnel", f.modeSelectView(), width, accent)
	case formModeQuick:
		return renderPanel("New Tunnel - Quick", f.quickView(), width, accent)
	case formModeFull:
		return renderPanel("New Tunnel - Full Form", f.fullView(), width, accent)
	}
	return ""
}

func (f *newTunnelForm) modeSelectView() string {
	var b strings.Builder
	b.WriteString("Choose how to describe the tunnel:\n\n")

	options := []struct {
		label string
		desc  string
	}{
		{"Quick", "One line: name local:host:remote target"},
		{"Full Form", "Fill each field, including AWS profile and region"},
	}
	for i, opt := range options {
		cursor := "  "
		if i == f.modeSel {
			cursor = "> "
		}
		b.WriteString(fmt.Sprintf("%s[%s]  %s\n", cursor, opt.label, opt.desc))
	}

	b.WriteString("\nj/k to select, Enter to confirm, Esc to cancel")
	return b.String()
}

func (f *newTunnelForm) quickView() string {
	var b strings.Builder
	b.WriteString("Tunnel:\n\n")
	b.WriteString("  " + f.quickInput.View() + "\n\n")
	b.WriteString("Format: <name> <local>:<remote host>:<remote port> <target>\n")
	b.WriteString(f.saveLine())
	if f.errMsg != "" {
		b.WriteString("\n" + errorStyle.Render("Error: "+f.errMsg) + "\n")
	}
	b.WriteString("\nEnter to add | Ctrl+S toggle save | Esc cancel")
	return b.String()
}

func (f *newTunnelForm) fullView() string {
	labels := []string{"Name:", "Local port:", "Remote host:", "Remote port:", "Target:", "AWS profile:", "AWS region:"}

	var b strings.Builder
	for i, label := range labels {
		cursor := "  "
		if i == f.focusIdx {
			cursor = "> "
		}
		b.WriteString(fmt.Sprintf("%s%-14s %s\n", cursor, label, f.fields[i].View()))
	}
	b.WriteString("\n" + f.saveLine())
	if f.errMsg != "" {
		b.WriteString("\n" + errorStyle.Render("Error: "+f.errMsg) + "\n")
	}
	b.WriteString("\nTab/Shift-Tab navigate | Ctrl+S toggle save | Enter add | Esc cancel")
	return b.String()
}

func (f *newTunnelForm) saveLine() string {
	saveMarker, sessionMarker := " ", "x"
	if f.saveToConfig {
		saveMarker, sessionMarker = "x", " "
	}
	return fmt.Sprintf("  Save: (%s) This session only  (%s) Also write config.yaml\n", sessionMarker, saveMarker)
}

// parseQuickTunnel parses "<name> <local>:<host>:<remote> <target>".
func parseQuickTunnel(input string) (model.TunnelSpec, error) {
	parts := strings.Fields(input)
	if len(parts) == 0 {
		return model.TunnelSpec{}, fmt.Errorf("tunnel cannot be empty")
	}
	if len(parts) != 3 {
		return model.TunnelSpec{}, fmt.Errorf("expected: <name> <local>:<host>:<remote> <target>")
	}

	fwd := strings.Split(parts[1], ":")
	if len(fwd) != 3 {
		return model.TunnelSpec{}, fmt.Errorf("forward must be local:host:remote, got %q", parts[1])
	}
	local, err := parsePortField("local port", fwd[0])
	if err != nil {
		return model.TunnelSpec{}, err
	}
	remote, err := parsePortField("remote port", fwd[2])
	if err != nil {
		return model.TunnelSpec{}, err
	}
	spec := model.TunnelSpec{
		Name:       parts[0],
		LocalPort:  local,
		RemoteHost: fwd[1],
		RemotePort: remote,
		Target:     parts[2],
	}
	if err := spec.Validate(); err != nil {
		return model.TunnelSpec{}, err
	}
	return spec, nil
}
