package ui

import (
	"context"
	"strings"
	"sync"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/treykane/devdeck/internal/healthcheck"
	"github.com/treykane/devdeck/internal/model"
	"github.com/treykane/devdeck/internal/tunnel"
)

type quietProcess struct {
	once sync.Once
	exit chan struct{}
}

func (p *quietProcess) Pid() int    { return 99 }
func (p *quietProcess) Wait() error { <-p.exit; return nil }
func (p *quietProcess) Kill() error {
	p.once.Do(func() { close(p.exit) })
	return nil
}

func newTestModel(t *testing.T) (modelUI, *tunnel.Supervisor) {
	t.Helper()
	spawn := tunnel.SpawnerFunc(func(model.TunnelSpec) (tunnel.Process, error) {
		return &quietProcess{exit: make(chan struct{})}, nil
	})
	sup, err := tunnel.NewSupervisor(spawn, []model.TunnelSpec{
		{Name: "Staging", LocalPort: 33007, RemoteHost: "db.staging.internal", RemotePort: 3306, Target: "ssm-user@i-1"},
		{Name: "Production", LocalPort: 33006, RemoteHost: "db.production.internal", RemotePort: 3306, Target: "ssm-user@i-2"},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = sup.Shutdown(context.Background()) })

	m := newModel(Options{Supervisor: sup})
	return feed(t, m, m.listCmd()()), sup
}

func feed(t *testing.T, m modelUI, msg tea.Msg) modelUI {
	t.Helper()
	next, _ := m.Update(msg)
	return next.(modelUI)
}

func press(t *testing.T, m modelUI, k string) (modelUI, tea.Cmd) {
	t.Helper()
	var msg tea.KeyMsg
	switch k {
	case "enter":
		msg = tea.KeyMsg{Type: tea.KeyEnter}
	case "esc":
		msg = tea.KeyMsg{Type: tea.KeyEsc}
	case " ":
		msg = tea.KeyMsg{Type: tea.KeySpace, Runes: []rune{' '}}
	default:
		msg = tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(k)}
	}
	next, cmd := m.Update(msg)
	return next.(modelUI), cmd
}

func TestToggleRunsAsCommand(t *testing.T) {
	m, sup := newTestModel(t)
	require.Len(t, m.tunnels, 2)

	m, cmd := press(t, m, " ")
	require.NotNil(t, cmd)
	assert.Equal(t, model.DesiredOn, m.pending["Staging"])
	assert.False(t, sup.List()[0].Connected(), "nothing happens until the command runs")

	m = feed(t, m, cmd())
	assert.Empty(t, m.pending)
	assert.Contains(t, m.status, "Tunnel connected: Staging")
	assert.True(t, sup.List()[0].Connected())

	m = feed(t, m, m.listCmd()())
	assert.True(t, m.tunnels[0].Connected())

	_, cmd = press(t, m, "t")
	require.NotNil(t, cmd)
	feed(t, m, cmd())
	assert.False(t, sup.List()[0].Connected())
}

func TestToggleIgnoredWhilePending(t *testing.T) {
	m, _ := newTestModel(t)
	m, cmd := press(t, m, " ")
	require.NotNil(t, cmd)

	m, cmd = press(t, m, " ")
	assert.Nil(t, cmd)
	assert.Contains(t, m.status, "still changing state")
}

func TestNavigationIsBounded(t *testing.T) {
	m, _ := newTestModel(t)
	m, _ = press(t, m, "k")
	assert.Equal(t, 0, m.sel)
	m, _ = press(t, m, "j")
	m, _ = press(t, m, "j")
	assert.Equal(t, 1, m.sel)
}

func TestAddFormLifecycle(t *testing.T) {
	m, sup := newTestModel(t)

	var persisted []model.TunnelSpec
	m.opts.Persist = func(spec model.TunnelSpec) error {
		persisted = append(persisted, spec)
		return nil
	}

	m, _ = press(t, m, "a")
	require.NotNil(t, m.form)
	m, _ = press(t, m, "esc")
	assert.Nil(t, m.form)

	m, _ = press(t, m, "a")
	m, _ = press(t, m, "enter") // quick mode
	m.form.quickInput.SetValue("Analytics 33008:warehouse.internal:5432 ssm-user@i-0abc")
	m, cmd := press(t, m, "enter")
	require.NotNil(t, cmd)
	assert.Nil(t, m.form)

	m = feed(t, m, cmd())
	assert.Equal(t, "Tunnel added: Analytics", m.status)
	require.Len(t, sup.List(), 3)
	require.Len(t, persisted, 1)
	assert.Equal(t, 33008, persisted[0].LocalPort)
}

func TestHealthPanel(t *testing.T) {
	m, _ := newTestModel(t)
	m.opts.Health = func(context.Context) []healthcheck.SectionResult { return nil }
	up, down := true, false
	m = feed(t, m, healthMsg{{Name: "Staging", Services: []healthcheck.ServiceResult{
		{Name: "api", Up: true, DB: &up, Elasticsearch: &down},
	}}})

	view := m.View()
	assert.True(t, strings.Contains(view, "Health"))
	assert.True(t, strings.Contains(view, "api"))
	assert.False(t, m.probing)
}

func TestQuit(t *testing.T) {
	m, _ := newTestModel(t)
	_, cmd := press(t, m, "q")
	require.NotNil(t, cmd)
	_, ok := cmd().(tea.QuitMsg)
	assert.True(t, ok)
}

func TestViewListsTunnels(t *testing.T) {
	m, _ := newTestModel(t)
	view := m.View()
	assert.Contains(t, view, "Staging")
	assert.Contains(t, view, "33006")
}
