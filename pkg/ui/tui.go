// Package ui is a terminal monitor for a running bonjour.Peer.
package ui

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/rescp17/lanpeer/internal/style"
	"github.com/rescp17/lanpeer/pkg/bonjour"
)

// PeerSource is the part of *bonjour.Peer the monitor drives.
type PeerSource interface {
	Identity() bonjour.Identity
	Active() bool
	ResolvedHost() string
	ListPeers() []*bonjour.Resolver
	Resolve()
	Clear()
}

// peersMsg carries one ListPeers result into the model. Only the periodic
// refresh schedules the next tick; key-triggered refreshes do not.
type peersMsg struct {
	peers     []*bonjour.Resolver
	active    bool
	host      string
	scheduled bool
}

type tickMsg struct{}

var columns = []table.Column{
	{Title: "Name", Width: 24},
	{Title: "Host", Width: 24},
	{Title: "Port", Width: 6},
	{Title: "Status", Width: 10},
}

type Model struct {
	source   PeerSource
	interval time.Duration

	spinner spinner.Model
	table   table.Model

	peers  []*bonjour.Resolver
	active bool
	host   string
	loaded bool
}

func NewModel(source PeerSource, interval time.Duration) Model {
	t := table.New(
		table.WithColumns(columns),
		table.WithRows([]table.Row{}),
		table.WithFocused(true),
		table.WithHeight(0),
	)
	t.SetStyles(style.NewTableStyles())

	return Model{
		source:   source,
		interval: interval,
		spinner:  style.NewSpinner(),
		table:    t,
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.refresh(true))
}

func (m Model) refresh(scheduled bool) tea.Cmd {
	source := m.source
	return func() tea.Msg {
		return peersMsg{
			peers:     source.ListPeers(),
			active:    source.Active(),
			host:      source.ResolvedHost(),
			scheduled: scheduled,
		}
	}
}

func (m Model) tick() tea.Cmd {
	return tea.Tick(m.interval, func(time.Time) tea.Msg { return tickMsg{} })
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tickMsg:
		return m, m.refresh(true)

	case peersMsg:
		m.peers, m.active, m.host, m.loaded = msg.peers, msg.active, msg.host, true
		m.updatePeerTable()
		if msg.scheduled {
			return m, m.tick()
		}
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "r":
			m.source.Resolve()
			return m, m.refresh(false)
		case "c":
			m.source.Clear()
			return m, m.refresh(false)
		}
		var cmd tea.Cmd
		m.table, cmd = m.table.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.spinner, cmd = m.spinner.Update(msg)
	return m, cmd
}

func (m *Model) updatePeerTable() {
	rows := make([]table.Row, 0, len(m.peers))
	for _, p := range m.peers {
		host, port, status := "-", "-", "resolving"
		if p.Resolved() {
			host, port, status = p.Host(), strconv.Itoa(int(p.Port())), "resolved"
		}
		rows = append(rows, table.Row{p.Name(), host, port, status})
	}
	m.table.SetRows(rows)
	m.table.SetHeight(len(rows) + 1)
}

func (m Model) View() string {
	id := m.source.Identity()
	s := style.TitleStyle.Render(id.Name()) + " " + style.HelpStyle.Render(id.Regtype()+" "+id.Domain()) + "\n"
	s += style.Status(m.active, "advertising/browsing")
	if m.host != "" {
		s += "  " + style.HighlightFontStyle.Render(m.host)
	}
	s += "\n"

	switch {
	case !m.loaded || len(m.peers) == 0:
		s += fmt.Sprintf("\n%s Looking for peers...\n", m.spinner.View())
	default:
		s += fmt.Sprintf("\n%d peer(s)\n", len(m.peers))
		s += style.BaseStyle.Render(m.table.View()) + "\n"
	}
	s += style.HelpStyle.Render("r: resolve all • c: clear • q: quit")
	return s
}

// Run shows the monitor until the user quits or ctx is done.
func Run(ctx context.Context, source PeerSource, interval time.Duration) error {
	p := tea.NewProgram(NewModel(source, interval), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("peer monitor failed: %w", err)
	}
	return nil
}
