// Package tui implements `warelay tail`: a live terminal view of the relay's
// event feed over the websocket endpoint.
package tui

import (
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/gorilla/websocket"

	"github.com/sableworks/warelay/internal/livefeed"
)

const maxTailLines = 200

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	timeStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	convStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("75"))
	inboundStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	replyStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("114"))
	pokeStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	faintStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("203"))
)

type eventMsg livefeed.Event

type disconnectMsg struct{ err error }

type model struct {
	serverURL string
	events    <-chan livefeed.Event
	errs      <-chan error

	lines    []string
	width    int
	height   int
	errText  string
	quitting bool
}

// Run connects to the relay's live websocket feed and renders events until
// the operator quits.
func Run(serverURL string, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	wsURL, err := feedURL(serverURL)
	if err != nil {
		return err
	}

	logger.Debug("connecting to live feed", "url", wsURL)
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		return fmt.Errorf("connect to live feed %s: %w", wsURL, err)
	}
	defer conn.Close()

	events := make(chan livefeed.Event, 16)
	errs := make(chan error, 1)
	go func() {
		defer close(events)
		for {
			var event livefeed.Event
			if err := conn.ReadJSON(&event); err != nil {
				errs <- err
				return
			}
			events <- event
		}
	}()

	program := tea.NewProgram(model{
		serverURL: serverURL,
		events:    events,
		errs:      errs,
	})
	_, err = program.Run()
	return err
}

func feedURL(serverURL string) (string, error) {
	parsed, err := url.Parse(strings.TrimSpace(serverURL))
	if err != nil {
		return "", fmt.Errorf("parse server url: %w", err)
	}
	switch parsed.Scheme {
	case "http", "":
		parsed.Scheme = "ws"
	case "https":
		parsed.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported scheme %q", parsed.Scheme)
	}
	parsed.Path = "/api/v1/live/ws"
	return parsed.String(), nil
}

func (m model) Init() tea.Cmd {
	return m.waitForEvent()
}

func (m model) waitForEvent() tea.Cmd {
	return func() tea.Msg {
		select {
		case event, open := <-m.events:
			if !open {
				return disconnectMsg{}
			}
			return eventMsg(event)
		case err := <-m.errs:
			return disconnectMsg{err: err}
		}
	}
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			m.quitting = true
			return m, tea.Quit
		}
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
	case eventMsg:
		m.lines = append(m.lines, formatEvent(livefeed.Event(msg)))
		if len(m.lines) > maxTailLines {
			m.lines = m.lines[len(m.lines)-maxTailLines:]
		}
		return m, m.waitForEvent()
	case disconnectMsg:
		if msg.err != nil {
			m.errText = msg.err.Error()
		} else {
			m.errText = "feed closed"
		}
	}
	return m, nil
}

func (m model) View() string {
	if m.quitting {
		return "warelay tail closed\n"
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render("warelay live feed"))
	b.WriteString(faintStyle.Render("  " + m.serverURL))
	b.WriteString("\n\n")

	visible := m.lines
	if m.height > 6 && len(visible) > m.height-5 {
		visible = visible[len(visible)-(m.height-5):]
	}
	if len(visible) == 0 {
		b.WriteString(faintStyle.Render("waiting for events..."))
		b.WriteString("\n")
	}
	for _, line := range visible {
		b.WriteString(line)
		b.WriteString("\n")
	}

	b.WriteString("\n")
	if m.errText != "" {
		b.WriteString(errorStyle.Render("disconnected: " + m.errText))
		b.WriteString("\n")
	}
	b.WriteString(faintStyle.Render("q to quit"))
	b.WriteString("\n")
	return b.String()
}

func formatEvent(event livefeed.Event) string {
	stamp := timeStyle.Render(time.Now().Format("15:04:05"))
	conversation := convStyle.Render(event.Conversation)

	switch event.Kind {
	case livefeed.KindPoke:
		return fmt.Sprintf("%s %s %s %s", stamp, conversation,
			pokeStyle.Render("poke→"), event.Reply)
	case livefeed.KindDirect:
		return fmt.Sprintf("%s %s %s %s", stamp, conversation,
			replyStyle.Render("direct→"), event.Reply)
	default:
		in := inboundStyle.Render("“" + event.Text + "”")
		out := replyStyle.Render(event.Reply)
		return fmt.Sprintf("%s %s %s → %s", stamp, conversation, in, out)
	}
}
