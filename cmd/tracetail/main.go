// tracetail inspects the reconciliation trace log: it tails the most recent
// events, optionally filtered by request id, and browses them interactively.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/brickellbay/paysync/internal/trace"
)

func main() {
	path := flag.String("path", trace.DefaultPath, "trace file path")
	n := flag.Int("n", 50, "number of most recent events")
	rid := flag.String("rid", "", "filter by request id")
	plain := flag.Bool("plain", false, "print events and exit instead of browsing")
	flag.Parse()

	events, err := trace.Tail(*path, *n, *rid)
	if err != nil {
		fmt.Fprintf(os.Stderr, "tracetail: %v\n", err)
		os.Exit(1)
	}
	if len(events) == 0 {
		fmt.Println("no trace events")
		return
	}

	if *plain {
		for _, ev := range events {
			fmt.Println(eventLine(ev))
		}
		return
	}

	p := tea.NewProgram(newModel(events), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "tracetail: %v\n", err)
		os.Exit(1)
	}
}

var (
	titleStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))
	ridStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
	stepStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("114"))
	selectedStyle = lipgloss.NewStyle().Reverse(true)
	dimStyle      = lipgloss.NewStyle().Faint(true)
	detailStyle   = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
)

type model struct {
	events   []trace.Event
	cursor   int
	expanded bool
	height   int
}

func newModel(events []trace.Event) model {
	return model{events: events, height: 24}
}

func (m model) Init() tea.Cmd { return nil }

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.height = msg.Height
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		case "up", "k":
			if m.cursor > 0 {
				m.cursor--
			}
		case "down", "j":
			if m.cursor < len(m.events)-1 {
				m.cursor++
			}
		case "g":
			m.cursor = 0
		case "G":
			m.cursor = len(m.events) - 1
		case "enter", " ":
			m.expanded = !m.expanded
		}
	}
	return m, nil
}

func (m model) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("payment sync trace"))
	b.WriteString(dimStyle.Render(fmt.Sprintf("  %d events  (enter: detail, q: quit)", len(m.events))))
	b.WriteString("\n\n")

	listHeight := m.height - 4
	if m.expanded {
		listHeight = listHeight / 2
	}
	start := 0
	if m.cursor >= listHeight {
		start = m.cursor - listHeight + 1
	}
	for i := start; i < len(m.events) && i < start+listHeight; i++ {
		line := eventLine(m.events[i])
		if i == m.cursor {
			line = selectedStyle.Render(line)
		}
		b.WriteString(line)
		b.WriteString("\n")
	}

	if m.expanded {
		b.WriteString("\n")
		b.WriteString(detailStyle.Render(prettyEvent(m.events[m.cursor])))
		b.WriteString("\n")
	}
	return b.String()
}

func eventLine(ev trace.Event) string {
	ts := ev.Timestamp
	if len(ts) > 19 {
		ts = ts[:19]
	}
	return fmt.Sprintf("%s  %s  %s%s",
		dimStyle.Render(ts),
		ridStyle.Render(ev.RID),
		stepStyle.Render(ev.Step),
		pathSuffix(ev))
}

func pathSuffix(ev trace.Event) string {
	if ev.Path == "" {
		return ""
	}
	return dimStyle.Render("  " + ev.Method + " " + ev.Path)
}

func prettyEvent(ev trace.Event) string {
	raw, err := json.MarshalIndent(ev, "", "  ")
	if err != nil {
		return fmt.Sprintf("%+v", ev)
	}
	return string(raw)
}
