package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/pithecene-io/sluice/session"
	"github.com/pithecene-io/sluice/types"
)

// snapshotMsg delivers a fresh session snapshot into the Bubble Tea loop.
// The session controller publishes these from its own goroutines.
type snapshotMsg struct {
	snap session.Snapshot
}

// chatKeyMap defines key bindings for the chat surface.
type chatKeyMap struct {
	Submit   key.Binding
	Cancel   key.Binding
	NewChat  key.Binding
	Evidence key.Binding
	NextCite key.Binding
	Quit     key.Binding
}

var chatKeys = chatKeyMap{
	Submit: key.NewBinding(
		key.WithKeys("enter"),
		key.WithHelp("enter", "send"),
	),
	Cancel: key.NewBinding(
		key.WithKeys("esc"),
		key.WithHelp("esc", "stop / close panel"),
	),
	NewChat: key.NewBinding(
		key.WithKeys("ctrl+n"),
		key.WithHelp("ctrl+n", "new conversation"),
	),
	Evidence: key.NewBinding(
		key.WithKeys("ctrl+e"),
		key.WithHelp("ctrl+e", "evidence"),
	),
	NextCite: key.NewBinding(
		key.WithKeys("tab"),
		key.WithHelp("tab", "next citation"),
	),
	Quit: key.NewBinding(
		key.WithKeys("ctrl+c"),
		key.WithHelp("ctrl+c", "quit"),
	),
}

// ChatModel is the Bubble Tea model for the interactive chat session.
// All conversation state lives in the session controller; the model only
// renders the latest snapshot and translates key presses into calls.
type ChatModel struct {
	ctrl *session.Controller
	snap session.Snapshot

	input    textarea.Model
	viewport viewport.Model
	spin     spinner.Model

	width    int
	height   int
	ready    bool
	spinning bool
	quitting bool
}

// NewChatModel creates a chat model bound to a session controller.
func NewChatModel(ctrl *session.Controller) ChatModel {
	input := textarea.New()
	input.Placeholder = "Ask about your resume, the role, or anything else..."
	input.ShowLineNumbers = false
	input.SetHeight(3)
	input.Focus()

	spin := spinner.New()
	spin.Spinner = spinner.Dot
	spin.Style = StageStyle

	snap := ctrl.Snapshot()
	if snap.Draft != "" {
		input.SetValue(snap.Draft)
	}

	return ChatModel{
		ctrl:  ctrl,
		snap:  snap,
		input: input,
		spin:  spin,
	}
}

// Init implements tea.Model.
func (m ChatModel) Init() tea.Cmd {
	return textarea.Blink
}

// Update implements tea.Model.
func (m ChatModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.input.SetWidth(msg.Width - 2)
		chrome := m.chromeHeight()
		if !m.ready {
			m.viewport = viewport.New(msg.Width, msg.Height-chrome)
			m.viewport.SetContent(m.transcript())
			m.viewport.GotoBottom()
			m.ready = true
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = msg.Height - chrome
		}
		return m, nil

	case snapshotMsg:
		atBottom := !m.ready || m.viewport.AtBottom()
		m.snap = msg.snap
		if m.ready {
			m.viewport.SetContent(m.transcript())
			if atBottom {
				m.viewport.GotoBottom()
			}
		}
		if m.snap.Streaming && !m.spinning {
			m.spinning = true
			return m, m.spin.Tick
		}
		return m, nil

	case spinner.TickMsg:
		if !m.snap.Streaming {
			m.spinning = false
			return m, nil
		}
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, chatKeys.Quit):
			m.quitting = true
			return m, tea.Quit

		case key.Matches(msg, chatKeys.Submit):
			if m.ctrl.Submit(context.Background(), m.input.Value()) {
				m.input.Reset()
			}
			return m, nil

		case key.Matches(msg, chatKeys.Cancel):
			if m.snap.OpenEvidence >= 0 {
				m.ctrl.CloseEvidence()
			} else {
				m.ctrl.Cancel()
			}
			return m, nil

		case key.Matches(msg, chatKeys.NewChat):
			m.ctrl.Reset()
			m.input.Reset()
			return m, nil

		case key.Matches(msg, chatKeys.Evidence):
			m.toggleEvidence()
			return m, nil

		case key.Matches(msg, chatKeys.NextCite):
			if m.snap.OpenEvidence >= 0 {
				m.cycleCitation()
				return m, nil
			}
		}
	}

	var cmd tea.Cmd
	before := m.input.Value()
	m.input, cmd = m.input.Update(msg)
	if after := m.input.Value(); after != before {
		m.ctrl.SetDraft(after)
	}
	return m, cmd
}

// toggleEvidence opens the evidence panel on the newest assistant turn
// that carries citations, or closes it if already open.
func (m *ChatModel) toggleEvidence() {
	if m.snap.OpenEvidence >= 0 {
		m.ctrl.CloseEvidence()
		return
	}
	for i := len(m.snap.Turns) - 1; i >= 0; i-- {
		t := m.snap.Turns[i]
		if t.Role == types.RoleAssistant && len(t.Citations) > 0 {
			m.ctrl.FocusEvidence(i, t.Citations[0].ID)
			return
		}
	}
}

// cycleCitation advances the focused citation within the open panel.
func (m *ChatModel) cycleCitation() {
	index := m.snap.OpenEvidence
	if index < 0 || index >= len(m.snap.Turns) {
		return
	}
	cits := m.snap.Turns[index].Citations
	if len(cits) == 0 {
		return
	}
	next := 0
	for i, cit := range cits {
		if cit.ID == m.snap.FocusedEvidence {
			next = (i + 1) % len(cits)
			break
		}
	}
	m.ctrl.FocusEvidence(index, cits[next].ID)
}

// View implements tea.Model.
func (m ChatModel) View() string {
	if m.quitting {
		return ""
	}
	if !m.ready {
		return "Starting session..."
	}

	var b strings.Builder
	b.WriteString(m.header())
	b.WriteString("\n")
	b.WriteString(m.viewport.View())
	b.WriteString("\n")
	if status := m.statusLine(); status != "" {
		b.WriteString(status)
		b.WriteString("\n")
	}
	if m.snap.Banner != "" {
		b.WriteString(BannerStyle.Render(m.snap.Banner))
		b.WriteString("\n")
	}
	b.WriteString(m.input.View())
	b.WriteString("\n")
	b.WriteString(m.helpLine())
	return b.String()
}

func (m ChatModel) header() string {
	title := TitleStyle.Render(m.snap.Title)
	meta := fmt.Sprintf("mode: %s", m.snap.Mode)
	if m.snap.ActiveSource != nil {
		meta += fmt.Sprintf("  source: %s (%s)", m.snap.ActiveSource.Filename, m.snap.ActiveSource.SourceType)
	}
	return title + "\n" + HelpStyle.Render(meta)
}

// statusLine shows the spinner plus the in-flight stage label.
func (m ChatModel) statusLine() string {
	if !m.snap.Streaming {
		return ""
	}
	label := ""
	for i := len(m.snap.Turns) - 1; i >= 0; i-- {
		if m.snap.Turns[i].Role == types.RoleAssistant {
			label = m.snap.Turns[i].StageText
			break
		}
	}
	if label == "" {
		label = "Working..."
	}
	return m.spin.View() + " " + StageStyle.Render(label)
}

func (m ChatModel) helpLine() string {
	bindings := []key.Binding{
		chatKeys.Submit,
		chatKeys.Cancel,
		chatKeys.NewChat,
		chatKeys.Evidence,
		chatKeys.Quit,
	}
	parts := make([]string, 0, len(bindings))
	for _, b := range bindings {
		parts = append(parts, fmt.Sprintf("%s %s", b.Help().Key, b.Help().Desc))
	}
	return HelpStyle.Render(strings.Join(parts, "  ·  "))
}

// chromeHeight is the number of rows used outside the transcript viewport.
func (m ChatModel) chromeHeight() int {
	// header (2) + status (1) + banner (1) + input (3) + help (1)
	return 8
}

// transcript renders the conversation plus the evidence panel.
func (m ChatModel) transcript() string {
	var b strings.Builder
	for _, t := range m.snap.Turns {
		b.WriteString(RenderTurn(t))
		b.WriteString("\n")
	}
	if m.snap.OpenEvidence >= 0 && m.snap.OpenEvidence < len(m.snap.Turns) {
		b.WriteString(m.evidencePanel(m.snap.Turns[m.snap.OpenEvidence]))
		b.WriteString("\n")
	}
	return b.String()
}

// evidencePanel renders the retrieved evidence behind a turn's citations.
// Only evidence referenced by a citation is shown.
func (m ChatModel) evidencePanel(t types.Turn) string {
	visible := session.VisibleEvidence(t)
	if len(visible) == 0 {
		return EvidenceBoxStyle.Render("No evidence recorded for this answer.")
	}

	var b strings.Builder
	b.WriteString(TitleStyle.Render("Evidence"))
	b.WriteString("\n")
	for i, ev := range visible {
		if i > 0 {
			b.WriteString("\n")
		}
		idStyle := ChipStyle
		if ev.ID == m.snap.FocusedEvidence {
			idStyle = idStyle.BorderForeground(primaryColor).Foreground(primaryColor)
		}
		b.WriteString(idStyle.Render(ev.ID))
		if ev.Score != nil {
			b.WriteString(HelpStyle.Render(fmt.Sprintf("  score %.3f", *ev.Score)))
		}
		b.WriteString("\n")
		b.WriteString(ValueStyle.Render(ev.Text))
		b.WriteString("\n")
	}
	return EvidenceBoxStyle.Render(lipgloss.NewStyle().Width(m.contentWidth()).Render(b.String()))
}

func (m ChatModel) contentWidth() int {
	if m.width > 8 {
		return m.width - 8
	}
	return 72
}

// RunChat runs the interactive chat TUI over a session controller. The
// controller's change feed drives rendering; the program returns when the
// user quits.
func RunChat(ctrl *session.Controller) error {
	model := NewChatModel(ctrl)
	p := tea.NewProgram(model, tea.WithAltScreen())

	ctrl.OnChange(func(snap session.Snapshot) {
		p.Send(snapshotMsg{snap: snap})
	})
	defer ctrl.OnChange(nil)

	_, err := p.Run()
	return err
}
