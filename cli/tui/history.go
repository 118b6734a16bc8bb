package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/pithecene-io/sluice/store"
	"github.com/pithecene-io/sluice/types"
)

// HistoryModel is a Bubble Tea model for archived conversation views.
type HistoryModel struct {
	viewType string
	data     any
	viewport viewport.Model
	width    int
	height   int
	ready    bool
	quitting bool
}

// NewHistoryModel creates a new history model.
func NewHistoryModel(viewType string, data any) HistoryModel {
	return HistoryModel{
		viewType: viewType,
		data:     data,
	}
}

// Init implements tea.Model.
func (m HistoryModel) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m HistoryModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		helpHeight := 2
		if !m.ready {
			m.viewport = viewport.New(msg.Width, msg.Height-helpHeight)
			m.viewport.SetContent(m.content())
			m.ready = true
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = msg.Height - helpHeight
		}
		return m, nil

	case tea.KeyMsg:
		if key.Matches(msg, historyKeys.Quit) {
			m.quitting = true
			return m, tea.Quit
		}
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

// View implements tea.Model.
func (m HistoryModel) View() string {
	if m.quitting {
		return ""
	}

	help := HelpStyle.Render("Scroll with arrows, press q or Ctrl+C to quit")
	if !m.ready {
		return m.content() + "\n" + help
	}
	return m.viewport.View() + "\n" + help
}

func (m HistoryModel) content() string {
	switch m.viewType {
	case "history_list":
		return m.renderList()
	case "history_show":
		return m.renderShow()
	default:
		return fmt.Sprintf("Unknown view type: %s", m.viewType)
	}
}

func (m HistoryModel) renderList() string {
	data, ok := m.data.([]store.ConversationSummary)
	if !ok {
		return "Invalid data type for history_list"
	}

	var b strings.Builder
	b.WriteString(TitleStyle.Render("Archived Conversations"))
	b.WriteString("\n\n")

	if len(data) == 0 {
		b.WriteString(ValueStyle.Render("(no archived conversations)"))
		return BoxStyle.Render(b.String())
	}

	for i, summary := range data {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(fmt.Sprintf("%s %s\n",
			LabelStyle.Render("Conversation:"),
			ValueStyle.Render(summary.ConversationID)))
		b.WriteString(fmt.Sprintf("%s %s\n",
			LabelStyle.Render("Title:"),
			ValueStyle.Render(summary.Title)))
		b.WriteString(fmt.Sprintf("%s %s\n",
			LabelStyle.Render("Mode:"),
			ValueStyle.Render(string(summary.Mode))))
		b.WriteString(fmt.Sprintf("%s %s\n",
			LabelStyle.Render("Turns:"),
			ValueStyle.Render(fmt.Sprintf("%d", summary.TurnCount))))
		b.WriteString(fmt.Sprintf("%s %s\n",
			LabelStyle.Render("Archived:"),
			ValueStyle.Render(summary.ArchivedAt.Format("2006-01-02 15:04:05"))))
	}

	return BoxStyle.Render(b.String())
}

func (m HistoryModel) renderShow() string {
	data, ok := m.data.(*store.ConversationRecord)
	if !ok {
		return "Invalid data type for history_show"
	}

	var b strings.Builder
	b.WriteString(TitleStyle.Render(data.Title))
	b.WriteString("\n")
	b.WriteString(fmt.Sprintf("%s %s\n",
		LabelStyle.Render("Conversation:"),
		ValueStyle.Render(data.ConversationID)))
	b.WriteString(fmt.Sprintf("%s %s\n",
		LabelStyle.Render("Mode:"),
		ValueStyle.Render(string(data.Mode))))
	if data.ActiveSource != nil {
		b.WriteString(fmt.Sprintf("%s %s\n",
			LabelStyle.Render("Source:"),
			ValueStyle.Render(fmt.Sprintf("%s (%s)", data.ActiveSource.Filename, data.ActiveSource.SourceType))))
	}
	b.WriteString("\n")

	for _, t := range data.Turns {
		b.WriteString(RenderTurn(t))
		b.WriteString("\n")
	}

	return b.String()
}

// RenderTurn renders one archived or live turn as transcript text.
func RenderTurn(t types.Turn) string {
	var b strings.Builder
	switch t.Role {
	case types.RoleUser:
		b.WriteString(UserStyle.Render("You"))
	case types.RoleAssistant:
		b.WriteString(AssistantStyle.Render("Assistant"))
	default:
		b.WriteString(ValueStyle.Render(string(t.Role)))
	}
	b.WriteString("\n")
	b.WriteString(t.Content)
	b.WriteString("\n")

	if t.Role == types.RoleAssistant {
		if t.StageText != "" && !t.Stage.IsTerminal() {
			b.WriteString(StageStyle.Render(t.StageText))
			b.WriteString("\n")
		}
		if t.Stage == types.StageAborted || t.Stage == types.StageError {
			b.WriteString(StageDisplayStyle(t.Stage).Render("(" + t.StageText + ")"))
			b.WriteString("\n")
		}
		if len(t.Citations) > 0 {
			chips := make([]string, 0, len(t.Citations))
			for _, cit := range t.Citations {
				chips = append(chips, ChipStyle.Render(cit.ID))
			}
			b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, chips...))
			b.WriteString("\n")
		}
	}

	return b.String()
}

// historyKeyMap defines key bindings for history views.
type historyKeyMap struct {
	Quit key.Binding
}

var historyKeys = historyKeyMap{
	Quit: key.NewBinding(
		key.WithKeys("q", "ctrl+c"),
		key.WithHelp("q", "quit"),
	),
}

// RunHistoryTUI runs the history TUI.
func RunHistoryTUI(viewType string, data any) error {
	model := NewHistoryModel(viewType, data)
	p := tea.NewProgram(model, tea.WithAltScreen())
	_, err := p.Run()
	return err
}

// RenderHistoryStatic renders history data without full TUI (for fallback).
func RenderHistoryStatic(viewType string, data any) string {
	model := NewHistoryModel(viewType, data)
	model.width = 80
	model.height = 24
	return lipgloss.NewStyle().Padding(1, 2).Render(model.View())
}
