// Package tui provides Bubble Tea TUI components for the sluice CLI.
//
// TUI rules:
//   - The chat surface is a full interactive session (sluice chat)
//   - Read-only TUI views (history) are opt-in via --tui
//   - Read-only views use the same data payloads as non-TUI rendering
//   - No TUI-exclusive data allowed
package tui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/pithecene-io/sluice/types"
)

// Color palette.
var (
	primaryColor   = lipgloss.Color("#7C3AED") // Purple
	successColor   = lipgloss.Color("#10B981") // Green
	warningColor   = lipgloss.Color("#F59E0B") // Amber
	errorColor     = lipgloss.Color("#EF4444") // Red
	mutedColor     = lipgloss.Color("#6B7280") // Gray
	highlightColor = lipgloss.Color("#3B82F6") // Blue
)

// Styles for TUI components.
var (
	// TitleStyle for headers and titles.
	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(primaryColor).
			MarginBottom(1)

	// LabelStyle for field labels.
	LabelStyle = lipgloss.NewStyle().
			Foreground(mutedColor).
			Width(16)

	// ValueStyle for field values.
	ValueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFFFF"))

	// UserStyle for user turn prefixes.
	UserStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(highlightColor)

	// AssistantStyle for assistant turn prefixes.
	AssistantStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(primaryColor)

	// StageStyle for the in-flight stage label under an assistant turn.
	StageStyle = lipgloss.NewStyle().
			Foreground(warningColor).
			Italic(true)

	// BannerStyle for session-level error banners.
	BannerStyle = lipgloss.NewStyle().
			Foreground(errorColor).
			Bold(true)

	// ChipStyle for citation chips rendered after an assistant turn.
	ChipStyle = lipgloss.NewStyle().
			Foreground(highlightColor).
			Border(lipgloss.NormalBorder()).
			BorderForeground(mutedColor).
			Padding(0, 1)

	// SuccessStyle for success states.
	SuccessStyle = lipgloss.NewStyle().
			Foreground(successColor)

	// WarningStyle for warning states.
	WarningStyle = lipgloss.NewStyle().
			Foreground(warningColor)

	// ErrorStyle for error states.
	ErrorStyle = lipgloss.NewStyle().
			Foreground(errorColor)

	// BoxStyle for bordered containers.
	BoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(mutedColor).
			Padding(1, 2)

	// EvidenceBoxStyle for the evidence side panel.
	EvidenceBoxStyle = lipgloss.NewStyle().
				Border(lipgloss.RoundedBorder()).
				BorderForeground(highlightColor).
				Padding(1, 2)

	// HelpStyle for help text.
	HelpStyle = lipgloss.NewStyle().
			Foreground(mutedColor).
			MarginTop(1)
)

// StageDisplayStyle returns a style based on the turn stage.
func StageDisplayStyle(stage types.Stage) lipgloss.Style {
	switch stage {
	case types.StageDone:
		return SuccessStyle
	case types.StageError:
		return ErrorStyle
	case types.StageAborted:
		return WarningStyle
	case types.StageRetrieving, types.StageGenerating, types.StageFinalizing:
		return StageStyle
	default:
		return ValueStyle
	}
}
