package tui

import (
	"fmt"
	"strings"
)

// Run starts the appropriate read-only TUI based on the view type.
// Returns an error if the view type doesn't support TUI.
func Run(viewType string, data any) error {
	// Validate TUI is only used for supported commands
	if !IsTUISupported(viewType) {
		return fmt.Errorf("TUI mode is not supported for %s", viewType)
	}

	if strings.HasPrefix(viewType, "history_") {
		return RunHistoryTUI(viewType, data)
	}

	return fmt.Errorf("unknown view type: %s", viewType)
}

// IsTUISupported returns true if the view type supports the read-only TUI.
// Only the history views do; the chat surface has its own entrypoint.
func IsTUISupported(viewType string) bool {
	return strings.HasPrefix(viewType, "history_")
}

// SupportedTUIViews returns a list of view types that support TUI.
func SupportedTUIViews() []string {
	return []string{
		"history_list",
		"history_show",
	}
}
