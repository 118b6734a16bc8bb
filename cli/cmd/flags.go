// Package cmd provides CLI commands for the sluice binary.
package cmd

import (
	"os"

	"github.com/urfave/cli/v2"
)

// Exit codes.
const (
	exitSuccess   = 0
	exitUsage     = 1
	exitTransport = 2
)

// Shared flags.
var (
	// ConfigFlag points at the YAML config file.
	ConfigFlag = &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "Path to YAML config file",
		EnvVars: []string{"SLUICE_CONFIG"},
	}

	// BackendFlag overrides the configured backend base URL.
	BackendFlag = &cli.StringFlag{
		Name:    "backend",
		Usage:   "Backend base URL (overrides config)",
		EnvVars: []string{"SLUICE_BACKEND"},
	}

	// StateDirFlag overrides the configured state directory.
	StateDirFlag = &cli.StringFlag{
		Name:    "state-dir",
		Usage:   "State directory for snapshots and archive (overrides config)",
		EnvVars: []string{"SLUICE_STATE_DIR"},
	}

	// FormatFlag selects output format: json, table, yaml.
	FormatFlag = &cli.StringFlag{
		Name:    "format",
		Aliases: []string{"f"},
		Usage:   "Output format: json, table, yaml",
	}

	// NoColorFlag disables colored output.
	NoColorFlag = &cli.BoolFlag{
		Name:  "no-color",
		Usage: "Disable colored output",
	}

	// TUIFlag enables Bubble Tea interactive mode.
	// Only valid for select read-only commands (history).
	TUIFlag = &cli.BoolFlag{
		Name:  "tui",
		Usage: "Enable interactive TUI mode (history only)",
	}
)

// SessionFlags returns the flags every backend-touching command shares.
func SessionFlags() []cli.Flag {
	return []cli.Flag{
		ConfigFlag,
		BackendFlag,
		StateDirFlag,
	}
}

// ReadOnlyFlags returns the shared flags for all read-only commands.
// Includes --tui so that unsupported commands can provide explicit error
// messages instead of generic "flag not defined" errors.
func ReadOnlyFlags() []cli.Flag {
	return []cli.Flag{
		FormatFlag,
		NoColorFlag,
		TUIFlag,
	}
}

// isStderrTTY returns true if stderr is a TTY.
func isStderrTTY() bool {
	info, err := os.Stderr.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}
