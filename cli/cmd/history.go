package cmd

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/sluice/cli/config"
	"github.com/pithecene-io/sluice/cli/render"
	"github.com/pithecene-io/sluice/log"
	"github.com/pithecene-io/sluice/store"
)

// historyWarningThreshold is the number of archived conversations above
// which we suggest cleaning up.
const historyWarningThreshold = 100

// HistorySummaryRow is the rendered listing view of an archived conversation.
type HistorySummaryRow struct {
	ConversationID string `json:"conversation_id"`
	Title          string `json:"title"`
	Mode           string `json:"mode"`
	Turns          int    `json:"turns"`
	ArchivedAt     string `json:"archived_at"`
}

// HistoryCommand returns the history command listing archived conversations.
func HistoryCommand() *cli.Command {
	return &cli.Command{
		Name:  "history",
		Usage: "List archived conversations",
		Flags: append(append(SessionFlags(), ReadOnlyFlags()...),
			&cli.BoolFlag{
				Name:  "sync",
				Usage: "Sync all archived conversations to the configured S3 target",
			},
		),
		Action: historyAction,
	}
}

func historyAction(c *cli.Context) error {
	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}

	cfg, err := loadConfig(c)
	if err != nil {
		return cli.Exit(err.Error(), exitUsage)
	}

	arch, err := openArchive(cfg)
	if err != nil {
		return cli.Exit(err.Error(), exitUsage)
	}

	if c.Bool("sync") {
		if cfg.Archive.S3.Bucket == "" {
			return cli.Exit("--sync requires an archive S3 bucket in config", exitUsage)
		}
		syncer, syncErr := store.NewS3Syncer(c.Context, store.S3Config{
			Bucket:       cfg.Archive.S3.Bucket,
			Prefix:       cfg.Archive.S3.Prefix,
			Region:       cfg.Archive.S3.Region,
			Endpoint:     cfg.Archive.S3.Endpoint,
			UsePathStyle: cfg.Archive.S3.PathStyle,
		})
		if syncErr != nil {
			return cli.Exit(syncErr.Error(), exitUsage)
		}
		n, syncErr := syncer.SyncAll(c.Context, arch)
		if syncErr != nil {
			return cli.Exit(fmt.Sprintf("archive sync failed after %d records: %v", n, syncErr), exitTransport)
		}
		fmt.Fprintf(os.Stderr, "Synced %d archived conversations\n", n)
	}

	summaries, err := arch.List()
	if err != nil {
		return cli.Exit(fmt.Sprintf("cannot list archive: %v", err), exitUsage)
	}

	if len(summaries) > historyWarningThreshold && isStderrTTY() {
		fmt.Fprintf(os.Stderr, "Warning: %d archived conversations. Consider pruning the archive directory.\n\n", len(summaries))
	}

	if c.Bool("tui") {
		return r.RenderTUI("history_list", summaries)
	}

	rows := make([]HistorySummaryRow, 0, len(summaries))
	for _, s := range summaries {
		rows = append(rows, HistorySummaryRow{
			ConversationID: s.ConversationID,
			Title:          s.Title,
			Mode:           string(s.Mode),
			Turns:          s.TurnCount,
			ArchivedAt:     s.ArchivedAt.Format("2006-01-02 15:04:05"),
		})
	}
	return r.Render(rows)
}

// ShowCommand returns the show command displaying one archived conversation.
func ShowCommand() *cli.Command {
	return &cli.Command{
		Name:      "show",
		Usage:     "Show an archived conversation",
		ArgsUsage: "<conversation-id>",
		Flags:     append(SessionFlags(), ReadOnlyFlags()...),
		Action:    showAction,
	}
}

func showAction(c *cli.Context) error {
	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}
	if c.NArg() != 1 {
		return cli.Exit("show requires exactly one conversation id", exitUsage)
	}

	cfg, err := loadConfig(c)
	if err != nil {
		return cli.Exit(err.Error(), exitUsage)
	}
	arch, err := openArchive(cfg)
	if err != nil {
		return cli.Exit(err.Error(), exitUsage)
	}

	record, err := arch.Get(c.Args().First())
	if err != nil {
		return cli.Exit(fmt.Sprintf("cannot load conversation: %v", err), exitUsage)
	}

	if c.Bool("tui") {
		return r.RenderTUI("history_show", record)
	}
	return r.Render(record)
}

func openArchive(cfg *config.Config) (*store.Archive, error) {
	st, err := openStore(cfg, log.Nop())
	if err != nil {
		return nil, fmt.Errorf("cannot open state store: %w", err)
	}
	return store.NewArchive(st)
}
