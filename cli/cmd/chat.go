package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/sluice/adapter"
	"github.com/pithecene-io/sluice/cli/config"
	"github.com/pithecene-io/sluice/cli/tui"
	"github.com/pithecene-io/sluice/iox"
	"github.com/pithecene-io/sluice/log"
	"github.com/pithecene-io/sluice/metrics"
	"github.com/pithecene-io/sluice/session"
	"github.com/pithecene-io/sluice/store"
)

// publishTimeout bounds a single turn-completed publish.
const publishTimeout = 10 * time.Second

// ChatCommand returns the interactive chat command.
func ChatCommand() *cli.Command {
	return &cli.Command{
		Name:  "chat",
		Usage: "Start an interactive chat session",
		Flags: append(SessionFlags(),
			&cli.BoolFlag{
				Name:  "no-persist",
				Usage: "Do not restore or persist session state",
			},
		),
		Action: chatAction,
	}
}

func chatAction(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return cli.Exit(err.Error(), exitUsage)
	}

	backend, err := newBackendClient(cfg)
	if err != nil {
		return cli.Exit(err.Error(), exitUsage)
	}
	defer iox.DiscardClose(backend)

	persist := !c.Bool("no-persist")

	// The TUI owns the terminal, so logs go to a file under the state dir.
	logger := log.Nop()
	var st *store.Store
	var writer *store.AsyncWriter
	if persist {
		if mkErr := os.MkdirAll(cfg.State.Dir, 0o755); mkErr != nil {
			return cli.Exit(fmt.Sprintf("cannot create state dir: %v", mkErr), exitUsage)
		}
		logPath := filepath.Join(cfg.State.Dir, "sluice.log")
		if logFile, openErr := os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644); openErr == nil {
			logger = log.NewLogger("").WithOutput(logFile)
			defer iox.DiscardClose(logFile)
		}

		st, err = openStore(cfg, logger)
		if err != nil {
			return cli.Exit(fmt.Sprintf("cannot open state store: %v", err), exitUsage)
		}
		writer = store.NewAsyncWriter(st, cfg.State.FlushInterval.Duration)
	}

	publisher, err := buildAdapter(cfg)
	if err != nil {
		return cli.Exit(err.Error(), exitUsage)
	}
	var onSettled func(session.TurnResult)
	if publisher != nil {
		defer iox.DiscardClose(publisher)
		onSettled = func(res session.TurnResult) {
			go publishTurn(publisher, logger, res)
		}
	}

	conversationID := session.NewConversationID()
	collector := metrics.NewCollector(conversationID, cfg.Backend.BaseURL)

	sessionCfg := session.Config{
		Backend:        backend,
		Logger:         logger,
		Collector:      collector,
		ConversationID: conversationID,
		OnTurnSettled:  onSettled,
	}
	if persist {
		sessionCfg.Writer = writer
		if snap, ok := st.LoadSession(); ok {
			sessionCfg.Restore = snap
		}
	}

	ctrl, err := session.New(sessionCfg)
	if err != nil {
		return cli.Exit(err.Error(), exitUsage)
	}

	runErr := tui.RunChat(ctrl)

	final := ctrl.Snapshot()
	_ = ctrl.Close()
	if writer != nil {
		_ = writer.Close()
	}

	m := collector.Snapshot()
	logger.Info("session closed", map[string]any{
		"turns_started":   m.TurnsStarted,
		"turns_completed": m.TurnsCompleted,
		"turns_errored":   m.TurnsErrored,
		"turns_aborted":   m.TurnsAborted,
		"fallbacks_used":  m.FallbacksUsed,
	})

	if cfg.Archive.Enabled && st != nil && len(final.Turns) > 0 && !final.Streaming {
		if archErr := archiveConversation(c.Context, cfg, st, final); archErr != nil {
			fmt.Fprintf(os.Stderr, "Warning: conversation archive failed: %v\n", archErr)
		}
	}

	if runErr != nil {
		return cli.Exit(fmt.Sprintf("chat session failed: %v", runErr), exitUsage)
	}
	return nil
}

// publishTurn fires one turn-completed event at the configured adapter.
// Publish failures are logged, never surfaced to the session.
func publishTurn(pub adapter.Adapter, logger *log.Logger, res session.TurnResult) {
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()

	event := &adapter.TurnCompletedEvent{
		ContractVersion: adapter.ContractVersion,
		EventType:       adapter.EventTypeTurnCompleted,
		ConversationID:  res.ConversationID,
		RequestID:       res.RequestID,
		Mode:            string(res.Mode),
		Outcome:         res.Outcome,
		ContentChars:    res.ContentChars,
		CitationCount:   res.CitationCount,
		EvidenceCount:   res.EvidenceCount,
		DurationMs:      res.Duration.Milliseconds(),
		Timestamp:       time.Now().UTC().Format(time.RFC3339),
	}
	if err := pub.Publish(ctx, event); err != nil {
		logger.Warn("turn completed publish failed", map[string]any{
			"request_id": res.RequestID,
			"error":      err.Error(),
		})
	}
}

// archiveConversation writes the finished conversation into the local
// archive and syncs it to S3 when a bucket is configured.
func archiveConversation(ctx context.Context, cfg *config.Config, st *store.Store, snap session.Snapshot) error {
	arch, err := store.NewArchive(st)
	if err != nil {
		return err
	}

	record := &store.ConversationRecord{
		ConversationID: snap.ConversationID,
		Title:          snap.Title,
		Mode:           snap.Mode,
		StartedAt:      snap.StartedAt,
		ArchivedAt:     time.Now().UTC(),
		Turns:          snap.Turns,
		ActiveSource:   snap.ActiveSource,
	}
	if err := arch.Put(record); err != nil {
		return err
	}

	if cfg.Archive.S3.Bucket == "" {
		return nil
	}
	syncer, err := store.NewS3Syncer(ctx, store.S3Config{
		Bucket:       cfg.Archive.S3.Bucket,
		Prefix:       cfg.Archive.S3.Prefix,
		Region:       cfg.Archive.S3.Region,
		Endpoint:     cfg.Archive.S3.Endpoint,
		UsePathStyle: cfg.Archive.S3.PathStyle,
	})
	if err != nil {
		return err
	}
	return syncer.SyncRecord(ctx, arch, snap.ConversationID)
}
