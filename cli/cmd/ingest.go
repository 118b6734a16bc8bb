package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/sluice/cli/render"
	"github.com/pithecene-io/sluice/client"
	"github.com/pithecene-io/sluice/iox"
	"github.com/pithecene-io/sluice/log"
	"github.com/pithecene-io/sluice/session"
	"github.com/pithecene-io/sluice/store"
	"github.com/pithecene-io/sluice/types"
)

// ingestDebugState is the persisted form state of the ingest command.
type ingestDebugState struct {
	SourceType types.SourceType `json:"source_type"`
	Filename   string           `json:"filename,omitempty"`
	SourceID   string           `json:"source_id,omitempty"`
	Chunks     int              `json:"chunks,omitempty"`
	Added      int              `json:"added,omitempty"`
	At         time.Time        `json:"at"`
}

// IngestResponse is the rendered result of an ingest.
type IngestResponse struct {
	SourceID string           `json:"source_id"`
	Type     types.SourceType `json:"source_type"`
	Filename string           `json:"filename,omitempty"`
	Chunks   int              `json:"chunks,omitempty"`
	Added    int              `json:"added,omitempty"`
	Bound    bool             `json:"bound"`
}

// IngestCommand returns the ingest command.
// A file upload binds the resulting source to the persisted session; raw
// text ingestion is a debug surface and binds nothing.
func IngestCommand() *cli.Command {
	return &cli.Command{
		Name:  "ingest",
		Usage: "Upload a document or raw text for retrieval",
		Flags: append(append(SessionFlags(), ReadOnlyFlags()...),
			&cli.StringFlag{
				Name:  "file",
				Usage: "Path to document file to upload",
			},
			&cli.StringFlag{
				Name:  "text",
				Usage: "Raw text to ingest instead of a file",
			},
			&cli.StringFlag{
				Name:  "type",
				Usage: "Source type: resume, jd, note",
				Value: string(types.SourceTypeResume),
			},
			&cli.StringFlag{
				Name:  "source-id",
				Usage: "Source id for raw text ingestion (generated when empty)",
			},
		),
		Action: ingestAction,
	}
}

func ingestAction(c *cli.Context) error {
	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}
	if c.Bool("tui") {
		return cli.Exit("--tui is not supported for ingest", exitUsage)
	}

	sourceType := types.SourceType(c.String("type"))
	if !types.ValidSourceType(sourceType) {
		return cli.Exit(fmt.Sprintf("invalid source type: %q (must be resume, jd or note)", sourceType), exitUsage)
	}

	file := c.String("file")
	text := c.String("text")
	if (file == "") == (text == "") {
		return cli.Exit("exactly one of --file or --text is required", exitUsage)
	}

	cfg, err := loadConfig(c)
	if err != nil {
		return cli.Exit(err.Error(), exitUsage)
	}
	backend, err := newBackendClient(cfg)
	if err != nil {
		return cli.Exit(err.Error(), exitUsage)
	}
	defer iox.DiscardClose(backend)

	st, err := openStore(cfg, log.Nop())
	if err != nil {
		return cli.Exit(fmt.Sprintf("cannot open state store: %v", err), exitUsage)
	}

	var resp IngestResponse
	if file != "" {
		resp, err = ingestFile(c, backend, st, file, sourceType)
	} else {
		resp, err = ingestText(c, backend, st, text, sourceType)
	}
	if err != nil {
		return cli.Exit(err.Error(), exitTransport)
	}

	return r.Render(resp)
}

func ingestFile(c *cli.Context, backend *client.Client, st *store.Store, path string, sourceType types.SourceType) (IngestResponse, error) {
	f, err := os.Open(path)
	if err != nil {
		return IngestResponse{}, fmt.Errorf("cannot open %s: %w", path, err)
	}
	defer iox.DiscardClose(f)

	filename := filepath.Base(path)
	resp, err := backend.IngestFile(c.Context, filename, f, sourceType)
	if err != nil {
		return IngestResponse{}, err
	}

	st.Save(store.KeyIngestDebug, ingestDebugState{
		SourceType: sourceType,
		Filename:   filename,
		SourceID:   resp.SourceID,
		Chunks:     resp.Chunks,
		At:         time.Now().UTC(),
	})
	bindActiveSource(st, &types.ActiveSource{
		SourceID:   resp.SourceID,
		SourceType: sourceType,
		Filename:   filename,
	})

	return IngestResponse{
		SourceID: resp.SourceID,
		Type:     sourceType,
		Filename: filename,
		Chunks:   resp.Chunks,
		Bound:    true,
	}, nil
}

func ingestText(c *cli.Context, backend *client.Client, st *store.Store, text string, sourceType types.SourceType) (IngestResponse, error) {
	sourceID := c.String("source-id")
	if sourceID == "" {
		sourceID = session.NewSourceID()
	}

	resp, err := backend.IngestText(c.Context, &client.IngestTextRequest{
		SourceID:   sourceID,
		SourceType: sourceType,
		Text:       text,
	})
	if err != nil {
		return IngestResponse{}, err
	}

	st.Save(store.KeyIngestDebug, ingestDebugState{
		SourceType: sourceType,
		SourceID:   sourceID,
		Added:      resp.Added,
		At:         time.Now().UTC(),
	})

	return IngestResponse{
		SourceID: sourceID,
		Type:     sourceType,
		Added:    resp.Added,
	}, nil
}

// bindActiveSource points the persisted session at the new document, so
// the next chat session picks it up on restore.
func bindActiveSource(st *store.Store, src *types.ActiveSource) {
	snap, ok := st.LoadSession()
	if !ok {
		snap = &types.SessionSnapshot{}
	}
	snap.ActiveSource = src
	snap.UploadType = src.SourceType
	st.SaveSession(snap)
}
