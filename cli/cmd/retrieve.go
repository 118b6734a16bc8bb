package cmd

import (
	"fmt"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/sluice/cli/render"
	"github.com/pithecene-io/sluice/client"
	"github.com/pithecene-io/sluice/iox"
	"github.com/pithecene-io/sluice/log"
	"github.com/pithecene-io/sluice/store"
)

// retrieveDebugState is the persisted form state of the retrieve command.
type retrieveDebugState struct {
	Query   string            `json:"query"`
	TopK    int               `json:"top_k,omitempty"`
	Filter  map[string]string `json:"filter,omitempty"`
	RawBody string            `json:"raw_body,omitempty"`
	At      time.Time         `json:"at"`
}

// RetrieveRow is one rendered retrieval match.
type RetrieveRow struct {
	Score  string `json:"score"`
	Source string `json:"source"`
	Text   string `json:"text"`
}

// RetrieveCommand returns the retrieval debug command.
func RetrieveCommand() *cli.Command {
	return &cli.Command{
		Name:  "retrieve",
		Usage: "Query the retrieval index directly (debug)",
		Flags: append(append(SessionFlags(), ReadOnlyFlags()...),
			&cli.StringFlag{
				Name:     "query",
				Aliases:  []string{"q"},
				Usage:    "Retrieval query text",
				Required: true,
			},
			&cli.IntFlag{
				Name:  "top-k",
				Usage: "Number of matches to request",
				Value: 5,
			},
			&cli.StringFlag{
				Name:  "source-type",
				Usage: "Filter matches by source type",
			},
			&cli.StringFlag{
				Name:  "source-id",
				Usage: "Filter matches by source id",
			},
		),
		Action: retrieveAction,
	}
}

func retrieveAction(c *cli.Context) error {
	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}
	if c.Bool("tui") {
		return cli.Exit("--tui is not supported for retrieve", exitUsage)
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

	filter := map[string]string{}
	if v := c.String("source-type"); v != "" {
		filter["source_type"] = v
	}
	if v := c.String("source-id"); v != "" {
		filter["source_id"] = v
	}
	if len(filter) == 0 {
		filter = nil
	}

	req := &client.RetrieveRequest{
		Query:  c.String("query"),
		TopK:   c.Int("top-k"),
		Filter: filter,
	}
	resp, raw, err := backend.Retrieve(c.Context, req)

	// The raw body is kept for debugging even when decoding failed.
	if st, storeErr := openStore(cfg, log.Nop()); storeErr == nil {
		st.Save(store.KeyRetrieveDebug, retrieveDebugState{
			Query:   req.Query,
			TopK:    req.TopK,
			Filter:  req.Filter,
			RawBody: raw,
			At:      time.Now().UTC(),
		})
	}

	if err != nil {
		return cli.Exit(err.Error(), exitTransport)
	}
	if resp.Error != "" {
		return cli.Exit(fmt.Sprintf("retrieve failed: %s", resp.Error), exitTransport)
	}

	items := resp.Items()
	rows := make([]RetrieveRow, 0, len(items))
	for _, item := range items {
		rows = append(rows, RetrieveRow{
			Score:  formatScore(item.Score),
			Source: sourceLabel(item.Metadata),
			Text:   matchText(item),
		})
	}

	return r.Render(rows)
}

func formatScore(score *float64) string {
	if score == nil {
		return "-"
	}
	return fmt.Sprintf("%.4f", *score)
}

// sourceLabel extracts a human-readable source label from match metadata.
func sourceLabel(metadata map[string]any) string {
	for _, key := range []string{"source_id", "filename", "source_type"} {
		if v, ok := metadata[key].(string); ok && v != "" {
			return v
		}
	}
	return "-"
}

// matchText returns whichever text field the backend populated.
func matchText(item client.RetrieveResult) string {
	if item.Text != "" {
		return item.Text
	}
	return item.Document
}
