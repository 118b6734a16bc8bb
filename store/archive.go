package store

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/pithecene-io/sluice/iox"
	"github.com/pithecene-io/sluice/types"
)

// archiveExt is the file extension for archived conversation records.
const archiveExt = ".mpk"

// ConversationRecord is one archived conversation: the full turn list plus
// the metadata needed to list and reopen it later.
type ConversationRecord struct {
	ConversationID string              `msgpack:"conversation_id" json:"conversation_id"`
	Title          string              `msgpack:"title" json:"title"`
	Mode           types.Mode          `msgpack:"mode" json:"mode"`
	StartedAt      time.Time           `msgpack:"started_at" json:"started_at"`
	ArchivedAt     time.Time           `msgpack:"archived_at" json:"archived_at"`
	Turns          []types.Turn        `msgpack:"turns" json:"turns"`
	ActiveSource   *types.ActiveSource `msgpack:"active_source,omitempty" json:"active_source,omitempty"`
}

// ConversationSummary is the listing view of an archived conversation.
type ConversationSummary struct {
	ConversationID string     `json:"conversation_id"`
	Title          string     `json:"title"`
	Mode           types.Mode `json:"mode"`
	ArchivedAt     time.Time  `json:"archived_at"`
	TurnCount      int        `json:"turn_count"`
}

// Archive stores completed conversations as msgpack records, one file per
// conversation, under <state dir>/archive.
type Archive struct {
	dir string
}

// NewArchive creates an archive rooted under the store's state directory.
func NewArchive(s *Store) (*Archive, error) {
	dir := filepath.Join(s.Dir(), "archive")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create archive dir: %w", err)
	}
	return &Archive{dir: dir}, nil
}

// Put writes (or overwrites) the record for its conversation id.
// Unlike snapshot writes, archive writes report failure: the caller asked
// for durable history explicitly.
func (a *Archive) Put(record *ConversationRecord) error {
	if record.ConversationID == "" {
		return errors.New("archive record requires a conversation id")
	}
	path, err := a.recordPath(record.ConversationID)
	if err != nil {
		return err
	}

	data, err := msgpack.Marshal(record)
	if err != nil {
		return fmt.Errorf("encode conversation %s: %w", record.ConversationID, err)
	}

	tmp, err := os.CreateTemp(a.dir, "archive.*.tmp")
	if err != nil {
		return fmt.Errorf("archive conversation %s: %w", record.ConversationID, err)
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("archive conversation %s: %w", record.ConversationID, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("archive conversation %s: %w", record.ConversationID, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("archive conversation %s: %w", record.ConversationID, err)
	}
	return nil
}

// Get reads the archived record for conversationID.
// Returns fs.ErrNotExist when no record exists.
func (a *Archive) Get(conversationID string) (*ConversationRecord, error) {
	path, err := a.recordPath(conversationID)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("read conversation %s: %w", conversationID, err)
	}
	defer iox.DiscardClose(f)

	var record ConversationRecord
	if err := msgpack.NewDecoder(f).Decode(&record); err != nil {
		return nil, fmt.Errorf("decode conversation %s: %w", conversationID, err)
	}
	return &record, nil
}

// List returns summaries of all archived conversations, newest first.
// Unreadable records are skipped rather than failing the whole listing.
func (a *Archive) List() ([]ConversationSummary, error) {
	entries, err := os.ReadDir(a.dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list archive: %w", err)
	}

	summaries := make([]ConversationSummary, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), archiveExt) {
			continue
		}
		id := strings.TrimSuffix(entry.Name(), archiveExt)
		record, err := a.Get(id)
		if err != nil {
			continue
		}
		summaries = append(summaries, ConversationSummary{
			ConversationID: record.ConversationID,
			Title:          record.Title,
			Mode:           record.Mode,
			ArchivedAt:     record.ArchivedAt,
			TurnCount:      len(record.Turns),
		})
	}

	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].ArchivedAt.After(summaries[j].ArchivedAt)
	})
	return summaries, nil
}

// Dir returns the archive directory path.
func (a *Archive) Dir() string { return a.dir }

func (a *Archive) recordPath(conversationID string) (string, error) {
	if conversationID == "" || strings.ContainsAny(conversationID, `/\`) || strings.Contains(conversationID, "..") {
		return "", fmt.Errorf("invalid conversation id %q", conversationID)
	}
	return filepath.Join(a.dir, conversationID+archiveExt), nil
}
