package types

// Mode is the conversation mode derived from content heuristics and the
// bound active source.
type Mode string

// Mode constants.
const (
	ModeChat            Mode = "chat"
	ModeResumeInterview Mode = "resume_interview"
)

// SourceType classifies an ingested document.
type SourceType string

// Source type constants.
const (
	SourceTypeResume SourceType = "resume"
	SourceTypeJD     SourceType = "jd"
	SourceTypeNote   SourceType = "note"
)

// ValidSourceType reports whether s is a recognized source type.
func ValidSourceType(s SourceType) bool {
	switch s {
	case SourceTypeResume, SourceTypeJD, SourceTypeNote:
		return true
	}
	return false
}

// ActiveSource binds a conversation to a previously ingested document.
// It affects the request payload only; nothing is stored server-side.
type ActiveSource struct {
	SourceID   string     `json:"source_id" msgpack:"source_id"`
	SourceType SourceType `json:"source_type" msgpack:"source_type"`
	Filename   string     `json:"filename" msgpack:"filename"`
}

// SessionSnapshot is the persisted shape of a chat session. The session
// controller owns the live state; the store only reads and writes these
// snapshots.
type SessionSnapshot struct {
	Turns        []Turn        `json:"turns"`
	DraftInput   string        `json:"draft_input,omitempty"`
	Title        string        `json:"title,omitempty"`
	UploadType   SourceType    `json:"upload_type,omitempty"`
	ActiveSource *ActiveSource `json:"active_source,omitempty"`
	Mode         Mode          `json:"mode,omitempty"`
}
