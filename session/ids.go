package session

import (
	"strings"

	"github.com/google/uuid"
)

// idLen is the number of hex characters kept from the generated UUID.
const idLen = 12

// NewConversationID returns a fresh conversation id, e.g. conv_3f9a1c0d72be.
func NewConversationID() string {
	return newID("conv")
}

// NewRequestID returns a fresh per-turn request id, e.g. req_8c2e44f1a09d.
func NewRequestID() string {
	return newID("req")
}

// NewSourceID returns a fresh ingested-source id, e.g. src_5d7b20c9e431.
func NewSourceID() string {
	return newID("src")
}

func newID(prefix string) string {
	hex := strings.ReplaceAll(uuid.NewString(), "-", "")
	return prefix + "_" + hex[:idLen]
}
