package session

import (
	"regexp"

	"github.com/pithecene-io/sluice/types"
)

// interviewIntent matches messages that read like interview practice
// requests. The trigger set is a heuristic, not a contract; keep this
// function pure so the policy can be swapped without touching the
// controller.
var interviewIntent = regexp.MustCompile(`(?i)resume|interview|mock|follow[ -]?up`)

// DetectMode classifies the next turn's conversation mode.
//
// Interview mode requires a bound resume source; without one the answer is
// always plain chat, whatever the message says. With a resume bound, the
// mode sticks once entered and otherwise engages on interview intent in
// the message.
func DetectMode(message string, current types.Mode, active *types.ActiveSource) types.Mode {
	if active == nil || active.SourceType != types.SourceTypeResume {
		return types.ModeChat
	}
	if current == types.ModeResumeInterview || interviewIntent.MatchString(message) {
		return types.ModeResumeInterview
	}
	return types.ModeChat
}
