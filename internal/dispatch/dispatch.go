// ABOUTME: Dispatch Loop: the shared bus-message handling logic reused by every subject subscription
// ABOUTME: Decodes the subject to a userId and hands the raw payload to a deliver callback

package dispatch

import (
	"log/slog"

	"github.com/google/uuid"

	"github.com/2389/groupchat-gateway/internal/subject"
)

// Deliver is called with the decoded userId and the raw message payload for
// every inbound bus message whose subject decodes successfully.
type Deliver func(userID uuid.UUID, payload []byte)

// HandleMessage implements the spec's "single shared handler": decode subj
// to a userId via the inverse Subject Codec, then invoke deliver. A
// deserialization failure (here, an undecodable subject) is logged and
// dropped — the bus message is not redelivered.
func HandleMessage(logger *slog.Logger, deliver Deliver, subj string, payload []byte) {
	if logger == nil {
		logger = slog.Default()
	}

	userID, err := subject.Decode(subj)
	if err != nil {
		logger.With("component", "dispatch").Warn("dropping message with undecodable subject", "subject", subj, "error", err)
		return
	}

	deliver(userID, payload)
}
