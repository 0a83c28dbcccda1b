// ABOUTME: Bus subject codec translating between a user id and its group-traffic subject
// ABOUTME: No persistence or transport concerns live here, only the encoding bijection

package subject

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// groupUserPrefix namespaces group-channel subjects away from any hypothetical
// chat.private.user.* or chat.system.* families and contains no NATS
// wildcard characters ('*', '>').
const groupUserPrefix = "chat.group.user."

// Encode returns the bus subject a given user's group traffic is published
// and subscribed to.
func Encode(userID uuid.UUID) string {
	return groupUserPrefix + userID.String()
}

// Decode inverts Encode. It returns an error if subject is not a
// well-formed group-user subject.
func Decode(subject string) (uuid.UUID, error) {
	rest, ok := strings.CutPrefix(subject, groupUserPrefix)
	if !ok {
		return uuid.UUID{}, fmt.Errorf("subject %q does not have prefix %q", subject, groupUserPrefix)
	}
	id, err := uuid.Parse(rest)
	if err != nil {
		return uuid.UUID{}, fmt.Errorf("parsing user id from subject %q: %w", subject, err)
	}
	return id, nil
}
