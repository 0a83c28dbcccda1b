// ABOUTME: Sentinel errors surfaced by the Channel Service's public operations

package channelservice

import "errors"

// ErrValidation covers malformed identifiers, bad page parameters, and
// invalid channel names. Never retried.
var ErrValidation = errors.New("validation error")

// ErrUserDoesNotExist is returned when a referenced user id has no backing
// user row.
var ErrUserDoesNotExist = errors.New("user does not exist")

// ErrChannelDoesNotExist is returned when a referenced channel id has no
// backing channel row.
var ErrChannelDoesNotExist = errors.New("channel does not exist")
