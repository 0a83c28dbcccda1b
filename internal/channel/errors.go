// ABOUTME: Domain-level sentinel errors for the group channel membership engine
// ABOUTME: Wrapped with fmt.Errorf and matched with errors.Is by callers

package channel

import "errors"

// ErrInvalidOperation is returned when a membership transition violates one
// of the aggregate's preconditions (see Create/Invite/Accept/Kick/Leave).
var ErrInvalidOperation = errors.New("invalid operation")
