// ABOUTME: GroupChannel aggregate and its pure membership transitions
// ABOUTME: No persistence or transport concerns live here, only domain rules

package channel

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// MessageKind enumerates the kinds of GroupMessage that can appear in a
// channel's log.
type MessageKind string

const (
	MessageKindText   MessageKind = "TEXT"
	MessageKindInvite MessageKind = "INVITE"
	MessageKindJoin   MessageKind = "JOIN"
	MessageKindKick   MessageKind = "KICK"
	MessageKindLeave  MessageKind = "LEAVE"
	MessageKindCreate MessageKind = "CREATE"
)

// User is the minimal projection of a user the membership engine needs.
// Users themselves are externally managed; this is just a value reference.
type User struct {
	ID       uuid.UUID
	Username string
}

// Message is an immutable entry in a channel's append-only log.
type Message struct {
	ID        uuid.UUID
	ChannelID uuid.UUID
	FromUser  *User
	Kind      MessageKind
	Payload   string
	CreatedAt time.Time
}

// Channel is the GroupChannel aggregate: membership sets, the message log,
// and the optimistic-concurrency version counter.
type Channel struct {
	ID          uuid.UUID
	Name        string
	Members     map[uuid.UUID]User
	Invited     map[uuid.UUID]User
	Messages    []Message
	LastMessage *Message
	UpdatedAt   time.Time
	Version     int64
}

// NowFunc is overridable in tests; production code always uses time.Now.
var NowFunc = time.Now

// NewUUIDFunc is overridable in tests; production code generates
// version-7, time-ordered identifiers.
var NewUUIDFunc = func() (uuid.UUID, error) { return uuid.NewV7() }

func newID() (uuid.UUID, error) {
	id, err := NewUUIDFunc()
	if err != nil {
		return uuid.UUID{}, fmt.Errorf("generating id: %w", err)
	}
	return id, nil
}

// Create builds a brand-new channel with creator as its sole member and
// appends a CREATE message. name must already be validated (non-empty,
// trimmed, length-bounded) by the caller.
func Create(creator User, name string) (*Channel, error) {
	id, err := newID()
	if err != nil {
		return nil, err
	}

	ch := &Channel{
		ID:      id,
		Name:    name,
		Members: map[uuid.UUID]User{creator.ID: creator},
		Invited: map[uuid.UUID]User{},
		Version: 0,
	}

	if _, err := ch.appendSystemMessage(MessageKindCreate, &creator, ""); err != nil {
		return nil, err
	}

	return ch, nil
}

// Invite adds invitee to the channel's invited set. inviter must already be
// a member, invitee must be neither a member nor already invited, and
// inviter must not equal invitee.
func (c *Channel) Invite(inviter, invitee User) (*Message, error) {
	if _, ok := c.Members[inviter.ID]; !ok {
		return nil, fmt.Errorf("inviter %s is not a member: %w", inviter.ID, ErrInvalidOperation)
	}
	if _, ok := c.Members[invitee.ID]; ok {
		return nil, fmt.Errorf("invitee %s is already a member: %w", invitee.ID, ErrInvalidOperation)
	}
	if _, ok := c.Invited[invitee.ID]; ok {
		return nil, fmt.Errorf("invitee %s is already invited: %w", invitee.ID, ErrInvalidOperation)
	}
	if inviter.ID == invitee.ID {
		return nil, fmt.Errorf("inviter cannot invite themselves: %w", ErrInvalidOperation)
	}

	c.Invited[invitee.ID] = invitee

	return c.appendSystemMessage(MessageKindInvite, &inviter, invitee.ID.String())
}

// Accept moves invitee from invited to members. invitee must currently be
// invited.
func (c *Channel) Accept(invitee User) (*Message, error) {
	if _, ok := c.Invited[invitee.ID]; !ok {
		return nil, fmt.Errorf("user %s is not invited: %w", invitee.ID, ErrInvalidOperation)
	}

	delete(c.Invited, invitee.ID)
	c.Members[invitee.ID] = invitee

	return c.appendSystemMessage(MessageKindJoin, &invitee, "")
}

// Kick removes target from members. actor must be a member, target must be
// a member, and actor must not equal target (use Leave for self-removal).
func (c *Channel) Kick(actor, target User) (*Message, error) {
	if _, ok := c.Members[actor.ID]; !ok {
		return nil, fmt.Errorf("actor %s is not a member: %w", actor.ID, ErrInvalidOperation)
	}
	if _, ok := c.Members[target.ID]; !ok {
		return nil, fmt.Errorf("target %s is not a member: %w", target.ID, ErrInvalidOperation)
	}
	if actor.ID == target.ID {
		return nil, fmt.Errorf("cannot kick yourself, use leave: %w", ErrInvalidOperation)
	}

	delete(c.Members, target.ID)

	return c.appendSystemMessage(MessageKindKick, &actor, target.ID.String())
}

// Leave removes user from members. user must be a member.
func (c *Channel) Leave(user User) (*Message, error) {
	if _, ok := c.Members[user.ID]; !ok {
		return nil, fmt.Errorf("user %s is not a member: %w", user.ID, ErrInvalidOperation)
	}

	delete(c.Members, user.ID)

	return c.appendSystemMessage(MessageKindLeave, &user, "")
}

// appendSystemMessage appends one message to the log, advances UpdatedAt and
// Version, and sets LastMessage. Every exported transition funnels through
// here so the "exactly one message per transition" invariant always holds.
func (c *Channel) appendSystemMessage(kind MessageKind, from *User, payload string) (*Message, error) {
	id, err := newID()
	if err != nil {
		return nil, err
	}

	now := NowFunc()
	msg := Message{
		ID:        id,
		ChannelID: c.ID,
		Kind:      kind,
		Payload:   payload,
		CreatedAt: now,
	}
	if from != nil {
		u := *from
		msg.FromUser = &u
	}

	c.Messages = append(c.Messages, msg)
	c.LastMessage = &c.Messages[len(c.Messages)-1]
	c.UpdatedAt = now
	c.Version++

	return c.LastMessage, nil
}

// Empty reports whether the channel currently has no members. An empty
// channel is still persisted but is excluded from membership queries.
func (c *Channel) Empty() bool {
	return len(c.Members) == 0
}
