// ABOUTME: Tests for the pure GroupChannel membership transitions
// ABOUTME: Verifies invariants called out in the membership engine's precondition table

package channel

import (
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newUser(t *testing.T) User {
	t.Helper()
	id, err := uuid.NewV7()
	require.NoError(t, err)
	return User{ID: id, Username: "user-" + id.String()[:8]}
}

func TestCreate_SingleMemberAndCreateMessage(t *testing.T) {
	creator := newUser(t)

	ch, err := Create(creator, "Room A")
	require.NoError(t, err)

	assert.Len(t, ch.Members, 1)
	assert.Contains(t, ch.Members, creator.ID)
	assert.Empty(t, ch.Invited)
	require.Len(t, ch.Messages, 1)
	assert.Equal(t, MessageKindCreate, ch.Messages[0].Kind)
	assert.Equal(t, ch.LastMessage, &ch.Messages[0])
	assert.Equal(t, int64(1), ch.Version)
}

func TestInvite_AppendsInviteMessageAndDisjointSets(t *testing.T) {
	creator, invitee := newUser(t), newUser(t)
	ch, err := Create(creator, "Room A")
	require.NoError(t, err)

	msg, err := ch.Invite(creator, invitee)
	require.NoError(t, err)

	assert.Equal(t, MessageKindInvite, msg.Kind)
	assert.Contains(t, ch.Invited, invitee.ID)
	assertDisjointMembership(t, ch)
}

func TestInvite_RejectsNonMemberInviter(t *testing.T) {
	creator, outsider, invitee := newUser(t), newUser(t), newUser(t)
	ch, err := Create(creator, "Room A")
	require.NoError(t, err)

	_, err = ch.Invite(outsider, invitee)
	assert.ErrorIs(t, err, ErrInvalidOperation)
}

func TestInvite_RejectsSelfInvite(t *testing.T) {
	creator := newUser(t)
	ch, err := Create(creator, "Room A")
	require.NoError(t, err)

	_, err = ch.Invite(creator, creator)
	assert.ErrorIs(t, err, ErrInvalidOperation)
}

func TestInvite_RejectsAlreadyMemberOrInvited(t *testing.T) {
	creator, invitee := newUser(t), newUser(t)
	ch, err := Create(creator, "Room A")
	require.NoError(t, err)

	_, err = ch.Invite(creator, invitee)
	require.NoError(t, err)

	_, err = ch.Invite(creator, invitee)
	assert.ErrorIs(t, err, ErrInvalidOperation)

	_, err = ch.Invite(creator, creator)
	assert.ErrorIs(t, err, ErrInvalidOperation)
}

func TestAccept_MovesInvitedToMember(t *testing.T) {
	creator, invitee := newUser(t), newUser(t)
	ch, err := Create(creator, "Room A")
	require.NoError(t, err)
	_, err = ch.Invite(creator, invitee)
	require.NoError(t, err)

	msg, err := ch.Accept(invitee)
	require.NoError(t, err)

	assert.Equal(t, MessageKindJoin, msg.Kind)
	assert.Contains(t, ch.Members, invitee.ID)
	assert.NotContains(t, ch.Invited, invitee.ID)
	assertDisjointMembership(t, ch)
}

func TestAccept_RejectsUninvitedUser(t *testing.T) {
	creator, stranger := newUser(t), newUser(t)
	ch, err := Create(creator, "Room A")
	require.NoError(t, err)

	_, err = ch.Accept(stranger)
	assert.ErrorIs(t, err, ErrInvalidOperation)
}

func TestKick_RemovesMember(t *testing.T) {
	creator, member := newUser(t), newUser(t)
	ch, err := Create(creator, "Room A")
	require.NoError(t, err)
	_, err = ch.Invite(creator, member)
	require.NoError(t, err)
	_, err = ch.Accept(member)
	require.NoError(t, err)

	msg, err := ch.Kick(creator, member)
	require.NoError(t, err)

	assert.Equal(t, MessageKindKick, msg.Kind)
	assert.NotContains(t, ch.Members, member.ID)
}

func TestKick_RejectsSelfKick(t *testing.T) {
	creator := newUser(t)
	ch, err := Create(creator, "Room A")
	require.NoError(t, err)

	_, err = ch.Kick(creator, creator)
	assert.ErrorIs(t, err, ErrInvalidOperation)
}

func TestKick_RejectsWhenActorNotMember(t *testing.T) {
	creator, target, outsider := newUser(t), newUser(t), newUser(t)
	ch, err := Create(creator, "Room A")
	require.NoError(t, err)
	_, err = ch.Invite(creator, target)
	require.NoError(t, err)
	_, err = ch.Accept(target)
	require.NoError(t, err)

	_, err = ch.Kick(outsider, target)
	assert.ErrorIs(t, err, ErrInvalidOperation)
}

func TestLeave_RemovesLastMemberLeavesChannelEmpty(t *testing.T) {
	creator := newUser(t)
	ch, err := Create(creator, "Room A")
	require.NoError(t, err)

	msg, err := ch.Leave(creator)
	require.NoError(t, err)

	assert.Equal(t, MessageKindLeave, msg.Kind)
	assert.True(t, ch.Empty())
}

func TestEachTransition_AppendsExactlyOneMessage(t *testing.T) {
	creator, invitee := newUser(t), newUser(t)

	ch, err := Create(creator, "Room A")
	require.NoError(t, err)
	assert.Len(t, ch.Messages, 1)

	_, err = ch.Invite(creator, invitee)
	require.NoError(t, err)
	assert.Len(t, ch.Messages, 2)

	_, err = ch.Accept(invitee)
	require.NoError(t, err)
	assert.Len(t, ch.Messages, 3)

	_, err = ch.Kick(creator, invitee)
	require.NoError(t, err)
	assert.Len(t, ch.Messages, 4)

	_, err = ch.Leave(creator)
	require.NoError(t, err)
	assert.Len(t, ch.Messages, 5)

	assert.Equal(t, int64(5), ch.Version)
}

func TestInvalidOperation_IsASentinelError(t *testing.T) {
	creator := newUser(t)
	ch, err := Create(creator, "Room A")
	require.NoError(t, err)

	_, err = ch.Kick(creator, creator)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidOperation))
}

func assertDisjointMembership(t *testing.T, ch *Channel) {
	t.Helper()
	for id := range ch.Members {
		_, inInvited := ch.Invited[id]
		assert.False(t, inInvited, "user %s is in both members and invited", id)
	}
}
