// ABOUTME: Tests for the Channel Service orchestrator: validation, transitions, retries, publish

package channelservice

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/groupchat-gateway/internal/bus"
	"github.com/2389/groupchat-gateway/internal/channel"
	"github.com/2389/groupchat-gateway/internal/store"
)

// flakySaveStore wraps a real Store and, for its first N calls to Save,
// returns store.ErrOptimisticConflict instead of delegating. It exists to
// exercise withOptimisticRetry's recovery path without a real concurrent
// writer racing the test.
type flakySaveStore struct {
	store.Store

	mu        sync.Mutex
	failTimes int
}

func (f *flakySaveStore) Save(ctx context.Context, ch *channel.Channel) error {
	f.mu.Lock()
	if f.failTimes > 0 {
		f.failTimes--
		f.mu.Unlock()
		return store.ErrOptimisticConflict
	}
	f.mu.Unlock()
	return f.Store.Save(ctx, ch)
}

func newTestService(t *testing.T) (*Service, *store.SQLiteStore, *bus.MemoryBus) {
	t.Helper()
	st, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	b := bus.NewMemoryBus()
	return New(st, b, nil), st, b
}

func createTestUser(t *testing.T, ctx context.Context, st *store.SQLiteStore, username string) channel.User {
	t.Helper()
	id, err := uuid.NewV7()
	require.NoError(t, err)
	u := channel.User{ID: id, Username: username}
	require.NoError(t, st.CreateUser(ctx, u))
	return u
}

func TestCreateChannel_SingleMemberAndListed(t *testing.T) {
	svc, st, _ := newTestService(t)
	ctx := context.Background()
	creator := createTestUser(t, ctx, st, "alice")

	profile, err := svc.CreateChannel(ctx, creator.ID.String(), "Room A")
	require.NoError(t, err)
	assert.Equal(t, "Room A", profile.Name)
	require.Len(t, profile.Members, 1)
	assert.Equal(t, creator.ID, profile.Members[0].ID)

	page, err := svc.GetAllChannels(ctx, creator.ID.String(), time.Time{}, 0, 10)
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "Room A", page.Items[0].Name)
}

func TestCreateChannel_RejectsEmptyName(t *testing.T) {
	svc, st, _ := newTestService(t)
	ctx := context.Background()
	creator := createTestUser(t, ctx, st, "alice")

	_, err := svc.CreateChannel(ctx, creator.ID.String(), "   ")
	assert.ErrorIs(t, err, ErrValidation)
}

func TestCreateChannel_RejectsUnknownUser(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	unknown, err := uuid.NewV7()
	require.NoError(t, err)

	_, err = svc.CreateChannel(ctx, unknown.String(), "Room A")
	assert.ErrorIs(t, err, ErrUserDoesNotExist)
}

func TestInviteAcceptFlow_PublishesToMembers(t *testing.T) {
	svc, st, b := newTestService(t)
	ctx := context.Background()
	alice := createTestUser(t, ctx, st, "alice")
	bob := createTestUser(t, ctx, st, "bob")

	profile, err := svc.CreateChannel(ctx, alice.ID.String(), "Room A")
	require.NoError(t, err)

	var received []byte
	_, err = b.Subscribe("chat.group.user."+alice.ID.String(), func(payload []byte) {
		received = payload
	})
	require.NoError(t, err)

	msg, err := svc.InviteToChannel(ctx, alice.ID.String(), bob.ID.String(), profile.ID.String())
	require.NoError(t, err)
	assert.Equal(t, "INVITE", msg.Kind)
	assert.NotNil(t, received)

	joinMsg, err := svc.AcceptInvitation(ctx, bob.ID.String(), profile.ID.String())
	require.NoError(t, err)
	assert.Equal(t, "JOIN", joinMsg.Kind)

	got, err := svc.GetChannelProfile(ctx, bob.ID.String(), profile.ID.String())
	require.NoError(t, err)
	assert.Len(t, got.Members, 2)
}

func TestRemoveFromChannel_RejectsSelfKick(t *testing.T) {
	svc, st, _ := newTestService(t)
	ctx := context.Background()
	alice := createTestUser(t, ctx, st, "alice")

	profile, err := svc.CreateChannel(ctx, alice.ID.String(), "Room A")
	require.NoError(t, err)

	_, err = svc.RemoveFromChannel(ctx, alice.ID.String(), alice.ID.String(), profile.ID.String())
	assert.ErrorIs(t, err, channel.ErrInvalidOperation)
}

func TestLeaveChannel_RemovesFromMembershipListing(t *testing.T) {
	svc, st, _ := newTestService(t)
	ctx := context.Background()
	alice := createTestUser(t, ctx, st, "alice")

	profile, err := svc.CreateChannel(ctx, alice.ID.String(), "Room A")
	require.NoError(t, err)

	_, err = svc.LeaveChannel(ctx, alice.ID.String(), profile.ID.String())
	require.NoError(t, err)

	page, err := svc.GetAllChannels(ctx, alice.ID.String(), time.Time{}, 0, 10)
	require.NoError(t, err)
	assert.Empty(t, page.Items)
}

func TestGetChannelProfile_RejectsNonMember(t *testing.T) {
	svc, st, _ := newTestService(t)
	ctx := context.Background()
	alice := createTestUser(t, ctx, st, "alice")
	stranger := createTestUser(t, ctx, st, "stranger")

	profile, err := svc.CreateChannel(ctx, alice.ID.String(), "Room A")
	require.NoError(t, err)

	_, err = svc.GetChannelProfile(ctx, stranger.ID.String(), profile.ID.String())
	assert.ErrorIs(t, err, channel.ErrInvalidOperation)
}

func TestCreateChannel_RecoversFromSingleOptimisticConflict(t *testing.T) {
	st, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	flaky := &flakySaveStore{Store: st, failTimes: 1}
	svc := New(flaky, bus.NewMemoryBus(), nil)

	ctx := context.Background()
	creator := createTestUser(t, ctx, st, "alice")

	profile, err := svc.CreateChannel(ctx, creator.ID.String(), "Room A")
	require.NoError(t, err)
	assert.Equal(t, 0, flaky.failTimes)

	stored, err := st.FindChannelByID(ctx, profile.ID)
	require.NoError(t, err)
	assert.Len(t, stored.Messages, 1)
	assert.Equal(t, channel.MessageKindCreate, stored.Messages[0].Kind)
}

func TestGetAllChannels_RejectsInvalidPage(t *testing.T) {
	svc, st, _ := newTestService(t)
	ctx := context.Background()
	alice := createTestUser(t, ctx, st, "alice")

	_, err := svc.GetAllChannels(ctx, alice.ID.String(), time.Time{}, -1, 10)
	assert.True(t, errors.Is(err, ErrValidation))
}
