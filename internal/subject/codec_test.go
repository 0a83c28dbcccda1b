// ABOUTME: Tests for the subject codec bijection and namespace disjointness

package subject

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecode_RoundTrip(t *testing.T) {
	id, err := uuid.NewV7()
	require.NoError(t, err)

	subj := Encode(id)
	assert.Equal(t, "chat.group.user."+id.String(), subj)

	got, err := Decode(subj)
	require.NoError(t, err)
	assert.Equal(t, id, got)
}

func TestEncode_ContainsNoWildcards(t *testing.T) {
	id, err := uuid.NewV7()
	require.NoError(t, err)
	subj := Encode(id)
	assert.NotContains(t, subj, "*")
	assert.NotContains(t, subj, ">")
}

func TestDecode_RejectsWrongPrefix(t *testing.T) {
	_, err := Decode("chat.private.user.not-a-subject")
	assert.Error(t, err)
}

func TestDecode_RejectsMalformedUUID(t *testing.T) {
	_, err := Decode("chat.group.user.not-a-uuid")
	assert.Error(t, err)
}

func TestEncode_DistinctUsersNeverCollide(t *testing.T) {
	a, err := uuid.NewV7()
	require.NoError(t, err)
	b, err := uuid.NewV7()
	require.NoError(t, err)
	assert.NotEqual(t, Encode(a), Encode(b))
}
