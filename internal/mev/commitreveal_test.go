package mev

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/versefi/versequeue/internal/crypto"
	"github.com/versefi/versequeue/internal/domain"
)

func testDigest(user string) crypto.OrderDigest {
	return crypto.OrderDigest{
		User:           user,
		SyntheticID:    "BTC-UP",
		IsBuy:          true,
		Amount:         75_000,
		LimitPriceBps:  5_100,
		MaxSlippageBps: 50,
	}
}

func TestCommitRevealRoundTrip(t *testing.T) {
	cr := NewCommitReveal(CommitRevealConfig{RevealDelaySlots: 5, GraceSlots: 50})
	d := testDigest("alice")
	hash := crypto.CommitmentHash(d, 42)

	require.NoError(t, cr.Commit("alice", hash, 100))
	assert.True(t, cr.Outstanding("alice", 100))

	commitSlot, err := cr.Reveal("alice", d, 42, 105)
	require.NoError(t, err)
	assert.Equal(t, uint64(100), commitSlot, "reveal returns the original commit slot")
	assert.False(t, cr.Outstanding("alice", 105))
}

func TestCommitRevealTooEarly(t *testing.T) {
	cr := NewCommitReveal(CommitRevealConfig{RevealDelaySlots: 5, GraceSlots: 50})
	d := testDigest("alice")
	require.NoError(t, cr.Commit("alice", crypto.CommitmentHash(d, 42), 100))

	_, err := cr.Reveal("alice", d, 42, 104)
	assert.ErrorIs(t, err, domain.ErrRevealTooEarly)

	// The commitment survives a premature reveal attempt.
	_, err = cr.Reveal("alice", d, 42, 105)
	assert.NoError(t, err)
}

func TestCommitRevealWrongNonce(t *testing.T) {
	cr := NewCommitReveal(CommitRevealConfig{RevealDelaySlots: 5, GraceSlots: 50})
	d := testDigest("alice")
	require.NoError(t, cr.Commit("alice", crypto.CommitmentHash(d, 42), 100))

	_, err := cr.Reveal("alice", d, 43, 105)
	assert.ErrorIs(t, err, domain.ErrHashMismatch)
}

func TestCommitRevealAlteredOrder(t *testing.T) {
	cr := NewCommitReveal(CommitRevealConfig{RevealDelaySlots: 5, GraceSlots: 50})
	d := testDigest("alice")
	require.NoError(t, cr.Commit("alice", crypto.CommitmentHash(d, 42), 100))

	altered := d
	altered.Amount = 76_000
	_, err := cr.Reveal("alice", altered, 42, 105)
	assert.ErrorIs(t, err, domain.ErrHashMismatch)
}

func TestCommitRevealExpiry(t *testing.T) {
	cr := NewCommitReveal(CommitRevealConfig{RevealDelaySlots: 5, GraceSlots: 50})
	d := testDigest("alice")
	require.NoError(t, cr.Commit("alice", crypto.CommitmentHash(d, 42), 100))

	_, err := cr.Reveal("alice", d, 42, 156)
	assert.ErrorIs(t, err, domain.ErrCommitmentExpired)

	// The expired commitment is gone; the user can commit again.
	assert.NoError(t, cr.Commit("alice", crypto.CommitmentHash(d, 43), 157))
}

func TestCommitRevealReplayBlocked(t *testing.T) {
	cr := NewCommitReveal(CommitRevealConfig{RevealDelaySlots: 5, GraceSlots: 50})
	d := testDigest("alice")
	hash := crypto.CommitmentHash(d, 42)

	require.NoError(t, cr.Commit("alice", hash, 100))
	_, err := cr.Reveal("alice", d, 42, 105)
	require.NoError(t, err)

	// Re-committing the consumed hash is refused.
	err = cr.Commit("alice", hash, 110)
	assert.ErrorIs(t, err, domain.ErrDuplicateEntry)

	// And a second reveal finds nothing outstanding.
	_, err = cr.Reveal("alice", d, 42, 115)
	assert.ErrorIs(t, err, domain.ErrUnknownCommitment)
}

func TestCommitRevealOnePerUser(t *testing.T) {
	cr := NewCommitReveal(CommitRevealConfig{RevealDelaySlots: 5, GraceSlots: 50})
	d := testDigest("alice")
	require.NoError(t, cr.Commit("alice", crypto.CommitmentHash(d, 1), 100))

	err := cr.Commit("alice", crypto.CommitmentHash(d, 2), 101)
	assert.ErrorIs(t, err, domain.ErrCommitmentPending)

	// Another user is unaffected.
	assert.NoError(t, cr.Commit("bob", crypto.CommitmentHash(testDigest("bob"), 1), 101))

	// After expiry the slot frees up without an explicit purge.
	assert.NoError(t, cr.Commit("alice", crypto.CommitmentHash(d, 3), 200))
}

func TestCommitRevealPurgeExpired(t *testing.T) {
	cr := NewCommitReveal(CommitRevealConfig{RevealDelaySlots: 5, GraceSlots: 50})
	require.NoError(t, cr.Commit("alice", crypto.CommitmentHash(testDigest("alice"), 1), 100))
	require.NoError(t, cr.Commit("bob", crypto.CommitmentHash(testDigest("bob"), 1), 140))

	assert.Equal(t, 0, cr.PurgeExpired(150))
	assert.Equal(t, 1, cr.PurgeExpired(160), "alice's window closed at slot 155")
	assert.False(t, cr.Outstanding("alice", 160))
	assert.True(t, cr.Outstanding("bob", 160))
}
