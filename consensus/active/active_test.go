package active

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/burstubi/node/walletaddr"
)

func addr(b byte) walletaddr.WalletAddress {
	var a walletaddr.WalletAddress
	a[0] = b
	return a
}

func rootHash(b byte) walletaddr.BlockHash {
	var h walletaddr.BlockHash
	h[0] = b
	return h
}

func TestStartElectionCapacityReached(t *testing.T) {
	r := NewRegistry(1)
	require.NoError(t, r.StartElection(rootHash(1), 0))
	err := r.StartElection(rootHash(2), 0)
	assert.ErrorIs(t, err, ErrCapacityReached)

	// already-present root is a no-op, not a capacity error
	assert.NoError(t, r.StartElection(rootHash(1), 0))
}

func TestProcessVoteUnknownRoot(t *testing.T) {
	r := NewRegistry(10)
	_, err := r.ProcessVote(rootHash(1), addr(1), rootHash(1), 10, false, 0)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestProcessVoteConfirmsAndIgnoresAfter(t *testing.T) {
	r := NewRegistry(10)
	r.SetOnlineWeight(1000)
	require.NoError(t, r.StartElection(rootHash(1), 0))

	status, err := r.ProcessVote(rootHash(1), addr(1), rootHash(1), 700, false, 1)
	require.NoError(t, err)
	require.NotNil(t, status)
	assert.Equal(t, uint64(700), status.Tally)

	_, err = r.ProcessVote(rootHash(1), addr(2), rootHash(1), 10, false, 2)
	assert.ErrorIs(t, err, ErrAlreadyConfirmed)
}

func TestCleanupExpiredRemovesOnly(t *testing.T) {
	r := NewRegistry(10)
	require.NoError(t, r.StartElection(rootHash(1), 0))
	require.NoError(t, r.StartElection(rootHash(2), 0))

	r.SetOnlineWeight(1000)
	_, err := r.ProcessVote(rootHash(2), addr(1), rootHash(2), 1000, false, 1)
	require.NoError(t, err)

	removed := r.CleanupExpired(1000, 5) // 5 secs = 5000ms >= 1000ms timeout
	assert.ElementsMatch(t, []walletaddr.BlockHash{rootHash(1)}, removed)
	assert.Equal(t, 1, r.Count())
}

func TestCleanupConfirmedIdempotent(t *testing.T) {
	r := NewRegistry(10)
	r.SetOnlineWeight(10)
	require.NoError(t, r.StartElection(rootHash(1), 0))
	_, err := r.ProcessVote(rootHash(1), addr(1), rootHash(1), 10, false, 1)
	require.NoError(t, err)

	assert.Equal(t, []walletaddr.BlockHash{rootHash(1)}, r.ConfirmedElections())
	r.CleanupConfirmed()
	assert.Empty(t, r.ConfirmedElections())
	r.CleanupConfirmed() // no-op, must not panic
	assert.Equal(t, 0, r.Count())
}

func TestGetForkLosers(t *testing.T) {
	r := NewRegistry(10)
	r.SetOnlineWeight(1000)
	require.NoError(t, r.StartElection(rootHash(1), 0))

	winner := rootHash(0xAA)
	loser := rootHash(0xBB)
	_, err := r.ProcessVote(rootHash(1), addr(1), loser, 200, false, 1)
	require.NoError(t, err)
	status, err := r.ProcessVote(rootHash(1), addr(2), winner, 700, false, 2)
	require.NoError(t, err)
	require.NotNil(t, status)
	assert.Equal(t, winner, status.Winner)

	losers, err := r.GetForkLosers(rootHash(1))
	require.NoError(t, err)
	assert.Equal(t, []walletaddr.BlockHash{loser}, losers)
}

func TestConfirmationsWakesWaiterOnConfirm(t *testing.T) {
	r := NewRegistry(10)
	r.SetOnlineWeight(10)
	waiter := r.Confirmations()
	require.NoError(t, r.StartElection(rootHash(1), 0))

	_, err := r.ProcessVote(rootHash(1), addr(1), rootHash(1), 10, false, 1)
	require.NoError(t, err)

	select {
	case <-waiter.C():
	case <-time.After(time.Second):
		t.Fatal("confirmation did not wake waiter")
	}
}

func TestResolveForkExpiresNonConfirmed(t *testing.T) {
	r := NewRegistry(10)
	require.NoError(t, r.StartElection(rootHash(2), 0))
	r.ResolveFork(rootHash(1), rootHash(2), 5)

	removed := r.CleanupExpired(0, 5)
	assert.Equal(t, []walletaddr.BlockHash{rootHash(2)}, removed)
}
