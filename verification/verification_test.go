package verification

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/burstubi/node/walletaddr"
)

func waddr(b byte) walletaddr.WalletAddress {
	var a walletaddr.WalletAddress
	a[0] = b
	return a
}

func defaultParams() Params {
	return Params{
		NumVerifiers:               2,
		VerifierStakeAmount:        100,
		VerificationThresholdBps:   5000,
		MaxRevotes:                 2,
		NeitherRatioThresholdBps:   5000,
		MinAssignmentsForPenalty:   3,
		NeitherPenaltyCooldownSecs: 1000,
		EndorsementThreshold:       1,
		ChallengeStakeAmount:       50,
		ChallengeTimeoutSecs:       500,
		EndorserRewardBps:          1000,
		BootstrapExitThreshold:     1,
	}
}

func TestCheckChallengeExpiryRefundsHalfStake(t *testing.T) {
	params := defaultParams()
	params.BootstrapExitThreshold = 1
	genesis := waddr(0)
	o := NewOrchestrator(params, genesis)
	target := waddr(1)
	require.NoError(t, o.GenesisVerify(genesis, target))

	challenger := waddr(2)
	_, err := o.InitiateChallenge(target, challenger, true, 50, 0)
	require.NoError(t, err)

	// Not yet past the timeout: no resolution.
	resolution, refund, resolved := o.CheckChallengeExpiry(target, 400)
	assert.False(t, resolved)
	assert.Equal(t, uint64(0), refund)
	assert.Equal(t, ChallengeResolution(0), resolution)

	resolution, refund, resolved = o.CheckChallengeExpiry(target, 500)
	require.True(t, resolved)
	assert.Equal(t, ChallengeExpired, resolution)
	assert.Equal(t, uint64(25), refund)

	c, ok := o.Case(target)
	require.True(t, ok)
	assert.Equal(t, StatusVerified, c.Status)
	assert.False(t, c.IsChallenge)
}

// TestRevoteExcludesPreviousVerifiers confirms a failed round's
// verifiers never appear in the next round's selection.
func TestRevoteExcludesPreviousVerifiers(t *testing.T) {
	o := NewOrchestrator(defaultParams(), waddr(0))
	target := waddr(1)
	pool := []walletaddr.WalletAddress{waddr(10), waddr(11), waddr(12), waddr(13), waddr(14), waddr(15)}

	_, err := o.Endorse(target, waddr(0), true, 0)
	require.NoError(t, err)

	round1, err := o.SelectVerifiers(target, pool, [32]byte{1}, 0)
	require.NoError(t, err)
	require.Len(t, round1, 2)

	outcome, err := o.CastVote(target, round1[0], VoteIllegitimate, 0)
	require.NoError(t, err)
	assert.Equal(t, OutcomePending, outcome)
	outcome, err = o.CastVote(target, round1[1], VoteIllegitimate, 0)
	require.NoError(t, err)
	assert.Equal(t, OutcomeRevote, outcome)

	round2, err := o.SelectVerifiers(target, pool, [32]byte{2}, 0)
	require.NoError(t, err)
	require.Len(t, round2, 2)
	for _, v := range round1 {
		assert.NotContains(t, round2, v)
	}

	outcome, err = o.CastVote(target, round2[0], VoteIllegitimate, 0)
	require.NoError(t, err)
	outcome, err = o.CastVote(target, round2[1], VoteIllegitimate, 0)
	require.NoError(t, err)
	assert.Equal(t, OutcomeRevote, outcome)

	round3, err := o.SelectVerifiers(target, pool, [32]byte{3}, 0)
	require.NoError(t, err)
	require.Len(t, round3, 2)

	remaining := map[walletaddr.WalletAddress]bool{}
	for _, v := range pool {
		remaining[v] = true
	}
	for _, v := range round1 {
		delete(remaining, v)
	}
	for _, v := range round2 {
		delete(remaining, v)
	}
	assert.Len(t, remaining, 2)
	for _, v := range round3 {
		assert.True(t, remaining[v])
	}
}

// TestNeitherPenaltyTriggersCooldown confirms a verifier who casts too
// many Neither votes is benched under a cooldown.
func TestNeitherPenaltyTriggersCooldown(t *testing.T) {
	o := NewOrchestrator(defaultParams(), waddr(0))
	verifier := waddr(20)

	o.recordAssignment(verifier, false, 0)
	rec := o.verifiers[verifier]
	require.NotNil(t, rec)
	assert.Equal(t, 0, rec.NeitherCount)

	o.recordAssignment(verifier, true, 100)
	o.recordAssignment(verifier, true, 100)

	assert.Equal(t, 3, rec.TotalAssignments)
	assert.Equal(t, 2, rec.NeitherCount)
	assert.Equal(t, walletaddr.Timestamp(1100), rec.CooldownUntil)

	target := waddr(1)
	_, err := o.Endorse(target, waddr(0), true, 0)
	require.NoError(t, err)
	pool := []walletaddr.WalletAddress{verifier, waddr(21)}
	_, err = o.SelectVerifiers(target, pool, [32]byte{1}, 100)
	assert.Error(t, err, "penalized verifier must be excluded, leaving too few candidates")
}

func TestVerificationSucceedsAtQuorum(t *testing.T) {
	o := NewOrchestrator(defaultParams(), waddr(0))
	target := waddr(1)
	pool := []walletaddr.WalletAddress{waddr(10), waddr(11)}

	_, err := o.Endorse(target, waddr(0), true, 0)
	require.NoError(t, err)
	selected, err := o.SelectVerifiers(target, pool, [32]byte{7}, 0)
	require.NoError(t, err)

	_, err = o.CastVote(target, selected[0], VoteLegitimate, 0)
	require.NoError(t, err)
	outcome, err := o.CastVote(target, selected[1], VoteLegitimate, 0)
	require.NoError(t, err)
	assert.Equal(t, OutcomeVerified, outcome)

	c, ok := o.Case(target)
	require.True(t, ok)
	assert.Equal(t, StatusVerified, c.Status)
}

func TestChallengeFraudConfirmedUnverifiesTarget(t *testing.T) {
	params := defaultParams()
	params.MaxRevotes = 0
	o := NewOrchestrator(params, waddr(0))
	target := waddr(1)
	pool := []walletaddr.WalletAddress{waddr(10), waddr(11)}

	_, err := o.Endorse(target, waddr(0), true, 0)
	require.NoError(t, err)
	selected, err := o.SelectVerifiers(target, pool, [32]byte{7}, 0)
	require.NoError(t, err)
	_, err = o.CastVote(target, selected[0], VoteLegitimate, 0)
	require.NoError(t, err)
	_, err = o.CastVote(target, selected[1], VoteLegitimate, 0)
	require.NoError(t, err)

	challenger := waddr(99)
	_, err = o.InitiateChallenge(target, challenger, true, 50, 0)
	require.NoError(t, err)

	pool2 := []walletaddr.WalletAddress{waddr(30), waddr(31)}
	selected2, err := o.SelectVerifiers(target, pool2, [32]byte{9}, 0)
	require.NoError(t, err)
	_, err = o.CastVote(target, selected2[0], VoteIllegitimate, 0)
	require.NoError(t, err)
	outcome, err := o.CastVote(target, selected2[1], VoteIllegitimate, 0)
	require.NoError(t, err)
	assert.Equal(t, OutcomeFailed, outcome)

	resolution, payout, ok := o.ResolveChallengeOutcome(target, outcome)
	require.True(t, ok)
	assert.Equal(t, ChallengeFraudConfirmed, resolution)
	assert.Equal(t, uint64(100), payout)

	c, _ := o.Case(target)
	assert.Equal(t, StatusUnverified, c.Status)
}

func TestComputeVerifierRewardsSplitsDissenterStakes(t *testing.T) {
	votes := map[walletaddr.WalletAddress]Vote{
		waddr(1): VoteLegitimate,
		waddr(2): VoteLegitimate,
		waddr(3): VoteIllegitimate,
		waddr(4): VoteNeither,
	}
	rewards := ComputeVerifierRewards(100, votes, OutcomeVerified)
	assert.Equal(t, uint64(150), rewards[waddr(1)])
	assert.Equal(t, uint64(150), rewards[waddr(2)])
	assert.Equal(t, uint64(0), rewards[waddr(3)])
	assert.Equal(t, uint64(0), rewards[waddr(4)])
}

func TestGenesisBootstrapEndsAfterThreshold(t *testing.T) {
	params := defaultParams()
	params.BootstrapExitThreshold = 1
	genesis := waddr(0)
	o := NewOrchestrator(params, genesis)

	require.NoError(t, o.GenesisVerify(genesis, waddr(1)))
	err := o.GenesisVerify(genesis, waddr(2))
	assert.ErrorIs(t, err, ErrBootstrapPhaseEnded)
}

func TestMetricsCountsVerifiedAndActiveChallenges(t *testing.T) {
	params := defaultParams()
	params.BootstrapExitThreshold = 1
	genesis := waddr(0)
	o := NewOrchestrator(params, genesis)
	require.NoError(t, o.GenesisVerify(genesis, waddr(1)))

	m := o.Metrics()
	assert.Equal(t, uint64(1), m.VerifiedCount)
	assert.Equal(t, 1, m.TotalCases)
	assert.Equal(t, 0, m.ActiveChallenges)
	assert.False(t, m.BootstrapActive)
}
