package governance

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
		ProposalDurationSecs:       1000,
		ExplorationDurationSecs:    1000,
		CooldownDurationSecs:       500,
		PromotionDurationSecs:      1000,
		PropagationBufferSecs:      100,
		EndorsementThreshold:       1,
		ProposalCostBrn:            10,
		MaxRounds:                  3,
		BaseQuorumBps:              5000,
		GovernanceSupermajorityBps: 8000,
		ConstiSupermajorityBps:     9000,
		EmergencySupermajorityBps:  9500,
	}
}

func eligible(n int) []walletaddr.WalletAddress {
	out := make([]walletaddr.WalletAddress, n)
	for i := range out {
		out[i] = waddr(byte(i + 1))
	}
	return out
}

func votes(eligibles []walletaddr.WalletAddress, yea, nay int) map[walletaddr.WalletAddress]VoteChoice {
	m := make(map[walletaddr.WalletAddress]VoteChoice)
	i := 0
	for ; i < yea; i++ {
		m[eligibles[i]] = VoteYea
	}
	for j := 0; j < nay; j++ {
		m[eligibles[i+j]] = VoteNay
	}
	return m
}

// TestGovernancePhaseAdvancesThroughExploration confirms a proposal
// clears the Proposal window alone, then clears Exploration's
// quorum/supermajority gates.
func TestGovernancePhaseAdvancesThroughExploration(t *testing.T) {
	e := NewEngine(defaultParams())
	proposer := waddr(0)

	p, err := e.Submit(proposer, true, 100, ContentParameterChange, "MaxElectionAgeSecs", 0, 0)
	require.NoError(t, err)

	complete, err := e.Endorse(p.ID, waddr(1), 0)
	require.NoError(t, err)
	assert.True(t, complete)

	phase, err := e.TryAdvance(p.ID, nil, 999)
	require.NoError(t, err)
	assert.Equal(t, PhaseProposal, phase, "window has not elapsed yet")

	phase, err = e.TryAdvance(p.ID, nil, 1000)
	require.NoError(t, err)
	assert.Equal(t, PhaseExploration, phase)

	voters := eligible(100)
	for addr, choice := range votes(voters, 85, 15) {
		require.NoError(t, e.VoteExploration(p.ID, addr, choice))
	}

	phase, err = e.TryAdvance(p.ID, voters, 1000+1000+100)
	require.NoError(t, err)
	assert.Equal(t, PhaseCooldown, phase)
}

// TestConstitutionalThresholdChangeFailsAt8500 confirms the same
// 85/15/0 vote fails a ConstiSupermajorityBps change because the
// self-referential rule requires the *current* constitutional
// threshold (9000), not the ordinary governance supermajority (8000).
func TestConstitutionalThresholdChangeFailsAt8500(t *testing.T) {
	e := NewEngine(defaultParams())
	proposer := waddr(0)

	p, err := e.Submit(proposer, true, 100, ContentParameterChange, ParamConstiSupermajorityBps, 9500, 0)
	require.NoError(t, err)
	_, err = e.Endorse(p.ID, waddr(1), 0)
	require.NoError(t, err)

	_, err = e.TryAdvance(p.ID, nil, 1000)
	require.NoError(t, err)
	require.Equal(t, PhaseExploration, p.Phase)

	voters := eligible(100)
	for addr, choice := range votes(voters, 85, 15) {
		require.NoError(t, e.VoteExploration(p.ID, addr, choice))
	}

	phase, err := e.TryAdvance(p.ID, voters, 1000+1000+100)
	require.NoError(t, err)
	assert.Equal(t, PhaseProposal, phase, "85% < 9000bps constitutional threshold, resets to Proposal")
	assert.Equal(t, 1, p.Round)
	assert.Equal(t, uint64(0), p.EndorsementCount)
}

func TestTransitiveDelegationCreditsUltimateDelegate(t *testing.T) {
	e := NewEngine(defaultParams())
	proposer := waddr(0)
	p, err := e.Submit(proposer, true, 100, ContentParameterChange, "x", 0, 0)
	require.NoError(t, err)
	p.Phase = PhaseExploration
	p.PhaseEnteredAt = 0

	a, b, c := waddr(1), waddr(2), waddr(3)
	e.SetDelegate(a, b)
	e.SetDelegate(b, c)
	require.NoError(t, e.VoteExploration(p.ID, c, VoteYea))

	yea, nay, abstain := e.tally([]walletaddr.WalletAddress{a, b, c}, p.ExplorationVotes)
	assert.Equal(t, uint64(3), yea)
	assert.Equal(t, uint64(0), nay)
	assert.Equal(t, uint64(0), abstain)
}

func TestDirectVoteOverridesDelegation(t *testing.T) {
	e := NewEngine(defaultParams())
	a, b := waddr(1), waddr(2)
	e.SetDelegate(a, b)
	direct := map[walletaddr.WalletAddress]VoteChoice{a: VoteNay, b: VoteYea}
	yea, nay, _ := e.tally([]walletaddr.WalletAddress{a, b}, direct)
	assert.Equal(t, uint64(1), yea)
	assert.Equal(t, uint64(1), nay)
}

func TestDeferredActivationAppliesOnlyOnce(t *testing.T) {
	e := NewEngine(defaultParams())
	proposer := waddr(0)
	p, err := e.Submit(proposer, true, 100, ContentParameterChange, ParamGovernanceSupermajorityBps, 8500, 0)
	require.NoError(t, err)
	p.Phase = PhasePromotion
	p.PhaseEnteredAt = 0

	voters := eligible(10)
	for addr, choice := range votes(voters, 9, 1) {
		require.NoError(t, e.VotePromotion(p.ID, addr, choice))
	}

	phase, err := e.TryAdvance(p.ID, voters, e.params.PromotionDurationSecs+e.params.PropagationBufferSecs)
	require.NoError(t, err)
	require.Equal(t, PhaseActivation, phase)
	require.NotNil(t, p.ActivationAt)

	applied := e.ApplyDeferredActivations(*p.ActivationAt - 1)
	assert.Empty(t, applied)

	applied = e.ApplyDeferredActivations(*p.ActivationAt)
	require.Len(t, applied, 1)
	assert.Equal(t, uint64(8500), e.Params().GovernanceSupermajorityBps)

	applied = e.ApplyDeferredActivations(*p.ActivationAt + 1000)
	assert.Empty(t, applied, "already applied, must not re-apply")
}
