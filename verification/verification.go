// Package verification drives a wallet through endorsement, deterministic
// verifier selection, voting, challenge and genesis bootstrap.
package verification

import (
	"bytes"
	"sort"

	"github.com/inconshreveable/log15"
	"github.com/pborman/uuid"
	"github.com/pkg/errors"

	"github.com/burstubi/node/telemetry"
	"github.com/burstubi/node/walletaddr"
)

var log = log15.New("pkg", "verification")

var (
	metricVerified   = telemetry.LazyLoad(func() telemetry.CountMeter { return telemetry.Counter("verification_verified_total") })
	metricPenalized  = telemetry.LazyLoad(func() telemetry.CountMeter { return telemetry.Counter("verification_penalized_total") })
	metricChallenges = telemetry.LazyLoad(func() telemetry.CountMeter { return telemetry.Counter("verification_challenges_total") })
)

// Vote is a verifier's ballot.
type Vote uint8

const (
	VoteLegitimate Vote = iota
	VoteIllegitimate
	VoteNeither
)

// Status is a wallet's place in the verification lifecycle.
type Status uint8

const (
	StatusUnverified Status = iota
	StatusEndorsing
	StatusVoting
	StatusVerified
	StatusChallenged
)

func (s Status) String() string {
	switch s {
	case StatusUnverified:
		return "unverified"
	case StatusEndorsing:
		return "endorsing"
	case StatusVoting:
		return "voting"
	case StatusVerified:
		return "verified"
	case StatusChallenged:
		return "challenged"
	default:
		return "unknown"
	}
}

// Outcome is the result of a completed voting round.
type Outcome uint8

const (
	OutcomePending Outcome = iota
	OutcomeVerified
	OutcomeFailed
	OutcomeRevote
)

// Params configures an Orchestrator's verifier selection, voting and
// challenge thresholds.
type Params struct {
	NumVerifiers               int
	VerifierStakeAmount        uint64
	VerificationThresholdBps   uint64
	MaxRevotes                 int
	NeitherRatioThresholdBps   uint64
	MinAssignmentsForPenalty   int
	NeitherPenaltyCooldownSecs int64
	EndorsementThreshold       uint64
	ChallengeStakeAmount       uint64
	ChallengeTimeoutSecs       int64
	EndorserRewardBps          uint64
	BootstrapExitThreshold     uint64
}

var (
	ErrUnknownCase          = errors.New("verification: no case for target")
	ErrAlreadyVerified      = errors.New("verification: target already verified")
	ErrEndorserNotVerified  = errors.New("verification: endorser must be verified")
	ErrNotEligibleVerifier  = errors.New("verification: verifier not eligible for this round")
	ErrAlreadyVoted         = errors.New("verification: verifier already voted this round")
	ErrNotInVotingPhase     = errors.New("verification: case is not accepting votes")
	ErrChallengerNotVerified = errors.New("verification: challenger must be verified")
	ErrInsufficientStake    = errors.New("verification: stake below challenge_stake_amount")
	ErrNotVerifiedTarget    = errors.New("verification: target is not Verified")
	ErrBootstrapPhaseEnded  = errors.New("verification: BootstrapPhaseEnded")
	ErrNotGenesisWallet     = errors.New("verification: caller is not the genesis wallet")
)

// Case tracks one wallet's progress through endorsement, voting and,
// possibly, challenge.
type Case struct {
	Target           walletaddr.WalletAddress
	Status           Status
	EndorsementCount uint64
	Endorsers        map[walletaddr.WalletAddress]struct{}

	// Excluded accumulates across revotes within one verification attempt
	// so a revote never re-selects a previous verifier.
	Excluded          map[walletaddr.WalletAddress]struct{}
	SelectedVerifiers []walletaddr.WalletAddress
	Votes             map[walletaddr.WalletAddress]Vote
	RevoteCount       int

	IsChallenge       bool
	ChallengeID       string
	Challenger        walletaddr.WalletAddress
	ChallengerStake   uint64
	ChallengeStartAt  walletaddr.Timestamp
}

// VerifierRecord is a verifier's sliding-window neither-penalty state.
type VerifierRecord struct {
	NeitherCount     int
	TotalAssignments int
	CooldownUntil    walletaddr.Timestamp
}

// Orchestrator owns every in-flight Case plus the global verifier penalty
// registry.
type Orchestrator struct {
	params        Params
	genesisWallet walletaddr.WalletAddress
	verifiedCount uint64

	cases     map[walletaddr.WalletAddress]*Case
	verifiers map[walletaddr.WalletAddress]*VerifierRecord
}

// NewOrchestrator constructs an Orchestrator for the given genesis wallet.
func NewOrchestrator(params Params, genesisWallet walletaddr.WalletAddress) *Orchestrator {
	return &Orchestrator{
		params:        params,
		genesisWallet: genesisWallet,
		cases:         make(map[walletaddr.WalletAddress]*Case),
		verifiers:     make(map[walletaddr.WalletAddress]*VerifierRecord),
	}
}

func (o *Orchestrator) caseFor(target walletaddr.WalletAddress) *Case {
	c, ok := o.cases[target]
	if !ok {
		c = &Case{
			Target:    target,
			Status:    StatusUnverified,
			Endorsers: make(map[walletaddr.WalletAddress]struct{}),
			Excluded:  make(map[walletaddr.WalletAddress]struct{}),
			Votes:     make(map[walletaddr.WalletAddress]Vote),
		}
		o.cases[target] = c
	}
	return c
}

// Case returns a snapshot of target's case, if any.
func (o *Orchestrator) Case(target walletaddr.WalletAddress) (Case, bool) {
	c, ok := o.cases[target]
	if !ok {
		return Case{}, false
	}
	return *c, true
}

func (o *Orchestrator) bootstrapActive() bool {
	return o.verifiedCount < o.params.BootstrapExitThreshold
}

// Metrics is a read-only aggregate view over every tracked case, for
// RPC/telemetry consumers that want a fleet-wide count rather than a
// single target's Case.
type Metrics struct {
	VerifiedCount    uint64
	TotalCases       int
	ActiveChallenges int
	BootstrapActive  bool
}

// Metrics summarizes the orchestrator's current state without mutating it.
func (o *Orchestrator) Metrics() Metrics {
	m := Metrics{
		VerifiedCount:   o.verifiedCount,
		TotalCases:      len(o.cases),
		BootstrapActive: o.bootstrapActive(),
	}
	for _, c := range o.cases {
		if c.IsChallenge && c.Status == StatusChallenged {
			m.ActiveChallenges++
		}
	}
	return m
}

// Endorse records a burn-backed endorsement for target. endorserVerified
// must be true unless bootstrap is active and endorser is the genesis
// wallet. Returns true once endorsementCount reaches the threshold
// (EndorsementComplete).
func (o *Orchestrator) Endorse(target, endorser walletaddr.WalletAddress, endorserVerified bool, now walletaddr.Timestamp) (bool, error) {
	if !endorserVerified {
		if !(o.bootstrapActive() && endorser == o.genesisWallet) {
			return false, ErrEndorserNotVerified
		}
	}

	c := o.caseFor(target)
	if c.Status == StatusVerified {
		return false, ErrAlreadyVerified
	}
	if _, already := c.Endorsers[endorser]; already {
		return c.EndorsementCount >= o.params.EndorsementThreshold, nil
	}

	c.Endorsers[endorser] = struct{}{}
	c.EndorsementCount++
	c.Status = StatusEndorsing

	complete := c.EndorsementCount >= o.params.EndorsementThreshold
	if complete {
		log.Debug("endorsement complete", "target", target, "count", c.EndorsementCount)
	}
	return complete, nil
}

// SelectVerifiers deterministically scores eligible candidates by
// hash(randomness||address), taking the lowest NumVerifiers not already
// excluded or in cooldown.
func (o *Orchestrator) SelectVerifiers(target walletaddr.WalletAddress, eligible []walletaddr.WalletAddress, randomness [32]byte, now walletaddr.Timestamp) ([]walletaddr.WalletAddress, error) {
	c := o.caseFor(target)

	type scored struct {
		addr  walletaddr.WalletAddress
		score [32]byte
	}
	candidates := make([]scored, 0, len(eligible))
	for _, addr := range eligible {
		if _, excluded := c.Excluded[addr]; excluded {
			continue
		}
		if rec, ok := o.verifiers[addr]; ok && now.Before(rec.CooldownUntil) {
			continue
		}
		candidates = append(candidates, scored{addr: addr, score: walletaddr.HashBytes(randomness[:], addr.Bytes())})
	}
	sort.Slice(candidates, func(i, j int) bool {
		return bytes.Compare(candidates[i].score[:], candidates[j].score[:]) < 0
	})

	if len(candidates) < o.params.NumVerifiers {
		return nil, errors.Errorf("verification: only %d eligible candidates, need %d", len(candidates), o.params.NumVerifiers)
	}

	selected := make([]walletaddr.WalletAddress, o.params.NumVerifiers)
	for i := 0; i < o.params.NumVerifiers; i++ {
		selected[i] = candidates[i].addr
		c.Excluded[candidates[i].addr] = struct{}{}
	}

	c.SelectedVerifiers = selected
	c.Votes = make(map[walletaddr.WalletAddress]Vote)
	c.Status = StatusVoting
	return selected, nil
}

// CastVote records verifier's vote on target. Once every selected
// verifier has voted, the round is tallied.
func (o *Orchestrator) CastVote(target, verifier walletaddr.WalletAddress, vote Vote, now walletaddr.Timestamp) (Outcome, error) {
	c, ok := o.cases[target]
	if !ok {
		return OutcomePending, ErrUnknownCase
	}
	if c.Status != StatusVoting && c.Status != StatusChallenged {
		return OutcomePending, ErrNotInVotingPhase
	}
	if !contains(c.SelectedVerifiers, verifier) {
		return OutcomePending, ErrNotEligibleVerifier
	}
	if _, already := c.Votes[verifier]; already {
		return OutcomePending, ErrAlreadyVoted
	}

	c.Votes[verifier] = vote
	o.recordAssignment(verifier, vote == VoteNeither, now)

	if len(c.Votes) < len(c.SelectedVerifiers) {
		return OutcomePending, nil
	}
	return o.tally(c, now), nil
}

func contains(list []walletaddr.WalletAddress, addr walletaddr.WalletAddress) bool {
	for _, a := range list {
		if a == addr {
			return true
		}
	}
	return false
}

func (o *Orchestrator) recordAssignment(verifier walletaddr.WalletAddress, wasNeither bool, now walletaddr.Timestamp) {
	rec, ok := o.verifiers[verifier]
	if !ok {
		rec = &VerifierRecord{}
		o.verifiers[verifier] = rec
	}
	rec.TotalAssignments++
	if wasNeither {
		rec.NeitherCount++
	}
	if rec.TotalAssignments < o.params.MinAssignmentsForPenalty {
		return
	}
	ratio := uint64(rec.NeitherCount) * 10000 / uint64(rec.TotalAssignments)
	if ratio >= o.params.NeitherRatioThresholdBps {
		rec.CooldownUntil = now.Add(o.params.NeitherPenaltyCooldownSecs)
		metricPenalized().Add(1)
		log.Info("verifier penalized", "verifier", verifier, "ratio_bps", ratio, "cooldown_until", rec.CooldownUntil)
	}
}

// tally resolves a completed voting round for c, updating Status and
// returning the Outcome. Does not itself reset Excluded; that persists
// across revotes within the same attempt.
func (o *Orchestrator) tally(c *Case, now walletaddr.Timestamp) Outcome {
	var legit, illegit uint64
	for _, v := range c.Votes {
		switch v {
		case VoteLegitimate:
			legit++
		case VoteIllegitimate:
			illegit++
		}
	}
	nonNeither := legit + illegit

	verified := nonNeither > 0 && legit*10000/nonNeither >= o.params.VerificationThresholdBps

	if verified {
		if c.IsChallenge {
			c.Status = StatusVerified
		} else {
			c.Status = StatusVerified
			o.verifiedCount++
			metricVerified().Add(1)
		}
		return OutcomeVerified
	}

	if c.RevoteCount >= o.params.MaxRevotes {
		if c.IsChallenge {
			c.Status = StatusUnverified
			o.verifiedCount--
		} else {
			c.Status = StatusUnverified
		}
		return OutcomeFailed
	}

	c.RevoteCount++
	c.SelectedVerifiers = nil
	c.Votes = make(map[walletaddr.WalletAddress]Vote)
	return OutcomeRevote
}

// InitiateChallenge moves a Verified target into Challenged, resetting
// excluded/selected/votes for a fresh revote.
func (o *Orchestrator) InitiateChallenge(target, challenger walletaddr.WalletAddress, challengerVerified bool, stake uint64, now walletaddr.Timestamp) (string, error) {
	c, ok := o.cases[target]
	if !ok || c.Status != StatusVerified {
		return "", ErrNotVerifiedTarget
	}
	if !challengerVerified {
		return "", ErrChallengerNotVerified
	}
	if stake < o.params.ChallengeStakeAmount {
		return "", ErrInsufficientStake
	}

	c.IsChallenge = true
	c.ChallengeID = uuid.New()
	c.Challenger = challenger
	c.ChallengerStake = stake
	c.ChallengeStartAt = now
	c.Status = StatusChallenged
	c.Excluded = make(map[walletaddr.WalletAddress]struct{})
	c.SelectedVerifiers = nil
	c.Votes = make(map[walletaddr.WalletAddress]Vote)
	c.RevoteCount = 0

	metricChallenges().Add(1)
	return c.ChallengeID, nil
}

// ChallengeResolution describes how a challenge ended.
type ChallengeResolution uint8

const (
	ChallengeFraudConfirmed ChallengeResolution = iota
	ChallengeRejected
	ChallengeExpired
)

// CheckChallengeExpiry reports whether target's challenge has run past
// ChallengeTimeoutSecs, resolving it to ChallengeExpired if so and
// refunding the challenger half their stake (the other half is forfeit
// as a penalty for letting the challenge time out unresolved).
func (o *Orchestrator) CheckChallengeExpiry(target walletaddr.WalletAddress, now walletaddr.Timestamp) (ChallengeResolution, uint64, bool) {
	c, ok := o.cases[target]
	if !ok || !c.IsChallenge || c.Status != StatusChallenged {
		return 0, 0, false
	}
	if int64(now) < int64(c.ChallengeStartAt)+o.params.ChallengeTimeoutSecs {
		return 0, 0, false
	}
	c.Status = StatusVerified
	c.IsChallenge = false
	return ChallengeExpired, c.ChallengerStake / 2, true
}

// ResolveChallengeOutcome maps a just-completed challenge tally (via
// CastVote) to its ChallengeResolution and stake settlement.
func (o *Orchestrator) ResolveChallengeOutcome(target walletaddr.WalletAddress, outcome Outcome) (ChallengeResolution, uint64, bool) {
	c, ok := o.cases[target]
	if !ok || !c.IsChallenge {
		return 0, 0, false
	}
	switch outcome {
	case OutcomeVerified:
		c.IsChallenge = false
		return ChallengeRejected, 0, true
	case OutcomeFailed:
		c.IsChallenge = false
		return ChallengeFraudConfirmed, 2 * c.ChallengerStake, true
	default:
		return 0, 0, false
	}
}

// GenesisVerify directly verifies target during bootstrap, bypassing the
// usual selection/voting flow.
func (o *Orchestrator) GenesisVerify(genesisWallet, target walletaddr.WalletAddress) error {
	if !o.bootstrapActive() {
		return ErrBootstrapPhaseEnded
	}
	if genesisWallet != o.genesisWallet {
		return ErrNotGenesisWallet
	}
	c := o.caseFor(target)
	if c.Status != StatusVerified {
		o.verifiedCount++
	}
	c.Status = StatusVerified
	return nil
}

// ComputeEndorserReward returns the TRST reward for a successful
// verification's endorsers.
func ComputeEndorserReward(burnAmount, endorserRewardBps uint64) uint64 {
	return burnAmount * endorserRewardBps / 10000
}

// ComputeVerifierRewards splits stakeAmount plus forfeited dissenter
// stakes among the verifiers who voted on the winning side; Neither
// voters and dissenters receive zero.
func ComputeVerifierRewards(stakeAmount uint64, votes map[walletaddr.WalletAddress]Vote, outcome Outcome) map[walletaddr.WalletAddress]uint64 {
	rewards := make(map[walletaddr.WalletAddress]uint64, len(votes))
	if outcome != OutcomeVerified && outcome != OutcomeFailed {
		for addr := range votes {
			rewards[addr] = 0
		}
		return rewards
	}

	winning := VoteIllegitimate
	if outcome == OutcomeVerified {
		winning = VoteLegitimate
	}

	var correct, dissenters int
	for _, v := range votes {
		switch {
		case v == winning:
			correct++
		case v == VoteNeither:
		default:
			dissenters++
		}
	}

	var share uint64
	if correct > 0 {
		share = uint64(dissenters) * stakeAmount / uint64(correct)
	}

	for addr, v := range votes {
		if v == winning {
			rewards[addr] = stakeAmount + share
		} else {
			rewards[addr] = 0
		}
	}
	return rewards
}
