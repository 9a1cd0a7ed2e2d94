// Package election implements the per-root Election state machine: fork
// resolution via weighted quorum voting, one election per contested root
// block hash.
package election

import (
	"github.com/inconshreveable/log15"
	"github.com/pkg/errors"

	"github.com/burstubi/node/walletaddr"
)

var log = log15.New("pkg", "election")

// State is the lifecycle state of an Election.
type State uint8

const (
	// Passive elections exist but have not yet received a vote.
	Passive State = iota
	// Active elections have received at least one vote.
	Active
	// Confirmed elections have reached quorum; terminal.
	Confirmed
	// Expired elections timed out without quorum; terminal.
	Expired
)

func (s State) String() string {
	switch s {
	case Passive:
		return "passive"
	case Active:
		return "active"
	case Confirmed:
		return "confirmed"
	case Expired:
		return "expired"
	default:
		return "unknown"
	}
}

// MaxElectionAgeSecs bounds vote replay: votes for elections older than
// this are ignored regardless of validity.
const MaxElectionAgeSecs = 300

// ConfirmationThresholdBps is the quorum fraction in basis points.
const ConfirmationThresholdBps = 6700

// VoteInfo is a single voter's latest cast.
type VoteInfo struct {
	BlockHash walletaddr.BlockHash
	Weight    uint64
	IsFinal   bool
	Timestamp walletaddr.Timestamp
	Sequence  uint64
}

// Outcome is the result of casting a vote.
type Outcome uint8

const (
	// Accepted is the voter's first vote in this election.
	Accepted Outcome = iota
	// Updated replaces the voter's earlier, non-final vote.
	Updated
	// Ignored means the vote was a no-op (stale, replayed, or terminal).
	Ignored
)

// Status describes a just-confirmed election's winner.
type Status struct {
	Winner walletaddr.BlockHash
	Tally  uint64
}

// Election is one-per-root consensus over competing forks. Not
// thread-safe; callers (the active-elections registry) serialize access.
type Election struct {
	Root                  walletaddr.BlockHash
	state                 State
	lastVotes             map[walletaddr.WalletAddress]VoteInfo
	tally                 map[walletaddr.BlockHash]uint64
	confirmationThreshold uint64
	createdAt             walletaddr.Timestamp
	stateChangedAt        walletaddr.Timestamp
	nextSequence          uint64
}

// New constructs an Election over root with its confirmation threshold
// fixed from onlineWeight at construction time.
func New(root walletaddr.BlockHash, onlineWeight uint64, now walletaddr.Timestamp) *Election {
	return &Election{
		Root:                  root,
		state:                 Passive,
		lastVotes:             make(map[walletaddr.WalletAddress]VoteInfo),
		tally:                 make(map[walletaddr.BlockHash]uint64),
		confirmationThreshold: onlineWeight * ConfirmationThresholdBps / 10000,
		createdAt:             now,
		stateChangedAt:        now,
	}
}

// State returns the election's current lifecycle state.
func (e *Election) State() State { return e.state }

// CreatedAt returns the election's creation timestamp.
func (e *Election) CreatedAt() walletaddr.Timestamp { return e.createdAt }

// Tally returns a snapshot copy of the per-block weight tally.
func (e *Election) Tally() map[walletaddr.BlockHash]uint64 {
	out := make(map[walletaddr.BlockHash]uint64, len(e.tally))
	for k, v := range e.tally {
		out[k] = v
	}
	return out
}

// LastVotes returns a snapshot copy of the per-voter last cast.
func (e *Election) LastVotes() map[walletaddr.WalletAddress]VoteInfo {
	out := make(map[walletaddr.WalletAddress]VoteInfo, len(e.lastVotes))
	for k, v := range e.lastVotes {
		out[k] = v
	}
	return out
}

// Snapshot is a read-only view of an election for RPC/telemetry
// consumers that must not hold a reference into live state.
type Snapshot struct {
	Root      walletaddr.BlockHash
	State     State
	CreatedAt walletaddr.Timestamp
	Tally     map[walletaddr.BlockHash]uint64
	VoteCount int
}

// Snapshot builds a point-in-time read view, copying the tally so the
// caller cannot observe or mutate the election's live state.
func (e *Election) Snapshot() Snapshot {
	return Snapshot{
		Root:      e.Root,
		State:     e.state,
		CreatedAt: e.createdAt,
		Tally:     e.Tally(),
		VoteCount: len(e.lastVotes),
	}
}

// ErrFinalVoteAlreadyCast is returned when a voter who already cast a final
// vote attempts to vote again.
var ErrFinalVoteAlreadyCast = errors.New("election: final vote already cast")

// Vote applies a single voter's cast, following the acceptance rules in
// order: terminal elections and stale replays are ignored, a final vote
// cannot be superseded, and only a strictly newer timestamp replaces an
// existing vote.
func (e *Election) Vote(voter walletaddr.WalletAddress, blockHash walletaddr.BlockHash, weight uint64, isFinal bool, now walletaddr.Timestamp) (Outcome, error) {
	// Rule 1: terminal elections ignore all votes.
	if e.state == Confirmed || e.state == Expired {
		return Ignored, nil
	}

	// Rule 2: replay protection.
	if int64(now)-int64(e.createdAt) > MaxElectionAgeSecs {
		return Ignored, nil
	}

	existing, hasExisting := e.lastVotes[voter]

	// Rule 3: final votes cannot be replaced.
	if hasExisting && existing.IsFinal {
		return Ignored, ErrFinalVoteAlreadyCast
	}

	var outcome Outcome
	if hasExisting {
		// Rule 4: monotonic time, then replace.
		if now <= existing.Timestamp {
			return Ignored, nil
		}
		e.removeTally(existing.BlockHash, existing.Weight)
		e.nextSequence++
		e.lastVotes[voter] = VoteInfo{
			BlockHash: blockHash,
			Weight:    weight,
			IsFinal:   isFinal,
			Timestamp: now,
			Sequence:  e.nextSequence,
		}
		e.addTally(blockHash, weight)
		outcome = Updated
	} else {
		// Rule 5: first vote from this voter.
		e.nextSequence++
		e.lastVotes[voter] = VoteInfo{
			BlockHash: blockHash,
			Weight:    weight,
			IsFinal:   isFinal,
			Timestamp: now,
			Sequence:  e.nextSequence,
		}
		e.addTally(blockHash, weight)
		outcome = Accepted
	}

	// Rule 6: Passive -> Active on any accepted/updated vote.
	if e.state == Passive {
		e.state = Active
		e.stateChangedAt = now
	}

	log.Debug("vote applied", "root", e.Root, "voter", voter, "outcome", outcome)
	return outcome, nil
}

func (e *Election) addTally(blockHash walletaddr.BlockHash, weight uint64) {
	e.tally[blockHash] += weight
}

func (e *Election) removeTally(blockHash walletaddr.BlockHash, weight uint64) {
	remaining := e.tally[blockHash]
	if remaining <= weight {
		delete(e.tally, blockHash)
		return
	}
	e.tally[blockHash] = remaining - weight
}

// TryConfirm transitions the election to Confirmed if the leading block's
// tally has reached the confirmation threshold, returning the winning
// Status. No minimum margin: a zero-weight election confirms on the first
// non-zero vote.
func (e *Election) TryConfirm(now walletaddr.Timestamp) *Status {
	if e.state == Confirmed || e.state == Expired {
		return nil
	}

	var leader walletaddr.BlockHash
	var leadTally uint64
	found := false
	for hash, weight := range e.tally {
		if !found || weight > leadTally {
			leader = hash
			leadTally = weight
			found = true
		}
	}
	if !found {
		return nil
	}

	if leadTally < e.confirmationThreshold {
		return nil
	}

	e.state = Confirmed
	e.stateChangedAt = now
	log.Info("election confirmed", "root", e.Root, "winner", leader, "tally", leadTally)
	return &Status{Winner: leader, Tally: leadTally}
}

// CheckTimeout transitions the election to Expired when its age reaches
// timeoutMs, clamping negative elapsed time to zero.
func (e *Election) CheckTimeout(timeoutMs int64, now walletaddr.Timestamp) bool {
	if e.state == Confirmed || e.state == Expired {
		return false
	}

	elapsedSecs := int64(now) - int64(e.createdAt)
	if elapsedSecs < 0 {
		elapsedSecs = 0
	}
	elapsedMs := elapsedSecs * 1000

	if elapsedMs >= timeoutMs {
		e.state = Expired
		e.stateChangedAt = now
		log.Info("election expired", "root", e.Root)
		return true
	}
	return false
}

// ForceExpire marks the election Expired unconditionally, unless already
// terminal. Used by the active-elections registry to resolve losing forks.
func (e *Election) ForceExpire(now walletaddr.Timestamp) bool {
	if e.state == Confirmed || e.state == Expired {
		return false
	}
	e.state = Expired
	e.stateChangedAt = now
	return true
}
