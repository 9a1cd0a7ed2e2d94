// Package active implements the bounded ActiveElections registry: vote
// routing to per-root elections, capacity limits, expiry/confirmation
// cleanup and fork resolution.
package active

import (
	"sync"

	"github.com/inconshreveable/log15"
	"github.com/pkg/errors"

	"github.com/burstubi/node/co"
	"github.com/burstubi/node/consensus/election"
	"github.com/burstubi/node/telemetry"
	"github.com/burstubi/node/walletaddr"
)

var log = log15.New("pkg", "active")

var (
	metricStarted    = telemetry.LazyLoad(func() telemetry.CountMeter { return telemetry.Counter("elections_started_total") })
	metricConfirmed  = telemetry.LazyLoad(func() telemetry.CountMeter { return telemetry.Counter("elections_confirmed_total") })
	metricExpired    = telemetry.LazyLoad(func() telemetry.CountMeter { return telemetry.Counter("elections_expired_total") })
	metricCapacity   = telemetry.LazyLoad(func() telemetry.CountMeter { return telemetry.Counter("elections_capacity_reached_total") })
)

// ErrCapacityReached is a recoverable error: the caller should retry later.
var ErrCapacityReached = errors.New("active: election capacity reached")

// ErrNotFound is a routing error: the root has no election.
var ErrNotFound = errors.New("active: election not found")

// ErrAlreadyConfirmed means the target election is already terminal.
var ErrAlreadyConfirmed = errors.New("active: election already confirmed")

// Registry is a bounded container of Elections keyed by root hash. Its
// own mutex serializes all vote routing and lifecycle transitions.
type Registry struct {
	mu           sync.Mutex
	maxElections int
	elections    map[walletaddr.BlockHash]*election.Election
	order        []walletaddr.BlockHash // insertion order, for deterministic draining
	onlineWeight uint64
	confirmed    co.Signal
}

// Confirmations returns a Waiter that wakes on every election confirmation,
// for callers (the block processor, bridge finality hooks) that suspend
// until the next fork resolves rather than poll ConfirmedElections.
func (r *Registry) Confirmations() co.Waiter {
	return r.confirmed.NewWaiter()
}

// NewRegistry constructs a Registry bounded at maxElections.
func NewRegistry(maxElections int) *Registry {
	return &Registry{
		maxElections: maxElections,
		elections:    make(map[walletaddr.BlockHash]*election.Election),
	}
}

// SetOnlineWeight updates the effective online weight used to construct
// new elections. Callers supply max(current_online, trended_ema, floor).
func (r *Registry) SetOnlineWeight(weight uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onlineWeight = weight
}

// Count returns the number of tracked elections.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.elections)
}

// StartElection creates a new election for root if absent. Returns
// ErrCapacityReached if the registry is full; no-op if root already has
// an election.
func (r *Registry) StartElection(root walletaddr.BlockHash, now walletaddr.Timestamp) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.elections[root]; exists {
		return nil
	}

	if len(r.elections) >= r.maxElections {
		metricCapacity().Add(1)
		return ErrCapacityReached
	}

	r.elections[root] = election.New(root, r.onlineWeight, now)
	r.order = append(r.order, root)
	metricStarted().Add(1)
	log.Debug("election started", "root", root)
	return nil
}

// ProcessVote routes a vote to root's election, then attempts
// confirmation. Returns the winning Status iff confirmation occurred.
func (r *Registry) ProcessVote(root walletaddr.BlockHash, voter walletaddr.WalletAddress, blockHash walletaddr.BlockHash, weight uint64, isFinal bool, now walletaddr.Timestamp) (*election.Status, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.elections[root]
	if !ok {
		return nil, ErrNotFound
	}
	if e.State() == election.Confirmed || e.State() == election.Expired {
		return nil, ErrAlreadyConfirmed
	}

	if _, err := e.Vote(voter, blockHash, weight, isFinal, now); err != nil {
		return nil, err
	}

	status := e.TryConfirm(now)
	if status != nil {
		metricConfirmed().Add(1)
		r.confirmed.Broadcast(root.String())
	}
	return status, nil
}

// CleanupExpired marks elections whose age reaches timeoutMs as Expired
// and removes them, returning the removed roots.
func (r *Registry) CleanupExpired(timeoutMs int64, now walletaddr.Timestamp) []walletaddr.BlockHash {
	r.mu.Lock()
	defer r.mu.Unlock()

	var removed []walletaddr.BlockHash
	for _, root := range r.order {
		e, ok := r.elections[root]
		if !ok {
			continue
		}
		if e.State() == election.Confirmed {
			continue
		}
		if e.State() == election.Expired || e.CheckTimeout(timeoutMs, now) {
			removed = append(removed, root)
		}
	}
	for _, root := range removed {
		delete(r.elections, root)
	}
	r.pruneOrder()
	if len(removed) > 0 {
		metricExpired().Add(int64(len(removed)))
	}
	return removed
}

// ConfirmedElections returns the roots of all currently Confirmed
// elections, in insertion order, without removing them.
func (r *Registry) ConfirmedElections() []walletaddr.BlockHash {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []walletaddr.BlockHash
	for _, root := range r.order {
		if e, ok := r.elections[root]; ok && e.State() == election.Confirmed {
			out = append(out, root)
		}
	}
	return out
}

// CleanupConfirmed removes all Confirmed elections. Idempotent: calling
// it twice in a row is a no-op the second time.
func (r *Registry) CleanupConfirmed() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, root := range r.order {
		if e, ok := r.elections[root]; ok && e.State() == election.Confirmed {
			delete(r.elections, root)
		}
	}
	r.pruneOrder()
}

// ResolveFork marks fork's election Expired, provided it exists and is not
// already Confirmed. Called after confirmed wins a competing root.
func (r *Registry) ResolveFork(confirmed, fork walletaddr.BlockHash, now walletaddr.Timestamp) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.elections[fork]
	if !ok || e.State() == election.Confirmed {
		return
	}
	e.ForceExpire(now)
}

// GetForkLosers returns every block hash, other than the winner, that
// received at least one vote in confirmedRoot's election: rollback
// candidates for the block processor.
func (r *Registry) GetForkLosers(confirmedRoot walletaddr.BlockHash) ([]walletaddr.BlockHash, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.elections[confirmedRoot]
	if !ok {
		return nil, ErrNotFound
	}
	if e.State() != election.Confirmed {
		return nil, errors.New("active: election not confirmed")
	}

	tally := e.Tally()

	var winner walletaddr.BlockHash
	var best uint64
	found := false
	for h, w := range tally {
		if !found || w > best {
			winner, best, found = h, w, true
		}
	}

	var losers []walletaddr.BlockHash
	for h := range tally {
		if h != winner {
			losers = append(losers, h)
		}
	}
	return losers, nil
}

func (r *Registry) pruneOrder() {
	kept := r.order[:0]
	for _, root := range r.order {
		if _, ok := r.elections[root]; ok {
			kept = append(kept, root)
		}
	}
	r.order = kept
}
