// Package governance implements the five-phase proposal lifecycle:
// Proposal, Exploration, Cooldown, Promotion, Activation, with adaptive
// quorum, meta-threshold rules, transitive delegation and deferred
// activation.
package governance

import (
	"github.com/inconshreveable/log15"
	"github.com/pborman/uuid"
	"github.com/pkg/errors"

	"github.com/burstubi/node/telemetry"
	"github.com/burstubi/node/walletaddr"
)

var log = log15.New("pkg", "governance")

var metricAdvances = telemetry.LazyLoad(func() telemetry.CountMeter { return telemetry.Counter("governance_phase_advances_total") })

// Phase is a proposal's place in its five-stage lifecycle.
type Phase uint8

const (
	PhaseProposal Phase = iota
	PhaseExploration
	PhaseCooldown
	PhasePromotion
	PhaseActivation
	PhaseWithdrawn
	PhaseRejected
)

func (p Phase) String() string {
	switch p {
	case PhaseProposal:
		return "proposal"
	case PhaseExploration:
		return "exploration"
	case PhaseCooldown:
		return "cooldown"
	case PhasePromotion:
		return "promotion"
	case PhaseActivation:
		return "activation"
	case PhaseWithdrawn:
		return "withdrawn"
	case PhaseRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// IsTerminal reports whether p is one of Activation, Withdrawn, Rejected.
func (p Phase) IsTerminal() bool {
	return p == PhaseActivation || p == PhaseWithdrawn || p == PhaseRejected
}

// Content classifies a proposal's subject matter, which feeds the
// meta-threshold rules.
type Content uint8

const (
	ContentParameterChange Content = iota
	ContentConstitutionalAmendment
	ContentEmergency
)

func (c Content) String() string {
	switch c {
	case ContentParameterChange:
		return "parameter_change"
	case ContentConstitutionalAmendment:
		return "constitutional_amendment"
	case ContentEmergency:
		return "emergency"
	default:
		return "unknown"
	}
}

// VoteChoice is a direct or delegated ballot on a proposal.
type VoteChoice uint8

const (
	VoteYea VoteChoice = iota
	VoteNay
	VoteAbstain
)

// Well-known ParamKey values that feed the meta-threshold rules: a
// proposal changing ConstiSupermajorityBps requires the current
// constitutional threshold, and one changing GovernanceSupermajorityBps
// requires max(its current value, 8500), not the plain governance
// supermajority. Any other key is treated as an ordinary parameter.
const (
	ParamConstiSupermajorityBps     = "ConstiSupermajorityBps"
	ParamGovernanceSupermajorityBps = "GovernanceSupermajorityBps"
)

// Params holds the engine's current (possibly amended) governance
// parameters.
type Params struct {
	ProposalDurationSecs    int64
	ExplorationDurationSecs int64
	CooldownDurationSecs    int64
	PromotionDurationSecs   int64
	PropagationBufferSecs   int64

	EndorsementThreshold  uint64
	ProposalCostBrn       uint64
	MaxRounds             int

	BaseQuorumBps             uint64
	GovernanceSupermajorityBps uint64
	ConstiSupermajorityBps     uint64
	EmergencySupermajorityBps  uint64
}

var (
	ErrProposerNotVerified = errors.New("governance: proposer must be verified")
	ErrInsufficientBalance = errors.New("governance: brn_balance below governance_proposal_cost")
	ErrUnknownProposal     = errors.New("governance: unknown proposal")
	ErrTerminalPhase       = errors.New("governance: proposal is in a terminal phase")
	ErrWrongPhase          = errors.New("governance: vote does not match proposal's current phase")
	ErrNotProposer         = errors.New("governance: only the proposer may withdraw")
)

// Proposal is a single governance item moving through the lifecycle.
type Proposal struct {
	ID       string
	Proposer walletaddr.WalletAddress
	Content  Content
	ParamKey string
	// ProposedValueBps carries the new basis-points value for a
	// ParameterChange proposal that targets a *_Bps parameter.
	ProposedValueBps uint64

	Phase            Phase
	EndorsementCount uint64
	Endorsers        map[walletaddr.WalletAddress]struct{}
	Round            int

	ExplorationVotes map[walletaddr.WalletAddress]VoteChoice
	PromotionVotes   map[walletaddr.WalletAddress]VoteChoice

	SubmittedAt    walletaddr.Timestamp
	PhaseEnteredAt walletaddr.Timestamp
	ActivationAt   *walletaddr.Timestamp
	Applied        bool
}

// Engine owns every Proposal, the delegation graph, and the adaptive
// quorum's participation EMA.
type Engine struct {
	params              Params
	emaParticipationBps uint64

	proposals   map[string]*Proposal
	delegations map[walletaddr.WalletAddress]walletaddr.WalletAddress
}

// NewEngine constructs an Engine seeded with params.
func NewEngine(params Params) *Engine {
	return &Engine{
		params:      params,
		proposals:   make(map[string]*Proposal),
		delegations: make(map[walletaddr.WalletAddress]walletaddr.WalletAddress),
	}
}

// Params returns the engine's current governance parameters.
func (e *Engine) Params() Params { return e.params }

// Proposal returns a snapshot of the named proposal, if any.
func (e *Engine) Proposal(id string) (Proposal, bool) {
	p, ok := e.proposals[id]
	if !ok {
		return Proposal{}, false
	}
	return *p, true
}

// Submit creates a new Proposal in phase Proposal, Exploration for
// Emergency content (which skips Proposal and Cooldown).
func (e *Engine) Submit(proposer walletaddr.WalletAddress, proposerVerified bool, brnBalance uint64, content Content, paramKey string, proposedValueBps uint64, now walletaddr.Timestamp) (*Proposal, error) {
	if !proposerVerified {
		return nil, ErrProposerNotVerified
	}
	if brnBalance < e.params.ProposalCostBrn {
		return nil, ErrInsufficientBalance
	}

	p := &Proposal{
		ID:               uuid.New(),
		Proposer:         proposer,
		Content:          content,
		ParamKey:         paramKey,
		ProposedValueBps: proposedValueBps,
		Phase:            PhaseProposal,
		Endorsers:        make(map[walletaddr.WalletAddress]struct{}),
		ExplorationVotes: make(map[walletaddr.WalletAddress]VoteChoice),
		PromotionVotes:   make(map[walletaddr.WalletAddress]VoteChoice),
		SubmittedAt:      now,
		PhaseEnteredAt:   now,
	}
	if content == ContentEmergency {
		p.Phase = PhaseExploration
	}
	e.proposals[p.ID] = p
	return p, nil
}

// Endorse records a burn-backed endorsement during the Proposal phase.
func (e *Engine) Endorse(id string, endorser walletaddr.WalletAddress, now walletaddr.Timestamp) (bool, error) {
	p, ok := e.proposals[id]
	if !ok {
		return false, ErrUnknownProposal
	}
	if p.Phase != PhaseProposal {
		return false, ErrWrongPhase
	}
	if _, already := p.Endorsers[endorser]; !already {
		p.Endorsers[endorser] = struct{}{}
		p.EndorsementCount++
	}
	return p.EndorsementCount >= e.params.EndorsementThreshold, nil
}

// Withdraw moves p to the terminal Withdrawn phase.
func (e *Engine) Withdraw(id string, caller walletaddr.WalletAddress) error {
	p, ok := e.proposals[id]
	if !ok {
		return ErrUnknownProposal
	}
	if p.Proposer != caller {
		return ErrNotProposer
	}
	if p.Phase.IsTerminal() {
		return ErrTerminalPhase
	}
	p.Phase = PhaseWithdrawn
	return nil
}

// SetDelegate records that voter's ballot should be credited to delegate
// whenever voter does not vote directly.
func (e *Engine) SetDelegate(voter, delegate walletaddr.WalletAddress) {
	e.delegations[voter] = delegate
}

// VoteExploration records a direct Exploration-phase ballot.
func (e *Engine) VoteExploration(id string, voter walletaddr.WalletAddress, choice VoteChoice) error {
	p, ok := e.proposals[id]
	if !ok {
		return ErrUnknownProposal
	}
	if p.Phase != PhaseExploration {
		return ErrWrongPhase
	}
	p.ExplorationVotes[voter] = choice
	return nil
}

// VotePromotion records a direct Promotion-phase ballot.
func (e *Engine) VotePromotion(id string, voter walletaddr.WalletAddress, choice VoteChoice) error {
	p, ok := e.proposals[id]
	if !ok {
		return ErrUnknownProposal
	}
	if p.Phase != PhasePromotion {
		return ErrWrongPhase
	}
	p.PromotionVotes[voter] = choice
	return nil
}

// resolveEffectiveVote follows voter's delegation chain (depth-limited by
// maxDepth, with a visited set to detect cycles) until it finds a direct
// vote, returning false if none is ever found or a cycle is hit.
func (e *Engine) resolveEffectiveVote(voter walletaddr.WalletAddress, direct map[walletaddr.WalletAddress]VoteChoice, maxDepth int) (VoteChoice, bool) {
	if v, ok := direct[voter]; ok {
		return v, true
	}
	visited := map[walletaddr.WalletAddress]struct{}{voter: {}}
	current := voter
	for depth := 0; depth < maxDepth; depth++ {
		delegate, ok := e.delegations[current]
		if !ok {
			return 0, false
		}
		if _, seen := visited[delegate]; seen {
			return 0, false
		}
		visited[delegate] = struct{}{}
		if v, ok := direct[delegate]; ok {
			return v, true
		}
		current = delegate
	}
	return 0, false
}

// tally resolves every eligible voter's effective vote (direct, else via
// delegation) and sums yea/nay/abstain.
func (e *Engine) tally(eligible []walletaddr.WalletAddress, direct map[walletaddr.WalletAddress]VoteChoice) (yea, nay, abstain uint64) {
	for _, voter := range eligible {
		choice, ok := e.resolveEffectiveVote(voter, direct, len(eligible))
		if !ok {
			continue
		}
		switch choice {
		case VoteYea:
			yea++
		case VoteNay:
			nay++
		case VoteAbstain:
			abstain++
		}
	}
	return
}

// effectiveQuorumBps returns max(base_quorum_bps, ema*8000/10000).
func (e *Engine) effectiveQuorumBps() uint64 {
	adjusted := e.emaParticipationBps * 8000 / 10000
	if adjusted > e.params.BaseQuorumBps {
		return adjusted
	}
	return e.params.BaseQuorumBps
}

// updateEma folds the just-completed phase's participation into the
// rolling 80/20 EMA used to adapt the next phase's quorum.
func (e *Engine) updateEma(currentParticipationBps uint64) {
	e.emaParticipationBps = (8*e.emaParticipationBps + 2*currentParticipationBps) / 10
}

// requiredSupermajorityBps implements the meta-threshold rules.
func (e *Engine) requiredSupermajorityBps(p *Proposal) uint64 {
	if p.Content == ContentEmergency {
		return e.params.EmergencySupermajorityBps
	}
	if p.ParamKey == ParamConstiSupermajorityBps {
		return e.params.ConstiSupermajorityBps
	}
	if p.Content == ContentConstitutionalAmendment {
		return e.params.ConstiSupermajorityBps
	}
	if p.ParamKey == ParamGovernanceSupermajorityBps {
		floor := e.params.GovernanceSupermajorityBps
		if floor < 8500 {
			floor = 8500
		}
		return floor
	}
	return e.params.GovernanceSupermajorityBps
}

func votesPass(yea, nay, abstain uint64, eligibleCount int, quorumBps, supermajorityBps uint64) bool {
	if eligibleCount == 0 {
		return false
	}
	participation := (yea + nay + abstain) * 10000 / uint64(eligibleCount)
	if participation < quorumBps {
		return false
	}
	if yea+nay == 0 {
		return false
	}
	return yea*10000/(yea+nay) >= supermajorityBps
}

// failPhase resets p to Proposal with round++, or Rejects it once
// max_rounds is exhausted.
func (e *Engine) failPhase(p *Proposal, now walletaddr.Timestamp) {
	if p.Round < e.params.MaxRounds {
		p.Round++
		p.Phase = PhaseProposal
		p.PhaseEnteredAt = now
		p.EndorsementCount = 0
		p.Endorsers = make(map[walletaddr.WalletAddress]struct{})
		p.ExplorationVotes = make(map[walletaddr.WalletAddress]VoteChoice)
		p.PromotionVotes = make(map[walletaddr.WalletAddress]VoteChoice)
		return
	}
	p.Phase = PhaseRejected
}

// TryAdvance evaluates whether p's current phase's window has elapsed
// and, if so, applies that phase's transition rules. For PhaseProposal
// this resolves a trivial one-proposal competition; call
// ResolveProposalCompetition directly when multiple proposals share a
// window.
func (e *Engine) TryAdvance(id string, eligible []walletaddr.WalletAddress, now walletaddr.Timestamp) (Phase, error) {
	p, ok := e.proposals[id]
	if !ok {
		return 0, ErrUnknownProposal
	}

	switch p.Phase {
	case PhaseProposal:
		windowEnd := int64(p.SubmittedAt) + e.params.ProposalDurationSecs
		if p.EndorsementCount < e.params.EndorsementThreshold || int64(now) < windowEnd {
			return p.Phase, nil
		}
		e.ResolveProposalCompetition([]*Proposal{p}, now)
		return p.Phase, nil

	case PhaseExploration:
		windowEnd := int64(p.PhaseEnteredAt) + e.params.ExplorationDurationSecs + e.params.PropagationBufferSecs
		if int64(now) < windowEnd {
			return p.Phase, nil
		}
		yea, nay, abstain := e.tally(eligible, p.ExplorationVotes)
		quorum := e.effectiveQuorumBps()
		sm := e.requiredSupermajorityBps(p)
		pass := votesPass(yea, nay, abstain, len(eligible), quorum, sm)
		e.updateEma((yea + nay + abstain) * 10000 / uint64(max1(len(eligible))))
		if pass {
			if p.Content == ContentEmergency {
				p.Phase = PhasePromotion
			} else {
				p.Phase = PhaseCooldown
			}
			p.PhaseEnteredAt = now
		} else {
			e.failPhase(p, now)
		}
		metricAdvances().Add(1)
		return p.Phase, nil

	case PhaseCooldown:
		if int64(now) < int64(p.PhaseEnteredAt)+e.params.CooldownDurationSecs {
			return p.Phase, nil
		}
		p.Phase = PhasePromotion
		p.PhaseEnteredAt = now
		metricAdvances().Add(1)
		return p.Phase, nil

	case PhasePromotion:
		windowEnd := int64(p.PhaseEnteredAt) + e.params.PromotionDurationSecs + e.params.PropagationBufferSecs
		if int64(now) < windowEnd {
			return p.Phase, nil
		}
		yea, nay, abstain := e.tally(eligible, p.PromotionVotes)
		quorum := e.effectiveQuorumBps()
		sm := e.requiredSupermajorityBps(p)
		pass := votesPass(yea, nay, abstain, len(eligible), quorum, sm)
		e.updateEma((yea + nay + abstain) * 10000 / uint64(max1(len(eligible))))
		if pass {
			p.Phase = PhaseActivation
			p.PhaseEnteredAt = now
			activationAt := now.Add(e.params.PropagationBufferSecs)
			p.ActivationAt = &activationAt
		} else {
			e.failPhase(p, now)
		}
		metricAdvances().Add(1)
		return p.Phase, nil

	default:
		return p.Phase, nil
	}
}

func max1(n int) int {
	if n == 0 {
		return 1
	}
	return n
}

// ResolveProposalCompetition implements the proposal-window competition:
// among batch (all still in phase Proposal, window expired), the
// strictly-highest endorsement count wins and advances to Exploration;
// a tie advances nobody; losers' rounds increment (capped by max_rounds,
// else Rejected).
func (e *Engine) ResolveProposalCompetition(batch []*Proposal, now walletaddr.Timestamp) *Proposal {
	var winner *Proposal
	tie := false
	for _, p := range batch {
		if p.Phase != PhaseProposal {
			continue
		}
		if p.EndorsementCount < e.params.EndorsementThreshold {
			continue
		}
		if winner == nil || p.EndorsementCount > winner.EndorsementCount {
			winner = p
			tie = false
		} else if p.EndorsementCount == winner.EndorsementCount {
			tie = true
		}
	}
	if tie {
		winner = nil
	}

	for _, p := range batch {
		if p.Phase != PhaseProposal {
			continue
		}
		if winner != nil && p.ID == winner.ID {
			p.Phase = PhaseExploration
			p.PhaseEnteredAt = now
			continue
		}
		e.failPhase(p, now)
	}
	return winner
}

// ApplyDeferredActivations applies every Activation-phase proposal whose
// activation_at has arrived and has not yet been applied, returning them.
func (e *Engine) ApplyDeferredActivations(now walletaddr.Timestamp) []*Proposal {
	var applied []*Proposal
	for _, p := range e.proposals {
		if p.Phase != PhaseActivation || p.Applied || p.ActivationAt == nil {
			continue
		}
		if int64(now) < int64(*p.ActivationAt) {
			continue
		}
		e.applyParamChange(p)
		p.Applied = true
		applied = append(applied, p)
	}
	return applied
}

func (e *Engine) applyParamChange(p *Proposal) {
	if p.Content != ContentParameterChange && p.Content != ContentConstitutionalAmendment {
		return
	}
	switch p.ParamKey {
	case ParamConstiSupermajorityBps:
		e.params.ConstiSupermajorityBps = p.ProposedValueBps
	case ParamGovernanceSupermajorityBps:
		e.params.GovernanceSupermajorityBps = p.ProposedValueBps
	case "BaseQuorumBps":
		e.params.BaseQuorumBps = p.ProposedValueBps
	default:
		log.Debug("governance: applied proposal with unrecognised param key", "key", p.ParamKey)
	}
}
