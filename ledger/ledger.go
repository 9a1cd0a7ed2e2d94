// Package ledger validates a signed StateBlock against the account's
// frontier, updates per-account state, and hands the result to the
// bridge for its economic effect.
package ledger

import (
	"sync"

	"github.com/pkg/errors"

	"github.com/burstubi/node/block"
	"github.com/burstubi/node/bridge"
	"github.com/burstubi/node/brn"
	"github.com/burstubi/node/telemetry"
	"github.com/burstubi/node/trst"
	"github.com/burstubi/node/walletaddr"
)

var (
	blocksProcessed = telemetry.LazyLoad(func() telemetry.CountVecMeter {
		return telemetry.CounterVec("ledger_blocks_processed", []string{"detail"})
	})
)

// Detail mirrors the RPC `process` result's `detail` field: null (empty
// string) on a clean accept, otherwise a stable reason.
type Detail string

const (
	DetailNone      Detail = ""
	DetailDuplicate Detail = "duplicate"
	DetailFork      Detail = "fork"
	DetailGap       Detail = "gap"
)

// AccountInfo is the per-account state the frontier keys off of.
type AccountInfo struct {
	Head               walletaddr.BlockHash
	Representative     walletaddr.WalletAddress
	BlockCount         uint64
	BrnBalance         uint64
	TrstBalance        uint64
	ConfirmationHeight uint64
}

// DagFrontier maps an account to its head block and cached AccountInfo.
// Concurrent acceptance across distinct accounts is permitted; a
// per-account mutex would be finer-grained but a single RWMutex is
// simple and favors the read-heavy access pattern for a structure this
// size.
type DagFrontier struct {
	mu       sync.RWMutex
	accounts map[walletaddr.WalletAddress]*AccountInfo
	blocks   map[walletaddr.BlockHash]*block.StateBlock
}

// NewDagFrontier creates an empty frontier.
func NewDagFrontier() *DagFrontier {
	return &DagFrontier{
		accounts: make(map[walletaddr.WalletAddress]*AccountInfo),
		blocks:   make(map[walletaddr.BlockHash]*block.StateBlock),
	}
}

// Head returns the account's current head hash, or the zero hash if the
// account has never accepted a block.
func (f *DagFrontier) Head(account walletaddr.WalletAddress) walletaddr.BlockHash {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if a, ok := f.accounts[account]; ok {
		return a.Head
	}
	return walletaddr.ZeroBlockHash
}

// Account returns a copy of the account's info, if any.
func (f *DagFrontier) Account(account walletaddr.WalletAddress) (AccountInfo, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	a, ok := f.accounts[account]
	if !ok {
		return AccountInfo{}, false
	}
	return *a, true
}

// Block looks up a previously-accepted block by hash.
func (f *DagFrontier) Block(hash walletaddr.BlockHash) (*block.StateBlock, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	b, ok := f.blocks[hash]
	return b, ok
}

// RepWeight returns rep's delegated voting weight: the sum of the TRST
// balances of every account that has designated rep as its
// representative (weight is attributed to the representative, not the
// delegator).
func (f *DagFrontier) RepWeight(rep walletaddr.WalletAddress) uint64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	var total uint64
	for acct, info := range f.accounts {
		if info.Representative == rep && acct != walletaddr.ZeroAddress {
			total += info.TrstBalance
		}
	}
	return total
}

// Signer verifies a block's signature; tests may supply one that always
// returns true to skip signature checks.
type Signer interface {
	Verify(blk *block.StateBlock, account walletaddr.WalletAddress) bool
}

// Processor validates and applies StateBlocks, wiring their economic
// effect through bridge.ProcessBlockEconomics.
type Processor struct {
	Frontier       *DagFrontier
	Brn            *brn.Engine
	Trst           *trst.Engine
	Signer         Signer
	MinDifficulty  func(block.Kind) uint64
	ExpirySecs     int64
}

// NewProcessor wires a Processor over the given engines.
func NewProcessor(frontier *DagFrontier, brnEngine *brn.Engine, trstEngine *trst.Engine, signer Signer, minDifficulty func(block.Kind) uint64, expirySecs int64) *Processor {
	return &Processor{
		Frontier:      frontier,
		Brn:           brnEngine,
		Trst:          trstEngine,
		Signer:        signer,
		MinDifficulty: minDifficulty,
		ExpirySecs:    expirySecs,
	}
}

// Outcome is what the caller (RPC handler, bootstrap replay) gets back.
type Outcome struct {
	Hash     walletaddr.BlockHash
	Accepted bool
	Detail   Detail
	Economic bridge.EconomicResult
}

// Process validates blk against the frontier, applies it, and computes
// its economic effect. Not safe for concurrent calls against the same
// account; the caller owns serializing those (e.g. one goroutine per
// account, or a per-account lock upstream of Process).
func (p *Processor) Process(blk *block.StateBlock, in bridge.Inputs, now walletaddr.Timestamp) (Outcome, error) {
	hash := blk.Hash()

	p.Frontier.mu.Lock()
	if _, dup := p.Frontier.blocks[hash]; dup {
		p.Frontier.mu.Unlock()
		blocksProcessed().AddWithLabel(1, map[string]string{"detail": string(DetailDuplicate)})
		return Outcome{Hash: hash, Accepted: false, Detail: DetailDuplicate}, nil
	}

	info, hasAccount := p.Frontier.accounts[blk.Account]
	var prevBrn, prevTrst uint64
	switch {
	case blk.Kind == block.KindOpen:
		if hasAccount {
			p.Frontier.mu.Unlock()
			blocksProcessed().AddWithLabel(1, map[string]string{"detail": string(DetailFork)})
			return Outcome{Hash: hash, Accepted: false, Detail: DetailFork}, nil
		}
	case !hasAccount:
		p.Frontier.mu.Unlock()
		blocksProcessed().AddWithLabel(1, map[string]string{"detail": string(DetailGap)})
		return Outcome{Hash: hash, Accepted: false, Detail: DetailGap}, nil
	case info.Head != blk.Previous:
		p.Frontier.mu.Unlock()
		blocksProcessed().AddWithLabel(1, map[string]string{"detail": string(DetailFork)})
		return Outcome{Hash: hash, Accepted: false, Detail: DetailFork}, nil
	default:
		prevBrn, prevTrst = info.BrnBalance, info.TrstBalance
	}
	p.Frontier.mu.Unlock()

	if err := validateBalanceTransition(blk.Kind, prevBrn, prevTrst, blk.BrnBalance, blk.TrstBalance); err != nil {
		return Outcome{Hash: hash, Accepted: false, Detail: Detail(err.Error())}, nil
	}

	if p.Signer != nil && !p.Signer.Verify(blk, blk.Account) {
		return Outcome{Hash: hash, Accepted: false, Detail: "bad_signature"}, nil
	}

	minDiff := uint64(0)
	if p.MinDifficulty != nil {
		minDiff = p.MinDifficulty(blk.Kind)
	}
	if !block.MeetsDifficulty(blk.Work, minDiff) {
		return Outcome{Hash: hash, Accepted: false, Detail: "insufficient_work"}, nil
	}

	econ, err := bridge.ProcessBlockEconomics(blk, p.Brn, p.Trst, in, now, p.ExpirySecs, prevBrn)
	if err != nil {
		return Outcome{Hash: hash, Accepted: false, Detail: Detail(econ.RejectReason)}, err
	}
	if econ.Kind == bridge.ResultRejected {
		blocksProcessed().AddWithLabel(1, map[string]string{"detail": "rejected"})
		return Outcome{Hash: hash, Accepted: false, Detail: Detail(econ.RejectReason), Economic: econ}, nil
	}

	p.Frontier.mu.Lock()
	p.Frontier.blocks[hash] = blk
	newInfo := &AccountInfo{
		Head:               hash,
		Representative:     blk.Representative,
		BrnBalance:         blk.BrnBalance,
		TrstBalance:        blk.TrstBalance,
		ConfirmationHeight: 0,
	}
	if hasAccount {
		newInfo.BlockCount = info.BlockCount + 1
		newInfo.ConfirmationHeight = info.ConfirmationHeight
	} else {
		newInfo.BlockCount = 1
	}
	p.Frontier.accounts[blk.Account] = newInfo
	p.Frontier.mu.Unlock()

	blocksProcessed().AddWithLabel(1, map[string]string{"detail": "accepted"})
	return Outcome{Hash: hash, Accepted: true, Detail: DetailNone, Economic: econ}, nil
}

// validateBalanceTransition enforces each block kind's allowed balance
// delta (e.g. a send must decrease TRST, a burn must decrease BRN).
func validateBalanceTransition(kind block.Kind, prevBrn, prevTrst, newBrn, newTrst uint64) error {
	switch kind {
	case block.KindOpen:
		return nil
	case block.KindEndorse:
		if newBrn > prevBrn {
			return errors.New("endorse must not increase brn balance")
		}
		if newTrst != prevTrst {
			return errors.New("endorse must not change trst balance")
		}
	case block.KindChallenge:
		if newTrst != prevTrst {
			return errors.New("challenge must not change trst balance")
		}
		if newBrn >= prevBrn {
			return errors.New("challenge must decrease brn balance by the stake")
		}
	case block.KindGovernanceVote, block.KindVerificationVote, block.KindRepChange:
		if newBrn != prevBrn || newTrst != prevTrst {
			return errors.New("vote/rep-change blocks must not change balances")
		}
	case block.KindBurn:
		if newBrn >= prevBrn {
			return errors.New("burn must decrease brn balance")
		}
		if newTrst != prevTrst {
			return errors.New("burn must not change trst balance directly")
		}
	case block.KindSend:
		if newTrst >= prevTrst {
			return errors.New("send must decrease trst balance")
		}
		if newBrn != prevBrn {
			return errors.New("send must not change brn balance")
		}
	case block.KindReceive:
		if newTrst <= prevTrst {
			return errors.New("receive must increase trst balance")
		}
		if newBrn != prevBrn {
			return errors.New("receive must not change brn balance")
		}
	case block.KindSplit, block.KindMerge:
		if newTrst != prevTrst {
			return errors.New("split/merge must not change the holder's total trst balance")
		}
		if newBrn != prevBrn {
			return errors.New("split/merge must not change brn balance")
		}
	case block.KindGovernanceProposal:
		if newBrn > prevBrn {
			return errors.New("governance proposal must not increase brn balance")
		}
		if newTrst != prevTrst {
			return errors.New("governance proposal must not change trst balance")
		}
	default:
		return errors.Errorf("unknown block kind %v", kind)
	}
	return nil
}
