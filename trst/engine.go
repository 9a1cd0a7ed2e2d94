// Package trst implements the TRST token engine: per-wallet portfolios
// with incremental caches, mint/send/receive/split/merge, merger-graph-
// backed sybil revocation, and lazy expiry.
package trst

import (
	"github.com/inconshreveable/log15"
	"github.com/pkg/errors"

	"github.com/burstubi/node/telemetry"
	"github.com/burstubi/node/trst/mergergraph"
	"github.com/burstubi/node/walletaddr"
)

var log = log15.New("pkg", "trst")

var (
	metricMints       = telemetry.LazyLoad(func() telemetry.CountMeter { return telemetry.Counter("trst_mints_total") })
	metricRevocations = telemetry.LazyLoad(func() telemetry.CountMeter { return telemetry.Counter("trst_revocation_events_total") })
)

// Errors returned by Engine operations.
var (
	ErrZeroAmount          = errors.New("trst: amount must be non-zero")
	ErrNotHolder           = errors.New("trst: sender does not hold token")
	ErrSameSenderReceiver  = errors.New("trst: sender and receiver must differ")
	ErrNotTransferable     = errors.New("trst: token is not transferable")
	ErrInsufficientAmount  = errors.New("trst: amount exceeds token balance")
	ErrSplitNeedsTwo       = errors.New("trst: split requires at least two outputs")
	ErrSplitHashMismatch   = errors.New("trst: split output/hash count mismatch")
	ErrSplitSumMismatch    = errors.New("trst: split output amounts must sum to parent amount")
	ErrMergeNeedsTwo       = errors.New("trst: merge requires at least two tokens")
	ErrMergeHolderMismatch = errors.New("trst: all merged tokens must share a holder")
	ErrMergeProportionSum  = errors.New("trst: merged proportions must sum to total amount")
	ErrTokenNotFound       = errors.New("trst: token not found")
)

// RevocationEvent is emitted when a previously-active token is struck
// down by a sybil-origin revocation.
type RevocationEvent struct {
	MergeTx       walletaddr.TxHash // zero for a simple (unmerged) token
	TokenID       walletaddr.TxHash
	Holder        walletaddr.WalletAddress
	RevokedAmount uint64
}

// RestorationEvent is the exact inverse of a RevocationEvent.
type RestorationEvent struct {
	MergeTx         walletaddr.TxHash
	TokenID         walletaddr.TxHash
	Holder          walletaddr.WalletAddress
	RestoredAmount  uint64
}

// ConsumedPortion describes one token (fully or partially) drained from a
// wallet during a FIFO debit, carrying enough provenance for the
// receiver's pending entry.
type ConsumedPortion struct {
	TokenID           walletaddr.TxHash
	Origin            walletaddr.TxHash
	OriginWallet      walletaddr.WalletAddress
	OriginTimestamp   walletaddr.Timestamp
	EffectiveOrigin   walletaddr.Timestamp
	Amount            uint64
	OriginProportions []OriginProportion
}

// Engine owns every wallet's portfolio, the merger graph, and the
// secondary indexes needed for O(1)-ish mint/revocation routing.
type Engine struct {
	expirySecs int64

	wallets map[walletaddr.WalletAddress]*Portfolio
	graph   *mergergraph.Graph

	// tokenHolder maps a live token's ID to its current holder wallet.
	tokenHolder map[walletaddr.TxHash]walletaddr.WalletAddress
	// tokensByOrigin maps a token's Origin field (a mint burn-tx for
	// unmerged lineages, or a merge-tx once merged) to the set of live
	// token IDs currently carrying that Origin.
	tokensByOrigin map[walletaddr.TxHash]map[walletaddr.TxHash]struct{}
	// walletOrigins maps an origin_wallet to every real burn-tx origin it
	// has ever minted, for revoke_by_origin's initial lookup.
	walletOrigins map[walletaddr.WalletAddress]map[walletaddr.TxHash]struct{}
}

// NewEngine constructs an empty Engine with the given TRST expiry.
func NewEngine(expirySecs int64) *Engine {
	return &Engine{
		expirySecs:     expirySecs,
		wallets:        make(map[walletaddr.WalletAddress]*Portfolio),
		graph:          mergergraph.New(),
		tokenHolder:    make(map[walletaddr.TxHash]walletaddr.WalletAddress),
		tokensByOrigin: make(map[walletaddr.TxHash]map[walletaddr.TxHash]struct{}),
		walletOrigins:  make(map[walletaddr.WalletAddress]map[walletaddr.TxHash]struct{}),
	}
}

// Portfolio returns (creating if necessary) wallet's portfolio.
func (e *Engine) Portfolio(wallet walletaddr.WalletAddress) *Portfolio {
	p, ok := e.wallets[wallet]
	if !ok {
		p = NewPortfolio(e.expirySecs)
		e.wallets[wallet] = p
	}
	return p
}

// TransferableBalance flushes expiry then returns wallet's transferable
// balance.
func (e *Engine) TransferableBalance(wallet walletaddr.WalletAddress, now walletaddr.Timestamp) uint64 {
	p := e.Portfolio(wallet)
	p.FlushExpired(now)
	return p.CachedTransferable()
}

func (e *Engine) addOriginIndex(origin walletaddr.TxHash, tokenID walletaddr.TxHash) {
	set, ok := e.tokensByOrigin[origin]
	if !ok {
		set = make(map[walletaddr.TxHash]struct{})
		e.tokensByOrigin[origin] = set
	}
	set[tokenID] = struct{}{}
}

func (e *Engine) removeOriginIndex(origin walletaddr.TxHash, tokenID walletaddr.TxHash) {
	if set, ok := e.tokensByOrigin[origin]; ok {
		delete(set, tokenID)
		if len(set) == 0 {
			delete(e.tokensByOrigin, origin)
		}
	}
}

// Mint creates a root TRST token by burning BRN. amount == 0 fails.
func (e *Engine) Mint(burnTx walletaddr.TxHash, receiver walletaddr.WalletAddress, amount uint64, originWallet walletaddr.WalletAddress, ts walletaddr.Timestamp) (*Token, error) {
	if amount == 0 {
		return nil, ErrZeroAmount
	}

	tok := &Token{
		ID:                       burnTx,
		Origin:                   burnTx,
		Link:                     burnTx,
		Amount:                   amount,
		Holder:                   receiver,
		State:                    StateActive,
		OriginTimestamp:          ts,
		EffectiveOriginTimestamp: ts,
		OriginWallet:             originWallet,
	}

	e.Portfolio(receiver).Insert(tok)
	e.tokenHolder[tok.ID] = receiver
	e.addOriginIndex(tok.Origin, tok.ID)

	set, ok := e.walletOrigins[originWallet]
	if !ok {
		set = make(map[walletaddr.TxHash]struct{})
		e.walletOrigins[originWallet] = set
	}
	set[burnTx] = struct{}{}

	metricMints().Add(1)
	log.Debug("trst minted", "burn_tx", burnTx, "receiver", receiver, "amount", amount)
	return tok, nil
}

// Transfer moves amount of token from sender to receiver, returning the
// new receiver token and, if amount < token.Amount, a change token kept
// by sender.
func (e *Engine) Transfer(tokenID walletaddr.TxHash, sender, receiver walletaddr.WalletAddress, amount uint64, sendTx, changeTx walletaddr.TxHash, now walletaddr.Timestamp) (*Token, *Token, error) {
	senderPortfolio := e.Portfolio(sender)
	senderPortfolio.FlushExpired(now)

	tok, ok := senderPortfolio.Get(tokenID)
	if !ok {
		return nil, nil, ErrTokenNotFound
	}
	if tok.Holder != sender {
		return nil, nil, ErrNotHolder
	}
	if amount == 0 {
		return nil, nil, ErrZeroAmount
	}
	if sender == receiver {
		return nil, nil, ErrSameSenderReceiver
	}
	if !tok.IsTransferableAt(now, e.expirySecs) {
		return nil, nil, ErrNotTransferable
	}
	if amount > tok.Amount {
		return nil, nil, ErrInsufficientAmount
	}

	receiverTok := tok.Clone()
	receiverTok.ID = sendTx
	receiverTok.Link = tok.ID
	receiverTok.Amount = amount
	receiverTok.Holder = receiver

	var changeTok *Token
	remainder := tok.Amount - amount
	if remainder > 0 {
		changeTok = tok.Clone()
		changeTok.ID = changeTx
		changeTok.Link = tok.ID
		changeTok.Amount = remainder
		changeTok.Holder = sender
	}

	senderPortfolio.Remove(tokenID)
	e.removeOriginIndex(tok.Origin, tok.ID)
	delete(e.tokenHolder, tok.ID)

	e.Portfolio(receiver).Insert(receiverTok)
	e.tokenHolder[receiverTok.ID] = receiver
	e.addOriginIndex(receiverTok.Origin, receiverTok.ID)

	if changeTok != nil {
		senderPortfolio.Insert(changeTok)
		e.tokenHolder[changeTok.ID] = sender
		e.addOriginIndex(changeTok.Origin, changeTok.ID)
	}

	return receiverTok, changeTok, nil
}

// Split divides token into len(amounts) new tokens held by the given
// receivers, consuming the parent.
func (e *Engine) Split(tokenID walletaddr.TxHash, holder walletaddr.WalletAddress, receivers []walletaddr.WalletAddress, amounts []uint64, txHashes []walletaddr.TxHash, now walletaddr.Timestamp) ([]*Token, error) {
	if len(receivers) < 2 || len(amounts) != len(receivers) {
		return nil, ErrSplitNeedsTwo
	}
	if len(txHashes) != len(receivers) {
		return nil, ErrSplitHashMismatch
	}

	portfolio := e.Portfolio(holder)
	portfolio.FlushExpired(now)

	parent, ok := portfolio.Get(tokenID)
	if !ok {
		return nil, ErrTokenNotFound
	}
	if parent.Holder != holder {
		return nil, ErrNotHolder
	}
	if !parent.IsTransferableAt(now, e.expirySecs) {
		return nil, ErrNotTransferable
	}

	var sum uint64
	for _, amt := range amounts {
		if amt == 0 {
			return nil, ErrZeroAmount
		}
		sum += amt
	}
	if sum != parent.Amount {
		return nil, ErrSplitSumMismatch
	}

	children := make([]*Token, len(receivers))
	for i := range receivers {
		child := parent.Clone()
		child.ID = txHashes[i]
		child.Link = parent.ID
		child.Amount = amounts[i]
		child.Holder = receivers[i]
		if len(parent.OriginProportions) > 0 {
			scaled := make([]OriginProportion, len(parent.OriginProportions))
			for j, p := range parent.OriginProportions {
				scaled[j] = OriginProportion{
					Origin:       p.Origin,
					OriginWallet: p.OriginWallet,
					Amount:       p.Amount * amounts[i] / parent.Amount,
				}
			}
			child.OriginProportions = scaled
		}
		children[i] = child
	}

	portfolio.Remove(tokenID)
	e.removeOriginIndex(parent.Origin, parent.ID)
	delete(e.tokenHolder, parent.ID)

	for _, child := range children {
		e.Portfolio(child.Holder).Insert(child)
		e.tokenHolder[child.ID] = child.Holder
		e.addOriginIndex(child.Origin, child.ID)
	}

	return children, nil
}

// Merge combines tokenIDs (all held by holder) into a single new token.
func (e *Engine) Merge(tokenIDs []walletaddr.TxHash, holder walletaddr.WalletAddress, mergeTx walletaddr.TxHash, now walletaddr.Timestamp) (*Token, error) {
	if len(tokenIDs) < 2 {
		return nil, ErrMergeNeedsTwo
	}

	portfolio := e.Portfolio(holder)
	portfolio.FlushExpired(now)

	tokens := make([]*Token, len(tokenIDs))
	for i, id := range tokenIDs {
		tok, ok := portfolio.Get(id)
		if !ok {
			return nil, ErrTokenNotFound
		}
		if tok.Holder != holder {
			return nil, ErrMergeHolderMismatch
		}
		if !tok.IsTransferableAt(now, e.expirySecs) {
			return nil, ErrNotTransferable
		}
		tokens[i] = tok
	}

	var total uint64
	effectiveOrigin := tokens[0].EffectiveOriginTimestamp
	proportionByOrigin := make(map[walletaddr.TxHash]*OriginProportion)
	var order []walletaddr.TxHash

	addProportion := func(origin walletaddr.TxHash, originWallet walletaddr.WalletAddress, amount uint64) {
		if existing, ok := proportionByOrigin[origin]; ok {
			existing.Amount += amount
			return
		}
		p := &OriginProportion{Origin: origin, OriginWallet: originWallet, Amount: amount}
		proportionByOrigin[origin] = p
		order = append(order, origin)
	}

	for _, tok := range tokens {
		total += tok.Amount
		if tok.EffectiveOriginTimestamp < effectiveOrigin {
			effectiveOrigin = tok.EffectiveOriginTimestamp
		}
		if len(tok.OriginProportions) > 0 {
			for _, p := range tok.OriginProportions {
				addProportion(p.Origin, p.OriginWallet, p.Amount)
			}
		} else {
			addProportion(tok.Origin, tok.OriginWallet, tok.Amount)
		}
	}

	proportions := make([]OriginProportion, 0, len(order))
	for _, origin := range order {
		proportions = append(proportions, *proportionByOrigin[origin])
	}
	if proportionsSum(proportions) != total {
		return nil, ErrMergeProportionSum
	}

	merged := &Token{
		ID:                       mergeTx,
		Origin:                   mergeTx,
		Link:                     tokens[0].ID,
		Amount:                   total,
		Holder:                   holder,
		State:                    StateActive,
		OriginTimestamp:          now,
		EffectiveOriginTimestamp: effectiveOrigin,
		OriginProportions:        proportions,
	}

	sources := make([]mergergraph.SourceOrigin, len(proportions))
	for i, p := range proportions {
		sources[i] = mergergraph.SourceOrigin{Origin: p.Origin, Amount: p.Amount}
	}

	for _, tok := range tokens {
		portfolio.Remove(tok.ID)
		e.removeOriginIndex(tok.Origin, tok.ID)
		delete(e.tokenHolder, tok.ID)
	}

	e.graph.RecordMerge(mergeTx, sources, total, holder)

	portfolio.Insert(merged)
	e.tokenHolder[merged.ID] = holder
	e.addOriginIndex(merged.Origin, merged.ID)

	return merged, nil
}

// RevokeByOrigin propagates a sybil-origin revocation through the merger
// graph and over simple unmerged tokens, at whole-token granularity: a
// merged token is revoked entirely once any constituent origin is marked,
// rather than only its proportional share.
func (e *Engine) RevokeByOrigin(originWallet walletaddr.WalletAddress) []RevocationEvent {
	origins := e.originsFor(originWallet)
	var events []RevocationEvent

	for _, origin := range origins {
		e.graph.MarkRevoked(origin)

		for _, mergeTx := range e.graph.MergesConsuming(origin) {
			proportion, _ := e.graph.ProportionFor(mergeTx, origin)
			for tokenID := range e.tokensByOrigin[mergeTx] {
				if ev, ok := e.revokeLiveToken(tokenID, mergeTx, proportion); ok {
					events = append(events, ev)
				}
			}
		}

		for tokenID := range e.tokensByOrigin[origin] {
			holder, ok := e.tokenHolder[tokenID]
			if !ok {
				continue
			}
			portfolio := e.wallets[holder]
			tok, ok := portfolio.Get(tokenID)
			if !ok || tok.State != StateActive {
				continue
			}
			amount := tok.Amount
			portfolio.MarkState(tokenID, StateRevoked)
			events = append(events, RevocationEvent{TokenID: tokenID, Holder: holder, RevokedAmount: amount})
		}
	}

	metricRevocations().Add(int64(len(events)))
	return events
}

func (e *Engine) revokeLiveToken(tokenID, mergeTx walletaddr.TxHash, revokedAmount uint64) (RevocationEvent, bool) {
	holder, ok := e.tokenHolder[tokenID]
	if !ok {
		return RevocationEvent{}, false
	}
	portfolio := e.wallets[holder]
	tok, ok := portfolio.Get(tokenID)
	if !ok || tok.State != StateActive {
		return RevocationEvent{}, false
	}
	portfolio.MarkState(tokenID, StateRevoked)
	return RevocationEvent{MergeTx: mergeTx, TokenID: tokenID, Holder: holder, RevokedAmount: revokedAmount}, true
}

// UnrevokeByOrigin is the exact inverse of RevokeByOrigin, restoring only
// tokens that are currently Revoked.
func (e *Engine) UnrevokeByOrigin(originWallet walletaddr.WalletAddress) []RestorationEvent {
	origins := e.originsFor(originWallet)
	var events []RestorationEvent

	for _, origin := range origins {
		e.graph.MarkUnrevoked(origin)

		for _, mergeTx := range e.graph.MergesConsuming(origin) {
			for tokenID := range e.tokensByOrigin[mergeTx] {
				if ev, ok := e.restoreLiveToken(tokenID, mergeTx); ok {
					events = append(events, ev)
				}
			}
		}

		for tokenID := range e.tokensByOrigin[origin] {
			if ev, ok := e.restoreLiveToken(tokenID, walletaddr.ZeroTxHash); ok {
				events = append(events, ev)
			}
		}
	}
	return events
}

func (e *Engine) restoreLiveToken(tokenID, mergeTx walletaddr.TxHash) (RestorationEvent, bool) {
	holder, ok := e.tokenHolder[tokenID]
	if !ok {
		return RestorationEvent{}, false
	}
	portfolio := e.wallets[holder]
	tok, ok := portfolio.Get(tokenID)
	if !ok || tok.State != StateRevoked {
		return RestorationEvent{}, false
	}
	portfolio.MarkState(tokenID, StateActive)
	return RestorationEvent{MergeTx: mergeTx, TokenID: tokenID, Holder: holder, RestoredAmount: tok.Amount}, true
}

func (e *Engine) originsFor(originWallet walletaddr.WalletAddress) []walletaddr.TxHash {
	set := e.walletOrigins[originWallet]
	out := make([]walletaddr.TxHash, 0, len(set))
	for origin := range set {
		out = append(out, origin)
	}
	return out
}

// DebitWalletWithProvenance drains amount from wallet's portfolio,
// oldest-first, returning the provenance of every consumed portion so a
// pending entry can carry it to the receiver. If the last token consumed
// is only partially used, the remainder stays in the wallet as a change
// token under changeTx.
func (e *Engine) DebitWalletWithProvenance(wallet walletaddr.WalletAddress, amount uint64, changeTx walletaddr.TxHash, now walletaddr.Timestamp) ([]ConsumedPortion, error) {
	portfolio := e.Portfolio(wallet)
	portfolio.FlushExpired(now)

	if portfolio.CachedTransferable() < amount {
		return nil, ErrInsufficientAmount
	}

	var consumed []ConsumedPortion
	remaining := amount

	for _, tok := range portfolio.Tokens() {
		if remaining == 0 {
			break
		}
		if tok.State != StateActive || !tok.IsTransferableAt(now, e.expirySecs) {
			continue
		}

		if tok.Amount <= remaining {
			consumed = append(consumed, portionFrom(tok, tok.Amount))
			remaining -= tok.Amount

			portfolio.Remove(tok.ID)
			e.removeOriginIndex(tok.Origin, tok.ID)
			delete(e.tokenHolder, tok.ID)
		} else {
			consumed = append(consumed, portionFrom(tok, remaining))

			change := tok.Clone()
			change.ID = changeTx
			change.Link = tok.ID
			change.Amount = tok.Amount - remaining

			portfolio.Remove(tok.ID)
			e.removeOriginIndex(tok.Origin, tok.ID)
			delete(e.tokenHolder, tok.ID)

			portfolio.Insert(change)
			e.tokenHolder[change.ID] = wallet
			e.addOriginIndex(change.Origin, change.ID)

			remaining = 0
		}
	}

	return consumed, nil
}

func portionFrom(tok *Token, amount uint64) ConsumedPortion {
	return ConsumedPortion{
		TokenID:           tok.ID,
		Origin:            tok.Origin,
		OriginWallet:      tok.OriginWallet,
		OriginTimestamp:   tok.OriginTimestamp,
		EffectiveOrigin:   tok.EffectiveOriginTimestamp,
		Amount:            amount,
		OriginProportions: append([]OriginProportion(nil), tok.OriginProportions...),
	}
}

// ReceiveFromProvenance builds the receiver-side token(s) for a Receive
// block from the pending entry's consumed portions: a single-origin
// provenance copies fields directly; multi-origin synthesizes a
// pre-merged token.
func (e *Engine) ReceiveFromProvenance(receiveTx walletaddr.TxHash, receiver walletaddr.WalletAddress, portions []ConsumedPortion, now walletaddr.Timestamp) (*Token, error) {
	if len(portions) == 0 {
		return nil, errors.New("trst: no provenance to receive")
	}

	if len(portions) == 1 {
		p := portions[0]
		tok := &Token{
			ID:                       receiveTx,
			Origin:                   p.Origin,
			Link:                     p.TokenID,
			Amount:                   p.Amount,
			Holder:                   receiver,
			State:                    StateActive,
			OriginTimestamp:          p.OriginTimestamp,
			EffectiveOriginTimestamp: p.EffectiveOrigin,
			OriginWallet:             p.OriginWallet,
			OriginProportions:        append([]OriginProportion(nil), p.OriginProportions...),
		}
		e.Portfolio(receiver).Insert(tok)
		e.tokenHolder[tok.ID] = receiver
		e.addOriginIndex(tok.Origin, tok.ID)
		return tok, nil
	}

	var total uint64
	effectiveOrigin := portions[0].EffectiveOrigin
	var proportions []OriginProportion
	for _, p := range portions {
		total += p.Amount
		if p.EffectiveOrigin < effectiveOrigin {
			effectiveOrigin = p.EffectiveOrigin
		}
		if len(p.OriginProportions) > 0 {
			proportions = append(proportions, p.OriginProportions...)
		} else {
			proportions = append(proportions, OriginProportion{Origin: p.Origin, OriginWallet: p.OriginWallet, Amount: p.Amount})
		}
	}

	tok := &Token{
		ID:                       receiveTx,
		Origin:                   receiveTx,
		Link:                     receiveTx,
		Amount:                   total,
		Holder:                   receiver,
		State:                    StateActive,
		OriginTimestamp:          now,
		EffectiveOriginTimestamp: effectiveOrigin,
		OriginProportions:        proportions,
	}
	e.Portfolio(receiver).Insert(tok)
	e.tokenHolder[tok.ID] = receiver
	e.addOriginIndex(tok.Origin, tok.ID)
	return tok, nil
}

// Graph exposes the merger graph for read-only inspection (RPC, tests).
func (e *Engine) Graph() *mergergraph.Graph { return e.graph }
