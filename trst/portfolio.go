package trst

import (
	"container/list"

	"github.com/burstubi/node/walletaddr"
)

// Portfolio holds one wallet's TRST tokens, ordered ascending by
// OriginTimestamp (oldest first, for FIFO debit order), with an
// incrementally-maintained transferable-balance cache.
//
// Invariants:
//  1. tokens sorted by OriginTimestamp.
//  2. cachedTransferable == recompute() modulo pending expiry flush.
//  3. earliestExpiry, when set, is the true minimum across active tokens.
type Portfolio struct {
	tokens             *list.List // of *Token, ascending OriginTimestamp
	byID               map[walletaddr.TxHash]*list.Element
	cachedTransferable uint64
	earliestExpiry     *walletaddr.Timestamp
	expirySecs         int64
}

// NewPortfolio constructs an empty Portfolio with the given token expiry.
func NewPortfolio(expirySecs int64) *Portfolio {
	return &Portfolio{
		tokens:     list.New(),
		byID:       make(map[walletaddr.TxHash]*list.Element),
		expirySecs: expirySecs,
	}
}

// Len returns the number of tokens held (of any state).
func (p *Portfolio) Len() int { return p.tokens.Len() }

// Tokens returns a snapshot slice of held tokens in portfolio order.
func (p *Portfolio) Tokens() []*Token {
	out := make([]*Token, 0, p.tokens.Len())
	for e := p.tokens.Front(); e != nil; e = e.Next() {
		out = append(out, e.Value.(*Token))
	}
	return out
}

// Get returns the token with the given id, if held.
func (p *Portfolio) Get(id walletaddr.TxHash) (*Token, bool) {
	e, ok := p.byID[id]
	if !ok {
		return nil, false
	}
	return e.Value.(*Token), true
}

// Insert adds tok in sorted position by OriginTimestamp and updates the
// incremental caches.
func (p *Portfolio) Insert(tok *Token) {
	var mark *list.Element
	for e := p.tokens.Back(); e != nil; e = e.Prev() {
		if e.Value.(*Token).OriginTimestamp <= tok.OriginTimestamp {
			mark = e
			break
		}
	}
	var elem *list.Element
	if mark == nil {
		elem = p.tokens.PushFront(tok)
	} else {
		elem = p.tokens.InsertAfter(tok, mark)
	}
	p.byID[tok.ID] = elem

	if tok.State == StateActive {
		p.cachedTransferable += tok.Amount
		p.touchEarliestExpiryCandidate(tok)
	}
}

// Remove deletes the token with id from the portfolio, adjusting caches if
// it was active.
func (p *Portfolio) Remove(id walletaddr.TxHash) (*Token, bool) {
	e, ok := p.byID[id]
	if !ok {
		return nil, false
	}
	tok := e.Value.(*Token)
	p.tokens.Remove(e)
	delete(p.byID, id)

	if tok.State == StateActive {
		p.cachedTransferable -= tok.Amount
		p.recomputeEarliestExpiry()
	}
	return tok, true
}

// CachedTransferable returns the incrementally-maintained transferable
// balance. Callers that need an up-to-date figure should call
// FlushExpired first.
func (p *Portfolio) CachedTransferable() uint64 { return p.cachedTransferable }

// EarliestExpiry returns the minimum effective_origin_timestamp+expiry across
// active tokens, or nil if there are none.
func (p *Portfolio) EarliestExpiry() *walletaddr.Timestamp { return p.earliestExpiry }

// touchEarliestExpiryCandidate updates earliestExpiry if tok's expiry is
// earlier than the current minimum (or none is set yet).
func (p *Portfolio) touchEarliestExpiryCandidate(tok *Token) {
	expiry := tok.EffectiveOriginTimestamp.Add(p.expirySecs)
	if p.earliestExpiry == nil || expiry < *p.earliestExpiry {
		e := expiry
		p.earliestExpiry = &e
	}
}

func (p *Portfolio) recomputeEarliestExpiry() {
	var min *walletaddr.Timestamp
	for e := p.tokens.Front(); e != nil; e = e.Next() {
		tok := e.Value.(*Token)
		if tok.State != StateActive {
			continue
		}
		expiry := tok.EffectiveOriginTimestamp.Add(p.expirySecs)
		if min == nil || expiry < *min {
			v := expiry
			min = &v
		}
	}
	p.earliestExpiry = min
}

// FlushExpired is a no-op when now is before earliestExpiry; otherwise it
// scans, flips expired Active tokens to Expired, subtracts their amounts
// from cachedTransferable, and recomputes earliestExpiry.
func (p *Portfolio) FlushExpired(now walletaddr.Timestamp) []*Token {
	if p.earliestExpiry == nil || now < *p.earliestExpiry {
		return nil
	}

	var expired []*Token
	for e := p.tokens.Front(); e != nil; e = e.Next() {
		tok := e.Value.(*Token)
		if tok.State != StateActive {
			continue
		}
		if int64(now) >= int64(tok.EffectiveOriginTimestamp)+p.expirySecs {
			tok.State = StateExpired
			p.cachedTransferable -= tok.Amount
			expired = append(expired, tok)
		}
	}
	p.recomputeEarliestExpiry()
	return expired
}

// RecomputeTransferable fully rescans the portfolio; used by tests and
// invariant checks, not on any hot path.
func (p *Portfolio) RecomputeTransferable(now walletaddr.Timestamp) uint64 {
	var sum uint64
	for e := p.tokens.Front(); e != nil; e = e.Next() {
		tok := e.Value.(*Token)
		if tok.State == StateActive && !tok.isExpiredAt(now, p.expirySecs) {
			sum += tok.Amount
		}
	}
	return sum
}

// MarkState transitions the token with id to newState, adjusting the
// transferable cache if it is leaving or entering StateActive.
func (p *Portfolio) MarkState(id walletaddr.TxHash, newState State) bool {
	e, ok := p.byID[id]
	if !ok {
		return false
	}
	tok := e.Value.(*Token)
	if tok.State == newState {
		return true
	}

	if tok.State == StateActive {
		p.cachedTransferable -= tok.Amount
	}
	tok.State = newState
	if newState == StateActive {
		p.cachedTransferable += tok.Amount
		p.touchEarliestExpiryCandidate(tok)
	} else {
		p.recomputeEarliestExpiry()
	}
	return true
}
