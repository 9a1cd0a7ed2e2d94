package trst

import "github.com/burstubi/node/walletaddr"

// State is a TrstToken's lifecycle state.
type State uint8

const (
	// StateActive tokens are transferable (subject to expiry).
	StateActive State = iota
	// StatePending tokens are held in a pending entry awaiting receive.
	StatePending
	// StateExpired tokens have aged past their effective origin + expiry.
	StateExpired
	// StateRevoked tokens were struck down via sybil revocation.
	StateRevoked
)

func (s State) String() string {
	switch s {
	case StateActive:
		return "active"
	case StatePending:
		return "pending"
	case StateExpired:
		return "expired"
	case StateRevoked:
		return "revoked"
	default:
		return "unknown"
	}
}

// OriginProportion decomposes a merged token's amount back to one of its
// real constituent origins.
type OriginProportion struct {
	Origin       walletaddr.TxHash
	OriginWallet walletaddr.WalletAddress
	Amount       uint64
}

// Token is a unit of TRST, minted by burning BRN and carrying provenance
// through every split/merge/transfer so a sybil mint can be traced and
// revoked.
type Token struct {
	ID     walletaddr.TxHash
	Origin walletaddr.TxHash
	Link   walletaddr.TxHash

	Amount uint64
	Holder walletaddr.WalletAddress
	State  State

	OriginTimestamp          walletaddr.Timestamp
	EffectiveOriginTimestamp walletaddr.Timestamp
	OriginWallet             walletaddr.WalletAddress

	// OriginProportions is empty for unmerged tokens; invariant:
	// sum(OriginProportions.Amount) == Amount when non-empty.
	OriginProportions []OriginProportion
}

// Clone returns a deep copy of t.
func (t *Token) Clone() *Token {
	cp := *t
	cp.OriginProportions = append([]OriginProportion(nil), t.OriginProportions...)
	return &cp
}

// IsTransferableAt reports whether t can be sent/split/merged at now:
// it must be Active and not yet expired.
func (t *Token) IsTransferableAt(now walletaddr.Timestamp, expirySecs int64) bool {
	if t.State != StateActive {
		return false
	}
	return !t.isExpiredAt(now, expirySecs)
}

func (t *Token) isExpiredAt(now walletaddr.Timestamp, expirySecs int64) bool {
	return int64(now) >= int64(t.EffectiveOriginTimestamp)+expirySecs
}

// proportionsSum returns the sum of OriginProportions.Amount.
func proportionsSum(props []OriginProportion) uint64 {
	var sum uint64
	for _, p := range props {
		sum += p.Amount
	}
	return sum
}
