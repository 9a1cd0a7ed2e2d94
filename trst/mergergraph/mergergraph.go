// Package mergergraph tracks TRST merges back to their constituent origins,
// so a detected sybil origin can be traced to every descendant merged
// token for revocation.
package mergergraph

import "github.com/burstubi/node/walletaddr"

// SourceOrigin is one constituent of a merge, carrying the amount it
// contributed.
type SourceOrigin struct {
	Origin walletaddr.TxHash
	Amount uint64
}

// MergeNode records a single merge transaction's constituent origins.
type MergeNode struct {
	SourceOrigins []SourceOrigin
	TotalAmount   uint64
	Holder        walletaddr.WalletAddress
}

// Graph is a DAG mapping merges to the origins they consumed, plus the
// reverse index and the set of currently-revoked origins.
//
// Invariant: for every merge node M and every source S of M,
// M is present in OriginToMerges[S].
type Graph struct {
	mergeNodes      map[walletaddr.TxHash]MergeNode
	originToMerges  map[walletaddr.TxHash]map[walletaddr.TxHash]struct{}
	revokedOrigins  map[walletaddr.TxHash]struct{}
}

// New constructs an empty Graph.
func New() *Graph {
	return &Graph{
		mergeNodes:     make(map[walletaddr.TxHash]MergeNode),
		originToMerges: make(map[walletaddr.TxHash]map[walletaddr.TxHash]struct{}),
		revokedOrigins: make(map[walletaddr.TxHash]struct{}),
	}
}

// RecordMerge adds a merge node, each merge only referencing prior origins
// so the graph stays acyclic by construction.
func (g *Graph) RecordMerge(mergeTx walletaddr.TxHash, sources []SourceOrigin, total uint64, holder walletaddr.WalletAddress) {
	g.mergeNodes[mergeTx] = MergeNode{
		SourceOrigins: append([]SourceOrigin(nil), sources...),
		TotalAmount:   total,
		Holder:        holder,
	}
	for _, s := range sources {
		set, ok := g.originToMerges[s.Origin]
		if !ok {
			set = make(map[walletaddr.TxHash]struct{})
			g.originToMerges[s.Origin] = set
		}
		set[mergeTx] = struct{}{}
	}
}

// Node returns the merge node for mergeTx, if any.
func (g *Graph) Node(mergeTx walletaddr.TxHash) (MergeNode, bool) {
	n, ok := g.mergeNodes[mergeTx]
	return n, ok
}

// MergesConsuming returns every merge tx that consumed origin, in no
// particular order.
func (g *Graph) MergesConsuming(origin walletaddr.TxHash) []walletaddr.TxHash {
	set := g.originToMerges[origin]
	out := make([]walletaddr.TxHash, 0, len(set))
	for tx := range set {
		out = append(out, tx)
	}
	return out
}

// MarkRevoked marks origin as revoked.
func (g *Graph) MarkRevoked(origin walletaddr.TxHash) { g.revokedOrigins[origin] = struct{}{} }

// MarkUnrevoked clears origin's revoked mark.
func (g *Graph) MarkUnrevoked(origin walletaddr.TxHash) { delete(g.revokedOrigins, origin) }

// IsRevoked reports whether origin is currently revoked.
func (g *Graph) IsRevoked(origin walletaddr.TxHash) bool {
	_, ok := g.revokedOrigins[origin]
	return ok
}

// ProportionFor returns the amount of mergeTx's total that originated from
// origin, and whether that source was present at all.
func (g *Graph) ProportionFor(mergeTx, origin walletaddr.TxHash) (uint64, bool) {
	node, ok := g.mergeNodes[mergeTx]
	if !ok {
		return 0, false
	}
	for _, s := range node.SourceOrigins {
		if s.Origin == origin {
			return s.Amount, true
		}
	}
	return 0, false
}
