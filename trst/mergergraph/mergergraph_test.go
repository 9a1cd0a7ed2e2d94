package mergergraph

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/burstubi/node/walletaddr"
)

func txh(b byte) walletaddr.TxHash {
	var h walletaddr.TxHash
	h[0] = b
	return h
}

func addr(b byte) walletaddr.WalletAddress {
	var a walletaddr.WalletAddress
	a[0] = b
	return a
}

func TestRecordMergeBuildsReverseIndex(t *testing.T) {
	g := New()
	g.RecordMerge(txh(0xFF), []SourceOrigin{
		{Origin: txh(1), Amount: 1000},
		{Origin: txh(2), Amount: 500},
	}, 1500, addr(9))

	node, ok := g.Node(txh(0xFF))
	assert.True(t, ok)
	assert.Equal(t, uint64(1500), node.TotalAmount)

	merges := g.MergesConsuming(txh(1))
	assert.Contains(t, merges, txh(0xFF))

	amt, ok := g.ProportionFor(txh(0xFF), txh(2))
	assert.True(t, ok)
	assert.Equal(t, uint64(500), amt)
}

func TestRevocationMarking(t *testing.T) {
	g := New()
	assert.False(t, g.IsRevoked(txh(1)))
	g.MarkRevoked(txh(1))
	assert.True(t, g.IsRevoked(txh(1)))
	g.MarkUnrevoked(txh(1))
	assert.False(t, g.IsRevoked(txh(1)))
}
