package trst

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/burstubi/node/walletaddr"
)

func tokAt(id byte, ts walletaddr.Timestamp, amount uint64) *Token {
	var h walletaddr.TxHash
	h[0] = id
	return &Token{
		ID:                       h,
		Origin:                   h,
		Link:                     h,
		Amount:                   amount,
		Holder:                   walletaddr.WalletAddress{},
		State:                    StateActive,
		OriginTimestamp:          ts,
		EffectiveOriginTimestamp: ts,
	}
}

func TestPortfolioInsertMaintainsOrder(t *testing.T) {
	p := NewPortfolio(1000)
	p.Insert(tokAt(2, 200, 10))
	p.Insert(tokAt(1, 100, 20))
	p.Insert(tokAt(3, 300, 30))

	got := p.Tokens()
	assert.Len(t, got, 3)
	assert.Equal(t, walletaddr.Timestamp(100), got[0].OriginTimestamp)
	assert.Equal(t, walletaddr.Timestamp(200), got[1].OriginTimestamp)
	assert.Equal(t, walletaddr.Timestamp(300), got[2].OriginTimestamp)
}

func TestPortfolioCachedTransferableMatchesRecompute(t *testing.T) {
	p := NewPortfolio(1000)
	p.Insert(tokAt(1, 100, 10))
	p.Insert(tokAt(2, 200, 20))
	p.Insert(tokAt(3, 300, 30))

	now := walletaddr.Timestamp(400)
	assert.Equal(t, uint64(60), p.CachedTransferable())
	assert.Equal(t, p.RecomputeTransferable(now), p.CachedTransferable())

	p.Remove(walletaddr.TxHash{2})
	assert.Equal(t, uint64(40), p.CachedTransferable())
	assert.Equal(t, p.RecomputeTransferable(now), p.CachedTransferable())
}

func TestPortfolioFlushExpiredIsAmortizedNoop(t *testing.T) {
	p := NewPortfolio(100)
	p.Insert(tokAt(1, 0, 10))
	p.Insert(tokAt(2, 50, 20))

	assert.Equal(t, walletaddr.Timestamp(100), *p.EarliestExpiry())

	assert.Nil(t, p.FlushExpired(50))
	assert.Equal(t, uint64(30), p.CachedTransferable())

	expired := p.FlushExpired(100)
	assert.Len(t, expired, 1)
	assert.Equal(t, walletaddr.TxHash{1}, expired[0].ID)
	assert.Equal(t, uint64(20), p.CachedTransferable())
	assert.Equal(t, walletaddr.Timestamp(150), *p.EarliestExpiry())

	expired = p.FlushExpired(150)
	assert.Len(t, expired, 1)
	assert.Equal(t, uint64(0), p.CachedTransferable())
	assert.Nil(t, p.EarliestExpiry())
}

func TestPortfolioMarkStateAdjustsCacheBothWays(t *testing.T) {
	p := NewPortfolio(1000)
	p.Insert(tokAt(1, 100, 50))

	assert.True(t, p.MarkState(walletaddr.TxHash{1}, StateRevoked))
	assert.Equal(t, uint64(0), p.CachedTransferable())
	assert.Nil(t, p.EarliestExpiry())

	assert.True(t, p.MarkState(walletaddr.TxHash{1}, StateActive))
	assert.Equal(t, uint64(50), p.CachedTransferable())
	assert.NotNil(t, p.EarliestExpiry())

	assert.False(t, p.MarkState(walletaddr.TxHash{99}, StateRevoked))
}
