package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/burstubi/node/block"
	"github.com/burstubi/node/walletaddr"
)

func waddr(b byte) walletaddr.WalletAddress {
	var a walletaddr.WalletAddress
	a[0] = b
	return a
}

func TestWriteBatchCommitPersistsBlockAndHead(t *testing.T) {
	s := OpenMem()
	defer s.Close()

	alice := waddr(1)
	blk := &block.StateBlock{Kind: block.KindOpen, Account: alice, Timestamp: 1}
	hash := blk.Hash()

	wb := s.NewWriteBatch()
	defer wb.Abort()
	wb.PutBlock(blk)
	wb.PutHead(alice, hash)
	require.NoError(t, wb.Commit())

	got, err := s.Block(hash)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, hash, got.Hash())

	head, err := s.Head(alice)
	require.NoError(t, err)
	assert.Equal(t, hash, head)
}

func TestWriteBatchAbortDiscardsUncommittedWrites(t *testing.T) {
	s := OpenMem()
	defer s.Close()

	alice := waddr(1)
	blk := &block.StateBlock{Kind: block.KindOpen, Account: alice, Timestamp: 1}

	wb := s.NewWriteBatch()
	wb.PutBlock(blk)
	wb.Abort()

	got, err := s.Block(blk.Hash())
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestBlockReadsServedFromCacheAfterCommit(t *testing.T) {
	s := OpenMem()
	defer s.Close()

	alice := waddr(1)
	blk := &block.StateBlock{Kind: block.KindOpen, Account: alice, Timestamp: 1}
	hash := blk.Hash()

	wb := s.NewWriteBatch()
	defer wb.Abort()
	wb.PutBlock(blk)
	require.NoError(t, wb.Commit())

	cached, ok := s.blockCache.Get(hash)
	require.True(t, ok)
	assert.Same(t, blk, cached.(*block.StateBlock))
}

func TestCommitAfterCommitFails(t *testing.T) {
	s := OpenMem()
	defer s.Close()

	wb := s.NewWriteBatch()
	require.NoError(t, wb.Commit())
	assert.Error(t, wb.Commit())
}

func TestPendingRoundTrip(t *testing.T) {
	s := OpenMem()
	defer s.Close()

	bob := waddr(2)
	source := walletaddr.BlockHash{0x9}
	info := PendingInfo{Source: source, Amount: 100, Timestamp: 42}

	wb := s.NewWriteBatch()
	defer wb.Abort()
	require.NoError(t, wb.PutPending(bob, source, info))
	require.NoError(t, wb.Commit())

	got, err := s.Pending(bob, source)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, uint64(100), got.Amount)

	all, err := s.PendingForAccount(bob)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}
