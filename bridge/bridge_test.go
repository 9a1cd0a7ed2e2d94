package bridge

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/burstubi/node/block"
	"github.com/burstubi/node/brn"
	"github.com/burstubi/node/trst"
	"github.com/burstubi/node/walletaddr"
)

func waddr(b byte) walletaddr.WalletAddress {
	var a walletaddr.WalletAddress
	a[0] = b
	return a
}

func bhash(b byte) walletaddr.BlockHash {
	var h walletaddr.BlockHash
	h[0] = b
	return h
}

// TestBurnAndMintMatchesScenarioS1 confirms a burn block's BRN
// deduction and resulting TRST mint agree end to end through the bridge.
func TestBurnAndMintMatchesScenarioS1(t *testing.T) {
	brnEngine := brn.NewEngine()
	trstEngine := trst.NewEngine(1_000_000)

	alice := waddr(1)
	bob := waddr(2)
	brnEngine.Register(alice, 0, 100, 500)

	after, err := brnEngine.Burn(alice, 200, 10000)
	require.NoError(t, err)
	assert.Equal(t, uint64(300), after)

	blk := &block.StateBlock{
		Kind:       block.KindBurn,
		Account:    alice,
		BrnBalance: 300,
		Link:       walletaddr.BlockHash(bob),
		Timestamp:  10000,
	}

	result, err := ProcessBlockEconomics(blk, brnEngine, trstEngine, Inputs{}, 10000, 1_000_000, 500)
	require.NoError(t, err)
	require.Equal(t, ResultBurnAndMint, result.Kind)
	assert.Equal(t, uint64(200), result.BurnAmount)
	require.NotNil(t, result.MintToken)
	assert.Equal(t, uint64(200), result.MintToken.Amount)
	assert.Equal(t, bob, result.MintToken.Holder)
	assert.Equal(t, alice, result.MintToken.OriginWallet)
}

func TestBurnOnlyWhenLinkIsZero(t *testing.T) {
	brnEngine := brn.NewEngine()
	trstEngine := trst.NewEngine(1_000_000)
	alice := waddr(1)
	brnEngine.Register(alice, 0, 100, 500)
	_, err := brnEngine.Burn(alice, 50, 100)
	require.NoError(t, err)

	blk := &block.StateBlock{Kind: block.KindBurn, Account: alice, BrnBalance: 50}
	result, err := ProcessBlockEconomics(blk, brnEngine, trstEngine, Inputs{}, 100, 1_000_000, 100)
	require.NoError(t, err)
	assert.Equal(t, ResultBurnOnly, result.Kind)
	assert.Equal(t, uint64(50), result.BurnAmount)
}

func TestSendThenReceiveRoundTrip(t *testing.T) {
	trstEngine := trst.NewEngine(1_000_000)
	alice := waddr(1)
	bob := waddr(2)
	origin := waddr(9)

	_, err := trstEngine.Mint(walletaddr.TxHash(bhash(0x10)), alice, 500, origin, 0)
	require.NoError(t, err)

	sendBlk := &block.StateBlock{Kind: block.KindSend, Account: alice, TrstBalance: 200}
	sendResult, err := ProcessBlockEconomics(sendBlk, brn.NewEngine(), trstEngine, Inputs{
		SendReceiver: bob,
		ChangeTxID:   walletaddr.TxHash(bhash(0x12)),
	}, 0, 1_000_000, 0)
	require.NoError(t, err)
	require.Equal(t, ResultSend, sendResult.Kind)
	assert.Equal(t, uint64(200), sendResult.TrstBalanceAfter)
	require.NotEmpty(t, sendResult.ConsumedPortions)

	receiveBlk := &block.StateBlock{Kind: block.KindReceive, Account: bob, TrstBalance: 300}
	receiveResult, err := ProcessBlockEconomics(receiveBlk, brn.NewEngine(), trstEngine, Inputs{
		ReceivePortions: sendResult.ConsumedPortions,
	}, 0, 1_000_000, 0)
	require.NoError(t, err)
	require.Equal(t, ResultReceive, receiveResult.Kind)
	require.NotNil(t, receiveResult.ReceivedToken)
	assert.Equal(t, uint64(300), receiveResult.ReceivedToken.Amount)
}

func TestReceiveWithoutPendingEntryIsRejected(t *testing.T) {
	trstEngine := trst.NewEngine(1_000_000)
	blk := &block.StateBlock{Kind: block.KindReceive, Account: waddr(1)}
	result, err := ProcessBlockEconomics(blk, brn.NewEngine(), trstEngine, Inputs{}, 0, 1_000_000, 0)
	require.NoError(t, err)
	assert.Equal(t, ResultRejectReceive, result.Kind)
}
