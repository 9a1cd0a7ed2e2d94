package block

import (
	"testing"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/burstubi/node/walletaddr"
)

func sampleBlock() *StateBlock {
	return &StateBlock{
		Kind:           KindSend,
		Account:        walletaddr.AddressFromPublicKey([]byte("alice")),
		Previous:       walletaddr.BlockHash(walletaddr.HashBytes([]byte("prev"))),
		Representative: walletaddr.AddressFromPublicKey([]byte("rep")),
		BrnBalance:     300,
		TrstBalance:    1500,
		Link:           walletaddr.BlockHash(walletaddr.HashBytes([]byte("link"))),
		Origin:         walletaddr.TxHash(walletaddr.HashBytes([]byte("origin"))),
		Timestamp:      10000,
		Work:           1 << 40,
	}
}

func TestBlockEncodeDecodeRoundTrip(t *testing.T) {
	b := sampleBlock()
	hashBefore := b.Hash()

	decoded, err := Decode(b.Encode())
	require.NoError(t, err)

	assert.Equal(t, b.Kind, decoded.Kind)
	assert.Equal(t, b.Account, decoded.Account)
	assert.Equal(t, b.BrnBalance, decoded.BrnBalance)
	assert.Equal(t, b.TrstBalance, decoded.TrstBalance)
	assert.Equal(t, hashBefore, decoded.Hash())
}

func TestBlockJSONRoundTrip(t *testing.T) {
	b := sampleBlock()
	data, err := b.MarshalJSON()
	require.NoError(t, err)

	var decoded StateBlock
	require.NoError(t, decoded.UnmarshalJSON(data))

	assert.Equal(t, b.Kind, decoded.Kind)
	assert.Equal(t, b.Account, decoded.Account)
	assert.Equal(t, b.Hash(), decoded.Hash())
}

func TestBlockSignAndVerify(t *testing.T) {
	priv, err := secp256k1.GeneratePrivateKey()
	require.NoError(t, err)

	b := sampleBlock()
	b.Sign(priv)

	assert.True(t, b.VerifySignature(priv.PubKey()))

	b.TrstBalance++
	b.hash = walletaddr.ZeroBlockHash
	assert.False(t, b.VerifySignature(priv.PubKey()))
}

func TestMeetsDifficulty(t *testing.T) {
	assert.True(t, MeetsDifficulty(100, 100))
	assert.True(t, MeetsDifficulty(101, 100))
	assert.False(t, MeetsDifficulty(99, 100))
}
