package brn

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/burstubi/node/walletaddr"
)

// TestBurnMatchesScenarioS1 confirms accrual saturates at a 500 cap
// well before t=10000, then a burn deducts from that balance.
func TestBurnMatchesScenarioS1(t *testing.T) {
	e := NewEngine()
	var alice walletaddr.WalletAddress
	alice[0] = 1

	e.Register(alice, 0, 100, 500)

	balance, err := e.Balance(alice, 10000)
	require.NoError(t, err)
	assert.Equal(t, uint64(500), balance)

	after, err := e.Burn(alice, 200, 10000)
	require.NoError(t, err)
	assert.Equal(t, uint64(300), after)

	balance, err = e.Balance(alice, 10001)
	require.NoError(t, err)
	assert.Equal(t, uint64(300), balance)
}

func TestBurnRejectsInsufficientBalance(t *testing.T) {
	e := NewEngine()
	var bob walletaddr.WalletAddress
	bob[0] = 2
	e.Register(bob, 0, 10, 100)

	_, err := e.Burn(bob, 1000, 1)
	assert.ErrorIs(t, err, ErrInsufficientBalance)
}

func TestBalanceBeforeVerificationIsZero(t *testing.T) {
	e := NewEngine()
	var carol walletaddr.WalletAddress
	carol[0] = 3
	e.Register(carol, 100, 10, 1000)

	balance, err := e.Balance(carol, 50)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), balance)
}
