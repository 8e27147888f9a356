package ledger

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	token = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	alice = common.HexToAddress("0x0000000000000000000000000000000000000a11")
	bob   = common.HexToAddress("0x0000000000000000000000000000000000000b0b")
)

func balance(t *testing.T, m *Memory, account common.Address) *big.Int {
	t.Helper()
	bal, err := m.BalanceOf(context.Background(), token, account)
	require.NoError(t, err)
	return bal
}

func TestMemoryTransfer(t *testing.T) {
	m := NewMemory()
	require.NoError(t, m.Mint(token, alice, big.NewInt(100)))

	require.NoError(t, m.Transfer(context.Background(), token, alice, bob, big.NewInt(40)))

	assert.Equal(t, "60", balance(t, m, alice).String())
	assert.Equal(t, "40", balance(t, m, bob).String())
}

func TestMemoryTransferInsufficientBalance(t *testing.T) {
	m := NewMemory()
	require.NoError(t, m.Mint(token, alice, big.NewInt(10)))

	err := m.Transfer(context.Background(), token, alice, bob, big.NewInt(11))
	require.ErrorIs(t, err, ErrInsufficientBalance)
	assert.Equal(t, "10", balance(t, m, alice).String())
	assert.Equal(t, "0", balance(t, m, bob).String())
}

func TestMemoryRejectsInvalidAmounts(t *testing.T) {
	m := NewMemory()

	require.ErrorIs(t, m.Mint(token, alice, big.NewInt(-1)), ErrInvalidAmount)
	require.ErrorIs(t, m.Transfer(context.Background(), token, alice, bob, nil), ErrInvalidAmount)

	tooBig := new(big.Int).Lsh(big.NewInt(1), 256)
	require.ErrorIs(t, m.Mint(token, alice, tooBig), ErrOverflow)
}

func TestMemoryMintOverflow(t *testing.T) {
	m := NewMemory()
	maxWord := new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))
	require.NoError(t, m.Mint(token, alice, maxWord))
	require.ErrorIs(t, m.Mint(token, alice, big.NewInt(1)), ErrOverflow)
}

func TestMemoryHookRunsAfterTransfer(t *testing.T) {
	m := NewMemory()
	require.NoError(t, m.Mint(token, alice, big.NewInt(100)))

	var seen *big.Int
	m.SetHook(bob, func(ctx context.Context, tr Transfer) error {
		// The hook observes the already-applied balance and may re-enter.
		bal, err := m.BalanceOf(ctx, token, bob)
		require.NoError(t, err)
		seen = bal
		return nil
	})

	require.NoError(t, m.Transfer(context.Background(), token, alice, bob, big.NewInt(25)))
	require.NotNil(t, seen)
	assert.Equal(t, "25", seen.String())
}

func TestMemoryHookErrorRevertsTransfer(t *testing.T) {
	m := NewMemory()
	require.NoError(t, m.Mint(token, alice, big.NewInt(100)))

	boom := errors.New("receiver rejected")
	m.SetHook(bob, func(context.Context, Transfer) error { return boom })

	err := m.Transfer(context.Background(), token, alice, bob, big.NewInt(25))
	require.ErrorIs(t, err, boom)
	assert.Equal(t, "100", balance(t, m, alice).String())
	assert.Equal(t, "0", balance(t, m, bob).String())

	m.SetHook(bob, nil)
	require.NoError(t, m.Transfer(context.Background(), token, alice, bob, big.NewInt(25)))
}
