// Package ledger provides an in-process asset ledger. Balances behave like
// ERC20 balances: unsigned 256-bit words that can neither overflow nor go
// negative.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

var (
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrOverflow            = errors.New("balance overflow")
	ErrInvalidAmount       = errors.New("invalid transfer amount")
)

// TransferHook runs after a transfer to the hooked account has been applied.
// It receives the caller's context, so it may call back into whatever issued
// the transfer. Returning an error reverts the transfer.
type TransferHook func(ctx context.Context, t Transfer) error

// Transfer describes a completed balance movement.
type Transfer struct {
	Asset  common.Address
	From   common.Address
	To     common.Address
	Amount *big.Int
}

// Memory is a thread-safe in-memory ledger keyed by asset then account.
type Memory struct {
	mu       sync.Mutex
	balances map[common.Address]map[common.Address]*uint256.Int
	hooks    map[common.Address]TransferHook
}

func NewMemory() *Memory {
	return &Memory{
		balances: make(map[common.Address]map[common.Address]*uint256.Int),
		hooks:    make(map[common.Address]TransferHook),
	}
}

// Mint credits amount of asset to account out of thin air.
func (m *Memory) Mint(asset, account common.Address, amount *big.Int) error {
	value, err := toWord(amount)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	bal := m.balance(asset, account)
	sum, overflow := new(uint256.Int).AddOverflow(bal, value)
	if overflow {
		return fmt.Errorf("mint %s to %s: %w", amount, account.Hex(), ErrOverflow)
	}
	m.setBalance(asset, account, sum)
	return nil
}

// BalanceOf returns the current balance of account in asset.
func (m *Memory) BalanceOf(_ context.Context, asset, account common.Address) (*big.Int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.balance(asset, account).ToBig(), nil
}

// Transfer moves amount of asset from one account to another, then runs the
// receiver's hook, if any, without holding the ledger lock.
func (m *Memory) Transfer(ctx context.Context, asset, from, to common.Address, amount *big.Int) error {
	value, err := toWord(amount)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	if err := m.move(asset, from, to, value); err != nil {
		m.mu.Unlock()
		return err
	}
	hook := m.hooks[to]
	m.mu.Unlock()

	if hook == nil {
		return nil
	}
	if err := hook(ctx, Transfer{Asset: asset, From: from, To: to, Amount: new(big.Int).Set(amount)}); err != nil {
		m.mu.Lock()
		revertErr := m.move(asset, to, from, value)
		m.mu.Unlock()
		if revertErr != nil {
			return errors.Join(fmt.Errorf("transfer hook: %w", err), fmt.Errorf("revert transfer: %w", revertErr))
		}
		return fmt.Errorf("transfer hook: %w", err)
	}
	return nil
}

// SetHook installs fn to run whenever account receives a transfer. A nil fn
// removes the hook.
func (m *Memory) SetHook(account common.Address, fn TransferHook) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if fn == nil {
		delete(m.hooks, account)
		return
	}
	m.hooks[account] = fn
}

func (m *Memory) move(asset, from, to common.Address, value *uint256.Int) error {
	fromBal := m.balance(asset, from)
	if fromBal.Lt(value) {
		return fmt.Errorf("transfer %s from %s: %w", value.Dec(), from.Hex(), ErrInsufficientBalance)
	}
	if from == to {
		return nil
	}
	toBal := m.balance(asset, to)
	sum, overflow := new(uint256.Int).AddOverflow(toBal, value)
	if overflow {
		return fmt.Errorf("transfer %s to %s: %w", value.Dec(), to.Hex(), ErrOverflow)
	}
	m.setBalance(asset, from, new(uint256.Int).Sub(fromBal, value))
	m.setBalance(asset, to, sum)
	return nil
}

func (m *Memory) balance(asset, account common.Address) *uint256.Int {
	if accounts, ok := m.balances[asset]; ok {
		if bal, ok := accounts[account]; ok {
			return bal
		}
	}
	return new(uint256.Int)
}

func (m *Memory) setBalance(asset, account common.Address, value *uint256.Int) {
	accounts, ok := m.balances[asset]
	if !ok {
		accounts = make(map[common.Address]*uint256.Int)
		m.balances[asset] = accounts
	}
	if value.IsZero() {
		delete(accounts, account)
		return
	}
	accounts[account] = value
}

func toWord(amount *big.Int) (*uint256.Int, error) {
	if amount == nil || amount.Sign() < 0 {
		return nil, ErrInvalidAmount
	}
	value, overflow := uint256.FromBig(amount)
	if overflow {
		return nil, fmt.Errorf("%w: %s does not fit in 256 bits", ErrOverflow, amount)
	}
	return value, nil
}
