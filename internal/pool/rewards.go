package pool

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"tswap/internal/model"
)

// RewardsConfig enables a bonus paid to every Every-th trader out of a
// separately funded account. The rewards account is never part of the pool
// reserves, so payouts cannot move prices.
type RewardsConfig struct {
	Enabled bool
	Account common.Address
	Asset   common.Address
	Every   uint64
	Bonus   *big.Int
}

func (c RewardsConfig) validate(poolAccount common.Address) error {
	if !c.Enabled {
		return nil
	}
	if c.Account == (common.Address{}) {
		return fmt.Errorf("%w: rewards account is required", ErrInvalidConfig)
	}
	if c.Account == poolAccount {
		return fmt.Errorf("%w: rewards account must differ from the pool account", ErrInvalidConfig)
	}
	if c.Asset == (common.Address{}) {
		return fmt.Errorf("%w: rewards asset is required", ErrInvalidConfig)
	}
	if c.Every == 0 {
		return fmt.Errorf("%w: rewards interval must be positive", ErrInvalidConfig)
	}
	if !positive(c.Bonus) {
		return fmt.Errorf("%w: rewards bonus must be positive", ErrInvalidConfig)
	}
	return nil
}

// FundRewards moves amount of the rewards asset from funder into the rewards
// account.
func (p *ExchangePool) FundRewards(ctx context.Context, funder common.Address, amount *big.Int) error {
	started := time.Now()
	return p.observe(opFundRewards, started, p.fundRewards(ctx, funder, amount))
}

func (p *ExchangePool) fundRewards(ctx context.Context, funder common.Address, amount *big.Int) error {
	rc := p.cfg.Rewards
	if !rc.Enabled {
		return fmt.Errorf("%w: rewards are disabled", ErrInvalidConfig)
	}
	if !positive(amount) {
		return ErrInvalidAmount
	}

	ctx, exit := p.enter(ctx)
	defer exit()

	if err := p.settle(ctx, []leg{{asset: rc.Asset, from: funder, to: rc.Account, amount: amount}}); err != nil {
		return err
	}
	p.logger.Info("rewards funded",
		zap.String("funder", funder.Hex()),
		zap.Stringer("amount", amount),
	)
	return nil
}

// RewardsBalance reads the rewards account balance from the ledger. It is
// zero when rewards are disabled.
func (p *ExchangePool) RewardsBalance(ctx context.Context) (*big.Int, error) {
	rc := p.cfg.Rewards
	if !rc.Enabled {
		return big.NewInt(0), nil
	}
	bal, err := p.ledger.BalanceOf(ctx, rc.Asset, rc.Account)
	if err != nil {
		return nil, fmt.Errorf("read rewards balance: %w", err)
	}
	return bal, nil
}

// SwapCount returns the number of swaps settled since construction or the
// last reset.
func (p *ExchangePool) SwapCount() uint64 {
	p.stateMu.RLock()
	defer p.stateMu.RUnlock()
	return p.swapCount
}

// ResetSwapCount zeroes the swap counter.
func (p *ExchangePool) ResetSwapCount() {
	p.stateMu.Lock()
	p.swapCount = 0
	p.stateMu.Unlock()
}

func (p *ExchangePool) incSwapCount(j *journal) uint64 {
	p.stateMu.Lock()
	defer p.stateMu.Unlock()
	p.swapCount++
	j.add(func() {
		p.stateMu.Lock()
		defer p.stateMu.Unlock()
		if p.swapCount > 0 {
			p.swapCount--
		}
	})
	return p.swapCount
}

// payReward pays the bonus when count lands on the interval. The swap has
// already settled; a payout that cannot be made is logged and skipped.
func (p *ExchangePool) payReward(ctx context.Context, trader common.Address, count uint64) {
	rc := p.cfg.Rewards
	if !rc.Enabled || count%rc.Every != 0 {
		return
	}
	log := p.logger.With(zap.String("trader", trader.Hex()), zap.Uint64("swap_count", count))

	bal, err := p.ledger.BalanceOf(ctx, rc.Asset, rc.Account)
	if err != nil {
		log.Warn("reward skipped: read rewards balance", zap.Error(err))
		p.metrics.IncRewardsSkipped()
		return
	}
	if bal.Cmp(rc.Bonus) < 0 {
		log.Warn("reward skipped: rewards reserve too low",
			zap.Stringer("balance", bal),
			zap.Stringer("bonus", rc.Bonus),
		)
		p.metrics.IncRewardsSkipped()
		return
	}
	if err := p.settle(ctx, []leg{{asset: rc.Asset, from: rc.Account, to: trader, amount: rc.Bonus}}); err != nil {
		log.Warn("reward skipped: transfer", zap.Error(err))
		p.metrics.IncRewardsSkipped()
		return
	}

	log.Info("reward paid", zap.Stringer("amount", rc.Bonus))
	p.metrics.IncRewardsPaid()
	p.emit(ctx, model.RewardPaid{
		Trader: trader.Hex(),
		Asset:  rc.Asset.Hex(),
		Amount: rc.Bonus.String(),
	})
}
