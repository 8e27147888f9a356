// Package api serves an exchange pool over HTTP.
package api

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"tswap/internal/pool"
	"tswap/internal/stats"
)

const (
	swapKindExactInput  = "exact_input"
	swapKindExactOutput = "exact_output"
	swapKindSell        = "sell"
)

// Minter credits an account with newly created units of an asset.
type Minter interface {
	Mint(asset, account common.Address, amount *big.Int) error
}

// Options configure a Server. Only Pool is required.
type Options struct {
	Pool           *pool.ExchangePool
	Minter         Minter
	Stats          *stats.Collector
	Assets         map[common.Address]stats.AssetInfo
	Gatherer       prometheus.Gatherer
	Logger         *zap.Logger
	RequestTimeout time.Duration
}

// Server holds the handlers of the pool API.
type Server struct {
	pool    *pool.ExchangePool
	minter  Minter
	stats   *stats.Collector
	assets  map[common.Address]stats.AssetInfo
	logger  *zap.Logger
	timeout time.Duration
}

// New registers all routes on a new fiber app.
func New(opts Options) (*fiber.App, error) {
	if opts.Pool == nil {
		return nil, fmt.Errorf("pool is nil")
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 10 * time.Second
	}
	s := &Server{
		pool:    opts.Pool,
		minter:  opts.Minter,
		stats:   opts.Stats,
		assets:  opts.Assets,
		logger:  opts.Logger,
		timeout: opts.RequestTimeout,
	}

	app := fiber.New(fiber.Config{ErrorHandler: errorHandler})
	app.Get("/pool", s.handlePool)
	app.Get("/quote", s.handleQuote)
	app.Get("/shares/:provider", s.handleShares)
	app.Get("/stats", s.handleStats)
	app.Post("/swaps", s.handleSwap)
	app.Post("/deposits", s.handleDeposit)
	app.Post("/withdrawals", s.handleWithdraw)
	if opts.Minter != nil {
		app.Post("/mint", s.handleMint)
	}
	if opts.Gatherer != nil {
		app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{})))
	}
	return app, nil
}

func (s *Server) requestContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), s.timeout)
}

type poolResponse struct {
	Address      string `json:"address"`
	BaseAsset    string `json:"base_asset"`
	QuoteAsset   string `json:"quote_asset"`
	ReserveBase  string `json:"reserve_base"`
	ReserveQuote string `json:"reserve_quote"`
	TotalShares  string `json:"total_shares"`
	Fee          string `json:"fee"`
	SwapCount    uint64 `json:"swap_count"`
	Timestamp    uint64 `json:"timestamp"`
}

func (s *Server) handlePool(c fiber.Ctx) error {
	ctx, cancel := s.requestContext()
	defer cancel()

	snap, err := s.pool.Snapshot(ctx)
	if err != nil {
		return s.poolError("snapshot", err)
	}
	return c.JSON(poolResponse{
		Address:      snap.Address,
		BaseAsset:    snap.BaseAsset,
		QuoteAsset:   snap.QuoteAsset,
		ReserveBase:  snap.ReserveBase,
		ReserveQuote: snap.ReserveQuote,
		TotalShares:  snap.TotalShares,
		Fee:          s.pool.Fee().String(),
		SwapCount:    snap.SwapCount,
		Timestamp:    snap.Timestamp,
	})
}

type quoteRequest struct {
	AssetIn   string `query:"asset_in"`
	AmountIn  string `query:"amount_in"`
	AmountOut string `query:"amount_out"`
}

type quoteResponse struct {
	AssetIn   string `json:"asset_in"`
	AssetOut  string `json:"asset_out"`
	AmountIn  string `json:"amount_in"`
	AmountOut string `json:"amount_out"`
}

func (s *Server) handleQuote(c fiber.Ctx) error {
	var req quoteRequest
	if err := c.Bind().Query(&req); err != nil {
		return ErrInvalidQuery
	}
	assetIn, err := parseAddress("asset_in", req.AssetIn)
	if err != nil {
		return err
	}
	assetOut := s.pool.BaseAsset()
	if assetIn == assetOut {
		assetOut = s.pool.QuoteAsset()
	}
	if (req.AmountIn == "") == (req.AmountOut == "") {
		return ErrAmountConflict
	}

	ctx, cancel := s.requestContext()
	defer cancel()

	resp := quoteResponse{AssetIn: assetIn.Hex(), AssetOut: assetOut.Hex()}
	if req.AmountIn != "" {
		amountIn, err := parseAmount("amount_in", req.AmountIn)
		if err != nil {
			return err
		}
		out, err := s.pool.QuoteOut(ctx, assetIn, amountIn)
		if err != nil {
			return s.poolError("quote_out", err)
		}
		resp.AmountIn, resp.AmountOut = amountIn.String(), out.String()
	} else {
		amountOut, err := parseAmount("amount_out", req.AmountOut)
		if err != nil {
			return err
		}
		in, err := s.pool.QuoteIn(ctx, assetIn, amountOut)
		if err != nil {
			return s.poolError("quote_in", err)
		}
		resp.AmountIn, resp.AmountOut = in.String(), amountOut.String()
	}
	s.logger.Debug("quote", zap.String("asset_in", resp.AssetIn), zap.String("amount_in", resp.AmountIn), zap.String("amount_out", resp.AmountOut))
	return c.JSON(resp)
}

func (s *Server) handleShares(c fiber.Ctx) error {
	provider, err := parseAddress("provider", c.Params("provider"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"provider":     provider.Hex(),
		"shares":       s.pool.SharesOf(provider).String(),
		"total_shares": s.pool.TotalShares().String(),
	})
}

func (s *Server) handleStats(c fiber.Ctx) error {
	if s.stats == nil {
		return ErrStatsNotAvailable
	}
	windows := s.stats.Windows()
	out := make([]stats.Summary, 0, len(windows))
	for _, w := range windows {
		out = append(out, stats.Summarize(w, s.assets))
	}
	return c.JSON(fiber.Map{
		"window_seconds": s.stats.WindowSeconds(),
		"windows":        out,
	})
}

type swapRequest struct {
	Kind         string `json:"kind"`
	Trader       string `json:"trader"`
	AssetIn      string `json:"asset_in"`
	AmountIn     string `json:"amount_in"`
	AmountOut    string `json:"amount_out"`
	MinAmountOut string `json:"min_amount_out"`
	MaxAmountIn  string `json:"max_amount_in"`
	Deadline     uint64 `json:"deadline"`
}

func (s *Server) handleSwap(c fiber.Ctx) error {
	var req swapRequest
	if err := c.Bind().Body(&req); err != nil {
		return ErrInvalidBody
	}
	trader, err := parseAddress("trader", req.Trader)
	if err != nil {
		return err
	}
	assetIn, err := parseAddress("asset_in", req.AssetIn)
	if err != nil {
		return err
	}
	assetOut := s.pool.BaseAsset()
	if assetIn == assetOut {
		assetOut = s.pool.QuoteAsset()
	}
	deadline, err := requireDeadline(req.Deadline)
	if err != nil {
		return err
	}

	ctx, cancel := s.requestContext()
	defer cancel()

	resp := quoteResponse{AssetIn: assetIn.Hex(), AssetOut: assetOut.Hex()}
	switch req.Kind {
	case swapKindExactInput, swapKindSell, "":
		amountIn, err := parseAmount("amount_in", req.AmountIn)
		if err != nil {
			return err
		}
		minOut, err := parseOptionalAmount("min_amount_out", req.MinAmountOut)
		if err != nil {
			return err
		}
		var out *big.Int
		if req.Kind == swapKindSell {
			out, err = s.pool.SellExactAsset(ctx, trader, assetIn, amountIn, minOut, deadline)
		} else {
			out, err = s.pool.SwapExactInput(ctx, trader, assetIn, amountIn, assetOut, minOut, deadline)
		}
		if err != nil {
			return s.poolError("swap", err)
		}
		resp.AmountIn, resp.AmountOut = amountIn.String(), out.String()
	case swapKindExactOutput:
		amountOut, err := parseAmount("amount_out", req.AmountOut)
		if err != nil {
			return err
		}
		maxIn, err := parseAmount("max_amount_in", req.MaxAmountIn)
		if err != nil {
			return err
		}
		in, err := s.pool.SwapExactOutput(ctx, trader, assetIn, assetOut, amountOut, maxIn, deadline)
		if err != nil {
			return s.poolError("swap", err)
		}
		resp.AmountIn, resp.AmountOut = in.String(), amountOut.String()
	default:
		return ErrUnknownSwapKind
	}
	return c.Status(fiber.StatusCreated).JSON(resp)
}

type depositRequest struct {
	Provider      string `json:"provider"`
	QuoteAmount   string `json:"quote_amount"`
	MinShares     string `json:"min_shares"`
	MaxBaseAmount string `json:"max_base_amount"`
	Deadline      uint64 `json:"deadline"`
}

func (s *Server) handleDeposit(c fiber.Ctx) error {
	var req depositRequest
	if err := c.Bind().Body(&req); err != nil {
		return ErrInvalidBody
	}
	provider, err := parseAddress("provider", req.Provider)
	if err != nil {
		return err
	}
	quoteAmount, err := parseAmount("quote_amount", req.QuoteAmount)
	if err != nil {
		return err
	}
	minShares, err := parseOptionalAmount("min_shares", req.MinShares)
	if err != nil {
		return err
	}
	maxBase, err := parseAmount("max_base_amount", req.MaxBaseAmount)
	if err != nil {
		return err
	}

	deadline, err := requireDeadline(req.Deadline)
	if err != nil {
		return err
	}

	ctx, cancel := s.requestContext()
	defer cancel()

	minted, err := s.pool.Deposit(ctx, provider, quoteAmount, minShares, maxBase, deadline)
	if err != nil {
		return s.poolError("deposit", err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"provider":      provider.Hex(),
		"shares_minted": minted.String(),
	})
}

type withdrawRequest struct {
	Provider string `json:"provider"`
	Shares   string `json:"shares"`
	MinQuote string `json:"min_quote"`
	MinBase  string `json:"min_base"`
	Deadline uint64 `json:"deadline"`
}

func (s *Server) handleWithdraw(c fiber.Ctx) error {
	var req withdrawRequest
	if err := c.Bind().Body(&req); err != nil {
		return ErrInvalidBody
	}
	provider, err := parseAddress("provider", req.Provider)
	if err != nil {
		return err
	}
	shares, err := parseAmount("shares", req.Shares)
	if err != nil {
		return err
	}
	minQuote, err := parseOptionalAmount("min_quote", req.MinQuote)
	if err != nil {
		return err
	}
	minBase, err := parseOptionalAmount("min_base", req.MinBase)
	if err != nil {
		return err
	}

	deadline, err := requireDeadline(req.Deadline)
	if err != nil {
		return err
	}

	ctx, cancel := s.requestContext()
	defer cancel()

	quote, base, err := s.pool.Withdraw(ctx, provider, shares, minQuote, minBase, deadline)
	if err != nil {
		return s.poolError("withdraw", err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"provider":     provider.Hex(),
		"quote_amount": quote.String(),
		"base_amount":  base.String(),
	})
}

type mintRequest struct {
	Asset   string `json:"asset"`
	Account string `json:"account"`
	Amount  string `json:"amount"`
}

func (s *Server) handleMint(c fiber.Ctx) error {
	var req mintRequest
	if err := c.Bind().Body(&req); err != nil {
		return ErrInvalidBody
	}
	asset, err := parseAddress("asset", req.Asset)
	if err != nil {
		return err
	}
	account, err := parseAddress("account", req.Account)
	if err != nil {
		return err
	}
	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		return err
	}
	if err := s.minter.Mint(asset, account, amount); err != nil {
		return fiber.NewError(fiber.StatusUnprocessableEntity, err.Error())
	}
	s.logger.Info("minted", zap.Stringer("asset", asset), zap.Stringer("account", account), zap.String("amount", amount.String()))
	return c.SendStatus(fiber.StatusNoContent)
}

func parseAddress(field, value string) (common.Address, error) {
	if !common.IsHexAddress(value) {
		return common.Address{}, invalidAddress(field)
	}
	return common.HexToAddress(value), nil
}

func parseAmount(field, value string) (*big.Int, error) {
	amount, ok := new(big.Int).SetString(value, 10)
	if !ok {
		return nil, invalidAmount(field)
	}
	return amount, nil
}

func parseOptionalAmount(field, value string) (*big.Int, error) {
	if value == "" {
		return nil, nil
	}
	return parseAmount(field, value)
}

// requireDeadline rejects a missing deadline. Callers that want no limit
// send the largest uint64.
func requireDeadline(deadline uint64) (uint64, error) {
	if deadline == 0 {
		return 0, ErrMissingDeadline
	}
	return deadline, nil
}
