package api

import (
	"errors"

	"github.com/gofiber/fiber/v3"
	"go.uber.org/zap"

	"tswap/internal/pool"
)

var (
	ErrInvalidBody       = fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	ErrInvalidQuery      = fiber.NewError(fiber.StatusBadRequest, "invalid query parameters")
	ErrAmountConflict    = fiber.NewError(fiber.StatusBadRequest, "exactly one of amount_in and amount_out is required")
	ErrUnknownSwapKind   = fiber.NewError(fiber.StatusBadRequest, "kind must be exact_input, exact_output or sell")
	ErrMissingDeadline   = fiber.NewError(fiber.StatusBadRequest, "deadline is required")
	ErrInternal          = fiber.NewError(fiber.StatusInternalServerError, "internal error")
	ErrStatsNotAvailable = fiber.NewError(fiber.StatusNotFound, "stats are not collected")
)

func invalidAddress(field string) error {
	return fiber.NewError(fiber.StatusBadRequest, "invalid "+field+" address")
}

func invalidAmount(field string) error {
	return fiber.NewError(fiber.StatusBadRequest, "invalid "+field+" amount")
}

// poolError maps a pool failure to an HTTP error.
func (s *Server) poolError(op string, err error) error {
	switch {
	case errors.Is(err, pool.ErrInvalidAmount), errors.Is(err, pool.ErrUnknownAsset):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	case errors.Is(err, pool.ErrSlippageExceeded), errors.Is(err, pool.ErrDeadlineExpired):
		return fiber.NewError(fiber.StatusConflict, err.Error())
	case errors.Is(err, pool.ErrInsufficientReserve),
		errors.Is(err, pool.ErrInsufficientShares),
		errors.Is(err, pool.ErrTransferFailed):
		return fiber.NewError(fiber.StatusUnprocessableEntity, err.Error())
	default:
		s.logger.Error("pool operation failed", zap.String("op", op), zap.Error(err))
		return ErrInternal
	}
}

func errorHandler(c fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	msg := ErrInternal.Message
	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
		msg = fe.Message
	}
	return c.Status(code).JSON(fiber.Map{"error": msg})
}
