package storage

import (
	"context"
	"errors"

	"tswap/internal/model"
)

// Storage defines a sink for log records.
type Storage interface {
	PutLogBatch(ctx context.Context, logs []model.LogRecord) error
}

// Multi writes every batch to each storage in order.
type Multi []Storage

func (m Multi) PutLogBatch(ctx context.Context, logs []model.LogRecord) error {
	var errs []error
	for _, s := range m {
		if err := s.PutLogBatch(ctx, logs); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
