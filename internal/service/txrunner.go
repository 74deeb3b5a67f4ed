package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/victoryunusa/truetab-api-sub000/internal/core/ports"
	"github.com/victoryunusa/truetab-api-sub000/pkg/apperror"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
)

// txRunner runs a unit of work in a database transaction and retries it
// when the store reports lock contention.
type txRunner struct {
	transactor ports.DBTransactor
	retries    int
	backoff    time.Duration
	log        zerolog.Logger
}

// run executes fn and commits. fn must not commit or roll back tx itself.
// After the retries are spent the last contention error is returned as a
// transient SYS_002 error.
func (r txRunner) run(ctx context.Context, fn func(tx pgx.Tx) error) error {
	var err error
	for attempt := 0; attempt <= r.retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return apperror.ErrLockTimeout(ctx.Err())
			case <-time.After(r.backoff * time.Duration(attempt)):
			}
		}

		err = r.once(ctx, fn)
		if !errors.Is(err, ports.ErrConcurrentUpdate) {
			return err
		}
		r.log.Debug().Err(err).Int("attempt", attempt+1).Msg("wallet lock contended, retrying")
	}
	return apperror.ErrLockTimeout(err)
}

func (r txRunner) once(ctx context.Context, fn func(tx pgx.Tx) error) error {
	dbTx, err := r.transactor.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	if err := fn(dbTx); err != nil {
		return err
	}

	if err := dbTx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// internalError passes AppErrors through and wraps anything else as SYS_001.
func internalError(err error) error {
	if err == nil {
		return nil
	}
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		return err
	}
	if errors.Is(err, ports.ErrConcurrentUpdate) {
		return apperror.ErrLockTimeout(err)
	}
	return apperror.InternalError(err)
}
