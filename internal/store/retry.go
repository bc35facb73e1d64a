package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"
)

// DefaultMaxRetries bounds how many times RunInTx re-runs a conflicting transaction
const DefaultMaxRetries = 5

const baseBackoff = 5 * time.Millisecond

// RunInTx runs fn in a transaction, re-running the whole transaction when it
// aborts with ErrTxConflict. fn must not keep state across attempts.
func RunInTx(ctx context.Context, s Store, maxRetries int, log *slog.Logger, fn func(tx Tx) error) error {
	if maxRetries < 0 {
		maxRetries = 0
	}

	var err error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		err = s.InTx(ctx, fn)
		if err == nil || !errors.Is(err, ErrTxConflict) {
			return err
		}

		log.Debug("Transaction conflict, retrying", "attempt", attempt+1, "error", err)
		backoff := baseBackoff<<attempt + time.Duration(rand.Int64N(int64(baseBackoff)))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
	}
	return fmt.Errorf("giving up after %d retries: %w", maxRetries, err)
}
