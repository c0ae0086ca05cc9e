package internal

import (
	"context"
	"time"
)

const (
	retryAttempts  = 3
	retryBaseDelay = 100 * time.Millisecond
)

// Retry runs fn up to a bounded number of attempts with linear backoff.
// It is meant for transient backend I/O failures only; callers must not
// route deterministic errors (integrity, conflict) through it.
func Retry(ctx context.Context, fn func() error) error {
	var err error
	for i := 0; i < retryAttempts; i++ {
		if err = fn(); err == nil {
			return nil
		}
		if i == retryAttempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(retryBaseDelay * time.Duration(i+1)):
		}
	}
	return err
}
