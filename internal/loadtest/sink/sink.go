// Package sink defines the contract between the pipeline and a storage
// backend's write path: the error taxonomy distinguishing transient
// connection-class failures from permanent statement-class failures, and the
// retry policy applied to writes.
package sink

import (
	"context"
	"time"

	"github.com/avast/retry-go"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// transientError marks a failure worth exactly one retry, e.g. a dropped
// connection. Anything not wrapped this way is treated as permanent.
type transientError struct {
	err error
}

func (e *transientError) Error() string { return e.err.Error() }
func (e *transientError) Unwrap() error { return e.err }

// Transient wraps err so that IsTransient reports true for it.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &transientError{err: err}
}

// IsTransient reports whether err is a connection-class failure eligible for
// a retry.
func IsTransient(err error) bool {
	var t *transientError
	return errors.As(err, &t)
}

// WriteWithRetry runs write, retrying exactly once if the first attempt fails
// with a transient error. Permanent errors are returned immediately; callers
// log the offending payload themselves since only they still hold it.
func WriteWithRetry(ctx context.Context, logger *log.Entry, write func(ctx context.Context) error) error {
	return retry.Do(
		func() error { return write(ctx) },
		retry.Attempts(2),
		retry.RetryIf(IsTransient),
		retry.Delay(time.Second),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			logger.WithError(err).Warn("transient sink error, retrying write once")
		}),
	)
}
