package retry

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/restic/kvrecover/internal/backend"
	"github.com/restic/kvrecover/internal/errors"
)

// Backend retries operations on the backend in case of an error with a
// backoff.
type Backend struct {
	backend.Backend
	Policy  Policy
	Report  func(string, error, time.Duration)
	Success func(string, int)
}

// statically ensure that RetryBackend implements backend.Backend.
var _ backend.Backend = &Backend{}

// New wraps be with a backend that retries operations after a
// backoff. report is called with a description and the error, if one occurred.
// success is called with the number of retries before a successful operation
// (it is not called if it succeeded on the first try)
func New(be backend.Backend, policy Policy, report func(string, error, time.Duration), success func(string, int)) *Backend {
	return &Backend{
		Backend: be,
		Policy:  policy,
		Report:  report,
		Success: success,
	}
}

// retryNotifyErrorWithSuccess is an extension of backoff.RetryNotify with notification of success after an error.
// success is NOT notified on the first run of operation (only after an error).
func retryNotifyErrorWithSuccess(operation backoff.Operation, b backoff.BackOffContext, notify backoff.Notify, success func(retries int)) error {
	var operationWrapper backoff.Operation
	if success == nil {
		operationWrapper = operation
	} else {
		retries := 0
		operationWrapper = func() error {
			err := operation()
			if err != nil {
				retries++
			} else if retries > 0 {
				success(retries)
			}
			return err
		}
	}
	err := backoff.RetryNotify(operationWrapper, b, notify)

	if err != nil && notify != nil && b.Context().Err() == nil {
		// log final error, unless the context was canceled
		notify(err, -1)
	}
	return err
}

// Do runs op until it succeeds, returns an error marked with
// backoff.Permanent (or one for which isPermanent returns true), the policy
// gives up or ctx is cancelled. When the policy gives up, the last error is
// returned as an errors.TransientIOError.
func Do(ctx context.Context, p Policy, msg string, isPermanent func(error) bool, op func() error,
	report func(string, error, time.Duration), success func(string, int)) error {

	// Don't do anything when called with an already cancelled context. There
	// would be no retries in that case either, so be consistent and abort.
	if ctx.Err() != nil {
		return ctx.Err()
	}

	permanent := false
	err := retryNotifyErrorWithSuccess(
		func() error {
			err := op()
			if err == nil {
				return nil
			}
			// don't retry permanent errors as those very likely cannot be fixed by retrying
			if !errors.Is(err, &backoff.PermanentError{}) && isPermanent != nil && isPermanent(err) {
				err = backoff.Permanent(err)
			}
			permanent = errors.Is(err, &backoff.PermanentError{})
			return err
		},
		backoff.WithContext(p.NewBackOff(), ctx),
		func(err error, d time.Duration) {
			if report != nil {
				report(msg, err, d)
			}
		},
		func(retries int) {
			if success != nil {
				success(msg, retries)
			}
		},
	)

	if err != nil && !permanent && ctx.Err() == nil {
		return &errors.TransientIOError{Op: msg, Err: err}
	}
	return err
}

func (be *Backend) retry(ctx context.Context, msg string, f func() error) error {
	return Do(ctx, be.Policy, msg, be.Backend.IsPermanentError, f, be.Report, be.Success)
}

// Load runs consumer with a reader that yields the contents of the object at
// p. consumer is called again for every retry and must be idempotent.
func (be *Backend) Load(ctx context.Context, p string, consumer func(rd io.Reader) error) (err error) {
	return be.retry(ctx, fmt.Sprintf("Load(%v)", p),
		func() error {
			return be.Backend.Load(ctx, p, consumer)
		})
}

// Stat returns information about the object at p.
func (be *Backend) Stat(ctx context.Context, p string) (fi backend.FileInfo, err error) {
	err = be.retry(ctx, fmt.Sprintf("Stat(%v)", p),
		func() error {
			var innerError error
			fi, innerError = be.Backend.Stat(ctx, p)

			if be.Backend.IsNotExist(innerError) {
				// do not retry if file is not found, as stat is usually used  to check whether a file exists
				return backoff.Permanent(innerError)
			}
			return innerError
		})
	return fi, err
}

// List runs fn for each object below prefix. When an error is returned by
// the underlying backend, the request is retried. When fn returns an error,
// the operation is aborted and the error is returned to the caller.
func (be *Backend) List(ctx context.Context, prefix string, fn func(backend.FileInfo) error) error {
	// create a new context that we can cancel when fn returns an error, so
	// that listing is aborted
	listCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	listed := make(map[string]struct{}) // remember for which files we already ran fn
	var innerErr error                  // remember when fn returned an error, so we can return that to the caller

	err := be.retry(listCtx, fmt.Sprintf("List(%v)", prefix), func() error {
		return be.Backend.List(listCtx, prefix, func(fi backend.FileInfo) error {
			if _, ok := listed[fi.Path]; ok {
				return nil
			}
			listed[fi.Path] = struct{}{}

			innerErr = fn(fi)
			if innerErr != nil {
				// if fn returned an error, listing is aborted, so we cancel the context
				cancel()
			}
			return innerErr
		})
	})

	// the error fn returned takes precedence
	if innerErr != nil {
		return innerErr
	}

	return err
}

func (be *Backend) Unwrap() backend.Backend {
	return be.Backend
}
