// Copyright 2026 The Gatewarden Authors
// SPDX-License-Identifier: MIT

package store

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/gatewarden/gatewarden/internal/gate"
)

// DefaultMaxTries bounds the write retries. A result the store cannot
// take after a few attempts is kept readable in memory by the caller;
// hammering a down backend helps nobody.
const DefaultMaxTries = 4

// RetryOptions tunes the write-retry decorator.
type RetryOptions struct {
	// MaxTries counts the initial attempt. Zero means DefaultMaxTries.
	MaxTries uint
	// InitialInterval is the first backoff delay. Zero means 100ms.
	InitialInterval time.Duration
	Log             *slog.Logger
}

// WithRetry wraps s so Save and Update survive transient backend
// failures with exponential backoff. Reads pass through untouched:
// pollers supply their own retry cadence.
func WithRetry(s Store, opts RetryOptions) Store {
	if opts.MaxTries == 0 {
		opts.MaxTries = DefaultMaxTries
	}
	if opts.InitialInterval <= 0 {
		opts.InitialInterval = 100 * time.Millisecond
	}
	if opts.Log == nil {
		opts.Log = slog.Default()
	}
	return &retryStore{Store: s, opts: opts}
}

type retryStore struct {
	Store
	opts RetryOptions
}

func (r *retryStore) Save(ctx context.Context, res *gate.ScanResult) error {
	return r.do(ctx, "save", func() error { return r.Store.Save(ctx, res) })
}

func (r *retryStore) Update(ctx context.Context, res *gate.ScanResult) error {
	return r.do(ctx, "update", func() error { return r.Store.Update(ctx, res) })
}

func (r *retryStore) do(ctx context.Context, name string, op func() error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.opts.InitialInterval

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		err := op()
		switch {
		case err == nil:
			return struct{}{}, nil
		case permanentWriteError(err):
			return struct{}{}, backoff.Permanent(err)
		default:
			return struct{}{}, err
		}
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(r.opts.MaxTries),
		backoff.WithNotify(func(err error, next time.Duration) {
			r.opts.Log.Warn("store write failed, retrying",
				"op", name, "error", err, "next_try_in", next.Round(time.Millisecond))
		}))
	return err
}

// permanentWriteError reports failures no retry can heal: bad input,
// encoding bugs, or a missing row under Update.
func permanentWriteError(err error) bool {
	if errors.Is(err, ErrNotFound) {
		return true
	}
	switch gate.KindOf(err) {
	case gate.KindInvalidRequest, gate.KindInternal:
		return true
	}
	return false
}
