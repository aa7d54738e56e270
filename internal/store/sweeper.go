// Copyright 2026 The Gatewarden Authors
// SPDX-License-Identifier: MIT

package store

import (
	"context"
	"log/slog"
	"time"
)

const defaultSweepEvery = time.Hour

// Sweeper enforces the retention policy on a store: results older than
// the retention window are deleted on a fixed cadence. One sweeper per
// process is enough; extra instances only burn Cleanup calls.
type Sweeper struct {
	store     Store
	retention time.Duration
	every     time.Duration
	log       *slog.Logger

	stop chan struct{}
	done chan struct{}
}

// NewSweeper builds a sweeper and starts its background loop. Retention
// must be positive; every defaults to one hour.
func NewSweeper(s Store, retention, every time.Duration, log *slog.Logger) *Sweeper {
	if every <= 0 {
		every = defaultSweepEvery
	}
	if log == nil {
		log = slog.Default()
	}
	sw := &Sweeper{
		store:     s,
		retention: retention,
		every:     every,
		log:       log,
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
	go sw.run()
	return sw
}

// Close stops the loop and waits for an in-flight sweep to finish.
func (sw *Sweeper) Close() {
	select {
	case <-sw.stop:
	default:
		close(sw.stop)
	}
	<-sw.done
}

// SweepOnce runs one retention pass and returns how many results were
// removed.
func (sw *Sweeper) SweepOnce(ctx context.Context, now time.Time) (int, error) {
	if sw.retention <= 0 {
		return 0, nil
	}
	return sw.store.Cleanup(ctx, now.Add(-sw.retention))
}

func (sw *Sweeper) run() {
	defer close(sw.done)
	t := time.NewTicker(sw.every)
	defer t.Stop()
	for {
		select {
		case <-sw.stop:
			return
		case now := <-t.C:
			ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
			removed, err := sw.SweepOnce(ctx, now)
			cancel()
			switch {
			case err != nil:
				sw.log.Warn("retention sweep failed", "error", err)
			case removed > 0:
				sw.log.Info("retention sweep", "removed", removed)
			}
		}
	}
}
