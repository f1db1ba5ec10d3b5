// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

// Package concurrent provides small helpers for bounded concurrent execution.
package concurrent

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// WorkerPool runs a set of functions with a bounded level of parallelism.
// The zero value is not usable; create one with NewWorkerPool.
type WorkerPool struct {
	limit int
}

// NewWorkerPool creates a pool that runs at most limit functions at once.
// A non-positive limit runs everything sequentially.
func NewWorkerPool(limit int) *WorkerPool {
	if limit <= 0 {
		limit = 1
	}
	return &WorkerPool{limit: limit}
}

// Run executes all functions and waits for completion. The first error
// cancels the shared context and is returned; remaining functions that have
// not started are skipped by errgroup semantics.
func (p *WorkerPool) Run(ctx context.Context, fns ...func() error) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(p.limit)

	for _, fn := range fns {
		fn := fn
		g.Go(func() error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
				return fn()
			}
		})
	}

	return g.Wait()
}
