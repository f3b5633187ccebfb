// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Skycast Contributors

package auth

import (
	"context"
	"runtime"
	"sync"

	"github.com/samber/oops"
	"golang.org/x/sync/semaphore"
)

// HashPool runs PasswordHasher calls on a bounded number of goroutines so
// concurrent logins cannot saturate every CPU with argon2 work.
//
// A caller whose context ends stops waiting, but the hash already running
// on its behalf is left to finish and release its slot.
type HashPool struct {
	hasher PasswordHasher
	sem    *semaphore.Weighted
	wg     sync.WaitGroup
}

// NewHashPool creates a pool with the given number of workers. A
// non-positive count uses GOMAXPROCS.
func NewHashPool(hasher PasswordHasher, workers int) *HashPool {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	return &HashPool{
		hasher: hasher,
		sem:    semaphore.NewWeighted(int64(workers)),
	}
}

// Hash hashes password on a pool worker.
func (p *HashPool) Hash(ctx context.Context, password string) (string, error) {
	return runOnPool(ctx, p, func() (string, error) {
		return p.hasher.Hash(password)
	})
}

// Verify verifies password against hash on a pool worker.
func (p *HashPool) Verify(ctx context.Context, password, hash string) (bool, error) {
	return runOnPool(ctx, p, func() (bool, error) {
		return p.hasher.Verify(password, hash)
	})
}

// NeedsUpgrade is cheap and runs inline.
func (p *HashPool) NeedsUpgrade(hash string) bool {
	return p.hasher.NeedsUpgrade(hash)
}

// Wait blocks until every in-flight hash operation has finished.
func (p *HashPool) Wait() {
	p.wg.Wait()
}

func runOnPool[T any](ctx context.Context, p *HashPool, fn func() (T, error)) (T, error) {
	var zero T
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return zero, oops.Code("AUTH_HASH_ABANDONED").Wrap(err)
	}

	type result struct {
		val T
		err error
	}
	done := make(chan result, 1)

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer p.sem.Release(1)
		val, err := fn()
		done <- result{val: val, err: err}
	}()

	select {
	case r := <-done:
		return r.val, r.err
	case <-ctx.Done():
		return zero, oops.Code("AUTH_HASH_ABANDONED").Wrap(ctx.Err())
	}
}
