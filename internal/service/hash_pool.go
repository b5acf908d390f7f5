package service

import (
	"context"
	"runtime"
	"time"

	"golang.org/x/sync/semaphore"
)

// HashPool limita cuántos hashes de contraseña corren a la vez. Cuando no hay
// capacidad dentro de wait, devuelve ErrBusy en vez de encolar sin límite.
type HashPool struct {
	sem  *semaphore.Weighted
	wait time.Duration
}

func NewHashPool(workers int, wait time.Duration) *HashPool {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if wait <= 0 {
		wait = 2 * time.Second
	}
	return &HashPool{sem: semaphore.NewWeighted(int64(workers)), wait: wait}
}

// Run ejecuta fn en cuanto haya un slot libre.
func (p *HashPool) Run(ctx context.Context, fn func()) error {
	if p == nil {
		fn()
		return nil
	}
	acquireCtx, cancel := context.WithTimeout(ctx, p.wait)
	defer cancel()
	if err := p.sem.Acquire(acquireCtx, 1); err != nil {
		return ErrBusy
	}
	defer p.sem.Release(1)
	fn()
	return nil
}
