package main

import (
	"context"
	"math/rand/v2"
	"time"
)

// retryDelay doubles from base up to max on consecutive drain failures.
type retryDelay struct {
	base    time.Duration
	max     time.Duration
	current time.Duration
}

func (d *retryDelay) failure() time.Duration {
	switch {
	case d.current < d.base:
		d.current = d.base
	case d.current*2 > d.max:
		d.current = d.max
	default:
		d.current *= 2
	}
	return jitter(d.current)
}

func (d *retryDelay) idle() time.Duration {
	return jitter(d.base)
}

func (d *retryDelay) reset() {
	d.current = 0
}

// jitter adds up to a quarter of d so publisher replicas drift apart.
func jitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	return d + rand.N(d/4+1)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
