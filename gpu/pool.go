// Package gpu admits homomorphic operations against per-device memory
// budgets. Callers estimate an operation's device footprint, reserve
// that amount on the target device, run the operation through the
// accelerator runtime, and release the reservation when the result is
// off the device.
package gpu

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/luxfi/fhevm"
)

// ErrRetriesExhausted is returned by Reserve when MaxAttempts is set
// and the device stayed full through every attempt.
var ErrRetriesExhausted = errors.New("device reservation retries exhausted")

// Config tunes the admission retry loop.
type Config struct {
	// RetryDelay is the pause between admission attempts while the
	// device is full.
	RetryDelay time.Duration
	// MaxAttempts bounds admission attempts; 0 retries forever.
	MaxAttempts int
	// Sleep replaces time.Sleep between attempts; nil means
	// time.Sleep. Tests inject it to make retry behavior
	// deterministic.
	Sleep func(time.Duration)
}

// DefaultConfig returns the production retry settings: 2 ms between
// attempts, retrying until the device admits the reservation.
func DefaultConfig() Config {
	return Config{
		RetryDelay:  2 * time.Millisecond,
		MaxAttempts: 0,
	}
}

// Pool tracks the bytes of outstanding reservations per device and
// admits new work only while the prober accepts the running total.
// Admission is optimistic: the amount is added first, validated, and
// rolled back if the device cannot hold it. Transient fullness is not
// an error; Reserve waits for memory to be released.
//
// Admission has no fairness guarantee. A large reservation can wait
// indefinitely behind a stream of small ones on a busy device; bound
// the wait with MaxAttempts or a context deadline if that matters.
type Pool struct {
	prober   Prober
	reserved []atomic.Uint64
	cfg      Config
	sleep    func(time.Duration)

	// Statistics
	admitted atomic.Uint64
	retries  atomic.Uint64
}

// NewPool creates a pool with one zeroed reservation counter per
// device the prober reports.
func NewPool(p Prober, cfg Config) *Pool {
	sleep := cfg.Sleep
	if sleep == nil {
		sleep = time.Sleep
	}
	return &Pool{
		prober:   p,
		reserved: make([]atomic.Uint64, p.DeviceCount()),
		cfg:      cfg,
		sleep:    sleep,
	}
}

// Reserve admits amount bytes on the device, blocking while the device
// is full. It returns nil once the prober has accepted the post-add
// total, ctx.Err() if the context ends between attempts, and
// ErrRetriesExhausted when a configured MaxAttempts is hit. The device
// ordinal must be within the prober's device count.
func (p *Pool) Reserve(ctx context.Context, amount uint64, device int) error {
	c := &p.reserved[device]
	for attempt := 1; ; attempt++ {
		total := c.Add(amount)
		if p.prober.ValidAllocation(total, device) {
			p.admitted.Add(amount)
			return nil
		}
		c.Add(^(amount - 1)) // roll the optimistic add back
		p.retries.Add(1)

		if err := ctx.Err(); err != nil {
			return err
		}
		if p.cfg.MaxAttempts > 0 && attempt >= p.cfg.MaxAttempts {
			return fmt.Errorf("%w: %d bytes on device %d after %d attempts", ErrRetriesExhausted, amount, device, attempt)
		}
		p.sleep(p.cfg.RetryDelay)
	}
}

// Release returns amount bytes of reservation on the device. It never
// blocks. Releasing more than is outstanding means a reserve/release
// pairing bug upstream and panics with a reservation-underflow
// contract fault.
func (p *Pool) Release(amount uint64, device int) {
	c := &p.reserved[device]
	if current := c.Load(); current < amount {
		panic(&fhevm.ContractFault{
			Kind:   fhevm.FaultReservationUnderflow,
			Detail: fmt.Sprintf("release of %d bytes exceeds %d reserved on device %d", amount, current, device),
		})
	}
	c.Add(^(amount - 1))
}

// PoolStats contains cumulative admission statistics.
type PoolStats struct {
	Devices       int
	AdmittedBytes uint64
	Retries       uint64
}

// Stats returns cumulative admission statistics.
func (p *Pool) Stats() PoolStats {
	return PoolStats{
		Devices:       len(p.reserved),
		AdmittedBytes: p.admitted.Load(),
		Retries:       p.retries.Load(),
	}
}
