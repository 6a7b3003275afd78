package provision

import (
	"context"
	"net/netip"
	"time"

	"go.uber.org/zap"

	"sdnlab/internal/metrics"
)

// AddressSource reports the address currently held by a host.
type AddressSource interface {
	CurrentAddress(ctx context.Context, host string) (netip.Addr, bool, error)
}

// Waiter polls a host until it has an address.
type Waiter struct {
	// Interval between polls.
	Interval time.Duration
	// Timeout bounds the wait per host. Zero waits until ctx is done.
	Timeout time.Duration

	Logger  *zap.Logger
	Metrics *metrics.Registry
}

// WaitForAddress blocks until host has an address, the timeout elapses or
// ctx is done. Poll errors do not end the wait early.
func (w *Waiter) WaitForAddress(ctx context.Context, src AddressSource, host string) (netip.Addr, error) {
	logger := w.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	interval := w.Interval
	if interval <= 0 {
		interval = time.Second
	}

	start := time.Now()
	var deadline <-chan time.Time
	if w.Timeout > 0 {
		timer := time.NewTimer(w.Timeout)
		defer timer.Stop()
		deadline = timer.C
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	logger.Info("Waiting for IP address", zap.String("host", host))
	var lastErr error
	for {
		addr, ok, err := src.CurrentAddress(ctx, host)
		switch {
		case err != nil:
			lastErr = err
			logger.Debug("Polling address failed", zap.String("host", host), zap.Error(err))
		case ok:
			w.Metrics.RecordConvergence(time.Since(start), nil)
			return addr, nil
		}

		select {
		case <-ctx.Done():
			w.Metrics.RecordConvergence(time.Since(start), ctx.Err())
			return netip.Addr{}, ctx.Err()
		case <-deadline:
			err := &ConvergenceTimeoutError{Host: host, Timeout: w.Timeout, LastErr: lastErr}
			w.Metrics.RecordConvergence(time.Since(start), err)
			return netip.Addr{}, err
		case <-ticker.C:
		}
	}
}
