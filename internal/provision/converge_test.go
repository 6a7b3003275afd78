package provision_test

import (
	"context"
	"errors"
	"net/netip"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"sdnlab/internal/metrics"
	"sdnlab/internal/provision"
)

// scriptedSource answers polls from a fixed script, then repeats the last
// entry.
type scriptedSource struct {
	mu     sync.Mutex
	script []poll
	calls  int
}

type poll struct {
	addr netip.Addr
	err  error
}

func (s *scriptedSource) CurrentAddress(context.Context, string) (netip.Addr, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.script[min(s.calls, len(s.script)-1)]
	s.calls++
	return p.addr, p.addr.IsValid(), p.err
}

func TestWaitForAddress(t *testing.T) {
	addr := netip.MustParseAddr("10.0.0.101")
	errPoll := errors.New("netlink: no such device")

	testCases := map[string]struct {
		script  []poll
		timeout time.Duration
		wantErr error
		calls   int
	}{
		"immediate": {
			script: []poll{{addr: addr}},
			calls:  1,
		},
		"after three polls": {
			script: []poll{{}, {}, {}, {addr: addr}},
			calls:  4,
		},
		"poll errors are retried": {
			script: []poll{{err: errPoll}, {err: errPoll}, {addr: addr}},
			calls:  3,
		},
		"timeout": {
			script:  []poll{{}},
			timeout: 20 * time.Millisecond,
			wantErr: provision.ErrConvergenceTimeout,
		},
		"timeout keeps last poll error": {
			script:  []poll{{err: errPoll}},
			timeout: 20 * time.Millisecond,
			wantErr: errPoll,
		},
	}

	for name, tc := range testCases {
		t.Run(name, func(t *testing.T) {
			src := &scriptedSource{script: tc.script}
			w := &provision.Waiter{
				Interval: time.Millisecond,
				Timeout:  tc.timeout,
				Logger:   zaptest.NewLogger(t),
			}
			got, err := w.WaitForAddress(context.Background(), src, "h1")
			if tc.wantErr != nil {
				require.ErrorIs(t, err, tc.wantErr)
				var timeout *provision.ConvergenceTimeoutError
				require.ErrorAs(t, err, &timeout)
				assert.Equal(t, "h1", timeout.Host)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, addr, got)
			assert.Equal(t, tc.calls, src.calls)
		})
	}
}

func TestWaitForAddressCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	src := &scriptedSource{script: []poll{{}}}
	w := &provision.Waiter{Interval: time.Millisecond}

	time.AfterFunc(10*time.Millisecond, cancel)
	_, err := w.WaitForAddress(ctx, src, "h1")
	require.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, provision.ErrConvergenceTimeout)
}

func TestWaitForAddressRecordsConvergence(t *testing.T) {
	reg := metrics.NewRegistry()
	w := &provision.Waiter{Interval: time.Millisecond, Timeout: 10 * time.Millisecond, Metrics: reg}

	_, err := w.WaitForAddress(context.Background(), &scriptedSource{script: []poll{{addr: netip.MustParseAddr("10.0.0.101")}}}, "h1")
	require.NoError(t, err)
	_, err = w.WaitForAddress(context.Background(), &scriptedSource{script: []poll{{}}}, "h2")
	require.Error(t, err)

	assert.Equal(t, 2, testutil.CollectAndCount(reg.ConvergenceDuration))
}
