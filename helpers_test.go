package evmon

import (
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"

	"github.com/dreamans/evmon/evlog"
	"github.com/dreamans/evmon/poller"
)

var errScriptDone = errors.New("script done")

// scriptPoller replays a fixed sequence of readiness batches. Immediate polls
// peek at the next batch, blocking polls consume it.
type scriptPoller struct {
	watched  map[int]bool
	batches  [][]poller.Ready
	timeouts []time.Duration
	closed   bool
}

func newScriptPoller(batches ...[]poller.Ready) *scriptPoller {
	return &scriptPoller{watched: make(map[int]bool), batches: batches}
}

func (p *scriptPoller) Watch(fd int) error {
	if p.watched[fd] {
		return poller.ErrWatched
	}
	p.watched[fd] = true
	return nil
}

func (p *scriptPoller) Unwatch(fd int) error {
	if !p.watched[fd] {
		return poller.ErrNotWatched
	}
	delete(p.watched, fd)
	return nil
}

func (p *scriptPoller) Poll(timeout time.Duration) ([]poller.Ready, error) {
	if timeout == 0 {
		if len(p.batches) == 0 {
			return nil, nil
		}
		return append([]poller.Ready(nil), p.batches[0]...), nil
	}
	p.timeouts = append(p.timeouts, timeout)
	if len(p.batches) == 0 {
		return nil, errScriptDone
	}
	batch := p.batches[0]
	p.batches = p.batches[1:]
	return batch, nil
}

func (p *scriptPoller) Close() error {
	p.closed = true
	return nil
}

func read(fd int) poller.Ready {
	return poller.Ready{Fd: fd, Events: poller.EventRead}
}

func hangup(fd int) poller.Ready {
	return poller.Ready{Fd: fd, Events: poller.EventHangup}
}

// pipeSource returns the read end of a fresh pipe, its descriptor and the
// write end.
func pipeSource(t *testing.T) (*os.File, int, *os.File) {
	t.Helper()
	r, w, err := os.Pipe()
	require.NoError(t, err)
	fd := int(r.Fd())
	t.Cleanup(func() {
		_ = r.Close()
		_ = w.Close()
	})
	return r, fd, w
}

func captureLogs(t *testing.T) *test.Hook {
	t.Helper()
	l, hook := test.NewNullLogger()
	l.SetLevel(logrus.DebugLevel)
	evlog.SetLogger(evlog.NewLoggerWith(l))
	t.Cleanup(func() {
		evlog.SetLogger(nil)
	})
	return hook
}

func errorEntries(hook *test.Hook) []string {
	var msgs []string
	for _, e := range hook.AllEntries() {
		if e.Level <= logrus.ErrorLevel {
			msgs = append(msgs, e.Message)
		}
	}
	return msgs
}

func newTestMonitor(t *testing.T, opts *Options) *Monitor {
	t.Helper()
	m, err := NewMonitor(opts)
	require.NoError(t, err)
	return m
}

func requireViolation(t *testing.T, target error, fn func()) {
	t.Helper()
	defer func() {
		r := recover()
		require.NotNil(t, r, "expected a contract violation panic")
		cv, ok := r.(*ContractViolation)
		require.True(t, ok, "panic value %v is not a *ContractViolation", r)
		require.ErrorIs(t, cv, target)
		require.ErrorIs(t, cv, ErrContractViolation)
	}()
	fn()
}

// recorder is a copy target that keeps every non-empty write separately.
type recorder struct {
	mu     sync.Mutex
	writes []string
}

func (r *recorder) Write(b []byte) (int, error) {
	if len(b) > 0 {
		r.mu.Lock()
		r.writes = append(r.writes, string(b))
		r.mu.Unlock()
	}
	return len(b), nil
}
