// Package poller wraps the platform readiness primitive behind a small,
// level-triggered interface: watch a descriptor for readability and hangup,
// then ask which watched descriptors are ready.
package poller

import (
	"errors"
	"math"
	"time"
)

type Event uint32

const (
	EventRead    Event = 0x1
	EventHangup  Event = 0x2
	EventError   Event = 0x4
	EventInvalid Event = 0x8
)

// Block makes Poll wait until at least one descriptor is ready.
const Block time.Duration = -1

const (
	waitEventsBeginNum = 128
)

var (
	ErrClosed     = errors.New("poller: closed")
	ErrWatched    = errors.New("poller: fd already watched")
	ErrNotWatched = errors.New("poller: fd not watched")
)

// Ready is one descriptor reported by Poll together with its conditions.
type Ready struct {
	Fd     int
	Events Event
}

type Poller interface {
	// Watch adds fd to the watch set for readable and hangup conditions.
	Watch(fd int) error
	// Unwatch removes fd from the watch set.
	Unwatch(fd int) error
	// Poll returns the ready descriptors. A zero timeout returns immediately,
	// a negative one blocks until something is ready.
	Poll(timeout time.Duration) ([]Ready, error)
	Close() error
}

func (e Event) String() string {
	if e == 0 {
		return "none"
	}
	s := ""
	for _, f := range []struct {
		bit  Event
		name string
	}{
		{EventRead, "read"},
		{EventHangup, "hangup"},
		{EventError, "error"},
		{EventInvalid, "invalid"},
	} {
		if e&f.bit != 0 {
			if s != "" {
				s += "|"
			}
			s += f.name
		}
	}
	if s == "" {
		return "unknown"
	}
	return s
}

// timeoutMillis converts a Poll timeout into the millisecond argument of
// epoll_wait/poll. Positive timeouts round up so that a sub-millisecond
// bound still waits instead of spinning.
func timeoutMillis(timeout time.Duration) int {
	if timeout < 0 {
		return -1
	}
	if timeout == 0 {
		return 0
	}
	ms := (timeout + time.Millisecond - 1) / time.Millisecond
	if ms > math.MaxInt32 {
		return math.MaxInt32
	}
	return int(ms)
}
