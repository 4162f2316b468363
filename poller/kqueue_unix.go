//go:build darwin || netbsd || freebsd || openbsd || dragonfly

package poller

import (
	"time"

	"golang.org/x/sys/unix"

	"github.com/dreamans/evmon/evlog"
	"github.com/dreamans/evmon/util"
)

type KQueue struct {
	fd     int
	events []unix.Kevent_t
	// EV_ADD on an existing filter silently updates it
	watched map[int]struct{}
	closed  bool
}

func New() (Poller, error) {
	return KQueueCreate()
}

func KQueueCreate() (*KQueue, error) {
	fd, err := unix.Kqueue()
	if err != nil {
		return nil, err
	}
	unix.CloseOnExec(fd)
	return &KQueue{
		fd:      fd,
		events:  make([]unix.Kevent_t, waitEventsBeginNum),
		watched: make(map[int]struct{}),
	}, nil
}

func (kq *KQueue) Watch(fd int) error {
	if kq.closed {
		return ErrClosed
	}
	if _, ok := kq.watched[fd]; ok {
		return ErrWatched
	}
	changes := make([]unix.Kevent_t, 1)
	unix.SetKevent(&changes[0], fd, unix.EVFILT_READ, unix.EV_ADD)
	if _, err := unix.Kevent(kq.fd, changes, nil, nil); err != nil {
		return err
	}
	kq.watched[fd] = struct{}{}
	return nil
}

func (kq *KQueue) Unwatch(fd int) error {
	if kq.closed {
		return ErrClosed
	}
	if _, ok := kq.watched[fd]; !ok {
		return ErrNotWatched
	}
	delete(kq.watched, fd)
	changes := make([]unix.Kevent_t, 1)
	unix.SetKevent(&changes[0], fd, unix.EVFILT_READ, unix.EV_DELETE)
	_, err := unix.Kevent(kq.fd, changes, nil, nil)
	switch err {
	case unix.ENOENT:
		return ErrNotWatched
	case unix.EBADF:
		evlog.Debugf("[KQueue.Unwatch]: fd %d already closed", fd)
		return nil
	}
	return err
}

func (kq *KQueue) Poll(timeout time.Duration) ([]Ready, error) {
	if kq.closed {
		return nil, ErrClosed
	}
	var ts *unix.Timespec
	if timeout >= 0 {
		t := unix.NsecToTimespec(int64(timeoutMillis(timeout)) * int64(time.Millisecond))
		ts = &t
	}
	n, err := unix.Kevent(kq.fd, nil, kq.events, ts)
	if err != nil {
		if util.TemporaryErr(err) {
			return nil, nil
		}
		evlog.Errorf("[unix.Kevent]: %s", err.Error())
		return nil, err
	}

	ready := make([]Ready, 0, n)
	for i := 0; i < n; i++ {
		ev := kq.events[i]
		var event Event
		if ev.Flags&unix.EV_ERROR != 0 {
			event |= EventError
		}
		if ev.Flags&unix.EV_EOF != 0 {
			event |= EventHangup
		}
		if ev.Filter == unix.EVFILT_READ && ev.Data > 0 {
			event |= EventRead
		}
		ready = append(ready, Ready{Fd: int(ev.Ident), Events: event})
	}
	if n == len(kq.events) {
		kq.events = make([]unix.Kevent_t, int(float64(n)*1.5))
	}
	return ready, nil
}

func (kq *KQueue) Close() error {
	if kq.closed {
		return ErrClosed
	}
	kq.closed = true
	kq.watched = nil
	return unix.Close(kq.fd)
}
