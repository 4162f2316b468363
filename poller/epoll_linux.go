//go:build linux

package poller

import (
	"sort"
	"time"

	"golang.org/x/sys/unix"

	"github.com/dreamans/evmon/evlog"
	"github.com/dreamans/evmon/util"
)

const (
	readEvent   = unix.EPOLLIN | unix.EPOLLPRI
	hangupEvent = unix.EPOLLRDHUP
)

type Epoll struct {
	fd     int
	events []unix.EpollEvent
	// regular files cannot be added to epoll; poll(2) reports them as
	// always readable, so they are kept here and reported on every Poll
	always map[int]struct{}
	closed bool
}

func New() (Poller, error) {
	return EpollCreate()
}

func EpollCreate() (*Epoll, error) {
	fd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, err
	}
	return &Epoll{
		fd:     fd,
		events: make([]unix.EpollEvent, waitEventsBeginNum),
		always: make(map[int]struct{}),
	}, nil
}

func (ep *Epoll) Watch(fd int) error {
	if ep.closed {
		return ErrClosed
	}
	if _, ok := ep.always[fd]; ok {
		return ErrWatched
	}
	ev := &unix.EpollEvent{
		Fd:     int32(fd),
		Events: uint32(readEvent | hangupEvent),
	}
	err := unix.EpollCtl(ep.fd, unix.EPOLL_CTL_ADD, fd, ev)
	switch err {
	case unix.EEXIST:
		return ErrWatched
	case unix.EPERM:
		evlog.Debugf("[Epoll.Watch]: fd %d does not support epoll, always readable", fd)
		ep.always[fd] = struct{}{}
		return nil
	}
	return err
}

func (ep *Epoll) Unwatch(fd int) error {
	if ep.closed {
		return ErrClosed
	}
	if _, ok := ep.always[fd]; ok {
		delete(ep.always, fd)
		return nil
	}
	err := unix.EpollCtl(ep.fd, unix.EPOLL_CTL_DEL, fd, nil)
	switch err {
	case unix.ENOENT:
		return ErrNotWatched
	case unix.EBADF:
		// closing the last reference already dropped it from the epoll set
		evlog.Debugf("[Epoll.Unwatch]: fd %d already closed", fd)
		return nil
	}
	return err
}

func (ep *Epoll) Poll(timeout time.Duration) ([]Ready, error) {
	if ep.closed {
		return nil, ErrClosed
	}
	if len(ep.always) > 0 {
		timeout = 0
	}
	n, err := unix.EpollWait(ep.fd, ep.events, timeoutMillis(timeout))
	if err != nil {
		if util.TemporaryErr(err) {
			return nil, nil
		}
		evlog.Errorf("[unix.EpollWait]: %s", err.Error())
		return nil, err
	}

	ready := make([]Ready, 0, n+len(ep.always))
	for i := 0; i < n; i++ {
		raw := ep.events[i].Events
		var event Event
		if raw&uint32(readEvent) != 0 {
			event |= EventRead
		}
		if raw&uint32(unix.EPOLLHUP|unix.EPOLLRDHUP) != 0 {
			event |= EventHangup
		}
		if raw&unix.EPOLLERR != 0 {
			event |= EventError
		}
		ready = append(ready, Ready{Fd: int(ep.events[i].Fd), Events: event})
	}
	if n == len(ep.events) {
		ep.events = make([]unix.EpollEvent, int(float64(n)*1.5))
	}
	if len(ep.always) > 0 {
		for fd := range ep.always {
			ready = append(ready, Ready{Fd: fd, Events: EventRead})
		}
		sort.Slice(ready, func(i, j int) bool { return ready[i].Fd < ready[j].Fd })
	}
	return ready, nil
}

func (ep *Epoll) Close() error {
	if ep.closed {
		return ErrClosed
	}
	ep.closed = true
	ep.always = nil
	return unix.Close(ep.fd)
}
