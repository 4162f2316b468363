//go:build unix

package poller

import (
	"sort"
	"time"

	"golang.org/x/sys/unix"

	"github.com/dreamans/evmon/evlog"
	"github.com/dreamans/evmon/util"
)

// Poll is a poll(2) backend. Unlike epoll and kqueue it reports descriptors
// that were closed while still watched as EventInvalid (POLLNVAL).
type Poll struct {
	fds    []unix.PollFd
	index  map[int]int
	closed bool
}

func NewPoll() *Poll {
	return &Poll{index: make(map[int]int)}
}

func (p *Poll) Watch(fd int) error {
	if p.closed {
		return ErrClosed
	}
	if _, ok := p.index[fd]; ok {
		return ErrWatched
	}
	p.index[fd] = len(p.fds)
	p.fds = append(p.fds, unix.PollFd{
		Fd:     int32(fd),
		Events: unix.POLLIN | unix.POLLPRI,
	})
	return nil
}

func (p *Poll) Unwatch(fd int) error {
	if p.closed {
		return ErrClosed
	}
	i, ok := p.index[fd]
	if !ok {
		return ErrNotWatched
	}
	last := len(p.fds) - 1
	if i != last {
		p.fds[i] = p.fds[last]
		p.index[int(p.fds[i].Fd)] = i
	}
	p.fds = p.fds[:last]
	delete(p.index, fd)
	return nil
}

func (p *Poll) Poll(timeout time.Duration) ([]Ready, error) {
	if p.closed {
		return nil, ErrClosed
	}
	if len(p.fds) == 0 {
		if timeout < 0 {
			// nothing can ever become ready
			return nil, nil
		}
		time.Sleep(timeout)
		return nil, nil
	}
	n, err := unix.Poll(p.fds, timeoutMillis(timeout))
	if err != nil {
		if util.TemporaryErr(err) {
			return nil, nil
		}
		evlog.Errorf("[unix.Poll]: %s", err.Error())
		return nil, err
	}

	ready := make([]Ready, 0, n)
	for i := range p.fds {
		revents := p.fds[i].Revents
		if revents == 0 {
			continue
		}
		p.fds[i].Revents = 0
		var event Event
		if revents&(unix.POLLIN|unix.POLLPRI) != 0 {
			event |= EventRead
		}
		if revents&unix.POLLHUP != 0 {
			event |= EventHangup
		}
		if revents&unix.POLLERR != 0 {
			event |= EventError
		}
		if revents&unix.POLLNVAL != 0 {
			event |= EventInvalid
		}
		ready = append(ready, Ready{Fd: int(p.fds[i].Fd), Events: event})
	}
	sort.Slice(ready, func(i, j int) bool { return ready[i].Fd < ready[j].Fd })
	return ready, nil
}

func (p *Poll) Close() error {
	if p.closed {
		return ErrClosed
	}
	p.closed = true
	p.fds = nil
	p.index = nil
	return nil
}
