// Package evmon monitors a set of readable descriptors from a single
// goroutine and dispatches data, hangup, error and timeout callbacks for
// each of them until none remain.
//
// A Monitor is not safe for concurrent use. Callbacks run on the goroutine
// that called Run and may register or forget sources.
package evmon

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"golang.org/x/sys/unix"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/dreamans/evmon/evlog"
	"github.com/dreamans/evmon/poller"
	"github.com/dreamans/evmon/util"
)

type entry struct {
	name     string
	fd       int
	source   Source
	onData   func() error
	onHangup func() error
	onError  func(error) error
	copyTo   *transform.Writer
	timeout  time.Duration
	deadline time.Time
}

type Monitor struct {
	timeout     time.Duration
	idleHandler func() error
	loopHook    func() error
	poll        poller.Poller
	entries     map[int]*entry
	packet      []byte
	running     util.AtomicBool
	now         func() time.Time
}

func NewMonitor(opts *Options) (*Monitor, error) {
	if opts == nil {
		opts = NewOptions()
	}
	poll := opts.Poller
	if poll == nil {
		p, err := poller.New()
		if err != nil {
			return nil, err
		}
		poll = p
	}
	return &Monitor{
		timeout:     opts.Timeout,
		idleHandler: opts.IdleHandler,
		loopHook:    opts.LoopHook,
		poll:        poll,
		entries:     make(map[int]*entry),
		packet:      make([]byte, ChunkSize),
		now:         time.Now,
	}, nil
}

// Register starts monitoring src. The source is closed by the monitor when
// it hangs up, fails or times out; after Forget it belongs to the caller
// again.
func (m *Monitor) Register(name string, src Source, opts *SourceOptions) error {
	if src == nil {
		return violation(-1, ErrNilSource)
	}
	if opts == nil {
		opts = NewSourceOptions()
	}
	fd := int(src.Fd())
	if _, ok := m.entries[fd]; ok {
		return violation(fd, ErrAlreadyMonitored)
	}

	e := &entry{
		name:     name,
		fd:       fd,
		source:   src,
		onData:   opts.DataCallback,
		onHangup: opts.HangupCallback,
		onError:  opts.ErrorHandler,
		timeout:  opts.Timeout,
	}
	if opts.CopyTo != nil {
		if opts.DataCallback != nil {
			return violation(fd, ErrCallbackAndCopy)
		}
		evlog.Debugf("[Register]: making fd %d non-blocking for copy", fd)
		if err := unix.SetNonblock(fd, true); err != nil {
			return fmt.Errorf("evmon: set non-blocking fd %d: %w", fd, err)
		}
		e.copyTo = transform.NewWriter(opts.CopyTo, unicode.UTF8.NewDecoder())
		e.onData = func() error {
			return m.copyData(e)
		}
	}
	if opts.Timeout > 0 {
		e.deadline = m.now().Add(opts.Timeout)
	}

	if err := m.poll.Watch(fd); err != nil {
		return fmt.Errorf("evmon: watch %s fd %d: %w", name, fd, err)
	}
	m.entries[fd] = e

	evlog.Debugf("[Register]: monitoring start %s fd %d", name, fd)
	m.LogMonitors(false)
	return nil
}

// Forget stops monitoring src without closing it.
func (m *Monitor) Forget(src Source) error {
	if src == nil {
		return violation(-1, ErrNilSource)
	}
	return m.ForgetFd(int(src.Fd()))
}

func (m *Monitor) ForgetFd(fd int) error {
	e, ok := m.entries[fd]
	if !ok {
		return violation(fd, ErrNotMonitored)
	}
	evlog.Debugf("[Forget]: monitoring forget %s fd %d", e.name, fd)
	m.remove(e)
	m.LogMonitors(false)
	return nil
}

func (m *Monitor) remove(e *entry) {
	delete(m.entries, e.fd)
	if err := m.poll.Unwatch(e.fd); err != nil {
		evlog.Errorf("[poller.Unwatch]: fd %d: %s", e.fd, err.Error())
	}
	if e.copyTo != nil {
		// emit any bytes held back as an incomplete UTF-8 sequence
		if err := e.copyTo.Close(); err != nil {
			evlog.Warningf("[Forget]: flushing copy of %s fd %d: %s", e.name, e.fd, err.Error())
		}
	}
}

func (m *Monitor) Count() int {
	return len(m.entries)
}

func (m *Monitor) Monitored(fd int) bool {
	_, ok := m.entries[fd]
	return ok
}

// Names lists the monitored sources as "name fd N", ordered by fd.
func (m *Monitor) Names() []string {
	snapshot := m.snapshot()
	names := make([]string, len(snapshot))
	for i, e := range snapshot {
		names[i] = fmt.Sprintf("%s fd %d", e.name, e.fd)
	}
	return names
}

// LogMonitors logs every monitored source and returns how many there are.
func (m *Monitor) LogMonitors(asInfo bool) int {
	names := m.Names()
	logf := evlog.Debugf
	if asInfo {
		logf = evlog.Infof
	}
	logf("[Monitors]: monitoring %d fds %s", len(names), strings.Join(names, ", "))
	return len(names)
}

// Close releases the poller and closes every source still monitored.
// Their callbacks are not invoked.
func (m *Monitor) Close() error {
	for _, e := range m.snapshot() {
		m.remove(e)
		if err := e.source.Close(); err != nil {
			evlog.Warningf("[Close]: %s fd %d: %s", e.name, e.fd, err.Error())
		}
	}
	return m.poll.Close()
}

// snapshot returns the current entries ordered by fd. Later registry changes
// do not affect the returned slice.
func (m *Monitor) snapshot() []*entry {
	snapshot := make([]*entry, 0, len(m.entries))
	for _, e := range m.entries {
		snapshot = append(snapshot, e)
	}
	sort.Slice(snapshot, func(i, j int) bool { return snapshot[i].fd < snapshot[j].fd })
	return snapshot
}

func (m *Monitor) live(e *entry) bool {
	cur, ok := m.entries[e.fd]
	return ok && cur == e
}

func (m *Monitor) copyData(e *entry) error {
	n, err := e.source.Read(m.packet[:ChunkSize])
	evlog.Debugf("[CopyData]: %s fd %d read %d bytes", e.name, e.fd, n)
	if n > 0 {
		if _, werr := e.copyTo.Write(m.packet[:n]); werr != nil {
			return werr
		}
	}
	if err != nil && err != io.EOF && !util.WouldBlock(err) {
		return err
	}
	return nil
}

func (m *Monitor) drain(e *entry) error {
	evlog.Debugf("[Drain]: flush fd %d (%s)", e.fd, e.name)
	_, err := unix.Read(e.fd, m.packet[:ChunkSize])
	if err != nil && !util.WouldBlock(err) {
		return err
	}
	return nil
}
