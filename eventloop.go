package evmon

import (
	"github.com/dreamans/evmon/evlog"
	"github.com/dreamans/evmon/poller"
)

// Run drives the monitor until no source remains and then returns false,
// meaning there are no active streams. A poller failure ends the loop early
// with the error; the boolean then reports whether sources remain.
//
// Callback failures never escape Run. Contract violations do, as a panic
// with a *ContractViolation.
func (m *Monitor) Run() (bool, error) {
	if !m.running.SetIf() {
		return len(m.entries) > 0, ErrRunning
	}
	defer m.running.Clear()

	for len(m.entries) > 0 {
		ready, err := m.poll.Poll(0)
		if err != nil {
			return true, err
		}
		if len(ready) == 0 && m.idleHandler != nil {
			if err := invoke(m.idleHandler); err != nil {
				evlog.Errorf("[IdleHandler]: monitoring exception in callback: %s", err.Error())
			}
			if len(m.entries) == 0 {
				evlog.Debugf("[Run]: idle handler removed all monitors")
				return false, nil
			}
		}
		if m.loopHook != nil {
			if err := invoke(m.loopHook); err != nil {
				evlog.Errorf("[LoopHook]: monitoring exception in callback: %s", err.Error())
			}
		}
		if m.LogMonitors(false) == 0 {
			break
		}

		timeout := m.timeout
		if timeout <= 0 {
			timeout = poller.Block
		}
		ready, err = m.poll.Poll(timeout)
		if err != nil {
			return len(m.entries) > 0, err
		}
		evlog.Debugf("[Run]: monitoring found fds %v", ready)
		for _, r := range ready {
			// an earlier dispatch in this batch may have removed it
			if _, ok := m.entries[r.Fd]; ok {
				m.dispatch(r)
			}
		}

		m.sweepDeadlines()
	}
	return false, nil
}

func (m *Monitor) dispatch(r poller.Ready) {
	switch {
	case r.Events&poller.EventInvalid != 0:
		panic(violation(r.Fd, ErrInvalidDescriptor))
	case r.Events&poller.EventRead != 0:
		m.triggerData(m.entries[r.Fd])
	case r.Events&(poller.EventHangup|poller.EventError) != 0:
		m.teardown(m.entries[r.Fd], &HangupError{Fd: r.Fd, Events: r.Events})
	default:
		panic(violation(r.Fd, ErrUnknownEvent))
	}
}

func (m *Monitor) triggerData(e *entry) {
	var err error
	if e.onData != nil {
		evlog.Debugf("[Callback]: fd %d (%s) start", e.fd, e.name)
		err = invoke(e.onData)
		evlog.Debugf("[Callback]: fd %d (%s) done", e.fd, e.name)
	} else {
		err = m.drain(e)
	}
	if err == nil {
		return
	}

	evlog.Errorf("[Callback]: fd %d (%s) failed: %s", e.fd, e.name, err.Error())
	if m.live(e) && m.teardown(e, err) {
		m.handleError(e, err)
	}
}

// teardown forgets e, closes its source and runs its hangup callback. It
// reports whether cause still needs the error path, which is false only when
// the hangup callback failed and its own failure was handled instead.
func (m *Monitor) teardown(e *entry, cause error) bool {
	if e == nil || !m.live(e) {
		fd := -1
		if e != nil {
			fd = e.fd
		}
		panic(violation(fd, ErrNotMonitored))
	}

	m.remove(e)
	if err := e.source.Close(); err != nil {
		evlog.Warningf("[Hangup]: closing %s fd %d: %s", e.name, e.fd, err.Error())
	}
	m.LogMonitors(false)

	if e.onHangup == nil {
		evlog.Debugf("[Hangup]: no hangup fd %d because %s (%s)", e.fd, cause.Error(), e.name)
		return true
	}
	evlog.Debugf("[Hangup]: hangup fd %d because %s (%s)", e.fd, cause.Error(), e.name)
	if err := invoke(e.onHangup); err != nil {
		evlog.Errorf("[Hangup]: fd %d (%s) failed: %s", e.fd, e.name, err.Error())
		m.handleError(e, err)
		return false
	}
	evlog.Debugf("[Hangup]: hangup fd %d done (%s)", e.fd, e.name)
	return true
}

func (m *Monitor) handleError(e *entry, cause error) {
	if m.live(e) {
		panic(violation(e.fd, ErrNotForgotten))
	}
	if e.onError == nil {
		evlog.Errorf("[ErrorHandler]: monitoring error handling %s fd %d (no handler): %s", e.name, e.fd, cause.Error())
		return
	}
	evlog.Infof("[ErrorHandler]: monitoring error handling %s fd %d: %s", e.name, e.fd, cause.Error())
	err := invoke(func() error {
		return e.onError(cause)
	})
	if err != nil {
		evlog.Errorf("[ErrorHandler]: monitoring exception %s fd %d: %s", e.name, e.fd, err.Error())
	}
}

// sweepDeadlines tears down every source whose deadline has passed. It walks
// a snapshot so teardown callbacks may change the registry.
func (m *Monitor) sweepDeadlines() {
	now := m.now()
	for _, e := range m.snapshot() {
		if e.deadline.IsZero() || now.Before(e.deadline) {
			continue
		}
		if !m.live(e) {
			continue
		}
		cause := &TimeoutError{Name: e.name, Fd: e.fd, Timeout: e.timeout}
		evlog.Infof("[Timeout]: %s fd %d", e.name, e.fd)
		if m.teardown(e, cause) {
			m.handleError(e, cause)
		}
	}
}

// invoke runs a user callback, turning a panic into a *PanicError. Contract
// violations keep unwinding.
func invoke(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			if cv, ok := r.(*ContractViolation); ok {
				panic(cv)
			}
			err = &PanicError{Value: r}
		}
	}()
	return fn()
}
