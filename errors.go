package evmon

import (
	"errors"
	"fmt"
	"time"

	"github.com/dreamans/evmon/poller"
)

var (
	ErrContractViolation = errors.New("evmon: contract violation")
	ErrAlreadyMonitored  = errors.New("evmon: descriptor already monitored")
	ErrNotMonitored      = errors.New("evmon: descriptor not monitored")
	ErrCallbackAndCopy   = errors.New("evmon: both data callback and copy target set")
	ErrNilSource         = errors.New("evmon: nil source")
	ErrInvalidDescriptor = errors.New("evmon: poller reported invalid descriptor")
	ErrUnknownEvent      = errors.New("evmon: unknown poll event")
	ErrNotForgotten      = errors.New("evmon: error handling for a descriptor still monitored")
	ErrRunning           = errors.New("evmon: monitor already running")
	ErrTimeout           = errors.New("evmon: timeout")
)

// ContractViolation marks a programmer error or a registry/poller
// desynchronization. Register and Forget return it; the event loop panics
// with it.
type ContractViolation struct {
	Fd  int
	Err error
}

func (e *ContractViolation) Error() string {
	return fmt.Sprintf("%s: fd %d: %s", ErrContractViolation, e.Fd, e.Err)
}

func (e *ContractViolation) Unwrap() error {
	return e.Err
}

func (e *ContractViolation) Is(target error) bool {
	return target == ErrContractViolation
}

func violation(fd int, err error) *ContractViolation {
	return &ContractViolation{Fd: fd, Err: err}
}

// HangupError is the cause handed to teardown when the poller reports a
// hangup or error condition.
type HangupError struct {
	Fd     int
	Events poller.Event
}

func (e *HangupError) Error() string {
	return fmt.Sprintf("evmon: fd %d hangup (%s)", e.Fd, e.Events)
}

// TimeoutError is synthesized by the deadline sweep.
type TimeoutError struct {
	Name    string
	Fd      int
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("evmon: %s fd %d timed out after %s", e.Name, e.Fd, e.Timeout)
}

func (e *TimeoutError) Unwrap() error {
	return ErrTimeout
}

// PanicError carries a value recovered from a panicking callback.
type PanicError struct {
	Value interface{}
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("evmon: callback panic: %v", e.Value)
}

func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}
