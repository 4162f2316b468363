package evmon

import (
	"io"
	"time"

	"github.com/dreamans/evmon/poller"
)

// ChunkSize bounds every read the monitor performs on behalf of a source.
const ChunkSize = 1024

// Options configures a Monitor.
type Options struct {
	// Timeout bounds each blocking poll. Zero blocks until a source is ready.
	Timeout time.Duration
	// IdleHandler runs when an immediate poll finds nothing ready.
	IdleHandler func() error
	// LoopHook runs once per iteration.
	LoopHook func() error
	// Poller replaces the platform poller.
	Poller poller.Poller
}

func NewOptions() *Options {
	return &Options{}
}

func (opts *Options) SetTimeout(timeout time.Duration) *Options {
	opts.Timeout = timeout
	return opts
}

func (opts *Options) SetIdleHandler(fn func() error) *Options {
	opts.IdleHandler = fn
	return opts
}

func (opts *Options) SetLoopHook(fn func() error) *Options {
	opts.LoopHook = fn
	return opts
}

func (opts *Options) SetPoller(p poller.Poller) *Options {
	opts.Poller = p
	return opts
}

// SourceOptions configures a single registration. At most one of
// DataCallback and CopyTo may be set; with neither, ready data is drained
// and discarded.
type SourceOptions struct {
	DataCallback   func() error
	HangupCallback func() error
	ErrorHandler   func(err error) error
	CopyTo         io.Writer
	Timeout        time.Duration
}

func NewSourceOptions() *SourceOptions {
	return &SourceOptions{}
}

func (opts *SourceOptions) SetDataCallback(fn func() error) *SourceOptions {
	opts.DataCallback = fn
	return opts
}

func (opts *SourceOptions) SetHangupCallback(fn func() error) *SourceOptions {
	opts.HangupCallback = fn
	return opts
}

func (opts *SourceOptions) SetErrorHandler(fn func(err error) error) *SourceOptions {
	opts.ErrorHandler = fn
	return opts
}

func (opts *SourceOptions) SetCopyTo(w io.Writer) *SourceOptions {
	opts.CopyTo = w
	return opts
}

func (opts *SourceOptions) SetTimeout(timeout time.Duration) *SourceOptions {
	opts.Timeout = timeout
	return opts
}
