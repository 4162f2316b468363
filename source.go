package evmon

import (
	"io"

	"golang.org/x/sys/unix"
)

// Source is anything the monitor can watch: it exposes a descriptor usable
// by the poller, can be read in bounded chunks and closed. *os.File
// satisfies it.
type Source interface {
	io.Reader
	io.Closer
	Fd() uintptr
}

// FD adapts a raw descriptor number to Source.
type FD int

func (fd FD) Fd() uintptr {
	return uintptr(fd)
}

func (fd FD) Read(p []byte) (int, error) {
	n, err := unix.Read(int(fd), p)
	if n < 0 {
		n = 0
	}
	if n == 0 && err == nil && len(p) > 0 {
		return 0, io.EOF
	}
	return n, err
}

func (fd FD) Close() error {
	return unix.Close(int(fd))
}
