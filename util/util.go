package util

import (
	"errors"
	"syscall"
)

func TemporaryErr(err error) bool {
	var errno syscall.Errno
	if !errors.As(err, &errno) {
		return false
	}
	return errno.Temporary()
}

// WouldBlock reports whether err is the EAGAIN of a non-blocking read that
// found nothing to read.
func WouldBlock(err error) bool {
	return errors.Is(err, syscall.EAGAIN) || errors.Is(err, syscall.EWOULDBLOCK)
}
