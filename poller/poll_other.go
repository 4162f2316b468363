//go:build unix && !linux && !darwin && !netbsd && !freebsd && !openbsd && !dragonfly

package poller

func New() (Poller, error) {
	return NewPoll(), nil
}
