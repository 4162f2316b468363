package evmon

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/dreamans/evmon/poller"
)

func TestRegisterDuplicateKeepsOriginal(t *testing.T) {
	p := newScriptPoller()
	m := newTestMonitor(t, NewOptions().SetPoller(p))
	r, fd, _ := pipeSource(t)

	calls := 0
	require.NoError(t, m.Register("first", r, NewSourceOptions().SetDataCallback(func() error {
		calls++
		return nil
	})))

	err := m.Register("second", r, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAlreadyMonitored)
	assert.ErrorIs(t, err, ErrContractViolation)

	assert.Equal(t, 1, m.Count())
	assert.Equal(t, []string{"first fd " + strconv.Itoa(fd)}, m.Names())
	assert.True(t, p.watched[fd])

	m.triggerData(m.entries[fd])
	assert.Equal(t, 1, calls)
}

func TestRegisterCallbackAndCopyRejected(t *testing.T) {
	p := newScriptPoller()
	m := newTestMonitor(t, NewOptions().SetPoller(p))
	r, fd, _ := pipeSource(t)

	err := m.Register("both", r, NewSourceOptions().
		SetDataCallback(func() error { return nil }).
		SetCopyTo(&bytes.Buffer{}))
	assert.ErrorIs(t, err, ErrCallbackAndCopy)
	assert.ErrorIs(t, err, ErrContractViolation)
	assert.Equal(t, 0, m.Count())
	assert.False(t, p.watched[fd])
}

func TestRegisterNilSource(t *testing.T) {
	m := newTestMonitor(t, NewOptions().SetPoller(newScriptPoller()))
	assert.ErrorIs(t, m.Register("nil", nil, nil), ErrNilSource)
	assert.ErrorIs(t, m.Forget(nil), ErrNilSource)
}

func TestRegisterWatchFailureRollsBack(t *testing.T) {
	p := newScriptPoller()
	m := newTestMonitor(t, NewOptions().SetPoller(p))
	r, fd, _ := pipeSource(t)
	p.watched[fd] = true

	err := m.Register("a", r, nil)
	require.Error(t, err)
	assert.False(t, m.Monitored(fd))
}

func TestForget(t *testing.T) {
	p := newScriptPoller()
	m := newTestMonitor(t, NewOptions().SetPoller(p))
	r, fd, w := pipeSource(t)

	require.NoError(t, m.Register("a", r, nil))
	require.NoError(t, m.Forget(r))
	assert.Equal(t, 0, m.Count())
	assert.False(t, p.watched[fd])

	// forgetting hands the source back open
	_, err := w.Write([]byte("x"))
	require.NoError(t, err)
	buf := make([]byte, 1)
	n, err := r.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	err = m.ForgetFd(fd)
	assert.ErrorIs(t, err, ErrNotMonitored)
	assert.ErrorIs(t, err, ErrContractViolation)
}

func TestLogMonitors(t *testing.T) {
	hook := captureLogs(t)
	m := newTestMonitor(t, NewOptions().SetPoller(newScriptPoller()))
	r1, fd1, _ := pipeSource(t)
	r2, fd2, _ := pipeSource(t)
	require.NoError(t, m.Register("one", r1, nil))
	require.NoError(t, m.Register("two", r2, nil))

	hook.Reset()
	assert.Equal(t, 2, m.LogMonitors(true))
	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Contains(t, entry.Message, "monitoring 2 fds")
	assert.Contains(t, entry.Message, "one fd "+strconv.Itoa(fd1))
	assert.Contains(t, entry.Message, "two fd "+strconv.Itoa(fd2))
}

func TestCopyModeAppendsOncePerReadiness(t *testing.T) {
	r, fd, w := pipeSource(t)
	p := newScriptPoller([]poller.Ready{read(fd)}, []poller.Ready{hangup(fd)})
	sink := &recorder{}

	var nonblocking, openAfterCopy bool
	hooks := 0
	var m *Monitor
	m = newTestMonitor(t, NewOptions().SetPoller(p).SetLoopHook(func() error {
		hooks++
		if hooks == 2 {
			flags, err := unix.FcntlInt(uintptr(fd), unix.F_GETFL, 0)
			require.NoError(t, err)
			nonblocking = flags&unix.O_NONBLOCK != 0
			openAfterCopy = m.Monitored(fd)
		}
		return nil
	}))
	require.NoError(t, m.Register("copy", r, NewSourceOptions().SetCopyTo(sink)))

	_, err := w.Write([]byte("0123456789"))
	require.NoError(t, err)

	active, err := m.Run()
	require.NoError(t, err)
	assert.False(t, active)

	assert.Equal(t, []string{"0123456789"}, sink.writes)
	assert.True(t, nonblocking)
	assert.True(t, openAfterCopy)
	_, err = r.Read(make([]byte, 1))
	assert.ErrorIs(t, err, os.ErrClosed)
}

func TestCopyModeDecodesAcrossReads(t *testing.T) {
	r, fd, w := pipeSource(t)
	p := newScriptPoller([]poller.Ready{read(fd)}, []poller.Ready{read(fd)}, []poller.Ready{hangup(fd)})
	var out bytes.Buffer

	writes := [][]byte{[]byte("caf\xc3"), []byte("\xa9 \xff!")}
	step := 0
	m := newTestMonitor(t, NewOptions().SetPoller(p).SetLoopHook(func() error {
		if step < len(writes) {
			_, err := w.Write(writes[step])
			step++
			return err
		}
		return nil
	}))
	require.NoError(t, m.Register("copy", r, NewSourceOptions().SetCopyTo(&out)))

	_, err := m.Run()
	require.NoError(t, err)
	assert.Equal(t, "caf\u00e9 \ufffd!", out.String())
}

func TestCopyModeWithNativePoller(t *testing.T) {
	r, _, w := pipeSource(t)
	var out bytes.Buffer
	m := newTestMonitor(t, NewOptions().SetTimeout(time.Second))
	defer m.Close()

	hungUp := false
	require.NoError(t, m.Register("native", r, NewSourceOptions().
		SetCopyTo(&out).
		SetHangupCallback(func() error {
			hungUp = true
			return nil
		})))

	_, err := w.Write([]byte("hello\nworld\n"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	active, err := m.Run()
	require.NoError(t, err)
	assert.False(t, active)
	assert.True(t, hungUp)
	assert.Equal(t, "hello\nworld\n", out.String())
}

func TestRegularFileWithNativePoller(t *testing.T) {
	content := "line one\nline two\n"
	path := filepath.Join(t.TempDir(), "input.txt")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	m := newTestMonitor(t, NewOptions().SetTimeout(100*time.Millisecond))
	defer m.Close()

	var got bytes.Buffer
	buf := make([]byte, 8)
	require.NoError(t, m.Register("file", f, NewSourceOptions().SetDataCallback(func() error {
		n, err := f.Read(buf)
		got.Write(buf[:n])
		if err == io.EOF || n < len(buf) {
			// a regular file never hangs up
			return m.Forget(f)
		}
		return err
	})))

	active, err := m.Run()
	require.NoError(t, err)
	assert.False(t, active)
	assert.Equal(t, content, got.String())
}

func TestClose(t *testing.T) {
	p := newScriptPoller()
	m := newTestMonitor(t, NewOptions().SetPoller(p))
	r, _, _ := pipeSource(t)
	hung := false
	require.NoError(t, m.Register("a", r, NewSourceOptions().SetHangupCallback(func() error {
		hung = true
		return nil
	})))

	require.NoError(t, m.Close())
	assert.True(t, p.closed)
	assert.Equal(t, 0, m.Count())
	assert.False(t, hung)
	_, err := r.Read(make([]byte, 1))
	assert.ErrorIs(t, err, os.ErrClosed)
}

func TestFDSource(t *testing.T) {
	var fds [2]int
	require.NoError(t, unix.Pipe(fds[:]))

	src := FD(fds[0])
	assert.Equal(t, uintptr(fds[0]), src.Fd())

	_, err := unix.Write(fds[1], []byte("abc"))
	require.NoError(t, err)
	buf := make([]byte, 8)
	n, err := src.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "abc", string(buf[:n]))

	require.NoError(t, unix.Close(fds[1]))
	_, err = src.Read(buf)
	assert.ErrorIs(t, err, io.EOF)
	require.NoError(t, src.Close())
}
