//go:build unix

package dispatch

import (
	"fmt"
	"os"
	"syscall"

	"golang.org/x/sys/unix"
)

// dupDescriptor returns a non-blocking duplicate of fd wrapped in an os.File,
// so the runtime poller can wait on it and closing it never touches the
// daemon's own descriptor.
func dupDescriptor(fd int, name string) (*os.File, error) {
	nfd, err := unix.Dup(fd)
	if err != nil {
		return nil, fmt.Errorf("dup descriptor: %w", err)
	}
	if err := unix.SetNonblock(nfd, true); err != nil {
		_ = unix.Close(nfd)
		return nil, fmt.Errorf("set nonblock: %w", err)
	}
	return os.NewFile(uintptr(nfd), name), nil
}

// waitReadable blocks until the descriptor behind f has data or a hangup.
// It returns an error once f is closed.
func waitReadable(f *os.File) error {
	rc, err := f.SyscallConn()
	if err != nil {
		return err
	}
	var perr error
	err = rc.Read(func(fd uintptr) bool {
		ready, err := pollReadable(int(fd))
		if err != nil {
			perr = err
			return true
		}
		return ready
	})
	if err != nil {
		return err
	}
	return perr
}

// pollReadable checks readiness without blocking.
func pollReadable(fd int) (bool, error) {
	fds := []unix.PollFd{{Fd: int32(fd), Events: unix.POLLIN}}
	for {
		n, err := unix.Poll(fds, 0)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return false, err
		}
		if n == 0 {
			return false, nil
		}
		if fds[0].Revents&unix.POLLNVAL != 0 {
			return false, syscall.EBADF
		}
		return fds[0].Revents&(unix.POLLIN|unix.POLLHUP|unix.POLLERR) != 0, nil
	}
}
