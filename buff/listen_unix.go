//go:build linux || darwin || freebsd || netbsd || openbsd || dragonfly

package buff

import (
	"errors"
	"syscall"

	"golang.org/x/sys/unix"
)

func reusePortControl(_, _ string, c syscall.RawConn) error {
	var serr error
	if err := c.Control(func(fd uintptr) {
		serr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEPORT, 1)
	}); err != nil {
		return err
	}
	return serr
}

// isTemporaryAccept reports accept failures that clear up on their own,
// such as running out of file descriptors.
func isTemporaryAccept(err error) bool {
	return errors.Is(err, unix.EMFILE) || errors.Is(err, unix.ENFILE) ||
		errors.Is(err, unix.ECONNABORTED) || errors.Is(err, unix.ENOBUFS)
}
