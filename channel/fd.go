package channel

import (
	"fmt"
	"syscall"
)

// socketFD extracts the raw file descriptor backing a net.Conn/net.Listener
// so it can be registered directly with a reactor.Reactor. The descriptor
// returned must not be closed independently of conn; conn continues to
// own it.
func socketFD(conn syscall.Conn) (uintptr, error) {
	raw, err := conn.SyscallConn()
	if err != nil {
		return 0, fmt.Errorf("channel: SyscallConn: %w", err)
	}
	var fd uintptr
	var ctrlErr error
	err = raw.Control(func(f uintptr) {
		fd = f
	})
	if err != nil {
		ctrlErr = err
	}
	if ctrlErr != nil {
		return 0, fmt.Errorf("channel: raw control: %w", ctrlErr)
	}
	return fd, nil
}
