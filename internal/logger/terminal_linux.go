//go:build linux

package logger

import (
	"syscall"
	"unsafe"
)

const ioctlTCGETS = 0x5401

// isTerminal reports whether fd refers to a terminal. On Linux the
// TCGETS ioctl succeeds only for tty descriptors.
func isTerminal(fd uintptr) bool {
	var termios syscall.Termios
	_, _, err := syscall.Syscall6(syscall.SYS_IOCTL, fd, ioctlTCGETS,
		uintptr(unsafe.Pointer(&termios)), 0, 0, 0)
	return err == 0
}
