package serial

import (
	ioctl "github.com/daedaluz/goioctl"
	"unsafe"
)

// ioctl request codes this package actually issues. Trimmed from the
// fuller termios/ioctl surface (RS485, PTY, process-group, window-size
// control) that a general-purpose tty library exposes but that a flash
// programmer's serial transport never touches.
var (
	tcgets2 = ioctl.IOR('T', 0x2A, unsafe.Sizeof(Termios2{}))
	tcsets2 = ioctl.IOW('T', 0x2B, unsafe.Sizeof(Termios2{}))

	tcflsh = uintptr(0x540B)

	tiocmget = uintptr(0x5415) // get status
	tiocmbis = uintptr(0x5416) // set indicated bits
	tiocmbic = uintptr(0x5417) // clear indicated bits

	tiocexcl = uintptr(0x540C)
)
