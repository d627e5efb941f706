package serial

import (
	"os"
	"regexp"
	"sync/atomic"
	"syscall"
	"time"
	"unsafe"

	"github.com/daedaluz/fdev/poll"
	ioctl "github.com/daedaluz/goioctl"
)

// Port is an open STM8-bootloader-capable serial line on Linux. It is
// backed by a raw file descriptor configured via TCGETS2/TCSETS2 so that
// arbitrary baud rates (not just the fixed Bxxxx set) can be requested.
type Port struct {
	fd        int
	closed    atomic.Bool
	timeoutMS uint32
}

// Open opens name exclusively and applies attrs atomically, as required
// by spec.md §4.1.
func Open(name string, attrs Attrs) (*Port, error) {
	fd, err := syscall.Open(name, syscall.O_RDWR|syscall.O_NOCTTY|syscall.O_NONBLOCK, 0)
	if err != nil {
		return nil, newError(CodeOpenFailed, "open "+name, err)
	}
	// Clear O_NONBLOCK: reads are governed entirely by our own
	// select-loop timeout, not by the open-time flag.
	if err := syscall.SetNonblock(fd, false); err != nil {
		syscall.Close(fd)
		return nil, newError(CodeOpenFailed, "clear nonblock", err)
	}
	if err := ioctl.Ioctl(uintptr(fd), tiocexcl, 0); err != nil {
		syscall.Close(fd)
		return nil, newError(CodeOpenFailed, "exclusive open", err)
	}
	p := &Port{fd: fd}
	if err := p.SetAttrs(attrs); err != nil {
		syscall.Close(fd)
		return nil, err
	}
	return p, nil
}

func (p *Port) checkOpen() error {
	if p.closed.Load() {
		return ErrNotOpen
	}
	return nil
}

// Close releases the underlying file descriptor. Idempotent: closing an
// already-closed Port is a no-op rather than an error.
func (p *Port) Close() error {
	if p.closed.Swap(true) {
		return nil
	}
	if err := syscall.Close(p.fd); err != nil {
		return newError(CodeCloseFailed, "close", err)
	}
	return nil
}

func (p *Port) getTermios2() (*Termios2, error) {
	t := &Termios2{}
	if err := ioctl.Ioctl(uintptr(p.fd), tcgets2, uintptr(unsafe.Pointer(t))); err != nil {
		return nil, newError(CodeConfigFailed, "TCGETS2", err)
	}
	return t, nil
}

func (p *Port) setTermios2(t *Termios2) error {
	if err := ioctl.Ioctl(uintptr(p.fd), tcsets2, uintptr(unsafe.Pointer(t))); err != nil {
		return newError(CodeConfigFailed, "TCSETS2", err)
	}
	return nil
}

// GetAttrs reads back the port's current configuration.
func (p *Port) GetAttrs() (Attrs, error) {
	if err := p.checkOpen(); err != nil {
		return Attrs{}, err
	}
	t, err := p.getTermios2()
	if err != nil {
		return Attrs{}, err
	}
	lines, err := p.modemLines()
	if err != nil {
		return Attrs{}, err
	}
	return attrsFromTermios2(t, lines, p.timeoutMS), nil
}

// SetAttrs applies attrs atomically: the full termios2 structure is built
// up in memory and committed with a single TCSETS2 call.
func (p *Port) SetAttrs(attrs Attrs) error {
	if err := p.checkOpen(); err != nil {
		return err
	}
	t, err := termios2FromAttrs(attrs)
	if err != nil {
		return err
	}

	if err := p.setTermios2(t); err != nil {
		return err
	}
	p.timeoutMS = attrs.TimeoutMS

	if err := p.setModemLine(tiocmRTS, attrs.RTS); err != nil {
		return err
	}
	if err := p.setModemLine(tiocmDTR, attrs.DTR); err != nil {
		return err
	}
	return nil
}

// SetBaud changes only the baud rate, preserving every other attribute.
func (p *Port) SetBaud(baud uint32) error {
	if err := p.checkOpen(); err != nil {
		return err
	}
	t, err := p.getTermios2()
	if err != nil {
		return err
	}
	t.Cflag |= BOTHER
	t.ISpeed = baud
	t.OSpeed = baud
	return p.setTermios2(t)
}

// SetTimeout changes the total read timeout used by Receive.
func (p *Port) SetTimeout(timeoutMS uint32) error {
	if err := p.checkOpen(); err != nil {
		return err
	}
	p.timeoutMS = timeoutMS
	return nil
}

// Timeout returns the currently configured total read timeout, in
// milliseconds.
func (p *Port) Timeout() uint32 {
	return p.timeoutMS
}

// Send writes data and returns the number of bytes the OS accepted. It
// never retries a short write — spec.md §4.1 leaves that to the caller.
func (p *Port) Send(data []byte) (int, error) {
	if err := p.checkOpen(); err != nil {
		return 0, err
	}
	n, err := syscall.Write(p.fd, data)
	if err != nil {
		return n, newError(CodeSendShort, "write", err)
	}
	return n, nil
}

// Receive reads up to n bytes, blocking for at most the port's configured
// total timeout. It returns fewer than n bytes only when that timeout
// expires; a TimeoutMS of 0 means "return immediately with whatever is
// already buffered".
//
// The classic termios VMIN/VTIME pair cannot express "wait up to T total,
// however many bytes trickle in" — VTIME restarts on every received byte.
// Instead this loops a select-style wait (fdev/poll.WaitInput) with a
// shrinking deadline around blocking reads, which is the POSIX idiom
// spec.md §4.1 calls for.
func (p *Port) Receive(n int) ([]byte, error) {
	if err := p.checkOpen(); err != nil {
		return nil, err
	}
	out := make([]byte, 0, n)
	deadline := time.Now().Add(time.Duration(p.timeoutMS) * time.Millisecond)
	for len(out) < n {
		var remaining time.Duration
		if p.timeoutMS == 0 {
			remaining = 0
		} else {
			remaining = time.Until(deadline)
			if remaining <= 0 {
				break
			}
		}
		if err := poll.WaitInput(p.fd, remaining); err != nil {
			// No data became ready within the remaining window: this
			// is the documented "fewer than n on timeout" case, not
			// a transport error.
			break
		}
		buf := make([]byte, n-len(out))
		r, err := syscall.Read(p.fd, buf)
		if err != nil {
			return out, newError(CodeNotOpen, "read", err)
		}
		if r == 0 {
			break
		}
		out = append(out, buf[:r]...)
		if p.timeoutMS == 0 {
			break
		}
	}
	return out, nil
}

// Flush discards both input and output buffered data.
func (p *Port) Flush() error {
	if err := p.checkOpen(); err != nil {
		return err
	}
	const tcioflush = 2
	return ioctl.Ioctl(uintptr(p.fd), tcflsh, tcioflush)
}

func (p *Port) modemLines() (ModemLine, error) {
	var lines ModemLine
	if err := ioctl.Ioctl(uintptr(p.fd), tiocmget, uintptr(unsafe.Pointer(&lines))); err != nil {
		return 0, newError(CodeConfigFailed, "TIOCMGET", err)
	}
	return lines, nil
}

func (p *Port) setModemLine(line ModemLine, on bool) error {
	req := tiocmbic
	if on {
		req = tiocmbis
	}
	l := line
	if err := ioctl.Ioctl(uintptr(p.fd), req, uintptr(unsafe.Pointer(&l))); err != nil {
		return newError(CodeConfigFailed, "TIOCMBIS/BIC", err)
	}
	return nil
}

// usbSerialNamePattern matches the device names POSIX systems use for
// FTDI and Prolific USB-serial adapters.
var usbSerialNamePattern = regexp.MustCompile(`^(ttyUSB|ttyACM|cu\.usbserial|cu\.usbmodem|cu\.SLAB_USBtoUART)`)

// ListPorts performs the best-effort enumeration spec.md §4.1 calls for.
// Returning an empty slice is not an error.
func ListPorts() []string {
	entries, err := os.ReadDir("/dev")
	if err != nil {
		return nil
	}
	var out []string
	for _, e := range entries {
		if usbSerialNamePattern.MatchString(e.Name()) {
			out = append(out, "/dev/"+e.Name())
		}
	}
	return out
}
