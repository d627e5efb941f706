package serial

import "fmt"

// attrsFromTermios2 translates a termios2 structure and the current modem
// control lines into the platform-independent Attrs record. It is pure so
// the AND-not-OR bug-suspect fix (spec.md §9.1) can be verified against
// synthetic bit patterns without a real TCGETS2/TIOCMGET ioctl.
func attrsFromTermios2(t *Termios2, lines ModemLine, timeoutMS uint32) Attrs {
	a := Attrs{
		BaudRate:  t.ISpeed,
		TimeoutMS: timeoutMS,
	}
	// Bug-suspect fix (spec.md §9.1): the data-bits and stop-bits
	// readback must use bitwise AND against CSIZE/CSTOPB, never OR —
	// OR against a non-zero mask is always true and would always
	// report "2 stop bits".
	if t.Cflag&CSIZE == CS7 {
		a.DataBits = 7
	} else {
		a.DataBits = 8
	}
	if t.Cflag&CSTOPB != 0 {
		a.StopBits = Stop2
	} else {
		a.StopBits = Stop1
	}
	switch {
	case t.Cflag&PARENB == 0:
		a.Parity = ParityNone
	case t.Cflag&PARODD != 0:
		a.Parity = ParityOdd
	default:
		a.Parity = ParityEven
	}
	// Bug-suspect fix (spec.md §9.1): RTS/DTR readback must AND
	// against the modem-control bit, not OR — OR is always truthy
	// and would always report "RTS/DTR = 1".
	a.RTS = lines&tiocmRTS != 0
	a.DTR = lines&tiocmDTR != 0
	return a
}

// termios2FromAttrs builds the termios2 structure SetAttrs commits with a
// single TCSETS2 call. It is pure so the CSIZE-clear-before-CS7/CS8 fix
// (spec.md §9.2) can be verified without a real ioctl; modem-control lines
// are not part of termios2 and are applied separately by the caller.
func termios2FromAttrs(attrs Attrs) (*Termios2, error) {
	t := &Termios2{
		Cflag: CLOCAL | CREAD | BOTHER,
	}
	// Raw mode (spec.md §4.1): no canonical input, no echo, no signal
	// generation, no output post-processing, no software flow control.
	t.Iflag &^= IGNBRK | BRKINT | PARMRK | ISTRIP | INLCR | IGNCR | ICRNL | IXON | IXOFF
	t.Oflag &^= OPOST
	t.Lflag &^= ICANON | ECHO | ECHONL | ISIG | IEXTEN

	// Bug-suspect fix (spec.md §9.2): always clear the character-size
	// field before setting exactly one of CS7/CS8 — the teacher's
	// numBits==7 branch set CS7 without first clearing CSIZE on that
	// path, leaving stray bits from a previous configuration in place.
	t.Cflag &^= CSIZE
	switch attrs.DataBits {
	case 7:
		t.Cflag |= CS7
	case 0, 8:
		t.Cflag |= CS8
	default:
		return nil, newError(CodeConfigFailed, fmt.Sprintf("unsupported data bits %d", attrs.DataBits), nil)
	}

	switch attrs.StopBits {
	case Stop1, Stop1Half:
		// Stop1Half has no POSIX termios representation; treat as 1.
	case Stop2:
		t.Cflag |= CSTOPB
	default:
		return nil, newError(CodeConfigFailed, "unsupported stop bits", nil)
	}

	switch attrs.Parity {
	case ParityNone:
	case ParityOdd:
		t.Cflag |= PARENB | PARODD
	case ParityEven:
		t.Cflag |= PARENB
	default:
		return nil, newError(CodeConfigFailed, "unsupported parity", nil)
	}

	t.Cc[vmin] = 0
	t.Cc[vtime] = 0

	if attrs.BaudRate != 0 {
		t.ISpeed = attrs.BaudRate
		t.OSpeed = attrs.BaudRate
	}
	return t, nil
}
