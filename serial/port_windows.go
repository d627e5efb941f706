//go:build windows

package serial

import (
	"fmt"
	"sync/atomic"
	"syscall"
	"unsafe"
)

// Port is an open STM8-bootloader-capable serial line on Windows. It is
// backed by a CreateFile handle configured through a DCB (the Windows
// analogue of termios) and a COMMTIMEOUTS struct — the same approach the
// Arduino/avr-style Go serial libraries use (MSDN "Serial Communications"
// plus the classic Arduino-Playground Windows serial recipe).
type Port struct {
	handle    syscall.Handle
	closed    atomic.Bool
	timeoutMS uint32
}

var (
	modkernel32         = syscall.NewLazyDLL("kernel32.dll")
	procGetCommState    = modkernel32.NewProc("GetCommState")
	procSetCommState    = modkernel32.NewProc("SetCommState")
	procSetCommTimeouts = modkernel32.NewProc("SetCommTimeouts")
	procPurgeComm       = modkernel32.NewProc("PurgeComm")
)

// DCB mirrors the Win32 _DCB struct (see MSDN). Flags is the packed
// bitfield: fBinary:1 fParity:1 fOutxCtsFlow:1 fOutxDsrFlow:1
// fDtrControl:2 fDsrSensitivity:1 fTXContinueOnXoff:1 fOutX:1 fInX:1
// fErrorChar:1 fNull:1 fRtsControl:2 fAbortOnError:1 fDummy2:17.
type DCB struct {
	DCBlength  uint32
	BaudRate   uint32
	Flags      uint32
	wReserved  uint16
	XonLim     uint16
	XoffLim    uint16
	ByteSize   byte
	Parity     byte
	StopBits   byte
	XonChar    byte
	XoffChar   byte
	ErrorChar  byte
	EofChar    byte
	EvtChar    byte
	wReserved1 uint16
}

// commTimeouts mirrors the Win32 COMMTIMEOUTS struct.
type commTimeouts struct {
	ReadIntervalTimeout         uint32
	ReadTotalTimeoutMultiplier  uint32
	ReadTotalTimeoutConstant    uint32
	WriteTotalTimeoutMultiplier uint32
	WriteTotalTimeoutConstant   uint32
}

const (
	dcbBinary         = 0x00000001
	dcbParity         = 0x00000002
	dcbOutXCTSFlow    = 0x00000004
	dcbOutXDSRFlow    = 0x00000008
	dcbDTRControlMask = 0x00000030
	dcbDTRControlOn   = 0x00000010
	dcbDSRSensitivity = 0x00000040
	dcbOutX           = 0x00000100
	dcbInX            = 0x00000200
	dcbErrorChar      = 0x00000400
	dcbNull           = 0x00000800
	dcbRTSControlMask = 0x00003000
	dcbRTSControlOn   = 0x00001000
	dcbAbortOnError   = 0x00004000
)

const (
	winNoParity   = 0
	winOddParity  = 1
	winEvenParity = 2
)

const (
	winOneStopBit  = 0
	winOne5StopBit = 1
	winTwoStopBits = 2
)

const (
	purgeTXAbort = 0x0001
	purgeRXAbort = 0x0002
	purgeTXClear = 0x0004
	purgeRXClear = 0x0008
)

func getCommState(h syscall.Handle, dcb *DCB) error {
	r, _, err := procGetCommState.Call(uintptr(h), uintptr(unsafe.Pointer(dcb)))
	if r == 0 {
		return err
	}
	return nil
}

func setCommState(h syscall.Handle, dcb *DCB) error {
	r, _, err := procSetCommState.Call(uintptr(h), uintptr(unsafe.Pointer(dcb)))
	if r == 0 {
		return err
	}
	return nil
}

func setCommTimeouts(h syscall.Handle, t *commTimeouts) error {
	r, _, err := procSetCommTimeouts.Call(uintptr(h), uintptr(unsafe.Pointer(t)))
	if r == 0 {
		return err
	}
	return nil
}

func purgeComm(h syscall.Handle, flags uint32) error {
	r, _, err := procPurgeComm.Call(uintptr(h), uintptr(flags))
	if r == 0 {
		return err
	}
	return nil
}

// Open opens name (e.g. "COM3") exclusively and applies attrs atomically.
func Open(name string, attrs Attrs) (*Port, error) {
	path, err := syscall.UTF16PtrFromString(`\\.\` + name)
	if err != nil {
		return nil, newError(CodeOpenFailed, "encode port name", err)
	}
	h, err := syscall.CreateFile(
		path,
		syscall.GENERIC_READ|syscall.GENERIC_WRITE,
		0, // exclusive access: no sharing
		nil,
		syscall.OPEN_EXISTING,
		0,
		0,
	)
	if err != nil {
		return nil, newError(CodeOpenFailed, "CreateFile "+name, err)
	}
	p := &Port{handle: h}
	if err := p.SetAttrs(attrs); err != nil {
		syscall.CloseHandle(h)
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

// Close releases the Windows handle. Idempotent.
func (p *Port) Close() error {
	if p.closed.Swap(true) {
		return nil
	}
	if err := syscall.CloseHandle(p.handle); err != nil {
		return newError(CodeCloseFailed, "CloseHandle", err)
	}
	return nil
}

func (p *Port) getDCB() (*DCB, error) {
	dcb := &DCB{}
	if err := getCommState(p.handle, dcb); err != nil {
		return nil, newError(CodeConfigFailed, "GetCommState", err)
	}
	return dcb, nil
}

// GetAttrs reads back the port's current configuration.
func (p *Port) GetAttrs() (Attrs, error) {
	if err := p.checkOpen(); err != nil {
		return Attrs{}, err
	}
	dcb, err := p.getDCB()
	if err != nil {
		return Attrs{}, err
	}
	a := Attrs{
		BaudRate:  dcb.BaudRate,
		TimeoutMS: p.timeoutMS,
		DataBits:  int(dcb.ByteSize),
	}
	switch dcb.StopBits {
	case winOneStopBit:
		a.StopBits = Stop1
	case winOne5StopBit:
		a.StopBits = Stop1Half
	case winTwoStopBits:
		a.StopBits = Stop2
	}
	switch dcb.Parity {
	case winOddParity:
		a.Parity = ParityOdd
	case winEvenParity:
		a.Parity = ParityEven
	default:
		a.Parity = ParityNone
	}
	// Bug-suspect fix (spec.md §9.1): modem-line readback must AND
	// against the DCB control-flag bits, never OR — OR against a
	// non-zero mask is always true and would always report "RTS/DTR
	// high" regardless of the actual configured level.
	a.RTS = dcb.Flags&dcbRTSControlMask == dcbRTSControlOn
	a.DTR = dcb.Flags&dcbDTRControlMask == dcbDTRControlOn
	return a, nil
}

// SetAttrs applies attrs atomically: GetCommState, mutate, SetCommState.
func (p *Port) SetAttrs(attrs Attrs) error {
	if err := p.checkOpen(); err != nil {
		return err
	}
	dcb, err := p.getDCB()
	if err != nil {
		// Some drivers don't report a usable DCB immediately after
		// CreateFile; fall back to building one from scratch.
		dcb = &DCB{}
	}
	dcb.DCBlength = uint32(unsafe.Sizeof(DCB{}))
	if attrs.BaudRate != 0 {
		dcb.BaudRate = attrs.BaudRate
	} else {
		dcb.BaudRate = 9600
	}
	dataBits := attrs.DataBits
	if dataBits == 0 {
		dataBits = 8
	}
	if dataBits != 7 && dataBits != 8 {
		return newError(CodeConfigFailed, fmt.Sprintf("unsupported data bits %d", dataBits), nil)
	}
	dcb.ByteSize = byte(dataBits)

	switch attrs.StopBits {
	case Stop1:
		dcb.StopBits = winOneStopBit
	case Stop1Half:
		dcb.StopBits = winOne5StopBit
	case Stop2:
		dcb.StopBits = winTwoStopBits
	default:
		return newError(CodeConfigFailed, "unsupported stop bits", nil)
	}

	switch attrs.Parity {
	case ParityNone:
		dcb.Parity = winNoParity
	case ParityOdd:
		dcb.Parity = winOddParity
	case ParityEven:
		dcb.Parity = winEvenParity
	default:
		return newError(CodeConfigFailed, "unsupported parity", nil)
	}

	// No flow control, binary mode: clear every handshake bit.
	dcb.Flags = dcbBinary
	if attrs.Parity != ParityNone {
		dcb.Flags |= dcbParity
	}
	dcb.Flags &^= dcbOutXCTSFlow | dcbOutXDSRFlow | dcbDSRSensitivity
	dcb.Flags &^= dcbInX | dcbOutX | dcbErrorChar | dcbNull | dcbAbortOnError
	dcb.Flags &^= dcbRTSControlMask
	dcb.Flags &^= dcbDTRControlMask
	if attrs.RTS {
		dcb.Flags |= dcbRTSControlOn
	}
	if attrs.DTR {
		dcb.Flags |= dcbDTRControlOn
	}
	dcb.XonLim = 2048
	dcb.XoffLim = 512

	if err := setCommState(p.handle, dcb); err != nil {
		return newError(CodeConfigFailed, "SetCommState", err)
	}
	p.timeoutMS = attrs.TimeoutMS
	if err := p.applyTimeouts(); err != nil {
		return err
	}
	return nil
}

func (p *Port) applyTimeouts() error {
	// ReadTotalTimeoutConstant alone gives a true total timeout for the
	// whole ReadFile call — the COMMTIMEOUTS analogue of the
	// select-loop used on the POSIX side.
	t := &commTimeouts{ReadTotalTimeoutConstant: p.timeoutMS}
	if p.timeoutMS == 0 {
		t.ReadIntervalTimeout = 0xFFFFFFFF
	}
	if err := setCommTimeouts(p.handle, t); err != nil {
		return newError(CodeConfigFailed, "SetCommTimeouts", err)
	}
	return nil
}

// SetBaud changes only the baud rate, preserving every other attribute.
func (p *Port) SetBaud(baud uint32) error {
	if err := p.checkOpen(); err != nil {
		return err
	}
	dcb, err := p.getDCB()
	if err != nil {
		return err
	}
	dcb.BaudRate = baud
	if err := setCommState(p.handle, dcb); err != nil {
		return newError(CodeConfigFailed, "SetCommState", err)
	}
	return nil
}

// SetTimeout changes the total read timeout used by Receive.
func (p *Port) SetTimeout(timeoutMS uint32) error {
	if err := p.checkOpen(); err != nil {
		return err
	}
	p.timeoutMS = timeoutMS
	return p.applyTimeouts()
}

// Timeout returns the currently configured total read timeout, in
// milliseconds.
func (p *Port) Timeout() uint32 {
	return p.timeoutMS
}

// Send writes data and returns the number of bytes the OS accepted.
func (p *Port) Send(data []byte) (int, error) {
	if err := p.checkOpen(); err != nil {
		return 0, err
	}
	var written uint32
	err := syscall.WriteFile(p.handle, data, &written, nil)
	if err != nil {
		return int(written), newError(CodeSendShort, "WriteFile", err)
	}
	return int(written), nil
}

// Receive reads up to n bytes, relying on the COMMTIMEOUTS total-timeout
// configuration applied by SetAttrs/SetTimeout.
func (p *Port) Receive(n int) ([]byte, error) {
	if err := p.checkOpen(); err != nil {
		return nil, err
	}
	buf := make([]byte, n)
	var read uint32
	if err := syscall.ReadFile(p.handle, buf, &read, nil); err != nil {
		return nil, newError(CodeNotOpen, "ReadFile", err)
	}
	return buf[:read], nil
}

// Flush discards both input and output buffered data.
func (p *Port) Flush() error {
	if err := p.checkOpen(); err != nil {
		return err
	}
	if err := purgeComm(p.handle, purgeRXClear|purgeTXClear); err != nil {
		return newError(CodeConfigFailed, "PurgeComm", err)
	}
	return nil
}

// ListPorts probes COM1..COM255 by attempting an exclusive open, per
// spec.md §4.1. Returning an empty slice is not an error.
func ListPorts() []string {
	var out []string
	for i := 1; i <= 255; i++ {
		name := fmt.Sprintf("COM%d", i)
		path, err := syscall.UTF16PtrFromString(`\\.\` + name)
		if err != nil {
			continue
		}
		h, err := syscall.CreateFile(
			path,
			syscall.GENERIC_READ|syscall.GENERIC_WRITE,
			0, nil,
			syscall.OPEN_EXISTING,
			0, 0,
		)
		if err != nil {
			continue
		}
		syscall.CloseHandle(h)
		out = append(out, name)
	}
	return out
}
