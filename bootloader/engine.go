// Package bootloader implements the STM8 UART bootloader (AN3155) protocol
// engine: synchronisation, device identification, and chunked memory
// read/write/erase/jump transactions over a serial.Port.
package bootloader

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/flashkit/stm8boot/frame"
	"github.com/flashkit/stm8boot/internal/config"
)

// Chunk sizes and progress cadence are fixed by the wire protocol itself
// (spec.md §4.3.4/§4.3.6), not configurable defaults, so they stay as
// package constants rather than config.Defaults fields.
const (
	readChunkMax  = 256
	writeChunkMax = 128

	readProgressEvery  = 2 * 1024
	writeProgressEvery = 1 * 1024
)

// ProgressFunc is invoked with the running byte count and the total
// transfer size during MemRead/MemWrite. It is nil-safe: the engine checks
// for nil before every call, so a caller that does not care about progress
// simply never sets one.
type ProgressFunc func(done, total int)

// transport is the slice of *serial.Port the engine actually depends on.
// Declaring it as an interface (rather than importing the serial package
// directly) lets tests drive the engine against a scripted mock instead of
// a real OS serial line, matching the connection.Connection seam
// FoenixMgrGo's DebugPort uses for the same reason.
type transport interface {
	Send(data []byte) (int, error)
	Receive(n int) ([]byte, error)
	Flush() error
	Timeout() uint32
	SetTimeout(timeoutMS uint32) error
}

// Engine is the protocol state machine described in spec.md §4.3. It is
// implicitly stateless between public calls: each method is a complete,
// self-contained transaction over the port. An Engine is not safe for
// concurrent use by multiple goroutines, matching the single-owner port
// handle it wraps.
type Engine struct {
	port     transport
	log      *logrus.Entry
	progress ProgressFunc
	defaults config.Defaults

	profile     DeviceProfile
	haveProfile bool
}

// New wraps port in a protocol engine. port is typically a *serial.Port,
// but any type implementing Send/Receive/Flush/Timeout/SetTimeout works —
// this is how tests substitute a scripted mock target. defaults supplies
// sync attempt/retry counts and probe/flash timeouts; passing the zero
// config.Defaults{} falls back to config.Load(nil)'s compiled-in values, so
// callers that don't care about tuning these can ignore the parameter. log
// may be nil, in which case a standard logrus logger at InfoLevel is used.
func New(port transport, defaults config.Defaults, log *logrus.Entry) *Engine {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	if defaults == (config.Defaults{}) {
		defaults, _ = config.Load(nil)
	}
	return &Engine{port: port, log: log, defaults: defaults}
}

// SetProgressFunc installs the callback MemRead/MemWrite report progress
// through. Passing nil disables progress reporting.
func (e *Engine) SetProgressFunc(fn ProgressFunc) {
	e.progress = fn
}

// LastBSLVersion returns the bootloader version from the most recent
// successful GetInfo call, and whether GetInfo has ever succeeded.
func (e *Engine) LastBSLVersion() (byte, bool) {
	if !e.haveProfile {
		return 0, false
	}
	return e.profile.BSLVersion, true
}

func (e *Engine) recvByte(op string) (byte, error) {
	b, err := e.port.Receive(1)
	if err != nil {
		return 0, newError(CodeTimeout, op, err)
	}
	if len(b) != 1 {
		return 0, newError(CodeTimeout, op, nil)
	}
	return b[0], nil
}

func (e *Engine) expectACK(op string) error {
	b, err := e.recvByte(op)
	if err != nil {
		return err
	}
	if b != byte(ACK) {
		return newUnexpectedByte(op, byte(ACK), b)
	}
	return nil
}

func (e *Engine) sendFull(op string, data []byte) error {
	n, err := e.port.Send(data)
	if err != nil {
		return newError(CodeSendShort, op, err)
	}
	if n != len(data) {
		return newError(CodeSendShort, op, nil)
	}
	return nil
}

func (e *Engine) sendCommand(op string, opcode Opcode) error {
	return e.sendFull(op, frame.Command(byte(opcode)))
}

// Sync aligns the target's autobaud detector and confirms it is listening,
// per spec.md §4.3.1. It must be the first transaction on a freshly opened
// port.
func (e *Engine) Sync() error {
	log := e.log.WithField("op", "sync")
	if err := e.port.Flush(); err != nil {
		return newError(CodeConfigFailed, "sync", err)
	}
	retryDelay := time.Duration(e.defaults.SyncRetryDelayMS) * time.Millisecond
	for attempt := 1; attempt <= e.defaults.SyncAttempts; attempt++ {
		if err := e.sendFull("sync", []byte{byte(SYNCH)}); err != nil {
			return err
		}
		b, err := e.port.Receive(1)
		if err != nil {
			return newError(CodeConfigFailed, "sync", err)
		}
		if len(b) == 1 {
			switch b[0] {
			case byte(ACK), byte(NACK):
				log.WithField("attempt", attempt).Debug("synchronised")
				return nil
			default:
				return newSyncFailedByte("sync", b[0])
			}
		}
		log.WithField("attempt", attempt).Debug("no reply, retrying")
		time.Sleep(retryDelay)
	}
	return newError(CodeSyncFailed, "sync", nil)
}

// MemCheck performs the command and address phases of a 1-byte READ to
// determine whether addr is readable, per spec.md §4.3.3; no data is read. A NACK or any non-ACK
// second-phase reply means "not readable" and is reported as (false, nil),
// not an error; a timeout in that phase is still a Timeout error.
func (e *Engine) MemCheck(addr uint32) (bool, error) {
	if err := e.sendCommand("memCheck", READ); err != nil {
		return false, err
	}
	if err := e.expectACK("memCheck:cmd"); err != nil {
		return false, err
	}
	if err := e.sendFull("memCheck", frame.EncodeAddr(addr)); err != nil {
		return false, err
	}
	b, err := e.recvByte("memCheck:addr")
	if err != nil {
		return false, err
	}
	return b == byte(ACK), nil
}

// GetInfo probes the target's flash density and reads its bootloader
// version, per spec.md §4.3.2. The port's read timeout is temporarily
// reduced for the density probes and, once the probes have run, set back
// to its prior value (raised to at least defaults.TimeoutMS) before GetInfo
// returns, success or failure.
func (e *Engine) GetInfo() (DeviceProfile, error) {
	if err := e.port.Flush(); err != nil {
		return DeviceProfile{}, newError(CodeConfigFailed, "getInfo", err)
	}
	// The settle delay has no config field of its own; it reuses
	// SyncRetryDelayMS, since both exist to let the target's UART settle
	// after a flush.
	time.Sleep(time.Duration(e.defaults.SyncRetryDelayMS) * time.Millisecond)

	prevTimeout := e.port.Timeout()
	if err := e.port.SetTimeout(e.defaults.ProbeTimeoutMS); err != nil {
		return DeviceProfile{}, newError(CodeConfigFailed, "getInfo", err)
	}

	var profile DeviceProfile
	found := false
	var probeErr error
	for _, d := range densityProbes {
		ok, err := e.MemCheck(d.topAddr)
		if err != nil {
			probeErr = err
			break
		}
		if ok {
			profile.FlashSizeKB = d.sizeKB
			found = true
			break
		}
	}

	restoreTimeout := prevTimeout
	if restoreTimeout < e.defaults.TimeoutMS {
		restoreTimeout = e.defaults.TimeoutMS
	}
	if err := e.port.SetTimeout(restoreTimeout); err != nil {
		return DeviceProfile{}, newError(CodeConfigFailed, "getInfo", err)
	}

	if probeErr != nil {
		return DeviceProfile{}, probeErr
	}
	if !found {
		return DeviceProfile{}, newError(CodeDeviceNotIdentified, "getInfo", nil)
	}

	if err := e.sendCommand("getInfo:get", GET); err != nil {
		return DeviceProfile{}, err
	}
	resp, err := e.port.Receive(9)
	if err != nil {
		return DeviceProfile{}, newError(CodeTimeout, "getInfo:get", err)
	}
	if len(resp) != 9 {
		return DeviceProfile{}, newError(CodeProtocolViolation, "getInfo:get", nil)
	}
	if resp[0] != byte(ACK) || resp[8] != byte(ACK) {
		return DeviceProfile{}, newError(CodeProtocolViolation, "getInfo:get", nil)
	}
	echoes := []struct {
		got  byte
		want Opcode
	}{
		{resp[3], GET}, {resp[4], READ}, {resp[5], GO}, {resp[6], WRITE}, {resp[7], ERASE},
	}
	for _, ec := range echoes {
		if ec.got != byte(ec.want) {
			return DeviceProfile{}, newError(CodeProtocolViolation, "getInfo:get", nil)
		}
	}
	profile.BSLVersion = resp[2]

	e.profile = profile
	e.haveProfile = true
	e.log.WithField("op", "getInfo").Infof("identified target: %s", profile)
	return profile, nil
}

// MemRead reads n bytes starting at start into out, in chunks of up to 256
// bytes, per spec.md §4.3.4. out must have length >= n.
func (e *Engine) MemRead(start uint32, n int, out []byte) error {
	log := e.log.WithFields(logrus.Fields{"op": "memRead", "addr": start})
	offset := 0
	for offset < n {
		size := n - offset
		if size > readChunkMax {
			size = readChunkMax
		}
		addr := start + uint32(offset)

		if err := e.sendCommand("memRead:cmd", READ); err != nil {
			return err
		}
		if err := e.expectACK("memRead:cmd"); err != nil {
			return err
		}
		if err := e.sendFull("memRead:addr", frame.EncodeAddr(addr)); err != nil {
			return err
		}
		if err := e.expectACK("memRead:addr"); err != nil {
			return err
		}
		lenByte, err := frame.EncodeLen(size)
		if err != nil {
			return newError(CodeProtocolViolation, "memRead:len", err)
		}
		if err := e.sendFull("memRead:len", []byte{lenByte, lenByte ^ 0xFF}); err != nil {
			return err
		}
		resp, err := e.port.Receive(size + 1)
		if err != nil {
			return newError(CodeTimeout, "memRead:data", err)
		}
		if len(resp) != size+1 {
			return newError(CodeTimeout, "memRead:data", nil)
		}
		if resp[0] != byte(ACK) {
			return newUnexpectedByte("memRead:data", byte(ACK), resp[0])
		}
		copy(out[offset:offset+size], resp[1:])

		offset += size
		if e.progress != nil && (offset%readProgressEvery == 0 || offset == n) {
			e.progress(offset, n)
		}
		log.WithField("done", offset).Debug("chunk read")
	}
	return nil
}

// FlashErase erases the single flash sector containing addr, per spec.md
// §4.3.5. Bulk erase is not part of this engine; callers erase
// sector-by-sector.
func (e *Engine) FlashErase(addr uint32) error {
	sector := byte((addr - 0x8000) / 1024)
	if err := e.sendCommand("flashErase:cmd", ERASE); err != nil {
		return err
	}
	if err := e.expectACK("flashErase:cmd"); err != nil {
		return err
	}
	frameBytes := []byte{0x00, sector, 0x00 ^ sector}
	if err := e.sendFull("flashErase:sector", frameBytes); err != nil {
		return err
	}
	if err := e.expectACK("flashErase:sector"); err != nil {
		return err
	}
	e.log.WithFields(logrus.Fields{"op": "flashErase", "addr": addr, "sector": sector}).Info("sector erased")
	return nil
}

// MemWrite writes data to the target starting at start, in chunks of up to
// 128 bytes, per spec.md §4.3.6. verbose controls only progress reporting —
// MemWrite is used both for user-visible flash programming and for silent
// uploads of helper routines to RAM.
func (e *Engine) MemWrite(start uint32, data []byte, verbose bool) error {
	log := e.log.WithFields(logrus.Fields{"op": "memWrite", "addr": start})
	n := len(data)
	offset := 0
	for offset < n {
		size := n - offset
		if size > writeChunkMax {
			size = writeChunkMax
		}
		addr := start + uint32(offset)

		if err := e.sendCommand("memWrite:cmd", WRITE); err != nil {
			return err
		}
		if err := e.expectACK("memWrite:cmd"); err != nil {
			return err
		}
		if err := e.sendFull("memWrite:addr", frame.EncodeAddr(addr)); err != nil {
			return err
		}
		if err := e.expectACK("memWrite:addr"); err != nil {
			return err
		}
		payload, err := frame.PayloadWithLen(data[offset : offset+size])
		if err != nil {
			return newError(CodeProtocolViolation, "memWrite:payload", err)
		}
		if err := e.sendFull("memWrite:payload", payload); err != nil {
			return err
		}
		if err := e.expectACK("memWrite:payload"); err != nil {
			return err
		}

		offset += size
		if verbose && e.progress != nil && (offset%writeProgressEvery == 0 || offset == n) {
			e.progress(offset, n)
		}
		log.WithField("done", offset).Debug("chunk written")
	}
	return nil
}

// JumpTo instructs the target to begin executing at addr, relinquishing
// the bootloader. No further protocol messages are defined on the handle
// until the target re-enters bootloader mode, per spec.md §4.3.7.
func (e *Engine) JumpTo(addr uint32) error {
	if err := e.sendCommand("jumpTo:cmd", GO); err != nil {
		return err
	}
	if err := e.expectACK("jumpTo:cmd"); err != nil {
		return err
	}
	if err := e.sendFull("jumpTo:addr", frame.EncodeAddr(addr)); err != nil {
		return err
	}
	if err := e.expectACK("jumpTo:addr"); err != nil {
		return err
	}
	e.log.WithFields(logrus.Fields{"op": "jumpTo", "addr": addr}).Info("target jumped")
	return nil
}
