package bootloader

import "fmt"

// Code identifies the category of a protocol-engine failure, per spec.md
// §7's taxonomy.
type Code int

const (
	CodeNotOpen Code = iota
	CodeOpenFailed
	CodeConfigFailed
	CodeCloseFailed
	CodeSendShort
	CodeTimeout
	CodeUnexpectedByte
	CodeSyncFailed
	CodeDeviceNotIdentified
	CodeProtocolViolation
)

func (c Code) String() string {
	switch c {
	case CodeNotOpen:
		return "not open"
	case CodeOpenFailed:
		return "open failed"
	case CodeConfigFailed:
		return "config failed"
	case CodeCloseFailed:
		return "close failed"
	case CodeSendShort:
		return "short write"
	case CodeTimeout:
		return "timeout"
	case CodeUnexpectedByte:
		return "unexpected byte"
	case CodeSyncFailed:
		return "sync failed"
	case CodeDeviceNotIdentified:
		return "device not identified"
	case CodeProtocolViolation:
		return "protocol violation"
	default:
		return "unknown"
	}
}

// Error is the engine's error type. It always carries a Code so callers can
// classify a failure with errors.As without parsing the message text, and
// wraps an underlying transport error where one exists.
type Error struct {
	Code     Code
	Op       string // the operation in progress, e.g. "sync", "memRead"
	Expected byte
	Got      byte
	haveByte bool
	err      error
}

func newError(code Code, op string, err error) Error {
	return Error{Code: code, Op: op, err: err}
}

// newUnexpectedByte builds an UnexpectedByte error carrying both the byte
// the protocol required and the byte actually received, per spec.md §7.
func newUnexpectedByte(op string, expected, got byte) Error {
	return Error{Code: CodeUnexpectedByte, Op: op, Expected: expected, Got: got, haveByte: true}
}

// newSyncFailedByte builds the SyncFailed variant spec.md §4.3.1 calls for
// when a sync reply arrives but is neither ACK nor NACK: "Any single
// received byte that is neither ACK nor NACK is also SyncFailed with the
// unexpected value surfaced" — this is SyncFailed, not UnexpectedByte.
func newSyncFailedByte(op string, got byte) Error {
	return Error{Code: CodeSyncFailed, Op: op, Got: got, haveByte: true}
}

func (e Error) Error() string {
	msg := e.Op + ": " + e.Code.String()
	if e.haveByte {
		switch e.Code {
		case CodeSyncFailed:
			msg += fmt.Sprintf(" (got 0x%02X, want ACK or NACK)", e.Got)
		default:
			msg += fmt.Sprintf(" (expected 0x%02X, got 0x%02X)", e.Expected, e.Got)
		}
	}
	if e.err != nil {
		msg += ": " + e.err.Error()
	}
	return msg
}

func (e Error) Unwrap() error {
	return e.err
}
