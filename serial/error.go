package serial

// Code identifies the category of a transport-level failure.
type Code int

const (
	// CodeNotOpen is returned for any operation attempted on a closed
	// handle.
	CodeNotOpen Code = iota
	CodeOpenFailed
	CodeConfigFailed
	CodeCloseFailed
	CodeSendShort
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
	default:
		return "unknown"
	}
}

// Error is the transport's error type. It always carries a Code so callers
// can classify a failure with errors.As without parsing the message text.
type Error struct {
	Code Code
	msg  string
	err  error
}

func newError(code Code, msg string, err error) Error {
	return Error{Code: code, msg: msg, err: err}
}

func (e Error) Error() string {
	msg := e.msg
	if msg == "" {
		msg = e.Code.String()
	}
	if e.err != nil {
		return msg + ": " + e.err.Error()
	}
	return msg
}

func (e Error) Unwrap() error {
	return e.err
}

// ErrNotOpen is returned by every operation on a closed handle.
var ErrNotOpen = newError(CodeNotOpen, "port not open", nil)
