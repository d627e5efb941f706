package serial

import (
	"errors"
	"testing"
)

func TestErrorUnwrap(t *testing.T) {
	inner := errors.New("device gone")
	e := newError(CodeOpenFailed, "open /dev/ttyUSB0", inner)
	if !errors.Is(e, inner) {
		t.Errorf("errors.Is(e, inner) = false, want true")
	}
	var asErr Error
	if !errors.As(e, &asErr) || asErr.Code != CodeOpenFailed {
		t.Errorf("errors.As(e, &Error{}) code = %v, want %v", asErr.Code, CodeOpenFailed)
	}
}

func TestErrNotOpenCode(t *testing.T) {
	if ErrNotOpen.Code != CodeNotOpen {
		t.Errorf("ErrNotOpen.Code = %v, want %v", ErrNotOpen.Code, CodeNotOpen)
	}
}
