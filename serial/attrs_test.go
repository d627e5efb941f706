package serial

import (
	"testing"

	"github.com/flashkit/stm8boot/internal/config"
)

func TestIsSupportedBaudRate(t *testing.T) {
	for _, b := range SupportedBaudRates {
		if !IsSupportedBaudRate(b) {
			t.Errorf("IsSupportedBaudRate(%d) = false, want true", b)
		}
	}
	for _, b := range []uint32{0, 1200, 300, 1000000} {
		if IsSupportedBaudRate(b) {
			t.Errorf("IsSupportedBaudRate(%d) = true, want false", b)
		}
	}
}

func TestDefault(t *testing.T) {
	a := Default(config.Defaults{BaudRate: 115200, TimeoutMS: 1000})
	if a.BaudRate != 115200 || a.TimeoutMS != 1000 {
		t.Fatalf("Default(...) = %+v, want BaudRate=115200 TimeoutMS=1000", a)
	}
	if a.DataBits != 8 || a.Parity != ParityNone || a.StopBits != Stop1 {
		t.Errorf("Default(...) line discipline = %+v, want 8-N-1", a)
	}
	if a.RTS || a.DTR {
		t.Errorf("Default(...) RTS/DTR = %v/%v, want false/false", a.RTS, a.DTR)
	}
}

func TestDefaultZeroFallsBackToCompiledDefaults(t *testing.T) {
	want, _ := config.Load(nil)
	a := Default(config.Defaults{})
	if a.BaudRate != want.BaudRate || a.TimeoutMS != want.TimeoutMS {
		t.Errorf("Default(zero) = %+v, want baud/timeout from config.Load(nil) = %+v", a, want)
	}
}
