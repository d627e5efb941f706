package serial

import "github.com/flashkit/stm8boot/internal/config"

// Parity selects the per-character parity bit.
type Parity int

const (
	ParityNone Parity = iota
	ParityOdd
	ParityEven
)

// StopBits selects the number of stop bits per character.
type StopBits int

const (
	Stop1 StopBits = iota
	Stop1Half
	Stop2
)

// Attrs is the value record describing a port's line configuration.
// SetAttrs(a) followed by GetAttrs() must return a value equal to a,
// within whatever the OS actually supports (see spec.md §3).
type Attrs struct {
	BaudRate  uint32
	TimeoutMS uint32 // total read timeout; 0 means "poll, don't wait"
	DataBits  int    // 7 or 8
	Parity    Parity
	StopBits  StopBits
	RTS       bool
	DTR       bool
}

// SupportedBaudRates lists the rates spec.md §6 requires; an OS may accept
// higher rates but they are not required to work.
var SupportedBaudRates = []uint32{4800, 9600, 14400, 19200, 28800, 38400, 57600, 115200}

// IsSupportedBaudRate reports whether b is one of the required rates.
func IsSupportedBaudRate(b uint32) bool {
	for _, r := range SupportedBaudRates {
		if r == b {
			return true
		}
	}
	return false
}

// Default returns the conservative 8-N-1, no-flow-control attrs the STM8
// bootloader expects, at the baud rate and total read timeout named in
// defaults. Passing the zero config.Defaults{} falls back to
// config.Load(nil)'s compiled-in values, the same fallback bootloader.New
// uses, so neither package hardcodes its own copy of "the default timeout".
func Default(defaults config.Defaults) Attrs {
	if defaults == (config.Defaults{}) {
		defaults, _ = config.Load(nil)
	}
	return Attrs{
		BaudRate:  defaults.BaudRate,
		TimeoutMS: defaults.TimeoutMS,
		DataBits:  8,
		Parity:    ParityNone,
		StopBits:  Stop1,
	}
}
