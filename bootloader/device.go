package bootloader

import "fmt"

// DeviceProfile is the value record getInfo produces: the target's flash
// density and bootloader version, per spec.md §3. It is derived from memory
// probes and a GET response and is never persisted by the engine.
type DeviceProfile struct {
	FlashSizeKB int
	BSLVersion  byte
}

// String renders the profile for log lines; bsl_version's upper nibble is
// the major version, the lower nibble the minor.
func (p DeviceProfile) String() string {
	return fmt.Sprintf("flash=%dKB bsl=%d.%d", p.FlashSizeKB, p.BSLVersion>>4, p.BSLVersion&0x0F)
}
