// Package frame implements the stateless framing and checksum primitives
// the STM8 UART bootloader protocol builds every command on: XOR checksums
// and the protocol's "length minus one" wire convention.
package frame

// Checksum returns the XOR of every byte in b.
func Checksum(b []byte) byte {
	var c byte
	for _, v := range b {
		c ^= v
	}
	return c
}

// Command builds a 2-byte command frame for a single opcode: the opcode
// followed by its bitwise complement.
func Command(opcode byte) []byte {
	return []byte{opcode, opcode ^ 0xFF}
}

// EncodeLen translates a transfer size (1..256) to the on-wire length
// byte, which is always one less than the actual count.
func EncodeLen(n int) (byte, error) {
	if n < 1 || n > 256 {
		return 0, ErrLenOutOfRange
	}
	return byte(n - 1), nil
}

// EncodeAddr returns the 5-byte address frame: 4 big-endian bytes
// followed by their XOR checksum.
func EncodeAddr(addr uint32) []byte {
	b := []byte{
		byte(addr >> 24),
		byte(addr >> 16),
		byte(addr >> 8),
		byte(addr),
	}
	return append(b, Checksum(b))
}

// Payload builds a payload frame: the data bytes followed by their XOR
// checksum. Callers that need the N-1 length-prefixed form (memWrite) use
// PayloadWithLen instead.
func Payload(data []byte) []byte {
	return append(append([]byte{}, data...), Checksum(data))
}

// PayloadWithLen builds the length-prefixed payload frame memWrite sends:
// [n-1, data..., checksum] where checksum is the XOR of the length byte
// and every data byte.
func PayloadWithLen(data []byte) ([]byte, error) {
	lenByte, err := EncodeLen(len(data))
	if err != nil {
		return nil, err
	}
	frame := make([]byte, 0, len(data)+2)
	frame = append(frame, lenByte)
	frame = append(frame, data...)
	frame = append(frame, Checksum(frame))
	return frame, nil
}

// ErrLenOutOfRange is returned by EncodeLen/PayloadWithLen when the
// requested transfer size falls outside the protocol's 1..256 range.
var ErrLenOutOfRange = lenRangeError{}

type lenRangeError struct{}

func (lenRangeError) Error() string { return "frame: length must be in range [1, 256]" }
