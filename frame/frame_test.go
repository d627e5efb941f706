package frame

import "testing"

func TestCommandComplement(t *testing.T) {
	for b := 0; b < 256; b++ {
		f := Command(byte(b))
		if len(f) != 2 {
			t.Fatalf("Command(%#x): want 2 bytes, got %d", b, len(f))
		}
		if f[1] != byte(b)^0xFF {
			t.Errorf("Command(%#x)[1] = %#x, want %#x", b, f[1], byte(b)^0xFF)
		}
	}
}

func TestEncodeAddr(t *testing.T) {
	cases := []uint32{0, 1, 0x8000, 0x027FFF, 0xFFFFFFFF}
	for _, a := range cases {
		got := EncodeAddr(a)
		if len(got) != 5 {
			t.Fatalf("EncodeAddr(%#x): want 5 bytes, got %d", a, len(got))
		}
		want := []byte{byte(a >> 24), byte(a >> 16), byte(a >> 8), byte(a)}
		for i, b := range want {
			if got[i] != b {
				t.Errorf("EncodeAddr(%#x)[%d] = %#x, want %#x", a, i, got[i], b)
			}
		}
		if got[4] != Checksum(want) {
			t.Errorf("EncodeAddr(%#x) checksum = %#x, want %#x", a, got[4], Checksum(want))
		}
	}
}

func TestEncodeLen(t *testing.T) {
	for n := 1; n <= 256; n++ {
		b, err := EncodeLen(n)
		if err != nil {
			t.Fatalf("EncodeLen(%d): unexpected error %v", n, err)
		}
		if int(b)+1 != n {
			t.Errorf("EncodeLen(%d) = %d, want %d", n, b, n-1)
		}
	}
	for _, n := range []int{0, -1, 257, 1000} {
		if _, err := EncodeLen(n); err == nil {
			t.Errorf("EncodeLen(%d): want error, got nil", n)
		}
	}
}

func TestPayloadWithLen(t *testing.T) {
	data := []byte{0x12, 0x34}
	got, err := PayloadWithLen(data)
	if err != nil {
		t.Fatalf("PayloadWithLen: unexpected error %v", err)
	}
	want := []byte{0x01, 0x12, 0x34, 0x27}
	if len(got) != len(want) {
		t.Fatalf("PayloadWithLen(%v) = %v, want %v", data, got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("PayloadWithLen(%v)[%d] = %#x, want %#x", data, i, got[i], want[i])
		}
	}
}

func TestPayloadWithLenRejectsOverlong(t *testing.T) {
	if _, err := PayloadWithLen(make([]byte, 257)); err == nil {
		t.Error("PayloadWithLen(257 bytes): want error, got nil")
	}
}

func TestChecksumFold(t *testing.T) {
	data := []byte{0xAA, 0xBB, 0xCC, 0xDD}
	var want byte
	for _, b := range data {
		want ^= b
	}
	if got := Checksum(data); got != want {
		t.Errorf("Checksum(%v) = %#x, want %#x", data, got, want)
	}
}
