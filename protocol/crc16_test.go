package protocol

import "testing"

func TestCRC16(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want uint16
	}{
		{"empty", nil, 0xFFFF},
		{"check value", []byte("123456789"), 0x6F91},
		{"ack header", []byte{MessageLengthMin, MessageDest}, 0x9E81},
		{"single byte", []byte{0x01}, 0x1E0E},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CRC16(tt.data); got != tt.want {
				t.Errorf("CRC16(% x) = %#04x, want %#04x", tt.data, got, tt.want)
			}
		})
	}
}
