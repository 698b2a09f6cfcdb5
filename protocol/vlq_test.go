package protocol

import (
	"bytes"
	"errors"
	"testing"
)

func TestVLQIntRoundTrip(t *testing.T) {
	values := []int32{0, 1, -1, 95, 96, -32, -33, 127, 128, 1000, -1000, 65535, 1000000, -1000000, 1 << 30, -1 << 31, 1<<31 - 1}

	for _, v := range values {
		encoded := AppendVLQInt(nil, v)
		data := encoded
		got, err := DecodeVLQInt(&data)
		if err != nil {
			t.Errorf("DecodeVLQInt(% x): %v", encoded, err)
			continue
		}
		if got != v || len(data) != 0 {
			t.Errorf("round trip of %d = %d, %d bytes left (encoded % x)", v, got, len(data), encoded)
		}
	}
}

func TestVLQKnownEncodings(t *testing.T) {
	tests := []struct {
		v    uint32
		want []byte
	}{
		{0, []byte{0x00}},
		{0x24, []byte{0x24}},
		{95, []byte{0x5F}},
		{96, []byte{0x80, 0x60}},
		{400000, []byte{0x98, 0xB5, 0x00}},
		{0xFFFFFFFF, []byte{0x7F}},
	}
	for _, tt := range tests {
		var p Payload
		EncodeVLQUint(&p, tt.v)
		if !bytes.Equal(p.Bytes(), tt.want) {
			t.Errorf("EncodeVLQUint(%d) = % x, want % x", tt.v, p.Bytes(), tt.want)
		}
	}
}

func TestVLQBytes(t *testing.T) {
	tests := [][]byte{
		{},
		{0xFE},
		{0x01, 0x02, 0x03},
		make([]byte, 50),
	}

	for i, want := range tests {
		var p Payload
		EncodeVLQBytes(&p, want)
		p.Output([]byte{0xAA})

		data := p.Bytes()
		got, err := DecodeVLQBytes(&data)
		if err != nil {
			t.Errorf("case %d: %v", i, err)
			continue
		}
		if !bytes.Equal(got, want) {
			t.Errorf("case %d: got % x, want % x", i, got, want)
		}
		if !bytes.Equal(data, []byte{0xAA}) {
			t.Errorf("case %d: rest = % x", i, data)
		}
	}
}

func TestVLQErrors(t *testing.T) {
	tests := []struct {
		name  string
		data  []byte
		bytes bool
		want  error
	}{
		{"empty", nil, false, ErrBufferTooSmall},
		{"truncated", []byte{0x80}, false, ErrBufferTooSmall},
		{"overlong", []byte{0x81, 0x81, 0x81, 0x81, 0x81, 0x01}, false, ErrInvalidVLQ},
		{"short byte string", []byte{0x05, 0x01}, true, ErrBufferTooSmall},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := tt.data
			var err error
			if tt.bytes {
				_, err = DecodeVLQBytes(&data)
			} else {
				_, err = DecodeVLQInt(&data)
			}
			if !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
			if len(data) != len(tt.data) {
				t.Errorf("data advanced on error: %d bytes left of %d", len(data), len(tt.data))
			}
		})
	}
}
