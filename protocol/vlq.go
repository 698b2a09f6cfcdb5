package protocol

import "errors"

var (
	ErrInvalidVLQ     = errors.New("invalid VLQ encoding")
	ErrBufferTooSmall = errors.New("buffer too small for VLQ")
)

// maxVLQLen is the longest encoding of a 32-bit value.
const maxVLQLen = 5

// AppendVLQInt appends v in seven bit groups, most significant first.
// Values in [-32, 96) take a single byte.
func AppendVLQInt(dst []byte, v int32) []byte {
	for shift := 28; shift >= 7; shift -= 7 {
		bound := int32(1) << (shift - 2)
		if v < -bound || v >= 3*bound {
			dst = append(dst, byte(v>>shift)&0x7F|0x80)
		}
	}
	return append(dst, byte(v)&0x7F)
}

// EncodeVLQInt writes one signed value.
func EncodeVLQInt(output OutputBuffer, v int32) {
	var buf [maxVLQLen]byte
	output.Output(AppendVLQInt(buf[:0], v))
}

// EncodeVLQUint writes one unsigned value. It shares the signed encoding.
func EncodeVLQUint(output OutputBuffer, v uint32) {
	EncodeVLQInt(output, int32(v))
}

// EncodeVLQBytes writes the length of data followed by data.
func EncodeVLQBytes(output OutputBuffer, data []byte) {
	EncodeVLQUint(output, uint32(len(data)))
	output.Output(data)
}

// DecodeVLQInt reads one value and advances data past it. On error data
// is left untouched.
func DecodeVLQInt(data *[]byte) (int32, error) {
	b := *data
	var v uint32
	for i := 0; ; i++ {
		if i == maxVLQLen {
			return 0, ErrInvalidVLQ
		}
		if i == len(b) {
			return 0, ErrBufferTooSmall
		}
		c := b[i]
		if i == 0 {
			v = uint32(c & 0x7F)
			// sign extend
			if c&0x60 == 0x60 {
				v |= ^uint32(0x1F)
			}
		} else {
			v = v<<7 | uint32(c&0x7F)
		}
		if c&0x80 == 0 {
			*data = b[i+1:]
			return int32(v), nil
		}
	}
}

// DecodeVLQUint reads one unsigned value.
func DecodeVLQUint(data *[]byte) (uint32, error) {
	v, err := DecodeVLQInt(data)
	return uint32(v), err
}

// DecodeVLQBytes reads a length prefixed byte string. The result aliases
// data.
func DecodeVLQBytes(data *[]byte) ([]byte, error) {
	rest := *data
	n, err := DecodeVLQUint(&rest)
	if err != nil {
		return nil, err
	}
	if uint32(len(rest)) < n {
		return nil, ErrBufferTooSmall
	}
	*data = rest[n:]
	return rest[:n], nil
}
