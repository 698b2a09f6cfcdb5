package protocol

import "fmt"

// Message represents a parsed frame
type Message struct {
	Length   uint8
	Sequence uint8
	Payload  []byte // frame data without header/trailer
	CRC      uint16
}

// EncodeFrame wraps payload in a header, CRC and sync trailer.
func EncodeFrame(seq uint8, payload []byte) ([]byte, error) {
	msgLen := MessageHeaderSize + len(payload) + MessageTrailerSize
	if msgLen > MessageLengthMax {
		return nil, fmt.Errorf("%w: %d bytes (max %d)", ErrTooLong, msgLen, MessageLengthMax)
	}

	frame := make([]byte, 0, msgLen)
	frame = append(frame, uint8(msgLen), seq)
	frame = append(frame, payload...)
	crc := CRC16(frame)
	frame = append(frame, uint8(crc>>8), uint8(crc), MessageValueSync)
	return frame, nil
}

// ScanFrame looks for one frame at the start of data. It returns the
// frame, or nil with consumed == 0 when more bytes are needed. On
// ErrBadFrame the caller should drop consumed bytes and resynchronize.
func ScanFrame(data []byte) (msg *Message, consumed int, err error) {
	skipped := 0
	for len(data) > 0 && data[0] == MessageValueSync {
		data = data[1:]
		skipped++
	}
	if len(data) < MessageLengthMin {
		return nil, skipped, nil
	}

	msgLen := int(data[MessagePositionLen])
	if msgLen < MessageLengthMin || msgLen > MessageLengthMax {
		return nil, skipped + resync(data), ErrBadFrame
	}
	if len(data) < msgLen {
		return nil, skipped, nil
	}
	if data[msgLen-MessageTrailerSync] != MessageValueSync {
		return nil, skipped + resync(data), ErrBadFrame
	}

	frameCRC := uint16(data[msgLen-MessageTrailerCRC])<<8 | uint16(data[msgLen-MessageTrailerCRC+1])
	if frameCRC != CRC16(data[:msgLen-MessageTrailerSize]) {
		return nil, skipped + resync(data), ErrBadFrame
	}

	payload := make([]byte, msgLen-MessageLengthMin)
	copy(payload, data[MessageHeaderSize:msgLen-MessageTrailerSize])
	return &Message{
		Length:   uint8(msgLen),
		Sequence: data[MessagePositionSeq],
		Payload:  payload,
		CRC:      frameCRC,
	}, skipped + msgLen, nil
}

// resync returns how many bytes to drop to reach the next sync byte.
func resync(data []byte) int {
	for i, b := range data {
		if b == MessageValueSync {
			return i + 1
		}
	}
	return len(data)
}

// EncodeCommand builds a command payload: the VLQ command id followed by
// whatever args writes.
func EncodeCommand(cmdID uint16, args func(output OutputBuffer)) []byte {
	var p Payload
	EncodeVLQUint(&p, uint32(cmdID))
	if args != nil {
		args(&p)
	}
	return p.Bytes()
}
