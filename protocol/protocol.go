// Package protocol implements the framed serial protocol spoken by Klipper
// style microcontrollers: VLQ encoded arguments, CRC16 trailers and 0x7E
// sync bytes.
package protocol

import "errors"

// Frame layout
const (
	MessageHeaderSize  = 2
	MessageTrailerSize = 3
	MessageLengthMin   = MessageHeaderSize + MessageTrailerSize
	MessageLengthMax   = 64
	MessagePositionLen = 0
	MessagePositionSeq = 1
	MessageTrailerCRC  = 3
	MessageTrailerSync = 1
	MessageValueSync   = 0x7E
	MessageDest        = 0x10
	MessageSeqMask     = 0x0F

	// MessageMax bounds buffered serial input.
	MessageMax = 512
)

var (
	ErrTimeout     = errors.New("protocol timeout")
	ErrStopped     = errors.New("transport stopped")
	ErrTooLong     = errors.New("message too long")
	ErrBadFrame    = errors.New("malformed frame")
	ErrSeqMismatch = errors.New("ack sequence mismatch")
)
