package protocol

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"ledtools/logging"
)

// DefaultAckTimeout bounds how long SendCommand waits for the MCU to
// acknowledge a frame.
const DefaultAckTimeout = 2 * time.Second

// HostTransport sends commands to an MCU, waits for their ACKs and hands
// response frames to callers.
type HostTransport struct {
	port   io.ReadWriteCloser
	logger logging.Logger

	// sendMu serializes a write and the wait for its ACK.
	sendMu sync.Mutex
	seq    uint8

	input     *rxBuffer
	acks      chan *Message
	responses chan *Message

	stop      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
	closeErr  error
}

// NewHostTransport starts reading from port in the background.
func NewHostTransport(port io.ReadWriteCloser) *HostTransport {
	t := &HostTransport{
		port:      port,
		logger:    logging.GetLogger("protocol"),
		seq:       MessageDest,
		input:     newRxBuffer(MessageMax),
		acks:      make(chan *Message, 1),
		responses: make(chan *Message, 16),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
	go t.readLoop()
	return t
}

// SendCommand frames cmdID and its arguments, writes it and waits for the
// ACK. ctx bounds the wait; without a deadline DefaultAckTimeout applies.
func (t *HostTransport) SendCommand(ctx context.Context, cmdID uint16, args func(output OutputBuffer)) error {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, DefaultAckTimeout)
		defer cancel()
	}

	t.sendMu.Lock()
	defer t.sendMu.Unlock()

	frame, err := EncodeFrame(t.seq, EncodeCommand(cmdID, args))
	if err != nil {
		return err
	}

	// a stale ACK from an earlier timed out command must not satisfy this one
	select {
	case <-t.acks:
	default:
	}

	if err := t.write(frame); err != nil {
		return fmt.Errorf("write command %d: %w", cmdID, err)
	}
	return t.waitForAck(ctx)
}

func (t *HostTransport) write(frame []byte) error {
	n, err := t.port.Write(frame)
	if err != nil {
		return err
	}
	if n != len(frame) {
		return fmt.Errorf("incomplete write: %d/%d bytes", n, len(frame))
	}
	return nil
}

// waitForAck expects the MCU to acknowledge with the next sequence number.
func (t *HostTransport) waitForAck(ctx context.Context) error {
	next := ((t.seq + 1) & MessageSeqMask) | MessageDest

	select {
	case ack := <-t.acks:
		if ack.Sequence&MessageSeqMask != next&MessageSeqMask {
			t.logger.Warn("Unexpected ack sequence",
				"expected", fmt.Sprintf("0x%02x", next),
				"got", fmt.Sprintf("0x%02x", ack.Sequence))
			return ErrSeqMismatch
		}
		t.seq = next
		return nil
	case <-ctx.Done():
		return timeoutOr(ctx.Err())
	case <-t.stop:
		return ErrStopped
	}
}

// Receive returns the next response frame.
func (t *HostTransport) Receive(ctx context.Context) (*Message, error) {
	select {
	case resp := <-t.responses:
		return resp, nil
	case <-ctx.Done():
		return nil, timeoutOr(ctx.Err())
	case <-t.stop:
		return nil, ErrStopped
	}
}

// ReceiveCommand waits for a response with the given id and returns its
// encoded arguments. Other responses are dropped.
func (t *HostTransport) ReceiveCommand(ctx context.Context, cmdID uint16) ([]byte, error) {
	for {
		msg, err := t.Receive(ctx)
		if err != nil {
			return nil, err
		}
		payload := msg.Payload
		id, err := DecodeVLQUint(&payload)
		if err != nil {
			t.logger.Debug("Dropping undecodable response", "error", err)
			continue
		}
		if uint16(id) == cmdID {
			return payload, nil
		}
		t.logger.Debug("Dropping unrelated response", "id", id, "want", cmdID)
	}
}

func (t *HostTransport) readLoop() {
	defer close(t.done)

	buf := make([]byte, 256)
	for {
		n, err := t.port.Read(buf)
		if n > 0 {
			if dropped := t.input.append(buf[:n]); dropped > 0 {
				t.logger.Warn("Input overflow", "dropped", dropped)
			}
			t.processInput()
		}
		if err != nil {
			select {
			case <-t.stop:
				return
			default:
			}
			if errors.Is(err, io.ErrClosedPipe) {
				return
			}
			// serial ports report read timeouts as EOF
			if !errors.Is(err, io.EOF) {
				t.logger.Warn("Serial read failed", "error", err)
			}
			time.Sleep(10 * time.Millisecond)
		}
	}
}

func (t *HostTransport) processInput() {
	data := t.input.bytes()
	total := len(data)

	for len(data) > 0 {
		msg, consumed, err := ScanFrame(data)
		data = data[consumed:]
		if err != nil {
			t.logger.Debug("Resynchronizing", "error", err, "dropped", consumed)
			continue
		}
		if msg == nil {
			break
		}
		t.dispatch(msg)
	}

	t.input.consume(total - len(data))
}

func (t *HostTransport) dispatch(msg *Message) {
	if len(msg.Payload) == 0 {
		select {
		case t.acks <- msg:
		default:
			// only the latest ACK matters
			select {
			case <-t.acks:
			default:
			}
			t.acks <- msg
		}
		return
	}

	select {
	case t.responses <- msg:
	default:
		t.logger.Warn("Response queue full, dropping oldest")
		select {
		case <-t.responses:
		default:
		}
		t.responses <- msg
	}
}

// Sequence returns the sequence number the next command will carry.
func (t *HostTransport) Sequence() uint8 {
	t.sendMu.Lock()
	defer t.sendMu.Unlock()
	return t.seq
}

// Close stops the reader and closes the port.
func (t *HostTransport) Close() error {
	t.closeOnce.Do(func() {
		close(t.stop)
		t.closeErr = t.port.Close()
		<-t.done
	})
	return t.closeErr
}

func timeoutOr(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrTimeout
	}
	return err
}
