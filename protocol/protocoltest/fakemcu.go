// Package protocoltest provides an in-memory MCU for exercising the host
// transport without a serial port.
package protocoltest

import (
	"io"
	"sync"

	"ledtools/protocol"
)

// Command is one command frame the fake MCU accepted.
type Command struct {
	ID   uint32
	Args []byte
}

// Handler returns the response payloads for a command. Each payload must
// start with its VLQ response id; see protocol.EncodeCommand.
type Handler func(cmdID uint32, args []byte) [][]byte

// FakeMCU answers frames written to Port. Every in-sequence frame is
// passed to the handler, its responses are sent and then it is ACKed.
type FakeMCU struct {
	handler Handler

	hostR *io.PipeReader
	hostW *io.PipeWriter
	mcuR  *io.PipeReader
	mcuW  *io.PipeWriter

	mu       sync.Mutex
	commands []Command
	mute     bool

	done chan struct{}
}

// New starts a fake MCU. Closing the port returned by Port stops it.
func New(handler Handler) *FakeMCU {
	f := &FakeMCU{handler: handler, done: make(chan struct{})}
	f.mcuR, f.hostW = io.Pipe()
	f.hostR, f.mcuW = io.Pipe()
	go f.serve()
	return f
}

// Port is the host end of the link.
func (f *FakeMCU) Port() io.ReadWriteCloser {
	return pipePort{r: f.hostR, w: f.hostW}
}

// Mute stops ACKs and responses while set.
func (f *FakeMCU) Mute(mute bool) {
	f.mu.Lock()
	f.mute = mute
	f.mu.Unlock()
}

// Commands returns the commands received so far.
func (f *FakeMCU) Commands() []Command {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Command(nil), f.commands...)
}

// Wait blocks until the host side has been closed.
func (f *FakeMCU) Wait() {
	<-f.done
}

func (f *FakeMCU) serve() {
	defer close(f.done)
	defer f.mcuW.Close()

	expected := uint8(protocol.MessageDest)
	var pending []byte
	buf := make([]byte, 128)
	for {
		n, err := f.mcuR.Read(buf)
		pending = append(pending, buf[:n]...)
		for {
			msg, consumed, scanErr := protocol.ScanFrame(pending)
			pending = pending[consumed:]
			if scanErr != nil {
				continue
			}
			if msg == nil {
				break
			}
			if msg.Sequence == expected {
				expected = ((expected + 1) & protocol.MessageSeqMask) | protocol.MessageDest
				f.handle(expected, msg.Payload)
			}
		}
		if err != nil {
			return
		}
	}
}

func (f *FakeMCU) handle(seq uint8, payload []byte) {
	data := payload
	id, err := protocol.DecodeVLQUint(&data)
	if err != nil {
		return
	}

	f.mu.Lock()
	f.commands = append(f.commands, Command{ID: id, Args: append([]byte(nil), data...)})
	mute := f.mute
	f.mu.Unlock()
	if mute {
		return
	}

	var out [][]byte
	if f.handler != nil {
		out = f.handler(id, data)
	}
	for _, resp := range out {
		f.send(seq, resp)
	}
	f.send(seq, nil)
}

func (f *FakeMCU) send(seq uint8, payload []byte) {
	frame, err := protocol.EncodeFrame(seq, payload)
	if err != nil {
		return
	}
	_, _ = f.mcuW.Write(frame)
}

type pipePort struct {
	r *io.PipeReader
	w *io.PipeWriter
}

func (p pipePort) Read(b []byte) (int, error)  { return p.r.Read(b) }
func (p pipePort) Write(b []byte) (int, error) { return p.w.Write(b) }

func (p pipePort) Close() error {
	p.w.Close()
	return p.r.Close()
}
