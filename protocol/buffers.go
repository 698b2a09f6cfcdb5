package protocol

// OutputBuffer is where argument encoders write.
type OutputBuffer interface {
	Output(data []byte)
}

// Payload collects an encoded message. The zero value is ready to use.
type Payload struct {
	buf []byte
}

// Output implements OutputBuffer.
func (p *Payload) Output(data []byte) {
	p.buf = append(p.buf, data...)
}

// Bytes returns the collected bytes. They stay valid until Reset.
func (p *Payload) Bytes() []byte {
	return p.buf
}

// Reset empties the payload and keeps its storage.
func (p *Payload) Reset() {
	p.buf = p.buf[:0]
}

// rxBuffer holds serial input until it contains whole frames. It never
// grows past limit; a line that floods it without a valid frame loses its
// oldest bytes.
type rxBuffer struct {
	data  []byte
	limit int
}

func newRxBuffer(limit int) *rxBuffer {
	return &rxBuffer{data: make([]byte, 0, limit), limit: limit}
}

// append adds p and reports how many old bytes were dropped to make room.
func (b *rxBuffer) append(p []byte) (dropped int) {
	b.data = append(b.data, p...)
	if over := len(b.data) - b.limit; over > 0 {
		b.consume(over)
		return over
	}
	return 0
}

func (b *rxBuffer) bytes() []byte {
	return b.data
}

// consume drops the first n bytes.
func (b *rxBuffer) consume(n int) {
	b.data = b.data[:copy(b.data, b.data[n:])]
}
