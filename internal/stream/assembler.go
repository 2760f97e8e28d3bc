package stream

import (
	"github.com/rs/zerolog"
)

// Trailer terminates every application envelope.
var Trailer = []byte{0x06, 0x00, 0x36}

// Assembler cuts a flow's byte stream into trailer-terminated envelopes.
type Assembler struct {
	buf *Accumulator
	log zerolog.Logger
}

func NewAssembler(log zerolog.Logger) *Assembler {
	return &Assembler{buf: NewAccumulator(log), log: log}
}

// Feed appends chunk and calls onEnvelope for every complete envelope, in
// stream order. Each envelope includes its trailer. Bytes after the last
// trailer stay buffered for the next call. The returned error is
// ErrBufferOverflow when the pending bytes had to be dropped.
func (a *Assembler) Feed(chunk []byte, onEnvelope func(envelope []byte)) (int, error) {
	err := a.buf.Append(chunk)

	n := 0
	for {
		idx := a.buf.IndexOf(Trailer)
		if idx < 0 {
			break
		}
		cut := idx + len(Trailer)
		if env := a.buf.Range(0, cut); len(env) > 0 && onEnvelope != nil {
			onEnvelope(env)
			n++
		}
		a.buf.Discard(cut)
	}
	return n, err
}

// Pending is the number of buffered bytes not yet part of a complete envelope.
func (a *Assembler) Pending() int {
	return a.buf.Len()
}

// Close drops any partial envelope.
func (a *Assembler) Close() {
	if p := a.buf.Len(); p > 0 {
		a.log.Debug().Int("pending", p).Msg("dropping partial envelope")
	}
	a.buf.Reset()
}
