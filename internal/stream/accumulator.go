package stream

import (
	"bytes"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

const (
	WarnSize = 1 << 20
	MaxSize  = 2 << 20
)

var ErrBufferOverflow = errors.New("stream: buffer exceeded limit")

// Accumulator is a growing byte buffer fed by one flow. Consumed bytes are
// skipped with a read offset; the buffer is compacted once the offset passes
// half of it, so cutting many envelopes from one chunk stays linear.
type Accumulator struct {
	mu  sync.Mutex
	buf []byte
	off int

	log  zerolog.Logger
	warn rate.Sometimes
}

func NewAccumulator(log zerolog.Logger) *Accumulator {
	return &Accumulator{
		log:  log,
		warn: rate.Sometimes{Interval: 5 * time.Second},
	}
}

// Append copies data into the buffer. If the pending bytes were already over
// MaxSize the buffer is emptied first and ErrBufferOverflow is returned; data
// is still appended.
func (a *Accumulator) Append(data []byte) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	var err error
	switch size := a.size(); {
	case size > MaxSize:
		a.log.Error().Int("pending", size).Msg("buffer exceeded limit, resetting")
		a.reset()
		err = ErrBufferOverflow
	case size > WarnSize:
		a.warn.Do(func() {
			a.log.Warn().Int("pending", size).Msg("buffer nearing limit")
		})
	}

	a.buf = append(a.buf, data...)
	return err
}

func (a *Accumulator) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.size()
}

// IndexOf returns the first offset of pattern in the pending bytes, or -1.
func (a *Accumulator) IndexOf(pattern []byte) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(pattern) == 0 || a.size() < len(pattern) {
		return -1
	}
	return bytes.Index(a.view(), pattern)
}

// Range returns a copy of [start, end). Out of bounds or empty ranges yield nil.
func (a *Accumulator) Range(start, end int) []byte {
	a.mu.Lock()
	defer a.mu.Unlock()
	if start < 0 || end > a.size() || start >= end {
		return nil
	}
	out := make([]byte, end-start)
	copy(out, a.view()[start:end])
	return out
}

// Discard drops the first n pending bytes.
func (a *Accumulator) Discard(n int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if n <= 0 {
		return
	}
	if n >= a.size() {
		a.reset()
		return
	}
	a.off += n
	if a.off > len(a.buf)/2 {
		// fresh array so the consumed prefix can be collected
		rest := make([]byte, len(a.buf)-a.off)
		copy(rest, a.buf[a.off:])
		a.buf = rest
		a.off = 0
	}
}

func (a *Accumulator) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.reset()
}

func (a *Accumulator) reset() {
	a.buf = nil
	a.off = 0
}

func (a *Accumulator) size() int { return len(a.buf) - a.off }

func (a *Accumulator) view() []byte { return a.buf[a.off:] }
