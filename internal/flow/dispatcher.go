package flow

import (
	"errors"
	"sync"
	"time"

	"github.com/ZehenForever/dpsmeter/internal/capture"
	"github.com/ZehenForever/dpsmeter/internal/decode"
	"github.com/ZehenForever/dpsmeter/internal/logging"
	"github.com/ZehenForever/dpsmeter/internal/metrics"
	"github.com/ZehenForever/dpsmeter/internal/stream"
	"github.com/remeh/sizedwaitgroup"
	"github.com/rs/zerolog"
)

// Key identifies a flow by its port pair regardless of direction.
type Key struct {
	Lo, Hi uint16
}

func KeyOf(c capture.Chunk) Key {
	if c.SrcPort <= c.DstPort {
		return Key{Lo: c.SrcPort, Hi: c.DstPort}
	}
	return Key{Lo: c.DstPort, Hi: c.SrcPort}
}

// Sink is what each flow's decoder writes into.
type Sink interface {
	decode.Sink
	decode.TargetTracker
}

type Options struct {
	// MaxConcurrent bounds how many flows are drained at once.
	MaxConcurrent int
	// OnChunk sees every accepted chunk before it is decoded.
	OnChunk func(time.Time)
}

var ErrClosed = errors.New("dispatcher closed")

// Dispatcher routes chunks to per-flow assemblers and decoders. Chunks of one
// flow are decoded in arrival order by at most one goroutine at a time;
// different flows drain concurrently.
type Dispatcher struct {
	sink Sink
	opts Options
	log  zerolog.Logger
	swg  sizedwaitgroup.SizedWaitGroup

	mu     sync.Mutex
	flows  map[Key]*flow
	closed bool
	tls    int
}

type flow struct {
	key Key
	asm *stream.Assembler
	dec *decode.Decoder

	mu      sync.Mutex
	queue   []capture.Chunk
	running bool
}

func New(sink Sink, opts Options, log zerolog.Logger) *Dispatcher {
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = 16
	}
	return &Dispatcher{
		sink:  sink,
		opts:  opts,
		log:   logging.Component(log, "flow"),
		swg:   sizedwaitgroup.New(opts.MaxConcurrent),
		flows: make(map[Key]*flow),
	}
}

// Dispatch queues c on its flow. It blocks while MaxConcurrent flows are
// already draining.
func (d *Dispatcher) Dispatch(c capture.Chunk) error {
	if len(c.Data) == 0 {
		return nil
	}
	f, err := d.flowFor(c)
	if err != nil || f == nil {
		return err
	}

	f.mu.Lock()
	f.queue = append(f.queue, c)
	if f.running {
		f.mu.Unlock()
		return nil
	}
	f.running = true
	f.mu.Unlock()

	d.swg.Add()
	go func() {
		defer d.swg.Done()
		d.drain(f)
	}()
	return nil
}

func (d *Dispatcher) flowFor(c capture.Chunk) (*flow, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, ErrClosed
	}
	if capture.LooksLikeTLS(c.Data) {
		d.tls++
		return nil, nil
	}
	k := KeyOf(c)
	f := d.flows[k]
	if f == nil {
		log := d.log.With().Uint16("lo", k.Lo).Uint16("hi", k.Hi).Logger()
		f = &flow{
			key: k,
			asm: stream.NewAssembler(log),
			dec: decode.New(d.sink, d.sink, logging.Component(log, "decoder")),
		}
		d.flows[k] = f
		metrics.ActiveFlows.Set(float64(len(d.flows)))
		log.Info().Msg("new flow")
	}
	return f, nil
}

func (d *Dispatcher) drain(f *flow) {
	for {
		f.mu.Lock()
		if len(f.queue) == 0 {
			f.running = false
			f.mu.Unlock()
			return
		}
		batch := f.queue
		f.queue = nil
		f.mu.Unlock()

		for _, c := range batch {
			d.process(f, c)
		}
	}
}

func (d *Dispatcher) process(f *flow, c capture.Chunk) {
	if d.opts.OnChunk != nil {
		d.opts.OnChunk(c.Timestamp)
	}
	if logging.HexDumps() {
		d.log.Trace().Uint16("src", c.SrcPort).Uint16("dst", c.DstPort).Hex("data", c.Data).Msg("chunk")
	}
	_, err := f.asm.Feed(c.Data, func(env []byte) {
		f.dec.Decode(env, c.Timestamp)
	})
	if err != nil {
		d.log.Error().Err(err).Uint16("lo", f.key.Lo).Uint16("hi", f.key.Hi).Msg("flow buffer reset")
	}
}

// Wait blocks until every queued chunk has been decoded.
func (d *Dispatcher) Wait() { d.swg.Wait() }

// Close drains outstanding work, then drops every flow's partial envelope.
func (d *Dispatcher) Close() Stats {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()

	d.swg.Wait()

	d.mu.Lock()
	defer d.mu.Unlock()
	st := d.stats()
	for _, f := range d.flows {
		f.asm.Close()
	}
	metrics.ActiveFlows.Set(0)
	return st
}

type Stats struct {
	Flows     int
	TLSChunks int
	Decoder   decode.Stats
}

// Stats sums decoder counters across flows. Call it after Wait.
func (d *Dispatcher) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stats()
}

func (d *Dispatcher) stats() Stats {
	st := Stats{Flows: len(d.flows), TLSChunks: d.tls}
	for _, f := range d.flows {
		ds := f.dec.Stats()
		st.Decoder.Envelopes += ds.Envelopes
		st.Decoder.Damage += ds.Damage
		st.Decoder.DoT += ds.DoT
		st.Decoder.Nicknames += ds.Nicknames
		st.Decoder.Summons += ds.Summons
		st.Decoder.SelfDamage += ds.SelfDamage
		st.Decoder.Unrecognized += ds.Unrecognized
		st.Decoder.Recovered += ds.Recovered
		st.Decoder.Panics += ds.Panics
	}
	return st
}
