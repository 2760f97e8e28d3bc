package capture

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/ZehenForever/dpsmeter/internal/metrics"
	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"github.com/google/gopacket/tcpassembly"
	"github.com/rs/zerolog"
)

// Chunk is one in-order slice of a flow's payload.
type Chunk struct {
	SrcPort   uint16
	DstPort   uint16
	Data      []byte
	Timestamp time.Time
	Device    string
}

type Options struct {
	// Device is copied onto every chunk.
	Device string
	// Speed paces the replay by capture timestamps; 0 replays as fast as possible.
	Speed float64
	// FlushAfter hands over buffered out-of-order segments older than this,
	// measured in capture time. Defaults to 2s.
	FlushAfter time.Duration
}

type Stats struct {
	Packets  int
	TCP      int
	UDP      int
	Chunks   int
	Skipped  int
	Duration time.Duration
}

var ErrNoPackets = errors.New("capture contains no packets")

// Replay reads a pcap or pcapng file, reassembles TCP streams and calls emit
// with each payload chunk in per-flow order. emit runs on the caller's
// goroutine.
func Replay(ctx context.Context, path string, opts Options, log zerolog.Logger, emit func(Chunk)) (Stats, error) {
	f, err := os.Open(path)
	if err != nil {
		return Stats{}, fmt.Errorf("open capture: %w", err)
	}
	defer f.Close()

	source, err := packetSource(f)
	if err != nil {
		return Stats{}, err
	}
	return run(ctx, source, opts, log, emit)
}

func packetSource(f *os.File) (*gopacket.PacketSource, error) {
	if ng, err := pcapgo.NewNgReader(f, pcapgo.NgReaderOptions{}); err == nil {
		return gopacket.NewPacketSource(ng, ng.LinkType()), nil
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("rewind capture: %w", err)
	}
	r, err := pcapgo.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("read capture header: %w", err)
	}
	return gopacket.NewPacketSource(r, r.LinkType()), nil
}

func run(ctx context.Context, source *gopacket.PacketSource, opts Options, log zerolog.Logger, emit func(Chunk)) (Stats, error) {
	if opts.FlushAfter <= 0 {
		opts.FlushAfter = 2 * time.Second
	}
	var st Stats
	out := func(c Chunk) {
		st.Chunks++
		metrics.ChunksTotal.WithLabelValues(kindFor(c)).Inc()
		emit(c)
	}

	factory := &streamFactory{device: opts.Device, emit: out, log: log, skipped: &st.Skipped}
	pool := tcpassembly.NewStreamPool(factory)
	assembler := tcpassembly.NewAssembler(pool)
	assembler.MaxBufferedPagesPerConnection = 64

	var first, prev, lastFlush time.Time
	for {
		select {
		case <-ctx.Done():
			assembler.FlushAll()
			return st, ctx.Err()
		default:
		}
		pkt, err := source.NextPacket()
		if err == io.EOF {
			break
		}
		if err != nil {
			return st, fmt.Errorf("read packet: %w", err)
		}
		st.Packets++

		ts := pkt.Metadata().CaptureInfo.Timestamp
		if first.IsZero() {
			first, lastFlush = ts, ts
		}
		if opts.Speed > 0 && !prev.IsZero() {
			if d := ts.Sub(prev); d > 0 {
				if err := sleep(ctx, time.Duration(float64(d)/opts.Speed)); err != nil {
					assembler.FlushAll()
					return st, err
				}
			}
		}
		prev = ts

		net := pkt.NetworkLayer()
		if net == nil {
			continue
		}
		switch t := pkt.TransportLayer().(type) {
		case *layers.TCP:
			st.TCP++
			assembler.AssembleWithTimestamp(net.NetworkFlow(), t, ts)
		case *layers.UDP:
			st.UDP++
			if len(t.Payload) > 0 {
				out(Chunk{
					SrcPort:   uint16(t.SrcPort),
					DstPort:   uint16(t.DstPort),
					Data:      append([]byte(nil), t.Payload...),
					Timestamp: ts,
					Device:    opts.Device,
				})
			}
		}

		if ts.Sub(lastFlush) >= opts.FlushAfter {
			assembler.FlushOlderThan(ts.Add(-opts.FlushAfter))
			lastFlush = ts
		}
	}
	assembler.FlushAll()
	if st.Packets == 0 {
		return st, ErrNoPackets
	}
	st.Duration = prev.Sub(first)
	return st, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func kindFor(c Chunk) string {
	if LooksLikeTLS(c.Data) {
		return "tls"
	}
	return "data"
}

// LooksLikeTLS matches a TLS record header: content type 0x14..0x17 and
// major version 3.
func LooksLikeTLS(b []byte) bool {
	return len(b) >= 3 && b[0] >= 0x14 && b[0] <= 0x17 && b[1] == 0x03 && b[2] <= 0x04
}

type streamFactory struct {
	device  string
	emit    func(Chunk)
	log     zerolog.Logger
	skipped *int
}

func (f *streamFactory) New(net, transport gopacket.Flow) tcpassembly.Stream {
	src, dst := transport.Endpoints()
	return &stream{
		factory: f,
		src:     port(src),
		dst:     port(dst),
		flow:    fmt.Sprintf("%v:%v", net, transport),
	}
}

func port(e gopacket.Endpoint) uint16 {
	raw := e.Raw()
	if len(raw) != 2 {
		return 0
	}
	return binary.BigEndian.Uint16(raw)
}

type stream struct {
	factory  *streamFactory
	src, dst uint16
	flow     string
}

func (s *stream) Reassembled(rs []tcpassembly.Reassembly) {
	for _, r := range rs {
		if r.Skip > 0 {
			*s.factory.skipped += r.Skip
			s.factory.log.Debug().Str("flow", s.flow).Int("bytes", r.Skip).Msg("tcp gap skipped")
		}
		if len(r.Bytes) == 0 {
			continue
		}
		s.factory.emit(Chunk{
			SrcPort:   s.src,
			DstPort:   s.dst,
			Data:      append([]byte(nil), r.Bytes...),
			Timestamp: r.Seen,
			Device:    s.factory.device,
		})
	}
}

func (s *stream) ReassemblyComplete() {
	s.factory.log.Debug().Str("flow", s.flow).Msg("stream closed")
}
