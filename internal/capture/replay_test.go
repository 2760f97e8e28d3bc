package capture

import (
	"bytes"
	"context"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"github.com/rs/zerolog"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type pcapBuilder struct {
	t   *testing.T
	buf bytes.Buffer
	w   *pcapgo.Writer
}

func newPcap(t *testing.T) *pcapBuilder {
	t.Helper()
	b := &pcapBuilder{t: t}
	b.w = pcapgo.NewWriter(&b.buf)
	if err := b.w.WriteFileHeader(65536, layers.LinkTypeEthernet); err != nil {
		t.Fatalf("header: %v", err)
	}
	return b
}

func (b *pcapBuilder) write(at time.Duration, transport gopacket.SerializableLayer, ip *layers.IPv4, payload []byte) {
	b.t.Helper()
	eth := &layers.Ethernet{
		SrcMAC:       net.HardwareAddr{0, 1, 2, 3, 4, 5},
		DstMAC:       net.HardwareAddr{0, 1, 2, 3, 4, 6},
		EthernetType: layers.EthernetTypeIPv4,
	}
	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	if err := gopacket.SerializeLayers(buf, opts, eth, ip, transport, gopacket.Payload(payload)); err != nil {
		b.t.Fatalf("serialize: %v", err)
	}
	data := buf.Bytes()
	ci := gopacket.CaptureInfo{Timestamp: t0.Add(at), CaptureLength: len(data), Length: len(data)}
	if err := b.w.WritePacket(ci, data); err != nil {
		b.t.Fatalf("write packet: %v", err)
	}
}

func ipv4(proto layers.IPProtocol) *layers.IPv4 {
	return &layers.IPv4{
		Version:  4,
		TTL:      64,
		Protocol: proto,
		SrcIP:    net.IP{10, 0, 0, 1},
		DstIP:    net.IP{10, 0, 0, 2},
	}
}

func (b *pcapBuilder) tcp(at time.Duration, seq uint32, syn bool, payload []byte) {
	ip := ipv4(layers.IPProtocolTCP)
	tcp := &layers.TCP{SrcPort: 13328, DstPort: 50000, Seq: seq, SYN: syn, ACK: !syn, Window: 1024}
	if err := tcp.SetNetworkLayerForChecksum(ip); err != nil {
		b.t.Fatalf("checksum: %v", err)
	}
	b.write(at, tcp, ip, payload)
}

func (b *pcapBuilder) udp(at time.Duration, payload []byte) {
	ip := ipv4(layers.IPProtocolUDP)
	udp := &layers.UDP{SrcPort: 4000, DstPort: 4001}
	if err := udp.SetNetworkLayerForChecksum(ip); err != nil {
		b.t.Fatalf("checksum: %v", err)
	}
	b.write(at, udp, ip, payload)
}

func (b *pcapBuilder) file() string {
	p := filepath.Join(b.t.TempDir(), "capture.pcap")
	if err := os.WriteFile(p, b.buf.Bytes(), 0o600); err != nil {
		b.t.Fatalf("write file: %v", err)
	}
	return p
}

func TestReplay_ReassemblesTCPInOrder(t *testing.T) {
	b := newPcap(t)
	b.tcp(0, 1000, true, nil)
	b.tcp(10*time.Millisecond, 1001, false, []byte("hello "))
	// out of order segment is held until the gap fills
	b.tcp(30*time.Millisecond, 1012, false, []byte("!"))
	b.tcp(20*time.Millisecond, 1007, false, []byte("world"))
	b.udp(40*time.Millisecond, []byte{1, 2, 3})

	var chunks []Chunk
	st, err := Replay(context.Background(), b.file(), Options{Device: "test0"}, zerolog.Nop(), func(c Chunk) {
		chunks = append(chunks, c)
	})
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if st.Packets != 5 || st.TCP != 4 || st.UDP != 1 {
		t.Fatalf("stats=%+v", st)
	}

	var tcp bytes.Buffer
	var udp []Chunk
	for _, c := range chunks {
		if c.Device != "test0" {
			t.Fatalf("device=%q want=test0", c.Device)
		}
		switch c.SrcPort {
		case 13328:
			if c.DstPort != 50000 {
				t.Fatalf("dst port=%d", c.DstPort)
			}
			tcp.Write(c.Data)
		case 4000:
			udp = append(udp, c)
		default:
			t.Fatalf("unexpected chunk %+v", c)
		}
	}
	if tcp.String() != "hello world!" {
		t.Fatalf("tcp payload=%q want=%q", tcp.String(), "hello world!")
	}
	if len(udp) != 1 || !bytes.Equal(udp[0].Data, []byte{1, 2, 3}) {
		t.Fatalf("udp chunks=%+v", udp)
	}
	if st.Duration != 40*time.Millisecond {
		t.Fatalf("duration=%v", st.Duration)
	}
}

func TestReplay_EmptyCapture(t *testing.T) {
	b := newPcap(t)
	_, err := Replay(context.Background(), b.file(), Options{}, zerolog.Nop(), func(Chunk) {})
	if err != ErrNoPackets {
		t.Fatalf("err=%v want=%v", err, ErrNoPackets)
	}
}

func TestReplay_MissingFile(t *testing.T) {
	_, err := Replay(context.Background(), filepath.Join(t.TempDir(), "none.pcap"), Options{}, zerolog.Nop(), func(Chunk) {})
	if err == nil {
		t.Fatalf("expected error")
	}
}

func TestReplay_Cancelled(t *testing.T) {
	b := newPcap(t)
	b.udp(0, []byte{1})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Replay(ctx, b.file(), Options{}, zerolog.Nop(), func(Chunk) {})
	if err != context.Canceled {
		t.Fatalf("err=%v want=%v", err, context.Canceled)
	}
}

func TestLooksLikeTLS(t *testing.T) {
	if !LooksLikeTLS([]byte{0x16, 0x03, 0x01, 0x00}) {
		t.Fatalf("handshake record not detected")
	}
	if LooksLikeTLS([]byte{0x0c, 0x04, 0x38}) {
		t.Fatalf("game envelope flagged as tls")
	}
	if LooksLikeTLS([]byte{0x16}) {
		t.Fatalf("short input flagged as tls")
	}
}
