package decode

import (
	"encoding/binary"
	"testing"
	"time"

	"github.com/ZehenForever/dpsmeter/internal/model"
	"github.com/ZehenForever/dpsmeter/internal/stream"
	"github.com/ZehenForever/dpsmeter/internal/varint"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSink struct {
	events    []model.CombatEvent
	nicknames map[int]string
	pending   map[int]string
	summons   map[int]int
	mobs      map[int]int
}

func newFakeSink() *fakeSink {
	return &fakeSink{
		nicknames: map[int]string{},
		pending:   map[int]string{},
		summons:   map[int]int{},
		mobs:      map[int]int{},
	}
}

func (s *fakeSink) AppendDamage(ev model.CombatEvent)          { s.events = append(s.events, ev) }
func (s *fakeSink) AppendNickname(actor int, name string)       { s.nicknames[actor] = name }
func (s *fakeSink) CachePendingNickname(actor int, name string) { s.pending[actor] = name }
func (s *fakeSink) AppendSummon(owner, summon int)              { s.summons[summon] = owner }
func (s *fakeSink) AppendMob(instance, code int)                { s.mobs[instance] = code }

type fixedTarget int

func (f fixedTarget) CurrentTarget() int { return int(f) }

func cat(parts ...[]byte) []byte {
	var out []byte
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

func v(n int) []byte { return varint.Encode(n) }

func le32(n uint32) []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, n)
	return b
}

// frame wraps body in a one-byte length prefix and the trailer. Fixture
// messages stay below 128 bytes.
func frame(body []byte) []byte {
	return cat(v(len(body)+1+len(stream.Trailer)), body, stream.Trailer)
}

// msg is a trailer-less message as it appears inside a multi-message envelope.
func msg(body []byte) []byte {
	return cat(v(len(body)+1+len(stream.Trailer)), body)
}

func damageBody(target, sw, actor int, skill uint32, block []byte, damage int) []byte {
	return cat([]byte{0x04, 0x38}, v(target), v(sw), v(0), v(actor), le32(skill), v(0), block, v(0), v(damage), v(0))
}

func dotBody(target, actor int, raw uint32, damage int) []byte {
	return cat([]byte{0x05, 0x38}, v(target), []byte{0x00}, v(actor), v(0), le32(raw), v(damage))
}

func newTestDecoder(sink Sink, target int) *Decoder {
	return New(sink, fixedTarget(target), zerolog.Nop())
}

func TestDecode_WellFormedDamage(t *testing.T) {
	sink := newFakeSink()
	d := newTestDecoder(sink, 0)
	ts := time.Unix(1700000000, 0)

	d.Decode(frame(damageBody(5, 4, 7, 11020000, make([]byte, 8), 1500)), ts)

	require.Len(t, sink.events, 1)
	ev := sink.events[0]
	assert.Equal(t, 7, ev.ActorID)
	assert.Equal(t, 5, ev.TargetID)
	assert.Equal(t, 1500, ev.Damage)
	assert.Equal(t, 11020000, ev.SkillCode)
	assert.False(t, ev.IsDoT)
	assert.Empty(t, ev.Specials.Names())
	assert.Equal(t, ts, ev.Timestamp)
	assert.NotEqual(t, [16]byte{}, [16]byte(ev.ID))
	assert.Equal(t, 0, d.Stats().Unrecognized)
}

func TestDecode_SpecialFlags(t *testing.T) {
	sink := newFakeSink()
	d := newTestDecoder(sink, 0)
	block := make([]byte, 10)
	block[0] = 0x15 // back, parry, double
	d.Decode(frame(damageBody(5, 6, 7, 11020000, block, 10)), time.Now())

	require.Len(t, sink.events, 1)
	sp := sink.events[0].Specials
	assert.True(t, sp.Has(model.SpecialBack))
	assert.True(t, sp.Has(model.SpecialParry))
	assert.True(t, sp.Has(model.SpecialDouble))
	assert.False(t, sp.Has(model.SpecialPerfect))
}

func TestDecode_UnknownSwitchAborts(t *testing.T) {
	sink := newFakeSink()
	d := newTestDecoder(sink, 0)
	d.Decode(frame(damageBody(5, 3, 7, 11020000, make([]byte, 8), 10)), time.Now())
	assert.Empty(t, sink.events)
	assert.Equal(t, 1, d.Stats().Unrecognized)
}

func TestDecode_SelfDamageNotStored(t *testing.T) {
	sink := newFakeSink()
	d := newTestDecoder(sink, 0)
	d.Decode(frame(damageBody(9, 4, 9, 11020000, make([]byte, 8), 100)), time.Now())
	assert.Empty(t, sink.events)
	assert.Equal(t, 1, d.Stats().SelfDamage)
	assert.Equal(t, 0, d.Stats().Unrecognized)
}

func TestDecode_DoT(t *testing.T) {
	sink := newFakeSink()
	d := newTestDecoder(sink, 0)
	d.Decode(frame(dotBody(5, 7, 1102000000, 321)), time.Now())

	require.Len(t, sink.events, 1)
	ev := sink.events[0]
	assert.True(t, ev.IsDoT)
	assert.Equal(t, 11020000, ev.SkillCode)
	assert.Equal(t, 321, ev.Damage)
	assert.Equal(t, 7, ev.ActorID)
}

func TestDecode_DoTSelfRejected(t *testing.T) {
	sink := newFakeSink()
	d := newTestDecoder(sink, 0)
	d.Decode(frame(dotBody(5, 5, 1102000000, 321)), time.Now())
	assert.Empty(t, sink.events)
}

func TestDecode_Nickname(t *testing.T) {
	sink := newFakeSink()
	d := newTestDecoder(sink, 0)
	name := []byte("Hrafn")
	// length byte + opcode + 7 filler bytes puts the actor var at offset 10
	body := cat([]byte{0x04, 0x8d}, make([]byte, 7), v(4242), []byte{byte(len(name))}, name, []byte{0x00, 0x01})
	d.Decode(frame(body), time.Now())
	assert.Equal(t, "Hrafn", sink.nicknames[4242])
}

func TestDecode_Summon(t *testing.T) {
	sink := newFakeSink()
	d := newTestDecoder(sink, 0)
	owner := make([]byte, 2)
	binary.LittleEndian.PutUint16(owner, 0x1234)
	body := cat(
		[]byte{0x40, 0x36}, v(900),
		make([]byte, 28),
		v(2001), v(2001),
		[]byte{0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff},
		[]byte{0x10, 0x20, 0x07, 0x02, 0x06},
		owner,
		[]byte{0x00},
	)
	d.Decode(frame(body), time.Now())
	assert.Equal(t, 0x1234, sink.summons[900])
	assert.Equal(t, 2001, sink.mobs[900])
}

func TestDecode_MultipleMessagesInOneEnvelope(t *testing.T) {
	sink := newFakeSink()
	d := newTestDecoder(sink, 0)
	env := cat(
		msg(damageBody(5, 4, 7, 11020000, make([]byte, 8), 100)),
		msg(dotBody(5, 8, 1102000000, 50)),
		frame(damageBody(6, 4, 7, 11020000, make([]byte, 8), 200)),
	)
	d.Decode(env, time.Now())

	require.Len(t, sink.events, 3)
	assert.Equal(t, 100, sink.events[0].Damage)
	assert.Equal(t, 50, sink.events[1].Damage)
	assert.True(t, sink.events[1].IsDoT)
	assert.Equal(t, 200, sink.events[2].Damage)
	assert.Equal(t, 6, sink.events[2].TargetID)
}

func TestDecode_LeadingJunkSkipped(t *testing.T) {
	sink := newFakeSink()
	d := newTestDecoder(sink, 0)
	env := cat([]byte{0x01, 0x02}, frame(damageBody(5, 4, 7, 11020000, make([]byte, 8), 1)))
	d.Decode(env, time.Now())
	require.Len(t, sink.events, 1)
}

func TestDecode_BrokenLengthRecoversEmbeddedDamage(t *testing.T) {
	sink := newFakeSink()
	d := newTestDecoder(sink, 5)
	env := cat([]byte{0x7f, 0x11, 0x22}, msg(damageBody(5, 4, 7, 11020000, make([]byte, 8), 777)), stream.Trailer)
	d.Decode(env, time.Now())

	require.Len(t, sink.events, 1)
	assert.Equal(t, 777, sink.events[0].Damage)
	assert.Equal(t, 1, d.Stats().Recovered)
}

func TestDecode_BrokenLengthBareOpcodeWithoutTarget(t *testing.T) {
	sink := newFakeSink()
	d := newTestDecoder(sink, 0)
	env := cat([]byte{0x7f, 0x11, 0x22}, msg(dotBody(12, 7, 1102000000, 40)), stream.Trailer)
	d.Decode(env, time.Now())

	require.Len(t, sink.events, 1)
	assert.True(t, sink.events[0].IsDoT)
}

func TestDecode_WrapperPrefixSkipped(t *testing.T) {
	sink := newFakeSink()
	d := newTestDecoder(sink, 0)
	env := cat([]byte{0x7f, 0x00, 0xff, 0xff, 1, 2, 3, 4, 5, 6}, frame(damageBody(5, 4, 7, 11020000, make([]byte, 8), 55)))
	d.Decode(env, time.Now())

	require.Len(t, sink.events, 1)
	assert.Equal(t, 55, sink.events[0].Damage)
}

func TestDecode_ScavengerFindsName(t *testing.T) {
	sink := newFakeSink()
	d := newTestDecoder(sink, 0)
	name := []byte("Sigrun")
	body := cat([]byte{0x99, 0x01, 0x00}, v(1000), []byte{0xf8, 0x03, 0x05, byte(len(name))}, name)
	d.Decode(frame(body), time.Now())
	assert.Equal(t, "Sigrun", sink.nicknames[1000])
	assert.Equal(t, 0, d.Stats().Unrecognized)
}

func TestDecode_ScavengerLengthPrefixed(t *testing.T) {
	for _, kind := range []byte{0x00, 0x01} {
		sink := newFakeSink()
		d := newTestDecoder(sink, 0)
		body := cat([]byte{0x99, 0x01, 0x00}, v(2000), []byte{0x00, 0x00, 0x00, kind, 0x07, 0x05}, []byte("Alpha"))
		d.Decode(frame(body), time.Now())
		assert.Equal(t, "Alpha", sink.nicknames[2000], "kind=%#x", kind)
	}
}

func TestDecode_ScavengerTerminatedBacktracks(t *testing.T) {
	sink := newFakeSink()
	d := newTestDecoder(sink, 0)
	// three filler bytes between the actor var and the marker
	body := cat([]byte{0x99, 0x01, 0x00}, v(3000), []byte{0x00, 0x00, 0x00, 0x02, 0x0d, 0x05}, []byte("Bravo"), []byte{0x00, 0x41})
	d.Decode(frame(body), time.Now())
	assert.Equal(t, "Bravo", sink.nicknames[3000])
}

func TestDecode_ScavengerRunsEveryPattern(t *testing.T) {
	sink := newFakeSink()
	d := newTestDecoder(sink, 0)
	body := cat(
		[]byte{0x99, 0x01, 0x00},
		v(2000), []byte{0x00, 0x00, 0x00, 0x01, 0x07, 0x05}, []byte("Alpha"),
		v(3000), []byte{0x02, 0x0d, 0x05}, []byte("Bravo"), []byte{0x00},
	)
	d.Decode(frame(body), time.Now())
	assert.Equal(t, "Alpha", sink.nicknames[2000])
	assert.Equal(t, "Bravo", sink.nicknames[3000])
	assert.Equal(t, 2, d.Stats().Nicknames)
}

func TestDecode_ScavengerLooseCachesPending(t *testing.T) {
	sink := newFakeSink()
	d := newTestDecoder(sink, 0)
	d.Decode(frame(cat([]byte{0x99, 0x01, 0x00}, v(1000), []byte{0x05}, []byte("Delta"))), time.Now())
	assert.Equal(t, "Delta", sink.pending[1000])
	assert.NotContains(t, sink.nicknames, 1000)
}

func TestDecode_ScavengerLooseBounds(t *testing.T) {
	long := func(n int) []byte {
		b := make([]byte, n)
		for i := range b {
			b[i] = 'a'
		}
		return b
	}
	cases := []struct {
		name  string
		actor int
		text  []byte
		want  string
	}{
		{"below actor floor", 999, []byte("Echo"), ""},
		{"at actor floor", 1000, []byte("Echo"), "Echo"},
		{"max length", 1200, long(72), string(long(72))},
		{"over max length", 1200, long(73), ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			sink := newFakeSink()
			d := newTestDecoder(sink, 0)
			body := cat([]byte{0x99, 0x01, 0x00}, v(tc.actor), []byte{byte(len(tc.text))}, tc.text)
			d.Decode(frame(body), time.Now())
			if tc.want == "" {
				assert.NotContains(t, sink.pending, tc.actor)
				return
			}
			assert.Equal(t, tc.want, sink.pending[tc.actor])
		})
	}

	sink := newFakeSink()
	d := newTestDecoder(sink, 0)
	d.Decode(frame(cat([]byte{0x99, 0x01, 0x00}, v(1000), []byte{0x00}, []byte("Echo"))), time.Now())
	assert.NotContains(t, sink.pending, 1000, "zero length")
}

func TestDecode_BrokenLengthFallsBackToScavenger(t *testing.T) {
	sink := newFakeSink()
	d := newTestDecoder(sink, 0)
	name := []byte("Sigrun")
	body := cat([]byte{0x99, 0x01, 0x00}, v(1500), []byte{0xf8, 0x03, 0x05, byte(len(name))}, name)
	// declared length runs well past the bytes present
	env := cat(v(100), body, stream.Trailer)
	d.Decode(env, time.Now())
	assert.Equal(t, "Sigrun", sink.nicknames[1500])
	assert.Equal(t, 0, d.Stats().Recovered)
}

func TestDecode_ChunkBoundaryIndependence(t *testing.T) {
	wire := cat(
		frame(damageBody(5, 4, 7, 11020000, make([]byte, 8), 1500)),
		frame(dotBody(5, 8, 1102000000, 60)),
		cat(msg(damageBody(5, 4, 7, 11020000, make([]byte, 8), 10)), frame(damageBody(6, 5, 9, 11020000, make([]byte, 12), 20))),
	)

	run := func(chunks ...[]byte) []model.CombatEvent {
		sink := newFakeSink()
		d := newTestDecoder(sink, 0)
		a := stream.NewAssembler(zerolog.Nop())
		for _, c := range chunks {
			a.Feed(c, func(env []byte) { d.Decode(env, time.Time{}) })
		}
		return sink.events
	}
	strip := func(evs []model.CombatEvent) []model.CombatEvent {
		out := make([]model.CombatEvent, len(evs))
		for i, ev := range evs {
			ev.ID = [16]byte{}
			out[i] = ev
		}
		return out
	}

	want := strip(run(wire))
	require.Len(t, want, 4)
	for i := 1; i < len(wire); i++ {
		assert.Equal(t, want, strip(run(wire[:i], wire[i:])), "split=%d", i)
	}
}

func TestDecode_ShortInputsDoNotPanic(t *testing.T) {
	sink := newFakeSink()
	d := newTestDecoder(sink, 5)
	inputs := [][]byte{
		{},
		{0x06, 0x00, 0x36},
		{0x02, 0x06, 0x00, 0x36},
		{0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0x06, 0x00, 0x36},
		{0x7f, 0x04, 0x38, 0x05, 0x06, 0x00, 0x36},
		{0x05, 0x04, 0x38},
	}
	for _, in := range inputs {
		assert.NotPanics(t, func() { d.Decode(in, time.Now()) })
	}
	assert.Equal(t, 0, d.Stats().Panics)
}
