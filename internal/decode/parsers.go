package decode

import (
	"bytes"

	"github.com/ZehenForever/dpsmeter/internal/metrics"
	"github.com/ZehenForever/dpsmeter/internal/model"
	"github.com/ZehenForever/dpsmeter/internal/varint"
	"github.com/google/uuid"
)

var (
	opDamage   = [2]byte{0x04, 0x38}
	opDoT      = [2]byte{0x05, 0x38}
	opNickname = [2]byte{0x04, 0x8d}
	opSummon   = [2]byte{0x40, 0x36}
)

const (
	nicknameOffset  = 10
	maxNicknameLen  = 72
	summonSkipBytes = 28
)

var (
	summonKey    = bytes.Repeat([]byte{0xff}, 8)
	summonMarker = []byte{0x07, 0x02, 0x06}
)

// special block size by switch&0x0F
var specialBlockSize = map[int]int{4: 8, 5: 12, 6: 10, 7: 14}

type parser struct {
	name  string
	match func([]byte) bool
	parse func([]byte) bool
}

func opcode(op [2]byte) func([]byte) bool {
	return func(b []byte) bool { return opcodeAt(b, op) }
}

// table is tried in order; the first parser that matches and accepts wins.
func (d *Decoder) table() []parser {
	return []parser{
		{name: "damage", match: opcode(opDamage), parse: d.parseDamage},
		{name: "nickname", match: opcode(opNickname), parse: d.parseNickname},
		{name: "summon", match: opcode(opSummon), parse: d.parseSummon},
		{name: "dot", match: opcode(opDoT), parse: d.parseDoT},
	}
}

func (d *Decoder) parseDamage(b []byte) bool {
	c := newCursor(b)
	c.varint()
	if !c.expect(opDamage[0], opDamage[1]) {
		return false
	}
	target := c.varint()
	sw := c.varint()
	flag := c.varint()
	actor := c.varint()
	skill := c.u32le()
	typ := c.varint()
	if !c.ok {
		return false
	}
	size, ok := specialBlockSize[sw&0x0f]
	if !ok {
		return false
	}
	block := c.take(size)
	c.varint() // unknown
	damage := c.varint()
	loop := c.varint()
	if !c.ok {
		return false
	}

	var specials model.Specials
	if len(block) >= 10 {
		specials = model.Specials(block[0])
	}
	d.emit(model.CombatEvent{
		ActorID:   actor,
		TargetID:  target,
		SkillCode: skill,
		Damage:    damage,
		Specials:  specials,
		Switch:    sw,
		Flag:      flag,
		Type:      typ,
		Loop:      loop,
	})
	d.stats.Damage++
	metrics.EventsDecoded.WithLabelValues("damage").Inc()
	return true
}

func (d *Decoder) parseDoT(b []byte) bool {
	c := newCursor(b)
	c.varint()
	if !c.expect(opDoT[0], opDoT[1]) {
		return false
	}
	target := c.varint()
	c.skip(1)
	actor := c.varint()
	if !c.ok || actor == target {
		return false
	}
	c.varint() // unknown
	skill := c.u32le() / 100
	if c.remaining() <= 0 {
		return false
	}
	damage := c.varint()
	if !c.ok {
		return false
	}

	d.emit(model.CombatEvent{
		ActorID:   actor,
		TargetID:  target,
		SkillCode: skill,
		Damage:    damage,
		IsDoT:     true,
	})
	d.stats.DoT++
	metrics.EventsDecoded.WithLabelValues("dot").Inc()
	return true
}

func (d *Decoder) parseNickname(b []byte) bool {
	if !opcodeAt(b, opNickname) || nicknameOffset >= len(b) {
		return false
	}
	actor := varint.Decode(b, nicknameOffset)
	if !actor.OK() {
		return false
	}
	off := nicknameOffset + actor.Length
	if off >= len(b) {
		return false
	}
	n := int(b[off])
	if n > maxNicknameLen || off+1+n > len(b) {
		return false
	}
	name, ok := Sanitize(string(b[off+1 : off+1+n]))
	if !ok {
		return false
	}
	d.log.Debug().Int("actor", actor.Value).Str("name", name).Msg("nickname")
	d.sink.AppendNickname(actor.Value, name)
	d.stats.Nicknames++
	metrics.EventsDecoded.WithLabelValues("nickname").Inc()
	return true
}

func (d *Decoder) parseSummon(b []byte) bool {
	c := newCursor(b)
	c.varint()
	if !c.expect(opSummon[0], opSummon[1]) {
		return false
	}
	summon := c.varint()
	if !c.ok {
		return false
	}

	off := c.off + summonSkipBytes
	if off < len(b) {
		mob := varint.Decode(b, off)
		if !mob.OK() {
			return false
		}
		off += mob.Length
		if off < len(b) {
			mob2 := varint.Decode(b, off)
			if !mob2.OK() {
				return false
			}
			if mob.Value == mob2.Value {
				d.sink.AppendMob(summon, mob.Value)
				metrics.EventsDecoded.WithLabelValues("mob").Inc()
			}
		}
	}

	key := bytes.Index(b, summonKey)
	if key < 0 {
		return false
	}
	marker := bytes.Index(b[key+len(summonKey):], summonMarker)
	if marker < 0 {
		return false
	}
	owner, ok := u16le(b, key+marker+11)
	if !ok {
		return false
	}
	d.log.Debug().Int("owner", owner).Int("summon", summon).Msg("summon")
	d.sink.AppendSummon(owner, summon)
	d.stats.Summons++
	metrics.EventsDecoded.WithLabelValues("summon").Inc()
	return true
}

// emit stamps and stores an event. Self-damage is decoded but never stored.
func (d *Decoder) emit(ev model.CombatEvent) {
	if ev.ActorID == ev.TargetID {
		d.stats.SelfDamage++
		metrics.SelfDamageDropped.Inc()
		return
	}
	ev.ID = uuid.New()
	ev.Timestamp = d.ts
	d.log.Trace().
		Int("actor", ev.ActorID).
		Int("target", ev.TargetID).
		Int("skill", ev.SkillCode).
		Int("damage", ev.Damage).
		Bool("dot", ev.IsDoT).
		Strs("specials", ev.Specials.Names()).
		Msg("damage")
	d.sink.AppendDamage(ev)
}
