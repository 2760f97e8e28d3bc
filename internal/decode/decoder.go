package decode

import (
	"fmt"
	"time"

	"github.com/ZehenForever/dpsmeter/internal/metrics"
	"github.com/ZehenForever/dpsmeter/internal/model"
	"github.com/ZehenForever/dpsmeter/internal/varint"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

const trailerLen = 3

// Sink receives decoded messages. The store implements it.
type Sink interface {
	AppendDamage(ev model.CombatEvent)
	AppendNickname(actorID int, name string)
	CachePendingNickname(actorID int, name string)
	AppendSummon(ownerID, summonID int)
	AppendMob(instanceID, mobCode int)
}

// TargetTracker exposes the target the aggregator is currently following.
// Broken-length recovery uses it to look for target-qualified opcodes.
type TargetTracker interface {
	CurrentTarget() int
}

type Stats struct {
	Envelopes    int
	Damage       int
	DoT          int
	Nicknames    int
	Summons      int
	SelfDamage   int
	Unrecognized int
	Recovered    int
	Panics       int
}

type Decoder struct {
	sink    Sink
	targets TargetTracker
	log     zerolog.Logger
	parsers []parser

	ts           time.Time
	stats        Stats
	unrecognized rate.Sometimes
}

type workKind uint8

const (
	workEnvelope workKind = iota
	workRecover
)

type work struct {
	kind  workKind
	buf   []byte
	first bool
}

func New(sink Sink, targets TargetTracker, log zerolog.Logger) *Decoder {
	d := &Decoder{
		sink:         sink,
		targets:      targets,
		log:          log,
		unrecognized: rate.Sometimes{Interval: time.Second},
	}
	d.parsers = d.table()
	return d
}

func (d *Decoder) Stats() Stats { return d.stats }

// Decode processes one trailer-terminated envelope captured at ts.
func (d *Decoder) Decode(envelope []byte, ts time.Time) {
	d.ts = ts
	d.stats.Envelopes++
	metrics.EnvelopesTotal.Inc()

	queue := []work{{kind: workEnvelope, buf: envelope}}
	for len(queue) > 0 {
		w := queue[0]
		queue = queue[1:]

		var next []work
		d.guard(w.buf, func() {
			switch w.kind {
			case workEnvelope:
				next = d.envelope(w.buf)
			case workRecover:
				next = d.recoverBroken(w.buf, w.first)
			}
		})
		queue = append(queue, next...)
	}
}

// envelope applies the length rules to one slice and returns follow-up work.
func (d *Decoder) envelope(b []byte) []work {
	n := len(b)
	li := varint.Decode(b, 0)
	total := -1
	if li.OK() {
		total = li.Value + li.Length - 1
	}

	switch {
	case n <= trailerLen:
		return nil
	case total == n:
		d.parseOne(b[:n-trailerLen])
		return nil
	case total > n:
		return []work{{kind: workRecover, buf: b, first: true}}
	case !li.OK() || li.Value <= 3:
		return []work{{kind: workEnvelope, buf: b[1:]}}
	}

	split := li.Value + li.Length - 4
	if msg := b[:split]; len(msg) != trailerLen {
		d.parseOne(msg)
	}
	return []work{{kind: workEnvelope, buf: b[split:]}}
}

// parseOne runs the parser table over a single message without trailer.
func (d *Decoder) parseOne(b []byte) bool {
	if len(b) < 3 {
		return false
	}
	for _, p := range d.parsers {
		if p.match(b) && p.parse(b) {
			return true
		}
	}
	if d.scavenge(b) > 0 {
		return true
	}
	if d.parseDoT(b) {
		return true
	}

	d.stats.Unrecognized++
	metrics.UnrecognizedEnvelopes.Inc()
	d.unrecognized.Do(func() {
		d.log.Debug().Int("len", len(b)).Hex("payload", head(b, 64)).Msg("unrecognized envelope")
	})
	return false
}

func (d *Decoder) guard(b []byte, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			d.stats.Panics++
			metrics.ParserPanics.Inc()
			d.log.Error().Str("panic", fmt.Sprint(r)).Hex("payload", head(b, 64)).Msg("parser panic, envelope skipped")
		}
	}()
	fn()
}

func (d *Decoder) currentTarget() int {
	if d.targets == nil {
		return 0
	}
	return d.targets.CurrentTarget()
}

func head(b []byte, n int) []byte {
	if len(b) > n {
		return b[:n]
	}
	return b
}
