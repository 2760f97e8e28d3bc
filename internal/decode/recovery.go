package decode

import (
	"bytes"

	"github.com/ZehenForever/dpsmeter/internal/metrics"
	"github.com/ZehenForever/dpsmeter/internal/varint"
)

const wrapperPrefixLen = 10

// recoverBroken handles a slice whose declared length runs past the bytes we have.
// first is false when continuing on the tail of an earlier recovery.
func (d *Decoder) recoverBroken(b []byte, first bool) []work {
	if len(b) >= 4 && b[2] == 0xff && b[3] == 0xff {
		metrics.BrokenLengthRecoveries.WithLabelValues("wrapper").Inc()
		if len(b) <= wrapperPrefixLen {
			return nil
		}
		return []work{{kind: workEnvelope, buf: b[wrapperPrefixLen:]}}
	}

	m, parse := d.findCombatOpcode(b)
	if m > 0 {
		if li := varint.Decode(b, m-1); li.Length == 1 {
			start := m - 1
			end := start + li.Value - trailerLen
			if start < end && end <= len(b) {
				d.stats.Recovered++
				metrics.BrokenLengthRecoveries.WithLabelValues("opcode").Inc()
				parse(b[start:end])
				if end < len(b) {
					return []work{{kind: workRecover, buf: b[end:], first: false}}
				}
				return nil
			}
		}
	}

	if first {
		if d.scavenge(b) > 0 {
			metrics.BrokenLengthRecoveries.WithLabelValues("nickname").Inc()
		} else {
			metrics.BrokenLengthRecoveries.WithLabelValues("none").Inc()
		}
	}
	return nil
}

// findCombatOpcode looks for a damage or DoT opcode at index >= 1, first
// qualified by the tracked target id, then bare. Earliest match wins, ties go
// to damage.
func (d *Decoder) findCombatOpcode(b []byte) (int, func([]byte) bool) {
	if target := d.currentTarget(); target != 0 {
		tb := varint.Encode(target)
		dmg := indexFrom(b, append(opDamage[:], tb...), 1)
		dot := indexFrom(b, append(opDoT[:], tb...), 1)
		if m, p := d.earliest(dmg, dot); m > 0 {
			return m, p
		}
	}
	dmg := indexFrom(b, opDamage[:], 1)
	dot := indexFrom(b, opDoT[:], 1)
	return d.earliest(dmg, dot)
}

func (d *Decoder) earliest(dmg, dot int) (int, func([]byte) bool) {
	switch {
	case dmg > 0 && (dot < 0 || dmg <= dot):
		return dmg, d.parseDamage
	case dot > 0:
		return dot, d.parseDoT
	}
	return -1, nil
}

func indexFrom(b, pattern []byte, from int) int {
	if from >= len(b) {
		return -1
	}
	i := bytes.Index(b[from:], pattern)
	if i < 0 {
		return -1
	}
	return i + from
}
