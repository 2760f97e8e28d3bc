package decode

import (
	"bytes"

	"github.com/ZehenForever/dpsmeter/internal/metrics"
	"github.com/ZehenForever/dpsmeter/internal/varint"
)

const (
	minScavengedActor = 1000
	maxBacktrack      = 8
)

var (
	nameMarkerF8 = []byte{0xf8, 0x03, 0x05}
	nameMarkers  = [][]byte{
		{0x00, 0x07, 0x05},
		{0x01, 0x07, 0x05},
		{0x02, 0x0d, 0x05},
	}
)

type nameHit struct {
	actor   int
	name    string
	pattern string
	pending bool
}

// scavenge looks for name-like substrings in traffic no parser understood.
// Every pattern scans the whole slice; when several find the same actor the
// strictest pattern wins. Names from the loosest scan are only cached as
// pending and apply on the actor's first damage.
func (d *Decoder) scavenge(b []byte) int {
	var hits []nameHit
	hits = append(hits, tag(scanLengthPrefixed(b), "length-prefixed", false)...)
	hits = append(hits, tag(scanF8Marker(b), "f8-marker", false)...)
	hits = append(hits, tag(scanTerminated(b), "nul-terminated", false)...)
	hits = append(hits, tag(scanLoose(b), "loose", true)...)
	return d.acceptNames(hits)
}

func tag(hits []nameHit, pattern string, pending bool) []nameHit {
	for i := range hits {
		hits[i].pattern = pattern
		hits[i].pending = pending
	}
	return hits
}

func (d *Decoder) acceptNames(hits []nameHit) int {
	seen := make(map[int]struct{}, len(hits))
	n := 0
	for _, h := range hits {
		if _, dup := seen[h.actor]; dup {
			continue
		}
		seen[h.actor] = struct{}{}
		d.log.Debug().Int("actor", h.actor).Str("name", h.name).Str("pattern", h.pattern).Msg("potential nickname")
		if h.pending {
			d.sink.CachePendingNickname(h.actor, h.name)
		} else {
			d.sink.AppendNickname(h.actor, h.name)
		}
		n++
	}
	d.stats.Nicknames += n
	metrics.EventsDecoded.WithLabelValues("nickname").Add(float64(n))
	return n
}

func twoByteVar(b []byte, off int) (int, bool) {
	r := varint.Decode(b, off)
	if r.Length != 2 {
		return 0, false
	}
	return r.Value, true
}

func nameAt(b []byte, lenOff int) (string, bool) {
	if lenOff < 0 || lenOff >= len(b) {
		return "", false
	}
	n := int(b[lenOff])
	if n == 0 || n > maxNicknameLen || lenOff+1+n > len(b) {
		return "", false
	}
	return Sanitize(string(b[lenOff+1 : lenOff+1+n]))
}

// actor var, three bytes, 01 07 or 00 07, length, name
func scanLengthPrefixed(b []byte) []nameHit {
	var hits []nameHit
	for off := 0; off+2 < len(b); off++ {
		actor, ok := twoByteVar(b, off)
		if !ok {
			continue
		}
		inner := off + 2
		if inner+6 >= len(b) {
			continue
		}
		if b[inner+4] != 0x07 || (b[inner+3] != 0x01 && b[inner+3] != 0x00) {
			continue
		}
		if name, ok := nameAt(b, inner+5); ok {
			hits = append(hits, nameHit{actor: actor, name: name})
		}
	}
	return hits
}

// actor var immediately before F8 03 05, then length and name
func scanF8Marker(b []byte) []nameHit {
	var hits []nameHit
	for from := 0; ; {
		i := indexFrom(b, nameMarkerF8, from)
		if i < 0 {
			return hits
		}
		from = i + 1
		if i < 2 {
			continue
		}
		actor, ok := twoByteVar(b, i-2)
		if !ok {
			continue
		}
		if name, ok := nameAt(b, i+len(nameMarkerF8)); ok {
			hits = append(hits, nameHit{actor: actor, name: name})
		}
	}
}

// marker + 05, actor var up to eight bytes back, NUL-terminated name after
func scanTerminated(b []byte) []nameHit {
	var hits []nameHit
	for _, marker := range nameMarkers {
		for from := 0; ; {
			i := indexFrom(b, marker, from)
			if i < 0 {
				break
			}
			from = i + 1

			actor := 0
			for back := 2; back <= maxBacktrack && i-back >= 0; back++ {
				if v, ok := twoByteVar(b, i-back); ok && v > 0 {
					actor = v
					break
				}
			}
			if actor == 0 {
				continue
			}

			start := i + len(marker)
			end := len(b)
			if z := bytes.IndexByte(b[start:], 0); z >= 0 {
				end = start + z
			}
			if end-start > maxNicknameLen {
				end = start + maxNicknameLen
			}
			if name, ok := Sanitize(string(b[start:end])); ok {
				hits = append(hits, nameHit{actor: actor, name: name})
			}
		}
	}
	return hits
}

// any two-byte actor var >= 1000 followed by length and name
func scanLoose(b []byte) []nameHit {
	var hits []nameHit
	for off := 0; off+3 < len(b); off++ {
		actor, ok := twoByteVar(b, off)
		if !ok || actor < minScavengedActor {
			continue
		}
		if name, ok := nameAt(b, off+2); ok {
			hits = append(hits, nameHit{actor: actor, name: name})
		}
	}
	return hits
}
