package decode

import (
	"encoding/binary"

	"github.com/ZehenForever/dpsmeter/internal/varint"
)

// cursor reads fields sequentially. The first failed read latches ok=false and
// every later read returns zero values.
type cursor struct {
	b   []byte
	off int
	ok  bool
}

func newCursor(b []byte) *cursor {
	return &cursor{b: b, ok: true}
}

func (c *cursor) varint() int {
	if !c.ok {
		return 0
	}
	r := varint.Decode(c.b, c.off)
	if !r.OK() {
		c.ok = false
		return 0
	}
	c.off += r.Length
	return r.Value
}

// expect consumes the given bytes or fails.
func (c *cursor) expect(want ...byte) bool {
	if !c.ok || c.off+len(want) > len(c.b) {
		c.ok = false
		return false
	}
	for i, w := range want {
		if c.b[c.off+i] != w {
			c.ok = false
			return false
		}
	}
	c.off += len(want)
	return true
}

func (c *cursor) u32le() int {
	if !c.ok || c.off+4 > len(c.b) {
		c.ok = false
		return 0
	}
	v := binary.LittleEndian.Uint32(c.b[c.off:])
	c.off += 4
	return int(v)
}

func (c *cursor) take(n int) []byte {
	if !c.ok || n < 0 || c.off+n > len(c.b) {
		c.ok = false
		return nil
	}
	out := c.b[c.off : c.off+n]
	c.off += n
	return out
}

func (c *cursor) skip(n int) {
	c.take(n)
}

func (c *cursor) remaining() int {
	if !c.ok {
		return 0
	}
	return len(c.b) - c.off
}

// opcodeAt reports whether the two bytes following the leading length varint
// equal op.
func opcodeAt(b []byte, op [2]byte) bool {
	r := varint.Decode(b, 0)
	if !r.OK() || r.Length+2 > len(b) {
		return false
	}
	return b[r.Length] == op[0] && b[r.Length+1] == op[1]
}

func u16le(b []byte, off int) (int, bool) {
	if off < 0 || off+2 > len(b) {
		return 0, false
	}
	return int(binary.LittleEndian.Uint16(b[off:])), true
}
