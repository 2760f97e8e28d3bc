package varint

// MaxGroups is the longest encoding accepted on the wire (32 bits of payload).
const MaxGroups = 5

// Result is a decoded value and the number of bytes it occupied.
// Length is -1 when decoding failed.
type Result struct {
	Value  int
	Length int
}

var failed = Result{Value: -1, Length: -1}

func (r Result) OK() bool {
	return r.Length > 0
}

// Decode reads a little-endian base-128 integer starting at off.
func Decode(b []byte, off int) Result {
	if off < 0 {
		return failed
	}
	var value uint32
	shift := uint(0)
	for count := 0; ; {
		if off+count >= len(b) {
			return failed
		}
		c := b[off+count]
		count++
		value |= uint32(c&0x7f) << shift
		if c&0x80 == 0 {
			return Result{Value: int(value), Length: count}
		}
		shift += 7
		if count >= MaxGroups {
			return failed
		}
	}
}

// Encode returns the base-128 encoding of v. Negative values encode as zero.
func Encode(v int) []byte {
	if v < 0 {
		v = 0
	}
	n := uint32(v)
	out := make([]byte, 0, MaxGroups)
	for n > 0x7f {
		out = append(out, byte(n&0x7f)|0x80)
		n >>= 7
	}
	return append(out, byte(n))
}

// Size is the encoded length of v.
func Size(v int) int {
	if v <= 0 {
		return 1
	}
	n := 1
	for u := uint32(v); u > 0x7f; u >>= 7 {
		n++
	}
	return n
}
