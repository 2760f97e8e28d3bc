package varint

import (
	"math/bits"
	"math/rand"
	"testing"
)

func wantLen(v int) int {
	n := bits.Len32(uint32(v))
	if n == 0 {
		return 1
	}
	return (n + 6) / 7
}

func TestRoundTrip_Boundaries(t *testing.T) {
	values := []int{0, 1, 0x7f, 0x80, 0x3fff, 0x4000, 0x1fffff, 0x200000, 0xfffffff, 0x10000000, 1<<31 - 1}
	for _, v := range values {
		enc := Encode(v)
		got := Decode(enc, 0)
		if got.Value != v || got.Length != len(enc) {
			t.Fatalf("v=%d got=%+v enc=% x", v, got, enc)
		}
		if got.Length != wantLen(v) {
			t.Fatalf("v=%d len=%d want=%d", v, got.Length, wantLen(v))
		}
		if Size(v) != got.Length {
			t.Fatalf("v=%d size=%d want=%d", v, Size(v), got.Length)
		}
	}
}

func TestRoundTrip_Random(t *testing.T) {
	r := rand.New(rand.NewSource(7))
	for i := 0; i < 10000; i++ {
		v := int(r.Int31())
		got := Decode(Encode(v), 0)
		if got.Value != v || got.Length != wantLen(v) {
			t.Fatalf("v=%d got=%+v", v, got)
		}
	}
}

func TestDecode_Offset(t *testing.T) {
	b := []byte{0xaa, 0xdc, 0x0b, 0x01}
	got := Decode(b, 1)
	if got.Value != 1500 || got.Length != 2 {
		t.Fatalf("got=%+v want value=1500 len=2", got)
	}
}

func TestDecode_Exhausted(t *testing.T) {
	cases := [][]byte{
		nil,
		{0x80},
		{0xff, 0xff},
	}
	for _, b := range cases {
		got := Decode(b, 0)
		if got.OK() || got.Value != -1 || got.Length != -1 {
			t.Fatalf("b=% x got=%+v want failure", b, got)
		}
	}
	if got := Decode([]byte{0x01}, 1); got.OK() {
		t.Fatalf("offset past end decoded: %+v", got)
	}
}

func TestDecode_TooManyGroups(t *testing.T) {
	b := []byte{0x80, 0x80, 0x80, 0x80, 0x80, 0x01}
	if got := Decode(b, 0); got.OK() {
		t.Fatalf("6-group varint decoded: %+v", got)
	}
	five := []byte{0xff, 0xff, 0xff, 0xff, 0x07}
	if got := Decode(five, 0); !got.OK() || got.Length != 5 {
		t.Fatalf("5-group varint: %+v", got)
	}
}
