package decode

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitize(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"Hrafn", "Hrafn", true},
		{"  Hrafn  ", "Hrafn", true},
		{"Hrafn\x00garbage", "Hrafn", true},
		{"Hrafn!x", "Hrafn", true},
		{"Hra�fn", "Hra", true},
		{"Hra\x01fn", "Hra", true},
		{"!Hrafn", "", false},
		{"", "", false},
		{"\x00Hrafn", "", false},
		{"12345", "", false},
		{"a", "", false},
		{"ab", "", false},
		{"ab1", "ab1", true},
		{"李", "李", true},
		{"李白", "李白", true},
		{"한글", "", false},
		{"한글이", "한글이", true},
		{"\xff\xfeab", "", false},
	}
	for _, tt := range tests {
		got, ok := Sanitize(tt.in)
		assert.Equal(t, tt.ok, ok, "in=%q", tt.in)
		assert.Equal(t, tt.want, got, "in=%q", tt.in)
	}
}
