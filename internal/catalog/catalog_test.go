package catalog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInferRange(t *testing.T) {
	tests := []struct {
		raw  int
		want int
		ok   bool
	}{
		{11020040, 11020040, true},
		{3000000, 3000000, true},
		{100051, 100051, true},
		{20000009, 19999999, true},
		{4000050, 3999930, true},
		{200010, 199990, true},
		{9999999, 9999999, false},
		{42, 42, false},
	}
	for _, tt := range tests {
		got, ok := InferRange(tt.raw)
		assert.Equal(t, tt.ok, ok, "raw=%d", tt.raw)
		assert.Equal(t, tt.want, got, "raw=%d", tt.raw)
	}
}

func TestCatalogInfer_VariantResolvesToBase(t *testing.T) {
	c := Builtin()
	got, ok := c.Infer(11020040)
	require.True(t, ok)
	assert.Equal(t, 11020000, got)

	got, ok = c.Infer(17010050)
	require.True(t, ok)
	assert.Equal(t, 17010000, got)

	// catalogued variants keep their own code
	got, ok = c.Infer(17040007)
	require.True(t, ok)
	assert.Equal(t, 17040007, got)

	// uncatalogued but in range
	got, ok = c.Infer(19990001)
	require.True(t, ok)
	assert.Equal(t, 19990001, got)
}

func TestResolver_UnresolvedKeepsRaw(t *testing.T) {
	r := NewResolver(Builtin(), zerolog.Nop())
	assert.Equal(t, 42, r.Resolve(42))
	assert.Equal(t, 42, r.Resolve(42))
	assert.Equal(t, 1, r.seen.Len())
	assert.Equal(t, 11020000, r.Resolve(11020040))
}

func TestJobFromSkill(t *testing.T) {
	job, ok := JobFromSkill(17010000)
	require.True(t, ok)
	assert.Equal(t, "Cleric", job)

	job, ok = JobFromSkill(11020000)
	require.True(t, ok)
	assert.Equal(t, "Gladiator", job)

	_, ok = JobFromSkill(19000000)
	assert.False(t, ok)
	_, ok = JobFromSkill(100051)
	assert.False(t, ok)
}

func TestBuiltin(t *testing.T) {
	c := Builtin()
	assert.Greater(t, c.SkillCount(), 300)
	assert.Equal(t, "Keen Strike", c.SkillName(11020000))
	assert.Equal(t, "", c.SkillName(1))
}

func TestLoad_Overlay(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "names.toml")
	body := "[skills]\n11020000 = \"Renamed\"\n\n[mobs]\n2001 = \"Training Dummy\"\n"
	require.NoError(t, os.WriteFile(p, []byte(body), 0o600))

	c, err := Load(p)
	require.NoError(t, err)
	assert.Equal(t, "Renamed", c.SkillName(11020000))
	assert.Equal(t, "Training Dummy", c.MobName(2001))
	assert.Equal(t, map[int]string{2001: "Training Dummy"}, c.Mobs())
}

func TestLoad_BadKey(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "bad.toml")
	require.NoError(t, os.WriteFile(p, []byte("[mobs]\nboss = \"x\"\n"), 0o600))
	_, err := Load(p)
	assert.Error(t, err)
}
