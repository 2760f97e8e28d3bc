package catalog

import (
	_ "embed"
	"fmt"
	"os"
	"strconv"

	"github.com/BurntSushi/toml"
)

//go:embed skills.toml
var builtinSkills []byte

// Catalog holds display names for canonical skill codes and mob codes.
type Catalog struct {
	known  map[int]struct{}
	skills map[int]string
	mobs   map[int]string
}

type catalogFile struct {
	Known  []int             `toml:"known"`
	Skills map[string]string `toml:"skills"`
	Mobs   map[string]string `toml:"mobs"`
}

// Builtin returns the compiled-in skill table. It has no mob names.
func Builtin() *Catalog {
	c := &Catalog{known: map[int]struct{}{}, skills: map[int]string{}, mobs: map[int]string{}}
	if err := c.merge(builtinSkills); err != nil {
		panic(fmt.Sprintf("catalog: builtin table: %v", err))
	}
	return c
}

// Load overlays the TOML file at path on top of the builtin table. An empty
// path returns the builtin table.
func Load(path string) (*Catalog, error) {
	c := Builtin()
	if path == "" {
		return c, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("catalog: read %s: %w", path, err)
	}
	if err := c.merge(b); err != nil {
		return nil, fmt.Errorf("catalog: %s: %w", path, err)
	}
	return c, nil
}

func (c *Catalog) merge(b []byte) error {
	var f catalogFile
	if err := toml.Unmarshal(b, &f); err != nil {
		return err
	}
	if err := mergeCodes(c.skills, f.Skills); err != nil {
		return fmt.Errorf("skills: %w", err)
	}
	for _, code := range f.Known {
		c.known[code] = struct{}{}
	}
	for code := range c.skills {
		c.known[code] = struct{}{}
	}
	if err := mergeCodes(c.mobs, f.Mobs); err != nil {
		return fmt.Errorf("mobs: %w", err)
	}
	return nil
}

func mergeCodes(dst map[int]string, src map[string]string) error {
	for k, v := range src {
		code, err := strconv.Atoi(k)
		if err != nil {
			return fmt.Errorf("bad code %q: %w", k, err)
		}
		dst[code] = v
	}
	return nil
}

func (c *Catalog) SkillName(code int) string {
	return c.skills[code]
}

func (c *Catalog) MobName(code int) string {
	return c.mobs[code]
}

// Mobs returns a copy of the mob code table.
func (c *Catalog) Mobs() map[int]string {
	out := make(map[int]string, len(c.mobs))
	for k, v := range c.mobs {
		out[k] = v
	}
	return out
}

func (c *Catalog) SkillCount() int { return len(c.skills) }

// Known reports whether code is a catalogued base skill code.
func (c *Catalog) Known(code int) bool {
	_, ok := c.known[code]
	return ok
}
