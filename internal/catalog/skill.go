package catalog

import (
	"time"

	"github.com/ZehenForever/dpsmeter/internal/metrics"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/rs/zerolog"
)

// Offsets are the known variant suffixes added to a base skill code, in the
// order they are tried.
var Offsets = []int{
	0, 10, 20, 30, 40, 50,
	120, 130, 140, 150,
	230, 240, 250,
	340, 350,
	450,
	1230, 1240, 1250,
	1340, 1350,
	1450,
	2340, 2350,
	2450,
	3450,
}

func Canonical(code int) bool {
	return (code >= 11_000_000 && code <= 19_999_999) ||
		(code >= 3_000_000 && code <= 3_999_999) ||
		(code >= 100_000 && code <= 199_999)
}

// InferRange accepts a code inside a canonical range as-is, otherwise the
// first code-offset that lands inside one.
func InferRange(code int) (int, bool) {
	if Canonical(code) {
		return code, true
	}
	for _, off := range Offsets {
		if c := code - off; Canonical(c) {
			return c, true
		}
	}
	return code, false
}

// Infer maps a raw wire skill code to its base code. Catalogued base codes
// are tried first (code-offset for each offset), then the canonical ranges.
func (c *Catalog) Infer(code int) (int, bool) {
	for _, off := range Offsets {
		if base := code - off; c.Known(base) {
			return base, true
		}
	}
	return InferRange(code)
}

// Resolver wraps Catalog.Infer and reports each unresolved code once per TTL.
type Resolver struct {
	cat  *Catalog
	seen *expirable.LRU[int, struct{}]
	log  zerolog.Logger
}

func NewResolver(cat *Catalog, log zerolog.Logger) *Resolver {
	if cat == nil {
		cat = Builtin()
	}
	return &Resolver{
		cat:  cat,
		seen: expirable.NewLRU[int, struct{}](4096, nil, time.Hour),
		log:  log,
	}
}

func (r *Resolver) Catalog() *Catalog { return r.cat }

// Resolve returns the base code, or the raw code when nothing matches.
func (r *Resolver) Resolve(code int) int {
	c, ok := r.cat.Infer(code)
	if ok {
		return c
	}
	if !r.seen.Contains(code) {
		r.seen.Add(code, struct{}{})
		metrics.UnresolvedSkills.Inc()
		r.log.Debug().Int("skill", code).Msg("failed to infer skill code")
	}
	return code
}
