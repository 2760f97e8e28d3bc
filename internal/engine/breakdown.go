package engine

import (
	"github.com/ZehenForever/dpsmeter/internal/catalog"
	"github.com/ZehenForever/dpsmeter/internal/model"
)

type skillKey struct {
	actor int
	code  int
	dot   bool
}

// skillBreakdown groups hits by (owner, inferred skill code, DoT flag).
type skillBreakdown struct {
	rows map[skillKey]*SkillRow
	cat  *catalog.Catalog
}

func newSkillBreakdown(cat *catalog.Catalog) *skillBreakdown {
	return &skillBreakdown{rows: make(map[skillKey]*SkillRow), cat: cat}
}

func (b *skillBreakdown) add(uid, code int, job string, ev model.CombatEvent) {
	k := skillKey{actor: uid, code: code, dot: ev.IsDoT}
	row := b.rows[k]
	if row == nil {
		row = &SkillRow{ActorID: uid, Code: code, Name: b.cat.SkillName(code), IsDoT: ev.IsDoT}
		b.rows[k] = row
	}
	if row.Job == "" {
		row.Job = job
	}
	row.Hits++
	row.Damage += int64(ev.Damage)
	if ev.IsDoT {
		return
	}
	if ev.Specials.Has(model.SpecialBack) {
		row.Back++
	}
	if ev.Specials.Has(model.SpecialParry) {
		row.Parry++
	}
	if ev.Specials.Has(model.SpecialPerfect) {
		row.Perfect++
	}
	if ev.Specials.Has(model.SpecialDouble) {
		row.Double++
	}
}

// forActor returns the rows of one owner, highest damage first.
func (b *skillBreakdown) forActor(uid int) []SkillRow {
	var out []SkillRow
	for k, row := range b.rows {
		if k.actor == uid {
			out = append(out, *row)
		}
	}
	sortSkillRows(out)
	return out
}

func (b *skillBreakdown) all() []SkillRow {
	out := make([]SkillRow, 0, len(b.rows))
	for _, row := range b.rows {
		out = append(out, *row)
	}
	sortSkillRows(out)
	return out
}
