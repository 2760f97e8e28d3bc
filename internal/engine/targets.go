package engine

import (
	"time"

	"github.com/ZehenForever/dpsmeter/internal/model"
)

type TargetAggregate struct {
	TargetID int
	First    time.Time
	Last     time.Time
	Damage   int64
	Hits     int
}

func (t *TargetAggregate) add(ev model.CombatEvent) {
	if t.First.IsZero() || ev.Timestamp.Before(t.First) {
		t.First = ev.Timestamp
	}
	if t.Last.IsZero() || ev.Timestamp.After(t.Last) {
		t.Last = ev.Timestamp
	}
	t.Damage += int64(ev.Damage)
	t.Hits++
}

func (t *TargetAggregate) BattleTime() time.Duration {
	if t == nil || t.First.IsZero() {
		return 0
	}
	return t.Last.Sub(t.First)
}

// buildTargets folds the whole per-target history into fresh aggregates.
func buildTargets(byTarget map[int][]model.CombatEvent) map[int]*TargetAggregate {
	out := make(map[int]*TargetAggregate, len(byTarget))
	for id, evs := range byTarget {
		if len(evs) == 0 {
			continue
		}
		agg := &TargetAggregate{TargetID: id}
		for _, ev := range evs {
			agg.add(ev)
		}
		out[id] = agg
	}
	return out
}

func mostDamageTarget(targets map[int]*TargetAggregate) *TargetAggregate {
	var best *TargetAggregate
	for _, t := range targets {
		if best == nil || t.Damage > best.Damage || (t.Damage == best.Damage && t.TargetID < best.TargetID) {
			best = t
		}
	}
	return best
}

func mostRecentTarget(targets map[int]*TargetAggregate) *TargetAggregate {
	var best *TargetAggregate
	for _, t := range targets {
		if best == nil || t.Last.After(best.Last) || (t.Last.Equal(best.Last) && t.TargetID < best.TargetID) {
			best = t
		}
	}
	return best
}
