package engine

import (
	"slices"
	"sort"
)

type SkillRow struct {
	ActorID int    `json:"actorId"`
	Code    int    `json:"code"`
	Name    string `json:"name"`
	Job     string `json:"job"`
	Hits    int64  `json:"hits"`
	Damage  int64  `json:"damage"`
	Back    int64  `json:"back"`
	Parry   int64  `json:"parry"`
	Perfect int64  `json:"perfect"`
	Double  int64  `json:"double"`
	IsDoT   bool   `json:"isDot"`
}

type PersonalAggregate struct {
	Nickname        string     `json:"nickname"`
	Job             string     `json:"job"`
	TotalDamage     int64      `json:"totalDamage"`
	DPS             float64    `json:"dps"`
	ContributionPct float64    `json:"contributionPct"`
	Skills          []SkillRow `json:"skills"`
}

type DpsSnapshot struct {
	TargetName   string                     `json:"targetName"`
	TargetID     int                        `json:"targetId"`
	Mode         Mode                       `json:"mode"`
	BattleTimeMs int64                      `json:"battleTimeMs"`
	Actors       map[int]*PersonalAggregate `json:"actors"`
}

type ActorRow struct {
	ActorID int
	*PersonalAggregate
}

// ActorsSorted orders the leaderboard by damage, highest first; ties go to the
// lower actor id.
func (s DpsSnapshot) ActorsSorted() []ActorRow {
	out := make([]ActorRow, 0, len(s.Actors))
	for id, pa := range s.Actors {
		out = append(out, ActorRow{ActorID: id, PersonalAggregate: pa})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].TotalDamage == out[j].TotalDamage {
			return out[i].ActorID < out[j].ActorID
		}
		return out[i].TotalDamage > out[j].TotalDamage
	})
	return out
}

func (s DpsSnapshot) clone() DpsSnapshot {
	out := s
	out.Actors = make(map[int]*PersonalAggregate, len(s.Actors))
	for id, pa := range s.Actors {
		cp := *pa
		cp.Skills = slices.Clone(pa.Skills)
		out.Actors[id] = &cp
	}
	return out
}

type TargetDecision struct {
	TargetIDs        []int  `json:"targetIds"`
	DisplayName      string `json:"displayName"`
	Mode             Mode   `json:"mode"`
	TrackingTargetID int    `json:"trackingTargetId"`
}

type TargetDetails struct {
	TargetID          int        `json:"targetId"`
	TotalTargetDamage int64      `json:"totalTargetDamage"`
	BattleTimeMs      int64      `json:"battleTimeMs"`
	Skills            []SkillRow `json:"skills"`
}

type TargetSummary struct {
	TargetID     int           `json:"targetId"`
	Name         string        `json:"name"`
	BattleTimeMs int64         `json:"battleTimeMs"`
	LastHitMs    int64         `json:"lastHitMs"`
	TotalDamage  int64         `json:"totalDamage"`
	ActorDamage  map[int]int64 `json:"actorDamage"`
}

type ActorSummary struct {
	ActorID  int    `json:"actorId"`
	Nickname string `json:"nickname"`
	Job      string `json:"job"`
}

type DetailsContext struct {
	CurrentTargetID int             `json:"currentTargetId"`
	Targets         []TargetSummary `json:"targets"`
	Actors          []ActorSummary  `json:"actors"`
}

func sortSkillRows(rows []SkillRow) {
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Damage != rows[j].Damage {
			return rows[i].Damage > rows[j].Damage
		}
		if rows[i].ActorID != rows[j].ActorID {
			return rows[i].ActorID < rows[j].ActorID
		}
		if rows[i].Code != rows[j].Code {
			return rows[i].Code < rows[j].Code
		}
		return !rows[i].IsDoT && rows[j].IsDoT
	})
}

func sortedKeys[V any](m map[int]V) []int {
	var keys []int
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
