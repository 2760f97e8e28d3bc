package engine

import (
	"encoding/json"
	"testing"
)

func TestActorsSorted(t *testing.T) {
	s := DpsSnapshot{Actors: map[int]*PersonalAggregate{
		3: {TotalDamage: 10},
		1: {TotalDamage: 50},
		2: {TotalDamage: 50},
	}}
	rows := s.ActorsSorted()
	got := []int{rows[0].ActorID, rows[1].ActorID, rows[2].ActorID}
	if got[0] != 1 || got[1] != 2 || got[2] != 3 {
		t.Fatalf("order=%v want=[1 2 3]", got)
	}
}

func TestSnapshotClone_IsDeep(t *testing.T) {
	s := DpsSnapshot{Actors: map[int]*PersonalAggregate{
		1: {TotalDamage: 10, Skills: []SkillRow{{Code: 1, Hits: 1}}},
	}}
	c := s.clone()
	c.Actors[1].TotalDamage = 99
	c.Actors[1].Skills[0].Hits = 99
	if s.Actors[1].TotalDamage != 10 || s.Actors[1].Skills[0].Hits != 1 {
		t.Fatalf("clone shares state with original")
	}
}

func TestSnapshotJSON(t *testing.T) {
	s := DpsSnapshot{
		TargetName:   "Training Dummy",
		TargetID:     100,
		Mode:         ModeMostDamage,
		BattleTimeMs: 1500,
		Actors:       map[int]*PersonalAggregate{7: {Nickname: "Hrafn", Job: "Gladiator", TotalDamage: 30}},
	}
	b, err := json.Marshal(s)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if m["mode"] != "mostDamage" || m["battleTimeMs"] != float64(1500) {
		t.Fatalf("json=%s", b)
	}
	actors, ok := m["actors"].(map[string]any)
	if !ok || actors["7"] == nil {
		t.Fatalf("actors json=%s", b)
	}
}
