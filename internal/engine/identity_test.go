package engine

import "testing"

func TestLocalIdentity_LearnsIDFromName(t *testing.T) {
	li := NewLocalIdentity(" Hrafn ", 0)
	li.ObserveNickname(9, "Sigrun")
	if li.PlayerID() != 0 {
		t.Fatalf("id=%d want=0", li.PlayerID())
	}
	li.ObserveNickname(7, "Hrafn")
	if li.PlayerID() != 7 {
		t.Fatalf("id=%d want=7", li.PlayerID())
	}
}

func TestLocalIdentity_LearningMatchesResolveCaseFold(t *testing.T) {
	li := NewLocalIdentity("Hrafn", 0)
	li.ObserveNickname(8, " hRAFN")
	if li.PlayerID() != 8 {
		t.Fatalf("id=%d want=8", li.PlayerID())
	}
	got := li.Resolve(map[int]string{8: " hRAFN"}, nil)
	if _, ok := got[8]; !ok || len(got) != 1 {
		t.Fatalf("resolve=%v want=map[8]", got)
	}

	empty := NewLocalIdentity("", 0)
	empty.ObserveNickname(5, "")
	if empty.PlayerID() != 0 {
		t.Fatalf("empty name bound id=%d", empty.PlayerID())
	}
}

func TestLocalIdentity_ResetFallsBackToConfigured(t *testing.T) {
	li := NewLocalIdentity("Hrafn", 3)
	li.ObserveNickname(7, "Hrafn")
	li.Reset()
	if li.PlayerID() != 3 {
		t.Fatalf("id=%d want=3", li.PlayerID())
	}
	li.BindActorID(-1)
	if li.PlayerID() != 0 {
		t.Fatalf("id=%d want=0", li.PlayerID())
	}
}

func TestLocalIdentity_ResolveUnknown(t *testing.T) {
	li := NewLocalIdentity("", 0)
	if got := li.Resolve(map[int]string{1: "Hrafn"}, nil); got != nil {
		t.Fatalf("resolve=%v want=nil", got)
	}
	li.SetCharacterName("Nobody")
	if got := li.Resolve(map[int]string{1: "Hrafn"}, nil); got != nil {
		t.Fatalf("resolve=%v want=nil", got)
	}
}

func TestLocalIdentity_ResolveFoldsCaseAndClosesOverSummons(t *testing.T) {
	li := NewLocalIdentity("HRAFN", 0)
	nicks := map[int]string{1: "hrafn", 2: "Sigrun", 4: " Hrafn"}
	// 10 and 11 belong to 1; 1 is also a summon of 3; 20 belongs to 2
	summons := map[int]int{10: 1, 11: 10, 1: 3, 20: 2}

	got := li.Resolve(nicks, summons)
	want := []int{1, 3, 4, 10, 11}
	if len(got) != len(want) {
		t.Fatalf("resolve=%v want=%v", sortedKeys(got), want)
	}
	for _, id := range want {
		if _, ok := got[id]; !ok {
			t.Fatalf("resolve=%v missing %d", sortedKeys(got), id)
		}
	}
}
