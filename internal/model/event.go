package model

import (
	"bytes"
	"strings"
	"time"

	"github.com/google/uuid"
)

type SpecialFlag uint8

const (
	SpecialBack SpecialFlag = 1 << iota
	SpecialUnknown
	SpecialParry
	SpecialPerfect
	SpecialDouble
	SpecialEndure
	SpecialUnknown4
	SpecialPowerShard
)

var specialNames = []struct {
	flag SpecialFlag
	name string
}{
	{SpecialBack, "back"},
	{SpecialUnknown, "unknown"},
	{SpecialParry, "parry"},
	{SpecialPerfect, "perfect"},
	{SpecialDouble, "double"},
	{SpecialEndure, "endure"},
	{SpecialUnknown4, "unknown4"},
	{SpecialPowerShard, "powerShard"},
}

// Specials is a bit set of SpecialFlag values as read from the wire flag byte.
type Specials uint8

func (s Specials) Has(f SpecialFlag) bool { return uint8(s)&uint8(f) != 0 }

func (s Specials) Names() []string {
	var out []string
	for _, sn := range specialNames {
		if s.Has(sn.flag) {
			out = append(out, sn.name)
		}
	}
	return out
}

func (s Specials) String() string {
	return "[" + strings.Join(s.Names(), ",") + "]"
}

type CombatEvent struct {
	ID        uuid.UUID
	Timestamp time.Time
	ActorID   int
	TargetID  int
	SkillCode int
	Damage    int
	IsDoT     bool
	Specials  Specials

	// Wire fields kept for debugging; not used by aggregation.
	Switch int
	Flag   int
	Type   int
	Loop   int
}

// Less orders events by capture time, then by ID. It is the only ordering the store uses.
func (e CombatEvent) Less(o CombatEvent) bool {
	if !e.Timestamp.Equal(o.Timestamp) {
		return e.Timestamp.Before(o.Timestamp)
	}
	return bytes.Compare(e.ID[:], o.ID[:]) < 0
}
