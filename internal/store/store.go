package store

import (
	"maps"
	"slices"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/ZehenForever/dpsmeter/internal/metrics"
	"github.com/ZehenForever/dpsmeter/internal/model"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// NameObserver is told about every nickname the registry accepts.
type NameObserver interface {
	ObserveNickname(actorID int, name string)
}

// Store holds decoded combat events indexed by target and by actor, plus the
// nickname, summon and mob registries. Event lists are kept ordered by
// (timestamp, id) and never contain the same id twice.
type Store struct {
	mu       sync.RWMutex
	byTarget map[int][]model.CombatEvent
	byActor  map[int][]model.CombatEvent
	seen     map[uuid.UUID]struct{}

	nicknames map[int]string
	pending   map[int]string
	summons   map[int]int // summon -> owner
	mobs      map[int]int // instance -> mob code
	mobNames  map[int]string

	currentTarget atomic.Int64
	observer      NameObserver
	log           zerolog.Logger
}

// Snapshot is a point-in-time copy of the store; callers may keep it.
type Snapshot struct {
	ByTarget  map[int][]model.CombatEvent
	ByActor   map[int][]model.CombatEvent
	Nicknames map[int]string
	Summons   map[int]int
	Mobs      map[int]int
	MobNames  map[int]string
}

func New(log zerolog.Logger) *Store {
	s := &Store{log: log, mobNames: map[int]string{}}
	s.resetDamage()
	s.nicknames = map[int]string{}
	s.pending = map[int]string{}
	s.mobs = map[int]int{}
	return s
}

// SetObserver installs the nickname hook. It is called outside the store lock.
func (s *Store) SetObserver(o NameObserver) {
	s.mu.Lock()
	s.observer = o
	s.mu.Unlock()
}

func (s *Store) AppendDamage(ev model.CombatEvent) {
	if ev.ActorID == ev.TargetID {
		return
	}
	if ev.ID == uuid.Nil {
		ev.ID = uuid.New()
	}

	s.mu.Lock()
	if _, dup := s.seen[ev.ID]; dup {
		s.mu.Unlock()
		return
	}
	s.seen[ev.ID] = struct{}{}
	s.byTarget[ev.TargetID] = insertOrdered(s.byTarget[ev.TargetID], ev)
	s.byActor[ev.ActorID] = insertOrdered(s.byActor[ev.ActorID], ev)
	metrics.StoredEvents.Set(float64(len(s.seen)))

	var applied string
	if _, named := s.nicknames[ev.ActorID]; !named {
		if p, ok := s.pending[ev.ActorID]; ok {
			delete(s.pending, ev.ActorID)
			if s.setNickname(ev.ActorID, p) {
				applied = p
			}
		}
	}
	obs := s.observer
	s.mu.Unlock()

	if applied != "" && obs != nil {
		obs.ObserveNickname(ev.ActorID, applied)
	}
}

func insertOrdered(list []model.CombatEvent, ev model.CombatEvent) []model.CombatEvent {
	n := len(list)
	if n == 0 || list[n-1].Less(ev) {
		return append(list, ev)
	}
	i := sort.Search(n, func(i int) bool { return ev.Less(list[i]) })
	return slices.Insert(list, i, ev)
}

func (s *Store) AppendNickname(actorID int, name string) {
	s.mu.Lock()
	ok := s.setNickname(actorID, name)
	obs := s.observer
	s.mu.Unlock()
	if ok && obs != nil {
		obs.ObserveNickname(actorID, name)
	}
}

// setNickname applies the registry guard: an identical name is a no-op, and a
// two-byte name never replaces a longer one. Caller holds mu.
func (s *Store) setNickname(actorID int, name string) bool {
	if old, ok := s.nicknames[actorID]; ok {
		if old == name {
			return false
		}
		if len(name) == 2 && len(name) < len(old) {
			s.log.Debug().Int("actor", actorID).Str("old", old).Str("new", name).Msg("nickname registration skipped")
			return false
		}
	}
	s.log.Debug().Int("actor", actorID).Str("old", s.nicknames[actorID]).Str("new", name).Msg("nickname registered")
	s.nicknames[actorID] = name
	return true
}

// CachePendingNickname remembers a name for an actor that has none yet. It is
// applied on the actor's first damage event.
func (s *Store) CachePendingNickname(actorID int, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.nicknames[actorID]; ok {
		return
	}
	s.pending[actorID] = name
}

func (s *Store) AppendSummon(ownerID, summonID int) {
	s.mu.Lock()
	s.summons[summonID] = ownerID
	s.mu.Unlock()
}

func (s *Store) AppendMob(instanceID, mobCode int) {
	s.mu.Lock()
	s.mobs[instanceID] = mobCode
	s.mu.Unlock()
}

func (s *Store) AppendMobCode(code int, name string) {
	s.mu.Lock()
	s.mobNames[code] = name
	s.mu.Unlock()
}

func (s *Store) SetCurrentTarget(id int) { s.currentTarget.Store(int64(id)) }

func (s *Store) CurrentTarget() int { return int(s.currentTarget.Load()) }

func (s *Store) Nickname(actorID int) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.nicknames[actorID]
	return n, ok
}

// TargetName resolves a target instance to its mob display name, if known.
func (s *Store) TargetName(targetID int) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	code, ok := s.mobs[targetID]
	if !ok {
		return ""
	}
	return s.mobNames[code]
}

func (s *Store) EventCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.seen)
}

func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{
		ByTarget:  cloneLists(s.byTarget),
		ByActor:   cloneLists(s.byActor),
		Nicknames: maps.Clone(s.nicknames),
		Summons:   maps.Clone(s.summons),
		Mobs:      maps.Clone(s.mobs),
		MobNames:  maps.Clone(s.mobNames),
	}
}

func cloneLists(m map[int][]model.CombatEvent) map[int][]model.CombatEvent {
	out := make(map[int][]model.CombatEvent, len(m))
	for k, v := range m {
		out[k] = slices.Clone(v)
	}
	return out
}

// ResetDamage drops all events and summon mappings. Nicknames and mobs stay.
func (s *Store) ResetDamage() {
	s.mu.Lock()
	s.resetDamage()
	s.mu.Unlock()
	s.SetCurrentTarget(0)
	metrics.StoredEvents.Set(0)
	s.log.Info().Msg("damage events reset")
}

func (s *Store) resetDamage() {
	s.byTarget = map[int][]model.CombatEvent{}
	s.byActor = map[int][]model.CombatEvent{}
	s.seen = map[uuid.UUID]struct{}{}
	s.summons = map[int]int{}
}

func (s *Store) ResetNicknames() {
	s.mu.Lock()
	s.nicknames = map[int]string{}
	s.pending = map[int]string{}
	s.mu.Unlock()
}
