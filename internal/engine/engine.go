package engine

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/ZehenForever/dpsmeter/internal/catalog"
	"github.com/ZehenForever/dpsmeter/internal/model"
	"github.com/ZehenForever/dpsmeter/internal/store"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type Mode string

const (
	ModeMostDamage  Mode = "mostDamage"
	ModeMostRecent  Mode = "mostRecent"
	ModeLastHitByMe Mode = "lastHitByMe"
	ModeAllTargets  Mode = "allTargets"
)

func ParseMode(s string) (Mode, error) {
	switch m := Mode(s); m {
	case ModeMostDamage, ModeMostRecent, ModeLastHitByMe, ModeAllTargets:
		return m, nil
	}
	return "", fmt.Errorf("unknown selection mode %q", s)
}

// LegacyMode is the old all/boss-only toggle. It is kept for settings
// compatibility and does not change aggregation.
type LegacyMode string

const (
	LegacyAll      LegacyMode = "all"
	LegacyBossOnly LegacyMode = "bossOnly"
)

const (
	staleSwitch = 10 * time.Second

	DefaultLastHitWindow = 10 * time.Second
	minLastHitWindow     = 5 * time.Second
	maxLastHitWindow     = 60 * time.Second

	minAllTargetsWindow = 10 * time.Second
	maxAllTargetsWindow = 900 * time.Second
)

// Source is the read side of the damage store.
type Source interface {
	Snapshot() store.Snapshot
	SetCurrentTarget(id int)
	ResetDamage()
}

type Options struct {
	Mode             Mode
	LastHitWindow    time.Duration
	AllTargetsWindow time.Duration
	Clock            Clock
}

// Aggregator turns store contents into a leaderboard. Every Poll recomputes
// from the full history, so calling it repeatedly is safe.
type Aggregator struct {
	src      Source
	identity *LocalIdentity
	resolver *catalog.Resolver
	log      zerolog.Logger

	mu            sync.Mutex
	clock         Clock
	mode          Mode
	legacy        LegacyMode
	lastHitWindow time.Duration
	allWindow     time.Duration

	currentTarget int
	lastLocalHit  time.Time
	lastPlayerID  int
	last          *DpsSnapshot
}

func New(src Source, identity *LocalIdentity, resolver *catalog.Resolver, opts Options, log zerolog.Logger) *Aggregator {
	if identity == nil {
		identity = NewLocalIdentity("", 0)
	}
	if resolver == nil {
		resolver = catalog.NewResolver(nil, log)
	}
	if opts.Mode == "" {
		opts.Mode = ModeLastHitByMe
	}
	if opts.Clock == nil {
		opts.Clock = WallClock
	}
	if opts.LastHitWindow == 0 {
		opts.LastHitWindow = DefaultLastHitWindow
	}
	a := &Aggregator{
		src:          src,
		identity:     identity,
		resolver:     resolver,
		log:          log.With().Str("component", "aggregator").Logger(),
		clock:        opts.Clock,
		mode:         opts.Mode,
		legacy:       LegacyBossOnly,
		lastPlayerID: identity.PlayerID(),
	}
	a.lastHitWindow = clampDuration(opts.LastHitWindow, minLastHitWindow, maxLastHitWindow)
	a.allWindow = clampAllTargets(opts.AllTargetsWindow)
	return a
}

func clampDuration(d, lo, hi time.Duration) time.Duration {
	return max(lo, min(d, hi))
}

// 0 keeps the all-targets window unbounded.
func clampAllTargets(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	return clampDuration(d, minAllTargetsWindow, maxAllTargetsWindow)
}

func (a *Aggregator) Identity() *LocalIdentity { return a.identity }

func (a *Aggregator) SetSelectionMode(m Mode) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.mode != m {
		a.log.Info().Str("from", string(a.mode)).Str("to", string(m)).Msg("target selection mode changed")
	}
	a.mode = m
}

func (a *Aggregator) SelectionMode() Mode {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.mode
}

func (a *Aggregator) SetLegacyMode(m LegacyMode) {
	a.mu.Lock()
	a.legacy = m
	a.mu.Unlock()
}

func (a *Aggregator) LegacyMode() LegacyMode {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.legacy
}

func (a *Aggregator) SetLastHitWindow(d time.Duration) {
	a.mu.Lock()
	a.lastHitWindow = clampDuration(d, minLastHitWindow, maxLastHitWindow)
	a.mu.Unlock()
}

func (a *Aggregator) SetAllTargetsWindow(d time.Duration) {
	a.mu.Lock()
	a.allWindow = clampAllTargets(d)
	a.mu.Unlock()
}

func (a *Aggregator) SetClock(c Clock) {
	a.mu.Lock()
	a.clock = c
	a.mu.Unlock()
}

// Reset drops all damage and the selection state. Nicknames survive.
func (a *Aggregator) Reset() {
	a.mu.Lock()
	a.src.ResetDamage()
	a.currentTarget = 0
	a.lastLocalHit = time.Time{}
	a.last = nil
	a.src.SetCurrentTarget(0)
	a.mu.Unlock()
	a.log.Info().Msg("target damage accumulation reset")
}

// ResetIdentity forgets the learned local player and resets damage.
func (a *Aggregator) ResetIdentity() {
	a.identity.Reset()
	if r, ok := a.src.(interface{ ResetNicknames() }); ok {
		r.ResetNicknames()
	}
	a.Reset()
	a.mu.Lock()
	a.lastPlayerID = a.identity.PlayerID()
	a.mu.Unlock()
}

func (a *Aggregator) Poll() DpsSnapshot {
	a.mu.Lock()
	defer a.mu.Unlock()

	if pid := a.identity.PlayerID(); pid != a.lastPlayerID {
		a.lastPlayerID = pid
		a.lastLocalHit = time.Time{}
		a.currentTarget = 0
	}

	snap := a.src.Snapshot()
	now := a.clock.Now()
	targets := buildTargets(snap.ByTarget)
	local := a.identity.Resolve(snap.Nicknames, snap.Summons)

	dec := a.decide(now, snap, targets, local)
	a.currentTarget = dec.TrackingTargetID
	a.src.SetCurrentTarget(a.currentTarget)

	out := DpsSnapshot{
		TargetName: dec.DisplayName,
		TargetID:   dec.TrackingTargetID,
		Mode:       dec.Mode,
		Actors:     map[int]*PersonalAggregate{},
	}

	var events []model.CombatEvent
	var battle time.Duration
	if dec.TrackingTargetID != 0 {
		events = snap.ByTarget[dec.TrackingTargetID]
		battle = targets[dec.TrackingTargetID].BattleTime()
	} else {
		events = a.collect(now, snap.ByTarget, dec.TargetIDs)
		battle = spanOf(events)
	}

	if battle.Milliseconds() <= 0 {
		if a.last == nil {
			return out
		}
		prev := a.last.clone()
		for uid, pa := range prev.Actors {
			pa.Nickname = nicknameFor(uid, snap.Nicknames, snap.Summons)
		}
		prev.TargetName = out.TargetName
		prev.TargetID = out.TargetID
		prev.Mode = out.Mode
		return prev
	}

	var total int64
	breakdown := newSkillBreakdown(a.resolver.Catalog())
	for _, ev := range events {
		total += int64(ev.Damage)
		uid := ownerOf(ev.ActorID, snap.Summons)
		if uid <= 0 {
			continue
		}
		pa := out.Actors[uid]
		if pa == nil {
			pa = &PersonalAggregate{Nickname: nicknameFor(uid, snap.Nicknames, snap.Summons)}
			out.Actors[uid] = pa
		}
		code := a.resolver.Resolve(ev.SkillCode)
		if pa.Job == "" {
			if job, ok := catalog.JobFromSkill(code); ok {
				pa.Job = job
			}
		}
		pa.TotalDamage += int64(ev.Damage)
		breakdown.add(uid, code, pa.Job, ev)
	}

	ms := battle.Milliseconds()
	for uid, pa := range out.Actors {
		if pa.Job == "" {
			if _, mine := local[uid]; !mine {
				delete(out.Actors, uid)
				continue
			}
			pa.Job = catalog.JobUnknown
		}
		pa.DPS = float64(pa.TotalDamage) * 1000 / float64(ms)
		if total > 0 {
			pa.ContributionPct = float64(pa.TotalDamage) * 100 / float64(total)
		}
		pa.Skills = breakdown.forActor(uid)
	}
	out.BattleTimeMs = ms

	if len(out.Actors) > 0 {
		keep := out.clone()
		a.last = &keep
	}
	return out
}

func (a *Aggregator) decide(now time.Time, snap store.Snapshot, targets map[int]*TargetAggregate, local map[int]struct{}) TargetDecision {
	if len(targets) == 0 {
		return TargetDecision{Mode: a.mode}
	}
	single := func(id int) TargetDecision {
		return TargetDecision{
			TargetIDs:        []int{id},
			DisplayName:      targetName(id, snap),
			Mode:             a.mode,
			TrackingTargetID: id,
		}
	}

	switch a.mode {
	case ModeMostDamage:
		best := mostDamageTarget(targets)
		recent := mostRecentTarget(targets)
		if best.TargetID != recent.TargetID &&
			now.Sub(best.Last) >= staleSwitch && now.Sub(recent.Last) < staleSwitch {
			return single(recent.TargetID)
		}
		return single(best.TargetID)
	case ModeMostRecent:
		return single(mostRecentTarget(targets).TargetID)
	case ModeLastHitByMe:
		if local == nil {
			return TargetDecision{TargetIDs: a.recentTargets(now, targets), Mode: a.mode}
		}
		id := a.selectLastHit(now, snap.ByActor, local, a.currentTarget)
		if id == 0 {
			return TargetDecision{Mode: a.mode}
		}
		return single(id)
	default:
		return TargetDecision{TargetIDs: a.recentTargets(now, targets), Mode: ModeAllTargets}
	}
}

// selectLastHit picks the target the local actors hit most often inside the
// window. It keeps the fallback while no newer local hit has arrived.
func (a *Aggregator) selectLastHit(now time.Time, byActor map[int][]model.CombatEvent, local map[int]struct{}, fallback int) int {
	cutoff := now.Add(-a.lastHitWindow)

	var newest time.Time
	newestTarget := fallback
	hits := map[int]int{}
	lastHit := map[int]time.Time{}
	for actor := range local {
		for _, ev := range byActor[actor] {
			if ev.TargetID <= 0 || ev.Damage <= 0 {
				continue
			}
			if ev.Timestamp.After(newest) {
				newest = ev.Timestamp
				newestTarget = ev.TargetID
			}
			if ev.Timestamp.Before(cutoff) {
				continue
			}
			hits[ev.TargetID]++
			if ev.Timestamp.After(lastHit[ev.TargetID]) {
				lastHit[ev.TargetID] = ev.Timestamp
			}
		}
	}

	if newest.IsZero() {
		return fallback
	}
	if !newest.After(a.lastLocalHit) && fallback != 0 {
		return fallback
	}
	a.lastLocalHit = newest

	if len(hits) == 0 {
		return newestTarget
	}
	ids := sortedKeys(hits)
	sort.SliceStable(ids, func(i, j int) bool {
		x, y := ids[i], ids[j]
		if hits[x] != hits[y] {
			return hits[x] > hits[y]
		}
		return lastHit[x].After(lastHit[y])
	})
	return ids[0]
}

func (a *Aggregator) recentTargets(now time.Time, targets map[int]*TargetAggregate) []int {
	ids := make([]int, 0, len(targets))
	for _, id := range sortedKeys(targets) {
		if a.allWindow > 0 && targets[id].Last.Before(now.Add(-a.allWindow)) {
			continue
		}
		ids = append(ids, id)
	}
	return ids
}

// collect merges the events of several targets, dropping repeats by id and
// anything older than the all-targets window.
func (a *Aggregator) collect(now time.Time, byTarget map[int][]model.CombatEvent, ids []int) []model.CombatEvent {
	var cutoff time.Time
	if a.allWindow > 0 {
		cutoff = now.Add(-a.allWindow)
	}
	seen := map[uuid.UUID]struct{}{}
	var out []model.CombatEvent
	for _, id := range ids {
		for _, ev := range byTarget[id] {
			if ev.Timestamp.Before(cutoff) {
				continue
			}
			if _, dup := seen[ev.ID]; dup {
				continue
			}
			seen[ev.ID] = struct{}{}
			out = append(out, ev)
		}
	}
	return out
}

func spanOf(events []model.CombatEvent) time.Duration {
	if len(events) == 0 {
		return 0
	}
	first, last := events[0].Timestamp, events[0].Timestamp
	for _, ev := range events[1:] {
		if ev.Timestamp.Before(first) {
			first = ev.Timestamp
		}
		if ev.Timestamp.After(last) {
			last = ev.Timestamp
		}
	}
	return last.Sub(first)
}

func ownerOf(actor int, summons map[int]int) int {
	if owner, ok := summons[actor]; ok {
		return owner
	}
	return actor
}

func nicknameFor(uid int, nicknames map[int]string, summons map[int]int) string {
	if n, ok := nicknames[uid]; ok {
		return n
	}
	if owner, ok := summons[uid]; ok {
		if n, ok := nicknames[owner]; ok {
			return n
		}
	}
	return strconv.Itoa(uid)
}

func targetName(id int, snap store.Snapshot) string {
	code, ok := snap.Mobs[id]
	if !ok {
		return ""
	}
	return snap.MobNames[code]
}

// Details returns the skill breakdown on one target, optionally limited to
// the given owners. Target totals always cover every actor.
func (a *Aggregator) Details(targetID int, actorIDs ...int) TargetDetails {
	snap := a.src.Snapshot()
	out := TargetDetails{TargetID: targetID, Skills: []SkillRow{}}
	events := snap.ByTarget[targetID]
	if len(events) == 0 {
		return out
	}
	var filter map[int]struct{}
	if len(actorIDs) > 0 {
		filter = make(map[int]struct{}, len(actorIDs))
		for _, id := range actorIDs {
			filter[id] = struct{}{}
		}
	}

	jobs := map[int]string{}
	breakdown := newSkillBreakdown(a.resolver.Catalog())
	var first, last time.Time
	for _, ev := range events {
		uid := ownerOf(ev.ActorID, snap.Summons)
		if uid <= 0 {
			continue
		}
		out.TotalTargetDamage += int64(ev.Damage)
		if filter != nil {
			if _, ok := filter[uid]; !ok {
				continue
			}
		}
		if first.IsZero() || ev.Timestamp.Before(first) {
			first = ev.Timestamp
		}
		if ev.Timestamp.After(last) {
			last = ev.Timestamp
		}
		code := a.resolver.Resolve(ev.SkillCode)
		if jobs[uid] == "" {
			if job, ok := catalog.JobFromSkill(code); ok {
				jobs[uid] = job
			}
		}
		breakdown.add(uid, code, jobs[uid], ev)
	}
	if !first.IsZero() {
		out.BattleTimeMs = last.Sub(first).Milliseconds()
	} else {
		out.BattleTimeMs = buildTargets(snap.ByTarget)[targetID].BattleTime().Milliseconds()
	}
	out.Skills = breakdown.all()
	return out
}

// DetailsContext summarizes every target and every attributed actor.
func (a *Aggregator) DetailsContext() DetailsContext {
	snap := a.src.Snapshot()
	targets := buildTargets(snap.ByTarget)

	a.mu.Lock()
	out := DetailsContext{CurrentTargetID: a.currentTarget, Targets: []TargetSummary{}, Actors: []ActorSummary{}}
	a.mu.Unlock()

	actors := map[int]*ActorSummary{}
	for _, id := range sortedKeys(snap.ByTarget) {
		sum := TargetSummary{TargetID: id, Name: targetName(id, snap), ActorDamage: map[int]int64{}}
		for _, ev := range snap.ByTarget[id] {
			uid := ownerOf(ev.ActorID, snap.Summons)
			if uid <= 0 {
				continue
			}
			sum.TotalDamage += int64(ev.Damage)
			sum.ActorDamage[uid] += int64(ev.Damage)
			meta := actors[uid]
			if meta == nil {
				meta = &ActorSummary{ActorID: uid, Nickname: nicknameFor(uid, snap.Nicknames, snap.Summons)}
				actors[uid] = meta
			}
			if meta.Job == "" {
				if job, ok := catalog.JobFromSkill(a.resolver.Resolve(ev.SkillCode)); ok {
					meta.Job = job
				}
			}
		}
		if t := targets[id]; t != nil {
			sum.BattleTimeMs = t.BattleTime().Milliseconds()
			sum.LastHitMs = t.Last.UnixMilli()
		}
		out.Targets = append(out.Targets, sum)
	}
	for _, id := range sortedKeys(actors) {
		out.Actors = append(out.Actors, *actors[id])
	}
	return out
}

// Run polls on every tick and hands each snapshot to fn until ctx is done.
func (a *Aggregator) Run(ctx context.Context, every time.Duration, fn func(DpsSnapshot)) error {
	if every <= 0 {
		every = 250 * time.Millisecond
	}
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			fn(a.Poll())
		}
	}
}
