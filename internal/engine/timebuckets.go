package engine

import (
	"sort"
	"time"
)

type PlayerBucket struct {
	BucketStart   time.Time     `json:"bucketStart"`
	BucketSec     int64         `json:"bucketSec"`
	DamageByActor map[int]int64 `json:"damageByActor"`
	TotalDamage   int64         `json:"totalDamage"`
}

type PlayersSeries struct {
	Now        time.Time      `json:"now"`
	TargetID   int            `json:"targetId"`
	BucketSec  int64          `json:"bucketSec"`
	MaxBuckets int            `json:"maxBuckets"`
	Actors     []int          `json:"actors"`
	Buckets    []PlayerBucket `json:"buckets"`
}

type playersBucketAgg struct {
	bucketSec  int64
	maxBuckets int
	buckets    map[int64]map[int]int64
	totals     map[int64]int64
}

func newPlayersBucketAgg(bucketSec int64, maxBuckets int) *playersBucketAgg {
	if bucketSec <= 0 {
		bucketSec = 5
	}
	if maxBuckets <= 0 {
		maxBuckets = 100
	}
	return &playersBucketAgg{
		bucketSec:  bucketSec,
		maxBuckets: maxBuckets,
		buckets:    make(map[int64]map[int]int64),
		totals:     make(map[int64]int64),
	}
}

func (a *playersBucketAgg) add(ts time.Time, actor int, amount int64) {
	if amount <= 0 {
		return
	}
	unix := ts.Unix()
	start := unix - (unix % a.bucketSec)
	m := a.buckets[start]
	if m == nil {
		m = make(map[int]int64)
		a.buckets[start] = m
	}
	m[actor] += amount
	a.totals[start] += amount
}

// starts returns the newest maxBuckets bucket starts, newest first.
func (a *playersBucketAgg) starts() []int64 {
	out := make([]int64, 0, len(a.buckets))
	for bs := range a.buckets {
		out = append(out, bs)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] > out[j] })
	if len(out) > a.maxBuckets {
		out = out[:a.maxBuckets]
	}
	return out
}

// Series buckets the damage on one target by owner. With mineOnly set only
// the local player's actors are kept.
func (a *Aggregator) Series(targetID int, bucketSec int64, maxBuckets int, mineOnly bool) PlayersSeries {
	snap := a.src.Snapshot()
	a.mu.Lock()
	now := a.clock.Now()
	a.mu.Unlock()

	var local map[int]struct{}
	if mineOnly {
		local = a.identity.Resolve(snap.Nicknames, snap.Summons)
	}

	agg := newPlayersBucketAgg(bucketSec, maxBuckets)
	for _, ev := range snap.ByTarget[targetID] {
		uid := ownerOf(ev.ActorID, snap.Summons)
		if uid <= 0 {
			continue
		}
		if mineOnly {
			if _, ok := local[uid]; !ok {
				continue
			}
		}
		agg.add(ev.Timestamp, uid, int64(ev.Damage))
	}
	return agg.build(now, targetID)
}

func (a *playersBucketAgg) build(now time.Time, targetID int) PlayersSeries {
	starts := a.starts()
	totals := map[int]int64{}
	buckets := make([]PlayerBucket, 0, len(starts))
	for _, bs := range starts {
		row := PlayerBucket{
			BucketStart:   time.Unix(bs, 0).UTC(),
			BucketSec:     a.bucketSec,
			DamageByActor: a.buckets[bs],
			TotalDamage:   a.totals[bs],
		}
		for actor, v := range row.DamageByActor {
			totals[actor] += v
		}
		buckets = append(buckets, row)
	}

	actors := sortedKeys(totals)
	sort.SliceStable(actors, func(i, j int) bool { return totals[actors[i]] > totals[actors[j]] })

	return PlayersSeries{
		Now:        now,
		TargetID:   targetID,
		BucketSec:  a.bucketSec,
		MaxBuckets: a.maxBuckets,
		Actors:     actors,
		Buckets:    buckets,
	}
}
