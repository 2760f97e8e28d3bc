package main

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/ZehenForever/dpsmeter/internal/capture"
	"github.com/ZehenForever/dpsmeter/internal/engine"
	"github.com/ZehenForever/dpsmeter/internal/flow"
	"github.com/dustin/go-humanize"
	"github.com/hako/durafmt"
)

func battleTime(ms int64) string {
	if ms <= 0 {
		return "0s"
	}
	return durafmt.Parse(time.Duration(ms) * time.Millisecond).LimitFirstN(2).String()
}

func printLeaderboard(out io.Writer, snap engine.DpsSnapshot) {
	name := snap.TargetName
	if name == "" {
		name = "all targets"
	}
	fmt.Fprintf(out, "Target: %s (%d)  mode=%s  battle=%s\n", name, snap.TargetID, snap.Mode, battleTime(snap.BattleTimeMs))

	w := tabwriter.NewWriter(out, 0, 8, 2, ' ', 0)
	fmt.Fprintln(w, "Actor\tJob\tTotal\tDPS\tShare")
	for _, row := range snap.ActorsSorted() {
		label := row.Nickname
		if label == "" {
			label = strconv.Itoa(row.ActorID)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%.1f%%\n",
			label, row.Job, humanize.Comma(row.TotalDamage), humanize.CommafWithDigits(row.DPS, 1), row.ContributionPct)
	}
	_ = w.Flush()
}

func printTargets(out io.Writer, ctx engine.DetailsContext, n int) {
	w := tabwriter.NewWriter(out, 0, 8, 2, ' ', 0)
	fmt.Fprintln(w, "Targets By Total Damage")
	fmt.Fprintln(w, "Target\tName\tTotal\tBattle")
	targets := ctx.Targets
	sortTargetsByDamage(targets)
	if n > 0 && len(targets) > n {
		targets = targets[:n]
	}
	for _, t := range targets {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", t.TargetID, t.Name, humanize.Comma(t.TotalDamage), battleTime(t.BattleTimeMs))
	}
	_ = w.Flush()
}

func printDetails(out io.Writer, d engine.TargetDetails) {
	fmt.Fprintf(out, "Skills on %d  total=%s  battle=%s\n", d.TargetID, humanize.Comma(d.TotalTargetDamage), battleTime(d.BattleTimeMs))
	w := tabwriter.NewWriter(out, 0, 8, 2, ' ', 0)
	fmt.Fprintln(w, "Actor\tSkill\tHits\tDamage\tBack\tParry\tPerfect\tDouble")
	for _, s := range d.Skills {
		skill := s.Name
		if s.IsDoT {
			skill += " (dot)"
		}
		fmt.Fprintf(w, "%d\t%s\t%d\t%s\t%d\t%d\t%d\t%d\n",
			s.ActorID, skill, s.Hits, humanize.Comma(s.Damage), s.Back, s.Parry, s.Perfect, s.Double)
	}
	_ = w.Flush()
}

func printStats(out io.Writer, cs capture.Stats, fs flow.Stats, elapsed time.Duration) {
	w := tabwriter.NewWriter(out, 0, 8, 2, ' ', 0)
	fmt.Fprintf(w, "packets\t%s\t(tcp %s, udp %s)\n", humanize.Comma(int64(cs.Packets)), humanize.Comma(int64(cs.TCP)), humanize.Comma(int64(cs.UDP)))
	fmt.Fprintf(w, "chunks\t%s\t(tls %d, flows %d)\n", humanize.Comma(int64(cs.Chunks)), fs.TLSChunks, fs.Flows)
	fmt.Fprintf(w, "envelopes\t%s\t(unrecognized %d, recovered %d)\n", humanize.Comma(int64(fs.Decoder.Envelopes)), fs.Decoder.Unrecognized, fs.Decoder.Recovered)
	fmt.Fprintf(w, "events\t%s\t(dot %d, self %d)\n", humanize.Comma(int64(fs.Decoder.Damage)), fs.Decoder.DoT, fs.Decoder.SelfDamage)
	fmt.Fprintf(w, "names\t%d\t(summons %d)\n", fs.Decoder.Nicknames, fs.Decoder.Summons)
	fmt.Fprintf(w, "capture\t%s\t(replayed in %s)\n", durafmt.Parse(cs.Duration).LimitFirstN(2).String(), durafmt.Parse(elapsed).LimitFirstN(2).String())
	_ = w.Flush()
}

func sortTargetsByDamage(ts []engine.TargetSummary) {
	sort.Slice(ts, func(i, j int) bool {
		if ts[i].TotalDamage == ts[j].TotalDamage {
			return ts[i].TargetID < ts[j].TargetID
		}
		return ts[i].TotalDamage > ts[j].TotalDamage
	})
}
