package main

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/ZehenForever/dpsmeter/internal/capture"
	"github.com/ZehenForever/dpsmeter/internal/model"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

func decodeCmd(flags *rootFlags) *cobra.Command {
	var (
		file      string
		chunkSize int
	)

	cmd := &cobra.Command{
		Use:   "decode [hex...]",
		Short: "Decode raw stream bytes and list the combat events found",
		Long: `decode runs hex arguments (whitespace is ignored) or the raw bytes of
--file through envelope assembly and the decoder, then lists every
damage event in the store. --chunk splits the input to exercise
reassembly across chunk boundaries.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := decodeInput(file, args)
			if err != nil {
				return err
			}
			a, err := newApp(flags)
			if err != nil {
				return err
			}

			now := time.Now()
			for _, part := range split(data, chunkSize) {
				if err := a.flows.Dispatch(capture.Chunk{Data: part, Timestamp: now}); err != nil {
					return err
				}
			}
			fs := a.flows.Close()

			out := cmd.OutOrStdout()
			printEvents(out, a.store.Snapshot().ByTarget, a.cat.SkillName)
			cmd.Println()
			printLeaderboard(out, a.agg.Poll())
			cmd.Printf("\nenvelopes=%d damage=%d dot=%d nicknames=%d summons=%d unrecognized=%d recovered=%d\n",
				fs.Decoder.Envelopes, fs.Decoder.Damage, fs.Decoder.DoT, fs.Decoder.Nicknames,
				fs.Decoder.Summons, fs.Decoder.Unrecognized, fs.Decoder.Recovered)
			return nil
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "read raw bytes from a file instead of hex arguments")
	cmd.Flags().IntVar(&chunkSize, "chunk", 0, "split input into chunks of this many bytes (0 = one chunk)")
	return cmd
}

func decodeInput(file string, args []string) ([]byte, error) {
	if file != "" {
		if len(args) > 0 {
			return nil, errors.New("use either --file or hex arguments")
		}
		b, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("read input: %w", err)
		}
		return b, nil
	}
	if len(args) == 0 {
		return nil, errors.New("no input: pass hex bytes or --file")
	}
	clean := strings.Join(strings.Fields(strings.Join(args, " ")), "")
	b, err := hex.DecodeString(clean)
	if err != nil {
		return nil, fmt.Errorf("invalid hex input: %w", err)
	}
	return b, nil
}

func split(b []byte, size int) [][]byte {
	if size <= 0 || size >= len(b) {
		return [][]byte{b}
	}
	var out [][]byte
	for len(b) > 0 {
		n := min(size, len(b))
		out = append(out, b[:n])
		b = b[n:]
	}
	return out
}

func printEvents(out io.Writer, byTarget map[int][]model.CombatEvent, skillName func(int) string) {
	w := tabwriter.NewWriter(out, 0, 8, 2, ' ', 0)
	fmt.Fprintln(w, "Target\tActor\tSkill\tDamage\tFlags")
	for _, target := range sortedIDs(byTarget) {
		for _, ev := range byTarget[target] {
			skill := skillName(ev.SkillCode)
			if skill == "" {
				skill = fmt.Sprint(ev.SkillCode)
			}
			fmt.Fprintf(w, "%d\t%d\t%s\t%s\t%s\n", ev.TargetID, ev.ActorID, skill, humanize.Comma(int64(ev.Damage)), eventFlags(ev))
		}
	}
	_ = w.Flush()
}

func sortedIDs(m map[int][]model.CombatEvent) []int {
	var keys []int
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

func eventFlags(ev model.CombatEvent) string {
	names := ev.Specials.Names()
	if ev.IsDoT {
		names = append([]string{"dot"}, names...)
	}
	return strings.Join(names, ",")
}
