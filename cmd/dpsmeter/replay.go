package main

import (
	"context"
	"os"
	"os/signal"
	"time"

	"github.com/ZehenForever/dpsmeter/internal/capture"
	"github.com/spf13/cobra"
)

func replayCmd(flags *rootFlags) *cobra.Command {
	var (
		speed   float64
		device  string
		target  int
		top     int
		verbose bool
	)

	cmd := &cobra.Command{
		Use:   "replay <capture>",
		Short: "Replay a pcap/pcapng capture and print the damage table",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(flags)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
			defer stop()

			start := time.Now()
			var dispatchErr error
			cs, err := capture.Replay(ctx, args[0], capture.Options{Device: device, Speed: speed}, a.log, func(c capture.Chunk) {
				if err := a.flows.Dispatch(c); err != nil && dispatchErr == nil {
					dispatchErr = err
				}
			})
			fs := a.flows.Close()
			if err != nil {
				return err
			}
			if dispatchErr != nil {
				return dispatchErr
			}

			out := cmd.OutOrStdout()
			snap := a.agg.Poll()
			printLeaderboard(out, snap)
			cmd.Println()
			printTargets(out, a.agg.DetailsContext(), top)
			if target == 0 {
				target = snap.TargetID
			}
			if target != 0 {
				cmd.Println()
				printDetails(out, a.agg.Details(target))
			}
			if verbose {
				cmd.Println()
				printStats(out, cs, fs, time.Since(start))
			}
			return nil
		},
	}

	cmd.Flags().Float64Var(&speed, "speed", 0, "pace by capture timestamps (1 = real time, 0 = as fast as possible)")
	cmd.Flags().StringVar(&device, "device", "", "device label attached to the replayed flows")
	cmd.Flags().IntVar(&target, "target", 0, "print the skill breakdown for this target (default: the selected target)")
	cmd.Flags().IntVar(&top, "top", 10, "number of targets to list")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "print capture and decoder counters")
	return cmd
}
