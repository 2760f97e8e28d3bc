package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"time"

	"github.com/ZehenForever/dpsmeter/internal/capture"
	"github.com/ZehenForever/dpsmeter/internal/engine"
	"github.com/ZehenForever/dpsmeter/internal/server"
	"github.com/ZehenForever/dpsmeter/internal/tail"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func followCmd(flags *rootFlags) *cobra.Command {
	var (
		listen    string
		srcPort   uint16
		dstPort   uint16
		fromStart bool
		poll      time.Duration
	)

	cmd := &cobra.Command{
		Use:   "follow <dump>",
		Short: "Follow a growing raw payload dump and serve live snapshots",
		Long: `follow reads the bytes an external sniffer appends to a single-flow
payload dump and decodes them as they arrive. The meter runs on wall
clock time and is served exactly like serve.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(flags)
			if err != nil {
				return err
			}
			a.agg.SetClock(engine.WallClock)
			if listen == "" {
				listen = a.cfg.Listen
			}

			fl, err := tail.NewFollower(args[0], tail.Options{
				StartAtEnd:   !fromStart,
				PollInterval: poll,
				OnTruncate: func() {
					a.log.Warn().Str("path", args[0]).Msg("dump truncated, reading from start")
				},
			})
			if err != nil {
				return err
			}
			defer fl.Stop()

			srv := server.New(a.agg, server.Options{
				Addr: listen,
				OnSettings: func(s server.Settings) {
					if err := a.saveSettings(s.Mode, s.Legacy, s.CharacterName, s.ActorID); err != nil {
						a.log.Warn().Err(err).Msg("settings not saved")
					}
				},
			}, a.log)

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
			defer stop()

			g, ctx := errgroup.WithContext(ctx)
			g.Go(func() error { return srv.ListenAndServe(ctx) })
			every := a.cfg.PollInterval
			g.Go(func() error { return a.agg.Run(ctx, every, srv.Publish) })
			g.Go(func() error {
				defer a.flows.Close()
				return fl.Run(ctx, func(b []byte) {
					c := capture.Chunk{SrcPort: srcPort, DstPort: dstPort, Data: b, Timestamp: time.Now()}
					if err := a.flows.Dispatch(c); err != nil {
						a.log.Warn().Err(err).Msg("chunk dropped")
					}
				})
			})

			if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&listen, "listen", "", "http listen address (default from config)")
	cmd.Flags().Uint16Var(&srcPort, "src-port", 0, "source port recorded for the dump")
	cmd.Flags().Uint16Var(&dstPort, "dst-port", 0, "destination port recorded for the dump")
	cmd.Flags().BoolVar(&fromStart, "from-start", false, "decode bytes already in the file")
	cmd.Flags().DurationVar(&poll, "poll", 100*time.Millisecond, "how often to check the dump for new bytes")
	return cmd
}
