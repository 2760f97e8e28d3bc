package main

import (
	"context"
	"errors"
	"os"
	"os/signal"

	"github.com/ZehenForever/dpsmeter/internal/capture"
	"github.com/ZehenForever/dpsmeter/internal/server"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func serveCmd(flags *rootFlags) *cobra.Command {
	var (
		listen string
		speed  float64
		device string
	)

	cmd := &cobra.Command{
		Use:   "serve <capture>",
		Short: "Replay a capture and serve live snapshots to an overlay",
		Long: `serve replays a capture at the given pace and exposes the meter over
HTTP: JSON snapshots under /v1, a websocket push on /v1/ws and
Prometheus metrics on /metrics. The server keeps running after the
capture ends until interrupted.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(flags)
			if err != nil {
				return err
			}
			if listen == "" {
				listen = a.cfg.Listen
			}

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
			poll := a.cfg.PollInterval
			g.Go(func() error { return a.agg.Run(ctx, poll, srv.Publish) })
			g.Go(func() error {
				cs, err := capture.Replay(ctx, args[0], capture.Options{Device: device, Speed: speed}, a.log, func(c capture.Chunk) {
					if err := a.flows.Dispatch(c); err != nil {
						a.log.Warn().Err(err).Msg("chunk dropped")
					}
				})
				fs := a.flows.Close()
				if err != nil && !errors.Is(err, context.Canceled) {
					return err
				}
				a.log.Info().
					Int("packets", cs.Packets).
					Int("chunks", cs.Chunks).
					Int("flows", fs.Flows).
					Int("events", fs.Decoder.Damage).
					Msg("capture finished")
				return nil
			})

			if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&listen, "listen", "", "http listen address (default from config)")
	cmd.Flags().Float64Var(&speed, "speed", 1, "pace by capture timestamps (1 = real time, 0 = as fast as possible)")
	cmd.Flags().StringVar(&device, "device", "", "device label attached to the replayed flows")
	return cmd
}
