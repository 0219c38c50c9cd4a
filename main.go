package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/samuelfneumann/goppo/experiment"
	"github.com/samuelfneumann/goppo/server"
	"golang.org/x/sync/errgroup"
)

func main() {
	configPath := flag.String("config", "config/cartpole.yaml",
		"path to the YAML experiment configuration")
	progress := flag.Bool("progress", false, "draw a progress bar of updates")
	flag.Parse()

	cfg, err := experiment.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	level, _ := cfg.Run.Level()
	logger := zerolog.New(zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: time.Kitchen,
	}).Level(level).With().Timestamp().Logger()

	// Interrupts stop training after the current update
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt,
		syscall.SIGTERM)
	defer stop()

	var opts []experiment.Option
	if *progress {
		opts = append(opts, experiment.WithProgress(os.Stdout))
	}

	var srv *server.Server
	if cfg.Server.Address != "" {
		srv = server.New(cfg.Server.Address, server.WithLogger(logger))
		opts = append(opts, experiment.WithTracker(srv))
	}

	exp, err := experiment.New(cfg, logger, opts...)
	if err != nil {
		logger.Fatal().Err(err).Msg("could not create experiment")
	}

	g, gctx := errgroup.WithContext(ctx)
	serveCtx, stopServing := context.WithCancel(gctx)
	defer stopServing()

	g.Go(func() error {
		defer stopServing()
		return exp.Run(gctx)
	})
	if srv != nil {
		g.Go(func() error {
			return srv.ListenAndServe(serveCtx)
		})
	}

	if err := g.Wait(); err != nil {
		logger.Fatal().Err(err).Msg("experiment failed")
	}
	logger.Info().Str("dir", exp.Dir()).Msg("done")
}
