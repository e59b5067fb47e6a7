// Copyright 2024-2026 Remi Philippe
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Command replybot answers chat messages on Mattermost or Matrix according
// to trigger rules from its config file. With --replay it reads messages
// from standard input and prints the replies instead of connecting.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	flag "github.com/spf13/pflag"
	"go.mau.fi/util/exzerolog"
	"golang.org/x/sync/errgroup"

	"github.com/aiku/replybot/pkg/config"
	"github.com/aiku/replybot/pkg/connector"
	"github.com/aiku/replybot/pkg/credstore"
	"github.com/aiku/replybot/pkg/dispatch"
	"github.com/aiku/replybot/pkg/lifecycle"
	"github.com/aiku/replybot/pkg/session"
	"github.com/aiku/replybot/pkg/trigger"
)

// These are filled at build time with -ldflags.
var (
	Tag       = "unknown"
	Commit    = "unknown"
	BuildTime = "unknown"
)

var (
	replay     = flag.BoolP("replay", "r", false, "Read messages from stdin and print replies instead of connecting")
	configPath = flag.StringP("config", "c", "config.yaml", "Path to the config file")
)

func main() {
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		_, _ = fmt.Fprintln(os.Stderr, "Failed to load config:", err)
		os.Exit(10)
	}
	log, err := cfg.Logger()
	if err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(11)
	}
	exzerolog.SetupDefaults(log)
	log.Info().
		Str("version", Tag).
		Str("commit", Commit).
		Str("build_time", BuildTime).
		Bool("replay", *replay).
		Msg("Starting replybot")

	if err := run(*log, cfg); err != nil {
		log.Error().Err(err).Msg("Stopped with error")
		os.Exit(1)
	}
	log.Info().Msg("Stopped")
}

func run(log zerolog.Logger, cfg *config.Config) error {
	reg := trigger.NewRegistry()
	if err := trigger.Load(reg, cfg.Rules, cfg.Defaults); err != nil {
		return fmt.Errorf("invalid rules: %w", err)
	}
	reg.Seal()
	log.Debug().Int("rules", reg.Len()).Int("defaults", len(reg.Defaults())).Msg("Registered rules")
	disp := dispatch.New(log, cfg.Dispatch.Options()...)

	var runner interface {
		Run(ctx context.Context) error
	}
	if *replay {
		runner = &session.Replay{
			Registry:   reg,
			Dispatcher: disp,
			In:         os.Stdin,
			Out:        os.Stdout,
			Log:        log,
		}
	} else {
		store := credstore.New(cfg.State.Path)
		conn, err := connector.New(cfg.Connector, store, log)
		if err != nil {
			return err
		}
		log.Info().Str("network", conn.Network()).Str("state_path", store.Dir()).Msg("Running live session")
		runner = &session.Live{
			Registry:     reg,
			Dispatcher:   disp,
			Controller:   lifecycle.NewController(store, cfg.Lifecycle, log),
			NewTransport: conn.NewTransport,
			Log:          log,
		}
	}

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	runCtx, cancel := context.WithCancel(sigCtx)
	defer cancel()

	g := new(errgroup.Group)
	g.Go(func() error {
		defer cancel()
		return runner.Run(runCtx)
	})
	g.Go(func() error {
		<-runCtx.Done()
		if sigCtx.Err() != nil {
			log.Info().Msg("Interrupted, shutting down")
		}
		return nil
	})
	err := g.Wait()
	if sigCtx.Err() != nil {
		return nil
	}
	return err
}
