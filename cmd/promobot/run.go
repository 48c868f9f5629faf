package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pevans/promobot/agent/qbittorrent"
	"github.com/pevans/promobot/bot"
	"github.com/pevans/promobot/capacity"
	"github.com/pevans/promobot/ledger"
	"github.com/pevans/promobot/statusapi"
	"github.com/pevans/promobot/tracker"
	"github.com/spf13/afero"
)

// flushTimeout bounds the final ledger save after the loop stops.
const flushTimeout = 10 * time.Second

// handleRun runs the polling loop until a termination signal or a fatal
// error and returns the process exit code.
func handleRun(args []string) int {
	cfg, _ := loadConfig("run", args)
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: invalid config:\n%v\n", err)
		return 1
	}

	log, err := newLogger(cfg.Log, os.Stderr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	botCfg, err := cfg.Orchestrator()
	if err != nil {
		log.Error().Err(err).Msg("Invalid bot config")
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fs := afero.NewOsFs()

	store, err := ledger.NewStore(cfg.Ledger.Type, cfg.Ledger.DSN, fs)
	if err != nil {
		log.Error().Err(err).Str("type", cfg.Ledger.Type).Msg("Failed to open ledger store")
		return 1
	}
	led, err := ledger.Open(ctx, store, log)
	if err != nil {
		store.Close()
		log.Error().Err(err).Msg("Failed to load ledger")
		return 1
	}
	defer func() {
		if err := led.Close(); err != nil {
			log.Error().Err(err).Msg("Failed to close ledger")
		}
	}()
	// Runs before Close; the loop context is already cancelled here.
	defer func() {
		saveCtx, cancel := context.WithTimeout(context.Background(), flushTimeout)
		defer cancel()
		if err := led.Save(saveCtx); err != nil {
			log.Error().Err(err).Msg("Failed to flush ledger")
		}
	}()

	session, err := tracker.New(cfg.Session(), fs, log)
	if err != nil {
		log.Error().Err(err).Msg("Failed to create tracker session")
		return 1
	}
	if err := session.Login(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			return 0
		}
		log.Error().Err(err).Msg("Tracker login failed")
		return 1
	}

	client := qbittorrent.New(cfg.Agent(), log)
	if err := client.Login(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			return 0
		}
		log.Error().Err(err).Msg("qBittorrent login failed")
		return 1
	}

	mgr := capacity.NewManager(client, cfg.CapacityConfig(), log)
	b := bot.New(botCfg, session, client, mgr, led, log)

	waitStatus := func() {}
	if cfg.Status.Listen != "" {
		srv := statusapi.NewServer(b, led, log)
		waitStatus = goWait(func() {
			if err := srv.ListenAndServe(ctx, cfg.Status.Listen); err != nil {
				log.Error().Err(err).Str("addr", cfg.Status.Listen).Msg("Status API failed")
			}
		})
	}

	err = b.Run(ctx)

	// A fatal error returns with ctx still live; cancel it so the status
	// API shuts down, and let it finish before the ledger flush.
	stop()
	waitStatus()

	if err != nil {
		log.Error().Err(err).Msg("Bot stopped on a fatal error")
		return 2
	}
	return 0
}

// goWait runs fn in a goroutine and returns a function that blocks until fn
// has returned.
func goWait(fn func()) (wait func()) {
	done := make(chan struct{})
	go func() {
		defer close(done)
		fn()
	}()
	return func() { <-done }
}
