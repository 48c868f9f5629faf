package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/pevans/promobot/agent"
	"github.com/pevans/promobot/agent/qbittorrent"
	"github.com/rs/zerolog"
)

func handleResume(args []string) {
	cfg, ids := loadConfig("resume", args)
	if len(ids) == 0 {
		fmt.Fprintf(os.Stderr, "Error: at least one info hash is required\n")
		fmt.Fprintf(os.Stderr, "Usage: promobot resume [-c config.yaml] <hash>...\n")
		os.Exit(1)
	}
	if cfg.QBittorrent.URL == "" {
		fmt.Fprintf(os.Stderr, "Error: qbittorrent.url is required\n")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client := qbittorrent.New(cfg.Agent(), zerolog.Nop())
	if err := resumeTorrents(ctx, client, ids, os.Stdout); err != nil {
		stop()
		os.Exit(1)
	}
}

// resumeTorrents starts each torrent, reporting per-id results to w. It
// keeps going past failures and returns them joined.
func resumeTorrents(ctx context.Context, ag agent.Agent, ids []string, w io.Writer) error {
	var errs []error
	for _, id := range ids {
		if err := ag.Resume(ctx, id); err != nil {
			fmt.Fprintf(w, "✗ %s: %v\n", id, err)
			errs = append(errs, err)
			continue
		}
		fmt.Fprintf(w, "✓ Resumed %s\n", id)
	}
	return errors.Join(errs...)
}
