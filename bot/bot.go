// Package bot runs the polling loop: check disk, fetch the listing, pick
// candidates, make room, and acquire.
package bot

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pevans/promobot/agent"
	"github.com/pevans/promobot/capacity"
	"github.com/pevans/promobot/eligibility"
	"github.com/pevans/promobot/ledger"
	"github.com/pevans/promobot/listing"
	"github.com/pevans/promobot/metrics"
	"github.com/pevans/promobot/tracker"
	"github.com/rs/zerolog"
)

const (
	DefaultScanInterval      = 60 * time.Second
	DefaultDiskCheckInterval = 500 * time.Second
)

var (
	// ErrDiskCheckFailed aborts a tick when free space could not be brought
	// above the floor.
	ErrDiskCheckFailed = errors.New("disk space check failed")

	// ErrNotAuthenticated aborts a tick when the listing came back logged
	// out. A login is attempted before the next tick.
	ErrNotAuthenticated = errors.New("tracker session is not authenticated")
)

// Tracker is what the bot needs from the tracker session.
type Tracker interface {
	FetchListing(ctx context.Context) (*tracker.Page, error)
	Login(ctx context.Context) error
	Download(ctx context.Context, id string) ([]byte, error)
}

// Config holds the loop timing and selection policy.
type Config struct {
	ScanInterval      time.Duration
	DiskCheckInterval time.Duration
	Policy            eligibility.Policy
}

// Bot is the polling orchestrator. Run it from one goroutine; Status may be
// read from any.
type Bot struct {
	cfg      Config
	tracker  Tracker
	agent    agent.Agent
	capacity *capacity.Manager
	ledger   *ledger.Ledger
	log      zerolog.Logger
	now      func() time.Time

	lastDiskCheck time.Time

	mu     sync.RWMutex
	status Status
}

// New creates a bot. Zero intervals take their defaults.
func New(cfg Config, tr Tracker, ag agent.Agent, mgr *capacity.Manager, led *ledger.Ledger, log zerolog.Logger) *Bot {
	if cfg.ScanInterval <= 0 {
		cfg.ScanInterval = DefaultScanInterval
	}
	if cfg.DiskCheckInterval <= 0 {
		cfg.DiskCheckInterval = DefaultDiskCheckInterval
	}

	b := &Bot{
		cfg:      cfg,
		tracker:  tr,
		agent:    ag,
		capacity: mgr,
		ledger:   led,
		log:      log.With().Str("component", "bot").Logger(),
		now:      time.Now,
	}
	b.status.StartedAt = b.now()
	b.status.Stage = StageIdle
	return b
}

// Run ticks until ctx is cancelled, sleeping ScanInterval between ticks.
// Tick failures are logged and swallowed except ErrPageShapeChanged, which
// is returned. Cancellation returns nil.
func (b *Bot) Run(ctx context.Context) error {
	b.log.Info().
		Dur("scan_interval", b.cfg.ScanInterval).
		Dur("disk_check_interval", b.cfg.DiskCheckInterval).
		Msg("Bot starting")

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			b.log.Info().Msg("Bot stopping")
			return nil
		case <-timer.C:
		}

		err := b.Tick(ctx)
		if errors.Is(err, listing.ErrPageShapeChanged) {
			b.log.Error().Err(err).Msg("Listing page changed shape, stopping")
			return err
		}

		b.setStage(StageSleep)
		timer.Reset(b.cfg.ScanInterval)
	}
}

// Tick runs one pass of the loop. The returned error is a *StageError
// naming where the tick stopped; it has already been logged.
func (b *Bot) Tick(ctx context.Context) error {
	tickID := uuid.NewString()
	log := b.log.With().Str("tick_id", tickID).Logger()
	start := b.now()

	t := &tick{bot: b, log: log, summary: Summary{ID: tickID, StartedAt: start}}
	err := t.run(ctx)

	result := "ok"
	if err != nil {
		t.summary.Error = err.Error()
	}
	switch {
	case errors.Is(err, ErrNotAuthenticated):
		result = "unauthenticated"
		log.Warn().Err(err).Msg("Tick aborted")
	case err != nil:
		result = "error"
		log.Error().Err(err).Msg("Tick failed")
	}

	elapsed := b.now().Sub(start)
	metrics.RecordTick(result, elapsed.Seconds())
	b.finishTick(t.summary)

	log.Info().
		Str("result", result).
		Dur("elapsed", elapsed).
		Int("selected", t.summary.Selected).
		Int("acquired", t.summary.Acquired).
		Msg("Tick finished")
	return err
}

// tick carries the state of one pass.
type tick struct {
	bot     *Bot
	log     zerolog.Logger
	summary Summary
}

func (t *tick) enter(stage Stage) {
	t.summary.Stage = stage
	t.bot.setStage(stage)
}

func (t *tick) run(ctx context.Context) error {
	b := t.bot

	if b.diskCheckDue() {
		t.enter(StageCheckDisk)
		ok, report := b.capacity.EnforceDiskSpace(ctx)
		t.summary.Evicted += len(report.Evicted)
		if !ok {
			return &StageError{Stage: StageCheckDisk, Err: ErrDiskCheckFailed}
		}
		b.lastDiskCheck = b.now()
		b.mu.Lock()
		b.status.LastDiskCheckAt = b.lastDiskCheck
		b.mu.Unlock()
	}

	t.enter(StageFetchListing)
	page, err := b.tracker.FetchListing(ctx)
	if err != nil {
		return &StageError{Stage: StageFetchListing, Err: err}
	}
	if !page.Authenticated {
		if err := b.tracker.Login(ctx); err != nil {
			t.log.Error().Err(err).Msg("Failed to log in to tracker")
		}
		return &StageError{Stage: StageFetchListing, Err: ErrNotAuthenticated}
	}

	t.enter(StageExtract)
	candidates, err := t.extract(page)
	if err != nil {
		return &StageError{Stage: StageExtract, Err: err}
	}

	t.enter(StageFilter)
	res := eligibility.Select(candidates, b.ledger, b.cfg.Policy)
	t.summary.Promoted = res.Promoted
	t.summary.Selected = len(res.Selected)
	t.summary.Strict = res.Strict
	metrics.SetCandidates("promoted", res.Promoted)
	metrics.SetCandidates("selected", len(res.Selected))
	if res.Strict {
		metrics.RecordStrictCycle()
		t.log.Info().Int("promoted", res.Promoted).Msg("Broad promotion detected, strict mode")
	}
	for i, c := range res.Selected {
		t.log.Info().Int("n", i).Str("id", c.ID).Str("title", c.Title).Str("size", c.SizeText).Msg("Selected")
	}

	if len(res.Selected) == 0 {
		return nil
	}

	t.enter(StageReconcile)
	var pendingBytes int64
	for _, c := range res.Selected {
		pendingBytes += c.SizeBytes()
	}
	report := b.capacity.EnforceCountAndSize(ctx, len(res.Selected), pendingBytes)
	t.summary.Evicted += len(report.Evicted)

	t.enter(StageAcquire)
	for _, c := range res.Selected {
		if err := ctx.Err(); err != nil {
			return &StageError{Stage: StageAcquire, Err: err}
		}
		t.acquire(ctx, c)
	}

	if b.ledger.Dirty() {
		if err := b.ledger.Save(ctx); err != nil {
			t.log.Error().Err(err).Msg("Failed to flush ledger")
		}
	}
	metrics.SetLedgerSize(b.ledger.Len())

	return nil
}

func (t *tick) extract(page *tracker.Page) ([]listing.Candidate, error) {
	doc, err := page.Document()
	if err != nil {
		return nil, err
	}

	user, err := listing.ReadUserPanel(doc)
	if err != nil {
		return nil, err
	}
	t.log.Info().Str("user", user.Name).Str("stats", user.Stats).Msg("Signed in")
	t.bot.mu.Lock()
	t.bot.status.User = user.Name
	t.bot.mu.Unlock()

	candidates, err := listing.Extract(listing.ReadRows(doc))
	if err != nil {
		return nil, err
	}
	t.summary.Candidates = len(candidates)
	metrics.SetCandidates("listed", len(candidates))
	return candidates, nil
}

func (t *tick) acquire(ctx context.Context, c listing.Candidate) {
	b := t.bot
	log := t.log.With().Str("id", c.ID).Str("title", c.Title).Logger()

	content, err := b.tracker.Download(ctx, c.ID)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to download torrent")
		metrics.RecordAcquisition(false)
		return
	}

	torrent, err := b.agent.Acquire(ctx, content, false)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to add torrent")
		metrics.RecordAcquisition(false)
		return
	}

	b.ledger.Record(c.ID)
	t.summary.Acquired++
	metrics.RecordAcquisition(true)
	log.Info().Str("hash", torrent.ID).Msg("Acquired")
}

func (b *Bot) diskCheckDue() bool {
	return b.lastDiskCheck.IsZero() || b.now().Sub(b.lastDiskCheck) >= b.cfg.DiskCheckInterval
}

// StageError tags a tick failure with the stage it happened in.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}
