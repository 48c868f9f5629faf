package bot

import "time"

// Stage is a step of a tick.
type Stage string

const (
	StageIdle         Stage = "idle"
	StageCheckDisk    Stage = "check_disk"
	StageFetchListing Stage = "fetch_listing"
	StageExtract      Stage = "extract"
	StageFilter       Stage = "filter"
	StageReconcile    Stage = "reconcile_capacity"
	StageAcquire      Stage = "acquire"
	StageSleep        Stage = "sleep"
)

// Summary describes one finished tick.
type Summary struct {
	ID         string    `json:"id"`
	StartedAt  time.Time `json:"started_at"`
	Stage      Stage     `json:"stage"` // last stage entered
	Candidates int       `json:"candidates"`
	Promoted   int       `json:"promoted"`
	Selected   int       `json:"selected"`
	Strict     bool      `json:"strict"`
	Evicted    int       `json:"evicted"`
	Acquired   int       `json:"acquired"`
	Error      string    `json:"error,omitempty"`
}

// Status is a point-in-time view of the bot.
type Status struct {
	StartedAt       time.Time `json:"started_at"`
	Stage           Stage     `json:"stage"`
	Ticks           int       `json:"ticks"`
	AcquiredTotal   int       `json:"acquired_total"`
	User            string    `json:"user,omitempty"`
	LastDiskCheckAt time.Time `json:"last_disk_check_at"`
	LastTick        *Summary  `json:"last_tick,omitempty"`
}

// Status returns a copy of the current status.
func (b *Bot) Status() Status {
	b.mu.RLock()
	defer b.mu.RUnlock()

	s := b.status
	if s.LastTick != nil {
		last := *s.LastTick
		s.LastTick = &last
	}
	return s
}

func (b *Bot) setStage(stage Stage) {
	b.mu.Lock()
	b.status.Stage = stage
	b.mu.Unlock()
}

func (b *Bot) finishTick(summary Summary) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.status.Ticks++
	b.status.AcquiredTotal += summary.Acquired
	b.status.LastTick = &summary
}
