package capacity

import (
	"context"
	"sort"

	"github.com/pevans/promobot/agent"
	"github.com/pevans/promobot/metrics"
	"github.com/rs/zerolog"
)

// Eviction reasons, used in logs and metrics.
const (
	ReasonCount = "count"
	ReasonSize  = "size"
	ReasonDisk  = "disk"
)

// Report summarizes one enforcement pass.
type Report struct {
	Evicted []string // ids removed
	Failed  []string // ids whose removal failed
	// OverQuota is true when the pass ran out of eligible victims before
	// reaching the limit.
	OverQuota bool
}

// Manager keeps the agent's managed set within the configured limits by
// evicting the slowest-uploading, oldest torrents first.
type Manager struct {
	agent agent.Agent
	cfg   Config
	log   zerolog.Logger
}

// NewManager creates a capacity manager.
func NewManager(a agent.Agent, cfg Config, log zerolog.Logger) *Manager {
	return &Manager{
		agent: a,
		cfg:   cfg,
		log:   log.With().Str("component", "capacity").Logger(),
	}
}

// Config returns the limits the manager enforces.
func (m *Manager) Config() Config {
	return m.cfg
}

// EnforceCountAndSize makes room for pendingCount new torrents totalling
// pendingBytes. It never fails: list errors make it a no-op and removal
// errors are logged, leaving the torrent in place.
func (m *Manager) EnforceCountAndSize(ctx context.Context, pendingCount int, pendingBytes int64) Report {
	var report Report

	torrents, err := m.agent.ListManaged(ctx)
	if err != nil {
		m.log.Error().Err(err).Msg("Failed to list managed torrents")
		return report
	}
	metrics.SetManagedTorrents(len(torrents))

	count := len(torrents) + pendingCount
	size := pendingBytes
	for _, t := range torrents {
		size += t.TotalSize
	}

	over := func() (bool, string) {
		if count > m.cfg.MaxItemCount {
			return true, ReasonCount
		}
		if m.cfg.MaxTotalSizeBytes > 0 && size > m.cfg.MaxTotalSizeBytes {
			return true, ReasonSize
		}
		return false, ""
	}

	if exceeded, _ := over(); !exceeded {
		return report
	}

	m.log.Info().
		Int("count", count).
		Int("max_count", m.cfg.MaxItemCount).
		Int64("size", size).
		Int64("max_size", m.cfg.MaxTotalSizeBytes).
		Msg("Managed set over quota, evicting")

	for _, t := range m.victims(torrents) {
		exceeded, reason := over()
		if !exceeded {
			break
		}

		if !m.evict(ctx, t, reason, &report) {
			continue
		}
		count--
		size -= t.TotalSize
	}

	if exceeded, _ := over(); exceeded {
		report.OverQuota = true
		m.log.Warn().Int("count", count).Int64("size", size).Msg("No more eligible torrents to evict, proceeding over quota")
	}

	return report
}

// EnforceDiskSpace evicts torrents until the agent reports at least
// MinFreeDiskBytes free. It returns false when free space cannot be read or
// is still short after a forced re-read.
func (m *Manager) EnforceDiskSpace(ctx context.Context) (bool, Report) {
	var report Report

	free, err := m.agent.FreeDiskBytes(ctx, false)
	if err != nil || free == 0 {
		m.log.Error().Err(err).Msg("Failed to read free disk space")
		return false, report
	}
	metrics.SetFreeDiskBytes(free)

	if free >= m.cfg.MinFreeDiskBytes {
		return true, report
	}

	m.log.Info().
		Int64("free", free).
		Int64("min_free", m.cfg.MinFreeDiskBytes).
		Msg("Not enough free disk space, evicting")

	torrents, err := m.agent.ListManaged(ctx)
	if err != nil {
		m.log.Error().Err(err).Msg("Failed to list managed torrents")
		return false, report
	}

	for _, t := range m.victims(torrents) {
		if free >= m.cfg.MinFreeDiskBytes {
			break
		}

		if m.evict(ctx, t, ReasonDisk, &report) {
			free += t.TotalSize
		}
	}

	// Evictions are optimistic; confirm against the agent.
	free, err = m.agent.FreeDiskBytes(ctx, true)
	if err != nil || free == 0 {
		m.log.Error().Err(err).Msg("Failed to re-read free disk space")
		return false, report
	}
	metrics.SetFreeDiskBytes(free)

	if free < m.cfg.MinFreeDiskBytes {
		report.OverQuota = true
		return false, report
	}
	return true, report
}

// victims returns the evictable torrents ordered by upload rate, then age.
// Torrents being checked or uploading faster than ProtectedUploadRate are
// left out.
func (m *Manager) victims(torrents []agent.ManagedTorrent) []agent.ManagedTorrent {
	out := make([]agent.ManagedTorrent, 0, len(torrents))
	for _, t := range torrents {
		if !m.Evictable(t) {
			continue
		}
		out = append(out, t)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].UploadRate != out[j].UploadRate {
			return out[i].UploadRate < out[j].UploadRate
		}
		return out[i].AddedAt.Before(out[j].AddedAt)
	})

	return out
}

// Evictable reports whether t may be removed to free capacity.
func (m *Manager) Evictable(t agent.ManagedTorrent) bool {
	if t.Status == agent.StatusChecking {
		return false
	}
	return t.UploadRate <= m.cfg.ProtectedUploadRate
}

func (m *Manager) evict(ctx context.Context, t agent.ManagedTorrent, reason string, report *Report) bool {
	if err := m.agent.Remove(ctx, t.ID, true); err != nil {
		m.log.Error().Err(err).Str("id", t.ID).Str("name", t.Name).Str("reason", reason).Msg("Failed to evict torrent")
		metrics.RecordEviction(reason, false)
		report.Failed = append(report.Failed, t.ID)
		return false
	}

	m.log.Info().Str("id", t.ID).Str("name", t.Name).Str("reason", reason).Msg("Evicted torrent")
	metrics.RecordEviction(reason, true)
	report.Evicted = append(report.Evicted, t.ID)
	return true
}
