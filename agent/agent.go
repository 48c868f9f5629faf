// Package agent defines the capability set the bot needs from a download
// agent. Backends live in subpackages; the capacity manager and the bot only
// see the Agent interface.
package agent

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when the agent accepted an upload but the item
// could not be located afterwards.
var ErrNotFound = errors.New("torrent not found in agent")

// Status is the coarse lifecycle state of a managed torrent.
type Status string

const (
	StatusChecking    Status = "checking"
	StatusDownloading Status = "downloading"
	StatusSeeding     Status = "seeding"
)

// ManagedTorrent is a torrent held by the agent under the bot's tag. Values
// are snapshots; the agent owns the real state.
type ManagedTorrent struct {
	ID         string
	Name       string
	AddedAt    time.Time
	UploadRate int64 // bytes per second
	Status     Status
	TotalSize  int64
}

// Agent is the download agent capability set. Implementations report
// failures through returned errors and must never panic across this
// boundary.
type Agent interface {
	// ListManaged returns the torrents managed by this bot.
	ListManaged(ctx context.Context) ([]ManagedTorrent, error)

	// Remove deletes a torrent, optionally with its downloaded data.
	Remove(ctx context.Context, id string, deleteData bool) error

	// Acquire adds a torrent from the raw contents of a .torrent file.
	Acquire(ctx context.Context, content []byte, paused bool) (*ManagedTorrent, error)

	// Resume starts a paused torrent.
	Resume(ctx context.Context, id string) error

	// FreeDiskBytes reports free space at the agent's save location. A
	// zero value means the query failed even when err is nil.
	// forceRefresh bypasses any cached snapshot.
	FreeDiskBytes(ctx context.Context, forceRefresh bool) (int64, error)
}
