package agent

import (
	"context"
	"sync"
)

// MockAgent is a test double for Agent. Every method can be overridden via
// its function field; the defaults operate on the Torrents slice so tests
// can observe evictions.
type MockAgent struct {
	// Configurable function implementations
	ListManagedFunc   func(ctx context.Context) ([]ManagedTorrent, error)
	RemoveFunc        func(ctx context.Context, id string, deleteData bool) error
	AcquireFunc       func(ctx context.Context, content []byte, paused bool) (*ManagedTorrent, error)
	ResumeFunc        func(ctx context.Context, id string) error
	FreeDiskBytesFunc func(ctx context.Context, forceRefresh bool) (int64, error)

	// State used by the default implementations
	Torrents  []ManagedTorrent
	FreeBytes int64

	// Call tracking
	mu                 sync.Mutex
	ListManagedCalls   int
	RemoveCalls        []string
	AcquireCalls       [][]byte
	ResumeCalls        []string
	FreeDiskBytesCalls []bool
}

// Ensure MockAgent implements the interface
var _ Agent = (*MockAgent)(nil)

// NewMockAgent creates a mock holding the given torrents.
func NewMockAgent(torrents ...ManagedTorrent) *MockAgent {
	return &MockAgent{Torrents: torrents}
}

// ListManaged returns a copy of the held torrents.
func (m *MockAgent) ListManaged(ctx context.Context) ([]ManagedTorrent, error) {
	m.mu.Lock()
	m.ListManagedCalls++
	m.mu.Unlock()

	if m.ListManagedFunc != nil {
		return m.ListManagedFunc(ctx)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]ManagedTorrent, len(m.Torrents))
	copy(out, m.Torrents)
	return out, nil
}

// Remove drops the torrent from the held set and credits its size to
// FreeBytes.
func (m *MockAgent) Remove(ctx context.Context, id string, deleteData bool) error {
	m.mu.Lock()
	m.RemoveCalls = append(m.RemoveCalls, id)
	m.mu.Unlock()

	if m.RemoveFunc != nil {
		return m.RemoveFunc(ctx, id, deleteData)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for i, t := range m.Torrents {
		if t.ID == id {
			m.Torrents = append(m.Torrents[:i], m.Torrents[i+1:]...)
			if deleteData {
				m.FreeBytes += t.TotalSize
			}
			return nil
		}
	}
	return ErrNotFound
}

// Acquire records the upload and returns a downloading torrent.
func (m *MockAgent) Acquire(ctx context.Context, content []byte, paused bool) (*ManagedTorrent, error) {
	m.mu.Lock()
	m.AcquireCalls = append(m.AcquireCalls, content)
	m.mu.Unlock()

	if m.AcquireFunc != nil {
		return m.AcquireFunc(ctx, content, paused)
	}

	t := ManagedTorrent{ID: string(content), Name: string(content), Status: StatusDownloading}
	m.mu.Lock()
	m.Torrents = append(m.Torrents, t)
	m.mu.Unlock()
	return &t, nil
}

// Resume records the call.
func (m *MockAgent) Resume(ctx context.Context, id string) error {
	m.mu.Lock()
	m.ResumeCalls = append(m.ResumeCalls, id)
	m.mu.Unlock()

	if m.ResumeFunc != nil {
		return m.ResumeFunc(ctx, id)
	}
	return nil
}

// FreeDiskBytes returns FreeBytes.
func (m *MockAgent) FreeDiskBytes(ctx context.Context, forceRefresh bool) (int64, error) {
	m.mu.Lock()
	m.FreeDiskBytesCalls = append(m.FreeDiskBytesCalls, forceRefresh)
	m.mu.Unlock()

	if m.FreeDiskBytesFunc != nil {
		return m.FreeDiskBytesFunc(ctx, forceRefresh)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	return m.FreeBytes, nil
}

// RemovedIDs returns the ids passed to Remove, in call order.
func (m *MockAgent) RemovedIDs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.RemoveCalls))
	copy(out, m.RemoveCalls)
	return out
}
