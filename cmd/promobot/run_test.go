package main

import (
	"bytes"
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pevans/promobot/agent"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestGoWait verifies wait blocks until the goroutine has finished its
// shutdown work
func TestGoWait(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var finished atomic.Bool

	wait := goWait(func() {
		<-ctx.Done()
		time.Sleep(20 * time.Millisecond)
		finished.Store(true)
	})

	cancel()
	wait()
	assert.True(t, finished.Load())

	// Waiting again returns immediately
	wait()
}

// TestResumeTorrents verifies every id is resumed and failures are reported
func TestResumeTorrents(t *testing.T) {
	ag := agent.NewMockAgent()
	ag.ResumeFunc = func(_ context.Context, id string) error {
		if id == "bad" {
			return errors.New("not found")
		}
		return nil
	}

	var out bytes.Buffer
	err := resumeTorrents(context.Background(), ag, []string{"aaa", "bad", "ccc"}, &out)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
	assert.Equal(t, []string{"aaa", "bad", "ccc"}, ag.ResumeCalls)
	assert.Contains(t, out.String(), "✓ Resumed aaa")
	assert.Contains(t, out.String(), "✗ bad: not found")
	assert.Contains(t, out.String(), "✓ Resumed ccc")
}

// TestResumeTorrents_AllOK verifies a clean run returns nil
func TestResumeTorrents_AllOK(t *testing.T) {
	ag := agent.NewMockAgent()

	var out bytes.Buffer
	require.NoError(t, resumeTorrents(context.Background(), ag, []string{"aaa"}, &out))
	assert.Equal(t, []string{"aaa"}, ag.ResumeCalls)
}
