package stream

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quakeview/server/pkg/delta"
)

func receive(t *testing.T, r *Recipient) []byte {
	t.Helper()
	select {
	case msg := <-r.Messages():
		return msg
	default:
		t.Fatal("no message queued")
		return nil
	}
}

func TestHub_JoinAtTickBoundary(t *testing.T) {
	w := newTestWorld(t)
	h := newTestHub(t, w, Config{})

	r := h.Join()
	assert.NotEmpty(t, r.ID)
	assert.Equal(t, 0, h.Recipients())

	require.NoError(t, h.Tick(DefaultTickRate))
	assert.Equal(t, 1, h.Recipients())

	var dec delta.Decoder
	got, err := dec.Decode(receive(t, r))
	require.NoError(t, err)
	snap, err := Flatten(w)
	require.NoError(t, err)
	require.Len(t, got, 64)
	assert.Equal(t, snap, got[:len(snap)])
	assert.Equal(t, DefaultTickRate, w.Elapsed())
}

func TestHub_DeltaAfterFirstMessage(t *testing.T) {
	w := newTestWorld(t)
	h := newTestHub(t, w, Config{})
	r := h.Join()

	var dec delta.Decoder
	require.NoError(t, h.Tick(DefaultTickRate))
	_, err := dec.Decode(receive(t, r))
	require.NoError(t, err)

	require.NoError(t, h.Tick(DefaultTickRate))
	assert.Equal(t, make([]byte, 8), receive(t, r), "an unchanged world sends empty groups")

	require.NoError(t, w.SetField(2, "frame", 3))
	require.NoError(t, h.Tick(DefaultTickRate))
	msg := receive(t, r)
	assert.Len(t, msg, 8+4)

	got, err := dec.Decode(msg)
	require.NoError(t, err)
	assert.Equal(t, delta.Num(3), got[entityBase(2)+1])
}

func TestHub_Resync(t *testing.T) {
	w := newTestWorld(t)
	h := newTestHub(t, w, Config{})
	r := h.Join()

	require.NoError(t, h.Tick(DefaultTickRate))
	first := receive(t, r)
	require.NoError(t, h.Tick(DefaultTickRate))
	receive(t, r)

	h.Resync(r.ID)
	h.Resync("unknown")
	require.NoError(t, h.Tick(DefaultTickRate))
	assert.Equal(t, first, receive(t, r))
}

func TestHub_Leave(t *testing.T) {
	h := newTestHub(t, newTestWorld(t), Config{})
	a, b := h.Join(), h.Join()
	require.NoError(t, h.Tick(DefaultTickRate))
	receive(t, a)
	receive(t, b)

	h.Leave(a.ID)
	require.NoError(t, h.Tick(DefaultTickRate))
	assert.Equal(t, 1, h.Recipients())
	select {
	case <-a.Done():
	default:
		t.Fatal("left recipient not released")
	}
	assert.Empty(t, a.Messages())
	receive(t, b)
}

func TestHub_JoinAndLeaveSameTick(t *testing.T) {
	h := newTestHub(t, newTestWorld(t), Config{})
	r := h.Join()
	h.Leave(r.ID)

	require.NoError(t, h.Tick(DefaultTickRate))
	assert.Equal(t, 0, h.Recipients())
	assert.Empty(t, r.Messages())
}

func TestHub_SlowRecipientDisconnected(t *testing.T) {
	stats := &recordingStats{}
	h := newTestHub(t, newTestWorld(t), Config{SendBuffer: 1}, WithStats(stats))
	slow, fast := h.Join(), h.Join()

	require.NoError(t, h.Tick(DefaultTickRate))
	receive(t, fast)
	require.NoError(t, h.Tick(DefaultTickRate))

	select {
	case <-slow.Done():
	default:
		t.Fatal("slow recipient kept")
	}
	assert.Equal(t, 1, h.Recipients())
	receive(t, fast)

	last := stats.last()
	assert.Equal(t, uint64(2), last.Tick)
	assert.Equal(t, 1, last.Dropped)
	assert.Equal(t, 1, last.Recipients)
	assert.Equal(t, 1, last.Messages)
	assert.Equal(t, 8, last.Bytes)
	assert.Equal(t, SnapshotLen(3), last.Values)
}

type failingSim struct {
	StaticWorld
}

func (*failingSim) Advance(time.Duration) error { return errors.New("engine crashed") }

func TestHub_AdvanceError(t *testing.T) {
	h := newTestHub(t, &failingSim{}, Config{})
	r := h.Join()

	assert.ErrorContains(t, h.Tick(DefaultTickRate), "engine crashed")
	assert.Equal(t, 1, h.Recipients())
	assert.Empty(t, r.Messages())
}

func TestHub_Run(t *testing.T) {
	w := newTestWorld(t)
	h := newTestHub(t, w, Config{TickRate: 5 * time.Millisecond, SendBuffer: 64})
	r := h.Join()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.Run(ctx) }()

	select {
	case msg := <-r.Messages():
		assert.NotEmpty(t, msg)
	case <-time.After(time.Second):
		t.Fatal("no message from running hub")
	}

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
	select {
	case <-r.Done():
	case <-time.After(time.Second):
		t.Fatal("recipient not released on shutdown")
	}
	assert.Equal(t, 0, h.Recipients())
}

type recordingStats struct {
	mu    sync.Mutex
	ticks []TickStats
}

func (s *recordingStats) RecordTick(ts TickStats) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ticks = append(s.ticks, ts)
}

func (s *recordingStats) last() TickStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ticks[len(s.ticks)-1]
}
