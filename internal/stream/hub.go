package stream

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/metric"

	"github.com/quakeview/server/internal/queue"
	"github.com/quakeview/server/pkg/delta"
)

const (
	DefaultTickRate   = 100 * time.Millisecond
	DefaultSendBuffer = 32
)

// Config tunes a Hub.
type Config struct {
	TickRate   time.Duration
	SendBuffer int
}

// TickStats summarizes one tick for a StatsSink.
type TickStats struct {
	Tick       uint64
	Recipients int
	Messages   int
	Bytes      int
	Dropped    int
	Values     int
	Duration   time.Duration
}

// StatsSink receives per-tick statistics. It is called on the tick
// goroutine and must not block.
type StatsSink interface {
	RecordTick(TickStats)
}

// Recipient is one viewer's end of the stream.
type Recipient struct {
	ID     string
	send   chan []byte
	done   chan struct{}
	closed sync.Once
}

// Messages delivers encoded deltas in tick order.
func (r *Recipient) Messages() <-chan []byte { return r.send }

// Done is closed when the hub stops serving the recipient, either after
// Leave or because the recipient fell behind.
func (r *Recipient) Done() <-chan struct{} { return r.done }

func (r *Recipient) close() {
	r.closed.Do(func() { close(r.done) })
}

type member struct {
	r   *Recipient
	enc *delta.Encoder
}

// Hub advances a Simulation at a fixed rate and sends every recipient the
// delta against the last snapshot it was sent. Membership changes are
// queued and only take effect between ticks.
type Hub struct {
	sim    Simulation
	cfg    Config
	logger *slog.Logger
	stats  StatsSink

	joins   *queue.Queue[*Recipient]
	leaves  *queue.Queue[string]
	resyncs *queue.Queue[string]

	// members is owned by the tick goroutine.
	members map[string]*member
	ticks   uint64
	count   atomic.Int64

	recipientGauge metric.Int64ObservableGauge
	messages       metric.Int64Counter
	bytes          metric.Int64Counter
	dropped        metric.Int64Counter
}

// Option configures a Hub.
type Option func(*Hub)

// WithStats reports every tick to sink.
func WithStats(sink StatsSink) Option {
	return func(h *Hub) { h.stats = sink }
}

// NewHub creates a hub for sim. Zero config fields take the defaults.
func NewHub(sim Simulation, cfg Config, logger *slog.Logger, opts ...Option) (*Hub, error) {
	if cfg.TickRate <= 0 {
		cfg.TickRate = DefaultTickRate
	}
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = DefaultSendBuffer
	}
	h := &Hub{
		sim:     sim,
		cfg:     cfg,
		logger:  logger,
		joins:   queue.New[*Recipient](),
		leaves:  queue.New[string](),
		resyncs: queue.New[string](),
		members: make(map[string]*member),
	}
	for _, opt := range opts {
		opt(h)
	}

	m := meter()
	var err error
	h.recipientGauge, err = m.Int64ObservableGauge("stream.recipients",
		metric.WithDescription("Connected stream recipients"))
	if err != nil {
		return nil, fmt.Errorf("creating recipients gauge: %w", err)
	}
	if _, err = m.RegisterCallback(func(ctx context.Context, o metric.Observer) error {
		o.ObserveInt64(h.recipientGauge, h.count.Load())
		return nil
	}, h.recipientGauge); err != nil {
		return nil, fmt.Errorf("registering recipients callback: %w", err)
	}
	if h.messages, err = m.Int64Counter("stream.messages",
		metric.WithDescription("Delta messages queued for recipients")); err != nil {
		return nil, fmt.Errorf("creating messages counter: %w", err)
	}
	if h.bytes, err = m.Int64Counter("stream.bytes", metric.WithUnit("By"),
		metric.WithDescription("Delta payload bytes queued for recipients")); err != nil {
		return nil, fmt.Errorf("creating bytes counter: %w", err)
	}
	if h.dropped, err = m.Int64Counter("stream.recipients.dropped",
		metric.WithDescription("Recipients disconnected for falling behind")); err != nil {
		return nil, fmt.Errorf("creating dropped counter: %w", err)
	}
	return h, nil
}

// Simulation returns the simulation the hub drives.
func (h *Hub) Simulation() Simulation { return h.sim }

// Join registers a new recipient. It receives its first message, a full
// snapshot, on the next tick.
func (h *Hub) Join() *Recipient {
	r := &Recipient{
		ID:   uuid.NewString(),
		send: make(chan []byte, h.cfg.SendBuffer),
		done: make(chan struct{}),
	}
	h.joins.Push(r)
	return r
}

// Leave removes a recipient at the next tick boundary.
func (h *Hub) Leave(id string) {
	h.leaves.Push(id)
}

// Resync makes the next message to id a full snapshot.
func (h *Hub) Resync(id string) {
	h.resyncs.Push(id)
}

// Recipients returns the number of recipients being served.
func (h *Hub) Recipients() int {
	return int(h.count.Load())
}

// Run ticks until ctx is done, then releases every recipient.
func (h *Hub) Run(ctx context.Context) error {
	ticker := time.NewTicker(h.cfg.TickRate)
	defer ticker.Stop()
	defer h.shutdown()

	h.logger.Info("Stream hub started", "tickRate", h.cfg.TickRate, "sendBuffer", h.cfg.SendBuffer)
	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			h.logger.Info("Stream hub stopped", "ticks", h.ticks)
			return ctx.Err()
		case now := <-ticker.C:
			if err := h.Tick(now.Sub(last)); err != nil {
				h.logger.Error("Stream tick failed", "tick", h.ticks, "error", err)
			}
			last = now
		}
	}
}

// Tick applies queued membership changes, advances the simulation by dt
// and sends one message to every recipient. Run calls it; it must not be
// called concurrently.
func (h *Hub) Tick(dt time.Duration) error {
	start := time.Now()
	h.applyMembership()

	if err := h.sim.Advance(dt); err != nil {
		return fmt.Errorf("advance: %w", err)
	}
	snap, err := Flatten(h.sim)
	if err != nil {
		return fmt.Errorf("snapshot: %w", err)
	}
	h.ticks++

	stats := TickStats{Tick: h.ticks, Values: len(snap)}
	ctx := context.Background()
	for id, m := range h.members {
		msg := m.enc.Encode(snap)
		select {
		case m.r.send <- msg:
			stats.Messages++
			stats.Bytes += len(msg)
		default:
			// The encoder already moved past msg; the viewer cannot catch up.
			h.logger.Warn("Stream recipient too slow, disconnecting", "recipient", id, "buffer", h.cfg.SendBuffer)
			h.remove(id)
			stats.Dropped++
			h.dropped.Add(ctx, 1)
		}
	}
	h.messages.Add(ctx, int64(stats.Messages))
	h.bytes.Add(ctx, int64(stats.Bytes))

	stats.Recipients = len(h.members)
	stats.Duration = time.Since(start)
	if h.stats != nil {
		h.stats.RecordTick(stats)
	}
	return nil
}

func (h *Hub) applyMembership() {
	for _, r := range h.joins.Drain() {
		h.members[r.ID] = &member{r: r, enc: delta.NewEncoder()}
		h.logger.Debug("Stream recipient joined", "recipient", r.ID)
	}
	for _, id := range h.leaves.Drain() {
		if _, ok := h.members[id]; ok {
			h.remove(id)
			h.logger.Debug("Stream recipient left", "recipient", id)
		}
	}
	for _, id := range h.resyncs.Drain() {
		if m, ok := h.members[id]; ok {
			m.enc.Reset()
		}
	}
	h.count.Store(int64(len(h.members)))
}

func (h *Hub) remove(id string) {
	if m, ok := h.members[id]; ok {
		delete(h.members, id)
		m.r.close()
	}
	h.count.Store(int64(len(h.members)))
}

func (h *Hub) shutdown() {
	h.applyMembership()
	for id := range h.members {
		h.remove(id)
	}
}
