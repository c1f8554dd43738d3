package live

import (
	"context"
	"errors"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"example.com/timelog/internal/domain"
	"example.com/timelog/internal/observability"
	"example.com/timelog/internal/projection"
)

// State describes the coordinator's lifecycle phase.
type State int32

const (
	// StateIdle: no open interval; only mutation signals cause work.
	StateIdle State = iota
	// StateActive: an interval is running; a recurring tick re-assembles so
	// the live duration advances.
	StateActive
	// StateReconciling: a mutation signal arrived and a refetch-reassemble
	// is in flight.
	StateReconciling
)

// ListStore is the read side of the persistence collaborator.
type ListStore interface {
	ListIntervals(ctx context.Context, ownerID string) ([]domain.TimeInterval, error)
}

// Snapshot is one published assembly result. Seq increases monotonically per
// coordinator; consumers can rely on it to detect staleness.
type Snapshot struct {
	Seq     uint64
	View    *projection.View
	Trigger string
}

// Coordinator re-runs projection assembly for one owner whenever a mutation
// signal arrives, on a fixed tick while an interval is open, and when the
// heartbeat timeout elapses without any inbound signal. Reassembly is
// snapshot-in, snapshot-out: the last one to complete wins and stale
// in-flight results are discarded by sequence number.
type Coordinator struct {
	store       ListStore
	ownerID     string
	loc         *time.Location
	startOfWeek time.Weekday
	tick        time.Duration
	heartbeat   time.Duration
	now         func() time.Time
	logger      *log.Logger

	signals chan Signal
	active  chan struct{}

	seq   atomic.Uint64
	state atomic.Int32
	wg    sync.WaitGroup

	mu     sync.Mutex
	latest *Snapshot
	subs   []chan Snapshot
}

// Option configures optional Coordinator behaviour.
type Option func(*Coordinator)

// WithLocation sets the viewer timezone (default UTC).
func WithLocation(loc *time.Location) Option {
	return func(c *Coordinator) { c.loc = loc }
}

// WithStartOfWeek sets the configured week start (default Monday).
func WithStartOfWeek(day time.Weekday) Option {
	return func(c *Coordinator) { c.startOfWeek = day }
}

// WithTickInterval sets the live-duration tick cadence (default 1s).
func WithTickInterval(d time.Duration) Option {
	return func(c *Coordinator) { c.tick = d }
}

// WithHeartbeatTimeout sets how long the coordinator tolerates signal
// silence before forcing a reconciliation (default 30s).
func WithHeartbeatTimeout(d time.Duration) Option {
	return func(c *Coordinator) { c.heartbeat = d }
}

// WithNow overrides the clock used for assembly instants.
func WithNow(now func() time.Time) Option {
	return func(c *Coordinator) { c.now = now }
}

// WithLogger overrides the logger used to report errors.
func WithLogger(logger *log.Logger) Option {
	return func(c *Coordinator) { c.logger = logger }
}

// NewCoordinator constructs a Coordinator for one owner.
func NewCoordinator(store ListStore, ownerID string, opts ...Option) *Coordinator {
	c := &Coordinator{
		store:       store,
		ownerID:     ownerID,
		loc:         time.UTC,
		startOfWeek: time.Monday,
		tick:        time.Second,
		heartbeat:   30 * time.Second,
		now:         time.Now,
		logger:      log.New(log.Writer(), "[live] ", log.LstdFlags),
		signals:     make(chan Signal, 16),
		active:      make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Notify queues a mutation signal. It never blocks: signals are idempotent
// refetch triggers, so when the buffer is full the pending reconciliation
// already covers this notification.
func (c *Coordinator) Notify(sig Signal) {
	select {
	case c.signals <- sig:
	default:
	}
	observability.RecordSignal(sig.String())
}

// Subscribe returns a channel receiving published snapshots. Slow consumers
// only ever see the most recent snapshot: delivery replaces, never queues.
func (c *Coordinator) Subscribe() <-chan Snapshot {
	ch := make(chan Snapshot, 1)
	c.mu.Lock()
	c.subs = append(c.subs, ch)
	if c.latest != nil {
		ch <- *c.latest
	}
	c.mu.Unlock()
	return ch
}

// Latest returns the most recently published snapshot, if any.
func (c *Coordinator) Latest() (Snapshot, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.latest == nil {
		return Snapshot{}, false
	}
	return *c.latest, true
}

// State reports the current lifecycle phase.
func (c *Coordinator) State() State {
	return State(c.state.Load())
}

// Run drives the coordinator until the context is cancelled. The ticker only
// exists while the latest view has an open interval, so no timer outlives the
// active entry or the coordinator itself.
func (c *Coordinator) Run(ctx context.Context) error {
	c.reconcile(ctx, "initial")

	heartbeat := time.NewTimer(c.heartbeat)
	defer heartbeat.Stop()

	var ticker *time.Ticker
	var tickC <-chan time.Time
	stopTicker := func() {
		if ticker != nil {
			ticker.Stop()
			ticker = nil
			tickC = nil
		}
	}
	defer stopTicker()

	for {
		select {
		case <-ctx.Done():
			c.wg.Wait()
			return ctx.Err()

		case sig := <-c.signals:
			resetTimer(heartbeat, c.heartbeat)
			c.state.Store(int32(StateReconciling))
			c.reconcile(ctx, sig.String())

		case <-tickC:
			c.reconcile(ctx, "tick")

		case <-heartbeat.C:
			// Signal silence can mean a silently dropped notification;
			// reconcile as if one had arrived.
			heartbeat.Reset(c.heartbeat)
			c.state.Store(int32(StateReconciling))
			c.reconcile(ctx, SignalHeartbeatTimeout.String())

		case <-c.active:
			if c.State() == StateActive {
				if ticker == nil {
					ticker = time.NewTicker(c.tick)
					tickC = ticker.C
				}
			} else {
				stopTicker()
			}
		}
	}
}

// reconcile launches one refetch-and-reassemble pass. The sequence number is
// claimed before the fetch so a slower, earlier pass can never overwrite the
// result of a later one.
func (c *Coordinator) reconcile(ctx context.Context, trigger string) {
	seq := c.seq.Add(1)
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()

		intervals, err := c.store.ListIntervals(ctx, c.ownerID)
		if err != nil {
			if !errors.Is(err, context.Canceled) {
				c.logger.Printf("list intervals (owner=%s, trigger=%s): %v", c.ownerID, trigger, err)
				observability.RecordAssemblyError(trigger)
			}
			return
		}

		view, err := projection.Assemble(c.ownerID, intervals, c.now(), c.loc, c.startOfWeek)
		if err != nil {
			c.logger.Printf("assemble (owner=%s, trigger=%s): %v", c.ownerID, trigger, err)
			observability.RecordAssemblyError(trigger)
			return
		}

		c.publish(Snapshot{Seq: seq, View: view, Trigger: trigger})
	}()
}

func (c *Coordinator) publish(snap Snapshot) {
	c.mu.Lock()
	if c.latest != nil && snap.Seq <= c.latest.Seq {
		c.mu.Unlock()
		observability.RecordStaleAssembly()
		return
	}
	c.latest = &snap

	prev := c.State()
	next := StateIdle
	if snap.View.Current != nil {
		next = StateActive
	}
	c.state.Store(int32(next))

	for _, ch := range c.subs {
		select {
		case ch <- snap:
		default:
			// Replace the stale snapshot the consumer never drained.
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- snap:
			default:
			}
		}
	}
	c.mu.Unlock()

	observability.RecordAssembly(snap.Trigger)
	if prev != next {
		select {
		case c.active <- struct{}{}:
		default:
		}
	}
}

func resetTimer(t *time.Timer, d time.Duration) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
	t.Reset(d)
}
