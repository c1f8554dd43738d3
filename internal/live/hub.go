package live

import (
	"context"
	"log"
	"sync"
	"time"
)

// Hub lazily manages one Coordinator per owner and fans mutation signals out
// to them.
type Hub struct {
	store ListStore
	opts  []Option

	mu     sync.Mutex
	ctx    context.Context
	coords map[string]*Coordinator
	wg     sync.WaitGroup
	logger *log.Logger
}

// NewHub constructs a Hub; opts are applied to every coordinator it creates.
func NewHub(store ListStore, logger *log.Logger, opts ...Option) *Hub {
	if logger == nil {
		logger = log.New(log.Writer(), "[live] ", log.LstdFlags)
	}
	return &Hub{
		store:  store,
		opts:   opts,
		coords: make(map[string]*Coordinator),
		logger: logger,
	}
}

// Start binds the hub to a lifecycle context. Coordinators created afterwards
// run until that context is cancelled.
func (h *Hub) Start(ctx context.Context) {
	h.mu.Lock()
	h.ctx = ctx
	h.mu.Unlock()
}

// Get returns the coordinator for the owner, creating and starting it on
// first use.
func (h *Hub) Get(ownerID string) *Coordinator {
	h.mu.Lock()
	defer h.mu.Unlock()

	if coord, ok := h.coords[ownerID]; ok {
		return coord
	}

	coord := NewCoordinator(h.store, ownerID, h.opts...)
	h.coords[ownerID] = coord

	ctx := h.ctx
	if ctx == nil {
		ctx = context.Background()
	}
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		if err := coord.Run(ctx); err != nil && ctx.Err() == nil {
			h.logger.Printf("coordinator stopped (owner=%s): %v", ownerID, err)
		}
	}()
	return coord
}

// Notify routes a mutation signal to the owner's coordinator, creating it if
// the owner has none yet so late subscribers still find a warm view.
func (h *Hub) Notify(ownerID string, sig Signal) {
	h.Get(ownerID).Notify(sig)
}

// Wait blocks until every coordinator has stopped. Call after cancelling the
// context passed to Start.
func (h *Hub) Wait() {
	h.wg.Wait()
}

// WaitTimeout waits up to d for coordinators to stop; it returns false when
// the deadline passes first.
func (h *Hub) WaitTimeout(d time.Duration) bool {
	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-time.After(d):
		return false
	}
}
