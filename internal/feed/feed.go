// Package feed keeps an in-memory ticket snapshot per profile fresh and
// notifies dependents on change. Refresh is always a full snapshot fetch
// replaced wholesale; there is no delta or merge path.
package feed

import (
	"context"
	"log"
	"sort"
	"sync"
	"time"

	"adaqueue/routing-service/internal/metrics"
	"adaqueue/routing-service/internal/models"
	"adaqueue/routing-service/internal/store"
)

// Feed lifecycle states.
const (
	StateUninitialized = "uninitialized"
	StateLoading       = "loading"
	StateReady         = "ready"
	StateError         = "error"
)

const DefaultPollInterval = 5 * time.Second

// Snapshot is a point-in-time copy of the cache. State distinguishes
// "stale but last-known-good data" (Error with a non-zero LastRefresh)
// from "never loaded" (Error with zero LastRefresh, or Uninitialized).
type Snapshot struct {
	Tickets     []models.Ticket
	State       string
	LastRefresh time.Time
	Generation  uint64
}

// Manager owns the live ticket cache for one profile. All reads and writes
// go through its mutex; concurrency here is about many touchpoints reading
// one shared cache, not parallel mutation.
type Manager struct {
	profileID    string
	tickets      store.TicketStore
	pollInterval time.Duration

	mu          sync.Mutex
	state       string
	cache       []models.Ticket
	lastRefresh time.Time
	generation  uint64

	notify      chan struct{}
	subscribers []chan struct{}
}

func NewManager(profileID string, tickets store.TicketStore, pollInterval time.Duration) *Manager {
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}
	return &Manager{
		profileID:    profileID,
		tickets:      tickets,
		pollInterval: pollInterval,
		state:        StateUninitialized,
		notify:       make(chan struct{}, 1),
	}
}

func (m *Manager) ProfileID() string {
	return m.profileID
}

// Snapshot returns a copy of the cached tickets and the feed state.
func (m *Manager) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	tickets := make([]models.Ticket, len(m.cache))
	copy(tickets, m.cache)
	return Snapshot{
		Tickets:     tickets,
		State:       m.state,
		LastRefresh: m.lastRefresh,
		Generation:  m.generation,
	}
}

// Subscribe returns a channel that receives a signal after every
// successful refresh. Signals are coalesced; slow consumers never block
// the feed.
func (m *Manager) Subscribe() <-chan struct{} {
	ch := make(chan struct{}, 1)
	m.mu.Lock()
	m.subscribers = append(m.subscribers, ch)
	m.mu.Unlock()
	return ch
}

// Notify signals an external change event for this profile. The payload is
// never interpreted beyond "refresh now".
func (m *Manager) Notify() {
	select {
	case m.notify <- struct{}{}:
	default:
	}
}

// Refresh fetches a full snapshot and replaces the cache wholesale. Each
// call claims the next generation; if a newer refresh started while this
// one was in flight, the stale response is discarded rather than applied
// out of order. Errors leave the last-known-good cache in place and the
// feed in the recoverable Error state.
func (m *Manager) Refresh(ctx context.Context) error {
	m.mu.Lock()
	m.generation++
	generation := m.generation
	m.state = StateLoading
	m.mu.Unlock()

	start := time.Now()
	tickets, err := m.tickets.ListTickets(ctx, m.profileID)
	metrics.FeedRefreshSeconds.Observe(time.Since(start).Seconds())

	m.mu.Lock()
	defer m.mu.Unlock()
	if generation != m.generation {
		return nil
	}
	if err != nil {
		m.state = StateError
		metrics.FeedRefreshErrors.Inc()
		log.Printf("feed refresh error profile=%s err=%v", m.profileID, err)
		return err
	}
	sort.SliceStable(tickets, func(i, j int) bool {
		return tickets[i].CheckInTime.Before(tickets[j].CheckInTime)
	})
	m.cache = tickets
	m.state = StateReady
	m.lastRefresh = time.Now().UTC()
	metrics.FeedRefreshes.Inc()
	for _, ch := range m.subscribers {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
	return nil
}

// EnsureReady performs the initial load if the feed has never refreshed.
func (m *Manager) EnsureReady(ctx context.Context) error {
	m.mu.Lock()
	loaded := m.state == StateReady || !m.lastRefresh.IsZero()
	m.mu.Unlock()
	if loaded {
		return nil
	}
	return m.Refresh(ctx)
}

// Run drives the refresh loop until the context ends. Push notifications
// are the preferred trigger; the poll timer is the fallback and only fires
// when no notification arrived within the interval, so the two strategies
// never race each other.
func (m *Manager) Run(ctx context.Context) {
	if err := m.Refresh(ctx); err != nil {
		log.Printf("feed initial load failed profile=%s err=%v", m.profileID, err)
	}
	timer := time.NewTimer(m.pollInterval)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-m.notify:
			_ = m.Refresh(ctx)
		case <-timer.C:
			_ = m.Refresh(ctx)
		}
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(m.pollInterval)
	}
}

// Registry creates and tracks one Manager per profile, starting its run
// loop on first use.
type Registry struct {
	tickets      store.TicketStore
	pollInterval time.Duration

	mu       sync.Mutex
	ctx      context.Context
	managers map[string]*Manager
}

func NewRegistry(ctx context.Context, tickets store.TicketStore, pollInterval time.Duration) *Registry {
	return &Registry{
		tickets:      tickets,
		pollInterval: pollInterval,
		ctx:          ctx,
		managers:     make(map[string]*Manager),
	}
}

// Manager returns the feed for a profile, creating and starting it on
// first request.
func (r *Registry) Manager(profileID string) *Manager {
	r.mu.Lock()
	defer r.mu.Unlock()
	if manager, ok := r.managers[profileID]; ok {
		return manager
	}
	manager := NewManager(profileID, r.tickets, r.pollInterval)
	r.managers[profileID] = manager
	go manager.Run(r.ctx)
	return manager
}

// Notify forwards a change notification to the profile's manager if one is
// running; profiles nobody watches are not refreshed.
func (r *Registry) Notify(profileID string) {
	r.mu.Lock()
	manager, ok := r.managers[profileID]
	r.mu.Unlock()
	if ok {
		manager.Notify()
	}
}
