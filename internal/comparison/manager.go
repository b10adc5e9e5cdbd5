package comparison

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/alex-user-go/travelaz/internal/catalog"
	"github.com/alex-user-go/travelaz/internal/obs"
	"github.com/alex-user-go/travelaz/internal/search/types"
)

// Manager tracks open comparison sessions by id.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*Controller

	store    catalog.Store
	searcher Searcher
	conv     types.Converter
	idleTTL  time.Duration
	metrics  *obs.Metrics
	logger   *slog.Logger
	done     chan struct{}
	once     sync.Once
}

// NewManager creates a Manager. Sessions unused for idleTTL are closed.
func NewManager(store catalog.Store, searcher Searcher, conv types.Converter, idleTTL time.Duration, metrics *obs.Metrics, logger *slog.Logger) *Manager {
	m := &Manager{
		sessions: make(map[string]*Controller),
		store:    store,
		searcher: searcher,
		conv:     conv,
		idleTTL:  idleTTL,
		metrics:  metrics,
		logger:   logger,
		done:     make(chan struct{}),
	}

	// Start background cleanup
	go m.cleanup()

	return m
}

// Open starts a comparison for accommodationID in the given display currency
// and records a view on the accommodation.
func (m *Manager) Open(ctx context.Context, accommodationID, currency string) (*Controller, error) {
	acc, err := m.store.Get(ctx, accommodationID)
	if err != nil {
		return nil, err
	}

	ctrl := NewController(uuid.NewString(), acc, m.searcher, m.conv, m.logger)

	m.mu.Lock()
	m.sessions[ctrl.ID()] = ctrl
	m.mu.Unlock()
	m.metrics.SessionOpened()

	ctrl.Open(ctx, currency)
	go m.recordView(acc.ID)

	return ctrl, nil
}

// Get returns the open session with id.
func (m *Manager) Get(id string) (*Controller, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ctrl, ok := m.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return ctrl, nil
}

// Close closes and forgets the session with id.
func (m *Manager) Close(id string) error {
	m.mu.Lock()
	ctrl, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	ctrl.Close()
	m.metrics.SessionClosed()
	return nil
}

// Len returns the number of open sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Shutdown closes every session and stops the cleanup goroutine.
func (m *Manager) Shutdown() {
	m.once.Do(func() { close(m.done) })

	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]*Controller)
	m.mu.Unlock()

	for _, ctrl := range sessions {
		ctrl.Close()
		m.metrics.SessionClosed()
	}
}

// recordView is fire-and-forget; failures are only logged.
func (m *Manager) recordView(accommodationID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := m.store.IncrementViews(ctx, accommodationID); err != nil {
		m.logger.Warn("failed to record view", "accommodation_id", accommodationID, "error", err)
	}
}

// cleanup periodically closes idle sessions.
func (m *Manager) cleanup() {
	ticker := time.NewTicker(max(m.idleTTL/4, time.Second))
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.expireIdle(time.Now())
		case <-m.done:
			return
		}
	}
}

func (m *Manager) expireIdle(now time.Time) {
	var expired []*Controller

	m.mu.Lock()
	for id, ctrl := range m.sessions {
		if now.Sub(ctrl.idleSince()) > m.idleTTL {
			expired = append(expired, ctrl)
			delete(m.sessions, id)
		}
	}
	m.mu.Unlock()

	for _, ctrl := range expired {
		ctrl.Close()
		m.metrics.SessionClosed()
		m.logger.Debug("closed idle comparison", "session_id", ctrl.ID())
	}
}
