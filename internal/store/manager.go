package store

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/couchcryptid/incident-risk-service/internal/domain"
)

// Loader produces the full incident set for one snapshot.
type Loader interface {
	Name() string
	Load(ctx context.Context) ([]domain.Incident, error)
}

// Manager publishes snapshots. Reads are lock-free; reloads are serialized and
// swap in a fully built snapshot, so in-flight queries keep the one they hold.
type Manager struct {
	cellDeg float64
	logger  *slog.Logger

	current atomic.Pointer[Snapshot]

	reloadMu sync.Mutex
	version  uint64 // guarded by reloadMu
}

// NewManager creates a manager with no snapshot. indexCellDeg sizes the
// spatial buckets of every snapshot it builds.
func NewManager(indexCellDeg float64, logger *slog.Logger) *Manager {
	return &Manager{cellDeg: indexCellDeg, logger: logger}
}

// Current returns the active snapshot, or nil before the first successful load.
func (m *Manager) Current() *Snapshot {
	return m.current.Load()
}

// Version returns the active store_version, 0 before the first load.
func (m *Manager) Version() uint64 {
	if s := m.current.Load(); s != nil {
		return s.Version()
	}
	return 0
}

// Reload loads and indexes a new snapshot, then publishes it. On failure the
// previous snapshot stays active and the error is returned.
func (m *Manager) Reload(ctx context.Context, loader Loader) (*Snapshot, error) {
	m.reloadMu.Lock()
	defer m.reloadMu.Unlock()

	start := time.Now()
	incidents, err := loader.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("reload %s: %w", loader.Name(), err)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("reload %s: %w", loader.Name(), err)
	}

	snap, err := Build(loader.Name(), incidents, m.version+1, m.cellDeg)
	if err != nil {
		return nil, fmt.Errorf("reload %s: %w", loader.Name(), err)
	}

	m.version++
	m.current.Store(snap)
	m.logger.Info("event store published",
		"source", loader.Name(),
		"store_version", snap.Version(),
		"incidents", snap.Len(),
		"latest", snap.Latest().Format(time.DateOnly),
		"duration", time.Since(start),
	)
	return snap, nil
}
