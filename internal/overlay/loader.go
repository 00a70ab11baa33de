package overlay

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/wegman-software/airspace-go/internal/logger"
)

// ErrRefreshInFlight is returned when a refresh is requested while one is running
var ErrRefreshInFlight = errors.New("overlay refresh already in flight")

// State is the loader state
type State int32

const (
	StateIdle State = iota
	StateLoading
)

func (s State) String() string {
	if s == StateLoading {
		return "loading"
	}
	return "idle"
}

// Builder produces layers for a viewport
type Builder interface {
	Build(ctx context.Context, vp Viewport, ceilingFt float64) ([]Layer, error)
}

// Snapshot is the loader's current published result
type Snapshot struct {
	State     State     `json:"-"`
	Viewport  Viewport  `json:"viewport"`
	CeilingFt float64   `json:"ceilingFt"`
	Layers    []Layer   `json:"layers"`
	Updated   time.Time `json:"updated"`
	Stale     bool      `json:"stale"`
	LastError string    `json:"lastError,omitempty"`
}

type request struct {
	vp        Viewport
	ceilingFt float64
}

// Loader keeps the current overlay layer set. Only one refresh runs at a
// time; failures keep the previous layers and mark them stale.
type Loader struct {
	builder   Builder
	debouncer *Debouncer
	log       *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc

	state      atomic.Int32
	generation atomic.Uint64

	mu       sync.RWMutex
	snapshot Snapshot
	pending  *request
	deferred bool
}

// NewLoader creates an idle loader. debounce <= 0 uses RefreshDebounce.
func NewLoader(builder Builder, debounce time.Duration) *Loader {
	if debounce <= 0 {
		debounce = RefreshDebounce
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Loader{
		builder:   builder,
		debouncer: NewDebouncer(debounce),
		log:       logger.Named("overlay.loader"),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Close stops pending scheduled refreshes and cancels a running one
func (l *Loader) Close() {
	l.debouncer.Stop()
	l.cancel()
}

// State returns idle or loading
func (l *Loader) State() State {
	return State(l.state.Load())
}

// Layers returns the most recently published layers
func (l *Loader) Layers() []Layer {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.snapshot.Layers
}

// Snapshot returns the published result and the current state
func (l *Loader) Snapshot() Snapshot {
	l.mu.RLock()
	s := l.snapshot
	l.mu.RUnlock()
	s.State = l.State()
	return s
}

// Invalidate discards any result still being computed and marks the
// published layers stale; the next refresh replaces them
func (l *Loader) Invalidate() {
	l.generation.Add(1)
	l.mu.Lock()
	l.snapshot.Stale = true
	l.mu.Unlock()
}

// Refresh rebuilds the layers for vp. It returns ErrRefreshInFlight without
// doing anything when another refresh is running. Build errors are logged
// and returned; the previously published layers stay in place.
func (l *Loader) Refresh(ctx context.Context, vp Viewport, ceilingFt float64) error {
	if !l.state.CompareAndSwap(int32(StateIdle), int32(StateLoading)) {
		return ErrRefreshInFlight
	}
	gen := l.generation.Load()

	err := l.refresh(ctx, gen, vp, ceilingFt)

	l.state.Store(int32(StateIdle))

	l.mu.Lock()
	rerun := l.deferred
	l.deferred = false
	l.mu.Unlock()
	if rerun {
		go l.flush()
	}
	return err
}

func (l *Loader) refresh(ctx context.Context, gen uint64, vp Viewport, ceilingFt float64) error {
	start := time.Now()
	layers, err := l.builder.Build(ctx, vp, ceilingFt)

	l.mu.Lock()
	defer l.mu.Unlock()

	if err != nil {
		l.snapshot.Stale = true
		l.snapshot.LastError = err.Error()
		if errors.Is(err, ErrViewportNotReady) {
			l.log.Debug("Skipping overlay refresh, viewport not ready")
		} else {
			l.log.Warn("Overlay refresh failed, keeping previous layers",
				zap.Int("layers", len(l.snapshot.Layers)),
				zap.Error(err))
		}
		return fmt.Errorf("overlay refresh: %w", err)
	}

	if l.generation.Load() != gen {
		l.log.Debug("Discarding superseded overlay result")
		return nil
	}

	if layers == nil {
		layers = []Layer{}
	}
	l.snapshot = Snapshot{
		Viewport:  vp,
		CeilingFt: ceilingFt,
		Layers:    layers,
		Updated:   time.Now(),
	}
	l.log.Debug("Overlay refreshed",
		zap.Int("layers", len(layers)),
		zap.Duration("duration", time.Since(start)))
	return nil
}

// Schedule requests a refresh for vp once the viewport has been still for
// the debounce period. Later calls replace earlier ones.
func (l *Loader) Schedule(vp Viewport, ceilingFt float64) {
	l.mu.Lock()
	l.pending = &request{vp: vp, ceilingFt: ceilingFt}
	l.mu.Unlock()
	l.debouncer.Trigger(l.flush)
}

// flush runs the pending scheduled refresh. If a refresh is already running
// the request is kept and retried when it finishes.
func (l *Loader) flush() {
	l.mu.Lock()
	req := l.pending
	l.pending = nil
	l.mu.Unlock()
	if req == nil || l.ctx.Err() != nil {
		return
	}

	err := l.Refresh(l.ctx, req.vp, req.ceilingFt)
	if errors.Is(err, ErrRefreshInFlight) {
		l.mu.Lock()
		if l.pending == nil {
			l.pending = req
		}
		l.deferred = true
		l.mu.Unlock()
		// The running refresh may have finished between the two checks
		if l.State() == StateIdle {
			l.mu.Lock()
			rerun := l.deferred
			l.deferred = false
			l.mu.Unlock()
			if rerun {
				go l.flush()
			}
		}
	}
}
