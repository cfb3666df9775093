package permissions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/yukikurage/project-hub-api/internal/events"
	"github.com/yukikurage/project-hub-api/internal/retry"
)

// Topic is the change-feed topic carrying full configuration records.
const Topic = "permissions"

// Store persists the single configuration record.
type Store interface {
	// Load returns ErrNotConfigured when nothing has been stored yet.
	Load(ctx context.Context) (Config, error)
	// SeedIfAbsent stores roles as revision 1 unless a record exists, and
	// returns whichever record is stored afterwards.
	SeedIfAbsent(ctx context.Context, roles RoleCapabilityMap) (Config, error)
	// Save replaces the stored map and bumps the revision.
	Save(ctx context.Context, roles RoleCapabilityMap, updatedBy uint64) (Config, error)
}

// snapshot is immutable once published through Engine.current.
type snapshot struct {
	state  State
	config Config
	grants map[Role]map[Capability]struct{}
}

func newSnapshot(cfg Config) *snapshot {
	grants := make(map[Role]map[Capability]struct{}, len(cfg.Roles))
	for role, caps := range cfg.Roles {
		set := make(map[Capability]struct{}, len(caps))
		for _, c := range caps {
			set[c] = struct{}{}
		}
		grants[role] = set
	}
	return &snapshot{state: StateReady, config: cfg, grants: grants}
}

// Engine answers capability checks against the live configuration.
type Engine struct {
	store   Store
	feed    events.Broker
	logger  *zap.Logger
	backoff *retry.Config

	current   atomic.Pointer[snapshot]
	ready     chan struct{}
	readyOnce sync.Once

	mu       sync.Mutex
	watchers map[chan Config]struct{}
	cancel   context.CancelFunc
	done     chan struct{}
}

// NewEngine creates an engine in the Uninitialized state.
func NewEngine(store Store, feed events.Broker, logger *zap.Logger) *Engine {
	e := &Engine{
		store:  store,
		feed:   feed,
		logger: logger,
		backoff: &retry.Config{
			InitialDelay: 200 * time.Millisecond,
			MaxDelay:     10 * time.Second,
			Multiplier:   2.0,
			JitterFactor: 0.1,
		},
		ready:    make(chan struct{}),
		watchers: make(map[chan Config]struct{}),
	}
	e.current.Store(&snapshot{state: StateUninitialized})
	return e
}

// Start subscribes to the feed and loads (or seeds) the configuration in
// the background. Checks deny until the first load succeeds.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cancel != nil {
		return ErrAlreadyStarted
	}

	runCtx, cancel := context.WithCancel(ctx)

	// Subscribe before loading so a push landing between the two is not lost.
	sub, err := e.feed.Subscribe(runCtx, Topic)
	if err != nil {
		cancel()
		return fmt.Errorf("subscribe to permission feed: %w", err)
	}

	e.cancel = cancel
	e.done = make(chan struct{})
	e.current.CompareAndSwap(e.current.Load(), &snapshot{state: StateLoading})

	go e.run(runCtx, sub)
	return nil
}

// Stop ends the feed subscription and waits for the background goroutine.
func (e *Engine) Stop() {
	e.mu.Lock()
	cancel, done := e.cancel, e.done
	e.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// WaitReady blocks until the configuration is loaded or ctx is done.
func (e *Engine) WaitReady(ctx context.Context) error {
	select {
	case <-e.ready:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%w: %w", ErrUnavailable, ctx.Err())
	}
}

// State reports the lifecycle state.
func (e *Engine) State() State {
	return e.current.Load().state
}

// Snapshot returns the live configuration. The result is a copy.
func (e *Engine) Snapshot() (Config, error) {
	s := e.current.Load()
	if s.state != StateReady {
		return Config{}, ErrUnavailable
	}
	cfg := s.config
	cfg.Roles = cfg.Roles.Normalize()
	return cfg, nil
}

// HasPermission reports whether role may exercise capability. Admins are
// always allowed; anyone else is denied while the map is unavailable.
func (e *Engine) HasPermission(role Role, capability Capability) bool {
	return e.Decide(role, capability) == Allowed
}

// Decide is HasPermission with the unavailable case kept distinct.
func (e *Engine) Decide(role Role, capability Capability) Decision {
	if role == RoleAdmin {
		return Allowed
	}

	s := e.current.Load()
	if s.state != StateReady {
		return Unavailable
	}
	if _, ok := s.grants[role][capability]; ok {
		return Allowed
	}
	return Denied
}

// Authorize returns nil, ErrForbidden or ErrUnavailable.
func (e *Engine) Authorize(role Role, capability Capability) error {
	switch e.Decide(role, capability) {
	case Allowed:
		return nil
	case Unavailable:
		return ErrUnavailable
	default:
		return fmt.Errorf("%w: %s", ErrForbidden, capability)
	}
}

// Capabilities lists what role is granted right now.
func (e *Engine) Capabilities(role Role) ([]Capability, error) {
	if role == RoleAdmin {
		return Capabilities(), nil
	}
	s := e.current.Load()
	if s.state != StateReady {
		return nil, ErrUnavailable
	}
	granted := make([]Capability, 0, len(s.grants[role]))
	for _, c := range Capabilities() {
		if _, ok := s.grants[role][c]; ok {
			granted = append(granted, c)
		}
	}
	return granted, nil
}

// Update replaces the stored map. Only admins may call it; the check is made
// here, at the mutation, whatever the caller's UI showed.
func (e *Engine) Update(ctx context.Context, actor Actor, roles RoleCapabilityMap) (Config, error) {
	if actor.Role != RoleAdmin {
		e.logger.Warn("Rejected permission update from non-admin",
			zap.Uint64("user_id", actor.UserID),
			zap.String("role", string(actor.Role)))
		return Config{}, ErrUnauthorized
	}
	if err := roles.Validate(); err != nil {
		return Config{}, err
	}

	cfg, err := e.store.Save(ctx, roles.Normalize(), actor.UserID)
	if err != nil {
		return Config{}, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}

	e.swap(cfg)
	e.publish(ctx, cfg)

	e.logger.Info("Role permissions updated",
		zap.Uint64("user_id", actor.UserID),
		zap.Uint64("revision", cfg.Revision))
	return cfg, nil
}

// Watch streams the configuration, starting with the current one when loaded.
// Slow readers only ever miss intermediate revisions.
func (e *Engine) Watch() (<-chan Config, func()) {
	ch := make(chan Config, 1)

	e.mu.Lock()
	e.watchers[ch] = struct{}{}
	if s := e.current.Load(); s.state == StateReady {
		deliver(ch, s.config)
	}
	e.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			e.mu.Lock()
			delete(e.watchers, ch)
			close(ch)
			e.mu.Unlock()
		})
	}
	return ch, cancel
}

func (e *Engine) run(ctx context.Context, sub events.Subscription) {
	defer close(e.done)
	defer func() { _ = sub.Close() }()

	backoff := retry.NewBackoff(e.backoff)
	for {
		err := e.bootstrap(ctx)
		if err == nil {
			break
		}
		if ctx.Err() != nil {
			return
		}
		delay := backoff.Next()
		if retry.IsRetryable(err) {
			e.logger.Warn("Permission store unavailable, retrying",
				zap.Duration("retry_in", delay),
				zap.Error(err))
		} else {
			// Not transient: a schema or data problem for an operator.
			e.logger.Error("Failed to load permission configuration, retrying",
				zap.Duration("retry_in", delay),
				zap.Error(err))
		}
		if err := retry.Sleep(ctx, delay); err != nil {
			return
		}
	}

	for {
		select {
		case <-ctx.Done():
			return
		case payload, ok := <-sub.Messages():
			if !ok {
				e.logger.Warn("Permission feed closed")
				return
			}
			e.apply(payload)
		}
	}
}

func (e *Engine) bootstrap(ctx context.Context) error {
	cfg, err := e.store.Load(ctx)
	if errors.Is(err, ErrNotConfigured) {
		cfg, err = e.store.SeedIfAbsent(ctx, DefaultMap().Normalize())
		if err == nil {
			e.logger.Info("Seeded default role permissions", zap.Uint64("revision", cfg.Revision))
		}
	}
	if err != nil {
		return err
	}

	e.swap(cfg)
	return nil
}

func (e *Engine) apply(payload []byte) {
	var cfg Config
	if err := json.Unmarshal(payload, &cfg); err != nil {
		e.logger.Warn("Ignoring malformed permission push", zap.Error(err))
		return
	}
	if cfg.Roles == nil {
		e.logger.Warn("Ignoring permission push without roles", zap.Uint64("revision", cfg.Revision))
		return
	}
	if e.swap(cfg) {
		e.logger.Debug("Applied permission push", zap.Uint64("revision", cfg.Revision))
	}
}

// swap installs cfg unless an equal or newer revision is already live.
func (e *Engine) swap(cfg Config) bool {
	next := newSnapshot(cfg)
	for {
		prev := e.current.Load()
		if prev.state == StateReady && cfg.Revision <= prev.config.Revision {
			return false
		}
		if e.current.CompareAndSwap(prev, next) {
			break
		}
	}

	e.readyOnce.Do(func() { close(e.ready) })

	e.mu.Lock()
	// A newer swap may have landed since the CAS; it delivers its own value.
	if e.current.Load() == next {
		for ch := range e.watchers {
			deliver(ch, cfg)
		}
	}
	e.mu.Unlock()
	return true
}

func (e *Engine) publish(ctx context.Context, cfg Config) {
	payload, err := json.Marshal(cfg)
	if err != nil {
		e.logger.Error("Failed to encode permission push", zap.Error(err))
		return
	}
	if err := e.feed.Publish(ctx, Topic, payload); err != nil {
		e.logger.Warn("Failed to publish permission push",
			zap.Uint64("revision", cfg.Revision),
			zap.Error(err))
	}
}

// deliver replaces any undelivered value in ch with cfg.
func deliver(ch chan Config, cfg Config) {
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- cfg:
	default:
	}
}
