package permissions

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/yukikurage/project-hub-api/internal/events"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// memoryStore is a Store shared by every engine in a test, standing in for
// the database row all processes read.
type memoryStore struct {
	mu       sync.Mutex
	cfg      *Config
	loadErrs int
	loadErr  error // returned for each of loadErrs; defaults to a connection error
	saveErr  error
	loads    int
}

func (s *memoryStore) Load(ctx context.Context) (Config, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loads++
	if s.loadErrs > 0 {
		s.loadErrs--
		if s.loadErr != nil {
			return Config{}, s.loadErr
		}
		return Config{}, errors.New("connection refused")
	}
	if s.cfg == nil {
		return Config{}, ErrNotConfigured
	}
	return *s.cfg, nil
}

func (s *memoryStore) SeedIfAbsent(ctx context.Context, roles RoleCapabilityMap) (Config, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cfg == nil {
		s.cfg = &Config{Revision: 1, Roles: roles.Normalize(), UpdatedAt: time.Now()}
	}
	return *s.cfg, nil
}

func (s *memoryStore) Save(ctx context.Context, roles RoleCapabilityMap, updatedBy uint64) (Config, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return Config{}, s.saveErr
	}
	var rev uint64
	if s.cfg != nil {
		rev = s.cfg.Revision
	}
	s.cfg = &Config{Revision: rev + 1, Roles: roles.Normalize(), UpdatedBy: updatedBy, UpdatedAt: time.Now()}
	return *s.cfg, nil
}

func (s *memoryStore) stored() Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.cfg
}

func startEngine(t *testing.T, store Store, feed events.Broker) *Engine {
	t.Helper()
	e := NewEngine(store, feed, zap.NewNop())
	e.backoff.InitialDelay = time.Millisecond
	e.backoff.MaxDelay = 5 * time.Millisecond
	require.NoError(t, e.Start(context.Background()))
	t.Cleanup(e.Stop)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, e.WaitReady(ctx))
	return e
}

func TestEngine_SeedsDefaultMap(t *testing.T) {
	store := &memoryStore{}
	e := startEngine(t, store, events.NewMemoryBroker())

	assert.Equal(t, StateReady, e.State())
	cfg, err := e.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, uint64(1), cfg.Revision)
	assert.Equal(t, DefaultMap().Normalize(), cfg.Roles)
	assert.Equal(t, uint64(1), store.stored().Revision)
}

func TestEngine_MembershipRule(t *testing.T) {
	e := startEngine(t, &memoryStore{}, events.NewMemoryBroker())
	seed := DefaultMap()

	for _, role := range []Role{RoleManager, RoleMember} {
		for _, c := range Capabilities() {
			want := false
			for _, granted := range seed[role] {
				if granted == c {
					want = true
				}
			}
			assert.Equal(t, want, e.HasPermission(role, c), "%s/%s", role, c)
		}
	}

	assert.False(t, e.HasPermission(Role("guest"), CreateProject))
	assert.False(t, e.HasPermission(RoleManager, DeleteProject))
	assert.True(t, e.HasPermission(RoleManager, DeleteTask))
}

func TestEngine_AdminBypassesMap(t *testing.T) {
	store := &memoryStore{cfg: &Config{
		Revision: 3,
		Roles:    RoleCapabilityMap{RoleAdmin: {}, RoleMember: {UpdateTaskStatus}},
	}}
	e := startEngine(t, store, events.NewMemoryBroker())

	for _, c := range Capabilities() {
		assert.True(t, e.HasPermission(RoleAdmin, c), c)
	}
	assert.True(t, e.HasPermission(RoleAdmin, Capability("not_a_capability")))

	// Never started: still allowed for admins, nobody else.
	idle := NewEngine(store, events.NewMemoryBroker(), zap.NewNop())
	assert.Equal(t, Allowed, idle.Decide(RoleAdmin, ManagePermissions))
	assert.Equal(t, Unavailable, idle.Decide(RoleManager, CreateProject))
	assert.False(t, idle.HasPermission(RoleManager, CreateProject))
	assert.ErrorIs(t, idle.Authorize(RoleMember, UpdateTaskStatus), ErrUnavailable)
}

func TestEngine_RetriesTransientLoadFailures(t *testing.T) {
	store := &memoryStore{loadErrs: 3}
	e := startEngine(t, store, events.NewMemoryBroker())

	assert.True(t, e.HasPermission(RoleMember, UpdateTaskStatus))
	store.mu.Lock()
	defer store.mu.Unlock()
	assert.Equal(t, 4, store.loads)
}

func TestEngine_WaitReadyTimesOut(t *testing.T) {
	store := &memoryStore{loadErrs: 1 << 30}
	e := NewEngine(store, events.NewMemoryBroker(), zap.NewNop())
	e.backoff.InitialDelay = time.Millisecond
	e.backoff.MaxDelay = time.Millisecond
	require.NoError(t, e.Start(context.Background()))
	defer e.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := e.WaitReady(ctx)
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, StateLoading, e.State())
	assert.ErrorIs(t, e.Authorize(RoleManager, CreateProject), ErrUnavailable)
}

func TestEngine_StartTwice(t *testing.T) {
	e := startEngine(t, &memoryStore{}, events.NewMemoryBroker())
	assert.ErrorIs(t, e.Start(context.Background()), ErrAlreadyStarted)
}

func TestEngine_UpdateRejectsNonAdmin(t *testing.T) {
	store := &memoryStore{}
	e := startEngine(t, store, events.NewMemoryBroker())
	before := store.stored()

	for _, role := range []Role{RoleManager, RoleMember} {
		_, err := e.Update(context.Background(), Actor{UserID: 7, Role: role}, RoleCapabilityMap{
			RoleMember: Capabilities(),
		})
		assert.ErrorIs(t, err, ErrUnauthorized)
	}

	assert.Equal(t, before, store.stored())
	assert.False(t, e.HasPermission(RoleMember, DeleteTask))
}

func TestEngine_UpdateRejectsUnknownCapability(t *testing.T) {
	store := &memoryStore{}
	e := startEngine(t, store, events.NewMemoryBroker())

	_, err := e.Update(context.Background(), Actor{UserID: 1, Role: RoleAdmin}, RoleCapabilityMap{
		RoleMember: {Capability("launch_rockets")},
	})
	assert.ErrorIs(t, err, ErrInvalidMap)
	assert.Equal(t, uint64(1), store.stored().Revision)
}

func TestEngine_UpdateStoreFailure(t *testing.T) {
	store := &memoryStore{}
	e := startEngine(t, store, events.NewMemoryBroker())
	store.mu.Lock()
	store.saveErr = errors.New("bad connection")
	store.mu.Unlock()

	_, err := e.Update(context.Background(), Actor{UserID: 1, Role: RoleAdmin}, DefaultMap())
	assert.ErrorIs(t, err, ErrStoreUnavailable)
	cfg, err := e.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, uint64(1), cfg.Revision)
}

func TestEngine_UpdateIsIdempotent(t *testing.T) {
	e := startEngine(t, &memoryStore{}, events.NewMemoryBroker())
	admin := Actor{UserID: 1, Role: RoleAdmin}
	m := RoleCapabilityMap{
		RoleManager: {CreateTask, CreateTask, ViewReports},
		RoleMember:  {UpdateTaskStatus},
	}

	first, err := e.Update(context.Background(), admin, m)
	require.NoError(t, err)
	second, err := e.Update(context.Background(), admin, m)
	require.NoError(t, err)

	assert.Equal(t, first.Roles, second.Roles)
	assert.Equal(t, []Capability{CreateTask, ViewReports}, second.Roles[RoleManager])
	for _, c := range Capabilities() {
		assert.Equal(t, c == CreateTask || c == ViewReports, e.HasPermission(RoleManager, c), c)
	}
}

func TestEngine_UpdatePropagatesToOtherProcesses(t *testing.T) {
	store := &memoryStore{}
	feed := events.NewMemoryBroker()
	a := startEngine(t, store, feed)
	b := startEngine(t, store, feed)

	require.False(t, a.HasPermission(RoleMember, DeleteTask))
	require.False(t, b.HasPermission(RoleMember, DeleteTask))

	changes, stop := b.Watch()
	defer stop()

	next := DefaultMap()
	next[RoleMember] = append(next[RoleMember], DeleteTask)
	cfg, err := a.Update(context.Background(), Actor{UserID: 1, Role: RoleAdmin}, next)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), cfg.Revision)

	assert.True(t, a.HasPermission(RoleMember, DeleteTask))
	require.Eventually(t, func() bool {
		return b.HasPermission(RoleMember, DeleteTask)
	}, 2*time.Second, 5*time.Millisecond)

	require.Eventually(t, func() bool {
		select {
		case got := <-changes:
			return got.Revision == 2
		default:
			return false
		}
	}, 2*time.Second, 5*time.Millisecond)
}

func TestEngine_IgnoresStalePushes(t *testing.T) {
	store := &memoryStore{}
	feed := events.NewMemoryBroker()
	e := startEngine(t, store, feed)

	_, err := e.Update(context.Background(), Actor{UserID: 1, Role: RoleAdmin}, RoleCapabilityMap{
		RoleMember: {UpdateTaskStatus, DeleteTask},
	})
	require.NoError(t, err)

	stale := []byte(`{"revision":1,"roles":{"member":[]}}`)
	require.NoError(t, feed.Publish(context.Background(), Topic, stale))
	require.NoError(t, feed.Publish(context.Background(), Topic, []byte("not json")))

	newer := []byte(`{"revision":5,"roles":{"member":["view_reports"]}}`)
	require.NoError(t, feed.Publish(context.Background(), Topic, newer))

	require.Eventually(t, func() bool {
		return e.HasPermission(RoleMember, ViewReports)
	}, 2*time.Second, 5*time.Millisecond)
	assert.False(t, e.HasPermission(RoleMember, DeleteTask))

	cfg, err := e.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, uint64(5), cfg.Revision)
}

func TestEngine_WatchDeliversCurrent(t *testing.T) {
	e := startEngine(t, &memoryStore{}, events.NewMemoryBroker())

	ch, stop := e.Watch()
	select {
	case cfg := <-ch:
		assert.Equal(t, uint64(1), cfg.Revision)
	case <-time.After(time.Second):
		t.Fatal("no initial configuration delivered")
	}

	stop()
	stop()
	_, ok := <-ch
	assert.False(t, ok)
}

func TestEngine_Capabilities(t *testing.T) {
	e := startEngine(t, &memoryStore{}, events.NewMemoryBroker())

	caps, err := e.Capabilities(RoleMember)
	require.NoError(t, err)
	assert.Equal(t, []Capability{UpdateTaskStatus}, caps)

	caps, err = e.Capabilities(RoleAdmin)
	require.NoError(t, err)
	assert.Len(t, caps, len(Capabilities()))
}

func TestRoleCapabilityMap_Normalize(t *testing.T) {
	m := RoleCapabilityMap{
		RoleManager: {ViewReports, CreateTask, ViewReports},
		RoleMember:  nil,
	}
	out := m.Normalize()
	assert.Equal(t, []Capability{CreateTask, ViewReports}, out[RoleManager])
	assert.NotNil(t, out[RoleMember])
	assert.Len(t, m[RoleManager], 3)
}

func TestRoleCapabilityMap_Validate(t *testing.T) {
	assert.NoError(t, DefaultMap().Validate())
	assert.ErrorIs(t, RoleCapabilityMap(nil).Validate(), ErrInvalidMap)
	assert.ErrorIs(t, RoleCapabilityMap{Role("owner"): {}}.Validate(), ErrInvalidMap)

	err := RoleCapabilityMap{
		RoleMember:    {CreateTask, Capability("fly"), Capability("bake")},
		Role("owner"): {CreateTask},
	}.Validate()
	var invalid *InvalidMapError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, []string{
		`unknown capability "bake" for role "member"`,
		`unknown capability "fly" for role "member"`,
		`unknown role "owner"`,
	}, invalid.Problems)
}

func TestEngine_LoadFailureLogLevel(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		wantMsg   string
		wantLevel zapcore.Level
	}{
		{"transient", errors.New("dial tcp: connection refused"), "Permission store unavailable, retrying", zapcore.WarnLevel},
		{"permanent", errors.New("no such table: permission_configs"), "Failed to load permission configuration, retrying", zapcore.ErrorLevel},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			core, logs := observer.New(zapcore.WarnLevel)
			e := NewEngine(&memoryStore{loadErrs: 2, loadErr: tt.err}, events.NewMemoryBroker(), zap.New(core))
			e.backoff.InitialDelay = time.Millisecond
			e.backoff.MaxDelay = 5 * time.Millisecond
			require.NoError(t, e.Start(context.Background()))
			t.Cleanup(e.Stop)

			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			require.NoError(t, e.WaitReady(ctx))

			entries := logs.All()
			require.Len(t, entries, 2)
			for _, entry := range entries {
				assert.Equal(t, tt.wantMsg, entry.Message)
				assert.Equal(t, tt.wantLevel, entry.Level)
			}
		})
	}
}

func TestEngine_WatchersEndOnNewestRevision(t *testing.T) {
	e := startEngine(t, &memoryStore{}, events.NewMemoryBroker())
	ch, cancel := e.Watch()
	defer cancel()
	require.Equal(t, uint64(1), (<-ch).Revision)

	roles := DefaultMap().Normalize()
	revisionIs := func(rev uint64) func() bool {
		return func() bool { return e.current.Load().config.Revision == rev }
	}

	// Hold the watcher lock so both swaps finish their CAS before either
	// delivers, then let them race for the lock.
	var wg sync.WaitGroup
	wg.Add(2)
	e.mu.Lock()
	go func() {
		defer wg.Done()
		e.swap(Config{Revision: 2, Roles: roles})
	}()
	olderInstalled := assert.Eventually(t, revisionIs(2), time.Second, time.Millisecond)
	go func() {
		defer wg.Done()
		e.swap(Config{Revision: 3, Roles: roles})
	}()
	newerInstalled := assert.Eventually(t, revisionIs(3), time.Second, time.Millisecond)
	e.mu.Unlock()
	wg.Wait()
	require.True(t, olderInstalled && newerInstalled)

	select {
	case cfg := <-ch:
		assert.Equal(t, uint64(3), cfg.Revision)
	default:
		t.Fatal("expected the newest revision to be delivered")
	}
	select {
	case cfg := <-ch:
		t.Fatalf("unexpected extra delivery of revision %d", cfg.Revision)
	default:
	}
}
