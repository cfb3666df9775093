package sequence

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/yukikurage/project-hub-api/internal/models"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// memStore keeps counters and tasks in memory. Reads see committed state;
// the counter write is checked again at commit, so concurrent transactions
// race the way they would against a database row.
type memStore struct {
	mu       sync.Mutex
	counters map[uint64]uint64
	tasks    []models.Task

	// injected is consumed one error per transaction, before any work.
	injected []error
	// gate, when set, blocks each transaction until it is closed.
	gate chan struct{}
	txs  int
}

func newMemStore(projects ...uint64) *memStore {
	s := &memStore{counters: make(map[uint64]uint64)}
	for _, id := range projects {
		s.counters[id] = 0
	}
	return s
}

type memTx struct {
	store   *memStore
	advance map[uint64][2]uint64
	inserts []models.Task
}

func (s *memStore) WithinTx(ctx context.Context, fn func(tx Tx) error) error {
	s.mu.Lock()
	s.txs++
	var injected error
	if len(s.injected) > 0 {
		injected, s.injected = s.injected[0], s.injected[1:]
	}
	gate := s.gate
	s.mu.Unlock()

	if gate != nil {
		<-gate
	}
	if injected != nil {
		return injected
	}

	tx := &memTx{store: s, advance: make(map[uint64][2]uint64)}
	if err := fn(tx); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for id, cas := range tx.advance {
		if s.counters[id] != cas[0] {
			return ErrCounterMoved
		}
	}
	for id, cas := range tx.advance {
		s.counters[id] = cas[1]
	}
	for i := range tx.inserts {
		tx.inserts[i].ID = uint64(len(s.tasks) + 1)
		s.tasks = append(s.tasks, tx.inserts[i])
	}
	return nil
}

func (t *memTx) TaskCounter(projectID uint64) (uint64, error) {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	n, ok := t.store.counters[projectID]
	if !ok {
		return 0, ErrProjectNotFound
	}
	return n, nil
}

func (t *memTx) AdvanceTaskCounter(projectID, current, next uint64) error {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	if t.store.counters[projectID] != current {
		return ErrCounterMoved
	}
	t.advance[projectID] = [2]uint64{current, next}
	return nil
}

func (t *memTx) InsertTask(task *models.Task) error {
	t.inserts = append(t.inserts, *task)
	return nil
}

func (s *memStore) counter(id uint64) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counters[id]
}

func (s *memStore) taskNumbers(projectID uint64) []uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []uint64
	for _, t := range s.tasks {
		if t.ProjectID == projectID {
			out = append(out, t.TaskNo)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func newTestAllocator(store Store, maxRetries int) *Allocator {
	a := NewAllocator(store, maxRetries, zap.NewNop())
	a.retry.InitialDelay = time.Millisecond
	a.retry.MaxDelay = 2 * time.Millisecond
	return a
}

func TestFormatCustomID(t *testing.T) {
	assert.Equal(t, "TK-001", models.FormatCustomID(1))
	assert.Equal(t, "TK-007", models.FormatCustomID(7))
	assert.Equal(t, "TK-042", models.FormatCustomID(42))
	assert.Equal(t, "TK-999", models.FormatCustomID(999))
	assert.Equal(t, "TK-1000", models.FormatCustomID(1000))
}

func TestAllocate_FirstTask(t *testing.T) {
	store := newMemStore(1)
	a := newTestAllocator(store, DefaultMaxRetries)
	fixed := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	a.now = func() time.Time { return fixed }

	task, err := a.Allocate(context.Background(), 1, models.Task{
		Title:      "Write onboarding doc",
		Priority:   models.PriorityHigh,
		Attributes: map[string]any{"estimate": "3d", "labels": []any{"docs"}},
	})
	require.NoError(t, err)

	assert.Equal(t, uint64(1), task.TaskNo)
	assert.Equal(t, "TK-001", task.CustomID)
	assert.Equal(t, uint64(1), task.ProjectID)
	assert.Equal(t, fixed, task.CreatedAt)
	assert.Equal(t, "3d", task.Attributes["estimate"])
	assert.Equal(t, uint64(1), store.counter(1))
}

func TestAllocate_ConcurrentAllocationsAreDense(t *testing.T) {
	const n = 25
	store := newMemStore(1)
	// Enough retries that no allocation can lose every race.
	a := newTestAllocator(store, n)

	g, ctx := errgroup.WithContext(context.Background())
	for i := 0; i < n; i++ {
		g.Go(func() error {
			_, err := a.Allocate(ctx, 1, models.Task{Title: "parallel"})
			return err
		})
	}
	require.NoError(t, g.Wait())

	want := make([]uint64, n)
	for i := range want {
		want[i] = uint64(i + 1)
	}
	assert.Equal(t, want, store.taskNumbers(1))
	assert.Equal(t, uint64(n), store.counter(1))
}

func TestAllocate_TwoConcurrentAfterFirst(t *testing.T) {
	store := newMemStore(1)
	a := newTestAllocator(store, DefaultMaxRetries)

	first, err := a.Allocate(context.Background(), 1, models.Task{Title: "A"})
	require.NoError(t, err)
	assert.Equal(t, "TK-001", first.CustomID)

	var g errgroup.Group
	ids := make([]string, 2)
	for i, title := range []string{"B", "C"} {
		g.Go(func() error {
			task, err := a.Allocate(context.Background(), 1, models.Task{Title: title})
			if err == nil {
				ids[i] = task.CustomID
			}
			return err
		})
	}
	require.NoError(t, g.Wait())

	sort.Strings(ids)
	assert.Equal(t, []string{"TK-002", "TK-003"}, ids)
}

func TestAllocate_ProjectsAreIndependent(t *testing.T) {
	store := newMemStore(1, 2)
	a := newTestAllocator(store, DefaultMaxRetries)

	for i := 0; i < 3; i++ {
		_, err := a.Allocate(context.Background(), 1, models.Task{Title: "one"})
		require.NoError(t, err)
	}
	task, err := a.Allocate(context.Background(), 2, models.Task{Title: "two"})
	require.NoError(t, err)

	assert.Equal(t, "TK-001", task.CustomID)
	assert.Equal(t, uint64(3), store.counter(1))
	assert.Equal(t, uint64(1), store.counter(2))
}

func TestAllocate_ProjectNotFound(t *testing.T) {
	store := newMemStore(1)
	a := newTestAllocator(store, DefaultMaxRetries)

	_, err := a.Allocate(context.Background(), 99, models.Task{Title: "orphan"})
	require.ErrorIs(t, err, ErrProjectNotFound)
	assert.Empty(t, store.tasks)
	assert.Equal(t, 1, store.txs, "not found must not be retried")
}

func TestAllocate_RetriesLockConflicts(t *testing.T) {
	store := newMemStore(1)
	store.injected = []error{
		errors.New("database is locked"),
		errors.New("Error 1213 (40001): Deadlock found when trying to get lock"),
		ErrCounterMoved,
	}
	a := newTestAllocator(store, DefaultMaxRetries)

	task, err := a.Allocate(context.Background(), 1, models.Task{Title: "eventually"})
	require.NoError(t, err)
	assert.Equal(t, uint64(1), task.TaskNo)
	assert.Equal(t, 4, store.txs)
}

func TestAllocate_ExhaustedRetries(t *testing.T) {
	store := newMemStore(1)
	store.injected = []error{ErrCounterMoved, ErrCounterMoved, ErrCounterMoved}
	a := newTestAllocator(store, 2)

	_, err := a.Allocate(context.Background(), 1, models.Task{Title: "unlucky"})
	require.ErrorIs(t, err, ErrConflict)
	assert.Equal(t, 3, store.txs)
	assert.Equal(t, uint64(0), store.counter(1))
	assert.Empty(t, store.tasks)
}

func TestAllocate_OtherStoreErrors(t *testing.T) {
	store := newMemStore(1)
	store.injected = []error{errors.New("dial tcp 10.0.0.5:3306: connect: connection refused")}
	a := newTestAllocator(store, DefaultMaxRetries)

	_, err := a.Allocate(context.Background(), 1, models.Task{Title: "offline"})
	require.ErrorIs(t, err, ErrStoreUnavailable)
	assert.Equal(t, 1, store.txs)
}

func TestAllocate_CancelledCallerStopsWaiting(t *testing.T) {
	store := newMemStore(1)
	store.gate = make(chan struct{})
	a := newTestAllocator(store, DefaultMaxRetries)

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() {
		_, err := a.Allocate(ctx, 1, models.Task{Title: "slow"})
		errc <- err
	}()

	require.Eventually(t, func() bool {
		store.mu.Lock()
		defer store.mu.Unlock()
		return store.txs == 1
	}, time.Second, time.Millisecond)
	cancel()

	select {
	case err := <-errc:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Allocate kept waiting after cancellation")
	}

	// The attempt already in flight still commits.
	close(store.gate)
	require.Eventually(t, func() bool { return store.counter(1) == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, []uint64{1}, store.taskNumbers(1))

	store.mu.Lock()
	defer store.mu.Unlock()
	assert.Equal(t, 1, store.txs)
}

func TestAllocate_NoAttemptAfterCancel(t *testing.T) {
	store := newMemStore(1)
	a := newTestAllocator(store, DefaultMaxRetries)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := a.Allocate(ctx, 1, models.Task{Title: "never"})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, store.txs)
}

func TestIsConflict(t *testing.T) {
	assert.True(t, isConflict(ErrCounterMoved))
	assert.True(t, isConflict(errors.New("UNIQUE constraint failed: tasks.project_id, tasks.task_no")))
	assert.True(t, isConflict(errors.New("ERROR: could not serialize access (SQLSTATE 40001)")))
	assert.False(t, isConflict(ErrProjectNotFound))
	assert.False(t, isConflict(context.Canceled))
	assert.False(t, isConflict(errors.New("connection refused")))
	assert.False(t, isConflict(nil))
}
