// Package sequence hands out per-project task numbers. A number is taken by
// advancing the project's counter with a compare-and-swap inside the same
// transaction that inserts the task, so numbers are never skipped or reused.
package sequence

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/yukikurage/project-hub-api/internal/models"
	"github.com/yukikurage/project-hub-api/internal/retry"
)

// DefaultMaxRetries bounds the attempts after the first one.
const DefaultMaxRetries = 5

var (
	// ErrProjectNotFound is returned when the target project does not exist.
	ErrProjectNotFound = errors.New("project not found")
	// ErrCounterMoved is returned by Tx.AdvanceTaskCounter when another
	// allocation committed between the read and the write.
	ErrCounterMoved = errors.New("task counter moved")
	// ErrConflict is returned once every attempt lost a race. Callers may retry.
	ErrConflict = errors.New("task number allocation conflict")
	// ErrStoreUnavailable wraps any other store failure.
	ErrStoreUnavailable = errors.New("task store unavailable")
)

// Tx is the view of the store inside one transaction.
type Tx interface {
	// TaskCounter returns ErrProjectNotFound for a missing project.
	TaskCounter(projectID uint64) (uint64, error)
	// AdvanceTaskCounter sets the counter to next only if it still equals current.
	AdvanceTaskCounter(projectID, current, next uint64) error
	InsertTask(task *models.Task) error
}

// Store runs fn in a transaction, committing when fn returns nil.
type Store interface {
	WithinTx(ctx context.Context, fn func(tx Tx) error) error
}

// Allocator creates tasks with the next number of their project.
type Allocator struct {
	store  Store
	retry  *retry.Config
	logger *zap.Logger
	now    func() time.Time
}

// NewAllocator creates an allocator making at most maxRetries extra attempts.
func NewAllocator(store Store, maxRetries int, logger *zap.Logger) *Allocator {
	if maxRetries < 0 {
		maxRetries = DefaultMaxRetries
	}
	return &Allocator{
		store: store,
		retry: &retry.Config{
			MaxRetries:   maxRetries,
			InitialDelay: 10 * time.Millisecond,
			MaxDelay:     200 * time.Millisecond,
			Multiplier:   2.0,
			JitterFactor: 0.5,
		},
		logger: logger,
		now:    time.Now,
	}
}

// Allocate inserts draft into projectID with the next task number, its
// display id and a server timestamp. Attributes are stored as given.
//
// An attempt that has begun runs to commit or rollback even if ctx is
// cancelled; the caller just stops waiting for it. No attempt starts after
// cancellation.
func (a *Allocator) Allocate(ctx context.Context, projectID uint64, draft models.Task) (*models.Task, error) {
	var created *models.Task
	attempts := 0
	err := retry.DoIf(ctx, a.retry, isConflict, func() error {
		if err := ctx.Err(); err != nil {
			return err
		}
		attempts++
		task, err := a.attempt(ctx, projectID, draft)
		if err != nil {
			if isConflict(err) {
				a.logger.Debug("Task number allocation lost a race",
					zap.Uint64("project_id", projectID),
					zap.Int("attempt", attempts),
					zap.Error(err))
			}
			return err
		}
		created = task
		return nil
	})

	switch {
	case err == nil:
		return created, nil
	case errors.Is(err, ErrProjectNotFound):
		return nil, err
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return nil, err
	case isConflict(err):
		a.logger.Warn("Task number allocation exhausted retries",
			zap.Uint64("project_id", projectID),
			zap.Int("attempts", attempts),
			zap.Error(err))
		return nil, fmt.Errorf("%w after %d attempts: %w", ErrConflict, attempts, err)
	default:
		return nil, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
}

type outcome struct {
	task *models.Task
	err  error
}

func (a *Allocator) attempt(ctx context.Context, projectID uint64, draft models.Task) (*models.Task, error) {
	done := make(chan outcome, 1)
	go func() {
		task, err := a.allocateOnce(context.WithoutCancel(ctx), projectID, draft)
		done <- outcome{task: task, err: err}
	}()

	select {
	case o := <-done:
		return o.task, o.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (a *Allocator) allocateOnce(ctx context.Context, projectID uint64, draft models.Task) (*models.Task, error) {
	var task models.Task
	err := a.store.WithinTx(ctx, func(tx Tx) error {
		current, err := tx.TaskCounter(projectID)
		if err != nil {
			return err
		}
		next := current + 1
		if err := tx.AdvanceTaskCounter(projectID, current, next); err != nil {
			return err
		}

		task = draft
		task.ID = 0
		task.ProjectID = projectID
		task.TaskNo = next
		task.CustomID = models.FormatCustomID(next)
		task.CreatedAt = a.now()
		task.UpdatedAt = task.CreatedAt
		return tx.InsertTask(&task)
	})
	if err != nil {
		return nil, err
	}
	return &task, nil
}

// isConflict reports whether err means another writer got there first.
func isConflict(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrCounterMoved) {
		return true
	}
	if errors.Is(err, ErrProjectNotFound) ||
		errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if retry.IsLockConflict(err) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, pattern := range uniqueViolationPatterns {
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}

// uniqueViolationPatterns match a concurrent insert of the same task number.
var uniqueViolationPatterns = []string{
	"duplicate key",
	"duplicate entry",
	"unique constraint failed",
}
