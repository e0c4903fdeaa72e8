package db

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"go.uber.org/zap"
)

type DBTask struct {
	Exec func(*sql.DB) (interface{}, error)
	Resp chan DBResult
}

type DBResult struct {
	Data interface{}
	Err  error
}

// DBQueue runs every statement on a single worker goroutine so SQLite never
// sees concurrent writers.
type DBQueue struct {
	tasks      chan DBTask
	db         *sql.DB
	maxRetry   int
	retryDelay time.Duration
	testMode   bool
	logger     *zap.Logger
}

func NewDBQueue(db *sql.DB, logger *zap.Logger) *DBQueue {
	if logger == nil {
		logger = zap.NewNop()
	}
	q := &DBQueue{
		tasks:      make(chan DBTask, 100),
		db:         db,
		maxRetry:   3,
		retryDelay: 100 * time.Millisecond,
		logger:     logger.Named("db_queue"),
	}
	go q.worker()
	return q
}

func NewDBQueueForTest(db *sql.DB) *DBQueue {
	q := &DBQueue{
		tasks:      make(chan DBTask, 100),
		db:         db,
		maxRetry:   3,
		retryDelay: 1 * time.Millisecond,
		testMode:   true,
		logger:     zap.NewNop(),
	}
	go q.worker()
	return q
}

func (q *DBQueue) Execute(task func(*sql.DB) (interface{}, error)) (interface{}, error) {
	return q.ExecuteContext(context.Background(), task)
}

// ExecuteContext enqueues task and waits for its result or for ctx to end.
// A task that was already queued still runs after ctx is cancelled.
func (q *DBQueue) ExecuteContext(ctx context.Context, task func(*sql.DB) (interface{}, error)) (interface{}, error) {
	resp := make(chan DBResult, 1)
	select {
	case q.tasks <- DBTask{Exec: task, Resp: resp}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	select {
	case result := <-resp:
		return result.Data, result.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (q *DBQueue) worker() {
	for task := range q.tasks {
		result := q.executeWithRetry(task)
		task.Resp <- result
	}
}

func (q *DBQueue) executeWithRetry(task DBTask) DBResult {
	var lastErr error
	for attempt := 0; attempt < q.maxRetry; attempt++ {
		data, err := task.Exec(q.db)
		if err == nil {
			return DBResult{Data: data, Err: nil}
		}
		lastErr = err
		if !isRetryable(err) {
			break
		}
		if attempt < q.maxRetry-1 {
			q.logger.Debug("retrying task", zap.Int("attempt", attempt+1), zap.Error(err))
			if q.testMode {
				time.Sleep(q.retryDelay)
			} else {
				time.Sleep(time.Duration(attempt+1) * q.retryDelay)
			}
		}
	}
	return DBResult{Err: lastErr}
}

// Lookups that found nothing will not find anything on the next attempt either.
func isRetryable(err error) bool {
	return !errors.Is(err, sql.ErrNoRows) && !errors.Is(err, ErrNotFound)
}

func (q *DBQueue) Close() {
	close(q.tasks)
}

func (q *DBQueue) DB() *sql.DB {
	return q.db
}
