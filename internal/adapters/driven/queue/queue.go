// Package queue implements the durable task queue on SQLite using the
// visibility timeout pattern.
//
// A claimed task is invisible to other workers for a configurable
// duration. If the holder acks, the row is deleted. If the holder
// crashes or exceeds the timeout the task reappears automatically and
// another worker can claim it. This gives at-least-once delivery with
// no external broker.
//
// Schema (created automatically):
//
//	CREATE TABLE IF NOT EXISTS tasks (
//	    id          TEXT PRIMARY KEY,             -- stable queue identity
//	    payload     BLOB,
//	    visible_at  INTEGER NOT NULL DEFAULT 0,   -- milliseconds since epoch
//	    created_at  INTEGER NOT NULL,             -- milliseconds since epoch
//	    deliveries  INTEGER NOT NULL DEFAULT 0
//	);
package queue

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/docrelay/docrelay/internal/core/domain"
	"github.com/docrelay/docrelay/internal/core/ports/driven"
)

// Options configures queue behaviour.
type Options struct {
	// Visibility is how long a claimed task stays invisible. Default: 2m.
	Visibility time.Duration
}

func (o *Options) defaults() {
	if o.Visibility <= 0 {
		o.Visibility = 2 * time.Minute
	}
}

// Queue is a SQLite-backed implementation of driven.TaskQueue.
type Queue struct {
	db   *sql.DB
	opts Options
}

var _ driven.TaskQueue = (*Queue)(nil)

// New opens (or creates) the queue database under dataDir.
func New(dataDir string, opts Options) (*Queue, error) {
	opts.defaults()

	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, "queue.db")
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening queue database: %w", err)
	}

	q := &Queue{db: db, opts: opts}
	if err := q.ensureTable(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating queue table: %w", err)
	}
	return q, nil
}

// Close closes the queue database.
func (q *Queue) Close() error {
	return q.db.Close()
}

func (q *Queue) ensureTable(ctx context.Context) error {
	_, err := q.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS tasks (
			id          TEXT PRIMARY KEY,
			payload     BLOB,
			visible_at  INTEGER NOT NULL DEFAULT 0,
			created_at  INTEGER NOT NULL,
			deliveries  INTEGER NOT NULL DEFAULT 0
		);
		CREATE INDEX IF NOT EXISTS idx_tasks_visible ON tasks (visible_at);
	`)
	return err
}

// Publish inserts a task, visible after the given delay. A task whose
// queue identity is already pending is left untouched, which makes
// re-enqueueing after a crash idempotent.
func (q *Queue) Publish(ctx context.Context, task domain.Task, delay time.Duration) error {
	payload, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("marshalling task: %w", err)
	}

	now := time.Now()
	_, err = q.db.ExecContext(ctx, `
		INSERT INTO tasks (id, payload, visible_at, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, task.QueueID(), payload, now.Add(delay).UnixMilli(), now.UnixMilli())
	if err != nil {
		return fmt.Errorf("publishing task: %w", err)
	}
	return nil
}

// Claim atomically leases up to limit visible tasks, hiding each for
// the visibility timeout. The UPDATE...RETURNING makes the claim a
// single statement, so two workers can never lease the same row.
func (q *Queue) Claim(ctx context.Context, limit int) ([]driven.ClaimedTask, error) {
	now := time.Now()
	hideUntil := now.Add(q.opts.Visibility).UnixMilli()

	rows, err := q.db.QueryContext(ctx, `
		UPDATE tasks
		SET visible_at = ?, deliveries = deliveries + 1
		WHERE id IN (
			SELECT id FROM tasks
			WHERE visible_at <= ?
			ORDER BY visible_at ASC
			LIMIT ?
		)
		RETURNING id, payload, deliveries
	`, hideUntil, now.UnixMilli(), limit)
	if err != nil {
		return nil, fmt.Errorf("claiming tasks: %w", err)
	}
	defer rows.Close()

	claimed := []driven.ClaimedTask{}
	for rows.Next() {
		var id string
		var payload []byte
		var deliveries int
		if err := rows.Scan(&id, &payload, &deliveries); err != nil {
			return nil, fmt.Errorf("scanning claimed task: %w", err)
		}

		var task domain.Task
		if err := json.Unmarshal(payload, &task); err != nil {
			return nil, fmt.Errorf("unmarshalling task %s: %w", id, err)
		}

		claimed = append(claimed, driven.ClaimedTask{
			Task:       task,
			Receipt:    id,
			Deliveries: deliveries,
		})
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating claimed tasks: %w", err)
	}
	return claimed, nil
}

// Ack deletes a successfully processed task.
func (q *Queue) Ack(ctx context.Context, receipt string) error {
	_, err := q.db.ExecContext(ctx, "DELETE FROM tasks WHERE id = ?", receipt)
	if err != nil {
		return fmt.Errorf("acking task: %w", err)
	}
	return nil
}

// Nack returns a claimed task to the queue, visible after delay.
func (q *Queue) Nack(ctx context.Context, receipt string, delay time.Duration) error {
	_, err := q.db.ExecContext(ctx,
		"UPDATE tasks SET visible_at = ? WHERE id = ?",
		time.Now().Add(delay).UnixMilli(), receipt)
	if err != nil {
		return fmt.Errorf("nacking task: %w", err)
	}
	return nil
}

// Extend pushes the visibility deadline forward for a task that needs
// more processing time (heartbeat pattern).
func (q *Queue) Extend(ctx context.Context, receipt string, d time.Duration) error {
	_, err := q.db.ExecContext(ctx,
		"UPDATE tasks SET visible_at = ? WHERE id = ?",
		time.Now().Add(d).UnixMilli(), receipt)
	if err != nil {
		return fmt.Errorf("extending task visibility: %w", err)
	}
	return nil
}

// Pending returns the total number of tasks (visible + invisible).
func (q *Queue) Pending(ctx context.Context) (int, error) {
	var n int
	err := q.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM tasks").Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting tasks: %w", err)
	}
	return n, nil
}
