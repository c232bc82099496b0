// Package queue is a durable, at-least-once work queue for indexing items,
// backed by a bbolt file.
//
// Items wait in the pending bucket under a monotonically increasing key.
// A consumer moves the oldest one to the leased bucket, runs the handler
// and deletes it on success. Failures go back to the end of pending until
// MaxAttempts is reached, then to the dead bucket. Leases left behind by a
// crash are returned to pending when the queue is next opened.
package queue

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime/debug"
	"time"

	"go.etcd.io/bbolt"

	amerrors "github.com/Aman-CERP/amanctx/internal/errors"
	"github.com/Aman-CERP/amanctx/internal/index"
)

var (
	bucketPending = []byte("pending")
	bucketLeased  = []byte("leased")
	bucketDead    = []byte("dead")
)

const (
	DefaultPollInterval = time.Second
	DefaultMaxAttempts  = 5

	openTimeout = time.Second
)

// Options configures a Queue.
type Options struct {
	// PollInterval is how long an idle consumer waits before looking again.
	PollInterval time.Duration

	// MaxAttempts is how many times an item is tried before it is dead.
	MaxAttempts int

	Logger *slog.Logger
}

// Envelope is the stored form of an item.
type Envelope struct {
	Item       index.WorkItem `json:"item"`
	Attempts   int            `json:"attempts"`
	EnqueuedAt time.Time      `json:"enqueuedAt"`
	LastError  string         `json:"lastError,omitempty"`
}

// Result reports one handled item.
type Result struct {
	ID       string
	Type     index.WorkType
	Attempts int
	Err      error
	Dead     bool
}

// Stats counts items per bucket.
type Stats struct {
	Pending int `json:"pending"`
	Leased  int `json:"leased"`
	Dead    int `json:"dead"`
}

// Handler processes one item. A nil error acks it.
type Handler func(ctx context.Context, item index.WorkItem) error

// Queue is safe for concurrent use. Only one process may hold the file.
type Queue struct {
	db     *bbolt.DB
	opts   Options
	notify chan struct{}
	logger *slog.Logger
}

// Open opens or creates the queue file at path and redelivers any leases
// left from a previous run.
func Open(path string, opts Options) (*Queue, error) {
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.MaxAttempts < 1 {
		opts.MaxAttempts = DefaultMaxAttempts
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, amerrors.New(amerrors.ErrCodeQueue, "failed to create queue directory", err)
	}

	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: openTimeout})
	if err != nil {
		if errors.Is(err, bbolt.ErrTimeout) {
			return nil, amerrors.New(amerrors.ErrCodeLockHeld, "queue is in use by another process", err).
				WithDetail("path", path)
		}
		return nil, amerrors.New(amerrors.ErrCodeQueue, "failed to open queue", err).WithDetail("path", path)
	}

	q := &Queue{db: db, opts: opts, notify: make(chan struct{}, 1), logger: opts.Logger}
	redelivered := 0
	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{bucketPending, bucketLeased, bucketDead} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", name, err)
			}
		}
		var err error
		redelivered, err = moveAll(tx.Bucket(bucketLeased), tx.Bucket(bucketPending))
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, amerrors.New(amerrors.ErrCodeQueue, "failed to initialise queue", err)
	}
	if redelivered > 0 {
		q.logger.Warn("queue_leases_redelivered", slog.Int("items", redelivered))
	}
	return q, nil
}

// Enqueue validates item and appends it to pending.
func (q *Queue) Enqueue(item index.WorkItem) error {
	if err := item.Validate(); err != nil {
		return err
	}
	env := Envelope{Item: item, EnqueuedAt: time.Now().UTC()}
	err := q.db.Update(func(tx *bbolt.Tx) error {
		return appendPending(tx, &env)
	})
	if err != nil {
		return amerrors.New(amerrors.ErrCodeQueue, "failed to enqueue item", err).WithDetail("id", item.ID)
	}
	q.wake()
	return nil
}

// EnqueueAll appends items in one transaction. Invalid items reject the
// whole call.
func (q *Queue) EnqueueAll(items []index.WorkItem) error {
	for _, item := range items {
		if err := item.Validate(); err != nil {
			return err
		}
	}
	now := time.Now().UTC()
	err := q.db.Update(func(tx *bbolt.Tx) error {
		for _, item := range items {
			if err := appendPending(tx, &Envelope{Item: item, EnqueuedAt: now}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return amerrors.New(amerrors.ErrCodeQueue, "failed to enqueue items", err)
	}
	q.wake()
	return nil
}

// Consume runs handler on items one at a time until ctx is cancelled,
// then closes the returned channel. The channel must be drained.
func (q *Queue) Consume(ctx context.Context, handler Handler) <-chan Result {
	results := make(chan Result)
	go func() {
		defer close(results)
		for {
			if ctx.Err() != nil {
				return
			}
			key, env, err := q.lease()
			if err != nil {
				q.logger.Error("queue_lease_failed", slog.String("error", err.Error()))
				if !q.wait(ctx) {
					return
				}
				continue
			}
			if env == nil {
				if !q.wait(ctx) {
					return
				}
				continue
			}

			res := q.handle(ctx, key, env, handler)
			select {
			case results <- res:
			case <-ctx.Done():
				return
			}
		}
	}()
	return results
}

// Drain consumes until pending is empty, then returns the results.
func (q *Queue) Drain(ctx context.Context, handler Handler) ([]Result, error) {
	var out []Result
	for ctx.Err() == nil {
		key, env, err := q.lease()
		if err != nil {
			return out, amerrors.New(amerrors.ErrCodeQueue, "failed to lease item", err)
		}
		if env == nil {
			return out, nil
		}
		out = append(out, q.handle(ctx, key, env, handler))
	}
	return out, ctx.Err()
}

func (q *Queue) handle(ctx context.Context, key []byte, env *Envelope, handler Handler) Result {
	err := runSafe(ctx, handler, env.Item)
	res := Result{ID: env.Item.ID, Type: env.Item.Type, Attempts: env.Attempts + 1, Err: err}

	switch {
	case err == nil:
		if ackErr := q.ack(key); ackErr != nil {
			q.logger.Error("queue_ack_failed", slog.String("id", env.Item.ID), slog.String("error", ackErr.Error()))
		}
	case ctx.Err() != nil:
		// Interrupted, not failed: hand it back without spending an attempt.
		res.Attempts = env.Attempts
		if relErr := q.release(key); relErr != nil {
			q.logger.Error("queue_release_failed", slog.String("id", env.Item.ID), slog.String("error", relErr.Error()))
		}
	default:
		dead, nackErr := q.nack(key, env, err)
		res.Dead = dead
		if nackErr != nil {
			q.logger.Error("queue_nack_failed", slog.String("id", env.Item.ID), slog.String("error", nackErr.Error()))
		}
		q.logger.Warn("queue_item_failed",
			slog.String("id", env.Item.ID),
			slog.Int("attempts", res.Attempts),
			slog.Bool("dead", dead),
			slog.String("error", err.Error()))
	}
	return res
}

func runSafe(ctx context.Context, handler Handler, item index.WorkItem) (err error) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("queue_handler_panic", slog.Any("panic", r), slog.String("stack", string(debug.Stack())))
			err = amerrors.New(amerrors.ErrCodeInternal, fmt.Sprintf("handler panic: %v", r), nil)
		}
	}()
	return handler(ctx, item)
}

// lease moves the oldest pending item to leased. A nil envelope means the
// queue is empty. Unreadable payloads go straight to dead.
func (q *Queue) lease() ([]byte, *Envelope, error) {
	var (
		key []byte
		env *Envelope
	)
	err := q.db.Update(func(tx *bbolt.Tx) error {
		pending := tx.Bucket(bucketPending)
		for {
			k, v := pending.Cursor().First()
			if k == nil {
				return nil
			}
			key = append([]byte(nil), k...)
			val := append([]byte(nil), v...)

			var e Envelope
			if err := json.Unmarshal(val, &e); err != nil {
				q.logger.Error("queue_item_corrupt", slog.String("error", err.Error()))
				if err := tx.Bucket(bucketDead).Put(key, val); err != nil {
					return err
				}
				if err := pending.Delete(key); err != nil {
					return err
				}
				continue
			}
			env = &e
			if err := tx.Bucket(bucketLeased).Put(key, val); err != nil {
				return err
			}
			return pending.Delete(key)
		}
	})
	if err != nil || env == nil {
		return nil, nil, err
	}
	return key, env, nil
}

func (q *Queue) ack(key []byte) error {
	return q.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketLeased).Delete(key)
	})
}

func (q *Queue) release(key []byte) error {
	return q.db.Update(func(tx *bbolt.Tx) error {
		leased := tx.Bucket(bucketLeased)
		v := leased.Get(key)
		if v == nil {
			return nil
		}
		if err := tx.Bucket(bucketPending).Put(key, append([]byte(nil), v...)); err != nil {
			return err
		}
		return leased.Delete(key)
	})
}

// nack records the failure and requeues at the tail, or buries the item
// once it has used all its attempts.
func (q *Queue) nack(key []byte, env *Envelope, cause error) (dead bool, err error) {
	env.Attempts++
	env.LastError = cause.Error()
	dead = env.Attempts >= q.opts.MaxAttempts

	err = q.db.Update(func(tx *bbolt.Tx) error {
		if err := tx.Bucket(bucketLeased).Delete(key); err != nil {
			return err
		}
		if dead {
			data, err := json.Marshal(env)
			if err != nil {
				return err
			}
			return tx.Bucket(bucketDead).Put(key, data)
		}
		return appendPending(tx, env)
	})
	return dead, err
}

// Stats counts items per bucket.
func (q *Queue) Stats() (Stats, error) {
	var st Stats
	err := q.db.View(func(tx *bbolt.Tx) error {
		st.Pending = tx.Bucket(bucketPending).Stats().KeyN
		st.Leased = tx.Bucket(bucketLeased).Stats().KeyN
		st.Dead = tx.Bucket(bucketDead).Stats().KeyN
		return nil
	})
	if err != nil {
		return st, amerrors.New(amerrors.ErrCodeQueue, "failed to read queue stats", err)
	}
	return st, nil
}

// DeadLetters returns the items that exhausted their attempts, oldest
// first.
func (q *Queue) DeadLetters() ([]Envelope, error) {
	var out []Envelope
	err := q.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketDead).ForEach(func(_, v []byte) error {
			var e Envelope
			if err := json.Unmarshal(v, &e); err != nil {
				return nil
			}
			out = append(out, e)
			return nil
		})
	})
	if err != nil {
		return nil, amerrors.New(amerrors.ErrCodeQueue, "failed to read dead letters", err)
	}
	return out, nil
}

// RetryDead moves every dead item back to pending with its attempt count
// reset and returns how many moved.
func (q *Queue) RetryDead() (int, error) {
	moved := 0
	err := q.db.Update(func(tx *bbolt.Tx) error {
		dead := tx.Bucket(bucketDead)
		var envs []Envelope
		var keys [][]byte
		if err := dead.ForEach(func(k, v []byte) error {
			var e Envelope
			if err := json.Unmarshal(v, &e); err != nil {
				return nil
			}
			envs = append(envs, e)
			keys = append(keys, append([]byte(nil), k...))
			return nil
		}); err != nil {
			return err
		}
		for i := range envs {
			envs[i].Attempts = 0
			envs[i].LastError = ""
			if err := appendPending(tx, &envs[i]); err != nil {
				return err
			}
			if err := dead.Delete(keys[i]); err != nil {
				return err
			}
			moved++
		}
		return nil
	})
	if err != nil {
		return 0, amerrors.New(amerrors.ErrCodeQueue, "failed to retry dead items", err)
	}
	if moved > 0 {
		q.wake()
	}
	return moved, nil
}

// Close releases the file.
func (q *Queue) Close() error {
	return q.db.Close()
}

func (q *Queue) wake() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// wait blocks for the poll interval or an enqueue. It returns false when
// ctx ends.
func (q *Queue) wait(ctx context.Context) bool {
	t := time.NewTimer(q.opts.PollInterval)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-q.notify:
		return true
	case <-t.C:
		return true
	}
}

func appendPending(tx *bbolt.Tx, env *Envelope) error {
	pending := tx.Bucket(bucketPending)
	seq, err := pending.NextSequence()
	if err != nil {
		return err
	}
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return pending.Put(sequenceKey(seq), data)
}

// moveAll moves every key of from into to, keeping keys, so redelivered
// items keep their original position.
func moveAll(from, to *bbolt.Bucket) (int, error) {
	var keys [][]byte
	if err := from.ForEach(func(k, v []byte) error {
		keys = append(keys, append([]byte(nil), k...))
		return to.Put(append([]byte(nil), k...), append([]byte(nil), v...))
	}); err != nil {
		return 0, err
	}
	for _, k := range keys {
		if err := from.Delete(k); err != nil {
			return 0, err
		}
	}
	return len(keys), nil
}

func sequenceKey(seq uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, seq)
	return b
}
