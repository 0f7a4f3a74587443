package queue

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// MaxRedeliveries is how many times a job may become visible again before
// it is routed to the dead-letter list.
const MaxRedeliveries = 3

// DefaultVisibilityTimeout must be at least the per-execution wall-clock
// timeout, so a job is never redelivered while its worker is still running.
const DefaultVisibilityTimeout = time.Hour

// Job is the queue's single job type. Extended beyond the bare
// {execution_id, tenant_id} pair with the start parameters a worker needs
// to drive the Runner without a second round trip.
type Job struct {
	ExecutionID   string `json:"execution_id"`
	TenantID      string `json:"tenant_id"`
	SystemID      string `json:"system_id"`
	MaxConcurrent int    `json:"max_concurrent,omitempty"`
}

// Delivery wraps a dequeued Job with the handle a worker needs to Ack it.
type Delivery struct {
	ID           string
	Job          Job
	Redeliveries int
}

// Queue is a Redis-backed at-least-once work queue with visibility-timeout
// redelivery and dead-letter routing, grounded on
// agent/persistence/redis_task_store.go's hash-for-data +
// sorted-set-for-index pattern. Unlike that task store, which has no
// notion of an invisible-until deadline, this queue uses the sorted set's
// score itself as the visibility deadline: a claimed job is re-scored to
// now+timeout rather than moved to a separate status index, so a single
// ZRANGEBYSCORE query finds every job that is either new or whose prior
// claim has expired.
type Queue struct {
	client    *redis.Client
	keyPrefix string
	logger    *zap.Logger
}

// New builds a Queue over an already-connected Redis client, following the
// same injected-client convention as llm/idempotency.NewRedisManager.
func New(client *redis.Client, keyPrefix string, logger *zap.Logger) *Queue {
	if keyPrefix == "" {
		keyPrefix = "evalcore:queue:"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Queue{client: client, keyPrefix: keyPrefix, logger: logger.With(zap.String("component", "queue"))}
}

func (q *Queue) readyKey() string      { return q.keyPrefix + "ready" }
func (q *Queue) jobKey(id string) string { return q.keyPrefix + "job:" + id }
func (q *Queue) deadLetterKey() string { return q.keyPrefix + "dlq" }

// Enqueue adds job, visible immediately, and returns its generated id.
func (q *Queue) Enqueue(ctx context.Context, job Job) (string, error) {
	id := uuid.NewString()
	data, err := json.Marshal(job)
	if err != nil {
		return "", err
	}

	pipe := q.client.TxPipeline()
	pipe.HSet(ctx, q.jobKey(id), map[string]any{"payload": data, "redeliveries": 0})
	pipe.ZAdd(ctx, q.readyKey(), redis.Z{Score: float64(time.Now().UnixMilli()), Member: id})
	if _, err := pipe.Exec(ctx); err != nil {
		return "", err
	}
	return id, nil
}

// Dequeue claims the single next visible job, hiding it until
// visibilityTimeout elapses. ok is false when nothing is currently visible.
// A job that has already been redelivered MaxRedeliveries times is routed
// to the dead-letter list instead of being returned.
func (q *Queue) Dequeue(ctx context.Context, visibilityTimeout time.Duration) (*Delivery, bool, error) {
	if visibilityTimeout <= 0 {
		visibilityTimeout = DefaultVisibilityTimeout
	}

	now := time.Now().UnixMilli()
	ids, err := q.client.ZRangeByScore(ctx, q.readyKey(), &redis.ZRangeBy{
		Min:   "-inf",
		Max:   strconv.FormatInt(now, 10),
		Count: 1,
	}).Result()
	if err != nil {
		return nil, false, err
	}
	if len(ids) == 0 {
		return nil, false, nil
	}
	id := ids[0]

	redeliveries, err := q.client.HIncrBy(ctx, q.jobKey(id), "redeliveries", 1).Result()
	if err != nil {
		return nil, false, err
	}
	if redeliveries > MaxRedeliveries {
		if err := q.deadLetter(ctx, id); err != nil {
			return nil, false, err
		}
		q.logger.Warn("job exceeded max redeliveries, dead-lettered", zap.String("job_id", id))
		return nil, false, nil
	}

	payload, err := q.client.HGet(ctx, q.jobKey(id), "payload").Result()
	if err != nil {
		return nil, false, err
	}
	var job Job
	if err := json.Unmarshal([]byte(payload), &job); err != nil {
		return nil, false, err
	}

	visibleAt := time.Now().Add(visibilityTimeout).UnixMilli()
	if err := q.client.ZAdd(ctx, q.readyKey(), redis.Z{Score: float64(visibleAt), Member: id}).Err(); err != nil {
		return nil, false, err
	}

	return &Delivery{ID: id, Job: job, Redeliveries: int(redeliveries - 1)}, true, nil
}

// Ack permanently removes a successfully processed job.
func (q *Queue) Ack(ctx context.Context, id string) error {
	pipe := q.client.TxPipeline()
	pipe.ZRem(ctx, q.readyKey(), id)
	pipe.Del(ctx, q.jobKey(id))
	_, err := pipe.Exec(ctx)
	return err
}

// Nack makes a job immediately visible again, for a worker that wants to
// give up on a job without waiting out its full visibility timeout.
func (q *Queue) Nack(ctx context.Context, id string) error {
	return q.client.ZAdd(ctx, q.readyKey(), redis.Z{Score: 0, Member: id}).Err()
}

func (q *Queue) deadLetter(ctx context.Context, id string) error {
	payload, err := q.client.HGet(ctx, q.jobKey(id), "payload").Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return err
	}

	pipe := q.client.TxPipeline()
	pipe.ZRem(ctx, q.readyKey(), id)
	pipe.Del(ctx, q.jobKey(id))
	if payload != "" {
		pipe.RPush(ctx, q.deadLetterKey(), payload)
	}
	_, err = pipe.Exec(ctx)
	return err
}

// DeadLetterLen reports how many jobs have been routed to the dead-letter
// list, for health/metrics reporting.
func (q *Queue) DeadLetterLen(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, q.deadLetterKey()).Result()
}
