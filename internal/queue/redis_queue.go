// Package queue implements the durable at-least-once work queue on Redis: a
// ready list, an in-flight sorted set scored by visibility deadline, and a
// dead-letter list fed by a queue-owned max-receive policy.
package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"lecture-notes-service/internal/config"
	"lecture-notes-service/internal/telemetry"
)

const (
	readyKey      = "lectures:ready"
	inflightKey   = "lectures:inflight"
	receiptPrefix = "lectures:receipts:"
)

// Item is one received work item. ReceiveCount includes this delivery.
type Item struct {
	TaskID       string
	ReceiveCount int
}

// RedisQueue coordinates the ready and in-flight sets for lecture work items.
type RedisQueue struct {
	client        *redis.Client
	visibilityTTL time.Duration
	maxReceives   int
	dlqKey        string
}

// NewRedisQueue builds a queue client from config.
func NewRedisQueue(cfg config.Config) *RedisQueue {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	return NewRedisQueueWithClient(client, cfg)
}

// NewRedisQueueWithClient wires an existing client, used by tests.
func NewRedisQueueWithClient(client *redis.Client, cfg config.Config) *RedisQueue {
	visibility := cfg.VisibilityTimeout
	if visibility == 0 {
		visibility = 30 * time.Minute
	}
	maxReceives := cfg.MaxReceives
	if maxReceives == 0 {
		maxReceives = 5
	}
	dlq := cfg.DLQName
	if dlq == "" {
		dlq = "lectures:dlq"
	}
	return &RedisQueue{
		client:        client,
		visibilityTTL: visibility,
		maxReceives:   maxReceives,
		dlqKey:        dlq,
	}
}

func receiptKey(taskID string) string { return receiptPrefix + taskID }

// Enqueue appends a work item to the ready queue.
func (q *RedisQueue) Enqueue(ctx context.Context, taskID string) error {
	if err := q.client.RPush(ctx, readyKey, taskID).Err(); err != nil {
		return fmt.Errorf("enqueue %s: %w", taskID, err)
	}
	return nil
}

// Receive pops at most one item and leases it until the visibility deadline.
// Items delivered more than maxReceives times are moved to the dead-letter
// list instead of being handed out; the caller sees a nil item and polls
// again. Returns (nil, nil) when the queue is empty.
func (q *RedisQueue) Receive(ctx context.Context) (*Item, error) {
	deadline := time.Now().Add(q.visibilityTTL).UnixMilli()
	res, err := receiveScript.Run(ctx, q.client, []string{readyKey, inflightKey}, deadline).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("receive: %w", err)
	}
	taskID, ok := res.(string)
	if !ok {
		return nil, fmt.Errorf("unexpected type from receive script: %T", res)
	}

	count, err := q.client.Incr(ctx, receiptKey(taskID)).Result()
	if err != nil {
		return nil, fmt.Errorf("count receipt %s: %w", taskID, err)
	}
	if count > int64(q.maxReceives) {
		if err := q.deadLetter(ctx, taskID); err != nil {
			return nil, err
		}
		return nil, nil
	}
	return &Item{TaskID: taskID, ReceiveCount: int(count)}, nil
}

// Ack removes a delivered item and its receipt counter.
func (q *RedisQueue) Ack(ctx context.Context, taskID string) error {
	pipe := q.client.TxPipeline()
	pipe.ZRem(ctx, inflightKey, taskID)
	pipe.Del(ctx, receiptKey(taskID))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("ack %s: %w", taskID, err)
	}
	return nil
}

// ExtendLease pushes the visibility deadline forward for an in-flight item.
func (q *RedisQueue) ExtendLease(ctx context.Context, taskID string, extension time.Duration) error {
	return q.client.ZAdd(ctx, inflightKey, redis.Z{
		Score:  float64(time.Now().Add(extension).UnixMilli()),
		Member: taskID,
	}).Err()
}

// RequeueExpired reclaims leases whose visibility window lapsed, making the
// items deliverable again. Returns the reclaimed task ids.
func (q *RedisQueue) RequeueExpired(ctx context.Context, now time.Time, limit int64) ([]string, error) {
	ids, err := q.client.ZRangeByScore(ctx, inflightKey, &redis.ZRangeBy{
		Min:    "-inf",
		Max:    fmt.Sprintf("%d", now.UnixMilli()),
		Offset: 0,
		Count:  limit,
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("scan expired leases: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	pipe := q.client.TxPipeline()
	for _, id := range ids {
		pipe.ZRem(ctx, inflightKey, id)
		pipe.RPush(ctx, readyKey, id)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("requeue expired: %w", err)
	}
	return ids, nil
}

func (q *RedisQueue) deadLetter(ctx context.Context, taskID string) error {
	pipe := q.client.TxPipeline()
	pipe.ZRem(ctx, inflightKey, taskID)
	pipe.Del(ctx, receiptKey(taskID))
	pipe.RPush(ctx, q.dlqKey, taskID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("dead letter %s: %w", taskID, err)
	}
	telemetry.DeadLettered.Inc()
	return nil
}

// DLQPeek reads the oldest dead-lettered task ids for operational inspection.
func (q *RedisQueue) DLQPeek(ctx context.Context, count int64) ([]string, error) {
	return q.client.LRange(ctx, q.dlqKey, 0, count-1).Result()
}

// ReadyDepth returns the length of the ready queue.
func (q *RedisQueue) ReadyDepth(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, readyKey).Result()
}

// InflightCount returns how many items are currently leased.
func (q *RedisQueue) InflightCount(ctx context.Context) (int64, error) {
	return q.client.ZCard(ctx, inflightKey).Result()
}

var receiveScript = redis.NewScript(`
local id = redis.call('LPOP', KEYS[1])
if not id then
  return nil
end
redis.call('ZADD', KEYS[2], ARGV[1], id)
return id
`)
