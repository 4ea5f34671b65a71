package queue

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"lecture-notes-service/internal/config"
)

func newTestQueue(t *testing.T, cfg config.Config) (*RedisQueue, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewRedisQueueWithClient(client, cfg), mr
}

func TestReceiveLeasesItem(t *testing.T) {
	ctx := context.Background()
	q, _ := newTestQueue(t, config.Config{VisibilityTimeout: time.Minute})

	if err := q.Enqueue(ctx, "task-1"); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	item, err := q.Receive(ctx)
	if err != nil {
		t.Fatalf("receive: %v", err)
	}
	if item == nil || item.TaskID != "task-1" {
		t.Fatalf("expected task-1, got %+v", item)
	}
	if item.ReceiveCount != 1 {
		t.Fatalf("expected receive count 1, got %d", item.ReceiveCount)
	}

	// Leased item must be invisible to other consumers.
	second, err := q.Receive(ctx)
	if err != nil {
		t.Fatalf("second receive: %v", err)
	}
	if second != nil {
		t.Fatalf("expected empty queue while lease held, got %+v", second)
	}

	inflight, err := q.InflightCount(ctx)
	if err != nil || inflight != 1 {
		t.Fatalf("expected 1 in-flight item, got %d err=%v", inflight, err)
	}
}

func TestAckRemovesLease(t *testing.T) {
	ctx := context.Background()
	q, _ := newTestQueue(t, config.Config{VisibilityTimeout: time.Minute})

	if err := q.Enqueue(ctx, "task-1"); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if _, err := q.Receive(ctx); err != nil {
		t.Fatalf("receive: %v", err)
	}
	if err := q.Ack(ctx, "task-1"); err != nil {
		t.Fatalf("ack: %v", err)
	}

	inflight, _ := q.InflightCount(ctx)
	if inflight != 0 {
		t.Fatalf("expected no in-flight items after ack, got %d", inflight)
	}
	depth, _ := q.ReadyDepth(ctx)
	if depth != 0 {
		t.Fatalf("expected empty ready queue after ack, got %d", depth)
	}
}

func TestRequeueExpiredReclaimsLapsedLease(t *testing.T) {
	ctx := context.Background()
	visibility := time.Minute
	q, _ := newTestQueue(t, config.Config{VisibilityTimeout: visibility})

	if err := q.Enqueue(ctx, "task-1"); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if _, err := q.Receive(ctx); err != nil {
		t.Fatalf("receive: %v", err)
	}

	// Before the deadline nothing is reclaimed.
	ids, err := q.RequeueExpired(ctx, time.Now(), 10)
	if err != nil {
		t.Fatalf("requeue expired: %v", err)
	}
	if len(ids) != 0 {
		t.Fatalf("expected no reclaims before deadline, got %v", ids)
	}

	ids, err = q.RequeueExpired(ctx, time.Now().Add(visibility+time.Second), 10)
	if err != nil {
		t.Fatalf("requeue expired: %v", err)
	}
	if len(ids) != 1 || ids[0] != "task-1" {
		t.Fatalf("expected task-1 reclaimed, got %v", ids)
	}

	item, err := q.Receive(ctx)
	if err != nil || item == nil {
		t.Fatalf("expected redelivery after reclaim, got item=%+v err=%v", item, err)
	}
	if item.ReceiveCount != 2 {
		t.Fatalf("expected receive count 2 on redelivery, got %d", item.ReceiveCount)
	}
}

func TestMaxReceivesMovesToDeadLetter(t *testing.T) {
	ctx := context.Background()
	visibility := time.Minute
	q, _ := newTestQueue(t, config.Config{
		VisibilityTimeout: visibility,
		MaxReceives:       3,
		DLQName:           "lectures:dlq",
	})

	if err := q.Enqueue(ctx, "poison"); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	for i := 1; i <= 3; i++ {
		item, err := q.Receive(ctx)
		if err != nil {
			t.Fatalf("receive %d: %v", i, err)
		}
		if item == nil || item.ReceiveCount != i {
			t.Fatalf("receive %d: got %+v", i, item)
		}
		if _, err := q.RequeueExpired(ctx, time.Now().Add(visibility+time.Second), 10); err != nil {
			t.Fatalf("requeue %d: %v", i, err)
		}
	}

	// Fourth delivery exceeds the policy; the item goes to the DLQ instead.
	item, err := q.Receive(ctx)
	if err != nil {
		t.Fatalf("final receive: %v", err)
	}
	if item != nil {
		t.Fatalf("expected dead-lettered item withheld, got %+v", item)
	}

	dead, err := q.DLQPeek(ctx, 10)
	if err != nil {
		t.Fatalf("dlq peek: %v", err)
	}
	if len(dead) != 1 || dead[0] != "poison" {
		t.Fatalf("expected poison in DLQ, got %v", dead)
	}
	inflight, _ := q.InflightCount(ctx)
	if inflight != 0 {
		t.Fatalf("dead-lettered item still leased: %d", inflight)
	}
}

func TestEnqueueOrderIsFIFO(t *testing.T) {
	ctx := context.Background()
	q, _ := newTestQueue(t, config.Config{VisibilityTimeout: time.Minute})

	for _, id := range []string{"a", "b", "c"} {
		if err := q.Enqueue(ctx, id); err != nil {
			t.Fatalf("enqueue %s: %v", id, err)
		}
	}
	for _, want := range []string{"a", "b", "c"} {
		item, err := q.Receive(ctx)
		if err != nil || item == nil {
			t.Fatalf("receive: item=%+v err=%v", item, err)
		}
		if item.TaskID != want {
			t.Fatalf("expected %s, got %s", want, item.TaskID)
		}
	}
}
