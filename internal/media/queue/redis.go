package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/romariotrain/media-pipeline/internal/media/domain"
	"github.com/romariotrain/media-pipeline/internal/media/models"
)

// Pops the head of the ready list and records it in flight under the
// delivery token ARGV[2] with its visibility deadline, in one step.
var dequeueScript = redis.NewScript(`
local raw = redis.call('LPOP', KEYS[1])
if not raw then
	return false
end
redis.call('ZADD', KEYS[2], ARGV[1], ARGV[2])
redis.call('HSET', KEYS[3], ARGV[2], raw)
return raw
`)

// Returns in-flight deliveries whose deadline is at or below ARGV[1] to the
// tail of the ready list and forgets their tokens.
var requeueScript = redis.NewScript(`
local due = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'LIMIT', 0, tonumber(ARGV[2]))
local n = 0
for _, token in ipairs(due) do
	local raw = redis.call('HGET', KEYS[2], token)
	redis.call('ZREM', KEYS[1], token)
	redis.call('HDEL', KEYS[2], token)
	if raw then
		redis.call('RPUSH', KEYS[3], raw)
		n = n + 1
	end
end
return n
`)

// Moves every member of a sorted set scored at or below ARGV[1] to the tail
// of the ready list, oldest score first.
var promoteScript = redis.NewScript(`
local due = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'LIMIT', 0, tonumber(ARGV[2]))
for _, raw in ipairs(due) do
	redis.call('ZREM', KEYS[1], raw)
	redis.call('RPUSH', KEYS[2], raw)
end
return #due
`)

const promoteBatch = 512

// RedisQueue keeps four keys per queue: a ready list, a delayed sorted set
// scored by notBefore, an in-flight sorted set of delivery tokens scored by
// deadline and a hash from token to payload. Every delivery gets its own
// token, so identical payloads in flight never share an entry.
type RedisQueue struct {
	client redis.UniversalClient
	name   string
	opts   Options
	clock  func() time.Time

	readyKey    string
	delayedKey  string
	inflightKey string
	payloadKey  string
}

func NewRedisQueue(client redis.UniversalClient, name string, opts Options) *RedisQueue {
	prefix := "media:queue:" + name
	return &RedisQueue{
		client:      client,
		name:        name,
		opts:        opts.withDefaults(),
		clock:       time.Now,
		readyKey:    prefix + ":ready",
		delayedKey:  prefix + ":delayed",
		inflightKey: prefix + ":inflight",
		payloadKey:  prefix + ":inflight:payload",
	}
}

func (q *RedisQueue) Name() string { return q.name }

func (q *RedisQueue) Enqueue(ctx context.Context, msg models.Message) error {
	raw, err := encode(msg)
	if err != nil {
		return err
	}
	if err := q.client.RPush(ctx, q.readyKey, raw).Err(); err != nil {
		return q.transportErr("enqueue", err)
	}
	return nil
}

func (q *RedisQueue) EnqueueDelayed(ctx context.Context, msg models.Message, notBefore time.Time) error {
	raw, err := encode(delayed(msg, notBefore))
	if err != nil {
		return err
	}
	if err := q.client.ZAdd(ctx, q.delayedKey, redis.Z{Score: score(notBefore), Member: raw}).Err(); err != nil {
		return q.transportErr("enqueue delayed", err)
	}
	return nil
}

func (q *RedisQueue) Dequeue(ctx context.Context) (*Delivery, error) {
	ticker := time.NewTicker(q.opts.PollInterval)
	defer ticker.Stop()

	for {
		d, err := q.tryDequeue(ctx)
		if err != nil || d != nil {
			return d, err
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (q *RedisQueue) tryDequeue(ctx context.Context) (*Delivery, error) {
	deadline := q.clock().Add(q.opts.Visibility)
	token := uuid.NewString()
	res, err := dequeueScript.Run(ctx, q.client,
		[]string{q.readyKey, q.inflightKey, q.payloadKey}, score(deadline), token).Text()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, q.transportErr("dequeue", err)
	}

	var msg models.Message
	if err := json.Unmarshal([]byte(res), &msg); err != nil {
		// Poison payload: drop it from in-flight so it is not redelivered forever.
		pipe := q.client.TxPipeline()
		q.forget(ctx, pipe, token)
		_, _ = pipe.Exec(ctx)
		return nil, fmt.Errorf("queue %s: %w: %w", q.name, ErrMalformedMessage, err)
	}
	return &Delivery{Message: msg, Queue: q.name, Deadline: deadline, token: token}, nil
}

func (q *RedisQueue) Ack(ctx context.Context, d *Delivery) error {
	if d == nil {
		return domain.ErrInvalidArgument
	}
	pipe := q.client.TxPipeline()
	q.forget(ctx, pipe, d.token)
	if _, err := pipe.Exec(ctx); err != nil {
		return q.transportErr("ack", err)
	}
	return nil
}

// forget drops a delivery token from the in-flight set and payload hash.
// A token that already expired and was requeued is simply absent.
func (q *RedisQueue) forget(ctx context.Context, pipe redis.Pipeliner, token string) {
	pipe.ZRem(ctx, q.inflightKey, token)
	pipe.HDel(ctx, q.payloadKey, token)
}

func (q *RedisQueue) Defer(ctx context.Context, d *Delivery, notBefore time.Time) error {
	if d == nil {
		return domain.ErrInvalidArgument
	}
	raw, err := encode(deferred(d.Message, notBefore))
	if err != nil {
		return err
	}
	pipe := q.client.TxPipeline()
	q.forget(ctx, pipe, d.token)
	pipe.ZAdd(ctx, q.delayedKey, redis.Z{Score: score(notBefore), Member: raw})
	if _, err := pipe.Exec(ctx); err != nil {
		return q.transportErr("defer", err)
	}
	return nil
}

// Promote moves due delayed messages and expired in-flight deliveries back
// to the ready list.
func (q *RedisQueue) Promote(ctx context.Context) (int, error) {
	now := score(q.clock())
	due, err := promoteScript.Run(ctx, q.client, []string{q.delayedKey, q.readyKey}, now, promoteBatch).Int()
	if err != nil {
		return 0, q.transportErr("promote delayed", err)
	}
	expired, err := requeueScript.Run(ctx, q.client,
		[]string{q.inflightKey, q.payloadKey, q.readyKey}, now, promoteBatch).Int()
	if err != nil {
		return due, q.transportErr("requeue expired", err)
	}
	return due + expired, nil
}

func (q *RedisQueue) transportErr(op string, err error) error {
	return fmt.Errorf("queue %s: %s: %w: %w", q.name, op, domain.ErrTransportUnavailable, err)
}

func encode(msg models.Message) (string, error) {
	if msg.JobID == "" {
		return "", domain.ErrInvalidArgument
	}
	raw, err := json.Marshal(msg)
	if err != nil {
		return "", fmt.Errorf("encode message: %w", err)
	}
	return string(raw), nil
}

func score(t time.Time) float64 {
	return float64(t.UnixMilli())
}
