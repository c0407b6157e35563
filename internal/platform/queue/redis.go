package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dontdude/goxec-eval/internal/config"
	"github.com/dontdude/goxec-eval/internal/domain"
	"github.com/dontdude/goxec-eval/internal/protocol"
)

const commandField = "command"

// Options name the Redis keys the queue works with.
type Options struct {
	Stream           string
	Group            string
	DeadLetterStream string
	ResultsChannel   string
	ResultKeyPrefix  string
	ResultTTL        time.Duration
}

// OptionsFromConfig maps the redis section of the configuration.
func OptionsFromConfig(cfg config.RedisConfig) Options {
	return Options{
		Stream:           cfg.Stream,
		Group:            cfg.Group,
		DeadLetterStream: cfg.DeadLetterStream,
		ResultsChannel:   cfg.ResultsChannel,
		ResultKeyPrefix:  cfg.ResultKeyPrefix,
		ResultTTL:        cfg.ResultTTL,
	}
}

// RedisQueue implements the command queue using Redis Streams and emits results
// with Pub/Sub plus a short-lived key per execution.
type RedisQueue struct {
	client   *redis.Client
	opts     Options
	consumer string
	logger   *slog.Logger

	// redeliver carries entries reclaimed by the recovery routine to the subscriber.
	redeliver chan domain.ExecutionCommand
}

// Ensure RedisQueue satisfies the interfaces
var (
	_ domain.CommandQueue  = (*RedisQueue)(nil)
	_ domain.ResultEmitter = (*RedisQueue)(nil)
	_ domain.ResultFeed    = (*RedisQueue)(nil)
)

// NewRedisQueue connects to Redis and fails fast when it is unreachable.
func NewRedisQueue(ctx context.Context, addr string, opts Options) (*RedisQueue, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr: addr,
	})

	// Fail-fast ping check
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return NewRedisQueueWithClient(rdb, opts), nil
}

// NewRedisQueueWithClient wraps an existing client.
func NewRedisQueueWithClient(rdb *redis.Client, opts Options) *RedisQueue {
	// Unique consumer name per process (e.g: hostname-pid)
	host, _ := os.Hostname()
	if host == "" {
		host = "consumer"
	}
	return &RedisQueue{
		client:    rdb,
		opts:      opts,
		consumer:  fmt.Sprintf("%s-%d", host, os.Getpid()),
		logger:    slog.Default().With("component", "queue"),
		redeliver: make(chan domain.ExecutionCommand),
	}
}

// Close releases the connection pool. Blocked reads return with an error.
func (r *RedisQueue) Close() error {
	return r.client.Close()
}

// Enqueue appends a command to the Redis stream using XADD (Producer)
func (r *RedisQueue) Enqueue(ctx context.Context, cmd domain.ExecutionCommand) error {
	data, err := protocol.EncodeCommand(cmd)
	if err != nil {
		return err
	}

	// XADD appends to the stream.
	// We use "*" Id to let Redis generate a timestamp-based ID.
	err = r.client.XAdd(ctx, &redis.XAddArgs{
		Stream: r.opts.Stream,
		Values: map[string]interface{}{
			commandField: data,
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("redis enqueue failed: %w", err)
	}
	return nil
}

// EnsureGroup creates the consumer group, reading the stream from its beginning.
func (r *RedisQueue) EnsureGroup(ctx context.Context) error {
	// MkStream guarantees the stream exists even if empty.
	err := r.client.XGroupCreateMkStream(ctx, r.opts.Stream, r.opts.Group, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("failed to create consumer group: %w", err)
	}
	return nil
}

// Subscribe returns a channel of commands read with XREADGROUP, merged with
// entries redelivered by the recovery routine. It is closed when ctx is done.
func (r *RedisQueue) Subscribe(ctx context.Context) (<-chan domain.ExecutionCommand, error) {
	if err := r.EnsureGroup(ctx); err != nil {
		return nil, err
	}

	outCh := make(chan domain.ExecutionCommand)
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		r.readLoop(ctx, outCh)
	}()

	go func() {
		defer wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case cmd := <-r.redeliver:
				select {
				case outCh <- cmd:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	go func() {
		wg.Wait()
		close(outCh)
	}()

	return outCh, nil
}

func (r *RedisQueue) readLoop(ctx context.Context, outCh chan<- domain.ExecutionCommand) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		// XREADGROUP blocks until a message is available (we use 2s to check context)
		streams, err := r.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    r.opts.Group,
			Consumer: r.consumer,
			Streams:  []string{r.opts.Stream, ">"}, // ">" means new messages
			Count:    1,
			Block:    2 * time.Second,
		}).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue // Timeout, retry
			}
			// Check if context canceled during blocking call
			if ctx.Err() != nil || errors.Is(err, redis.ErrClosed) {
				return
			}
			r.logger.Error("Redis read error", "error", err)
			select {
			case <-time.After(time.Second): // Backoff
			case <-ctx.Done():
				return
			}
			continue
		}

		for _, stream := range streams {
			for _, msg := range stream.Messages {
				cmd, ok := r.decode(ctx, msg)
				if !ok {
					continue
				}
				select {
				case outCh <- cmd:
				case <-ctx.Done():
					// left pending; the recovery routine will hand it out again
					return
				}
			}
		}
	}
}

// decode parses a stream entry. Malformed entries can never succeed, so they are
// moved to the dead-letter stream right away.
func (r *RedisQueue) decode(ctx context.Context, msg redis.XMessage) (domain.ExecutionCommand, bool) {
	val, ok := msg.Values[commandField].(string)
	if !ok {
		r.logger.Error("Invalid message format", "msgID", msg.ID)
		r.deadLetter(ctx, msg.ID, msg.Values, "missing command field", 1)
		return domain.ExecutionCommand{}, false
	}
	cmd, err := protocol.DecodeCommand([]byte(val))
	if err != nil {
		r.logger.Error("Failed to decode command", "msgID", msg.ID, "error", err)
		r.deadLetter(ctx, msg.ID, msg.Values, err.Error(), 1)
		return domain.ExecutionCommand{}, false
	}

	// Capture the Redis Stream ID so we can ACK later
	cmd.RawID = msg.ID
	return cmd, true
}

// Acknowledge confirms processing using XACK.
func (r *RedisQueue) Acknowledge(ctx context.Context, rawID string) error {
	if err := r.client.XAck(ctx, r.opts.Stream, r.opts.Group, rawID).Err(); err != nil {
		return fmt.Errorf("xack %s: %w", rawID, err)
	}
	return nil
}

// EmitResult publishes a serialized result on the results channel and stores it
// under its execution id for polling.
func (r *RedisQueue) EmitResult(ctx context.Context, executionID string, payload []byte) error {
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, r.opts.ResultKeyPrefix+executionID, payload, r.opts.ResultTTL)
		pipe.Publish(ctx, r.opts.ResultsChannel, payload)
		return nil
	})
	if err != nil {
		return fmt.Errorf("emit result %s: %w", executionID, err)
	}
	return nil
}

// LookupResult returns the stored result of an execution.
func (r *RedisQueue) LookupResult(ctx context.Context, executionID string) ([]byte, bool, error) {
	data, err := r.client.Get(ctx, r.opts.ResultKeyPrefix+executionID).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("lookup result %s: %w", executionID, err)
	}
	return data, true, nil
}

// SubscribeResults subscribes to the results channel and streams payloads to a Go channel.
func (r *RedisQueue) SubscribeResults(ctx context.Context) (<-chan []byte, error) {
	// Create the PubSub connection
	pubsub := r.client.Subscribe(ctx, r.opts.ResultsChannel)

	// Wait for confirmation that we are subscribed
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe to results: %w", err)
	}

	outCh := make(chan []byte)

	// Spawn background listener
	go func() {
		defer close(outCh)
		defer pubsub.Close()

		ch := pubsub.Channel()

		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				select {
				case outCh <- []byte(msg.Payload):
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return outCh, nil
}
