package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const claimBatch = 10

// StartRecoveryRoutine polls the PEL for entries whose consumer went quiet and hands
// them to the subscriber again. Entries already delivered maxDeliveries times are
// moved to the dead-letter stream instead. It returns when ctx is done.
func (r *RedisQueue) StartRecoveryRoutine(ctx context.Context, interval, minIdle time.Duration, maxDeliveries int64) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	r.logger.Info("Starting Redis Recovery Routine", "interval", interval, "minIdle", minIdle, "maxDeliveries", maxDeliveries)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			n, err := r.recoverOnce(ctx, minIdle, maxDeliveries)
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				r.logger.Error("Recovery routine failed", "error", err)
				continue
			}
			if n > 0 {
				r.logger.Info("Recovered stale commands", "count", n)
			}
		}
	}
}

// recoverOnce walks the PEL once and returns how many entries were redelivered.
func (r *RedisQueue) recoverOnce(ctx context.Context, minIdle time.Duration, maxDeliveries int64) (int, error) {
	recovered := 0
	start := "-" // Start from beginning of stream

	for {
		pending, err := r.client.XPendingExt(ctx, &redis.XPendingExtArgs{
			Stream: r.opts.Stream,
			Group:  r.opts.Group,
			Idle:   minIdle,
			Start:  start,
			End:    "+",
			Count:  claimBatch,
		}).Result()
		if err != nil {
			return recovered, fmt.Errorf("xpending: %w", err)
		}
		if len(pending) == 0 {
			return recovered, nil
		}

		var claim []string
		for _, p := range pending {
			if maxDeliveries > 0 && p.RetryCount >= maxDeliveries {
				r.logger.Warn("Command exceeded delivery limit", "msgID", p.ID, "deliveries", p.RetryCount)
				r.deadLetterByID(ctx, p.ID, "delivery limit exceeded", p.RetryCount)
				continue
			}
			claim = append(claim, p.ID)
		}

		if len(claim) > 0 {
			messages, err := r.client.XClaim(ctx, &redis.XClaimArgs{
				Stream:   r.opts.Stream,
				Group:    r.opts.Group,
				Consumer: r.consumer,
				MinIdle:  minIdle,
				Messages: claim,
			}).Result()
			if err != nil {
				return recovered, fmt.Errorf("xclaim: %w", err)
			}

			for _, msg := range messages {
				r.logger.Warn("Stale command claimed by recovery routine", "msgID", msg.ID)
				cmd, ok := r.decode(ctx, msg)
				if !ok {
					continue
				}
				select {
				case r.redeliver <- cmd:
					recovered++
				case <-ctx.Done():
					return recovered, ctx.Err()
				}
			}
		}

		if len(pending) < claimBatch {
			return recovered, nil
		}
		start = "(" + pending[len(pending)-1].ID
	}
}

func (r *RedisQueue) deadLetterByID(ctx context.Context, id, reason string, deliveries int64) {
	var values map[string]interface{}
	entries, err := r.client.XRange(ctx, r.opts.Stream, id, id).Result()
	if err != nil {
		r.logger.Error("Failed to read entry for dead-lettering", "msgID", id, "error", err)
		return
	}
	if len(entries) > 0 {
		values = entries[0].Values
	}
	r.deadLetter(ctx, id, values, reason, deliveries)
}

// deadLetter copies an entry to the dead-letter stream and acknowledges the original.
func (r *RedisQueue) deadLetter(ctx context.Context, id string, values map[string]interface{}, reason string, deliveries int64) {
	fields := map[string]interface{}{
		"original_id": id,
		"reason":      reason,
		"deliveries":  deliveries,
	}
	if v, ok := values[commandField]; ok {
		fields[commandField] = v
	}

	if r.opts.DeadLetterStream != "" {
		if err := r.client.XAdd(ctx, &redis.XAddArgs{Stream: r.opts.DeadLetterStream, Values: fields}).Err(); err != nil {
			// keep it pending so nothing is lost
			r.logger.Error("Failed to dead-letter command", "msgID", id, "error", err)
			return
		}
	}
	if err := r.Acknowledge(ctx, id); err != nil {
		r.logger.Error("Failed to acknowledge dead-lettered command", "msgID", id, "error", err)
	}
}
