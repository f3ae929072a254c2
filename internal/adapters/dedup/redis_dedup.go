package dedup

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisDedup keeps processed-message markers as expiring Redis keys
type RedisDedup struct {
	client    *redis.Client
	keyPrefix string
	retention time.Duration
	logger    *zap.Logger
}

// NewRedisDedup creates a dedup store backed by the given client
func NewRedisDedup(client *redis.Client, keyPrefix string, retention time.Duration, logger *zap.Logger) *RedisDedup {
	return &RedisDedup{
		client:    client,
		keyPrefix: keyPrefix,
		retention: retention,
		logger:    logger,
	}
}

// Connect opens a client for addr and verifies it responds
func Connect(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", addr, err)
	}
	return client, nil
}

func (d *RedisDedup) key(accountID, messageID string) string {
	return fmt.Sprintf("%s:%s:%s", d.keyPrefix, accountID, messageID)
}

// IsProcessed reports whether a marker exists for the message
func (d *RedisDedup) IsProcessed(ctx context.Context, accountID, messageID string) (bool, error) {
	n, err := d.client.Exists(ctx, d.key(accountID, messageID)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check processed marker: %w", err)
	}
	return n > 0, nil
}

// BulkMarkProcessed writes all markers in one pipeline. Existing markers keep
// their original expiry.
func (d *RedisDedup) BulkMarkProcessed(ctx context.Context, accountID string, messageIDs []string) (int, int, error) {
	if len(messageIDs) == 0 {
		return 0, 0, nil
	}

	now := time.Now().Unix()
	pipe := d.client.Pipeline()
	cmds := make([]*redis.BoolCmd, len(messageIDs))
	for i, id := range messageIDs {
		cmds[i] = pipe.SetNX(ctx, d.key(accountID, id), now, d.retention)
	}

	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		// per-command errors are counted below
		d.logger.Debug("Redis pipeline reported an error", zap.Error(err))
	}

	success, failed := 0, 0
	for i, cmd := range cmds {
		if err := cmd.Err(); err != nil {
			d.logger.Warn("Failed to mark message processed",
				zap.String("account", accountID),
				zap.String("message_id", messageIDs[i]),
				zap.Error(err))
			failed++
			continue
		}
		success++
	}

	if success == 0 && failed > 0 {
		return 0, failed, fmt.Errorf("failed to mark %d messages processed", failed)
	}
	return success, failed, nil
}

// Stop closes the Redis client
func (d *RedisDedup) Stop() {
	if err := d.client.Close(); err != nil {
		d.logger.Error("Failed to close redis client", zap.Error(err))
	}
}
