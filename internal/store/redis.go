package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/synheart/vitalsynth/internal/models"
)

// RedisStore keeps readings as JSON in a hash keyed by id, with insertion order in a list.
type RedisStore struct {
	client *redis.Client
	prefix string
	logger *zap.Logger
}

// NewRedisStore creates a store on client using keys under prefix.
func NewRedisStore(client *redis.Client, prefix string, logger *zap.Logger) *RedisStore {
	if prefix == "" {
		prefix = "vitalsynth"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisStore{client: client, prefix: prefix, logger: logger}
}

// ===== Keys =====

func (r *RedisStore) readingsKey() string {
	return fmt.Sprintf("%s:readings", r.prefix)
}

func (r *RedisStore) orderKey() string {
	return fmt.Sprintf("%s:order", r.prefix)
}

// ===== Store =====

func (r *RedisStore) Append(ctx context.Context, reading models.Reading) error {
	data, err := json.Marshal(reading)
	if err != nil {
		return fmt.Errorf("failed to marshal reading: %w", err)
	}

	pipe := r.client.TxPipeline()
	pipe.HSet(ctx, r.readingsKey(), reading.ID, data)
	pipe.RPush(ctx, r.orderKey(), reading.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to append reading: %w", err)
	}
	return nil
}

func (r *RedisStore) All(ctx context.Context) ([]models.Reading, error) {
	ids, err := r.client.LRange(ctx, r.orderKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get reading order: %w", err)
	}
	if len(ids) == 0 {
		return []models.Reading{}, nil
	}

	values, err := r.client.HMGet(ctx, r.readingsKey(), ids...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get readings: %w", err)
	}

	readings := make([]models.Reading, 0, len(values))
	for i, v := range values {
		s, ok := v.(string)
		if !ok {
			continue // id in order list without a record
		}
		var reading models.Reading
		if err := json.Unmarshal([]byte(s), &reading); err != nil {
			r.logger.Warn("skipping corrupt record", zap.String("reading_id", ids[i]), zap.Error(err))
			continue
		}
		readings = append(readings, reading)
	}
	return readings, nil
}

func (r *RedisStore) Delete(ctx context.Context, id string) (bool, error) {
	pipe := r.client.TxPipeline()
	del := pipe.HDel(ctx, r.readingsKey(), id)
	pipe.LRem(ctx, r.orderKey(), 0, id)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("failed to delete reading: %w", err)
	}
	return del.Val() > 0, nil
}

func (r *RedisStore) DeleteDevice(ctx context.Context, deviceID string) (int, error) {
	readings, err := r.All(ctx)
	if err != nil {
		return 0, err
	}

	var ids []string
	for _, reading := range readings {
		if reading.DeviceID == deviceID {
			ids = append(ids, reading.ID)
		}
	}
	if len(ids) == 0 {
		return 0, nil
	}

	pipe := r.client.TxPipeline()
	pipe.HDel(ctx, r.readingsKey(), ids...)
	for _, id := range ids {
		pipe.LRem(ctx, r.orderKey(), 0, id)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("failed to delete device readings: %w", err)
	}
	return len(ids), nil
}

// Load checks connectivity; the data already lives in Redis.
func (r *RedisStore) Load(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to reach redis: %w", err)
	}
	n, err := r.client.LLen(ctx, r.orderKey()).Result()
	if err != nil {
		return fmt.Errorf("failed to count readings: %w", err)
	}
	r.logger.Info("history loaded", zap.String("prefix", r.prefix), zap.Int64("readings", n))
	return nil
}

// Save is a no-op; every append is durable once Exec returns.
func (r *RedisStore) Save(context.Context) error {
	return nil
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}
