package storage

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/dinanjanan/cryostat-probe/pkg/protocol"
)

// RedisBackend 发布到 Redis Pub/Sub, 同时按运行保存到 List
type RedisBackend struct {
	client  *redis.Client
	channel string
	keep    int64
	log     *logrus.Logger
}

// NewRedisBackend 连接 Redis, keep 为每次运行保留的最大记录数
func NewRedisBackend(ctx context.Context, addr, password, channel string, db, poolSize int, keep int64, log *logrus.Logger) (*RedisBackend, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
		PoolSize: poolSize,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("连接Redis失败: %w", err)
	}
	log.Infof("Redis连接成功: %s", addr)

	return &RedisBackend{client: client, channel: channel, keep: keep, log: log}, nil
}

func (r *RedisBackend) Name() string {
	return "redis"
}

// ListKey 某次运行的数据列表键
func ListKey(runID string) string {
	return fmt.Sprintf("fieldsweep:%s:data", runID)
}

// Publish 发布消息, 采样点额外写入运行列表
func (r *RedisBackend) Publish(ctx context.Context, msg *protocol.Message) error {
	data, err := encode(msg)
	if err != nil {
		return err
	}

	if err := r.client.Publish(ctx, r.channel, data).Err(); err != nil {
		return fmt.Errorf("发布消息失败: %w", err)
	}
	if msg.Type != protocol.MessageTypeSample {
		return nil
	}

	key := ListKey(msg.RunID)
	pipe := r.client.Pipeline()
	pipe.RPush(ctx, key, data)
	if r.keep > 0 {
		pipe.LTrim(ctx, key, -r.keep, -1)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		r.log.Warnf("保存到List失败: %v", err)
	}
	return nil
}

func (r *RedisBackend) Close() error {
	return r.client.Close()
}
