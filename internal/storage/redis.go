package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"pybaq-backend/internal/model"
)

const (
	streamKeyPrefix = "chat:stream:"
	claimKeyPrefix  = "chat:claim:"
)

// StreamKey 拼出问题哈希对应的流键
func StreamKey(questionHash string) string {
	return streamKeyPrefix + questionHash
}

func claimKey(questionHash string) string {
	return claimKeyPrefix + questionHash
}

// 只有 token 匹配才删除，避免释放掉别人的 claim
var releaseClaimScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisStreamStore 基于 Redis Stream（XADD/XREAD/XTRIM）实现 StreamStore
type RedisStreamStore struct {
	client *redis.Client
}

func NewRedisStreamStore(url string) (*RedisStreamStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	return &RedisStreamStore{client: client}, nil
}

// NewRedisStreamStoreWithClient 测试用，直接注入已有客户端
func NewRedisStreamStoreWithClient(client *redis.Client) *RedisStreamStore {
	return &RedisStreamStore{client: client}
}

func (s *RedisStreamStore) Exists(ctx context.Context, key string) (bool, error) {
	// 截断后的空流键可能残留，按"至少一条记录"判定而不是键存在性
	n, err := s.client.XLen(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return n > 0, nil
}

func (s *RedisStreamStore) Truncate(ctx context.Context, key string) error {
	// MAXLEN 0 精确截断，保证新周期从空日志开始
	if err := s.client.XTrimMaxLen(ctx, key, 0).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

func (s *RedisStreamStore) Append(ctx context.Context, key string, event model.StreamEvent) (string, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return "", err
	}

	id, err := s.client.XAdd(ctx, &redis.XAddArgs{
		Stream: key,
		Values: map[string]interface{}{"data": string(data)},
	}).Result()
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return id, nil
}

func (s *RedisStreamStore) ReadFrom(ctx context.Context, key, cursor string, block time.Duration) ([]Entry, error) {
	if cursor == "" {
		return nil, ErrInvalidCursor
	}

	res, err := s.client.XRead(ctx, &redis.XReadArgs{
		Streams: []string{key, cursor},
		Count:   64,
		Block:   block,
	}).Result()
	if err != nil {
		// 阻塞超时不是故障，只是暂无新数据
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	var entries []Entry
	for _, stream := range res {
		for _, msg := range stream.Messages {
			raw, _ := msg.Values["data"].(string)
			var event model.StreamEvent
			if err := json.Unmarshal([]byte(raw), &event); err != nil {
				// 坏记录跳过，不让单条脏数据拖垮整个流
				continue
			}
			entries = append(entries, Entry{ID: msg.ID, Event: event})
		}
	}
	return entries, nil
}

func (s *RedisStreamStore) SetTTL(ctx context.Context, key string, ttl time.Duration) error {
	if err := s.client.Expire(ctx, key, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

func (s *RedisStreamStore) Claim(ctx context.Context, hash, token string, ttl time.Duration) (bool, error) {
	ok, err := s.client.SetNX(ctx, claimKey(hash), token, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return ok, nil
}

func (s *RedisStreamStore) ReleaseClaim(ctx context.Context, hash, token string) error {
	if err := releaseClaimScript.Run(ctx, s.client, []string{claimKey(hash)}, token).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

func (s *RedisStreamStore) Close() error {
	return s.client.Close()
}
