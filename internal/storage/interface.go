package storage

import (
	"context"
	"time"

	"pybaq-backend/internal/model"
)

// CursorStart 是流的逻辑起点，从这里读取可以回放整个生成周期
const CursorStart = "0-0"

// Entry 是带序号的流记录，ID 由存储层分配且单调递增
type Entry struct {
	ID    string
	Event model.StreamEvent
}

// StreamStore 是按键寻址的追加式事件日志。
// 约定：一个生成周期内只有持有 claim 的生产者写入，消费者只读。
type StreamStore interface {
	// Exists 判断 key 对应的流当前是否存在（至少有一条记录且未过期）
	Exists(ctx context.Context, key string) (bool, error)

	// Truncate 清空 key 下的全部记录，在新生成周期开始前调用
	Truncate(ctx context.Context, key string) error

	// Append 追加一条事件，返回存储层分配的记录 ID
	Append(ctx context.Context, key string, event model.StreamEvent) (string, error)

	// ReadFrom 阻塞最多 block 时间，返回 ID 大于 cursor 的记录。
	// 超时返回空切片而不是错误——表示"暂无新数据"。
	ReadFrom(ctx context.Context, key, cursor string, block time.Duration) ([]Entry, error)

	// SetTTL 刷新 key 的过期时间
	SetTTL(ctx context.Context, key string, ttl time.Duration) error

	// Claim 用条件写占住一个生成周期，token 相同才能 Release。
	// 返回 false 表示已有其他生产者持有该周期。
	Claim(ctx context.Context, hash, token string, ttl time.Duration) (bool, error)
	ReleaseClaim(ctx context.Context, hash, token string) error

	Close() error
}
