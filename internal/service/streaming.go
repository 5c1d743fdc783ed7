package service

import (
	"context"
	"time"

	"pybaq-backend/internal/model"
	"pybaq-backend/internal/queue"
	"pybaq-backend/internal/storage"
	"pybaq-backend/internal/task"
	"pybaq-backend/internal/utils"
	"pybaq-backend/pkg/logger"
)

// 超时对客户端是显式的终态事件，不是静默断开
const timeoutMessage = "Request timed out"

// StreamService 负责两件事：判定是否需要调度新的生成周期（缓存命中检查），
// 以及把流中的事件按序转发给单个 HTTP 客户端。
type StreamService struct {
	store storage.StreamStore
	queue *queue.Queue

	blockTimeout      time.Duration
	inactivityTimeout time.Duration
	retryBackoff      time.Duration
}

func NewStreamService(store storage.StreamStore, q *queue.Queue, cfg StreamOptions) *StreamService {
	return &StreamService{
		store:             store,
		queue:             q,
		blockTimeout:      cfg.BlockTimeout,
		inactivityTimeout: cfg.InactivityTimeout,
		retryBackoff:      cfg.RetryBackoff,
	}
}

type StreamOptions struct {
	BlockTimeout      time.Duration
	InactivityTimeout time.Duration
	RetryBackoff      time.Duration
}

// StreamChat 为一次请求建立事件通道。缓存命中时直接挂到已有的流上，
// 未命中时先入队一个生成任务再开始读——消费者能正确处理尚为空的流，
// 所以不需要等生产者先写入。
func (s *StreamService) StreamChat(ctx context.Context, question string, useCache bool) (<-chan model.StreamEvent, error) {
	questionHash := utils.HashQuestion(question)
	key := storage.StreamKey(questionHash)

	schedule := true
	if useCache {
		exists, err := s.store.Exists(ctx, key)
		if err != nil {
			// 存在性检查失败按未命中处理，宁可多调度一次
			logger.Warnf("缓存检查失败（%s）: %v", questionHash, err)
		}
		schedule = !exists
	}

	if schedule {
		if err := s.queue.Enqueue(ctx, task.JobGenerateResponse, question, questionHash); err != nil {
			return nil, err
		}
		logger.Infof("已调度生成任务，问题哈希 %s", questionHash)
	} else {
		logger.Infof("缓存命中，直接回放流 %s", questionHash)
	}

	ch := make(chan model.StreamEvent)
	go s.relay(ctx, key, ch)
	return ch, nil
}

// relay 从流的起点开始读，发出终态事件或超出不活跃窗口后结束。
// 两个计时器互相独立：blockTimeout 只约束单次轮询，
// inactivityTimeout 约束距上一条事件的总停滞时间。
func (s *StreamService) relay(ctx context.Context, key string, ch chan<- model.StreamEvent) {
	defer close(ch)

	cursor := storage.CursorStart
	lastEvent := time.Now()

	for {
		entries, err := s.store.ReadFrom(ctx, key, cursor, s.blockTimeout)
		if err != nil {
			if ctx.Err() != nil {
				// 客户端断开：放弃转发即可，生产者继续写完缓存
				return
			}
			// 瞬时存储故障退避后重试，不活跃窗口是总预算：
			// 故障持续足够久时会以超时事件收尾
			logger.Warnf("读取流 %s 失败: %v", key, err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(s.retryBackoff):
			}
		}

		if len(entries) == 0 {
			if time.Since(lastEvent) > s.inactivityTimeout {
				s.emit(ctx, ch, model.StreamEvent{
					Status:  model.StatusError,
					Message: timeoutMessage,
				})
				return
			}
			continue
		}

		for _, entry := range entries {
			cursor = entry.ID
			lastEvent = time.Now()

			if !s.emit(ctx, ch, entry.Event) {
				return
			}
			if entry.Event.Terminal() {
				return
			}
		}
	}
}

func (s *StreamService) emit(ctx context.Context, ch chan<- model.StreamEvent, event model.StreamEvent) bool {
	select {
	case <-ctx.Done():
		return false
	case ch <- event:
		return true
	}
}
