// Package queue 实现一个基于 Redis list 的最小任务队列：
// 调用方 Enqueue 之后立即返回，worker 进程 BRPOP 取任务并执行。
// 任务在执行前出队（early-ack），进程在执行途中崩溃会丢掉该任务；
// 调用方对重复调度本就要有幂等处理，对丢失则靠流的短 TTL 过期兜底。
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"pybaq-backend/pkg/logger"
)

const jobKeyPrefix = "chat:jobs:"

var ErrBrokerUnavailable = errors.New("queue broker unavailable")

// Handler 执行一个具名任务。返回的 error 只用于记录，不触发重投。
type Handler func(ctx context.Context, args []string) error

type jobEnvelope struct {
	ID         string    `json:"id"`
	Job        string    `json:"job"`
	Args       []string  `json:"args"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// Queue 是生产者侧的入队句柄
type Queue struct {
	client *redis.Client
	key    string
}

func New(brokerURL, name string) (*Queue, error) {
	opts, err := redis.ParseURL(brokerURL)
	if err != nil {
		return nil, fmt.Errorf("invalid broker url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBrokerUnavailable, err)
	}

	return &Queue{client: client, key: jobKeyPrefix + name}, nil
}

// NewWithClient 测试用
func NewWithClient(client *redis.Client, name string) *Queue {
	return &Queue{client: client, key: jobKeyPrefix + name}
}

func (q *Queue) Enqueue(ctx context.Context, job string, args ...string) error {
	envelope := jobEnvelope{
		ID:         uuid.NewString(),
		Job:        job,
		Args:       args,
		EnqueuedAt: time.Now(),
	}

	data, err := json.Marshal(envelope)
	if err != nil {
		return err
	}

	if err := q.client.LPush(ctx, q.key, data).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrBrokerUnavailable, err)
	}
	return nil
}

func (q *Queue) Close() error {
	return q.client.Close()
}

// Worker 消费队列并分发给注册的 Handler
type Worker struct {
	queue       *Queue
	concurrency int

	mu       sync.RWMutex
	handlers map[string]Handler

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewWorker(queue *Queue, concurrency int) *Worker {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Worker{
		queue:       queue,
		concurrency: concurrency,
		handlers:    make(map[string]Handler),
	}
}

func (w *Worker) Register(job string, handler Handler) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.handlers[job] = handler
}

func (w *Worker) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	w.cancel = cancel

	for i := 0; i < w.concurrency; i++ {
		w.wg.Add(1)
		go w.loop(ctx)
	}

	logger.Infof("任务 worker 已启动，并发数 %d", w.concurrency)
}

// Stop 等待正在执行的任务结束后返回
func (w *Worker) Stop() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
}

func (w *Worker) loop(ctx context.Context) {
	defer w.wg.Done()

	for {
		if ctx.Err() != nil {
			return
		}

		// 短超时轮询，便于及时响应 Stop
		res, err := w.queue.client.BRPop(ctx, time.Second, w.queue.key).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) || ctx.Err() != nil {
				continue
			}
			logger.Warnf("队列读取失败: %v", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}

		// BRPOP 返回 [key, value]
		if len(res) != 2 {
			continue
		}
		w.dispatch(ctx, []byte(res[1]))
	}
}

func (w *Worker) dispatch(ctx context.Context, payload []byte) {
	var envelope jobEnvelope
	if err := json.Unmarshal(payload, &envelope); err != nil {
		logger.Errorf("无法解析任务载荷: %v", err)
		return
	}

	w.mu.RLock()
	handler, ok := w.handlers[envelope.Job]
	w.mu.RUnlock()
	if !ok {
		logger.Errorf("未注册的任务: %s", envelope.Job)
		return
	}

	defer func() {
		if r := recover(); r != nil {
			logger.Errorf("任务 %s (%s) panic: %v", envelope.Job, envelope.ID, r)
		}
	}()

	if err := handler(ctx, envelope.Args); err != nil {
		logger.Errorf("任务 %s (%s) 执行失败: %v", envelope.Job, envelope.ID, err)
	}
}
