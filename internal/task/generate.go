// Package task 存放由队列 worker 执行的后台任务。
package task

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"pybaq-backend/internal/llm"
	"pybaq-backend/internal/model"
	"pybaq-backend/internal/storage"
	"pybaq-backend/pkg/logger"
)

// JobGenerateResponse 是 Dispatch 入队、worker 执行的任务名
const JobGenerateResponse = "generate_ai_response"

// Generator 为一次缓存未命中执行完整的生成周期：
// 占住 claim → 截断流 → 写 processing → 转写上游增量 → 写终态事件。
// 一个周期内恰好追加一个终态事件（completed 或 error）。
type Generator struct {
	store       storage.StreamStore
	client      *llm.Client
	inFlightTTL time.Duration
	cacheTTL    time.Duration
	claimTTL    time.Duration
}

func NewGenerator(store storage.StreamStore, client *llm.Client, inFlightTTL, cacheTTL, claimTTL time.Duration) *Generator {
	return &Generator{
		store:       store,
		client:      client,
		inFlightTTL: inFlightTTL,
		cacheTTL:    cacheTTL,
		claimTTL:    claimTTL,
	}
}

// Handle 实现 queue.Handler，args 为 (question, question_hash)。
// 队列是 at-least-once，重复投递靠 claim 兜住：抢不到 claim 的副本直接退出，
// 不会截断正在写入的流。
func (g *Generator) Handle(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("generate_ai_response: 期望 2 个参数，收到 %d 个", len(args))
	}
	question, questionHash := args[0], args[1]

	token := uuid.NewString()
	ok, err := g.store.Claim(ctx, questionHash, token, g.claimTTL)
	if err != nil {
		return err
	}
	if !ok {
		logger.Infof("问题 %s 已有生成周期在进行，跳过重复任务", questionHash)
		return nil
	}
	// 释放不依赖请求上下文，生成结束后总要执行；
	// 释放失败只能等 claim 过期自愈，至少留下日志
	defer func() {
		if err := g.store.ReleaseClaim(context.Background(), questionHash, token); err != nil {
			logger.Warnf("释放 claim 失败（%s）: %v", questionHash, err)
		}
	}()

	logger.Infof("开始生成回答，问题哈希 %s", questionHash)
	key := storage.StreamKey(questionHash)

	if err := g.store.Truncate(ctx, key); err != nil {
		return err
	}
	if _, err := g.store.Append(ctx, key, model.StreamEvent{Status: model.StatusProcessing}); err != nil {
		return err
	}
	// 短 TTL 兜底：生产者中途崩溃时残留的半成品日志会自然过期
	if err := g.store.SetTTL(ctx, key, g.inFlightTTL); err != nil {
		return err
	}

	if err := g.generate(ctx, key, question); err != nil {
		// 生成失败对用户是正常业务结果，转成 error 事件而不是任务失败；
		// 不延长 TTL，错误流不做长期缓存
		logger.Errorf("生成回答失败（%s）: %v", questionHash, err)
		g.appendError(key, err.Error())
		return nil
	}

	if err := g.store.SetTTL(ctx, key, g.cacheTTL); err != nil {
		logger.Warnf("延长缓存 TTL 失败（%s）: %v", questionHash, err)
	}

	logger.Infof("回答生成完成，问题哈希 %s", questionHash)
	return nil
}

func (g *Generator) generate(ctx context.Context, key, question string) error {
	var full strings.Builder

	for delta := range g.client.StreamCompletion(ctx, question) {
		if delta.Err != nil {
			return delta.Err
		}
		if delta.Content == "" {
			continue
		}

		full.WriteString(delta.Content)
		// 必须按到达顺序逐条追加，消费者靠追加顺序重组回答
		if _, err := g.store.Append(ctx, key, model.StreamEvent{
			Status: model.StatusStreaming,
			Chunk:  delta.Content,
		}); err != nil {
			return err
		}
	}

	// completed 事件携带完整拼接结果，晚到的消费者读这一条就能拿到全文
	if _, err := g.store.Append(ctx, key, model.StreamEvent{
		Status: model.StatusCompleted,
		Chunk:  full.String(),
	}); err != nil {
		return err
	}
	return nil
}

func (g *Generator) appendError(key, message string) {
	// 请求上下文可能已取消，写终态事件用独立的短超时
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := g.store.Append(ctx, key, model.StreamEvent{
		Status:  model.StatusError,
		Message: message,
	}); err != nil {
		logger.Errorf("写入 error 事件失败（%s）: %v", key, err)
	}
}
