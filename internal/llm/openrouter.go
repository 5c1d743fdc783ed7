// Package llm 封装 OpenRouter 的 chat completions 流式调用。
package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"pybaq-backend/internal/config"
	"pybaq-backend/internal/utils"
)

// Delta 是上游返回的一个增量片段；Err 非空表示流异常终止
type Delta struct {
	Content string
	Err     error
}

type Client struct {
	httpClient *http.Client
	apiKey     string
	baseURL    string
	model      string
}

func NewClient(cfg config.OpenRouterConfig) *Client {
	return &Client{
		httpClient: utils.NewHTTPClient(cfg.Timeout),
		apiKey:     cfg.APIKey,
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		model:      cfg.Model,
	}
}

type chatCompletionRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
}

// StreamCompletion 发起流式补全，按到达顺序把增量写入返回的通道。
// 单帧 JSON 解析失败只跳过该帧；传输层错误或非 2xx 响应通过 Delta.Err 上报。
func (c *Client) StreamCompletion(ctx context.Context, question string) <-chan Delta {
	ch := make(chan Delta)

	go func() {
		defer close(ch)

		payload, err := json.Marshal(chatCompletionRequest{
			Model:    c.model,
			Messages: []chatMessage{{Role: "user", Content: question}},
			Stream:   true,
		})
		if err != nil {
			c.fail(ctx, ch, err)
			return
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(payload))
		if err != nil {
			c.fail(ctx, ch, err)
			return
		}
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			c.fail(ctx, ch, err)
			return
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 400 {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			c.fail(ctx, ch, fmt.Errorf("upstream returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body))))
			return
		}

		reader := bufio.NewReader(resp.Body)
		for {
			line, err := reader.ReadString('\n')
			if err != nil {
				if err != io.EOF {
					c.fail(ctx, ch, err)
				}
				return
			}

			line = strings.TrimSpace(line)
			if line == "" || !strings.HasPrefix(line, "data:") {
				continue
			}
			data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			if data == "[DONE]" {
				return
			}

			var chunk chatCompletionChunk
			if err := json.Unmarshal([]byte(data), &chunk); err != nil {
				// 单帧损坏不终止整个生成
				continue
			}

			for _, choice := range chunk.Choices {
				if choice.Delta.Content == "" {
					continue
				}
				select {
				case <-ctx.Done():
					return
				case ch <- Delta{Content: choice.Delta.Content}:
				}
			}
		}
	}()

	return ch
}

func (c *Client) fail(ctx context.Context, ch chan<- Delta, err error) {
	select {
	case <-ctx.Done():
	case ch <- Delta{Err: err}:
	}
}
