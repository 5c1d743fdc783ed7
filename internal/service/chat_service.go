package service

import (
	"context"
	"errors"

	openai "github.com/sashabaranov/go-openai"

	"pybaq-backend/internal/config"
	"pybaq-backend/internal/model"
)

const promptTemplate = `You are a demo assistant for PyBAQ (Python Barranquilla community) that provides detailed answers to user questions.
When you receive a question, you should:
1. Analyze the question and identify key components.
2. Provide a comprehensive answer based on the information available.
3. If you need to make assumptions, clearly state them in your answer.
4. Always aim to provide the most accurate and helpful response possible.
Here is the user's question:
`

// ChatService 处理非流式、不走缓存的同步问答
type ChatService struct {
	client *openai.Client
	model  string
}

func NewChatService(cfg config.OpenRouterConfig) *ChatService {
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}

	return &ChatService{
		client: openai.NewClientWithConfig(clientConfig),
		model:  cfg.Model,
	}
}

func (s *ChatService) GetCompleteResponse(ctx context.Context, question string) (*model.ChatResponse, error) {
	resp, err := s.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: s.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: promptTemplate + question},
		},
	})
	if err != nil {
		return nil, err
	}

	if len(resp.Choices) == 0 {
		return nil, errors.New("upstream returned no choices")
	}

	return &model.ChatResponse{
		Status: model.StatusCompleted,
		Chunk:  resp.Choices[0].Message.Content,
	}, nil
}
