package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"pybaq-backend/internal/model"
	"pybaq-backend/internal/service"
	"pybaq-backend/internal/utils"
	"pybaq-backend/pkg/logger"
)

type ChatHandler struct {
	chatService   *service.ChatService
	streamService *service.StreamService
}

func NewChatHandler(chatService *service.ChatService, streamService *service.StreamService) *ChatHandler {
	return &ChatHandler{
		chatService:   chatService,
		streamService: streamService,
	}
}

// Chat 同步问答，不走缓存
func (h *ChatHandler) Chat(c *gin.Context) {
	var req model.ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	resp, err := h.chatService.GetCompleteResponse(c.Request.Context(), req.Question)
	if err != nil {
		logger.Errorf("同步问答失败: %v", err)
		c.JSON(http.StatusInternalServerError, model.ErrorResponse{
			Status:  model.StatusError,
			Message: err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, resp)
}

// StreamChat 以 SSE 推送生成事件，直到终态事件或不活跃超时
func (h *ChatHandler) StreamChat(c *gin.Context) {
	var req model.StreamChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	events, err := h.streamService.StreamChat(c.Request.Context(), req.Question, req.CacheEnabled())
	if err != nil {
		logger.Errorf("建立事件流失败: %v", err)
		c.JSON(http.StatusInternalServerError, model.ErrorResponse{
			Status:  model.StatusError,
			Message: err.Error(),
		})
		return
	}

	sseWriter := utils.NewSSEWriter(c.Writer)
	for event := range events {
		if err := sseWriter.WriteJSON(event); err != nil {
			// 客户端已断开，relay 会随请求上下文一起结束
			logger.Warnf("SSE 写入失败: %v", err)
			return
		}
	}
}
