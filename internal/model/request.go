package model

type ChatRequest struct {
	Question string `json:"question" binding:"required"`
}

type StreamChatRequest struct {
	Question string `json:"question" binding:"required"`
	// UseCache 为空时默认为 true
	UseCache *bool `json:"use_cache"`
}

func (r *StreamChatRequest) CacheEnabled() bool {
	return r.UseCache == nil || *r.UseCache
}
