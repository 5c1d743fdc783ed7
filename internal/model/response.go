package model

// 生成周期内的事件状态
const (
	StatusProcessing = "processing"
	StatusStreaming  = "streaming"
	StatusCompleted  = "completed"
	StatusError      = "error"
)

// StreamEvent 是流中的一条记录。
// streaming 事件的 Chunk 是增量片段，completed 事件的 Chunk 是完整拼接后的回答，
// error 事件通过 Message 携带错误描述。
type StreamEvent struct {
	Status  string `json:"status"`
	Chunk   string `json:"chunk,omitempty"`
	Message string `json:"message,omitempty"`
}

// Terminal 判断事件之后是否不再有后续事件
func (e StreamEvent) Terminal() bool {
	return e.Status == StatusCompleted || e.Status == StatusError
}

type ChatResponse struct {
	Status string `json:"status"`
	Chunk  string `json:"chunk"`
}

type ErrorResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}
