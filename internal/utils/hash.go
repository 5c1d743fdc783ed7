package utils

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// HashQuestion 把问题文本映射为固定长度的缓存键。
// 先做大小写归一化，保证 "What is PyBAQ?" 和 "what is pybaq?" 命中同一条缓存。
func HashQuestion(question string) string {
	normalized := strings.ToLower(strings.TrimSpace(question))
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}
