package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHashQuestion_CaseFold(t *testing.T) {
	// 大小写不同的同一问题必须命中同一缓存键
	assert.Equal(t, HashQuestion("What is PyBAQ?"), HashQuestion("what is pybaq?"))
	assert.Equal(t, HashQuestion("HELLO"), HashQuestion("hello"))
}

func TestHashQuestion_TrimWhitespace(t *testing.T) {
	assert.Equal(t, HashQuestion("  what is pybaq?  "), HashQuestion("what is pybaq?"))
}

func TestHashQuestion_Distinct(t *testing.T) {
	questions := []string{
		"What is PyBAQ?",
		"Who organizes PyBAQ?",
		"When is the next meetup?",
		"",
	}

	seen := make(map[string]string)
	for _, q := range questions {
		h := HashQuestion(q)
		prev, dup := seen[h]
		assert.False(t, dup, "哈希冲突: %q 与 %q", q, prev)
		seen[h] = q
	}
}

func TestHashQuestion_FixedWidth(t *testing.T) {
	// SHA-256 hex 固定 64 字符
	assert.Len(t, HashQuestion("anything"), 64)
	assert.Len(t, HashQuestion(""), 64)
}

func TestHashQuestion_Deterministic(t *testing.T) {
	assert.Equal(t, HashQuestion("stable"), HashQuestion("stable"))
}
