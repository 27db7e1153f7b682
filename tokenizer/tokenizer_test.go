package tokenizer

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEstimate_CountTokens(t *testing.T) {
	e := NewEstimate()

	assert.Equal(t, 0, e.CountTokens(""))
	assert.Equal(t, 1, e.CountTokens("hi"))

	// 400 latin characters at ~4 chars per token.
	text := strings.Repeat("abcd", 100)
	assert.Equal(t, 100, e.CountTokens(text))
}

func TestEstimate_CountTokens_CJK(t *testing.T) {
	e := NewEstimate()

	// 30 CJK characters at ~1.5 chars per token.
	text := strings.Repeat("你好吗", 10)
	assert.Equal(t, 20, e.CountTokens(text))
}

func TestTiktoken_EmptyText(t *testing.T) {
	tk := NewTiktoken("")
	assert.Equal(t, "cl100k_base", tk.encoding)
	assert.Equal(t, 0, tk.CountTokens(""))
}

func TestTiktoken_FallsBackOnInitError(t *testing.T) {
	tk := NewTiktoken("no-such-encoding")
	// Init fails for an unknown encoding; the estimator keeps counting.
	n := tk.CountTokens("hello world, this is a test sentence")
	assert.Greater(t, n, 0)
}
