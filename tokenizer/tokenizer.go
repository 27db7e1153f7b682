package tokenizer

import (
	"fmt"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// Tokenizer counts tokens in a text string.
type Tokenizer interface {
	CountTokens(text string) int
}

// Estimate approximates token counts from character ratios. CJK characters
// encode denser than Latin text, roughly 1.5 characters per token versus 4.
type Estimate struct{}

// NewEstimate creates a character-ratio estimator.
func NewEstimate() *Estimate {
	return &Estimate{}
}

// CountTokens estimates tokens in text. Non-empty text counts as at least
// one token.
func (e *Estimate) CountTokens(text string) int {
	if text == "" {
		return 0
	}
	var cjk, other int
	for _, r := range text {
		if r >= 0x4E00 && r <= 0x9FA5 {
			cjk++
		} else {
			other++
		}
	}
	tokens := float64(cjk)/1.5 + float64(other)/4.0
	if tokens < 1 {
		return 1
	}
	return int(tokens)
}

// Tiktoken counts tokens with a real BPE encoding. The encoding is loaded
// lazily because tiktoken may fetch data on first use; when loading fails it
// falls back to the estimator so token accounting keeps working.
type Tiktoken struct {
	encoding string
	fallback *Estimate

	once    sync.Once
	enc     *tiktoken.Tiktoken
	initErr error
}

// NewTiktoken creates a tiktoken-backed tokenizer for the given encoding.
// An empty encoding selects cl100k_base.
func NewTiktoken(encoding string) *Tiktoken {
	if encoding == "" {
		encoding = "cl100k_base"
	}
	return &Tiktoken{encoding: encoding, fallback: NewEstimate()}
}

func (t *Tiktoken) init() error {
	t.once.Do(func() {
		enc, err := tiktoken.GetEncoding(t.encoding)
		if err != nil {
			t.initErr = fmt.Errorf("init tiktoken encoding %s: %w", t.encoding, err)
			return
		}
		t.enc = enc
	})
	return t.initErr
}

// CountTokens counts tokens in text, estimating when the encoding cannot be
// loaded.
func (t *Tiktoken) CountTokens(text string) int {
	if text == "" {
		return 0
	}
	if err := t.init(); err != nil {
		return t.fallback.CountTokens(text)
	}
	return len(t.enc.Encode(text, nil, nil))
}
