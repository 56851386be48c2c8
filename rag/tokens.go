package rag

import (
	"github.com/pkoukk/tiktoken-go"
)

// TokenCounter measures text in cl100k_base tokens. When the encoding
// cannot be loaded it falls back to a bytes/4 estimate.
type TokenCounter struct {
	enc *tiktoken.Tiktoken
}

func NewTokenCounter() *TokenCounter {
	enc, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		enc = nil
	}
	return &TokenCounter{enc: enc}
}

func (t *TokenCounter) Count(text string) int {
	if t.enc == nil {
		return len(text) / 4
	}
	return len(t.enc.Encode(text, nil, nil))
}
