package session

import (
	"fmt"

	tiktoken "github.com/pkoukk/tiktoken-go"
)

// Tokenizer estimates the prompt cost of an assembled session context.
type Tokenizer struct {
	enc *tiktoken.Tiktoken
}

// NewTokenizer returns a Tokenizer over the cl100k_base encoding. The count
// is an approximation across providers, not an exact budget.
func NewTokenizer() (*Tokenizer, error) {
	enc, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		return nil, fmt.Errorf("tokenizer: get encoding: %w", err)
	}
	return &Tokenizer{enc: enc}, nil
}

// Count returns the approximate number of tokens in s.
func (t *Tokenizer) Count(s string) int {
	return len(t.enc.Encode(s, nil, nil))
}
