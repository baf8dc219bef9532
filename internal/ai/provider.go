// Package ai is the consumer-side interface to the hosted language model.
// chatgate treats answer generation as an opaque, possibly slow, fallible
// call; everything upstream of it (prompting, retrieval) lives outside this
// repository.
package ai

import "context"

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Result is what admission accounting needs back from a generation call:
// the answer plus how many tokens it cost and which model actually served it.
type Result struct {
	Answer     string
	TokensUsed int64
	Model      string
}

type Provider interface {
	Chat(ctx context.Context, messages []Message) (*Result, error)
}
