package rag

import (
	"fmt"

	"github.com/cloudwego/eino/schema"
	"github.com/pkoukk/tiktoken-go"
)

// Window bounds how much history is replayed to the completion model.
// History itself grows without limit for audit; only the model input is
// trimmed, oldest messages first.
type Window struct {
	tokenizer *tiktoken.Tiktoken
	budget    int
}

// NewWindow creates a token-budget window. model selects the tokenizer with a
// cl100k_base fallback for unknown names. A budget of 0 disables trimming.
func NewWindow(model string, budget int) (*Window, error) {
	if budget <= 0 {
		return &Window{}, nil
	}

	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		enc, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			return nil, fmt.Errorf("get tokenizer: %w", err)
		}
	}
	return &Window{tokenizer: enc, budget: budget}, nil
}

// Trim drops messages from the front until the remainder fits the budget.
// The last keep messages are never dropped, so the current turn always
// reaches the model intact.
func (w *Window) Trim(msgs []*schema.Message, keep int) []*schema.Message {
	if w.tokenizer == nil || len(msgs) == 0 {
		return msgs
	}
	if keep < 1 {
		keep = 1
	}
	if keep > len(msgs) {
		keep = len(msgs)
	}

	total := 0
	for _, msg := range msgs {
		total += w.count(msg)
	}

	start := 0
	for total > w.budget && start < len(msgs)-keep {
		total -= w.count(msgs[start])
		start++
	}
	return msgs[start:]
}

func (w *Window) count(msg *schema.Message) int {
	n := len(w.tokenizer.Encode(msg.Content, nil, nil))
	for _, call := range msg.ToolCalls {
		n += len(w.tokenizer.Encode(call.Function.Name, nil, nil))
		n += len(w.tokenizer.Encode(call.Function.Arguments, nil, nil))
	}
	return n
}
