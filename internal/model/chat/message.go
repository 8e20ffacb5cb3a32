package chat

import "github.com/cloudwego/eino/schema"

// ToolCallView is the wire form of a tool invocation request recorded on an
// assistant message.
type ToolCallView struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// MessageView is the transcript form of a history entry returned over HTTP.
type MessageView struct {
	Role       string         `json:"role"`
	Content    string         `json:"content"`
	ToolCalls  []ToolCallView `json:"toolCalls,omitempty"`
	ToolCallID string         `json:"toolCallId,omitempty"`
}

// ViewOf converts a model message into its transcript form.
func ViewOf(msg *schema.Message) MessageView {
	view := MessageView{
		Role:       string(msg.Role),
		Content:    msg.Content,
		ToolCallID: msg.ToolCallID,
	}
	for _, call := range msg.ToolCalls {
		view.ToolCalls = append(view.ToolCalls, ToolCallView{
			ID:        call.ID,
			Name:      call.Function.Name,
			Arguments: call.Function.Arguments,
		})
	}
	return view
}
