package rag

import (
	"context"
	"fmt"
	"log"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	chatservice "github.com/minhokim/voicerag/backend/internal/service/chat"
)

// turnState enumerates the phases of one conversational turn.
type turnState int

const (
	stateDeciding turnState = iota
	stateInvokingTool
	stateSynthesizing
	stateDone
)

const answerDirective = "You are an assistant for question-answering tasks. " +
	"Use the following pieces of retrieved context to answer the question. " +
	"If you don't know the answer, say that you don't know. " +
	"Use three sentences maximum and keep the answer concise."

// Orchestrator runs the per-turn state machine: the model first decides
// whether to answer directly or retrieve, retrieval results are folded into a
// fresh system instruction, and a second tool-free call produces the final
// answer. Tool use is bounded to one retrieval round per turn.
//
// All collaborators are injected; the orchestrator holds no session state of
// its own beyond the duration of a single turn.
type Orchestrator struct {
	decider   model.BaseChatModel // tool descriptors bound
	finalizer model.BaseChatModel // plain model, forces a final answer
	invoker   *Invoker
	sessions  *chatservice.Service
	window    *Window
}

// NewOrchestrator binds the invoker's tool descriptors to the chat model and
// wires the turn state machine.
func NewOrchestrator(chatModel model.ToolCallingChatModel, invoker *Invoker, sessions *chatservice.Service, window *Window) (*Orchestrator, error) {
	bound, err := chatModel.WithTools(invoker.Infos())
	if err != nil {
		return nil, fmt.Errorf("bind tools: %w", err)
	}
	if window == nil {
		window = &Window{}
	}
	return &Orchestrator{
		decider:   bound,
		finalizer: chatModel,
		invoker:   invoker,
		sessions:  sessions,
		window:    window,
	}, nil
}

// Chat processes one user turn on the given session and returns the final
// answer text. Concurrent turns on the same session fail fast with
// chatservice.ErrSessionBusy.
func (o *Orchestrator) Chat(ctx context.Context, sessionID, userText string) (string, error) {
	if err := o.sessions.BeginTurn(ctx, sessionID); err != nil {
		return "", err
	}
	defer o.sessions.EndTurn(ctx, sessionID)

	if err := o.sessions.Append(ctx, sessionID, schema.UserMessage(userText)); err != nil {
		return "", err
	}

	var answer string
	for state := stateDeciding; state != stateDone; {
		var err error
		switch state {
		case stateDeciding:
			state, answer, err = o.decide(ctx, sessionID)
		case stateInvokingTool:
			state, err = o.invokeTools(ctx, sessionID)
		case stateSynthesizing:
			state, answer, err = o.synthesize(ctx, sessionID)
		}
		if err != nil {
			return "", err
		}
	}
	return answer, nil
}

// decide issues the first completion call with tool descriptors attached.
// A content-only reply ends the turn; tool call requests move it to the
// invocation phase.
func (o *Orchestrator) decide(ctx context.Context, sessionID string) (turnState, string, error) {
	history, err := o.sessions.History(ctx, sessionID)
	if err != nil {
		return stateDone, "", err
	}

	reply, err := o.decider.Generate(ctx, o.window.Trim(history, 1))
	if err != nil {
		// History keeps only the user message appended before this call.
		return stateDone, "", fmt.Errorf("%w: %v", ErrCompletionFailure, err)
	}

	if err := o.sessions.Append(ctx, sessionID, reply); err != nil {
		return stateDone, "", err
	}

	if len(reply.ToolCalls) > 0 {
		log.Printf("[rag] session=%s model requested %d tool call(s)", sessionID, len(reply.ToolCalls))
		return stateInvokingTool, "", nil
	}
	return stateDone, reply.Content, nil
}

// invokeTools executes every request from the triggering assistant message in
// request order. Failures are recorded as failure-marker tool messages so the
// tool_call_id link in history is never left dangling.
func (o *Orchestrator) invokeTools(ctx context.Context, sessionID string) (turnState, error) {
	history, err := o.sessions.History(ctx, sessionID)
	if err != nil {
		return stateDone, err
	}
	requests := history[len(history)-1].ToolCalls

	for _, call := range requests {
		result, err := o.invoker.Invoke(ctx, call)

		var toolMsg *schema.Message
		if err != nil {
			log.Printf("[rag] session=%s tool=%s call=%s failed: %v", sessionID, call.Function.Name, call.ID, err)
			toolMsg = schema.ToolMessage(fmt.Sprintf("tool %s failed: %v", call.Function.Name, err), call.ID)
		} else {
			toolMsg = schema.ToolMessage(result.Content, call.ID)
		}
		if err := o.sessions.Append(ctx, sessionID, toolMsg); err != nil {
			return stateDone, err
		}
	}
	return stateSynthesizing, nil
}

// synthesize folds the current turn's tool results into a fresh system
// instruction and issues the final, tool-free completion call. Older tool
// rounds stay in history for audit but are not replayed.
func (o *Orchestrator) synthesize(ctx context.Context, sessionID string) (turnState, string, error) {
	history, err := o.sessions.History(ctx, sessionID)
	if err != nil {
		return stateDone, "", err
	}

	contextBlock := trailingToolContext(history)
	system := schema.SystemMessage(answerDirective + "\n\n" + contextBlock)

	conversation := make([]*schema.Message, 0, len(history))
	for _, msg := range history {
		switch msg.Role {
		case schema.User, schema.System:
			conversation = append(conversation, msg)
		case schema.Assistant:
			// The tool-invocation turn itself is summarized, not replayed.
			if len(msg.ToolCalls) == 0 {
				conversation = append(conversation, msg)
			}
		}
	}

	prompt := append([]*schema.Message{system}, o.window.Trim(conversation, 1)...)

	reply, err := o.finalizer.Generate(ctx, prompt)
	if err != nil {
		return stateDone, "", fmt.Errorf("%w: %v", ErrCompletionFailure, err)
	}

	if err := o.sessions.Append(ctx, sessionID, reply); err != nil {
		return stateDone, "", err
	}
	return stateDone, reply.Content, nil
}

// trailingToolContext collects the contiguous run of tool messages at the
// tail of history and returns their contents in chronological order.
func trailingToolContext(history []*schema.Message) string {
	var recent []*schema.Message
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role != schema.Tool {
			break
		}
		recent = append(recent, history[i])
	}

	content := ""
	for i := len(recent) - 1; i >= 0; i-- {
		if content != "" {
			content += "\n\n"
		}
		content += recent[i].Content
	}
	return content
}
