package rag

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/schema"
)

// Invoker resolves model-issued tool calls against a static registry built at
// startup. Tool names map to executables; only the descriptors cross the
// model boundary.
type Invoker struct {
	tools map[string]Tool
	order []string
}

// NewInvoker registers the given tools. Later registrations with the same
// name win.
func NewInvoker(tools ...Tool) *Invoker {
	inv := &Invoker{tools: make(map[string]Tool, len(tools))}
	for _, t := range tools {
		name := t.Info().Name
		if _, ok := inv.tools[name]; !ok {
			inv.order = append(inv.order, name)
		}
		inv.tools[name] = t
	}
	return inv
}

// Infos returns the descriptor set handed to the completion model on the
// deciding call.
func (inv *Invoker) Infos() []*schema.ToolInfo {
	infos := make([]*schema.ToolInfo, 0, len(inv.order))
	for _, name := range inv.order {
		infos = append(infos, inv.tools[name].Info())
	}
	return infos
}

// Invoke executes one tool call request. Each request is consumed exactly
// once; unknown tool names are a ToolFailure.
func (inv *Invoker) Invoke(ctx context.Context, call schema.ToolCall) (*ToolResult, error) {
	tool, ok := inv.tools[call.Function.Name]
	if !ok {
		return nil, fmt.Errorf("%w: unknown tool %q", ErrToolFailure, call.Function.Name)
	}
	return tool.Invoke(ctx, call.Function.Arguments)
}
