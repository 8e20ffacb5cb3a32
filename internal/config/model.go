package config

import (
	"context"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

// toolCallingModel adapts a BindTools-style chat model to the WithTools
// contract. BindTools mutates the instance it is called on, so WithTools
// builds a fresh instance from the factory and binds the tools to that one;
// the original instance stays tool-free.
type toolCallingModel struct {
	base    model.ChatModel
	factory func() (model.ChatModel, error)
}

func newToolCallingModel(factory func() (model.ChatModel, error)) (model.ToolCallingChatModel, error) {
	base, err := factory()
	if err != nil {
		return nil, err
	}
	return &toolCallingModel{base: base, factory: factory}, nil
}

func (m *toolCallingModel) Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	return m.base.Generate(ctx, input, opts...)
}

func (m *toolCallingModel) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	return m.base.Stream(ctx, input, opts...)
}

func (m *toolCallingModel) WithTools(tools []*schema.ToolInfo) (model.ToolCallingChatModel, error) {
	bound, err := m.factory()
	if err != nil {
		return nil, err
	}
	if err := bound.BindTools(tools); err != nil {
		return nil, err
	}
	return &toolCallingModel{base: bound, factory: m.factory}, nil
}
