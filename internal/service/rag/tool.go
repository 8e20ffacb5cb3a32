package rag

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/retriever"
	"github.com/cloudwego/eino/schema"
)

// Tool is an executable capability the model may request mid-turn. The model
// only ever sees the ToolInfo descriptor; the executable side stays on this
// side of the boundary.
type Tool interface {
	Info() *schema.ToolInfo
	Invoke(ctx context.Context, arguments string) (*ToolResult, error)
}

// ToolResult carries the serialized text fed back to the model plus the raw
// retrieved documents kept for citation and debugging.
type ToolResult struct {
	Content   string
	Artifacts []*schema.Document
}

// RetrieveToolName is the single tool registered with the completion model.
const RetrieveToolName = "retrieve"

type retrieveArgs struct {
	Query string `json:"query"`
}

// RetrieveTool performs a read-only similarity search against the document
// index. The result count is fixed per deployment, not model-controlled.
type RetrieveTool struct {
	retriever retriever.Retriever
	topK      int
}

// NewRetrieveTool wraps a retriever as an invocable tool. topK values below 1
// fall back to 2, matching the deployment default.
func NewRetrieveTool(r retriever.Retriever, topK int) *RetrieveTool {
	if topK < 1 {
		topK = 2
	}
	return &RetrieveTool{retriever: r, topK: topK}
}

// Info describes the tool to the completion model.
func (t *RetrieveTool) Info() *schema.ToolInfo {
	return &schema.ToolInfo{
		Name: RetrieveToolName,
		Desc: "Retrieve relevant documents from the knowledge base using similarity search.",
		ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
			"query": {
				Type:     schema.String,
				Desc:     "The search query.",
				Required: true,
			},
		}),
	}
}

// Invoke runs the similarity search. The call is read-only and safe to repeat
// with the same arguments.
func (t *RetrieveTool) Invoke(ctx context.Context, arguments string) (*ToolResult, error) {
	var args retrieveArgs
	if err := json.Unmarshal([]byte(arguments), &args); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToolArguments, err)
	}
	if strings.TrimSpace(args.Query) == "" {
		return nil, fmt.Errorf("%w: empty query", ErrInvalidToolArguments)
	}

	docs, err := t.retriever.Retrieve(ctx, args.Query, retriever.WithTopK(t.topK))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrToolFailure, err)
	}

	return &ToolResult{
		Content:   serializeDocs(docs),
		Artifacts: docs,
	}, nil
}

func serializeDocs(docs []*schema.Document) string {
	parts := make([]string, 0, len(docs))
	for _, doc := range docs {
		parts = append(parts, fmt.Sprintf("Source: %v\nContent: %s", doc.MetaData, doc.Content))
	}
	return strings.Join(parts, "\n\n")
}
