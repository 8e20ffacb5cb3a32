package rag

import "errors"

// Failure taxonomy for a turn. Callers distinguish these with errors.Is; a
// failed turn never returns an empty answer masquerading as success.
var (
	// ErrCompletionFailure covers model-call failures (timeout, quota,
	// malformed response). The turn is aborted and no partial assistant
	// message is kept.
	ErrCompletionFailure = errors.New("completion failed")

	// ErrToolFailure covers tool execution failures. The failure is recorded
	// in history as an explicit failure-marker tool message so every
	// tool_call_id stays resolved.
	ErrToolFailure = errors.New("tool invocation failed")

	// ErrInvalidToolArguments is a contract violation in model-supplied tool
	// arguments, e.g. an empty retrieval query.
	ErrInvalidToolArguments = errors.New("invalid tool arguments")
)
