package conversation

import "errors"

var (
	// ErrEmptyResponseBody reports a response that carried no body at all.
	// It is the only failure returned from the submit methods; everything
	// else lands in the conversation's error slot.
	ErrEmptyResponseBody = errors.New("conversation: response body is empty")

	// ErrNoToolHandler is recorded when the assistant requests tool calls
	// but no handler is configured.
	ErrNoToolHandler = errors.New("conversation: no tool handler configured")

	// ErrToolCallFailed is recorded when a tool handler returns an error.
	ErrToolCallFailed = errors.New("conversation: tool call failed")

	// ErrUpstream is recorded when the producer reports a failure in-band.
	ErrUpstream = errors.New("conversation: assistant reported an error")
)
