package assistant

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/parleyhq/parley/internal/services/threads"
	"github.com/parleyhq/parley/pkg/stream"
	"github.com/parleyhq/parley/pkg/wire"
	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type completerFunc func(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionMessage, error)

func (f completerFunc) Complete(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionMessage, error) {
	return f(ctx, req)
}

// runRespond drives one round trip the way the HTTP handler does and returns
// the streamed parts plus the service's own verdict.
func runRespond(t *testing.T, svc *Service, req Request, threadID, messageID string) ([]wire.Part, error) {
	t.Helper()

	var buf bytes.Buffer
	var respondErr error
	err := stream.Respond(context.Background(), &buf, threadID, messageID, func(ctx context.Context, sess *stream.Session) error {
		respondErr = svc.Respond(ctx, req, threadID, messageID, sess)
		return respondErr
	})
	require.NoError(t, err)

	dec := wire.NewDecoder(&buf)
	var parts []wire.Part
	for {
		part, err := dec.Next()
		if errors.Is(err, io.EOF) {
			return parts, respondErr
		}
		require.NoError(t, err)
		parts = append(parts, part)
	}
}

func TestRespondStreamsAnswer(t *testing.T) {
	var seen []openai.ChatCompletionRequest
	stub := completerFunc(func(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionMessage, error) {
		seen = append(seen, req)
		return openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: "Hi there"}, nil
	})

	threadService := threads.NewService(nil)
	svc, err := NewService(stub, threadService)
	require.NoError(t, err)

	threadID, err := svc.EnsureThread(context.Background(), "")
	require.NoError(t, err)

	parts, respondErr := runRespond(t, svc, Request{Role: "user", Message: "Hello"}, threadID, "msg_1")
	require.NoError(t, respondErr)

	require.Len(t, parts, 2)
	assert.Equal(t, wire.ControlData{ThreadID: threadID, MessageID: "msg_1"}, parts[0])
	assert.Equal(t, "Hi there", parts[1].(wire.AssistantMessage).Text())

	history, err := threadService.History(context.Background(), threadID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, threads.Message{ID: "msg_1", Role: threads.RoleUser, Content: "Hello", CreatedAt: history[0].CreatedAt}, history[0])
	assert.Equal(t, threads.RoleAssistant, history[1].Role)
	assert.Equal(t, "Hi there", history[1].Content)

	require.Len(t, seen, 1)
	require.Len(t, seen[0].Messages, 2)
	assert.Equal(t, openai.ChatMessageRoleSystem, seen[0].Messages[0].Role)
	assert.Equal(t, "Hello", seen[0].Messages[1].Content)
	assert.NotEmpty(t, seen[0].Model)
}

func TestRespondRequestsToolCalls(t *testing.T) {
	stub := completerFunc(func(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionMessage, error) {
		return openai.ChatCompletionMessage{
			Role: openai.ChatMessageRoleAssistant,
			ToolCalls: []openai.ToolCall{
				{ID: "call_1", Type: openai.ToolTypeFunction, Function: openai.FunctionCall{Name: "get_weather", Arguments: `{"city":"Oslo"}`}},
			},
		}, nil
	})

	threadService := threads.NewService(nil)
	svc, err := NewService(stub, threadService)
	require.NoError(t, err)

	threadID, err := svc.EnsureThread(context.Background(), "")
	require.NoError(t, err)

	parts, respondErr := runRespond(t, svc, Request{Role: "user", Message: "Weather?"}, threadID, "msg_1")
	require.NoError(t, respondErr)

	require.Len(t, parts, 2)
	calls := parts[1].(wire.ToolCallsMessage).ToolCalls
	require.Len(t, calls, 1)
	assert.Equal(t, "call_1", calls[0].ID)
	assert.Equal(t, "get_weather", calls[0].Function.Name)
	assert.JSONEq(t, `{"city":"Oslo"}`, string(calls[0].Function.Arguments))

	pending, err := threadService.PendingToolCalls(context.Background(), threadID)
	require.NoError(t, err)
	assert.Len(t, pending, 1)
}

func TestToolOutputRoundTrip(t *testing.T) {
	stub := completerFunc(func(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionMessage, error) {
		last := req.Messages[len(req.Messages)-1]
		if last.Role == openai.ChatMessageRoleTool {
			return openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: "It is sunny."}, nil
		}
		return openai.ChatCompletionMessage{
			Role: openai.ChatMessageRoleAssistant,
			ToolCalls: []openai.ToolCall{
				{ID: "call_1", Type: openai.ToolTypeFunction, Function: openai.FunctionCall{Name: "get_weather", Arguments: `{}`}},
			},
		}, nil
	})

	threadService := threads.NewService(nil)
	svc, err := NewService(stub, threadService)
	require.NoError(t, err)

	threadID, err := svc.EnsureThread(context.Background(), "")
	require.NoError(t, err)

	_, respondErr := runRespond(t, svc, Request{Role: "user", Message: "Weather?"}, threadID, "msg_1")
	require.NoError(t, respondErr)

	outputs := []ToolOutput{{ToolCallID: "call_1", Output: "sunny"}}
	parts, respondErr := runRespond(t, svc, Request{Role: "tool", Content: outputs}, threadID, "msg_2")
	require.NoError(t, respondErr)

	require.Len(t, parts, 2)
	assert.Equal(t, "It is sunny.", parts[1].(wire.AssistantMessage).Text())

	history, err := threadService.History(context.Background(), threadID)
	require.NoError(t, err)
	require.Len(t, history, 4)
	assert.Equal(t, threads.RoleUser, history[0].Role)
	assert.NotEmpty(t, history[1].ToolCalls)
	assert.Equal(t, "call_1", history[2].ToolCallID)
	assert.Equal(t, "sunny", history[2].Content)
	assert.Equal(t, "It is sunny.", history[3].Content)

	pending, err := threadService.PendingToolCalls(context.Background(), threadID)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestToolOutputValidation(t *testing.T) {
	tests := []struct {
		name    string
		outputs []ToolOutput
		wantErr string
	}{
		{
			name:    "Unknown call id",
			outputs: []ToolOutput{{ToolCallID: "call_9", Output: "x"}},
			wantErr: "no pending tool call",
		},
		{
			name:    "Missing one output",
			outputs: []ToolOutput{{ToolCallID: "call_1", Output: "x"}},
			wantErr: "missing outputs",
		},
		{
			name:    "Duplicate output",
			outputs: []ToolOutput{{ToolCallID: "call_1", Output: "x"}, {ToolCallID: "call_1", Output: "y"}},
			wantErr: "no pending tool call",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stub := completerFunc(func(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionMessage, error) {
				return openai.ChatCompletionMessage{
					Role: openai.ChatMessageRoleAssistant,
					ToolCalls: []openai.ToolCall{
						{ID: "call_1", Type: openai.ToolTypeFunction, Function: openai.FunctionCall{Name: "a", Arguments: `{}`}},
						{ID: "call_2", Type: openai.ToolTypeFunction, Function: openai.FunctionCall{Name: "b", Arguments: `{}`}},
					},
				}, nil
			})

			threadService := threads.NewService(nil)
			svc, err := NewService(stub, threadService)
			require.NoError(t, err)

			threadID, err := svc.EnsureThread(context.Background(), "")
			require.NoError(t, err)
			_, respondErr := runRespond(t, svc, Request{Role: "user", Message: "go"}, threadID, "msg_1")
			require.NoError(t, respondErr)

			before, err := threadService.History(context.Background(), threadID)
			require.NoError(t, err)

			parts, respondErr := runRespond(t, svc, Request{Role: "tool", Content: tt.outputs}, threadID, "msg_2")
			require.Error(t, respondErr)
			assert.Contains(t, respondErr.Error(), tt.wantErr)

			// The failure travels in-band as an error part.
			require.Len(t, parts, 2)
			assert.Equal(t, wire.KindError, parts[1].Kind())

			after, err := threadService.History(context.Background(), threadID)
			require.NoError(t, err)
			assert.Equal(t, len(before), len(after), "rejected outputs must not be recorded")
		})
	}
}

func TestRespondUnsupportedRole(t *testing.T) {
	stub := completerFunc(func(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionMessage, error) {
		return openai.ChatCompletionMessage{}, nil
	})

	threadService := threads.NewService(nil)
	svc, err := NewService(stub, threadService)
	require.NoError(t, err)

	threadID, err := svc.EnsureThread(context.Background(), "")
	require.NoError(t, err)

	_, respondErr := runRespond(t, svc, Request{Role: "system", Message: "x"}, threadID, "msg_1")
	require.Error(t, respondErr)
	assert.Contains(t, respondErr.Error(), "unsupported role")
}

func TestRespondCompleterFailure(t *testing.T) {
	stub := completerFunc(func(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionMessage, error) {
		return openai.ChatCompletionMessage{}, fmt.Errorf("model overloaded")
	})

	threadService := threads.NewService(nil)
	svc, err := NewService(stub, threadService)
	require.NoError(t, err)

	threadID, err := svc.EnsureThread(context.Background(), "")
	require.NoError(t, err)

	parts, respondErr := runRespond(t, svc, Request{Role: "user", Message: "hi"}, threadID, "msg_1")
	require.Error(t, respondErr)

	require.Len(t, parts, 2)
	assert.Equal(t, wire.ErrorPart("model overloaded"), parts[1])
}

func TestRespondEmptyCompletion(t *testing.T) {
	stub := completerFunc(func(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionMessage, error) {
		return openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant}, nil
	})

	threadService := threads.NewService(nil)
	svc, err := NewService(stub, threadService)
	require.NoError(t, err)

	threadID, err := svc.EnsureThread(context.Background(), "")
	require.NoError(t, err)

	_, respondErr := runRespond(t, svc, Request{Role: "user", Message: "hi"}, threadID, "msg_1")
	require.Error(t, respondErr)
	assert.Contains(t, respondErr.Error(), "neither content nor tool calls")
}

func TestNewServiceValidation(t *testing.T) {
	stub := completerFunc(func(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionMessage, error) {
		return openai.ChatCompletionMessage{}, nil
	})

	_, err := NewService(nil, threads.NewService(nil))
	assert.Error(t, err)

	_, err = NewService(stub, nil)
	assert.Error(t, err)
}

func TestNewServiceLoadsToolManifest(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tools.json")
	manifest := `{"tools":[{"name":"local_time","description":"Current time","parameters":{"type":"object"}}]}`
	require.NoError(t, os.WriteFile(path, []byte(manifest), 0o600))
	t.Setenv("TOOLS_CONFIG_PATH", path)

	var seen []openai.ChatCompletionRequest
	stub := completerFunc(func(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionMessage, error) {
		seen = append(seen, req)
		return openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: "ok"}, nil
	})

	threadService := threads.NewService(nil)
	svc, err := NewService(stub, threadService)
	require.NoError(t, err)

	threadID, err := svc.EnsureThread(context.Background(), "")
	require.NoError(t, err)
	_, respondErr := runRespond(t, svc, Request{Role: "user", Message: "hi"}, threadID, "msg_1")
	require.NoError(t, respondErr)

	require.Len(t, seen, 1)
	require.Len(t, seen[0].Tools, 1)
	assert.Equal(t, "local_time", seen[0].Tools[0].Function.Name)
}
