package assistant

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/parleyhq/parley/internal/config"
	"github.com/parleyhq/parley/internal/services/threads"
	"github.com/parleyhq/parley/pkg/stream"
	"github.com/parleyhq/parley/pkg/wire"
	"github.com/rs/zerolog/log"
	"github.com/sashabaranov/go-openai"
)

// Completer abstracts the model backend behind one completion call.
type Completer interface {
	Complete(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionMessage, error)
}

// ToolOutput is one executed tool call's result, as reported by the client.
type ToolOutput struct {
	ToolCallID string `json:"toolCallId"`
	Output     string `json:"output"`
}

// Request is the decoded body of one assistant round trip. A user round
// carries Message; a tool round carries Content. Unknown extra fields are
// ignored.
type Request struct {
	ThreadID string          `json:"threadId"`
	Message  string          `json:"message,omitempty"`
	Content  []ToolOutput    `json:"content,omitempty"`
	Data     json.RawMessage `json:"data,omitempty"`
	Role     string          `json:"role" validate:"required,oneof=user tool"`
}

type Service struct {
	completer     Completer
	threadService *threads.Service
	model         string
	systemPrompt  string
	tools         []openai.Tool
}

func NewService(completer Completer, threadService *threads.Service) (*Service, error) {
	if completer == nil {
		return nil, fmt.Errorf("completer is required")
	}
	if threadService == nil {
		return nil, fmt.Errorf("thread service is required")
	}

	svc := &Service{
		completer:     completer,
		threadService: threadService,
		model:         config.GetOpenAIModel(),
		systemPrompt:  config.GetSystemPrompt(),
	}

	if path := config.GetToolsConfigPath(); path != "" {
		toolsConfig, err := config.LoadToolsConfig(path)
		if err != nil {
			return nil, err
		}
		for _, toolDef := range toolsConfig.Tools {
			svc.tools = append(svc.tools, openai.Tool{
				Type: openai.ToolTypeFunction,
				Function: &openai.FunctionDefinition{
					Name:        toolDef.Name,
					Description: toolDef.Description,
					Parameters:  toolDef.Parameters,
				},
			})
		}
		log.Info().Int("count", len(svc.tools)).Msg("Loaded assistant tools")
	}

	return svc, nil
}

// NewMessageID mints the message id carried by a round trip's control part.
func NewMessageID() string {
	return fmt.Sprintf("msg_%s", uuid.New().String()[:8])
}

// EnsureThread resolves the thread for a request, creating one when the
// client did not send an id.
func (s *Service) EnsureThread(ctx context.Context, threadID string) (string, error) {
	thread, err := s.threadService.EnsureThread(ctx, threadID)
	if err != nil {
		return "", err
	}
	return thread.ID, nil
}

// Respond runs one round trip against sess: it records the incoming user
// message or tool outputs on the thread, asks the model for its next step,
// and streams either the answer or a tool call request. Returned errors are
// delivered to the client in-band by the stream layer.
func (s *Service) Respond(ctx context.Context, req Request, threadID, messageID string, sess *stream.Session) error {
	switch req.Role {
	case threads.RoleUser:
		err := s.threadService.AppendMessage(ctx, threadID, threads.Message{
			ID:      messageID,
			Role:    threads.RoleUser,
			Content: req.Message,
			Data:    req.Data,
		})
		if err != nil {
			return err
		}
	case threads.RoleTool:
		if err := s.recordToolOutputs(ctx, threadID, req.Content); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unsupported role %q", req.Role)
	}

	return s.step(ctx, threadID, sess)
}

// recordToolOutputs checks the submitted outputs against the thread's open
// tool calls and appends one tool message per output.
func (s *Service) recordToolOutputs(ctx context.Context, threadID string, outputs []ToolOutput) error {
	pending, err := s.threadService.PendingToolCalls(ctx, threadID)
	if err != nil {
		return err
	}

	open := make(map[string]bool, len(pending))
	for _, call := range pending {
		open[call.ID] = true
	}

	for _, output := range outputs {
		if !open[output.ToolCallID] {
			return fmt.Errorf("no pending tool call with id %q", output.ToolCallID)
		}
		delete(open, output.ToolCallID)
	}
	if len(open) > 0 {
		missing := make([]string, 0, len(open))
		for id := range open {
			missing = append(missing, id)
		}
		return fmt.Errorf("missing outputs for tool calls: %s", strings.Join(missing, ", "))
	}

	for _, output := range outputs {
		err := s.threadService.AppendMessage(ctx, threadID, threads.Message{
			ID:         NewMessageID(),
			Role:       threads.RoleTool,
			Content:    output.Output,
			ToolCallID: output.ToolCallID,
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// step asks the model for the next turn. A content answer ends the exchange;
// a tool call request hands control to the client, which reports outputs in
// a follow-up round trip.
func (s *Service) step(ctx context.Context, threadID string, sess *stream.Session) error {
	history, err := s.threadService.History(ctx, threadID)
	if err != nil {
		return err
	}

	completion, err := s.completer.Complete(ctx, openai.ChatCompletionRequest{
		Model:    s.model,
		Messages: s.completionMessages(history),
		Tools:    s.tools,
	})
	if err != nil {
		return err
	}

	if len(completion.ToolCalls) > 0 {
		return s.requestToolCalls(ctx, threadID, completion, sess)
	}

	if completion.Content == "" {
		return fmt.Errorf("model returned neither content nor tool calls")
	}

	assistantID := NewMessageID()
	err = s.threadService.AppendMessage(ctx, threadID, threads.Message{
		ID:      assistantID,
		Role:    threads.RoleAssistant,
		Content: completion.Content,
	})
	if err != nil {
		return err
	}

	log.Debug().
		Str("thread_id", threadID).
		Str("message_id", assistantID).
		Msg("Streaming assistant answer")
	return sess.SendText(assistantID, completion.Content)
}

func (s *Service) requestToolCalls(ctx context.Context, threadID string, completion openai.ChatCompletionMessage, sess *stream.Session) error {
	calls := make([]wire.ToolCall, len(completion.ToolCalls))
	for i, call := range completion.ToolCalls {
		arguments := call.Function.Arguments
		if arguments == "" {
			arguments = "{}"
		}
		calls[i] = wire.ToolCall{
			ID: call.ID,
			Function: wire.ToolCallFunction{
				Name:      call.Function.Name,
				Arguments: json.RawMessage(arguments),
			},
		}
	}

	err := s.threadService.AppendMessage(ctx, threadID, threads.Message{
		ID:        NewMessageID(),
		Role:      threads.RoleAssistant,
		ToolCalls: calls,
	})
	if err != nil {
		return err
	}

	log.Debug().
		Str("thread_id", threadID).
		Int("tool_calls", len(calls)).
		Msg("Requesting tool calls from client")
	return sess.SendToolCalls(calls...)
}

// completionMessages rebuilds the model-facing transcript from the stored
// thread, system prompt first.
func (s *Service) completionMessages(history []threads.Message) []openai.ChatCompletionMessage {
	messages := make([]openai.ChatCompletionMessage, 0, len(history)+1)
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleSystem,
		Content: s.systemPrompt,
	})

	for _, msg := range history {
		switch {
		case msg.Role == threads.RoleTool:
			messages = append(messages, openai.ChatCompletionMessage{
				Role:       openai.ChatMessageRoleTool,
				Content:    msg.Content,
				ToolCallID: msg.ToolCallID,
			})
		case len(msg.ToolCalls) > 0:
			messages = append(messages, openai.ChatCompletionMessage{
				Role:      openai.ChatMessageRoleAssistant,
				ToolCalls: toOpenAIToolCalls(msg.ToolCalls),
			})
		default:
			messages = append(messages, openai.ChatCompletionMessage{
				Role:    msg.Role,
				Content: msg.Content,
			})
		}
	}
	return messages
}

func toOpenAIToolCalls(calls []wire.ToolCall) []openai.ToolCall {
	out := make([]openai.ToolCall, len(calls))
	for i, call := range calls {
		out[i] = openai.ToolCall{
			ID:   call.ID,
			Type: openai.ToolTypeFunction,
			Function: openai.FunctionCall{
				Name:      call.Function.Name,
				Arguments: string(call.Function.Arguments),
			},
		}
	}
	return out
}
