package wire

import "encoding/json"

// Kind identifies the payload type of a stream part.
type Kind string

const (
	KindAssistantMessage Kind = "assistant_message"
	KindDataMessage      Kind = "data_message"
	KindToolCalls        Kind = "tool_calls"
	KindControlData      Kind = "assistant_control_data"
	KindError            Kind = "error"
)

// Part is one typed unit of an assistant response stream.
type Part interface {
	Kind() Kind
}

// TextContent holds the text of one assistant content block.
type TextContent struct {
	Value string `json:"value"`
}

// ContentBlock is a single entry in an assistant message's content list.
type ContentBlock struct {
	Text TextContent `json:"text"`
}

// AssistantMessage is a complete message authored by the assistant.
type AssistantMessage struct {
	ID      string         `json:"id"`
	Role    string         `json:"role"`
	Content []ContentBlock `json:"content"`
}

func (AssistantMessage) Kind() Kind { return KindAssistantMessage }

// Text returns the value of the first content block, or "" if there is none.
func (m AssistantMessage) Text() string {
	if len(m.Content) == 0 {
		return ""
	}
	return m.Content[0].Text.Value
}

// NewAssistantText builds a single-block assistant message.
func NewAssistantText(id, text string) AssistantMessage {
	return AssistantMessage{
		ID:      id,
		Role:    "assistant",
		Content: []ContentBlock{{Text: TextContent{Value: text}}},
	}
}

// DataMessage carries an arbitrary JSON payload alongside the conversation.
type DataMessage struct {
	ID   string          `json:"id,omitempty"`
	Data json.RawMessage `json:"data"`
}

func (DataMessage) Kind() Kind { return KindDataMessage }

// ToolCallFunction names the function the assistant wants invoked and its
// arguments as raw JSON.
type ToolCallFunction struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// ToolCall is one function invocation requested by the assistant.
type ToolCall struct {
	ID       string           `json:"id"`
	Function ToolCallFunction `json:"function"`
}

// ToolCallsMessage asks the consumer to execute one or more tool calls and
// report their outputs back.
type ToolCallsMessage struct {
	ToolCalls []ToolCall `json:"tool_calls"`
}

func (ToolCallsMessage) Kind() Kind { return KindToolCalls }

// ControlData binds the response to a server-side thread and assigns the id
// of the message that started the round trip.
type ControlData struct {
	ThreadID  string `json:"threadId"`
	MessageID string `json:"messageId"`
}

func (ControlData) Kind() Kind { return KindControlData }

// ErrorPart is a producer-reported failure, delivered in-band.
type ErrorPart string

func (ErrorPart) Kind() Kind { return KindError }
