// Package conversation is the consumer side of the assistant response
// protocol. A Conversation submits user messages and tool outputs to an
// assistant endpoint, consumes the streamed reply, and maintains the message
// history, thread binding, status and last error for the application to
// render.
package conversation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/parleyhq/parley/pkg/wire"
)

// Role classifies the author of a history entry.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleData      Role = "data"
	RoleTool      Role = "tool"
)

// Status reports whether a round trip is in flight. It is advisory; nothing
// stops a caller from submitting while a round trip is running.
type Status string

const (
	StatusAwaitingMessage Status = "awaiting_message"
	StatusInProgress      Status = "in_progress"
)

// Message is one history entry. History is append-only; the single in-place
// update is the id back-fill applied to the latest entry when control data
// arrives.
type Message struct {
	ID        string          `json:"id"`
	Role      Role            `json:"role"`
	Content   string          `json:"content"`
	Data      json.RawMessage `json:"data,omitempty"`
	ToolCalls []wire.ToolCall `json:"toolCalls,omitempty"`
}

// ToolCallOutput pairs a requested tool call with its handler's output.
type ToolCallOutput struct {
	ToolCallID string `json:"toolCallId"`
	Output     string `json:"output"`
}

// ToolHandler executes one tool call. The handlers for the calls of a single
// request run concurrently; their outputs are submitted together, and only
// when every one of them succeeded.
type ToolHandler func(ctx context.Context, name string, arguments json.RawMessage) (string, error)

// Snapshot is a point-in-time copy of the observable conversation state.
type Snapshot struct {
	Messages []Message
	ThreadID string
	Status   Status
	Err      error
	Input    string
}

// Config configures a Conversation. Endpoint is the only required field.
type Config struct {
	// Endpoint receives one POST request per round trip.
	Endpoint string

	// ThreadID pins every request to an existing thread. When empty, the
	// server assigns a thread on the first round trip and the conversation
	// binds to it.
	ThreadID string

	// Body holds static extra fields merged into every request body.
	Body map[string]any

	// Header is added to every request.
	Header http.Header

	// HTTPClient defaults to http.DefaultClient.
	HTTPClient *http.Client

	// OnToolCall runs the tool calls requested by the assistant. When unset,
	// a tool call request is recorded as an error instead.
	OnToolCall ToolHandler

	// OnChange, when set, receives a snapshot after every state change. It
	// is called outside the conversation's lock and may read back into it.
	OnChange func(Snapshot)
}

// Conversation is a thread-scoped assistant conversation. The accessors are
// safe for concurrent use; the submit methods are meant to be called one at
// a time.
type Conversation struct {
	cfg Config

	mu       sync.Mutex
	messages []Message
	threadID string
	status   Status
	err      error
	input    string
}

// New returns an idle conversation.
func New(cfg Config) *Conversation {
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = http.DefaultClient
	}
	return &Conversation{
		cfg:    cfg,
		status: StatusAwaitingMessage,
	}
}

// Messages returns a copy of the history.
func (c *Conversation) Messages() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Message, len(c.messages))
	copy(out, c.messages)
	return out
}

// ThreadID returns the bound thread id, or "" before the first response.
func (c *Conversation) ThreadID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.threadID
}

// Status returns the current status.
func (c *Conversation) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// Err returns the error recorded by the latest round trip, if any.
func (c *Conversation) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Input returns the pending input buffer.
func (c *Conversation) Input() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.input
}

// SetInput replaces the pending input buffer.
func (c *Conversation) SetInput(text string) {
	c.mutate(func() { c.input = text })
}

// Snapshot returns a copy of the full observable state.
func (c *Conversation) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// SubmitMessage appends text as a user message and runs one round trip.
// Empty text is a no-op. Apart from ErrEmptyResponseBody, failures are
// recorded on the conversation instead of being returned, and the status
// returns to awaiting_message either way.
func (c *Conversation) SubmitMessage(ctx context.Context, text string, data json.RawMessage) error {
	if text == "" {
		return nil
	}

	c.mutate(func() {
		c.status = StatusInProgress
		c.err = nil
		c.messages = append(c.messages, Message{Role: RoleUser, Content: text, Data: data})
		c.input = ""
	})
	defer c.mutate(func() { c.status = StatusAwaitingMessage })

	fields := map[string]any{"message": text}
	if data != nil {
		fields["data"] = data
	}
	return c.roundTrip(ctx, RoleUser, fields)
}

// SubmitToolOutput reports tool outputs back to the assistant and runs the
// follow-up round trip on the same thread. The outputs are kept in history
// as a tool-role message carrying their JSON form. Error semantics match
// SubmitMessage; the input buffer is left alone.
func (c *Conversation) SubmitToolOutput(ctx context.Context, outputs []ToolCallOutput, data json.RawMessage) error {
	content, err := json.Marshal(outputs)
	if err != nil {
		c.recordError(fmt.Errorf("conversation: encode tool outputs: %w", err))
		return nil
	}

	c.mutate(func() {
		c.status = StatusInProgress
		c.err = nil
		c.messages = append(c.messages, Message{Role: RoleTool, Content: string(content), Data: data})
	})
	defer c.mutate(func() { c.status = StatusAwaitingMessage })

	fields := map[string]any{"content": outputs}
	if data != nil {
		fields["data"] = data
	}
	return c.roundTrip(ctx, RoleTool, fields)
}

func (c *Conversation) roundTrip(ctx context.Context, role Role, fields map[string]any) error {
	payload, err := json.Marshal(c.requestBody(role, fields))
	if err != nil {
		c.recordError(fmt.Errorf("conversation: encode request body: %w", err))
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint, bytes.NewReader(payload))
	if err != nil {
		c.recordError(fmt.Errorf("conversation: build request: %w", err))
		return nil
	}
	req.Header.Set("Content-Type", "application/json")
	for key, values := range c.cfg.Header {
		for _, value := range values {
			req.Header.Add(key, value)
		}
	}

	resp, err := c.cfg.HTTPClient.Do(req)
	if err != nil {
		c.recordError(fmt.Errorf("conversation: request failed: %w", err))
		return nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.recordError(fmt.Errorf("conversation: endpoint returned status %d", resp.StatusCode))
		return nil
	}

	return c.consume(ctx, resp.Body)
}

// requestBody merges the static body with this round trip's fields. A
// configured thread id always wins over the bound one.
func (c *Conversation) requestBody(role Role, fields map[string]any) map[string]any {
	body := make(map[string]any, len(c.cfg.Body)+len(fields)+2)
	for key, value := range c.cfg.Body {
		body[key] = value
	}

	var threadID any
	switch {
	case c.cfg.ThreadID != "":
		threadID = c.cfg.ThreadID
	case c.ThreadID() != "":
		threadID = c.ThreadID()
	}
	body["threadId"] = threadID

	for key, value := range fields {
		body[key] = value
	}
	body["role"] = role
	return body
}

// consume folds each decoded part into the state, in arrival order. A
// structural failure of the stream itself is recorded and ends the round
// trip; it does not reach the submit caller.
func (c *Conversation) consume(ctx context.Context, body io.Reader) error {
	dec := wire.NewDecoder(body)
	sawPart := false
	for {
		part, err := dec.Next()
		if errors.Is(err, io.EOF) {
			if !sawPart && dec.BytesRead() == 0 {
				return ErrEmptyResponseBody
			}
			return nil
		}
		if err != nil {
			c.recordError(fmt.Errorf("conversation: read response stream: %w", err))
			return nil
		}

		sawPart = true
		if stop := c.apply(ctx, part); stop {
			return nil
		}
	}
}

func (c *Conversation) apply(ctx context.Context, part wire.Part) (stop bool) {
	switch p := part.(type) {
	case wire.AssistantMessage:
		// Only the first content block is surfaced.
		c.appendMessage(Message{ID: p.ID, Role: Role(p.Role), Content: p.Text()})

	case wire.DataMessage:
		c.appendMessage(Message{ID: p.ID, Role: RoleData, Data: p.Data})

	case wire.ToolCallsMessage:
		c.appendMessage(Message{Role: RoleTool, ToolCalls: p.ToolCalls})
		return c.orchestrate(ctx, p.ToolCalls)

	case wire.ControlData:
		c.mutate(func() {
			// The thread binding is write-once; the message id lands on the
			// latest history entry.
			if c.threadID == "" {
				c.threadID = p.ThreadID
			}
			if n := len(c.messages); n > 0 {
				c.messages[n-1].ID = p.MessageID
			}
		})

	case wire.ErrorPart:
		// An upstream error does not end the stream; later parts still count.
		c.recordError(fmt.Errorf("%w: %s", ErrUpstream, string(p)))
	}
	return false
}

// orchestrate runs the requested tool calls through the configured handler.
// Outputs are submitted only if every handler succeeded; any failure is
// recorded and stops the current round trip.
func (c *Conversation) orchestrate(ctx context.Context, calls []wire.ToolCall) (stop bool) {
	if len(calls) == 0 {
		return false
	}

	if c.cfg.OnToolCall == nil {
		names := make([]string, len(calls))
		for i, call := range calls {
			names[i] = call.Function.Name
		}
		c.recordError(fmt.Errorf("%w: %s", ErrNoToolHandler, strings.Join(names, ", ")))
		return true
	}

	outputs := make([]ToolCallOutput, len(calls))
	errs := make([]error, len(calls))

	var wg sync.WaitGroup
	for i, call := range calls {
		wg.Add(1)
		go func() {
			defer wg.Done()
			output, err := c.cfg.OnToolCall(ctx, call.Function.Name, call.Function.Arguments)
			if err != nil {
				errs[i] = fmt.Errorf("%w: %s: %v", ErrToolCallFailed, call.Function.Name, err)
				return
			}
			outputs[i] = ToolCallOutput{ToolCallID: call.ID, Output: output}
		}()
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			c.recordError(err)
			return true
		}
	}

	if err := c.SubmitToolOutput(ctx, outputs, nil); err != nil {
		// The nested round trip's only returnable failure is an empty body;
		// from here it is one more recorded error.
		c.recordError(err)
	}
	return false
}

func (c *Conversation) appendMessage(m Message) {
	c.mutate(func() { c.messages = append(c.messages, m) })
}

func (c *Conversation) recordError(err error) {
	c.mutate(func() { c.err = err })
}

// mutate applies fn under the lock and then notifies OnChange outside it.
func (c *Conversation) mutate(fn func()) {
	c.mu.Lock()
	fn()
	snap := c.snapshotLocked()
	c.mu.Unlock()

	if c.cfg.OnChange != nil {
		c.cfg.OnChange(snap)
	}
}

func (c *Conversation) snapshotLocked() Snapshot {
	msgs := make([]Message, len(c.messages))
	copy(msgs, c.messages)
	return Snapshot{
		Messages: msgs,
		ThreadID: c.threadID,
		Status:   c.status,
		Err:      c.err,
		Input:    c.input,
	}
}
