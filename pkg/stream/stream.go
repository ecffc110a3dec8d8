// Package stream is the producer side of the assistant response protocol.
// A handler hands Respond an io.Writer and a callback; the callback sends
// typed parts through a Session and the wire framing, control handshake and
// teardown are taken care of here.
package stream

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"

	"github.com/parleyhq/parley/pkg/wire"
)

// HandlerFunc produces the parts of one response. Returning an error does
// not abort the stream; the error is forwarded to the consumer as an error
// part on the same stream.
type HandlerFunc func(ctx context.Context, s *Session) error

// Session writes stream parts for a single response. It is safe for use
// from multiple goroutines.
type Session struct {
	mu      sync.Mutex
	w       io.Writer
	flusher http.Flusher

	closeOnce sync.Once
	closeErr  error
}

// Respond runs one producer session against w. It always writes the control
// part binding the response to threadID and messageID before the callback
// sees the session, and it closes the session exactly once no matter how the
// callback exits.
func Respond(ctx context.Context, w io.Writer, threadID, messageID string, fn HandlerFunc) error {
	s := newSession(w)
	defer s.close()

	if err := s.send(wire.ControlData{ThreadID: threadID, MessageID: messageID}); err != nil {
		return fmt.Errorf("stream: write control data: %w", err)
	}

	if fn == nil {
		return nil
	}

	if err := fn(ctx, s); err != nil {
		if werr := s.send(wire.ErrorPart(err.Error())); werr != nil {
			return fmt.Errorf("stream: report handler error: %w", werr)
		}
	}
	return nil
}

func newSession(w io.Writer) *Session {
	s := &Session{w: w}
	if f, ok := w.(http.Flusher); ok {
		s.flusher = f
	}
	return s
}

// SendMessage streams a complete assistant message.
func (s *Session) SendMessage(m wire.AssistantMessage) error {
	return s.send(m)
}

// SendText streams a single-block assistant message with a fresh content
// wrapper around text.
func (s *Session) SendText(id, text string) error {
	return s.send(wire.NewAssistantText(id, text))
}

// SendData streams an out-of-band data payload.
func (s *Session) SendData(d wire.DataMessage) error {
	return s.send(d)
}

// SendToolCalls asks the consumer to execute calls and submit the outputs.
func (s *Session) SendToolCalls(calls ...wire.ToolCall) error {
	return s.send(wire.ToolCallsMessage{ToolCalls: calls})
}

func (s *Session) send(p wire.Part) error {
	line, err := wire.Encode(p)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.w.Write(line); err != nil {
		return fmt.Errorf("stream: write %s part: %w", p.Kind(), err)
	}
	// Push each part to the client as soon as it is complete.
	if s.flusher != nil {
		s.flusher.Flush()
	}
	return nil
}

// close tears the session down. Teardown is idempotent; only the first call
// flushes and closes the writer.
func (s *Session) close() error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		defer s.mu.Unlock()

		if s.flusher != nil {
			s.flusher.Flush()
		}
		if c, ok := s.w.(io.Closer); ok {
			s.closeErr = c.Close()
		}
	})
	return s.closeErr
}
