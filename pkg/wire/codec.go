package wire

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrMalformedPart reports a line that does not parse as a stream part.
var ErrMalformedPart = errors.New("wire: malformed stream part")

const separator = ':'

var payloadDecoders = map[Kind]func(payload []byte) (Part, error){
	KindAssistantMessage: func(payload []byte) (Part, error) {
		var m AssistantMessage
		err := json.Unmarshal(payload, &m)
		return m, err
	},
	KindDataMessage: func(payload []byte) (Part, error) {
		var m DataMessage
		err := json.Unmarshal(payload, &m)
		return m, err
	},
	KindToolCalls: func(payload []byte) (Part, error) {
		var m ToolCallsMessage
		err := json.Unmarshal(payload, &m)
		return m, err
	},
	KindControlData: func(payload []byte) (Part, error) {
		var m ControlData
		err := json.Unmarshal(payload, &m)
		return m, err
	},
	KindError: func(payload []byte) (Part, error) {
		var msg string
		err := json.Unmarshal(payload, &msg)
		return ErrorPart(msg), err
	},
}

// Encode renders a part as one newline-terminated stream line.
func Encode(p Part) ([]byte, error) {
	payload, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("wire: encode %s: %w", p.Kind(), err)
	}

	kind := string(p.Kind())
	line := make([]byte, 0, len(kind)+len(payload)+2)
	line = append(line, kind...)
	line = append(line, separator)
	line = append(line, payload...)
	line = append(line, '\n')
	return line, nil
}

// Decode parses one stream line, without its trailing newline, into a part.
func Decode(line []byte) (Part, error) {
	code, payload, found := bytes.Cut(line, []byte{separator})
	if !found {
		return nil, fmt.Errorf("%w: no %q separator in %q", ErrMalformedPart, string(separator), truncate(line))
	}

	decode, ok := payloadDecoders[Kind(code)]
	if !ok {
		return nil, fmt.Errorf("%w: unknown type code %q", ErrMalformedPart, string(code))
	}

	part, err := decode(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid %s payload: %v", ErrMalformedPart, string(code), err)
	}
	return part, nil
}

func truncate(line []byte) string {
	const max = 40
	if len(line) <= max {
		return string(line)
	}
	return string(line[:max]) + "..."
}
