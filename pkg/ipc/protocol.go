// Package ipc defines the two-message wire contract exchanged with a worker
// process over its dedicated structured channel: one event message out, one
// result message back. Anything else on the channel is a protocol violation
// and is never coerced into a usable value.
package ipc

import (
	"encoding/json"
	"fmt"

	"funcgate/pkg/event"
)

const (
	TypeEvent  = "event"
	TypeResult = "result"
)

// EventMessage is the single outbound message sent to a worker.
type EventMessage struct {
	Type        string       `json:"type"`
	ID          string       `json:"id"`
	EventObject *event.Event `json:"eventObject"`
}

// ResultMessage is the single inbound message expected from a worker.
type ResultMessage struct {
	Type            string  `json:"type"`
	ID              string  `json:"id"`
	Result          *Result `json:"result"`
	MemoryUsedBytes uint64  `json:"memoryUsedBytes"`
}

// Result is the function's response payload. It must pass Validate before
// it is trusted by the gateway.
type Result struct {
	StatusCode        int                 `json:"statusCode"`
	Headers           map[string]string   `json:"headers,omitempty"`
	MultiValueHeaders map[string][]string `json:"multiValueHeaders,omitempty"`
	Body              string              `json:"body"`
	IsBase64Encoded   bool                `json:"isBase64Encoded"`
}

// NewEventMessage wraps an event object for the wire.
func NewEventMessage(id string, evt *event.Event) *EventMessage {
	return &EventMessage{Type: TypeEvent, ID: id, EventObject: evt}
}

// ProtocolViolationError reports a malformed or unexpected IPC message.
// It is fatal for the invocation that received it.
type ProtocolViolationError struct {
	Reason  string
	Payload []byte
}

func (e *ProtocolViolationError) Error() string {
	return fmt.Sprintf("ipc protocol violation: %s", e.Reason)
}

func violation(reason string, payload []byte) error {
	return &ProtocolViolationError{Reason: reason, Payload: payload}
}

// ParseResultMessage decodes and shape-checks one raw IPC message. Every
// failure mode is a ProtocolViolationError: a non-object payload, a missing
// or unknown type, a missing id, or a malformed result.
func ParseResultMessage(raw []byte) (*ResultMessage, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, violation("message is not a JSON object", raw)
	}

	var typ string
	if t, ok := fields["type"]; !ok || json.Unmarshal(t, &typ) != nil {
		return nil, violation("missing or non-string type field", raw)
	}
	if typ != TypeResult {
		return nil, violation(fmt.Sprintf("unexpected message type %q", typ), raw)
	}

	var id string
	if v, ok := fields["id"]; !ok || json.Unmarshal(v, &id) != nil || id == "" {
		return nil, violation("missing or non-string id field", raw)
	}

	var mem uint64
	if v, ok := fields["memoryUsedBytes"]; ok {
		if json.Unmarshal(v, &mem) != nil {
			return nil, violation("memoryUsedBytes is not a number", raw)
		}
	}

	resRaw, ok := fields["result"]
	if !ok {
		return nil, violation("missing result field", raw)
	}
	res, err := parseResult(resRaw)
	if err != nil {
		return nil, err
	}
	return &ResultMessage{Type: typ, ID: id, Result: res, MemoryUsedBytes: mem}, nil
}

// parseResult enforces the result shape contract: statusCode must be a
// number; headers, multiValueHeaders, body and isBase64Encoded must carry
// their primitive types when present.
func parseResult(raw []byte) (*Result, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, violation("result is not a JSON object", raw)
	}
	out := &Result{}

	v, ok := fields["statusCode"]
	if !ok {
		return nil, violation("result missing statusCode", raw)
	}
	if json.Unmarshal(v, &out.StatusCode) != nil {
		return nil, violation("result statusCode is not a number", raw)
	}

	if v, ok := fields["headers"]; ok {
		if json.Unmarshal(v, &out.Headers) != nil {
			return nil, violation("result headers is not a string map", raw)
		}
	}
	if v, ok := fields["multiValueHeaders"]; ok {
		if json.Unmarshal(v, &out.MultiValueHeaders) != nil {
			return nil, violation("result multiValueHeaders is not a string-list map", raw)
		}
	}
	if v, ok := fields["body"]; ok {
		if json.Unmarshal(v, &out.Body) != nil {
			return nil, violation("result body is not a string", raw)
		}
	}
	if v, ok := fields["isBase64Encoded"]; ok {
		if json.Unmarshal(v, &out.IsBase64Encoded) != nil {
			return nil, violation("result isBase64Encoded is not a boolean", raw)
		}
	}
	return out, nil
}
