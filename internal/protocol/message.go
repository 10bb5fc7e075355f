// Package protocol defines the line-delimited JSON-RPC control channel
// spoken between the engine and plugin processes. Outbound messages are
// request envelopes; inbound lines are decoded exactly once at the channel
// boundary into a tagged Message variant.
package protocol

import (
	"encoding/json"
	"fmt"
)

// Methods the engine sends to plugins.
const (
	MethodExecuteTask = "execute_task"
	MethodPing        = "ping"
)

// Request is an outbound core-to-plugin envelope.
type Request struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  any    `json:"params"`
	ID      int    `json:"id"`
}

// NewRequest builds a JSON-RPC 2.0 request envelope.
func NewRequest(method string, params any, id int) Request {
	if params == nil {
		params = map[string]any{}
	}
	return Request{JSONRPC: "2.0", Method: method, Params: params, ID: id}
}

// Encode renders the request as a single newline-terminated wire line.
func (r Request) Encode() ([]byte, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("encode %s request: %w", r.Method, err)
	}
	return append(data, '\n'), nil
}

// Kind tags an inbound plugin-to-core message variant.
type Kind int

const (
	// KindUnknown marks a line that parsed as JSON but matched no variant.
	KindUnknown Kind = iota
	// KindReady is the one-time handshake notification after launch.
	KindReady
	// KindProgress is an unsolicited progress notification.
	KindProgress
	// KindHeartbeat is a content-free keep-alive notification.
	KindHeartbeat
	// KindPong answers a ping request.
	KindPong
	// KindResult is the terminal reply carrying the task outcome.
	KindResult
)

func (k Kind) String() string {
	switch k {
	case KindReady:
		return "ready"
	case KindProgress:
		return "progress"
	case KindHeartbeat:
		return "heartbeat"
	case KindPong:
		return "pong"
	case KindResult:
		return "result"
	default:
		return "unknown"
	}
}

// ProgressParams is the payload of a progress notification, in the plugin's
// own 0-100 percent frame.
type ProgressParams struct {
	Type    string         `json:"type,omitempty"`
	Percent float64        `json:"percent"`
	Message string         `json:"message,omitempty"`
	Data    map[string]any `json:"data,omitempty"`
}

// ResultPayload is the terminal result object. Status is the field whose
// presence makes a reply terminal.
type ResultPayload struct {
	Status          string            `json:"status"`
	OutputFiles     []string          `json:"output_files,omitempty"`
	OutputResources []json.RawMessage `json:"output_resources,omitempty"`
	ErrorMessage    string            `json:"error_message,omitempty"`
	Metadata        map[string]any    `json:"metadata,omitempty"`
}

// Message is the decoded inbound variant. Exactly the fields for the tagged
// Kind are populated.
type Message struct {
	Kind     Kind
	Progress *ProgressParams
	Result   *ResultPayload
}

// Decode classifies one inbound wire line. Lines that are not valid JSON
// return an error so the reader can skip them; valid JSON that matches no
// variant decodes as KindUnknown.
func Decode(line []byte) (Message, error) {
	var raw struct {
		Method string          `json:"method"`
		Params json.RawMessage `json:"params"`
		Result json.RawMessage `json:"result"`
	}
	if err := json.Unmarshal(line, &raw); err != nil {
		return Message{}, fmt.Errorf("invalid control message: %w", err)
	}

	switch raw.Method {
	case "ready":
		return Message{Kind: KindReady}, nil
	case "progress":
		params := &ProgressParams{}
		if len(raw.Params) > 0 {
			if err := json.Unmarshal(raw.Params, params); err != nil {
				return Message{}, fmt.Errorf("invalid progress params: %w", err)
			}
		}
		return Message{Kind: KindProgress, Progress: params}, nil
	case "heartbeat":
		return Message{Kind: KindHeartbeat}, nil
	}

	if len(raw.Result) > 0 {
		var result ResultPayload
		if err := json.Unmarshal(raw.Result, &result); err != nil {
			return Message{}, fmt.Errorf("invalid result payload: %w", err)
		}
		if result.Status == "pong" {
			return Message{Kind: KindPong}, nil
		}
		if result.Status != "" {
			return Message{Kind: KindResult, Result: &result}, nil
		}
	}

	return Message{Kind: KindUnknown}, nil
}
