// Package mcp implements the protocol server: JSON-RPC 2.0 over a
// newline-delimited duplex byte stream, the tool and resource catalogs, the
// session lifecycle state machine and the worker pool dispatching tool calls.
package mcp

import (
	"bytes"
	"encoding/json"

	"github.com/aerolink/drone-mcp/internal/fault"
)

// Version is the JSON-RPC protocol version constant.
const Version = "2.0"

// Request is one inbound frame. ID is kept raw so string, number and null
// ids round-trip unchanged; a missing id marks a notification.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// IsNotification reports whether the request expects no response.
func (r *Request) IsNotification() bool {
	return len(r.ID) == 0
}

// Response is one outbound frame. Exactly one of Result and Error is set.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  interface{}     `json:"result,omitempty"`
	Error   *ErrorObject    `json:"error,omitempty"`
}

// ErrorObject is the JSON-RPC error member. Data carries the taxonomy kind,
// a human-readable detail and optional retry hints.
type ErrorObject struct {
	Code    int                    `json:"code"`
	Message string                 `json:"message"`
	Data    map[string]interface{} `json:"data,omitempty"`
}

// successResponse builds a result frame for the given id.
func successResponse(id json.RawMessage, result interface{}) *Response {
	return &Response{JSONRPC: Version, ID: normalizeID(id), Result: result}
}

// errorResponse builds an error frame from a fault.
func errorResponse(id json.RawMessage, err error) *Response {
	fe := fault.As(err)
	return &Response{
		JSONRPC: Version,
		ID:      normalizeID(id),
		Error: &ErrorObject{
			Code:    fault.Code(fe.Kind),
			Message: fe.Detail,
			Data:    fe.Data(),
		},
	}
}

// normalizeID maps a missing id to explicit null so error frames for
// unparseable requests are well-formed.
func normalizeID(id json.RawMessage) json.RawMessage {
	if len(id) == 0 {
		return json.RawMessage("null")
	}
	return id
}

// parseRequest decodes one frame. A frame that is not a JSON object with a
// string method is a parse error.
func parseRequest(frame []byte) (*Request, error) {
	frame = bytes.TrimSpace(frame)
	if len(frame) == 0 {
		return nil, fault.New(fault.KindParseError, "empty frame")
	}
	var req Request
	if err := json.Unmarshal(frame, &req); err != nil {
		return nil, fault.Wrap(fault.KindParseError, "malformed frame", err)
	}
	if req.Method == "" {
		return nil, fault.New(fault.KindParseError, "frame carries no method")
	}
	return &req, nil
}
