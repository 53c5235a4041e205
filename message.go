package hrpc

import (
	"bytes"

	"github.com/go-json-experiment/json"
	"github.com/go-json-experiment/json/jsontext"
)

// Version is the protocol version tag required on every message.
const Version = "2.0"

// NullID is the wire id used when the real id of a request could not be
// determined.
var NullID = jsontext.Value("null")

// Request represents a JSON-RPC 2.0 request or notification. Params and ID
// are kept as raw JSON so that values are preserved verbatim; a nil ID means
// the id member was absent and the request is a notification.
type Request struct {
	Version string         `json:"jsonrpc"`
	Method  string         `json:"method"`
	Params  jsontext.Value `json:"params,omitzero"`
	ID      jsontext.Value `json:"id,omitzero"`
}

// IsNotification reports whether the request carries no id and therefore
// must never produce a response.
func (r *Request) IsNotification() bool {
	return len(r.ID) == 0
}

// Validate checks the protocol-level shape of the request: the version tag,
// the method name, the params kind and the id kind.
func (r *Request) Validate() *ProtocolError {
	if r.Version != Version {
		return ErrInvalidRequest(`jsonrpc must be "2.0"`)
	}
	if r.Method == "" {
		return ErrInvalidRequest("method is required")
	}
	if len(r.Params) > 0 {
		switch r.Params.Kind() {
		case '[', '{', 'n':
		default:
			return ErrInvalidRequest("params must be an array or object")
		}
	}
	if !validID(r.ID) {
		return ErrInvalidRequest("id must be a string, number or null")
	}
	return nil
}

// ResponseID returns the id to echo on a response to this request: the
// request id verbatim when present and well-formed, null otherwise.
func (r *Request) ResponseID() jsontext.Value {
	if len(r.ID) == 0 || !validID(r.ID) {
		return NullID
	}
	return r.ID
}

// validID accepts an absent id, a string, a number, or null.
func validID(id jsontext.Value) bool {
	if len(id) == 0 {
		return true
	}
	switch id.Kind() {
	case '"', '0', 'n':
		return true
	}
	return false
}

// ErrorObject is the wire representation of a JSON-RPC error.
type ErrorObject struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitzero"`
}

// Response represents a JSON-RPC 2.0 response carrying exactly one of
// result or error.
type Response struct {
	Version string         `json:"jsonrpc"`
	Result  any            `json:"result,omitzero"`
	Error   *ErrorObject   `json:"error,omitzero"`
	ID      jsontext.Value `json:"id"`
}

// NewResponse creates a success response. A nil result is encoded as an
// explicit JSON null so that the result member is always present.
func NewResponse(id jsontext.Value, result any) *Response {
	if result == nil {
		result = jsontext.Value("null")
	}
	if len(id) == 0 {
		id = NullID
	}
	return &Response{Version: Version, Result: result, ID: id}
}

// NewErrorResponse creates an error response.
func NewErrorResponse(id jsontext.Value, perr *ProtocolError) *Response {
	if len(id) == 0 {
		id = NullID
	}
	return &Response{Version: Version, Error: perr.ErrorObject(), ID: id}
}

// Call is one decoded position of a payload: either a request to dispatch
// or the error response that takes its place in the output.
type Call struct {
	Request *Request
	Invalid *Response
}

// Message is one decoded transport payload.
type Message struct {
	// Batch is true when the payload was a JSON array. A single response to
	// a batch payload is still framed as an array on the wire.
	Batch bool
	Calls []Call
	// Reject is set when the payload failed before any request could be
	// decoded (syntax error, wrong top-level kind, empty batch). It is the
	// only response to send.
	Reject *Response
}

// DecodeMessage decodes one transport payload into a single request or a
// batch. Malformed batch elements become per-element error responses with a
// null id instead of failing their siblings.
func DecodeMessage(body []byte) *Message {
	trimmed := jsontext.Value(bytes.TrimSpace(body))
	if len(trimmed) == 0 || !trimmed.IsValid() {
		return &Message{Reject: NewErrorResponse(NullID, ErrParse("invalid JSON"))}
	}

	switch trimmed.Kind() {
	case '{':
		req, perr := parseRequest(trimmed)
		if perr != nil {
			return &Message{Calls: []Call{{Invalid: NewErrorResponse(NullID, perr)}}}
		}
		return &Message{Calls: []Call{{Request: req}}}

	case '[':
		var elems []jsontext.Value
		if err := json.Unmarshal(trimmed, &elems); err != nil {
			return &Message{Reject: NewErrorResponse(NullID, ErrParse("invalid JSON"))}
		}
		if len(elems) == 0 {
			return &Message{Reject: NewErrorResponse(NullID, ErrInvalidRequest("empty batch"))}
		}
		msg := &Message{Batch: true, Calls: make([]Call, len(elems))}
		for i, elem := range elems {
			req, perr := parseRequest(elem)
			if perr != nil {
				msg.Calls[i] = Call{Invalid: NewErrorResponse(NullID, perr)}
				continue
			}
			msg.Calls[i] = Call{Request: req}
		}
		return msg

	default:
		return &Message{Reject: NewErrorResponse(NullID, ErrInvalidRequest("payload must be an object or array"))}
	}
}

// parseRequest decodes one request object from raw JSON.
func parseRequest(raw jsontext.Value) (*Request, *ProtocolError) {
	if raw.Kind() != '{' {
		return nil, ErrInvalidRequest("request must be an object")
	}
	var req Request
	if err := json.Unmarshal(raw, &req); err != nil {
		return nil, ErrInvalidRequest("malformed request object")
	}
	return &req, nil
}

// EncodeResponses serializes dispatch output. Batch responses keep the
// positional order of their originating requests; an empty response set
// (all notifications) encodes to a nil body.
func EncodeResponses(responses []*Response, batch bool) ([]byte, error) {
	if len(responses) == 0 {
		return nil, nil
	}
	if !batch {
		return json.Marshal(responses[0])
	}
	return json.Marshal(responses)
}
