package mcpserver

import (
	"errors"
	"fmt"
)

// Kind classifies every failure the dispatcher can report.
type Kind int

const (
	// KindProtocolOrdering: request sent in the wrong lifecycle phase.
	KindProtocolOrdering Kind = iota + 1
	// KindUnknownTool: tools/call named a tool that is not registered.
	KindUnknownTool
	// KindInvalidParameters: arguments failed schema validation.
	KindInvalidParameters
	// KindInternal: the tool handler failed.
	KindInternal
	// KindMethodNotFound: the JSON-RPC method is not implemented.
	KindMethodNotFound
	// KindParse: the transport could not decode the message.
	KindParse
	// KindInvalidRequest: the message is JSON but not a valid request.
	KindInvalidRequest
)

func (k Kind) String() string {
	switch k {
	case KindProtocolOrdering:
		return "protocol_ordering"
	case KindUnknownTool:
		return "unknown_tool"
	case KindInvalidParameters:
		return "invalid_parameters"
	case KindInternal:
		return "internal_error"
	case KindMethodNotFound:
		return "method_not_found"
	case KindParse:
		return "parse_error"
	case KindInvalidRequest:
		return "invalid_request"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Code returns the JSON-RPC error code for the kind.
func (k Kind) Code() int {
	switch k {
	case KindProtocolOrdering:
		return -32002
	case KindUnknownTool, KindInvalidParameters:
		return -32602
	case KindMethodNotFound:
		return -32601
	case KindParse:
		return -32700
	case KindInvalidRequest:
		return -32600
	default:
		return -32603
	}
}

// Error is a dispatcher failure. Only Kind and Message cross the wire.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string { return e.Message }

func (e *Error) Unwrap() error { return e.Err }

// RPCError converts the failure to its wire form.
func (e *Error) RPCError() *RPCError {
	return &RPCError{
		Code:    e.Kind.Code(),
		Message: e.Message,
		Data:    ErrorData{Kind: e.Kind.String()},
	}
}

func newError(kind Kind, cause error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: cause}
}

// KindOf returns the kind of err, or KindInternal for foreign errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

func errorResponse(id any, err error) *JSONRPCResponse {
	var e *Error
	if !errors.As(err, &e) {
		e = newError(KindInternal, err, "%s", err.Error())
	}
	return &JSONRPCResponse{JSONRPC: "2.0", ID: id, Error: e.RPCError()}
}
