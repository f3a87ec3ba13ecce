package net

import (
	"errors"
	"fmt"
)

// Error codes carried in ERROR frames.
const (
	CodeBadRequest    = "BAD_REQUEST"
	CodeUnknownType   = "UNKNOWN_TYPE"
	CodeAlreadyExists = "ALREADY_EXISTS"
	CodeNotFound      = "NOT_FOUND"
	CodeAlreadyInRoom = "ALREADY_IN_ROOM"
	CodeRoomFull      = "ROOM_FULL"
	CodeNotHost       = "NOT_HOST"
	CodeNotMember     = "NOT_MEMBER"
	CodeRateLimit     = "RATE_LIMIT"
)

var (
	ErrMalformed    = errors.New("malformed message")
	ErrUnknownType  = errors.New("unknown message type")
	ErrMissingField = errors.New("missing required field")
	ErrOutOfRange   = errors.New("value out of range")
)

// ProtocolError is a request-level failure reported to the originating
// connection as an ERROR frame.
type ProtocolError struct {
	Code    string
	Message string
	Err     error
}

func (e *ProtocolError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *ProtocolError) Unwrap() error { return e.Err }

// Frame converts the error into its wire form.
func (e *ProtocolError) Frame() *ErrorMessage {
	return &ErrorMessage{Code: e.Code, Message: e.Message}
}

func NewProtocolError(code, message string, err error) *ProtocolError {
	return &ProtocolError{Code: code, Message: message, Err: err}
}

func badRequest(message string, err error) *ProtocolError {
	return NewProtocolError(CodeBadRequest, message, err)
}
