package protocol

import (
	"fmt"
	"strconv"
	"strings"
)

// Code is a wire error code. The taxonomy mixes HTTP-flavoured client and
// availability errors with the legacy 1xx server codes.
type Code int

const (
	CodeUnknownCommand   Code = 400 // unknown verb
	CodeNotOwner         Code = 401 // owner-only operation
	CodePermissionDenied Code = 403 // missing R/W grant
	CodeNotFound         Code = 404 // no such file
	CodeExists           Code = 409 // file already exists
	CodeInvalidArgs      Code = 422 // malformed or out-of-range arguments
	CodeNoStorage        Code = 503 // no storage server registered
	CodeSSFailure        Code = 504 // storage server replied with an error
	CodeUserNotFound     Code = 105 // unknown user
	CodeInvalidInput     Code = 106 // unsafe name or field value
	CodeServerMisc       Code = 107 // internal name server failure
	CodeSSUnreachable    Code = 108 // storage server connection failed
)

// WireError is a structured error reply: ERROR;code;message.
type WireError struct {
	Code    Code
	Message string
}

func (e *WireError) Error() string {
	return fmt.Sprintf("ERROR;%d;%s", e.Code, e.Message)
}

// NewWireError builds a WireError with a formatted message.
func NewWireError(code Code, format string, args ...any) *WireError {
	return &WireError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// FormatError encodes a WireError as a reply record (without marker).
func FormatError(code Code, format string, args ...any) string {
	return fmt.Sprintf("%s;%d;%s", ErrorPrefix, int(code), fmt.Sprintf(format, args...))
}

// ParseWireError parses a reply payload of the form ERROR;code;message.
// Returns nil if the payload is not a structured error.
func ParseWireError(payload string) *WireError {
	if !strings.HasPrefix(payload, ErrorPrefix+FieldSep) {
		return nil
	}
	rest := strings.TrimPrefix(payload, ErrorPrefix+FieldSep)
	codeStr, msg, found := strings.Cut(rest, FieldSep)
	if !found {
		return &WireError{Code: CodeServerMisc, Message: rest}
	}
	code, err := strconv.Atoi(codeStr)
	if err != nil {
		return &WireError{Code: CodeServerMisc, Message: rest}
	}
	return &WireError{Code: Code(code), Message: strings.TrimRight(msg, "\n")}
}
