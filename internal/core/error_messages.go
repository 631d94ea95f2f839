package core

// error_messages.go maps technical errors to user-friendly messages with a
// code for support reference.
//
// # File Errors (FILE001-FILE099)
//
//	FILE001 - File not found: The file does not exist or is not readable
//	          Action: Check the path and file permissions
//	          Match: ErrMap
//
//	FILE002 - Missing header: The file has no valid header row
//	          Action: Make sure the first line of the file lists the column names
//	          Match: ErrHeader
//
//	FILE003 - Invalid CSV: The file contains malformed quoting
//	          Action: Check that quoted fields are closed and quotes are doubled
//	          Match: ErrParse
//	          Seen per row (RowErr, a failed row scan). Open counts malformed
//	          rows instead of failing, so an open reports FILE003 only if the
//	          mapping itself fails to read, which a memory map does not do in
//	          practice.
//
// # Row Errors (ROW001-ROW099)
//
//	ROW001 - Out of range: The requested row or column does not exist
//	         Match: ErrOutOfRange
//
//	ROW002 - No file: No file is open in this session
//	         Match: ErrNotLoaded
//
// # Session Errors (SES001-SES099)
//
//	SES001 - Session not found: ErrSessionNotFound
//	SES002 - Too many sessions: ErrTooManySessions
//	SES003 - Path rejected: ErrPathOutsideRoot
//
// # Request Errors (REQ001-REQ099)
//
// Matched by pattern (case-insensitive strings.Contains) when no sentinel
// matches:
//
//	REQ001 - "context canceled"
//	REQ002 - "context deadline exceeded"
//	REQ003 - "rate limit" (ErrTooManyOpens shares the code)
//	REQ004 - Invalid request: ErrInvalidRequest
//
// # Default Error (ERR000)
//
// Fallback when nothing matches. Check the application logs for the original
// technical error.

import (
	"errors"
	"strings"
)

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string // What happened (user-friendly)
	Action  string // What to do about it
	Code    string // Error code for support reference
}

// sentinelMessages maps error kinds to user messages. Checked in order with
// errors.Is, so wrapped errors resolve to their kind.
var sentinelMessages = []struct {
	err error
	msg UserMessage
}{
	{ErrMap, UserMessage{
		Message: "The file could not be opened",
		Action:  "Check the path and file permissions",
		Code:    "FILE001",
	}},
	{ErrHeader, UserMessage{
		Message: "The file has no valid header row",
		Action:  "Make sure the first line of the file lists the column names",
		Code:    "FILE002",
	}},
	{ErrParse, UserMessage{
		Message: "The file is not a valid CSV",
		Action:  "Check that quoted fields are closed and embedded quotes are doubled",
		Code:    "FILE003",
	}},
	{ErrOutOfRange, UserMessage{
		Message: "The requested row or column does not exist",
		Action:  "Check the row and column counts before requesting data",
		Code:    "ROW001",
	}},
	{ErrNotLoaded, UserMessage{
		Message: "No file is open",
		Action:  "Open a CSV file first",
		Code:    "ROW002",
	}},
	{ErrSessionNotFound, UserMessage{
		Message: "Table session not found",
		Action:  "The session may have expired. Open the file again",
		Code:    "SES001",
	}},
	{ErrTooManySessions, UserMessage{
		Message: "Too many tables are open",
		Action:  "Close a table you no longer need and try again",
		Code:    "SES002",
	}},
	{ErrPathOutsideRoot, UserMessage{
		Message: "This path is not available",
		Action:  "Choose a file inside the configured data directory",
		Code:    "SES003",
	}},
	{ErrTooManyOpens, UserMessage{
		Message: "The server is busy opening other files",
		Action:  "Please wait a moment and try again",
		Code:    "REQ003",
	}},
	{ErrInvalidRequest, UserMessage{
		Message: "The request is not valid",
		Action:  "Check the path and query parameters",
		Code:    "REQ004",
	}},
}

// errorPatterns catches errors from outside this package by message.
// The first match wins.
var errorPatterns = []struct {
	pattern string
	msg     UserMessage
}{
	{"context canceled", UserMessage{
		Message: "Request was cancelled",
		Action:  "Please try again",
		Code:    "REQ001",
	}},
	{"context deadline exceeded", UserMessage{
		Message: "Request timed out",
		Action:  "Try a smaller file or try again later",
		Code:    "REQ002",
	}},
	{"rate limit", UserMessage{
		Message: "Too many requests",
		Action:  "Please wait a moment before trying again",
		Code:    "REQ003",
	}},
}

// defaultMessage is returned when nothing matches (ERR000).
var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// MapError converts a technical error to a user-friendly message.
// Error kinds from this package are matched with errors.Is first, then the
// message is searched for known patterns. Returns the ERR000 fallback when
// nothing matches and an empty UserMessage for a nil error.
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	for _, sm := range sentinelMessages {
		if errors.Is(err, sm.err) {
			return sm.msg
		}
	}

	errStr := strings.ToLower(err.Error())
	for _, ep := range errorPatterns {
		if strings.Contains(errStr, ep.pattern) {
			return ep.msg
		}
	}

	return defaultMessage
}

// IsUserFacing reports whether err maps to a specific message rather than
// the ERR000 fallback.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	return MapError(err).Code != defaultMessage.Code
}

// UserError pairs a technical error with its user-facing message.
type UserError struct {
	Technical error       // Original technical error for logging
	User      UserMessage // User-friendly message for display
}

func (e *UserError) Error() string {
	return e.User.Message
}

func (e *UserError) Unwrap() error {
	return e.Technical
}

// NewUserError maps err to a UserError. Returns nil if err is nil.
func NewUserError(err error) *UserError {
	if err == nil {
		return nil
	}
	return &UserError{
		Technical: err,
		User:      MapError(err),
	}
}
