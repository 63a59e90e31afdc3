package core

// # Error Codes Reference
//
// User-facing messages carry a code that support staff can look up.
// Typed pipeline errors are mapped with errors.Is first; anything else
// falls back to case-insensitive substring patterns.
//
// # Import Errors (IMP001-IMP099)
//
//	IMP001 - Import cancelled by the user
//	IMP002 - Another import is already running for this account
//	IMP003 - Import session not found or expired
//	IMP004 - Decision not valid in the current import step
//
// # Limit Errors (LIM001-LIM099)
//
//	LIM001 - Contact limit would be exceeded (message includes available slots)
//	LIM002 - A record or batch is too large for the model budget
//
// # File Errors (FILE001-FILE099)
//
//	FILE001 - File too large
//	FILE002 - File is not a readable CSV
//	FILE003 - No file was provided
//
// # Normalization Errors (NRM001-NRM099)
//
//	NRM001 - Every row of an unrecognized file failed to normalize
//	NRM002 - The normalization service is unavailable
//
// # Database Errors (DB001-DB099)
//
//	DB001 - Saving contacts failed
//	DB002 - Contact not found
//	DB003 - Unable to connect to database
//	DB004 - Operation timed out
//
// # Upload Errors (UPL001-UPL099)
//
//	UPL001 - System busy with other imports
//	UPL002 - Request cancelled
//	UPL003 - Request timed out
//
// # Default Error (ERR000)
//
// Fallback when nothing matches; check application logs for the original
// technical error.

import (
	"errors"
	"fmt"
	"strings"
)

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string `json:"message"`
	Action  string `json:"action,omitempty"`
	Code    string `json:"code,omitempty"`
}

type kindMessage struct {
	kind error
	msg  UserMessage
}

// kindMessages is checked in order with errors.Is.
var kindMessages = []kindMessage{
	{ErrResolutionCancelled, UserMessage{"Import was cancelled", "Start a new import when ready", "IMP001"}},
	{ErrImportInProgress, UserMessage{"Another import is already running", "Wait for it to finish or cancel it", "IMP002"}},
	{ErrImportNotFound, UserMessage{"Import session not found", "The import may have expired. Please start a new import", "IMP003"}},
	{ErrInvalidDecision, UserMessage{"That choice is not available right now", "Refresh the import status and try again", "IMP004"}},
	{ErrContactLimit, UserMessage{"This import would exceed your contact limit", "Remove some contacts or import a smaller file", "LIM001"}},
	{ErrTokenLimit, UserMessage{"A record is too large to process", "Shorten long notes or split the row", "LIM002"}},
	{ErrParse, UserMessage{"File is not a valid CSV", "Export the file again as comma-separated values with a header row", "FILE002"}},
	{ErrNormalization, UserMessage{"None of the rows could be read", "Check that the file contains contact data with a header row", "NRM001"}},
	{ErrPersistence, UserMessage{"Saving contacts failed", "Contacts saved before the failure were kept. Please try again", "DB001"}},
	{ErrContactNotFound, UserMessage{"Contact not found", "It may have been deleted already", "DB002"}},
	{ErrTooManyImports, UserMessage{"System is busy processing other imports", "Please wait a moment and try again", "UPL001"}},
}

type errorPattern struct {
	pattern string
	msg     UserMessage
}

// errorPatterns maps technical error text (case-insensitive) to messages.
// The first match wins, so specific patterns come before general ones.
var errorPatterns = []errorPattern{
	{"file too large", UserMessage{"File exceeds maximum size limit", "Split the file into smaller chunks", "FILE001"}},
	{"request body too large", UserMessage{"File exceeds maximum size limit", "Split the file into smaller chunks", "FILE001"}},
	{"no file provided", UserMessage{"No file was selected", "Please select a CSV file to upload", "FILE003"}},
	{"normalizer unavailable", UserMessage{"The normalization service is unavailable", "Please try again later", "NRM002"}},
	{"connection refused", UserMessage{"Unable to connect to database", "Please try again in a few moments", "DB003"}},
	{"context canceled", UserMessage{"Request was cancelled", "Please try again", "UPL002"}},
	{"context deadline exceeded", UserMessage{"Request timed out", "Try a smaller file or check your connection", "UPL003"}},
	{"timeout", UserMessage{"Operation timed out", "Try a smaller file or try again later", "DB004"}},
}

// defaultMessage is returned when nothing matches (ERR000).
var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// MapError converts a technical error to a user-friendly message.
//
// A contact limit error reports the exact number of available slots:
//
//	msg := MapError(&ContactLimitError{Available: 40})
//	// msg.Message == "This import would exceed your contact limit (40 slots available)"
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	var ue *UserError
	if errors.As(err, &ue) {
		return ue.User
	}

	for _, km := range kindMessages {
		if errors.Is(err, km.kind) {
			msg := km.msg
			var limit *ContactLimitError
			if errors.As(err, &limit) {
				msg.Message = fmt.Sprintf("%s (%d slots available)", msg.Message, limit.Available)
			}
			return msg
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

// FormatUserError creates a formatted error string for display.
// The format is: "Message (Code: XXX). Action"
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}

// IsUserFacing reports whether err maps to something more specific than ERR000.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	return MapError(err).Code != defaultMessage.Code
}

// UserError pairs a technical error (for logs) with the message shown to users.
type UserError struct {
	Technical error
	User      UserMessage
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
