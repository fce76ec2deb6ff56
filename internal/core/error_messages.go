package core

// error_messages.go maps technical errors to user-facing messages with a
// support code. Users quote the code; support finds the technical error in
// the logs by request id.
//
// Codes by category:
//
//	DB001   duplicate key
//	DB002   unique constraint
//	DB003   foreign key
//	DB004   connection refused
//	DB005   connection reset
//	DB006   timeout
//	DB007   deadlock
//
//	VAL001  invalid date
//	VAL002  invalid number
//	VAL003  required field
//	VAL004  negative value
//
//	FILE001 file too large
//	FILE002 unsupported file type
//	FILE003 encoding error
//	FILE004 no file
//	FILE005 empty file or missing header
//	FILE006 invalid file name
//
//	IMP001  import not found
//	IMP002  invalid import request
//	IMP003  no mapping rules for supplier
//	IMP004  import cancelled
//	IMP005  import still processing
//
//	RULE001 rule not found
//	RULE002 invalid rule
//
//	RATE001 too many requests or concurrent imports
//	ERR000  anything else

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/JonMunkholm/backoffice/internal/ingest"
	"github.com/JonMunkholm/backoffice/internal/rules"
)

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string `json:"message"`
	Action  string `json:"action"`
	Code    string `json:"code"`
}

// sentinelMessages are checked with errors.Is before any text pattern.
var sentinelMessages = []struct {
	target error
	msg    UserMessage
}{
	{rules.ErrNotFound, UserMessage{"Rule not found", "Refresh the rule list and try again", "RULE001"}},
	{rules.ErrInvalidRule, UserMessage{"The rule is not valid", "Check the rule fields and conditions", "RULE002"}},
	{ErrImportNotFound, UserMessage{"Import record not found", "Check the import number", "IMP001"}},
	{ErrInvalidImport, UserMessage{"The import request is incomplete", "Provide a supplier, a file and a file type", "IMP002"}},
	{ErrNoRules, UserMessage{"No mapping rules exist for this supplier", "Create basic mapping rules before importing", "IMP003"}},
	{ErrTooManyImports, UserMessage{"Too many imports are running", "Please wait a moment before trying again", "RATE001"}},
	{ingest.ErrUnsupportedFile, UserMessage{"This file type is not supported", "Upload a .csv or .xlsx file", "FILE002"}},
	{ingest.ErrNoHeader, UserMessage{"The file is empty", "Upload a file with a header row and data rows", "FILE005"}},
	{ErrFileName, UserMessage{"The supplier or file type cannot be read from the file name", "Name files like <supplier>_stock_<date>.csv", "FILE006"}},
	{context.Canceled, UserMessage{"The import was cancelled", "Start the import again when ready", "IMP004"}},
	{ErrImportInProgress, UserMessage{"The import is still processing", "Wait for it to finish before deleting it", "IMP005"}},
}

// errorPattern defines a pattern to match and its corresponding user message.
type errorPattern struct {
	pattern string
	msg     UserMessage
}

// errorPatterns maps technical error text (case-insensitive) to user messages.
// The first match wins, so more specific patterns come first.
var errorPatterns = []errorPattern{
	// =========================================================================
	// Database
	// =========================================================================
	{"duplicate key", UserMessage{"A record with this key already exists", "Check the file for duplicate part numbers", "DB001"}},
	{"unique constraint", UserMessage{"This value must be unique but already exists", "Check for duplicate entries in your file", "DB002"}},
	{"violates unique", UserMessage{"This value must be unique but already exists", "Check for duplicate entries in your file", "DB002"}},
	{"foreign key", UserMessage{"Referenced record does not exist", "Make sure the import still exists", "DB003"}},
	{"connection refused", UserMessage{"Unable to connect to database", "Please try again in a few moments", "DB004"}},
	{"connection reset", UserMessage{"Database connection was interrupted", "Please try again", "DB005"}},
	{"deadline exceeded", UserMessage{"Operation timed out", "Try a smaller file or try again later", "DB006"}},
	{"timeout", UserMessage{"Operation timed out", "Try a smaller file or try again later", "DB006"}},
	{"deadlock", UserMessage{"Database was busy with conflicting operations", "Please try again", "DB007"}},

	// =========================================================================
	// Validation
	// =========================================================================
	{"invalid date", UserMessage{"Invalid date format detected", "Use YYYY-MM-DD", "VAL001"}},
	{"invalid number", UserMessage{"Invalid number format detected", "Remove text from numeric columns", "VAL002"}},
	{"is required", UserMessage{"Required field is empty", "Ensure the mapped required columns have values", "VAL003"}},
	{"cannot be negative", UserMessage{"Negative value detected", "Stock, price, MOQ and SPQ must be zero or more", "VAL004"}},

	// =========================================================================
	// Files
	// =========================================================================
	{"file too large", UserMessage{"File exceeds the maximum size", "Split the file into smaller files", "FILE001"}},
	{"request body too large", UserMessage{"File exceeds the maximum size", "Split the file into smaller files", "FILE001"}},
	{"unknown encoding", UserMessage{"The file encoding is not supported", "Save the file as UTF-8 or Shift_JIS", "FILE003"}},
	{"decode", UserMessage{"The file contains invalid characters", "Save the file as UTF-8", "FILE003"}},
	{"no file", UserMessage{"No file was selected", "Please select a file to upload", "FILE004"}},

	// =========================================================================
	// Rate limiting
	// =========================================================================
	{"rate limit", UserMessage{"Too many requests", "Please wait a moment before trying again", "RATE001"}},
}

// defaultMessage is returned when no pattern matches (ERR000).
// Support staff should check application logs for the original technical
// error when users report ERR000.
var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// MapError converts a technical error to a user-friendly message.
// Known sentinel errors are matched first, then error text patterns.
// If nothing matches, the ERR000 fallback is returned.
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	for _, s := range sentinelMessages {
		if errors.Is(err, s.target) {
			return s.msg
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
