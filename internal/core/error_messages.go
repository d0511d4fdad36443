// # Error Codes Reference
//
// This file defines user-friendly error messages with codes for support
// reference. Users can quote the code to support staff for faster diagnosis.
//
// # Decode Errors (DEC001-DEC099)
//
//	DEC001 - Invalid table file: The file is not a readable table
//	DEC002 - Truncated file: The file ends before all records were read
//	DEC003 - Empty file: The table file contains no data
//	DEC004 - Unsupported format: The file type is not supported
//	DEC005 - Worksheet not found: The selected worksheet does not exist
//	DEC006 - Unknown codepage: The configured character set is not known
//	DEC007 - Invalid CSV: The delimited file could not be parsed
//
// # Expression Errors (EXP001-EXP099)
//
//	EXP001 - Syntax error: A transform or filter expression does not compile
//	EXP002 - Runtime error: An expression failed while evaluating a row
//
// # Filter Errors (FLT001-FLT099)
//
//	FLT001 - Filter failed: The advanced filter could not be evaluated
//	FLT002 - Filter result: The advanced filter did not return true or false
//	FLT003 - Invalid filter: A filter condition uses an unknown operator
//
// # Export Errors (XPT001-XPT099)
//
//	XPT001 - Export cancelled: A newer export replaced this one, or it was stopped
//	XPT002 - System busy: Too many exports are running
//	XPT003 - Export expired: The export is no longer available
//	XPT004 - Export timeout: The export took too long
//	XPT005 - Source expired: The uploaded source is no longer available
//
// # Saved Mapping Errors (TPL001-TPL099)
//
//	TPL001 - Duplicate name: A mapping with this name already exists
//	TPL002 - Not found: The saved mapping does not exist
//	TPL003 - Not configured: Saved mappings are not enabled
//
// # Database Errors (DB004-DB006)
//
//	DB004 - Connection refused: Unable to connect to database
//	DB005 - Connection reset: Database connection was interrupted
//	DB006 - Timeout: Operation timed out
//
// # File and Request Errors
//
//	FILE001 - File too large
//	FILE004 - No file provided
//	TGT001  - Unknown target schema
//	RATE001 - Too many requests
//
// # Default Error (ERR000)
//
// Fallback when nothing matches. Check the application logs for the
// technical error when users report ERR000.
//
// # Matching
//
// Sentinel errors are matched first with errors.Is. Otherwise patterns are
// matched case-insensitively with strings.Contains and the first match wins,
// so more specific patterns come before general ones.

package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string `json:"message"` // What happened (user-friendly)
	Action  string `json:"action"`  // What to do about it
	Code    string `json:"code"`    // Error code for support reference
}

// sentinelMessage maps a sentinel error to its user message.
type sentinelMessage struct {
	target error
	msg    UserMessage
}

var (
	msgCancelled = UserMessage{
		Message: "The export was cancelled",
		Action:  "A newer export from this session may have replaced it; start a new export when ready",
		Code:    "XPT001",
	}
	msgBusy = UserMessage{
		Message: "Too many exports are running",
		Action:  "Please wait a moment and try again",
		Code:    "XPT002",
	}
	msgExportGone = UserMessage{
		Message: "The export is no longer available",
		Action:  "Exports expire after a while. Please run the export again",
		Code:    "XPT003",
	}
	msgExportTimeout = UserMessage{
		Message: "The export took too long",
		Action:  "Try a smaller file or a simpler set of transforms",
		Code:    "XPT004",
	}
	msgTemplateExists = UserMessage{
		Message: "A mapping with this name already exists",
		Action:  "Choose a different name or update the existing mapping",
		Code:    "TPL001",
	}
	msgTemplateMissing = UserMessage{
		Message: "The saved mapping does not exist",
		Action:  "It may have been deleted. Refresh the list of mappings",
		Code:    "TPL002",
	}
)

// sentinelMessages is checked before the string patterns.
var sentinelMessages = []sentinelMessage{
	{target: ErrTemplateExists, msg: msgTemplateExists},
	{target: ErrTemplateNotFound, msg: msgTemplateMissing},
	{target: ErrNoTemplateStore, msg: UserMessage{
		Message: "Saved mappings are not enabled",
		Action:  "Ask an administrator to configure a database",
		Code:    "TPL003",
	}},
	{target: ErrTooManyExports, msg: msgBusy},
	{target: ErrExportNotFound, msg: msgExportGone},
	{target: context.Canceled, msg: msgCancelled},
	{target: context.DeadlineExceeded, msg: msgExportTimeout},
}

// errorPattern defines a pattern to match and its corresponding user message.
type errorPattern struct {
	pattern string
	msg     UserMessage
}

// errorPatterns maps technical error text (case-insensitive) to user
// messages. Order matters: specific before general.
var errorPatterns = []errorPattern{
	// Decode
	{
		pattern: "truncated input",
		msg: UserMessage{
			Message: "The file ends before all records were read",
			Action:  "The file may be incomplete. Copy it again from the source system",
			Code:    "DEC002",
		},
	},
	{
		pattern: "empty table data",
		msg: UserMessage{
			Message: "The table file contains no data",
			Action:  "Please select a non-empty file",
			Code:    "DEC003",
		},
	},
	{
		pattern: "dbf decode error",
		msg: UserMessage{
			Message: "The file is not a readable table",
			Action:  "Check that the file is a dBase (.dbf) table",
			Code:    "DEC001",
		},
	},
	{
		pattern: "unsupported source format",
		msg: UserMessage{
			Message: "The file type is not supported",
			Action:  "Use a CSV, Excel (.xlsx) or dBase (.dbf) file",
			Code:    "DEC004",
		},
	},
	{
		pattern: "worksheet not found",
		msg: UserMessage{
			Message: "The selected worksheet does not exist",
			Action:  "Pick one of the worksheets listed for this file",
			Code:    "DEC005",
		},
	},
	{
		pattern: "unknown codepage",
		msg: UserMessage{
			Message: "The configured character set is not known",
			Action:  "Use a codepage name such as windows-1252 or cp850",
			Code:    "DEC006",
		},
	},
	{
		pattern: "parse csv",
		msg: UserMessage{
			Message: "The delimited file could not be parsed",
			Action:  "Check that every line has the same number of columns",
			Code:    "DEC007",
		},
	},

	// Filter (before expression: filter errors wrap expression errors)
	{
		pattern: "want bool",
		msg: UserMessage{
			Message: "The advanced filter did not return true or false",
			Action:  "Make the filter a comparison, for example row.Status == \"open\"",
			Code:    "FLT002",
		},
	},
	{
		pattern: "unknown operator",
		msg: UserMessage{
			Message: "A filter condition uses an unknown operator",
			Action:  "Edit the filter and choose an operator from the list",
			Code:    "FLT003",
		},
	},
	{
		pattern: "filter error: evaluation failed",
		msg: UserMessage{
			Message: "The advanced filter could not be evaluated",
			Action:  "Check the filter expression against the columns of this file",
			Code:    "FLT001",
		},
	},

	// Expressions
	{
		pattern: "expression compile error",
		msg: UserMessage{
			Message: "A transform or filter expression has a syntax error",
			Action:  "Open the expression editor and fix the highlighted expression",
			Code:    "EXP001",
		},
	},
	{
		pattern: "expression eval error",
		msg: UserMessage{
			Message: "An expression failed while evaluating a row",
			Action:  "Test the expression against a sample row",
			Code:    "EXP002",
		},
	},

	// Export and sources
	{
		pattern: "source not found",
		msg: UserMessage{
			Message: "The uploaded file is no longer available",
			Action:  "Upload the file again",
			Code:    "XPT005",
		},
	},
	{
		pattern: "unknown target",
		msg: UserMessage{
			Message: "The target schema does not exist",
			Action:  "Pick a target from the list",
			Code:    "TGT001",
		},
	},

	// Database (saved mappings)
	{
		pattern: "connection refused",
		msg: UserMessage{
			Message: "Unable to connect to database",
			Action:  "Please try again in a few moments",
			Code:    "DB004",
		},
	},
	{
		pattern: "connection reset",
		msg: UserMessage{
			Message: "Database connection was interrupted",
			Action:  "Please try again",
			Code:    "DB005",
		},
	},
	{
		pattern: "timeout",
		msg: UserMessage{
			Message: "Operation timed out",
			Action:  "Please try again later",
			Code:    "DB006",
		},
	},

	// Files and requests
	{
		pattern: "file too large",
		msg: UserMessage{
			Message: "File exceeds the maximum size limit",
			Action:  "Split the file into smaller parts",
			Code:    "FILE001",
		},
	},
	{
		pattern: "no file provided",
		msg: UserMessage{
			Message: "No file was selected",
			Action:  "Please select a file to upload",
			Code:    "FILE004",
		},
	},
	{
		pattern: "rate limit",
		msg: UserMessage{
			Message: "Too many requests",
			Action:  "Please wait a moment before trying again",
			Code:    "RATE001",
		},
	},
}

// defaultMessage is returned when no pattern matches (ERR000).
var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// MapError converts a technical error to a user-friendly message.
//
//	msg := MapError(&ExpressionError{Phase: PhaseCompile, ...})
//	// msg.Code == "EXP001"
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	for _, sm := range sentinelMessages {
		if errors.Is(err, sm.target) {
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

// FormatUserError creates a formatted error string for display:
// "Message (Code: XXX). Action".
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}

// IsUserFacing reports whether err maps to a specific message rather than
// the ERR000 fallback.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	return MapError(err).Code != defaultMessage.Code
}

// UserError pairs a technical error, kept for logging, with its user message.
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
