package core

// # Error Codes Reference
//
// Failures are mapped to user-facing messages with a code that can be quoted
// when reporting a problem. Matching uses errors.Is only: the error text
// carries user paths and column names and is never inspected.
//
// # File Errors (FILE001-FILE099)
//
//	FILE001 - Unsupported format: only Excel (.xlsx, .xlsm) and CSV are read
//	FILE002 - Unreadable file: the source could not be opened or parsed
//	FILE003 - Empty file: no header or no data rows
//	FILE004 - File too large: the source exceeds the size limit
//
// # Validation Errors (VAL001-VAL099)
//
//	VAL001 - Schema mismatch: columns disagree with the declared condition
//	VAL002 - Existing table differs: destination columns or types differ
//
// # Store Errors (DB001-DB099)
//
//	DB001 - Connection failed: the store could not be opened or a commit failed
//	DB002 - Store locked: another process holds the DuckDB file
//	DB003 - Timeout: the operation exceeded its deadline
//
// # Run Errors (RUN001-RUN099)
//
//	RUN001 - Unknown job
//	RUN002 - Unknown table
//	RUN003 - System busy: all run slots are occupied
//	RUN004 - Cancelled
//
// # Default Error (ERR000)
//
//	ERR000 - Unknown error: check the application log for the technical error

import (
	"context"
	"errors"
	"fmt"
)

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string `json:"message"` // What happened
	Action  string `json:"action"`  // What to do about it
	Code    string `json:"code"`    // Error code for support reference
}

// errorTarget maps a sentinel error to its user message.
type errorTarget struct {
	target error
	msg    UserMessage
}

// Narrow sentinels come before the broad ones they are wrapped with
// (an empty file is also ErrFileRead).
var errorTargets = []errorTarget{
	{
		target: ErrEmptyFile,
		msg: UserMessage{
			Message: "The source file has no header row or no data rows",
			Action:  "Check that the sheet or file contains a header and at least one row",
			Code:    "FILE003",
		},
	},
	{
		target: ErrFileTooLarge,
		msg: UserMessage{
			Message: "The source file exceeds the maximum size",
			Action:  "Split the file into smaller files or raise RUN_MAX_FILE_SIZE",
			Code:    "FILE004",
		},
	},
	{
		target: ErrUnsupportedFormat,
		msg: UserMessage{
			Message: "Unsupported file format",
			Action:  "Provide an Excel (.xlsx, .xlsm) or CSV file",
			Code:    "FILE001",
		},
	},
	{
		target: ErrFileRead,
		msg: UserMessage{
			Message: "The source file could not be read",
			Action:  "Check that the file exists and is a valid workbook or CSV",
			Code:    "FILE002",
		},
	},
	{
		target: ErrTableConflict,
		msg: UserMessage{
			Message: "The destination table's columns differ from the job's columns",
			Action:  "Update the job's columns or drop the destination table",
			Code:    "VAL002",
		},
	},
	{
		target: ErrSchemaMismatch,
		msg: UserMessage{
			Message: "The file's columns do not match the job's columns",
			Action:  "Compare the file header with the job's column list",
			Code:    "VAL001",
		},
	},
	{
		target: ErrStoreLocked,
		msg: UserMessage{
			Message: "The database file is locked by another process",
			Action:  "Close other programs using the database file and try again",
			Code:    "DB002",
		},
	},
	{
		target: ErrConnection,
		msg: UserMessage{
			Message: "Unable to write to the database",
			Action:  "Check the database path or URL and try again",
			Code:    "DB001",
		},
	},
	{
		target: context.DeadlineExceeded,
		msg: UserMessage{
			Message: "Operation timed out",
			Action:  "Try again or raise RUN_TIMEOUT",
			Code:    "DB003",
		},
	},
	{
		target: ErrUnknownJob,
		msg: UserMessage{
			Message: "Unknown job",
			Action:  "Run the jobs command to list configured jobs",
			Code:    "RUN001",
		},
	},
	{
		target: ErrUnknownTable,
		msg: UserMessage{
			Message: "Unknown or not yet loaded table",
			Action:  "Run the job that loads the table first",
			Code:    "RUN002",
		},
	},
	{
		target: ErrTooManyRuns,
		msg: UserMessage{
			Message: "Another run is in progress",
			Action:  "Please wait a moment and try again",
			Code:    "RUN003",
		},
	},
	{
		target: context.Canceled,
		msg: UserMessage{
			Message: "The run was cancelled",
			Action:  "Start the run again when ready",
			Code:    "RUN004",
		},
	},
}

// defaultMessage is returned when nothing matches (ERR000).
var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or check the application log",
	Code:    "ERR000",
}

// MapError converts a technical error to a user-friendly message.
// Returns the zero UserMessage for a nil error.
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	for _, et := range errorTargets {
		if errors.Is(err, et.target) {
			return et.msg
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

// IsUserFacing reports whether err maps to a specific user message.
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
