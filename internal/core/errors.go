package core

import "errors"

// Pipeline failures. Stages wrap these with context; match with errors.Is.
// Values that fail numeric coercion are not errors: they become null and are
// counted in the ValidationReport.
var (
	// ErrUnsupportedFormat means the source is neither Excel nor CSV.
	ErrUnsupportedFormat = errors.New("unsupported format")

	// ErrFileRead means the source could not be opened or parsed.
	ErrFileRead = errors.New("file read error")

	// ErrEmptyFile means the source has no header row or no data rows.
	// It is always wrapped together with ErrFileRead.
	ErrEmptyFile = errors.New("empty file")

	// ErrFileTooLarge means the source exceeds MaxFileSize.
	// It is always wrapped together with ErrFileRead.
	ErrFileTooLarge = errors.New("file too large")

	// ErrSchemaMismatch means a table's columns disagree with the column condition.
	ErrSchemaMismatch = errors.New("schema mismatch")

	// ErrTableConflict means an existing destination table differs from the
	// column condition. It is always wrapped together with ErrSchemaMismatch.
	ErrTableConflict = errors.New("existing table differs")

	// ErrConnection means the destination could not be opened or a commit failed.
	ErrConnection = errors.New("connection error")

	// ErrStoreLocked means another process holds the database file.
	// It is always wrapped together with ErrConnection.
	ErrStoreLocked = errors.New("store locked")

	// ErrUnknownJob means no job is registered under the requested name.
	ErrUnknownJob = errors.New("unknown job")

	// ErrUnknownTable means no job or derived table writes the requested table.
	ErrUnknownTable = errors.New("unknown table")
)
