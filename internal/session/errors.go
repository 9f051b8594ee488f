package session

import "errors"

// Error taxonomy shared by the index, parser, CLI and TUI layers.
// Callers wrap these with context and match them with errors.Is.
var (
	// ErrIO is a filesystem failure (cache dir, state file, session file).
	ErrIO = errors.New("io error")

	// ErrSchema is a failure opening, creating or migrating the index.
	ErrSchema = errors.New("index schema error")

	// ErrParse is a malformed or partially written session file.
	// Always non-fatal to indexing.
	ErrParse = errors.New("session parse error")

	// ErrNotFound is an unknown session id.
	ErrNotFound = errors.New("session not found")

	// ErrInvalidInput is a bad query or time filter.
	ErrInvalidInput = errors.New("invalid input")

	// ErrCoordinator is abnormal termination of the background indexer.
	ErrCoordinator = errors.New("indexer stopped unexpectedly")
)
