package editor

import "errors"

var (
	// ErrEmptyInput is returned by Generate when the document has no text.
	ErrEmptyInput = &EmptyInputError{}

	// ErrCancelled marks a generation that was stopped or superseded. Its
	// late tokens and results are dropped.
	ErrCancelled = errors.New("editor: generation cancelled")

	// ErrReadOnly rejects user edits while a generation is typing into the
	// document.
	ErrReadOnly = errors.New("editor: document is read-only while generating")

	// ErrClosed is returned once the Orchestrator loop has exited.
	ErrClosed = errors.New("editor: orchestrator closed")
)

// EmptyInputError rejects a generation request for an empty document.
type EmptyInputError struct{}

func (e *EmptyInputError) Error() string {
	return "editor: document is empty"
}

func (e *EmptyInputError) Is(target error) bool {
	_, ok := target.(*EmptyInputError)
	return ok
}
