package repository

import "fmt"

// ImportStatus is the closed set of import lifecycle states.
type ImportStatus string

const (
	ImportDraft      ImportStatus = "draft"
	ImportPending    ImportStatus = "pending"
	ImportProcessing ImportStatus = "processing"
	ImportCompleted  ImportStatus = "completed"
	ImportFailed     ImportStatus = "failed"
)

var importTransitions = map[ImportStatus][]ImportStatus{
	ImportDraft:      {ImportPending},
	ImportPending:    {ImportProcessing},
	ImportProcessing: {ImportCompleted, ImportFailed},
	// A failed import re-enters processing when one of its files is retried.
	ImportFailed: {ImportProcessing},
}

// CanTransition reports whether s -> to is a legal transition.
func (s ImportStatus) CanTransition(to ImportStatus) bool {
	for _, next := range importTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// Terminal reports whether the import has reached a final state.
func (s ImportStatus) Terminal() bool {
	return s == ImportCompleted || s == ImportFailed
}

// FileStatus is the closed set of import-file lifecycle states.
type FileStatus string

const (
	FileUploaded FileStatus = "uploaded"
	FileParsing  FileStatus = "parsing"
	FileParsed   FileStatus = "parsed"
	FileImported FileStatus = "imported"
	FileFailed   FileStatus = "failed"
)

var fileTransitions = map[FileStatus][]FileStatus{
	FileUploaded: {FileParsing},
	FileParsing:  {FileParsed, FileFailed},
	FileParsed:   {FileImported},
}

// CanTransition reports whether s -> to is a legal transition. A reset to
// uploaded (explicit retry) is always allowed.
func (s FileStatus) CanTransition(to FileStatus) bool {
	if to == FileUploaded {
		return true
	}
	for _, next := range fileTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// Terminal reports whether the file has reached a final state.
func (s FileStatus) Terminal() bool {
	return s == FileImported || s == FileFailed
}

// TransitionError reports a rejected state transition.
type TransitionError struct {
	Entity string
	ID     string
	From   string
	To     string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s %s: illegal transition %s -> %s", e.Entity, e.ID, e.From, e.To)
}
