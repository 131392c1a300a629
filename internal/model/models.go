// Package model holds the records persisted by the operation journal.
package model

import "time"

// Operation statuses.
const (
	StatusRunning = "running"
	StatusSuccess = "success"
	StatusError   = "error"
)

// Operation is one journaled CLI action that changed files on disk or in a vault.
type Operation struct {
	ID            int64      // auto-increment, 0 until persisted
	StartedAt     time.Time  // UTC
	FinishedAt    *time.Time // nil while running
	Operation     string     // e.g. "discard", "prune-older"
	Folder        string     // absolute folder path, empty for vault-only operations
	Parameters    string     // human-readable arguments
	Status        string
	FilesAffected int64
	BytesAffected int64
	Error         string
}

// NewOperation returns an unpersisted running operation.
func NewOperation(operation, folder, parameters string, startedAt time.Time) *Operation {
	return &Operation{
		StartedAt:  startedAt.UTC(),
		Operation:  operation,
		Folder:     folder,
		Parameters: parameters,
		Status:     StatusRunning,
	}
}

// Persisted reports whether the operation has been saved to the journal.
func (op *Operation) Persisted() bool {
	return op.ID != 0
}

// Finish marks the operation done at t with the given outcome.
func (op *Operation) Finish(t time.Time, files, bytes int64, err error) {
	finished := t.UTC()
	op.FinishedAt = &finished
	op.FilesAffected = files
	op.BytesAffected = bytes
	if err != nil {
		op.Status = StatusError
		op.Error = err.Error()
		return
	}
	op.Status = StatusSuccess
}
