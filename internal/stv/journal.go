package stv

import (
	"fmt"

	"stv-go/internal/model"
)

// Journal records destructive operations so a user can see what was changed
// on disk and when.
type Journal interface {
	// CreateOperation inserts op and sets its ID.
	CreateOperation(op *model.Operation) error

	// FinishOperation stores the final status, counts and finish time of op.
	FinishOperation(op *model.Operation) error

	// ListOperations returns the newest operations first, at most limit of
	// them. A non-empty folder restricts the list to that folder.
	ListOperations(folder string, limit int) ([]*model.Operation, error)

	// BackupTo writes a consistent snapshot of the journal to path.
	BackupTo(path string) error

	Close() error
}

// History returns the most recent journaled operations, optionally for one folder.
func (s *Service) History(folder string, limit int) ([]*model.Operation, error) {
	if limit <= 0 {
		return nil, invalidArgument("limit must be positive", fmt.Sprint(limit), nil)
	}
	ops, err := s.journal.ListOperations(folder, limit)
	if err != nil {
		return nil, fmt.Errorf("listing operations: %w", err)
	}
	return ops, nil
}
