package database

import (
	"database/sql"
	"fmt"
	"time"

	"stv-go/internal/database/migrations"
	"stv-go/internal/model"
	"stv-go/internal/stv"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// SQLiteJournal implements stv.Journal on SQLite.
type SQLiteJournal struct {
	db   *sql.DB
	path string
}

// NewSQLiteJournal opens the journal at path and migrates it to the latest
// schema. path can be a file path or ":memory:".
func NewSQLiteJournal(path string) (*SQLiteJournal, error) {
	db, err := OpenConnection(path)
	if err != nil {
		return nil, err
	}

	if err := migrations.MigrateUp(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating journal: %w", err)
	}
	if err := migrations.CheckDBMigrationStatus(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("journal schema check: %w", err)
	}

	return &SQLiteJournal{db: db, path: path}, nil
}

// OpenConnection opens and configures a SQLite connection.
// A single connection is kept so that ":memory:" databases are shared by all
// queries on the handle.
func OpenConnection(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}
	return db, nil
}

// CreateOperation inserts op and sets op.ID.
func (j *SQLiteJournal) CreateOperation(op *model.Operation) error {
	res, err := j.db.Exec(
		`INSERT INTO operations (started_at, operation, folder, parameters, status)
		 VALUES (?, ?, ?, ?, ?)`,
		op.StartedAt.UTC(), op.Operation, op.Folder, op.Parameters, op.Status,
	)
	if err != nil {
		return fmt.Errorf("inserting operation: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("reading operation id: %w", err)
	}
	op.ID = id
	return nil
}

// FinishOperation stores the final state of a persisted operation.
func (j *SQLiteJournal) FinishOperation(op *model.Operation) error {
	if !op.Persisted() {
		return fmt.Errorf("operation %q was never persisted", op.Operation)
	}

	finished := sql.NullTime{}
	if op.FinishedAt != nil {
		finished = sql.NullTime{Time: op.FinishedAt.UTC(), Valid: true}
	}
	res, err := j.db.Exec(
		`UPDATE operations
		 SET finished_at = ?, status = ?, files_affected = ?, bytes_affected = ?, error = ?
		 WHERE id = ?`,
		finished, op.Status, op.FilesAffected, op.BytesAffected, op.Error, op.ID,
	)
	if err != nil {
		return fmt.Errorf("finishing operation: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("finishing operation: no operation with id %d", op.ID)
	}
	return nil
}

// ListOperations returns the newest operations first.
func (j *SQLiteJournal) ListOperations(folder string, limit int) ([]*model.Operation, error) {
	const columns = `id, started_at, finished_at, operation, folder, parameters, status,
		files_affected, bytes_affected, error`

	var (
		rows *sql.Rows
		err  error
	)
	if folder == "" {
		rows, err = j.db.Query(`SELECT `+columns+` FROM operations ORDER BY id DESC LIMIT ?`, limit)
	} else {
		rows, err = j.db.Query(`SELECT `+columns+` FROM operations WHERE folder = ? ORDER BY id DESC LIMIT ?`, folder, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("listing operations: %w", err)
	}
	defer rows.Close()

	var ops []*model.Operation
	for rows.Next() {
		op, err := scanOperation(rows)
		if err != nil {
			return nil, err
		}
		ops = append(ops, op)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing operations: %w", err)
	}
	return ops, nil
}

func scanOperation(rows *sql.Rows) (*model.Operation, error) {
	var (
		op       model.Operation
		started  time.Time
		finished sql.NullTime
	)
	err := rows.Scan(&op.ID, &started, &finished, &op.Operation, &op.Folder, &op.Parameters,
		&op.Status, &op.FilesAffected, &op.BytesAffected, &op.Error)
	if err != nil {
		return nil, fmt.Errorf("scanning operation: %w", err)
	}
	op.StartedAt = started.UTC()
	if finished.Valid {
		t := finished.Time.UTC()
		op.FinishedAt = &t
	}
	return &op, nil
}

// Path returns the database path the journal was opened with.
func (j *SQLiteJournal) Path() string {
	return j.path
}

// BackupTo creates a complete copy of the database at destPath using VACUUM INTO.
// destPath must not exist.
func (j *SQLiteJournal) BackupTo(destPath string) error {
	if _, err := j.db.Exec("VACUUM INTO ?", destPath); err != nil {
		return fmt.Errorf("backing up database: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (j *SQLiteJournal) Close() error {
	if j.db != nil {
		return j.db.Close()
	}
	return nil
}

var _ stv.Journal = (*SQLiteJournal)(nil)
