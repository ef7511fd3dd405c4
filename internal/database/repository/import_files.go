package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// ImportFileRepo handles uploaded files and their lifecycle.
type ImportFileRepo struct {
	db *sql.DB
}

func NewImportFileRepo(db *sql.DB) *ImportFileRepo { return &ImportFileRepo{db: db} }

func (r *ImportFileRepo) Create(ctx context.Context, f ImportFile) error {
	_, err := r.db.ExecContext(ctx, `
	INSERT INTO import_files(id, url, status, transaction_count, imported_transaction_count, created_at, updated_at)
	VALUES(?, ?, ?, 0, 0, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP);
	`, f.ID, f.URL, f.Status)
	return err
}

// Get returns the file or nil when missing.
func (r *ImportFileRepo) Get(ctx context.Context, id string) (*ImportFile, error) {
	row := r.db.QueryRowContext(ctx, `
	SELECT id, import_id, url, status, transaction_count, imported_transaction_count,
	       error, imported_at, created_at, updated_at
	FROM import_files WHERE id = ?`, id)
	f, err := scanImportFile(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &f, nil
}

func (r *ImportFileRepo) ListByImport(ctx context.Context, importID string) ([]ImportFile, error) {
	rows, err := r.db.QueryContext(ctx, `
	SELECT id, import_id, url, status, transaction_count, imported_transaction_count,
	       error, imported_at, created_at, updated_at
	FROM import_files WHERE import_id = ? ORDER BY created_at, id`, importID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ImportFile
	for rows.Next() {
		f, err := scanImportFile(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// Attach links an unattached file to an import. Returns false when the file
// is already attached elsewhere.
func (r *ImportFileRepo) Attach(ctx context.Context, fileID, importID string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
	UPDATE import_files SET import_id = ?, updated_at = CURRENT_TIMESTAMP
	WHERE id = ? AND import_id IS NULL`, importID, fileID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// Transition moves the file between lifecycle states, guarded on the
// current status.
func (r *ImportFileRepo) Transition(ctx context.Context, id string, from, to FileStatus) error {
	if !from.CanTransition(to) {
		return &TransitionError{Entity: "import file", ID: id, From: string(from), To: string(to)}
	}
	res, err := r.db.ExecContext(ctx, `
	UPDATE import_files SET status = ?, updated_at = CURRENT_TIMESTAMP
	WHERE id = ? AND status = ?`, to, id, from)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		cur, err := r.Get(ctx, id)
		if err != nil {
			return err
		}
		if cur == nil {
			return fmt.Errorf("import file %s vanished during transition", id)
		}
		return &TransitionError{Entity: "import file", ID: id, From: string(cur.Status), To: string(to)}
	}
	return nil
}

// SetParseResult records the transform outcome: parsed with the produced row
// count, or failed with the error message.
func (r *ImportFileRepo) SetParseResult(ctx context.Context, id string, to FileStatus, txCount int, errMsg *string) error {
	if err := r.Transition(ctx, id, FileParsing, to); err != nil {
		return err
	}
	_, err := r.db.ExecContext(ctx, `
	UPDATE import_files SET transaction_count = ?, error = ?, updated_at = CURRENT_TIMESTAMP
	WHERE id = ?`, txCount, errMsg, id)
	return err
}

// SetImportResult records the creation outcome and stamps imported_at.
func (r *ImportFileRepo) SetImportResult(ctx context.Context, id string, importedCount int, at time.Time) error {
	if err := r.Transition(ctx, id, FileParsed, FileImported); err != nil {
		return err
	}
	_, err := r.db.ExecContext(ctx, `
	UPDATE import_files SET imported_transaction_count = ?, imported_at = ?, updated_at = CURRENT_TIMESTAMP
	WHERE id = ?`, importedCount, at.UTC(), id)
	return err
}

// Reset returns the file to uploaded and clears its counts (explicit retry).
func (r *ImportFileRepo) Reset(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `
	UPDATE import_files SET status = ?, transaction_count = 0,
	 imported_transaction_count = 0, error = NULL, imported_at = NULL,
	 updated_at = CURRENT_TIMESTAMP
	WHERE id = ?`, FileUploaded, id)
	return err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanImportFile(row scanner) (ImportFile, error) {
	var f ImportFile
	var importID, errMsg sql.NullString
	var importedAt sql.NullTime
	if err := row.Scan(&f.ID, &importID, &f.URL, &f.Status, &f.TransactionCount,
		&f.ImportedTransactionCount, &errMsg, &importedAt, &f.CreatedAt, &f.UpdatedAt); err != nil {
		return ImportFile{}, err
	}
	if importID.Valid {
		f.ImportID = &importID.String
	}
	if errMsg.Valid {
		f.Error = &errMsg.String
	}
	if importedAt.Valid {
		f.ImportedAt = &importedAt.Time
	}
	return f, nil
}
