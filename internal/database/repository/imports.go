package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// ImportRepo handles import aggregates.
type ImportRepo struct {
	db *sql.DB
}

func NewImportRepo(db *sql.DB) *ImportRepo { return &ImportRepo{db: db} }

func (r *ImportRepo) Create(ctx context.Context, imp Import) error {
	_, err := r.db.ExecContext(ctx, `
	INSERT INTO imports(id, user_id, bank_account_id, status, file_count,
	 imported_file_count, imported_transaction_count, created_at)
	VALUES(?, ?, ?, ?, 0, 0, 0, CURRENT_TIMESTAMP);
	`, imp.ID, imp.UserID, imp.BankAccountID, imp.Status)
	return err
}

// Get returns the import or nil when missing.
func (r *ImportRepo) Get(ctx context.Context, id string) (*Import, error) {
	row := r.db.QueryRowContext(ctx, `
	SELECT id, user_id, bank_account_id, status, file_count, imported_file_count,
	       imported_transaction_count, created_at, success_at
	FROM imports WHERE id = ?`, id)

	var imp Import
	var successAt sql.NullTime
	if err := row.Scan(&imp.ID, &imp.UserID, &imp.BankAccountID, &imp.Status,
		&imp.FileCount, &imp.ImportedFileCount, &imp.ImportedTransactionCount,
		&imp.CreatedAt, &successAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	if successAt.Valid {
		imp.SuccessAt = &successAt.Time
	}
	return &imp, nil
}

// Transition moves the import from one status to another. The update is
// guarded on the current status so concurrent writers cannot race past the
// state machine; a rejected move returns *TransitionError.
func (r *ImportRepo) Transition(ctx context.Context, id string, from, to ImportStatus) error {
	if !from.CanTransition(to) {
		return &TransitionError{Entity: "import", ID: id, From: string(from), To: string(to)}
	}
	res, err := r.db.ExecContext(ctx,
		`UPDATE imports SET status = ? WHERE id = ? AND status = ?`, to, id, from)
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
			return fmt.Errorf("import %s vanished during transition", id)
		}
		return &TransitionError{Entity: "import", ID: id, From: string(cur.Status), To: string(to)}
	}
	return nil
}

// AddFiles adjusts file_count by delta (attach or detach).
func (r *ImportRepo) AddFiles(ctx context.Context, id string, delta int) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE imports SET file_count = file_count + ? WHERE id = ?`, delta, id)
	return err
}

// ApplyFileOutcome atomically folds one file's result into the aggregates.
// fileDelta is +1 when a file reached imported, -1 when its contribution is
// rolled back for a retry; txDelta moves imported_transaction_count likewise.
func (r *ImportRepo) ApplyFileOutcome(ctx context.Context, id string, fileDelta, txDelta int) error {
	_, err := r.db.ExecContext(ctx, `
	UPDATE imports SET
	 imported_file_count = imported_file_count + ?,
	 imported_transaction_count = imported_transaction_count + ?
	WHERE id = ?`, fileDelta, txDelta, id)
	return err
}

// SetCompleted marks the import completed and stamps success_at.
func (r *ImportRepo) SetCompleted(ctx context.Context, id string, at time.Time) error {
	if err := r.Transition(ctx, id, ImportProcessing, ImportCompleted); err != nil {
		return err
	}
	_, err := r.db.ExecContext(ctx,
		`UPDATE imports SET success_at = ? WHERE id = ?`, at.UTC(), id)
	return err
}
