package repository

import (
	"context"
	"database/sql"
)

// TransactionRepo handles persisted canonical transactions.
type TransactionRepo struct {
	db *sql.DB
}

func NewTransactionRepo(db *sql.DB) *TransactionRepo { return &TransactionRepo{db: db} }

// Insert writes one transaction. The content-derived id is the primary key
// and conflicts are silently ignored; the return value reports whether a
// row was actually created.
func (r *TransactionRepo) Insert(ctx context.Context, t Transaction) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
	INSERT OR IGNORE INTO transactions(
	 id, user_id, bank_account_id, import_file_id, date, title, type,
	 spending_amount, spending_currency, account_amount, account_currency,
	 home_amount, home_currency, country, city, note, created_at)
	VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP);
	`, t.ID, t.UserID, t.BankAccountID, t.ImportFileID, t.Date.UTC(), t.Title, t.Type,
		t.SpendingAmount, t.SpendingCurrency, t.AccountAmount, t.AccountCurrency,
		t.HomeAmount, t.HomeCurrency, t.Country, t.City, t.Note)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// Get returns the transaction or nil when missing.
func (r *TransactionRepo) Get(ctx context.Context, id string) (*Transaction, error) {
	row := r.db.QueryRowContext(ctx, `
	SELECT id, user_id, bank_account_id, import_file_id, date, title, type,
	       spending_amount, spending_currency, account_amount, account_currency,
	       home_amount, home_currency, country, city, note, created_at
	FROM transactions WHERE id = ?`, id)
	t, err := scanTransaction(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &t, nil
}

func (r *TransactionRepo) ListByFile(ctx context.Context, importFileID string) ([]Transaction, error) {
	rows, err := r.db.QueryContext(ctx, `
	SELECT id, user_id, bank_account_id, import_file_id, date, title, type,
	       spending_amount, spending_currency, account_amount, account_currency,
	       home_amount, home_currency, country, city, note, created_at
	FROM transactions WHERE import_file_id = ? ORDER BY date, id`, importFileID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// DeleteByFile removes the transactions a file created. Used only by the
// explicit retry path so a re-processed file does not double count.
func (r *TransactionRepo) DeleteByFile(ctx context.Context, importFileID string) (int, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM transactions WHERE import_file_id = ?`, importFileID)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// CountByUser returns the user's total transaction count.
func (r *TransactionRepo) CountByUser(ctx context.Context, userID string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM transactions WHERE user_id = ?`, userID).Scan(&n)
	return n, err
}

func scanTransaction(row scanner) (Transaction, error) {
	var t Transaction
	var homeAmount sql.NullInt64
	var homeCurrency sql.NullString
	if err := row.Scan(&t.ID, &t.UserID, &t.BankAccountID, &t.ImportFileID, &t.Date,
		&t.Title, &t.Type, &t.SpendingAmount, &t.SpendingCurrency,
		&t.AccountAmount, &t.AccountCurrency, &homeAmount, &homeCurrency,
		&t.Country, &t.City, &t.Note, &t.CreatedAt); err != nil {
		return Transaction{}, err
	}
	if homeAmount.Valid {
		t.HomeAmount = &homeAmount.Int64
	}
	if homeCurrency.Valid {
		t.HomeCurrency = &homeCurrency.String
	}
	return t, nil
}
