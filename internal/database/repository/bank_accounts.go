package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"
)

// BankAccountRepo handles connected bank accounts.
type BankAccountRepo struct {
	db *sql.DB
}

func NewBankAccountRepo(db *sql.DB) *BankAccountRepo {
	return &BankAccountRepo{db: db}
}

// Validate checks the invariants a transform configuration must hold before
// it can drive an import.
func (c TransformConfig) Validate() error {
	if len(c.IDColumns) == 0 {
		return fmt.Errorf("transform config: id columns must be non-empty")
	}
	for _, col := range c.IDColumns {
		if strings.TrimSpace(col) == "" {
			return fmt.Errorf("transform config: blank id column name")
		}
	}
	if strings.TrimSpace(c.Query) == "" {
		return fmt.Errorf("transform config: empty transform query")
	}
	if c.Delimiter != "" && utf8.RuneCountInString(c.Delimiter) != 1 {
		return fmt.Errorf("transform config: delimiter must be a single character, got %q", c.Delimiter)
	}
	return nil
}

// DelimiterRune returns the configured delimiter, defaulting to comma.
func (c TransformConfig) DelimiterRune() rune {
	if c.Delimiter == "" {
		return ','
	}
	r, _ := utf8.DecodeRuneInString(c.Delimiter)
	return r
}

func (r *BankAccountRepo) Upsert(ctx context.Context, a BankAccount) error {
	if err := a.Config.Validate(); err != nil {
		return err
	}
	idCols, err := json.Marshal(a.Config.IDColumns)
	if err != nil {
		return fmt.Errorf("marshal id columns: %w", err)
	}
	_, err = r.db.ExecContext(ctx, `
	INSERT INTO bank_accounts(id, user_id, name, delimiter, has_header, id_columns, id_field, transform_query, sample_data, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
	ON CONFLICT(id) DO UPDATE SET
	 name=excluded.name,
	 delimiter=excluded.delimiter,
	 has_header=excluded.has_header,
	 id_columns=excluded.id_columns,
	 id_field=excluded.id_field,
	 transform_query=excluded.transform_query,
	 sample_data=excluded.sample_data,
	 updated_at=CURRENT_TIMESTAMP;
	`, a.ID, a.UserID, a.Name, a.Config.Delimiter, a.Config.HasHeader, string(idCols),
		a.Config.IDField, a.Config.Query, a.Config.SampleData)
	return err
}

// Get returns the account or nil when missing.
func (r *BankAccountRepo) Get(ctx context.Context, id string) (*BankAccount, error) {
	row := r.db.QueryRowContext(ctx, `
	SELECT id, user_id, name, delimiter, has_header, id_columns, id_field, transform_query,
	       COALESCE(sample_data, ''), created_at, updated_at
	FROM bank_accounts WHERE id = ?`, id)

	var a BankAccount
	var idCols string
	if err := row.Scan(&a.ID, &a.UserID, &a.Name, &a.Config.Delimiter, &a.Config.HasHeader,
		&idCols, &a.Config.IDField, &a.Config.Query, &a.Config.SampleData,
		&a.CreatedAt, &a.UpdatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	if err := json.Unmarshal([]byte(idCols), &a.Config.IDColumns); err != nil {
		return nil, fmt.Errorf("unmarshal id columns for account %s: %w", id, err)
	}
	return &a, nil
}

func (r *BankAccountRepo) List(ctx context.Context, userID string) ([]BankAccount, error) {
	rows, err := r.db.QueryContext(ctx, `
	SELECT id, user_id, name, delimiter, has_header, id_columns, id_field, transform_query,
	       COALESCE(sample_data, ''), created_at, updated_at
	FROM bank_accounts WHERE user_id = ? ORDER BY name`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []BankAccount
	for rows.Next() {
		var a BankAccount
		var idCols string
		if err := rows.Scan(&a.ID, &a.UserID, &a.Name, &a.Config.Delimiter, &a.Config.HasHeader,
			&idCols, &a.Config.IDField, &a.Config.Query, &a.Config.SampleData,
			&a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(idCols), &a.Config.IDColumns); err != nil {
			return nil, fmt.Errorf("unmarshal id columns for account %s: %w", a.ID, err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
