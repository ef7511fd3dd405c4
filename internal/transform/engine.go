// Package transform maps arbitrary bank CSV layouts onto the canonical
// transaction schema. Each file is loaded into a throwaway in-memory sqlite
// database and a per-bank-account SELECT is executed against it, so a buggy
// or hostile query can only ever see one file's data and can never touch the
// primary store.
package transform

import (
	"context"
	"database/sql"
	"encoding/csv"
	"fmt"
	"io"
	"regexp"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"

	"github.com/jask/bankfeed/internal/identity"
)

// DefaultIDField is the column under which the derived row key is exposed
// to the transform query when the bank account does not name one.
const DefaultIDField = "tx_key"

// Source is one raw tabular file.
type Source struct {
	Reader    io.Reader
	Delimiter rune
	HasHeader bool
}

// Config is the per-bank-account transform configuration.
type Config struct {
	// IDColumns are raw source column names whose values derive the row key.
	IDColumns []string
	// IDField is the column name carrying the derived key into the query.
	IDField string
	// Query is a single SELECT projecting the canonical column set.
	Query string
}

// Result is the outcome of one transform run.
type Result struct {
	Rows       []CanonicalRow
	RowErrors  []RowError
	SourceRows int
}

// Engine executes transforms. It holds no per-file state and is safe for
// concurrent use.
type Engine struct {
	log zerolog.Logger
}

func NewEngine(log zerolog.Logger) *Engine {
	return &Engine{log: log}
}

// Run loads src into an isolated relation, executes cfg.Query against it and
// validates the output. Row-scoped validation failures are collected in the
// result; a *TransformError means the whole file failed.
func (e *Engine) Run(ctx context.Context, src Source, cfg Config) (*Result, error) {
	if len(cfg.IDColumns) == 0 {
		return nil, &TransformError{Stage: "load", Err: fmt.Errorf("no id columns configured")}
	}
	idField := cfg.IDField
	if idField == "" {
		idField = DefaultIDField
	}

	columns, records, err := readCSV(src)
	if err != nil {
		return nil, &TransformError{Stage: "read", Err: err}
	}
	if err := guardQuery(cfg.Query); err != nil {
		return nil, &TransformError{Stage: "query", Err: err}
	}

	res := &Result{SourceRows: len(records)}
	if len(records) == 0 {
		return res, nil
	}

	db, err := openScratch()
	if err != nil {
		return nil, &TransformError{Stage: "load", Err: err}
	}
	defer db.Close()

	if err := loadSource(ctx, db, columns, records, cfg.IDColumns, idField); err != nil {
		return nil, &TransformError{Stage: "load", Err: err}
	}

	out, err := runQuery(ctx, db, cfg.Query)
	if err != nil {
		return nil, &TransformError{Stage: "query", Err: err}
	}

	for i, raw := range out {
		row, rerr := validateRow(raw, idField, i+1)
		if rerr != nil {
			res.RowErrors = append(res.RowErrors, *rerr)
			continue
		}
		res.Rows = append(res.Rows, row)
	}

	// Zero valid rows out of a non-empty file is a systemic
	// misconfiguration, not a row-level problem.
	if len(res.Rows) == 0 {
		return nil, &TransformError{
			Stage: "validate",
			Err:   fmt.Errorf("no valid rows from %d source rows (%d row errors)", res.SourceRows, len(res.RowErrors)),
		}
	}

	e.log.Debug().
		Int("source_rows", res.SourceRows).
		Int("valid_rows", len(res.Rows)).
		Int("row_errors", len(res.RowErrors)).
		Msg("transform complete")
	return res, nil
}

// readCSV parses the whole file and returns column names plus data rows.
// Without a header, columns are synthesized as col1..colN.
func readCSV(src Source) ([]string, [][]string, error) {
	r := csv.NewReader(src.Reader)
	if src.Delimiter != 0 {
		r.Comma = src.Delimiter
	}
	r.TrimLeadingSpace = true

	all, err := r.ReadAll()
	if err != nil {
		return nil, nil, fmt.Errorf("read csv: %w", err)
	}
	if len(all) == 0 {
		return nil, nil, nil
	}

	var columns []string
	records := all
	if src.HasHeader {
		for i, name := range all[0] {
			name = strings.TrimSpace(name)
			if name == "" {
				name = fmt.Sprintf("col%d", i+1)
			}
			columns = append(columns, name)
		}
		records = all[1:]
	} else {
		for i := range all[0] {
			columns = append(columns, fmt.Sprintf("col%d", i+1))
		}
	}

	seen := make(map[string]bool, len(columns))
	for _, c := range columns {
		if seen[c] {
			return nil, nil, fmt.Errorf("duplicate source column %q", c)
		}
		seen[c] = true
	}
	return columns, records, nil
}

// openScratch opens a private in-memory sqlite database on a single
// connection, so every statement sees the same memory store.
func openScratch() (*sql.DB, error) {
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("open scratch db: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(0)
	return db, nil
}

// loadSource creates the `source` table (all TEXT) and inserts every record
// together with its derived key.
func loadSource(ctx context.Context, db *sql.DB, columns []string, records [][]string, idColumns []string, idField string) error {
	for _, c := range columns {
		if c == idField {
			return fmt.Errorf("id field %q collides with a source column", idField)
		}
	}

	defs := make([]string, 0, len(columns)+1)
	for _, c := range columns {
		defs = append(defs, quoteIdent(c)+" TEXT")
	}
	defs = append(defs, quoteIdent(idField)+" TEXT")
	if _, err := db.ExecContext(ctx, "CREATE TABLE source ("+strings.Join(defs, ", ")+")"); err != nil {
		return fmt.Errorf("create source table: %w", err)
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(columns)+1), ", ")
	stmt, err := db.PrepareContext(ctx, "INSERT INTO source VALUES ("+placeholders+")")
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for n, rec := range records {
		if len(rec) != len(columns) {
			return fmt.Errorf("row %d: expected %d fields, got %d", n+1, len(columns), len(rec))
		}
		raw := make(map[string]string, len(columns))
		args := make([]any, 0, len(columns)+1)
		for i, c := range columns {
			raw[c] = rec[i]
			args = append(args, rec[i])
		}
		key, err := identity.DeriveID(raw, idColumns)
		if err != nil {
			return fmt.Errorf("row %d: %w", n+1, err)
		}
		args = append(args, key.String())
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return fmt.Errorf("row %d: insert: %w", n+1, err)
		}
	}

	// The user query runs after this point; nothing may write.
	if _, err := db.ExecContext(ctx, "PRAGMA query_only=ON"); err != nil {
		return fmt.Errorf("set query_only: %w", err)
	}
	return nil
}

var deniedKeyword = regexp.MustCompile(`(?i)\b(PRAGMA|ATTACH|DETACH|INSERT|UPDATE|DELETE|DROP|CREATE|ALTER|REPLACE|REINDEX|VACUUM)\b`)

// guardQuery enforces the statement allowlist: exactly one SELECT.
func guardQuery(q string) error {
	trimmed := strings.TrimSpace(q)
	trimmed = strings.TrimSuffix(trimmed, ";")
	if trimmed == "" {
		return fmt.Errorf("empty transform query")
	}
	if strings.Contains(trimmed, ";") {
		return fmt.Errorf("transform query must be a single statement")
	}
	first := strings.ToUpper(strings.Fields(trimmed)[0])
	if first != "SELECT" && first != "WITH" {
		return fmt.Errorf("transform query must be a SELECT, got %s", first)
	}
	if m := deniedKeyword.FindString(trimmed); m != "" {
		return fmt.Errorf("transform query contains forbidden keyword %s", strings.ToUpper(m))
	}
	return nil
}

// runQuery executes the transform and stringifies every output cell, since
// user SQL may project expressions of any sqlite type.
func runQuery(ctx context.Context, db *sql.DB, query string) ([]map[string]string, error) {
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("execute transform: %w", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("transform output columns: %w", err)
	}

	var out []map[string]string
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan transform output: %w", err)
		}
		m := make(map[string]string, len(cols))
		for i, c := range cols {
			m[c] = stringifyValue(vals[i])
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read transform output: %w", err)
	}
	return out, nil
}

func stringifyValue(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case []byte:
		return string(t)
	case string:
		return t
	case time.Time:
		return t.UTC().Format("2006-01-02 15:04:05")
	case float64:
		return strings.TrimSuffix(strings.TrimRight(fmt.Sprintf("%.6f", t), "0"), ".")
	default:
		return fmt.Sprintf("%v", t)
	}
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
