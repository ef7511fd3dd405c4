package repository

import "time"

// BankAccount represents a connected bank account and its transform
// configuration. The configuration is authored by an account administrator
// and consumed read-only by the transformation engine.
type BankAccount struct {
	ID        string
	UserID    string
	Name      string
	Config    TransformConfig
	CreatedAt time.Time
	UpdatedAt time.Time
}

// TransformConfig governs how one bank's raw export rows become canonical
// transactions.
type TransformConfig struct {
	Delimiter  string // single rune, e.g. "," or ";"
	HasHeader  bool
	IDColumns  []string // raw source columns deriving the row key, in order
	IDField    string   // column name exposing the derived key to the query
	Query      string   // single SELECT projecting the canonical columns
	SampleData string   // optional raw sample for dry runs
}

// Import represents one logical import of 1..N files.
type Import struct {
	ID                       string
	UserID                   string
	BankAccountID            string
	Status                   ImportStatus
	FileCount                int
	ImportedFileCount        int
	ImportedTransactionCount int
	CreatedAt                time.Time
	SuccessAt                *time.Time
}

// ImportFile represents one uploaded file and its parse/import outcome.
type ImportFile struct {
	ID                       string
	ImportID                 *string
	URL                      string
	Status                   FileStatus
	TransactionCount         int
	ImportedTransactionCount int
	Error                    *string
	ImportedAt               *time.Time
	CreatedAt                time.Time
	UpdatedAt                time.Time
}

// Transaction represents a persisted canonical transaction. ID is the
// content-derived key, so re-importing the same raw row is a silent no-op.
type Transaction struct {
	ID               string
	UserID           string
	BankAccountID    string
	ImportFileID     string
	Date             time.Time
	Title            string
	Type             string
	SpendingAmount   int64
	SpendingCurrency string
	AccountAmount    int64
	AccountCurrency  string
	HomeAmount       *int64
	HomeCurrency     *string
	Country          string
	City             string
	Note             string
	CreatedAt        time.Time
}
