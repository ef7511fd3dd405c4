package transform

import (
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/jask/bankfeed/internal/identity"
)

// Canonical column names every transform query must project. The key column
// name is configurable per bank account (Config.IDField).
const (
	FieldDate             = "date"
	FieldTitle            = "title"
	FieldType             = "type"
	FieldSpendingAmount   = "spending_amount"
	FieldSpendingCurrency = "spending_currency"
	FieldAccountAmount    = "account_amount"
	FieldAccountCurrency  = "account_currency"
	FieldCountry          = "country"
	FieldCity             = "city"
	FieldNote             = "note"
)

// Transaction types accepted by the canonical schema.
const (
	TypeCredit   = "credit"
	TypeDebit    = "debit"
	TypeTransfer = "transfer"
)

// CanonicalRow is one validated transform output row, ready for insertion.
// Amounts are minor units (cents); direction is carried by Type, so amounts
// are always non-negative.
type CanonicalRow struct {
	Key              identity.TransactionID
	Date             time.Time
	Title            string
	Type             string
	SpendingAmount   int64
	SpendingCurrency string
	AccountAmount    int64
	AccountCurrency  string
	Country          string
	City             string
	Note             string
}

var dateLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	time.RFC3339,
}

// validateRow checks one raw output row against the canonical schema.
// keyField names the column carrying the derived id.
func validateRow(raw map[string]string, keyField string, rowNum int) (CanonicalRow, *RowError) {
	fail := func(field, reason string) (CanonicalRow, *RowError) {
		return CanonicalRow{}, &RowError{Row: rowNum, Field: field, Reason: reason}
	}

	key := strings.TrimSpace(raw[keyField])
	if len(key) != identity.IDLength {
		return fail(keyField, "missing or malformed row key (transform must project the id column through)")
	}

	date, err := parseDate(raw[FieldDate])
	if err != nil {
		return fail(FieldDate, "unparseable date "+strconvQuote(raw[FieldDate]))
	}

	title := strings.TrimSpace(raw[FieldTitle])
	if title == "" {
		return fail(FieldTitle, "empty title")
	}

	typ := strings.ToLower(strings.TrimSpace(raw[FieldType]))
	switch typ {
	case TypeCredit, TypeDebit, TypeTransfer:
	default:
		return fail(FieldType, "unknown type "+strconvQuote(raw[FieldType]))
	}

	spendAmt, rerr := parseAmount(raw[FieldSpendingAmount], FieldSpendingAmount, rowNum)
	if rerr != nil {
		return CanonicalRow{}, rerr
	}
	acctAmt, rerr := parseAmount(raw[FieldAccountAmount], FieldAccountAmount, rowNum)
	if rerr != nil {
		return CanonicalRow{}, rerr
	}

	spendCur, ok := normalizeCurrency(raw[FieldSpendingCurrency])
	if !ok {
		return fail(FieldSpendingCurrency, "currency must be a 3-letter code")
	}
	acctCur, ok := normalizeCurrency(raw[FieldAccountCurrency])
	if !ok {
		return fail(FieldAccountCurrency, "currency must be a 3-letter code")
	}

	return CanonicalRow{
		Key:              identity.TransactionID(key),
		Date:             date,
		Title:            title,
		Type:             typ,
		SpendingAmount:   spendAmt,
		SpendingCurrency: spendCur,
		AccountAmount:    acctAmt,
		AccountCurrency:  acctCur,
		Country:          strings.TrimSpace(raw[FieldCountry]),
		City:             strings.TrimSpace(raw[FieldCity]),
		Note:             strings.TrimSpace(raw[FieldNote]),
	}, nil
}

func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	var err error
	for _, layout := range dateLayouts {
		var t time.Time
		if t, err = time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, err
}

// parseAmount converts a decimal string to non-negative minor units.
func parseAmount(s, field string, rowNum int) (int64, *RowError) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return 0, &RowError{Row: rowNum, Field: field, Reason: "unparseable amount " + strconvQuote(s)}
	}
	if d.IsNegative() {
		return 0, &RowError{Row: rowNum, Field: field, Reason: "amount must be non-negative (direction belongs in type)"}
	}
	return d.Shift(2).Round(0).IntPart(), nil
}

func normalizeCurrency(s string) (string, bool) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if len(s) != 3 {
		return "", false
	}
	for _, r := range s {
		if r < 'A' || r > 'Z' {
			return "", false
		}
	}
	return s, true
}

func strconvQuote(s string) string {
	if len(s) > 40 {
		s = s[:40] + "..."
	}
	return strconv.Quote(s)
}
