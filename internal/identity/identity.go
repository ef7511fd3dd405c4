// Package identity derives stable, content-addressed transaction ids from
// raw source rows. The id is a pure function of the configured id columns'
// raw values, so re-importing the same file (or re-running a changed
// transform over it) always produces the same id for the same row.
package identity

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// IDLength is the hex width of a derived id (128 bits of a SHA-256 digest).
const IDLength = 32

// separator keeps column values unambiguous when concatenated:
// ("ab","c") and ("a","bc") must never collide.
const separator = "\x1f"

// TransactionID is a content-derived transaction identifier. It is only
// ever produced by DeriveID; nothing else should construct one.
type TransactionID string

func (id TransactionID) String() string { return string(id) }

// DeriveID hashes the raw values of the named columns, in order.
// It is deterministic across runs and platforms.
func DeriveID(raw map[string]string, columns []string) (TransactionID, error) {
	if len(columns) == 0 {
		return "", fmt.Errorf("derive id: no id columns configured")
	}
	parts := make([]string, 0, len(columns))
	for _, col := range columns {
		v, ok := raw[col]
		if !ok {
			return "", fmt.Errorf("derive id: column %q not present in source row", col)
		}
		parts = append(parts, v)
	}
	sum := sha256.Sum256([]byte(strings.Join(parts, separator)))
	return TransactionID(hex.EncodeToString(sum[:])[:IDLength]), nil
}
