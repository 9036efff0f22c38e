package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// RowKeys returns one stable key per ledger row. Identical rows are told
// apart by their occurrence number, so the keys survive reordering.
func RowKeys(l Ledger) []string {
	keys := make([]string, len(l))
	seen := make(map[string]int, len(l))
	for i, tx := range l {
		base := tx.Fingerprint()
		seen[base]++
		keys[i] = fmt.Sprintf("%s-%d", base, seen[base])
	}
	return keys
}

// Fingerprint is a short hash of the transaction's stored content. Equal
// transactions have equal fingerprints.
func (tx Transaction) Fingerprint() string {
	sum := sha256.Sum256([]byte(contentKey(tx)))
	return hex.EncodeToString(sum[:8])
}

func contentKey(tx Transaction) string {
	return strings.Join([]string{
		tx.Date.Format(DateLayout),
		string(tx.Category),
		tx.Subcategory,
		tx.Description,
		tx.Amount.String(),
		string(tx.PaidBy),
	}, "\x1f")
}
