package journals

import (
	"encoding/hex"
	"strconv"
	"strings"

	"golang.org/x/crypto/blake2b"
)

// fingerprint hashes the normalized posting payload so retried requests can be
// matched against the one that first claimed an idempotency key.
func fingerprint(in PostingInput, currency, rate string) string {
	var b strings.Builder
	b.WriteString(in.TenantID)
	b.WriteByte('|')
	b.WriteString(in.Date.Format(dateLayout))
	b.WriteByte('|')
	b.WriteString(in.Description)
	b.WriteByte('|')
	b.WriteString(in.Reference)
	b.WriteByte('|')
	b.WriteString(currency)
	b.WriteByte('|')
	b.WriteString(rate)
	for _, line := range in.Lines {
		b.WriteByte('\n')
		b.WriteString(strconv.FormatInt(line.AccountID, 10))
		b.WriteByte('|')
		b.WriteString(line.Debit.StringFixed(2))
		b.WriteByte('|')
		b.WriteString(line.Credit.StringFixed(2))
		b.WriteByte('|')
		b.WriteString(line.Description)
	}
	sum := blake2b.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}
