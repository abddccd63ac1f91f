package journals

import (
	"fmt"
	"strconv"
	"strings"
)

const entryNumberPrefix = "JE-"

// FormatEntryNumber renders a sequence value as JE-NNNNNN.
func FormatEntryNumber(seq int64) string {
	return fmt.Sprintf("%s%06d", entryNumberPrefix, seq)
}

// ParseEntryNumber extracts the numeric suffix of a JE-NNNNNN number.
func ParseEntryNumber(number string) (int64, error) {
	if !strings.HasPrefix(number, entryNumberPrefix) {
		return 0, fmt.Errorf("accounting: malformed entry number %q", number)
	}
	seq, err := strconv.ParseInt(strings.TrimPrefix(number, entryNumberPrefix), 10, 64)
	if err != nil || seq <= 0 {
		return 0, fmt.Errorf("accounting: malformed entry number %q", number)
	}
	return seq, nil
}
