package numbering

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DefaultSeries is the identifier prefix used when a caller does not name one
const DefaultSeries = "INV"

// identifier format: <PREFIX>-<YYYYMMDD>-<sequence, zero padded to 6 digits>
// e.g. INV-20260828-000042. Sequences above 999999 widen naturally; the
// padding keeps lexicographic and numeric order aligned for typical volumes.
const sequenceDigits = 6

// FormatIdentifier renders a sequence number as a tenant-facing identifier
func FormatIdentifier(series string, day time.Time, sequence int64) string {
	return fmt.Sprintf("%s-%s-%0*d", series, day.Format("20060102"), sequenceDigits, sequence)
}

// ParseSequence extracts the numeric sequence from an identifier. Used to
// seed the emergency counter from persisted reservations.
func ParseSequence(identifier string) (int64, error) {
	idx := strings.LastIndex(identifier, "-")
	if idx < 0 || idx == len(identifier)-1 {
		return 0, fmt.Errorf("malformed identifier %q", identifier)
	}
	seq, err := strconv.ParseInt(identifier[idx+1:], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("malformed identifier %q: %w", identifier, err)
	}
	return seq, nil
}

// SeriesPrefix returns the common prefix of all identifiers in a series on a
// given day, e.g. "INV-20260828-". Repositories use it for prefix scans.
func SeriesPrefix(series string, day time.Time) string {
	return series + "-" + day.Format("20060102") + "-"
}

// FallbackKey is the tenant-scoped counter key handed to the fallback
// authority, e.g. "tenant-a:INV:20260828". The adapter adds its own
// namespace prefix.
func FallbackKey(tenantID, series string, day time.Time) string {
	return fmt.Sprintf("%s:%s:%s", tenantID, series, day.Format("20060102"))
}
