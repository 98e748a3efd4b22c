package convert

import (
	"fmt"
	"regexp"
	"strconv"
	"time"
)

// datePrefix matches the YYYY-MM-DD prefix of an entry date. The API emits
// strings like "2025-09-15T00:00:00" that must be interpreted as local
// wall-clock midnight in the bank's timezone; any embedded time or offset
// text is ignored.
var datePrefix = regexp.MustCompile(`^(\d{4})-(\d{2})-(\d{2})`)

// fallbackLayouts are tried, in order, when the prefix pattern does not
// match. Best-effort recovery for malformed dates rather than failing the
// whole record.
var fallbackLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"02.01.2006",
	"02/01/2006",
}

// ParseEntryDate parses a statement entry date as a local calendar date at
// 00:00:00. Returns an error only when the generic fallback parsing fails
// as well.
func ParseEntryDate(dateString string) (time.Time, error) {
	if m := datePrefix.FindStringSubmatch(dateString); m != nil {
		year, _ := strconv.Atoi(m[1])
		month, _ := strconv.Atoi(m[2])
		day, _ := strconv.Atoi(m[3])
		return time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.Local), nil
	}

	for _, layout := range fallbackLayouts {
		if t, err := time.ParseInLocation(layout, dateString, time.Local); err == nil {
			return t, nil
		}
	}

	return time.Time{}, fmt.Errorf("unparseable entry date %q", dateString)
}
