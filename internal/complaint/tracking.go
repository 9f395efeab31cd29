package complaint

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

var (
	trackingPattern       = regexp.MustCompile(`^RA-\d{4}-\d{4}$`)
	legacyTrackingPattern = regexp.MustCompile(`^RA-\d{4}-\d{2}$`)
)

// formatTrackingNumber builds RA-<year>-<1000..9999>.
func formatTrackingNumber(now time.Time, intn func(int) int) string {
	return fmt.Sprintf("RA-%04d-%04d", now.Year(), 1000+intn(9000))
}

// NormalizeTrackingNumber trims and upper-cases input and reports whether it
// matches either the current RA-YYYY-NNNN form or the older RA-YYMM-NN one.
func NormalizeTrackingNumber(s string) (string, bool) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if trackingPattern.MatchString(s) || legacyTrackingPattern.MatchString(s) {
		return s, true
	}
	return "", false
}
