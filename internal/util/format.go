package util //nolint:revive // package name util hosts shared formatting helpers used across HTTP templates

import "time"

// eventDateLayouts are the timestamp shapes Wild Apricot emits for event
// start dates.
var eventDateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// ReformatEventDate rewrites an API timestamp for display. Formatting is best
// effort: when the value does not parse, the original string is returned
// unchanged with ok=false so the caller can log and move on. It never fails.
func ReformatEventDate(value string) (string, bool) {
	for _, layout := range eventDateLayouts {
		t, err := time.Parse(layout, value)
		if err != nil {
			continue
		}
		return t.Format("Mon Jan 2, 2006 3:04 PM"), true
	}
	return value, false
}
