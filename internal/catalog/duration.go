package catalog

import (
	"fmt"
	"regexp"
	"strconv"
)

var isoDurationRE = regexp.MustCompile(`^P(?:(\d+)D)?(?:T(?:(\d+)H)?(?:(\d+)M)?(?:(\d+)S)?)?$`)

// ParseISODuration converts an ISO-8601 duration like "PT1H2M3S" to seconds.
// Callers deciding short-video filtering must treat an error as "duration
// unknown" and keep the video rather than dropping it.
func ParseISODuration(raw string) (int, error) {
	if raw == "" {
		return 0, fmt.Errorf("empty duration")
	}
	m := isoDurationRE.FindStringSubmatch(raw)
	if m == nil {
		return 0, fmt.Errorf("malformed duration %q", raw)
	}
	days := atoiDefault(m[1])
	hours := atoiDefault(m[2])
	minutes := atoiDefault(m[3])
	seconds := atoiDefault(m[4])
	total := ((days*24+hours)*60+minutes)*60 + seconds
	if total == 0 && m[1] == "" && m[2] == "" && m[3] == "" && m[4] == "" {
		return 0, fmt.Errorf("duration %q has no components", raw)
	}
	return total, nil
}

func atoiDefault(s string) int {
	if s == "" {
		return 0
	}
	n, _ := strconv.Atoi(s)
	return n
}
