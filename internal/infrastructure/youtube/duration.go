package youtube

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseISODuration converts an ISO 8601 duration such as "PT1H2M10S" into
// seconds.
func ParseISODuration(duration string) (int, error) {
	raw := strings.TrimSpace(duration)
	rest, ok := strings.CutPrefix(raw, "PT")
	if !ok {
		rest, ok = strings.CutPrefix(raw, "P")
		if !ok {
			return 0, fmt.Errorf("invalid ISO 8601 duration %q", duration)
		}
		rest = strings.TrimPrefix(rest, "T")
	}
	if rest == "" {
		return 0, fmt.Errorf("invalid ISO 8601 duration %q", duration)
	}

	seconds := 0
	for _, part := range []struct {
		suffix string
		factor int
	}{{"H", 3600}, {"M", 60}, {"S", 1}} {
		before, after, found := strings.Cut(rest, part.suffix)
		if !found {
			continue
		}
		n, err := strconv.Atoi(before)
		if err != nil {
			return 0, fmt.Errorf("invalid %s component in %q", part.suffix, duration)
		}
		seconds += n * part.factor
		rest = after
	}

	if rest != "" {
		return 0, fmt.Errorf("trailing data in duration %q", duration)
	}
	return seconds, nil
}
