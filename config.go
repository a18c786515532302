package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
)

var weekdayByName = func() map[string]time.Weekday {
	result := map[string]time.Weekday{}

	for wd := time.Sunday; wd <= time.Saturday; wd++ {
		name := strings.ToLower(wd.String())

		result[name] = wd
		result[name[:3]] = wd
	}

	return result
}()

// parseWeekdays converts a comma-separated list of weekday names ("Sunday"
// or "sun") into a set. Empty elements are ignored.
func parseWeekdays(raw string) (mapset.Set[time.Weekday], error) {
	result := mapset.NewThreadUnsafeSet[time.Weekday]()

	for part := range strings.SplitSeq(raw, ",") {
		part = strings.TrimSpace(part)

		if part == "" {
			continue
		}

		wd, ok := weekdayByName[strings.ToLower(part)]
		if !ok {
			return nil, fmt.Errorf("%w: unrecognized weekday %q", os.ErrInvalid, part)
		}

		result.Add(wd)
	}

	return result, nil
}

// parsePrefixes splits a comma-separated list of key prefixes, dropping
// whitespace-only entries while preserving order.
func parsePrefixes(raw string) []string {
	var result []string

	for part := range strings.SplitSeq(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			result = append(result, part)
		}
	}

	return result
}

func (c retentionConfig) validate() error {
	for _, i := range []struct {
		name  string
		value int
	}{
		{"age_days", c.standardAgeDays},
		{"glacier_min_age_days", c.glacierMinAgeDays},
		{"deep_archive_min_age_days", c.deepArchiveMinAgeDays},
	} {
		if i.value < 0 {
			return fmt.Errorf("%w: %s must not be negative, got %d", os.ErrInvalid, i.name, i.value)
		}
	}

	return nil
}

// misorderedThresholds reports cold tier minimum ages below the standard
// threshold. The classifier applies such configurations literally; they're
// almost certainly mistakes and get logged as warnings before a run.
func (c retentionConfig) misorderedThresholds() []string {
	var result []string

	if c.glacierMinAgeDays < c.standardAgeDays {
		result = append(result,
			fmt.Sprintf("glacier_min_age_days (%d) is below age_days (%d)",
				c.glacierMinAgeDays, c.standardAgeDays))
	}

	if c.deepArchiveMinAgeDays < c.standardAgeDays {
		result = append(result,
			fmt.Sprintf("deep_archive_min_age_days (%d) is below age_days (%d)",
				c.deepArchiveMinAgeDays, c.standardAgeDays))
	}

	return result
}
