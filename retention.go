package main

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	mapset "github.com/deckarep/golang-set/v2"
)

type action int

const (
	actionDelete action = iota
	actionExcludedByPrefix
	actionRetainedTooYoung
	actionSkippedEarlyDeletionFee
	actionProtectedByWeekday
)

var actionNames = map[action]string{
	actionDelete:                  "DELETE",
	actionExcludedByPrefix:        "EXCLUDED",
	actionRetainedTooYoung:        "RETAINED",
	actionSkippedEarlyDeletionFee: "SKIPPED",
	actionProtectedByWeekday:      "PROTECTED",
}

func (a action) String() string {
	if name, ok := actionNames[a]; ok {
		return name
	}

	return fmt.Sprintf("action(%d)", int(a))
}

type retentionConfig struct {
	// Minimum age in days before an object without a stricter
	// storage-class rule may be deleted.
	standardAgeDays int

	// Minimum ages for cold storage tiers. Deleting earlier would incur
	// an early deletion fee.
	glacierMinAgeDays     int
	deepArchiveMinAgeDays int

	// Objects last modified on one of these weekdays are never deleted.
	protectedWeekdays mapset.Set[time.Weekday]

	// Keys starting with any of these prefixes are left alone entirely.
	excludedPrefixes []string
}

// minAgeDays returns the deletion age threshold applying to a storage class.
func (c retentionConfig) minAgeDays(sc types.ObjectStorageClass) int {
	switch sc {
	case types.ObjectStorageClassGlacier, types.ObjectStorageClassGlacierIr:
		return c.glacierMinAgeDays
	case types.ObjectStorageClassDeepArchive:
		return c.deepArchiveMinAgeDays
	}

	return c.standardAgeDays
}

func tierName(sc types.ObjectStorageClass) string {
	switch sc {
	case types.ObjectStorageClassGlacier, types.ObjectStorageClassGlacierIr:
		return "Glacier"
	case types.ObjectStorageClassDeepArchive:
		return "Deep Archive"
	}

	return string(sc)
}

type classification struct {
	action  action
	ageDays int
	reason  string
}

var _ slog.LogValuer = (*classification)(nil)

func (c classification) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("action", c.action.String()),
		slog.Int("age_days", c.ageDays),
		slog.String("reason", c.reason),
	)
}

// ageInDays computes the elapsed whole days between lastModified and now.
// Objects modified in the future count as age zero.
func ageInDays(now, lastModified time.Time) int {
	if d := now.Sub(lastModified); d > 0 {
		return int(d / (24 * time.Hour))
	}

	return 0
}

// classify decides the fate of a single object. It's a pure function of the
// record, the configuration and the reference time; callers must capture the
// reference time once per run so all records are judged against the same
// instant.
//
// Rules are evaluated in a fixed order with the first match winning: prefix
// exclusion, storage-class age threshold, early-deletion-fee avoidance,
// weekday protection, deletion. Thresholds are applied exactly as configured,
// even when a cold tier minimum is below the standard threshold.
func classify(r objectRecord, cfg retentionConfig, now time.Time) classification {
	age := ageInDays(now, r.lastModified)

	for _, prefix := range cfg.excludedPrefixes {
		if strings.HasPrefix(r.key, prefix) {
			return classification{
				action:  actionExcludedByPrefix,
				ageDays: age,
				reason:  fmt.Sprintf("Key matches excluded prefix %q", prefix),
			}
		}
	}

	sc := r.effectiveStorageClass()
	minAge := cfg.minAgeDays(sc)

	if age < minAge {
		if minAge > cfg.standardAgeDays && age >= cfg.standardAgeDays {
			// Old enough under the standard rule, but deleting now
			// would incur the cold tier's minimum-storage-duration
			// fee.
			return classification{
				action:  actionSkippedEarlyDeletionFee,
				ageDays: age,
				reason: fmt.Sprintf("%s early deletion fee would apply; needs %d more days to reach %d days",
					tierName(sc), minAge-age, minAge),
			}
		}

		return classification{
			action:  actionRetainedTooYoung,
			ageDays: age,
			reason:  fmt.Sprintf("Age of %d days is below the %d day threshold", age, minAge),
		}
	}

	// The weekday is taken in the timestamp's own location. S3 reports
	// modification times in UTC and they're never converted to a local
	// zone.
	if wd := r.lastModified.Weekday(); cfg.protectedWeekdays != nil && cfg.protectedWeekdays.Contains(wd) {
		return classification{
			action:  actionProtectedByWeekday,
			ageDays: age,
			reason:  fmt.Sprintf("Protected; last modified on a %s", wd),
		}
	}

	return classification{
		action:  actionDelete,
		ageDays: age,
		reason:  fmt.Sprintf("Age of %d days exceeds the %d day threshold", age, minAge),
	}
}
