package main

import (
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/hansmi/s3-retention-sweep/internal/state"
	"gonum.org/v1/gonum/stat"
)

type timeRange struct {
	oldest, newest time.Time
}

var _ slog.LogValuer = (*timeRange)(nil)

func (r *timeRange) update(t time.Time) {
	if t.IsZero() {
		return
	}

	if r.oldest.IsZero() || t.Before(r.oldest) {
		r.oldest = t
	}

	if r.newest.IsZero() || t.After(r.newest) {
		r.newest = t
	}
}

func (r timeRange) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Time("oldest", r.oldest),
		slog.Time("newest", r.newest),
	)
}

type sizeStats int64

var _ slog.LogValuer = (*sizeStats)(nil)

func (s *sizeStats) add(bytes int64) {
	*(*int64)(s) += bytes
}

func (s sizeStats) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int64("bytes", int64(s)),
		slog.String("text", humanize.IBytes(uint64(s))),
	)
}

type sweepStats struct {
	mu sync.Mutex

	totalCount   int64
	totalSize    sizeStats
	totalModTime timeRange

	// Age in days of every record seen, for the distribution summary.
	ages []float64

	excludedCount   int64
	excludedSize    sizeStats
	retainedCount   int64
	retainedSize    sizeStats
	skippedFeeCount int64
	skippedFeeSize  sizeStats
	protectedCount  int64
	protectedSize   sizeStats

	deleteCount   int64
	deleteSize    sizeStats
	deleteModTime timeRange

	deleteSuccessCount int64
	deleteErrorCount   int64
}

func newSweepStats() *sweepStats {
	return &sweepStats{}
}

func (s *sweepStats) discovered(r objectRecord) {
	s.mu.Lock()
	s.totalCount++
	s.totalSize.add(r.size)
	s.totalModTime.update(r.lastModified)
	s.mu.Unlock()
}

// classified accounts for every non-delete decision. Deletions are counted
// by the deleter via [sweepStats.addDelete] once they're queued.
func (s *sweepStats) classified(r objectRecord, c classification) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.ages = append(s.ages, float64(c.ageDays))

	switch c.action {
	case actionExcludedByPrefix:
		s.excludedCount++
		s.excludedSize.add(r.size)
	case actionRetainedTooYoung:
		s.retainedCount++
		s.retainedSize.add(r.size)
	case actionSkippedEarlyDeletionFee:
		s.skippedFeeCount++
		s.skippedFeeSize.add(r.size)
	case actionProtectedByWeekday:
		s.protectedCount++
		s.protectedSize.add(r.size)
	}
}

func (s *sweepStats) addDelete(r objectRecord) {
	s.mu.Lock()
	s.deleteCount++
	s.deleteSize.add(r.size)
	s.deleteModTime.update(r.lastModified)
	s.mu.Unlock()
}

func (s *sweepStats) addDeleteResults(successCount, errorCount int) {
	if successCount == 0 && errorCount == 0 {
		return
	}

	s.mu.Lock()
	s.deleteSuccessCount += int64(successCount)
	s.deleteErrorCount += int64(errorCount)
	s.mu.Unlock()
}

// ageAttrs summarizes the age distribution. Quantiles require sorted data.
func (s *sweepStats) ageAttrs() slog.Value {
	if len(s.ages) == 0 {
		return slog.GroupValue(slog.Int("count", 0))
	}

	sorted := slices.Clone(s.ages)
	slices.Sort(sorted)

	return slog.GroupValue(
		slog.Int("count", len(sorted)),
		slog.Float64("mean_days", stat.Mean(sorted, nil)),
		slog.Float64("median_days", stat.Quantile(0.5, stat.Empirical, sorted, nil)),
		slog.Float64("p90_days", stat.Quantile(0.9, stat.Empirical, sorted, nil)),
	)
}

func (s *sweepStats) attrs() []any {
	s.mu.Lock()
	defer s.mu.Unlock()

	return []any{
		slog.Group("total",
			slog.Int64("count", s.totalCount),
			slog.Any("size", s.totalSize),
			slog.Any("mod_time", s.totalModTime),
			slog.Any("age", s.ageAttrs()),
		),
		slog.Group("excluded",
			slog.Int64("count", s.excludedCount),
			slog.Any("size", s.excludedSize),
		),
		slog.Group("retained",
			slog.Int64("count", s.retainedCount),
			slog.Any("size", s.retainedSize),
		),
		slog.Group("skipped_fee",
			slog.Int64("count", s.skippedFeeCount),
			slog.Any("size", s.skippedFeeSize),
		),
		slog.Group("protected",
			slog.Int64("count", s.protectedCount),
			slog.Any("size", s.protectedSize),
		),
		slog.Group("delete",
			slog.Int64("count", s.deleteCount),
			slog.Any("size", s.deleteSize),
			slog.Any("mod_time", s.deleteModTime),
			slog.Int64("success_count", s.deleteSuccessCount),
			slog.Int64("error_count", s.deleteErrorCount),
		),
	}
}

// runRecord converts the counters into the persisted per-bucket summary.
func (s *sweepStats) runRecord(startedAt time.Time, dryRun bool) state.RunRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	return state.RunRecord{
		StartedAt:  startedAt,
		DryRun:     dryRun,
		Total:      s.totalCount,
		Deleted:    s.deleteCount,
		Excluded:   s.excludedCount,
		Retained:   s.retainedCount,
		SkippedFee: s.skippedFeeCount,
		Protected:  s.protectedCount,
	}
}
