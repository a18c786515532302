package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/smithy-go/logging"
	"github.com/hansmi/s3-retention-sweep/internal/env"
	"github.com/hansmi/s3-retention-sweep/internal/state"
)

const (
	ageDaysDefault            = 15
	glacierMinAgeDefault      = 91
	deepArchiveMinAgeDefault  = 181
	protectedWeekdaysDefault  = "Sunday,Wednesday"
	reportUploadPrefixDefault = "cleanup_logs/"
)

type program struct {
	dryRun bool

	ageDays               int
	glacierMinAgeDays     int
	deepArchiveMinAgeDays int
	protectedWeekdays     string
	excludePrefixes       string

	reportFormat       string
	reportDir          string
	reportCompress     bool
	reportUpload       bool
	reportUploadPrefix string

	stateObject string
}

func (p *program) registerFlags() {
	flag.BoolVar(&p.dryRun, "dry_run",
		env.MustGetBool("S3_RETENTION_SWEEP_DRY_RUN", true),
		"Report what would be done without deleting anything. Defaults to $S3_RETENTION_SWEEP_DRY_RUN.")

	flag.IntVar(&p.ageDays, "age_days",
		env.MustGetInt("S3_RETENTION_SWEEP_AGE_DAYS", ageDaysDefault),
		fmt.Sprintf("Minimum object age in days before deletion. Defaults to $S3_RETENTION_SWEEP_AGE_DAYS or %d days.",
			ageDaysDefault))

	flag.IntVar(&p.glacierMinAgeDays, "glacier_min_age_days",
		env.MustGetInt("S3_RETENTION_SWEEP_GLACIER_MIN_AGE_DAYS", glacierMinAgeDefault),
		fmt.Sprintf("Minimum age in days for Glacier and Glacier IR objects, avoiding early deletion fees. Defaults to $S3_RETENTION_SWEEP_GLACIER_MIN_AGE_DAYS or %d days.",
			glacierMinAgeDefault))

	flag.IntVar(&p.deepArchiveMinAgeDays, "deep_archive_min_age_days",
		env.MustGetInt("S3_RETENTION_SWEEP_DEEP_ARCHIVE_MIN_AGE_DAYS", deepArchiveMinAgeDefault),
		fmt.Sprintf("Minimum age in days for Deep Archive objects, avoiding early deletion fees. Defaults to $S3_RETENTION_SWEEP_DEEP_ARCHIVE_MIN_AGE_DAYS or %d days.",
			deepArchiveMinAgeDefault))

	flag.StringVar(&p.protectedWeekdays, "protected_weekdays",
		env.GetWithFallback("S3_RETENTION_SWEEP_PROTECTED_WEEKDAYS", protectedWeekdaysDefault),
		"Comma-separated weekdays whose objects are never deleted. Empty disables the rule. Defaults to $S3_RETENTION_SWEEP_PROTECTED_WEEKDAYS.")

	flag.StringVar(&p.excludePrefixes, "exclude_prefix",
		env.GetWithFallback("S3_RETENTION_SWEEP_EXCLUDE_PREFIX", ""),
		"Comma-separated key prefixes excluded from all retention rules. Defaults to $S3_RETENTION_SWEEP_EXCLUDE_PREFIX.")

	flag.StringVar(&p.reportFormat, "report_format",
		env.GetWithFallback("S3_RETENTION_SWEEP_REPORT_FORMAT", string(reportFormatCSV)),
		"Audit report format, csv or json. Defaults to $S3_RETENTION_SWEEP_REPORT_FORMAT.")

	flag.StringVar(&p.reportDir, "report_dir",
		env.GetWithFallback("S3_RETENTION_SWEEP_REPORT_DIR", "."),
		"Directory for audit reports. Defaults to $S3_RETENTION_SWEEP_REPORT_DIR.")

	flag.BoolVar(&p.reportCompress, "report_compress",
		env.MustGetBool("S3_RETENTION_SWEEP_REPORT_COMPRESS", false),
		"Compress audit reports with gzip. Defaults to $S3_RETENTION_SWEEP_REPORT_COMPRESS.")

	flag.BoolVar(&p.reportUpload, "report_upload",
		env.MustGetBool("S3_RETENTION_SWEEP_REPORT_UPLOAD", false),
		"Upload the audit report to the swept bucket. Defaults to $S3_RETENTION_SWEEP_REPORT_UPLOAD.")

	flag.StringVar(&p.reportUploadPrefix, "report_upload_prefix",
		env.GetWithFallback("S3_RETENTION_SWEEP_REPORT_UPLOAD_PREFIX", reportUploadPrefixDefault),
		fmt.Sprintf("Key prefix for uploaded reports. Defaults to $S3_RETENTION_SWEEP_REPORT_UPLOAD_PREFIX or %q.",
			reportUploadPrefixDefault))

	flag.StringVar(&p.stateObject, "state_object",
		env.GetWithFallback("S3_RETENTION_SWEEP_STATE_OBJECT", ""),
		"Object key for the per-bucket audit state snapshot, e.g. \"cleanup_logs/state.db.gz\". Empty keeps state only for the duration of the run. Defaults to $S3_RETENTION_SWEEP_STATE_OBJECT.")
}

func (p *program) retentionConfig() (retentionConfig, error) {
	weekdays, err := parseWeekdays(p.protectedWeekdays)
	if err != nil {
		return retentionConfig{}, err
	}

	result := retentionConfig{
		standardAgeDays:       p.ageDays,
		glacierMinAgeDays:     p.glacierMinAgeDays,
		deepArchiveMinAgeDays: p.deepArchiveMinAgeDays,
		protectedWeekdays:     weekdays,
		excludedPrefixes:      parsePrefixes(p.excludePrefixes),
	}

	if err := result.validate(); err != nil {
		return retentionConfig{}, err
	}

	return result, nil
}

func (p *program) sweepBucket(ctx context.Context, logger *slog.Logger, cfg aws.Config, rcfg retentionConfig, now time.Time, name string) error {
	c, err := newClientFromName(cfg, name)
	if err != nil {
		return err
	}

	logger = logger.With(slog.String("bucket", c.name))

	stats := newSweepStats()

	defer func() {
		logger.InfoContext(ctx, "Statistics", stats.attrs()...)
	}()

	tmpdir, err := os.MkdirTemp("", "s3-retention-sweep*")
	if err != nil {
		return err
	}

	defer os.RemoveAll(tmpdir)

	var st *state.Store

	if p.stateObject == "" {
		st, err = state.New(tmpdir)
	} else {
		st, err = downloadStateFromBucket(ctx, tmpdir, c, p.stateObject)
	}

	if err != nil {
		return fmt.Errorf("audit state: %w", err)
	}

	defer st.Close()

	report := reportOptions{
		format:   reportFormat(p.reportFormat),
		dir:      p.reportDir,
		compress: p.reportCompress,
	}

	if p.reportUpload {
		report.uploadPrefix = p.reportUploadPrefix
	}

	if err := sweep(ctx, sweepOptions{
		logger: logger,
		stats:  stats,
		state:  st,
		client: c,
		config: rcfg,
		report: report,
		dryRun: p.dryRun,
		now:    now,
	}); err != nil {
		return err
	}

	if p.stateObject != "" && !p.dryRun {
		if err := uploadStateToBucket(ctx, st, tmpdir, c, p.stateObject); err != nil {
			return fmt.Errorf("audit state upload: %w", err)
		}
	}

	return nil
}

func (p *program) run(ctx context.Context, bucketNames []string) error {
	if _, err := parseReportFormat(p.reportFormat); err != nil {
		return err
	}

	rcfg, err := p.retentionConfig()
	if err != nil {
		return err
	}

	logger := slog.Default()

	for _, warning := range rcfg.misorderedThresholds() {
		logger.WarnContext(ctx, "Questionable retention configuration",
			slog.String("detail", warning))
	}

	cfg, err := config.LoadDefaultConfig(ctx,
		config.WithLogger(logging.StandardLogger{
			Logger: slog.NewLogLogger(slog.Default().Handler(), slog.LevelDebug),
		}),
		config.WithClientLogMode(
			aws.LogRequest|aws.LogResponse|aws.LogDeprecatedUsage,
		),
	)

	if err != nil {
		return err
	}

	// All objects in the run are judged against the same instant.
	now := time.Now().UTC()

	for _, name := range bucketNames {
		if err := p.sweepBucket(ctx, logger, cfg, rcfg, now, name); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}

	return nil
}

func main() {
	flag.Usage = func() {
		w := flag.CommandLine.Output()

		fmt.Fprintf(w, "Usage: %s [bucket...]\n", os.Args[0])
		fmt.Fprintln(w, `
Apply retention rules to the objects of S3 buckets: delete sufficiently old
objects while honoring storage-class minimum ages, protected weekdays and
excluded prefixes, and write an audit report of every decision. Buckets may
be specified as arguments and via $S3_RETENTION_SWEEP_BUCKETS (separated by
whitespace).

Flags:`)
		flag.PrintDefaults()
	}

	debug := flag.Bool("debug", false, "Enable debug logging.")

	var logLevel slog.LevelVar

	logHandler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: &logLevel,
	})
	slog.SetDefault(slog.New(logHandler))

	var p program

	p.registerFlags()

	flag.Parse()

	if *debug {
		logLevel.Set(slog.LevelDebug)
		logBuildInfo(slog.Default())
	}

	buckets := strings.Fields(os.Getenv("S3_RETENTION_SWEEP_BUCKETS"))
	buckets = append(buckets, flag.Args()...)

	if err := p.run(context.Background(), buckets); err != nil {
		log.Fatalf("Error: %v", err)
	}
}
