package main

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/klauspost/compress/gzip"
)

type reportFormat string

const (
	reportFormatCSV  reportFormat = "csv"
	reportFormatJSON reportFormat = "json"
)

func parseReportFormat(raw string) (reportFormat, error) {
	switch f := reportFormat(raw); f {
	case reportFormatCSV, reportFormatJSON:
		return f, nil
	}

	return "", fmt.Errorf("%w: unrecognized report format %q", os.ErrInvalid, raw)
}

type reportRow struct {
	record objectRecord
	result classification
}

// Column layout kept compatible with the audit files produced by the
// predecessor scripts.
var reportHeader = []string{
	"Object_Key",
	"Last_Modified",
	"Size_Bytes",
	"Size_KB",
	"Size_MB",
	"Storage_Class",
	"Age_Days",
	"Creation_Day",
	"Action",
	"Notes",
}

func (r reportRow) fields() []string {
	return []string{
		r.record.key,
		r.record.lastModified.UTC().Format("2006-01-02 15:04:05") + " UTC",
		strconv.FormatInt(r.record.size, 10),
		strconv.FormatFloat(float64(r.record.size)/1024, 'f', 2, 64),
		strconv.FormatFloat(float64(r.record.size)/(1024*1024), 'f', 4, 64),
		string(r.record.effectiveStorageClass()),
		strconv.Itoa(r.result.ageDays),
		r.record.lastModified.Weekday().String(),
		r.result.action.String(),
		r.result.reason,
	}
}

func writeCSVReport(w io.Writer, rows []reportRow) error {
	cw := csv.NewWriter(w)

	if err := cw.Write(reportHeader); err != nil {
		return err
	}

	for _, i := range rows {
		if err := cw.Write(i.fields()); err != nil {
			return err
		}
	}

	cw.Flush()

	return cw.Error()
}

type jsonReportRow struct {
	Key          string    `json:"key"`
	LastModified time.Time `json:"last_modified"`
	SizeBytes    int64     `json:"size_bytes"`
	SizeText     string    `json:"size_text"`
	StorageClass string    `json:"storage_class"`
	AgeDays      int       `json:"age_days"`
	CreationDay  string    `json:"creation_day"`
	Action       string    `json:"action"`
	Reason       string    `json:"reason"`
}

// writeJSONReport writes one JSON object per line.
func writeJSONReport(w io.Writer, rows []reportRow) error {
	enc := json.NewEncoder(w)

	for _, i := range rows {
		if err := enc.Encode(jsonReportRow{
			Key:          i.record.key,
			LastModified: i.record.lastModified,
			SizeBytes:    i.record.size,
			SizeText:     humanize.IBytes(uint64(i.record.size)),
			StorageClass: string(i.record.effectiveStorageClass()),
			AgeDays:      i.result.ageDays,
			CreationDay:  i.record.lastModified.Weekday().String(),
			Action:       i.result.action.String(),
			Reason:       i.result.reason,
		}); err != nil {
			return err
		}
	}

	return nil
}

type reportOptions struct {
	format   reportFormat
	dir      string
	compress bool

	// Key prefix for uploading the finished report back to the bucket.
	// Empty disables the upload.
	uploadPrefix string
}

func (o reportOptions) filename(now time.Time) string {
	name := fmt.Sprintf("s3_cleanup_%s.%s", now.Format("20060102_150405"), o.format)

	if o.compress {
		name += ".gz"
	}

	return name
}

// writeReport persists the classification rows as an audit report and
// optionally uploads it to the swept bucket. Returns the local path.
func writeReport(ctx context.Context, logger *slog.Logger, c *client, opts reportOptions, now time.Time, rows []reportRow) (_ string, err error) {
	path := filepath.Join(opts.dir, opts.filename(now))

	f, err := os.Create(path)
	if err != nil {
		return "", err
	}

	defer func() {
		err = errors.Join(err, f.Close())
	}()

	var w io.Writer = f
	var zw *gzip.Writer

	if opts.compress {
		zw = gzip.NewWriter(f)
		w = zw
	}

	switch opts.format {
	case reportFormatJSON:
		err = writeJSONReport(w, rows)
	default:
		err = writeCSVReport(w, rows)
	}

	if err != nil {
		return "", fmt.Errorf("writing report %q: %w", path, err)
	}

	if zw != nil {
		if err := zw.Close(); err != nil {
			return "", fmt.Errorf("compressing report %q: %w", path, err)
		}
	}

	if opts.uploadPrefix != "" {
		if _, err := f.Seek(0, io.SeekStart); err != nil {
			return "", err
		}

		key := opts.uploadPrefix + filepath.Base(path)

		if err := c.uploadObject(ctx, f, key); err != nil {
			return "", fmt.Errorf("uploading report: %w", err)
		}

		logger.InfoContext(ctx, "Report uploaded",
			slog.String("bucket", c.name),
			slog.String("key", key),
		)
	}

	return path, nil
}
