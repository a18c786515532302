package main

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/google/go-cmp/cmp"
	"github.com/klauspost/compress/gzip"
)

func reportRowsForTest() []reportRow {
	return []reportRow{
		{
			record: objectRecord{
				key:          "data/a.txt",
				size:         2048,
				lastModified: time.Date(2024, time.May, 29, 10, 0, 5, 0, time.UTC),
			},
			result: classification{
				action:  actionDelete,
				ageDays: 16,
				reason:  "Age of 16 days exceeds the 15 day threshold",
			},
		},
		{
			record: objectRecord{
				key:          "cold/b",
				size:         1024 * 1024,
				lastModified: time.Date(2024, time.March, 16, 6, 0, 0, 0, time.UTC),
				storageClass: types.ObjectStorageClassGlacier,
			},
			result: classification{
				action:  actionSkippedEarlyDeletionFee,
				ageDays: 90,
				reason:  "Glacier early deletion fee would apply; needs 1 more days to reach 91 days",
			},
		},
		{
			record: objectRecord{
				key:          "logs/c",
				size:         0,
				lastModified: time.Date(2020, time.January, 1, 0, 0, 0, 0, time.UTC),
			},
			result: classification{
				action:  actionExcludedByPrefix,
				ageDays: 1626,
				reason:  `Key matches excluded prefix "logs/"`,
			},
		},
	}
}

func TestWriteCSVReport(t *testing.T) {
	var buf bytes.Buffer

	if err := writeCSVReport(&buf, reportRowsForTest()); err != nil {
		t.Fatalf("writeCSVReport() failed: %v", err)
	}

	want := strings.Join([]string{
		"Object_Key,Last_Modified,Size_Bytes,Size_KB,Size_MB,Storage_Class,Age_Days,Creation_Day,Action,Notes",
		"data/a.txt,2024-05-29 10:00:05 UTC,2048,2.00,0.0020,STANDARD,16,Wednesday,DELETE,Age of 16 days exceeds the 15 day threshold",
		"cold/b,2024-03-16 06:00:00 UTC,1048576,1024.00,1.0000,GLACIER,90,Saturday,SKIPPED,Glacier early deletion fee would apply; needs 1 more days to reach 91 days",
		`logs/c,2020-01-01 00:00:00 UTC,0,0.00,0.0000,STANDARD,1626,Wednesday,EXCLUDED,"Key matches excluded prefix ""logs/"""`,
		"",
	}, "\n")

	if diff := cmp.Diff(want, buf.String()); diff != "" {
		t.Errorf("CSV diff (-want +got):\n%s", diff)
	}
}

func TestWriteJSONReport(t *testing.T) {
	var buf bytes.Buffer

	rows := reportRowsForTest()

	if err := writeJSONReport(&buf, rows); err != nil {
		t.Fatalf("writeJSONReport() failed: %v", err)
	}

	dec := json.NewDecoder(&buf)

	var got []jsonReportRow

	for dec.More() {
		var row jsonReportRow

		if err := dec.Decode(&row); err != nil {
			t.Fatalf("Decode() failed: %v", err)
		}

		got = append(got, row)
	}

	want := []jsonReportRow{
		{
			Key:          "data/a.txt",
			LastModified: time.Date(2024, time.May, 29, 10, 0, 5, 0, time.UTC),
			SizeBytes:    2048,
			SizeText:     "2.0 KiB",
			StorageClass: "STANDARD",
			AgeDays:      16,
			CreationDay:  "Wednesday",
			Action:       "DELETE",
			Reason:       "Age of 16 days exceeds the 15 day threshold",
		},
		{
			Key:          "cold/b",
			LastModified: time.Date(2024, time.March, 16, 6, 0, 0, 0, time.UTC),
			SizeBytes:    1024 * 1024,
			SizeText:     "1.0 MiB",
			StorageClass: "GLACIER",
			AgeDays:      90,
			CreationDay:  "Saturday",
			Action:       "SKIPPED",
			Reason:       "Glacier early deletion fee would apply; needs 1 more days to reach 91 days",
		},
		{
			Key:          "logs/c",
			LastModified: time.Date(2020, time.January, 1, 0, 0, 0, 0, time.UTC),
			SizeBytes:    0,
			SizeText:     "0 B",
			StorageClass: "STANDARD",
			AgeDays:      1626,
			CreationDay:  "Wednesday",
			Action:       "EXCLUDED",
			Reason:       `Key matches excluded prefix "logs/"`,
		},
	}

	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("JSON diff (-want +got):\n%s", diff)
	}
}

func TestParseReportFormat(t *testing.T) {
	for _, tc := range []struct {
		input   string
		want    reportFormat
		wantErr bool
	}{
		{input: "csv", want: reportFormatCSV},
		{input: "json", want: reportFormatJSON},
		{input: "", wantErr: true},
		{input: "xml", wantErr: true},
	} {
		t.Run(tc.input, func(t *testing.T) {
			got, err := parseReportFormat(tc.input)

			if tc.wantErr != (err != nil) {
				t.Errorf("parseReportFormat(%q) error = %v, wantErr %v", tc.input, err, tc.wantErr)
			}

			if err == nil && got != tc.want {
				t.Errorf("parseReportFormat(%q) = %q, want %q", tc.input, got, tc.want)
			}
		})
	}
}

func TestWriteReportCompressed(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	dir := t.TempDir()

	opts := reportOptions{
		format:   reportFormatCSV,
		dir:      dir,
		compress: true,
	}

	path, err := writeReport(context.Background(), logger, nil, opts, testNow, reportRowsForTest())
	if err != nil {
		t.Fatalf("writeReport() failed: %v", err)
	}

	if got, want := filepath.Base(path), "s3_cleanup_20240614_120000.csv.gz"; got != want {
		t.Errorf("Report name %q, want %q", got, want)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}

	t.Cleanup(func() {
		f.Close()
	})

	zr, err := gzip.NewReader(f)
	if err != nil {
		t.Fatalf("NewReader() failed: %v", err)
	}

	records, err := csv.NewReader(zr).ReadAll()
	if err != nil {
		t.Fatalf("ReadAll() failed: %v", err)
	}

	// Header plus one line per row.
	if got, want := len(records), 1+len(reportRowsForTest()); got != want {
		t.Errorf("Report has %d records, want %d", got, want)
	}
}
