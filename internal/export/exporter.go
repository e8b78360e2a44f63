// Package export dumps the monthly aggregate buckets to flat files for
// offline analysis.
package export

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/bytedance/sonic"
	"github.com/redlytics/redlytics/internal/export/csv"
	"github.com/redlytics/redlytics/internal/export/sqlite"
	"github.com/redlytics/redlytics/internal/export/types"
	"github.com/redlytics/redlytics/internal/stats"
	"github.com/redlytics/redlytics/internal/subscribers"
	"go.uber.org/zap"
)

var (
	ErrUnsupportedFormat = errors.New("unsupported export format")
	ErrNotInstalled      = errors.New("no install date recorded, nothing to export")
)

// Format represents a supported export format.
type Format string

const (
	FormatCSV    Format = "csv"
	FormatSQLite Format = "sqlite"
)

// EngineVersion is the version of the export layout. Bump on breaking
// changes to the record shape or file naming.
const EngineVersion = "1.0.0"

// exportedMetrics lists every month-bucketed metric family in dump order.
var exportedMetrics = []stats.Metric{
	stats.MetricPostCount,
	stats.MetricCommentCount,
	stats.MetricUserPostCount,
	stats.MetricUserCommentCount,
	stats.MetricPostVotes,
	stats.MetricDomainCount,
	stats.MetricPostTypeCount,
}

// Exporter dumps every aggregate bucket between the install month and now.
type Exporter struct {
	store   *stats.Store
	outDir  string
	formats []Format
	logger  *zap.Logger
}

// New creates a new exporter instance writing the given formats.
func New(store *stats.Store, outDir string, formats []Format, logger *zap.Logger) *Exporter {
	return &Exporter{
		store:   store,
		outDir:  outDir,
		formats: formats,
		logger:  logger.Named("export"),
	}
}

// ExportAll collects the records and writes every requested format plus a
// manifest describing the dump.
func (e *Exporter) ExportAll(ctx context.Context) error {
	records, months, err := e.collect(ctx)
	if err != nil {
		return err
	}

	e.logger.Info("Collected aggregate records",
		zap.Int("records", len(records)),
		zap.Int("months", len(months)))

	if err := os.MkdirAll(e.outDir, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	for _, format := range e.formats {
		if err := e.export(format, records); err != nil {
			return fmt.Errorf("failed to export %s format: %w", format, err)
		}

		e.logger.Info("Wrote export format", zap.String("format", string(format)))
	}

	return e.writeManifest(months)
}

// collect reads every metric bucket for every month since install, plus the
// subscriber history.
func (e *Exporter) collect(ctx context.Context) ([]*types.Record, []time.Time, error) {
	installDate, ok, err := e.store.InstallDate(ctx)
	if err != nil {
		return nil, nil, err
	}

	if !ok {
		return nil, nil, ErrNotInstalled
	}

	months := stats.MonthsBetween(installDate, time.Now().UTC())
	records := make([]*types.Record, 0, 256)

	for _, month := range months {
		for _, metric := range exportedMetrics {
			entries, err := e.store.Members(ctx, stats.BucketKey(metric, month))
			if err != nil {
				return nil, nil, err
			}

			for _, entry := range entries {
				records = append(records, &types.Record{
					Metric: string(metric),
					Month:  month.Format(stats.MonthFormat),
					Member: entry.Member,
					Score:  entry.Score,
				})
			}
		}
	}

	history, err := e.store.Members(ctx, subscribers.HistoryKey)
	if err != nil {
		return nil, nil, err
	}

	for _, entry := range history {
		records = append(records, &types.Record{
			Metric: subscribers.HistoryKey,
			Member: entry.Member,
			Score:  entry.Score,
		})
	}

	return records, months, nil
}

func (e *Exporter) export(format Format, records []*types.Record) error {
	switch format {
	case FormatCSV:
		return csv.New(e.outDir).Export(records)
	case FormatSQLite:
		return sqlite.New(e.outDir).Export(records)
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}
}

func (e *Exporter) writeManifest(months []time.Time) error {
	manifest := struct {
		EngineVersion string   `json:"engineVersion"`
		ExportedAt    string   `json:"exportedAt"`
		Months        []string `json:"months"`
		Formats       []Format `json:"formats"`
	}{
		EngineVersion: EngineVersion,
		ExportedAt:    time.Now().UTC().Format(time.RFC3339),
		Formats:       e.formats,
	}

	for _, month := range months {
		manifest.Months = append(manifest.Months, month.Format(stats.MonthFormat))
	}

	data, err := sonic.MarshalIndent(manifest, "", "    ")
	if err != nil {
		return fmt.Errorf("failed to marshal manifest: %w", err)
	}

	path := filepath.Join(e.outDir, "manifest.json")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write manifest: %w", err)
	}

	return nil
}
