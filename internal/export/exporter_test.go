package export_test

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/bytedance/sonic"
	"github.com/redis/rueidis"
	"github.com/redlytics/redlytics/internal/export"
	"github.com/redlytics/redlytics/internal/stats"
	"github.com/redlytics/redlytics/internal/subscribers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func setupTest(t *testing.T) *stats.Store {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client, err := rueidis.NewClient(rueidis.ClientOption{
		InitAddress:  []string{mr.Addr()},
		DisableCache: true,
	})
	require.NoError(t, err)
	t.Cleanup(client.Close)

	return stats.NewStore(client, zap.NewNop())
}

func TestExportWithoutInstallDateFails(t *testing.T) {
	t.Parallel()

	store := setupTest(t)

	exporter := export.New(store, t.TempDir(), []export.Format{export.FormatCSV}, zap.NewNop())
	err := exporter.ExportAll(t.Context())
	require.ErrorIs(t, err, export.ErrNotInstalled)
}

func TestExportWritesCSVAndManifest(t *testing.T) {
	t.Parallel()

	store := setupTest(t)
	ctx := t.Context()
	outDir := t.TempDir()

	install := time.Now().UTC().AddDate(0, -1, 0)
	require.NoError(t, store.RecordInstallDate(ctx, install))

	month := stats.MonthStart(time.Now().UTC())
	postKey := stats.BucketKey(stats.MetricPostCount, month)
	_, err := store.Increment(ctx, postKey, "05", 3)
	require.NoError(t, err)

	userKey := stats.BucketKey(stats.MetricUserCommentCount, month)
	_, err = store.Increment(ctx, userKey, "alice", 7)
	require.NoError(t, err)

	require.NoError(t, store.Set(ctx, subscribers.HistoryKey, stats.Entry{
		Member: time.Now().UTC().Format(stats.DateFormat),
		Score:  1234,
	}))

	exporter := export.New(store, outDir, []export.Format{export.FormatCSV}, zap.NewNop())
	require.NoError(t, exporter.ExportAll(ctx))

	file, err := os.Open(filepath.Join(outDir, "aggregates.csv"))
	require.NoError(t, err)
	defer file.Close()

	rows, err := csv.NewReader(file).ReadAll()
	require.NoError(t, err)

	require.Equal(t, []string{"metric", "month", "member", "score"}, rows[0])
	assert.Len(t, rows, 4)

	byMetric := make(map[string][]string)
	for _, row := range rows[1:] {
		byMetric[row[0]] = row
	}

	assert.Equal(t, []string{"postCount", month.Format(stats.MonthFormat), "05", "3"}, byMetric["postCount"])
	assert.Equal(t, []string{"userCommentCount", month.Format(stats.MonthFormat), "alice", "7"}, byMetric["userCommentCount"])

	history := byMetric[subscribers.HistoryKey]
	require.NotNil(t, history)
	assert.Empty(t, history[1])
	assert.Equal(t, "1234", history[3])

	manifest, err := os.ReadFile(filepath.Join(outDir, "manifest.json"))
	require.NoError(t, err)

	var decoded struct {
		EngineVersion string   `json:"engineVersion"`
		Months        []string `json:"months"`
		Formats       []string `json:"formats"`
	}
	require.NoError(t, sonic.Unmarshal(manifest, &decoded))
	assert.Equal(t, export.EngineVersion, decoded.EngineVersion)
	assert.Equal(t, []string{"csv"}, decoded.Formats)
	assert.Len(t, decoded.Months, 2)
}

func TestUnsupportedFormatRejected(t *testing.T) {
	t.Parallel()

	store := setupTest(t)
	ctx := t.Context()

	require.NoError(t, store.RecordInstallDate(ctx, time.Now().UTC()))

	exporter := export.New(store, t.TempDir(), []export.Format{"parquet"}, zap.NewNop())
	err := exporter.ExportAll(ctx)
	require.ErrorIs(t, err, export.ErrUnsupportedFormat)
}
