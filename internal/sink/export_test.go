package sink

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/lorenzotomasdiez/dialogue-sim/internal/simulation"
)

func TestExportCSV(t *testing.T) {
	entries := sampleEntries("exp-1", 2)
	var buf bytes.Buffer
	require.NoError(t, ExportCSV(&buf, entries))

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, CSVHeader, rows[0])
	assert.Equal(t, "exp-1", rows[1][0])
	assert.Equal(t, "1", rows[2][1])
	assert.Equal(t, "200", rows[2][6])
	assert.Equal(t, entries[1].Content, rows[2][9], "embedded newlines and quotes survive")
	assert.Equal(t, "false", rows[2][11])
}

func TestExportSQLIsIdempotent(t *testing.T) {
	db, err := OpenDB(DriverSQLite, ":memory:")
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	ctx := context.Background()
	entries := append(sampleEntries("exp-1", 4), sampleEntries("exp-2", 2)...)

	n, err := ExportSQL(ctx, db, entries)
	require.NoError(t, err)
	assert.EqualValues(t, 6, n)

	n, err = ExportSQL(ctx, db, entries)
	require.NoError(t, err)
	assert.EqualValues(t, 0, n)

	var count int64
	require.NoError(t, db.Model(&LogRecord{}).Count(&count).Error)
	assert.EqualValues(t, 6, count)

	got, err := QuerySQL(ctx, db, "exp-1")
	require.NoError(t, err)
	assert.Equal(t, entries[:4], got)
}

func TestOpenDBRejectsUnknownDriver(t *testing.T) {
	_, err := OpenDB("oracle", "dsn")
	assert.Error(t, err)
}

func TestRedisMirrorPublishes(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()

	m, err := NewRedisMirror(ctx, RedisConfig{Addr: mr.Addr(), Stream: "test:entries"}, zaptest.NewLogger(t))
	require.NoError(t, err)
	defer m.Close()

	entries := sampleEntries("exp-1", 3)
	for _, e := range entries {
		_, err := m.Publish(ctx, e)
		require.NoError(t, err)
	}

	stream, err := mr.Stream("test:entries")
	require.NoError(t, err)
	require.Len(t, stream, 3)

	values := map[string]string{}
	for i := 0; i+1 < len(stream[1].Values); i += 2 {
		values[stream[1].Values[i]] = stream[1].Values[i+1]
	}
	assert.Equal(t, "exp-1", values["experiment_id"])
	assert.Equal(t, "1", values["turn_id"])

	var decoded simulation.LogEntry
	require.NoError(t, json.Unmarshal([]byte(values["entry"]), &decoded))
	assert.Equal(t, entries[1], decoded)
}

func TestRedisMirrorDefaultsStream(t *testing.T) {
	mr := miniredis.RunT(t)
	m, err := NewRedisMirror(context.Background(), RedisConfig{Addr: mr.Addr()}, nil)
	require.NoError(t, err)
	defer m.Close()
	assert.Equal(t, DefaultStream, m.Stream())
}

func TestRedisMirrorConnectFailure(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err := NewRedisMirror(context.Background(), RedisConfig{Addr: addr}, nil)
	assert.ErrorIs(t, err, ErrPersistence)
}

func TestSummarize(t *testing.T) {
	entries := sampleEntries("exp-1", 4)
	entries = append(entries, sampleEntries("exp-2", 1)...)

	got := Summarize(entries)
	require.Len(t, got, 2)

	a := got[0]
	assert.Equal(t, "provider/a", a.Model)
	assert.Equal(t, 3, a.Turns)
	assert.Equal(t, 2, a.Experiments)
	// latencies 100, 300, 100
	assert.InDelta(t, 166.667, a.MeanLatencyMS, 1e-3)
	assert.InDelta(t, 115.470, a.StdDevLatencyMS, 1e-3)
	assert.Equal(t, 300.0, a.P95LatencyMS)
	assert.Zero(t, a.RefusalRate)

	b := got[1]
	assert.Equal(t, "provider/b", b.Model)
	assert.Equal(t, 2, b.Turns)
	assert.InDelta(t, 0.5, b.RefusalRate, 1e-9)
	assert.InDelta(t, 7.0, b.MeanOutputTokens, 1e-9)
}

func TestSummarizeSingleTurn(t *testing.T) {
	got := Summarize(sampleEntries("exp", 1))
	require.Len(t, got, 1)
	assert.Equal(t, 100.0, got[0].MeanLatencyMS)
	assert.Zero(t, got[0].StdDevLatencyMS)
	assert.Equal(t, 100.0, got[0].P95LatencyMS)
}

func TestSummarizeEmpty(t *testing.T) {
	assert.Empty(t, Summarize(nil))
}
