package sink

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lorenzotomasdiez/dialogue-sim/internal/simulation"
)

func sampleEntries(experimentID string, n int) []simulation.LogEntry {
	out := make([]simulation.LogEntry, n)
	for i := range out {
		speaker, responder := "provider/a", "provider/b"
		if i%2 == 1 {
			speaker, responder = responder, speaker
		}
		out[i] = simulation.LogEntry{
			ExperimentID:         experimentID,
			TurnID:               i,
			Scenario:             "Strangers",
			SpeakerModel:         speaker,
			ResponderModel:       responder,
			Timestamp:            fmt.Sprintf("2026-03-01T12:00:%02d.000000Z", i),
			LatencyMS:            float64(100 * (i + 1)),
			InputTokens:          10 + i,
			OutputTokens:         5 + i,
			Content:              fmt.Sprintf("line %d, with \"quotes\" & <tags>\nand a newline", i),
			FinishReason:         "stop",
			IsRefusal:            i == 3,
			SystemPromptSnapshot: "persona " + speaker,
		}
	}
	return out
}

func TestEncodeIsOneLine(t *testing.T) {
	e := sampleEntries("exp-1", 1)[0]
	line, err := Encode(e)
	require.NoError(t, err)

	assert.True(t, bytes.HasSuffix(line, []byte("\n")))
	assert.Equal(t, 1, bytes.Count(line, []byte("\n")))
	assert.Contains(t, string(line), `& <tags>`)

	var fields map[string]any
	require.NoError(t, json.Unmarshal(line, &fields))
	for _, key := range CSVHeader {
		assert.Contains(t, fields, key)
	}
	assert.Len(t, fields, len(CSVHeader))
}

func TestSaveLogsAppendsAndReadsBack(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "logs", "conversations.jsonl")
	entries := sampleEntries("exp-1", 4)

	require.NoError(t, SaveLogs(path, entries[:2]...))
	require.NoError(t, SaveLogs(path, entries[2:]...))

	got, err := ReadLogs(path)
	require.NoError(t, err)
	assert.Equal(t, entries, got)
}

func TestSaveLogsTwiceDuplicatesRecords(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs.jsonl")
	entries := sampleEntries("exp-1", 3)

	require.NoError(t, SaveLogs(path, entries...))
	require.NoError(t, SaveLogs(path, entries...))

	got, err := ReadLogs(path)
	require.NoError(t, err)
	require.Len(t, got, 6)
	assert.Equal(t, entries, got[:3])
	assert.Equal(t, entries, got[3:])
}

func TestSaveLogsNeverTruncates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs.jsonl")
	require.NoError(t, os.WriteFile(path, []byte("{\"experiment_id\":\"old\",\"turn_id\":0}\n"), 0o644))

	require.NoError(t, SaveLogs(path, sampleEntries("new", 1)...))

	got, err := ReadLogs(path)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "old", got[0].ExperimentID)
	assert.Equal(t, "new", got[1].ExperimentID)
}

func TestSaveLogsInterleavesRunsByInsertionOrder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs.jsonl")
	a := sampleEntries("exp-a", 2)
	b := sampleEntries("exp-b", 2)

	require.NoError(t, SaveLogs(path, a[0]))
	require.NoError(t, SaveLogs(path, b[0]))
	require.NoError(t, SaveLogs(path, a[1]))
	require.NoError(t, SaveLogs(path, b[1]))

	got, err := ReadLogs(path)
	require.NoError(t, err)
	var ids []string
	for _, e := range got {
		ids = append(ids, e.ExperimentID)
	}
	assert.Equal(t, []string{"exp-a", "exp-b", "exp-a", "exp-b"}, ids)
}

func TestSaveLogsConcurrentWritersKeepLinesIntact(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs.jsonl")

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for _, e := range sampleEntries(fmt.Sprintf("exp-%d", w), 10) {
				assert.NoError(t, SaveLogs(path, e))
			}
		}(w)
	}
	wg.Wait()

	got, err := ReadLogs(path)
	require.NoError(t, err)
	assert.Len(t, got, 80)

	perExperiment := map[string]int{}
	for _, e := range got {
		assert.Equal(t, perExperiment[e.ExperimentID], e.TurnID, "turns of one run keep their order")
		perExperiment[e.ExperimentID]++
	}
}

func TestSaveLogsReportsPersistenceFailure(t *testing.T) {
	dir := t.TempDir()
	// A directory where the file should be.
	path := filepath.Join(dir, "logs.jsonl")
	require.NoError(t, os.Mkdir(path, 0o755))

	err := SaveLogs(path, sampleEntries("exp", 1)...)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPersistence)

	var perr *PersistenceError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, path, perr.Path)
}

func TestSaveLogsNoEntriesIsNoop(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs.jsonl")
	require.NoError(t, SaveLogs(path))
	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestWriterWritesWholeLines(t *testing.T) {
	var buf countingBuffer
	w := NewWriter(&buf)
	for _, e := range sampleEntries("exp", 5) {
		require.NoError(t, w.Write(e))
	}
	assert.Equal(t, 5, buf.writes)

	var got []simulation.LogEntry
	require.NoError(t, ScanLogs(&buf.Buffer, func(e simulation.LogEntry) error {
		got = append(got, e)
		return nil
	}))
	assert.Len(t, got, 5)
}

type countingBuffer struct {
	bytes.Buffer
	writes int
}

func (c *countingBuffer) Write(p []byte) (int, error) {
	c.writes++
	return c.Buffer.Write(p)
}

func TestWriterSurfacesWriteErrors(t *testing.T) {
	w := NewWriter(failingWriter{})
	err := w.Write(sampleEntries("exp", 1)[0])
	assert.ErrorIs(t, err, ErrPersistence)
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("disk full") }

func TestScanLogsSkipsBlankLinesAndReportsBadLine(t *testing.T) {
	input := "\n{\"turn_id\":0}\n   \n{\"turn_id\":1}\nnot json\n"
	var turns []int
	err := ScanLogs(strings.NewReader(input), func(e simulation.LogEntry) error {
		turns = append(turns, e.TurnID)
		return nil
	})
	assert.Equal(t, []int{0, 1}, turns)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPersistence)
	assert.Contains(t, err.Error(), "line 5")
}

func TestReadLogsMissingFile(t *testing.T) {
	_, err := ReadLogs(filepath.Join(t.TempDir(), "missing.jsonl"))
	assert.ErrorIs(t, err, ErrPersistence)
	assert.ErrorIs(t, err, os.ErrNotExist)
}
