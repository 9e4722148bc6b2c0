// Package sink persists LogEntries: append-only JSONL files, tabular
// exports and a live Redis stream mirror.
package sink

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/gofrs/flock"

	"github.com/lorenzotomasdiez/dialogue-sim/internal/simulation"
)

// maxLineSize bounds one JSONL record when reading.
const maxLineSize = 16 << 20

// Encode renders entry as one JSON object terminated by a newline.
func Encode(entry simulation.LogEntry) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(entry); err != nil {
		return nil, &PersistenceError{Op: "encode", Err: err}
	}
	return buf.Bytes(), nil
}

// Writer appends entries to a caller-owned io.Writer. Each entry is one
// Write call of one complete line. Safe for concurrent use.
type Writer struct {
	mu sync.Mutex
	w  io.Writer
}

func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

func (w *Writer) Write(entry simulation.LogEntry) error {
	line, err := Encode(entry)
	if err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, err := w.w.Write(line); err != nil {
		return &PersistenceError{Op: "write", Err: err}
	}
	return nil
}

// SaveLogs appends entries to the JSONL file at path, creating it and its
// parent directories if needed. Existing content is never truncated and
// nothing is deduplicated: saving the same entries twice stores them twice.
//
// An exclusive lock on path+".lock" is held for the whole call so lines from
// concurrent processes never interleave.
func SaveLogs(path string, entries ...simulation.LogEntry) error {
	if len(entries) == 0 {
		return nil
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return &PersistenceError{Op: "mkdir", Path: dir, Err: err}
		}
	}

	lock := flock.New(path + ".lock")
	if err := lock.Lock(); err != nil {
		return &PersistenceError{Op: "lock", Path: path, Err: err}
	}
	defer lock.Unlock()

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return &PersistenceError{Op: "open", Path: path, Err: err}
	}

	for _, entry := range entries {
		line, err := Encode(entry)
		if err != nil {
			f.Close()
			return err
		}
		if _, err := f.Write(line); err != nil {
			f.Close()
			return &PersistenceError{Op: "append", Path: path, Err: err}
		}
	}
	if err := f.Close(); err != nil {
		return &PersistenceError{Op: "close", Path: path, Err: err}
	}
	return nil
}

// ScanLogs decodes one entry per line from r and calls fn for each. Blank
// lines are skipped. Scanning stops at the first error from fn.
func ScanLogs(r io.Reader, fn func(simulation.LogEntry) error) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	line := 0
	for sc.Scan() {
		line++
		raw := bytes.TrimSpace(sc.Bytes())
		if len(raw) == 0 {
			continue
		}
		var entry simulation.LogEntry
		if err := json.Unmarshal(raw, &entry); err != nil {
			return &PersistenceError{Op: "decode", Err: fmt.Errorf("line %d: %w", line, err)}
		}
		if err := fn(entry); err != nil {
			return err
		}
	}
	if err := sc.Err(); err != nil {
		return &PersistenceError{Op: "read", Err: err}
	}
	return nil
}

// ReadLogs loads every entry of the JSONL file at path, in file order.
func ReadLogs(path string) ([]simulation.LogEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &PersistenceError{Op: "open", Path: path, Err: err}
	}
	defer f.Close()

	var entries []simulation.LogEntry
	err = ScanLogs(f, func(e simulation.LogEntry) error {
		entries = append(entries, e)
		return nil
	})
	if err != nil {
		var perr *PersistenceError
		if errors.As(err, &perr) && perr.Path == "" {
			perr.Path = path
		}
		return entries, err
	}
	return entries, nil
}
