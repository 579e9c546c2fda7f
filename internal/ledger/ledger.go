// Package ledger persists captured leads as an append-only text file with one
// record per line:
//
//	[2026-01-02 15:04] Alice | Broken heater | 555-1234
//
// The ledger's line count is the only metric the dashboard consumes. Appends
// from one process are serialised; writers in other processes are not
// coordinated, so concurrent processes sharing one file may interleave lines.
package ledger

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// TimestampLayout is the minute-precision local time prefix of every line.
const TimestampLayout = "2006-01-02 15:04"

// Entry is one parsed ledger line.
type Entry struct {
	Timestamp time.Time `json:"timestamp"`
	Payload   string    `json:"payload"`
}

// FileLedger appends entries to a local text file. Safe for concurrent use
// within one process.
type FileLedger struct {
	mu   sync.Mutex
	path string
	now  func() time.Time
}

// Option configures a [FileLedger].
type Option func(*FileLedger)

// WithClock overrides the time source used for entry timestamps.
func WithClock(now func() time.Time) Option {
	return func(l *FileLedger) { l.now = now }
}

// New creates a FileLedger that writes to path. The file is created on the
// first Append.
func New(path string, opts ...Option) *FileLedger {
	l := &FileLedger{path: path, now: time.Now}
	for _, o := range opts {
		o(l)
	}
	return l
}

// Path returns the ledger file location.
func (l *FileLedger) Path() string { return l.path }

// Append writes one line "[YYYY-MM-DD HH:MM] payload". Line breaks inside
// payload are flattened to spaces so one call always adds exactly one line.
func (l *FileLedger) Append(payload string) error {
	line := FormatLine(l.now(), payload)

	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("ledger: open file: %w", err)
	}
	if _, err := f.WriteString(line); err != nil {
		f.Close()
		return fmt.Errorf("ledger: write: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("ledger: close: %w", err)
	}
	return nil
}

// Count returns the number of lines in the ledger file. A missing file counts
// as zero; any other read error is logged and also treated as zero.
func (l *FileLedger) Count() int {
	f, err := os.Open(l.path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			slog.Warn("ledger: count failed, reporting zero", "path", l.path, "err", err)
		}
		return 0
	}
	defer f.Close()

	n, err := countLines(f)
	if err != nil {
		slog.Warn("ledger: count failed, reporting zero", "path", l.path, "err", err)
		return 0
	}
	return n
}

// Entries returns up to limit of the most recent well-formed entries, newest
// first. limit <= 0 returns all of them. Malformed lines are skipped.
func (l *FileLedger) Entries(limit int) ([]Entry, error) {
	f, err := os.Open(l.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ledger: open file: %w", err)
	}
	defer f.Close()

	var all []Entry
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		e, ok := ParseLine(sc.Text())
		if !ok {
			continue
		}
		all = append(all, e)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("ledger: read: %w", err)
	}

	out := make([]Entry, 0, len(all))
	for i := len(all) - 1; i >= 0; i-- {
		out = append(out, all[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// CheckWritable verifies that the directory holding the ledger accepts new
// files. Used by the readiness check.
func (l *FileLedger) CheckWritable() error {
	dir := filepath.Dir(l.path)
	f, err := os.CreateTemp(dir, ".ledger-check-*")
	if err != nil {
		return fmt.Errorf("ledger: directory %q not writable: %w", dir, err)
	}
	name := f.Name()
	f.Close()
	return os.Remove(name)
}

// FormatLine renders one ledger line including the trailing newline.
func FormatLine(ts time.Time, payload string) string {
	payload = strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ").Replace(payload)
	return "[" + ts.Format(TimestampLayout) + "] " + payload + "\n"
}

// ParseLine parses a line produced by [FormatLine] (without the newline).
// Timestamps are interpreted in local time.
func ParseLine(line string) (Entry, bool) {
	rest, ok := strings.CutPrefix(line, "[")
	if !ok {
		return Entry{}, false
	}
	stamp, payload, ok := strings.Cut(rest, "] ")
	if !ok {
		return Entry{}, false
	}
	ts, err := time.ParseInLocation(TimestampLayout, stamp, time.Local)
	if err != nil {
		return Entry{}, false
	}
	return Entry{Timestamp: ts, Payload: payload}, true
}

// countLines counts newline-terminated lines plus a final unterminated one.
func countLines(r io.Reader) (int, error) {
	buf := make([]byte, 32*1024)
	count := 0
	var last byte = '\n'
	for {
		n, err := r.Read(buf)
		if n > 0 {
			count += bytes.Count(buf[:n], []byte{'\n'})
			last = buf[n-1]
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return 0, err
		}
	}
	if last != '\n' {
		count++
	}
	return count, nil
}
