// Package regionlog writes an hourly-rotated, zstd-compressed JSONL audit
// trail of region lifecycle transitions: load, generate, save and evict
// events, one line per event, for offline debugging of residency and
// generation behaviour.
package regionlog

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"
)

// JSONLZstdWriter appends JSON-marshalled values as newline-delimited
// records to an hourly-rotating zstd-compressed file. A new file is opened
// the first time an hour boundary is crossed; the previous hour's file is
// flushed and closed, never reopened.
type JSONLZstdWriter struct {
	baseDir string
	prefix  string

	mu      sync.Mutex
	curHour string
	f       *os.File
	enc     *zstd.Encoder
	w       *bufio.Writer
}

func NewJSONLZstdWriter(baseDir, prefix string) *JSONLZstdWriter {
	return &JSONLZstdWriter{baseDir: baseDir, prefix: prefix}
}

func (w *JSONLZstdWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closeLocked()
}

func (w *JSONLZstdWriter) Write(v any) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	hour := time.Now().UTC().Format("2006-01-02-15")
	if hour != w.curHour {
		if err := w.rotateLocked(hour); err != nil {
			return err
		}
	}

	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := w.w.Write(b); err != nil {
		return err
	}
	if err := w.w.WriteByte('\n'); err != nil {
		return err
	}
	return w.w.Flush()
}

func (w *JSONLZstdWriter) rotateLocked(hour string) error {
	if err := w.closeLocked(); err != nil {
		return err
	}
	dir := filepath.Dir(w.pathForHour(hour))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(w.pathForHour(hour), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = f.Close()
		return err
	}
	w.f = f
	w.enc = enc
	w.w = bufio.NewWriterSize(enc, 128*1024)
	w.curHour = hour
	return nil
}

func (w *JSONLZstdWriter) closeLocked() error {
	var err1 error
	if w.w != nil {
		_ = w.w.Flush()
	}
	if w.enc != nil {
		err1 = w.enc.Close()
		w.enc = nil
	}
	if w.f != nil {
		_ = w.f.Close()
		w.f = nil
	}
	w.w = nil
	return err1
}

func (w *JSONLZstdWriter) pathForHour(hour string) string {
	return filepath.Join(w.baseDir, fmt.Sprintf("%s-%s.jsonl.zst", w.prefix, hour))
}

// EventKind names a region lifecycle transition.
type EventKind string

const (
	EventLoadRequested EventKind = "load_requested"
	EventLoaded        EventKind = "loaded"
	EventGenerated     EventKind = "generated"
	EventSaveRequested EventKind = "save_requested"
	EventSaved         EventKind = "saved"
	EventEvicted       EventKind = "evicted"
	EventLoadFailed    EventKind = "load_failed"
	EventSaveFailed    EventKind = "save_failed"
)

// Event is one lifecycle transition on a single region.
type Event struct {
	Time    time.Time `json:"time"`
	Kind    EventKind `json:"kind"`
	RX      int       `json:"rx"`
	RY      int       `json:"ry"`
	Detail  string    `json:"detail,omitempty"`
	TickAge uint64    `json:"tick_age,omitempty"`
}

// Logger writes region lifecycle events to an hourly-rotated zstd JSONL
// file under <worldDir>/region-events/.
type Logger struct{ w *JSONLZstdWriter }

// New returns a Logger writing under worldDir/region-events.
func New(worldDir string) *Logger {
	return &Logger{w: NewJSONLZstdWriter(filepath.Join(worldDir, "region-events"), "region-events")}
}

// Log writes one event. Marshalling/IO errors are swallowed by the caller's
// choice, since a lost audit line must never block the tick or a background
// worker; call LogErr instead to observe failures.
func (l *Logger) Log(e Event) { _ = l.LogErr(e) }

// LogErr writes one event and returns any marshal/IO error.
func (l *Logger) LogErr(e Event) error {
	if e.Time.IsZero() {
		e.Time = time.Now().UTC()
	}
	return l.w.Write(e)
}

func (l *Logger) Close() error { return l.w.Close() }
