package log

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"

	"riftminer.ai/internal/sim/world"
)

// Options controls file rotation. Zero values rotate hourly on UTC wall time.
type Options struct {
	// Layout is the time layout of the rotation bucket embedded in file names.
	Layout string
	Now    func() time.Time
}

func (o Options) normalized() Options {
	if o.Layout == "" {
		o.Layout = "2006-01-02-15"
	}
	if o.Now == nil {
		o.Now = func() time.Time { return time.Now().UTC() }
	}
	return o
}

// JSONLZstdWriter appends JSON lines to zstd files, one file per rotation bucket.
// Every Write is flushed through the encoder so a crash loses at most the line in flight.
type JSONLZstdWriter struct {
	baseDir string
	prefix  string
	opts    Options

	mu        sync.Mutex
	curBucket string
	f         *os.File
	enc       *zstd.Encoder
	w         *bufio.Writer
}

func NewJSONLZstdWriter(baseDir, prefix string, opts Options) *JSONLZstdWriter {
	return &JSONLZstdWriter{
		baseDir: baseDir,
		prefix:  prefix,
		opts:    opts.normalized(),
	}
}

func (w *JSONLZstdWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closeLocked()
}

func (w *JSONLZstdWriter) Write(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	bucket := w.opts.Now().Format(w.opts.Layout)
	if bucket != w.curBucket {
		if err := w.rotateLocked(bucket); err != nil {
			return err
		}
	}
	if _, err := w.w.Write(b); err != nil {
		return err
	}
	if err := w.w.WriteByte('\n'); err != nil {
		return err
	}
	if err := w.w.Flush(); err != nil {
		return err
	}
	return w.enc.Flush()
}

func (w *JSONLZstdWriter) rotateLocked(bucket string) error {
	if err := w.closeLocked(); err != nil {
		return err
	}
	path := w.PathFor(bucket)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
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
	w.curBucket = bucket
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
	w.curBucket = ""
	return err1
}

// PathFor returns the file a rotation bucket is written to.
func (w *JSONLZstdWriter) PathFor(bucket string) string {
	return filepath.Join(w.baseDir, fmt.Sprintf("%s-%s.jsonl.zst", w.prefix, bucket))
}

// ReadJSONL decodes every line of a zstd JSONL file. A truncated trailing frame ends the
// read without error.
func ReadJSONL(path string, fn func(line json.RawMessage) error) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return err
	}
	defer dec.Close()

	jd := json.NewDecoder(dec)
	for {
		var raw json.RawMessage
		if err := jd.Decode(&raw); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return nil
			}
			return err
		}
		if err := fn(raw); err != nil {
			return err
		}
	}
}

// TickLogger writes one JSONL entry per tick with cycle events (compressed).
type TickLogger struct{ w *JSONLZstdWriter }

func NewTickLogger(worldDir string, opts Options) *TickLogger {
	return &TickLogger{w: NewJSONLZstdWriter(filepath.Join(worldDir, "cycles"), "cycles", opts)}
}

func (l *TickLogger) WriteTick(v world.TickLogEntry) error { return l.w.Write(v) }
func (l *TickLogger) Close() error                         { return l.w.Close() }

// AuditLogger writes one JSONL entry per place, remove or bin access (compressed).
type AuditLogger struct{ w *JSONLZstdWriter }

func NewAuditLogger(worldDir string, opts Options) *AuditLogger {
	return &AuditLogger{w: NewJSONLZstdWriter(filepath.Join(worldDir, "audit"), "audit", opts)}
}

func (l *AuditLogger) WriteAudit(v world.AuditEntry) error { return l.w.Write(v) }
func (l *AuditLogger) Close() error                        { return l.w.Close() }
