package jsonl

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Stdout is the path value that sends records to standard output.
const Stdout = "-"

// Writer appends one JSON object per line to a file or to stdout.
// Safe for concurrent use; a nil *Writer discards everything.
type Writer struct {
	mu   sync.Mutex
	path string
	out  io.Writer
	file *os.File
	buf  *bufio.Writer
}

// New returns a writer for path, or nil when path is blank. The file and
// its directory are created lazily on the first record.
func New(path string) *Writer {
	path = strings.TrimSpace(path)
	switch path {
	case "":
		return nil
	case Stdout:
		return NewWriter(os.Stdout)
	}
	return &Writer{path: path}
}

// NewWriter wraps an existing stream. Close flushes but does not close it.
func NewWriter(out io.Writer) *Writer {
	return &Writer{path: Stdout, out: out, buf: bufio.NewWriter(out)}
}

func (w *Writer) Path() string {
	if w == nil {
		return ""
	}
	return w.path
}

func (w *Writer) openLocked() error {
	if w.buf != nil {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(w.path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(w.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	w.file = f
	w.buf = bufio.NewWriterSize(f, 64*1024)
	return nil
}

// Write marshals v and appends it followed by a newline. Each record is
// flushed so tailers see it immediately.
func (w *Writer) Write(v any) error {
	if w == nil {
		return nil
	}
	if v == nil {
		return fmt.Errorf("jsonl: nil record")
	}
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	b = append(b, '\n')

	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.openLocked(); err != nil {
		return err
	}
	if _, err := w.buf.Write(b); err != nil {
		return err
	}
	return w.buf.Flush()
}

func (w *Writer) Close() error {
	if w == nil {
		return nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	var errs []error
	if w.buf != nil {
		errs = append(errs, w.buf.Flush())
	}
	if w.file != nil {
		if err := w.file.Close(); !errors.Is(err, os.ErrClosed) {
			errs = append(errs, err)
		}
		w.file = nil
		w.buf = nil
	}
	return errors.Join(errs...)
}
