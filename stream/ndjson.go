package stream

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"sync"

	"github.com/goccy/go-json"
)

// MaxLineSize is the longest NDJSON line NDJSONReader accepts.
const MaxLineSize = 16 << 20

// NDJSONReader reads one JSON resource per line. Blank lines are skipped.
type NDJSONReader struct {
	scanner *bufio.Scanner
	line    int
}

// NewNDJSONReader creates a reader over r.
func NewNDJSONReader(r io.Reader) *NDJSONReader {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), MaxLineSize)
	return &NDJSONReader{scanner: sc}
}

// Next returns the next resource. It returns io.EOF after the last line.
// The returned slice is a copy and stays valid after further calls.
func (r *NDJSONReader) Next() ([]byte, error) {
	for r.scanner.Scan() {
		r.line++
		line := bytes.TrimSpace(r.scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		if !json.Valid(line) {
			return nil, fmt.Errorf("line %d: invalid JSON", r.line)
		}
		return append([]byte(nil), line...), nil
	}
	if err := r.scanner.Err(); err != nil {
		return nil, fmt.Errorf("line %d: %w", r.line+1, err)
	}
	return nil, io.EOF
}

// Line returns the number of the last line read.
func (r *NDJSONReader) Line() int { return r.line }

// ReadAll returns every remaining resource.
func (r *NDJSONReader) ReadAll() ([][]byte, error) {
	var out [][]byte
	for {
		data, err := r.Next()
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out = append(out, data)
	}
}

// NDJSONWriter writes one JSON value per line. It is safe for concurrent
// use; each value is written as a whole line.
type NDJSONWriter struct {
	mu    sync.Mutex
	w     *bufio.Writer
	count int
}

// NewNDJSONWriter creates a writer on w. Call Flush when done.
func NewNDJSONWriter(w io.Writer) *NDJSONWriter {
	return &NDJSONWriter{w: bufio.NewWriter(w)}
}

// Write encodes v on its own line. Records keep their field order.
func (w *NDJSONWriter) Write(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode line %d: %w", w.Count()+1, err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if _, err := w.w.Write(data); err != nil {
		return err
	}
	if err := w.w.WriteByte('\n'); err != nil {
		return err
	}
	w.count++
	return nil
}

// Count returns the number of lines written.
func (w *NDJSONWriter) Count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.count
}

// Flush writes buffered lines to the underlying writer.
func (w *NDJSONWriter) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.w.Flush()
}
