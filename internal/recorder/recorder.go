// Package recorder reads and writes NDJSON streams of readings.
package recorder

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
)

// Recorder writes one JSON document per line
type Recorder struct {
	closer io.Closer
	writer *bufio.Writer
	count  int
	mu     sync.Mutex
}

// NewRecorder creates filename and records into it. "-" records to stdout.
func NewRecorder(filename string) (*Recorder, error) {
	if filename == "-" {
		return NewWriterRecorder(os.Stdout), nil
	}
	file, err := os.Create(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to create recording file: %w", err)
	}

	return &Recorder{
		closer: file,
		writer: bufio.NewWriter(file),
	}, nil
}

// NewWriterRecorder records into w. Close flushes but does not close w.
func NewWriterRecorder(w io.Writer) *Recorder {
	return &Recorder{writer: bufio.NewWriter(w)}
}

// Record encodes v as one NDJSON line
func (r *Recorder) Record(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode entry: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, err := r.writer.Write(data); err != nil {
		return fmt.Errorf("failed to write entry: %w", err)
	}

	if err := r.writer.WriteByte('\n'); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}

	r.count++
	return nil
}

// Count returns the number of entries recorded
func (r *Recorder) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count
}

// Flush flushes the buffer to disk
func (r *Recorder) Flush() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.writer.Flush()
}

// Close flushes and closes the recorder
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.writer.Flush(); err != nil {
		if r.closer != nil {
			r.closer.Close()
		}
		return fmt.Errorf("failed to flush buffer: %w", err)
	}

	if r.closer != nil {
		if err := r.closer.Close(); err != nil {
			return fmt.Errorf("failed to close file: %w", err)
		}
	}

	return nil
}
