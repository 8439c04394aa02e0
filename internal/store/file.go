package store

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"

	"github.com/synheart/vitalsynth/internal/models"
)

// maxLineSize bounds one NDJSON record.
const maxLineSize = 1 << 20

// FileStore is a MemoryStore persisted as an NDJSON file.
// Appends are flushed every FlushEvery records; deletes are saved immediately.
// Up to FlushEvery-1 appends are lost if the process dies between flushes.
type FileStore struct {
	*MemoryStore

	path       string
	flushEvery int
	logger     *zap.Logger

	mu      sync.Mutex // serializes Save and the pending counter
	pending int
	skipped int
}

// NewFileStore creates a store backed by path. flushEvery < 1 is treated as 1.
func NewFileStore(path string, flushEvery int, logger *zap.Logger) *FileStore {
	if flushEvery < 1 {
		flushEvery = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FileStore{
		MemoryStore: NewMemoryStore(),
		path:        path,
		flushEvery:  flushEvery,
		logger:      logger,
	}
}

// Path returns the backing file.
func (f *FileStore) Path() string {
	return f.path
}

// Skipped returns how many corrupt lines the last Load ignored.
func (f *FileStore) Skipped() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.skipped
}

// Load reads the backing file. A missing file is an empty history; corrupt lines are
// logged and skipped.
func (f *FileStore) Load(ctx context.Context) error {
	file, err := os.Open(f.path)
	if errors.Is(err, os.ErrNotExist) {
		f.replace(nil)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to open data file: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	var readings []models.Reading
	skipped := 0
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		if err := ctx.Err(); err != nil {
			return err
		}
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var r models.Reading
		if err := json.Unmarshal(line, &r); err != nil || r.ID == "" || r.DeviceID == "" {
			skipped++
			f.logger.Warn("skipping corrupt record",
				zap.String("path", f.path),
				zap.Int("line", lineNum),
				zap.Error(err))
			continue
		}
		readings = append(readings, r)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("error reading data file: %w", err)
	}

	f.replace(readings)
	f.mu.Lock()
	f.skipped = skipped
	f.pending = 0
	f.mu.Unlock()

	f.logger.Info("history loaded",
		zap.String("path", f.path),
		zap.Int("readings", len(readings)),
		zap.Int("skipped", skipped))
	return nil
}

// Append stores r and flushes when FlushEvery appends are pending.
// A failed flush is logged and leaves the appends pending for the next flush
// or Close; the reading stays in memory and Append still succeeds.
func (f *FileStore) Append(ctx context.Context, r models.Reading) error {
	if err := f.MemoryStore.Append(ctx, r); err != nil {
		return err
	}

	f.mu.Lock()
	f.pending++
	due := f.pending >= f.flushEvery
	f.mu.Unlock()

	if due {
		if err := f.Save(ctx); err != nil {
			f.logger.Warn("flush failed, will retry",
				zap.String("path", f.path),
				zap.Int("pending", f.Pending()),
				zap.Error(err))
		}
	}
	return nil
}

// Pending returns how many appends have not reached the backing file.
func (f *FileStore) Pending() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pending
}

func (f *FileStore) Delete(ctx context.Context, id string) (bool, error) {
	ok, _ := f.MemoryStore.Delete(ctx, id)
	if !ok {
		return false, nil
	}
	return true, f.Save(ctx)
}

func (f *FileStore) DeleteDevice(ctx context.Context, deviceID string) (int, error) {
	n, _ := f.MemoryStore.DeleteDevice(ctx, deviceID)
	if n == 0 {
		return 0, nil
	}
	return n, f.Save(ctx)
}

// Save rewrites the backing file atomically: a temp file in the same directory is
// written and renamed over the target.
func (f *FileStore) Save(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	readings, _ := f.MemoryStore.All(ctx)

	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(f.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()

	writer := bufio.NewWriter(tmp)
	encoder := json.NewEncoder(writer)
	for i := range readings {
		if err := encoder.Encode(&readings[i]); err != nil {
			tmp.Close()
			os.Remove(tmpName)
			return fmt.Errorf("failed to encode reading %s: %w", readings[i].ID, err)
		}
	}
	if err := writer.Flush(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to flush buffer: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmpName, f.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace data file: %w", err)
	}

	f.pending = 0
	f.logger.Debug("history saved", zap.String("path", f.path), zap.Int("readings", len(readings)))
	return nil
}

// Close saves the history.
func (f *FileStore) Close() error {
	return f.Save(context.Background())
}
