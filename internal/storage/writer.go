package storage

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

// Writer persists partitions under the layout root. Each archive is written
// to a temp file in the target directory and renamed into place, so readers
// never observe a half-written partition.
type Writer struct {
	layout  Layout
	encoder *Encoder
	logger  *slog.Logger
}

func NewWriter(encoder *Encoder, logger *slog.Logger) *Writer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Writer{layout: encoder.Layout(), encoder: encoder, logger: logger}
}

// Exists reports whether the partition file for k is already on disk.
func (w *Writer) Exists(k Key) bool {
	_, err := os.Stat(w.layout.PartitionPath(k))
	return err == nil
}

// Path returns where the partition for k is written.
func (w *Writer) Path(k Key) string { return w.layout.PartitionPath(k) }

// Write encodes p and atomically replaces its partition file. It returns the
// final path.
func (w *Writer) Write(p Partition) (string, error) {
	data, err := w.encoder.Encode(p)
	if err != nil {
		return "", err
	}
	path := w.layout.PartitionPath(p.Key)
	if err := WriteFileAtomic(path, data); err != nil {
		return "", &EncodingError{Key: p.Key, Err: err}
	}
	w.logger.Debug("partition written", "key", p.Key.String(), "path", path, "rows", len(p.Bars), "bytes", len(data))
	return path, nil
}

// WriteFileAtomic writes data to a temp file next to path and renames it
// into place, creating the directory when needed.
func WriteFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create folder %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		cleanup()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		cleanup()
		return err
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return err
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		cleanup()
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		cleanup()
		return err
	}
	return nil
}
