package main

import (
	"errors"
	"io"
	"os"
	"path/filepath"

	"github.com/lattice-substrate/json-guard/guarderr"
)

func readInput(path string, stdin io.Reader, maxInputSize int) ([]byte, error) {
	if path == "" || path == "-" {
		return readBounded(stdin, maxInputSize)
	}

	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, guarderr.Wrap(guarderr.CLIUsage, -1, "read file "+path, err)
		}
		return nil, guarderr.Wrap(guarderr.InternalIO, -1, "read file "+path, err)
	}
	defer func() {
		_ = f.Close()
	}()
	return readBounded(f, maxInputSize)
}

// readBounded reads at most maxInputSize bytes and fails if r holds more.
func readBounded(r io.Reader, maxInputSize int) ([]byte, error) {
	lr := io.LimitReader(r, int64(maxInputSize)+1)
	data, err := io.ReadAll(lr)
	if err != nil {
		return nil, guarderr.Wrap(guarderr.InternalIO, -1, "read input", err)
	}
	if len(data) > maxInputSize {
		return nil, guarderr.Newf(guarderr.BoundExceeded, maxInputSize, "input exceeds maximum size %d bytes", maxInputSize)
	}
	return data, nil
}

// writeAtomic writes data to a temporary file in the destination directory
// and renames it into place, so readers never see a partial document.
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)

	tmp, err := os.CreateTemp(dir, ".json-guard-*.tmp")
	if err != nil {
		return guarderr.Wrap(guarderr.InternalIO, -1, "create temp file", err)
	}
	tmpPath := tmp.Name()

	success := false
	defer func() {
		if !success {
			_ = tmp.Close()
			_ = os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		return guarderr.Wrap(guarderr.InternalIO, -1, "write temp file", err)
	}
	if err := tmp.Sync(); err != nil {
		return guarderr.Wrap(guarderr.InternalIO, -1, "sync temp file", err)
	}
	if err := tmp.Close(); err != nil {
		return guarderr.Wrap(guarderr.InternalIO, -1, "close temp file", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return guarderr.Wrap(guarderr.InternalIO, -1, "rename temp file", err)
	}
	success = true

	syncDir(dir)
	return nil
}

// syncDir makes the rename durable where the platform allows it.
func syncDir(dir string) {
	d, err := os.Open(dir)
	if err != nil {
		return
	}
	_ = d.Sync()
	_ = d.Close()
}
