package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/apache/arrow-go/v18/arrow/ipc"
)

// FeatherExporter writes tables as Feather (Arrow IPC file) files.
type FeatherExporter struct {
	dir  string
	opts []ipc.Option
}

// NewFeatherExporter creates a new FeatherExporter writing into dir.
// Compression is one of lz4 (the default), zstd or none.
func NewFeatherExporter(dir, compression string) (*FeatherExporter, error) {
	e := &FeatherExporter{dir: dir}
	switch strings.ToLower(compression) {
	case "", "lz4":
		e.opts = append(e.opts, ipc.WithLZ4())
	case "zstd":
		e.opts = append(e.opts, ipc.WithZstd())
	case "none", "uncompressed":
	default:
		return nil, fmt.Errorf("unknown feather compression %q", compression)
	}
	return e, nil
}

// Format implements Exporter.
func (e *FeatherExporter) Format() string { return FormatFeather }

// Export implements Exporter.
func (e *FeatherExporter) Export(_ context.Context, frame *Frame) (string, error) {
	filename := tablePath(e.dir, frame.Name, "feather")
	f, err := os.Create(filename)
	if err != nil {
		return "", fmt.Errorf("open file: %w", err)
	}
	defer func() { _ = f.Close() }()

	opts := append([]ipc.Option{ipc.WithSchema(frame.Schema())}, e.opts...)
	writer, err := ipc.NewFileWriter(f, opts...)
	if err != nil {
		return "", fmt.Errorf("create writer: %w", err)
	}

	if err := writer.Write(frame.Record()); err != nil {
		_ = writer.Close()
		return "", fmt.Errorf("write record: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("close writer: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("close file: %w", err)
	}

	return filename, nil
}
