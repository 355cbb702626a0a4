package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/apache/arrow-go/v18/arrow/csv"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/unicode"
)

// DelimitedExporter writes tables as delimiter separated text files (CSV, TSV).
type DelimitedExporter struct {
	dir      string
	ext      string
	comma    rune
	encoding encoding.Encoding
	zstd     bool
}

// NewDelimitedExporter creates a new DelimitedExporter writing into dir.
// The files are written in the named text encoding, utf-8 when empty.
func NewDelimitedExporter(dir, ext string, comma rune, enc string, compress bool) (*DelimitedExporter, error) {
	e := &DelimitedExporter{
		dir:      dir,
		ext:      ext,
		comma:    comma,
		encoding: unicode.UTF8,
		zstd:     compress,
	}

	if enc != "" {
		found, err := htmlindex.Get(enc)
		if err != nil {
			return nil, fmt.Errorf("unknown encoding %q: %w", enc, err)
		}
		e.encoding = found
	}

	return e, nil
}

// Format implements Exporter.
func (e *DelimitedExporter) Format() string { return e.ext }

// Export implements Exporter.
func (e *DelimitedExporter) Export(_ context.Context, frame *Frame) (string, error) {
	ext := e.ext
	if e.zstd {
		ext += zstdExt
	}

	filename := tablePath(e.dir, frame.Name, ext)
	f, err := os.Create(filename)
	if err != nil {
		return "", fmt.Errorf("open file: %w", err)
	}
	defer func() { _ = f.Close() }()

	var out io.Writer = f
	var compressor io.WriteCloser
	if e.zstd {
		compressor, err = NewCompressor(f)
		if err != nil {
			return "", err
		}
		out = compressor
	}

	encoded := e.encoding.NewEncoder().Writer(out)
	writer := csv.NewWriter(encoded, frame.Schema(),
		csv.WithComma(e.comma),
		csv.WithHeader(true),
		csv.WithNullWriter(""),
		csv.WithBoolWriter(formatBool),
	)

	if err := writer.Write(frame.Record()); err != nil {
		return "", fmt.Errorf("write record: %w", err)
	}
	if err := writer.Flush(); err != nil {
		return "", fmt.Errorf("flush writer: %w", err)
	}
	if c, ok := encoded.(io.Closer); ok {
		if err := c.Close(); err != nil {
			return "", fmt.Errorf("flush encoder: %w", err)
		}
	}
	if compressor != nil {
		if err := compressor.Close(); err != nil {
			return "", fmt.Errorf("close compressor: %w", err)
		}
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("close file: %w", err)
	}

	return filename, nil
}

func formatBool(b bool) string {
	if b {
		return "True"
	}
	return "False"
}
