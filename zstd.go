package main

import (
	"bufio"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zstd"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

const zstdExt = ".zst"

// NewCompressor returns a writer compressing everything written to w.
// Closing it flushes the zstd frame but does not close w.
func NewCompressor(w io.Writer) (io.WriteCloser, error) {
	enc, err := zstd.NewWriter(w)
	if err != nil {
		return nil, errors.Wrap(err, "create zstd writer")
	}
	return enc, nil
}

// Decompress decompresses a zstd file into dir and returns the path of the
// decompressed file, named after the compressed one without its extension.
func Decompress(path, dir string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", errors.Errorf("open file: %s", err)
	}
	defer func() { _ = file.Close() }()

	zr, err := zstd.NewReader(file)
	if err != nil {
		return "", errors.Errorf("create zstd reader: %s", err)
	}
	defer zr.Close()

	pr, pw := io.Pipe()

	errs := errgroup.Group{}
	errs.Go(func() error {
		if _, err := io.Copy(pw, zr); err != nil {
			pw.CloseWithError(err)
			return errors.Errorf("copy to writer: %s", err)
		}
		if err := pw.Close(); err != nil {
			return errors.Errorf("closing pipe writer: %s", err)
		}
		return nil
	})

	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	newFilepath := filepath.Join(dir, base)
	df, err := os.OpenFile(newFilepath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		_ = pr.CloseWithError(err)
		_ = errs.Wait()
		return "", errors.Errorf("open new file: %s", err)
	}
	defer func() { _ = df.Close() }()

	writer := bufio.NewWriter(df)
	if _, err := io.Copy(writer, pr); err != nil {
		_ = pr.CloseWithError(err)
		_ = errs.Wait()
		return "", errors.Errorf("copy dest file: %s", err)
	}

	if err := errs.Wait(); err != nil {
		return "", errors.Errorf("errgroup wait: %s", err)
	}
	if err := writer.Flush(); err != nil {
		return "", errors.Wrap(err, "flush dest file")
	}
	if err := df.Close(); err != nil {
		return "", errors.Wrap(err, "close dest file")
	}
	return newFilepath, nil
}
