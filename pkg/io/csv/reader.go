// Package csv reads entity records from CSV exports of the access graph.
package csv

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/hed1ad/accessguard/pkg/features"
)

// Reader reads records from CSV files. The first row names the attributes
// unless columns are supplied with WithColumns.
type Reader struct {
	file    *os.File
	reader  *csv.Reader
	headers []string
}

// Option configures a CSV reader.
type Option func(*Reader)

// WithColumns supplies attribute names for a headerless file.
func WithColumns(names ...string) Option {
	return func(r *Reader) {
		r.headers = names
	}
}

// WithComma sets the field delimiter.
func WithComma(c rune) Option {
	return func(r *Reader) {
		r.reader.Comma = c
	}
}

// NewReader opens a CSV file.
func NewReader(filename string, opts ...Option) (*Reader, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, err
	}

	r, err := newReader(file, opts...)
	if err != nil {
		file.Close()
		return nil, err
	}
	r.file = file
	return r, nil
}

// NewReaderFrom reads CSV from any stream.
func NewReaderFrom(src io.Reader, opts ...Option) (*Reader, error) {
	return newReader(src, opts...)
}

func newReader(src io.Reader, opts ...Option) (*Reader, error) {
	r := &Reader{reader: csv.NewReader(src)}
	r.reader.TrimLeadingSpace = true

	for _, opt := range opts {
		opt(r)
	}

	// Read header if no columns were given
	if len(r.headers) == 0 {
		headers, err := r.reader.Read()
		if err == io.EOF {
			return nil, errors.New("csv: missing header row")
		}
		if err != nil {
			return nil, err
		}
		for i := range headers {
			headers[i] = strings.TrimSpace(headers[i])
		}
		r.headers = headers
	}

	return r, nil
}

// Headers returns the column headers.
func (r *Reader) Headers() []string {
	return r.headers
}

// Records returns every remaining row keyed by header. Empty cells are left
// out so the feature builder imputes them.
func (r *Reader) Records(ctx context.Context) ([]features.Record, error) {
	var records []features.Record
	line := 1

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		row, err := r.reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("csv: line %d: %w", line, err)
		}
		if len(row) != len(r.headers) {
			return nil, fmt.Errorf("csv: line %d: %d fields, want %d", line, len(row), len(r.headers))
		}

		rec := make(features.Record, len(row))
		for i, val := range row {
			if val = strings.TrimSpace(val); val != "" {
				rec[r.headers[i]] = val
			}
		}
		records = append(records, rec)
	}

	return records, nil
}

// Close releases resources.
func (r *Reader) Close() error {
	if r.file != nil {
		return r.file.Close()
	}
	return nil
}
