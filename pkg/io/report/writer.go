// Package report writes run reports as JSON or YAML.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/hed1ad/accessguard/pkg/risk"
)

// Format identifies a report encoding.
type Format string

// Supported formats.
const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// ParseFormat accepts "json", "yaml" or "yml".
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(s) {
	case "json", "":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	}
	return "", fmt.Errorf("unknown report format %q", s)
}

// FormatFor guesses the format from a file extension, defaulting to JSON.
func FormatFor(path string) Format {
	if f, err := ParseFormat(strings.TrimPrefix(filepath.Ext(path), ".")); err == nil {
		return f
	}
	return FormatJSON
}

// Writer encodes reports onto a stream.
type Writer struct {
	w      io.Writer
	format Format
	file   *os.File
}

// NewWriter writes to w.
func NewWriter(w io.Writer, format Format) *Writer {
	return &Writer{w: w, format: format}
}

// NewFileWriter creates (or truncates) path. An empty format follows the
// file extension.
func NewFileWriter(path string, format Format) (*Writer, error) {
	if format == "" {
		format = FormatFor(path)
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	return &Writer{w: f, format: format, file: f}, nil
}

// Write encodes one report.
func (w *Writer) Write(r *risk.Report) error {
	switch w.format {
	case FormatYAML:
		// Route through JSON so both encodings share field names.
		raw, err := json.Marshal(r)
		if err != nil {
			return err
		}
		var doc any
		if err := yaml.Unmarshal(raw, &doc); err != nil {
			return err
		}
		enc := yaml.NewEncoder(w.w)
		enc.SetIndent(2)
		if err := enc.Encode(doc); err != nil {
			return err
		}
		return enc.Close()
	default:
		enc := json.NewEncoder(w.w)
		enc.SetIndent("", "  ")
		return enc.Encode(r)
	}
}

// Close closes the underlying file, if any.
func (w *Writer) Close() error {
	if w.file != nil {
		return w.file.Close()
	}
	return nil
}
