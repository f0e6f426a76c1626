// Package io provides the input and output boundaries of an analysis run.
package io

import (
	"context"

	"github.com/hed1ad/accessguard/pkg/features"
	"github.com/hed1ad/accessguard/pkg/risk"
)

// Source is the interface for reading entity records from the external store.
type Source interface {
	// Records returns the complete snapshot of entity records.
	Records(ctx context.Context) ([]features.Record, error)

	// Close releases resources.
	Close() error
}

// SourceFunc adapts a function to a Source with a no-op Close.
type SourceFunc func(ctx context.Context) ([]features.Record, error)

// Records calls f.
func (f SourceFunc) Records(ctx context.Context) ([]features.Record, error) { return f(ctx) }

// Close does nothing.
func (f SourceFunc) Close() error { return nil }

// Static returns a Source that always yields the given records.
func Static(records []features.Record) Source {
	return SourceFunc(func(context.Context) ([]features.Record, error) {
		return records, nil
	})
}

// ReportWriter is the interface for writing run reports.
type ReportWriter interface {
	// Write outputs a single report.
	Write(report *risk.Report) error
}
