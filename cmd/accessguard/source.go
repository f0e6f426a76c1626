package main

import (
	"context"

	"github.com/hed1ad/accessguard/pkg/config"
	"github.com/hed1ad/accessguard/pkg/features"
	"github.com/hed1ad/accessguard/pkg/io"
	"github.com/hed1ad/accessguard/pkg/io/csv"
	"github.com/hed1ad/accessguard/pkg/io/pcap"
	"github.com/hed1ad/accessguard/pkg/io/sqlsource"
)

// openSource opens the configured record source.
func openSource(_ context.Context, sc config.SourceConfig) (io.Source, error) {
	if err := sc.Validate(); err != nil {
		return nil, err
	}

	var (
		src io.Source
		err error
	)
	switch sc.Type {
	case config.SourcePCAP:
		src, err = pcap.NewFileReader(sc.Path)
	case config.SourceSQL:
		src, err = sqlsource.Open(sc.Driver, sc.DSN, sc.Query)
	default:
		src, err = csv.NewReader(sc.Path)
	}
	if err != nil {
		return nil, err
	}
	return src, nil
}

// schemaFor returns the feature schema of the records a source type yields.
func schemaFor(sc config.SourceConfig) features.Schema {
	if sc.Type == config.SourcePCAP {
		return pcap.Schema()
	}
	return features.DefaultSchema()
}
