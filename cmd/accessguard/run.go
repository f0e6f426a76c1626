package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/hed1ad/accessguard/pkg/features"
	"github.com/hed1ad/accessguard/pkg/io"
	"github.com/hed1ad/accessguard/pkg/io/report"
	"github.com/hed1ad/accessguard/pkg/pipeline"
	"github.com/hed1ad/accessguard/pkg/publish"
	"github.com/hed1ad/accessguard/pkg/risk"
	"github.com/hed1ad/accessguard/pkg/store"
)

type runOptions struct {
	sourceType string
	input      string
	driver     string
	dsn        string
	query      string
	output     string
	format     string
	storePath  string
	publish    bool
}

func newRunCmd(a *app) *cobra.Command {
	o := &runOptions{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Analyze one snapshot and write the risk report",
		Long: `Analyze one snapshot of the access graph and write the risk report.

Examples:

  accessguard run --input principals.csv
  accessguard run --source sql --driver pgx --dsn postgres://... --query 'SELECT * FROM principals'
  accessguard run --source pcap --input capture.pcapng --format yaml --output report.yaml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			o.apply(a)
			return a.runOnce(cmd.Context(), o)
		},
	}

	f := cmd.Flags()
	f.StringVar(&o.sourceType, "source", "", "source type: csv, sql or pcap (overrides source.type)")
	f.StringVarP(&o.input, "input", "i", "", "input file for csv and pcap sources (overrides source.path)")
	f.StringVar(&o.driver, "driver", "", "sql driver: sqlite or pgx (overrides source.driver)")
	f.StringVar(&o.dsn, "dsn", "", "sql data source name (overrides source.dsn)")
	f.StringVar(&o.query, "query", "", "sql query returning one row per entity (overrides source.query)")
	f.StringVarP(&o.output, "output", "o", "", "write the report to this file instead of stdout")
	f.StringVarP(&o.format, "format", "f", "", "report format: json or yaml (default: from --output extension, else json)")
	f.StringVar(&o.storePath, "store", "", "record the run in this sqlite history (overrides store.path)")
	f.BoolVar(&o.publish, "publish", false, "publish the summary to redis.addr")
	return cmd
}

// apply folds non-empty flags into the loaded configuration.
func (o *runOptions) apply(a *app) {
	sc := &a.cfg.Source
	override(&sc.Type, o.sourceType)
	override(&sc.Path, o.input)
	override(&sc.Driver, o.driver)
	override(&sc.DSN, o.dsn)
	override(&sc.Query, o.query)
	override(&a.cfg.Store.Path, o.storePath)
}

func override(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func (a *app) newPipeline() (*pipeline.Pipeline, error) {
	return pipeline.New(a.cfg.Pipeline(),
		pipeline.WithLogger(a.log),
		pipeline.WithBuilder(features.NewBuilder(features.WithSchema(schemaFor(a.cfg.Source)))),
	)
}

func (a *app) runOnce(ctx context.Context, o *runOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}

	p, err := a.newPipeline()
	if err != nil {
		return err
	}

	src, err := openSource(ctx, a.cfg.Source)
	if err != nil {
		return err
	}
	defer src.Close()

	r, err := p.Run(ctx, src)
	if err != nil {
		return err
	}

	if a.cfg.Store.Path != "" {
		st, err := store.Open(a.cfg.Store.Path, a.log)
		if err != nil {
			return err
		}
		defer st.Close()
		if err := st.SaveReport(ctx, r); err != nil {
			return fmt.Errorf("store report: %w", err)
		}
	}

	if o.publish {
		rc := a.cfg.Redis
		pub, err := publish.NewRedisPublisher(rc.Addr, rc.Password, rc.DB, rc.Channel, a.log)
		if err != nil {
			return err
		}
		defer pub.Close()
		if err := pub.Publish(ctx, r); err != nil {
			return err
		}
	}

	return a.writeReport(o, r)
}

func (a *app) writeReport(o *runOptions, r *risk.Report) error {
	var format report.Format
	if o.format != "" {
		f, err := report.ParseFormat(o.format)
		if err != nil {
			return err
		}
		format = f
	}

	var w io.ReportWriter
	dest := "stdout"
	if o.output == "" {
		if format == "" {
			format = report.FormatJSON
		}
		w = report.NewWriter(a.stdout, format)
	} else {
		fw, err := report.NewFileWriter(o.output, format)
		if err != nil {
			return err
		}
		defer fw.Close()
		w, dest = fw, o.output
	}

	if err := w.Write(r); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	a.log.Info("report written", zap.String("run_id", r.RunID), zap.String("output", dest))
	return nil
}
