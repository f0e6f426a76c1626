package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hed1ad/accessguard/pkg/io"
	"github.com/hed1ad/accessguard/pkg/publish"
	"github.com/hed1ad/accessguard/pkg/server"
	"github.com/hed1ad/accessguard/pkg/store"
)

func newServeCmd(a *app) *cobra.Command {
	o := &runOptions{}
	var (
		addr     string
		interval time.Duration
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Re-run the analysis on an interval and serve the results over HTTP",
		Long: `Re-run the analysis on an interval and serve the results over HTTP.

Endpoints:

  GET  /health                 liveness and version
  GET  /metrics                prometheus metrics
  GET  /reports/latest         the most recent report
  GET  /runs                   run history (requires store.path)
  POST /runs                   run now
  GET  /runs/{id}              a stored report
  GET  /entities/{id}/history  an entity's verdicts across runs`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			o.apply(a)
			if addr != "" {
				a.cfg.Server.Addr = addr
			}
			if interval > 0 {
				a.cfg.Server.Interval = interval
			}
			return a.serve(cmd.Context())
		},
	}

	f := cmd.Flags()
	f.StringVar(&o.sourceType, "source", "", "source type: csv, sql or pcap (overrides source.type)")
	f.StringVarP(&o.input, "input", "i", "", "input file for csv and pcap sources (overrides source.path)")
	f.StringVar(&o.dsn, "dsn", "", "sql data source name (overrides source.dsn)")
	f.StringVar(&o.storePath, "store", "", "sqlite run history (overrides store.path)")
	f.StringVar(&addr, "addr", "", "listen address (overrides server.addr)")
	f.DurationVar(&interval, "interval", 0, "time between runs (overrides server.interval)")
	return cmd
}

func (a *app) serve(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := a.cfg.Source.Validate(); err != nil {
		return err
	}
	p, err := a.newPipeline()
	if err != nil {
		return err
	}

	opts := []server.ServiceOption{server.WithServiceLogger(a.log)}
	var history server.History
	if a.cfg.Store.Path != "" {
		st, err := store.Open(a.cfg.Store.Path, a.log)
		if err != nil {
			return err
		}
		defer st.Close()
		opts = append(opts, server.WithSaver(st))
		history = st
	}
	if rc := a.cfg.Redis; rc.Addr != "" {
		pub, err := publish.NewRedisPublisher(rc.Addr, rc.Password, rc.DB, rc.Channel, a.log)
		if err != nil {
			return err
		}
		defer pub.Close()
		opts = append(opts, server.WithPublisher(pub))
	}

	sc := a.cfg.Source
	svc := server.NewService(p, func(ctx context.Context) (io.Source, error) {
		return openSource(ctx, sc)
	}, opts...)
	srv := server.NewServer(a.cfg.Server.Addr, svc, history, version, a.log)

	interval := a.cfg.Server.Interval
	if interval <= 0 {
		interval = 15 * time.Minute
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.log.Info("http server listening", zap.String("addr", a.cfg.Server.Addr))
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		svc.Loop(gctx, interval)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		a.log.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
