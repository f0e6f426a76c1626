package main

import (
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/hed1ad/accessguard/pkg/config"
	"github.com/hed1ad/accessguard/pkg/logger"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

type app struct {
	configPath string
	logLevel   string

	cfg    *config.Config
	log    *zap.Logger
	stdout io.Writer
	stderr io.Writer
}

func newRootCommand(out, errOut io.Writer) *cobra.Command {
	a := &app{stdout: out, stderr: errOut}

	cmd := &cobra.Command{
		Use:   "accessguard",
		Short: "Multi-method anomaly detection over access-graph entities",
		Long: `accessguard builds a feature table from an access-graph export, scores every
entity with an isolation forest, a local outlier factor and DBSCAN clustering,
and joins the verdicts into a weighted risk report.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       version,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.log != nil {
				_ = a.log.Sync()
			}
		},
	}
	cmd.SetOut(out)
	cmd.SetErr(errOut)

	cmd.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "path to the config file (default: ./accessguard.yaml if present)")
	cmd.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "override log.level (debug, info, warn, error)")

	cmd.AddCommand(
		newRunCmd(a),
		newServeCmd(a),
		newVersionCmd(a),
	)
	return cmd
}

func (a *app) init() error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	if a.logLevel != "" {
		cfg.Log.Level = a.logLevel
	}

	log, err := logger.New(cfg.Log)
	if err != nil {
		return err
	}

	a.cfg = cfg
	a.log = log.With(zap.String("app", cfg.App.Name))
	return nil
}
