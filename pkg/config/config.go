// Package config loads the accessguard configuration from an optional YAML
// file, an optional .env file and ACCESSGUARD_ environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/hed1ad/accessguard/pkg/detectors"
	"github.com/hed1ad/accessguard/pkg/detectors/dbscan"
	"github.com/hed1ad/accessguard/pkg/errorutil"
	"github.com/hed1ad/accessguard/pkg/explain"
	"github.com/hed1ad/accessguard/pkg/logger"
	"github.com/hed1ad/accessguard/pkg/pipeline"
)

// EnvPrefix prefixes every environment override, e.g. ACCESSGUARD_DETECTION_EPS.
const EnvPrefix = "ACCESSGUARD"

// Source types.
const (
	SourceCSV  = "csv"
	SourceSQL  = "sql"
	SourcePCAP = "pcap"
)

// Config is the full application configuration.
type Config struct {
	App       AppConfig        `mapstructure:"app"`
	Log       logger.Config    `mapstructure:"log"`
	Detection detectors.Config `mapstructure:"detection"`
	Explain   ExplainConfig    `mapstructure:"explain"`
	Clusters  ClustersConfig   `mapstructure:"clusters"`
	Source    SourceConfig     `mapstructure:"source"`
	Store     StoreConfig      `mapstructure:"store"`
	Redis     RedisConfig      `mapstructure:"redis"`
	Server    ServerConfig     `mapstructure:"server"`
}

// AppConfig names the deployment.
type AppConfig struct {
	Name string `mapstructure:"name"`
	Env  string `mapstructure:"env"`
}

// ExplainConfig holds explanation thresholds and the clustering outlier
// risk-factor multipliers.
type ExplainConfig struct {
	explain.Config `mapstructure:",squash"`

	OutlierAccessMultiplier    float64 `mapstructure:"outlier_access_multiplier"`
	OutlierSensitiveMultiplier float64 `mapstructure:"outlier_sensitive_multiplier"`
	OutlierDiversityMultiplier float64 `mapstructure:"outlier_diversity_multiplier"`
}

// ClustersConfig overrides the cluster classification rule table.
type ClustersConfig struct {
	Rules    []dbscan.Rule `mapstructure:"rules"`
	Fallback string        `mapstructure:"fallback"`
}

// SourceConfig selects where records come from.
type SourceConfig struct {
	Type    string        `mapstructure:"type"`
	Path    string        `mapstructure:"path"`
	Driver  string        `mapstructure:"driver"`
	DSN     string        `mapstructure:"dsn"`
	Query   string        `mapstructure:"query"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// StoreConfig locates the run history database. An empty path disables it.
type StoreConfig struct {
	Path string `mapstructure:"path"`
}

// RedisConfig configures summary publishing. An empty addr disables it.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Channel  string `mapstructure:"channel"`
}

// ServerConfig configures serve mode.
type ServerConfig struct {
	Addr     string        `mapstructure:"addr"`
	Interval time.Duration `mapstructure:"interval"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "accessguard")
	v.SetDefault("app.env", "development")

	lc := logger.DefaultConfig()
	v.SetDefault("log.level", lc.Level)
	v.SetDefault("log.format", lc.Format)
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", lc.MaxSizeMB)
	v.SetDefault("log.max_backups", lc.MaxBackups)
	v.SetDefault("log.max_age_days", lc.MaxAgeDays)
	v.SetDefault("log.compress", lc.Compress)

	dc := detectors.DefaultConfig()
	v.SetDefault("detection.contamination_isolation", dc.ContaminationIsolation)
	v.SetDefault("detection.contamination_local", dc.ContaminationLocal)
	v.SetDefault("detection.neighbor_count", dc.NeighborCount)
	v.SetDefault("detection.eps", dc.Eps)
	v.SetDefault("detection.min_points", dc.MinPoints)
	v.SetDefault("detection.random_seed", dc.RandomSeed)
	v.SetDefault("detection.trees", dc.Trees)
	v.SetDefault("detection.sample_size", dc.SampleSize)
	v.SetDefault("detection.top_n", dc.TopN)

	ec := explain.DefaultConfig()
	ot := dbscan.DefaultOutlierThresholds()
	v.SetDefault("explain.extreme_std", ec.ExtremeStd)
	v.SetDefault("explain.elevated_std", ec.ElevatedStd)
	v.SetDefault("explain.peer_multiplier", ec.PeerMultiplier)
	v.SetDefault("explain.roles.activity", ec.Roles.Activity)
	v.SetDefault("explain.roles.sensitive", ec.Roles.Sensitive)
	v.SetDefault("explain.roles.diversity", ec.Roles.Diversity)
	v.SetDefault("explain.outlier_access_multiplier", ot.Activity)
	v.SetDefault("explain.outlier_sensitive_multiplier", ot.Sensitive)
	v.SetDefault("explain.outlier_diversity_multiplier", ot.Diversity)

	v.SetDefault("clusters.fallback", dbscan.DefaultFallback)

	v.SetDefault("source.type", SourceCSV)
	v.SetDefault("source.path", "")
	v.SetDefault("source.driver", "sqlite")
	v.SetDefault("source.dsn", "")
	v.SetDefault("source.query", "")
	v.SetDefault("source.timeout", 30*time.Second)

	v.SetDefault("store.path", "")

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.channel", "accessguard:reports")

	v.SetDefault("server.addr", ":8090")
	v.SetDefault("server.interval", 15*time.Minute)
}

// Load reads configuration. An empty path searches for accessguard.yaml in
// the working directory and /etc/accessguard; a missing file is not an error
// unless the path was given explicitly.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env failed: %w", err)
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("accessguard")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/accessguard")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config failed: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config failed: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate returns the first ConfigurationError found.
func (c *Config) Validate() error {
	if err := c.Detection.Validate(); err != nil {
		return err
	}
	if c.Explain.ExtremeStd < c.Explain.ElevatedStd || c.Explain.ElevatedStd < 0 {
		return errorutil.Configuration("explain.extreme_std", "need extreme_std >= elevated_std >= 0")
	}
	if c.Explain.PeerMultiplier <= 0 {
		return errorutil.Configuration("explain.peer_multiplier", "must be positive, got %g", c.Explain.PeerMultiplier)
	}

	switch c.Source.Type {
	case SourceCSV, SourcePCAP, SourceSQL:
	default:
		return errorutil.Configuration("source.type", "unknown source type %q", c.Source.Type)
	}
	if c.Source.Timeout < 0 {
		return errorutil.Configuration("source.timeout", "must not be negative")
	}
	if c.Server.Interval < 0 {
		return errorutil.Configuration("server.interval", "must not be negative")
	}
	return nil
}

// Validate checks the fields the selected source type needs. It runs when
// the source is opened so command-line flags can fill them in first.
func (s SourceConfig) Validate() error {
	switch s.Type {
	case SourceCSV, SourcePCAP:
		if s.Path == "" {
			return errorutil.Configuration("source.path", "required for %s sources", s.Type)
		}
	case SourceSQL:
		if s.DSN == "" {
			return errorutil.Configuration("source.dsn", "required for sql sources")
		}
		if s.Query == "" {
			return errorutil.Configuration("source.query", "required for sql sources")
		}
	default:
		return errorutil.Configuration("source.type", "unknown source type %q", s.Type)
	}
	return nil
}

// Pipeline returns the run configuration.
func (c *Config) Pipeline() pipeline.Config {
	return pipeline.Config{
		Detection: c.Detection,
		Explain:   c.Explain.Config,
		Outliers: dbscan.OutlierThresholds{
			Activity:  c.Explain.OutlierAccessMultiplier,
			Sensitive: c.Explain.OutlierSensitiveMultiplier,
			Diversity: c.Explain.OutlierDiversityMultiplier,
		},
		Rules:         c.Clusters.Rules,
		Fallback:      c.Clusters.Fallback,
		SourceTimeout: c.Source.Timeout,
	}
}
