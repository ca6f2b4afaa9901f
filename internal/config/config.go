package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store  StoreConfig  `yaml:"store" mapstructure:"store"`
	Screen ScreenConfig `yaml:"screen" mapstructure:"screen"`
	Rollup RollupConfig `yaml:"rollup" mapstructure:"rollup"`
	Server ServerConfig `yaml:"server" mapstructure:"server"`
	Log    LogConfig    `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// ScreenConfig configures stage execution defaults. Per-run overrides live in
// the run's config params and take precedence over these values.
type ScreenConfig struct {
	Concurrency       int     `yaml:"concurrency" mapstructure:"concurrency"`
	MinPopulation     float64 `yaml:"min_population" mapstructure:"min_population"`
	MaxDensity        float64 `yaml:"max_density" mapstructure:"max_density"`
	MinDensity        float64 `yaml:"min_density" mapstructure:"min_density"`
	MinMedianIncome   float64 `yaml:"min_median_income" mapstructure:"min_median_income"`
	MaxPovertyRate    float64 `yaml:"max_poverty_rate" mapstructure:"max_poverty_rate"`
	MaxRenterShare    float64 `yaml:"max_renter_share" mapstructure:"max_renter_share"`
	MaxFacilities     float64 `yaml:"max_facilities" mapstructure:"max_facilities"`
	MaxSqftPerCapita  float64 `yaml:"max_sqft_per_capita" mapstructure:"max_sqft_per_capita"`
	MinProjectedYield float64 `yaml:"min_projected_yield" mapstructure:"min_projected_yield"`
	MaxBreakevenOcc   float64 `yaml:"max_breakeven_occupancy" mapstructure:"max_breakeven_occupancy"`
	MaxLandPricePerAc float64 `yaml:"max_land_price_per_acre" mapstructure:"max_land_price_per_acre"`
}

// RollupConfig configures the county aggregation step.
type RollupConfig struct {
	MaxMeanDensity float64 `yaml:"max_mean_density" mapstructure:"max_mean_density"`
}

// ServerConfig configures the read-only status API.
type ServerConfig struct {
	Port           int     `yaml:"port" mapstructure:"port"`
	RequestsPerSec float64 `yaml:"requests_per_sec" mapstructure:"requests_per_sec"`
	Burst          int     `yaml:"burst" mapstructure:"burst"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("SITESELECT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 2)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.requests_per_sec", 10)
	v.SetDefault("server.burst", 20)
	v.SetDefault("screen.concurrency", 8)
	v.SetDefault("screen.min_population", 10000)
	v.SetDefault("screen.max_density", 3500)
	v.SetDefault("screen.min_density", 150)
	v.SetDefault("screen.min_median_income", 45000)
	v.SetDefault("screen.max_poverty_rate", 25)
	v.SetDefault("screen.max_renter_share", 75)
	v.SetDefault("screen.max_facilities", 8)
	v.SetDefault("screen.max_sqft_per_capita", 9)
	v.SetDefault("screen.min_projected_yield", 7.5)
	v.SetDefault("screen.max_breakeven_occupancy", 80)
	v.SetDefault("screen.max_land_price_per_acre", 1200000)
	v.SetDefault("rollup.max_mean_density", 3000)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks that the configuration required for database-backed
// commands is present.
func (c *Config) Validate() error {
	if c.Store.DatabaseURL == "" {
		return eris.New("config: store.database_url is required (set SITESELECT_STORE_DATABASE_URL)")
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
