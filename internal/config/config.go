// Package config loads controller settings from defaults, an optional YAML
// file and GAITEVO_* environment variables, in increasing precedence.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"gaitevo/internal/control"
	"gaitevo/internal/evo"
	"gaitevo/internal/fall"
	"gaitevo/internal/simbody"
	"gaitevo/internal/storage"
)

const EnvPrefix = "GAITEVO"

type Config struct {
	Logger    LoggerConfig          `mapstructure:"logger"`
	Fall      fall.Config           `mapstructure:"fall"`
	Arbiter   control.ArbiterConfig `mapstructure:"arbiter"`
	Evolution evo.Config            `mapstructure:"evolution"`
	Loop      control.LoopSettings  `mapstructure:"loop"`
	Store     StoreConfig           `mapstructure:"store"`
	Metrics   MetricsConfig         `mapstructure:"metrics"`
	Sim       simbody.Config        `mapstructure:"sim"`
}

type LoggerConfig struct {
	Level       string `mapstructure:"level"`
	Format      string `mapstructure:"format"`
	AddSource   bool   `mapstructure:"add_source"`
	ServiceName string `mapstructure:"service_name"`
	LogFile     string `mapstructure:"log_file"`
	MaxSize     int    `mapstructure:"max_size"`
	MaxBackups  int    `mapstructure:"max_backups"`
	MaxAge      int    `mapstructure:"max_age"`
	Compress    bool   `mapstructure:"compress"`
}

type StoreConfig struct {
	Kind       string `mapstructure:"kind"`
	SQLitePath string `mapstructure:"sqlite_path"`
}

// MetricsConfig enables the prometheus endpoint when ListenAddr is set.
type MetricsConfig struct {
	ListenAddr string `mapstructure:"listen_addr"`
}

// SetDefaults initializes default values for every section.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "gaitevo")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 3)
	v.SetDefault("logger.max_age", 28)
	v.SetDefault("logger.compress", false)

	// -- Fall --
	v.SetDefault("fall.axis", 1)
	v.SetDefault("fall.rest_value", 512.0)
	v.SetDefault("fall.tolerance", 80.0)
	v.SetDefault("fall.threshold", 100)
	v.SetDefault("fall.valid_min", 0.0)
	v.SetDefault("fall.valid_max", 1023.0)

	// -- Arbiter --
	v.SetDefault("arbiter.mode", control.ArbiterIncremental)
	v.SetDefault("arbiter.speed_step", 0.2)
	v.SetDefault("arbiter.turn_step", 0.2)
	v.SetDefault("arbiter.forward_bounds.min", -1.0)
	v.SetDefault("arbiter.forward_bounds.max", 2.0)
	v.SetDefault("arbiter.turn_bounds.min", -1.0)
	v.SetDefault("arbiter.turn_bounds.max", 1.0)
	v.SetDefault("arbiter.baseline_speed", 1.0)
	v.SetDefault("arbiter.momentary_turn", 0.5)
	v.SetDefault("arbiter.momentary_lateral", 0.2)

	// -- Evolution --
	v.SetDefault("evolution.population", 10)
	v.SetDefault("evolution.generations", 15)
	v.SetDefault("evolution.eval_duration", "4000ms")
	v.SetDefault("evolution.tournament_size", 3)
	v.SetDefault("evolution.forward_sigma", 0.1)
	v.SetDefault("evolution.turn_sigma", 0.05)
	v.SetDefault("evolution.forward_bounds.min", 0.0)
	v.SetDefault("evolution.forward_bounds.max", 2.0)
	v.SetDefault("evolution.turn_bounds.min", -1.0)
	v.SetDefault("evolution.turn_bounds.max", 1.0)
	v.SetDefault("evolution.seed", 0)

	// -- Loop --
	v.SetDefault("loop.status_interval", "1s")
	v.SetDefault("loop.settle", "200ms")

	// -- Store --
	v.SetDefault("store.kind", storage.KindMemory)
	v.SetDefault("store.sqlite_path", "gaitevo.db")

	// -- Metrics --
	v.SetDefault("metrics.listen_addr", "")

	// -- Bench body --
	v.SetDefault("sim.time_step", "16ms")
	v.SetDefault("sim.max_ticks", 0)
	v.SetDefault("sim.rest_value", 512.0)
	v.SetDefault("sim.stable_forward", 1.5)
	v.SetDefault("sim.stable_turn", 0.8)
	v.SetDefault("sim.stable_lateral", 0.5)
	v.SetDefault("sim.tilt_gain", 40.0)
	v.SetDefault("sim.fallen_tilt", 300.0)
	v.SetDefault("sim.init_pose_ticks", 12)
	v.SetDefault("sim.recover_pose_ticks", 90)
}

// BindEnv makes every key overridable as GAITEVO_SECTION_KEY.
func BindEnv(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Load reads defaults, then path (if not empty), then the environment.
func Load(path string) (*Config, error) {
	v := viper.New()
	SetDefaults(v)
	BindEnv(v)
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}
	return NewConfigFromViper(v)
}

func (c *Config) Validate() error {
	switch strings.ToLower(c.Logger.Format) {
	case "console", "json":
	default:
		return fmt.Errorf("logger.format must be console or json, got %q", c.Logger.Format)
	}
	if err := c.Fall.Validate(); err != nil {
		return fmt.Errorf("fall: %w", err)
	}
	if err := c.Arbiter.Validate(); err != nil {
		return fmt.Errorf("arbiter: %w", err)
	}
	switch strings.ToLower(strings.TrimSpace(c.Arbiter.Mode)) {
	case control.ArbiterIncremental, control.ArbiterMomentary:
	default:
		return fmt.Errorf("arbiter.mode must be %s or %s, got %q", control.ArbiterIncremental, control.ArbiterMomentary, c.Arbiter.Mode)
	}
	if err := c.Evolution.Validate(); err != nil {
		return fmt.Errorf("evolution: %w", err)
	}
	if err := c.Loop.Validate(); err != nil {
		return fmt.Errorf("loop: %w", err)
	}
	switch c.Store.Kind {
	case storage.KindMemory:
	case storage.KindSQLite:
		if c.Store.SQLitePath == "" {
			return fmt.Errorf("store.sqlite_path is required for the sqlite store")
		}
	default:
		return fmt.Errorf("store.kind must be %s or %s, got %q", storage.KindMemory, storage.KindSQLite, c.Store.Kind)
	}
	if err := c.Sim.Validate(); err != nil {
		return fmt.Errorf("sim: %w", err)
	}
	return nil
}
