// Package config reads service settings from the environment, optionally on
// top of a YAML file named by CONFIG_FILE. Environment values win.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	HTTPAddr string `yaml:"http_addr"`
	LogLevel string `yaml:"log_level"`

	StorageDriver string `yaml:"storage_driver"`
	SQLitePath    string `yaml:"sqlite_path"`
	DatabaseURL   string `yaml:"database_url"`

	MapsAPIKey         string  `yaml:"maps_api_key"`
	SnapRadiusMeters   float64 `yaml:"snap_radius_meters"`
	PolygonCloseMeters float64 `yaml:"polygon_close_meters"`

	FeatureRatioLimits bool `yaml:"feature_ratio_limits"`
	FeatureLineNaming  bool `yaml:"feature_line_naming"`
	FeaturePolygons    bool `yaml:"feature_polygons"`

	WorkspaceIdleTTL         time.Duration `yaml:"workspace_idle_ttl"`
	WorkspaceJanitorInterval time.Duration `yaml:"workspace_janitor_interval"`

	MQTTBroker   string `yaml:"mqtt_broker"`
	MQTTTopic    string `yaml:"mqtt_topic"`
	MQTTClientID string `yaml:"mqtt_client_id"`
}

const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

func Defaults() Config {
	return Config{
		HTTPAddr:                 ":8081",
		LogLevel:                 "info",
		StorageDriver:            DriverMemory,
		SQLitePath:               "data/fibermap.db",
		SnapRadiusMeters:         55,
		PolygonCloseMeters:       50,
		FeatureRatioLimits:       true,
		FeatureLineNaming:        true,
		FeaturePolygons:          true,
		WorkspaceIdleTTL:         30 * time.Minute,
		WorkspaceJanitorInterval: time.Minute,
		MQTTTopic:                "fibermap/events",
		MQTTClientID:             "fibermap-core-go",
	}
}

// Load builds the configuration from defaults, the YAML file named by
// CONFIG_FILE and the environment, in that order. getenv is os.Getenv in
// production.
func Load(getenv func(string) string) (Config, error) {
	cfg := Defaults()
	if path := strings.TrimSpace(getenv("CONFIG_FILE")); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	env := envReader{getenv: getenv}
	env.str("HTTP_ADDR", &cfg.HTTPAddr)
	env.str("LOG_LEVEL", &cfg.LogLevel)
	env.str("STORAGE_DRIVER", &cfg.StorageDriver)
	env.str("SQLITE_PATH", &cfg.SQLitePath)
	env.str("DATABASE_URL", &cfg.DatabaseURL)
	env.str("MAPS_API_KEY", &cfg.MapsAPIKey)
	env.float("SNAP_RADIUS_METERS", &cfg.SnapRadiusMeters)
	env.float("POLYGON_CLOSE_METERS", &cfg.PolygonCloseMeters)
	env.boolean("FEATURE_RATIO_LIMITS", &cfg.FeatureRatioLimits)
	env.boolean("FEATURE_LINE_NAMING", &cfg.FeatureLineNaming)
	env.boolean("FEATURE_POLYGONS", &cfg.FeaturePolygons)
	env.duration("WORKSPACE_IDLE_TTL", &cfg.WorkspaceIdleTTL)
	env.duration("WORKSPACE_JANITOR_INTERVAL", &cfg.WorkspaceJanitorInterval)
	env.str("MQTT_BROKER", &cfg.MQTTBroker)
	env.str("MQTT_TOPIC", &cfg.MQTTTopic)
	env.str("MQTT_CLIENT_ID", &cfg.MQTTClientID)
	if env.err != nil {
		return Config{}, env.err
	}

	cfg.StorageDriver = strings.ToLower(strings.TrimSpace(cfg.StorageDriver))
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	switch c.StorageDriver {
	case DriverMemory:
	case DriverSQLite:
		if strings.TrimSpace(c.SQLitePath) == "" {
			return fmt.Errorf("SQLITE_PATH is required for the sqlite driver")
		}
	case DriverPostgres:
		if strings.TrimSpace(c.DatabaseURL) == "" {
			return fmt.Errorf("DATABASE_URL is required for the postgres driver")
		}
	default:
		return fmt.Errorf("unknown STORAGE_DRIVER %q", c.StorageDriver)
	}
	if c.SnapRadiusMeters <= 0 || c.PolygonCloseMeters <= 0 {
		return fmt.Errorf("snap and polygon close radii must be positive")
	}
	return nil
}

// envReader keeps the first parse error so Load can report it once.
type envReader struct {
	getenv func(string) string
	err    error
}

func (r *envReader) lookup(key string) (string, bool) {
	v := strings.TrimSpace(r.getenv(key))
	return v, v != ""
}

func (r *envReader) str(key string, dst *string) {
	if v, ok := r.lookup(key); ok {
		*dst = v
	}
}

func (r *envReader) float(key string, dst *float64) {
	v, ok := r.lookup(key)
	if !ok || r.err != nil {
		return
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		r.err = fmt.Errorf("%s: invalid number %q", key, v)
		return
	}
	*dst = f
}

func (r *envReader) boolean(key string, dst *bool) {
	v, ok := r.lookup(key)
	if !ok || r.err != nil {
		return
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		r.err = fmt.Errorf("%s: invalid boolean %q", key, v)
		return
	}
	*dst = b
}

func (r *envReader) duration(key string, dst *time.Duration) {
	v, ok := r.lookup(key)
	if !ok || r.err != nil {
		return
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		r.err = fmt.Errorf("%s: invalid duration %q", key, v)
		return
	}
	*dst = d
}
