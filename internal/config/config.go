package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"

	"github.com/couchcryptid/nwis-data-etl/nwis"
)

// Sinks the pipeline can load into.
const (
	SinkKafka    = "kafka"
	SinkPostgres = "postgres"
)

// Config holds all service settings, populated from environment variables.
// The env tag names the variable and is used in validation messages.
type Config struct {
	NWISBaseURL    string        `env:"NWIS_BASE_URL" validate:"required,url"`
	NWISService    string        `env:"NWIS_SERVICE" validate:"oneof=dv iv"`
	MajorFilter    nwis.Filters  `env:"NWIS_MAJOR_FILTER" validate:"len=1"`
	SiteFilters    nwis.Filters  `env:"NWIS_SITE_FILTERS"`
	DataFilters    nwis.Filters  `env:"NWIS_FILTERS"`
	ParameterCodes []string      `env:"NWIS_PARAMETER_CODES" validate:"min=1,dive,len=5,numeric"`
	Period         string        `env:"NWIS_PERIOD" validate:"omitempty,startswith=P"`
	NWISTimeout    time.Duration `env:"NWIS_TIMEOUT" validate:"gt=0s"`
	SiteChunkSize  int           `env:"NWIS_SITE_CHUNK_SIZE" validate:"gte=1,lte=500"`
	PollInterval   time.Duration `env:"POLL_INTERVAL" validate:"gte=1s"`

	Sink           string   `env:"SINK" validate:"oneof=kafka postgres"`
	KafkaBrokers   []string `env:"KAFKA_BROKERS"`
	KafkaSinkTopic string   `env:"KAFKA_SINK_TOPIC" validate:"required_if=Sink kafka"`
	DatabaseURL    string   `env:"DATABASE_URL" validate:"required_if=Sink postgres"`

	HTTPAddr        string        `env:"HTTP_ADDR" validate:"required"`
	LogLevel        string        `env:"LOG_LEVEL" validate:"oneof=debug info warn error"`
	LogFormat       string        `env:"LOG_FORMAT" validate:"oneof=json text"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT"`

	// Mapbox reverse geocoding of site coordinates.
	MapboxToken     string        `env:"MAPBOX_TOKEN" validate:"required_if=MapboxEnabled true"`
	MapboxEnabled   bool          `env:"MAPBOX_ENABLED"`
	MapboxTimeout   time.Duration `env:"MAPBOX_TIMEOUT" validate:"gt=0s"`
	MapboxCacheSize int           `env:"MAPBOX_CACHE_SIZE" validate:"gt=0"`
}

// Load reads configuration from environment variables, applying defaults where
// unset. A .env file in the working directory is read first when present;
// variables already set in the environment win.
func Load() (*Config, error) {
	_ = godotenv.Load(sharedcfg.EnvOrDefault("ENV_FILE", ".env"))

	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	var errs []error
	duration := func(key, def string) time.Duration {
		d, err := time.ParseDuration(sharedcfg.EnvOrDefault(key, def))
		if err != nil {
			errs = append(errs, fmt.Errorf("invalid %s: %w", key, err))
		}
		return d
	}
	integer := func(key string, def int) int {
		s := os.Getenv(key)
		if s == "" {
			return def
		}
		n, err := strconv.Atoi(s)
		if err != nil {
			errs = append(errs, fmt.Errorf("invalid %s: %w", key, err))
		}
		return n
	}
	filters := func(key, def string) nwis.Filters {
		f, err := ParseFilters(sharedcfg.EnvOrDefault(key, def))
		if err != nil {
			errs = append(errs, fmt.Errorf("invalid %s: %w", key, err))
		}
		return f
	}

	mapboxToken := os.Getenv("MAPBOX_TOKEN")
	mapboxEnabled := mapboxToken != ""
	if v := os.Getenv("MAPBOX_ENABLED"); v != "" {
		mapboxEnabled = v == "true"
	}

	cfg := &Config{
		NWISBaseURL:    sharedcfg.EnvOrDefault("NWIS_BASE_URL", nwis.DefaultRoot),
		NWISService:    sharedcfg.EnvOrDefault("NWIS_SERVICE", string(nwis.ServiceInstantaneous)),
		MajorFilter:    filters("NWIS_MAJOR_FILTER", "stateCd=ny"),
		SiteFilters:    filters("NWIS_SITE_FILTERS", "siteType=ST;siteStatus=active"),
		DataFilters:    filters("NWIS_FILTERS", ""),
		ParameterCodes: splitList(sharedcfg.EnvOrDefault("NWIS_PARAMETER_CODES", nwis.DefaultParameterCode)),
		Period:         sharedcfg.EnvOrDefault("NWIS_PERIOD", "PT2H"),
		NWISTimeout:    duration("NWIS_TIMEOUT", "30s"),
		SiteChunkSize:  integer("NWIS_SITE_CHUNK_SIZE", 100),
		PollInterval:   duration("POLL_INTERVAL", "15m"),

		Sink:           sharedcfg.EnvOrDefault("SINK", SinkKafka),
		KafkaBrokers:   sharedcfg.ParseBrokers(sharedcfg.EnvOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaSinkTopic: sharedcfg.EnvOrDefault("KAFKA_SINK_TOPIC", "nwis-time-series"),
		DatabaseURL:    os.Getenv("DATABASE_URL"),

		HTTPAddr:        sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,

		MapboxToken:     mapboxToken,
		MapboxEnabled:   mapboxEnabled,
		MapboxTimeout:   duration("MAPBOX_TIMEOUT", "5s"),
		MapboxCacheSize: integer("MAPBOX_CACHE_SIZE", 1000),
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}
	if err := nwis.ValidateMajorFilter(cfg.MajorFilter); err != nil {
		return nil, fmt.Errorf("invalid NWIS_MAJOR_FILTER: %w", err)
	}
	if cfg.Sink == SinkKafka && len(cfg.KafkaBrokers) == 0 {
		return nil, errors.New("KAFKA_BROKERS is required")
	}

	return cfg, nil
}

// Service returns the configured values service.
func (c *Config) Service() nwis.Service { return nwis.Service(c.NWISService) }

// QueryFilters returns the minor filters for data requests: NWIS_FILTERS with
// NWIS_PERIOD as period unless the filters already bound the time range.
func (c *Config) QueryFilters() nwis.Filters {
	f := c.DataFilters.Clone()
	_, hasPeriod := f["period"]
	_, hasStart := f["startDT"]
	if c.Period != "" && !hasPeriod && !hasStart {
		f.Set("period", c.Period)
	}
	return f
}

// ParseFilters parses "key=v1,v2;key2=v3" into Filters. Empty input yields
// an empty set.
func ParseFilters(s string) (nwis.Filters, error) {
	f := nwis.Filters{}
	for _, pair := range strings.Split(s, ";") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		key, value, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("filter %q: want key=value", pair)
		}
		f.Set(key, splitList(value)...)
	}
	return f, nil
}

func splitList(s string) []string {
	var out []string
	for _, v := range strings.Split(s, ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

var validate = newValidator()

// newValidator reports field errors by environment variable name, so a
// failure reads "NWIS_SERVICE failed oneof=dv iv".
func newValidator() func(*Config) error {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		if name := fld.Tag.Get("env"); name != "" {
			return name
		}
		return fld.Name
	})
	return func(cfg *Config) error {
		err := v.Struct(cfg)
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return err
		}
		msgs := make([]error, 0, len(verrs))
		for _, fe := range verrs {
			rule := fe.Tag()
			if fe.Param() != "" {
				rule += "=" + fe.Param()
			}
			msgs = append(msgs, fmt.Errorf("%s failed %s (got %v)", fe.Field(), rule, fe.Value()))
		}
		return errors.Join(msgs...)
	}
}
