package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/02loveslollipop/shizuku-sos/services/sos/geom"
	"github.com/02loveslollipop/shizuku-sos/services/sos/identifier"
	"github.com/02loveslollipop/shizuku-sos/services/sos/model"
	"github.com/02loveslollipop/shizuku-sos/services/sos/streaming"
)

// DefaultNorthingFirstEPSG lists the EPSG codes defined with latitude first.
const DefaultNorthingFirstEPSG = "2044-2045,2081-2083,2085-2086,2093,2096-2101,2103-2104,2166-2170,2176-2180,2193,2200,2206-2212,2319,2320-2462,2523-2549,2551-2735,2738-2758,2935-2941,2953,3006-3030,3034-3035,3058-3059,3068,3114-3118,3126-3138,3300-3301,3328-3335,3346,3350-3352,3366,3416,4001-4999,20004-20032,20064-20092,21413-21423,21473-21483,21896-21899,22171,22181-22187,22191-22197,25884,27205-27232,27391-27398,27492,28402-28432,28462-28492,30161-30179,30800,31251-31259,31275-31279,31281-31290,31466-31700"

// Config holds environment-driven settings for the SOS service.
type Config struct {
	DatabaseURL string
	Port        int
	BearerToken string
	LogLevel    string

	ChunkSize int
	Strategy  streaming.Strategy
	MaxValues int
	MaxSeries int

	Prefixes identifier.Prefixes
	Encoding model.TextEncoding

	StorageSRID          int
	StorageNorthingFirst bool
	NorthingFirst        geom.Ranges

	RequestTimeout time.Duration
}

// Load reads configuration from environment variables (optionally .env).
func Load() (Config, error) {
	_ = godotenv.Load() // ignore missing file

	cfg := Config{
		Port:      8080,
		LogLevel:  "info",
		ChunkSize: 10000,
		Strategy:  streaming.Chunk,
		Encoding: model.TextEncoding{
			TokenSeparator:   ",",
			TupleSeparator:   "@@",
			DecimalSeparator: ".",
		},
		StorageSRID:    4326,
		RequestTimeout: 60 * time.Second,
	}

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		return cfg, errors.New("DATABASE_URL is required")
	}

	if portStr := os.Getenv("PORT"); portStr != "" {
		if port, err := strconv.Atoi(portStr); err == nil && port > 0 {
			cfg.Port = port
		} else {
			return cfg, fmt.Errorf("invalid PORT: %s", portStr)
		}
	} else if portStr := os.Getenv("API_PORT"); portStr != "" {
		if port, err := strconv.Atoi(portStr); err == nil && port > 0 {
			cfg.Port = port
		} else {
			return cfg, fmt.Errorf("invalid API_PORT: %s", portStr)
		}
	}

	cfg.BearerToken = os.Getenv("API_BEARER_TOKEN")
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		cfg.LogLevel = level
	}

	// chunk size may be zero or negative to disable chunking
	if v := os.Getenv("SOS_CHUNK_SIZE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return cfg, fmt.Errorf("invalid SOS_CHUNK_SIZE: %s", v)
		}
		cfg.ChunkSize = n
	}

	if v := os.Getenv("SOS_STREAMING_STRATEGY"); v != "" {
		strategy, err := streaming.ParseStrategy(v)
		if err != nil {
			return cfg, fmt.Errorf("invalid SOS_STREAMING_STRATEGY: %s", v)
		}
		cfg.Strategy = strategy
	}

	var err error
	if cfg.MaxValues, err = nonNegative("SOS_MAX_VALUES"); err != nil {
		return cfg, err
	}
	if cfg.MaxSeries, err = nonNegative("SOS_MAX_SERIES"); err != nil {
		return cfg, err
	}

	cfg.Prefixes = identifier.Prefixes{
		Procedure:        os.Getenv("SOS_PROCEDURE_PREFIX"),
		Offering:         os.Getenv("SOS_OFFERING_PREFIX"),
		Feature:          os.Getenv("SOS_FEATURE_PREFIX"),
		ObservedProperty: os.Getenv("SOS_OBSERVABLE_PROPERTY_PREFIX"),
	}

	if v, ok := os.LookupEnv("SOS_TUPLE_SEPARATOR"); ok && v != "" {
		cfg.Encoding.TupleSeparator = v
	}
	if v, ok := os.LookupEnv("SOS_TOKEN_SEPARATOR"); ok && v != "" {
		cfg.Encoding.TokenSeparator = v
	}
	if v, ok := os.LookupEnv("SOS_DECIMAL_SEPARATOR"); ok && v != "" {
		cfg.Encoding.DecimalSeparator = v
	}

	if v := os.Getenv("SOS_STORAGE_EPSG"); v != "" {
		srid, err := geom.ParseSRID(v)
		if err != nil {
			return cfg, fmt.Errorf("invalid SOS_STORAGE_EPSG: %s", v)
		}
		cfg.StorageSRID = srid
	}

	if v := os.Getenv("SOS_STORAGE_NORTHING_FIRST"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return cfg, fmt.Errorf("invalid SOS_STORAGE_NORTHING_FIRST: %s", v)
		}
		cfg.StorageNorthingFirst = b
	}

	ranges := DefaultNorthingFirstEPSG
	if v := os.Getenv("SOS_NORTHING_FIRST_EPSG"); v != "" {
		ranges = v
	}
	if cfg.NorthingFirst, err = geom.ParseRanges(ranges); err != nil {
		return cfg, fmt.Errorf("invalid SOS_NORTHING_FIRST_EPSG: %w", err)
	}

	if v := os.Getenv("SOS_REQUEST_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return cfg, fmt.Errorf("invalid SOS_REQUEST_TIMEOUT: %s", v)
		}
		cfg.RequestTimeout = d
	}

	return cfg, nil
}

func nonNegative(key string) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid %s: %s", key, v)
	}
	return n, nil
}

// AxisOrder returns the axis-order settings of the store.
func (c Config) AxisOrder() geom.AxisOrder {
	return geom.AxisOrder{
		StorageSRID:          c.StorageSRID,
		StorageNorthingFirst: c.StorageNorthingFirst,
		NorthingFirst:        c.NorthingFirst,
	}
}

// ListenAddr returns the host:port string for the HTTP server.
func (c Config) ListenAddr() string {
	return fmt.Sprintf(":%d", c.Port)
}
