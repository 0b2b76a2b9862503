package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	KafkaBrokers     []string
	KafkaSourceTopic string
	KafkaSinkTopic   string
	KafkaGroupID     string
	HTTPAddr         string
	LogLevel         string
	LogFormat        string
	ShutdownTimeout  time.Duration

	BatchSize          int
	BatchFlushInterval time.Duration

	// DataDir resolves relative grid paths in jobs.
	DataDir         string
	ResultCacheSize int
	ResultsDBPath   string

	// Wind decomposition for regional jobs.
	DecomposeEnabled       bool
	DecomposeMaxIterations int
	DecomposeTolerance     float64
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	batchSize, err := sharedcfg.ParseBatchSize()
	if err != nil {
		return nil, err
	}

	flushInterval, err := sharedcfg.ParseBatchFlushInterval()
	if err != nil {
		return nil, err
	}

	cacheSize, err := parseNonNegativeInt("RESULT_CACHE_SIZE", 256)
	if err != nil {
		return nil, err
	}

	decomposeEnabled := true
	if v := os.Getenv("DECOMPOSE_ENABLED"); v != "" {
		decomposeEnabled = v == "true"
	}

	maxIterations, err := parseNonNegativeInt("DECOMPOSE_MAX_ITERATIONS", 5000)
	if err != nil {
		return nil, err
	}
	if maxIterations == 0 {
		return nil, errors.New("invalid DECOMPOSE_MAX_ITERATIONS: must be positive")
	}

	tolerance, err := strconv.ParseFloat(sharedcfg.EnvOrDefault("DECOMPOSE_TOLERANCE", "1e-8"), 64)
	if err != nil || tolerance <= 0 {
		return nil, errors.New("invalid DECOMPOSE_TOLERANCE")
	}

	cfg := &Config{
		KafkaBrokers:       sharedcfg.ParseBrokers(sharedcfg.EnvOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaSourceTopic:   sharedcfg.EnvOrDefault("KAFKA_SOURCE_TOPIC", "hadley-jobs"),
		KafkaSinkTopic:     sharedcfg.EnvOrDefault("KAFKA_SINK_TOPIC", "hadley-boundaries"),
		KafkaGroupID:       sharedcfg.EnvOrDefault("KAFKA_GROUP_ID", "hadley-etl"),
		HTTPAddr:           sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:           sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:          sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout:    shutdownTimeout,
		BatchSize:          batchSize,
		BatchFlushInterval: flushInterval,

		DataDir:         sharedcfg.EnvOrDefault("DATA_DIR", "."),
		ResultCacheSize: cacheSize,
		ResultsDBPath:   os.Getenv("RESULTS_DB_PATH"),

		DecomposeEnabled:       decomposeEnabled,
		DecomposeMaxIterations: maxIterations,
		DecomposeTolerance:     tolerance,
	}

	if len(cfg.KafkaBrokers) == 0 {
		return nil, errors.New("KAFKA_BROKERS is required")
	}
	if cfg.KafkaSourceTopic == "" {
		return nil, errors.New("KAFKA_SOURCE_TOPIC is required")
	}
	if cfg.KafkaSinkTopic == "" {
		return nil, errors.New("KAFKA_SINK_TOPIC is required")
	}

	return cfg, nil
}

func parseNonNegativeInt(name string, def int) (int, error) {
	s := os.Getenv(name)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid %s: %q", name, s)
	}
	return n, nil
}
