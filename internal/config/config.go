// Package config loads the engine's environment-driven configuration,
// modeled on the teacher's GlobalConfig load-then-validate shape but
// sourced from the process environment instead of a Consul KV fetch —
// this engine has no central coordinator to fetch configuration from.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds the tunables read from the environment: log discovery,
// batching/polling cadence, the sink DSN and table, and the optional
// cluster/archive/telemetry integrations. VERBOSE is not read; skip
// logging follows leafparser.Verbose, which defaults to true.
type Config struct {
	LogListURL string
	OffsetDir  string

	BatchSize    uint64
	PollInterval time.Duration

	SinkDSN   string
	SinkTable string

	ClusterConsulAddr string

	ArchiveS3Bucket      string
	ArchiveS3Region      string
	ArchiveS3EndpointURL string
	ArchiveAccessKey     string
	ArchiveSecretKey     string

	OTELExporterEndpoint string
	SentryDSN            string
	MetricsAddr          string
}

// Load reads Config from the process environment, applying the §6
// defaults for anything unset.
func Load() (Config, error) {
	cfg := Config{
		LogListURL: getEnv("LOG_LIST_URL", "https://www.gstatic.com/ct/log_list/v3/log_list.json"),
		OffsetDir:  getEnv("OFFSET_DIR", "./offsets"),

		SinkTable: getEnv("CLICKHOUSE_TABLE", "domains"),

		ClusterConsulAddr: os.Getenv("CLUSTER_CONSUL_ADDR"),

		ArchiveS3Bucket:      os.Getenv("ARCHIVE_S3_BUCKET"),
		ArchiveS3Region:      os.Getenv("ARCHIVE_S3_REGION"),
		ArchiveS3EndpointURL: os.Getenv("ARCHIVE_S3_ENDPOINT_URL"),
		ArchiveAccessKey:     os.Getenv("ARCHIVE_S3_ACCESS_KEY"),
		ArchiveSecretKey:     os.Getenv("ARCHIVE_S3_SECRET_KEY"),

		OTELExporterEndpoint: os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		SentryDSN:            os.Getenv("SENTRY_DSN"),
		MetricsAddr:          getEnv("METRICS_ADDR", ":9090"),
	}

	batchSize, err := getEnvUint("BATCH_SIZE", 512)
	if err != nil {
		return Config{}, err
	}
	cfg.BatchSize = batchSize

	pollSeconds, err := getEnvUint("POLL_INTERVAL_SECONDS", 5)
	if err != nil {
		return Config{}, err
	}
	cfg.PollInterval = time.Duration(pollSeconds) * time.Second

	cfg.SinkDSN = clickhouseDSN()

	return cfg, nil
}

// clickhouseDSN assembles a go-sql-driver/mysql DSN from the five
// CLICKHOUSE_* variables in the Configuration table, the same host/port/
// db/user/password split ct_ingestor.py reads before building its own
// connection string.
func clickhouseDSN() string {
	host := getEnv("CLICKHOUSE_HOST", "clickhouse")
	port := getEnv("CLICKHOUSE_MYSQL_PORT", "9004")
	db := getEnv("CLICKHOUSE_DB", "ct")
	user := getEnv("CLICKHOUSE_USER", "default")
	password := os.Getenv("CLICKHOUSE_PASSWORD")

	return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s", user, password, host, port, db)
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvUint(key string, def uint64) (uint64, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return v, nil
}
