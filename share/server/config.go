package server

import (
	"time"

	"github.com/datafoundry/shareflow/share/controller"
	"github.com/datafoundry/shareflow/share/redshiftshares"
	"github.com/datafoundry/shareflow/share/s3shares"
	"github.com/datafoundry/shareflow/share/taskq"
)

const (
	defaultBindPort      = "8080"
	defaultStorageMethod = "boltdb"
	defaultDataDir       = "/var/lib/shareflow"
	defaultQueueSize     = 64
)

// Config represents the configuration for the command.
type Config struct {
	// Bind is the host:port on which the server will listen.
	Bind string `toml:"bind"`

	// Verbose toggles verbose logging which can be useful for debugging.
	Verbose bool `toml:"verbose"`

	// LogPath configures where the server will write logs. Empty means
	// stderr.
	LogPath string `toml:"log-path"`

	// StorageMethod selects the storage backend, boltdb or sqldb.
	StorageMethod string `toml:"storage-method"`

	// DataDir is where the boltdb backend keeps its data file.
	DataDir string `toml:"data-dir"`

	SQLDB controller.SQLDBConfig `toml:"sqldb"`

	Queue      QueueOptions      `toml:"queue"`
	S3         S3Options         `toml:"s3"`
	Redshift   RedshiftOptions   `toml:"redshift"`
	Expiration ExpirationOptions `toml:"expiration"`
}

// QueueOptions selects the task queue backing the sharing engine. With no
// brokers configured the queue is an in-process channel, which is only
// suitable for a single-node deployment.
type QueueOptions struct {
	Kafka taskq.KafkaConfig `toml:"kafka"`
}

// S3Options configures the S3-family processors (tables, buckets, storage
// locations).
type S3Options struct {
	Run    bool                  `toml:"run"`
	Config s3shares.ClientConfig `toml:"config"`
}

// RedshiftOptions configures the datashare processor and the admin
// connections it signs statements with.
type RedshiftOptions struct {
	Run         bool                        `toml:"run"`
	Config      redshiftshares.ClientConfig `toml:"config"`
	Connections []redshiftshares.Connection `toml:"connections"`
}

// ExpirationOptions configures the expiry sweeper.
type ExpirationOptions struct {
	Interval      time.Duration `toml:"interval"`
	WarningPeriod time.Duration `toml:"warning-period"`
}

// NewConfig returns an instance of Config with default options.
func NewConfig() *Config {
	return &Config{
		Bind:          ":" + defaultBindPort,
		StorageMethod: defaultStorageMethod,
		DataDir:       defaultDataDir,
	}
}
