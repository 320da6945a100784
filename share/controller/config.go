package controller

import (
	"time"

	"github.com/datafoundry/shareflow/logger"
	"github.com/datafoundry/shareflow/share"
	"github.com/datafoundry/shareflow/share/notify"
	"github.com/datafoundry/shareflow/share/taskq"
)

type Config struct {
	// Storage
	StorageMethod string `toml:"storage-method"`
	DataDir       string `toml:"data-dir"`

	Store      Store            `toml:"-"`
	Transactor share.Transactor `toml:"-"`

	// Queue receives the asynchronous tasks produced by approvals, revokes,
	// verifies and re-applies.
	Queue taskq.Queue `toml:"-"`

	// Notifier receives lifecycle notifications. Defaults to a nop.
	Notifier notify.Notifier `toml:"-"`

	// Validators holds the per-dataset-type creation validators.
	Validators *ValidatorRegistry `toml:"-"`

	SQLDB *SQLDBConfig `toml:"sqldb"`

	Logger logger.Logger `toml:"-"`
}

// SQLDBConfig holds the connection details for the SQL storage backend.
type SQLDBConfig struct {
	Dialect  string `toml:"dialect"`
	Database string `toml:"database"`
	Host     string `toml:"host"`
	Port     string `toml:"port"`
	User     string `toml:"user"`
	Password string `toml:"password"`
	URL      string `toml:"url"`

	Pool            int           `toml:"pool"`
	IdlePool        int           `toml:"idle-pool"`
	ConnMaxLifetime time.Duration `toml:"conn-max-lifetime"`
	ConnMaxIdleTime time.Duration `toml:"conn-max-idle-time"`
}
