// Package redshiftshares implements the Redshift connector family: the
// request validator plus the datashare processor that moves table grants
// between namespaces through the Redshift Data API.
package redshiftshares

import (
	"fmt"
	"sync"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/redshiftdataapiservice"
	"github.com/aws/aws-sdk-go/service/redshiftdataapiservice/redshiftdataapiserviceiface"

	"github.com/datafoundry/shareflow/errors"
)

const (
	ErrNoConnection errors.Code = "NoConnection"
)

func NewErrNoConnection(namespaceID string) error {
	return errors.New(
		ErrNoConnection,
		fmt.Sprintf("no admin connection registered for namespace '%s'", namespaceID),
	)
}

type ClientConfig struct {
	Region     string `toml:"region"`
	AWSProfile string `toml:"aws-profile"`
	Endpoint   string `toml:"endpoint"`
}

func NewDataAPI(cfg ClientConfig) (redshiftdataapiserviceiface.RedshiftDataAPIServiceAPI, error) {
	config := &aws.Config{}
	if cfg.Region != "" {
		config.Region = aws.String(cfg.Region)
	}
	if cfg.AWSProfile != "" {
		config.Credentials = credentials.NewSharedCredentials("", cfg.AWSProfile)
	}
	if cfg.Endpoint != "" {
		config.Endpoint = aws.String(cfg.Endpoint)
	}

	sess, err := session.NewSession(config)
	if err != nil {
		return nil, errors.Wrap(err, "creating AWS session")
	}
	return redshiftdataapiservice.New(sess), nil
}

// Connection is the admin access route into one Redshift namespace. The
// datashare SQL runs over it.
type Connection struct {
	NamespaceID string `toml:"namespace-id"`
	ClusterID   string `toml:"cluster-id"`
	Database    string `toml:"database"`
	DBUser      string `toml:"db-user"`
	SecretARN   string `toml:"secret-arn"`
}

// ConnectionRegistry maps namespace IDs to their admin connections.
type ConnectionRegistry struct {
	mu          sync.RWMutex
	connections map[string]Connection
}

func NewConnectionRegistry() *ConnectionRegistry {
	return &ConnectionRegistry{
		connections: make(map[string]Connection),
	}
}

// Register installs the connection for its namespace, replacing any previous
// registration.
func (r *ConnectionRegistry) Register(c Connection) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.connections[c.NamespaceID] = c
}

// Connection returns the admin connection for a namespace.
func (r *ConnectionRegistry) Connection(namespaceID string) (Connection, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.connections[namespaceID]
	if !ok {
		return Connection{}, NewErrNoConnection(namespaceID)
	}
	return c, nil
}
