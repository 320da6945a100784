package cmd

import (
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/datafoundry/shareflow/errors"
	"github.com/datafoundry/shareflow/share/server"
)

// newServerCommand runs the shareflow server: the HTTP surface, the sharing
// engine worker and the background maintenance loops, all in one process.
func newServerCommand(stderr io.Writer) *cobra.Command {
	srv := server.NewCommand(stderr)
	serverCmd := &cobra.Command{
		Use:   "server",
		Short: "Run the shareflow server",
		Long:  ``,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := srv.Start(); err != nil {
				return considerUsageError(cmd, errors.Wrap(err, "running server"))
			}
			return errors.Wrap(srv.Wait(), "waiting on server")
		},
	}

	buildServerFlags(serverCmd, srv)

	return serverCmd
}

// buildServerFlags attaches a set of flags to the command for a server
// instance.
func buildServerFlags(cmd *cobra.Command, srv *server.Command) {
	flags := cmd.Flags()

	flags.StringVarP(&srv.Config.Bind, "bind", "b", srv.Config.Bind, "host:port on which this service should listen.")
	flags.BoolVar(&srv.Config.Verbose, "verbose", srv.Config.Verbose, "Enable verbose logging.")
	flags.StringVar(&srv.Config.LogPath, "log-path", srv.Config.LogPath, "Log path.")

	// Storage
	flags.StringVar(&srv.Config.StorageMethod, "storage-method", srv.Config.StorageMethod, "Backing store. boltdb or sqldb.")
	flags.StringVar(&srv.Config.DataDir, "data-dir", srv.Config.DataDir, "Directory the boltdb backend keeps its data file in.")
	flags.StringVar(&srv.Config.SQLDB.Dialect, "sqldb.dialect", srv.Config.SQLDB.Dialect, "SQL dialect, e.g. postgres.")
	flags.StringVar(&srv.Config.SQLDB.Database, "sqldb.database", srv.Config.SQLDB.Database, "SQL database name.")
	flags.StringVar(&srv.Config.SQLDB.Host, "sqldb.host", srv.Config.SQLDB.Host, "SQL database host.")
	flags.StringVar(&srv.Config.SQLDB.Port, "sqldb.port", srv.Config.SQLDB.Port, "SQL database port.")
	flags.StringVar(&srv.Config.SQLDB.User, "sqldb.user", srv.Config.SQLDB.User, "SQL database user.")
	flags.StringVar(&srv.Config.SQLDB.Password, "sqldb.password", srv.Config.SQLDB.Password, "SQL database password.")
	flags.StringVar(&srv.Config.SQLDB.URL, "sqldb.url", srv.Config.SQLDB.URL, "SQL connection URL; overrides the individual connection fields.")

	// Queue
	flags.StringSliceVar(&srv.Config.Queue.Kafka.Brokers, "queue.kafka.brokers", srv.Config.Queue.Kafka.Brokers, "Kafka broker addresses. Empty means an in-process queue.")
	flags.StringVar(&srv.Config.Queue.Kafka.Topic, "queue.kafka.topic", srv.Config.Queue.Kafka.Topic, "Kafka topic carrying sharing tasks.")
	flags.StringVar(&srv.Config.Queue.Kafka.GroupID, "queue.kafka.group-id", srv.Config.Queue.Kafka.GroupID, "Kafka consumer group for the sharing worker.")

	// S3 family
	flags.BoolVar(&srv.Config.S3.Run, "s3.run", srv.Config.S3.Run, "Enable the S3-family processors (tables, buckets, locations).")
	flags.StringVar(&srv.Config.S3.Config.Region, "s3.config.region", srv.Config.S3.Config.Region, "AWS region for the S3-family clients.")
	flags.StringVar(&srv.Config.S3.Config.AWSProfile, "s3.config.aws-profile", srv.Config.S3.Config.AWSProfile, "Shared-credentials profile for the S3-family clients.")
	flags.StringVar(&srv.Config.S3.Config.Endpoint, "s3.config.endpoint", srv.Config.S3.Config.Endpoint, "Endpoint override for the S3-family clients.")

	// Redshift family. Admin connections are per-namespace and only
	// configurable through the config file.
	flags.BoolVar(&srv.Config.Redshift.Run, "redshift.run", srv.Config.Redshift.Run, "Enable the Redshift datashare processor.")
	flags.StringVar(&srv.Config.Redshift.Config.Region, "redshift.config.region", srv.Config.Redshift.Config.Region, "AWS region for the Redshift Data API client.")
	flags.StringVar(&srv.Config.Redshift.Config.AWSProfile, "redshift.config.aws-profile", srv.Config.Redshift.Config.AWSProfile, "Shared-credentials profile for the Redshift Data API client.")
	flags.StringVar(&srv.Config.Redshift.Config.Endpoint, "redshift.config.endpoint", srv.Config.Redshift.Config.Endpoint, "Endpoint override for the Redshift Data API client.")

	// Expiration
	flags.DurationVar(&srv.Config.Expiration.Interval, "expiration.interval", srv.Config.Expiration.Interval, "Pause between expiry sweeps.")
	flags.DurationVar(&srv.Config.Expiration.WarningPeriod, "expiration.warning-period", srv.Config.Expiration.WarningPeriod, "How far ahead of expiry to start warning requesters.")
}

// usageErrorCodes are substrings of errors which indicate a usage problem
// rather than a runtime failure.
var usageErrorCodes = []string{"unknown storage method"}

func considerUsageError(cmd *cobra.Command, err error) error {
	for _, code := range usageErrorCodes {
		if strings.Contains(err.Error(), code) {
			cmd.SilenceUsage = false
		}
	}
	return err
}
