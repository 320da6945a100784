// Package server contains the `shareflow server` subcommand. The purpose of
// this package is to define an easily tested Command object which handles
// interpreting configuration and setting up the controller, the sharing
// engine and the background maintenance loops.
package server

import (
	"encoding/json"
	"io"
	"net"
	nethttp "net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/datafoundry/shareflow/errors"
	"github.com/datafoundry/shareflow/logger"
	"github.com/datafoundry/shareflow/share"
	"github.com/datafoundry/shareflow/share/controller"
	"github.com/datafoundry/shareflow/share/controller/boltdb"
	controllerhttp "github.com/datafoundry/shareflow/share/controller/http"
	"github.com/datafoundry/shareflow/share/controller/sqldb"
	"github.com/datafoundry/shareflow/share/maintenance"
	"github.com/datafoundry/shareflow/share/notify"
	"github.com/datafoundry/shareflow/share/redshiftshares"
	"github.com/datafoundry/shareflow/share/s3shares"
	"github.com/datafoundry/shareflow/share/sharing"
	"github.com/datafoundry/shareflow/share/taskq"
)

// Command represents the state of the shareflow server command.
type Command struct {
	// Configuration.
	Config *Config

	// done will be closed when Command.Close() is called.
	done chan struct{}

	ln net.Listener

	controller *controller.Controller
	worker     *taskq.Worker
	expirer    *maintenance.Expirer
	httpServer *nethttp.Server

	// closers are run, in order, on Close. They hold whatever the
	// configuration caused to be opened (queue, storage).
	closers []func() error

	logger    logger.Logger
	logOutput io.Writer
}

type CommandOption func(c *Command) error

func OptCommandConfig(config *Config) CommandOption {
	return func(c *Command) error {
		c.Config = config
		return nil
	}
}

// NewCommand returns a new instance of Command.
func NewCommand(stderr io.Writer, opts ...CommandOption) *Command {
	c := &Command{
		Config: NewConfig(),

		logOutput: stderr,

		done: make(chan struct{}),
	}

	for _, opt := range opts {
		if err := opt(c); err != nil {
			panic(err)
		}
	}

	return c
}

// Start starts the shareflow server.
func (m *Command) Start() (err error) {
	if err := m.setupServer(); err != nil {
		return errors.Wrap(err, "setting up server")
	}

	// Serve HTTP.
	go func() {
		if err := m.httpServer.Serve(m.ln); err != nil && err != nethttp.ErrServerClosed {
			m.logger.Errorf("handler serve error: %v", err)
		}
	}()
	m.logger.Printf("listening on %s", m.ln.Addr())

	return nil
}

// Address returns the address the server is listening on. It is only valid
// after Start.
func (m *Command) Address() string {
	return m.ln.Addr().String()
}

// Wait waits for the server to be closed or interrupted.
func (m *Command) Wait() error {
	// First signal causes the server to shut down gracefully.
	c := make(chan os.Signal, 2)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	select {
	case sig := <-c:
		m.logger.Infof("received signal '%s', gracefully shutting down...", sig.String())

		// Second signal causes a hard shutdown.
		go func() { <-c; os.Exit(1) }()
		return errors.Wrap(m.Close(), "closing command")
	case <-m.done:
		m.logger.Infof("server closed externally")
		return nil
	}
}

// Close shuts down the server.
func (m *Command) Close() error {
	select {
	case <-m.done:
		return nil
	default:
		var errs []error
		if m.httpServer != nil {
			errs = append(errs, m.httpServer.Close())
		}
		if m.expirer != nil {
			errs = append(errs, m.expirer.Stop())
		}
		if m.worker != nil {
			errs = append(errs, m.worker.Stop())
		}
		// Close in reverse of the order things were opened.
		for i := len(m.closers) - 1; i >= 0; i-- {
			errs = append(errs, m.closers[i]())
		}
		close(m.done)

		for _, err := range errs {
			if err != nil {
				return errors.Wrap(err, "closing everything")
			}
		}
		return nil
	}
}

// setupServer uses the configuration to set up this server.
func (m *Command) setupServer() error {
	if err := m.setupLogger(); err != nil {
		return errors.Wrap(err, "setting up logger")
	}
	conf, err := json.MarshalIndent(m.Config, "", "\t")
	if err != nil {
		return errors.Wrap(err, "marshalling config")
	}
	m.logger.Printf("Config: %s", conf)

	store, trans, err := m.setupStorage()
	if err != nil {
		return errors.Wrap(err, "setting up storage")
	}

	queue := m.setupQueue()

	validators := controller.NewValidatorRegistry()
	registry := sharing.NewRegistry()

	if m.Config.S3.Run {
		clients, err := s3shares.NewClients(m.Config.S3.Config)
		if err != nil {
			return errors.Wrap(err, "creating s3 clients")
		}
		validators.Register(share.DatasetTypeS3, s3shares.NewValidator(clients))
		registry.Register(s3shares.NewTableProcessor(clients))
		registry.Register(s3shares.NewBucketProcessor(clients))
		registry.Register(s3shares.NewLocationProcessor(clients))
	}

	if m.Config.Redshift.Run {
		api, err := redshiftshares.NewDataAPI(m.Config.Redshift.Config)
		if err != nil {
			return errors.Wrap(err, "creating redshift data api client")
		}
		connections := redshiftshares.NewConnectionRegistry()
		for _, conn := range m.Config.Redshift.Connections {
			connections.Register(conn)
		}
		validators.Register(share.DatasetTypeRedshift, redshiftshares.NewValidator(connections))
		registry.Register(redshiftshares.NewDatashareProcessor(api, connections))
	}

	// A family whose processors are not enabled still accepts and tracks
	// share requests; grant work for it fails in the engine until the family
	// is turned on.
	for _, typ := range []share.DatasetType{share.DatasetTypeS3, share.DatasetTypeRedshift} {
		if _, err := validators.Validator(typ); err != nil {
			validators.Register(typ, controller.NopValidator{})
		}
	}

	notifier := notify.NewStoreNotifier(trans, store)

	m.controller = controller.New(controller.Config{
		Store:      store,
		Transactor: trans,
		Queue:      queue,
		Notifier:   notifier,
		Validators: validators,
		Logger:     m.logger,
	})
	if err := m.controller.Start(); err != nil {
		return errors.Wrap(err, "starting controller")
	}
	m.closers = append(m.closers, m.controller.Stop)

	sharer := sharing.New(sharing.Config{
		Store:      store,
		Transactor: trans,
		Registry:   registry,
		Logger:     m.logger,
	})

	m.worker = taskq.NewWorker(queue, sharer, m.logger)
	m.worker.Start()

	m.expirer = maintenance.NewExpirer(maintenance.ExpirerConfig{
		Store:         store,
		Transactor:    trans,
		Queue:         queue,
		Notifier:      notifier,
		Interval:      m.Config.Expiration.Interval,
		WarningPeriod: m.Config.Expiration.WarningPeriod,
		Logger:        m.logger,
	})
	m.expirer.Start()

	m.ln, err = net.Listen("tcp", m.Config.Bind)
	if err != nil {
		return errors.Wrapf(err, "listening on %s", m.Config.Bind)
	}

	m.httpServer = &nethttp.Server{
		Handler: controllerhttp.Handler(m.controller),
	}

	return nil
}

// setupStorage opens the storage backend named by the configuration.
func (m *Command) setupStorage() (controller.Store, share.Transactor, error) {
	switch m.Config.StorageMethod {
	case "boltdb":
		db, err := boltdb.NewSvcBolt(m.Config.DataDir, "shareflow", boltdb.StoreBuckets...)
		if err != nil {
			return nil, nil, errors.Wrap(err, "opening boltdb")
		}
		return boltdb.NewStore(m.logger), db, nil
	case "sqldb":
		trans, err := sqldb.Connect(&m.Config.SQLDB)
		if err != nil {
			return nil, nil, errors.Wrap(err, "connecting to sql database")
		}
		return sqldb.NewStore(m.logger), trans, nil
	default:
		return nil, nil, errors.Errorf("unknown storage method '%s'", m.Config.StorageMethod)
	}
}

// setupQueue returns the configured task queue: kafka when brokers are
// configured, an in-process channel otherwise.
func (m *Command) setupQueue() taskq.Queue {
	if len(m.Config.Queue.Kafka.Brokers) > 0 {
		cfg := m.Config.Queue.Kafka
		cfg.Logger = m.logger
		queue := taskq.NewKafkaQueue(cfg)
		m.closers = append(m.closers, queue.Close)
		return queue
	}

	queue := taskq.NewChannelQueue(defaultQueueSize)
	m.closers = append(m.closers, queue.Close)
	return queue
}

// setupLogger sets up the logger based on the configuration.
func (m *Command) setupLogger() error {
	var out io.Writer = m.logOutput
	if m.Config.LogPath != "" {
		f, err := os.OpenFile(m.Config.LogPath, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0600)
		if err != nil {
			return errors.Wrap(err, "opening log file")
		}
		out = f
		m.closers = append(m.closers, f.Close)
	}

	if m.Config.Verbose {
		m.logger = logger.NewVerboseLogger(out)
	} else {
		m.logger = logger.NewStandardLogger(out)
	}
	return nil
}
