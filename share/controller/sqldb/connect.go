package sqldb

import (
	"github.com/gobuffalo/pop/v6"

	"github.com/datafoundry/shareflow/errors"
	"github.com/datafoundry/shareflow/share/controller"
)

func Connect(cfg *controller.SQLDBConfig) (Transactor, error) {
	conn, err := pop.NewConnection(&pop.ConnectionDetails{
		Dialect:         cfg.Dialect,
		Database:        cfg.Database,
		Host:            cfg.Host,
		Port:            cfg.Port,
		User:            cfg.User,
		Password:        cfg.Password,
		URL:             cfg.URL,
		Pool:            cfg.Pool,
		IdlePool:        cfg.IdlePool,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.ConnMaxIdleTime,
	})
	if err != nil {
		return Transactor{}, errors.Wrap(err, "creating new connection")
	}

	if err := conn.Open(); err != nil {
		return Transactor{}, errors.Wrap(err, "opening connection")
	}

	return Transactor{Connection: conn}, nil
}
