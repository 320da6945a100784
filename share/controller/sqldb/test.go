package sqldb

import (
	"fmt"
	"math/rand"
	"os"
	"time"

	"github.com/datafoundry/shareflow/share/controller"
)

func EnvOr(envName, defaultVal string) string {
	val, ok := os.LookupEnv(envName)
	if !ok {
		return defaultVal
	}
	return val
}

func GetTestConfig() *controller.SQLDBConfig {
	return &controller.SQLDBConfig{
		Dialect:  "postgres",
		Database: EnvOr("SHAREFLOW_CONFIG_SQLDB_DATABASE", "shareflow_test"),
		Host:     EnvOr("SHAREFLOW_CONFIG_SQLDB_HOST", "127.0.0.1"),
		Port:     EnvOr("SHAREFLOW_CONFIG_SQLDB_PORT", "5432"),
		User:     EnvOr("SHAREFLOW_CONFIG_SQLDB_USER", "postgres"),
		Password: EnvOr("SHAREFLOW_CONFIG_SQLDB_PASSWORD", "testpass"),
	}
}

func GetTestConfigRandomDB(dbprefix string) *controller.SQLDBConfig {
	rnd := rand.New(rand.NewSource(time.Now().UnixNano()))
	return &controller.SQLDBConfig{
		Dialect:  "postgres",
		Database: fmt.Sprintf("%s_%d", dbprefix, rnd.Int()),
		Host:     EnvOr("SHAREFLOW_CONFIG_SQLDB_HOST", "127.0.0.1"),
		Port:     EnvOr("SHAREFLOW_CONFIG_SQLDB_PORT", "5432"),
		User:     EnvOr("SHAREFLOW_CONFIG_SQLDB_USER", "postgres"),
		Password: EnvOr("SHAREFLOW_CONFIG_SQLDB_PASSWORD", "testpass"),
	}
}
