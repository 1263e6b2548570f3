package serv

import (
	"context"
	"fmt"

	"github.com/dosco/pipejin/core"
	"github.com/dosco/pipejin/mongodriver"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.uber.org/zap"
)

// initDB opens the MongoDB client and builds the executor
func (s *pipejinService) initDB() error {
	if s.exec != nil {
		return nil
	}

	if s.conf.DB.Mock {
		s.log.Warn("database.mock is enabled, queries return generated documents")
		s.exec = core.NewMockExecutor(s.pj, 0)
		return nil
	}

	client, err := NewDB(s.conf, s.conf.AppName)
	if err != nil {
		return err
	}
	s.client = client
	s.exec = newExecutor(s.conf, client, s.zlog)
	return nil
}

// NewDB connects to the configured database
func NewDB(conf *Config, appName string) (*mongo.Client, error) {
	if conf.DB.DBName == "" {
		return nil, fmt.Errorf("pipejin: database.dbname is not set")
	}

	return mongodriver.Connect(context.Background(), mongodriver.ConnOptions{
		URI:            conf.DB.ConnString,
		AppName:        appName,
		ConnectTimeout: conf.DB.ConnectTimeout,
		MaxPoolSize:    conf.DB.PoolSize,
	})
}

func newExecutor(conf *Config, client *mongo.Client, log *zap.Logger) *mongodriver.Executor {
	return mongodriver.NewExecutor(client.Database(conf.DB.DBName),
		mongodriver.WithRetry(conf.DB.RetryAttempts, conf.DB.RetryDelay),
		mongodriver.WithAllowDiskUse(conf.DB.AllowDiskUse),
		mongodriver.WithLogger(log))
}
