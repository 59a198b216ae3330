package dao

import (
	"context"
	"time"

	"github.com/juju/errors"
	"github.com/kamva/mgm/v3"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

const DefaultDBName = "bt_announce"

// InitMongo sets the default mgm connection and checks that the server is
// reachable.
func InitMongo(dbName, uri string) error {
	if len(dbName) == 0 {
		dbName = DefaultDBName
	}
	err := mgm.SetDefaultConfig(&mgm.Config{CtxTimeout: 10 * time.Second}, dbName, options.Client().ApplyURI(uri))
	if err != nil {
		return errors.Annotatef(err, "connect mongodb")
	}
	_, client, _, err := mgm.DefaultConfigs()
	if err != nil {
		return errors.Trace(err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err = client.Ping(ctx, readpref.Primary())
	if err != nil {
		return errors.Annotatef(err, "ping mongodb")
	}
	return nil
}
