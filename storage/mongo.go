package storage

import (
	"context"

	"bt-announce/model"

	"github.com/juju/errors"
	"github.com/kamva/mgm/v3"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var _ TorrentStorage = (*MongoTorrentStorage)(nil)

type MongoTorrentStorage struct {
	coll *mgm.Collection
}

// NewMongoTorrentStorage uses the default mgm connection, see dao.InitMongo.
func NewMongoTorrentStorage() *MongoTorrentStorage {
	return &MongoTorrentStorage{
		coll: mgm.Coll(&model.Torrent{}),
	}
}

func (m *MongoTorrentStorage) Store(ctx context.Context, t *model.Torrent) error {
	opts := &options.UpdateOptions{}
	opts.SetUpsert(true)
	err := m.coll.UpdateWithCtx(ctx, t, opts)
	if err != nil {
		return errors.Annotatef(err, "upsert torrent %s", t.ID)
	}
	return nil
}
