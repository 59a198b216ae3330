package storage

import (
	"context"

	"bt-announce/model"

	"github.com/juju/errors"
	"github.com/olivere/elastic/v7"
)

const DefaultESIndex = "torrents"

var _ TorrentStorage = (*ESTorrentStorage)(nil)

type ESTorrentStorage struct {
	client *elastic.Client
	index  string
}

func NewESTorrentStorage(host, index string) (*ESTorrentStorage, error) {
	client, err := elastic.NewClient(
		elastic.SetURL(host),
		elastic.SetSniff(false),
		elastic.SetHealthcheck(false),
	)
	if err != nil {
		return nil, errors.Trace(err)
	}
	if len(index) == 0 {
		index = DefaultESIndex
	}
	return &ESTorrentStorage{
		client: client,
		index:  index,
	}, nil
}

func (h *ESTorrentStorage) Store(ctx context.Context, t *model.Torrent) error {
	_, err := h.client.Update().
		Index(h.index).
		Id(t.ID).
		Doc(t).
		DocAsUpsert(true).
		Do(ctx)
	if err != nil {
		return errors.Annotatef(err, "index torrent %s", t.ID)
	}
	return nil
}
