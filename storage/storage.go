package storage

import (
	"context"

	"bt-announce/model"
)

// TorrentStorage persists announce state. Store upserts by info hash.
type TorrentStorage interface {
	Store(ctx context.Context, t *model.Torrent) error
}
