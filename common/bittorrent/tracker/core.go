package tracker

import "context"

type Tracker interface {
	Connect(ctx context.Context) error
	Announce(ctx context.Context, req AnnounceRequest) (*AnnounceResponse, error)
	Scrape(ctx context.Context, infoHashes [][20]byte) ([]*ScrapeResult, error)
	Close() error
}
