package svc

import (
	"os"

	"bt-announce/announcer/internal/config"
	"bt-announce/common/bittorrent"
	"bt-announce/common/util"
	"bt-announce/dao"
	"bt-announce/storage"

	"github.com/juju/errors"
	"github.com/zeromicro/go-zero/core/logx"
	"golang.org/x/time/rate"
)

type ServiceContext struct {
	Config    config.Config
	Torrents  []*bittorrent.Torrent
	Storages  []storage.TorrentStorage
	Seen      *util.BloomFilter
	Limiter   *rate.Limiter
	Announcer *Announcer
}

func NewServiceContext(c config.Config) *ServiceContext {
	svcCtx := &ServiceContext{
		Config:  c,
		Seen:    loadBloomFilter(c),
		Limiter: newLimiter(c.AnnounceRateLimit),
	}
	for _, path := range c.Torrents {
		t, err := bittorrent.ReadTorrentFile(path)
		if err != nil {
			logx.Errorf("Failed to load torrent %s: %+v", path, err)
			panic(err)
		}
		logx.Infof("Loaded torrent %s %s with %d trackers", t.HexInfoHash(), t.Info.Name, len(t.Trackers()))
		svcCtx.Torrents = append(svcCtx.Torrents, t)
	}
	if len(c.Mongo) > 0 {
		err := dao.InitMongo(dao.DefaultDBName, c.Mongo)
		if err != nil {
			logx.Errorf("Failed to initialize MongoDB: %+v", err)
			panic(err)
		}
		svcCtx.Storages = append(svcCtx.Storages, storage.NewMongoTorrentStorage())
	}
	if len(c.ElasticSearch) > 0 {
		es, err := storage.NewESTorrentStorage(c.ElasticSearch, c.ESIndex)
		if err != nil {
			logx.Errorf("Failed to create es torrent storage: %+v", err)
			panic(err)
		}
		svcCtx.Storages = append(svcCtx.Storages, es)
	}
	InjectAnnouncer(svcCtx)
	return svcCtx
}

func newLimiter(perSecond int) *rate.Limiter {
	if perSecond <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Limit(perSecond), perSecond)
}

func loadBloomFilter(c config.Config) *util.BloomFilter {
	if len(c.BloomFilterPath) > 0 {
		f, err := os.Open(c.BloomFilterPath)
		if err == nil {
			defer f.Close()
			filter, err := util.LoadBloomFilter(f)
			if err == nil {
				logx.Infof("Loaded bloom filter with %d peers", filter.Count())
				return filter
			}
			logx.Errorf("Failed to load bloom filter %s, starting empty: %v", c.BloomFilterPath, err)
		}
	}
	return util.NewBloomFilter(c.BloomBits)
}

func saveBloomFilter(path string, filter *util.BloomFilter) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Trace(err)
	}
	defer f.Close()
	return errors.Trace(filter.Save(f))
}
