package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"bt-announce/bencode"
	"bt-announce/common/bittorrent"
	"bt-announce/common/bittorrent/tracker"
	"bt-announce/config"
	"bt-announce/dao"
	"bt-announce/model"
	"bt-announce/storage"

	"github.com/juju/errors"
	"github.com/sirupsen/logrus"
)

var (
	configFile  = flag.String("c", "config.yaml", "the config file, defaults are used when it does not exist")
	torrentFile = flag.String("t", "", "the .torrent file to announce")
	trackerAddr = flag.String("tracker", "", "announce to this tracker instead of the torrent's first udp tracker")
	scrape      = flag.Bool("scrape", false, "also scrape the tracker")
	showInfo    = flag.Bool("info", true, "print the metainfo as JSON")
	sendStopped = flag.Bool("stop", true, "send a stopped event after announcing")
)

func main() {
	flag.Parse()
	if len(*torrentFile) == 0 {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := loadConfig(*configFile)
	if err != nil {
		logrus.Errorf("Failed to read config file. %v", err)
		os.Exit(1)
	}
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err == nil {
		logrus.SetLevel(level)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()
	err = run(ctx, cfg)
	if err != nil {
		logrus.Errorf("%+v", err)
		os.Exit(1)
	}
}

func loadConfig(path string) (*config.Config, error) {
	_, err := os.Stat(path)
	if os.IsNotExist(err) {
		return config.Default(), nil
	}
	return config.ReadConfigFromFile(path)
}

func run(ctx context.Context, cfg *config.Config) error {
	data, err := os.ReadFile(*torrentFile)
	if err != nil {
		return errors.Trace(err)
	}
	torrent, err := bittorrent.ParseTorrent(data)
	if err != nil {
		return errors.Trace(err)
	}
	if *showInfo {
		err = printMetainfo(data)
		if err != nil {
			return errors.Trace(err)
		}
	}
	logrus.Infof("Torrent %s %s, %d bytes", torrent.HexInfoHash(), torrent.Info.Name, torrent.Length())

	addr := *trackerAddr
	if len(addr) == 0 {
		addr = firstUDPTracker(torrent)
	}
	if len(addr) == 0 {
		return errors.NotFoundf("udp tracker in %s", *torrentFile)
	}

	tr, err := tracker.NewUDPTracker(ctx, addr,
		tracker.WithBaseTimeout(cfg.BaseTimeoutDuration()),
		tracker.WithMaxAttempts(cfg.MaxAttempts),
		tracker.WithLogger(logrus.WithField("tracker", addr)),
	)
	if err != nil {
		return errors.Trace(err)
	}
	defer tr.Close()

	req := tracker.AnnounceRequest{
		InfoHash: torrent.InfoHash,
		PeerID:   cfg.PeerIDBytes(),
		Left:     uint64(torrent.Length()),
		Event:    tracker.EventStarted,
		NumWant:  cfg.NumWant,
		Port:     cfg.Port,
	}
	resp, err := tr.Announce(ctx, req)
	if err != nil {
		return errors.Annotatef(err, "announce to %s", addr)
	}
	fmt.Printf("interval: %d\nseeders: %d\nleechers: %d\npeers: %d\n", resp.Interval, resp.Seeders, resp.Leechers, len(resp.Peers))
	for _, p := range resp.Peers {
		fmt.Println(tracker.PeerAddr(p))
	}

	if *scrape {
		results, err := tr.Scrape(ctx, [][20]byte{torrent.InfoHash})
		if err != nil {
			logrus.Warnf("Failed to scrape %s. %v", addr, err)
		} else {
			for _, r := range results {
				fmt.Printf("scrape %x: seeders %d completed %d leechers %d\n", r.InfoHash, r.Seeders, r.Completed, r.Leechers)
			}
		}
	}

	err = persist(ctx, cfg, torrent, addr, resp)
	if err != nil {
		logrus.Warnf("Failed to persist announce. %v", err)
	}

	if *sendStopped {
		req.Event = tracker.EventStopped
		_, err = tr.Announce(ctx, req)
		if err != nil {
			logrus.Warnf("Failed to send stopped event. %v", err)
		}
	}
	return nil
}

func printMetainfo(data []byte) error {
	v, err := bencode.Decode(data)
	if err != nil {
		return errors.Trace(err)
	}
	v, err = metainfoView(v)
	if err != nil {
		return errors.Trace(err)
	}
	out, err := bencode.ToJSONIndent(v, "  ")
	if err != nil {
		return errors.Trace(err)
	}
	fmt.Println(string(out))
	return nil
}

func firstUDPTracker(t *bittorrent.Torrent) string {
	for _, u := range t.Trackers() {
		if strings.HasPrefix(u, "udp://") {
			return u
		}
	}
	return ""
}

func persist(ctx context.Context, cfg *config.Config, t *bittorrent.Torrent, addr string, resp *tracker.AnnounceResponse) error {
	storages := make([]storage.TorrentStorage, 0, 2)
	if len(cfg.Mongo) > 0 {
		err := dao.InitMongo(dao.DefaultDBName, cfg.Mongo)
		if err != nil {
			return errors.Trace(err)
		}
		storages = append(storages, storage.NewMongoTorrentStorage())
	}
	if len(cfg.ES) > 0 {
		es, err := storage.NewESTorrentStorage(cfg.ES, cfg.ESIndex)
		if err != nil {
			return errors.Trace(err)
		}
		storages = append(storages, es)
	}
	if len(storages) == 0 {
		return nil
	}
	record := model.NewTorrentFromBTTorrent(t, addr)
	record.ApplyAnnounce(resp, len(resp.Peers), *record.CreatedAt)
	for _, s := range storages {
		err := s.Store(ctx, record)
		if err != nil {
			return errors.Trace(err)
		}
	}
	return nil
}
