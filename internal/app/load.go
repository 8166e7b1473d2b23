package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/vk/chunkgrid/internal/etcdstore"
	"github.com/vk/chunkgrid/internal/events"
	"github.com/vk/chunkgrid/internal/filestore"
	"github.com/vk/chunkgrid/internal/memstore"
	"github.com/vk/chunkgrid/internal/pgstore"
	"github.com/vk/chunkgrid/internal/snapshot"
)

// openStore opens the snapshot backend named by cfg.Store. The file store
// defaults to job_list_<expid>.yaml in the working directory.
func openStore(ctx context.Context, cfg *Config, expid string) (snapshot.Store, error) {
	switch cfg.Store {
	case "", StoreMemory:
		return memstore.New(), nil
	case StoreFile:
		path := cfg.StoreDSN
		if path == "" {
			path = fmt.Sprintf("job_list_%s.yaml", expid)
		}
		return filestore.New(path, expid), nil
	case StorePostgres:
		s, err := pgstore.Open(ctx, cfg.StoreDSN, expid)
		if err != nil {
			return nil, fmt.Errorf("opening postgres store: %w", err)
		}
		return s, nil
	case StoreEtcd:
		s, err := etcdstore.New(splitEndpoints(cfg.StoreDSN), expid)
		if err != nil {
			return nil, fmt.Errorf("opening etcd store: %w", err)
		}
		return s, nil
	}
	return nil, fmt.Errorf("unknown store %q", cfg.Store)
}

func splitEndpoints(dsn string) []string {
	var out []string
	for _, e := range strings.Split(dsn, ",") {
		if e = strings.TrimSpace(e); e != "" {
			out = append(out, e)
		}
	}
	return out
}

// buildPublisher always logs events and also emits them over socket.io
// when an events URL is configured.
func buildPublisher(cfg *Config) (events.Publisher, error) {
	pubs := events.Multi{events.LogPublisher{}}
	if cfg.EventsURL != "" {
		sio, err := events.NewSocketIOPublisher(events.SocketIOConfig{
			URL:       cfg.EventsURL,
			Namespace: cfg.EventsNamespace,
		})
		if err != nil {
			return nil, fmt.Errorf("configuring event publisher: %w", err)
		}
		pubs = append(pubs, sio)
	}
	return pubs, nil
}
