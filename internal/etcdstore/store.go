// Package etcdstore persists snapshots in etcd v3. Each job is a JSON value
// under /chunkgrid/<expid>/jobs/<name>.
package etcdstore

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"time"

	"github.com/vk/chunkgrid/internal/ctxlog"
	"github.com/vk/chunkgrid/internal/snapshot"
	clientv3 "go.etcd.io/etcd/client/v3"
)

// maxTxnOps stays under etcd's default --max-txn-ops of 128.
const maxTxnOps = 100

// value wraps a record with its position so Load can restore save order;
// etcd returns keys sorted by name.
type value struct {
	Position int             `json:"position"`
	Record   snapshot.Record `json:"record"`
}

// Store is an etcd-backed snapshot.Store for one experiment.
type Store struct {
	client *clientv3.Client
	prefix string
}

var _ snapshot.Store = (*Store)(nil)

// New connects to the given endpoints.
func New(endpoints []string, expid string) (*Store, error) {
	cli, err := clientv3.New(clientv3.Config{
		Endpoints:   endpoints,
		DialTimeout: 5 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("connecting to etcd: %w", err)
	}
	return &Store{client: cli, prefix: Prefix(expid)}, nil
}

// Prefix returns the key prefix holding an experiment's jobs.
func Prefix(expid string) string {
	return "/chunkgrid/" + expid + "/jobs/"
}

// Load reads every job under the experiment prefix.
func (s *Store) Load(ctx context.Context) ([]snapshot.Record, error) {
	resp, err := s.client.Get(ctx, s.prefix, clientv3.WithPrefix())
	if err != nil {
		return nil, fmt.Errorf("reading snapshot from etcd: %w", err)
	}

	values := make([]value, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		var v value
		if err := json.Unmarshal(kv.Value, &v); err != nil {
			return nil, fmt.Errorf("decoding %s: %w", kv.Key, err)
		}
		values = append(values, v)
	}
	slices.SortFunc(values, func(a, b value) int { return a.Position - b.Position })

	out := make([]snapshot.Record, 0, len(values))
	for _, v := range values {
		out = append(out, v.Record)
	}
	return out, nil
}

// Save deletes the experiment prefix and writes every record. The delete
// and the first batch of puts share one transaction; larger snapshots are
// written in further batches.
func (s *Store) Save(ctx context.Context, records []snapshot.Record) error {
	ops := []clientv3.Op{clientv3.OpDelete(s.prefix, clientv3.WithPrefix())}
	for i, r := range records {
		data, err := json.Marshal(value{Position: i, Record: r})
		if err != nil {
			return fmt.Errorf("encoding job %s: %w", r.Name, err)
		}
		ops = append(ops, clientv3.OpPut(s.prefix+r.Name, string(data)))
		if len(ops) == maxTxnOps {
			if err := s.commit(ctx, ops); err != nil {
				return err
			}
			ops = ops[:0]
		}
	}
	if len(ops) > 0 {
		if err := s.commit(ctx, ops); err != nil {
			return err
		}
	}
	ctxlog.FromContext(ctx).Debug("Snapshot saved to etcd.", "prefix", s.prefix, "jobs", len(records))
	return nil
}

func (s *Store) commit(ctx context.Context, ops []clientv3.Op) error {
	if _, err := s.client.Txn(ctx).Then(ops...).Commit(); err != nil {
		return fmt.Errorf("writing snapshot to etcd: %w", err)
	}
	return nil
}

// Close closes the etcd client.
func (s *Store) Close() error {
	return s.client.Close()
}
