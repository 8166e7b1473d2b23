// Package pgstore persists snapshots in Postgres through database/sql and
// the lib/pq driver.
//
// Every job is one row of job_snapshots keyed by (expid, name). Parent and
// child names are stored as text[] columns.
package pgstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/vk/chunkgrid/internal/ctxlog"
	"github.com/vk/chunkgrid/internal/job"
	"github.com/vk/chunkgrid/internal/snapshot"
)

const schema = `CREATE TABLE IF NOT EXISTS job_snapshots (
	expid      TEXT NOT NULL,
	name       TEXT NOT NULL,
	section    TEXT NOT NULL,
	status     TEXT NOT NULL,
	fail_count INTEGER NOT NULL DEFAULT 0,
	date       TIMESTAMPTZ,
	member     TEXT NOT NULL DEFAULT '',
	chunk      INTEGER NOT NULL DEFAULT 0,
	split      INTEGER NOT NULL DEFAULT 0,
	remote_id  TEXT NOT NULL DEFAULT '',
	packed     BOOLEAN NOT NULL DEFAULT FALSE,
	parents    TEXT[] NOT NULL DEFAULT '{}',
	children   TEXT[] NOT NULL DEFAULT '{}',
	position   INTEGER NOT NULL,
	saved_at   TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (expid, name)
)`

// Store is a Postgres-backed snapshot.Store for one experiment.
type Store struct {
	db    *sql.DB
	expid string
}

var _ snapshot.Store = (*Store)(nil)

// Open connects to dsn and makes sure the table exists.
func Open(ctx context.Context, dsn, expid string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening postgres: %w", err)
	}
	s := &Store{db: db, expid: expid}
	if err := s.ensureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) ensureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("creating job_snapshots table: %w", err)
	}
	return nil
}

// Load returns the experiment's rows in the order they were saved.
func (s *Store) Load(ctx context.Context) ([]snapshot.Record, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name, section, status, fail_count, date, member, chunk, split,
		remote_id, packed, parents, children
		FROM job_snapshots WHERE expid = $1 ORDER BY position`, s.expid)
	if err != nil {
		return nil, fmt.Errorf("querying snapshot: %w", err)
	}
	defer rows.Close()

	var out []snapshot.Record
	for rows.Next() {
		var (
			r      snapshot.Record
			status string
			date   sql.NullTime
		)
		if err := rows.Scan(&r.Name, &r.Section, &status, &r.FailCount, &date, &r.Member, &r.Chunk, &r.Split,
			&r.RemoteID, &r.Packed, pq.Array(&r.Parents), pq.Array(&r.Children)); err != nil {
			return nil, fmt.Errorf("scanning snapshot row: %w", err)
		}
		if r.Status, err = job.ParseStatus(status); err != nil {
			return nil, fmt.Errorf("job %s: %w", r.Name, err)
		}
		if date.Valid {
			r.Date = date.Time.UTC()
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading snapshot rows: %w", err)
	}
	return out, nil
}

// Save replaces the experiment's rows in one transaction.
func (s *Store) Save(ctx context.Context, records []snapshot.Record) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting snapshot transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM job_snapshots WHERE expid = $1`, s.expid); err != nil {
		return fmt.Errorf("clearing snapshot: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO job_snapshots
		(expid, name, section, status, fail_count, date, member, chunk, split, remote_id, packed, parents, children, position, saved_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`)
	if err != nil {
		return fmt.Errorf("preparing snapshot insert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for i, r := range records {
		var date sql.NullTime
		if !r.Date.IsZero() {
			date = sql.NullTime{Time: r.Date, Valid: true}
		}
		parents, children := r.Parents, r.Children
		if parents == nil {
			parents = []string{}
		}
		if children == nil {
			children = []string{}
		}
		if _, err := stmt.ExecContext(ctx, s.expid, r.Name, r.Section, r.Status.String(), r.FailCount, date,
			r.Member, r.Chunk, r.Split, r.RemoteID, r.Packed, pq.Array(parents), pq.Array(children), i, now); err != nil {
			return fmt.Errorf("inserting job %s: %w", r.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing snapshot: %w", err)
	}
	ctxlog.FromContext(ctx).Debug("Snapshot saved to postgres.", "expid", s.expid, "jobs", len(records))
	return nil
}

// Close closes the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}
