// Fusionserve - Multimodal Feature Fusion and Model Serving
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fusionserve

package jobs

import (
	"context"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"
)

// jobKeyPrefix namespaces job records. ULIDs sort by creation time, so key
// order is age order.
const jobKeyPrefix = "job:"

// Store persists job records.
type Store interface {
	Put(ctx context.Context, job *Job) error
	Get(ctx context.Context, id string) (*Job, error)

	// List returns up to limit jobs, newest first. A non-positive limit
	// returns every job.
	List(ctx context.Context, limit int) ([]*Job, error)

	Close() error
}

// BadgerStore keeps job records in BadgerDB and prunes the oldest beyond
// the configured history.
type BadgerStore struct {
	db      *badger.DB
	history int
}

// OpenBadgerStore opens a store at path, or an in-memory store when path is
// empty. A positive history bounds how many jobs are kept.
func OpenBadgerStore(path string, history int) (*BadgerStore, error) {
	opts := badger.DefaultOptions(path)
	if path == "" {
		opts = badger.DefaultOptions("").WithInMemory(true)
	}
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger db for jobs: %w", err)
	}
	return &BadgerStore{db: db, history: history}, nil
}

func jobKey(id string) []byte { return []byte(jobKeyPrefix + id) }

// Put inserts or replaces a job record.
func (s *BadgerStore) Put(_ context.Context, job *Job) error {
	stored := *job
	stored.Deduplicated = false
	data, err := json.Marshal(&stored)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}

	if err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(jobKey(job.ID), data)
	}); err != nil {
		return fmt.Errorf("store job: %w", err)
	}
	return s.prune()
}

// Get returns the job with id or ErrJobNotFound.
func (s *BadgerStore) Get(_ context.Context, id string) (*Job, error) {
	var job Job
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(jobKey(id))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrJobNotFound
		}
		if err != nil {
			return fmt.Errorf("get job: %w", err)
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &job)
		})
	})
	if err != nil {
		return nil, err
	}
	return &job, nil
}

// List implements Store.
func (s *BadgerStore) List(ctx context.Context, limit int) ([]*Job, error) {
	var out []*Job
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		opts.Prefix = []byte(jobKeyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		// reverse iteration starts from the last key with the prefix
		seek := append([]byte(jobKeyPrefix), 0xFF)
		for it.Seek(seek); it.ValidForPrefix(opts.Prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			var job Job
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &job)
			}); err != nil {
				return fmt.Errorf("decode job %s: %w", it.Item().Key(), err)
			}
			out = append(out, &job)
			if limit > 0 && len(out) >= limit {
				break
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Count returns the number of stored jobs.
func (s *BadgerStore) Count() (int, error) {
	count := 0
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(jobKeyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			count++
		}
		return nil
	})
	return count, err
}

// prune deletes the oldest jobs beyond the history bound.
func (s *BadgerStore) prune() error {
	if s.history <= 0 {
		return nil
	}
	var stale [][]byte
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Reverse = true
		opts.Prefix = []byte(jobKeyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		kept := 0
		for it.Seek(append([]byte(jobKeyPrefix), 0xFF)); it.ValidForPrefix(opts.Prefix); it.Next() {
			kept++
			if kept > s.history {
				stale = append(stale, it.Item().KeyCopy(nil))
			}
		}
		return nil
	})
	if err != nil || len(stale) == 0 {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		for _, key := range stale {
			if err := txn.Delete(key); err != nil {
				return fmt.Errorf("prune job: %w", err)
			}
		}
		return nil
	})
}

// Close closes the database.
func (s *BadgerStore) Close() error {
	return s.db.Close()
}
