package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	ds "github.com/ipfs/go-datastore"
	dsq "github.com/ipfs/go-datastore/query"
	dslvl "github.com/ipfs/go-ds-leveldb"
	"github.com/pyropy/idxshare/core/model"
)

var ErrShareNotFound = errors.New("share record not found")

// ShareStore persists the peer's ShareRecords, keyed by relative path.
type ShareStore struct {
	Shares *dslvl.Datastore
}

func NewShareStore(dsPath string) (*ShareStore, error) {
	p := fmt.Sprintf("%s/shares", dsPath)
	store, err := dslvl.NewDatastore(p, nil)
	if err != nil {
		return nil, err
	}

	return &ShareStore{
		Shares: store,
	}, nil
}

func (s *ShareStore) Get(ctx context.Context, relPath string) (*model.ShareRecord, error) {
	b, err := s.Shares.Get(ctx, ds.NewKey(relPath))
	if errors.Is(err, ds.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrShareNotFound, relPath)
	}
	if err != nil {
		return nil, err
	}

	var record model.ShareRecord
	err = json.Unmarshal(b, &record)
	if err != nil {
		return nil, err
	}

	return &record, nil
}

func (s *ShareStore) Put(ctx context.Context, record model.ShareRecord) error {
	b, err := json.Marshal(record)
	if err != nil {
		return err
	}

	return s.Shares.Put(ctx, ds.NewKey(record.Path), b)
}

func (s *ShareStore) Delete(ctx context.Context, relPath string) error {
	return s.Shares.Delete(ctx, ds.NewKey(relPath))
}

func (s *ShareStore) All(ctx context.Context) ([]*model.ShareRecord, error) {
	q := dsq.Query{Orders: []dsq.Order{dsq.OrderByKey{}}}
	records := make([]*model.ShareRecord, 0)

	res, err := s.Shares.Query(ctx, q)
	if err != nil {
		return records, err
	}
	defer res.Close()

	for {
		r, hasNext := res.NextSync()
		if !hasNext {
			break
		}

		if r.Error != nil {
			return records, r.Error
		}

		var record model.ShareRecord
		err = json.Unmarshal(r.Value, &record)
		if err != nil {
			return records, err
		}
		records = append(records, &record)
	}

	return records, nil
}

func (s *ShareStore) Close() error {
	return s.Shares.Close()
}
