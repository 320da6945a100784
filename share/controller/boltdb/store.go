package boltdb

import (
	"encoding/json"
	"sort"

	"github.com/datafoundry/shareflow/errors"
	"github.com/datafoundry/shareflow/logger"
	"github.com/datafoundry/shareflow/share"
	"github.com/datafoundry/shareflow/share/controller"
)

var (
	bucketShares        Bucket = Bucket("shares")
	bucketItems         Bucket = Bucket("shareItems")
	bucketDatasets      Bucket = Bucket("datasets")
	bucketEnvironments  Bucket = Bucket("environments")
	bucketNotifications Bucket = Bucket("notifications")
)

// StoreBuckets are the buckets the store uses. Pass them to NewSvcBolt.
var StoreBuckets []Bucket = []Bucket{
	bucketShares,
	bucketItems,
	bucketDatasets,
	bucketEnvironments,
	bucketNotifications,
}

// Ensure type implements interface.
var _ controller.Store = (*store)(nil)

// NewStore returns a controller.Store keeping all rows as JSON values in
// bolt buckets keyed by URI.
func NewStore(log logger.Logger) *store {
	if log == nil {
		log = logger.NopLogger
	}
	return &store{
		log: log,
	}
}

type store struct {
	log logger.Logger
}

func (s *store) CreateShare(tx share.Transaction, so *share.ShareObject) error {
	bt, ok := tx.(*Tx)
	if !ok {
		return share.NewErrInvalidTransaction("*boltdb.Tx")
	}

	so.Created = bt.now
	so.Updated = bt.now
	return s.put(bt, bucketShares, string(so.ShareURI), so)
}

func (s *store) Share(tx share.Transaction, uri share.ShareURI) (*share.ShareObject, error) {
	bt, ok := tx.(*Tx)
	if !ok {
		return nil, share.NewErrInvalidTransaction("*boltdb.Tx")
	}

	so := &share.ShareObject{}
	found, err := s.get(bt, bucketShares, string(uri), so)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, share.NewErrShareNotFound(uri)
	}
	return so, nil
}

func (s *store) ShareByDatasetAndPrincipal(tx share.Transaction, datasetURI share.DatasetURI, principalID string) (*share.ShareObject, error) {
	shares, err := s.Shares(tx)
	if err != nil {
		return nil, err
	}
	for _, so := range shares {
		if so.DatasetURI == datasetURI && so.PrincipalID == principalID {
			return so, nil
		}
	}
	return nil, nil
}

func (s *store) UpdateShare(tx share.Transaction, so *share.ShareObject) error {
	bt, ok := tx.(*Tx)
	if !ok {
		return share.NewErrInvalidTransaction("*boltdb.Tx")
	}

	prev := &share.ShareObject{}
	found, err := s.get(bt, bucketShares, string(so.ShareURI), prev)
	if err != nil {
		return err
	}
	if !found {
		return share.NewErrShareNotFound(so.ShareURI)
	}

	so.Created = prev.Created
	so.Updated = bt.now
	return s.put(bt, bucketShares, string(so.ShareURI), so)
}

func (s *store) Shares(tx share.Transaction) ([]*share.ShareObject, error) {
	bt, ok := tx.(*Tx)
	if !ok {
		return nil, share.NewErrInvalidTransaction("*boltdb.Tx")
	}

	out := make([]*share.ShareObject, 0)
	err := s.scan(bt, bucketShares, func(v []byte) error {
		so := &share.ShareObject{}
		if err := json.Unmarshal(v, so); err != nil {
			return errors.Wrap(err, "unmarshalling share")
		}
		if so.Deleted == nil {
			out = append(out, so)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(out, func(i, j int) bool {
		if !out[i].Created.Equal(out[j].Created) {
			return out[i].Created.Before(out[j].Created)
		}
		return out[i].ShareURI < out[j].ShareURI
	})
	return out, nil
}

func (s *store) SharesByDataset(tx share.Transaction, datasetURI share.DatasetURI) ([]*share.ShareObject, error) {
	shares, err := s.Shares(tx)
	if err != nil {
		return nil, err
	}
	out := make([]*share.ShareObject, 0, len(shares))
	for _, so := range shares {
		if so.DatasetURI == datasetURI {
			out = append(out, so)
		}
	}
	return out, nil
}

func (s *store) CreateItem(tx share.Transaction, item *share.ShareItem) error {
	bt, ok := tx.(*Tx)
	if !ok {
		return share.NewErrInvalidTransaction("*boltdb.Tx")
	}

	item.Created = bt.now
	item.Updated = bt.now
	return s.put(bt, bucketItems, string(item.ShareItemURI), item)
}

func (s *store) Item(tx share.Transaction, uri share.ShareItemURI) (*share.ShareItem, error) {
	bt, ok := tx.(*Tx)
	if !ok {
		return nil, share.NewErrInvalidTransaction("*boltdb.Tx")
	}

	item := &share.ShareItem{}
	found, err := s.get(bt, bucketItems, string(uri), item)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, share.NewErrShareItemNotFound(uri)
	}
	return item, nil
}

func (s *store) ItemByTarget(tx share.Transaction, shareURI share.ShareURI, itemURI share.ItemURI) (*share.ShareItem, error) {
	items, err := s.Items(tx, shareURI)
	if err != nil {
		return nil, err
	}
	for _, item := range items {
		if item.ItemURI == itemURI {
			return item, nil
		}
	}
	return nil, nil
}

func (s *store) Items(tx share.Transaction, shareURI share.ShareURI) (share.ShareItems, error) {
	bt, ok := tx.(*Tx)
	if !ok {
		return nil, share.NewErrInvalidTransaction("*boltdb.Tx")
	}

	out := make(share.ShareItems, 0)
	err := s.scan(bt, bucketItems, func(v []byte) error {
		item := &share.ShareItem{}
		if err := json.Unmarshal(v, item); err != nil {
			return errors.Wrap(err, "unmarshalling share item")
		}
		if item.ShareURI == shareURI {
			out = append(out, item)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(out, func(i, j int) bool {
		if !out[i].Created.Equal(out[j].Created) {
			return out[i].Created.Before(out[j].Created)
		}
		return out[i].ShareItemURI < out[j].ShareItemURI
	})
	return out, nil
}

func (s *store) ItemsByStatus(tx share.Transaction, shareURI share.ShareURI, statuses ...share.ShareItemStatus) (share.ShareItems, error) {
	items, err := s.Items(tx, shareURI)
	if err != nil {
		return nil, err
	}

	out := make(share.ShareItems, 0, len(items))
	for _, item := range items {
		for _, st := range statuses {
			if item.Status == st {
				out = append(out, item)
				break
			}
		}
	}
	return out, nil
}

func (s *store) UpdateItem(tx share.Transaction, item *share.ShareItem) error {
	bt, ok := tx.(*Tx)
	if !ok {
		return share.NewErrInvalidTransaction("*boltdb.Tx")
	}

	prev := &share.ShareItem{}
	found, err := s.get(bt, bucketItems, string(item.ShareItemURI), prev)
	if err != nil {
		return err
	}
	if !found {
		return share.NewErrShareItemNotFound(item.ShareItemURI)
	}

	item.Created = prev.Created
	item.Updated = bt.now
	return s.put(bt, bucketItems, string(item.ShareItemURI), item)
}

func (s *store) UpdateItemsStatus(tx share.Transaction, shareURI share.ShareURI, from, to share.ShareItemStatus) error {
	items, err := s.Items(tx, shareURI)
	if err != nil {
		return err
	}
	for _, item := range items {
		if item.Status != from {
			continue
		}
		item.Status = to
		if err := s.UpdateItem(tx, item); err != nil {
			return err
		}
	}
	return nil
}

func (s *store) DeleteItem(tx share.Transaction, uri share.ShareItemURI) error {
	bt, ok := tx.(*Tx)
	if !ok {
		return share.NewErrInvalidTransaction("*boltdb.Tx")
	}

	bkt := bt.Bucket(bucketItems)
	if bkt == nil {
		return errors.Errorf(ErrFmtBucketNotFound, bucketItems)
	}
	return errors.Wrap(bkt.Delete([]byte(uri)), "deleting share item")
}

func (s *store) CreateDataset(tx share.Transaction, ds *share.Dataset) error {
	bt, ok := tx.(*Tx)
	if !ok {
		return share.NewErrInvalidTransaction("*boltdb.Tx")
	}
	return s.put(bt, bucketDatasets, string(ds.DatasetURI), ds)
}

func (s *store) Dataset(tx share.Transaction, uri share.DatasetURI) (*share.Dataset, error) {
	bt, ok := tx.(*Tx)
	if !ok {
		return nil, share.NewErrInvalidTransaction("*boltdb.Tx")
	}

	ds := &share.Dataset{}
	found, err := s.get(bt, bucketDatasets, string(uri), ds)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, share.NewErrDatasetNotFound(uri)
	}
	return ds, nil
}

func (s *store) Datasets(tx share.Transaction) ([]*share.Dataset, error) {
	bt, ok := tx.(*Tx)
	if !ok {
		return nil, share.NewErrInvalidTransaction("*boltdb.Tx")
	}

	out := make([]*share.Dataset, 0)
	err := s.scan(bt, bucketDatasets, func(v []byte) error {
		ds := &share.Dataset{}
		if err := json.Unmarshal(v, ds); err != nil {
			return errors.Wrap(err, "unmarshalling dataset")
		}
		out = append(out, ds)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *store) CreateEnvironment(tx share.Transaction, env *share.Environment) error {
	bt, ok := tx.(*Tx)
	if !ok {
		return share.NewErrInvalidTransaction("*boltdb.Tx")
	}
	return s.put(bt, bucketEnvironments, string(env.EnvironmentURI), env)
}

func (s *store) Environment(tx share.Transaction, uri share.EnvironmentURI) (*share.Environment, error) {
	bt, ok := tx.(*Tx)
	if !ok {
		return nil, share.NewErrInvalidTransaction("*boltdb.Tx")
	}

	env := &share.Environment{}
	found, err := s.get(bt, bucketEnvironments, string(uri), env)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, share.NewErrEnvironmentNotFound(uri)
	}
	return env, nil
}

func (s *store) CreateNotification(tx share.Transaction, n *share.Notification) error {
	bt, ok := tx.(*Tx)
	if !ok {
		return share.NewErrInvalidTransaction("*boltdb.Tx")
	}

	n.Created = bt.now
	return s.put(bt, bucketNotifications, n.NotificationURI, n)
}

func (s *store) Notifications(tx share.Transaction, recipient string) ([]*share.Notification, error) {
	bt, ok := tx.(*Tx)
	if !ok {
		return nil, share.NewErrInvalidTransaction("*boltdb.Tx")
	}

	out := make([]*share.Notification, 0)
	err := s.scan(bt, bucketNotifications, func(v []byte) error {
		n := &share.Notification{}
		if err := json.Unmarshal(v, n); err != nil {
			return errors.Wrap(err, "unmarshalling notification")
		}
		if n.Recipient == recipient {
			out = append(out, n)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].Created.After(out[j].Created)
	})
	return out, nil
}

func (s *store) put(bt *Tx, bucket Bucket, key string, value interface{}) error {
	bkt := bt.Bucket(bucket)
	if bkt == nil {
		return errors.Errorf(ErrFmtBucketNotFound, bucket)
	}
	v, err := json.Marshal(value)
	if err != nil {
		return errors.Wrap(err, "marshalling value")
	}
	return errors.Wrapf(bkt.Put([]byte(key), v), "putting '%s'", key)
}

func (s *store) get(bt *Tx, bucket Bucket, key string, value interface{}) (bool, error) {
	bkt := bt.Bucket(bucket)
	if bkt == nil {
		return false, errors.Errorf(ErrFmtBucketNotFound, bucket)
	}
	v := bkt.Get([]byte(key))
	if v == nil {
		return false, nil
	}
	if err := json.Unmarshal(v, value); err != nil {
		return false, errors.Wrapf(err, "unmarshalling '%s'", key)
	}
	return true, nil
}

func (s *store) scan(bt *Tx, bucket Bucket, fn func(v []byte) error) error {
	bkt := bt.Bucket(bucket)
	if bkt == nil {
		return errors.Errorf(ErrFmtBucketNotFound, bucket)
	}
	return bkt.ForEach(func(_, v []byte) error {
		return fn(v)
	})
}
