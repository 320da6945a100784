package sqldb

import (
	"github.com/datafoundry/shareflow/errors"
	"github.com/datafoundry/shareflow/logger"
	"github.com/datafoundry/shareflow/share"
	"github.com/datafoundry/shareflow/share/controller"
	"github.com/datafoundry/shareflow/share/models"
)

// Ensure type implements interface.
var _ controller.Store = (*store)(nil)

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
	st, ok := tx.(*ShareTransaction)
	if !ok {
		return share.NewErrInvalidTransaction("*sqldb.ShareTransaction")
	}

	row := &models.ShareObject{}
	row.FromShare(so)
	return errors.Wrap(st.C.Create(row), "putting share into database")
}

func (s *store) Share(tx share.Transaction, uri share.ShareURI) (*share.ShareObject, error) {
	st, ok := tx.(*ShareTransaction)
	if !ok {
		return nil, share.NewErrInvalidTransaction("*sqldb.ShareTransaction")
	}

	row := &models.ShareObject{}
	err := st.C.Where("share_uri = ?", uri).First(row)
	if isNoRowsError(err) {
		return nil, share.NewErrShareNotFound(uri)
	} else if err != nil {
		return nil, errors.Wrap(err, "getting share")
	}
	return row.ToShare(), nil
}

func (s *store) ShareByDatasetAndPrincipal(tx share.Transaction, datasetURI share.DatasetURI, principalID string) (*share.ShareObject, error) {
	st, ok := tx.(*ShareTransaction)
	if !ok {
		return nil, share.NewErrInvalidTransaction("*sqldb.ShareTransaction")
	}

	row := &models.ShareObject{}
	err := st.C.Where("dataset_uri = ? and principal_id = ? and deleted_at is null", datasetURI, principalID).First(row)
	if isNoRowsError(err) {
		return nil, nil
	} else if err != nil {
		return nil, errors.Wrap(err, "getting share by dataset and principal")
	}
	return row.ToShare(), nil
}

func (s *store) UpdateShare(tx share.Transaction, so *share.ShareObject) error {
	st, ok := tx.(*ShareTransaction)
	if !ok {
		return share.NewErrInvalidTransaction("*sqldb.ShareTransaction")
	}

	row := &models.ShareObject{}
	err := st.C.Where("share_uri = ?", so.ShareURI).First(row)
	if isNoRowsError(err) {
		return share.NewErrShareNotFound(so.ShareURI)
	} else if err != nil {
		return errors.Wrap(err, "getting share")
	}

	row.FromShare(so)
	return errors.Wrap(st.C.Update(row), "updating share")
}

func (s *store) Shares(tx share.Transaction) ([]*share.ShareObject, error) {
	st, ok := tx.(*ShareTransaction)
	if !ok {
		return nil, share.NewErrInvalidTransaction("*sqldb.ShareTransaction")
	}

	rows := models.ShareObjects{}
	if err := st.C.Where("deleted_at is null").Order("created_at asc").All(&rows); err != nil {
		return nil, errors.Wrap(err, "querying for shares")
	}

	out := make([]*share.ShareObject, len(rows))
	for i, row := range rows {
		out[i] = row.ToShare()
	}
	return out, nil
}

func (s *store) SharesByDataset(tx share.Transaction, datasetURI share.DatasetURI) ([]*share.ShareObject, error) {
	st, ok := tx.(*ShareTransaction)
	if !ok {
		return nil, share.NewErrInvalidTransaction("*sqldb.ShareTransaction")
	}

	rows := models.ShareObjects{}
	if err := st.C.Where("dataset_uri = ? and deleted_at is null", datasetURI).Order("created_at asc").All(&rows); err != nil {
		return nil, errors.Wrap(err, "querying for shares by dataset")
	}

	out := make([]*share.ShareObject, len(rows))
	for i, row := range rows {
		out[i] = row.ToShare()
	}
	return out, nil
}

func (s *store) CreateItem(tx share.Transaction, item *share.ShareItem) error {
	st, ok := tx.(*ShareTransaction)
	if !ok {
		return share.NewErrInvalidTransaction("*sqldb.ShareTransaction")
	}

	row := &models.ShareItem{}
	row.FromShareItem(item)
	return errors.Wrap(st.C.Create(row), "putting share item into database")
}

func (s *store) Item(tx share.Transaction, uri share.ShareItemURI) (*share.ShareItem, error) {
	st, ok := tx.(*ShareTransaction)
	if !ok {
		return nil, share.NewErrInvalidTransaction("*sqldb.ShareTransaction")
	}

	row := &models.ShareItem{}
	err := st.C.Where("share_item_uri = ?", uri).First(row)
	if isNoRowsError(err) {
		return nil, share.NewErrShareItemNotFound(uri)
	} else if err != nil {
		return nil, errors.Wrap(err, "getting share item")
	}
	return row.ToShareItem(), nil
}

func (s *store) ItemByTarget(tx share.Transaction, shareURI share.ShareURI, itemURI share.ItemURI) (*share.ShareItem, error) {
	st, ok := tx.(*ShareTransaction)
	if !ok {
		return nil, share.NewErrInvalidTransaction("*sqldb.ShareTransaction")
	}

	row := &models.ShareItem{}
	err := st.C.Where("share_uri = ? and item_uri = ?", shareURI, itemURI).First(row)
	if isNoRowsError(err) {
		return nil, nil
	} else if err != nil {
		return nil, errors.Wrap(err, "getting share item by target")
	}
	return row.ToShareItem(), nil
}

func (s *store) Items(tx share.Transaction, shareURI share.ShareURI) (share.ShareItems, error) {
	st, ok := tx.(*ShareTransaction)
	if !ok {
		return nil, share.NewErrInvalidTransaction("*sqldb.ShareTransaction")
	}

	rows := models.ShareItems{}
	if err := st.C.Where("share_uri = ?", shareURI).Order("created_at asc").All(&rows); err != nil {
		return nil, errors.Wrap(err, "querying for share items")
	}

	out := make(share.ShareItems, len(rows))
	for i, row := range rows {
		out[i] = row.ToShareItem()
	}
	return out, nil
}

func (s *store) ItemsByStatus(tx share.Transaction, shareURI share.ShareURI, statuses ...share.ShareItemStatus) (share.ShareItems, error) {
	st, ok := tx.(*ShareTransaction)
	if !ok {
		return nil, share.NewErrInvalidTransaction("*sqldb.ShareTransaction")
	}

	rows := models.ShareItems{}
	if err := st.C.Where("share_uri = ? and status in (?)", shareURI, statuses).Order("created_at asc").All(&rows); err != nil {
		return nil, errors.Wrap(err, "querying for share items by status")
	}

	out := make(share.ShareItems, len(rows))
	for i, row := range rows {
		out[i] = row.ToShareItem()
	}
	return out, nil
}

func (s *store) UpdateItem(tx share.Transaction, item *share.ShareItem) error {
	st, ok := tx.(*ShareTransaction)
	if !ok {
		return share.NewErrInvalidTransaction("*sqldb.ShareTransaction")
	}

	row := &models.ShareItem{}
	err := st.C.Where("share_item_uri = ?", item.ShareItemURI).First(row)
	if isNoRowsError(err) {
		return share.NewErrShareItemNotFound(item.ShareItemURI)
	} else if err != nil {
		return errors.Wrap(err, "getting share item")
	}

	row.FromShareItem(item)
	return errors.Wrap(st.C.Update(row), "updating share item")
}

func (s *store) UpdateItemsStatus(tx share.Transaction, shareURI share.ShareURI, from, to share.ShareItemStatus) error {
	st, ok := tx.(*ShareTransaction)
	if !ok {
		return share.NewErrInvalidTransaction("*sqldb.ShareTransaction")
	}

	sql := `UPDATE
                share_items
            SET
                status = ?
            WHERE
                share_uri = ? AND
                status = ?`
	err := st.C.RawQuery(sql, to, shareURI, from).Exec()
	return errors.Wrap(err, "updating share item statuses")
}

func (s *store) DeleteItem(tx share.Transaction, uri share.ShareItemURI) error {
	st, ok := tx.(*ShareTransaction)
	if !ok {
		return share.NewErrInvalidTransaction("*sqldb.ShareTransaction")
	}

	err := st.C.RawQuery("DELETE FROM share_items WHERE share_item_uri = ?", uri).Exec()
	return errors.Wrap(err, "deleting share item")
}

func (s *store) CreateDataset(tx share.Transaction, ds *share.Dataset) error {
	st, ok := tx.(*ShareTransaction)
	if !ok {
		return share.NewErrInvalidTransaction("*sqldb.ShareTransaction")
	}

	row := &models.Dataset{}
	err := st.C.Where("dataset_uri = ?", ds.DatasetURI).First(row)
	if isNoRowsError(err) {
		row.FromDataset(ds)
		return errors.Wrap(st.C.Create(row), "putting dataset into database")
	} else if err != nil {
		return errors.Wrap(err, "getting dataset")
	}

	row.FromDataset(ds)
	return errors.Wrap(st.C.Update(row), "updating dataset")
}

func (s *store) Dataset(tx share.Transaction, uri share.DatasetURI) (*share.Dataset, error) {
	st, ok := tx.(*ShareTransaction)
	if !ok {
		return nil, share.NewErrInvalidTransaction("*sqldb.ShareTransaction")
	}

	row := &models.Dataset{}
	err := st.C.Where("dataset_uri = ?", uri).First(row)
	if isNoRowsError(err) {
		return nil, share.NewErrDatasetNotFound(uri)
	} else if err != nil {
		return nil, errors.Wrap(err, "getting dataset")
	}
	return row.ToDataset(), nil
}

func (s *store) Datasets(tx share.Transaction) ([]*share.Dataset, error) {
	st, ok := tx.(*ShareTransaction)
	if !ok {
		return nil, share.NewErrInvalidTransaction("*sqldb.ShareTransaction")
	}

	rows := models.Datasets{}
	if err := st.C.Order("created_at asc").All(&rows); err != nil {
		return nil, errors.Wrap(err, "querying for datasets")
	}

	out := make([]*share.Dataset, len(rows))
	for i, row := range rows {
		out[i] = row.ToDataset()
	}
	return out, nil
}

func (s *store) CreateEnvironment(tx share.Transaction, env *share.Environment) error {
	st, ok := tx.(*ShareTransaction)
	if !ok {
		return share.NewErrInvalidTransaction("*sqldb.ShareTransaction")
	}

	row := &models.Environment{}
	err := st.C.Where("environment_uri = ?", env.EnvironmentURI).First(row)
	if isNoRowsError(err) {
		row.FromEnvironment(env)
		return errors.Wrap(st.C.Create(row), "putting environment into database")
	} else if err != nil {
		return errors.Wrap(err, "getting environment")
	}

	row.FromEnvironment(env)
	return errors.Wrap(st.C.Update(row), "updating environment")
}

func (s *store) Environment(tx share.Transaction, uri share.EnvironmentURI) (*share.Environment, error) {
	st, ok := tx.(*ShareTransaction)
	if !ok {
		return nil, share.NewErrInvalidTransaction("*sqldb.ShareTransaction")
	}

	row := &models.Environment{}
	err := st.C.Where("environment_uri = ?", uri).First(row)
	if isNoRowsError(err) {
		return nil, share.NewErrEnvironmentNotFound(uri)
	} else if err != nil {
		return nil, errors.Wrap(err, "getting environment")
	}
	return row.ToEnvironment(), nil
}

func (s *store) CreateNotification(tx share.Transaction, n *share.Notification) error {
	st, ok := tx.(*ShareTransaction)
	if !ok {
		return share.NewErrInvalidTransaction("*sqldb.ShareTransaction")
	}

	row := &models.Notification{}
	row.FromNotification(n)
	return errors.Wrap(st.C.Create(row), "putting notification into database")
}

func (s *store) Notifications(tx share.Transaction, recipient string) ([]*share.Notification, error) {
	st, ok := tx.(*ShareTransaction)
	if !ok {
		return nil, share.NewErrInvalidTransaction("*sqldb.ShareTransaction")
	}

	rows := models.Notifications{}
	if err := st.C.Where("recipient = ?", recipient).Order("created_at desc").All(&rows); err != nil {
		return nil, errors.Wrap(err, "querying for notifications")
	}

	out := make([]*share.Notification, len(rows))
	for i, row := range rows {
		out[i] = row.ToNotification()
	}
	return out, nil
}
