package controller

import (
	"github.com/datafoundry/shareflow/share"
)

// Store is the persistence interface the controller and the sharing engine
// run against. Every method takes the transaction it should run in; the
// caller owns the transaction boundary (usually via share.RetryWithTx).
type Store interface {
	// Share objects.
	CreateShare(tx share.Transaction, so *share.ShareObject) error
	Share(tx share.Transaction, uri share.ShareURI) (*share.ShareObject, error)
	// ShareByDatasetAndPrincipal finds the live share for a (dataset,
	// principal) pair, or returns nil when there is none.
	ShareByDatasetAndPrincipal(tx share.Transaction, datasetURI share.DatasetURI, principalID string) (*share.ShareObject, error)
	UpdateShare(tx share.Transaction, so *share.ShareObject) error
	// Shares lists all live (not soft-deleted) share objects.
	Shares(tx share.Transaction) ([]*share.ShareObject, error)
	SharesByDataset(tx share.Transaction, datasetURI share.DatasetURI) ([]*share.ShareObject, error)

	// Share items.
	CreateItem(tx share.Transaction, item *share.ShareItem) error
	Item(tx share.Transaction, uri share.ShareItemURI) (*share.ShareItem, error)
	// ItemByTarget finds the item of a share pointing at a given asset, or
	// returns nil when there is none.
	ItemByTarget(tx share.Transaction, shareURI share.ShareURI, itemURI share.ItemURI) (*share.ShareItem, error)
	Items(tx share.Transaction, shareURI share.ShareURI) (share.ShareItems, error)
	ItemsByStatus(tx share.Transaction, shareURI share.ShareURI, statuses ...share.ShareItemStatus) (share.ShareItems, error)
	UpdateItem(tx share.Transaction, item *share.ShareItem) error
	// UpdateItemsStatus moves every item of the share in status from to
	// status to.
	UpdateItemsStatus(tx share.Transaction, shareURI share.ShareURI, from, to share.ShareItemStatus) error
	DeleteItem(tx share.Transaction, uri share.ShareItemURI) error

	// Reference data.
	CreateDataset(tx share.Transaction, ds *share.Dataset) error
	Dataset(tx share.Transaction, uri share.DatasetURI) (*share.Dataset, error)
	Datasets(tx share.Transaction) ([]*share.Dataset, error)
	CreateEnvironment(tx share.Transaction, env *share.Environment) error
	Environment(tx share.Transaction, uri share.EnvironmentURI) (*share.Environment, error)

	// Notifications.
	CreateNotification(tx share.Transaction, n *share.Notification) error
	Notifications(tx share.Transaction, recipient string) ([]*share.Notification, error)
}
