// Package controller provides the core Controller struct driving the share
// request lifecycle: creation, item management, the approval workflow,
// extensions and deletion. State changes go through the transition tables in
// the share package; the work of actually granting or revoking access is
// handed off to the sharing engine through the task queue.
package controller

import (
	"context"
	"time"

	"github.com/gofrs/uuid"

	"github.com/datafoundry/shareflow/errors"
	"github.com/datafoundry/shareflow/logger"
	"github.com/datafoundry/shareflow/share"
	"github.com/datafoundry/shareflow/share/notify"
	"github.com/datafoundry/shareflow/share/taskq"
)

const (
	txRetry = 5
)

type Controller struct {
	Store      Store
	Transactor share.Transactor

	// Queue is used to hand work off to the sharing engine.
	Queue taskq.Queue

	// Notifier is told about lifecycle events. Notification failures are
	// logged, never returned.
	Notifier notify.Notifier

	// Validators holds the per-dataset-type request validators.
	Validators *ValidatorRegistry

	logger logger.Logger
	now    func() time.Time
}

// New returns a new instance of Controller with default values.
func New(cfg Config) *Controller {
	// Set up logger.
	var logr logger.Logger = logger.StderrLogger
	if cfg.Logger != nil {
		logr = cfg.Logger
	}

	notifier := cfg.Notifier
	if notifier == nil {
		notifier = notify.NewNopNotifier()
	}

	validators := cfg.Validators
	if validators == nil {
		validators = NewValidatorRegistry()
	}

	return &Controller{
		Store:      cfg.Store,
		Transactor: cfg.Transactor,
		Queue:      cfg.Queue,
		Notifier:   notifier,
		Validators: validators,
		logger:     logr,
		now:        time.Now,
	}
}

// Start starts the controller's storage backend.
func (c *Controller) Start() error {
	if err := c.Transactor.Start(); err != nil {
		return errors.Wrap(err, "starting transactor")
	}
	return nil
}

// Stop shuts down the controller's storage backend.
func (c *Controller) Stop() error {
	return errors.Wrap(c.Transactor.Close(), "closing transactor")
}

// CreateShareRequest is the input to CreateShareObject.
type CreateShareRequest struct {
	DatasetURI     share.DatasetURI     `json:"datasetUri"`
	EnvironmentURI share.EnvironmentURI `json:"environmentUri"`

	GroupURI          string              `json:"groupUri"`
	PrincipalID       string              `json:"principalId"`
	PrincipalType     share.PrincipalType `json:"principalType"`
	PrincipalRoleName string              `json:"principalRoleName"`

	Owner          string `json:"owner"`
	RequestPurpose string `json:"requestPurpose"`

	RequestedExpiryDate *time.Time `json:"requestedExpiryDate,omitempty"`
	NonExpirable        bool       `json:"nonExpirable"`
}

// CreateShareObject creates a share request in Draft against a dataset. At
// most one live share exists per (dataset, principal) pair: if one already
// exists it is returned as-is instead of creating a duplicate.
func (c *Controller) CreateShareObject(ctx context.Context, req *CreateShareRequest) (*share.ShareObject, error) {
	c.logger.Debugf("c.CreateShareObject(): dataset=%s principal=%s", req.DatasetURI, req.PrincipalID)

	var out *share.ShareObject

	fn := func(tx share.Transaction, writable bool) error {
		dataset, err := c.Store.Dataset(tx, req.DatasetURI)
		if err != nil {
			return errors.Wrap(err, "getting dataset")
		}

		env, err := c.Store.Environment(tx, req.EnvironmentURI)
		if err != nil {
			return errors.Wrap(err, "getting target environment")
		}
		if !env.HasGroup(req.GroupURI) {
			return NewErrGroupNotOnboarded(req.GroupURI, req.EnvironmentURI)
		}

		validator, err := c.Validators.Validator(dataset.Type)
		if err != nil {
			return err
		}
		if err := validator.ValidateCreation(ctx, req, dataset, env); err != nil {
			return errors.Wrap(err, "validating share creation")
		}

		if err := validateExpiry(dataset, req.RequestedExpiryDate, req.NonExpirable, c.now()); err != nil {
			return err
		}

		// One live share per (dataset, principal).
		if existing, err := c.Store.ShareByDatasetAndPrincipal(tx, req.DatasetURI, req.PrincipalID); err != nil {
			return errors.Wrap(err, "checking for existing share")
		} else if existing != nil {
			out = existing
			return nil
		}

		id, err := uuid.NewV4()
		if err != nil {
			return errors.Wrap(err, "generating share uri")
		}

		so := &share.ShareObject{
			ShareURI:            share.ShareURI(id.String()),
			DatasetURI:          req.DatasetURI,
			EnvironmentURI:      req.EnvironmentURI,
			GroupURI:            req.GroupURI,
			PrincipalID:         req.PrincipalID,
			PrincipalType:       req.PrincipalType,
			PrincipalRoleName:   req.PrincipalRoleName,
			Status:              share.ShareObjectStatusDraft,
			Owner:               req.Owner,
			RequestPurpose:      req.RequestPurpose,
			RequestedExpiryDate: req.RequestedExpiryDate,
			NonExpirable:        req.NonExpirable,
		}
		if err := c.Store.CreateShare(tx, so); err != nil {
			return errors.Wrap(err, "creating share")
		}
		out = so
		return nil
	}

	if err := share.RetryWithTx(ctx, c.Transactor, fn, true, txRetry); err != nil {
		return nil, errors.Wrap(err, "retry with tx: write")
	}
	return out, nil
}

// GetShareObject returns a share and its items.
func (c *Controller) GetShareObject(ctx context.Context, uri share.ShareURI) (*share.ShareObject, share.ShareItems, error) {
	var so *share.ShareObject
	var items share.ShareItems

	fn := func(tx share.Transaction, writable bool) error {
		var err error
		if so, err = c.Store.Share(tx, uri); err != nil {
			return errors.Wrap(err, "getting share")
		}
		if items, err = c.Store.Items(tx, uri); err != nil {
			return errors.Wrap(err, "getting share items")
		}
		return nil
	}

	if err := share.RetryWithTx(ctx, c.Transactor, fn, false, txRetry); err != nil {
		return nil, nil, errors.Wrap(err, "retry with tx: read")
	}
	return so, items, nil
}

// ShareStatistics summarizes a share's items per lifecycle bucket.
func (c *Controller) ShareStatistics(ctx context.Context, uri share.ShareURI) (*share.Statistics, error) {
	_, items, err := c.GetShareObject(ctx, uri)
	if err != nil {
		return nil, err
	}

	stats := &share.Statistics{}
	for _, item := range items {
		switch item.Status {
		case share.ShareItemStatusShareSucceeded, share.ShareItemStatusPendingExtension:
			stats.SharedItems++
		case share.ShareItemStatusRevokeSucceeded:
			stats.RevokedItems++
		case share.ShareItemStatusShareFailed, share.ShareItemStatusRevokeFailed:
			stats.FailedItems++
		case share.ShareItemStatusPendingApproval:
			stats.PendingItems++
		}
	}
	return stats, nil
}

// AddItemRequest is the input to AddSharedItem.
type AddItemRequest struct {
	ItemURI  share.ItemURI       `json:"itemUri"`
	ItemType share.ShareableType `json:"itemType"`
	ItemName string              `json:"itemName"`
	Owner    string              `json:"owner"`

	DataFilterURIs []string `json:"dataFilterUris,omitempty"`
}

// AddSharedItem adds one shareable asset to a share request. Adding an item
// to a settled share re-opens the share to Draft; items already on the share
// keep their own status.
func (c *Controller) AddSharedItem(ctx context.Context, shareURI share.ShareURI, req *AddItemRequest) (*share.ShareItem, error) {
	c.logger.Debugf("c.AddSharedItem(): share=%s item=%s", shareURI, req.ItemURI)

	var out *share.ShareItem

	fn := func(tx share.Transaction, writable bool) error {
		so, err := c.Store.Share(tx, shareURI)
		if err != nil {
			return errors.Wrap(err, "getting share")
		}

		if existing, err := c.Store.ItemByTarget(tx, shareURI, req.ItemURI); err != nil {
			return errors.Wrap(err, "checking for existing item")
		} else if existing != nil {
			return NewErrShareItemExists(req.ItemURI)
		}

		next, err := share.NextObjectStatus(so.Status, share.ActionAddItem)
		if err != nil {
			return err
		}
		if next != so.Status {
			so.Status = next
			if err := c.Store.UpdateShare(tx, so); err != nil {
				return errors.Wrap(err, "updating share status")
			}
		}

		id, err := uuid.NewV4()
		if err != nil {
			return errors.Wrap(err, "generating share item uri")
		}
		item := &share.ShareItem{
			ShareItemURI:   share.ShareItemURI(id.String()),
			ShareURI:       shareURI,
			ItemURI:        req.ItemURI,
			ItemType:       req.ItemType,
			ItemName:       req.ItemName,
			Status:         share.ShareItemStatusPendingApproval,
			DataFilterURIs: req.DataFilterURIs,
			Owner:          req.Owner,
		}
		if err := c.Store.CreateItem(tx, item); err != nil {
			return errors.Wrap(err, "creating share item")
		}
		out = item
		return nil
	}

	if err := share.RetryWithTx(ctx, c.Transactor, fn, true, txRetry); err != nil {
		return nil, errors.Wrap(err, "retry with tx: write")
	}
	return out, nil
}

// RemoveSharedItem removes an item that has not been granted: only items
// that are pending, rejected, failed or already revoked can be removed.
func (c *Controller) RemoveSharedItem(ctx context.Context, uri share.ShareItemURI) error {
	c.logger.Debugf("c.RemoveSharedItem(): item=%s", uri)

	fn := func(tx share.Transaction, writable bool) error {
		item, err := c.Store.Item(tx, uri)
		if err != nil {
			return errors.Wrap(err, "getting share item")
		}

		// The transition validates the item is in a removable status.
		if _, err := share.NextItemStatus(item.Status, share.ActionRemoveItem); err != nil {
			return err
		}
		return errors.Wrap(c.Store.DeleteItem(tx, uri), "deleting share item")
	}

	if err := share.RetryWithTx(ctx, c.Transactor, fn, true, txRetry); err != nil {
		return errors.Wrap(err, "retry with tx: write")
	}
	return nil
}

// SubmitShareObject moves a Draft (or previously rejected) share to
// Submitted and re-queues rejected or failed items for approval. Submitting
// a share with no items pending approval is refused. When the dataset has
// auto-approval enabled the submission chains directly into approval.
func (c *Controller) SubmitShareObject(ctx context.Context, uri share.ShareURI) (*share.ShareObject, error) {
	c.logger.Debugf("c.SubmitShareObject(): share=%s", uri)

	var data *share.Data

	fn := func(tx share.Transaction, writable bool) error {
		var err error
		if data, err = c.loadData(tx, uri); err != nil {
			return err
		}

		// A submission needs something new to decide on: at least one item
		// still awaiting approval. Rejected or failed items alone do not
		// qualify; the requester has to amend the share first.
		if !data.Items.AnyInStatus(share.ShareItemStatusPendingApproval) {
			return NewErrEmptyShare(uri)
		}

		if err := validateExpiry(data.Dataset, data.Share.RequestedExpiryDate, data.Share.NonExpirable, c.now()); err != nil {
			return err
		}

		validator, err := c.Validators.Validator(data.Dataset.Type)
		if err != nil {
			return err
		}
		if err := validator.ValidateSubmission(ctx, data); err != nil {
			return errors.Wrap(err, "validating submission")
		}

		return c.runTransitions(tx, data.Share, data.Items, share.ActionSubmit)
	}

	if err := share.RetryWithTx(ctx, c.Transactor, fn, true, txRetry); err != nil {
		return nil, errors.Wrap(err, "retry with tx: write")
	}

	if err := c.Notifier.ShareSubmitted(ctx, data); err != nil {
		c.logger.Printf("notifying submission of share %s: %v", uri, err)
	}

	if data.Dataset.AutoApprovalEnabled {
		return c.ApproveShareObject(ctx, uri)
	}
	return data.Share, nil
}

// ApproveShareObject approves a submitted share, fixes its expiry date and
// hands the grant work to the sharing engine.
func (c *Controller) ApproveShareObject(ctx context.Context, uri share.ShareURI) (*share.ShareObject, error) {
	c.logger.Debugf("c.ApproveShareObject(): share=%s", uri)

	var data *share.Data

	fn := func(tx share.Transaction, writable bool) error {
		var err error
		if data, err = c.loadData(tx, uri); err != nil {
			return err
		}

		validator, err := c.Validators.Validator(data.Dataset.Type)
		if err != nil {
			return err
		}
		if err := validator.ValidateApproval(ctx, data); err != nil {
			return errors.Wrap(err, "validating approval")
		}

		so := data.Share
		if !so.NonExpirable {
			if so.RequestedExpiryDate != nil {
				so.ExpiryDate = so.RequestedExpiryDate
				so.RequestedExpiryDate = nil
			} else if so.ExpiryDate == nil && data.Dataset.ExpirySetting > 0 {
				d := c.now().AddDate(0, 0, data.Dataset.ExpirySetting)
				so.ExpiryDate = &d
			}
		}

		return c.runTransitions(tx, so, data.Items, share.ActionApprove)
	}

	if err := share.RetryWithTx(ctx, c.Transactor, fn, true, txRetry); err != nil {
		return nil, errors.Wrap(err, "retry with tx: write")
	}

	if err := c.Notifier.ShareApproved(ctx, data); err != nil {
		c.logger.Printf("notifying approval of share %s: %v", uri, err)
	}
	if err := c.Queue.Enqueue(ctx, taskq.NewTask(taskq.KindShare, uri)); err != nil {
		return nil, errors.Wrap(err, "enqueueing share task")
	}
	return data.Share, nil
}

// RejectShareObject rejects a submitted share.
func (c *Controller) RejectShareObject(ctx context.Context, uri share.ShareURI, rejectPurpose string) (*share.ShareObject, error) {
	c.logger.Debugf("c.RejectShareObject(): share=%s", uri)

	var data *share.Data

	fn := func(tx share.Transaction, writable bool) error {
		var err error
		if data, err = c.loadData(tx, uri); err != nil {
			return err
		}

		data.Share.RejectPurpose = rejectPurpose
		return c.runTransitions(tx, data.Share, data.Items, share.ActionReject)
	}

	if err := share.RetryWithTx(ctx, c.Transactor, fn, true, txRetry); err != nil {
		return nil, errors.Wrap(err, "retry with tx: write")
	}

	if err := c.Notifier.ShareRejected(ctx, data); err != nil {
		c.logger.Printf("notifying rejection of share %s: %v", uri, err)
	}
	return data.Share, nil
}

// RevokeItemsShareObject marks the given granted items for revocation and
// hands the revoke work to the sharing engine. A revoke is refused while any
// of the selected items is waiting for a re-apply, since the two would race
// on the same grants.
func (c *Controller) RevokeItemsShareObject(ctx context.Context, uri share.ShareURI, itemURIs []share.ShareItemURI) (*share.ShareObject, error) {
	c.logger.Debugf("c.RevokeItemsShareObject(): share=%s items=%d", uri, len(itemURIs))

	var data *share.Data

	fn := func(tx share.Transaction, writable bool) error {
		var err error
		if data, err = c.loadData(tx, uri); err != nil {
			return err
		}

		items, err := c.itemsByURI(tx, uri, itemURIs)
		if err != nil {
			return err
		}
		for _, item := range items {
			if item.Health == share.HealthStatusPendingReApply {
				return NewErrItemsPendingReApply(uri)
			}
		}

		so := data.Share
		next, err := share.NextObjectStatus(so.Status, share.ActionRevokeItems)
		if err != nil {
			return err
		}
		so.Status = next
		if err := c.Store.UpdateShare(tx, so); err != nil {
			return errors.Wrap(err, "updating share status")
		}

		for _, item := range items {
			nextItem, err := share.NextItemStatus(item.Status, share.ActionRevokeItems)
			if err != nil {
				return errors.Wrapf(err, "revoking item '%s'", item.ShareItemURI)
			}
			if nextItem == item.Status {
				continue
			}
			item.Status = nextItem
			if err := c.Store.UpdateItem(tx, item); err != nil {
				return errors.Wrap(err, "updating share item status")
			}
		}
		return nil
	}

	if err := share.RetryWithTx(ctx, c.Transactor, fn, true, txRetry); err != nil {
		return nil, errors.Wrap(err, "retry with tx: write")
	}

	if err := c.Notifier.ShareRevoked(ctx, data); err != nil {
		c.logger.Printf("notifying revocation of share %s: %v", uri, err)
	}
	if err := c.Queue.Enqueue(ctx, taskq.NewTask(taskq.KindRevoke, uri)); err != nil {
		return nil, errors.Wrap(err, "enqueueing revoke task")
	}
	return data.Share, nil
}

// VerifyItemsShareObject flags the given items for a health check and hands
// the verification to the sharing engine.
func (c *Controller) VerifyItemsShareObject(ctx context.Context, uri share.ShareURI, itemURIs []share.ShareItemURI) error {
	c.logger.Debugf("c.VerifyItemsShareObject(): share=%s items=%d", uri, len(itemURIs))

	fn := func(tx share.Transaction, writable bool) error {
		items, err := c.itemsByURI(tx, uri, itemURIs)
		if err != nil {
			return err
		}
		for _, item := range items {
			item.Health = share.HealthStatusPendingVerify
			item.HealthMessage = ""
			if err := c.Store.UpdateItem(tx, item); err != nil {
				return errors.Wrap(err, "updating share item health")
			}
		}
		return nil
	}

	if err := share.RetryWithTx(ctx, c.Transactor, fn, true, txRetry); err != nil {
		return errors.Wrap(err, "retry with tx: write")
	}
	return errors.Wrap(
		c.Queue.Enqueue(ctx, taskq.NewTask(taskq.KindVerify, uri, itemURIs...)),
		"enqueueing verify task")
}

// ReapplyItemsShareObject flags the given items for a re-apply of their
// grants and hands the work to the sharing engine.
func (c *Controller) ReapplyItemsShareObject(ctx context.Context, uri share.ShareURI, itemURIs []share.ShareItemURI) error {
	c.logger.Debugf("c.ReapplyItemsShareObject(): share=%s items=%d", uri, len(itemURIs))

	fn := func(tx share.Transaction, writable bool) error {
		items, err := c.itemsByURI(tx, uri, itemURIs)
		if err != nil {
			return err
		}
		for _, item := range items {
			item.Health = share.HealthStatusPendingReApply
			if err := c.Store.UpdateItem(tx, item); err != nil {
				return errors.Wrap(err, "updating share item health")
			}
		}
		return nil
	}

	if err := share.RetryWithTx(ctx, c.Transactor, fn, true, txRetry); err != nil {
		return errors.Wrap(err, "retry with tx: write")
	}
	return errors.Wrap(
		c.Queue.Enqueue(ctx, taskq.NewTask(taskq.KindReapply, uri, itemURIs...)),
		"enqueueing reapply task")
}

// DeleteShareObject soft-deletes a share. Deletion is refused while any item
// still holds or is acquiring access; those must be revoked first.
func (c *Controller) DeleteShareObject(ctx context.Context, uri share.ShareURI) error {
	c.logger.Debugf("c.DeleteShareObject(): share=%s", uri)

	fn := func(tx share.Transaction, writable bool) error {
		so, err := c.Store.Share(tx, uri)
		if err != nil {
			return errors.Wrap(err, "getting share")
		}

		items, err := c.Store.Items(tx, uri)
		if err != nil {
			return errors.Wrap(err, "getting share items")
		}
		shared := share.SharedItemStatuses()
		for _, item := range items {
			for _, st := range shared {
				if item.Status == st {
					return NewErrSharedItemsExist(uri)
				}
			}
		}

		next, err := share.NextObjectStatus(so.Status, share.ActionDelete)
		if err != nil {
			return err
		}

		for _, item := range items {
			if err := c.Store.DeleteItem(tx, item.ShareItemURI); err != nil {
				return errors.Wrap(err, "deleting share item")
			}
		}

		so.Status = next
		deleted := c.now()
		so.Deleted = &deleted
		return errors.Wrap(c.Store.UpdateShare(tx, so), "updating share")
	}

	if err := share.RetryWithTx(ctx, c.Transactor, fn, true, txRetry); err != nil {
		return errors.Wrap(err, "retry with tx: write")
	}
	return nil
}

// SubmitShareExtension asks for a new expiry date on a processed share.
// Granted items ride along into PendingExtension so they cannot be revoked
// mid-decision.
func (c *Controller) SubmitShareExtension(ctx context.Context, uri share.ShareURI, expiry *time.Time, purpose string, nonExpirable bool) (*share.ShareObject, error) {
	c.logger.Debugf("c.SubmitShareExtension(): share=%s", uri)

	var data *share.Data

	fn := func(tx share.Transaction, writable bool) error {
		var err error
		if data, err = c.loadData(tx, uri); err != nil {
			return err
		}

		if !nonExpirable {
			if expiry == nil {
				return NewErrInvalidExpiration("an extension needs a new expiry date or the non-expirable flag")
			}
			if !expiry.After(c.now()) {
				return NewErrInvalidExpiration("the new expiry date must be in the future")
			}
		}

		so := data.Share
		next, err := share.NextObjectStatus(so.Status, share.ActionExtension)
		if err != nil {
			return err
		}

		if err := c.transitionItemsInStatus(tx, uri, share.ShareItemStatusShareSucceeded, share.ActionExtension); err != nil {
			return err
		}

		so.Status = next
		so.RequestedExpiryDate = expiry
		so.ExtensionPurpose = purpose
		so.SubmittedForExtension = true
		so.NonExpirable = nonExpirable
		return errors.Wrap(c.Store.UpdateShare(tx, so), "updating share")
	}

	if err := share.RetryWithTx(ctx, c.Transactor, fn, true, txRetry); err != nil {
		return nil, errors.Wrap(err, "retry with tx: write")
	}

	if err := c.Notifier.ExtensionSubmitted(ctx, data); err != nil {
		c.logger.Printf("notifying extension of share %s: %v", uri, err)
	}
	return data.Share, nil
}

// ApproveShareExtension grants the requested extension and installs the new
// expiry date.
func (c *Controller) ApproveShareExtension(ctx context.Context, uri share.ShareURI) (*share.ShareObject, error) {
	c.logger.Debugf("c.ApproveShareExtension(): share=%s", uri)

	data, err := c.settleExtension(ctx, uri, share.ActionExtensionApprove, func(so *share.ShareObject) {
		if so.NonExpirable {
			so.ExpiryDate = nil
		} else {
			so.ExpiryDate = so.RequestedExpiryDate
		}
		so.RequestedExpiryDate = nil
	})
	if err != nil {
		return nil, err
	}

	if err := c.Notifier.ExtensionDecided(ctx, data, true); err != nil {
		c.logger.Printf("notifying extension approval of share %s: %v", uri, err)
	}
	return data.Share, nil
}

// RejectShareExtension refuses the requested extension; the share keeps its
// previous expiry date.
func (c *Controller) RejectShareExtension(ctx context.Context, uri share.ShareURI, rejectPurpose string) (*share.ShareObject, error) {
	c.logger.Debugf("c.RejectShareExtension(): share=%s", uri)

	data, err := c.settleExtension(ctx, uri, share.ActionExtensionReject, func(so *share.ShareObject) {
		so.RejectPurpose = rejectPurpose
		so.RequestedExpiryDate = nil
		so.NonExpirable = false
	})
	if err != nil {
		return nil, err
	}

	if err := c.Notifier.ExtensionDecided(ctx, data, false); err != nil {
		c.logger.Printf("notifying extension rejection of share %s: %v", uri, err)
	}
	return data.Share, nil
}

// CancelShareExtension withdraws an extension request before it is decided.
func (c *Controller) CancelShareExtension(ctx context.Context, uri share.ShareURI) (*share.ShareObject, error) {
	c.logger.Debugf("c.CancelShareExtension(): share=%s", uri)

	data, err := c.settleExtension(ctx, uri, share.ActionCancelExtension, func(so *share.ShareObject) {
		so.RequestedExpiryDate = nil
		so.NonExpirable = false
	})
	if err != nil {
		return nil, err
	}
	return data.Share, nil
}

// settleExtension closes an extension request with the given action, applying
// finish to the share's expiry fields.
func (c *Controller) settleExtension(ctx context.Context, uri share.ShareURI, action share.Action, finish func(*share.ShareObject)) (*share.Data, error) {
	var data *share.Data

	fn := func(tx share.Transaction, writable bool) error {
		var err error
		if data, err = c.loadData(tx, uri); err != nil {
			return err
		}

		so := data.Share
		next, err := share.NextObjectStatus(so.Status, action)
		if err != nil {
			return err
		}

		if err := c.transitionItemsInStatus(tx, uri, share.ShareItemStatusPendingExtension, action); err != nil {
			return err
		}

		so.Status = next
		so.SubmittedForExtension = false
		finish(so)
		return errors.Wrap(c.Store.UpdateShare(tx, so), "updating share")
	}

	if err := share.RetryWithTx(ctx, c.Transactor, fn, true, txRetry); err != nil {
		return nil, errors.Wrap(err, "retry with tx: write")
	}
	return data, nil
}

// UpdateRequestPurpose replaces the free-text purpose of the request.
func (c *Controller) UpdateRequestPurpose(ctx context.Context, uri share.ShareURI, purpose string) error {
	return c.updateShare(ctx, uri, func(so *share.ShareObject) {
		so.RequestPurpose = purpose
	})
}

// UpdateRejectPurpose replaces the free-text reason of a rejection.
func (c *Controller) UpdateRejectPurpose(ctx context.Context, uri share.ShareURI, purpose string) error {
	return c.updateShare(ctx, uri, func(so *share.ShareObject) {
		so.RejectPurpose = purpose
	})
}

// UpdateExtensionPurpose replaces the free-text reason of an extension
// request.
func (c *Controller) UpdateExtensionPurpose(ctx context.Context, uri share.ShareURI, purpose string) error {
	return c.updateShare(ctx, uri, func(so *share.ShareObject) {
		so.ExtensionPurpose = purpose
	})
}

// RegisterDataset upserts the dataset metadata the share engine needs.
func (c *Controller) RegisterDataset(ctx context.Context, ds *share.Dataset) error {
	fn := func(tx share.Transaction, writable bool) error {
		return errors.Wrap(c.Store.CreateDataset(tx, ds), "creating dataset")
	}
	return errors.Wrap(share.RetryWithTx(ctx, c.Transactor, fn, true, txRetry), "retry with tx: write")
}

// RegisterEnvironment upserts an environment.
func (c *Controller) RegisterEnvironment(ctx context.Context, env *share.Environment) error {
	fn := func(tx share.Transaction, writable bool) error {
		return errors.Wrap(c.Store.CreateEnvironment(tx, env), "creating environment")
	}
	return errors.Wrap(share.RetryWithTx(ctx, c.Transactor, fn, true, txRetry), "retry with tx: write")
}

// Notifications lists the notifications addressed to a group.
func (c *Controller) Notifications(ctx context.Context, recipient string) ([]*share.Notification, error) {
	var out []*share.Notification
	fn := func(tx share.Transaction, writable bool) error {
		var err error
		out, err = c.Store.Notifications(tx, recipient)
		return errors.Wrap(err, "getting notifications")
	}
	if err := share.RetryWithTx(ctx, c.Transactor, fn, false, txRetry); err != nil {
		return nil, errors.Wrap(err, "retry with tx: read")
	}
	return out, nil
}

// runTransitions applies an object-level action to the share and all of its
// items: the object status is validated first, then each distinct item
// status is moved through the item table (bulk per status). Item statuses
// that map to themselves are left untouched.
func (c *Controller) runTransitions(tx share.Transaction, so *share.ShareObject, items share.ShareItems, action share.Action) error {
	nextObject, err := share.NextObjectStatus(so.Status, action)
	if err != nil {
		return err
	}

	for _, st := range items.Statuses() {
		next, err := share.NextItemStatus(st, action)
		if err != nil {
			return errors.Wrapf(err, "transitioning items in status '%s'", st)
		}
		if next == st {
			continue
		}
		if err := c.Store.UpdateItemsStatus(tx, so.ShareURI, st, next); err != nil {
			return errors.Wrap(err, "updating share item statuses")
		}
	}

	so.Status = nextObject
	return errors.Wrap(c.Store.UpdateShare(tx, so), "updating share")
}

// transitionItemsInStatus moves items currently in the given status through
// the action, leaving every other item alone.
func (c *Controller) transitionItemsInStatus(tx share.Transaction, uri share.ShareURI, status share.ShareItemStatus, action share.Action) error {
	next, err := share.NextItemStatus(status, action)
	if err != nil {
		return errors.Wrapf(err, "transitioning items in status '%s'", status)
	}
	if next == status {
		return nil
	}
	return errors.Wrap(c.Store.UpdateItemsStatus(tx, uri, status, next), "updating share item statuses")
}

// loadData loads a share plus the dataset and both environments.
func (c *Controller) loadData(tx share.Transaction, uri share.ShareURI) (*share.Data, error) {
	so, err := c.Store.Share(tx, uri)
	if err != nil {
		return nil, errors.Wrap(err, "getting share")
	}
	dataset, err := c.Store.Dataset(tx, so.DatasetURI)
	if err != nil {
		return nil, errors.Wrap(err, "getting dataset")
	}
	source, err := c.Store.Environment(tx, dataset.EnvironmentURI)
	if err != nil {
		return nil, errors.Wrap(err, "getting source environment")
	}
	target, err := c.Store.Environment(tx, so.EnvironmentURI)
	if err != nil {
		return nil, errors.Wrap(err, "getting target environment")
	}
	items, err := c.Store.Items(tx, uri)
	if err != nil {
		return nil, errors.Wrap(err, "getting share items")
	}
	return &share.Data{
		Share:             so,
		Items:             items,
		Dataset:           dataset,
		SourceEnvironment: source,
		TargetEnvironment: target,
	}, nil
}

func (c *Controller) itemsByURI(tx share.Transaction, shareURI share.ShareURI, uris []share.ShareItemURI) (share.ShareItems, error) {
	items := make(share.ShareItems, 0, len(uris))
	for _, uri := range uris {
		item, err := c.Store.Item(tx, uri)
		if err != nil {
			return nil, errors.Wrapf(err, "getting share item '%s'", uri)
		}
		if item.ShareURI != shareURI {
			return nil, share.NewErrShareItemNotFound(uri)
		}
		items = append(items, item)
	}
	return items, nil
}

// updateShare applies a field mutation to a share inside a write transaction.
func (c *Controller) updateShare(ctx context.Context, uri share.ShareURI, mutate func(*share.ShareObject)) error {
	fn := func(tx share.Transaction, writable bool) error {
		so, err := c.Store.Share(tx, uri)
		if err != nil {
			return errors.Wrap(err, "getting share")
		}
		mutate(so)
		return errors.Wrap(c.Store.UpdateShare(tx, so), "updating share")
	}
	if err := share.RetryWithTx(ctx, c.Transactor, fn, true, txRetry); err != nil {
		return errors.Wrap(err, "retry with tx: write")
	}
	return nil
}

// validateExpiry checks a requested expiry date against the dataset's lease
// policy.
func validateExpiry(dataset *share.Dataset, expiry *time.Time, nonExpirable bool, now time.Time) error {
	if nonExpirable {
		return nil
	}
	if expiry == nil {
		// The dataset default applies at approval time.
		return nil
	}
	if !expiry.After(now) {
		return NewErrInvalidExpiration("the expiry date must be in the future")
	}
	if dataset.ExpirySetting == 0 {
		return NewErrInvalidExpiration("the dataset does not use expiring shares")
	}
	return nil
}
