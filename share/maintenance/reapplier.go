package maintenance

import (
	"context"

	"github.com/datafoundry/shareflow/errors"
	"github.com/datafoundry/shareflow/logger"
	"github.com/datafoundry/shareflow/share"
	"github.com/datafoundry/shareflow/share/controller"
	"github.com/datafoundry/shareflow/share/taskq"
)

// Reapplier flags unhealthy items for a fresh grant and enqueues the re-apply
// tasks. Operators run it after fixing whatever knocked the grants over, over
// everything, one dataset, or a hand-picked set of shares.
type Reapplier struct {
	Store      controller.Store
	Transactor share.Transactor
	Queue      taskq.Queue

	logger logger.Logger
}

func NewReapplier(store controller.Store, trans share.Transactor, queue taskq.Queue, log logger.Logger) *Reapplier {
	if log == nil {
		log = logger.StderrLogger
	}
	return &Reapplier{
		Store:      store,
		Transactor: trans,
		Queue:      queue,
		logger:     log,
	}
}

// ReapplyAll queues every unhealthy item of every live share.
func (r *Reapplier) ReapplyAll(ctx context.Context) error {
	var uris []share.ShareURI
	fn := func(tx share.Transaction, writable bool) error {
		shares, err := r.Store.Shares(tx)
		if err != nil {
			return errors.Wrap(err, "listing shares")
		}
		uris = shareURIs(shares)
		return nil
	}
	if err := share.RetryWithTx(ctx, r.Transactor, fn, false, txRetry); err != nil {
		return err
	}
	return r.ReapplyShares(ctx, uris)
}

// ReapplyDataset queues every unhealthy item across the dataset's shares.
func (r *Reapplier) ReapplyDataset(ctx context.Context, datasetURI share.DatasetURI) error {
	var uris []share.ShareURI
	fn := func(tx share.Transaction, writable bool) error {
		shares, err := r.Store.SharesByDataset(tx, datasetURI)
		if err != nil {
			return errors.Wrapf(err, "listing shares of dataset '%s'", datasetURI)
		}
		uris = shareURIs(shares)
		return nil
	}
	if err := share.RetryWithTx(ctx, r.Transactor, fn, false, txRetry); err != nil {
		return err
	}
	return r.ReapplyShares(ctx, uris)
}

// ReapplyShares marks each share's unhealthy items PendingReApply and
// enqueues one re-apply task per share that has any. A share that cannot be
// processed is logged and skipped.
func (r *Reapplier) ReapplyShares(ctx context.Context, uris []share.ShareURI) error {
	for _, uri := range uris {
		if err := r.reapplyShare(ctx, uri); err != nil {
			r.logger.Printf("queueing re-apply of share %s: %v", uri, err)
		}
	}
	return nil
}

func (r *Reapplier) reapplyShare(ctx context.Context, uri share.ShareURI) error {
	var itemURIs []share.ShareItemURI

	fn := func(tx share.Transaction, writable bool) error {
		items, err := r.Store.Items(tx, uri)
		if err != nil {
			return errors.Wrap(err, "getting share items")
		}

		itemURIs = itemURIs[:0]
		for _, item := range items {
			if item.Health != share.HealthStatusUnhealthy {
				continue
			}
			item.Health = share.HealthStatusPendingReApply
			if err := r.Store.UpdateItem(tx, item); err != nil {
				return errors.Wrap(err, "updating share item")
			}
			itemURIs = append(itemURIs, item.ShareItemURI)
		}
		return nil
	}
	if err := share.RetryWithTx(ctx, r.Transactor, fn, true, txRetry); err != nil {
		return err
	}

	if len(itemURIs) == 0 {
		return nil
	}
	r.logger.Printf("re-applying %d items of share %s", len(itemURIs), uri)
	return errors.Wrap(r.Queue.Enqueue(ctx, taskq.NewTask(taskq.KindReapply, uri, itemURIs...)), "enqueueing re-apply task")
}

func shareURIs(shares []*share.ShareObject) []share.ShareURI {
	uris := make([]share.ShareURI, 0, len(shares))
	for _, so := range shares {
		uris = append(uris, so.ShareURI)
	}
	return uris
}
