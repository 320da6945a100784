// Package maintenance holds the background jobs that keep shares honest:
// the Expirer revokes shares whose lease ran out, and the Reapplier queues
// unhealthy items for a fresh grant.
package maintenance

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/datafoundry/shareflow/errors"
	"github.com/datafoundry/shareflow/logger"
	"github.com/datafoundry/shareflow/share"
	"github.com/datafoundry/shareflow/share/controller"
	"github.com/datafoundry/shareflow/share/notify"
	"github.com/datafoundry/shareflow/share/taskq"
)

const (
	txRetry = 5

	defaultInterval      = time.Hour
	defaultWarningPeriod = 7 * 24 * time.Hour
)

type ExpirerConfig struct {
	Store      controller.Store
	Transactor share.Transactor
	Queue      taskq.Queue
	Notifier   notify.Notifier

	// Interval is the pause between runs. Defaults to one hour.
	Interval time.Duration `toml:"interval"`

	// WarningPeriod is how far ahead of the expiry date the expiry warning
	// goes out. Defaults to seven days.
	WarningPeriod time.Duration `toml:"warning-period"`

	Logger logger.Logger
}

// Expirer periodically sweeps all live shares. Expired shares have their
// granted items moved onto the revoke path and a revoke task enqueued;
// shares inside the warning window trigger an expiry notification instead.
type Expirer struct {
	Store      controller.Store
	Transactor share.Transactor
	Queue      taskq.Queue
	Notifier   notify.Notifier

	interval      time.Duration
	warningPeriod time.Duration

	cancel          context.CancelFunc
	backgroundGroup errgroup.Group

	logger logger.Logger
	now    func() time.Time
}

func NewExpirer(cfg ExpirerConfig) *Expirer {
	var logr logger.Logger = logger.StderrLogger
	if cfg.Logger != nil {
		logr = cfg.Logger
	}

	var notifier notify.Notifier = notify.NewNopNotifier()
	if cfg.Notifier != nil {
		notifier = cfg.Notifier
	}

	interval := cfg.Interval
	if interval <= 0 {
		interval = defaultInterval
	}
	warningPeriod := cfg.WarningPeriod
	if warningPeriod <= 0 {
		warningPeriod = defaultWarningPeriod
	}

	return &Expirer{
		Store:         cfg.Store,
		Transactor:    cfg.Transactor,
		Queue:         cfg.Queue,
		Notifier:      notifier,
		interval:      interval,
		warningPeriod: warningPeriod,
		logger:        logr,
		now:           time.Now,
	}
}

// Start begins the sweep loop until Stop is called.
func (e *Expirer) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel

	e.backgroundGroup.Go(func() error {
		e.run(ctx)
		return nil
	})
}

// Stop halts the loop and waits for an in-flight sweep to finish.
func (e *Expirer) Stop() error {
	e.cancel()
	return e.backgroundGroup.Wait()
}

func (e *Expirer) run(ctx context.Context) {
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := e.RunOnce(ctx); err != nil {
				e.logger.Printf("expiration sweep: %v", err)
			}
		}
	}
}

// RunOnce performs one sweep over all live shares. Each share is handled in
// its own step so that one bad share cannot sink the sweep.
func (e *Expirer) RunOnce(ctx context.Context) error {
	now := e.now()

	var shares []*share.ShareObject
	fn := func(tx share.Transaction, writable bool) error {
		var err error
		shares, err = e.Store.Shares(tx)
		return errors.Wrap(err, "listing shares")
	}
	if err := share.RetryWithTx(ctx, e.Transactor, fn, false, txRetry); err != nil {
		return err
	}

	for _, so := range shares {
		if so.NonExpirable || so.ExpiryDate == nil {
			continue
		}

		switch {
		case so.Expired(now):
			if err := e.expireShare(ctx, so.ShareURI); err != nil {
				e.logger.Printf("expiring share %s: %v", so.ShareURI, err)
			}
		case so.ExpiryDate.Sub(now) <= e.warningPeriod:
			if err := e.warnShare(ctx, so.ShareURI); err != nil {
				e.logger.Printf("warning share %s: %v", so.ShareURI, err)
			}
		}
	}
	return nil
}

// expireShare moves the share's granted items onto the revoke path and
// enqueues the revoke task. Shares with nothing granted, or mid-cycle, are
// skipped.
func (e *Expirer) expireShare(ctx context.Context, uri share.ShareURI) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("expiration step panicked: %v", r)
		}
	}()

	var revoking bool
	fn := func(tx share.Transaction, writable bool) error {
		so, err := e.Store.Share(tx, uri)
		if err != nil {
			return errors.Wrap(err, "getting share")
		}

		granted, err := e.Store.ItemsByStatus(tx, uri, share.ShareItemStatusShareSucceeded)
		if err != nil {
			return errors.Wrap(err, "getting granted items")
		}
		if len(granted) == 0 {
			return nil
		}

		next, err := share.NextObjectStatus(so.Status, share.ActionRevokeItems)
		if err != nil {
			// Mid-cycle or otherwise un-revokable right now; the next sweep
			// picks the share up again.
			e.logger.Debugf("share %s not revokable in status %s", uri, so.Status)
			return nil
		}
		if next != so.Status {
			so.Status = next
			if err := e.Store.UpdateShare(tx, so); err != nil {
				return errors.Wrap(err, "updating share status")
			}
		}

		if err := e.Store.UpdateItemsStatus(tx, uri,
			share.ShareItemStatusShareSucceeded, share.ShareItemStatusRevokeApproved); err != nil {
			return errors.Wrap(err, "updating item statuses")
		}

		revoking = true
		return nil
	}
	if err := share.RetryWithTx(ctx, e.Transactor, fn, true, txRetry); err != nil {
		return err
	}
	if !revoking {
		return nil
	}

	e.logger.Printf("share %s expired, revoking", uri)
	return errors.Wrap(e.Queue.Enqueue(ctx, taskq.NewTask(taskq.KindRevoke, uri)), "enqueueing revoke task")
}

// warnShare sends the approaching-expiry reminder: to the dataset side when
// an extension request is pending, to the requesters otherwise. Notifier
// errors are logged by the caller and never block the sweep.
func (e *Expirer) warnShare(ctx context.Context, uri share.ShareURI) error {
	var data *share.Data
	fn := func(tx share.Transaction, writable bool) error {
		var err error
		data, err = loadData(e.Store, tx, uri)
		return err
	}
	if err := share.RetryWithTx(ctx, e.Transactor, fn, false, txRetry); err != nil {
		return err
	}
	if data.Share.ExpiryDate == nil {
		return nil
	}
	if data.Share.SubmittedForExtension {
		return e.Notifier.ShareExpirationToOwners(ctx, data, *data.Share.ExpiryDate)
	}
	return e.Notifier.ShareExpirationToRequesters(ctx, data, *data.Share.ExpiryDate)
}

func loadData(store controller.Store, tx share.Transaction, uri share.ShareURI) (*share.Data, error) {
	so, err := store.Share(tx, uri)
	if err != nil {
		return nil, errors.Wrap(err, "getting share")
	}
	dataset, err := store.Dataset(tx, so.DatasetURI)
	if err != nil {
		return nil, errors.Wrap(err, "getting dataset")
	}
	source, err := store.Environment(tx, dataset.EnvironmentURI)
	if err != nil {
		return nil, errors.Wrap(err, "getting source environment")
	}
	target, err := store.Environment(tx, so.EnvironmentURI)
	if err != nil {
		return nil, errors.Wrap(err, "getting target environment")
	}
	items, err := store.Items(tx, uri)
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
