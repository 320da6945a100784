package sharing

import (
	"context"
	"time"

	"github.com/datafoundry/shareflow/errors"
	"github.com/datafoundry/shareflow/logger"
	"github.com/datafoundry/shareflow/share"
	"github.com/datafoundry/shareflow/share/controller"
	"github.com/datafoundry/shareflow/share/taskq"
)

const (
	txRetry = 5
)

// Ensure type implements interface.
var _ taskq.Handler = (*Sharer)(nil)

type Config struct {
	Store      controller.Store
	Transactor share.Transactor

	// Registry holds the per-shareable-type processors.
	Registry *Registry

	Logger logger.Logger
}

// Sharer is the sharing engine. It consumes the tasks the controller
// enqueues and drives each share item through its processor, one item at a
// time: the item's outcome (success or failure) is committed before the next
// item is touched, and the share object is only rolled up once every item of
// the cycle has reached a terminal status.
type Sharer struct {
	Store      controller.Store
	Transactor share.Transactor
	Registry   *Registry

	logger logger.Logger
	now    func() time.Time
}

func New(cfg Config) *Sharer {
	var logr logger.Logger = logger.StderrLogger
	if cfg.Logger != nil {
		logr = cfg.Logger
	}

	registry := cfg.Registry
	if registry == nil {
		registry = NewRegistry()
	}

	return &Sharer{
		Store:      cfg.Store,
		Transactor: cfg.Transactor,
		Registry:   registry,
		logger:     logr,
		now:        time.Now,
	}
}

// HandleTask dispatches a queue task to the matching engine entry point.
func (s *Sharer) HandleTask(ctx context.Context, task taskq.Task) error {
	timer := prometheusTimer(string(task.Kind))
	defer timer()

	switch task.Kind {
	case taskq.KindShare:
		return s.ApproveShare(ctx, task.ShareURI)
	case taskq.KindRevoke:
		return s.RevokeShare(ctx, task.ShareURI)
	case taskq.KindVerify:
		return s.VerifyShare(ctx, task.ShareURI, task.ItemURIs)
	case taskq.KindReapply:
		return s.ReapplyShare(ctx, task.ShareURI, task.ItemURIs)
	default:
		return errors.Errorf("unknown task kind '%s'", task.Kind)
	}
}

// ApproveShare grants every approved item of the share. The share moves to
// Share_In_Progress first, each item is granted and committed individually,
// and the share is rolled up to Processed once all items are terminal.
// Re-running on an already in-progress share resumes where the previous run
// stopped.
func (s *Sharer) ApproveShare(ctx context.Context, uri share.ShareURI) error {
	s.logger.Printf("s.ApproveShare(): share=%s", uri)

	data, items, settled, err := s.startCycle(ctx, uri, share.ShareItemStatusShareApproved)
	if err != nil {
		return errors.Wrap(err, "starting share cycle")
	}
	if settled {
		s.logger.Printf("s.ApproveShare(): share=%s already settled, nothing to do", uri)
		return nil
	}

	for _, item := range items {
		s.grantItem(ctx, data, item, string(taskq.KindShare))
	}

	if err := s.rollup(ctx, uri); err != nil {
		return errors.Wrap(err, "rolling up share cycle")
	}
	CounterRunsCompleted.WithLabelValues(string(taskq.KindShare)).Inc()
	return nil
}

// RevokeShare withdraws every revoke-approved item of the share. After the
// cycle the share lands on Processed, or back on Draft when re-opened items
// are still awaiting approval.
func (s *Sharer) RevokeShare(ctx context.Context, uri share.ShareURI) error {
	s.logger.Printf("s.RevokeShare(): share=%s", uri)

	data, items, settled, err := s.startCycle(ctx, uri, share.ShareItemStatusRevokeApproved)
	if err != nil {
		return errors.Wrap(err, "starting revoke cycle")
	}
	if settled {
		s.logger.Printf("s.RevokeShare(): share=%s already settled, nothing to do", uri)
		return nil
	}

	for _, item := range items {
		s.revokeItem(ctx, data, item)
	}

	if err := s.rollup(ctx, uri); err != nil {
		return errors.Wrap(err, "rolling up revoke cycle")
	}
	CounterRunsCompleted.WithLabelValues(string(taskq.KindRevoke)).Inc()
	return nil
}

// VerifyShare checks the given items' grants and records their health. An
// empty item list verifies every item flagged PendingVerify.
func (s *Sharer) VerifyShare(ctx context.Context, uri share.ShareURI, itemURIs []share.ShareItemURI) error {
	s.logger.Printf("s.VerifyShare(): share=%s items=%d", uri, len(itemURIs))

	data, items, err := s.loadForHealth(ctx, uri, itemURIs, share.HealthStatusPendingVerify)
	if err != nil {
		return err
	}

	for _, item := range items {
		proc, err := s.Registry.Processor(item.ItemType)
		if err != nil {
			s.recordHealth(ctx, item, share.HealthStatusUnhealthy, err.Error())
			continue
		}

		healthy, finding, err := proc.VerifyShare(ctx, data, item)
		switch {
		case err != nil:
			s.recordHealth(ctx, item, share.HealthStatusUnhealthy, err.Error())
			CounterItemsProcessed.WithLabelValues(string(taskq.KindVerify), "failure").Inc()
		case !healthy:
			s.recordHealth(ctx, item, share.HealthStatusUnhealthy, finding)
			CounterItemsProcessed.WithLabelValues(string(taskq.KindVerify), "unhealthy").Inc()
		default:
			s.recordHealth(ctx, item, share.HealthStatusHealthy, "")
			CounterItemsProcessed.WithLabelValues(string(taskq.KindVerify), "healthy").Inc()
		}
	}
	CounterRunsCompleted.WithLabelValues(string(taskq.KindVerify)).Inc()
	return nil
}

// ReapplyShare re-runs the grant for the given items and records their
// health; item statuses are left alone. An empty item list re-applies every
// item flagged PendingReApply.
func (s *Sharer) ReapplyShare(ctx context.Context, uri share.ShareURI, itemURIs []share.ShareItemURI) error {
	s.logger.Printf("s.ReapplyShare(): share=%s items=%d", uri, len(itemURIs))

	data, items, err := s.loadForHealth(ctx, uri, itemURIs, share.HealthStatusPendingReApply)
	if err != nil {
		return err
	}

	for _, item := range items {
		proc, err := s.Registry.Processor(item.ItemType)
		if err != nil {
			s.recordHealth(ctx, item, share.HealthStatusUnhealthy, err.Error())
			continue
		}

		if err := proc.GrantShare(ctx, data, item); err != nil {
			s.recordHealth(ctx, item, share.HealthStatusUnhealthy, err.Error())
			CounterItemsProcessed.WithLabelValues(string(taskq.KindReapply), "failure").Inc()
			continue
		}
		s.recordHealth(ctx, item, share.HealthStatusHealthy, "")
		CounterItemsProcessed.WithLabelValues(string(taskq.KindReapply), "success").Inc()
	}
	CounterRunsCompleted.WithLabelValues(string(taskq.KindReapply)).Inc()
	return nil
}

// startCycle moves the share and its actionable items into their in-progress
// statuses and returns the items to process. Items already in progress (from
// an interrupted run) are picked up as well. The settled result is true when
// the task replayed against a share whose cycle already closed; the caller
// has nothing left to do.
func (s *Sharer) startCycle(ctx context.Context, uri share.ShareURI, fromStatus share.ShareItemStatus) (*share.Data, share.ShareItems, bool, error) {
	var data *share.Data
	var items share.ShareItems
	var settled bool

	inProgress, err := share.NextItemStatus(fromStatus, share.ActionStart)
	if err != nil {
		return nil, nil, false, err
	}

	fn := func(tx share.Transaction, writable bool) error {
		var err error
		if data, err = s.loadData(tx, uri); err != nil {
			return err
		}

		next, terr := share.NextObjectStatus(data.Share.Status, share.ActionStart)
		if terr != nil {
			// The queue delivers at least once, so a task can replay
			// against a share whose cycle already closed. Only fail when
			// items are actually waiting on this cycle.
			waiting, err := s.Store.ItemsByStatus(tx, uri, fromStatus)
			if err != nil {
				return errors.Wrap(err, "getting waiting items")
			}
			stuck, err := s.Store.ItemsByStatus(tx, uri, inProgress)
			if err != nil {
				return errors.Wrap(err, "getting in-progress items")
			}
			if len(waiting)+len(stuck) == 0 {
				settled = true
				return nil
			}
			return terr
		}
		if next != data.Share.Status {
			data.Share.Status = next
			if err := s.Store.UpdateShare(tx, data.Share); err != nil {
				return errors.Wrap(err, "updating share status")
			}
		}

		if err := s.Store.UpdateItemsStatus(tx, uri, fromStatus, inProgress); err != nil {
			return errors.Wrap(err, "updating share item statuses")
		}

		items, err = s.Store.ItemsByStatus(tx, uri, inProgress)
		return errors.Wrap(err, "getting in-progress items")
	}

	if err := share.RetryWithTx(ctx, s.Transactor, fn, true, txRetry); err != nil {
		return nil, nil, false, err
	}
	return data, items, settled, nil
}

// grantItem grants one item and commits its outcome. Failures are recorded
// on the item, never returned: one failing item must not block the rest of
// the cycle.
func (s *Sharer) grantItem(ctx context.Context, data *share.Data, item *share.ShareItem, kind string) {
	proc, err := s.Registry.Processor(item.ItemType)
	if err != nil {
		s.recordOutcome(ctx, item, share.ActionFailure, share.HealthStatusUnhealthy, err.Error())
		CounterItemsProcessed.WithLabelValues(kind, "failure").Inc()
		return
	}

	if err := proc.GrantShare(ctx, data, item); err != nil {
		s.logger.Printf("granting item %s of share %s: %v", item.ShareItemURI, item.ShareURI, err)
		s.recordOutcome(ctx, item, share.ActionFailure, share.HealthStatusUnhealthy, err.Error())
		CounterItemsProcessed.WithLabelValues(kind, "failure").Inc()
		return
	}

	s.recordOutcome(ctx, item, share.ActionSuccess, share.HealthStatusHealthy, "")
	CounterItemsProcessed.WithLabelValues(kind, "success").Inc()
}

// revokeItem revokes one item and commits its outcome.
func (s *Sharer) revokeItem(ctx context.Context, data *share.Data, item *share.ShareItem) {
	kind := string(taskq.KindRevoke)

	proc, err := s.Registry.Processor(item.ItemType)
	if err != nil {
		s.recordOutcome(ctx, item, share.ActionFailure, share.HealthStatusUnhealthy, err.Error())
		CounterItemsProcessed.WithLabelValues(kind, "failure").Inc()
		return
	}

	if err := proc.RevokeShare(ctx, data, item); err != nil {
		s.logger.Printf("revoking item %s of share %s: %v", item.ShareItemURI, item.ShareURI, err)
		s.recordOutcome(ctx, item, share.ActionFailure, share.HealthStatusUnhealthy, err.Error())
		CounterItemsProcessed.WithLabelValues(kind, "failure").Inc()
		return
	}

	s.recordOutcome(ctx, item, share.ActionSuccess, share.HealthStatusHealthy, "")
	CounterItemsProcessed.WithLabelValues(kind, "success").Inc()
}

// recordOutcome commits one item's result in its own transaction.
func (s *Sharer) recordOutcome(ctx context.Context, item *share.ShareItem, action share.Action, health share.HealthStatus, message string) {
	fn := func(tx share.Transaction, writable bool) error {
		current, err := s.Store.Item(tx, item.ShareItemURI)
		if err != nil {
			return errors.Wrap(err, "getting share item")
		}

		next, err := share.NextItemStatus(current.Status, action)
		if err != nil {
			return err
		}
		current.Status = next
		current.Health = health
		current.HealthMessage = message
		now := s.now()
		current.LastVerified = &now
		return errors.Wrap(s.Store.UpdateItem(tx, current), "updating share item")
	}

	if err := share.RetryWithTx(ctx, s.Transactor, fn, true, txRetry); err != nil {
		s.logger.Printf("recording outcome of item %s: %v", item.ShareItemURI, err)
	}
}

// recordHealth commits one item's health in its own transaction, leaving its
// status untouched.
func (s *Sharer) recordHealth(ctx context.Context, item *share.ShareItem, health share.HealthStatus, message string) {
	fn := func(tx share.Transaction, writable bool) error {
		current, err := s.Store.Item(tx, item.ShareItemURI)
		if err != nil {
			return errors.Wrap(err, "getting share item")
		}

		current.Health = health
		current.HealthMessage = message
		now := s.now()
		current.LastVerified = &now
		return errors.Wrap(s.Store.UpdateItem(tx, current), "updating share item")
	}

	if err := share.RetryWithTx(ctx, s.Transactor, fn, true, txRetry); err != nil {
		s.logger.Printf("recording health of item %s: %v", item.ShareItemURI, err)
	}
}

// rollup closes the cycle: once every item is terminal the share object is
// moved to its settled status.
func (s *Sharer) rollup(ctx context.Context, uri share.ShareURI) error {
	fn := func(tx share.Transaction, writable bool) error {
		so, err := s.Store.Share(tx, uri)
		if err != nil {
			return errors.Wrap(err, "getting share")
		}
		if so.Status != share.ShareObjectStatusShareInProgress &&
			so.Status != share.ShareObjectStatusRevokeInProgress {
			// Cycle already closed by an earlier run.
			return nil
		}

		items, err := s.Store.Items(tx, uri)
		if err != nil {
			return errors.Wrap(err, "getting share items")
		}

		statuses := make([]share.ShareItemStatus, len(items))
		for i, item := range items {
			statuses[i] = item.Status
		}

		next, err := share.Rollup(so.Status, statuses)
		if err != nil {
			return err
		}
		if next == so.Status {
			return nil
		}
		so.Status = next
		return errors.Wrap(s.Store.UpdateShare(tx, so), "updating share status")
	}
	return share.RetryWithTx(ctx, s.Transactor, fn, true, txRetry)
}

// loadForHealth loads the share data plus the items named by itemURIs, or
// every item carrying the given health flag when itemURIs is empty.
func (s *Sharer) loadForHealth(ctx context.Context, uri share.ShareURI, itemURIs []share.ShareItemURI, flagged share.HealthStatus) (*share.Data, share.ShareItems, error) {
	var data *share.Data
	var items share.ShareItems

	fn := func(tx share.Transaction, writable bool) error {
		var err error
		if data, err = s.loadData(tx, uri); err != nil {
			return err
		}

		if len(itemURIs) > 0 {
			items = make(share.ShareItems, 0, len(itemURIs))
			for _, itemURI := range itemURIs {
				item, err := s.Store.Item(tx, itemURI)
				if err != nil {
					return errors.Wrapf(err, "getting share item '%s'", itemURI)
				}
				items = append(items, item)
			}
			return nil
		}

		all, err := s.Store.Items(tx, uri)
		if err != nil {
			return errors.Wrap(err, "getting share items")
		}
		items = make(share.ShareItems, 0, len(all))
		for _, item := range all {
			if item.Health == flagged {
				items = append(items, item)
			}
		}
		return nil
	}

	if err := share.RetryWithTx(ctx, s.Transactor, fn, false, txRetry); err != nil {
		return nil, nil, err
	}
	return data, items, nil
}

func (s *Sharer) loadData(tx share.Transaction, uri share.ShareURI) (*share.Data, error) {
	so, err := s.Store.Share(tx, uri)
	if err != nil {
		return nil, errors.Wrap(err, "getting share")
	}
	dataset, err := s.Store.Dataset(tx, so.DatasetURI)
	if err != nil {
		return nil, errors.Wrap(err, "getting dataset")
	}
	source, err := s.Store.Environment(tx, dataset.EnvironmentURI)
	if err != nil {
		return nil, errors.Wrap(err, "getting source environment")
	}
	target, err := s.Store.Environment(tx, so.EnvironmentURI)
	if err != nil {
		return nil, errors.Wrap(err, "getting target environment")
	}
	items, err := s.Store.Items(tx, uri)
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

func prometheusTimer(kind string) func() {
	start := time.Now()
	return func() {
		HistogramRunSeconds.WithLabelValues(kind).Observe(time.Since(start).Seconds())
	}
}
