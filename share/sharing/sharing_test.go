package sharing_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datafoundry/shareflow/errors"
	"github.com/datafoundry/shareflow/logger"
	"github.com/datafoundry/shareflow/share"
	"github.com/datafoundry/shareflow/share/controller"
	"github.com/datafoundry/shareflow/share/controller/boltdb"
	"github.com/datafoundry/shareflow/share/sharing"
	"github.com/datafoundry/shareflow/share/taskq"
	testbolt "github.com/datafoundry/shareflow/share/test/boltdb"
)

// allowAll accepts every share request at every gate.
type allowAll struct {
	controller.NopValidator
}

// stubProcessor scripts per-item outcomes and counts calls.
type stubProcessor struct {
	typ share.ShareableType

	mu        sync.Mutex
	grants    map[share.ItemURI]int
	revokes   map[share.ItemURI]int
	failGrant map[share.ItemURI]string
	unhealthy map[share.ItemURI]string
}

func newStubProcessor(typ share.ShareableType) *stubProcessor {
	return &stubProcessor{
		typ:       typ,
		grants:    make(map[share.ItemURI]int),
		revokes:   make(map[share.ItemURI]int),
		failGrant: make(map[share.ItemURI]string),
		unhealthy: make(map[share.ItemURI]string),
	}
}

func (p *stubProcessor) Type() share.ShareableType { return p.typ }

func (p *stubProcessor) GrantShare(_ context.Context, _ *share.Data, item *share.ShareItem) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.grants[item.ItemURI]++
	if msg, ok := p.failGrant[item.ItemURI]; ok {
		return errors.New(errors.ErrUncoded, msg)
	}
	return nil
}

func (p *stubProcessor) RevokeShare(_ context.Context, _ *share.Data, item *share.ShareItem) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.revokes[item.ItemURI]++
	return nil
}

func (p *stubProcessor) VerifyShare(_ context.Context, _ *share.Data, item *share.ShareItem) (bool, string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if msg, ok := p.unhealthy[item.ItemURI]; ok {
		return false, msg, nil
	}
	return true, "", nil
}

func (p *stubProcessor) grantCount(uri share.ItemURI) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.grants[uri]
}

func (p *stubProcessor) revokeCount(uri share.ItemURI) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.revokes[uri]
}

type testHarness struct {
	ctrl   *controller.Controller
	sharer *sharing.Sharer
	store  controller.Store
	trans  share.Transactor
	queue  *taskq.ChannelQueue
	proc   *stubProcessor
}

func newTestHarness(t *testing.T) *testHarness {
	t.Helper()

	db := testbolt.MustOpenDB(t)
	t.Cleanup(func() {
		testbolt.CleanupDB(t, db.Path())
	})
	t.Cleanup(func() {
		testbolt.MustCloseDB(t, db)
	})

	store := boltdb.NewStore(logger.NopLogger)
	queue := taskq.NewChannelQueue(16)

	validators := controller.NewValidatorRegistry()
	validators.Register(share.DatasetTypeS3, allowAll{})

	ctrl := controller.New(controller.Config{
		Store:      store,
		Transactor: db,
		Queue:      queue,
		Validators: validators,
		Logger:     logger.NopLogger,
	})
	require.NoError(t, ctrl.Start())
	t.Cleanup(func() {
		assert.NoError(t, ctrl.Stop())
	})

	proc := newStubProcessor(share.ShareableTypeTable)
	registry := sharing.NewRegistry()
	registry.Register(proc)

	sharer := sharing.New(sharing.Config{
		Store:      store,
		Transactor: db,
		Registry:   registry,
		Logger:     logger.NopLogger,
	})

	return &testHarness{
		ctrl:   ctrl,
		sharer: sharer,
		store:  store,
		trans:  db,
		queue:  queue,
		proc:   proc,
	}
}

func (h *testHarness) registerFixtures(t *testing.T) {
	t.Helper()
	ctx := context.Background()

	require.NoError(t, h.ctrl.RegisterEnvironment(ctx, &share.Environment{
		EnvironmentURI: "env-source",
		Name:           "analytics-prod",
		AWSAccountID:   "111111111111",
		Region:         "us-east-1",
		Groups:         []string{"data-platform"},
	}))
	require.NoError(t, h.ctrl.RegisterEnvironment(ctx, &share.Environment{
		EnvironmentURI: "env-target",
		Name:           "research-dev",
		AWSAccountID:   "222222222222",
		Region:         "us-east-1",
		Groups:         []string{"research"},
	}))
	require.NoError(t, h.ctrl.RegisterDataset(ctx, &share.Dataset{
		DatasetURI:     "ds-orders",
		Name:           "orders",
		Type:           share.DatasetTypeS3,
		EnvironmentURI: "env-source",
		Region:         "us-east-1",
		AdminGroup:     "data-platform",
		Stewards:       "governance",
	}))
}

// createShareWithItems creates a draft share carrying one table item per
// given item URI.
func (h *testHarness) createShareWithItems(t *testing.T, itemURIs ...share.ItemURI) *share.ShareObject {
	t.Helper()
	ctx := context.Background()

	so, err := h.ctrl.CreateShareObject(ctx, &controller.CreateShareRequest{
		DatasetURI:        "ds-orders",
		EnvironmentURI:    "env-target",
		GroupURI:          "research",
		PrincipalID:       "research",
		PrincipalType:     share.PrincipalTypeGroup,
		PrincipalRoleName: "research-role",
		Owner:             "alice",
		RequestPurpose:    "ad-hoc analytics",
	})
	require.NoError(t, err)

	for _, uri := range itemURIs {
		_, err := h.ctrl.AddSharedItem(ctx, so.ShareURI, &controller.AddItemRequest{
			ItemURI:  uri,
			ItemType: share.ShareableTypeTable,
			ItemName: string(uri),
			Owner:    "alice",
		})
		require.NoError(t, err)
	}
	return so
}

// approve submits and approves the share and returns the queued grant task.
func (h *testHarness) approve(t *testing.T, uri share.ShareURI) taskq.Task {
	t.Helper()
	ctx := context.Background()

	_, err := h.ctrl.SubmitShareObject(ctx, uri)
	require.NoError(t, err)
	so, err := h.ctrl.ApproveShareObject(ctx, uri)
	require.NoError(t, err)
	require.Equal(t, share.ShareObjectStatusApproved, so.Status)

	return h.nextTask(t, taskq.KindShare)
}

func (h *testHarness) nextTask(t *testing.T, kind taskq.Kind) taskq.Task {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	delivery, err := h.queue.Next(ctx)
	require.NoError(t, err)
	require.NoError(t, delivery.Ack(ctx))
	require.Equal(t, kind, delivery.Task.Kind)
	return delivery.Task
}

func (h *testHarness) readShare(t *testing.T, uri share.ShareURI) *share.ShareObject {
	t.Helper()
	so, _, err := h.ctrl.GetShareObject(context.Background(), uri)
	require.NoError(t, err)
	return so
}

func (h *testHarness) readItems(t *testing.T, uri share.ShareURI) map[share.ItemURI]*share.ShareItem {
	t.Helper()
	_, items, err := h.ctrl.GetShareObject(context.Background(), uri)
	require.NoError(t, err)
	out := make(map[share.ItemURI]*share.ShareItem, len(items))
	for _, item := range items {
		out[item.ItemURI] = item
	}
	return out
}

func TestApproveShare(t *testing.T) {
	ctx := context.Background()

	t.Run("all-items-granted", func(t *testing.T) {
		h := newTestHarness(t)
		h.registerFixtures(t)

		so := h.createShareWithItems(t, "tbl-orders", "tbl-customers")
		task := h.approve(t, so.ShareURI)
		require.NoError(t, h.sharer.HandleTask(ctx, task))

		assert.Equal(t, share.ShareObjectStatusProcessed, h.readShare(t, so.ShareURI).Status)
		items := h.readItems(t, so.ShareURI)
		for _, uri := range []share.ItemURI{"tbl-orders", "tbl-customers"} {
			item := items[uri]
			require.NotNil(t, item)
			assert.Equal(t, share.ShareItemStatusShareSucceeded, item.Status)
			assert.Equal(t, share.HealthStatusHealthy, item.Health)
			assert.NotNil(t, item.LastVerified)
			assert.Equal(t, 1, h.proc.grantCount(uri))
		}
	})

	t.Run("one-failing-item-still-closes-the-cycle", func(t *testing.T) {
		h := newTestHarness(t)
		h.registerFixtures(t)
		h.proc.failGrant["tbl-customers"] = "lake formation access denied"

		so := h.createShareWithItems(t, "tbl-orders", "tbl-customers")
		task := h.approve(t, so.ShareURI)
		require.NoError(t, h.sharer.HandleTask(ctx, task))

		assert.Equal(t, share.ShareObjectStatusProcessed, h.readShare(t, so.ShareURI).Status)
		items := h.readItems(t, so.ShareURI)
		assert.Equal(t, share.ShareItemStatusShareSucceeded, items["tbl-orders"].Status)
		assert.Equal(t, share.ShareItemStatusShareFailed, items["tbl-customers"].Status)
		assert.Equal(t, share.HealthStatusUnhealthy, items["tbl-customers"].Health)
		assert.Equal(t, "lake formation access denied", items["tbl-customers"].HealthMessage)
	})

	t.Run("replayed-task-is-harmless", func(t *testing.T) {
		h := newTestHarness(t)
		h.registerFixtures(t)

		so := h.createShareWithItems(t, "tbl-orders")
		task := h.approve(t, so.ShareURI)
		require.NoError(t, h.sharer.HandleTask(ctx, task))
		require.NoError(t, h.sharer.HandleTask(ctx, task))

		assert.Equal(t, share.ShareObjectStatusProcessed, h.readShare(t, so.ShareURI).Status)
		assert.Equal(t, 1, h.proc.grantCount("tbl-orders"))
	})

	t.Run("unregistered-item-type-fails-the-item", func(t *testing.T) {
		h := newTestHarness(t)
		h.registerFixtures(t)

		so := h.createShareWithItems(t, "tbl-orders")
		_, err := h.ctrl.AddSharedItem(ctx, so.ShareURI, &controller.AddItemRequest{
			ItemURI:  "loc-raw",
			ItemType: share.ShareableTypeStorageLocation,
			ItemName: "loc-raw",
			Owner:    "alice",
		})
		require.NoError(t, err)

		task := h.approve(t, so.ShareURI)
		require.NoError(t, h.sharer.HandleTask(ctx, task))

		assert.Equal(t, share.ShareObjectStatusProcessed, h.readShare(t, so.ShareURI).Status)
		items := h.readItems(t, so.ShareURI)
		assert.Equal(t, share.ShareItemStatusShareSucceeded, items["tbl-orders"].Status)
		assert.Equal(t, share.ShareItemStatusShareFailed, items["loc-raw"].Status)
		assert.Contains(t, items["loc-raw"].HealthMessage, "no processor registered")
	})
}

func TestRevokeShare(t *testing.T) {
	ctx := context.Background()

	// granted sets up a share whose items have all been granted.
	granted := func(t *testing.T, h *testHarness, itemURIs ...share.ItemURI) *share.ShareObject {
		t.Helper()
		so := h.createShareWithItems(t, itemURIs...)
		task := h.approve(t, so.ShareURI)
		require.NoError(t, h.sharer.HandleTask(ctx, task))
		require.Equal(t, share.ShareObjectStatusProcessed, h.readShare(t, so.ShareURI).Status)
		return so
	}

	t.Run("all-items-revoked", func(t *testing.T) {
		h := newTestHarness(t)
		h.registerFixtures(t)

		so := granted(t, h, "tbl-orders", "tbl-customers")
		items := h.readItems(t, so.ShareURI)
		_, err := h.ctrl.RevokeItemsShareObject(ctx, so.ShareURI, []share.ShareItemURI{
			items["tbl-orders"].ShareItemURI,
			items["tbl-customers"].ShareItemURI,
		})
		require.NoError(t, err)

		task := h.nextTask(t, taskq.KindRevoke)
		require.NoError(t, h.sharer.HandleTask(ctx, task))

		assert.Equal(t, share.ShareObjectStatusProcessed, h.readShare(t, so.ShareURI).Status)
		after := h.readItems(t, so.ShareURI)
		assert.Equal(t, share.ShareItemStatusRevokeSucceeded, after["tbl-orders"].Status)
		assert.Equal(t, share.ShareItemStatusRevokeSucceeded, after["tbl-customers"].Status)
		assert.Equal(t, 1, h.proc.revokeCount("tbl-orders"))
	})

	t.Run("pending-items-return-the-share-to-draft", func(t *testing.T) {
		h := newTestHarness(t)
		h.registerFixtures(t)

		so := granted(t, h, "tbl-orders")

		// Adding a new item re-opens the settled share to Draft.
		_, err := h.ctrl.AddSharedItem(ctx, so.ShareURI, &controller.AddItemRequest{
			ItemURI:  "tbl-invoices",
			ItemType: share.ShareableTypeTable,
			ItemName: "tbl-invoices",
			Owner:    "alice",
		})
		require.NoError(t, err)

		items := h.readItems(t, so.ShareURI)
		_, err = h.ctrl.RevokeItemsShareObject(ctx, so.ShareURI, []share.ShareItemURI{
			items["tbl-orders"].ShareItemURI,
		})
		require.NoError(t, err)

		task := h.nextTask(t, taskq.KindRevoke)
		require.NoError(t, h.sharer.HandleTask(ctx, task))

		assert.Equal(t, share.ShareObjectStatusDraft, h.readShare(t, so.ShareURI).Status)
		after := h.readItems(t, so.ShareURI)
		assert.Equal(t, share.ShareItemStatusRevokeSucceeded, after["tbl-orders"].Status)
		assert.Equal(t, share.ShareItemStatusPendingApproval, after["tbl-invoices"].Status)
	})
}

func TestVerifyShare(t *testing.T) {
	ctx := context.Background()

	h := newTestHarness(t)
	h.registerFixtures(t)
	h.proc.unhealthy["tbl-customers"] = "grant missing on target account"

	so := h.createShareWithItems(t, "tbl-orders", "tbl-customers")
	task := h.approve(t, so.ShareURI)
	require.NoError(t, h.sharer.HandleTask(ctx, task))

	items := h.readItems(t, so.ShareURI)
	require.NoError(t, h.ctrl.VerifyItemsShareObject(ctx, so.ShareURI, []share.ShareItemURI{
		items["tbl-orders"].ShareItemURI,
		items["tbl-customers"].ShareItemURI,
	}))

	verifyTask := h.nextTask(t, taskq.KindVerify)
	require.NoError(t, h.sharer.HandleTask(ctx, verifyTask))

	after := h.readItems(t, so.ShareURI)
	assert.Equal(t, share.HealthStatusHealthy, after["tbl-orders"].Health)
	assert.Equal(t, share.HealthStatusUnhealthy, after["tbl-customers"].Health)
	assert.Equal(t, "grant missing on target account", after["tbl-customers"].HealthMessage)
	// Verification never changes item statuses.
	assert.Equal(t, share.ShareItemStatusShareSucceeded, after["tbl-customers"].Status)
}

func TestReapplyShare(t *testing.T) {
	ctx := context.Background()

	h := newTestHarness(t)
	h.registerFixtures(t)
	h.proc.unhealthy["tbl-orders"] = "grant missing on target account"

	so := h.createShareWithItems(t, "tbl-orders")
	task := h.approve(t, so.ShareURI)
	require.NoError(t, h.sharer.HandleTask(ctx, task))

	items := h.readItems(t, so.ShareURI)
	target := []share.ShareItemURI{items["tbl-orders"].ShareItemURI}

	require.NoError(t, h.ctrl.VerifyItemsShareObject(ctx, so.ShareURI, target))
	require.NoError(t, h.sharer.HandleTask(ctx, h.nextTask(t, taskq.KindVerify)))
	require.Equal(t, share.HealthStatusUnhealthy, h.readItems(t, so.ShareURI)["tbl-orders"].Health)

	require.NoError(t, h.ctrl.ReapplyItemsShareObject(ctx, so.ShareURI, target))
	require.NoError(t, h.sharer.HandleTask(ctx, h.nextTask(t, taskq.KindReapply)))

	after := h.readItems(t, so.ShareURI)
	assert.Equal(t, share.HealthStatusHealthy, after["tbl-orders"].Health)
	assert.Empty(t, after["tbl-orders"].HealthMessage)
	assert.Equal(t, share.ShareItemStatusShareSucceeded, after["tbl-orders"].Status)
	assert.Equal(t, 2, h.proc.grantCount("tbl-orders"))
}
