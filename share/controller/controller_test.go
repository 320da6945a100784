package controller_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datafoundry/shareflow/errors"
	"github.com/datafoundry/shareflow/logger"
	"github.com/datafoundry/shareflow/share"
	"github.com/datafoundry/shareflow/share/controller"
	"github.com/datafoundry/shareflow/share/controller/boltdb"
	"github.com/datafoundry/shareflow/share/taskq"
	testbolt "github.com/datafoundry/shareflow/share/test/boltdb"
)

// allowAll accepts every share request at every gate.
type allowAll struct {
	controller.NopValidator
}

type testHarness struct {
	ctrl  *controller.Controller
	store controller.Store
	trans share.Transactor
	queue *taskq.ChannelQueue
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
	validators.Register(share.DatasetTypeRedshift, allowAll{})

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

	return &testHarness{
		ctrl:  ctrl,
		store: store,
		trans: db,
		queue: queue,
	}
}

func (h *testHarness) registerFixtures(t *testing.T, autoApproval bool, expiryDays int) {
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
		DatasetURI:          "ds-orders",
		Name:                "orders",
		Type:                share.DatasetTypeS3,
		EnvironmentURI:      "env-source",
		Region:              "us-east-1",
		AdminGroup:          "data-platform",
		Stewards:            "governance",
		AutoApprovalEnabled: autoApproval,
		ExpirySetting:       expiryDays,
	}))
}

func (h *testHarness) createDraft(t *testing.T) *share.ShareObject {
	t.Helper()
	so, err := h.ctrl.CreateShareObject(context.Background(), &controller.CreateShareRequest{
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
	require.Equal(t, share.ShareObjectStatusDraft, so.Status)
	return so
}

// setItemStatus mutates an item's status directly in the store, standing in
// for the sharing engine's work.
func (h *testHarness) setItemStatus(t *testing.T, uri share.ShareItemURI, status share.ShareItemStatus) {
	t.Helper()
	fn := func(tx share.Transaction, writable bool) error {
		item, err := h.store.Item(tx, uri)
		if err != nil {
			return err
		}
		item.Status = status
		return h.store.UpdateItem(tx, item)
	}
	require.NoError(t, share.RetryWithTx(context.Background(), h.trans, fn, true, 1))
}

func (h *testHarness) setShareStatus(t *testing.T, uri share.ShareURI, status share.ShareObjectStatus) {
	t.Helper()
	fn := func(tx share.Transaction, writable bool) error {
		so, err := h.store.Share(tx, uri)
		if err != nil {
			return err
		}
		so.Status = status
		return h.store.UpdateShare(tx, so)
	}
	require.NoError(t, share.RetryWithTx(context.Background(), h.trans, fn, true, 1))
}

func (h *testHarness) nextTask(t *testing.T) taskq.Task {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	delivery, err := h.queue.Next(ctx)
	require.NoError(t, err)
	require.NoError(t, delivery.Ack(ctx))
	return delivery.Task
}

func TestCreateShareObject(t *testing.T) {
	ctx := context.Background()
	h := newTestHarness(t)
	h.registerFixtures(t, false, 0)

	so := h.createDraft(t)

	t.Run("duplicate-returns-existing", func(t *testing.T) {
		again, err := h.ctrl.CreateShareObject(ctx, &controller.CreateShareRequest{
			DatasetURI:     "ds-orders",
			EnvironmentURI: "env-target",
			GroupURI:       "research",
			PrincipalID:    "research",
			PrincipalType:  share.PrincipalTypeGroup,
		})
		require.NoError(t, err)
		assert.Equal(t, so.ShareURI, again.ShareURI)
	})

	t.Run("group-not-onboarded", func(t *testing.T) {
		_, err := h.ctrl.CreateShareObject(ctx, &controller.CreateShareRequest{
			DatasetURI:     "ds-orders",
			EnvironmentURI: "env-target",
			GroupURI:       "finance",
			PrincipalID:    "finance",
			PrincipalType:  share.PrincipalTypeGroup,
		})
		assert.True(t, errors.Is(err, controller.ErrGroupNotOnboarded))
	})

	t.Run("unknown-dataset", func(t *testing.T) {
		_, err := h.ctrl.CreateShareObject(ctx, &controller.CreateShareRequest{
			DatasetURI:     "ds-missing",
			EnvironmentURI: "env-target",
			GroupURI:       "research",
			PrincipalID:    "research",
		})
		assert.True(t, errors.Is(err, share.ErrDatasetNotFound))
	})

	t.Run("expiry-on-non-expiring-dataset", func(t *testing.T) {
		d := time.Now().AddDate(0, 1, 0)
		_, err := h.ctrl.CreateShareObject(ctx, &controller.CreateShareRequest{
			DatasetURI:          "ds-orders",
			EnvironmentURI:      "env-target",
			GroupURI:            "research",
			PrincipalID:         "someone-else",
			PrincipalType:       share.PrincipalTypeGroup,
			RequestedExpiryDate: &d,
		})
		assert.True(t, errors.Is(err, controller.ErrInvalidExpiration))
	})
}

func TestShareItems(t *testing.T) {
	ctx := context.Background()
	h := newTestHarness(t)
	h.registerFixtures(t, false, 0)
	so := h.createDraft(t)

	item, err := h.ctrl.AddSharedItem(ctx, so.ShareURI, &controller.AddItemRequest{
		ItemURI:  "table-orders",
		ItemType: share.ShareableTypeTable,
		ItemName: "orders",
		Owner:    "alice",
	})
	require.NoError(t, err)
	assert.Equal(t, share.ShareItemStatusPendingApproval, item.Status)

	t.Run("duplicate-item-refused", func(t *testing.T) {
		_, err := h.ctrl.AddSharedItem(ctx, so.ShareURI, &controller.AddItemRequest{
			ItemURI:  "table-orders",
			ItemType: share.ShareableTypeTable,
		})
		assert.True(t, errors.Is(err, controller.ErrShareItemExists))
	})

	t.Run("add-reopens-settled-share", func(t *testing.T) {
		h.setShareStatus(t, so.ShareURI, share.ShareObjectStatusProcessed)

		_, err := h.ctrl.AddSharedItem(ctx, so.ShareURI, &controller.AddItemRequest{
			ItemURI:  "location-raw",
			ItemType: share.ShareableTypeStorageLocation,
		})
		require.NoError(t, err)

		got, _, err := h.ctrl.GetShareObject(ctx, so.ShareURI)
		require.NoError(t, err)
		assert.Equal(t, share.ShareObjectStatusDraft, got.Status)
	})

	t.Run("remove-pending-item", func(t *testing.T) {
		require.NoError(t, h.ctrl.RemoveSharedItem(ctx, item.ShareItemURI))

		_, items, err := h.ctrl.GetShareObject(ctx, so.ShareURI)
		require.NoError(t, err)
		assert.Len(t, items, 1)
	})

	t.Run("remove-granted-item-refused", func(t *testing.T) {
		_, items, err := h.ctrl.GetShareObject(ctx, so.ShareURI)
		require.NoError(t, err)
		require.Len(t, items, 1)

		h.setItemStatus(t, items[0].ShareItemURI, share.ShareItemStatusShareSucceeded)
		err = h.ctrl.RemoveSharedItem(ctx, items[0].ShareItemURI)
		assert.True(t, errors.Is(err, share.ErrInvalidTransition))
	})
}

func TestSubmitApproveReject(t *testing.T) {
	ctx := context.Background()

	t.Run("empty-share-refused", func(t *testing.T) {
		h := newTestHarness(t)
		h.registerFixtures(t, false, 0)
		so := h.createDraft(t)

		_, err := h.ctrl.SubmitShareObject(ctx, so.ShareURI)
		assert.True(t, errors.Is(err, controller.ErrEmptyShare))
	})

	t.Run("submit-approve", func(t *testing.T) {
		h := newTestHarness(t)
		h.registerFixtures(t, false, 0)
		so := h.createDraft(t)

		_, err := h.ctrl.AddSharedItem(ctx, so.ShareURI, &controller.AddItemRequest{
			ItemURI:  "table-orders",
			ItemType: share.ShareableTypeTable,
		})
		require.NoError(t, err)

		submitted, err := h.ctrl.SubmitShareObject(ctx, so.ShareURI)
		require.NoError(t, err)
		assert.Equal(t, share.ShareObjectStatusSubmitted, submitted.Status)

		approved, err := h.ctrl.ApproveShareObject(ctx, so.ShareURI)
		require.NoError(t, err)
		assert.Equal(t, share.ShareObjectStatusApproved, approved.Status)

		_, items, err := h.ctrl.GetShareObject(ctx, so.ShareURI)
		require.NoError(t, err)
		require.Len(t, items, 1)
		assert.Equal(t, share.ShareItemStatusShareApproved, items[0].Status)

		task := h.nextTask(t)
		assert.Equal(t, taskq.KindShare, task.Kind)
		assert.Equal(t, so.ShareURI, task.ShareURI)
	})

	t.Run("auto-approval-chains", func(t *testing.T) {
		h := newTestHarness(t)
		h.registerFixtures(t, true, 0)
		so := h.createDraft(t)

		_, err := h.ctrl.AddSharedItem(ctx, so.ShareURI, &controller.AddItemRequest{
			ItemURI:  "table-orders",
			ItemType: share.ShareableTypeTable,
		})
		require.NoError(t, err)

		approved, err := h.ctrl.SubmitShareObject(ctx, so.ShareURI)
		require.NoError(t, err)
		assert.Equal(t, share.ShareObjectStatusApproved, approved.Status)

		task := h.nextTask(t)
		assert.Equal(t, taskq.KindShare, task.Kind)
	})

	t.Run("approval-fixes-expiry-from-dataset-default", func(t *testing.T) {
		h := newTestHarness(t)
		h.registerFixtures(t, false, 90)
		so := h.createDraft(t)

		_, err := h.ctrl.AddSharedItem(ctx, so.ShareURI, &controller.AddItemRequest{
			ItemURI:  "table-orders",
			ItemType: share.ShareableTypeTable,
		})
		require.NoError(t, err)
		_, err = h.ctrl.SubmitShareObject(ctx, so.ShareURI)
		require.NoError(t, err)

		approved, err := h.ctrl.ApproveShareObject(ctx, so.ShareURI)
		require.NoError(t, err)
		require.NotNil(t, approved.ExpiryDate)
		assert.WithinDuration(t, time.Now().AddDate(0, 0, 90), *approved.ExpiryDate, time.Hour)
	})

	t.Run("reject-and-resubmit", func(t *testing.T) {
		h := newTestHarness(t)
		h.registerFixtures(t, false, 0)
		so := h.createDraft(t)

		_, err := h.ctrl.AddSharedItem(ctx, so.ShareURI, &controller.AddItemRequest{
			ItemURI:  "table-orders",
			ItemType: share.ShareableTypeTable,
		})
		require.NoError(t, err)
		_, err = h.ctrl.SubmitShareObject(ctx, so.ShareURI)
		require.NoError(t, err)

		rejected, err := h.ctrl.RejectShareObject(ctx, so.ShareURI, "no business case")
		require.NoError(t, err)
		assert.Equal(t, share.ShareObjectStatusRejected, rejected.Status)
		assert.Equal(t, "no business case", rejected.RejectPurpose)

		_, items, err := h.ctrl.GetShareObject(ctx, so.ShareURI)
		require.NoError(t, err)
		assert.Equal(t, share.ShareItemStatusShareRejected, items[0].Status)

		// Resubmitting without amending is refused: every item was already
		// decided on.
		_, err = h.ctrl.SubmitShareObject(ctx, so.ShareURI)
		require.Error(t, err)
		assert.True(t, errors.Is(err, controller.ErrEmptyShare))

		// Amending the share re-opens it; the resubmission then re-queues
		// the rejected item for approval too.
		_, err = h.ctrl.AddSharedItem(ctx, so.ShareURI, &controller.AddItemRequest{
			ItemURI:  "table-customers",
			ItemType: share.ShareableTypeTable,
		})
		require.NoError(t, err)

		resubmitted, err := h.ctrl.SubmitShareObject(ctx, so.ShareURI)
		require.NoError(t, err)
		assert.Equal(t, share.ShareObjectStatusSubmitted, resubmitted.Status)

		_, items, err = h.ctrl.GetShareObject(ctx, so.ShareURI)
		require.NoError(t, err)
		require.Len(t, items, 2)
		for _, item := range items {
			assert.Equal(t, share.ShareItemStatusPendingApproval, item.Status)
		}
	})
}

func TestRevokeVerifyReapply(t *testing.T) {
	ctx := context.Background()

	// granted returns a harness with one Share_Succeeded item on a Processed
	// share.
	granted := func(t *testing.T) (*testHarness, *share.ShareObject, share.ShareItems) {
		h := newTestHarness(t)
		h.registerFixtures(t, false, 0)
		so := h.createDraft(t)

		_, err := h.ctrl.AddSharedItem(ctx, so.ShareURI, &controller.AddItemRequest{
			ItemURI:  "table-orders",
			ItemType: share.ShareableTypeTable,
		})
		require.NoError(t, err)

		_, items, err := h.ctrl.GetShareObject(ctx, so.ShareURI)
		require.NoError(t, err)
		h.setItemStatus(t, items[0].ShareItemURI, share.ShareItemStatusShareSucceeded)
		h.setShareStatus(t, so.ShareURI, share.ShareObjectStatusProcessed)

		_, items, err = h.ctrl.GetShareObject(ctx, so.ShareURI)
		require.NoError(t, err)
		return h, so, items
	}

	t.Run("revoke", func(t *testing.T) {
		h, so, items := granted(t)

		revoked, err := h.ctrl.RevokeItemsShareObject(ctx, so.ShareURI, []share.ShareItemURI{items[0].ShareItemURI})
		require.NoError(t, err)
		assert.Equal(t, share.ShareObjectStatusRevoked, revoked.Status)

		_, got, err := h.ctrl.GetShareObject(ctx, so.ShareURI)
		require.NoError(t, err)
		assert.Equal(t, share.ShareItemStatusRevokeApproved, got[0].Status)

		task := h.nextTask(t)
		assert.Equal(t, taskq.KindRevoke, task.Kind)
	})

	t.Run("revoke-refused-during-reapply", func(t *testing.T) {
		h, so, items := granted(t)

		require.NoError(t, h.ctrl.ReapplyItemsShareObject(ctx, so.ShareURI, []share.ShareItemURI{items[0].ShareItemURI}))
		h.nextTask(t)

		_, err := h.ctrl.RevokeItemsShareObject(ctx, so.ShareURI, []share.ShareItemURI{items[0].ShareItemURI})
		assert.True(t, errors.Is(err, controller.ErrItemsPendingReApply))
	})

	t.Run("verify-marks-items", func(t *testing.T) {
		h, so, items := granted(t)

		require.NoError(t, h.ctrl.VerifyItemsShareObject(ctx, so.ShareURI, []share.ShareItemURI{items[0].ShareItemURI}))

		_, got, err := h.ctrl.GetShareObject(ctx, so.ShareURI)
		require.NoError(t, err)
		assert.Equal(t, share.HealthStatusPendingVerify, got[0].Health)

		task := h.nextTask(t)
		assert.Equal(t, taskq.KindVerify, task.Kind)
		assert.Equal(t, []share.ShareItemURI{items[0].ShareItemURI}, task.ItemURIs)
	})
}

func TestDeleteShareObject(t *testing.T) {
	ctx := context.Background()
	h := newTestHarness(t)
	h.registerFixtures(t, false, 0)
	so := h.createDraft(t)

	_, err := h.ctrl.AddSharedItem(ctx, so.ShareURI, &controller.AddItemRequest{
		ItemURI:  "table-orders",
		ItemType: share.ShareableTypeTable,
	})
	require.NoError(t, err)

	_, items, err := h.ctrl.GetShareObject(ctx, so.ShareURI)
	require.NoError(t, err)

	t.Run("refused-while-items-shared", func(t *testing.T) {
		h.setItemStatus(t, items[0].ShareItemURI, share.ShareItemStatusShareSucceeded)
		h.setShareStatus(t, so.ShareURI, share.ShareObjectStatusProcessed)

		err := h.ctrl.DeleteShareObject(ctx, so.ShareURI)
		assert.True(t, errors.Is(err, controller.ErrSharedItemsExist))
	})

	t.Run("allowed-after-revocation", func(t *testing.T) {
		h.setItemStatus(t, items[0].ShareItemURI, share.ShareItemStatusRevokeSucceeded)

		require.NoError(t, h.ctrl.DeleteShareObject(ctx, so.ShareURI))

		got, _, err := h.ctrl.GetShareObject(ctx, so.ShareURI)
		require.NoError(t, err)
		assert.Equal(t, share.ShareObjectStatusDeleted, got.Status)
		assert.NotNil(t, got.Deleted)
	})
}

func TestShareExtension(t *testing.T) {
	ctx := context.Background()

	processed := func(t *testing.T) (*testHarness, *share.ShareObject, share.ShareItems) {
		h := newTestHarness(t)
		h.registerFixtures(t, false, 90)
		so := h.createDraft(t)

		_, err := h.ctrl.AddSharedItem(ctx, so.ShareURI, &controller.AddItemRequest{
			ItemURI:  "table-orders",
			ItemType: share.ShareableTypeTable,
		})
		require.NoError(t, err)

		_, items, err := h.ctrl.GetShareObject(ctx, so.ShareURI)
		require.NoError(t, err)
		h.setItemStatus(t, items[0].ShareItemURI, share.ShareItemStatusShareSucceeded)
		h.setShareStatus(t, so.ShareURI, share.ShareObjectStatusProcessed)

		_, items, err = h.ctrl.GetShareObject(ctx, so.ShareURI)
		require.NoError(t, err)
		return h, so, items
	}

	t.Run("approve-extension", func(t *testing.T) {
		h, so, items := processed(t)

		newExpiry := time.Now().AddDate(0, 6, 0)
		submitted, err := h.ctrl.SubmitShareExtension(ctx, so.ShareURI, &newExpiry, "project extended", false)
		require.NoError(t, err)
		assert.Equal(t, share.ShareObjectStatusSubmittedForExtension, submitted.Status)
		assert.True(t, submitted.SubmittedForExtension)

		_, got, err := h.ctrl.GetShareObject(ctx, so.ShareURI)
		require.NoError(t, err)
		assert.Equal(t, share.ShareItemStatusPendingExtension, got[0].Status)

		approved, err := h.ctrl.ApproveShareExtension(ctx, so.ShareURI)
		require.NoError(t, err)
		assert.Equal(t, share.ShareObjectStatusProcessed, approved.Status)
		assert.False(t, approved.SubmittedForExtension)
		require.NotNil(t, approved.ExpiryDate)
		assert.WithinDuration(t, newExpiry, *approved.ExpiryDate, time.Second)

		_, got, err = h.ctrl.GetShareObject(ctx, so.ShareURI)
		require.NoError(t, err)
		assert.Equal(t, share.ShareItemStatusShareSucceeded, got[0].Status)
		_ = items
	})

	t.Run("reject-extension", func(t *testing.T) {
		h, so, _ := processed(t)

		newExpiry := time.Now().AddDate(0, 6, 0)
		_, err := h.ctrl.SubmitShareExtension(ctx, so.ShareURI, &newExpiry, "project extended", false)
		require.NoError(t, err)

		rejected, err := h.ctrl.RejectShareExtension(ctx, so.ShareURI, "not justified")
		require.NoError(t, err)
		assert.Equal(t, share.ShareObjectStatusExtensionRejected, rejected.Status)
		assert.Nil(t, rejected.RequestedExpiryDate)
		assert.Equal(t, "not justified", rejected.RejectPurpose)
	})

	t.Run("cancel-extension", func(t *testing.T) {
		h, so, _ := processed(t)

		newExpiry := time.Now().AddDate(0, 6, 0)
		_, err := h.ctrl.SubmitShareExtension(ctx, so.ShareURI, &newExpiry, "", false)
		require.NoError(t, err)

		canceled, err := h.ctrl.CancelShareExtension(ctx, so.ShareURI)
		require.NoError(t, err)
		assert.Equal(t, share.ShareObjectStatusProcessed, canceled.Status)
		assert.False(t, canceled.SubmittedForExtension)
	})

	t.Run("extension-needs-future-date", func(t *testing.T) {
		h, so, _ := processed(t)

		past := time.Now().AddDate(0, 0, -1)
		_, err := h.ctrl.SubmitShareExtension(ctx, so.ShareURI, &past, "", false)
		assert.True(t, errors.Is(err, controller.ErrInvalidExpiration))
	})
}

func TestShareStatistics(t *testing.T) {
	ctx := context.Background()
	h := newTestHarness(t)
	h.registerFixtures(t, false, 0)
	so := h.createDraft(t)

	specs := []struct {
		uri    share.ItemURI
		status share.ShareItemStatus
	}{
		{"t1", share.ShareItemStatusShareSucceeded},
		{"t2", share.ShareItemStatusShareFailed},
		{"t3", share.ShareItemStatusRevokeSucceeded},
		{"t4", share.ShareItemStatusPendingApproval},
	}
	for _, spec := range specs {
		item, err := h.ctrl.AddSharedItem(ctx, so.ShareURI, &controller.AddItemRequest{
			ItemURI:  spec.uri,
			ItemType: share.ShareableTypeTable,
		})
		require.NoError(t, err)
		if spec.status != share.ShareItemStatusPendingApproval {
			h.setItemStatus(t, item.ShareItemURI, spec.status)
		}
	}

	stats, err := h.ctrl.ShareStatistics(ctx, so.ShareURI)
	require.NoError(t, err)
	assert.Equal(t, &share.Statistics{
		SharedItems:  1,
		RevokedItems: 1,
		FailedItems:  1,
		PendingItems: 1,
	}, stats)
}
