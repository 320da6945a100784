package share_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datafoundry/shareflow/errors"
	"github.com/datafoundry/shareflow/share"
)

var allObjectStatuses = []share.ShareObjectStatus{
	share.ShareObjectStatusDraft,
	share.ShareObjectStatusSubmitted,
	share.ShareObjectStatusApproved,
	share.ShareObjectStatusRejected,
	share.ShareObjectStatusRevoked,
	share.ShareObjectStatusShareInProgress,
	share.ShareObjectStatusRevokeInProgress,
	share.ShareObjectStatusProcessed,
	share.ShareObjectStatusDeleted,
	share.ShareObjectStatusSubmittedForExtension,
	share.ShareObjectStatusExtensionRejected,
}

var allItemStatuses = []share.ShareItemStatus{
	share.ShareItemStatusPendingApproval,
	share.ShareItemStatusShareApproved,
	share.ShareItemStatusShareRejected,
	share.ShareItemStatusShareInProgress,
	share.ShareItemStatusShareSucceeded,
	share.ShareItemStatusShareFailed,
	share.ShareItemStatusRevokeApproved,
	share.ShareItemStatusRevokeInProgress,
	share.ShareItemStatusRevokeSucceeded,
	share.ShareItemStatusRevokeFailed,
	share.ShareItemStatusPendingExtension,
	share.ShareItemStatusDeleted,
}

func TestObjectTransitions(t *testing.T) {
	// expected holds, per action, the sources legal for the action and the
	// status each one reaches. Every (status, action) pair absent from the
	// map and not already a target must fail.
	type move struct {
		from share.ShareObjectStatus
		to   share.ShareObjectStatus
	}
	expected := map[share.Action][]move{
		share.ActionSubmit: {
			{share.ShareObjectStatusDraft, share.ShareObjectStatusSubmitted},
			{share.ShareObjectStatusRejected, share.ShareObjectStatusSubmitted},
			{share.ShareObjectStatusExtensionRejected, share.ShareObjectStatusSubmitted},
		},
		share.ActionApprove: {
			{share.ShareObjectStatusSubmitted, share.ShareObjectStatusApproved},
		},
		share.ActionReject: {
			{share.ShareObjectStatusSubmitted, share.ShareObjectStatusRejected},
		},
		share.ActionRevokeItems: {
			{share.ShareObjectStatusDraft, share.ShareObjectStatusRevoked},
			{share.ShareObjectStatusSubmitted, share.ShareObjectStatusRevoked},
			{share.ShareObjectStatusRejected, share.ShareObjectStatusRevoked},
			{share.ShareObjectStatusProcessed, share.ShareObjectStatusRevoked},
			{share.ShareObjectStatusExtensionRejected, share.ShareObjectStatusRevoked},
		},
		share.ActionStart: {
			{share.ShareObjectStatusApproved, share.ShareObjectStatusShareInProgress},
			{share.ShareObjectStatusRevoked, share.ShareObjectStatusRevokeInProgress},
		},
		share.ActionFinish: {
			{share.ShareObjectStatusShareInProgress, share.ShareObjectStatusProcessed},
			{share.ShareObjectStatusRevokeInProgress, share.ShareObjectStatusProcessed},
		},
		share.ActionFinishPending: {
			{share.ShareObjectStatusRevokeInProgress, share.ShareObjectStatusDraft},
		},
		share.ActionDelete: {
			{share.ShareObjectStatusRejected, share.ShareObjectStatusDeleted},
			{share.ShareObjectStatusDraft, share.ShareObjectStatusDeleted},
			{share.ShareObjectStatusSubmitted, share.ShareObjectStatusDeleted},
			{share.ShareObjectStatusProcessed, share.ShareObjectStatusDeleted},
			{share.ShareObjectStatusExtensionRejected, share.ShareObjectStatusDeleted},
		},
		share.ActionAddItem: {
			{share.ShareObjectStatusSubmitted, share.ShareObjectStatusDraft},
			{share.ShareObjectStatusRejected, share.ShareObjectStatusDraft},
			{share.ShareObjectStatusProcessed, share.ShareObjectStatusDraft},
			{share.ShareObjectStatusExtensionRejected, share.ShareObjectStatusDraft},
		},
		share.ActionExtension: {
			{share.ShareObjectStatusProcessed, share.ShareObjectStatusSubmittedForExtension},
			{share.ShareObjectStatusExtensionRejected, share.ShareObjectStatusSubmittedForExtension},
			{share.ShareObjectStatusDraft, share.ShareObjectStatusSubmittedForExtension},
		},
		share.ActionExtensionApprove: {
			{share.ShareObjectStatusSubmittedForExtension, share.ShareObjectStatusProcessed},
		},
		share.ActionExtensionReject: {
			{share.ShareObjectStatusSubmittedForExtension, share.ShareObjectStatusExtensionRejected},
		},
		share.ActionCancelExtension: {
			{share.ShareObjectStatusSubmittedForExtension, share.ShareObjectStatusProcessed},
		},
	}

	for action, moves := range expected {
		action, moves := action, moves
		t.Run(string(action), func(t *testing.T) {
			legal := make(map[share.ShareObjectStatus]share.ShareObjectStatus)
			targets := make(map[share.ShareObjectStatus]bool)
			for _, m := range moves {
				legal[m.from] = m.to
				targets[m.to] = true
			}
			for _, from := range allObjectStatuses {
				got, err := share.NextObjectStatus(from, action)
				switch {
				case targets[from]:
					// Re-applying the action in a target state is a no-op.
					require.NoError(t, err, "from %s", from)
					assert.Equal(t, from, got, "from %s", from)
				case legal[from] != "":
					require.NoError(t, err, "from %s", from)
					assert.Equal(t, legal[from], got, "from %s", from)
				default:
					assert.True(t, errors.Is(err, share.ErrInvalidTransition), "from %s: expected invalid transition, got %v", from, err)
				}
			}
		})
	}

	t.Run("unknown-action", func(t *testing.T) {
		_, err := share.NextObjectStatus(share.ShareObjectStatusDraft, share.Action("Frobnicate"))
		assert.True(t, errors.Is(err, share.ErrUnknownAction))
	})
}

func TestItemTransitions(t *testing.T) {
	type move struct {
		from share.ShareItemStatus
		to   share.ShareItemStatus
	}
	expected := map[share.Action][]move{
		share.ActionAddItem: {
			{share.ShareItemStatusDeleted, share.ShareItemStatusPendingApproval},
		},
		share.ActionSubmit: {
			{share.ShareItemStatusShareRejected, share.ShareItemStatusPendingApproval},
			{share.ShareItemStatusShareFailed, share.ShareItemStatusPendingApproval},
			{share.ShareItemStatusRevokeApproved, share.ShareItemStatusRevokeApproved},
			{share.ShareItemStatusRevokeFailed, share.ShareItemStatusRevokeFailed},
			{share.ShareItemStatusShareApproved, share.ShareItemStatusShareApproved},
			{share.ShareItemStatusShareSucceeded, share.ShareItemStatusShareSucceeded},
			{share.ShareItemStatusRevokeSucceeded, share.ShareItemStatusRevokeSucceeded},
			{share.ShareItemStatusShareInProgress, share.ShareItemStatusShareInProgress},
			{share.ShareItemStatusRevokeInProgress, share.ShareItemStatusRevokeInProgress},
		},
		share.ActionApprove: {
			{share.ShareItemStatusPendingApproval, share.ShareItemStatusShareApproved},
			{share.ShareItemStatusRevokeApproved, share.ShareItemStatusRevokeApproved},
			{share.ShareItemStatusRevokeFailed, share.ShareItemStatusRevokeFailed},
			{share.ShareItemStatusShareSucceeded, share.ShareItemStatusShareSucceeded},
			{share.ShareItemStatusRevokeSucceeded, share.ShareItemStatusRevokeSucceeded},
			{share.ShareItemStatusShareInProgress, share.ShareItemStatusShareInProgress},
			{share.ShareItemStatusRevokeInProgress, share.ShareItemStatusRevokeInProgress},
		},
		share.ActionReject: {
			{share.ShareItemStatusPendingApproval, share.ShareItemStatusShareRejected},
			{share.ShareItemStatusRevokeApproved, share.ShareItemStatusRevokeApproved},
			{share.ShareItemStatusRevokeFailed, share.ShareItemStatusRevokeFailed},
			{share.ShareItemStatusShareSucceeded, share.ShareItemStatusShareSucceeded},
			{share.ShareItemStatusRevokeSucceeded, share.ShareItemStatusRevokeSucceeded},
			{share.ShareItemStatusShareInProgress, share.ShareItemStatusShareInProgress},
			{share.ShareItemStatusRevokeInProgress, share.ShareItemStatusRevokeInProgress},
		},
		share.ActionStart: {
			{share.ShareItemStatusShareApproved, share.ShareItemStatusShareInProgress},
			{share.ShareItemStatusRevokeApproved, share.ShareItemStatusRevokeInProgress},
		},
		share.ActionSuccess: {
			{share.ShareItemStatusShareInProgress, share.ShareItemStatusShareSucceeded},
			{share.ShareItemStatusRevokeInProgress, share.ShareItemStatusRevokeSucceeded},
		},
		share.ActionFailure: {
			{share.ShareItemStatusShareInProgress, share.ShareItemStatusShareFailed},
			{share.ShareItemStatusShareApproved, share.ShareItemStatusShareFailed},
			{share.ShareItemStatusRevokeInProgress, share.ShareItemStatusRevokeFailed},
			{share.ShareItemStatusRevokeApproved, share.ShareItemStatusRevokeFailed},
		},
		share.ActionRemoveItem: {
			{share.ShareItemStatusPendingApproval, share.ShareItemStatusDeleted},
			{share.ShareItemStatusShareRejected, share.ShareItemStatusDeleted},
			{share.ShareItemStatusShareFailed, share.ShareItemStatusDeleted},
			{share.ShareItemStatusRevokeSucceeded, share.ShareItemStatusDeleted},
		},
		share.ActionRevokeItems: {
			{share.ShareItemStatusShareSucceeded, share.ShareItemStatusRevokeApproved},
			{share.ShareItemStatusRevokeFailed, share.ShareItemStatusRevokeApproved},
		},
		share.ActionDelete: {
			{share.ShareItemStatusPendingApproval, share.ShareItemStatusDeleted},
			{share.ShareItemStatusShareRejected, share.ShareItemStatusDeleted},
			{share.ShareItemStatusShareFailed, share.ShareItemStatusDeleted},
			{share.ShareItemStatusRevokeSucceeded, share.ShareItemStatusDeleted},
		},
		share.ActionExtension: {
			{share.ShareItemStatusShareSucceeded, share.ShareItemStatusPendingExtension},
		},
		share.ActionExtensionApprove: {
			{share.ShareItemStatusPendingExtension, share.ShareItemStatusShareSucceeded},
		},
		share.ActionExtensionReject: {
			{share.ShareItemStatusPendingExtension, share.ShareItemStatusShareSucceeded},
		},
		share.ActionCancelExtension: {
			{share.ShareItemStatusPendingExtension, share.ShareItemStatusShareSucceeded},
		},
	}

	for action, moves := range expected {
		action, moves := action, moves
		t.Run(string(action), func(t *testing.T) {
			legal := make(map[share.ShareItemStatus]share.ShareItemStatus)
			targets := make(map[share.ShareItemStatus]bool)
			for _, m := range moves {
				legal[m.from] = m.to
				targets[m.to] = true
			}
			for _, from := range allItemStatuses {
				got, err := share.NextItemStatus(from, action)
				switch {
				case targets[from]:
					require.NoError(t, err, "from %s", from)
					assert.Equal(t, from, got, "from %s", from)
				case legal[from] != "":
					require.NoError(t, err, "from %s", from)
					assert.Equal(t, legal[from], got, "from %s", from)
				default:
					assert.True(t, errors.Is(err, share.ErrInvalidTransition), "from %s: expected invalid transition, got %v", from, err)
				}
			}
		})
	}
}

func TestObjectSM(t *testing.T) {
	sm := share.NewObjectSM(share.ShareObjectStatusDraft)

	st, err := sm.Transition(share.ActionSubmit)
	require.NoError(t, err)
	assert.Equal(t, share.ShareObjectStatusSubmitted, st)

	st, err = sm.Transition(share.ActionApprove)
	require.NoError(t, err)
	assert.Equal(t, share.ShareObjectStatusApproved, st)

	// Illegal transition leaves the state untouched.
	_, err = sm.Transition(share.ActionSubmit)
	assert.True(t, errors.Is(err, share.ErrInvalidTransition))
	assert.Equal(t, share.ShareObjectStatusApproved, sm.State())

	st, err = sm.Transition(share.ActionStart)
	require.NoError(t, err)
	assert.Equal(t, share.ShareObjectStatusShareInProgress, st)

	st, err = sm.Transition(share.ActionFinish)
	require.NoError(t, err)
	assert.Equal(t, share.ShareObjectStatusProcessed, st)
}

func TestItemSM(t *testing.T) {
	sm := share.NewItemSM(share.ShareItemStatusPendingApproval)

	st, err := sm.Transition(share.ActionApprove)
	require.NoError(t, err)
	assert.Equal(t, share.ShareItemStatusShareApproved, st)

	st, err = sm.Transition(share.ActionStart)
	require.NoError(t, err)
	assert.Equal(t, share.ShareItemStatusShareInProgress, st)

	st, err = sm.Transition(share.ActionFailure)
	require.NoError(t, err)
	assert.Equal(t, share.ShareItemStatusShareFailed, st)

	// A failed item can be resubmitted.
	st, err = sm.Transition(share.ActionSubmit)
	require.NoError(t, err)
	assert.Equal(t, share.ShareItemStatusPendingApproval, st)
}

func TestRollup(t *testing.T) {
	t.Run("all-succeeded", func(t *testing.T) {
		st, err := share.Rollup(share.ShareObjectStatusShareInProgress, []share.ShareItemStatus{
			share.ShareItemStatusShareSucceeded,
			share.ShareItemStatusShareSucceeded,
		})
		require.NoError(t, err)
		assert.Equal(t, share.ShareObjectStatusProcessed, st)
	})

	t.Run("mixed-outcomes-close-the-cycle", func(t *testing.T) {
		st, err := share.Rollup(share.ShareObjectStatusShareInProgress, []share.ShareItemStatus{
			share.ShareItemStatusShareSucceeded,
			share.ShareItemStatusShareFailed,
		})
		require.NoError(t, err)
		assert.Equal(t, share.ShareObjectStatusProcessed, st)
	})

	t.Run("in-progress-item-blocks", func(t *testing.T) {
		_, err := share.Rollup(share.ShareObjectStatusShareInProgress, []share.ShareItemStatus{
			share.ShareItemStatusShareSucceeded,
			share.ShareItemStatusShareInProgress,
		})
		assert.True(t, errors.Is(err, share.ErrRollupNotReady))
	})

	t.Run("approved-item-blocks", func(t *testing.T) {
		_, err := share.Rollup(share.ShareObjectStatusShareInProgress, []share.ShareItemStatus{
			share.ShareItemStatusShareApproved,
		})
		assert.True(t, errors.Is(err, share.ErrRollupNotReady))
	})

	t.Run("revoke-with-pending-items-returns-to-draft", func(t *testing.T) {
		st, err := share.Rollup(share.ShareObjectStatusRevokeInProgress, []share.ShareItemStatus{
			share.ShareItemStatusRevokeSucceeded,
			share.ShareItemStatusPendingApproval,
		})
		require.NoError(t, err)
		assert.Equal(t, share.ShareObjectStatusDraft, st)
	})

	t.Run("revoke-all-terminal", func(t *testing.T) {
		st, err := share.Rollup(share.ShareObjectStatusRevokeInProgress, []share.ShareItemStatus{
			share.ShareItemStatusRevokeSucceeded,
			share.ShareItemStatusRevokeFailed,
		})
		require.NoError(t, err)
		assert.Equal(t, share.ShareObjectStatusProcessed, st)
	})

	t.Run("empty-item-set", func(t *testing.T) {
		st, err := share.Rollup(share.ShareObjectStatusShareInProgress, nil)
		require.NoError(t, err)
		assert.Equal(t, share.ShareObjectStatusProcessed, st)
	})
}
