package share

// The share object and share item lifecycles are driven by two finite-state
// machines. A transition is a pure lookup: (current status, action) -> next
// status. No persistence or AWS calls happen here; callers persist the
// computed status and dispatch work afterwards.
//
// Lookup semantics, for both machines:
//   - if the current status is already a target of the action, the transition
//     is a no-op: the current status is returned unchanged with no error,
//     which is what makes engine retries idempotent;
//   - if the current status is not a legal source for the action, the lookup
//     fails with ErrInvalidTransition and the status is left untouched;
//   - otherwise the target mapped to that source is returned.

// transition is one row of a transition table: for a named action, targets
// maps each reachable status to the set of source statuses allowed to reach
// it.
type transition[S ~string] struct {
	targets map[S][]S
}

func (t transition[S]) next(action Action, prev S) (S, error) {
	if _, ok := t.targets[prev]; ok {
		// Already in a target state for this action.
		return prev, nil
	}
	for target, sources := range t.targets {
		for _, src := range sources {
			if src == prev {
				return target, nil
			}
		}
	}
	var zero S
	return zero, NewErrInvalidTransition(action, string(prev))
}

// objectTransitions is the full share-object transition table. Note that
// ActionAddItem re-opens a settled share back to Draft without touching item
// statuses; sibling items keep their own lifecycle.
var objectTransitions = map[Action]transition[ShareObjectStatus]{
	ActionSubmit: {targets: map[ShareObjectStatus][]ShareObjectStatus{
		ShareObjectStatusSubmitted: {
			ShareObjectStatusDraft,
			ShareObjectStatusRejected,
			ShareObjectStatusExtensionRejected,
		},
	}},
	ActionApprove: {targets: map[ShareObjectStatus][]ShareObjectStatus{
		ShareObjectStatusApproved: {ShareObjectStatusSubmitted},
	}},
	ActionReject: {targets: map[ShareObjectStatus][]ShareObjectStatus{
		ShareObjectStatusRejected: {ShareObjectStatusSubmitted},
	}},
	ActionRevokeItems: {targets: map[ShareObjectStatus][]ShareObjectStatus{
		ShareObjectStatusRevoked: {
			ShareObjectStatusDraft,
			ShareObjectStatusSubmitted,
			ShareObjectStatusRejected,
			ShareObjectStatusProcessed,
			ShareObjectStatusExtensionRejected,
		},
	}},
	ActionStart: {targets: map[ShareObjectStatus][]ShareObjectStatus{
		ShareObjectStatusShareInProgress:  {ShareObjectStatusApproved},
		ShareObjectStatusRevokeInProgress: {ShareObjectStatusRevoked},
	}},
	ActionFinish: {targets: map[ShareObjectStatus][]ShareObjectStatus{
		ShareObjectStatusProcessed: {
			ShareObjectStatusShareInProgress,
			ShareObjectStatusRevokeInProgress,
		},
	}},
	ActionFinishPending: {targets: map[ShareObjectStatus][]ShareObjectStatus{
		ShareObjectStatusDraft: {ShareObjectStatusRevokeInProgress},
	}},
	ActionDelete: {targets: map[ShareObjectStatus][]ShareObjectStatus{
		ShareObjectStatusDeleted: {
			ShareObjectStatusRejected,
			ShareObjectStatusDraft,
			ShareObjectStatusSubmitted,
			ShareObjectStatusProcessed,
			ShareObjectStatusExtensionRejected,
		},
	}},
	ActionAddItem: {targets: map[ShareObjectStatus][]ShareObjectStatus{
		ShareObjectStatusDraft: {
			ShareObjectStatusSubmitted,
			ShareObjectStatusRejected,
			ShareObjectStatusProcessed,
			ShareObjectStatusExtensionRejected,
		},
	}},
	ActionExtension: {targets: map[ShareObjectStatus][]ShareObjectStatus{
		ShareObjectStatusSubmittedForExtension: {
			ShareObjectStatusProcessed,
			ShareObjectStatusExtensionRejected,
			ShareObjectStatusDraft,
		},
	}},
	ActionExtensionApprove: {targets: map[ShareObjectStatus][]ShareObjectStatus{
		ShareObjectStatusProcessed: {ShareObjectStatusSubmittedForExtension},
	}},
	ActionExtensionReject: {targets: map[ShareObjectStatus][]ShareObjectStatus{
		ShareObjectStatusExtensionRejected: {ShareObjectStatusSubmittedForExtension},
	}},
	ActionCancelExtension: {targets: map[ShareObjectStatus][]ShareObjectStatus{
		ShareObjectStatusProcessed: {ShareObjectStatusSubmittedForExtension},
	}},
}

// itemTransitions is the full share-item transition table. Object-level
// actions list identity transitions (status -> itself) for every status that
// should ride through the action unchanged; anything else is illegal.
var itemTransitions = map[Action]transition[ShareItemStatus]{
	ActionAddItem: {targets: map[ShareItemStatus][]ShareItemStatus{
		ShareItemStatusPendingApproval: {ShareItemStatusDeleted},
	}},
	ActionSubmit: {targets: map[ShareItemStatus][]ShareItemStatus{
		ShareItemStatusPendingApproval: {
			ShareItemStatusShareRejected,
			ShareItemStatusShareFailed,
		},
		ShareItemStatusRevokeApproved:   {ShareItemStatusRevokeApproved},
		ShareItemStatusRevokeFailed:     {ShareItemStatusRevokeFailed},
		ShareItemStatusShareApproved:    {ShareItemStatusShareApproved},
		ShareItemStatusShareSucceeded:   {ShareItemStatusShareSucceeded},
		ShareItemStatusRevokeSucceeded:  {ShareItemStatusRevokeSucceeded},
		ShareItemStatusShareInProgress:  {ShareItemStatusShareInProgress},
		ShareItemStatusRevokeInProgress: {ShareItemStatusRevokeInProgress},
	}},
	ActionApprove: {targets: map[ShareItemStatus][]ShareItemStatus{
		ShareItemStatusShareApproved:    {ShareItemStatusPendingApproval},
		ShareItemStatusRevokeApproved:   {ShareItemStatusRevokeApproved},
		ShareItemStatusRevokeFailed:     {ShareItemStatusRevokeFailed},
		ShareItemStatusShareSucceeded:   {ShareItemStatusShareSucceeded},
		ShareItemStatusRevokeSucceeded:  {ShareItemStatusRevokeSucceeded},
		ShareItemStatusShareInProgress:  {ShareItemStatusShareInProgress},
		ShareItemStatusRevokeInProgress: {ShareItemStatusRevokeInProgress},
	}},
	ActionReject: {targets: map[ShareItemStatus][]ShareItemStatus{
		ShareItemStatusShareRejected:    {ShareItemStatusPendingApproval},
		ShareItemStatusRevokeApproved:   {ShareItemStatusRevokeApproved},
		ShareItemStatusRevokeFailed:     {ShareItemStatusRevokeFailed},
		ShareItemStatusShareSucceeded:   {ShareItemStatusShareSucceeded},
		ShareItemStatusRevokeSucceeded:  {ShareItemStatusRevokeSucceeded},
		ShareItemStatusShareInProgress:  {ShareItemStatusShareInProgress},
		ShareItemStatusRevokeInProgress: {ShareItemStatusRevokeInProgress},
	}},
	ActionStart: {targets: map[ShareItemStatus][]ShareItemStatus{
		ShareItemStatusShareInProgress:  {ShareItemStatusShareApproved},
		ShareItemStatusRevokeInProgress: {ShareItemStatusRevokeApproved},
	}},
	ActionSuccess: {targets: map[ShareItemStatus][]ShareItemStatus{
		ShareItemStatusShareSucceeded:  {ShareItemStatusShareInProgress},
		ShareItemStatusRevokeSucceeded: {ShareItemStatusRevokeInProgress},
	}},
	ActionFailure: {targets: map[ShareItemStatus][]ShareItemStatus{
		ShareItemStatusShareFailed: {
			ShareItemStatusShareInProgress,
			ShareItemStatusShareApproved,
		},
		ShareItemStatusRevokeFailed: {
			ShareItemStatusRevokeInProgress,
			ShareItemStatusRevokeApproved,
		},
	}},
	ActionRemoveItem: {targets: map[ShareItemStatus][]ShareItemStatus{
		ShareItemStatusDeleted: {
			ShareItemStatusPendingApproval,
			ShareItemStatusShareRejected,
			ShareItemStatusShareFailed,
			ShareItemStatusRevokeSucceeded,
		},
	}},
	ActionRevokeItems: {targets: map[ShareItemStatus][]ShareItemStatus{
		ShareItemStatusRevokeApproved: {
			ShareItemStatusShareSucceeded,
			ShareItemStatusRevokeFailed,
			ShareItemStatusRevokeApproved,
		},
	}},
	ActionDelete: {targets: map[ShareItemStatus][]ShareItemStatus{
		ShareItemStatusDeleted: {
			ShareItemStatusPendingApproval,
			ShareItemStatusShareRejected,
			ShareItemStatusShareFailed,
			ShareItemStatusRevokeSucceeded,
		},
	}},
	ActionExtension: {targets: map[ShareItemStatus][]ShareItemStatus{
		ShareItemStatusPendingExtension: {ShareItemStatusShareSucceeded},
	}},
	ActionExtensionApprove: {targets: map[ShareItemStatus][]ShareItemStatus{
		ShareItemStatusShareSucceeded: {ShareItemStatusPendingExtension},
	}},
	ActionExtensionReject: {targets: map[ShareItemStatus][]ShareItemStatus{
		ShareItemStatusShareSucceeded: {ShareItemStatusPendingExtension},
	}},
	ActionCancelExtension: {targets: map[ShareItemStatus][]ShareItemStatus{
		ShareItemStatusShareSucceeded: {ShareItemStatusPendingExtension},
	}},
}

// NextObjectStatus computes the share-object status reached by applying
// action from cur. Pure; the status is not persisted here.
func NextObjectStatus(cur ShareObjectStatus, action Action) (ShareObjectStatus, error) {
	t, ok := objectTransitions[action]
	if !ok {
		return "", NewErrUnknownAction(action)
	}
	return t.next(action, cur)
}

// NextItemStatus computes the share-item status reached by applying action
// from cur. Pure; the status is not persisted here.
func NextItemStatus(cur ShareItemStatus, action Action) (ShareItemStatus, error) {
	t, ok := itemTransitions[action]
	if !ok {
		return "", NewErrUnknownAction(action)
	}
	return t.next(action, cur)
}

// ObjectSM tracks a share object's status label through a sequence of
// transitions. It holds only the label; persistence belongs to the caller.
type ObjectSM struct {
	state ShareObjectStatus
}

func NewObjectSM(state ShareObjectStatus) *ObjectSM {
	return &ObjectSM{state: state}
}

func (sm *ObjectSM) State() ShareObjectStatus {
	return sm.state
}

// Transition validates and applies action, returning the new status. On error
// the tracked status is unchanged.
func (sm *ObjectSM) Transition(action Action) (ShareObjectStatus, error) {
	next, err := NextObjectStatus(sm.state, action)
	if err != nil {
		return sm.state, err
	}
	sm.state = next
	return next, nil
}

// ItemSM tracks a share item's status label through a sequence of
// transitions.
type ItemSM struct {
	state ShareItemStatus
}

func NewItemSM(state ShareItemStatus) *ItemSM {
	return &ItemSM{state: state}
}

func (sm *ItemSM) State() ShareItemStatus {
	return sm.state
}

// Transition validates and applies action, returning the new status. On error
// the tracked status is unchanged.
func (sm *ItemSM) Transition(action Action) (ShareItemStatus, error) {
	next, err := NextItemStatus(sm.state, action)
	if err != nil {
		return sm.state, err
	}
	sm.state = next
	return next, nil
}

// Rollup computes the object-level status that closes one processing cycle
// from the statuses of the share's items. It is the single authority for the
// object/item join: the object never advances past its items.
//
// The rule for mixed outcomes: the cycle is closed (Processed) as soon as
// every item of the triggering batch is terminal, regardless of per-item
// success or failure. Failures stay visible on the items themselves, which
// keeps the share operable (reapply, revoke) instead of stuck mid-cycle. The
// one exception is a revoke cycle run while freshly added items are still
// awaiting approval: the object returns to Draft so the pending items can be
// submitted.
func Rollup(cur ShareObjectStatus, items []ShareItemStatus) (ShareObjectStatus, error) {
	hasPending := false
	for _, st := range items {
		if !st.Terminal() {
			return cur, NewErrRollupNotReady(st)
		}
		if st == ShareItemStatusPendingApproval {
			hasPending = true
		}
	}

	if cur == ShareObjectStatusRevokeInProgress && hasPending {
		return NextObjectStatus(cur, ActionFinishPending)
	}
	return NextObjectStatus(cur, ActionFinish)
}
