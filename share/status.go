package share

// PrincipalType identifies who receives access through a share.
type PrincipalType string

const (
	PrincipalTypeGroup           PrincipalType = "Group"
	PrincipalTypeConsumptionRole PrincipalType = "ConsumptionRole"
	PrincipalTypeRedshiftRole    PrincipalType = "RedshiftRole"
	PrincipalTypeEnvironment     PrincipalType = "Environment"
)

// ShareableType identifies the kind of data asset an item points at. Each
// shareable type maps to exactly one registered processor.
type ShareableType string

const (
	ShareableTypeTable           ShareableType = "Table"
	ShareableTypeStorageLocation ShareableType = "StorageLocation"
	ShareableTypeS3Bucket        ShareableType = "S3Bucket"
	ShareableTypeRedshiftTable   ShareableType = "RedshiftTable"
)

// ShareObjectStatus is the object-level lifecycle label. The status string
// values are stable; they are persisted and exposed over the API.
type ShareObjectStatus string

const (
	ShareObjectStatusDraft                 ShareObjectStatus = "Draft"
	ShareObjectStatusSubmitted             ShareObjectStatus = "Submitted"
	ShareObjectStatusApproved              ShareObjectStatus = "Approved"
	ShareObjectStatusRejected              ShareObjectStatus = "Rejected"
	ShareObjectStatusRevoked               ShareObjectStatus = "Revoked"
	ShareObjectStatusShareInProgress       ShareObjectStatus = "Share_In_Progress"
	ShareObjectStatusRevokeInProgress      ShareObjectStatus = "Revoke_In_Progress"
	ShareObjectStatusProcessed             ShareObjectStatus = "Processed"
	ShareObjectStatusDeleted               ShareObjectStatus = "Deleted"
	ShareObjectStatusSubmittedForExtension ShareObjectStatus = "Submitted_For_Extension"
	ShareObjectStatusExtensionRejected     ShareObjectStatus = "Extension_Rejected"
)

// ShareItemStatus is the item-level lifecycle label, independent per item.
type ShareItemStatus string

const (
	ShareItemStatusPendingApproval  ShareItemStatus = "PendingApproval"
	ShareItemStatusShareApproved    ShareItemStatus = "Share_Approved"
	ShareItemStatusShareRejected    ShareItemStatus = "Share_Rejected"
	ShareItemStatusShareInProgress  ShareItemStatus = "Share_In_Progress"
	ShareItemStatusShareSucceeded   ShareItemStatus = "Share_Succeeded"
	ShareItemStatusShareFailed      ShareItemStatus = "Share_Failed"
	ShareItemStatusRevokeApproved   ShareItemStatus = "Revoke_Approved"
	ShareItemStatusRevokeInProgress ShareItemStatus = "Revoke_In_Progress"
	ShareItemStatusRevokeSucceeded  ShareItemStatus = "Revoke_Succeeded"
	ShareItemStatusRevokeFailed     ShareItemStatus = "Revoke_Failed"
	ShareItemStatusPendingExtension ShareItemStatus = "PendingExtension"
	ShareItemStatusDeleted          ShareItemStatus = "Deleted"
)

// SharedItemStatuses are the item statuses that imply an AWS artifact exists
// (or may exist) for the item. A share object holding any item in one of these
// states must not be deleted.
func SharedItemStatuses() []ShareItemStatus {
	return []ShareItemStatus{
		ShareItemStatusShareSucceeded,
		ShareItemStatusShareInProgress,
		ShareItemStatusRevokeApproved,
		ShareItemStatusRevokeInProgress,
		ShareItemStatusRevokeFailed,
	}
}

// Terminal reports whether the status closes a processing cycle for the item:
// no grant or revoke work is in flight or scheduled.
func (s ShareItemStatus) Terminal() bool {
	switch s {
	case ShareItemStatusShareSucceeded, ShareItemStatusShareFailed,
		ShareItemStatusShareRejected, ShareItemStatusRevokeSucceeded,
		ShareItemStatusRevokeFailed, ShareItemStatusPendingApproval,
		ShareItemStatusDeleted:
		return true
	}
	return false
}

// HealthStatus is the drift-detection axis on a successfully shared item. It
// is orthogonal to the lifecycle status.
type HealthStatus string

const (
	HealthStatusHealthy        HealthStatus = "Healthy"
	HealthStatusUnhealthy      HealthStatus = "Unhealthy"
	HealthStatusPendingReApply HealthStatus = "PendingReApply"
	HealthStatusPendingVerify  HealthStatus = "PendingVerify"
)

// Action is the shared action vocabulary for both state machines. Object-level
// actions (Submit, Approve, ...) also drive item transitions so that one user
// gesture moves object and items together.
type Action string

const (
	ActionSubmit           Action = "Submit"
	ActionApprove          Action = "Approve"
	ActionReject           Action = "Reject"
	ActionRevokeItems      Action = "RevokeItems"
	ActionStart            Action = "Start"
	ActionFinish           Action = "Finish"
	ActionFinishPending    Action = "FinishPending"
	ActionDelete           Action = "Delete"
	ActionAddItem          Action = "AddItem"
	ActionRemoveItem       Action = "RemoveItem"
	ActionSuccess          Action = "Success"
	ActionFailure          Action = "Failure"
	ActionExtension        Action = "Extension"
	ActionExtensionApprove Action = "ExtensionApprove"
	ActionExtensionReject  Action = "ExtensionReject"
	ActionCancelExtension  Action = "CancelExtension"
)
