package share

import "time"

// NotificationType labels why a notification was produced.
type NotificationType string

const (
	NotificationShareSubmitted        NotificationType = "SHARE_OBJECT_SUBMITTED"
	NotificationShareApproved         NotificationType = "SHARE_OBJECT_APPROVED"
	NotificationShareRejected         NotificationType = "SHARE_OBJECT_REJECTED"
	NotificationShareRevoked          NotificationType = "SHARE_OBJECT_REVOKED"
	NotificationShareExtensionPending NotificationType = "SHARE_OBJECT_EXTENSION_PENDING"
	NotificationShareExtensionDecided NotificationType = "SHARE_OBJECT_EXTENSION_DECIDED"
	NotificationShareExpiring         NotificationType = "SHARE_OBJECT_EXPIRING"
)

// Notification is one message produced by a lifecycle event, addressed to a
// group (dataset owners, stewards or the requester group).
type Notification struct {
	NotificationURI string           `json:"notificationUri"`
	Type            NotificationType `json:"type"`
	ShareURI        ShareURI         `json:"shareUri"`
	Recipient       string           `json:"recipient"`
	Message         string           `json:"message"`
	Read            bool             `json:"read"`
	Created         time.Time        `json:"created"`
}
