package models

import (
	"encoding/json"
	"time"

	"github.com/gobuffalo/pop/v6"
	"github.com/gobuffalo/validate/v3"
	"github.com/gobuffalo/validate/v3/validators"
	"github.com/gofrs/uuid"

	"github.com/datafoundry/shareflow/share"
)

// Notification is one row of the notifications table.
type Notification struct {
	ID              uuid.UUID              `json:"id" db:"id"`
	NotificationURI string                 `json:"notification_uri" db:"notification_uri"`
	Type            share.NotificationType `json:"type" db:"type"`
	ShareURI        share.ShareURI         `json:"share_uri" db:"share_uri"`
	Recipient       string                 `json:"recipient" db:"recipient"`
	Message         string                 `json:"message" db:"message"`
	Read            bool                   `json:"read" db:"read"`
	CreatedAt       time.Time              `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time              `json:"updated_at" db:"updated_at"`
}

// String is not required by pop and may be deleted
func (t *Notification) String() string {
	jt, _ := json.MarshalIndent(t, " ", " ") //nolint:errchkjson
	return string(jt)
}

// Notifications is not required by pop and may be deleted
type Notifications []*Notification

// String is not required by pop and may be deleted
func (t Notifications) String() string {
	jt, _ := json.MarshalIndent(t, " ", " ") //nolint:errchkjson
	return string(jt)
}

// Validate gets run every time you call a "pop.Validate*" (pop.ValidateAndSave, pop.ValidateAndCreate, pop.ValidateAndUpdate) method.
func (t *Notification) Validate(tx *pop.Connection) (*validate.Errors, error) {
	return validate.Validate(
		&validators.StringIsPresent{Field: string(t.Type), Name: "Type"},
		&validators.StringIsPresent{Field: t.Recipient, Name: "Recipient"},
	), nil
}

// ValidateCreate gets run every time you call "pop.ValidateAndCreate" method.
func (t *Notification) ValidateCreate(tx *pop.Connection) (*validate.Errors, error) {
	return validate.NewErrors(), nil
}

// ValidateUpdate gets run every time you call "pop.ValidateAndUpdate" method.
func (t *Notification) ValidateUpdate(tx *pop.Connection) (*validate.Errors, error) {
	return validate.NewErrors(), nil
}

// ToNotification converts the row to its domain representation.
func (t *Notification) ToNotification() *share.Notification {
	return &share.Notification{
		NotificationURI: t.NotificationURI,
		Type:            t.Type,
		ShareURI:        t.ShareURI,
		Recipient:       t.Recipient,
		Message:         t.Message,
		Read:            t.Read,
		Created:         t.CreatedAt,
	}
}

// FromNotification populates the row from the domain representation.
func (t *Notification) FromNotification(n *share.Notification) {
	t.NotificationURI = n.NotificationURI
	t.Type = n.Type
	t.ShareURI = n.ShareURI
	t.Recipient = n.Recipient
	t.Message = n.Message
	t.Read = n.Read
}
