// Package models contains the database row types backing the share
// controller's SQL store. The types in the share package are the domain
// representation; these are their persisted shape.
package models

import (
	"encoding/json"
	"time"

	"github.com/gobuffalo/nulls"
	"github.com/gobuffalo/pop/v6"
	"github.com/gobuffalo/validate/v3"
	"github.com/gobuffalo/validate/v3/validators"
	"github.com/gofrs/uuid"

	"github.com/datafoundry/shareflow/share"
)

// ShareObject is one row of the share_objects table.
type ShareObject struct {
	ID             uuid.UUID            `json:"id" db:"id"`
	ShareURI       share.ShareURI       `json:"share_uri" db:"share_uri"`
	DatasetURI     share.DatasetURI     `json:"dataset_uri" db:"dataset_uri"`
	EnvironmentURI share.EnvironmentURI `json:"environment_uri" db:"environment_uri"`

	GroupURI          string              `json:"group_uri" db:"group_uri"`
	PrincipalID       string              `json:"principal_id" db:"principal_id"`
	PrincipalType     share.PrincipalType `json:"principal_type" db:"principal_type"`
	PrincipalRoleName string              `json:"principal_role_name" db:"principal_role_name"`

	Status share.ShareObjectStatus `json:"status" db:"status"`

	Owner            string `json:"owner" db:"owner"`
	RequestPurpose   string `json:"request_purpose" db:"request_purpose"`
	RejectPurpose    string `json:"reject_purpose" db:"reject_purpose"`
	ExtensionPurpose string `json:"extension_purpose" db:"extension_purpose"`

	ExpiryDate            nulls.Time `json:"expiry_date" db:"expiry_date"`
	RequestedExpiryDate   nulls.Time `json:"requested_expiry_date" db:"requested_expiry_date"`
	SubmittedForExtension bool       `json:"submitted_for_extension" db:"submitted_for_extension"`
	NonExpirable          bool       `json:"non_expirable" db:"non_expirable"`

	DeletedAt nulls.Time `json:"deleted_at" db:"deleted_at"`
	CreatedAt time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt time.Time  `json:"updated_at" db:"updated_at"`

	Items ShareItems `json:"items" has_many:"share_items" fk_id:"share_uri" order_by:"created_at asc"`
}

// String is not required by pop and may be deleted
func (t *ShareObject) String() string {
	jt, _ := json.MarshalIndent(t, " ", " ") //nolint:errchkjson
	return string(jt)
}

// ShareObjects is not required by pop and may be deleted
type ShareObjects []*ShareObject

// String is not required by pop and may be deleted
func (t ShareObjects) String() string {
	jt, _ := json.MarshalIndent(t, " ", " ") //nolint:errchkjson
	return string(jt)
}

// Validate gets run every time you call a "pop.Validate*" (pop.ValidateAndSave, pop.ValidateAndCreate, pop.ValidateAndUpdate) method.
func (t *ShareObject) Validate(tx *pop.Connection) (*validate.Errors, error) {
	return validate.Validate(
		&validators.StringIsPresent{Field: string(t.ShareURI), Name: "ShareURI"},
		&validators.StringIsPresent{Field: string(t.DatasetURI), Name: "DatasetURI"},
		&validators.StringIsPresent{Field: t.PrincipalID, Name: "PrincipalID"},
		&validators.StringIsPresent{Field: string(t.Status), Name: "Status"},
	), nil
}

// ValidateCreate gets run every time you call "pop.ValidateAndCreate" method.
func (t *ShareObject) ValidateCreate(tx *pop.Connection) (*validate.Errors, error) {
	return validate.NewErrors(), nil
}

// ValidateUpdate gets run every time you call "pop.ValidateAndUpdate" method.
func (t *ShareObject) ValidateUpdate(tx *pop.Connection) (*validate.Errors, error) {
	return validate.NewErrors(), nil
}

// ToShare converts the row to its domain representation.
func (t *ShareObject) ToShare() *share.ShareObject {
	out := &share.ShareObject{
		ShareURI:              t.ShareURI,
		DatasetURI:            t.DatasetURI,
		EnvironmentURI:        t.EnvironmentURI,
		GroupURI:              t.GroupURI,
		PrincipalID:           t.PrincipalID,
		PrincipalType:         t.PrincipalType,
		PrincipalRoleName:     t.PrincipalRoleName,
		Status:                t.Status,
		Owner:                 t.Owner,
		RequestPurpose:        t.RequestPurpose,
		RejectPurpose:         t.RejectPurpose,
		ExtensionPurpose:      t.ExtensionPurpose,
		SubmittedForExtension: t.SubmittedForExtension,
		NonExpirable:          t.NonExpirable,
		Created:               t.CreatedAt,
		Updated:               t.UpdatedAt,
	}
	if t.ExpiryDate.Valid {
		d := t.ExpiryDate.Time
		out.ExpiryDate = &d
	}
	if t.RequestedExpiryDate.Valid {
		d := t.RequestedExpiryDate.Time
		out.RequestedExpiryDate = &d
	}
	if t.DeletedAt.Valid {
		d := t.DeletedAt.Time
		out.Deleted = &d
	}
	return out
}

// FromShare populates the row from the domain representation, leaving the
// database-managed columns (id, created_at, updated_at) alone.
func (t *ShareObject) FromShare(so *share.ShareObject) {
	t.ShareURI = so.ShareURI
	t.DatasetURI = so.DatasetURI
	t.EnvironmentURI = so.EnvironmentURI
	t.GroupURI = so.GroupURI
	t.PrincipalID = so.PrincipalID
	t.PrincipalType = so.PrincipalType
	t.PrincipalRoleName = so.PrincipalRoleName
	t.Status = so.Status
	t.Owner = so.Owner
	t.RequestPurpose = so.RequestPurpose
	t.RejectPurpose = so.RejectPurpose
	t.ExtensionPurpose = so.ExtensionPurpose
	t.SubmittedForExtension = so.SubmittedForExtension
	t.NonExpirable = so.NonExpirable
	t.ExpiryDate = nulls.Time{}
	if so.ExpiryDate != nil {
		t.ExpiryDate = nulls.NewTime(*so.ExpiryDate)
	}
	t.RequestedExpiryDate = nulls.Time{}
	if so.RequestedExpiryDate != nil {
		t.RequestedExpiryDate = nulls.NewTime(*so.RequestedExpiryDate)
	}
	t.DeletedAt = nulls.Time{}
	if so.Deleted != nil {
		t.DeletedAt = nulls.NewTime(*so.Deleted)
	}
}
