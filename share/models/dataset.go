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

// Dataset is one row of the datasets table.
type Dataset struct {
	ID             uuid.UUID            `json:"id" db:"id"`
	DatasetURI     share.DatasetURI     `json:"dataset_uri" db:"dataset_uri"`
	Name           string               `json:"name" db:"name"`
	Type           share.DatasetType    `json:"dataset_type" db:"dataset_type"`
	EnvironmentURI share.EnvironmentURI `json:"environment_uri" db:"environment_uri"`
	Region         string               `json:"region" db:"region"`

	AdminGroup string `json:"admin_group" db:"admin_group"`
	Stewards   string `json:"stewards" db:"stewards"`

	AutoApprovalEnabled bool `json:"auto_approval_enabled" db:"auto_approval_enabled"`
	ExpirySetting       int  `json:"expiry_setting" db:"expiry_setting"`

	NamespaceID string `json:"namespace_id" db:"namespace_id"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// String is not required by pop and may be deleted
func (t *Dataset) String() string {
	jt, _ := json.MarshalIndent(t, " ", " ") //nolint:errchkjson
	return string(jt)
}

// Datasets is not required by pop and may be deleted
type Datasets []*Dataset

// String is not required by pop and may be deleted
func (t Datasets) String() string {
	jt, _ := json.MarshalIndent(t, " ", " ") //nolint:errchkjson
	return string(jt)
}

// Validate gets run every time you call a "pop.Validate*" (pop.ValidateAndSave, pop.ValidateAndCreate, pop.ValidateAndUpdate) method.
func (t *Dataset) Validate(tx *pop.Connection) (*validate.Errors, error) {
	return validate.Validate(
		&validators.StringIsPresent{Field: string(t.DatasetURI), Name: "DatasetURI"},
		&validators.StringIsPresent{Field: string(t.Type), Name: "Type"},
		&validators.StringIsPresent{Field: t.AdminGroup, Name: "AdminGroup"},
	), nil
}

// ValidateCreate gets run every time you call "pop.ValidateAndCreate" method.
func (t *Dataset) ValidateCreate(tx *pop.Connection) (*validate.Errors, error) {
	return validate.NewErrors(), nil
}

// ValidateUpdate gets run every time you call "pop.ValidateAndUpdate" method.
func (t *Dataset) ValidateUpdate(tx *pop.Connection) (*validate.Errors, error) {
	return validate.NewErrors(), nil
}

// ToDataset converts the row to its domain representation.
func (t *Dataset) ToDataset() *share.Dataset {
	return &share.Dataset{
		DatasetURI:          t.DatasetURI,
		Name:                t.Name,
		Type:                t.Type,
		EnvironmentURI:      t.EnvironmentURI,
		Region:              t.Region,
		AdminGroup:          t.AdminGroup,
		Stewards:            t.Stewards,
		AutoApprovalEnabled: t.AutoApprovalEnabled,
		ExpirySetting:       t.ExpirySetting,
		NamespaceID:         t.NamespaceID,
	}
}

// FromDataset populates the row from the domain representation.
func (t *Dataset) FromDataset(ds *share.Dataset) {
	t.DatasetURI = ds.DatasetURI
	t.Name = ds.Name
	t.Type = ds.Type
	t.EnvironmentURI = ds.EnvironmentURI
	t.Region = ds.Region
	t.AdminGroup = ds.AdminGroup
	t.Stewards = ds.Stewards
	t.AutoApprovalEnabled = ds.AutoApprovalEnabled
	t.ExpirySetting = ds.ExpirySetting
	t.NamespaceID = ds.NamespaceID
}
