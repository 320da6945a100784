package models

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/gobuffalo/nulls"
	"github.com/gobuffalo/pop/v6"
	"github.com/gobuffalo/validate/v3"
	"github.com/gobuffalo/validate/v3/validators"
	"github.com/gofrs/uuid"

	"github.com/datafoundry/shareflow/share"
)

// ShareItem is one row of the share_items table.
type ShareItem struct {
	ID           uuid.UUID          `json:"id" db:"id"`
	ShareItemURI share.ShareItemURI `json:"share_item_uri" db:"share_item_uri"`
	ShareURI     share.ShareURI     `json:"share_uri" db:"share_uri"`
	ItemURI      share.ItemURI      `json:"item_uri" db:"item_uri"`
	ItemType     share.ShareableType `json:"item_type" db:"item_type"`
	ItemName     string             `json:"item_name" db:"item_name"`

	Status share.ShareItemStatus `json:"status" db:"status"`

	Health        share.HealthStatus `json:"health_status" db:"health_status"`
	HealthMessage string             `json:"health_message" db:"health_message"`
	LastVerified  nulls.Time         `json:"last_verification_time" db:"last_verification_time"`

	// DataFilterURIs is stored as a comma separated list; see FilterURIs.
	DataFilterURIs string `json:"data_filter_uris" db:"data_filter_uris"`

	Owner     string    `json:"owner" db:"owner"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// String is not required by pop and may be deleted
func (t *ShareItem) String() string {
	jt, _ := json.MarshalIndent(t, " ", " ") //nolint:errchkjson
	return string(jt)
}

// ShareItems is not required by pop and may be deleted
type ShareItems []*ShareItem

// String is not required by pop and may be deleted
func (t ShareItems) String() string {
	jt, _ := json.MarshalIndent(t, " ", " ") //nolint:errchkjson
	return string(jt)
}

// Validate gets run every time you call a "pop.Validate*" (pop.ValidateAndSave, pop.ValidateAndCreate, pop.ValidateAndUpdate) method.
func (t *ShareItem) Validate(tx *pop.Connection) (*validate.Errors, error) {
	return validate.Validate(
		&validators.StringIsPresent{Field: string(t.ShareItemURI), Name: "ShareItemURI"},
		&validators.StringIsPresent{Field: string(t.ShareURI), Name: "ShareURI"},
		&validators.StringIsPresent{Field: string(t.ItemURI), Name: "ItemURI"},
		&validators.StringIsPresent{Field: string(t.ItemType), Name: "ItemType"},
		&validators.StringIsPresent{Field: string(t.Status), Name: "Status"},
	), nil
}

// ValidateCreate gets run every time you call "pop.ValidateAndCreate" method.
func (t *ShareItem) ValidateCreate(tx *pop.Connection) (*validate.Errors, error) {
	return validate.NewErrors(), nil
}

// ValidateUpdate gets run every time you call "pop.ValidateAndUpdate" method.
func (t *ShareItem) ValidateUpdate(tx *pop.Connection) (*validate.Errors, error) {
	return validate.NewErrors(), nil
}

// FilterURIs splits the stored filter list.
func (t *ShareItem) FilterURIs() []string {
	if t.DataFilterURIs == "" {
		return nil
	}
	return strings.Split(t.DataFilterURIs, ",")
}

// ToShareItem converts the row to its domain representation.
func (t *ShareItem) ToShareItem() *share.ShareItem {
	out := &share.ShareItem{
		ShareItemURI:   t.ShareItemURI,
		ShareURI:       t.ShareURI,
		ItemURI:        t.ItemURI,
		ItemType:       t.ItemType,
		ItemName:       t.ItemName,
		Status:         t.Status,
		Health:         t.Health,
		HealthMessage:  t.HealthMessage,
		DataFilterURIs: t.FilterURIs(),
		Owner:          t.Owner,
		Created:        t.CreatedAt,
		Updated:        t.UpdatedAt,
	}
	if t.LastVerified.Valid {
		d := t.LastVerified.Time
		out.LastVerified = &d
	}
	return out
}

// FromShareItem populates the row from the domain representation, leaving the
// database-managed columns (id, created_at, updated_at) alone.
func (t *ShareItem) FromShareItem(si *share.ShareItem) {
	t.ShareItemURI = si.ShareItemURI
	t.ShareURI = si.ShareURI
	t.ItemURI = si.ItemURI
	t.ItemType = si.ItemType
	t.ItemName = si.ItemName
	t.Status = si.Status
	t.Health = si.Health
	t.HealthMessage = si.HealthMessage
	t.DataFilterURIs = strings.Join(si.DataFilterURIs, ",")
	t.LastVerified = nulls.Time{}
	if si.LastVerified != nil {
		t.LastVerified = nulls.NewTime(*si.LastVerified)
	}
	t.Owner = si.Owner
}
