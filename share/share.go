// Package share defines the share domain level types: share objects, share
// items, the status vocabulary, and the lifecycle state machines.
package share

import (
	"encoding/json"
	"time"
)

// URI types for the entities a share request touches. They are opaque,
// immutable identifiers.
type (
	// ShareURI identifies one share object.
	ShareURI string

	// ShareItemURI identifies one item within a share object.
	ShareItemURI string

	// ItemURI identifies the data asset an item points at (a table, a storage
	// location, a bucket or a Redshift table).
	ItemURI string

	// DatasetURI identifies the dataset a share targets.
	DatasetURI string

	// EnvironmentURI identifies an environment (one AWS account + region).
	EnvironmentURI string
)

// DatasetType distinguishes the connector family a dataset belongs to.
type DatasetType string

const (
	DatasetTypeS3       DatasetType = "S3"
	DatasetTypeRedshift DatasetType = "Redshift"
)

// ShareObject represents one cross-principal request against one dataset.
// There is exactly one live share object per (dataset, principal) pair; its
// status is mutated exclusively through the ObjectSM transitions.
type ShareObject struct {
	ShareURI       ShareURI       `json:"shareUri"`
	DatasetURI     DatasetURI     `json:"datasetUri"`
	EnvironmentURI EnvironmentURI `json:"environmentUri"`

	GroupURI          string        `json:"groupUri"`
	PrincipalID       string        `json:"principalId"`
	PrincipalType     PrincipalType `json:"principalType"`
	PrincipalRoleName string        `json:"principalRoleName"`

	Status ShareObjectStatus `json:"status"`

	Owner            string `json:"owner"`
	RequestPurpose   string `json:"requestPurpose"`
	RejectPurpose    string `json:"rejectPurpose"`
	ExtensionPurpose string `json:"extensionPurpose"`

	ExpiryDate            *time.Time `json:"expiryDate,omitempty"`
	RequestedExpiryDate   *time.Time `json:"requestedExpiryDate,omitempty"`
	SubmittedForExtension bool       `json:"submittedForExtension"`
	NonExpirable          bool       `json:"nonExpirable"`

	Created time.Time  `json:"created"`
	Updated time.Time  `json:"updated"`
	Deleted *time.Time `json:"deleted,omitempty"`
}

func (s *ShareObject) String() string {
	j, _ := json.Marshal(s) //nolint:errchkjson
	return string(j)
}

// Expired reports whether the share carries an expiry date in the past.
func (s *ShareObject) Expired(now time.Time) bool {
	if s.NonExpirable || s.ExpiryDate == nil {
		return false
	}
	return s.ExpiryDate.Before(now)
}

// ShareItem represents one shareable unit within a share object. Item status
// is tracked independently of the parent object so that items can be revoked
// or re-opened without disturbing their siblings.
type ShareItem struct {
	ShareItemURI ShareItemURI  `json:"shareItemUri"`
	ShareURI     ShareURI      `json:"shareUri"`
	ItemURI      ItemURI       `json:"itemUri"`
	ItemType     ShareableType `json:"itemType"`
	ItemName     string        `json:"itemName"`

	Status ShareItemStatus `json:"status"`

	Health        HealthStatus `json:"healthStatus"`
	HealthMessage string       `json:"healthMessage,omitempty"`
	LastVerified  *time.Time   `json:"lastVerificationTime,omitempty"`

	// DataFilterURIs carry optional row/column filters attached to a table
	// grant. Opaque to the engine; interpreted by the processor.
	DataFilterURIs []string `json:"dataFilterUris,omitempty"`

	Owner   string    `json:"owner"`
	Created time.Time `json:"created"`
	Updated time.Time `json:"updated"`
}

func (i *ShareItem) String() string {
	j, _ := json.Marshal(i) //nolint:errchkjson
	return string(j)
}

// ShareItems is a convenience slice type.
type ShareItems []*ShareItem

// Statuses returns the distinct statuses present in the slice, in first-seen
// order.
func (items ShareItems) Statuses() []ShareItemStatus {
	seen := make(map[ShareItemStatus]struct{})
	out := make([]ShareItemStatus, 0, len(items))
	for _, it := range items {
		if _, ok := seen[it.Status]; ok {
			continue
		}
		seen[it.Status] = struct{}{}
		out = append(out, it.Status)
	}
	return out
}

// AnyInStatus reports whether at least one item carries the given status.
func (items ShareItems) AnyInStatus(status ShareItemStatus) bool {
	for _, it := range items {
		if it.Status == status {
			return true
		}
	}
	return false
}

// Dataset is the subset of dataset metadata the share engine needs: who
// administers it, where it lives, and how approvals behave.
type Dataset struct {
	DatasetURI     DatasetURI     `json:"datasetUri"`
	Name           string         `json:"name"`
	Type           DatasetType    `json:"datasetType"`
	EnvironmentURI EnvironmentURI `json:"environmentUri"`
	Region         string         `json:"region"`

	AdminGroup string `json:"adminGroup"`
	Stewards   string `json:"stewards"`

	AutoApprovalEnabled bool `json:"autoApprovalEnabled"`

	// ExpirySetting holds the default lease the dataset grants, in days.
	// Zero means shares against this dataset never expire.
	ExpirySetting int `json:"expirySetting"`

	// NamespaceID is populated for Redshift datasets only.
	NamespaceID string `json:"namespaceId,omitempty"`
}

// Environment is one registered AWS account + region.
type Environment struct {
	EnvironmentURI EnvironmentURI `json:"environmentUri"`
	Name           string         `json:"name"`
	AWSAccountID   string         `json:"awsAccountId"`
	Region         string         `json:"region"`
	Groups         []string       `json:"groups"`
}

// HasGroup reports whether the group is onboarded to the environment.
func (e *Environment) HasGroup(group string) bool {
	for _, g := range e.Groups {
		if g == group {
			return true
		}
	}
	return false
}

// Data bundles everything a processor needs about one share: the request,
// its items, the dataset and both environments. Loaded once per engine run.
type Data struct {
	Share             *ShareObject
	Items             ShareItems
	Dataset           *Dataset
	SourceEnvironment *Environment
	TargetEnvironment *Environment
}

// Statistics summarizes a share's items per lifecycle bucket.
type Statistics struct {
	SharedItems  int `json:"sharedItems"`
	RevokedItems int `json:"revokedItems"`
	FailedItems  int `json:"failedItems"`
	PendingItems int `json:"pendingItems"`
}
