package models

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/gobuffalo/pop/v6"
	"github.com/gobuffalo/validate/v3"
	"github.com/gobuffalo/validate/v3/validators"
	"github.com/gofrs/uuid"

	"github.com/datafoundry/shareflow/share"
)

// Environment is one row of the environments table.
type Environment struct {
	ID             uuid.UUID            `json:"id" db:"id"`
	EnvironmentURI share.EnvironmentURI `json:"environment_uri" db:"environment_uri"`
	Name           string               `json:"name" db:"name"`
	AWSAccountID   string               `json:"aws_account_id" db:"aws_account_id"`
	Region         string               `json:"region" db:"region"`

	// Groups is stored as a comma separated list.
	Groups string `json:"groups" db:"groups"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// String is not required by pop and may be deleted
func (t *Environment) String() string {
	jt, _ := json.MarshalIndent(t, " ", " ") //nolint:errchkjson
	return string(jt)
}

// Environments is not required by pop and may be deleted
type Environments []*Environment

// String is not required by pop and may be deleted
func (t Environments) String() string {
	jt, _ := json.MarshalIndent(t, " ", " ") //nolint:errchkjson
	return string(jt)
}

// Validate gets run every time you call a "pop.Validate*" (pop.ValidateAndSave, pop.ValidateAndCreate, pop.ValidateAndUpdate) method.
func (t *Environment) Validate(tx *pop.Connection) (*validate.Errors, error) {
	return validate.Validate(
		&validators.StringIsPresent{Field: string(t.EnvironmentURI), Name: "EnvironmentURI"},
		&validators.StringIsPresent{Field: t.AWSAccountID, Name: "AWSAccountID"},
		&validators.StringIsPresent{Field: t.Region, Name: "Region"},
	), nil
}

// ValidateCreate gets run every time you call "pop.ValidateAndCreate" method.
func (t *Environment) ValidateCreate(tx *pop.Connection) (*validate.Errors, error) {
	return validate.NewErrors(), nil
}

// ValidateUpdate gets run every time you call "pop.ValidateAndUpdate" method.
func (t *Environment) ValidateUpdate(tx *pop.Connection) (*validate.Errors, error) {
	return validate.NewErrors(), nil
}

// ToEnvironment converts the row to its domain representation.
func (t *Environment) ToEnvironment() *share.Environment {
	var groups []string
	if t.Groups != "" {
		groups = strings.Split(t.Groups, ",")
	}
	return &share.Environment{
		EnvironmentURI: t.EnvironmentURI,
		Name:           t.Name,
		AWSAccountID:   t.AWSAccountID,
		Region:         t.Region,
		Groups:         groups,
	}
}

// FromEnvironment populates the row from the domain representation.
func (t *Environment) FromEnvironment(env *share.Environment) {
	t.EnvironmentURI = env.EnvironmentURI
	t.Name = env.Name
	t.AWSAccountID = env.AWSAccountID
	t.Region = env.Region
	t.Groups = strings.Join(env.Groups, ",")
}
