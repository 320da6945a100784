package controller

import (
	"context"
	"sync"

	"github.com/datafoundry/shareflow/share"
)

// Validator checks a share request at the three gates of its lifecycle. Each
// dataset type registers its own validator; the S3 family restricts
// principal types differently than the Redshift family does.
type Validator interface {
	// ValidateCreation runs before the share request is persisted.
	ValidateCreation(ctx context.Context, req *CreateShareRequest, dataset *share.Dataset, env *share.Environment) error

	// ValidateSubmission runs before a draft goes to the approvers.
	ValidateSubmission(ctx context.Context, data *share.Data) error

	// ValidateApproval runs before the grant work is queued.
	ValidateApproval(ctx context.Context, data *share.Data) error
}

// Ensure type implements interface.
var _ Validator = (*NopValidator)(nil)

// NopValidator accepts everything.
type NopValidator struct{}

func (NopValidator) ValidateCreation(context.Context, *CreateShareRequest, *share.Dataset, *share.Environment) error {
	return nil
}
func (NopValidator) ValidateSubmission(context.Context, *share.Data) error { return nil }
func (NopValidator) ValidateApproval(context.Context, *share.Data) error   { return nil }

// ValidatorRegistry maps dataset types to their validator.
type ValidatorRegistry struct {
	mu         sync.RWMutex
	validators map[share.DatasetType]Validator
}

func NewValidatorRegistry() *ValidatorRegistry {
	return &ValidatorRegistry{
		validators: make(map[share.DatasetType]Validator),
	}
}

// Register installs the validator for a dataset type, replacing any previous
// registration.
func (r *ValidatorRegistry) Register(typ share.DatasetType, v Validator) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.validators[typ] = v
}

// Validator returns the validator for a dataset type.
func (r *ValidatorRegistry) Validator(typ share.DatasetType) (Validator, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.validators[typ]
	if !ok {
		return nil, NewErrUnknownDatasetType(typ)
	}
	return v, nil
}
