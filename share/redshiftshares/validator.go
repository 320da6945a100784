package redshiftshares

import (
	"context"
	"fmt"

	"github.com/datafoundry/shareflow/errors"
	"github.com/datafoundry/shareflow/share"
	"github.com/datafoundry/shareflow/share/controller"
)

// Ensure type implements interface.
var _ controller.Validator = (*Validator)(nil)

// Validator gates share requests against Redshift datasets. Redshift shares
// go to a Redshift role in another namespace: the request's principal ID
// carries the target namespace, the role name carries the role.
type Validator struct {
	Connections *ConnectionRegistry
}

func NewValidator(connections *ConnectionRegistry) *Validator {
	return &Validator{Connections: connections}
}

func (v *Validator) ValidateCreation(ctx context.Context, req *controller.CreateShareRequest, dataset *share.Dataset, env *share.Environment) error {
	if req.PrincipalType != share.PrincipalTypeRedshiftRole {
		return controller.NewErrInvalidPrincipal(req.PrincipalID,
			fmt.Sprintf("Redshift datasets share to Redshift roles only, not '%s'", req.PrincipalType))
	}
	if req.PrincipalRoleName == "" {
		return controller.NewErrInvalidPrincipal(req.PrincipalID, "Redshift role principals need a role name")
	}
	if dataset.NamespaceID == "" {
		return errors.Errorf("dataset '%s' has no namespace ID; register it with its Redshift namespace first", dataset.DatasetURI)
	}
	if req.PrincipalID == dataset.NamespaceID {
		return controller.NewErrInvalidPrincipal(req.PrincipalID,
			"the target namespace is the dataset's own namespace; datashares need two distinct namespaces")
	}
	if _, err := v.Connections.Connection(dataset.NamespaceID); err != nil {
		return err
	}
	return nil
}

// ValidateSubmission refuses drafts carrying non-Redshift items.
func (v *Validator) ValidateSubmission(ctx context.Context, data *share.Data) error {
	for _, item := range data.Items {
		if item.ItemType != share.ShareableTypeRedshiftTable {
			return errors.Errorf("item '%s' has type '%s', which Redshift datasets cannot share", item.ItemURI, item.ItemType)
		}
	}
	return nil
}

// ValidateApproval re-checks that the source namespace still has its admin
// connection before the grant work is queued.
func (v *Validator) ValidateApproval(ctx context.Context, data *share.Data) error {
	_, err := v.Connections.Connection(data.Dataset.NamespaceID)
	return err
}
