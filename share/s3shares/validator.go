package s3shares

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/iam"
	"github.com/aws/aws-sdk-go/service/iam/iamiface"

	"github.com/datafoundry/shareflow/errors"
	"github.com/datafoundry/shareflow/share"
	"github.com/datafoundry/shareflow/share/controller"
)

// Ensure type implements interface.
var _ controller.Validator = (*Validator)(nil)

// Validator gates share requests against S3/Glue datasets. The S3 family
// serves group and consumption-role principals in the dataset's own region.
type Validator struct {
	IAM iamiface.IAMAPI
}

func NewValidator(clients *Clients) *Validator {
	return &Validator{IAM: clients.IAM}
}

func (v *Validator) ValidateCreation(ctx context.Context, req *controller.CreateShareRequest, dataset *share.Dataset, env *share.Environment) error {
	if env.Region != dataset.Region {
		return controller.NewErrInvalidPrincipal(req.PrincipalID,
			fmt.Sprintf("environment region '%s' does not match dataset region '%s'; S3 shares are same-region only", env.Region, dataset.Region))
	}

	switch req.PrincipalType {
	case share.PrincipalTypeGroup:
		if !env.HasGroup(req.GroupURI) {
			return controller.NewErrGroupNotOnboarded(req.GroupURI, env.EnvironmentURI)
		}
	case share.PrincipalTypeConsumptionRole:
		if err := v.roleExists(ctx, req.PrincipalRoleName); err != nil {
			return err
		}
	default:
		return controller.NewErrInvalidPrincipal(req.PrincipalID,
			fmt.Sprintf("principal type '%s' is not supported for S3 datasets", req.PrincipalType))
	}
	return nil
}

// ValidateSubmission refuses drafts carrying items outside the S3 family.
func (v *Validator) ValidateSubmission(ctx context.Context, data *share.Data) error {
	for _, item := range data.Items {
		switch item.ItemType {
		case share.ShareableTypeTable, share.ShareableTypeStorageLocation, share.ShareableTypeS3Bucket:
		default:
			return errors.Errorf("item '%s' has type '%s', which S3 datasets cannot share", item.ItemURI, item.ItemType)
		}
	}
	return nil
}

// ValidateApproval re-checks the principal role right before the grant work
// is queued; roles deleted since creation fail here instead of item by item.
func (v *Validator) ValidateApproval(ctx context.Context, data *share.Data) error {
	if data.Share.PrincipalType != share.PrincipalTypeConsumptionRole {
		return nil
	}
	return v.roleExists(ctx, data.Share.PrincipalRoleName)
}

func (v *Validator) roleExists(ctx context.Context, roleName string) error {
	if roleName == "" {
		return controller.NewErrInvalidPrincipal(roleName, "consumption-role principals need a role name")
	}
	_, err := v.IAM.GetRoleWithContext(ctx, &iam.GetRoleInput{
		RoleName: aws.String(roleName),
	})
	if err != nil {
		return controller.NewErrInvalidPrincipal(roleName,
			fmt.Sprintf("IAM role lookup failed: %v", err))
	}
	return nil
}
