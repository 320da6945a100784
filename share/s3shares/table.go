package s3shares

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/service/lakeformation"
	"github.com/aws/aws-sdk-go/service/lakeformation/lakeformationiface"

	"github.com/datafoundry/shareflow/errors"
	"github.com/datafoundry/shareflow/share"
	"github.com/datafoundry/shareflow/share/sharing"
)

// Ensure type implements interface.
var _ sharing.Processor = (*TableProcessor)(nil)

// tablePermissions are what a cross-account reader gets on a shared Glue
// table.
var tablePermissions = []string{"SELECT", "DESCRIBE"}

// TableProcessor moves Lake Formation grants for Glue tables. The item name
// carries the address as "database.table".
type TableProcessor struct {
	LakeFormation lakeformationiface.LakeFormationAPI
}

func NewTableProcessor(clients *Clients) *TableProcessor {
	return &TableProcessor{LakeFormation: clients.LakeFormation}
}

func (p *TableProcessor) Type() share.ShareableType { return share.ShareableTypeTable }

func (p *TableProcessor) GrantShare(ctx context.Context, data *share.Data, item *share.ShareItem) error {
	resource, err := tableResource(data, item)
	if err != nil {
		return err
	}

	_, err = p.LakeFormation.GrantPermissionsWithContext(ctx, &lakeformation.GrantPermissionsInput{
		Principal:   principal(data),
		Permissions: aws.StringSlice(tablePermissions),
		Resource:    resource,
	})
	// Granting permissions the principal already holds is not an error in
	// Lake Formation; no already-granted handling needed here.
	return errors.Wrapf(err, "granting table '%s'", item.ItemName)
}

func (p *TableProcessor) RevokeShare(ctx context.Context, data *share.Data, item *share.ShareItem) error {
	resource, err := tableResource(data, item)
	if err != nil {
		return err
	}

	_, err = p.LakeFormation.RevokePermissionsWithContext(ctx, &lakeformation.RevokePermissionsInput{
		Principal:   principal(data),
		Permissions: aws.StringSlice(tablePermissions),
		Resource:    resource,
	})
	if err != nil {
		// Revoking a grant that is already gone reports InvalidInput; tasks
		// replay, so that outcome counts as done.
		if aerr, ok := err.(awserr.Error); ok && aerr.Code() == lakeformation.ErrCodeInvalidInputException {
			return nil
		}
		return errors.Wrapf(err, "revoking table '%s'", item.ItemName)
	}
	return nil
}

func (p *TableProcessor) VerifyShare(ctx context.Context, data *share.Data, item *share.ShareItem) (bool, string, error) {
	resource, err := tableResource(data, item)
	if err != nil {
		return false, "", err
	}

	out, err := p.LakeFormation.ListPermissionsWithContext(ctx, &lakeformation.ListPermissionsInput{
		Principal: principal(data),
		Resource:  resource,
	})
	if err != nil {
		return false, "", errors.Wrapf(err, "listing permissions on table '%s'", item.ItemName)
	}

	held := make(map[string]bool)
	for _, prp := range out.PrincipalResourcePermissions {
		for _, perm := range prp.Permissions {
			held[aws.StringValue(perm)] = true
		}
	}
	for _, want := range tablePermissions {
		if !held[want] {
			return false, fmt.Sprintf("principal is missing %s on table %s", want, item.ItemName), nil
		}
	}
	return true, "", nil
}

func tableResource(data *share.Data, item *share.ShareItem) (*lakeformation.Resource, error) {
	db, table, ok := strings.Cut(item.ItemName, ".")
	if !ok || db == "" || table == "" {
		return nil, errors.Errorf("item '%s' has malformed table name '%s'; want 'database.table'", item.ItemURI, item.ItemName)
	}
	return &lakeformation.Resource{
		Table: &lakeformation.TableResource{
			CatalogId:    aws.String(data.SourceEnvironment.AWSAccountID),
			DatabaseName: aws.String(db),
			Name:         aws.String(table),
		},
	}, nil
}

func principal(data *share.Data) *lakeformation.DataLakePrincipal {
	return &lakeformation.DataLakePrincipal{
		DataLakePrincipalIdentifier: aws.String(principalRoleARN(data)),
	}
}

// principalRoleARN is the IAM role in the target account that receives the
// grants, whichever principal type requested them.
func principalRoleARN(data *share.Data) string {
	return fmt.Sprintf("arn:aws:iam::%s:role/%s", data.TargetEnvironment.AWSAccountID, data.Share.PrincipalRoleName)
}
