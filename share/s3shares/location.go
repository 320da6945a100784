package s3shares

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/service/s3control"
	"github.com/aws/aws-sdk-go/service/s3control/s3controliface"

	"github.com/datafoundry/shareflow/errors"
	"github.com/datafoundry/shareflow/share"
	"github.com/datafoundry/shareflow/share/sharing"
)

// Ensure type implements interface.
var _ sharing.Processor = (*LocationProcessor)(nil)

const (
	errCodeNoSuchAccessPoint       = "NoSuchAccessPoint"
	errCodeNoSuchAccessPointPolicy = "NoSuchAccessPointPolicy"
)

// LocationProcessor shares bucket prefixes through a per-share S3 access
// point in the source account. The item name carries the location as
// "bucket/prefix".
type LocationProcessor struct {
	S3Control s3controliface.S3ControlAPI
}

func NewLocationProcessor(clients *Clients) *LocationProcessor {
	return &LocationProcessor{S3Control: clients.S3Control}
}

func (p *LocationProcessor) Type() share.ShareableType {
	return share.ShareableTypeStorageLocation
}

func (p *LocationProcessor) GrantShare(ctx context.Context, data *share.Data, item *share.ShareItem) error {
	bucket, prefix, err := splitLocation(item)
	if err != nil {
		return err
	}
	account := data.SourceEnvironment.AWSAccountID
	name := accessPointName(data.Share.ShareURI)

	if err := p.ensureAccessPoint(ctx, account, name, bucket); err != nil {
		return err
	}

	doc, err := p.accessPointPolicy(ctx, account, name)
	if err != nil {
		return err
	}
	arn := accessPointARN(data.SourceEnvironment.Region, account, name)
	if !doc.ensureStatement(locationStatement(data, item, arn, prefix)) {
		return nil
	}

	raw, err := doc.String()
	if err != nil {
		return err
	}
	_, err = p.S3Control.PutAccessPointPolicyWithContext(ctx, &s3control.PutAccessPointPolicyInput{
		AccountId: aws.String(account),
		Name:      aws.String(name),
		Policy:    aws.String(raw),
	})
	return errors.Wrapf(err, "writing policy of access point '%s'", name)
}

func (p *LocationProcessor) RevokeShare(ctx context.Context, data *share.Data, item *share.ShareItem) error {
	account := data.SourceEnvironment.AWSAccountID
	name := accessPointName(data.Share.ShareURI)

	doc, err := p.accessPointPolicy(ctx, account, name)
	if err != nil {
		if aerr, ok := err.(awserr.Error); ok && aerr.Code() == errCodeNoSuchAccessPoint {
			return nil
		}
		return err
	}

	if !doc.removeStatement(itemStatementSid(data.Share.ShareURI, item.ShareItemURI)) {
		return nil
	}

	if doc.empty() {
		// Last location of the share: drop the whole access point.
		_, err = p.S3Control.DeleteAccessPointWithContext(ctx, &s3control.DeleteAccessPointInput{
			AccountId: aws.String(account),
			Name:      aws.String(name),
		})
		if err != nil {
			if aerr, ok := err.(awserr.Error); ok && aerr.Code() == errCodeNoSuchAccessPoint {
				return nil
			}
			return errors.Wrapf(err, "deleting access point '%s'", name)
		}
		return nil
	}

	raw, err := doc.String()
	if err != nil {
		return err
	}
	_, err = p.S3Control.PutAccessPointPolicyWithContext(ctx, &s3control.PutAccessPointPolicyInput{
		AccountId: aws.String(account),
		Name:      aws.String(name),
		Policy:    aws.String(raw),
	})
	return errors.Wrapf(err, "writing policy of access point '%s'", name)
}

func (p *LocationProcessor) VerifyShare(ctx context.Context, data *share.Data, item *share.ShareItem) (bool, string, error) {
	account := data.SourceEnvironment.AWSAccountID
	name := accessPointName(data.Share.ShareURI)

	doc, err := p.accessPointPolicy(ctx, account, name)
	if err != nil {
		if aerr, ok := err.(awserr.Error); ok && (aerr.Code() == errCodeNoSuchAccessPoint || aerr.Code() == errCodeNoSuchAccessPointPolicy) {
			return false, fmt.Sprintf("access point %s is gone", name), nil
		}
		return false, "", err
	}
	if !doc.hasStatement(itemStatementSid(data.Share.ShareURI, item.ShareItemURI)) {
		return false, fmt.Sprintf("access point %s has no policy statement for location %s", name, item.ItemName), nil
	}
	return true, "", nil
}

func (p *LocationProcessor) ensureAccessPoint(ctx context.Context, account, name, bucket string) error {
	_, err := p.S3Control.GetAccessPointWithContext(ctx, &s3control.GetAccessPointInput{
		AccountId: aws.String(account),
		Name:      aws.String(name),
	})
	if err == nil {
		return nil
	}
	if aerr, ok := err.(awserr.Error); !ok || aerr.Code() != errCodeNoSuchAccessPoint {
		return errors.Wrapf(err, "getting access point '%s'", name)
	}

	_, err = p.S3Control.CreateAccessPointWithContext(ctx, &s3control.CreateAccessPointInput{
		AccountId: aws.String(account),
		Name:      aws.String(name),
		Bucket:    aws.String(bucket),
	})
	return errors.Wrapf(err, "creating access point '%s'", name)
}

func (p *LocationProcessor) accessPointPolicy(ctx context.Context, account, name string) (*policyDocument, error) {
	out, err := p.S3Control.GetAccessPointPolicyWithContext(ctx, &s3control.GetAccessPointPolicyInput{
		AccountId: aws.String(account),
		Name:      aws.String(name),
	})
	if err != nil {
		if aerr, ok := err.(awserr.Error); ok {
			switch aerr.Code() {
			case errCodeNoSuchAccessPointPolicy:
				return newPolicyDocument(), nil
			case errCodeNoSuchAccessPoint:
				// Callers map a missing access point themselves.
				return nil, err
			}
		}
		return nil, errors.Wrapf(err, "reading policy of access point '%s'", name)
	}
	return parsePolicyDocument(aws.StringValue(out.Policy))
}

func locationStatement(data *share.Data, item *share.ShareItem, accessPointARN, prefix string) policyStatement {
	return policyStatement{
		Sid:       itemStatementSid(data.Share.ShareURI, item.ShareItemURI),
		Effect:    "Allow",
		Principal: policyPrincipal{AWS: []string{principalRoleARN(data)}},
		Action:    []string{"s3:GetObject", "s3:ListBucket"},
		Resource: []string{
			accessPointARN,
			fmt.Sprintf("%s/object/%s/*", accessPointARN, prefix),
		},
	}
}

func splitLocation(item *share.ShareItem) (bucket, prefix string, err error) {
	name := strings.TrimPrefix(item.ItemName, "s3://")
	bucket, prefix, ok := strings.Cut(name, "/")
	if !ok || bucket == "" || prefix == "" {
		return "", "", errors.Errorf("item '%s' has malformed location '%s'; want 'bucket/prefix'", item.ItemURI, item.ItemName)
	}
	return bucket, strings.TrimSuffix(prefix, "/"), nil
}

// accessPointName derives the per-share access point name. Access point
// names must be lowercase DNS labels of at most 50 characters; share URIs
// are UUIDs, which fit.
func accessPointName(uri share.ShareURI) string {
	return "share-" + strings.ToLower(string(uri))
}

func accessPointARN(region, account, name string) string {
	return fmt.Sprintf("arn:aws:s3:%s:%s:accesspoint/%s", region, account, name)
}

// itemStatementSid tells apart the statements of the share's locations on
// the shared access point.
func itemStatementSid(shareURI share.ShareURI, itemURI share.ShareItemURI) string {
	return statementSid(shareURI) + strings.ReplaceAll(string(itemURI), "-", "")
}
