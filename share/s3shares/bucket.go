package s3shares

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"

	"github.com/datafoundry/shareflow/errors"
	"github.com/datafoundry/shareflow/share"
	"github.com/datafoundry/shareflow/share/sharing"
)

// Ensure type implements interface.
var _ sharing.Processor = (*BucketProcessor)(nil)

const errCodeNoSuchBucketPolicy = "NoSuchBucketPolicy"

// BucketProcessor shares whole buckets by stamping a read statement into the
// bucket policy. The item name carries the bucket name.
type BucketProcessor struct {
	S3 s3iface.S3API
}

func NewBucketProcessor(clients *Clients) *BucketProcessor {
	return &BucketProcessor{S3: clients.S3}
}

func (p *BucketProcessor) Type() share.ShareableType { return share.ShareableTypeS3Bucket }

func (p *BucketProcessor) GrantShare(ctx context.Context, data *share.Data, item *share.ShareItem) error {
	bucket := item.ItemName
	doc, err := p.bucketPolicy(ctx, bucket)
	if err != nil {
		return err
	}

	if !doc.ensureStatement(bucketStatement(data, bucket)) {
		return nil
	}

	raw, err := doc.String()
	if err != nil {
		return err
	}
	_, err = p.S3.PutBucketPolicyWithContext(ctx, &s3.PutBucketPolicyInput{
		Bucket: aws.String(bucket),
		Policy: aws.String(raw),
	})
	return errors.Wrapf(err, "writing policy of bucket '%s'", bucket)
}

func (p *BucketProcessor) RevokeShare(ctx context.Context, data *share.Data, item *share.ShareItem) error {
	bucket := item.ItemName
	doc, err := p.bucketPolicy(ctx, bucket)
	if err != nil {
		return err
	}

	if !doc.removeStatement(statementSid(data.Share.ShareURI)) {
		return nil
	}

	if doc.empty() {
		_, err = p.S3.DeleteBucketPolicyWithContext(ctx, &s3.DeleteBucketPolicyInput{
			Bucket: aws.String(bucket),
		})
		return errors.Wrapf(err, "deleting policy of bucket '%s'", bucket)
	}

	raw, err := doc.String()
	if err != nil {
		return err
	}
	_, err = p.S3.PutBucketPolicyWithContext(ctx, &s3.PutBucketPolicyInput{
		Bucket: aws.String(bucket),
		Policy: aws.String(raw),
	})
	return errors.Wrapf(err, "writing policy of bucket '%s'", bucket)
}

func (p *BucketProcessor) VerifyShare(ctx context.Context, data *share.Data, item *share.ShareItem) (bool, string, error) {
	doc, err := p.bucketPolicy(ctx, item.ItemName)
	if err != nil {
		return false, "", err
	}
	if !doc.hasStatement(statementSid(data.Share.ShareURI)) {
		return false, fmt.Sprintf("bucket %s has no policy statement for this share", item.ItemName), nil
	}
	return true, "", nil
}

// bucketPolicy reads the current policy; a bucket with no policy yields an
// empty document.
func (p *BucketProcessor) bucketPolicy(ctx context.Context, bucket string) (*policyDocument, error) {
	out, err := p.S3.GetBucketPolicyWithContext(ctx, &s3.GetBucketPolicyInput{
		Bucket: aws.String(bucket),
	})
	if err != nil {
		if aerr, ok := err.(awserr.Error); ok && aerr.Code() == errCodeNoSuchBucketPolicy {
			return newPolicyDocument(), nil
		}
		return nil, errors.Wrapf(err, "reading policy of bucket '%s'", bucket)
	}
	return parsePolicyDocument(aws.StringValue(out.Policy))
}

func bucketStatement(data *share.Data, bucket string) policyStatement {
	return policyStatement{
		Sid:       statementSid(data.Share.ShareURI),
		Effect:    "Allow",
		Principal: policyPrincipal{AWS: []string{principalRoleARN(data)}},
		Action:    []string{"s3:GetObject", "s3:ListBucket"},
		Resource: []string{
			fmt.Sprintf("arn:aws:s3:::%s", bucket),
			fmt.Sprintf("arn:aws:s3:::%s/*", bucket),
		},
	}
}
