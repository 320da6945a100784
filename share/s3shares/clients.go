// Package s3shares implements the S3/Glue connector family: the request
// validator plus the processors that move Lake Formation grants, bucket
// policies and access point policies for shared items.
package s3shares

import (
	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/iam"
	"github.com/aws/aws-sdk-go/service/iam/iamiface"
	"github.com/aws/aws-sdk-go/service/lakeformation"
	"github.com/aws/aws-sdk-go/service/lakeformation/lakeformationiface"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/aws/aws-sdk-go/service/s3control"
	"github.com/aws/aws-sdk-go/service/s3control/s3controliface"

	"github.com/datafoundry/shareflow/errors"
)

type ClientConfig struct {
	Region     string `toml:"region"`
	AWSProfile string `toml:"aws-profile"`
	Endpoint   string `toml:"endpoint"`
}

// Clients bundles the AWS service clients the S3 family touches. Tests
// substitute fakes through the iface types.
type Clients struct {
	S3            s3iface.S3API
	S3Control     s3controliface.S3ControlAPI
	LakeFormation lakeformationiface.LakeFormationAPI
	IAM           iamiface.IAMAPI
}

func NewClients(cfg ClientConfig) (*Clients, error) {
	config := &aws.Config{}
	if cfg.Region != "" {
		config.Region = aws.String(cfg.Region)
	}
	if cfg.AWSProfile != "" {
		config.Credentials = credentials.NewSharedCredentials("", cfg.AWSProfile)
	}
	if cfg.Endpoint != "" {
		config.Endpoint = aws.String(cfg.Endpoint)
	}

	sess, err := session.NewSession(config)
	if err != nil {
		return nil, errors.Wrap(err, "creating AWS session")
	}

	return &Clients{
		S3:            s3.New(sess),
		S3Control:     s3control.New(sess),
		LakeFormation: lakeformation.New(sess),
		IAM:           iam.New(sess),
	}, nil
}
