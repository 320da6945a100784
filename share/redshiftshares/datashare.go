package redshiftshares

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/redshiftdataapiservice"
	"github.com/aws/aws-sdk-go/service/redshiftdataapiservice/redshiftdataapiserviceiface"

	"github.com/datafoundry/shareflow/errors"
	"github.com/datafoundry/shareflow/share"
	"github.com/datafoundry/shareflow/share/sharing"
)

// Ensure type implements interface.
var _ sharing.Processor = (*DatashareProcessor)(nil)

const defaultPollInterval = time.Second

// DatashareProcessor shares Redshift tables by maintaining one datashare per
// share object in the source namespace. The item name carries the table
// address as "schema.table".
type DatashareProcessor struct {
	DataAPI     redshiftdataapiserviceiface.RedshiftDataAPIServiceAPI
	Connections *ConnectionRegistry

	// PollInterval is the pause between DescribeStatement polls. Defaults
	// to one second.
	PollInterval time.Duration
}

func NewDatashareProcessor(api redshiftdataapiserviceiface.RedshiftDataAPIServiceAPI, connections *ConnectionRegistry) *DatashareProcessor {
	return &DatashareProcessor{
		DataAPI:     api,
		Connections: connections,
	}
}

func (p *DatashareProcessor) Type() share.ShareableType {
	return share.ShareableTypeRedshiftTable
}

func (p *DatashareProcessor) GrantShare(ctx context.Context, data *share.Data, item *share.ShareItem) error {
	conn, err := p.Connections.Connection(data.Dataset.NamespaceID)
	if err != nil {
		return err
	}
	schema, table, err := splitTable(item)
	if err != nil {
		return err
	}
	ds := datashareName(data.Share.ShareURI)

	steps := []string{
		fmt.Sprintf("CREATE DATASHARE %s", ds),
		fmt.Sprintf("ALTER DATASHARE %s ADD SCHEMA %s", ds, schema),
		fmt.Sprintf("ALTER DATASHARE %s ADD TABLE %s.%s", ds, schema, table),
		fmt.Sprintf("GRANT USAGE ON DATASHARE %s TO NAMESPACE '%s'", ds, data.Share.PrincipalID),
	}
	for _, sql := range steps {
		if err := p.runStatement(ctx, conn, sql); err != nil {
			// Every step is re-runnable: replayed tasks hit objects that are
			// already part of the datashare.
			if isAlreadyThere(err) {
				continue
			}
			return err
		}
	}
	return nil
}

func (p *DatashareProcessor) RevokeShare(ctx context.Context, data *share.Data, item *share.ShareItem) error {
	conn, err := p.Connections.Connection(data.Dataset.NamespaceID)
	if err != nil {
		return err
	}
	schema, table, err := splitTable(item)
	if err != nil {
		return err
	}
	ds := datashareName(data.Share.ShareURI)

	sql := fmt.Sprintf("ALTER DATASHARE %s REMOVE TABLE %s.%s", ds, schema, table)
	if err := p.runStatement(ctx, conn, sql); err != nil {
		if isAlreadyGone(err) {
			return nil
		}
		return err
	}
	return nil
}

func (p *DatashareProcessor) VerifyShare(ctx context.Context, data *share.Data, item *share.ShareItem) (bool, string, error) {
	conn, err := p.Connections.Connection(data.Dataset.NamespaceID)
	if err != nil {
		return false, "", err
	}
	schema, table, err := splitTable(item)
	if err != nil {
		return false, "", err
	}
	ds := datashareName(data.Share.ShareURI)

	sql := fmt.Sprintf(
		"SELECT 1 FROM svv_datashare_objects WHERE share_name = '%s' AND object_name = '%s.%s'",
		ds, schema, table)
	id, err := p.startStatement(ctx, conn, sql)
	if err != nil {
		return false, "", err
	}
	if err := p.waitStatement(ctx, id); err != nil {
		return false, "", err
	}

	out, err := p.DataAPI.GetStatementResultWithContext(ctx, &redshiftdataapiservice.GetStatementResultInput{
		Id: aws.String(id),
	})
	if err != nil {
		return false, "", errors.Wrap(err, "reading statement result")
	}
	if aws.Int64Value(out.TotalNumRows) == 0 {
		return false, fmt.Sprintf("table %s is not part of datashare %s", item.ItemName, ds), nil
	}
	return true, "", nil
}

func (p *DatashareProcessor) runStatement(ctx context.Context, conn Connection, sql string) error {
	id, err := p.startStatement(ctx, conn, sql)
	if err != nil {
		return err
	}
	return p.waitStatement(ctx, id)
}

func (p *DatashareProcessor) startStatement(ctx context.Context, conn Connection, sql string) (string, error) {
	in := &redshiftdataapiservice.ExecuteStatementInput{
		ClusterIdentifier: aws.String(conn.ClusterID),
		Database:          aws.String(conn.Database),
		Sql:               aws.String(sql),
	}
	if conn.SecretARN != "" {
		in.SecretArn = aws.String(conn.SecretARN)
	} else if conn.DBUser != "" {
		in.DbUser = aws.String(conn.DBUser)
	}

	out, err := p.DataAPI.ExecuteStatementWithContext(ctx, in)
	if err != nil {
		return "", errors.Wrapf(err, "executing statement %q", sql)
	}
	return aws.StringValue(out.Id), nil
}

// waitStatement polls until the statement settles. The data API is
// asynchronous; errors surface in the DescribeStatement output, not in
// ExecuteStatement.
func (p *DatashareProcessor) waitStatement(ctx context.Context, id string) error {
	interval := p.PollInterval
	if interval <= 0 {
		interval = defaultPollInterval
	}

	for {
		out, err := p.DataAPI.DescribeStatementWithContext(ctx, &redshiftdataapiservice.DescribeStatementInput{
			Id: aws.String(id),
		})
		if err != nil {
			return errors.Wrap(err, "describing statement")
		}

		switch aws.StringValue(out.Status) {
		case redshiftdataapiservice.StatusStringFinished:
			return nil
		case redshiftdataapiservice.StatusStringFailed, redshiftdataapiservice.StatusStringAborted:
			return errors.Errorf("statement failed: %s", aws.StringValue(out.Error))
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(interval):
		}
	}
}

func splitTable(item *share.ShareItem) (schema, table string, err error) {
	schema, table, ok := strings.Cut(item.ItemName, ".")
	if !ok || schema == "" || table == "" {
		return "", "", errors.Errorf("item '%s' has malformed table name '%s'; want 'schema.table'", item.ItemURI, item.ItemName)
	}
	return schema, table, nil
}

// datashareName derives the per-share datashare identifier. Redshift
// identifiers take letters, digits and underscores.
func datashareName(uri share.ShareURI) string {
	return "shareflow_" + strings.ReplaceAll(string(uri), "-", "")
}

func isAlreadyThere(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "already exists") || strings.Contains(msg, "is already added")
}

func isAlreadyGone(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "does not exist") || strings.Contains(msg, "not found in datashare")
}
