package statecounts

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/glue"
)

type GlueClient interface {
	GetTable(ctx context.Context, params *glue.GetTableInput, optFns ...func(*glue.Options)) (*glue.GetTableOutput, error)
}

// DescribeTable resolves the external table in the Glue catalog and
// returns its storage location. Called at cold start so a missing or
// misnamed table shows up in the logs before the first UNLOAD fails.
func DescribeTable(ctx context.Context, c GlueClient, database, table string) (string, error) {
	out, err := c.GetTable(ctx, &glue.GetTableInput{
		DatabaseName: aws.String(database),
		Name:         aws.String(table),
	})
	if err != nil {
		return "", fmt.Errorf("glue GetTable %s.%s: %w", database, table, err)
	}
	if out.Table == nil || out.Table.StorageDescriptor == nil {
		return "", nil
	}
	return aws.ToString(out.Table.StorageDescriptor.Location), nil
}
