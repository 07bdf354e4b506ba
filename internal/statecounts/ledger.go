package statecounts

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	ddbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

type LedgerClient interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
}

// Keep ledger entries for 7 days; long past any retry horizon.
const ledgerTTL = 7 * 24 * time.Hour

// Ledger records which execution id an idempotency token resolved to,
// so a retried invocation polls the same execution instead of trusting
// engine-side dedup alone. Optional: an empty table name disables it,
// and ledger trouble never blocks processing.
type Ledger struct {
	client LedgerClient
	table  string
	now    func() time.Time
}

func NewLedger(client LedgerClient, table string) *Ledger {
	return &Ledger{client: client, table: table, now: time.Now}
}

func (l *Ledger) Enabled() bool {
	return l != nil && l.client != nil && l.table != ""
}

// Lookup returns the execution id previously recorded for the token,
// or "" when none exists.
func (l *Ledger) Lookup(ctx context.Context, token string) (string, error) {
	out, err := l.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(l.table),
		Key: map[string]ddbtypes.AttributeValue{
			"PK": &ddbtypes.AttributeValueMemberS{Value: runKey(token)},
		},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return "", fmt.Errorf("ledger get: %w", err)
	}
	if out.Item == nil {
		return "", nil
	}
	if v, ok := out.Item["ExecutionID"].(*ddbtypes.AttributeValueMemberS); ok {
		return v.Value, nil
	}
	return "", nil
}

// Record stores token -> qid with a conditional put. When a concurrent
// duplicate delivery won the write first, the winner's execution id is
// returned instead so the caller polls that one.
func (l *Ledger) Record(ctx context.Context, token, qid string) (string, error) {
	exp := l.now().UTC().Add(ledgerTTL).Unix()
	_, err := l.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(l.table),
		Item: map[string]ddbtypes.AttributeValue{
			"PK":          &ddbtypes.AttributeValueMemberS{Value: runKey(token)},
			"ExecutionID": &ddbtypes.AttributeValueMemberS{Value: qid},
			"CreatedAt":   &ddbtypes.AttributeValueMemberS{Value: l.now().UTC().Format(time.RFC3339)},
			"ExpiresAt":   &ddbtypes.AttributeValueMemberN{Value: fmt.Sprintf("%d", exp)},
		},
		ConditionExpression: aws.String("attribute_not_exists(PK)"),
	})
	if err != nil {
		var cfe *ddbtypes.ConditionalCheckFailedException
		if errors.As(err, &cfe) {
			return l.Lookup(ctx, token)
		}
		return "", fmt.Errorf("ledger put: %w", err)
	}
	return qid, nil
}

func runKey(token string) string {
	return "RUN#" + token
}
