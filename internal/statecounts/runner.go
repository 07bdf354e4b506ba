package statecounts

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/athena"
	athenatypes "github.com/aws/aws-sdk-go-v2/service/athena/types"
)

type AthenaClient interface {
	StartQueryExecution(ctx context.Context, params *athena.StartQueryExecutionInput, optFns ...func(*athena.Options)) (*athena.StartQueryExecutionOutput, error)
	GetQueryExecution(ctx context.Context, params *athena.GetQueryExecutionInput, optFns ...func(*athena.Options)) (*athena.GetQueryExecutionOutput, error)
}

// ErrPollBudgetExhausted is a local decision to stop polling before the
// invocation deadline, not an engine state. The engine-side execution
// keeps running; the hosting retry re-enters with the same idempotency
// token and picks it back up.
var ErrPollBudgetExhausted = errors.New("poll budget exhausted before query reached a terminal state")

// QueryError is a terminal engine failure (FAILED or CANCELLED).
type QueryError struct {
	State            string
	Reason           string
	QueryExecutionID string
}

func (e *QueryError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("athena %s: %s (qid=%s)", e.State, e.Reason, e.QueryExecutionID)
	}
	return fmt.Sprintf("athena %s (qid=%s)", e.State, e.QueryExecutionID)
}

const (
	initialPollDelay  = 1 * time.Second
	pollBackoffFactor = 1.7
	maxPollDelay      = 10 * time.Second
	// deadlineMargin is how much invocation time must remain before the
	// next wait; below it the poll loop exits cleanly instead of being
	// cut off mid-call at the hard deadline.
	deadlineMargin = 10 * time.Second
)

// Runner drives one UNLOAD submission through the engine lifecycle
// SUBMITTED -> RUNNING -> {SUCCEEDED, FAILED, CANCELLED}.
type Runner struct {
	client AthenaClient

	// overridable in tests
	now   func() time.Time
	sleep func(time.Duration)
}

func NewRunner(client AthenaClient) *Runner {
	return &Runner{client: client, now: time.Now, sleep: time.Sleep}
}

// Submit substitutes the resolved output location into the query
// template exactly once and starts the execution.
func (r *Runner) Submit(ctx context.Context, sql, database, workgroup, outputLocation, token string) (string, error) {
	q := strings.Replace(sql, outputPlaceholder, strings.TrimRight(outputLocation, "/")+"/", 1)
	out, err := r.client.StartQueryExecution(ctx, &athena.StartQueryExecutionInput{
		QueryString: aws.String(q),
		QueryExecutionContext: &athenatypes.QueryExecutionContext{
			Database: aws.String(database),
		},
		ResultConfiguration: &athenatypes.ResultConfiguration{
			OutputLocation: aws.String(outputLocation),
		},
		WorkGroup:          aws.String(workgroup),
		ClientRequestToken: aws.String(token),
	})
	if err != nil {
		return "", fmt.Errorf("athena StartQueryExecution: %w", err)
	}
	return aws.ToString(out.QueryExecutionId), nil
}

// Poll waits for a terminal state on a 1s * 1.7^n schedule capped at
// 10s. Before each wait it checks the invocation deadline; with less
// than deadlineMargin left it returns ErrPollBudgetExhausted.
func (r *Runner) Poll(ctx context.Context, qid string) (athenatypes.QueryExecutionState, error) {
	delay := initialPollDelay
	for {
		out, err := r.client.GetQueryExecution(ctx, &athena.GetQueryExecutionInput{
			QueryExecutionId: aws.String(qid),
		})
		if err != nil {
			return "", fmt.Errorf("athena GetQueryExecution: %w", err)
		}
		state := out.QueryExecution.Status.State

		switch state {
		case athenatypes.QueryExecutionStateSucceeded:
			return state, nil
		case athenatypes.QueryExecutionStateFailed, athenatypes.QueryExecutionStateCancelled:
			return state, &QueryError{
				State:            string(state),
				Reason:           aws.ToString(out.QueryExecution.Status.StateChangeReason),
				QueryExecutionID: qid,
			}
		}

		if deadline, ok := ctx.Deadline(); ok && deadline.Sub(r.now()) < deadlineMargin {
			return state, fmt.Errorf("%w (qid=%s)", ErrPollBudgetExhausted, qid)
		}

		r.sleep(delay)
		delay = time.Duration(float64(delay) * pollBackoffFactor)
		if delay > maxPollDelay {
			delay = maxPollDelay
		}
	}
}
