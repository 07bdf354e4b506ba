package statecounts

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/sirupsen/logrus"
)

type S3Client interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Marker is the small JSON completion object written next to the
// unloaded result files once the query succeeds.
type Marker struct {
	SourceBucket     string `json:"source_bucket"`
	SourceKey        string `json:"source_key"`
	Date             string `json:"date"`
	QueryExecutionID string `json:"query_execution_id"`
	OutputPrefix     string `json:"output_prefix"`
	Status           string `json:"status"`
}

type Response struct {
	OK bool `json:"ok"`
}

// Handler reacts to S3 put notifications by running one UNLOAD per
// uploaded object. The source object is only ever read through the
// external table definition; all writes go under a derived,
// date-partitioned prefix.
type Handler struct {
	cfg    Config
	runner *Runner
	s3     S3Client
	ledger *Ledger
	log    *logrus.Logger
	now    func() time.Time
}

func NewHandler(cfg Config, athenaClient AthenaClient, s3Client S3Client, ledger *Ledger, log *logrus.Logger) *Handler {
	return &Handler{
		cfg:    cfg,
		runner: NewRunner(athenaClient),
		s3:     s3Client,
		ledger: ledger,
		log:    log,
		now:    time.Now,
	}
}

func (h *Handler) Handle(ctx context.Context, event events.S3Event) (Response, error) {
	if len(event.Records) == 0 {
		h.log.Info("no records in event; nothing to do")
		return Response{OK: true}, nil
	}

	for _, rec := range event.Records {
		if rec.EventSource != "aws:s3" {
			continue
		}
		srcBucket := rec.S3.Bucket.Name
		srcKey, err := url.QueryUnescape(rec.S3.Object.Key)
		if err != nil {
			srcKey = rec.S3.Object.Key
		}
		if err := h.processUpload(ctx, srcBucket, srcKey); err != nil {
			return Response{}, err
		}
	}
	return Response{OK: true}, nil
}

func (h *Handler) processUpload(ctx context.Context, srcBucket, srcKey string) error {
	today := h.now().UTC()
	todayStr := today.Format("2006-01-02")

	sql := BuildUnloadSQL(h.cfg, today)
	outputPrefix := ResultsPrefixForObject(h.cfg.ResultsPrefix, srcBucket, srcKey, today)
	token := IdempotencyToken(srcBucket, srcKey, sql)

	log := h.log.WithFields(logrus.Fields{
		"source_bucket": srcBucket,
		"source_key":    srcKey,
		"output_prefix": outputPrefix,
	})
	log.Info("triggered by upload")

	qid, resumed, err := h.resolveExecution(ctx, log, sql, token, outputPrefix)
	if err != nil {
		log.WithError(err).Error("query submission failed")
		return err
	}
	log = log.WithField("query_execution_id", qid)
	if resumed {
		log.Info("resuming poll of execution claimed by an earlier delivery")
	}

	state, err := h.runner.Poll(ctx, qid)
	if err != nil {
		if errors.Is(err, ErrPollBudgetExhausted) {
			log.WithError(err).Warn("exiting before the invocation deadline; retry resumes this execution")
			return err
		}
		log.WithError(err).Error("query did not succeed")
		return err
	}
	log.WithField("state", string(state)).Info("unload finished")

	if err := h.writeMarker(ctx, Marker{
		SourceBucket:     srcBucket,
		SourceKey:        srcKey,
		Date:             todayStr,
		QueryExecutionID: qid,
		OutputPrefix:     outputPrefix,
		Status:           string(state),
	}); err != nil {
		log.WithError(err).Error("marker write failed")
		return err
	}
	return nil
}

// resolveExecution returns the execution to poll: one previously
// claimed under this token when the ledger holds it, otherwise a fresh
// submission recorded back into the ledger. Ledger trouble degrades to
// a plain submission; the engine still dedups on the request token.
func (h *Handler) resolveExecution(ctx context.Context, log *logrus.Entry, sql, token, outputPrefix string) (qid string, resumed bool, err error) {
	if h.ledger.Enabled() {
		prior, lerr := h.ledger.Lookup(ctx, token)
		if lerr != nil {
			log.WithError(lerr).Warn("execution ledger lookup failed; submitting anyway")
		} else if prior != "" {
			return prior, true, nil
		}
	}

	qid, err = h.runner.Submit(ctx, sql, h.cfg.Database, h.cfg.Workgroup, outputPrefix, token)
	if err != nil {
		return "", false, err
	}

	if h.ledger.Enabled() {
		stored, lerr := h.ledger.Record(ctx, token, qid)
		if lerr != nil {
			log.WithError(lerr).Warn("execution ledger record failed")
		} else if stored != qid {
			return stored, true, nil
		}
	}
	return qid, false, nil
}

func (h *Handler) writeMarker(ctx context.Context, m Marker) error {
	bucket, keyPrefix, err := SplitS3URI(m.OutputPrefix)
	if err != nil {
		return err
	}
	body, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("marshal marker: %w", err)
	}
	_, err = h.s3.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(bucket),
		Key:         aws.String(keyPrefix + "marker.json"),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("s3 put marker: %w", err)
	}
	return nil
}
