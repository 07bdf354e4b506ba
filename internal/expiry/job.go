package expiry

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/sirupsen/logrus"
)

// S3Client is the slice of the S3 API the filter job touches.
type S3Client interface {
	s3.ListObjectsV2APIClient
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// FailureKind categorizes a per-object failure. All of them are
// recovered locally: the object counts as zero written and the batch
// moves on.
type FailureKind string

const (
	FailureRead   FailureKind = "read"
	FailureDecode FailureKind = "decode"
	FailureFormat FailureKind = "format"
	FailureWrite  FailureKind = "write"
)

// ObjectResult is the explicit per-object outcome the batch driver
// aggregates, instead of errors thrown across the loop boundary.
type ObjectResult struct {
	Key     string
	Written int
	Failure FailureKind
	Err     error
}

// Summary is what one job invocation reports back.
type Summary struct {
	FilesScanned   int `json:"files_scanned"`
	RecordsWritten int `json:"records_written"`
}

// Target pins a run to a single uploaded object.
type Target struct {
	Bucket string
	Key    string
}

// Job filters uploaded record files down to the ones with an
// accreditation expiring inside the configured window. Source objects
// are never touched; survivors go to a new object derived from the
// source's base name.
type Job struct {
	s3  S3Client
	cfg Config
	log *logrus.Logger
	now func() time.Time
}

func NewJob(client S3Client, cfg Config, log *logrus.Logger) *Job {
	return &Job{s3: client, cfg: cfg, log: log, now: time.Now}
}

// Run processes one target object (event path, using the event's
// actual bucket) or every object under the configured input prefix in
// the default bucket (bulk path). The window is recomputed from
// wall-clock today on every invocation.
func (j *Job) Run(ctx context.Context, target *Target) (Summary, error) {
	today := Today(j.now())
	threshold := Threshold(today, j.cfg.Months)

	var sum Summary
	if target != nil {
		sum.FilesScanned = 1
		res := j.processObject(ctx, target.Bucket, target.Key, threshold, today)
		j.logResult(res)
		sum.RecordsWritten = res.Written
	} else {
		err := j.forEachKey(ctx, j.cfg.Bucket, j.cfg.InputPrefix, func(key string) {
			sum.FilesScanned++
			res := j.processObject(ctx, j.cfg.Bucket, key, threshold, today)
			j.logResult(res)
			sum.RecordsWritten += res.Written
		})
		if err != nil {
			return sum, err
		}
	}

	j.log.WithFields(logrus.Fields{
		"files_scanned":   sum.FilesScanned,
		"records_written": sum.RecordsWritten,
	}).Info("filter job done")
	return sum, nil
}

// forEachKey walks the prefix with the list paginator, skipping
// pseudo-directory markers.
func (j *Job) forEachKey(ctx context.Context, bucket, prefix string, fn func(key string)) error {
	p := s3.NewListObjectsV2Paginator(j.s3, &s3.ListObjectsV2Input{
		Bucket: aws.String(bucket),
		Prefix: aws.String(prefix),
	})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return fmt.Errorf("list s3://%s/%s: %w", bucket, prefix, err)
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			if strings.HasSuffix(key, "/") {
				continue
			}
			fn(key)
		}
	}
	return nil
}

func (j *Job) processObject(ctx context.Context, bucket, key string, threshold, today time.Time) ObjectResult {
	res := ObjectResult{Key: key}

	out, err := j.s3.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		res.Failure, res.Err = FailureRead, fmt.Errorf("get s3://%s/%s: %w", bucket, key, err)
		return res
	}
	body, err := io.ReadAll(out.Body)
	out.Body.Close()
	if err != nil {
		res.Failure, res.Err = FailureRead, fmt.Errorf("read s3://%s/%s: %w", bucket, key, err)
		return res
	}
	if !utf8.Valid(body) {
		res.Failure, res.Err = FailureDecode, fmt.Errorf("s3://%s/%s is not valid UTF-8", bucket, key)
		return res
	}

	records, err := DetectRecords(string(body))
	if err != nil {
		res.Failure, res.Err = FailureFormat, fmt.Errorf("s3://%s/%s: %w", bucket, key, err)
		return res
	}

	var filtered []Record
	for _, rec := range records {
		if ExpiresWithin(rec, threshold, today) {
			filtered = append(filtered, rec)
		}
	}
	if len(filtered) == 0 {
		j.log.WithField("key", key).Info("no expiring records")
		return res
	}

	payload, err := encodeNDJSON(filtered)
	if err != nil {
		res.Failure, res.Err = FailureWrite, fmt.Errorf("encode s3://%s/%s: %w", bucket, key, err)
		return res
	}
	outKey := OutputKey(j.cfg.OutputPrefix, key)

	_, err = j.s3.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(bucket),
		Key:         aws.String(outKey),
		Body:        bytes.NewReader(payload),
		ContentType: aws.String("application/x-ndjson"),
	})
	if err != nil {
		res.Failure, res.Err = FailureWrite, fmt.Errorf("put s3://%s/%s: %w", bucket, outKey, err)
		return res
	}

	res.Written = len(filtered)
	j.log.WithFields(logrus.Fields{
		"key":     key,
		"out_key": outKey,
		"written": res.Written,
	}).Info("wrote filtered records")
	return res
}

func (j *Job) logResult(res ObjectResult) {
	if res.Err != nil {
		j.log.WithFields(logrus.Fields{
			"key":     res.Key,
			"failure": string(res.Failure),
		}).WithError(res.Err).Error("object skipped")
	}
}

// OutputKey derives the deterministic destination for one source
// object: {out_prefix}/{basename without extension}_filtered.ndjson.
func OutputKey(outPrefix, srcKey string) string {
	base := path.Base(srcKey)
	if i := strings.LastIndex(base, "."); i >= 0 {
		base = base[:i]
	}
	return strings.TrimRight(outPrefix, "/") + "/" + base + "_filtered.ndjson"
}

func encodeNDJSON(recs []Record) ([]byte, error) {
	var buf bytes.Buffer
	for i, rec := range recs {
		b, err := json.Marshal(rec)
		if err != nil {
			return nil, err
		}
		if i > 0 {
			buf.WriteByte('\n')
		}
		buf.Write(b)
	}
	return buf.Bytes(), nil
}
