package expiry

import (
	"context"
	"net/url"

	"github.com/aws/aws-lambda-go/events"
	"github.com/sirupsen/logrus"
)

// Handler adapts the filter job to Lambda: an S3 put notification
// processes just that object, an empty event sweeps the whole input
// prefix.
type Handler struct {
	job *Job
	log *logrus.Logger
}

func NewHandler(job *Job, log *logrus.Logger) *Handler {
	return &Handler{job: job, log: log}
}

func (h *Handler) Handle(ctx context.Context, event events.S3Event) (Summary, error) {
	if len(event.Records) == 0 {
		h.log.Info("no records in event; sweeping input prefix")
		return h.job.Run(ctx, nil)
	}

	var total Summary
	for _, rec := range event.Records {
		if rec.EventSource != "aws:s3" {
			continue
		}
		key, err := url.QueryUnescape(rec.S3.Object.Key)
		if err != nil {
			key = rec.S3.Object.Key
		}
		h.log.WithFields(logrus.Fields{
			"bucket": rec.S3.Bucket.Name,
			"key":    key,
		}).Info("triggered by upload")

		sum, err := h.job.Run(ctx, &Target{Bucket: rec.S3.Bucket.Name, Key: key})
		if err != nil {
			return total, err
		}
		total.FilesScanned += sum.FilesScanned
		total.RecordsWritten += sum.RecordsWritten
	}
	return total, nil
}
