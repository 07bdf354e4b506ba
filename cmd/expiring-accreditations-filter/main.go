package main

import (
	"context"
	"log"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/sirupsen/logrus"

	"accreditation-pipeline/internal/expiry"
)

func main() {
	ctx := context.Background()

	cfg, err := expiry.ConfigFromEnv()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	awsCfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		log.Fatalf("load aws config: %v", err)
	}

	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	job := expiry.NewJob(s3.NewFromConfig(awsCfg), cfg, logger)
	h := expiry.NewHandler(job, logger)
	lambda.Start(h.Handle)
}
