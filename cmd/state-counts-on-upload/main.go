package main

import (
	"context"
	"log"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/athena"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/glue"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/sirupsen/logrus"

	"accreditation-pipeline/internal/statecounts"
)

func main() {
	ctx := context.Background()

	cfg, err := statecounts.ConfigFromEnv()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	awsCfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		log.Fatalf("load aws config: %v", err)
	}

	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	// Cold-start sanity check on the external table. IAM may deny
	// glue:GetTable in some deployments, so failure only warns.
	if loc, err := statecounts.DescribeTable(ctx, glue.NewFromConfig(awsCfg), cfg.Database, cfg.Table); err != nil {
		logger.WithError(err).Warnf("could not describe %s.%s in the glue catalog", cfg.Database, cfg.Table)
	} else if loc != "" {
		logger.WithField("location", loc).Infof("external table %s.%s resolved", cfg.Database, cfg.Table)
	}

	var ledger *statecounts.Ledger
	if cfg.LedgerTable != "" {
		ledger = statecounts.NewLedger(dynamodb.NewFromConfig(awsCfg), cfg.LedgerTable)
	}

	h := statecounts.NewHandler(cfg, athena.NewFromConfig(awsCfg), s3.NewFromConfig(awsCfg), ledger, logger)
	lambda.Start(h.Handle)
}
