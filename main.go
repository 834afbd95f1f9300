package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"

	"iot-tier-pipeline/src/config"
	"iot-tier-pipeline/src/pipeline"
	"iot-tier-pipeline/src/trigger"
)

// Determine which handler to run based on event type
func handler(p *pipeline.Pipeline) func(ctx context.Context, event json.RawMessage) (interface{}, error) {
	return func(ctx context.Context, event json.RawMessage) (interface{}, error) {
		eventType, err := trigger.DetectEventType(event)
		if err != nil {
			log.Printf("Error detecting event type: %v", err)
			return nil, err
		}

		switch eventType {
		case trigger.EventS3:
			var s3Event events.S3Event
			if err := json.Unmarshal(event, &s3Event); err != nil {
				return nil, fmt.Errorf("error unmarshalling S3 event: %w", err)
			}
			// Stage failures are reported in the batch result, never as an
			// invocation error.
			return p.Trigger.Handle(ctx, s3Event), nil

		case trigger.EventHTTP:
			var httpEvent events.APIGatewayV2HTTPRequest
			if err := json.Unmarshal(event, &httpEvent); err != nil {
				return nil, fmt.Errorf("error unmarshalling HTTP event: %w", err)
			}
			return p.API.HandleHTTP(ctx, httpEvent)

		default:
			return nil, fmt.Errorf("unknown event type: %s", eventType)
		}
	}
}

func main() {
	cfg, err := config.Load(".")
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	p, err := pipeline.New(context.Background(), cfg)
	if err != nil {
		log.Fatalf("Failed to build pipeline: %v", err)
	}

	log.Printf("Pipeline ready: stage=%s storage=%s metrics=%s", cfg.Pipeline.Stage, cfg.Storage.Backend, cfg.Metrics.Backend)

	lambda.Start(handler(p))
}
