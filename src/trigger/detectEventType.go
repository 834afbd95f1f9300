package trigger

import (
	"encoding/json"
	"strings"

	"github.com/aws/aws-lambda-go/events"
)

type EventType string

const (
	EventS3   EventType = "s3"
	EventHTTP EventType = "http"
)

func DetectEventType(event json.RawMessage) (EventType, error) {
	// S3 notification, delivered by AWS or a MinIO target
	var s3Event events.S3Event
	if err := json.Unmarshal(event, &s3Event); err == nil {
		if len(s3Event.Records) > 0 && strings.HasSuffix(s3Event.Records[0].EventSource, ":s3") {
			return EventS3, nil
		}
	}

	// API Gateway HTTP API (payload format 2.0)
	var httpEvent events.APIGatewayV2HTTPRequest
	if err := json.Unmarshal(event, &httpEvent); err == nil {
		if httpEvent.RouteKey != "" || httpEvent.RequestContext.HTTP.Method != "" {
			return EventHTTP, nil
		}
	}

	return "", ErrUnknownEvent
}
