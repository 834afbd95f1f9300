package trigger

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/url"

	"github.com/aws/aws-lambda-go/events"

	"iot-tier-pipeline/src/types"
)

var ErrUnknownEvent = errors.New("unknown event type")

// minioEvent is the S3 notification document, optionally wrapped the way
// MinIO's webhook/AMQP/MQTT targets deliver it.
type minioEvent struct {
	EventName string                 `json:"EventName"`
	Key       string                 `json:"Key"`
	Records   []events.S3EventRecord `json:"Records"`
}

// ParseNotifications extracts every bucket/key pair from an S3 event
// notification document.
func ParseNotifications(payload []byte) ([]types.Notification, error) {
	var event minioEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnknownEvent, err)
	}

	if len(event.Records) == 0 {
		return nil, fmt.Errorf("%w: no records", ErrUnknownEvent)
	}

	return FromS3Event(events.S3Event{Records: event.Records}), nil
}

// FromS3Event lists the notifications of an S3 event with URL-decoded keys.
// Records without a bucket or key are dropped.
func FromS3Event(event events.S3Event) []types.Notification {
	notifications := make([]types.Notification, 0, len(event.Records))

	for _, record := range event.Records {
		bucket := record.S3.Bucket.Name
		key := DecodeKey(record.S3.Object.Key)

		if bucket == "" || key == "" {
			log.Printf("[trigger] dropping record without bucket or key: event=%s", record.EventName)
			continue
		}

		notifications = append(notifications, types.Notification{Bucket: bucket, Key: key})
	}

	return notifications
}

// DecodeKey undoes the form encoding of notification keys ("+" is a space).
// The raw key is returned when it is not valid encoding.
func DecodeKey(raw string) string {
	decoded, err := url.QueryUnescape(raw)
	if err != nil {
		return raw
	}
	return decoded
}
