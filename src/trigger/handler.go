package trigger

import (
	"context"
	"log"
	"net/http"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambdacontext"
	"github.com/google/uuid"

	"iot-tier-pipeline/src/config"
	"iot-tier-pipeline/src/types"
	"iot-tier-pipeline/src/utils"
)

const stageNone = "none"

type Classifier interface {
	Process(ctx context.Context, bucket, key string) types.ClassifyResult
}

type Aggregator interface {
	Process(ctx context.Context, bucket, key string) types.AggregateResult
}

// Handler routes object-arrival notifications to the stage owning their tier.
type Handler struct {
	Classifier Classifier
	Aggregator Aggregator
	// Stage pins every notification to one stage; config.StageAuto routes
	// by key.
	Stage string
}

func NewHandler(classifier Classifier, aggregator Aggregator, stage string) *Handler {
	return &Handler{Classifier: classifier, Aggregator: aggregator, Stage: stage}
}

// Route names the stage a key is dispatched to, or "none".
func (h *Handler) Route(key string) string {
	switch h.Stage {
	case config.StageClassifier:
		return config.StageClassifier
	case config.StageAggregator:
		return config.StageAggregator
	}

	switch {
	case utils.IsSilverKey(key):
		return config.StageAggregator
	case utils.IsBronzeKey(key):
		return config.StageClassifier
	default:
		return stageNone
	}
}

// Handle processes every record of an S3 event.
func (h *Handler) Handle(ctx context.Context, event events.S3Event) types.BatchResult {
	return h.HandleNotifications(ctx, FromS3Event(event))
}

// HandlePayload parses a raw notification document and processes it.
func (h *Handler) HandlePayload(ctx context.Context, payload []byte) (types.BatchResult, error) {
	notifications, err := ParseNotifications(payload)
	if err != nil {
		return types.BatchResult{}, err
	}
	return h.HandleNotifications(ctx, notifications), nil
}

// HandleNotifications processes notifications sequentially. A failing
// notification never stops the ones after it.
func (h *Handler) HandleNotifications(ctx context.Context, notifications []types.Notification) types.BatchResult {
	batch := types.BatchResult{
		RequestID: requestID(ctx),
		Results:   make([]types.NotificationResult, 0, len(notifications)),
	}

	for _, n := range notifications {
		result := h.dispatch(ctx, n)

		var ignored bool
		switch {
		case result.Classify != nil:
			ignored = result.Classify.Ignored
		case result.Aggregate != nil:
			ignored = result.Aggregate.Ignored
		default:
			ignored = true
		}

		switch {
		case result.StatusCode >= http.StatusBadRequest:
			batch.Failed++
		case ignored:
			batch.Ignored++
		default:
			batch.Processed++
		}

		log.Printf("[trigger] request=%s bucket=%s key=%s stage=%s status=%d",
			batch.RequestID, n.Bucket, n.Key, result.Stage, result.StatusCode)

		batch.Results = append(batch.Results, result)
	}

	log.Printf("[trigger] request=%s notifications=%d processed=%d ignored=%d failed=%d",
		batch.RequestID, len(notifications), batch.Processed, batch.Ignored, batch.Failed)

	return batch
}

func (h *Handler) dispatch(ctx context.Context, n types.Notification) types.NotificationResult {
	result := types.NotificationResult{
		Bucket: n.Bucket,
		Key:    n.Key,
		Stage:  h.Route(n.Key),
	}

	switch result.Stage {
	case config.StageClassifier:
		out := h.Classifier.Process(ctx, n.Bucket, n.Key)
		result.Classify = &out
		result.StatusCode = out.StatusCode
	case config.StageAggregator:
		out := h.Aggregator.Process(ctx, n.Bucket, n.Key)
		result.Aggregate = &out
		result.StatusCode = out.StatusCode
	default:
		result.StatusCode = http.StatusOK
	}

	return result
}

func requestID(ctx context.Context) string {
	if lc, ok := lambdacontext.FromContext(ctx); ok && lc.AwsRequestID != "" {
		return lc.AwsRequestID
	}
	return uuid.NewString()
}
