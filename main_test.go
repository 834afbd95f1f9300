package main

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/aws/aws-lambda-go/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"iot-tier-pipeline/src/config"
	"iot-tier-pipeline/src/metrics"
	"iot-tier-pipeline/src/pipeline"
	"iot-tier-pipeline/src/storage"
	"iot-tier-pipeline/src/trigger"
	"iot-tier-pipeline/src/types"
)

func TestHandlerDispatchesByEventType(t *testing.T) {
	ctx := context.Background()

	cfg := config.Default()
	cfg.Storage.Backend = config.StorageMemory
	cfg.Storage.Bucket = "data-lake"
	store := storage.NewMemoryStore()
	h := handler(pipeline.Assemble(cfg, store, metrics.NopEmitter{}))

	require.NoError(t, store.Put(ctx, "data-lake", "bronze/a.csv", []byte("device_id,anomaly_score\nD,0.2\n"), types.ContentTypeCSV))

	s3Event := `{"Records":[{"eventSource":"aws:s3","s3":{"bucket":{"name":"data-lake"},"object":{"key":"bronze/a.csv"}}}]}`
	out, err := h(ctx, json.RawMessage(s3Event))
	require.NoError(t, err)
	batch, ok := out.(types.BatchResult)
	require.True(t, ok)
	assert.Equal(t, 1, batch.Processed)
	assert.True(t, store.Has("data-lake", "silver/a.csv"))

	out, err = h(ctx, json.RawMessage(`{"version":"2.0","routeKey":"GET /status"}`))
	require.NoError(t, err)
	resp, ok := out.(events.APIGatewayV2HTTPResponse)
	require.True(t, ok)
	assert.Equal(t, 200, resp.StatusCode)

	_, err = h(ctx, json.RawMessage(`{"detail-type":"Scheduled Event"}`))
	assert.ErrorIs(t, err, trigger.ErrUnknownEvent)
}
