package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"iot-tier-pipeline/src/storage"
	"iot-tier-pipeline/src/types"
)

const bucket = "data-lake"

type failingStore struct{ storage.Store }

func (failingStore) List(context.Context, string, string) ([]storage.ObjectInfo, error) {
	return nil, errors.New("listing denied")
}

func seed(t *testing.T) *storage.MemoryStore {
	t.Helper()

	store := storage.NewMemoryStore()
	tick := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	store.SetClock(func() time.Time {
		tick = tick.Add(time.Minute)
		return tick
	})

	ctx := context.Background()
	put := func(key, body string) {
		require.NoError(t, store.Put(ctx, bucket, key, []byte(body), types.ContentTypeCSV))
	}

	put("bronze/.keep", "")
	put("bronze/lote_1.csv", "device_id,value\nDEV-1,1\n")
	put("gold/lote_1.csv", "device_id,total_readings\r\nDEV-1,1\r\n")
	put("gold/lote_2.csv", "device_id,total_readings\r\nDEV-2,4\r\nDEV-3,2\r\n")
	put("gold/notes.txt", "later")

	return store
}

func get(t *testing.T, h *Handler, routeKey string) (events.APIGatewayV2HTTPResponse, map[string]any) {
	t.Helper()

	resp, err := h.HandleHTTP(context.Background(), events.APIGatewayV2HTTPRequest{RouteKey: routeKey})
	require.NoError(t, err)

	var body map[string]any
	require.NoError(t, json.Unmarshal([]byte(resp.Body), &body))
	return resp, body
}

func TestTierStatus(t *testing.T) {
	report, err := TierStatus(context.Background(), seed(t), bucket)
	require.NoError(t, err)

	require.Len(t, report.Tiers, 4)

	bronze := report.Tiers[0]
	assert.Equal(t, types.TierBronze, bronze.Tier)
	assert.Equal(t, 1, bronze.Files)
	assert.Equal(t, "bronze/lote_1.csv", bronze.Latest.Key)

	gold := report.Tiers[2]
	assert.Equal(t, 3, gold.Files)
	assert.Equal(t, "gold/notes.txt", gold.Latest.Key)

	assert.Equal(t, 0, report.Tiers[1].Files)
	assert.Nil(t, report.Tiers[1].Latest)
	assert.Zero(t, report.Tiers[3].TotalBytes)
}

func TestLatestTableSkipsNonTabularObjects(t *testing.T) {
	table, err := LatestTable(context.Background(), seed(t), bucket, types.TierGold)
	require.NoError(t, err)

	assert.Equal(t, "gold/lote_2.csv", table.File)
	assert.Equal(t, []string{"device_id", "total_readings"}, table.Columns)
	assert.Equal(t, []map[string]string{
		{"device_id": "DEV-2", "total_readings": "4"},
		{"device_id": "DEV-3", "total_readings": "2"},
	}, table.Rows)

	_, err = LatestTable(context.Background(), seed(t), bucket, types.TierAnomalies)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestHandleHTTPRoutes(t *testing.T) {
	h := NewHandler(seed(t), bucket)

	resp, body := get(t, h, "GET /status")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, bucket, body["bucket"])
	assert.Equal(t, "*", resp.Headers["Access-Control-Allow-Origin"])

	resp, body = get(t, h, "GET /gold/latest")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "gold/lote_2.csv", body["file"])

	resp, _ = get(t, h, "GET /anomalies/latest")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = get(t, h, "GET /history")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHandleHTTPDefaultRoute(t *testing.T) {
	h := NewHandler(seed(t), bucket)

	req := events.APIGatewayV2HTTPRequest{RouteKey: "$default", RawPath: "/status"}
	req.RequestContext.HTTP.Method = http.MethodGet

	resp, err := h.HandleHTTP(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestHandleHTTPStoreFailure(t *testing.T) {
	h := NewHandler(failingStore{}, bucket)

	resp, body := get(t, h, "GET /status")
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Contains(t, body["error"], "listing denied")
}
