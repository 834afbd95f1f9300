package api

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/aws/aws-lambda-go/events"

	"iot-tier-pipeline/src/storage"
	"iot-tier-pipeline/src/types"
)

var corsHeaders = map[string]string{
	"Content-Type":                 "application/json",
	"Access-Control-Allow-Origin":  "*",
	"Access-Control-Allow-Methods": "GET, OPTIONS",
	"Access-Control-Allow-Headers": "Content-Type",
}

// Handler serves the read-only tier API.
type Handler struct {
	Store  storage.Store
	Bucket string
}

func NewHandler(store storage.Store, bucket string) *Handler {
	return &Handler{Store: store, Bucket: bucket}
}

func (h *Handler) HandleHTTP(ctx context.Context, req events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error) {
	routeKey := req.RouteKey
	if routeKey == "" || routeKey == "$default" {
		routeKey = req.RequestContext.HTTP.Method + " " + req.RawPath
	}

	switch routeKey {
	case "GET /status":
		report, err := TierStatus(ctx, h.Store, h.Bucket)
		if err != nil {
			return h.failure(err), nil
		}
		return respond(http.StatusOK, report), nil

	case "GET /gold/latest":
		return h.latest(ctx, types.TierGold), nil

	case "GET /anomalies/latest":
		return h.latest(ctx, types.TierAnomalies), nil

	default:
		return respond(http.StatusNotFound, map[string]string{"error": "Not Found"}), nil
	}
}

func (h *Handler) latest(ctx context.Context, tier string) events.APIGatewayV2HTTPResponse {
	table, err := LatestTable(ctx, h.Store, h.Bucket, tier)
	if err != nil {
		return h.failure(err)
	}
	return respond(http.StatusOK, table)
}

func (h *Handler) failure(err error) events.APIGatewayV2HTTPResponse {
	if errors.Is(err, storage.ErrNotFound) {
		return respond(http.StatusNotFound, map[string]string{"error": err.Error()})
	}

	log.Printf("[api] error: %v", err)
	return respond(http.StatusInternalServerError, map[string]string{"error": err.Error()})
}

func respond(status int, payload any) events.APIGatewayV2HTTPResponse {
	body, err := json.Marshal(payload)
	if err != nil {
		status = http.StatusInternalServerError
		body = []byte(`{"error":"failed to encode response"}`)
	}

	return events.APIGatewayV2HTTPResponse{
		StatusCode: status,
		Headers:    corsHeaders,
		Body:       string(body),
	}
}
