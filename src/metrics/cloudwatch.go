package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
)

// maxDatumsPerCall keeps each PutMetricData request inside the API limit.
const maxDatumsPerCall = 20

type PutMetricDataAPI interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

// CloudWatchEmitter publishes samples as CloudWatch custom metrics.
type CloudWatchEmitter struct {
	client PutMetricDataAPI
	now    func() time.Time
}

func NewCloudWatchClient(ctx context.Context, region string) (*cloudwatch.Client, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("unable to load AWS config: %w", err)
	}

	return cloudwatch.NewFromConfig(cfg), nil
}

func NewCloudWatchEmitter(client PutMetricDataAPI) *CloudWatchEmitter {
	return &CloudWatchEmitter{client: client, now: time.Now}
}

func (e *CloudWatchEmitter) Emit(ctx context.Context, namespace string, data []Datum) error {
	timestamp := e.now()

	for start := 0; start < len(data); start += maxDatumsPerCall {
		end := start + maxDatumsPerCall
		if end > len(data) {
			end = len(data)
		}

		datums := make([]types.MetricDatum, 0, end-start)
		for _, d := range data[start:end] {
			datums = append(datums, types.MetricDatum{
				MetricName: aws.String(d.Name),
				Value:      aws.Float64(d.Value),
				Unit:       types.StandardUnit(d.Unit),
				Timestamp:  aws.Time(timestamp),
			})
		}

		_, err := e.client.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
			Namespace:  aws.String(namespace),
			MetricData: datums,
		})
		if err != nil {
			return fmt.Errorf("failed to put metric data: %w", err)
		}
	}

	return nil
}
