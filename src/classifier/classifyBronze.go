package classifier

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"iot-tier-pipeline/src/csvcodec"
	"iot-tier-pipeline/src/metrics"
	"iot-tier-pipeline/src/storage"
	"iot-tier-pipeline/src/types"
	"iot-tier-pipeline/src/utils"
)

const StageName = "Classifier"

// Stage splits a bronze object into its silver and anomalies partitions.
type Stage struct {
	Store     storage.Store
	Metrics   metrics.Emitter
	Namespace string
	Threshold float64

	now func() time.Time
}

func New(store storage.Store, emitter metrics.Emitter, namespace string, threshold float64) *Stage {
	return &Stage{
		Store:     store,
		Metrics:   emitter,
		Namespace: namespace,
		Threshold: threshold,
		now:       time.Now,
	}
}

// Partition routes every record to exactly one of normal/anomalies by its
// zero-filled anomaly score.
func Partition(records []csvcodec.Record, threshold float64) (normal, anomalies []csvcodec.Record) {
	normal = make([]csvcodec.Record, 0, len(records))

	for _, record := range records {
		score := csvcodec.ToReading(record).AnomalyScore.ZeroFilled()

		if utils.IsAnomaly(score, threshold) {
			anomalies = append(anomalies, record)
		} else {
			normal = append(normal, record)
		}
	}

	return normal, anomalies
}

// Process classifies one bronze object. Failures are reported in the
// result and as a ProcessingErrors metric, never returned.
func (s *Stage) Process(ctx context.Context, bucket, key string) (result types.ClassifyResult) {
	defer func() {
		if r := recover(); r != nil {
			result = s.fail(ctx, key, fmt.Errorf("panic: %v", r))
		}
	}()

	if !utils.HasTabularExtension(key) || !utils.IsBronzeKey(key) {
		log.Printf("[classifier] ignoring s3://%s/%s: not a bronze %s object", bucket, key, types.TabularExtension)
		return types.ClassifyResult{
			StatusCode: http.StatusOK,
			File:       key,
			Ignored:    true,
			Message:    "not a bronze csv object",
		}
	}

	out, err := s.run(ctx, bucket, key)
	if err != nil {
		return s.fail(ctx, key, err)
	}

	return out
}

func (s *Stage) run(ctx context.Context, bucket, key string) (types.ClassifyResult, error) {
	start := s.clock()

	body, err := s.Store.Get(ctx, bucket, key)
	if err != nil {
		return types.ClassifyResult{}, fmt.Errorf("failed to read bronze object: %w", err)
	}

	columns, records, err := csvcodec.Decode(body)
	if err != nil {
		return types.ClassifyResult{}, fmt.Errorf("failed to decode bronze object: %w", err)
	}

	if len(columns) == 0 {
		columns = types.ReadingColumns
	}

	log.Printf("[classifier] s3://%s/%s rows=%d", bucket, key, len(records))

	normal, anomalies := Partition(records, s.Threshold)

	total := len(records)
	anomalyPct := utils.Percentage(len(anomalies), total)

	silverKey := utils.DeriveKey(key, types.TierBronze, types.TierSilver)
	if err := s.write(ctx, bucket, silverKey, columns, normal); err != nil {
		return types.ClassifyResult{}, err
	}
	log.Printf("[classifier] silver written: s3://%s/%s rows=%d", bucket, silverKey, len(normal))

	var anomaliesKey string
	if len(anomalies) > 0 {
		anomaliesKey = utils.DeriveKey(key, types.TierBronze, types.TierAnomalies)
		if err := s.write(ctx, bucket, anomaliesKey, columns, anomalies); err != nil {
			return types.ClassifyResult{}, err
		}
		log.Printf("[classifier] anomalies written: s3://%s/%s rows=%d", bucket, anomaliesKey, len(anomalies))
	}

	elapsed := s.clock().Sub(start)

	data := []metrics.Datum{
		{Name: "RowsProcessed", Value: float64(total), Unit: metrics.UnitCount},
		{Name: "NormalRows", Value: float64(len(normal)), Unit: metrics.UnitCount},
		{Name: "AnomalyRows", Value: float64(len(anomalies)), Unit: metrics.UnitCount},
		{Name: "AnomalyPercentage", Value: anomalyPct, Unit: metrics.UnitPercent},
		{Name: "ProcessingDuration", Value: elapsed.Seconds(), Unit: metrics.UnitSeconds},
		{Name: "Throughput", Value: utils.GetThroughput(total, elapsed), Unit: metrics.UnitCountPerSecond},
		{Name: "SilverFilesCreated", Value: 1, Unit: metrics.UnitCount},
	}
	if anomaliesKey != "" {
		data = append(data, metrics.Datum{Name: "AnomalyFilesCreated", Value: 1, Unit: metrics.UnitCount})
	}
	metrics.Report(ctx, s.Metrics, s.Namespace, data)

	return types.ClassifyResult{
		StatusCode:        http.StatusOK,
		File:              key,
		TotalRows:         total,
		NormalRows:        len(normal),
		AnomalyRows:       len(anomalies),
		AnomalyPercentage: anomalyPct,
		SilverKey:         silverKey,
		AnomaliesKey:      anomaliesKey,
		ProcessingTime:    elapsed.Seconds(),
	}, nil
}

func (s *Stage) clock() time.Time {
	if s.now == nil {
		return time.Now()
	}
	return s.now()
}

func (s *Stage) write(ctx context.Context, bucket, key string, columns []string, records []csvcodec.Record) error {
	body, err := csvcodec.Encode(columns, records)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", key, err)
	}

	if err := s.Store.Put(ctx, bucket, key, body, types.ContentTypeCSV); err != nil {
		return fmt.Errorf("failed to write %s: %w", key, err)
	}

	return nil
}

func (s *Stage) fail(ctx context.Context, key string, err error) types.ClassifyResult {
	log.Printf("[classifier] error processing %s: %v", key, err)

	metrics.Report(ctx, s.Metrics, s.Namespace, []metrics.Datum{
		{Name: "ProcessingErrors", Value: 1, Unit: metrics.UnitCount},
	})

	return types.ClassifyResult{
		StatusCode: http.StatusInternalServerError,
		File:       key,
		Error:      err.Error(),
	}
}
