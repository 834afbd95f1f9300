package aggregator

import (
	"context"
	"fmt"
	"log"
	"math"
	"net/http"
	"strconv"
	"time"

	"iot-tier-pipeline/src/csvcodec"
	"iot-tier-pipeline/src/metrics"
	"iot-tier-pipeline/src/storage"
	"iot-tier-pipeline/src/types"
	"iot-tier-pipeline/src/utils"
)

const StageName = "Aggregator"

type deviceStats struct {
	count        int
	totalValue   float64
	minValue     float64
	maxValue     float64
	anomalyCount int
}

// Summary is the outcome of grouping one silver table.
type Summary struct {
	Devices        []types.DeviceAggregate
	RowsSkipped    int
	TotalReadings  int
	TotalAnomalies int
}

// Aggregate groups records by device in order of first appearance. Rows
// whose value or anomaly_score is present but unparseable are skipped.
func Aggregate(records []csvcodec.Record, threshold float64) Summary {
	order := make([]string, 0)
	stats := make(map[string]*deviceStats)

	var summary Summary

	for _, record := range records {
		reading := csvcodec.ToReading(record)
		deviceID := reading.DeviceKey()

		st, ok := stats[deviceID]
		if !ok {
			st = &deviceStats{
				minValue: math.Inf(1),
				maxValue: math.Inf(-1),
			}
			stats[deviceID] = st
			order = append(order, deviceID)
		}

		value, valueOK := reading.Value.Aggregatable()
		score, scoreOK := reading.AnomalyScore.Aggregatable()
		if !valueOK || !scoreOK {
			summary.RowsSkipped++
			continue
		}

		st.count++
		st.totalValue += value
		st.minValue = math.Min(st.minValue, value)
		st.maxValue = math.Max(st.maxValue, value)

		if utils.IsAnomaly(score, threshold) {
			st.anomalyCount++
		}
	}

	for _, deviceID := range order {
		st := stats[deviceID]
		if st.count == 0 {
			continue
		}

		summary.Devices = append(summary.Devices, types.DeviceAggregate{
			DeviceID:          deviceID,
			TotalReadings:     st.count,
			AvgValue:          utils.Round(utils.Mean(st.totalValue, st.count), 3),
			MinValue:          utils.Round(st.minValue, 3),
			MaxValue:          utils.Round(st.maxValue, 3),
			AnomalyCount:      st.anomalyCount,
			AnomalyPercentage: utils.Round(utils.Percentage(st.anomalyCount, st.count), 2),
		})
		summary.TotalReadings += st.count
		summary.TotalAnomalies += st.anomalyCount
	}

	return summary
}

// ToRecords renders aggregates as gold-tier rows.
func ToRecords(devices []types.DeviceAggregate) []csvcodec.Record {
	records := make([]csvcodec.Record, 0, len(devices))

	for _, d := range devices {
		records = append(records, csvcodec.NewRecord(types.AggregateColumns, []string{
			d.DeviceID,
			strconv.Itoa(d.TotalReadings),
			utils.FormatFloat(d.AvgValue),
			utils.FormatFloat(d.MinValue),
			utils.FormatFloat(d.MaxValue),
			strconv.Itoa(d.AnomalyCount),
			utils.FormatFloat(d.AnomalyPercentage),
		}))
	}

	return records
}

// Stage turns one silver object into its per-device gold summary.
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

// Process aggregates one silver object. Failures are reported in the
// result and as a ProcessingErrors metric, never returned.
func (s *Stage) Process(ctx context.Context, bucket, key string) (result types.AggregateResult) {
	defer func() {
		if r := recover(); r != nil {
			result = s.fail(ctx, key, fmt.Errorf("panic: %v", r))
		}
	}()

	if !utils.IsSilverKey(key) || !utils.HasTabularExtension(key) {
		log.Printf("[aggregator] ignoring s3://%s/%s: not a silver %s object", bucket, key, types.TabularExtension)
		return types.AggregateResult{
			StatusCode: http.StatusOK,
			File:       key,
			Ignored:    true,
			Message:    "not a silver csv object",
		}
	}

	out, err := s.run(ctx, bucket, key)
	if err != nil {
		return s.fail(ctx, key, err)
	}

	return out
}

func (s *Stage) run(ctx context.Context, bucket, key string) (types.AggregateResult, error) {
	start := s.clock()

	body, err := s.Store.Get(ctx, bucket, key)
	if err != nil {
		return types.AggregateResult{}, fmt.Errorf("failed to read silver object: %w", err)
	}

	_, records, err := csvcodec.Decode(body)
	if err != nil {
		return types.AggregateResult{}, fmt.Errorf("failed to decode silver object: %w", err)
	}

	if len(records) == 0 {
		log.Printf("[aggregator] s3://%s/%s is empty, nothing to aggregate", bucket, key)
		return types.AggregateResult{
			StatusCode: http.StatusOK,
			File:       key,
			Ignored:    true,
			Message:    "empty silver table",
		}, nil
	}

	summary := Aggregate(records, s.Threshold)

	output, err := csvcodec.Encode(types.AggregateColumns, ToRecords(summary.Devices))
	if err != nil {
		return types.AggregateResult{}, fmt.Errorf("failed to encode gold table: %w", err)
	}

	goldKey := utils.DeriveKey(key, types.TierSilver, types.TierGold)
	if err := s.Store.Put(ctx, bucket, goldKey, output, types.ContentTypeCSV); err != nil {
		return types.AggregateResult{}, fmt.Errorf("failed to write %s: %w", goldKey, err)
	}

	elapsed := s.clock().Sub(start)
	anomalyPct := utils.Percentage(summary.TotalAnomalies, summary.TotalReadings)

	log.Printf("[aggregator] gold written: s3://%s/%s devices=%d rows=%d skipped=%d",
		bucket, goldKey, len(summary.Devices), len(records), summary.RowsSkipped)

	metrics.Report(ctx, s.Metrics, s.Namespace, []metrics.Datum{
		{Name: "RowsProcessed", Value: float64(len(records)), Unit: metrics.UnitCount},
		{Name: "DevicesProcessed", Value: float64(len(summary.Devices)), Unit: metrics.UnitCount},
		{Name: "TotalAnomalies", Value: float64(summary.TotalAnomalies), Unit: metrics.UnitCount},
		{Name: "AnomalyPercentage", Value: anomalyPct, Unit: metrics.UnitPercent},
		{Name: "OutputFileSize", Value: float64(len(output)), Unit: metrics.UnitBytes},
		{Name: "ProcessingDuration", Value: elapsed.Seconds(), Unit: metrics.UnitSeconds},
		{Name: "Throughput", Value: utils.GetThroughput(len(records), elapsed), Unit: metrics.UnitCountPerSecond},
		{Name: "GoldFilesCreated", Value: 1, Unit: metrics.UnitCount},
	})

	return types.AggregateResult{
		StatusCode:        http.StatusOK,
		File:              key,
		RowsProcessed:     len(records),
		RowsSkipped:       summary.RowsSkipped,
		DevicesProcessed:  len(summary.Devices),
		TotalAnomalies:    summary.TotalAnomalies,
		AnomalyPercentage: anomalyPct,
		GoldKey:           goldKey,
		OutputFileSize:    len(output),
		ProcessingTime:    elapsed.Seconds(),
	}, nil
}

func (s *Stage) clock() time.Time {
	if s.now == nil {
		return time.Now()
	}
	return s.now()
}

func (s *Stage) fail(ctx context.Context, key string, err error) types.AggregateResult {
	log.Printf("[aggregator] error processing %s: %v", key, err)

	metrics.Report(ctx, s.Metrics, s.Namespace, []metrics.Datum{
		{Name: "ProcessingErrors", Value: 1, Unit: metrics.UnitCount},
	})

	return types.AggregateResult{
		StatusCode: http.StatusInternalServerError,
		File:       key,
		Error:      err.Error(),
	}
}
