package aggregator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"iot-tier-pipeline/src/csvcodec"
	"iot-tier-pipeline/src/metrics"
	"iot-tier-pipeline/src/storage"
	"iot-tier-pipeline/src/types"
	"iot-tier-pipeline/src/utils"
)

const (
	bucket = "data-lake"
	header = "timestamp,device_id,device_type,location,value,unit,status,anomaly_score\n"
)

func row(device string, value, score string) string {
	return fmt.Sprintf("2025-01-01 10:00:00,%s,temperature_sensor,FABRICA-A,%s,°C,NORMAL,%s\n", device, value, score)
}

func newStage(t *testing.T) (*Stage, *storage.MemoryStore, *metrics.MemoryEmitter) {
	t.Helper()

	store := storage.NewMemoryStore()
	emitter := metrics.NewMemoryEmitter()
	stage := New(store, emitter, "IoTPipeline/Aggregator", utils.AnomalyThreshold)

	tick := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	stage.now = func() time.Time {
		tick = tick.Add(500 * time.Millisecond)
		return tick
	}

	return stage, store, emitter
}

func decode(t *testing.T, input string) []csvcodec.Record {
	t.Helper()
	_, records, err := csvcodec.Decode([]byte(input))
	require.NoError(t, err)
	return records
}

func TestProcessAggregatesPerDevice(t *testing.T) {
	stage, store, emitter := newStage(t)
	ctx := context.Background()

	input := header + row("DEV-1", "10", "0.1") + row("DEV-1", "20", "0.6") + row("DEV-2", "30", "0.2")
	require.NoError(t, store.Put(ctx, bucket, "silver/lote_1.csv", []byte(input), types.ContentTypeCSV))

	result := stage.Process(ctx, bucket, "silver/lote_1.csv")

	require.Equal(t, http.StatusOK, result.StatusCode, result.Error)
	assert.Equal(t, "gold/lote_1.csv", result.GoldKey)
	assert.Equal(t, 3, result.RowsProcessed)
	assert.Equal(t, 0, result.RowsSkipped)
	assert.Equal(t, 2, result.DevicesProcessed)
	assert.Equal(t, 1, result.TotalAnomalies)
	assert.Equal(t, 0.5, result.ProcessingTime)

	body, err := store.Get(ctx, bucket, "gold/lote_1.csv")
	require.NoError(t, err)
	assert.Equal(t,
		"device_id,total_readings,avg_value,min_value,max_value,anomaly_count,anomaly_percentage\r\n"+
			"DEV-1,2,15.0,10.0,20.0,1,50.0\r\n"+
			"DEV-2,1,30.0,30.0,30.0,0,0.0\r\n",
		string(body))
	assert.Equal(t, len(body), result.OutputFileSize)
	assert.Equal(t, types.ContentTypeCSV, store.ContentType(bucket, "gold/lote_1.csv"))

	v, _ := emitter.Value("DevicesProcessed")
	assert.Equal(t, 2.0, v)
	v, _ = emitter.Value("TotalAnomalies")
	assert.Equal(t, 1.0, v)
	v, _ = emitter.Value("OutputFileSize")
	assert.Equal(t, float64(len(body)), v)
	v, _ = emitter.Value("GoldFilesCreated")
	assert.Equal(t, 1.0, v)
	v, _ = emitter.Value("Throughput")
	assert.Equal(t, 6.0, v)
	assert.Equal(t, "IoTPipeline/Aggregator", emitter.Emissions()[0].Namespace)
}

func TestAggregateSkipsUnparseableRows(t *testing.T) {
	input := header +
		row("DEV-1", "abc", "0.1") +
		row("DEV-1", "10", "0.9") +
		row("DEV-2", "5", "high") +
		row("DEV-3", "7", "0.3")

	summary := Aggregate(decode(t, input), utils.AnomalyThreshold)

	assert.Equal(t, 2, summary.RowsSkipped)
	require.Len(t, summary.Devices, 2)
	assert.Equal(t, "DEV-1", summary.Devices[0].DeviceID)
	assert.Equal(t, 1, summary.Devices[0].TotalReadings)
	assert.Equal(t, 10.0, summary.Devices[0].MinValue)
	assert.Equal(t, 100.0, summary.Devices[0].AnomalyPercentage)
	assert.Equal(t, "DEV-3", summary.Devices[1].DeviceID)
}

func TestAggregateAbsentFieldsCountAsZero(t *testing.T) {
	summary := Aggregate(decode(t, "device_id,value\nDEV-1,4\n,2\n"), utils.AnomalyThreshold)

	require.Len(t, summary.Devices, 2)
	assert.Equal(t, types.UnknownDevice, summary.Devices[1].DeviceID)
	assert.Equal(t, 0, summary.Devices[0].AnomalyCount)

	summary = Aggregate(decode(t, "device_id,anomaly_score\nDEV-1,0.7\n"), utils.AnomalyThreshold)
	require.Len(t, summary.Devices, 1)
	assert.Equal(t, 0.0, summary.Devices[0].AvgValue)
	assert.Equal(t, 1, summary.Devices[0].AnomalyCount)
}

func TestAggregateSkipsTruncatedRows(t *testing.T) {
	input := header + row("DEV-1", "10", "0.1") + "2025-01-01 10:00:00,DEV-1,temperature_sensor\n"

	summary := Aggregate(decode(t, input), utils.AnomalyThreshold)

	assert.Equal(t, 1, summary.RowsSkipped)
	require.Len(t, summary.Devices, 1)
	assert.Equal(t, 1, summary.Devices[0].TotalReadings)
	assert.Equal(t, 10.0, summary.Devices[0].MinValue)
	assert.Equal(t, 10.0, summary.Devices[0].AvgValue)
}

func TestAggregateRoundsStatistics(t *testing.T) {
	input := header + row("D", "1.00049", "0.1") + row("D", "2", "0.9") + row("D", "2", "0.2")

	summary := Aggregate(decode(t, input), utils.AnomalyThreshold)
	require.Len(t, summary.Devices, 1)

	d := summary.Devices[0]
	assert.Equal(t, 1.667, d.AvgValue)
	assert.Equal(t, 1.0, d.MinValue)
	assert.Equal(t, 33.33, d.AnomalyPercentage)
}

func TestAggregateInvariants(t *testing.T) {
	rng := rand.New(rand.NewSource(11))

	var input string
	values := map[string][]float64{}
	valid := 0
	for i := 0; i < 400; i++ {
		device := fmt.Sprintf("DEV-%d", rng.Intn(7))
		value := float64(rng.Intn(20000)-10000) / 100
		raw := utils.FormatFloat(value)
		if i%37 == 0 {
			raw = "n/a"
		} else {
			valid++
			values[device] = append(values[device], value)
		}
		input += row(device, raw, fmt.Sprintf("%.2f", rng.Float64()))
	}

	summary := Aggregate(decode(t, header+input), utils.AnomalyThreshold)

	total := 0
	for _, d := range summary.Devices {
		total += d.TotalReadings
		for _, v := range values[d.DeviceID] {
			assert.LessOrEqual(t, d.MinValue, v)
			assert.GreaterOrEqual(t, d.MaxValue, v)
		}
	}
	assert.Equal(t, valid, total)
	assert.Equal(t, valid, summary.TotalReadings)
}

func TestProcessIgnoresOtherObjects(t *testing.T) {
	stage, store, emitter := newStage(t)
	ctx := context.Background()

	for _, key := range []string{"bronze/x.csv", "gold/x.csv", "silver/x.txt", "plant/silver/x.csv"} {
		result := stage.Process(ctx, bucket, key)
		assert.Equal(t, http.StatusOK, result.StatusCode, key)
		assert.True(t, result.Ignored, key)
	}

	require.NoError(t, store.Put(ctx, bucket, "silver/empty.csv", []byte(header), types.ContentTypeCSV))
	result := stage.Process(ctx, bucket, "silver/empty.csv")
	assert.True(t, result.Ignored)
	assert.False(t, store.Has(bucket, "gold/empty.csv"))
	assert.Empty(t, emitter.Emissions())
}

func TestProcessAllRowsSkippedWritesHeaderOnlyGold(t *testing.T) {
	stage, store, _ := newStage(t)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, bucket, "silver/bad.csv", []byte(header+row("D", "x", "0.1")), types.ContentTypeCSV))

	result := stage.Process(ctx, bucket, "silver/bad.csv")
	assert.Equal(t, http.StatusOK, result.StatusCode)
	assert.Equal(t, 0, result.DevicesProcessed)
	assert.Equal(t, 1, result.RowsSkipped)

	encoded, err := json.Marshal(result)
	require.NoError(t, err)
	assert.Contains(t, string(encoded), `"devices_emitted":0`)
	assert.NotContains(t, string(encoded), "devices_processed")

	body, err := store.Get(ctx, bucket, "gold/bad.csv")
	require.NoError(t, err)
	assert.Equal(t, "device_id,total_readings,avg_value,min_value,max_value,anomaly_count,anomaly_percentage\r\n", string(body))
}

func TestProcessFailures(t *testing.T) {
	stage, store, emitter := newStage(t)
	ctx := context.Background()

	result := stage.Process(ctx, bucket, "silver/missing.csv")
	assert.Equal(t, http.StatusInternalServerError, result.StatusCode)
	assert.Contains(t, result.Error, storage.ErrNotFound.Error())

	require.NoError(t, store.Put(ctx, bucket, "silver/ok.csv", []byte(header+row("D", "1", "0.1")), types.ContentTypeCSV))
	store.PutErr = errors.New("access denied")

	result = stage.Process(ctx, bucket, "silver/ok.csv")
	assert.Equal(t, http.StatusInternalServerError, result.StatusCode)
	assert.Contains(t, result.Error, "access denied")

	errorsReported := 0
	for _, e := range emitter.Emissions() {
		for _, d := range e.Data {
			if d.Name == "ProcessingErrors" {
				errorsReported++
			}
		}
	}
	assert.Equal(t, 2, errorsReported)
}
