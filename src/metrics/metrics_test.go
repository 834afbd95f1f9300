package metrics

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCloudWatch struct {
	inputs []*cloudwatch.PutMetricDataInput
	err    error
}

func (f *fakeCloudWatch) PutMetricData(_ context.Context, in *cloudwatch.PutMetricDataInput, _ ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error) {
	f.inputs = append(f.inputs, in)
	return &cloudwatch.PutMetricDataOutput{}, f.err
}

func TestCloudWatchEmitter(t *testing.T) {
	fake := &fakeCloudWatch{}
	emitter := NewCloudWatchEmitter(fake)
	fixed := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	emitter.now = func() time.Time { return fixed }

	err := emitter.Emit(context.Background(), "IoTPipeline/Classifier", []Datum{
		{Name: "RowsProcessed", Value: 50, Unit: UnitCount},
		{Name: "Throughput", Value: 12.5, Unit: UnitCountPerSecond},
	})
	require.NoError(t, err)
	require.Len(t, fake.inputs, 1)

	in := fake.inputs[0]
	assert.Equal(t, "IoTPipeline/Classifier", aws.ToString(in.Namespace))
	require.Len(t, in.MetricData, 2)
	assert.Equal(t, "Throughput", aws.ToString(in.MetricData[1].MetricName))
	assert.Equal(t, 12.5, aws.ToFloat64(in.MetricData[1].Value))
	assert.Equal(t, types.StandardUnitCountSecond, in.MetricData[1].Unit)
	assert.Equal(t, fixed, aws.ToTime(in.MetricData[0].Timestamp))
}

func TestCloudWatchEmitterBatches(t *testing.T) {
	fake := &fakeCloudWatch{}
	data := make([]Datum, 45)
	for i := range data {
		data[i] = Datum{Name: "M", Value: float64(i), Unit: UnitCount}
	}

	require.NoError(t, NewCloudWatchEmitter(fake).Emit(context.Background(), "ns", data))
	require.Len(t, fake.inputs, 3)
	assert.Len(t, fake.inputs[2].MetricData, 5)
}

func TestCloudWatchEmitterError(t *testing.T) {
	fake := &fakeCloudWatch{err: errors.New("throttled")}
	err := NewCloudWatchEmitter(fake).Emit(context.Background(), "ns", []Datum{{Name: "M", Value: 1, Unit: UnitCount}})
	assert.ErrorContains(t, err, "throttled")
}

func TestReportSwallowsFailures(t *testing.T) {
	emitter := NewMemoryEmitter()
	emitter.Err = errors.New("collector down")

	assert.NotPanics(t, func() {
		Report(context.Background(), emitter, "ns", []Datum{{Name: "RowsProcessed", Value: 3, Unit: UnitCount}})
	})

	v, ok := emitter.Value("RowsProcessed")
	assert.True(t, ok)
	assert.Equal(t, 3.0, v)

	assert.NotPanics(t, func() { Report(context.Background(), nil, "ns", nil) })
}

func TestMemoryEmitterValueUsesLatest(t *testing.T) {
	emitter := NewMemoryEmitter()
	Report(context.Background(), emitter, "a", []Datum{{Name: "X", Value: 1}})
	Report(context.Background(), emitter, "a", []Datum{{Name: "X", Value: 2}})

	v, _ := emitter.Value("X")
	assert.Equal(t, 2.0, v)
	assert.Len(t, emitter.Emissions(), 2)

	_, ok := emitter.Value("Y")
	assert.False(t, ok)
}
