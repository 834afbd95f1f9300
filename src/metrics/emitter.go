package metrics

import (
	"context"
	"log"
)

type Unit string

// Units use the CloudWatch standard unit names.
const (
	UnitCount          Unit = "Count"
	UnitPercent        Unit = "Percent"
	UnitSeconds        Unit = "Seconds"
	UnitBytes          Unit = "Bytes"
	UnitCountPerSecond Unit = "Count/Second"
)

// Datum is a single counter or gauge sample.
type Datum struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
	Unit  Unit    `json:"unit"`
}

// Emitter delivers metric samples to the monitoring collaborator.
type Emitter interface {
	Emit(ctx context.Context, namespace string, data []Datum) error
}

// Report emits data and swallows any failure: metrics are best-effort and
// must never fail an invocation.
func Report(ctx context.Context, emitter Emitter, namespace string, data []Datum) {
	if emitter == nil || len(data) == 0 {
		return
	}

	if err := emitter.Emit(ctx, namespace, data); err != nil {
		log.Printf("[metrics] failed to emit %d metrics to %s: %v", len(data), namespace, err)
	}
}

// NopEmitter discards every sample.
type NopEmitter struct{}

func (NopEmitter) Emit(context.Context, string, []Datum) error { return nil }
