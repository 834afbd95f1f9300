package metrics

import (
	"context"
	"log"
)

// LogEmitter writes samples to the process log. Used when no monitoring
// backend is configured, e.g. when running against a local MinIO.
type LogEmitter struct{}

func (LogEmitter) Emit(_ context.Context, namespace string, data []Datum) error {
	for _, d := range data {
		log.Printf("[metrics] %s %s=%g %s", namespace, d.Name, d.Value, d.Unit)
	}
	return nil
}
