package metrics

import (
	"context"
	"sync"
)

// Emission is one recorded Emit call.
type Emission struct {
	Namespace string
	Data      []Datum
}

// MemoryEmitter records emissions in memory (testing use).
type MemoryEmitter struct {
	mu        sync.Mutex
	emissions []Emission

	// Err, when set, is returned from every Emit after recording.
	Err error
}

func NewMemoryEmitter() *MemoryEmitter {
	return &MemoryEmitter{}
}

func (e *MemoryEmitter) Emit(_ context.Context, namespace string, data []Datum) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	copied := make([]Datum, len(data))
	copy(copied, data)
	e.emissions = append(e.emissions, Emission{Namespace: namespace, Data: copied})

	return e.Err
}

// Emissions returns a copy of all recorded emissions.
func (e *MemoryEmitter) Emissions() []Emission {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Emission, len(e.emissions))
	copy(out, e.emissions)
	return out
}

// Value returns the last recorded value of the named metric.
func (e *MemoryEmitter) Value(name string) (float64, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for i := len(e.emissions) - 1; i >= 0; i-- {
		data := e.emissions[i].Data
		for j := len(data) - 1; j >= 0; j-- {
			if data[j].Name == name {
				return data[j].Value, true
			}
		}
	}
	return 0, false
}
