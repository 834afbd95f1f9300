package csvcodec

import "iot-tier-pipeline/src/types"

// Record is one decoded row: its raw values keyed by the table header,
// in header order.
type Record struct {
	index  map[string]int
	values []string
}

// NewRecord builds a record whose values line up with columns.
func NewRecord(columns []string, values []string) Record {
	return Record{index: indexColumns(columns), values: values}
}

func indexColumns(columns []string) map[string]int {
	index := make(map[string]int, len(columns))
	for i, c := range columns {
		index[c] = i // later duplicates win
	}
	return index
}

// Get returns the raw value of column and whether the header declares it.
// A trailing cell missing from a short row is present but empty, so it never
// parses as a number.
func (r Record) Get(column string) (string, bool) {
	i, ok := r.index[column]
	if !ok {
		return "", false
	}
	if i >= len(r.values) {
		return "", true
	}
	return r.values[i], true
}

// ToReading applies the per-field rule table to a record.
func ToReading(r Record) types.Reading {
	get := func(column string) string {
		v, _ := r.Get(column)
		return v
	}

	value, hasValue := r.Get("value")
	score, hasScore := r.Get("anomaly_score")

	return types.Reading{
		Timestamp:    get("timestamp"),
		DeviceID:     get("device_id"),
		DeviceType:   get("device_type"),
		Location:     get("location"),
		Unit:         get("unit"),
		Status:       get("status"),
		Value:        types.ParseNumeric(value, hasValue),
		AnomalyScore: types.ParseNumeric(score, hasScore),
	}
}
