package types

import (
	"math"
	"strconv"
	"strings"
)

// Tier prefixes are part of the object key contract and must not change.
const (
	TierBronze    = "bronze/"
	TierSilver    = "silver/"
	TierGold      = "gold/"
	TierAnomalies = "anomalies/"

	TabularExtension = ".csv"
	ContentTypeCSV   = "text/csv"

	UnknownDevice = "unknown"
)

// Columns of the bronze, silver and anomalies tiers.
var ReadingColumns = []string{
	"timestamp", "device_id", "device_type", "location",
	"value", "unit", "status", "anomaly_score",
}

// Columns of the gold tier.
var AggregateColumns = []string{
	"device_id", "total_readings", "avg_value", "min_value",
	"max_value", "anomaly_count", "anomaly_percentage",
}

// NumericField is the parse outcome of one numeric column of a row.
type NumericField struct {
	Value   float64
	Present bool
	Valid   bool
}

// ParseNumeric trims raw and parses it as a finite float. NaN and ±Inf are
// treated as parse failures.
func ParseNumeric(raw string, present bool) NumericField {
	if !present {
		return NumericField{}
	}

	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return NumericField{Present: true}
	}

	return NumericField{Value: v, Present: true, Valid: true}
}

// ZeroFilled returns the parsed value, or 0 when the field is absent or
// unparseable.
func (f NumericField) ZeroFilled() float64 {
	if !f.Valid {
		return 0
	}
	return f.Value
}

// Aggregatable returns the value to aggregate and whether the row may be
// used at all. An absent field counts as 0; a present but unparseable one
// disqualifies the row.
func (f NumericField) Aggregatable() (float64, bool) {
	if !f.Present {
		return 0, true
	}
	return f.Value, f.Valid
}

// Reading is the typed view of one bronze/silver/anomalies row.
type Reading struct {
	Timestamp    string
	DeviceID     string
	DeviceType   string
	Location     string
	Unit         string
	Status       string
	Value        NumericField
	AnomalyScore NumericField
}

// DeviceKey is the grouping key used by the gold tier.
func (r Reading) DeviceKey() string {
	if strings.TrimSpace(r.DeviceID) == "" {
		return UnknownDevice
	}
	return r.DeviceID
}

// DeviceAggregate is one row of the gold tier.
type DeviceAggregate struct {
	DeviceID          string  `json:"device_id"`
	TotalReadings     int     `json:"total_readings"`
	AvgValue          float64 `json:"avg_value"`
	MinValue          float64 `json:"min_value"`
	MaxValue          float64 `json:"max_value"`
	AnomalyCount      int     `json:"anomaly_count"`
	AnomalyPercentage float64 `json:"anomaly_percentage"`
}

// Notification is a single object-arrival event.
type Notification struct {
	Bucket string `json:"bucket"`
	Key    string `json:"key"`
}

type ClassifyResult struct {
	StatusCode        int     `json:"statusCode"`
	File              string  `json:"file"`
	TotalRows         int     `json:"total_rows"`
	NormalRows        int     `json:"normal_rows"`
	AnomalyRows       int     `json:"anomaly_rows"`
	AnomalyPercentage float64 `json:"anomaly_percentage"`
	SilverKey         string  `json:"silver_key,omitempty"`
	AnomaliesKey      string  `json:"anomalies_key,omitempty"`
	ProcessingTime    float64 `json:"processing_time_seconds"`
	Ignored           bool    `json:"ignored,omitempty"`
	Message           string  `json:"message,omitempty"`
	Error             string  `json:"error,omitempty"`
}

type AggregateResult struct {
	StatusCode    int    `json:"statusCode"`
	File          string `json:"file"`
	RowsProcessed int    `json:"rows_processed"`
	RowsSkipped   int    `json:"rows_skipped"`
	// DevicesProcessed counts gold rows written; groups whose rows were all
	// skipped are not included.
	DevicesProcessed  int     `json:"devices_emitted"`
	TotalAnomalies    int     `json:"total_anomalies"`
	AnomalyPercentage float64 `json:"anomaly_percentage"`
	GoldKey           string  `json:"gold_file,omitempty"`
	OutputFileSize    int     `json:"output_file_size,omitempty"`
	ProcessingTime    float64 `json:"processing_time_seconds"`
	Ignored           bool    `json:"ignored,omitempty"`
	Message           string  `json:"message,omitempty"`
	Error             string  `json:"error,omitempty"`
}

// NotificationResult is the outcome of one notification within a batch.
// Exactly one of Classify/Aggregate is set unless the key was not routed.
type NotificationResult struct {
	Bucket     string           `json:"bucket"`
	Key        string           `json:"key"`
	Stage      string           `json:"stage"`
	StatusCode int              `json:"statusCode"`
	Classify   *ClassifyResult  `json:"classify,omitempty"`
	Aggregate  *AggregateResult `json:"aggregate,omitempty"`
}

type BatchResult struct {
	RequestID string               `json:"request_id"`
	Results   []NotificationResult `json:"results"`
	Processed int                  `json:"processed"`
	Failed    int                  `json:"failed"`
	Ignored   int                  `json:"ignored"`
}
