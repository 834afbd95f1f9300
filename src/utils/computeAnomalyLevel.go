package utils

type AnomalyLevel string

const (
	NO_ANOMALY AnomalyLevel = "NO_ANOMALY"
	ANOMALY    AnomalyLevel = "ANOMALY"
)

// AnomalyThreshold is the fixed score cutoff between normal and anomalous readings.
const AnomalyThreshold = 0.5

func (a AnomalyLevel) String() string {
	switch a {
	case NO_ANOMALY:
		return "NO_ANOMALY"
	case ANOMALY:
		return "ANOMALY"
	default:
		return "Unknown"
	}
}

// ComputeAnomalyLevel applies a strict greater-than cut: a score equal to
// the threshold is not an anomaly.
func ComputeAnomalyLevel(anomalyScore, threshold float64) AnomalyLevel {
	if anomalyScore > threshold {
		return ANOMALY
	}

	return NO_ANOMALY
}

func IsAnomaly(anomalyScore, threshold float64) bool {
	return ComputeAnomalyLevel(anomalyScore, threshold) == ANOMALY
}
