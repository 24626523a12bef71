package types

// MetricTypeGauge is the only metric type we submit
const MetricTypeGauge = "gauge"

// Submission is a single metric point bound for Datadog
type Submission struct {
	Metric    string
	Value     float64
	Timestamp int64
	Host      string
	Tags      []string
	Type      string
}
