// Package types holds the records and submissions that flow through the forwarder.
package types

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"
)

// RecordType says whether a record came from a loop packet or an archive record
type RecordType string

const (
	LoopPacket    RecordType = "loop"
	ArchiveRecord RecordType = "archive"
)

// ParseRecordType parses "loop" or "archive", case-insensitively
func ParseRecordType(s string) (RecordType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case string(LoopPacket):
		return LoopPacket, nil
	case string(ArchiveRecord):
		return ArchiveRecord, nil
	default:
		return "", fmt.Errorf("unknown record type %q", s)
	}
}

// UnitSystem mirrors the weewx usUnits codes
type UnitSystem int

const (
	US       UnitSystem = 0x01
	Metric   UnitSystem = 0x10
	MetricWX UnitSystem = 0x11
)

func (u UnitSystem) String() string {
	switch u {
	case US:
		return "us"
	case Metric:
		return "metric"
	case MetricWX:
		return "metricwx"
	default:
		return fmt.Sprintf("unknown(%d)", int(u))
	}
}

// Valid reports whether u is one of the known weewx unit systems
func (u UnitSystem) Valid() bool {
	return u == US || u == Metric || u == MetricWX
}

// ParseUnitSystem parses "us", "metric" or "metricwx"
func ParseUnitSystem(s string) (UnitSystem, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "us":
		return US, nil
	case "metric":
		return Metric, nil
	case "metricwx":
		return MetricWX, nil
	default:
		return 0, fmt.Errorf("unknown unit system %q", s)
	}
}

// Packet keys that describe the record itself and are never forwarded as observations
const (
	FieldDateTime = "dateTime"
	FieldInterval = "interval"
	FieldUSUnits  = "usUnits"
)

// IsReserved reports whether field is record metadata rather than an observation
func IsReserved(field string) bool {
	return field == FieldDateTime || field == FieldInterval || field == FieldUSUnits
}

// Record is one loop packet or archive record as delivered by the host framework.
// A nil value in Fields means the observation was reported as missing.
type Record struct {
	Type      RecordType
	Timestamp int64
	Units     UnitSystem
	Fields    map[string]*float64
}

// Time returns the record timestamp
func (r Record) Time() time.Time {
	return time.Unix(r.Timestamp, 0)
}

// Value returns the value of field if it is present and not missing
func (r Record) Value(field string) (float64, bool) {
	v, ok := r.Fields[field]
	if !ok || v == nil {
		return 0, false
	}
	return *v, true
}

// FieldNames returns the observation names in sorted order
func (r Record) FieldNames() []string {
	names := make([]string, 0, len(r.Fields))
	for name := range r.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Merge returns a copy of r with fields from extra added. Fields r has a
// value for keep it; fields r reports as missing take the value from extra.
func (r Record) Merge(extra map[string]*float64) Record {
	merged := make(map[string]*float64, len(r.Fields)+len(extra))
	for k, v := range extra {
		if IsReserved(k) {
			continue
		}
		merged[k] = v
	}
	for k, v := range r.Fields {
		if _, ok := merged[k]; ok && v == nil {
			continue
		}
		merged[k] = v
	}
	r.Fields = merged
	return r
}

// RecordFromPacket converts a decoded weewx packet into a Record. Values that are
// not numeric (strings, booleans) are dropped.
func RecordFromPacket(t RecordType, packet map[string]any) (Record, error) {
	rec := Record{
		Type:   t,
		Units:  US,
		Fields: make(map[string]*float64, len(packet)),
	}

	ts, ok := toFloat(packet[FieldDateTime])
	if !ok {
		return Record{}, fmt.Errorf("packet has no numeric %s", FieldDateTime)
	}
	rec.Timestamp = int64(ts)

	if raw, present := packet[FieldUSUnits]; present && raw != nil {
		u, ok := toFloat(raw)
		if !ok {
			return Record{}, fmt.Errorf("packet has non-numeric %s", FieldUSUnits)
		}
		rec.Units = UnitSystem(int(u))
	}

	for k, raw := range packet {
		if IsReserved(k) {
			continue
		}
		if raw == nil {
			rec.Fields[k] = nil
			continue
		}
		v, ok := toFloat(raw)
		if !ok {
			continue
		}
		rec.Fields[k] = &v
	}

	return rec, nil
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	default:
		return math.NaN(), false
	}
}

// Float returns a pointer to v, for building records by hand
func Float(v float64) *float64 {
	return &v
}
