package mapping

import (
	"fmt"
	"math"

	"github.com/chrissnell/wxdatadog/internal/types"
)

// Group is a unit group. Every observation in a group is measured in the same
// unit for a given unit system, so one conversion serves the whole group.
type Group string

const (
	GroupTemperature   Group = "temperature"
	GroupPressure      Group = "pressure"
	GroupSpeed         Group = "speed"
	GroupDirection     Group = "direction"
	GroupRain          Group = "rain"
	GroupRainRate      Group = "rainrate"
	GroupPercent       Group = "percent"
	GroupAltitude      Group = "altitude"
	GroupDistance      Group = "distance"
	GroupRadiation     Group = "radiation"
	GroupUV            Group = "uv"
	GroupVoltage       Group = "voltage"
	GroupMoisture      Group = "moisture"
	GroupConcentration Group = "concentration"
	GroupFraction      Group = "fraction"
	GroupCount         Group = "count"
)

var knownGroups = map[Group]struct{}{
	GroupTemperature: {}, GroupPressure: {}, GroupSpeed: {}, GroupDirection: {},
	GroupRain: {}, GroupRainRate: {}, GroupPercent: {}, GroupAltitude: {},
	GroupDistance: {}, GroupRadiation: {}, GroupUV: {}, GroupVoltage: {},
	GroupMoisture: {}, GroupConcentration: {}, GroupFraction: {}, GroupCount: {},
}

// Valid reports whether g is a known unit group
func (g Group) Valid() bool {
	_, ok := knownGroups[g]
	return ok
}

// ConversionError reports a value that can't be expressed in the target unit system
type ConversionError struct {
	Field  string
	Value  float64
	Reason string
}

func (e *ConversionError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("cannot convert %v: %s", e.Value, e.Reason)
	}
	return fmt.Sprintf("cannot convert %s=%v: %s", e.Field, e.Value, e.Reason)
}

const absoluteZeroC = -273.15

// Convert converts v, a value of group g measured in the from system, into the
// to system. Values outside the physical domain of the group are rejected.
func Convert(g Group, v float64, from, to types.UnitSystem) (float64, error) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, &ConversionError{Value: v, Reason: "not a finite number"}
	}
	if !from.Valid() {
		return 0, &ConversionError{Value: v, Reason: fmt.Sprintf("unknown source unit system %v", from)}
	}
	if !to.Valid() {
		return 0, &ConversionError{Value: v, Reason: fmt.Sprintf("unknown target unit system %v", to)}
	}

	switch g {
	case GroupTemperature:
		c := v
		if from == types.US {
			c = (v - 32) * 5 / 9
		}
		if c < absoluteZeroC {
			return 0, &ConversionError{Value: v, Reason: "below absolute zero"}
		}
		if to == types.US {
			return c*9/5 + 32, nil
		}
		return c, nil

	case GroupPressure:
		// base: hPa (mbar)
		hpa := v
		if from == types.US {
			hpa = v * 33.863886666667
		}
		if hpa <= 0 {
			return 0, &ConversionError{Value: v, Reason: "pressure must be positive"}
		}
		if to == types.US {
			return hpa / 33.863886666667, nil
		}
		return hpa, nil

	case GroupSpeed:
		// base: m/s
		var ms float64
		switch from {
		case types.US:
			ms = v * 0.44704
		case types.Metric:
			ms = v / 3.6
		default:
			ms = v
		}
		if ms < 0 {
			return 0, &ConversionError{Value: v, Reason: "speed must not be negative"}
		}
		switch to {
		case types.US:
			return ms / 0.44704, nil
		case types.Metric:
			return ms * 3.6, nil
		default:
			return ms, nil
		}

	case GroupRain, GroupRainRate:
		// base: mm (or mm/h); Metric uses cm, US uses inches
		var mm float64
		switch from {
		case types.US:
			mm = v * 25.4
		case types.Metric:
			mm = v * 10
		default:
			mm = v
		}
		if mm < 0 {
			return 0, &ConversionError{Value: v, Reason: "precipitation must not be negative"}
		}
		switch to {
		case types.US:
			return mm / 25.4, nil
		case types.Metric:
			return mm / 10, nil
		default:
			return mm, nil
		}

	case GroupAltitude:
		m := v
		if from == types.US {
			m = v * 0.3048
		}
		if to == types.US {
			return m / 0.3048, nil
		}
		return m, nil

	case GroupDistance:
		km := v
		if from == types.US {
			km = v * 1.609344
		}
		if km < 0 {
			return 0, &ConversionError{Value: v, Reason: "distance must not be negative"}
		}
		if to == types.US {
			return km / 1.609344, nil
		}
		return km, nil

	case GroupPercent:
		if v < 0 || v > 100 {
			return 0, &ConversionError{Value: v, Reason: "percentage outside 0-100"}
		}
		return v, nil

	case GroupDirection:
		if v < 0 || v > 360 {
			return 0, &ConversionError{Value: v, Reason: "compass direction outside 0-360"}
		}
		return v, nil

	case GroupRadiation, GroupUV, GroupMoisture, GroupConcentration, GroupFraction:
		if v < 0 {
			return 0, &ConversionError{Value: v, Reason: "must not be negative"}
		}
		return v, nil

	case GroupVoltage, GroupCount:
		return v, nil

	default:
		return 0, &ConversionError{Value: v, Reason: fmt.Sprintf("unknown unit group %q", g)}
	}
}
