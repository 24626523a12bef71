package mapping

import "fmt"

// defaultMappings covers the observations of the weewx wview_extended schema
// that make sense as gauges.
var defaultMappings = []Mapping{
	{"outTemp", "out_temp", GroupTemperature},
	{"inTemp", "in_temp", GroupTemperature},
	{"dewpoint", "dewpoint", GroupTemperature},
	{"inDewpoint", "in_dewpoint", GroupTemperature},
	{"windchill", "windchill", GroupTemperature},
	{"heatindex", "heatindex", GroupTemperature},
	{"appTemp", "app_temp", GroupTemperature},
	{"humidex", "humidex", GroupTemperature},
	{"extraTemp1", "extra_temp1", GroupTemperature},
	{"extraTemp2", "extra_temp2", GroupTemperature},
	{"extraTemp3", "extra_temp3", GroupTemperature},
	{"soilTemp1", "soil_temp1", GroupTemperature},
	{"soilTemp2", "soil_temp2", GroupTemperature},
	{"soilTemp3", "soil_temp3", GroupTemperature},
	{"soilTemp4", "soil_temp4", GroupTemperature},
	{"leafTemp1", "leaf_temp1", GroupTemperature},
	{"leafTemp2", "leaf_temp2", GroupTemperature},

	{"outHumidity", "out_humidity", GroupPercent},
	{"inHumidity", "in_humidity", GroupPercent},
	{"extraHumid1", "extra_humid1", GroupPercent},
	{"extraHumid2", "extra_humid2", GroupPercent},
	{"rxCheckPercent", "rx_check_percent", GroupPercent},

	{"barometer", "barometer", GroupPressure},
	{"pressure", "pressure", GroupPressure},
	{"altimeter", "altimeter", GroupPressure},

	{"windSpeed", "wind_speed", GroupSpeed},
	{"windGust", "wind_gust", GroupSpeed},
	{"windDir", "wind_dir", GroupDirection},
	{"windGustDir", "wind_gust_dir", GroupDirection},
	{"windrun", "windrun", GroupDistance},

	{"rain", "rain", GroupRain},
	{"hourRain", "hour_rain", GroupRain},
	{"rain24", "rain24", GroupRain},
	{"dayRain", "day_rain", GroupRain},
	{"stormRain", "storm_rain", GroupRain},
	{"monthRain", "month_rain", GroupRain},
	{"yearRain", "year_rain", GroupRain},
	{"totalRain", "total_rain", GroupRain},
	{"rainRate", "rain_rate", GroupRainRate},
	{"hail", "hail", GroupRain},
	{"hailRate", "hail_rate", GroupRainRate},
	{"ET", "et", GroupRain},

	{"radiation", "radiation", GroupRadiation},
	{"maxSolarRad", "max_solar_rad", GroupRadiation},
	{"UV", "uv", GroupUV},

	{"cloudbase", "cloudbase", GroupAltitude},

	{"soilMoist1", "soil_moist1", GroupMoisture},
	{"soilMoist2", "soil_moist2", GroupMoisture},
	{"soilMoist3", "soil_moist3", GroupMoisture},
	{"soilMoist4", "soil_moist4", GroupMoisture},
	{"leafWet1", "leaf_wet1", GroupCount},
	{"leafWet2", "leaf_wet2", GroupCount},

	{"pm1_0", "pm1_0", GroupConcentration},
	{"pm2_5", "pm2_5", GroupConcentration},
	{"pm10_0", "pm10_0", GroupConcentration},
	{"co2", "co2", GroupFraction},

	{"lightning_strike_count", "lightning_strike_count", GroupCount},
	{"lightning_distance", "lightning_distance", GroupDistance},

	{"consBatteryVoltage", "cons_battery_voltage", GroupVoltage},
	{"supplyVoltage", "supply_voltage", GroupVoltage},
	{"heatingVoltage", "heating_voltage", GroupVoltage},
	{"referenceVoltage", "reference_voltage", GroupVoltage},
	{"outTempBatteryStatus", "out_temp_battery_status", GroupCount},
	{"rainBatteryStatus", "rain_battery_status", GroupCount},
	{"windBatteryStatus", "wind_battery_status", GroupCount},
	{"txBatteryStatus", "tx_battery_status", GroupCount},
}

// DefaultMappings returns a copy of the built-in mappings
func DefaultMappings() []Mapping {
	out := make([]Mapping, len(defaultMappings))
	copy(out, defaultMappings)
	return out
}

// Default returns the built-in table. It panics if the built-in table is
// invalid, which only a broken build can cause.
func Default() *Table {
	t, err := NewTable(defaultMappings...)
	if err != nil {
		panic(fmt.Sprintf("built-in metric mapping is invalid: %v", err))
	}
	return t
}
