package main

import (
	"math"
	"math/rand"
	"time"
)

// WeatherEmulator generates synthetic weewx packets in US units
type WeatherEmulator struct {
	baseTemp     float64
	baseHumidity float64
	basePressure float64
	rng          *rand.Rand
	now          func() time.Time

	rainSinceArchive float64
}

func NewWeatherEmulator(seed int64) *WeatherEmulator {
	return &WeatherEmulator{
		baseTemp:     65,
		baseHumidity: 60,
		basePressure: 30,
		rng:          rand.New(rand.NewSource(seed)),
		now:          time.Now,
	}
}

// LoopPacket returns one loop packet for the current time
func (w *WeatherEmulator) LoopPacket() map[string]any {
	now := w.now()
	hour := float64(now.Hour()) + float64(now.Minute())/60
	day := float64(now.YearDay())

	seasonal := 20 * math.Sin(2*math.Pi*(day-81)/365)
	daily := 15 * math.Sin(2*math.Pi*(hour-6)/24)

	temp := w.baseTemp + seasonal + daily + (w.rng.Float64()-0.5)*4
	humidity := math.Max(10, math.Min(95, w.baseHumidity-(temp-w.baseTemp)*0.5+(w.rng.Float64()*10-5)))
	pressure := w.basePressure + (w.rng.Float64()-0.5)*0.05
	wind := 3 + w.rng.Float64()*8 + 2*math.Sin(2*math.Pi*hour/24)

	solar := 0.0
	if hour >= 6 && hour <= 18 {
		solar = math.Sin(math.Pi*(hour-6)/12) * 1000 * (0.8 + w.rng.Float64()*0.4)
	}

	rain := 0.0
	if w.rng.Float64() < 0.02 {
		rain = math.Round(w.rng.Float64()*100) / 1000
	}
	w.rainSinceArchive += rain

	return map[string]any{
		"dateTime":           now.Unix(),
		"usUnits":            1,
		"outTemp":            round(temp, 1),
		"inTemp":             round(temp+2, 1),
		"outHumidity":        round(humidity, 0),
		"barometer":          round(pressure, 3),
		"windSpeed":          round(wind, 1),
		"windGust":           round(wind*(1.2+w.rng.Float64()*0.3), 1),
		"windDir":            float64(w.rng.Intn(360)),
		"radiation":          round(solar, 0),
		"rain":               rain,
		"consBatteryVoltage": round(13.2+w.rng.Float64()*0.6, 2),
	}
}

// ArchiveRecord returns an archive record covering the last interval. Rain
// accumulated by the loop packets since the previous record is reported.
func (w *WeatherEmulator) ArchiveRecord(interval time.Duration) map[string]any {
	rec := w.LoopPacket()
	rec["interval"] = int(interval.Minutes())
	rec["rain"] = round(w.rainSinceArchive, 3)
	w.rainSinceArchive = 0
	return rec
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
