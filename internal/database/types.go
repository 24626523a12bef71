package database

import "time"

// BucketReading is one row of the remoteweather weather_1m continuous
// aggregate. Values are in US units; nil means the station did not report it.
type BucketReading struct {
	Bucket              time.Time `gorm:"column:bucket"`
	StationName         string    `gorm:"column:stationname"`
	Barometer           *float32  `gorm:"column:barometer"`
	InTemp              *float32  `gorm:"column:intemp"`
	ExtraTemp1          *float32  `gorm:"column:extratemp1"`
	InHumidity          *float32  `gorm:"column:inhumidity"`
	SolarWatts          *float32  `gorm:"column:solarwatts"`
	PotentialSolarWatts *float32  `gorm:"column:potentialsolarwatts"`
	OutTemp             *float32  `gorm:"column:outtemp"`
	OutHumidity         *float32  `gorm:"column:outhumidity"`
	WindSpeed           *float32  `gorm:"column:windspeed"`
	MaxWindSpeed        *float32  `gorm:"column:max_windspeed"`
	WindDir             *float32  `gorm:"column:winddir"`
	WindChill           *float32  `gorm:"column:windchill"`
	HeatIndex           *float32  `gorm:"column:heatindex"`
	PeriodRain          *float32  `gorm:"column:period_rain"`
	RainRate            *float32  `gorm:"column:rainrate"`
	ConsBatteryVoltage  *float32  `gorm:"column:consbatteryvoltage"`
}

// TableName implements the Tabler interface for the BucketReading struct
func (BucketReading) TableName() string {
	return "weather_1m"
}
