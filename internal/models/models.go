package models

import "database/sql"

type Country struct {
	ID       int64
	Name     string
	Timezone string
}

type City struct {
	ID        int64
	Name      string
	LatLong   string // raw "lat,lon" text as stored
	CountryID int64
}

// CityWithCountry is a city joined to its owning country.
type CityWithCountry struct {
	City
	CountryName string
	Timezone    string
}

// CityLocation is everything the reconciler needs to query the archive API
// for one city.
type CityLocation struct {
	CityID   int64
	Name     string
	LatLong  string
	Timezone string
}

type DailyWeatherEntry struct {
	ID            int64
	CityID        int64
	Date          string // YYYY-MM-DD
	MinTemp       float64
	MaxTemp       float64
	MeanTemp      float64
	Precipitation float64
}

// CityValue is a single aggregate per city (averages, sums, ranges).
type CityValue struct {
	CityID   int64
	CityName string
	Value    float64
}

type CountryValue struct {
	CountryID   int64
	CountryName string
	Value       float64
}

// DayValue is a single measurement per date.
type DayValue struct {
	Date  string
	Value float64
}

type DailyTempRange struct {
	Date    string
	MinTemp float64
	MaxTemp float64
}

type CityTempStats struct {
	CityName    string
	AvgMinTemp  float64
	AvgMeanTemp float64
	AvgMaxTemp  float64
}

type CityClimate struct {
	CityName  string
	AvgTemp   float64
	AvgPrecip float64
}

// Column describes one column returned by PRAGMA table_info.
type Column struct {
	CID        int
	Name       string
	Type       string
	NotNull    bool
	Default    sql.NullString
	PrimaryKey bool
}
