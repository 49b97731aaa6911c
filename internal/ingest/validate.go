package ingest

import (
	"github.com/lox/weatherreport/internal/models"
)

const (
	FlagTempOutOfRange    = "temp_out_of_range"
	FlagMinAboveMax       = "min_above_max"
	FlagMeanOutsideMinMax = "mean_outside_min_max"
	FlagPrecipNegative    = "precip_negative"
	FlagPrecipImplausible = "precip_implausible"
)

// Plausible bounds for a daily aggregate anywhere on Earth.
const (
	minPlausibleTemp   = -90.0
	maxPlausibleTemp   = 60.0
	maxPlausiblePrecip = 2000.0
)

// ValidateEntry returns quality flags for values that are numeric but
// physically unlikely. Flagged entries are still stored.
func ValidateEntry(e models.DailyWeatherEntry) []string {
	var flags []string

	for _, v := range []float64{e.MinTemp, e.MaxTemp, e.MeanTemp} {
		if v < minPlausibleTemp || v > maxPlausibleTemp {
			flags = append(flags, FlagTempOutOfRange)
			break
		}
	}

	if e.MinTemp > e.MaxTemp {
		flags = append(flags, FlagMinAboveMax)
	} else if e.MeanTemp < e.MinTemp || e.MeanTemp > e.MaxTemp {
		flags = append(flags, FlagMeanOutsideMinMax)
	}

	if e.Precipitation < 0 {
		flags = append(flags, FlagPrecipNegative)
	} else if e.Precipitation > maxPlausiblePrecip {
		flags = append(flags, FlagPrecipImplausible)
	}

	return flags
}
