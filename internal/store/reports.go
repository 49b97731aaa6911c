package store

import (
	"database/sql"
	"fmt"
	"strconv"

	"github.com/lox/weatherreport/internal/models"
)

// Aggregate queries backing the reports and charts. Date ranges are inclusive
// and compared as YYYY-MM-DD text; years match on substr(date, 1, 4).

// AverageAnnualTemperature returns AVG(mean_temp) for a city and year. The
// result is invalid when there are no rows.
func (s *Store) AverageAnnualTemperature(cityID int64, year int) (sql.NullFloat64, error) {
	var avg sql.NullFloat64
	err := s.db.QueryRow(`
		SELECT AVG(mean_temp)
		FROM daily_weather_entries
		WHERE city_id = ? AND substr(date, 1, 4) = ?
	`, cityID, strconv.Itoa(year)).Scan(&avg)
	if err != nil {
		return avg, queryErr("average annual temperature", err)
	}
	return avg, nil
}

// AverageSevenDayPrecipitation averages precipitation over the 7 days
// starting at start.
func (s *Store) AverageSevenDayPrecipitation(cityID int64, start string) (sql.NullFloat64, error) {
	var avg sql.NullFloat64
	err := s.db.QueryRow(`
		SELECT AVG(precipitation)
		FROM daily_weather_entries
		WHERE city_id = ? AND date >= ? AND date < date(?, '+7 days')
	`, cityID, start, start).Scan(&avg)
	if err != nil {
		return avg, queryErr("average seven day precipitation", err)
	}
	return avg, nil
}

func (s *Store) SevenDayPrecipitation(cityID int64, start string) ([]models.DayValue, error) {
	return s.dayValues("seven day precipitation", `
		SELECT date, precipitation
		FROM daily_weather_entries
		WHERE city_id = ? AND date >= ? AND date < date(?, '+7 days')
			AND precipitation IS NOT NULL
		ORDER BY date
	`, cityID, start, start)
}

func (s *Store) TopRainfallDays(cityID int64, year, limit int) ([]models.DayValue, error) {
	return s.dayValues("top rainfall days", `
		SELECT date, precipitation
		FROM daily_weather_entries
		WHERE city_id = ? AND substr(date, 1, 4) = ? AND precipitation IS NOT NULL
		ORDER BY precipitation DESC
		LIMIT ?
	`, cityID, strconv.Itoa(year), limit)
}

func (s *Store) AverageMeanTempByCity(from, to string) ([]models.CityValue, error) {
	return s.cityValues("average mean temp by city", `
		SELECT c.id, c.name, AVG(d.mean_temp) AS v
		FROM daily_weather_entries d
		JOIN cities c ON d.city_id = c.id
		WHERE d.date >= ? AND d.date <= ?
		GROUP BY c.id, c.name
		ORDER BY v DESC
	`, from, to)
}

func (s *Store) TemperatureVariabilityByCity(from, to string) ([]models.CityValue, error) {
	return s.cityValues("temperature variability by city", `
		SELECT c.id, c.name, MAX(d.max_temp) - MIN(d.min_temp) AS v
		FROM daily_weather_entries d
		JOIN cities c ON d.city_id = c.id
		WHERE d.date >= ? AND d.date <= ?
		GROUP BY c.id, c.name
		ORDER BY v DESC
	`, from, to)
}

func (s *Store) TotalPrecipitationByCity(from, to string) ([]models.CityValue, error) {
	return s.cityValues("total precipitation by city", `
		SELECT c.id, c.name, SUM(d.precipitation) AS v
		FROM daily_weather_entries d
		JOIN cities c ON d.city_id = c.id
		WHERE d.date >= ? AND d.date <= ?
		GROUP BY c.id, c.name
		ORDER BY v DESC
	`, from, to)
}

// WettestCity returns the city with the highest total precipitation in a
// year, or nil when the year has no rows.
func (s *Store) WettestCity(year int) (*models.CityValue, error) {
	values, err := s.cityValues("wettest city", `
		SELECT c.id, c.name, SUM(d.precipitation) AS v
		FROM daily_weather_entries d
		JOIN cities c ON d.city_id = c.id
		WHERE substr(d.date, 1, 4) = ?
		GROUP BY c.id, c.name
		ORDER BY v DESC
		LIMIT 1
	`, strconv.Itoa(year))
	if err != nil || len(values) == 0 {
		return nil, err
	}
	return &values[0], nil
}

func (s *Store) AveragePrecipitationByCountry(year int) ([]models.CountryValue, error) {
	rows, err := s.db.Query(`
		SELECT co.id, co.name, AVG(d.precipitation) AS v
		FROM daily_weather_entries d
		JOIN cities c ON d.city_id = c.id
		JOIN countries co ON c.country_id = co.id
		WHERE substr(d.date, 1, 4) = ?
		GROUP BY co.id, co.name
		ORDER BY v DESC
	`, strconv.Itoa(year))
	if err != nil {
		return nil, queryErr("average precipitation by country", err)
	}
	defer rows.Close()

	var values []models.CountryValue
	for rows.Next() {
		var v models.CountryValue
		var avg sql.NullFloat64
		if err := rows.Scan(&v.CountryID, &v.CountryName, &avg); err != nil {
			return nil, queryErr("scan average precipitation by country", err)
		}
		v.Value = avg.Float64
		values = append(values, v)
	}
	if err := rows.Err(); err != nil {
		return nil, queryErr("average precipitation by country", err)
	}
	return values, nil
}

func (s *Store) DailyMinMaxForMonth(cityID int64, year, month int) ([]models.DailyTempRange, error) {
	rows, err := s.db.Query(`
		SELECT date, min_temp, max_temp
		FROM daily_weather_entries
		WHERE city_id = ? AND substr(date, 1, 4) = ? AND substr(date, 6, 2) = ?
			AND min_temp IS NOT NULL AND max_temp IS NOT NULL
		ORDER BY date
	`, cityID, strconv.Itoa(year), fmt.Sprintf("%02d", month))
	if err != nil {
		return nil, queryErr("daily min max for month", err)
	}
	defer rows.Close()

	var out []models.DailyTempRange
	for rows.Next() {
		var r models.DailyTempRange
		var minT, maxT sql.NullFloat64
		if err := rows.Scan(&r.Date, &minT, &maxT); err != nil {
			return nil, queryErr("scan daily min max", err)
		}
		r.MinTemp, r.MaxTemp = minT.Float64, maxT.Float64
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, queryErr("daily min max for month", err)
	}
	return out, nil
}

func (s *Store) TempStatsByCity(from, to string) ([]models.CityTempStats, error) {
	rows, err := s.db.Query(`
		SELECT c.name, AVG(d.min_temp), AVG(d.mean_temp), AVG(d.max_temp)
		FROM daily_weather_entries d
		JOIN cities c ON d.city_id = c.id
		WHERE d.date >= ? AND d.date <= ?
		GROUP BY c.name
		ORDER BY c.name
	`, from, to)
	if err != nil {
		return nil, queryErr("temp stats by city", err)
	}
	defer rows.Close()

	var out []models.CityTempStats
	for rows.Next() {
		var st models.CityTempStats
		var minT, meanT, maxT sql.NullFloat64
		if err := rows.Scan(&st.CityName, &minT, &meanT, &maxT); err != nil {
			return nil, queryErr("scan temp stats", err)
		}
		st.AvgMinTemp, st.AvgMeanTemp, st.AvgMaxTemp = minT.Float64, meanT.Float64, maxT.Float64
		out = append(out, st)
	}
	if err := rows.Err(); err != nil {
		return nil, queryErr("temp stats by city", err)
	}
	return out, nil
}

func (s *Store) TempVsPrecipByCity(from, to string) ([]models.CityClimate, error) {
	rows, err := s.db.Query(`
		SELECT c.name, AVG(d.mean_temp), AVG(d.precipitation)
		FROM daily_weather_entries d
		JOIN cities c ON d.city_id = c.id
		WHERE d.date >= ? AND d.date <= ?
		GROUP BY c.name
		ORDER BY c.name
	`, from, to)
	if err != nil {
		return nil, queryErr("temp vs precipitation by city", err)
	}
	defer rows.Close()

	var out []models.CityClimate
	for rows.Next() {
		var cc models.CityClimate
		var temp, precip sql.NullFloat64
		if err := rows.Scan(&cc.CityName, &temp, &precip); err != nil {
			return nil, queryErr("scan temp vs precipitation", err)
		}
		cc.AvgTemp, cc.AvgPrecip = temp.Float64, precip.Float64
		out = append(out, cc)
	}
	if err := rows.Err(); err != nil {
		return nil, queryErr("temp vs precipitation by city", err)
	}
	return out, nil
}

func (s *Store) cityValues(op, query string, args ...any) ([]models.CityValue, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, queryErr(op, err)
	}
	defer rows.Close()

	var values []models.CityValue
	for rows.Next() {
		var v models.CityValue
		var agg sql.NullFloat64
		if err := rows.Scan(&v.CityID, &v.CityName, &agg); err != nil {
			return nil, queryErr("scan "+op, err)
		}
		// A city whose rows are all NULL for the column has no value.
		if !agg.Valid {
			continue
		}
		v.Value = agg.Float64
		values = append(values, v)
	}
	if err := rows.Err(); err != nil {
		return nil, queryErr(op, err)
	}
	return values, nil
}

func (s *Store) dayValues(op, query string, args ...any) ([]models.DayValue, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, queryErr(op, err)
	}
	defer rows.Close()

	var values []models.DayValue
	for rows.Next() {
		var v models.DayValue
		var val sql.NullFloat64
		if err := rows.Scan(&v.Date, &val); err != nil {
			return nil, queryErr("scan "+op, err)
		}
		if !val.Valid {
			continue
		}
		v.Value = val.Float64
		values = append(values, v)
	}
	if err := rows.Err(); err != nil {
		return nil, queryErr(op, err)
	}
	return values, nil
}
